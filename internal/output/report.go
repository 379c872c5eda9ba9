package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/openquality/odq/internal/models"
)

var (
	blockerMark = color.New(color.FgHiRed).Sprint("✗")
	majorMark   = color.New(color.FgHiYellow).Sprint("⚠")
	minorMark   = color.New(color.FgHiCyan).Sprint("•")
	okMark      = color.New(color.FgHiGreen).Sprint("✓")
	bold        = color.New(color.Bold).SprintFunc()
)

// RenderReport prints a quality report for terminals: findings grouped
// by severity, the score breakdown table, then score and verdict. OK
// findings appear only when showOK is set.
func (u *UI) RenderReport(r *models.QualityReport, showOK bool) {
	fmt.Fprintf(u.Out, "\n%s\n", bold(r.Source))
	fmt.Fprintf(u.Out, "Profile: %s   Mode: %s\n\n", Cyan(r.Profile), r.Mode)

	shown := 0
	groups := []struct {
		mark     string
		findings []models.Finding
	}{
		{blockerMark, r.Blockers()},
		{majorMark, r.Majors()},
		{minorMark, r.Minors()},
	}
	for _, g := range groups {
		for _, f := range g.findings {
			u.renderFinding(g.mark, f)
			shown++
		}
	}
	if showOK {
		for _, f := range r.Findings {
			if f.Severity == models.SeverityOK {
				fmt.Fprintf(u.Out, "%s %s\n", okMark, f.Message)
				shown++
			}
		}
	}
	if shown == 0 {
		u.Success("No issues found")
	}
	fmt.Fprintln(u.Out)

	if len(r.Dimensions) > 0 {
		table := u.Table([]string{"Dimension", "Score", "Max", "Notes"})
		for _, d := range r.Dimensions {
			table.Append([]string{
				d.Name,
				fmt.Sprintf("%d", d.Score),
				fmt.Sprintf("%d", d.MaxScore),
				strings.Join(d.Notes, ", "),
			})
		}
		table.Render()
		fmt.Fprintln(u.Out)
	}

	fmt.Fprintf(u.Out, "Score: %s%% (%d/%d)\n", ScoreColor(r.ScorePct()), r.TotalScore(), r.MaxScore())
	fmt.Fprintf(u.Out, "Verdict: %s\n", VerdictColor(r.Verdict()))
}

func (u *UI) renderFinding(mark string, f models.Finding) {
	fmt.Fprintf(u.Out, "%s [%s] %s\n", mark, f.Code, f.Message)
	if f.Detail != "" {
		fmt.Fprintf(u.Out, "      %s\n", f.Detail)
	}
	if f.Fix != "" {
		fmt.Fprintf(u.Out, "      fix: %s\n", f.Fix)
	}
}

// RenderMarkdown formats the report as a standalone markdown document.
// Unlike the JSON export it embeds the generation date.
func RenderMarkdown(r *models.QualityReport, showOK bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Data Quality Report\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Source | %s |\n", r.Source)
	fmt.Fprintf(&b, "| Profile | %s |\n", r.Profile)
	fmt.Fprintf(&b, "| Mode | %s |\n", r.Mode)
	fmt.Fprintf(&b, "| Date | %s |\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&b, "| Score | %d%% (%d/%d) |\n\n", r.ScorePct(), r.TotalScore(), r.MaxScore())

	sections := []struct {
		title    string
		findings []models.Finding
	}{
		{"Blockers", r.Blockers()},
		{"Major issues", r.Majors()},
		{"Minor issues", r.Minors()},
	}
	for _, sec := range sections {
		if len(sec.findings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", sec.title)
		for _, f := range sec.findings {
			fmt.Fprintf(&b, "- **%s** %s\n", f.Code, f.Message)
			if f.Detail != "" {
				fmt.Fprintf(&b, "  - %s\n", f.Detail)
			}
			if f.Fix != "" {
				fmt.Fprintf(&b, "  - Fix: %s\n", f.Fix)
			}
		}
		fmt.Fprintln(&b)
	}
	if showOK {
		fmt.Fprintf(&b, "## Passed checks\n\n")
		for _, f := range r.Findings {
			if f.Severity == models.SeverityOK {
				fmt.Fprintf(&b, "- %s\n", f.Message)
			}
		}
		fmt.Fprintln(&b)
	}

	if len(r.Dimensions) > 0 {
		fmt.Fprintf(&b, "## Score breakdown\n\n")
		fmt.Fprintf(&b, "| Dimension | Score | Max | Notes |\n|---|---|---|---|\n")
		for _, d := range r.Dimensions {
			fmt.Fprintf(&b, "| %s | %d | %d | %s |\n",
				d.Name, d.Score, d.MaxScore, strings.Join(d.Notes, ", "))
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintf(&b, "> **Verdict: %s**\n", r.Verdict())
	return b.String()
}
