package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openquality/odq/internal/models"
	"github.com/openquality/odq/internal/output"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded validation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun(cmd.Context())
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Re-render a recorded report (id prefix accepted)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyShowRun(cmd.Context(), args[0])
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyListRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	runs, err := s.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ui.Info("No runs recorded yet. Try: odq csv <file>")
		return nil
	}

	table := ui.Table([]string{"ID", "Source", "Profile", "Score", "B/M/m", "Verdict", "When"})

	for _, run := range runs {
		table.Append([]string{
			shortID(run.ID),
			truncateSource(run.Source),
			run.Profile,
			output.ScoreColor(run.Score) + "%",
			fmt.Sprintf("%d/%d/%d", run.Blockers, run.Majors, run.Minors),
			output.VerdictColor(models.Verdict(run.Verdict)),
			timeAgo(run.CreatedAt),
		})
	}

	table.Render()
	return nil
}

func historyShowRun(ctx context.Context, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}

	var export models.Export
	if err := json.Unmarshal([]byte(run.ReportJSON), &export); err != nil {
		return fmt.Errorf("decode stored report %s: %w", run.ID, err)
	}

	ui.Info("Run %s, recorded %s", run.ID, run.CreatedAt.Local().Format("2006-01-02 15:04"))
	ui.RenderReport(models.ReportFromExport(export), false)
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncateSource(s string) string {
	if len(s) > 48 {
		return s[:45] + "..."
	}
	return s
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
