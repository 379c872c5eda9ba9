package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/openquality/odq/internal/llm"
	"github.com/openquality/odq/internal/models"
	"github.com/openquality/odq/internal/output"
)

// reportOptions carries the output flags shared by csv and dataset.
type reportOptions struct {
	jsonPath string
	mdPath   string
	showOK   bool
	noSave   bool
	explain  bool
	quiet    bool
}

// finishReport renders, exports, records, and optionally explains a
// finished report, then turns its verdict into the process exit code.
func finishReport(ctx context.Context, report *models.QualityReport, opts reportOptions) error {
	if !opts.quiet {
		ui.RenderReport(report, opts.showOK)
	}

	if opts.jsonPath != "" {
		data, err := report.ExportJSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.jsonPath, data, 0644); err != nil {
			return fmt.Errorf("write JSON report: %w", err)
		}
		if !opts.quiet {
			ui.Info("JSON report written to %s", opts.jsonPath)
		}
	}

	if opts.mdPath != "" {
		md := output.RenderMarkdown(report, opts.showOK)
		if err := os.WriteFile(opts.mdPath, []byte(md), 0644); err != nil {
			return fmt.Errorf("write Markdown report: %w", err)
		}
		if !opts.quiet {
			ui.Info("Markdown report written to %s", opts.mdPath)
		}
	}

	if !opts.noSave {
		saveRun(ctx, report)
	}

	if opts.explain {
		explainReport(ctx, report)
	}

	if v := report.Verdict(); v != models.VerdictGood {
		return &exitError{code: int(v)}
	}
	return nil
}

// saveRun records the run best-effort. History must never change a
// validation outcome, so failures degrade to a warning.
func saveRun(ctx context.Context, report *models.QualityReport) {
	s, err := getStore()
	if err != nil {
		ui.Warning("Run not recorded: %v", err)
		return
	}
	run, err := models.NewRunFromReport(report)
	if err != nil {
		ui.Warning("Run not recorded: %v", err)
		return
	}
	if err := s.SaveRun(ctx, run); err != nil {
		ui.Warning("Run not recorded: %v", err)
		return
	}
	ui.VerboseLog("Run recorded: %s", run.ID)
}

func explainReport(ctx context.Context, report *models.QualityReport) {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		ui.Warning("--explain needs anthropic.api_key (set ODQ_ANTHROPIC_API_KEY or add it to the config file)")
		return
	}

	client := llm.NewClient(apiKey, viper.GetString("anthropic.model"))
	text, err := client.ExplainReport(ctx, report)
	if err != nil {
		ui.Warning("Explanation unavailable: %v", err)
		return
	}
	fmt.Fprintf(ui.Out, "\n%s\n", text)
}
