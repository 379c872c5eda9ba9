package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openquality/odq/internal/csvcheck"
)

var (
	csvSampleRows int
	csvOutputJSON string
	csvOutputMD   string
	csvShowOK     bool
	csvNoSave     bool
	csvExplain    bool
	csvQuiet      bool
)

var csvCmd = &cobra.Command{
	Use:   "csv <file>",
	Short: "Validate a local tabular data file",
	Long: `Validate a local CSV file: parse gate, structure, column layout,
cell content, and reference codes. Prints the findings and the scored
report; the exit code is the verdict (0 good, 1 usable with caution,
2 unusable).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return csvRun(cmd.Context(), args[0])
	},
}

func init() {
	csvCmd.Flags().IntVar(&csvSampleRows, "sample-rows", 0, "Rows sampled for content checks (default from config)")
	csvCmd.Flags().StringVar(&csvOutputJSON, "output-json", "", "Write the JSON report to a file")
	csvCmd.Flags().StringVar(&csvOutputMD, "output-md", "", "Write the Markdown report to a file")
	csvCmd.Flags().BoolVar(&csvShowOK, "show-ok", false, "Also print passed checks")
	csvCmd.Flags().BoolVar(&csvNoSave, "no-save", false, "Do not record the run in history")
	csvCmd.Flags().BoolVar(&csvExplain, "explain", false, "Ask the configured LLM for a remediation plan")
	csvCmd.Flags().BoolVarP(&csvQuiet, "quiet", "q", false, "Suppress terminal rendering, exit code only")
	rootCmd.AddCommand(csvCmd)
}

func csvRun(ctx context.Context, path string) error {
	sampleRows := csvSampleRows
	if sampleRows <= 0 {
		sampleRows = viper.GetInt("sample_rows")
	}

	if !csvQuiet {
		ui.Info("Validating %s", path)
	}

	report := csvcheck.New(path, csvcheck.Options{SampleRows: sampleRows}).Run(ctx)

	return finishReport(ctx, report, reportOptions{
		jsonPath: csvOutputJSON,
		mdPath:   csvOutputMD,
		showOK:   csvShowOK,
		noSave:   csvNoSave,
		explain:  csvExplain,
		quiet:    csvQuiet,
	})
}
