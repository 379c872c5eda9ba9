package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openquality/odq/internal/ckan"
	"github.com/openquality/odq/internal/csvcheck"
	"github.com/openquality/odq/internal/metadata"
	"github.com/openquality/odq/internal/models"
)

var (
	datasetDownload   bool
	datasetCheckURLs  bool
	datasetTimeout    time.Duration
	datasetSampleRows int
	datasetOutputJSON string
	datasetOutputMD   string
	datasetShowOK     bool
	datasetNoSave     bool
	datasetExplain    bool
	datasetQuiet      bool
)

var datasetCmd = &cobra.Command{
	Use:   "dataset <portal-url> <dataset-id>",
	Short: "Validate a CKAN dataset record",
	Long: `Fetch a dataset record from a CKAN portal and validate its metadata:
completeness, licensing, contact, update cadence, and resource URL
accessibility. With --download the first CSV resource is fetched and
run through the file checks as well, plus a cross-check of the declared
metadata against the actual file.

Exit codes: 0 good, 1 usable with caution, 2 unusable, 3 portal or
network failure before any verdict was reached.`,
	Args: cobra.ExactArgs(2),
}

func init() {
	datasetCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return datasetRun(cmd.Context(), args[0], args[1])
	}
	datasetCmd.Flags().BoolVar(&datasetDownload, "download", false, "Download and validate the first CSV resource")
	datasetCmd.Flags().BoolVar(&datasetCheckURLs, "check-urls", true, "Probe resource URLs for accessibility")
	datasetCmd.Flags().DurationVar(&datasetTimeout, "timeout", 0, "Per-request network timeout (default from config)")
	datasetCmd.Flags().IntVar(&datasetSampleRows, "sample-rows", 0, "Rows sampled for content checks (default from config)")
	datasetCmd.Flags().StringVar(&datasetOutputJSON, "output-json", "", "Write the JSON report to a file")
	datasetCmd.Flags().StringVar(&datasetOutputMD, "output-md", "", "Write the Markdown report to a file")
	datasetCmd.Flags().BoolVar(&datasetShowOK, "show-ok", false, "Also print passed checks")
	datasetCmd.Flags().BoolVar(&datasetNoSave, "no-save", false, "Do not record the run in history")
	datasetCmd.Flags().BoolVar(&datasetExplain, "explain", false, "Ask the configured LLM for a remediation plan")
	datasetCmd.Flags().BoolVarP(&datasetQuiet, "quiet", "q", false, "Suppress terminal rendering, exit code only")
	rootCmd.AddCommand(datasetCmd)
}

func datasetRun(ctx context.Context, portalURL, datasetID string) error {
	timeout := datasetTimeout
	if timeout <= 0 {
		timeout = viper.GetDuration("timeout")
	}
	client := ckan.NewClient(timeout)

	if !datasetQuiet {
		ui.Info("Fetching %s from %s", datasetID, portalURL)
	}
	ds, raw, err := client.FetchDataset(ctx, portalURL, datasetID)
	if err != nil {
		// No verdict was reached, so the verdict exit codes must stay
		// untouched.
		return &exitError{code: 3, message: err.Error()}
	}

	report := models.NewReport(strings.TrimRight(portalURL, "/") + "/dataset/" + datasetID)
	report.Metadata = raw

	checkURLs := datasetCheckURLs
	if !datasetCmd.Flags().Changed("check-urls") {
		checkURLs = viper.GetBool("check_urls")
	}
	if checkURLs {
		if !datasetQuiet {
			ui.Info("Checking resource URLs")
		}
		metadata.NewAccessibilityChecker(client, report).Run(ctx, ds)
	} else {
		ui.VerboseLog("Resource URL checks skipped")
	}

	metadata.NewValidator(ds, portalURL, metadata.Options{Report: report}).Run()

	if datasetDownload {
		validateFirstResource(ctx, client, ds, report)
	} else {
		csvcheck.AppendUncheckedDimensions(report, "Not checked, use --download")
	}

	return finishReport(ctx, report, reportOptions{
		jsonPath: datasetOutputJSON,
		mdPath:   datasetOutputMD,
		showOK:   datasetShowOK,
		noSave:   datasetNoSave,
		explain:  datasetExplain,
		quiet:    datasetQuiet,
	})
}

// validateFirstResource downloads the first CSV resource, runs the file
// phases against it, and cross-checks the declared metadata. Download
// trouble degrades to a warning: the verdict then rests on metadata and
// accessibility alone.
func validateFirstResource(ctx context.Context, client *ckan.Client, ds *ckan.Dataset, report *models.QualityReport) {
	res, ok := ckan.FirstCSVResource(ds)
	if !ok {
		ui.Warning("No CSV resource found, skipping file validation")
		return
	}

	if !datasetQuiet {
		ui.Info("Downloading %s", res.URL)
	}
	path, err := client.DownloadResource(ctx, res.URL)
	if err != nil {
		ui.Warning("Download failed, skipping file validation: %v", err)
		return
	}
	defer os.Remove(path)

	sampleRows := datasetSampleRows
	if sampleRows <= 0 {
		sampleRows = viper.GetInt("sample_rows")
	}
	csvcheck.New(path, csvcheck.Options{SampleRows: sampleRows, Report: report}).Run(ctx)
	metadata.NewConsistencyChecker(nil, report).Run(ds, path)
}
