package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/openquality/odq/internal/ckan"
	"github.com/openquality/odq/internal/csvcheck"
	"github.com/openquality/odq/internal/metadata"
	"github.com/openquality/odq/internal/models"
	"github.com/openquality/odq/internal/store"
)

// Server wraps the validation pipeline and exposes it as MCP tools.
type Server struct {
	store      store.Store
	client     *ckan.Client
	sampleRows int
}

// NewServer creates the MCP server wrapper. The store may be nil, in
// which case odq_history reports that history is unavailable.
func NewServer(s store.Store, client *ckan.Client, sampleRows int) *Server {
	return &Server{
		store:      s,
		client:     client,
		sampleRows: sampleRows,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("odq", "1.0.0", server.WithToolCapabilities(true))

	// Register all tools
	srv.AddTool(s.validateCSVTool())
	srv.AddTool(s.validateDatasetTool())
	srv.AddTool(s.historyTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// odq_validate_csv
func (s *Server) validateCSVTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("odq_validate_csv",
		mcp.WithDescription("Validate a local CSV file for open-data publishing quality. Returns the JSON quality report: severity-graded findings (blocker, major, minor), per-dimension scores, the overall percentage, and the verdict (0 good, 1 usable with caution, 2 unusable)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the CSV file")),
		mcp.WithNumber("sample_rows", mcp.Description("Rows sampled for content checks (default 50000)")),
	)
	return tool, s.handleValidateCSV
}

func (s *Server) handleValidateCSV(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}
	sampleRows := request.GetInt("sample_rows", s.sampleRows)

	report := csvcheck.New(path, csvcheck.Options{SampleRows: sampleRows}).Run(ctx)
	return reportResult(report)
}

// odq_validate_dataset
func (s *Server) validateDatasetTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("odq_validate_dataset",
		mcp.WithDescription("Fetch a dataset record from a CKAN portal and validate its metadata: completeness, licensing, contact, update cadence, and resource URL accessibility. Optionally downloads the first CSV resource and validates the file too. Returns the JSON quality report."),
		mcp.WithString("portal_url", mcp.Required(), mcp.Description("Base URL of the CKAN portal, e.g. https://www.govdata.de")),
		mcp.WithString("dataset_id", mcp.Required(), mcp.Description("Dataset name or id on the portal")),
		mcp.WithBoolean("check_urls", mcp.Description("Probe resource URLs for accessibility (default true)")),
		mcp.WithBoolean("download", mcp.Description("Download and validate the first CSV resource (default false)")),
	)
	return tool, s.handleValidateDataset
}

func (s *Server) handleValidateDataset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	portalURL, err := request.RequireString("portal_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: portal_url"), nil
	}
	datasetID, err := request.RequireString("dataset_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: dataset_id"), nil
	}
	checkURLs := request.GetBool("check_urls", true)
	download := request.GetBool("download", false)

	ds, raw, err := s.client.FetchDataset(ctx, portalURL, datasetID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch dataset: %v", err)), nil
	}

	report := models.NewReport(strings.TrimRight(portalURL, "/") + "/dataset/" + datasetID)
	report.Metadata = raw

	if checkURLs {
		metadata.NewAccessibilityChecker(s.client, report).Run(ctx, ds)
	}
	metadata.NewValidator(ds, portalURL, metadata.Options{Report: report}).Run()

	if download {
		s.validateFirstResource(ctx, ds, report)
	} else {
		csvcheck.AppendUncheckedDimensions(report, "Not checked, set download=true")
	}

	return reportResult(report)
}

// validateFirstResource mirrors the CLI download path: fetch the first
// CSV resource, run the file phases, cross-check the metadata. Download
// trouble is not a tool error, the metadata verdict still stands.
func (s *Server) validateFirstResource(ctx context.Context, ds *ckan.Dataset, report *models.QualityReport) {
	res, ok := ckan.FirstCSVResource(ds)
	if !ok {
		return
	}
	path, err := s.client.DownloadResource(ctx, res.URL)
	if err != nil {
		return
	}
	defer os.Remove(path)

	csvcheck.New(path, csvcheck.Options{SampleRows: s.sampleRows, Report: report}).Run(ctx)
	metadata.NewConsistencyChecker(nil, report).Run(ds, path)
}

// odq_history
func (s *Server) historyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("odq_history",
		mcp.WithDescription("List recent validation runs with source, score, finding counts, and verdict. Returns a JSON array, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum runs to return (default 20)")),
	)
	return tool, s.handleHistory
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("run history is not available"), nil
	}
	limit := request.GetInt("limit", 20)

	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	type runOut struct {
		ID        string `json:"id"`
		Source    string `json:"source"`
		Mode      string `json:"mode"`
		Profile   string `json:"profile"`
		Score     int    `json:"score"`
		Blockers  int    `json:"blockers"`
		Majors    int    `json:"majors"`
		Minors    int    `json:"minors"`
		Verdict   int    `json:"verdict"`
		CreatedAt string `json:"created_at"`
	}

	out := make([]runOut, len(runs))
	for i, run := range runs {
		out[i] = runOut{
			ID:        run.ID,
			Source:    run.Source,
			Mode:      run.Mode,
			Profile:   run.Profile,
			Score:     run.Score,
			Blockers:  run.Blockers,
			Majors:    run.Majors,
			Minors:    run.Minors,
			Verdict:   run.Verdict,
			CreatedAt: run.CreatedAt.UTC().Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// reportResult renders a report's export document as the tool result.
func reportResult(report *models.QualityReport) (*mcp.CallToolResult, error) {
	data, err := report.ExportJSON()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
