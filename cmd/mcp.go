package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openquality/odq/internal/ckan"
	"github.com/openquality/odq/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server exposing the validators",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients validate files and dataset records natively,
for example to gate a publication pipeline on data quality:

  {
    "mcpServers": {
      "odq": { "command": "odq", "args": ["mcp"] }
    }
  }

Available tools: odq_validate_csv, odq_validate_dataset, odq_history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			// History is optional for the tool surface; validation
			// still works without it.
			ui.Warning("Run history unavailable: %v", err)
		}

		srv := mcp.NewServer(s, ckan.NewClient(viper.GetDuration("timeout")), viper.GetInt("sample_rows"))
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
