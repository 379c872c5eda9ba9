package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openquality/odq/internal/output"
	"github.com/openquality/odq/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui       *output.UI
	runStore store.Store

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "odq",
	Short: "Open Data Quality - validate datasets before publication",
	Long: `odq assesses the quality of open-data publications.
It validates tabular files (parsing, structure, column layout, cell
content, reference codes) and CKAN portal metadata, and grades every
finding as blocker, major, or minor. The exit code is the verdict:
0 good, 1 usable with caution, 2 unusable.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// exitError carries a specific process exit code through cobra.
// Verdict exits (1, 2) have no message: the rendered report is the
// message. Portal failures use code 3 so scripts can tell "could not
// check" apart from "checked, usable with caution".
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.message != "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", ee.message)
		}
		os.Exit(ee.code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/odq/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "odq")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ODQ")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "odq")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "odq.db"))
	viper.SetDefault("sample_rows", 50000)
	viper.SetDefault("check_urls", true)
	viper.SetDefault("timeout", "15s")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// The run store is initialized lazily so that csv --no-save, config,
	// and version work without a writable database path.
}

// getStore returns the shared run store, initializing it on first call.
func getStore() (store.Store, error) {
	if runStore != nil {
		return runStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	runStore = s
	return runStore, nil
}
