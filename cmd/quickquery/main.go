// Package main provides the quickquery command line: the HTTP server plus
// local access to the answering pipeline, its metrics and its event log.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ricesearch/quickquery/internal/client"
	"github.com/ricesearch/quickquery/internal/config"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "quickquery",
		Short: "quickquery - fast answers to structured business questions",
		Long: `quickquery answers a narrow class of business questions (counts, filters,
status breakdowns, planned production) straight from the data store, and
hands anything else to a general-purpose fallback answerer.

Run 'quickquery serve' to start the HTTP server.
Run 'quickquery ask "Ile jest receptur w systemie?"' to try the pipeline locally.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")
	rootCmd.PersistentFlags().String("fixture", "", "seed the doc store from this YAML/JSON file (overrides config)")
	rootCmd.PersistentFlags().StringP("server", "s", "", "talk to a running server at this URL instead of a local pipeline")

	rootCmd.AddCommand(
		serveCmd(),
		askCmd(),
		compareCmd(),
		statsCmd(),
		reportCmd(),
		exportCmd(),
		seedCmd(),
		eventsCmd(),
		healthCmd(),
		versionCmd(),
	)

	return rootCmd
}

// loadConfig loads configuration and applies the global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	fixture, _ := cmd.Flags().GetString("fixture")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if fixture != "" {
		cfg.DocStore.Fixture = fixture
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	return cfg, log, nil
}

// remote returns an API client when --server is set, or nil.
func remote(cmd *cobra.Command) *client.Client {
	url, _ := cmd.Flags().GetString("server")
	if url == "" {
		return nil
	}
	return client.New(client.Config{BaseURL: url})
}

func outputJSON(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("format")
	return format == "json"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "quickquery %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
