package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/fipsim/internal/config"
	"github.com/nvandessel/fipsim/internal/logging"
	"github.com/nvandessel/fipsim/internal/store"
)

// Set by the linker at release time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fipsim",
		Short: "Watch a linked list reversal under FIP and reference counting",
		Long: `fipsim reverses a singly linked list on a simulated heap and records a
snapshot after every change, so the two memory disciplines can be compared
step by step.

Under "fip" (functional in-place) every cell is reused as the list is
reversed and nothing is freed. Under "rc" every step allocates a new cell
and the old ones are released by reference counting, one per frame.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("store-dir", "", "Trace store directory (default ~/.fipsim)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newTraceCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadConfig loads the layered configuration and applies global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.FipsimConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f := cmd.Flags().Lookup("store-dir"); f != nil && f.Changed {
		cfg.Store.Dir = f.Value.String()
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = f.Value.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger returns the operational logger, writing to the command's stderr.
func newLogger(cmd *cobra.Command, cfg *config.FipsimConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// openStore opens the SQLite trace store in the configured directory.
func openStore(cfg *config.FipsimConfig) (*store.SQLiteTraceStore, error) {
	dir, err := store.ResolveDir(cfg.Store.Dir)
	if err != nil {
		return nil, err
	}
	ts, err := store.NewSQLiteTraceStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open trace store: %w", err)
	}
	return ts, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return jsonOut
}
