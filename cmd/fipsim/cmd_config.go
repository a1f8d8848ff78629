package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/fipsim/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fipsim configuration",
		Long: `View and modify fipsim configuration settings.

Configuration is stored in ~/.fipsim/config.yaml. FIPSIM_* environment
variables override the file when settings are read.

Examples:
  fipsim config list                          # Show all settings
  fipsim config get simulation.discipline     # Get a specific setting
  fipsim config set simulation.values 4,5,6   # Set a setting
  fipsim config set mcp.rate_limit 2.5`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return json.NewEncoder(out).Encode(cfg)
			}

			fmt.Fprintln(out, "Configuration (~/.fipsim/config.yaml):")
			fmt.Fprintln(out)
			for _, key := range config.Keys {
				value, _ := cfg.Get(key)
				if s, ok := value.(string); ok && s == "" {
					value = "(default)"
				}
				fmt.Fprintf(out, "  %-22s %v\n", key+":", value)
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := cfg.Get(key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return json.NewEncoder(out).Encode(map[string]any{"key": key, "value": value})
			}
			fmt.Fprintf(out, "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			path, err := config.DefaultPath()
			if err != nil {
				return err
			}

			// Edit the file as written, without environment overrides.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				cfg, err = config.LoadFromFile(path)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else if !errors.Is(statErr, os.ErrNotExist) {
				return fmt.Errorf("failed to stat config: %w", statErr)
			}

			if err := cfg.Set(key, value); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			newValue, _ := cfg.Get(key)
			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return json.NewEncoder(out).Encode(map[string]any{"key": key, "value": newValue, "path": path})
			}
			fmt.Fprintf(out, "Set %s = %v\n", key, newValue)
			return nil
		},
	}
}
