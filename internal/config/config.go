// Package config provides unified configuration loading for fipsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/fipsim/internal/constants"
	"github.com/nvandessel/fipsim/internal/reversal"
)

// FipsimConfig contains all fipsim configuration settings.
type FipsimConfig struct {
	// Simulation contains the defaults used when flags are omitted.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Output controls how snapshots are rendered.
	Output OutputConfig `json:"output" yaml:"output"`

	// Store configures trace persistence.
	Store StoreConfig `json:"store" yaml:"store"`

	// MCP configures the MCP server.
	MCP MCPConfig `json:"mcp" yaml:"mcp"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig holds default simulation inputs.
type SimulationConfig struct {
	// Values is the input list used when none is given.
	Values []int `json:"values" yaml:"values"`

	// Discipline is "fip" or "rc".
	Discipline string `json:"discipline" yaml:"discipline"`
}

// OutputConfig controls rendering.
type OutputConfig struct {
	// Format is "text", "dot" or "json".
	Format string `json:"format" yaml:"format"`
}

// StoreConfig configures the trace store.
type StoreConfig struct {
	// Dir is the directory holding traces.db. Empty means ~/.fipsim.
	// Supports ${VAR} syntax for env vars.
	Dir string `json:"dir" yaml:"dir"`

	// Persist saves every run's trace when true.
	Persist bool `json:"persist" yaml:"persist"`
}

// MCPConfig configures the MCP server.
type MCPConfig struct {
	// RateLimit is the sustained number of tool calls per second.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// Burst is the number of tool calls allowed at once.
	Burst int `json:"burst" yaml:"burst"`

	// ToolTimeout bounds a single tool call.
	ToolTimeout time.Duration `json:"tool_timeout" yaml:"tool_timeout"`
}

// LoggingConfig configures fipsim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables engine event logging to <store dir>/events.jsonl.
	// "trace" additionally logs every snapshot to stderr.
	Level string `json:"level" yaml:"level"`
}

// Default returns a FipsimConfig with sensible defaults.
func Default() *FipsimConfig {
	return &FipsimConfig{
		Simulation: SimulationConfig{
			Values:     []int{1, 2, 3},
			Discipline: constants.DisciplineFIP,
		},
		Output: OutputConfig{
			Format: "text",
		},
		Store: StoreConfig{
			Dir:     "",
			Persist: true,
		},
		MCP: MCPConfig{
			RateLimit:   10,
			Burst:       5,
			ToolTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.fipsim/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(homeDir, ".fipsim", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.fipsim/config.yaml -> environment variables
func Load() (*FipsimConfig, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*FipsimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Dir = expandEnvVars(config.Store.Dir)

	return config, nil
}

// Save writes the configuration as YAML to path, creating parent directories.
func (c *FipsimConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *FipsimConfig) Validate() error {
	if _, err := reversal.ParseDiscipline(c.Simulation.Discipline); err != nil {
		return err
	}

	if len(c.Simulation.Values) > constants.MaxListLength {
		return fmt.Errorf("simulation.values has %d entries, limit is %d", len(c.Simulation.Values), constants.MaxListLength)
	}

	validFormats := map[string]bool{"text": true, "dot": true, "json": true}
	if !validFormats[c.Output.Format] {
		return fmt.Errorf("invalid output format: %s (valid: text, dot, json)", c.Output.Format)
	}

	if c.MCP.RateLimit <= 0 {
		return fmt.Errorf("mcp.rate_limit must be positive, got %v", c.MCP.RateLimit)
	}
	if c.MCP.Burst < 1 {
		return fmt.Errorf("mcp.burst must be at least 1, got %d", c.MCP.Burst)
	}
	if c.MCP.ToolTimeout < 0 {
		return fmt.Errorf("mcp.tool_timeout must be non-negative, got %v", c.MCP.ToolTimeout)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Keys lists every dot-notation key accepted by Get and Set.
var Keys = []string{
	"simulation.values",
	"simulation.discipline",
	"output.format",
	"store.dir",
	"store.persist",
	"mcp.rate_limit",
	"mcp.burst",
	"mcp.tool_timeout",
	"logging.level",
}

// Get retrieves a configuration value by dot-notation key.
func (c *FipsimConfig) Get(key string) (any, bool) {
	switch key {
	case "simulation.values":
		return c.Simulation.Values, true
	case "simulation.discipline":
		return c.Simulation.Discipline, true
	case "output.format":
		return c.Output.Format, true
	case "store.dir":
		return c.Store.Dir, true
	case "store.persist":
		return c.Store.Persist, true
	case "mcp.rate_limit":
		return c.MCP.RateLimit, true
	case "mcp.burst":
		return c.MCP.Burst, true
	case "mcp.tool_timeout":
		return c.MCP.ToolTimeout.String(), true
	case "logging.level":
		return c.Logging.Level, true
	default:
		return nil, false
	}
}

// Set assigns a configuration value by dot-notation key, parsing value for
// the key's type. The result is validated before it is kept.
func (c *FipsimConfig) Set(key, value string) error {
	next := *c
	switch key {
	case "simulation.values":
		values, err := reversal.ParseValues(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		next.Simulation.Values = values
	case "simulation.discipline":
		next.Simulation.Discipline = strings.ToLower(strings.TrimSpace(value))
	case "output.format":
		next.Output.Format = strings.ToLower(strings.TrimSpace(value))
	case "store.dir":
		next.Store.Dir = value
	case "store.persist":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		next.Store.Persist = b
	case "mcp.rate_limit":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		next.MCP.RateLimit = f
	case "mcp.burst":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		next.MCP.Burst = n
	case "mcp.tool_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		next.MCP.ToolTimeout = d
	case "logging.level":
		next.Logging.Level = strings.ToLower(strings.TrimSpace(value))
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// applyEnvOverrides applies FIPSIM_* environment variable overrides.
func applyEnvOverrides(config *FipsimConfig) error {
	if v := os.Getenv("FIPSIM_VALUES"); v != "" {
		values, err := reversal.ParseValues(v)
		if err != nil {
			return fmt.Errorf("FIPSIM_VALUES: %w", err)
		}
		config.Simulation.Values = values
	}

	if v := os.Getenv("FIPSIM_DISCIPLINE"); v != "" {
		config.Simulation.Discipline = strings.ToLower(v)
	}

	if v := os.Getenv("FIPSIM_FORMAT"); v != "" {
		config.Output.Format = strings.ToLower(v)
	}

	if v := os.Getenv("FIPSIM_STORE_DIR"); v != "" {
		config.Store.Dir = v
	}

	if v := os.Getenv("FIPSIM_PERSIST"); v != "" {
		config.Store.Persist = v == "true" || v == "1"
	}

	if v := os.Getenv("FIPSIM_MCP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.MCP.RateLimit = f
		}
	}

	if v := os.Getenv("FIPSIM_MCP_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.MCP.Burst = n
		}
	}

	if v := os.Getenv("FIPSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
