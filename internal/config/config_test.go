package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	config := Default()

	if !reflect.DeepEqual(config.Simulation.Values, []int{1, 2, 3}) {
		t.Errorf("expected default values [1 2 3], got %v", config.Simulation.Values)
	}
	if config.Simulation.Discipline != "fip" {
		t.Errorf("expected discipline 'fip', got '%s'", config.Simulation.Discipline)
	}
	if config.Output.Format != "text" {
		t.Errorf("expected format 'text', got '%s'", config.Output.Format)
	}
	if !config.Store.Persist {
		t.Error("expected Store.Persist to be true by default")
	}
	if config.MCP.RateLimit != 10 || config.MCP.Burst != 5 {
		t.Errorf("expected MCP rate 10/burst 5, got %v/%d", config.MCP.RateLimit, config.MCP.Burst)
	}
	if config.MCP.ToolTimeout != 10*time.Second {
		t.Errorf("expected ToolTimeout 10s, got %v", config.MCP.ToolTimeout)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	t.Setenv("TRACE_ROOT", "/var/traces")

	configContent := `
simulation:
  values: [5, 6]
  discipline: rc
output:
  format: dot
store:
  dir: ${TRACE_ROOT}/fipsim
  persist: false
mcp:
  rate_limit: 2.5
  tool_timeout: 3s
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if !reflect.DeepEqual(config.Simulation.Values, []int{5, 6}) {
		t.Errorf("expected values [5 6], got %v", config.Simulation.Values)
	}
	if config.Simulation.Discipline != "rc" {
		t.Errorf("expected discipline 'rc', got '%s'", config.Simulation.Discipline)
	}
	if config.Output.Format != "dot" {
		t.Errorf("expected format 'dot', got '%s'", config.Output.Format)
	}
	if config.Store.Dir != "/var/traces/fipsim" {
		t.Errorf("expected expanded store dir, got '%s'", config.Store.Dir)
	}
	if config.Store.Persist {
		t.Error("expected Persist false")
	}
	if config.MCP.RateLimit != 2.5 {
		t.Errorf("expected rate limit 2.5, got %v", config.MCP.RateLimit)
	}
	if config.MCP.ToolTimeout != 3*time.Second {
		t.Errorf("expected tool timeout 3s, got %v", config.MCP.ToolTimeout)
	}
	// Unset keys keep their defaults.
	if config.MCP.Burst != 5 {
		t.Errorf("expected default burst 5, got %d", config.MCP.Burst)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("simulation: [unterminated"), 0600)
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	dir := filepath.Join(home, ".fipsim")
	os.MkdirAll(dir, 0700)
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("output:\n  format: json\n"), 0600)

	t.Setenv("FIPSIM_VALUES", "9, 8")
	t.Setenv("FIPSIM_DISCIPLINE", "RC")
	t.Setenv("FIPSIM_PERSIST", "0")
	t.Setenv("FIPSIM_MCP_BURST", "2")
	t.Setenv("FIPSIM_LOG_LEVEL", "debug")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Output.Format != "json" {
		t.Errorf("expected format from file 'json', got '%s'", config.Output.Format)
	}
	if !reflect.DeepEqual(config.Simulation.Values, []int{9, 8}) {
		t.Errorf("expected env values [9 8], got %v", config.Simulation.Values)
	}
	if config.Simulation.Discipline != "rc" {
		t.Errorf("expected env discipline 'rc', got '%s'", config.Simulation.Discipline)
	}
	if config.Store.Persist {
		t.Error("expected env to disable persistence")
	}
	if config.MCP.Burst != 2 {
		t.Errorf("expected env burst 2, got %d", config.MCP.Burst)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected env log level 'debug', got '%s'", config.Logging.Level)
	}
}

func TestLoad_BadEnvValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FIPSIM_VALUES", "1,two")
	if _, err := Load(); err == nil {
		t.Error("expected error for unparsable FIPSIM_VALUES")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*FipsimConfig)
		wantErr string
	}{
		{"valid default", func(c *FipsimConfig) {}, ""},
		{"unknown discipline", func(c *FipsimConfig) { c.Simulation.Discipline = "gc" }, "unknown discipline"},
		{"too many values", func(c *FipsimConfig) { c.Simulation.Values = make([]int, 300) }, "limit is"},
		{"bad format", func(c *FipsimConfig) { c.Output.Format = "svg" }, "invalid output format"},
		{"zero rate", func(c *FipsimConfig) { c.MCP.RateLimit = 0 }, "rate_limit"},
		{"zero burst", func(c *FipsimConfig) { c.MCP.Burst = 0 }, "burst"},
		{"negative timeout", func(c *FipsimConfig) { c.MCP.ToolTimeout = -time.Second }, "tool_timeout"},
		{"bad level", func(c *FipsimConfig) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"empty level ok", func(c *FipsimConfig) { c.Logging.Level = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.modify(config)
			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetSet(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		want    any
		wantErr bool
	}{
		{"simulation.values", "4,5", []int{4, 5}, false},
		{"simulation.discipline", "RC", "rc", false},
		{"simulation.discipline", "gc", nil, true},
		{"output.format", "dot", "dot", false},
		{"store.dir", "/tmp/x", "/tmp/x", false},
		{"store.persist", "false", false, false},
		{"store.persist", "maybe", nil, true},
		{"mcp.rate_limit", "0.5", 0.5, false},
		{"mcp.burst", "3", 3, false},
		{"mcp.tool_timeout", "250ms", "250ms", false},
		{"logging.level", "trace", "trace", false},
		{"no.such.key", "1", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			config := Default()
			before := *config
			err := config.Set(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !reflect.DeepEqual(*config, before) {
					t.Error("failed Set should leave config unchanged")
				}
				return
			}
			if err != nil {
				t.Fatalf("Set error: %v", err)
			}
			got, ok := config.Get(tt.key)
			if !ok {
				t.Fatalf("Get(%q) not found", tt.key)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Get(%q) = %#v, want %#v", tt.key, got, tt.want)
			}
		})
	}

	for _, key := range Keys {
		if _, ok := Default().Get(key); !ok {
			t.Errorf("Keys lists %q but Get does not know it", key)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := Default()
	config.Simulation.Values = []int{3, 1}
	config.MCP.ToolTimeout = 1500 * time.Millisecond

	if err := config.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config permissions = %o, want 0600", perm)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, config) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, config)
	}
}
