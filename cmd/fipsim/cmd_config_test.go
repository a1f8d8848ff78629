package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigList(t *testing.T) {
	isolateHome(t)

	out, err := executeCmd(t, "config", "list")
	if err != nil {
		t.Fatalf("config list: %v", err)
	}
	for _, want := range []string{
		"simulation.values:",
		"[1 2 3]",
		"store.dir:",
		"(default)",
		"mcp.tool_timeout:",
		"10s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("config list missing %q:\n%s", want, out)
		}
	}

	out, err = executeCmd(t, "config", "list", "--json")
	if err != nil {
		t.Fatalf("config list --json: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode config JSON: %v", err)
	}
	for _, section := range []string{"simulation", "output", "store", "mcp", "logging"} {
		if _, ok := got[section]; !ok {
			t.Errorf("config JSON missing section %q", section)
		}
	}
}

func TestConfigSetGet(t *testing.T) {
	home := isolateHome(t)

	tests := []struct {
		key, value, want string
	}{
		{"simulation.values", "4,5,6", "[4 5 6]"},
		{"simulation.discipline", "RC", "rc"},
		{"store.persist", "false", "false"},
		{"mcp.rate_limit", "2.5", "2.5"},
		{"mcp.tool_timeout", "3s", "3s"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			out, err := executeCmd(t, "config", "set", tt.key, tt.value)
			if err != nil {
				t.Fatalf("config set: %v", err)
			}
			if !strings.Contains(out, "Set "+tt.key+" = "+tt.want) {
				t.Errorf("set output = %q", out)
			}

			out, err = executeCmd(t, "config", "get", tt.key)
			if err != nil {
				t.Fatalf("config get: %v", err)
			}
			if strings.TrimSpace(out) != tt.key+" = "+tt.want {
				t.Errorf("get output = %q, want %q", out, tt.key+" = "+tt.want)
			}
		})
	}

	path := filepath.Join(home, ".fipsim", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "discipline: rc") {
		t.Errorf("config file missing discipline:\n%s", data)
	}

	// Settings persist into later runs.
	out, err := executeCmd(t, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "rc: [4 5 6] -> [6 5 4]") {
		t.Errorf("run ignored saved config:\n%s", out)
	}
}

func TestConfigSet_EnvNotPersisted(t *testing.T) {
	home := isolateHome(t)
	t.Setenv("FIPSIM_DISCIPLINE", "rc")

	if _, err := executeCmd(t, "config", "set", "output.format", "dot"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(home, ".fipsim", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if strings.Contains(string(data), "discipline: rc") {
		t.Errorf("environment override leaked into the config file:\n%s", data)
	}
}

func TestConfig_Errors(t *testing.T) {
	isolateHome(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"get unknown", []string{"config", "get", "nope"}, "unknown configuration key"},
		{"set unknown", []string{"config", "set", "nope", "1"}, "unknown configuration key"},
		{"set bad bool", []string{"config", "set", "store.persist", "maybe"}, "invalid value"},
		{"set bad discipline", []string{"config", "set", "simulation.discipline", "gc"}, "discipline"},
		{"set missing value", []string{"config", "set", "mcp.burst"}, "accepts 2 arg(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCmd(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
