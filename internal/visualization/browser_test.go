package visualization

import (
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestOpenerCommand(t *testing.T) {
	const url = "http://127.0.0.1:8080"
	tests := []struct {
		goos     string
		wantBin  string
		wantLast string
		wantErr  bool
	}{
		{goos: "linux", wantBin: "xdg-open", wantLast: url},
		{goos: "darwin", wantBin: "open", wantLast: url},
		{goos: "windows", wantBin: "rundll32", wantLast: url},
		{goos: "plan9", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			cmd := openerCommand(tt.goos, url)
			if tt.wantErr {
				if cmd.Err == nil || !strings.Contains(cmd.Err.Error(), tt.goos) {
					t.Errorf("Err = %v, want unsupported platform error", cmd.Err)
				}
				if err := cmd.Start(); err == nil {
					t.Error("Start should fail for an unsupported platform")
				}
				return
			}
			if len(cmd.Args) == 0 || filepath.Base(cmd.Args[0]) != tt.wantBin {
				t.Errorf("Args = %v, want %s first", cmd.Args, tt.wantBin)
			}
			if cmd.Args[len(cmd.Args)-1] != tt.wantLast {
				t.Errorf("last arg = %q, want %q", cmd.Args[len(cmd.Args)-1], tt.wantLast)
			}
		})
	}
}

func TestOpenerCommand_DoesNotShareArgs(t *testing.T) {
	a := openerCommand("windows", "http://a")
	b := openerCommand("windows", "http://b")
	if slices.Equal(a.Args, b.Args) {
		t.Errorf("commands share arguments: %v", a.Args)
	}
	if got := openers["windows"]; len(got) != 2 {
		t.Errorf("openers table mutated: %v", got)
	}
}
