package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditFileName is the audit log written under the store directory.
const AuditFileName = "audit.jsonl"

// AuditEntry records one MCP tool invocation without its payload.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends AuditEntry lines to a JSONL file. It is safe for
// concurrent use, and a nil AuditLogger is a no-op.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens dir/audit.jsonl for appending. When the file cannot
// be opened a warning is logged and nil is returned.
func NewAuditLogger(dir string, logger *slog.Logger) *AuditLogger {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		logger.Warn("cannot create audit log directory", "dir", dir, "error", err)
		return nil
	}
	path := filepath.Join(dir, AuditFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		logger.Warn("cannot open audit log", "path", path, "error", err)
		return nil
	}
	return &AuditLogger{file: f}
}

// Log writes entry as a single JSON line.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(data)
}

// Close closes the log file. Later calls are no-ops.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// sanitizeToolParams keeps the values of small enumerated params, records
// only the presence of identifiers, and summarizes input lists by length.
// Unknown params are dropped. "_param_count" is always included.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	safeValueParams := map[string]bool{
		"discipline":     true,
		"format":         true,
		"seq":            true,
		"include_frames": true,
		"persist":        true,
	}
	presenceOnlyParams := map[string]bool{
		"run_id": true,
	}

	result := make(map[string]string)
	for key, val := range params {
		switch {
		case safeValueParams[key]:
			result[key] = fmt.Sprintf("%v", val)
		case presenceOnlyParams[key]:
			result[key] = "(set)"
		case key == "values":
			if v, ok := val.([]int); ok {
				result["values_len"] = fmt.Sprintf("%d", len(v))
			}
		}
	}
	result["_param_count"] = fmt.Sprintf("%d", len(params))
	return result
}

// auditTool logs a finished tool call.
func (s *Server) auditTool(tool string, start time.Time, err error, params map[string]string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	s.audit.Log(AuditEntry{
		Timestamp:  start,
		Tool:       tool,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Params:     params,
	})
}
