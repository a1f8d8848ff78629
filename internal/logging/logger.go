// Package logging provides leveled logging and engine event tracing for fipsim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An EventLogger for structured JSONL engine traces (.fipsim/events.jsonl)
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/fipsim/internal/engine"
)

// LevelTrace is a custom slog level below Debug for full content logging.
// At this level every engine event, including each snapshot, is logged.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SlogObserver forwards engine events to a slog.Logger. Heap events are
// logged at debug; scope and snapshot events only at trace.
type SlogObserver struct {
	Logger *slog.Logger
}

// Observe implements engine.Observer.
func (o SlogObserver) Observe(e engine.Event) {
	if o.Logger == nil {
		return
	}
	level := LevelTrace
	switch e.Kind {
	case engine.EventSeed, engine.EventAllocate, engine.EventReuse, engine.EventDeallocate:
		level = slog.LevelDebug
	}
	ctx := context.Background()
	if !o.Logger.Enabled(ctx, level) {
		return
	}
	o.Logger.Log(ctx, level, "engine event", eventAttrs(e)...)
}

func eventAttrs(e engine.Event) []any {
	attrs := []any{slog.String("kind", string(e.Kind))}
	if e.Cell != 0 {
		attrs = append(attrs, slog.String("cell", e.Cell.String()))
	}
	if e.Binding != 0 {
		attrs = append(attrs, slog.String("binding", e.Binding.String()))
	}
	if e.Label != "" {
		attrs = append(attrs, slog.String("label", e.Label))
	}
	switch e.Kind {
	case engine.EventSeed, engine.EventAllocate, engine.EventReuse, engine.EventDeallocate:
		attrs = append(attrs, slog.Int("value", e.Value), slog.Int("live_cells", e.LiveCells))
	case engine.EventSnapshot:
		attrs = append(attrs, slog.Int("seq", e.Seq), slog.Int("live_cells", e.LiveCells))
	default:
		attrs = append(attrs, slog.Int("depth", e.Depth))
	}
	return attrs
}

// EventLogger writes engine events to a JSONL file.
// It is safe for concurrent use. A nil EventLogger is safe to use;
// all methods are no-ops on nil receiver.
type EventLogger struct {
	mu    sync.Mutex
	file  *os.File
	runID string
}

// NewEventLogger creates an event logger writing to dir/events.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewEventLogger(dir string, level string, runID string) *EventLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &EventLogger{file: f, runID: runID}
}

// Observe implements engine.Observer. Safe to call on nil receiver.
func (el *EventLogger) Observe(e engine.Event) {
	if el == nil {
		return
	}
	entry := map[string]any{
		"kind":       string(e.Kind),
		"live_cells": e.LiveCells,
	}
	if e.Cell != 0 {
		entry["cell"] = uint64(e.Cell)
		entry["value"] = e.Value
	}
	if e.Binding != 0 {
		entry["binding"] = uint64(e.Binding)
	}
	if e.Label != "" {
		entry["label"] = e.Label
	}
	if e.Kind == engine.EventSnapshot {
		entry["seq"] = e.Seq
	} else {
		entry["depth"] = e.Depth
	}
	el.Log(entry)
}

// Log writes an event as a single JSONL line.
// "time" and "run" fields are added automatically. The caller's map is not
// mutated. Safe to call on nil receiver.
func (el *EventLogger) Log(event map[string]any) {
	if el == nil || el.file == nil {
		return
	}

	// Copy to avoid mutating caller's map
	entry := make(map[string]any, len(event)+2)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	if el.runID != "" {
		entry["run"] = el.runID
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = el.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (el *EventLogger) Close() {
	if el == nil || el.file == nil {
		return
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	el.file.Close()
	el.file = nil
}
