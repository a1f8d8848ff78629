package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nvandessel/fipsim/internal/models"
)

// Record kinds in a JSONL trace export.
const (
	RecordRun   = "run"
	RecordFrame = "frame"
)

// Record is one line of a JSONL trace export: a run header followed by
// one frame record per snapshot.
type Record struct {
	Type  string           `json:"type"`
	Run   *Run             `json:"run,omitempty"`
	RunID string           `json:"run_id,omitempty"`
	Frame *models.Snapshot `json:"frame,omitempty"`
}

// maxLineSize bounds a single exported frame.
const maxLineSize = 64 * 1024 * 1024

// ExportJSONL writes the given runs (all runs when ids is empty) to w.
func ExportJSONL(ctx context.Context, s TraceStore, w io.Writer, ids ...string) (int, error) {
	if len(ids) == 0 {
		runs, err := s.ListRuns(ctx, 0)
		if err != nil {
			return 0, fmt.Errorf("failed to list runs: %w", err)
		}
		// Oldest first so an import keeps the original order.
		for i := len(runs) - 1; i >= 0; i-- {
			ids = append(ids, runs[i].ID)
		}
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if err != nil {
			return 0, err
		}
		frames, err := s.Frames(ctx, run.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to read frames of %s: %w", run.ID, err)
		}
		if err := enc.Encode(Record{Type: RecordRun, Run: run}); err != nil {
			return 0, fmt.Errorf("failed to write run %s: %w", run.ID, err)
		}
		for i := range frames {
			if err := enc.Encode(Record{Type: RecordFrame, RunID: run.ID, Frame: &frames[i]}); err != nil {
				return 0, fmt.Errorf("failed to write frame %d of %s: %w", frames[i].Seq, run.ID, err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush export: %w", err)
	}
	return len(ids), nil
}

// ImportJSONL reads an export produced by ExportJSONL into s and returns
// the number of runs imported. Frame records must follow their run record.
func ImportJSONL(ctx context.Context, s TraceStore, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	var (
		current *Run
		frames  []models.Snapshot
		count   int
	)
	flush := func() error {
		if current == nil {
			return nil
		}
		if _, err := s.SaveRun(ctx, *current, frames); err != nil {
			return fmt.Errorf("failed to save run %s: %w", current.ID, err)
		}
		count++
		current, frames = nil, nil
		return nil
	}

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return count, fmt.Errorf("line %d: %w", lineNum, err)
		}

		switch rec.Type {
		case RecordRun:
			if err := flush(); err != nil {
				return count, err
			}
			if rec.Run == nil {
				return count, fmt.Errorf("line %d: run record without run", lineNum)
			}
			current = rec.Run
		case RecordFrame:
			if current == nil || rec.RunID != current.ID || rec.Frame == nil {
				return count, fmt.Errorf("line %d: frame record does not follow its run", lineNum)
			}
			frames = append(frames, *rec.Frame)
		default:
			return count, fmt.Errorf("line %d: unknown record type %q", lineNum, rec.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read export: %w", err)
	}
	if err := flush(); err != nil {
		return count, err
	}
	return count, nil
}
