// Package store defines the TraceStore interface for persisting simulation
// runs together with the snapshot frames they emitted.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/fipsim/internal/engine"
	"github.com/nvandessel/fipsim/internal/models"
)

var (
	// ErrNotFound is returned when no run matches an id or id prefix.
	ErrNotFound = errors.New("run not found")

	// ErrAmbiguous is returned when an id prefix matches more than one run.
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

// Run is the summary row of one stored simulation.
type Run struct {
	ID         string       `json:"id"`
	CreatedAt  time.Time    `json:"created_at"`
	Discipline string       `json:"discipline"` // "fip" or "rc"
	Input      []int        `json:"input"`
	Result     []int        `json:"result"`
	Stats      engine.Stats `json:"stats"`
	FrameCount int          `json:"frame_count"`
}

// TraceStore persists runs and their frames.
type TraceStore interface {
	// SaveRun stores run and its frames in one step. An empty run.ID is
	// replaced by a fresh UUID and a zero CreatedAt by the current time.
	// The stored id is returned.
	SaveRun(ctx context.Context, run Run, frames []models.Snapshot) (string, error)

	// GetRun looks a run up by full id or unique id prefix.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs newest first. limit <= 0 means no limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Frames returns every frame of a run in emission order.
	Frames(ctx context.Context, id string) ([]models.Snapshot, error)

	// Frame returns the frame with the given sequence number.
	Frame(ctx context.Context, id string, seq int) (*models.Snapshot, error)

	DeleteRun(ctx context.Context, id string) error

	Close() error
}

// prepareRun fills in the id and timestamp of a run about to be saved.
func prepareRun(run Run, frames []models.Snapshot, newID func() string) Run {
	if run.ID == "" {
		run.ID = newID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.FrameCount = len(frames)
	return run
}
