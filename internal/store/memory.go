package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nvandessel/fipsim/internal/models"
)

type memoryRun struct {
	run    Run
	frames []models.Snapshot
}

// InMemoryTraceStore implements TraceStore for testing and the MCP server.
type InMemoryTraceStore struct {
	mu   sync.RWMutex
	runs map[string]memoryRun
}

// NewInMemoryTraceStore creates a new in-memory store.
func NewInMemoryTraceStore() *InMemoryTraceStore {
	return &InMemoryTraceStore{runs: make(map[string]memoryRun)}
}

// SaveRun implements TraceStore.
func (s *InMemoryTraceStore) SaveRun(ctx context.Context, run Run, frames []models.Snapshot) (string, error) {
	run = prepareRun(run, frames, uuid.NewString)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return "", fmt.Errorf("run already exists: %s", run.ID)
	}

	stored := make([]models.Snapshot, len(frames))
	for i, f := range frames {
		stored[i] = f.Clone()
	}
	run.Input = append([]int{}, run.Input...)
	run.Result = append([]int{}, run.Result...)
	s.runs[run.ID] = memoryRun{run: run, frames: stored}
	return run.ID, nil
}

// GetRun implements TraceStore.
func (s *InMemoryTraceStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mr, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	r := mr.run
	return &r, nil
}

// ListRuns implements TraceStore.
func (s *InMemoryTraceStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]Run, 0, len(s.runs))
	for _, mr := range s.runs {
		runs = append(runs, mr.run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Frames implements TraceStore.
func (s *InMemoryTraceStore) Frames(ctx context.Context, id string) ([]models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mr, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	out := make([]models.Snapshot, len(mr.frames))
	for i, f := range mr.frames {
		out[i] = f.Clone()
	}
	return out, nil
}

// Frame implements TraceStore.
func (s *InMemoryTraceStore) Frame(ctx context.Context, id string, seq int) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mr, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	for _, f := range mr.frames {
		if f.Seq == seq {
			c := f.Clone()
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no frame %d", ErrNotFound, mr.run.ID, seq)
}

// DeleteRun implements TraceStore.
func (s *InMemoryTraceStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mr, err := s.lookup(id)
	if err != nil {
		return err
	}
	delete(s.runs, mr.run.ID)
	return nil
}

// Close implements TraceStore.
func (s *InMemoryTraceStore) Close() error {
	return nil
}

// lookup resolves a full id or unique prefix. Caller holds the lock.
func (s *InMemoryTraceStore) lookup(id string) (memoryRun, error) {
	if id == "" {
		return memoryRun{}, ErrNotFound
	}
	if mr, ok := s.runs[id]; ok {
		return mr, nil
	}
	var (
		found memoryRun
		n     int
	)
	for key, mr := range s.runs {
		if strings.HasPrefix(key, id) {
			found = mr
			n++
		}
	}
	switch n {
	case 0:
		return memoryRun{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return found, nil
	default:
		return memoryRun{}, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
}
