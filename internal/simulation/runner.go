package simulation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nvandessel/fipsim/internal/constants"
	"github.com/nvandessel/fipsim/internal/engine"
	"github.com/nvandessel/fipsim/internal/metrics"
	"github.com/nvandessel/fipsim/internal/models"
	"github.com/nvandessel/fipsim/internal/reversal"
	"github.com/nvandessel/fipsim/internal/store"
)

// Runner orchestrates simulation experiments against a real trace store,
// engine and metrics collector.
type Runner struct {
	t       *testing.T
	store   *store.SQLiteTraceStore
	metrics *metrics.Collector
}

// NewRunner creates a simulation runner with an isolated SQLite store
// and sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteTraceStore(tmpDir)
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, store: s, metrics: metrics.NewCollector()}
}

// Run executes the scenario under each requested discipline.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()

	disciplines := scenario.Disciplines
	if len(disciplines) == 0 {
		disciplines = []string{constants.DisciplineFIP, constants.DisciplineRC}
	}

	result := SimulationResult{
		Scenario: scenario.Name,
		Input:    append([]int{}, scenario.Values...),
		Runs:     make(map[string]RunResult, len(disciplines)),
		Store:    r.store,
		Metrics:  r.metrics,
	}
	for _, d := range disciplines {
		result.Runs[d] = r.runOne(scenario, d)
	}
	return result
}

// fingerprintSink records each snapshot together with its encoding at the
// moment of emission.
type fingerprintSink struct {
	frames       []models.Snapshot
	fingerprints []string
	err          error
}

func (s *fingerprintSink) Emit(snap models.Snapshot) {
	s.frames = append(s.frames, snap)
	data, err := json.Marshal(snap)
	if err != nil && s.err == nil {
		s.err = err
	}
	s.fingerprints = append(s.fingerprints, string(data))
}

func (r *Runner) runOne(scenario Scenario, discipline string) RunResult {
	r.t.Helper()
	ctx := context.Background()

	fip, err := reversal.ParseDiscipline(discipline)
	if err != nil {
		r.t.Fatalf("scenario %s: %v", scenario.Name, err)
	}

	sink := &fingerprintSink{}
	out, err := reversal.Simulate(scenario.Values, fip, sink,
		engine.WithObserver(r.metrics.ForDiscipline(discipline)))
	r.metrics.RecordRun(discipline, err)
	if err != nil {
		r.t.Fatalf("scenario %s (%s): %v", scenario.Name, discipline, err)
	}
	if sink.err != nil {
		r.t.Fatalf("scenario %s (%s): fingerprint: %v", scenario.Name, discipline, sink.err)
	}

	rr := RunResult{
		Discipline:   discipline,
		Outcome:      out,
		Frames:       sink.frames,
		Fingerprints: sink.fingerprints,
	}
	if scenario.SkipPersist {
		return rr
	}

	id, err := r.store.SaveRun(ctx, store.Run{
		Discipline: discipline,
		Input:      out.Input,
		Result:     out.Result.Values,
		Stats:      out.Stats,
	}, sink.frames)
	if err != nil {
		r.t.Fatalf("scenario %s (%s): SaveRun: %v", scenario.Name, discipline, err)
	}
	frames, err := r.store.Frames(ctx, id)
	if err != nil {
		r.t.Fatalf("scenario %s (%s): Frames: %v", scenario.Name, discipline, err)
	}
	rr.RunID = id
	rr.Frames = frames
	return rr
}
