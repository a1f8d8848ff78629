package simulation

import (
	"github.com/nvandessel/fipsim/internal/metrics"
	"github.com/nvandessel/fipsim/internal/models"
	"github.com/nvandessel/fipsim/internal/reversal"
	"github.com/nvandessel/fipsim/internal/store"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name   string
	Values []int

	// Disciplines lists the disciplines to run ("fip", "rc").
	// Empty means both.
	Disciplines []string

	// SkipPersist keeps frames in memory only, bypassing the trace store.
	SkipPersist bool
}

// RunResult captures one discipline's run of a scenario.
type RunResult struct {
	Discipline string
	Outcome    reversal.Outcome
	RunID      string // empty when the scenario skipped persistence

	// Frames are the snapshots as read back from the store (or as emitted
	// when persistence is skipped).
	Frames []models.Snapshot

	// Fingerprints holds the JSON encoding of each snapshot taken at the
	// moment it was emitted.
	Fingerprints []string
}

// SimulationResult captures all runs and the shared store and metrics.
type SimulationResult struct {
	Scenario string
	Input    []int
	Runs     map[string]RunResult // keyed by discipline
	Store    *store.SQLiteTraceStore
	Metrics  *metrics.Collector
}

// Last returns the final frame of a run.
func (r RunResult) Last() models.Snapshot {
	if len(r.Frames) == 0 {
		return models.Snapshot{}
	}
	return r.Frames[len(r.Frames)-1]
}
