package engine

import "github.com/nvandessel/fipsim/internal/models"

// Sink consumes snapshots in emission order. The Visualizer sits behind it.
type Sink interface {
	Emit(models.Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(models.Snapshot)

// Emit calls f.
func (f SinkFunc) Emit(s models.Snapshot) { f(s) }

// Recorder is a Sink that keeps every snapshot in memory.
type Recorder struct {
	Snapshots []models.Snapshot
}

// Emit appends s.
func (r *Recorder) Emit(s models.Snapshot) {
	r.Snapshots = append(r.Snapshots, s)
}

// Last returns the most recent snapshot.
func (r *Recorder) Last() (models.Snapshot, bool) {
	if len(r.Snapshots) == 0 {
		return models.Snapshot{}, false
	}
	return r.Snapshots[len(r.Snapshots)-1], true
}

// EventKind names a discrete engine change.
type EventKind string

const (
	EventSeed       EventKind = "seed"
	EventAllocate   EventKind = "allocate"
	EventReuse      EventKind = "reuse"
	EventDeallocate EventKind = "deallocate"
	EventPush       EventKind = "push"
	EventPop        EventKind = "pop"
	EventBind       EventKind = "bind"
	EventRebind     EventKind = "rebind"
	EventQueue      EventKind = "queue"
	EventRemove     EventKind = "remove"
	EventSnapshot   EventKind = "snapshot"
)

// Event describes one engine change. Fields not relevant to Kind are zero.
type Event struct {
	Kind      EventKind
	Cell      models.CellID
	Binding   models.BindingID
	Label     string
	Value     int
	Depth     int
	Seq       int
	LiveCells int
}

// Observer receives engine events as they happen. Observers must not call
// back into the engine.
type Observer interface {
	Observe(Event)
}

// Observers fans an event out to several observers in order.
type Observers []Observer

// Observe forwards e to every non-nil observer.
func (obs Observers) Observe(e Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(e)
		}
	}
}
