package engine

import (
	"github.com/nvandessel/fipsim/internal/constants"
	"github.com/nvandessel/fipsim/internal/models"
)

// Snapshot step names.
const (
	StepCommit  = "commit"
	StepDealloc = "dealloc"
	StepPop     = "pop"
)

// Stats counts what an Engine has done since it was created. Cells placed
// with Seed are input, counted in InputCells and never in Allocations.
type Stats struct {
	InputCells    int `json:"input_cells"`
	Allocations   int `json:"allocations"`
	Reuses        int `json:"reuses"`
	Deallocations int `json:"deallocations"`
	Snapshots     int `json:"snapshots"`
	Pushes        int `json:"pushes"`
	Pops          int `json:"pops"`
	PeakCells     int `json:"peak_cells"`
}

// Engine owns the Heap and ScopeStack and turns every change into ordered
// snapshots. It drives staged binding removal and the deallocation cascade.
//
// An Engine is single-threaded. All methods panic with *InvariantError on
// a consistency violation; wrap a run in Guard to get an error instead.
type Engine struct {
	heap     *Heap
	scopes   *ScopeStack
	tracker  *Tracker
	sink     Sink
	observer Observer

	pending []models.BindingID // soft-removed, in queue order
	shown   map[models.BindingID]bool
	fresh   map[models.CellID]bool
	mutated map[models.CellID]bool
	doomed  models.CellID

	seq   int
	stats Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver attaches an event observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithRootLabel overrides the label of the root frame.
func WithRootLabel(label string) Option {
	return func(e *Engine) { e.scopes = NewScopeStack(label) }
}

// New creates an Engine emitting snapshots to sink. A nil sink discards them.
func New(sink Sink, opts ...Option) *Engine {
	e := &Engine{
		heap:    NewHeap(),
		scopes:  NewScopeStack(constants.RootFrameLabel),
		sink:    sink,
		shown:   make(map[models.BindingID]bool),
		fresh:   make(map[models.CellID]bool),
		mutated: make(map[models.CellID]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.tracker = NewTracker(e.heap, e.scopes)
	return e
}

// Heap exposes the engine's heap for read access.
func (e *Engine) Heap() *Heap { return e.heap }

// Scopes exposes the engine's scope stack for read access.
func (e *Engine) Scopes() *ScopeStack { return e.scopes }

// Tracker exposes the reference tracker.
func (e *Engine) Tracker() *Tracker { return e.tracker }

// Stats returns the counters accumulated so far.
func (e *Engine) Stats() Stats { return e.stats }

// PushScope enters a new frame.
func (e *Engine) PushScope(label string) {
	e.scopes.PushScope(label)
	e.stats.Pushes++
	e.observe(Event{Kind: EventPush, Label: label, Depth: e.scopes.Depth()})
}

// PopScope force-removes every binding of the top frame and pops it. The
// bindings are shown pending in one snapshot and then destroyed. No cascade
// runs here: cells released by the pop are checked at the next Commit, after
// the caller has had the chance to bind the returned value.
func (e *Engine) PopScope() {
	depth := e.scopes.Depth()
	if depth == 0 {
		violation("pop scope", "cannot pop the root frame")
	}
	owned := e.scopes.FrameBindings(depth)
	if len(owned) > 0 {
		for _, b := range owned {
			e.markPending(b.ID)
		}
		e.emit(StepPop)
		for _, b := range owned {
			e.destroy(b.ID)
		}
	}
	label := e.scopes.FrameLabel(depth)
	e.scopes.PopScope()
	e.stats.Pops++
	e.observe(Event{Kind: EventPop, Label: label, Depth: depth})
}

// Bind creates a binding in the top frame. A cell target must be live.
func (e *Engine) Bind(label string, target models.Slot, transient bool) models.BindingID {
	e.checkTarget("bind", target)
	id := e.scopes.Bind(label, target, transient)
	e.observe(Event{Kind: EventBind, Binding: id, Label: label, Cell: target.CellOf(), Depth: e.scopes.Depth()})
	return id
}

// Rebind points an existing binding at a new target.
func (e *Engine) Rebind(id models.BindingID, target models.Slot) {
	e.checkTarget("rebind", target)
	e.scopes.Rebind(id, target)
	b, _ := e.scopes.Binding(id)
	e.observe(Event{Kind: EventRebind, Binding: id, Label: b.Label, Cell: target.CellOf(), Depth: b.Depth})
}

// QueueRemoval soft-removes bindings. They stay alive, flagged pending, until
// the next Commit hard-removes them. Queuing a pending binding again is a
// no-op; unknown ids are fatal.
func (e *Engine) QueueRemoval(ids ...models.BindingID) {
	for _, id := range ids {
		if _, ok := e.scopes.Binding(id); !ok {
			violation("queue removal", "unknown binding %s", id)
		}
		e.markPending(id)
	}
}

// Allocate creates a fresh cell.
func (e *Engine) Allocate(value int, next models.CellID) models.CellID {
	id := e.place(value, next)
	e.stats.Allocations++
	e.observe(Event{Kind: EventAllocate, Cell: id, Value: value, LiveCells: e.heap.Len()})
	return id
}

// Seed places an input cell. It is a heap allocation like any other but is
// reported as EventSeed and counted in InputCells, so Allocations reflects
// only the work of the algorithm.
func (e *Engine) Seed(value int, next models.CellID) models.CellID {
	id := e.place(value, next)
	e.stats.InputCells++
	e.observe(Event{Kind: EventSeed, Cell: id, Value: value, LiveCells: e.heap.Len()})
	return id
}

func (e *Engine) place(value int, next models.CellID) models.CellID {
	id := e.heap.Allocate(value, next)
	e.fresh[id] = true
	if n := e.heap.Len(); n > e.stats.PeakCells {
		e.stats.PeakCells = n
	}
	return id
}

// Reuse overwrites a live cell in place. The caller guarantees the cell is
// about to lose its last other reference.
func (e *Engine) Reuse(id models.CellID, value int, next models.CellID) models.CellID {
	e.heap.Reuse(id, value, next)
	if !e.fresh[id] {
		e.mutated[id] = true
	}
	e.stats.Reuses++
	e.observe(Event{Kind: EventReuse, Cell: id, Value: value, LiveCells: e.heap.Len()})
	return id
}

// Cell reads a live cell.
func (e *Engine) Cell(id models.CellID) (int, models.CellID) {
	return e.heap.Get(id)
}

// Commit publishes the current state and settles it. In order: emit a
// snapshot, drain the deallocation cascade one cell at a time, hard-remove
// pending bindings, queue transients that have been shown once. If any of
// that changed state, Commit runs again.
func (e *Engine) Commit() {
	e.emit(StepCommit)
	changed := e.drainCascade()
	if e.hardRemove() {
		changed = true
	}
	if e.queueTransients() {
		changed = true
	}
	if changed {
		e.Commit()
	}
}

// Snapshot builds the current view without emitting it.
func (e *Engine) Snapshot() models.Snapshot {
	return e.build(e.seq, "peek")
}

func (e *Engine) drainCascade() bool {
	freed := false
	for {
		id, ok := e.tracker.NextUnreachable()
		if !ok {
			return freed
		}
		e.doomed = id
		e.emit(StepDealloc)
		e.doomed = models.NoCell

		e.free(id)
		freed = true
	}
}

// free deallocates a cell nothing references: no predecessor and no binding.
func (e *Engine) free(id models.CellID) {
	if n := e.tracker.Recompute()[id]; n != 0 {
		violation("deallocate", "%s still has %d references", id, n)
	}
	value, _ := e.heap.Get(id)
	e.heap.deallocate(id)
	delete(e.fresh, id)
	delete(e.mutated, id)
	e.stats.Deallocations++
	e.observe(Event{Kind: EventDeallocate, Cell: id, Value: value, LiveCells: e.heap.Len()})
}

func (e *Engine) hardRemove() bool {
	if len(e.pending) == 0 {
		return false
	}
	ids := e.pending
	e.pending = nil
	for _, id := range ids {
		e.destroy(id)
	}
	return true
}

func (e *Engine) queueTransients() bool {
	var due []models.BindingID
	e.scopes.Each(func(b Binding) {
		if b.Transient && e.shown[b.ID] && !e.isPending(b.ID) {
			due = append(due, b.ID)
		}
	})
	for _, id := range due {
		e.markPending(id)
	}
	return len(due) > 0
}

func (e *Engine) markPending(id models.BindingID) {
	if e.isPending(id) {
		return
	}
	e.pending = append(e.pending, id)
	b, _ := e.scopes.Binding(id)
	e.observe(Event{Kind: EventQueue, Binding: id, Label: b.Label, Depth: b.Depth})
}

func (e *Engine) isPending(id models.BindingID) bool {
	for _, p := range e.pending {
		if p == id {
			return true
		}
	}
	return false
}

// destroy hard-removes a binding, whether or not it is still queued.
func (e *Engine) destroy(id models.BindingID) {
	b, _ := e.scopes.Binding(id)
	e.scopes.remove(id)
	for i, p := range e.pending {
		if p == id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			break
		}
	}
	delete(e.shown, id)
	e.observe(Event{Kind: EventRemove, Binding: id, Label: b.Label, Depth: b.Depth})
}

func (e *Engine) checkTarget(op string, target models.Slot) {
	if c := target.CellOf(); c != models.NoCell && !e.heap.Has(c) {
		violation(op, "target %s is not a live cell", c)
	}
}

func (e *Engine) emit(step string) {
	e.seq++
	snap := e.build(e.seq, step)
	e.scopes.Each(func(b Binding) {
		if b.Transient {
			e.shown[b.ID] = true
		}
	})
	clear(e.fresh)
	clear(e.mutated)
	e.stats.Snapshots++
	if e.sink != nil {
		e.sink.Emit(snap)
	}
	e.observe(Event{Kind: EventSnapshot, Seq: snap.Seq, Label: step, LiveCells: len(snap.Cells)})
}

// build assembles a Snapshot from freshly allocated slices so that later
// engine mutation cannot reach it.
func (e *Engine) build(seq int, step string) models.Snapshot {
	counts := e.tracker.Recompute()
	snap := models.Snapshot{Seq: seq, Step: step}

	for _, id := range e.heap.IDs() {
		value, next := e.heap.Get(id)
		tag := models.CellNormal
		switch {
		case id == e.doomed:
			tag = models.CellPendingDealloc
		case e.fresh[id]:
			tag = models.CellNew
		case e.mutated[id]:
			tag = models.CellMutated
		}
		snap.Cells = append(snap.Cells, models.CellView{
			ID:       id,
			Value:    value,
			Next:     next,
			RefCount: counts[id],
			Tag:      tag,
		})
		if next != models.NoCell {
			snap.Edges = append(snap.Edges, models.Edge{Kind: models.EdgeNext, From: id.String(), To: next})
		}
	}

	top := e.scopes.Depth()
	for depth := 0; depth <= top; depth++ {
		fv := models.FrameView{Label: e.scopes.FrameLabel(depth), Depth: depth}
		for _, b := range e.scopes.FrameBindings(depth) {
			tag := models.BindingNormal
			if e.isPending(b.ID) {
				tag = models.BindingPendingRemoval
			}
			fv.Bindings = append(fv.Bindings, models.BindingView{
				ID:        b.ID,
				Label:     b.Label,
				Target:    b.Target,
				Transient: b.Transient,
				Tag:       tag,
			})
			if depth == top && b.Target.CellOf() != models.NoCell {
				snap.Edges = append(snap.Edges, models.Edge{Kind: models.EdgeBinding, From: b.ID.String(), To: b.Target.Cell})
			}
		}
		snap.Frames = append(snap.Frames, fv)
	}
	return snap
}

func (e *Engine) observe(ev Event) {
	if e.observer != nil {
		e.observer.Observe(ev)
	}
}
