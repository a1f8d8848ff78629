// Package metrics exposes engine activity as Prometheus metrics.
//
// A Collector is an engine.Observer. Each Collector owns its registry so that
// runs, tests and the MCP server never share counters by accident.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nvandessel/fipsim/internal/engine"
)

const namespace = "fipsim"

// Collector counts engine events per discipline.
type Collector struct {
	registry *prometheus.Registry

	heapOps   *prometheus.CounterVec
	bindings  *prometheus.CounterVec
	snapshots *prometheus.CounterVec
	liveCells *prometheus.GaugeVec
	peakCells *prometheus.GaugeVec
	runs      *prometheus.CounterVec

	mu    sync.Mutex
	peaks map[string]int
}

// NewCollector creates a collector with a private registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		peaks:    make(map[string]int),
		heapOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heap_operations_total",
			Help:      "Heap operations by kind (allocate, reuse, deallocate), excluding input cells.",
		}, []string{"discipline", "op"}),
		bindings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "binding_operations_total",
			Help:      "Scope binding operations by kind (bind, rebind, queue, remove).",
		}, []string{"discipline", "op"}),
		snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots emitted.",
		}, []string{"discipline"}),
		liveCells: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_cells",
			Help:      "Live cells after the most recent heap event.",
		}, []string{"discipline"}),
		peakCells: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peak_live_cells",
			Help:      "Highest live cell count seen.",
		}, []string{"discipline"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed simulation runs by outcome.",
		}, []string{"discipline", "outcome"}),
	}
}

// Registry returns the collector's registry for gathering or serving.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ForDiscipline returns an observer that labels events with discipline.
func (c *Collector) ForDiscipline(discipline string) engine.Observer {
	return labelled{c: c, discipline: discipline}
}

// RecordRun counts a finished run; err non-nil counts as "aborted".
func (c *Collector) RecordRun(discipline string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "aborted"
	}
	c.runs.WithLabelValues(discipline, outcome).Inc()
}

// HeapOpCounter returns the counter for one heap operation kind.
func (c *Collector) HeapOpCounter(discipline, op string) prometheus.Counter {
	return c.heapOps.WithLabelValues(discipline, op)
}

// SnapshotCounter returns the snapshot counter of a discipline.
func (c *Collector) SnapshotCounter(discipline string) prometheus.Counter {
	return c.snapshots.WithLabelValues(discipline)
}

// RunCounter returns the run counter for a discipline and outcome.
func (c *Collector) RunCounter(discipline, outcome string) prometheus.Counter {
	return c.runs.WithLabelValues(discipline, outcome)
}

type labelled struct {
	c          *Collector
	discipline string
}

// Observe implements engine.Observer.
func (l labelled) Observe(e engine.Event) {
	c := l.c
	switch e.Kind {
	case engine.EventSeed, engine.EventAllocate, engine.EventReuse, engine.EventDeallocate:
		// Input cells move the gauges but are not heap work.
		if e.Kind != engine.EventSeed {
			c.heapOps.WithLabelValues(l.discipline, string(e.Kind)).Inc()
		}
		c.liveCells.WithLabelValues(l.discipline).Set(float64(e.LiveCells))
		c.mu.Lock()
		if e.LiveCells > c.peaks[l.discipline] {
			c.peaks[l.discipline] = e.LiveCells
			c.peakCells.WithLabelValues(l.discipline).Set(float64(e.LiveCells))
		}
		c.mu.Unlock()
	case engine.EventBind, engine.EventRebind, engine.EventQueue, engine.EventRemove:
		c.bindings.WithLabelValues(l.discipline, string(e.Kind)).Inc()
	case engine.EventSnapshot:
		c.snapshots.WithLabelValues(l.discipline).Inc()
	}
}

// WriteSummary writes every counter and gauge sample as "name{labels} value", sorted,
// one per line.
func (c *Collector) WriteSummary(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			default:
				continue
			}
			pairs := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				pairs = append(pairs, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(pairs, ","), v))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
