package reversal

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nvandessel/fipsim/internal/constants"
	"github.com/nvandessel/fipsim/internal/engine"
)

// Outcome is what a complete simulation produces besides its snapshots.
type Outcome struct {
	FIP    bool         `json:"fip"`
	Input  []int        `json:"input"`
	Result Result       `json:"result"`
	Stats  engine.Stats `json:"stats"`
}

// Simulate runs one reversal on a fresh Engine, sending snapshots to sink.
// An engine invariant violation aborts the run and is returned as an error.
func Simulate(values []int, fip bool, sink engine.Sink, opts ...engine.Option) (Outcome, error) {
	return SimulateContext(context.Background(), values, fip, sink, opts...)
}

// SimulateContext is Simulate with cancellation. ctx is checked before the
// run starts and at every commit; a cancelled run returns ctx's error and no
// Outcome.
func SimulateContext(ctx context.Context, values []int, fip bool, sink engine.Sink, opts ...engine.Option) (Outcome, error) {
	if len(values) > constants.MaxListLength {
		return Outcome{}, fmt.Errorf("input has %d values, limit is %d", len(values), constants.MaxListLength)
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("simulation canceled: %w", err)
	}
	e := engine.New(sink, opts...)
	var res Result
	var canceled error
	err := engine.Guard(func() {
		defer func() {
			if r := recover(); r != nil {
				stop, ok := r.(cancelStop)
				if !ok {
					panic(r)
				}
				canceled = stop.err
			}
		}()
		res = Run(cancelableMachine{Machine: e, ctx: ctx}, values, fip)
	})
	if canceled != nil {
		return Outcome{}, fmt.Errorf("simulation canceled: %w", canceled)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("simulation aborted: %w", err)
	}
	return Outcome{
		FIP:    fip,
		Input:  append([]int{}, values...),
		Result: res,
		Stats:  e.Stats(),
	}, nil
}

type cancelStop struct{ err error }

// cancelableMachine unwinds the run at the next commit once ctx is done.
type cancelableMachine struct {
	Machine
	ctx context.Context
}

func (m cancelableMachine) Commit() {
	if err := m.ctx.Err(); err != nil {
		panic(cancelStop{err})
	}
	m.Machine.Commit()
}

// ParseDiscipline maps "fip" or "rc" (case-insensitive) to the fip flag.
func ParseDiscipline(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case constants.DisciplineFIP:
		return true, nil
	case constants.DisciplineRC:
		return false, nil
	default:
		return false, fmt.Errorf("unknown discipline %q (use %q or %q)", s, constants.DisciplineFIP, constants.DisciplineRC)
	}
}

// DisciplineName is the inverse of ParseDiscipline.
func DisciplineName(fip bool) string {
	if fip {
		return constants.DisciplineFIP
	}
	return constants.DisciplineRC
}

// ParseValues parses a comma or space separated list of integers.
func ParseValues(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	values := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", f, err)
		}
		values = append(values, v)
	}
	return values, nil
}
