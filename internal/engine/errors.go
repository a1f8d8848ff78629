package engine

import "fmt"

// InvariantError reports an internal-consistency violation: an unknown id,
// popping a frame that still owns bindings, freeing a referenced cell.
// These are defects in the driving algorithm. The engine panics with an
// *InvariantError as soon as one is detected; Guard turns it into an error.
type InvariantError struct {
	Op  string
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("engine invariant violated in %s: %s", e.Op, e.Msg)
}

func violation(op, format string, args ...any) {
	panic(&InvariantError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// Guard runs fn and converts an *InvariantError panic into a returned error.
// Any other panic is re-raised.
func Guard(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if ie, ok := r.(*InvariantError); ok {
			err = ie
			return
		}
		panic(r)
	}()
	fn()
	return nil
}
