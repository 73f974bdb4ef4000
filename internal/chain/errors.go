package chain

import (
	"fmt"

	"github.com/isanan39s/vstchain/internal/plugin"
)

// InitError reports the first stage that failed to load, take its overrides
// or configure. Every stage opened before it has been closed.
type InitError struct {
	Stage int
	Path  string
	Err   error
}

func (e *InitError) Error() string {
	if e.Stage < 0 {
		return fmt.Sprintf("open chain: %v", e.Err)
	}
	return fmt.Sprintf("open chain stage #%v %v: %v", e.Stage, e.Path, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ProcessError reports the stage whose Process failed and where in the
// stream it happened.
type ProcessError struct {
	Stage      int
	Descriptor plugin.Descriptor
	Block      int
	Frame      int64
	Err        error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("chain stage #%v %v failed at block %v (frame %v): %v",
		e.Stage, e.Descriptor, e.Block, e.Frame, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}
