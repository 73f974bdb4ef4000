package chain

import (
	"github.com/isanan39s/vstchain/internal/audio"
	"github.com/isanan39s/vstchain/internal/plugin"
)

// Executor folds blocks through the stages of an open chain, left to right.
// It borrows the bindings from its Host and must not be used after
// CloseChain.
type Executor struct {
	stages  []*plugin.Binding
	scratch [2]*audio.Block

	blocks int
	frames int64
}

// Run passes block through every stage in order. The result is one of the
// executor's own buffers and stays valid until the next Run. block is not
// referenced after Run returns.
func (v *Executor) Run(block *audio.Block) (*audio.Block, error) {
	cur := block
	for i, stage := range v.stages {
		next := v.scratch[i%2]
		if err := stage.Process(cur, next); err != nil {
			return nil, &ProcessError{
				Stage: i, Descriptor: stage.Descriptor(), Block: v.blocks, Frame: v.frames, Err: err,
			}
		}
		cur = next
	}

	v.blocks++
	v.frames += int64(block.Frames())
	return cur, nil
}

// Len returns the number of stages.
func (v *Executor) Len() int {
	return len(v.stages)
}

// Descriptors returns the stage descriptors in signal order.
func (v *Executor) Descriptors() []plugin.Descriptor {
	descs := make([]plugin.Descriptor, 0, len(v.stages))
	for _, stage := range v.stages {
		descs = append(descs, stage.Descriptor())
	}
	return descs
}
