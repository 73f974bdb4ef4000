package chain

import (
	"context"
	"os"

	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/ossrs/go-oryx-lib/logger"

	"github.com/isanan39s/vstchain/internal/audio"
	"github.com/isanan39s/vstchain/internal/plugin"
)

// StageInfo describes one loaded stage for parameter dumps.
type StageInfo struct {
	Index      int
	Descriptor plugin.Descriptor
	Params     []plugin.ParamInfo
	// Err is set when the module failed a parameter query; Params then
	// holds the rows read before it.
	Err error
}

// Host owns the bindings of one chain and is the only one closing them.
type Host struct {
	loader   plugin.Loader
	bindings []*plugin.Binding
	executor *Executor
}

// NewHost creates a host loading modules with loader.
func NewHost(loader plugin.Loader) *Host {
	return &Host{loader: loader}
}

// OpenChain loads, overrides and configures every stage of spec in order.
// Either every stage is ready and an executor is returned, or every stage
// opened so far is closed again and an *InitError is returned.
func (v *Host) OpenChain(ctx context.Context, spec Spec, sampleRate float64, blockSize, channels int) (*Executor, error) {
	if v.executor != nil {
		return nil, &InitError{Stage: -1, Err: errors.New("chain already open")}
	}
	if stage, err := spec.validate(); err != nil {
		return nil, &InitError{Stage: stage, Path: stagePath(spec, stage), Err: err}
	}

	for i, stage := range spec.Stages {
		if err := v.openStage(ctx, i, stage, sampleRate, blockSize, channels); err != nil {
			if r0 := v.closeAll(); r0 != nil {
				logger.Wf(ctx, "rollback chain err %+v", r0)
			}
			return nil, &InitError{Stage: i, Path: stage.Path, Err: err}
		}
	}

	v.executor = &Executor{
		stages:  append([]*plugin.Binding(nil), v.bindings...),
		scratch: [2]*audio.Block{audio.NewBlock(channels, blockSize), audio.NewBlock(channels, blockSize)},
	}
	logger.Tf(ctx, "chain ready, stages=%v, rate=%v, block=%v, channels=%v",
		len(v.bindings), sampleRate, blockSize, channels)
	return v.executor, nil
}

func (v *Host) openStage(ctx context.Context, i int, stage Stage, sampleRate float64, blockSize, channels int) error {
	b := plugin.NewBinding(v.loader)
	desc, err := b.Load(stage.Path)
	if err != nil {
		return err
	}
	v.bindings = append(v.bindings, b)
	logger.Tf(ctx, "load plugin #%v %v ok, vendor=%v, version=%v, params=%v",
		i, desc.Name, desc.Vendor, desc.Version, desc.NumParams)

	if stage.Bank != "" {
		data, err := os.ReadFile(stage.Bank)
		if err != nil {
			return errors.Wrapf(err, "read bank")
		}
		if err := b.LoadBank(data); err != nil {
			return err
		}
		logger.Tf(ctx, "load bank %v for plugin #%v, size=%vB", stage.Bank, i, len(data))
	}

	for _, o := range stage.Overrides {
		if err := b.SetParameter(o.ID, o.Value); err != nil {
			return err
		}
	}

	return b.Configure(sampleRate, blockSize, channels)
}

// Describe returns the descriptor and parameter table of every stage.
func (v *Host) Describe() []StageInfo {
	infos := make([]StageInfo, 0, len(v.bindings))
	for i, b := range v.bindings {
		params, err := b.DescribeParameters()
		infos = append(infos, StageInfo{Index: i, Descriptor: b.Descriptor(), Params: params, Err: err})
	}
	return infos
}

// CloseChain closes every stage in reverse order. It is safe to call more
// than once.
func (v *Host) CloseChain() error {
	v.executor = nil
	return v.closeAll()
}

func (v *Host) closeAll() error {
	var first error
	for i := len(v.bindings) - 1; i >= 0; i-- {
		if err := v.bindings[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	v.bindings = nil
	return first
}

func stagePath(spec Spec, stage int) string {
	if stage < 0 || stage >= len(spec.Stages) {
		return ""
	}
	return spec.Stages[stage].Path
}
