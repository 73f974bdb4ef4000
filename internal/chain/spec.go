// Package chain loads an ordered list of plugins and folds audio blocks
// through them.
package chain

import (
	"math"

	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/isanan39s/vstchain/internal/plugin"
)

// ParameterOverride sets parameter ID of the plugin at PluginIndex to a
// normalized Value before the first block is processed.
type ParameterOverride struct {
	PluginIndex int
	ID          int
	Value       float64
}

// Stage is one plugin of a chain. Bank optionally names a preset bank file
// restored before the overrides are applied.
type Stage struct {
	Path      string
	Bank      string
	Overrides []ParameterOverride
}

// Spec is the ordered plugin list of a job. The order is the signal flow.
type Spec struct {
	Stages []Stage
}

// validate checks everything that can be checked without loading a module.
func (v Spec) validate() (int, error) {
	if len(v.Stages) == 0 {
		return -1, errors.New("empty chain")
	}

	for i, stage := range v.Stages {
		if stage.Path == "" {
			return i, errors.Errorf("stage %v has no plugin path", i)
		}
		for _, o := range stage.Overrides {
			if o.PluginIndex != i {
				return i, errors.Errorf("override for plugin %v listed under stage %v", o.PluginIndex, i)
			}
			if o.ID < 0 || o.Value < 0 || o.Value > 1 || math.IsNaN(o.Value) {
				return i, &plugin.ParameterRangeError{
					Name: stage.Path, ID: o.ID, Value: o.Value, NumParams: math.MaxInt32,
				}
			}
		}
	}
	return 0, nil
}
