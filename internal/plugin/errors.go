package plugin

import (
	"fmt"
)

// LoadError reports a module that could not be opened or does not speak the
// expected ABI.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin %v: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ConfigError reports a rejected sample rate, block size or channel layout.
type ConfigError struct {
	Name string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configure plugin %v: %v", e.Name, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ParameterRangeError reports an override outside the declared parameter ids
// or outside [0,1].
type ParameterRangeError struct {
	Name      string
	ID        int
	Value     float64
	NumParams int
}

func (e *ParameterRangeError) Error() string {
	if e.ID < 0 || e.ID >= e.NumParams {
		return fmt.Sprintf("plugin %v: parameter id %v out of range [0,%v)", e.Name, e.ID, e.NumParams)
	}
	return fmt.Sprintf("plugin %v: parameter %v value %v out of range [0,1]", e.Name, e.ID, e.Value)
}

// StateError reports a call that is invalid in the binding's current state.
type StateError struct {
	Name string
	Op   string
	Err  error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("plugin %v: %v: %v", e.Name, e.Op, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// ProcessError reports a failed block-processing call, including a panic in
// the module or a block of the wrong shape.
type ProcessError struct {
	Name string
	Err  error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process plugin %v: %v", e.Name, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}
