package plugin

import (
	"math"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/isanan39s/vstchain/internal/audio"
)

// Descriptor identifies a loaded module.
type Descriptor struct {
	Path      string
	Name      string
	Vendor    string
	VendorID  int32
	Version   int
	NumParams int
}

func (d Descriptor) String() string {
	if d.Name == "" {
		return d.Path
	}
	return d.Name
}

// ParamInfo is one row of a plugin's parameter table.
type ParamInfo struct {
	ID      int
	Name    string
	Label   string
	Display string
	Value   float64
}

type state int

const (
	stateEmpty state = iota
	stateLoaded
	stateConfigured
	stateProcessing
	stateClosed
)

func (v state) String() string {
	switch v {
	case stateEmpty:
		return "empty"
	case stateLoaded:
		return "loaded"
	case stateConfigured:
		return "configured"
	case stateProcessing:
		return "processing"
	default:
		return "closed"
	}
}

// Binding owns one native module and enforces its lifecycle:
// Load, Configure, Process any number of times, Close.
type Binding struct {
	loader Loader
	module Module
	desc   Descriptor
	info   ModuleInfo
	state  state

	sampleRate float64
	blockSize  int
	channels   int
}

// NewBinding creates an empty binding that opens modules with loader.
func NewBinding(loader Loader) *Binding {
	return &Binding{loader: loader}
}

// Load opens the module at path.
func (v *Binding) Load(path string) (Descriptor, error) {
	if v.state != stateEmpty {
		return Descriptor{}, &StateError{Name: path, Op: "load", Err: errors.Errorf("binding is %v", v.state)}
	}

	if fi, err := os.Stat(path); err != nil {
		return Descriptor{}, &LoadError{Path: path, Err: err}
	} else if fi.IsDir() && !isBundle(path) {
		return Descriptor{}, &LoadError{Path: path, Err: errors.New("is a directory")}
	}

	module, err := v.open(path)
	if err != nil {
		return Descriptor{}, &LoadError{Path: path, Err: err}
	}

	var info ModuleInfo
	if err := v.guard(func() error {
		info = module.Info()
		return nil
	}); err != nil {
		return Descriptor{}, &LoadError{Path: path, Err: v.discard(module, errors.Wrapf(err, "query info"))}
	}
	if info.Version < MinVersion {
		err := errors.Errorf("unsupported VST version %v, need %v", info.Version, MinVersion)
		return Descriptor{}, &LoadError{Path: path, Err: v.discard(module, err)}
	}

	v.module, v.info, v.state = module, info, stateLoaded
	v.desc = Descriptor{
		Path:      path,
		Name:      info.Name,
		Vendor:    info.Vendor,
		VendorID:  info.VendorID,
		Version:   info.Version,
		NumParams: info.NumParams,
	}
	return v.desc, nil
}

// open calls the loader, turning a panic in module setup into an error.
func (v *Binding) open(path string) (module Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			module, err = nil, errors.Errorf("module panic: %v", r)
		}
	}()

	module, err = v.loader(path)
	if err == nil && module == nil {
		err = errors.New("no plugin instance")
	}
	return module, err
}

// discard closes a module rejected by Load and returns the load failure,
// extended with the close failure if any.
func (v *Binding) discard(module Module, err error) error {
	if cerr := v.guard(module.Close); cerr != nil {
		return errors.Errorf("%v, close err %v", err, cerr)
	}
	return err
}

// Descriptor returns the descriptor of the loaded module.
func (v *Binding) Descriptor() Descriptor {
	return v.desc
}

// Configure negotiates the stream with the module. It must be called before
// the first Process and is rejected once processing started.
func (v *Binding) Configure(sampleRate float64, blockSize, channels int) error {
	switch v.state {
	case stateLoaded, stateConfigured:
	case stateProcessing:
		return &ConfigError{Name: v.desc.String(), Err: errors.New("processing already started")}
	default:
		return &StateError{Name: v.desc.String(), Op: "configure", Err: errors.Errorf("binding is %v", v.state)}
	}

	if sampleRate <= 0 || blockSize <= 0 || channels <= 0 {
		return &ConfigError{
			Name: v.desc.String(),
			Err:  errors.Errorf("invalid stream rate=%v block=%v channels=%v", sampleRate, blockSize, channels),
		}
	}
	if v.info.Inputs != UnknownPins && v.info.Inputs < channels {
		return &ConfigError{Name: v.desc.String(), Err: errors.Errorf("%v inputs for %v channels", v.info.Inputs, channels)}
	}
	if v.info.Outputs != UnknownPins && v.info.Outputs < channels {
		return &ConfigError{Name: v.desc.String(), Err: errors.Errorf("%v outputs for %v channels", v.info.Outputs, channels)}
	}

	if err := v.guard(func() error { return v.module.Configure(sampleRate, blockSize, channels) }); err != nil {
		return &ConfigError{Name: v.desc.String(), Err: err}
	}

	v.sampleRate, v.blockSize, v.channels = sampleRate, blockSize, channels
	v.state = stateConfigured
	return nil
}

// SetParameter sets a normalized parameter value.
func (v *Binding) SetParameter(id int, value float64) error {
	if v.state == stateEmpty || v.state == stateClosed {
		return &StateError{Name: v.desc.String(), Op: "set parameter", Err: errors.Errorf("binding is %v", v.state)}
	}
	if id < 0 || id >= v.desc.NumParams || value < 0 || value > 1 || math.IsNaN(value) {
		return &ParameterRangeError{Name: v.desc.String(), ID: id, Value: value, NumParams: v.desc.NumParams}
	}

	return v.guard(func() error {
		v.module.SetParamValue(id, float32(value))
		return nil
	})
}

// LoadBank restores a preset bank. Like Configure it is rejected once
// processing started.
func (v *Binding) LoadBank(data []byte) error {
	switch v.state {
	case stateLoaded, stateConfigured:
	default:
		return &StateError{Name: v.desc.String(), Op: "load bank", Err: errors.Errorf("binding is %v", v.state)}
	}
	if len(data) == 0 {
		return &ConfigError{Name: v.desc.String(), Err: errors.New("empty bank")}
	}

	if err := v.guard(func() error {
		v.module.SetBankData(data)
		return nil
	}); err != nil {
		return &ConfigError{Name: v.desc.String(), Err: errors.Wrapf(err, "load bank")}
	}
	return nil
}

// Process runs one block through the module. out receives the result and
// always ends with the frame and channel counts of in.
func (v *Binding) Process(in, out *audio.Block) error {
	switch v.state {
	case stateConfigured, stateProcessing:
	default:
		return &StateError{Name: v.desc.String(), Op: "process", Err: errors.Errorf("binding is %v", v.state)}
	}

	if in.Channels() != v.channels || out.Channels() != v.channels {
		return &ProcessError{
			Name: v.desc.String(),
			Err:  errors.Errorf("block has %v/%v channels, configured %v", in.Channels(), out.Channels(), v.channels),
		}
	}
	if in.Frames() > v.blockSize || out.Capacity() < in.Frames() {
		return &ProcessError{
			Name: v.desc.String(),
			Err:  errors.Errorf("block of %v frames exceeds %v", in.Frames(), min(v.blockSize, out.Capacity())),
		}
	}

	v.state = stateProcessing
	out.SetFrames(in.Frames())
	if err := v.guard(func() error { return v.module.Process(in, out) }); err != nil {
		return &ProcessError{Name: v.desc.String(), Err: err}
	}
	if !in.SameShape(out) {
		return &ProcessError{
			Name: v.desc.String(),
			Err:  errors.Errorf("returned %vx%v for %vx%v", out.Channels(), out.Frames(), in.Channels(), in.Frames()),
		}
	}
	return nil
}

// DescribeParameters lists every parameter with its current value. A module
// failing a query stops the listing; the rows read so far are returned with
// the error.
func (v *Binding) DescribeParameters() ([]ParamInfo, error) {
	if v.state == stateEmpty || v.state == stateClosed {
		return nil, &StateError{Name: v.desc.String(), Op: "describe parameters", Err: errors.Errorf("binding is %v", v.state)}
	}

	params := make([]ParamInfo, 0, v.desc.NumParams)
	for i := 0; i < v.desc.NumParams; i++ {
		p := ParamInfo{ID: i}
		if err := v.guard(func() error {
			p.Name = v.module.ParamName(i)
			p.Label = v.module.ParamLabel(i)
			p.Display = v.module.ParamDisplay(i)
			p.Value = float64(v.module.ParamValue(i))
			return nil
		}); err != nil {
			return params, errors.Wrapf(err, "describe parameter %v of %v", i, v.desc)
		}
		params = append(params, p)
	}
	return params, nil
}

// Close releases the module. It is safe to call more than once.
func (v *Binding) Close() error {
	if v.state == stateClosed || v.state == stateEmpty {
		v.state = stateClosed
		return nil
	}
	v.state = stateClosed

	module := v.module
	v.module = nil
	if err := v.guard(module.Close); err != nil {
		return errors.Wrapf(err, "close plugin %v", v.desc)
	}
	return nil
}

// guard runs a call into the module and converts a panic into an error.
func (v *Binding) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("module panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

// isBundle reports whether a directory is a macOS plugin bundle.
func isBundle(path string) bool {
	fi, err := os.Stat(filepath.Join(path, "Contents", "MacOS"))
	return err == nil && fi.IsDir()
}
