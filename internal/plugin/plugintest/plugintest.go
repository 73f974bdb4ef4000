// Package plugintest provides in-memory plugin modules for tests of the
// binding, chain and worker layers.
package plugintest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/isanan39s/vstchain/internal/audio"
	"github.com/isanan39s/vstchain/internal/plugin"
)

// ProcessFunc transforms one block. in and out have the same shape.
type ProcessFunc func(in, out *audio.Block) error

// Identity copies the input unchanged.
func Identity(in, out *audio.Block) error {
	out.CopyFrom(in)
	return nil
}

// Add returns a ProcessFunc adding delta to every sample, used as a marker
// to observe stage order.
func Add(delta float64) ProcessFunc {
	return func(in, out *audio.Block) error {
		out.CopyFrom(in)
		for c := 0; c < out.Channels(); c++ {
			for i, v := range out.Channel(c) {
				out.Channel(c)[i] = v + delta
			}
		}
		return nil
	}
}

// Scale returns a ProcessFunc multiplying every sample by factor.
func Scale(factor float64) ProcessFunc {
	return func(in, out *audio.Block) error {
		out.CopyFrom(in)
		for c := 0; c < out.Channels(); c++ {
			for i, v := range out.Channel(c) {
				out.Channel(c)[i] = v * factor
			}
		}
		return nil
	}
}

// Module is a scripted plugin.Module that records how it was called.
type Module struct {
	mu sync.Mutex

	ModuleInfo   plugin.ModuleInfo
	Func         ProcessFunc
	ConfigureErr error
	// FailAt makes the n-th Process call (1-based) fail; 0 disables it.
	FailAt int
	// PanicAt makes the n-th Process call (1-based) panic; 0 disables it.
	PanicAt int
	// PanicIn names a query that panics on every call: "Info", "ParamName",
	// "ParamLabel", "ParamDisplay", "ParamValue" or "Close".
	PanicIn  string
	CloseErr error

	Params     map[int]float32
	Bank       []byte
	Configured int
	Processed  int
	Frames     []int
	Closed     int
}

// NewModule returns an identity effect with numParams parameters.
func NewModule(name string, numParams int) *Module {
	return &Module{
		ModuleInfo: plugin.ModuleInfo{
			Name:      name,
			Vendor:    "plugintest",
			Version:   2400,
			NumParams: numParams,
			Inputs:    plugin.UnknownPins,
			Outputs:   plugin.UnknownPins,
		},
		Func:   Identity,
		Params: make(map[int]float32),
	}
}

func (m *Module) fault(query string) {
	if m.PanicIn == query {
		panic("plugintest: scripted panic in " + query)
	}
}

func (m *Module) Info() plugin.ModuleInfo {
	m.fault("Info")
	return m.ModuleInfo
}

func (m *Module) ParamName(index int) string {
	m.fault("ParamName")
	return "param" + string(rune('A'+index%26))
}

func (m *Module) ParamLabel(index int) string {
	m.fault("ParamLabel")
	return "%"
}

func (m *Module) ParamDisplay(index int) string {
	m.fault("ParamDisplay")
	return "display"
}

func (m *Module) ParamValue(index int) float32 {
	m.fault("ParamValue")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Params[index]
}

func (m *Module) SetParamValue(index int, value float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Params[index] = value
}

func (m *Module) SetBankData(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Bank = append([]byte(nil), data...)
}

func (m *Module) Configure(sampleRate float64, blockSize, channels int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConfigureErr != nil {
		return m.ConfigureErr
	}
	m.Configured++
	return nil
}

func (m *Module) Process(in, out *audio.Block) error {
	m.mu.Lock()
	m.Processed++
	n := m.Processed
	m.Frames = append(m.Frames, in.Frames())
	m.mu.Unlock()

	if m.PanicAt > 0 && n == m.PanicAt {
		panic("plugintest: scripted panic")
	}
	if m.FailAt > 0 && n == m.FailAt {
		return errors.Errorf("plugintest: scripted failure at block %v", n)
	}
	return m.Func(in, out)
}

func (m *Module) Close() error {
	m.mu.Lock()
	m.Closed++
	m.mu.Unlock()

	m.fault("Close")
	return m.CloseErr
}

// ProcessCount returns the number of Process calls so far.
func (m *Module) ProcessCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Processed
}

// Registry maps module files to factories and serves as a plugin.Loader.
type Registry struct {
	mu        sync.Mutex
	factories map[string]func() (*Module, error)
	opened    map[string][]*Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]func() (*Module, error)),
		opened:    make(map[string][]*Module),
	}
}

// Add creates an empty module file named name in dir and registers factory
// for it. It returns the file path.
func (r *Registry) Add(t testing.TB, dir, name string, factory func() *Module) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("module"), 0o644); err != nil {
		t.Fatalf("write module %v: %v", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[path] = func() (*Module, error) { return factory(), nil }
	return path
}

// AddBroken registers a module file whose load always fails with err.
func (r *Registry) AddBroken(t testing.TB, dir, name string, err error) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write module %v: %v", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[path] = func() (*Module, error) { return nil, err }
	return path
}

// Load implements plugin.Loader.
func (r *Registry) Load(path string) (plugin.Module, error) {
	r.mu.Lock()
	factory, ok := r.factories[path]
	r.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("not a plugin module: %v", path)
	}

	m, err := factory()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened[path] = append(r.opened[path], m)
	return m, nil
}

// Opened returns every instance loaded from path, oldest first.
func (r *Registry) Opened(path string) []*Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Module(nil), r.opened[path]...)
}
