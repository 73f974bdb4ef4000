// Package plugin binds native audio-effect modules and exposes them through a
// uniform load, configure, process and close contract.
package plugin

import (
	"github.com/isanan39s/vstchain/internal/audio"
)

// MinVersion is the lowest plugin-declared VST version accepted. 2000 is
// VST 2.0, the first revision with replacing process calls.
const MinVersion = 2000

// UnknownPins marks an input or output count the module did not report.
const UnknownPins = -1

// ModuleInfo is what a module declares about itself once opened.
type ModuleInfo struct {
	Name      string
	Vendor    string
	VendorID  int32 // vendor-specific version number
	Version   int
	NumParams int
	Inputs    int
	Outputs   int
}

// Module is the opaque native handle behind a Binding. It is the only place
// where foreign code is called.
type Module interface {
	Info() ModuleInfo

	ParamName(index int) string
	ParamLabel(index int) string
	ParamDisplay(index int) string
	ParamValue(index int) float32
	SetParamValue(index int, value float32)

	// SetBankData restores a full preset bank, chunk header included.
	SetBankData(data []byte)

	// Configure negotiates the stream and starts processing.
	Configure(sampleRate float64, blockSize, channels int) error

	// Process reads in and fills out, which has the same shape.
	Process(in, out *audio.Block) error

	Close() error
}

// Loader opens the module stored at path.
type Loader func(path string) (Module, error)
