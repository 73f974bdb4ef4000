package plugin

import (
	"bytes"
	"strings"
	"unsafe"

	"github.com/ossrs/go-oryx-lib/errors"
	"golang.org/x/text/encoding/charmap"
	"pipelined.dev/audio/vst2"
	"pipelined.dev/signal"

	"github.com/isanan39s/vstchain/internal/audio"
)

// Dispatcher opcodes of the VST 2.4 ABI.
const (
	opGetInputProps   vst2.PluginOpcode = 33
	opGetOutputProps  vst2.PluginOpcode = 34
	opGetEffectName   vst2.PluginOpcode = 45
	opGetVendorString vst2.PluginOpcode = 47
	opGetVendorVer    vst2.PluginOpcode = 49
	opGetVstVersion   vst2.PluginOpcode = 58
	opStartProcess    vst2.PluginOpcode = 71
	opStopProcess     vst2.PluginOpcode = 72
)

const (
	hostVSTVersion       = 2400
	hostVendorVersion    = 10
	hostVendor           = "isanan39s"
	hostProduct          = "vstchain"
	hostStringLen        = 64
	pluginStringLen      = 256
	pinPropertiesSize    = 128
	maxPins              = 16
	defaultHostRate      = 44100
	defaultHostBlockSize = 8096
)

// host answers the plugin's callbacks for one module. Each module has its own
// host so nothing is shared between plugin instances.
type host struct {
	sampleRate float64
	blockSize  int
	timeInfo   *vst2.TimeInfo
}

func newHost() *host {
	return &host{
		sampleRate: defaultHostRate,
		blockSize:  defaultHostBlockSize,
		timeInfo: &vst2.TimeInfo{
			SampleRate:         defaultHostRate,
			Tempo:              120.0,
			PpqPos:             0.0,
			TimeSigNumerator:   4,
			TimeSigDenominator: 4,
			Flags:              vst2.TempoValid | vst2.PpqPosValid | vst2.TimeSigValid,
		},
	}
}

// configure records the stream the plugin is about to be prepared for.
func (h *host) configure(sampleRate float64, blockSize int) {
	h.sampleRate, h.blockSize = sampleRate, blockSize
	h.timeInfo.SampleRate = sampleRate
}

func (h *host) callback(op vst2.HostOpcode, index int32, value int64, ptr unsafe.Pointer, opt float32) int64 {
	switch op {
	case vst2.HostVersion:
		return hostVSTVersion
	case vst2.HostGetVendorVersion:
		return hostVendorVersion
	case vst2.HostGetSampleRate:
		return int64(h.sampleRate)
	case vst2.HostGetBufferSize:
		return int64(h.blockSize)
	case vst2.HostGetCurrentProcessLevel:
		return int64(vst2.ProcessLevelOffline)
	case vst2.HostGetTime:
		return int64(uintptr(unsafe.Pointer(h.timeInfo)))
	case vst2.HostGetVendorString:
		return writeString(ptr, hostVendor)
	case vst2.HostGetProductString:
		return writeString(ptr, hostProduct)
	case vst2.HostCanDo, vst2.HostIdle, vst2.HostSizeWindow:
		return 0
	default:
		// Unknown requests are declined.
		return 0
	}
}

// vst2Module is a Module backed by a VST 2.x shared library.
type vst2Module struct {
	lib    *vst2.VST
	plugin *vst2.Plugin
	host   *host
	info   ModuleInfo

	started  bool
	double   bool
	channels int
	inputs   int
	outputs  int

	frames    int
	inDouble  vst2.DoubleBuffer
	outDouble vst2.DoubleBuffer
	inFloat   vst2.FloatBuffer
	outFloat  vst2.FloatBuffer
	stageIn   signal.Floating
	stageOut  signal.Floating
}

// OpenVST2 is the Loader for VST 2.x modules.
func OpenVST2(path string) (Module, error) {
	lib, err := vst2.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %v", path)
	}

	h := newHost()
	p := lib.Plugin(h.callback)
	if p == nil {
		lib.Close()
		return nil, errors.Errorf("no VST2 entry point in %v", path)
	}
	p.Start()

	m := &vst2Module{lib: lib, plugin: p, host: h}
	m.info = ModuleInfo{
		Name:      m.str(opGetEffectName, 0),
		Vendor:    m.str(opGetVendorString, 0),
		VendorID:  int32(m.dispatch(opGetVendorVer, 0, 0, nil, 0)),
		Version:   int(m.dispatch(opGetVstVersion, 0, 0, nil, 0)),
		NumParams: p.NumParams(),
		Inputs:    m.pins(opGetInputProps),
		Outputs:   m.pins(opGetOutputProps),
	}
	if m.info.Name == "" {
		m.info.Name = lib.Name
	}
	return m, nil
}

func (m *vst2Module) dispatch(op vst2.PluginOpcode, index int32, value int64, ptr unsafe.Pointer, opt float32) int64 {
	return int64(m.plugin.Dispatch(op, index, value, ptr, opt))
}

func (m *vst2Module) str(op vst2.PluginOpcode, index int32) string {
	var buf [pluginStringLen]byte
	m.dispatch(op, index, 0, unsafe.Pointer(&buf[0]), 0)
	return decodeString(buf[:])
}

// pins counts the pins for which the plugin fills a VstPinProperties, or
// returns UnknownPins when it answers none.
func (m *vst2Module) pins(op vst2.PluginOpcode) int {
	n := 0
	for i := 0; i < maxPins; i++ {
		var props [pinPropertiesSize]byte
		if m.dispatch(op, int32(i), 0, unsafe.Pointer(&props[0]), 0) == 0 {
			break
		}
		n++
	}
	if n == 0 {
		return UnknownPins
	}
	return n
}

func (m *vst2Module) Info() ModuleInfo {
	return m.info
}

func (m *vst2Module) ParamName(index int) string {
	return m.plugin.ParamName(index)
}

func (m *vst2Module) ParamLabel(index int) string {
	return m.plugin.ParamUnitName(index)
}

func (m *vst2Module) ParamDisplay(index int) string {
	return m.plugin.ParamValueName(index)
}

func (m *vst2Module) ParamValue(index int) float32 {
	return m.plugin.ParamValue(index)
}

func (m *vst2Module) SetParamValue(index int, value float32) {
	m.plugin.SetParamValue(index, value)
}

func (m *vst2Module) SetBankData(data []byte) {
	m.plugin.SetBankData(data)
}

func (m *vst2Module) Configure(sampleRate float64, blockSize, channels int) error {
	if m.started {
		m.stop()
	}
	m.free()

	m.host.configure(sampleRate, blockSize)

	m.plugin.SetSampleRate(signal.Frequency(sampleRate))
	m.plugin.SetBufferSize(blockSize)

	// Unreported pin counts are assumed to match the stream.
	m.channels = channels
	m.inputs, m.outputs = max(channels, m.info.Inputs), max(channels, m.info.Outputs)
	m.double = m.plugin.CanProcessFloat64()

	m.plugin.Resume()
	m.dispatch(opStartProcess, 0, 0, nil, 0)
	m.started = true
	return nil
}

func (m *vst2Module) stop() {
	m.dispatch(opStopProcess, 0, 0, nil, 0)
	m.plugin.Suspend()
	m.started = false
}

// allocate sizes the native buffers for frames. Only the tail block of a
// stream changes the size, so this runs at most twice per stream.
func (m *vst2Module) allocate(frames int) {
	if m.frames == frames {
		return
	}
	m.free()

	m.frames = frames
	if m.double {
		m.inDouble = vst2.NewDoubleBuffer(m.inputs, frames)
		m.outDouble = vst2.NewDoubleBuffer(m.outputs, frames)
	} else {
		m.inFloat = vst2.NewFloatBuffer(m.inputs, frames)
		m.outFloat = vst2.NewFloatBuffer(m.outputs, frames)
	}
	m.stageIn = signal.Allocator{Channels: m.inputs, Length: frames, Capacity: frames}.Float64()
	m.stageOut = signal.Allocator{Channels: m.outputs, Length: frames, Capacity: frames}.Float64()
}

func (m *vst2Module) free() {
	if m.frames == 0 {
		return
	}
	if m.double {
		m.inDouble.Free()
		m.outDouble.Free()
	} else {
		m.inFloat.Free()
		m.outFloat.Free()
	}
	m.frames = 0
}

func (m *vst2Module) Process(in, out *audio.Block) error {
	if !m.started {
		return errors.New("not started")
	}

	frames := in.Frames()
	if frames == 0 {
		return nil
	}
	m.allocate(frames)

	stageInput(m.stageIn, in, m.channels)

	if m.double {
		m.inDouble.Write(m.stageIn)
		m.plugin.ProcessDouble(m.inDouble, m.outDouble)
		m.outDouble.Read(m.stageOut)
	} else {
		m.inFloat.Write(m.stageIn)
		m.plugin.ProcessFloat(m.inFloat, m.outFloat)
		m.outFloat.Read(m.stageOut)
	}

	stageOutput(out, m.stageOut, m.channels, frames)
	return nil
}

// stageInput copies the first channels of in into the interleaved staging
// buffer. Plugin inputs beyond the stream's channels are fed silence.
func stageInput(dst signal.Floating, in *audio.Block, channels int) {
	frames := min(in.Frames(), dst.Length())
	for c := 0; c < dst.Channels(); c++ {
		var src []float64
		if c < channels {
			src = in.Channel(c)
		}
		for i := 0; i < frames; i++ {
			v := 0.0
			if src != nil {
				v = src[i]
			}
			dst.SetSample(dst.BufferIndex(c, i), v)
		}
	}
}

// stageOutput copies the first channels of the plugin's outputs into out.
// Extra output pins are dropped.
func stageOutput(out *audio.Block, src signal.Floating, channels, frames int) {
	out.SetFrames(frames)
	for c := 0; c < channels; c++ {
		dst := out.Channel(c)
		for i := range dst {
			dst[i] = src.Sample(src.BufferIndex(c, i))
		}
	}
}

func (m *vst2Module) Close() error {
	if m.started {
		m.stop()
	}
	m.free()
	m.plugin.Close()
	m.lib.Close()
	return nil
}

// decodeString converts a NUL-terminated string written by a plugin. VST2
// strings are 8-bit and in practice Windows-1252.
func decodeString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return strings.TrimSpace(string(b))
	}
	return strings.TrimSpace(string(s))
}

// writeString copies s into a host string buffer supplied by the plugin.
func writeString(ptr unsafe.Pointer, s string) int64 {
	if ptr == nil {
		return 0
	}
	dst := unsafe.Slice((*byte)(ptr), hostStringLen)
	n := copy(dst[:hostStringLen-1], s)
	dst[n] = 0
	return 1
}
