// Package audio holds the sample containers shared by the codec, plugin and
// chain layers.
package audio

import (
	"fmt"
)

// Format describes the PCM layout of an audio stream.
type Format struct {
	SampleRate  int // Sample rate in Hz
	NumChannels int // Number of interleaved channels in the container
	BitDepth    int // Bits per sample of the container PCM data
	Container   string
}

func (f Format) String() string {
	return fmt.Sprintf("%v %vHz %vch %vbit", f.Container, f.SampleRate, f.NumChannels, f.BitDepth)
}

// Block is a group of frames stored per channel. All channels share one
// contiguous backing array so the block can be handed to native code as a
// single allocation.
type Block struct {
	data     []float64
	channels [][]float64
	capacity int
	frames   int
}

// NewBlock allocates a block of numChannels channels able to hold capacity
// frames. The block starts with zero frames.
func NewBlock(numChannels, capacity int) *Block {
	if numChannels <= 0 || capacity <= 0 {
		panic(fmt.Sprintf("audio: invalid block shape %vx%v", numChannels, capacity))
	}

	b := &Block{
		data:     make([]float64, numChannels*capacity),
		channels: make([][]float64, numChannels),
		capacity: capacity,
	}
	for c := range b.channels {
		b.channels[c] = b.data[c*capacity : (c+1)*capacity : (c+1)*capacity]
	}
	return b
}

// Channels returns the number of channels.
func (b *Block) Channels() int {
	return len(b.channels)
}

// Frames returns the number of valid frames.
func (b *Block) Frames() int {
	return b.frames
}

// Capacity returns the maximum number of frames.
func (b *Block) Capacity() int {
	return b.capacity
}

// SetFrames sets the number of valid frames, which must not exceed Capacity.
func (b *Block) SetFrames(n int) {
	if n < 0 || n > b.capacity {
		panic(fmt.Sprintf("audio: frames %v out of [0,%v]", n, b.capacity))
	}
	b.frames = n
}

// Channel returns the valid samples of channel c.
func (b *Block) Channel(c int) []float64 {
	return b.channels[c][:b.frames]
}

// Raw returns the full capacity of channel c, regardless of Frames.
func (b *Block) Raw(c int) []float64 {
	return b.channels[c]
}

// SameShape reports whether o can be used as the counterpart of b in a
// processing call.
func (b *Block) SameShape(o *Block) bool {
	return o != nil && b.Channels() == o.Channels() && b.Frames() == o.Frames()
}

// CopyFrom copies frames and samples of src into b.
func (b *Block) CopyFrom(src *Block) {
	if src.Channels() != b.Channels() {
		panic(fmt.Sprintf("audio: copy %vch into %vch", src.Channels(), b.Channels()))
	}
	b.SetFrames(src.Frames())
	for c := range b.channels {
		copy(b.channels[c], src.Channel(c))
	}
}

// Zero silences the valid frames.
func (b *Block) Zero() {
	for c := range b.channels {
		clear(b.Channel(c))
	}
}

// Interleave writes the valid frames into dst as interleaved samples and
// returns the number of samples written.
func (b *Block) Interleave(dst []float64) int {
	n := b.Channels()
	for i := 0; i < b.frames; i++ {
		for c := 0; c < n; c++ {
			dst[i*n+c] = b.channels[c][i]
		}
	}
	return b.frames * n
}

// Deinterleave loads len(src)/Channels frames from interleaved src.
func (b *Block) Deinterleave(src []float64) {
	n := b.Channels()
	b.SetFrames(len(src) / n)
	for i := 0; i < b.frames; i++ {
		for c := 0; c < n; c++ {
			b.channels[c][i] = src[i*n+c]
		}
	}
}
