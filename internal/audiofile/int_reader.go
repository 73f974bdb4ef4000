package audiofile

import (
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/ossrs/go-oryx-lib/errors"

	vaudio "github.com/isanan39s/vstchain/internal/audio"
)

// pcmDecoder is implemented by the go-audio WAV and AIFF decoders.
type pcmDecoder interface {
	PCMBuffer(buf *audio.IntBuffer) (int, error)
}

// intReader serves WAV and AIFF streams, which both decode to integer PCM.
type intReader struct {
	file    *os.File
	decoder pcmDecoder
	codec   *pcmCodec
	format  vaudio.Format
	buf     *audio.IntBuffer
	eof     bool
}

func newIntReader(f *os.File, d pcmDecoder, format vaudio.Format, unsigned8 bool) (*intReader, error) {
	codec, err := newPCMCodec(format.BitDepth, unsigned8)
	if err != nil {
		return nil, err
	}
	if format.NumChannels <= 0 || format.SampleRate <= 0 {
		return nil, errors.Errorf("invalid stream %v", format)
	}

	return &intReader{
		file:    f,
		decoder: d,
		codec:   codec,
		format:  format,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: format.SampleRate, NumChannels: format.NumChannels},
			SourceBitDepth: format.BitDepth,
		},
	}, nil
}

func (v *intReader) Format() vaudio.Format {
	return v.format
}

func (v *intReader) Read(b *vaudio.Block) (int, error) {
	if v.eof {
		b.SetFrames(0)
		return 0, io.EOF
	}

	channels := v.format.NumChannels
	if b.Channels() != channels {
		return 0, errors.Errorf("block has %v channels, stream %v", b.Channels(), channels)
	}

	want := b.Capacity() * channels
	if cap(v.buf.Data) < want {
		v.buf.Data = make([]int, want)
	}

	// The decoders may return short reads before the end of the data chunk.
	got := 0
	for got < want {
		v.buf.Data = v.buf.Data[:want-got]
		n, err := v.decoder.PCMBuffer(v.buf)
		if err != nil && err != io.EOF {
			return 0, errors.Wrapf(err, "decode %v", v.file.Name())
		}
		if n == 0 {
			v.eof = true
			break
		}
		v.load(b, got, v.buf.Data[:n])
		got += n
		if err == io.EOF {
			v.eof = true
			break
		}
	}

	frames := got / channels
	b.SetFrames(frames)
	if frames == 0 {
		return 0, io.EOF
	}
	return frames, nil
}

// load deinterleaves samples into b starting at interleaved offset.
func (v *intReader) load(b *vaudio.Block, offset int, samples []int) {
	channels := v.format.NumChannels
	for i, s := range samples {
		pos := offset + i
		b.Raw(pos % channels)[pos/channels] = v.codec.toFloat(s)
	}
}

func (v *intReader) Close() error {
	return v.file.Close()
}

// intWriter encodes blocks through a go-audio WAV or AIFF encoder.
type intWriter struct {
	file    *os.File
	encoder interface {
		Write(buf *audio.IntBuffer) error
		Close() error
	}
	codec  *pcmCodec
	buf    *audio.IntBuffer
	closed bool
}

func (v *intWriter) Write(b *vaudio.Block) error {
	channels := b.Channels()
	if channels != v.buf.Format.NumChannels {
		return errors.Errorf("block has %v channels, stream %v", channels, v.buf.Format.NumChannels)
	}

	n := b.Frames() * channels
	if cap(v.buf.Data) < n {
		v.buf.Data = make([]int, n)
	}
	v.buf.Data = v.buf.Data[:n]

	for c := 0; c < channels; c++ {
		for i, f := range b.Channel(c) {
			v.buf.Data[i*channels+c] = v.codec.toInt(f)
		}
	}

	if err := v.encoder.Write(v.buf); err != nil {
		return errors.Wrapf(err, "encode %v", v.file.Name())
	}
	return nil
}

func (v *intWriter) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true

	if err := v.encoder.Close(); err != nil {
		v.file.Close()
		return errors.Wrapf(err, "finalize %v", v.file.Name())
	}
	return v.file.Close()
}
