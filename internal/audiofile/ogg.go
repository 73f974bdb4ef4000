package audiofile

import (
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
	"github.com/ossrs/go-oryx-lib/errors"

	vaudio "github.com/isanan39s/vstchain/internal/audio"
)

// oggOutputBitDepth is the PCM depth used when a Vorbis stream is written
// back to an integer container.
const oggOutputBitDepth = 16

// sampleDecoder fills p with interleaved float samples.
type sampleDecoder interface {
	Read(p []float32) (int, error)
}

type oggReader struct {
	file    *os.File
	decoder sampleDecoder
	format  vaudio.Format
	buf     []float32
	eof     bool
}

func openOGG(filePath string) (Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %v", filePath)
	}

	d, err := oggvorbis.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "decode OGG %v", filePath)
	}

	format := vaudio.Format{
		SampleRate:  d.SampleRate(),
		NumChannels: d.Channels(),
		BitDepth:    oggOutputBitDepth,
		Container:   ContainerOGG,
	}
	if format.NumChannels <= 0 || format.SampleRate <= 0 {
		f.Close()
		return nil, errors.Errorf("invalid OGG stream %v in %v", format, filePath)
	}

	return &oggReader{file: f, decoder: d, format: format}, nil
}

func (v *oggReader) Format() vaudio.Format {
	return v.format
}

func (v *oggReader) Read(b *vaudio.Block) (int, error) {
	channels := v.format.NumChannels
	if b.Channels() != channels {
		return 0, errors.Errorf("block has %v channels, stream %v", b.Channels(), channels)
	}

	want := b.Capacity() * channels
	if cap(v.buf) < want {
		v.buf = make([]float32, want)
	}
	v.buf = v.buf[:want]

	got := 0
	for got < want && !v.eof {
		n, err := v.decoder.Read(v.buf[got:])
		got += n
		if err == io.EOF {
			v.eof = true
		} else if err != nil {
			return 0, errors.Wrapf(err, "decode %v", v.file.Name())
		} else if n == 0 {
			v.eof = true
		}
	}

	frames := got / channels
	b.SetFrames(frames)
	if frames == 0 {
		return 0, io.EOF
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			b.Raw(c)[i] = float64(v.buf[i*channels+c])
		}
	}
	return frames, nil
}

func (v *oggReader) Close() error {
	return v.file.Close()
}
