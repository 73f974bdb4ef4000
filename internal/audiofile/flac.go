package audiofile

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/tphakala/flac"

	vaudio "github.com/isanan39s/vstchain/internal/audio"
)

// frameDecoder yields one decoded FLAC frame per call, io.EOF after the last.
type frameDecoder interface {
	Next() ([]byte, error)
}

// flacReader decodes FLAC frames, which arrive as interleaved little-endian
// PCM of variable length. Samples left over from a frame carry into the next
// Read.
type flacReader struct {
	file    *os.File
	decoder frameDecoder
	codec   *pcmCodec
	format  vaudio.Format
	pending []byte
	eof     bool
}

func openFLAC(filePath string) (Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %v", filePath)
	}

	d, err := flac.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "decode FLAC %v", filePath)
	}

	format := vaudio.Format{
		SampleRate:  d.SampleRate,
		NumChannels: d.NChannels,
		BitDepth:    d.BitsPerSample,
		Container:   ContainerFLAC,
	}
	codec, err := newPCMCodec(format.BitDepth, false)
	if err != nil || format.NumChannels <= 0 || format.SampleRate <= 0 {
		f.Close()
		return nil, errors.Errorf("unsupported FLAC stream %v in %v", format, filePath)
	}

	return &flacReader{file: f, decoder: d, codec: codec, format: format}, nil
}

func (v *flacReader) Format() vaudio.Format {
	return v.format
}

func (v *flacReader) Read(b *vaudio.Block) (int, error) {
	channels := v.format.NumChannels
	if b.Channels() != channels {
		return 0, errors.Errorf("block has %v channels, stream %v", b.Channels(), channels)
	}

	frameBytes := v.format.BitDepth / 8 * channels
	want := b.Capacity() * frameBytes
	for len(v.pending) < want && !v.eof {
		frame, err := v.decoder.Next()
		if err == io.EOF {
			v.eof = true
			break
		} else if err != nil {
			return 0, errors.Wrapf(err, "decode %v", v.file.Name())
		}
		v.pending = append(v.pending, frame...)
	}

	n := min(len(v.pending), want) / frameBytes
	b.SetFrames(n)
	if n == 0 {
		return 0, io.EOF
	}

	width := v.format.BitDepth / 8
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*width
			b.Raw(c)[i] = v.codec.toFloat(v.sample(v.pending[off : off+width]))
		}
	}
	v.pending = v.pending[n*frameBytes:]

	return n, nil
}

func (v *flacReader) sample(p []byte) int {
	switch len(p) {
	case 1:
		return int(int8(p[0]))
	case 2:
		return int(int16(binary.LittleEndian.Uint16(p)))
	case 3:
		s := int32(p[0]) | int32(p[1])<<8 | int32(p[2])<<16
		if s&0x800000 != 0 {
			s |= -1 << 24
		}
		return int(s)
	default:
		return int(int32(binary.LittleEndian.Uint32(p)))
	}
}

func (v *flacReader) Close() error {
	return v.file.Close()
}
