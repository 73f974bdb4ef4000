package audiofile

import (
	"os"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/ossrs/go-oryx-lib/errors"

	vaudio "github.com/isanan39s/vstchain/internal/audio"
)

func openAIFF(filePath string) (Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %v", filePath)
	}

	d := aiff.NewDecoder(f)
	d.ReadInfo()
	if !d.IsValidFile() {
		f.Close()
		return nil, errors.Errorf("invalid AIFF file %v", filePath)
	}

	format := vaudio.Format{
		SampleRate:  int(d.SampleRate),
		NumChannels: int(d.NumChans),
		BitDepth:    int(d.BitDepth),
		Container:   ContainerAIFF,
	}
	var decoder pcmDecoder = d
	if format.BitDepth == 8 {
		decoder = signed8Decoder{d}
	}
	r, err := newIntReader(f, decoder, format, false)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "open %v", filePath)
	}
	return r, nil
}

// signed8Decoder restores the sign of 8-bit AIFF samples, which are stored
// signed but returned by the decoder as the raw unsigned byte.
type signed8Decoder struct {
	pcmDecoder
}

func (v signed8Decoder) PCMBuffer(buf *audio.IntBuffer) (int, error) {
	n, err := v.pcmDecoder.PCMBuffer(buf)
	for i := 0; i < n && i < len(buf.Data); i++ {
		buf.Data[i] = int(int8(uint8(buf.Data[i])))
	}
	return n, err
}

func createAIFF(filePath string, format vaudio.Format) (Writer, error) {
	codec, err := newPCMCodec(format.BitDepth, false)
	if err != nil {
		return nil, errors.Wrapf(err, "create %v", filePath)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "create %v", filePath)
	}

	return &intWriter{
		file:    f,
		encoder: aiff.NewEncoder(f, format.SampleRate, format.BitDepth, format.NumChannels),
		codec:   codec,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: format.SampleRate, NumChannels: format.NumChannels},
			SourceBitDepth: format.BitDepth,
		},
	}, nil
}
