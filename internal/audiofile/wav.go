package audiofile

import (
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/ossrs/go-oryx-lib/errors"

	vaudio "github.com/isanan39s/vstchain/internal/audio"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag, the only one go-audio decodes.
const wavFormatPCM = 1

func openWAV(filePath string) (Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %v", filePath)
	}

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if !d.IsValidFile() {
		f.Close()
		return nil, errors.Errorf("invalid WAV file %v", filePath)
	}
	if d.WavAudioFormat != wavFormatPCM {
		f.Close()
		return nil, errors.Errorf("unsupported WAV format tag %v in %v", d.WavAudioFormat, filePath)
	}

	format := vaudio.Format{
		SampleRate:  int(d.SampleRate),
		NumChannels: int(d.NumChans),
		BitDepth:    int(d.BitDepth),
		Container:   ContainerWAV,
	}
	r, err := newIntReader(f, d, format, true)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "open %v", filePath)
	}
	return r, nil
}

func createWAV(filePath string, format vaudio.Format) (Writer, error) {
	codec, err := newPCMCodec(format.BitDepth, true)
	if err != nil {
		return nil, errors.Wrapf(err, "create %v", filePath)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "create %v", filePath)
	}

	return &intWriter{
		file:    f,
		encoder: wav.NewEncoder(f, format.SampleRate, format.BitDepth, format.NumChannels, wavFormatPCM),
		codec:   codec,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: format.SampleRate, NumChannels: format.NumChannels},
			SourceBitDepth: format.BitDepth,
		},
	}, nil
}
