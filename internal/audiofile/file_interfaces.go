// Package audiofile reads and writes the audio containers processed by the
// chain: WAV, AIFF, FLAC and OGG Vorbis.
package audiofile

import (
	"github.com/isanan39s/vstchain/internal/audio"
)

// Container names, also used as lower-case file extensions.
const (
	ContainerWAV  = "wav"
	ContainerAIFF = "aiff"
	ContainerFLAC = "flac"
	ContainerOGG  = "ogg"
)

// Reader streams frames out of an audio container.
type Reader interface {
	// Format returns the PCM layout of the opened stream.
	Format() audio.Format

	// Read fills b with up to b.Capacity() frames and returns the number of
	// frames read. It returns 0 and io.EOF once the stream is exhausted.
	Read(b *audio.Block) (int, error)

	// Close releases the underlying file.
	Close() error
}

// Writer appends frames to an audio container.
type Writer interface {
	// Write encodes the valid frames of b.
	Write(b *audio.Block) error

	// Close finalizes the container header and releases the file.
	Close() error
}
