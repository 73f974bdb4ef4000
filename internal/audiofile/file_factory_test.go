package audiofile

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vaudio "github.com/isanan39s/vstchain/internal/audio"
)

// writeTestWAV writes a 16-bit WAV whose interleaved samples are a ramp.
func writeTestWAV(t *testing.T, path string, frames, channels int) []int {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	data := make([]int, frames*channels)
	for i := range data {
		data[i] = (i*37)%65536 - 32768
	}

	enc := wav.NewEncoder(f, 44100, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: 44100, NumChannels: channels},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return data
}

func readAllInts(t *testing.T, path string) []int {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	return buf.Data
}

func TestOpen_TailBlock(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.wav")
	writeTestWAV(t, in, 120, 2)

	r, err := Open(in)
	require.NoError(t, err)
	defer r.Close()

	format := r.Format()
	assert.Equal(t, 44100, format.SampleRate)
	assert.Equal(t, 2, format.NumChannels)
	assert.Equal(t, 16, format.BitDepth)
	assert.Equal(t, ContainerWAV, format.Container)

	b := vaudio.NewBlock(2, 64)
	var sizes []int
	for {
		n, err := r.Read(b)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, n)
	}
	assert.Equal(t, []int{64, 56}, sizes)
}

func TestCreate_RoundTripIsExact(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	want := writeTestWAV(t, in, 1000, 2)

	r, err := Open(in)
	require.NoError(t, err)
	w, err := Create(out, r.Format())
	require.NoError(t, err)

	b := vaudio.NewBlock(2, 128)
	for {
		if _, err := r.Read(b); err == io.EOF {
			break
		} else {
			require.NoError(t, err)
		}
		require.NoError(t, w.Write(b))
	}
	require.NoError(t, r.Close())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Equal(t, want, readAllInts(t, out))
}

func TestOpen_Unsupported(t *testing.T) {
	_, err := Open("song.mp3")
	assert.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)

	bogus := filepath.Join(t.TempDir(), "bogus.wav")
	require.NoError(t, os.WriteFile(bogus, []byte("not a riff file at all"), 0o644))
	_, err = Open(bogus)
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "a.wav"), OutputPath("in/a.wav", "out"))
	assert.Equal(t, filepath.Join("out", "b.aiff"), OutputPath("in/b.aiff", "out"))
	assert.Equal(t, filepath.Join("out", "c.wav"), OutputPath("in/c.flac", "out"))
	assert.Equal(t, filepath.Join("out", "d.wav"), OutputPath("in/d.OGG", "out"))

	assert.True(t, Supported("x.FLAC"))
	assert.True(t, Supported("x.aif"))
	assert.False(t, Supported("x.mp3"))
}

func TestCompatible(t *testing.T) {
	ok := vaudio.Format{SampleRate: 48000, NumChannels: 2, BitDepth: 24, Container: ContainerFLAC}
	assert.NoError(t, Compatible(ok, "x.wav"))
	assert.Error(t, Compatible(ok, "x.aiff"))
	assert.Error(t, Compatible(ok, "x.flac"))

	bad := ok
	bad.BitDepth = 12
	assert.Error(t, Compatible(bad, "x.wav"))
}

type shortDecoder struct {
	data  []int
	chunk int
}

func (v *shortDecoder) PCMBuffer(buf *audio.IntBuffer) (int, error) {
	n := min(v.chunk, len(buf.Data), len(v.data))
	copy(buf.Data, v.data[:n])
	v.data = v.data[n:]
	return n, nil
}

func TestIntReader_ShortReads(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "placeholder"))
	require.NoError(t, err)

	data := make([]int, 2*100)
	for i := range data {
		data[i] = i
	}
	format := vaudio.Format{SampleRate: 8000, NumChannels: 2, BitDepth: 16}
	r, err := newIntReader(f, &shortDecoder{data: data, chunk: 7}, format, true)
	require.NoError(t, err)
	defer r.Close()

	b := vaudio.NewBlock(2, 64)
	total := 0
	for {
		n, err := r.Read(b)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, 100, total)
}

func TestPCMCodec(t *testing.T) {
	c, err := newPCMCodec(16, false)
	require.NoError(t, err)
	for _, s := range []int{-32768, -1, 0, 1, 32767} {
		assert.Equal(t, s, c.toInt(c.toFloat(s)))
	}
	assert.Equal(t, 32767, c.toInt(2.0))
	assert.Equal(t, -32768, c.toInt(-2.0))

	u8, err := newPCMCodec(8, true)
	require.NoError(t, err)
	assert.Equal(t, 0.0, u8.toFloat(128))
	assert.Equal(t, 255, u8.toInt(1.0))

	_, err = newPCMCodec(20, false)
	assert.Error(t, err)
}
