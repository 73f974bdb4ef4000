package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("VSTCHAIN_FOLDER", "")
	t.Setenv("VSTCHAIN_OUTPUT", "")
	t.Setenv("VSTCHAIN_BUFFERSIZE", "")
	t.Setenv("VSTCHAIN_JOBS", "")

	c, err := Parse("vstchain", []string{"-job", "job.json"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, ".", c.Folder)
	assert.Equal(t, "./out", c.Output)
	assert.Equal(t, DefaultBufferSize, c.BufferSize)
	assert.Equal(t, 0, c.Jobs)
	assert.True(t, c.Isolate)
	assert.False(t, c.RemovePartial)
	assert.Empty(t, c.Worker)
}

func TestParse_Flags(t *testing.T) {
	c, err := Parse("vstchain", []string{
		"-folder", "in", "-job", "j.json", "-output", "o", "-buffersize", "2048",
		"-verbose", "-info", "-jobs", "4", "-isolate=false", "-timeout", "30s", "-remove-partial",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, &Config{
		Folder: "in", Job: "j.json", Output: "o", BufferSize: 2048, Verbose: true, Info: true,
		Jobs: 4, Isolate: false, Timeout: 30 * time.Second, RemovePartial: true,
	}, c)
}

func TestParse_ShortFlags(t *testing.T) {
	c, err := Parse("vstchain", []string{"-f", "in", "-j", "j.json", "-o", "o", "-b", "4096", "-i"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "in", c.Folder)
	assert.Equal(t, "j.json", c.Job)
	assert.Equal(t, "o", c.Output)
	assert.Equal(t, 4096, c.BufferSize)
	assert.True(t, c.Info)
}

func TestParse_EnvDefaults(t *testing.T) {
	t.Setenv("VSTCHAIN_FOLDER", "/data/in")
	t.Setenv("VSTCHAIN_OUTPUT", "/data/out")
	t.Setenv("VSTCHAIN_BUFFERSIZE", "4096")
	t.Setenv("VSTCHAIN_JOBS", "2")

	c, err := Parse("vstchain", nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "/data/in", c.Folder)
	assert.Equal(t, "/data/out", c.Output)
	assert.Equal(t, 4096, c.BufferSize)
	assert.Equal(t, 2, c.Jobs)

	// Flags win over the environment.
	c, err = Parse("vstchain", []string{"-buffersize", "1024"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1024, c.BufferSize)

	t.Setenv("VSTCHAIN_BUFFERSIZE", "big")
	_, err = Parse("vstchain", nil, io.Discard)
	assert.Error(t, err)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("vstchain", []string{"-nope"}, io.Discard)
	assert.Error(t, err)

	_, err = Parse("vstchain", []string{"-job", "j.json", "extra"}, io.Discard)
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadEnv(filepath.Join(dir, "missing.env")))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("VSTCHAIN_TEST_LOADENV=yes\n"), 0o644))
	t.Setenv("VSTCHAIN_TEST_LOADENV", "")
	require.NoError(t, os.Unsetenv("VSTCHAIN_TEST_LOADENV"))

	require.NoError(t, LoadEnv(envFile))
	assert.Equal(t, "yes", os.Getenv("VSTCHAIN_TEST_LOADENV"))
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	valid := func() *Config {
		return &Config{Folder: dir, Job: "j.json", Output: "out", BufferSize: 8096, Isolate: true}
	}
	require.NoError(t, valid().Validate())

	for _, size := range []int{1023, 65537, 0} {
		c := valid()
		c.BufferSize = size
		assert.Error(t, c.Validate(), "buffersize %v", size)
	}
	for _, size := range []int{MinBufferSize, MaxBufferSize} {
		c := valid()
		c.BufferSize = size
		assert.NoError(t, c.Validate(), "buffersize %v", size)
	}

	c := valid()
	c.Job = ""
	assert.Error(t, c.Validate())

	c = valid()
	c.Folder = filepath.Join(dir, "missing")
	assert.Error(t, c.Validate())

	file := filepath.Join(dir, "file.wav")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	c = valid()
	c.Folder = file
	assert.Error(t, c.Validate())

	c = valid()
	c.Jobs = -1
	assert.Error(t, c.Validate())
}

func TestWorkerArgs(t *testing.T) {
	c := &Config{Folder: "in", Job: "j.json", Output: "out", BufferSize: 2048, Info: true, RemovePartial: true}
	args := c.WorkerArgs("in/a.wav")

	parsed, err := Parse("vstchain", args, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "in/a.wav", parsed.Worker)
	assert.Equal(t, "j.json", parsed.Job)
	assert.Equal(t, "out", parsed.Output)
	assert.Equal(t, 2048, parsed.BufferSize)
	assert.True(t, parsed.Info)
	assert.True(t, parsed.RemovePartial)
	assert.False(t, parsed.Verbose)
	assert.NoError(t, parsed.Validate())
}
