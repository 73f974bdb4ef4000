package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/ossrs/go-oryx-lib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isanan39s/vstchain/internal/chain"
	"github.com/isanan39s/vstchain/internal/plugin/plugintest"
	"github.com/isanan39s/vstchain/internal/worker"
)

const childEnv = "VSTCHAIN_TEST_CHILD"

// TestMain lets the test binary stand in for an isolated child process.
func TestMain(m *testing.M) {
	switch os.Getenv(childEnv) {
	case "ok":
		fmt.Println("child log line")
		WriteResult(os.Stdout, worker.Result{
			ID: "child", Input: os.Args[len(os.Args)-1], Status: worker.StatusSuccess, Blocks: 3, Frames: 300,
		})
		os.Exit(0)
	case "failed":
		WriteResult(os.Stdout, worker.Result{ID: "child", Status: worker.StatusFailed, Reason: "a.wav: plugin crashed"})
		os.Exit(0)
	case "crash":
		fmt.Println("about to crash")
		os.Exit(3)
	case "garbage":
		fmt.Println(ResultPrefix + "{not json")
		os.Exit(0)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	case "linger":
		time.Sleep(30 * time.Second)
		os.Exit(0)
	case "orphan", "orphan-hang":
		// Leave a process behind that keeps stdout open.
		cmd := exec.Command(os.Args[0])
		cmd.Env = append(os.Environ(), childEnv+"=linger")
		cmd.Stdout = os.Stdout
		if err := cmd.Start(); err != nil {
			os.Exit(4)
		}
		if os.Getenv(childEnv) == "orphan-hang" {
			time.Sleep(time.Minute)
		}
		WriteResult(os.Stdout, worker.Result{ID: "child", Input: os.Args[len(os.Args)-1], Status: worker.StatusSuccess})
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func writeWAV(t *testing.T, path string, frames int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	data := make([]int, frames*2)
	for i := range data {
		data[i] = i%2000 - 1000
	}
	enc := wav.NewEncoder(f, 48000, 16, 2, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data: data, Format: &audio.Format{SampleRate: 48000, NumChannels: 2}, SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, input, output string) worker.Result {
	args := m.Called(input, output)
	return args.Get(0).(worker.Result)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.wav", "a.flac", "c.AIFF", "notes.txt", "d.ogg"} {
		touch(t, filepath.Join(dir, name))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.wav"), 0o755))

	files, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.flac"),
		filepath.Join(dir, "b.wav"),
		filepath.Join(dir, "c.AIFF"),
		filepath.Join(dir, "d.ogg"),
	}, files)

	_, err = List(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestBatch_InProcess(t *testing.T) {
	ctx := logger.WithContext(context.Background())
	dir, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	for _, name := range []string{"one.wav", "two.wav", "three.wav"} {
		writeWAV(t, filepath.Join(dir, name), 5000)
	}

	reg := plugintest.NewRegistry()
	path := reg.Add(t, t.TempDir(), "gain.so", func() *plugintest.Module {
		m := plugintest.NewModule("gain", 1)
		m.Func = plugintest.Scale(0.5)
		return m
	})

	b := &Batch{
		Folder: dir, Output: out, Jobs: 2,
		Runner: &InProcess{Spec: chain.Spec{Stages: []chain.Stage{{Path: path}}}, BlockSize: 1024, Loader: reg.Load},
	}
	summary, err := b.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Success)
	assert.Equal(t, 0, summary.Failed)

	for _, r := range summary.Results {
		assert.Equal(t, int64(5000), r.Frames)
		_, err := os.Stat(r.Output)
		assert.NoError(t, err)
		assert.Equal(t, out, filepath.Dir(r.Output))
	}
	// One module instance per file, never shared.
	assert.Len(t, reg.Opened(path), 3)
}

func TestBatch_FailureDoesNotStopOthers(t *testing.T) {
	ctx := logger.WithContext(context.Background())
	dir, out := t.TempDir(), t.TempDir()
	a, b, c := filepath.Join(dir, "a.wav"), filepath.Join(dir, "b.wav"), filepath.Join(dir, "c.wav")
	for _, f := range []string{a, b, c} {
		touch(t, f)
	}

	runner := &mockRunner{}
	runner.On("Run", a, filepath.Join(out, "a.wav")).Return(worker.Result{Input: a, Status: worker.StatusSuccess})
	runner.On("Run", b, filepath.Join(out, "b.wav")).Return(worker.Failed("id", b, "", errors.New("b.wav: boom")))
	runner.On("Run", c, filepath.Join(out, "c.wav")).Return(worker.Result{Input: c, Status: worker.StatusSuccess})

	summary, err := (&Batch{Folder: dir, Output: out, Runner: runner}).Run(ctx)
	require.NoError(t, err)
	runner.AssertExpectations(t)

	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, worker.StatusFailed, summary.Results[1].Status)
	assert.Equal(t, "b.wav: boom", summary.Results[1].Reason)
}

func TestBatch_OutputConflict(t *testing.T) {
	ctx := logger.WithContext(context.Background())
	dir, out := t.TempDir(), t.TempDir()
	flac, wavIn := filepath.Join(dir, "a.flac"), filepath.Join(dir, "a.wav")
	touch(t, flac)
	touch(t, wavIn)

	runner := &mockRunner{}
	runner.On("Run", flac, filepath.Join(out, "a.wav")).Return(worker.Result{Input: flac, Status: worker.StatusSuccess})

	summary, err := (&Batch{Folder: dir, Output: out, Runner: runner}).Run(ctx)
	require.NoError(t, err)
	runner.AssertExpectations(t)
	runner.AssertNumberOfCalls(t, "Run", 1)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, wavIn, summary.Results[1].Input)
	assert.Contains(t, summary.Results[1].Reason, "already written")
}

type countingRunner struct {
	inflight atomic.Int32
	mu       sync.Mutex
	peak     int32
}

func (v *countingRunner) Run(ctx context.Context, input, output string) worker.Result {
	n := v.inflight.Add(1)
	defer v.inflight.Add(-1)

	v.mu.Lock()
	v.peak = max(v.peak, n)
	v.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	return worker.Result{Input: input, Output: output, Status: worker.StatusSuccess}
}

func TestBatch_JobsCap(t *testing.T) {
	ctx := logger.WithContext(context.Background())
	dir := t.TempDir()
	for i := 0; i < 6; i++ {
		touch(t, filepath.Join(dir, fmt.Sprintf("f%v.wav", i)))
	}

	runner := &countingRunner{}
	summary, err := (&Batch{Folder: dir, Output: t.TempDir(), Jobs: 2, Runner: runner}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Success)
	assert.LessOrEqual(t, runner.peak, int32(2))
	assert.GreaterOrEqual(t, runner.peak, int32(1))
}

func isolated(stdout io.Writer, timeout time.Duration) *Isolated {
	return &Isolated{
		Executable: os.Args[0],
		Args:       func(input string) []string { return []string{input} },
		Timeout:    timeout,
		Stdout:     stdout,
	}
}

func TestIsolated_Result(t *testing.T) {
	ctx := logger.WithContext(context.Background())
	t.Setenv(childEnv, "ok")

	var stdout bytes.Buffer
	r := isolated(&stdout, 0).Run(ctx, "in/a.wav", "out/a.wav")
	assert.Equal(t, worker.StatusSuccess, r.Status, r.Reason)
	assert.Equal(t, "in/a.wav", r.Input)
	assert.Equal(t, 3, r.Blocks)
	assert.Equal(t, int64(300), r.Frames)
	assert.Contains(t, stdout.String(), "child log line")
	assert.NotContains(t, stdout.String(), ResultPrefix)
}

func TestIsolated_ChildReportsFailure(t *testing.T) {
	ctx := logger.WithContext(context.Background())
	t.Setenv(childEnv, "failed")

	r := isolated(nil, 0).Run(ctx, "in/a.wav", "out/a.wav")
	assert.Equal(t, worker.StatusFailed, r.Status)
	assert.Equal(t, "a.wav: plugin crashed", r.Reason)
}

func TestIsolated_Crash(t *testing.T) {
	ctx := logger.WithContext(context.Background())
	t.Setenv(childEnv, "crash")

	r := isolated(nil, 0).Run(ctx, "in/a.wav", "out/a.wav")
	assert.Equal(t, worker.StatusFailed, r.Status)
	assert.Contains(t, r.Reason, "abnormally")
	assert.Equal(t, "in/a.wav", r.Input)
	assert.NotEmpty(t, r.ID)
}

func TestIsolated_GarbageResult(t *testing.T) {
	ctx := logger.WithContext(context.Background())
	t.Setenv(childEnv, "garbage")

	r := isolated(nil, 0).Run(ctx, "in/a.wav", "out/a.wav")
	assert.Equal(t, worker.StatusFailed, r.Status)
	assert.Contains(t, r.Reason, "parse result")
}

func TestIsolated_Timeout(t *testing.T) {
	ctx := logger.WithContext(context.Background())
	t.Setenv(childEnv, "hang")

	starttime := time.Now()
	r := isolated(nil, 200*time.Millisecond).Run(ctx, "in/a.wav", "out/a.wav")
	assert.Equal(t, worker.StatusFailed, r.Status)
	assert.Contains(t, r.Reason, "killed")
	assert.Less(t, time.Since(starttime), 30*time.Second)
}

func TestIsolated_OrphanHoldingStdout(t *testing.T) {
	ctx := logger.WithContext(context.Background())
	t.Setenv(childEnv, "orphan")

	w := isolated(nil, 0)
	w.WaitDelay = 200 * time.Millisecond

	starttime := time.Now()
	r := w.Run(ctx, "in/a.wav", "out/a.wav")
	assert.Equal(t, worker.StatusSuccess, r.Status, r.Reason)
	assert.Equal(t, "in/a.wav", r.Input)
	assert.Less(t, time.Since(starttime), 15*time.Second)
}

func TestIsolated_TimeoutWithOrphan(t *testing.T) {
	ctx := logger.WithContext(context.Background())
	t.Setenv(childEnv, "orphan-hang")

	w := isolated(nil, 200*time.Millisecond)
	w.WaitDelay = 200 * time.Millisecond

	starttime := time.Now()
	r := w.Run(ctx, "in/a.wav", "out/a.wav")
	assert.Equal(t, worker.StatusFailed, r.Status)
	assert.Contains(t, r.Reason, "killed")
	assert.Less(t, time.Since(starttime), 15*time.Second)
}

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, worker.Result{ID: "x", Status: worker.StatusSuccess, Frames: 7}))

	var stdout bytes.Buffer
	r, err := isolated(&stdout, 0).scan(&buf)
	require.NoError(t, err)
	assert.Equal(t, "x", r.ID)
	assert.Equal(t, int64(7), r.Frames)
	assert.Empty(t, stdout.String())
}
