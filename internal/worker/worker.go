// Package worker streams one audio file through a plugin chain.
package worker

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/ossrs/go-oryx-lib/logger"

	"github.com/isanan39s/vstchain/internal/audio"
	"github.com/isanan39s/vstchain/internal/audiofile"
	"github.com/isanan39s/vstchain/internal/chain"
	"github.com/isanan39s/vstchain/internal/plugin"
)

// State is the position of a worker in its one-way lifecycle.
type State int

const (
	StateIdle State = iota
	StateOpened
	StateStreaming
	StateCompleted
	StateFailed
	StateClosed
)

func (v State) String() string {
	switch v {
	case StateIdle:
		return "idle"
	case StateOpened:
		return "opened"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "closed"
	}
}

// Options configures one worker.
type Options struct {
	ID        string
	Input     string
	Output    string
	Spec      chain.Spec
	BlockSize int
	Loader    plugin.Loader

	// Info logs the parameter table of every loaded plugin.
	Info    bool
	Verbose bool
	// RemovePartial deletes the output of a job that failed while streaming.
	RemovePartial bool
}

// Worker owns the files, the chain host and the in-flight block of one job.
type Worker struct {
	opts  Options
	state State

	reader audiofile.Reader
	writer audiofile.Writer
	host   *chain.Host
	exec   *chain.Executor
	block  *audio.Block

	created bool
	blocks  int
	frames  int64
}

// New creates an idle worker.
func New(opts Options) *Worker {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Loader == nil {
		opts.Loader = plugin.OpenVST2
	}
	return &Worker{opts: opts}
}

// State returns the current state.
func (v *Worker) State() State {
	return v.state
}

// Run processes the file and always releases the chain and files. It never
// panics on a job failure; the failure is reported in the result.
func (v *Worker) Run(ctx context.Context) Result {
	if v.state != StateIdle {
		return Failed(v.opts.ID, v.opts.Input, v.opts.Output, errors.Errorf("worker is %v", v.state))
	}

	starttime := time.Now()
	logger.Tf(ctx, "job %v start, input=%v, output=%v, block=%v, stages=%v",
		v.opts.ID, v.opts.Input, v.opts.Output, v.opts.BlockSize, len(v.opts.Spec.Stages))

	err := v.open(ctx)
	if err == nil {
		err = v.stream(ctx)
	}
	if err == nil {
		v.state = StateCompleted
	} else {
		v.state = StateFailed
	}
	v.close(ctx)

	result := Result{
		ID: v.opts.ID, Input: v.opts.Input, Output: v.opts.Output, Status: StatusSuccess,
		Blocks: v.blocks, Frames: v.frames, Elapsed: time.Since(starttime),
	}
	if err != nil {
		result.Status, result.Err = StatusFailed, err
		result.Reason = filepath.Base(v.opts.Input) + ": " + err.Error()
		logger.Wf(ctx, "job %v failed, %v", v.opts.ID, result)
		return result
	}

	logger.Tf(ctx, "job %v done, %v", v.opts.ID, result)
	return result
}

// open moves Idle to Opened. The output file is created last so a chain
// that cannot be built leaves nothing on disk.
func (v *Worker) open(ctx context.Context) error {
	if v.opts.BlockSize <= 0 {
		return errors.Errorf("invalid block size %v", v.opts.BlockSize)
	}

	reader, err := audiofile.Open(v.opts.Input)
	if err != nil {
		return &FileIOError{Path: v.opts.Input, Op: "open input", Err: err}
	}
	v.reader = reader

	format := reader.Format()
	if err := audiofile.Compatible(format, v.opts.Output); err != nil {
		return &FileIOError{Path: v.opts.Output, Op: "check output", Err: err}
	}
	logger.Tf(ctx, "job %v input %v", v.opts.ID, format)

	v.host = chain.NewHost(v.opts.Loader)
	exec, err := v.host.OpenChain(ctx, v.opts.Spec, float64(format.SampleRate), v.opts.BlockSize, format.NumChannels)
	if err != nil {
		return err
	}
	v.exec = exec

	if v.opts.Info {
		v.dumpParameters(ctx)
	}

	if dir := filepath.Dir(v.opts.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &FileIOError{Path: dir, Op: "create output dir", Err: err}
		}
	}
	writer, err := audiofile.Create(v.opts.Output, format)
	if err != nil {
		return &FileIOError{Path: v.opts.Output, Op: "create output", Err: err}
	}
	v.writer, v.created = writer, true

	v.block = audio.NewBlock(format.NumChannels, v.opts.BlockSize)
	v.state = StateOpened
	return nil
}

// stream moves Opened to Streaming and loops until the input is exhausted.
func (v *Worker) stream(ctx context.Context) error {
	v.state = StateStreaming

	for {
		n, err := v.reader.Read(v.block)
		if err == io.EOF || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return &FileIOError{Path: v.opts.Input, Op: "read", Err: err}
		}

		out, err := v.exec.Run(v.block)
		if err != nil {
			return err
		}
		if err := v.writer.Write(out); err != nil {
			return &FileIOError{Path: v.opts.Output, Op: "write", Err: err}
		}

		v.blocks++
		v.frames += int64(n)
		if v.opts.Verbose {
			logger.Tf(ctx, "job %v block #%v, frames=%v, total=%v", v.opts.ID, v.blocks, n, v.frames)
		}
	}

	// The container header is only complete once the writer is closed.
	writer := v.writer
	v.writer = nil
	if err := writer.Close(); err != nil {
		return &FileIOError{Path: v.opts.Output, Op: "finalize", Err: err}
	}
	return nil
}

// close releases the chain and the files on every path and moves to Closed.
func (v *Worker) close(ctx context.Context) {
	failed := v.state == StateFailed

	if v.host != nil {
		if err := v.host.CloseChain(); err != nil {
			logger.Wf(ctx, "job %v ignore close chain err %+v", v.opts.ID, err)
		}
		v.host, v.exec = nil, nil
	}

	// The writer is still open only when streaming failed.
	if v.writer != nil {
		if err := v.writer.Close(); err != nil {
			logger.Wf(ctx, "job %v ignore close output err %+v", v.opts.ID, err)
		}
		v.writer = nil
	}
	if v.reader != nil {
		if err := v.reader.Close(); err != nil {
			logger.Wf(ctx, "job %v ignore close input err %+v", v.opts.ID, err)
		}
		v.reader = nil
	}

	if failed && v.created {
		if v.opts.RemovePartial {
			if err := os.Remove(v.opts.Output); err != nil && !os.IsNotExist(err) {
				logger.Wf(ctx, "job %v ignore remove partial %v err %+v", v.opts.ID, v.opts.Output, err)
			}
		} else {
			logger.Wf(ctx, "job %v partial output kept at %v", v.opts.ID, v.opts.Output)
		}
	}

	v.block = nil
	v.state = StateClosed
}

func (v *Worker) dumpParameters(ctx context.Context) {
	for _, stage := range v.host.Describe() {
		d := stage.Descriptor
		logger.Tf(ctx, "plugin #%v %v, vendor=%v, vendorID=%v, version=%v, params=%v, path=%v",
			stage.Index, d.Name, d.Vendor, d.VendorID, d.Version, d.NumParams, d.Path)
		for _, p := range stage.Params {
			logger.Tf(ctx, "  param #%v %v = %.4f (%v %v)", p.ID, p.Name, p.Value, p.Display, p.Label)
		}
		if stage.Err != nil {
			logger.Wf(ctx, "plugin #%v ignore describe err %+v", stage.Index, stage.Err)
		}
	}
}
