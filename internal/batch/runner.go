package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/ossrs/go-oryx-lib/logger"

	"github.com/isanan39s/vstchain/internal/chain"
	"github.com/isanan39s/vstchain/internal/plugin"
	"github.com/isanan39s/vstchain/internal/worker"
)

// ResultPrefix marks the stdout line carrying the JSON result of a child.
const ResultPrefix = "vstchain-result: "

// DefaultWaitDelay is how long the output of an exited or killed child is
// still read, in case a process it spawned holds the pipe open.
const DefaultWaitDelay = 5 * time.Second

// Runner processes one input file into output.
type Runner interface {
	Run(ctx context.Context, input, output string) worker.Result
}

// InProcess runs the worker in the calling goroutine.
type InProcess struct {
	Spec          chain.Spec
	BlockSize     int
	Loader        plugin.Loader
	Info          bool
	Verbose       bool
	RemovePartial bool
}

func (v *InProcess) Run(ctx context.Context, input, output string) worker.Result {
	w := worker.New(worker.Options{
		Input:         input,
		Output:        output,
		Spec:          v.Spec,
		BlockSize:     v.BlockSize,
		Loader:        v.Loader,
		Info:          v.Info,
		Verbose:       v.Verbose,
		RemovePartial: v.RemovePartial,
	})
	return w.Run(logger.WithContext(ctx))
}

// Isolated runs each file in a child process so a native crash only takes
// that file down. The child prints its result with WriteResult.
type Isolated struct {
	Executable string
	// Args returns the child arguments for input.
	Args func(input string) []string
	// Timeout kills a child running longer; zero disables it.
	Timeout time.Duration
	// Stdout receives the child's log lines; nil discards them.
	Stdout io.Writer
	// WaitDelay overrides DefaultWaitDelay when positive.
	WaitDelay time.Duration
}

func (v *Isolated) Run(ctx context.Context, input, output string) worker.Result {
	starttime := time.Now()
	id := uuid.NewString()

	result, err := v.run(ctx, input)
	if err != nil {
		r := worker.Failed(id, input, output, err)
		r.Elapsed = time.Since(starttime)
		return r
	}
	return *result
}

func (v *Isolated) run(ctx context.Context, input string) (*worker.Result, error) {
	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, v.Executable, v.Args(input)...)
	cmd.Stderr = os.Stderr
	cmd.WaitDelay = DefaultWaitDelay
	if v.WaitDelay > 0 {
		cmd.WaitDelay = v.WaitDelay
	}

	// Wait owns the copy into the pipe, so it is bounded by WaitDelay even
	// when the child leaves a process holding its stdout.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, errors.Wrapf(err, "start worker %v", v.Executable)
	}
	logger.Tf(ctx, "worker pid=%v started for %v", cmd.Process.Pid, input)

	type scanned struct {
		result *worker.Result
		err    error
	}
	scanc := make(chan scanned, 1)
	go func() {
		result, err := v.scan(pr)
		scanc <- scanned{result, err}
	}()

	waitErr := cmd.Wait()
	pw.Close()
	s := <-scanc
	result, scanErr := s.result, s.err

	if ctx.Err() == context.DeadlineExceeded {
		return nil, errors.Errorf("worker killed after %v", v.Timeout)
	}
	if result != nil {
		return result, nil
	}
	if waitErr != nil {
		return nil, errors.Wrapf(waitErr, "worker exited abnormally")
	}
	if scanErr != nil {
		return nil, errors.Wrapf(scanErr, "read worker output")
	}
	return nil, errors.New("worker exited without a result")
}

// scan forwards the child's log lines and picks up its result line.
func (v *Isolated) scan(r io.Reader) (*worker.Result, error) {
	var result *worker.Result
	var parseErr error

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, ResultPrefix); ok {
			var res worker.Result
			if err := json.Unmarshal([]byte(data), &res); err != nil {
				parseErr = errors.Wrapf(err, "parse result %v", data)
				continue
			}
			result = &res
			continue
		}
		if v.Stdout != nil {
			fmt.Fprintln(v.Stdout, line)
		}
	}

	// Keep draining so the child never blocks on a full pipe.
	if err := scanner.Err(); err != nil {
		io.Copy(io.Discard, r)
		return result, err
	}
	return result, parseErr
}

// WriteResult prints r as the result line of a child process.
func WriteResult(w io.Writer, r worker.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrapf(err, "marshal result")
	}
	if _, err := fmt.Fprintf(w, "%v%s\n", ResultPrefix, data); err != nil {
		return errors.Wrapf(err, "write result")
	}
	return nil
}
