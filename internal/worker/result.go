package worker

import (
	"fmt"
	"time"
)

// Status is the outcome of one job.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Result reports one input file processed by a worker.
type Result struct {
	ID      string        `json:"id"`
	Input   string        `json:"input"`
	Output  string        `json:"output"`
	Status  Status        `json:"status"`
	Reason  string        `json:"reason,omitempty"`
	Blocks  int           `json:"blocks"`
	Frames  int64         `json:"frames"`
	Elapsed time.Duration `json:"elapsed"`

	// Err is the typed failure; it does not survive serialization.
	Err error `json:"-"`
}

// Failed builds a failed result for input.
func Failed(id, input, output string, err error) Result {
	return Result{ID: id, Input: input, Output: output, Status: StatusFailed, Reason: err.Error(), Err: err}
}

func (v Result) String() string {
	if v.Status == StatusSuccess {
		return fmt.Sprintf("%v -> %v ok, blocks=%v, frames=%v, cost=%v", v.Input, v.Output, v.Blocks, v.Frames, v.Elapsed)
	}
	return fmt.Sprintf("%v failed after %v blocks: %v", v.Input, v.Blocks, v.Reason)
}

// FileIOError reports an unreadable input or unwritable output.
type FileIOError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("%v %v: %v", e.Op, e.Path, e.Err)
}

func (e *FileIOError) Unwrap() error {
	return e.Err
}
