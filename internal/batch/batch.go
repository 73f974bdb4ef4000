// Package batch runs one worker per audio file of a folder and joins them.
package batch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/ossrs/go-oryx-lib/logger"

	"github.com/isanan39s/vstchain/internal/audiofile"
	"github.com/isanan39s/vstchain/internal/worker"
)

// Batch processes every supported file directly inside Folder.
type Batch struct {
	Folder string
	Output string
	// Jobs caps the number of files in flight; zero starts all at once.
	Jobs   int
	Runner Runner
}

// Summary is the outcome of a batch.
type Summary struct {
	Results []worker.Result
	Success int
	Failed  int
	Elapsed time.Duration
}

// List returns the supported audio files of folder, sorted by name.
// Subfolders are not visited.
func List(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, errors.Wrapf(err, "read folder %v", folder)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !audiofile.Supported(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(folder, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Run processes every file and waits for all of them. A failed file never
// stops the others; only setup errors are returned.
func (v *Batch) Run(ctx context.Context) (*Summary, error) {
	starttime := time.Now()

	files, err := List(v.Folder)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(v.Output, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output %v", v.Output)
	}
	logger.Tf(ctx, "batch start, folder=%v, files=%v, output=%v, jobs=%v", v.Folder, len(files), v.Output, v.Jobs)

	results := make([]worker.Result, len(files))
	outputs := v.outputs(files)

	var sem chan struct{}
	if v.Jobs > 0 {
		sem = make(chan struct{}, v.Jobs)
	}

	var wg sync.WaitGroup
	for i, input := range files {
		output := outputs[i]
		if output.err != nil {
			results[i] = worker.Failed(uuid.NewString(), input, output.path, output.err)
			continue
		}

		wg.Add(1)
		go func(i int, input, output string) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			results[i] = v.Runner.Run(ctx, input, output)
		}(i, input, output.path)
	}
	wg.Wait()

	summary := &Summary{Results: results, Elapsed: time.Since(starttime)}
	for _, r := range results {
		if r.Status == worker.StatusSuccess {
			summary.Success++
			continue
		}
		summary.Failed++
		logger.Wf(ctx, "file %v failed, %v", filepath.Base(r.Input), r.Reason)
	}
	logger.Tf(ctx, "batch done, files=%v, success=%v, failed=%v, cost=%v",
		len(files), summary.Success, summary.Failed, summary.Elapsed)
	return summary, nil
}

type output struct {
	path string
	err  error
}

// outputs maps inputs to output paths. Two inputs landing on the same output
// file, such as a.flac and a.wav, fail the later one instead of racing.
func (v *Batch) outputs(files []string) []output {
	owners := make(map[string]string)
	outputs := make([]output, len(files))
	for i, input := range files {
		path := audiofile.OutputPath(input, v.Output)
		if owner, ok := owners[path]; ok {
			outputs[i] = output{path: path, err: errors.Errorf("output %v already written for %v", path, owner)}
			continue
		}
		owners[path] = input
		outputs[i] = output{path: path}
	}
	return outputs
}
