package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/ossrs/go-oryx-lib/logger"

	"github.com/isanan39s/vstchain/internal/audiofile"
	"github.com/isanan39s/vstchain/internal/batch"
	"github.com/isanan39s/vstchain/internal/chain"
	"github.com/isanan39s/vstchain/internal/config"
	"github.com/isanan39s/vstchain/internal/job"
	"github.com/isanan39s/vstchain/internal/plugin"
	"github.com/isanan39s/vstchain/internal/worker"
)

// Overridden at build time with -ldflags "-X main.version=...".
var version = "v0.1.0"

func main() {
	ctx := logger.WithContext(context.Background())

	if err := doMain(ctx); err != nil {
		logger.Ef(ctx, "run err %+v", err)
		os.Exit(1)
	}
}

func doMain(ctx context.Context) error {
	if err := config.LoadEnv(".env"); err != nil {
		return err
	}

	conf, err := config.Parse(filepath.Base(os.Args[0]), os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Cause(err) == flag.ErrHelp {
			return nil
		}
		return err
	}

	if conf.ShowVersion {
		fmt.Println(strings.TrimPrefix(version, "v"))
		return nil
	}

	if err := conf.Validate(); err != nil {
		return errors.Wrapf(err, "invalid config")
	}

	spec, err := job.Load(conf.Job)
	if err != nil {
		return err
	}

	if conf.Worker != "" {
		return runWorker(ctx, conf, spec)
	}
	return runBatch(ctx, conf, spec)
}

// runWorker is the child side of an isolated file: it streams one file and
// prints the result for the parent.
func runWorker(ctx context.Context, conf *config.Config, spec chain.Spec) error {
	w := worker.New(worker.Options{
		Input:         conf.Worker,
		Output:        audiofile.OutputPath(conf.Worker, conf.Output),
		Spec:          spec,
		BlockSize:     conf.BufferSize,
		Loader:        plugin.OpenVST2,
		Info:          conf.Info,
		Verbose:       conf.Verbose,
		RemovePartial: conf.RemovePartial,
	})
	return batch.WriteResult(os.Stdout, w.Run(ctx))
}

func runBatch(ctx context.Context, conf *config.Config, spec chain.Spec) error {
	starttime := time.Now()
	fmt.Println("[ MAIN START ]")
	defer func() {
		fmt.Printf("[ MAIN END ] - Elapsed time: [ %v ]\n", formatElapsed(time.Since(starttime)))
	}()

	// Children are killed on a signal; in-process files finish their stream.
	ctx, stop := cancelOnSignal(ctx)
	defer stop()

	var runner batch.Runner
	if conf.Isolate {
		exe, err := os.Executable()
		if err != nil {
			return errors.Wrapf(err, "locate executable")
		}
		runner = &batch.Isolated{Executable: exe, Args: conf.WorkerArgs, Timeout: conf.Timeout, Stdout: os.Stdout}
	} else {
		runner = &batch.InProcess{
			Spec:          spec,
			BlockSize:     conf.BufferSize,
			Loader:        plugin.OpenVST2,
			Info:          conf.Info,
			Verbose:       conf.Verbose,
			RemovePartial: conf.RemovePartial,
		}
	}
	logger.Tf(ctx, "run version=%v, folder=%v, job=%v, output=%v, buffersize=%v, isolate=%v, stages=%v",
		version, conf.Folder, conf.Job, conf.Output, conf.BufferSize, conf.Isolate, len(spec.Stages))

	b := &batch.Batch{Folder: conf.Folder, Output: conf.Output, Jobs: conf.Jobs, Runner: runner}
	if _, err := b.Run(ctx); err != nil {
		return errors.Wrapf(err, "run batch")
	}
	return nil
}

// cancelOnSignal returns a context canceled by SIGINT or SIGTERM. stop
// restores the default signal handling and waits for the watcher to exit.
func cancelOnSignal(ctx context.Context) (context.Context, func()) {
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case s := <-sc:
			logger.Tf(ctx, "Got signal %v", s)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sc)
		cancel()
		<-done
	}
}

// formatElapsed prints d as h:mm:ss, dropping fractions of a second.
func formatElapsed(d time.Duration) string {
	s := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
}
