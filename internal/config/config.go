// Package config builds the run configuration from command line flags, with
// defaults taken from the environment and an optional .env file.
package config

import (
	"flag"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/ossrs/go-oryx-lib/errors"
)

const (
	MinBufferSize     = 1024
	MaxBufferSize     = 65536
	DefaultBufferSize = 8096
)

// Config is one run of the tool.
type Config struct {
	Folder     string
	Job        string
	Output     string
	BufferSize int
	Verbose    bool
	Info       bool

	Jobs          int
	Isolate       bool
	Timeout       time.Duration
	RemovePartial bool

	ShowVersion bool
	// Worker is the single input file of a child process; empty in the parent.
	Worker string
}

// LoadEnv loads envFile into the process environment when it exists.
// Variables already set are left untouched.
func LoadEnv(envFile string) error {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "load %v", envFile)
	}
	return nil
}

// Parse parses args, excluding the program name.
func Parse(name string, args []string, output io.Writer) (*Config, error) {
	bufferSize, err := envInt("VSTCHAIN_BUFFERSIZE", DefaultBufferSize)
	if err != nil {
		return nil, err
	}
	jobs, err := envInt("VSTCHAIN_JOBS", 0)
	if err != nil {
		return nil, err
	}

	v := &Config{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	folder := envString("VSTCHAIN_FOLDER", ".")
	fs.StringVar(&v.Folder, "f", folder, "The folder of input audio files")
	fs.StringVar(&v.Folder, "folder", folder, "The folder of input audio files")
	fs.StringVar(&v.Job, "j", "", "The JSON job file describing the plugin chain")
	fs.StringVar(&v.Job, "job", "", "The JSON job file describing the plugin chain")
	outDir := envString("VSTCHAIN_OUTPUT", "./out")
	fs.StringVar(&v.Output, "o", outDir, "The output folder, created if absent")
	fs.StringVar(&v.Output, "output", outDir, "The output folder, created if absent")
	fs.IntVar(&v.BufferSize, "b", bufferSize, "The block size in frames")
	fs.IntVar(&v.BufferSize, "buffersize", bufferSize, "The block size in frames")
	fs.BoolVar(&v.Verbose, "verbose", false, "Whether log every processed block")
	fs.BoolVar(&v.Info, "i", false, "Whether dump the parameters of each loaded plugin")
	fs.BoolVar(&v.Info, "info", false, "Whether dump the parameters of each loaded plugin")
	fs.IntVar(&v.Jobs, "jobs", jobs, "The max number of concurrent files, 0 for all at once")
	fs.BoolVar(&v.Isolate, "isolate", true, "Whether process each file in its own child process")
	fs.DurationVar(&v.Timeout, "timeout", 0, "The wall time limit of each isolated file, 0 for none")
	fs.BoolVar(&v.RemovePartial, "remove-partial", false, "Whether remove the output of a file that failed midway")
	fs.BoolVar(&v.ShowVersion, "v", false, "Print version and quit")
	fs.BoolVar(&v.ShowVersion, "version", false, "Print version and quit")
	fs.StringVar(&v.Worker, "worker", "", "Internal: process the single input file and print the result as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrapf(err, "parse flags")
	}
	if fs.NArg() > 0 {
		return nil, errors.Errorf("unexpected arguments %v", fs.Args())
	}
	return v, nil
}

// Validate checks the configuration before anything is launched.
func (v *Config) Validate() error {
	if v.BufferSize < MinBufferSize || v.BufferSize > MaxBufferSize {
		return errors.Errorf("buffersize %v out of [%v, %v]", v.BufferSize, MinBufferSize, MaxBufferSize)
	}
	if v.Job == "" {
		return errors.New("no job file, see -job")
	}
	if v.Output == "" {
		return errors.New("no output folder")
	}
	if v.Jobs < 0 {
		return errors.Errorf("invalid jobs %v", v.Jobs)
	}
	if v.Timeout < 0 {
		return errors.Errorf("invalid timeout %v", v.Timeout)
	}

	// A child only reads its own file.
	if v.Worker != "" {
		return nil
	}

	if info, err := os.Stat(v.Folder); err != nil {
		return errors.Wrapf(err, "input folder")
	} else if !info.IsDir() {
		return errors.Errorf("input folder %v is not a directory", v.Folder)
	}
	return nil
}

// WorkerArgs returns the arguments of a child process handling input.
func (v *Config) WorkerArgs(input string) []string {
	args := []string{
		"-worker", input,
		"-folder", v.Folder,
		"-job", v.Job,
		"-output", v.Output,
		"-buffersize", strconv.Itoa(v.BufferSize),
	}
	if v.Verbose {
		args = append(args, "-verbose")
	}
	if v.Info {
		args = append(args, "-info")
	}
	if v.RemovePartial {
		args = append(args, "-remove-partial")
	}
	return args
}

func envString(key, dflt string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return dflt
}

func envInt(key string, dflt int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return dflt, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %v=%v", key, value)
	}
	return n, nil
}
