package nkdi

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables read by LoadOptions.
const (
	EnvSingleThreaded = "NKDI_SINGLE_THREADED"
	EnvWorkers        = "NKDI_WORKERS"
	EnvLogLevel       = "NKDI_LOG_LEVEL"
)

// Options configures a Container.
type Options struct {
	// Logger receives warnings and debug records. Defaults to slog.Default().
	Logger *slog.Logger

	// SingleThreaded makes ResolveRegisteredInstances run sequentially.
	SingleThreaded bool

	// Workers bounds the parallel warm-up. Defaults to GOMAXPROCS.
	Workers int
}

// Option modifies Options when building a Container.
type Option func(*Options)

// WithLogger sets the logger used by the container.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithSingleThreaded forces sequential warm-up.
func WithSingleThreaded(singleThreaded bool) Option {
	return func(o *Options) {
		o.SingleThreaded = singleThreaded
	}
}

// WithWorkers bounds the number of goroutines used by the warm-up.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithOptions applies every set field of opts, typically from LoadOptions.
func WithOptions(opts Options) Option {
	return func(o *Options) {
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
		if opts.Workers > 0 {
			o.Workers = opts.Workers
		}
		o.SingleThreaded = o.SingleThreaded || opts.SingleThreaded
	}
}

func newOptions(opts ...Option) Options {
	o := Options{
		Workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o
}

// LoadOptions reads Options from the environment. The given .env files are
// loaded first and must exist; with no files, a .env in the working directory
// is loaded when present. Variables already set in the environment win.
//
//	NKDI_SINGLE_THREADED=true
//	NKDI_WORKERS=4
//	NKDI_LOG_LEVEL=debug
func LoadOptions(files ...string) (Options, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Options{}, fmt.Errorf("load env files: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Options{}, fmt.Errorf("load .env: %w", err)
	}

	var opts Options

	singleThreaded, err := envBool(EnvSingleThreaded, false)
	if err != nil {
		return Options{}, err
	}
	opts.SingleThreaded = singleThreaded

	workers, err := envInt(EnvWorkers, 0)
	if err != nil {
		return Options{}, err
	}
	opts.Workers = workers

	if v := os.Getenv(EnvLogLevel); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return Options{}, fmt.Errorf("parse %s: %w", EnvLogLevel, err)
		}
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	return opts, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: %w", key, err)
	}
	return i, nil
}
