package kbdpatch

import (
	"go.uber.org/zap"
)

// Options holds the tunables of a patch run, built from CLI flags (or test
// defaults) via the functional-option constructors below, mirroring the
// wOption/rOption pattern the teacher uses for its reader/writer.
type Options struct {
	Logger      *zap.Logger
	SafetyCap   int
	BackupPath  string
	Concurrency int
}

// Option mutates an in-progress Options during NewOptions.
type Option func(*Options)

// WithLogger sets the zap logger used for structured progress output.
// Defaults to zap.NewNop() when unset.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithSafetyCap overrides DefaultSafetyCap.
func WithSafetyCap(n int) Option {
	return func(o *Options) { o.SafetyCap = n }
}

// WithBackupPath directs ApplyPatch to copy the target to path before mutating it.
// An empty path (the default) skips the backup copy.
func WithBackupPath(path string) Option {
	return func(o *Options) { o.BackupPath = path }
}

// WithConcurrency bounds how many candidate frames are decoded at once.
func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = n }
}

// NewOptions applies opts over sane defaults.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		Logger:      zap.NewNop(),
		SafetyCap:   DefaultSafetyCap,
		Concurrency: 1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
