//go:build linux || darwin

package pty

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/PiranhaCodes/ptyhost/internal/sys"
)

// noopLogger discards everything; sessions opened without WithLogger share it.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

type options struct {
	os        sys.OS
	backend   Backend
	backendOK bool
	strategy  AllocationStrategy
	logger    *logrus.Entry
}

// Option customizes Open.
type Option func(o *options)

// WithOS replaces the syscall facade.
func WithOS(o sys.OS) Option {
	return func(opts *options) { opts.os = o }
}

// WithBackend fixes the multiplexer backend instead of using HostBackend.
func WithBackend(b Backend) Option {
	return func(opts *options) {
		opts.backend = b
		opts.backendOK = true
	}
}

// WithStrategy selects the allocation strategy.
func WithStrategy(s AllocationStrategy) Option {
	return func(opts *options) { opts.strategy = s }
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *logrus.Entry) Option {
	return func(opts *options) { opts.logger = l }
}

func newOptions(opts []Option) *options {
	o := &options{os: sys.Host{}}
	for _, opt := range opts {
		opt(o)
	}
	if !o.backendOK {
		o.backend = HostBackend()
	}
	if o.logger == nil {
		o.logger = logrus.NewEntry(noopLogger)
	}
	return o
}
