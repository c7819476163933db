//go:build linux || darwin

package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/PiranhaCodes/ptyhost/internal/sys"
)

const (
	stateOpen int32 = iota
	stateClosing
	stateClosed
)

// Session owns one PTY master, an optional slave keep-alive descriptor and
// the wake pipe used to interrupt Read. It implements io.ReadWriteCloser.
type Session struct {
	os     sys.OS
	mux    *Multiplexer
	logger *logrus.Entry

	// state only moves forward: open -> closing -> closed. The goroutine
	// that wins open -> closing is the only one issuing close syscalls.
	state  atomic.Int32
	master atomic.Int32
	slave  atomic.Int32

	// waitMu is held for the whole duration of a multiplexer wait. The wake
	// pipe descriptors are only closed while holding it.
	waitMu       sync.Mutex
	wakeR, wakeW int

	slaveName string
	console   bool

	sizeErrLogged atomic.Bool
}

// Open allocates a PTY and returns a session owning its master side.
//
// With preserveOutput set, the slave is additionally opened read-only and
// held until Close, so output written by a child that has already exited
// can still be read from the master.
func Open(console, preserveOutput bool, opts ...Option) (*Session, error) {
	o := newOptions(opts)

	fd, name, err := NewAllocator(o.os, o.strategy).Allocate()
	if err != nil {
		return nil, err
	}
	r, w, err := o.os.Pipe()
	if err != nil {
		if cerr := o.os.Close(fd); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, fmt.Errorf("create wake pipe: %w", err)
	}

	s := &Session{
		os:        o.os,
		mux:       NewMultiplexer(o.os, o.backend),
		logger:    o.logger.WithField("slave", name),
		wakeR:     r,
		wakeW:     w,
		slaveName: name,
		console:   console,
	}
	s.master.Store(int32(fd))
	s.slave.Store(-1)

	if preserveOutput {
		sfd, err := o.os.Open(name, unix.O_RDONLY|unix.O_NOCTTY|unix.O_CLOEXEC)
		if err != nil {
			s.logger.WithError(err).Warn("cannot hold slave open, output written after child exit may be lost")
		} else {
			s.slave.Store(int32(sfd))
		}
	}
	return s, nil
}

// MasterFD returns the master descriptor, or -1 once the session is closed.
func (s *Session) MasterFD() int {
	return int(s.master.Load())
}

// SlaveName returns the slave device path, e.g. /dev/pts/3.
func (s *Session) SlaveName() string {
	return s.slaveName
}

// IsConsole reports whether the session was opened for console use.
func (s *Session) IsConsole() bool {
	return s.console
}

// Backend reports the multiplexer backend the session waits with.
func (s *Session) Backend() Backend {
	return s.mux.Backend()
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	return s.state.Load() != stateOpen
}

// Read blocks until the master has data or the session is closed. It
// returns io.EOF once the session is closed, when a concurrent Close woke
// it, or when the slave side has hung up. Only one Read waits at a time;
// concurrent callers queue behind it.
func (s *Session) Read(p []byte) (int, error) {
	if s.IsClosed() {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	// waitMu covers the read syscall too: Close releases the master only
	// while holding it, so fd cannot be closed and reused underneath us.
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	if s.wakeR < 0 || s.IsClosed() {
		return 0, io.EOF
	}
	fd := s.MasterFD()
	if !s.mux.Wait(s.wakeR, fd) || s.IsClosed() {
		return 0, io.EOF
	}
	n, err := s.os.Read(fd, p)
	if err != nil {
		// linux reports a hung-up slave as EIO on the master.
		if errors.Is(err, unix.EIO) {
			return 0, io.EOF
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write writes all of p to the master. It returns os.ErrClosed without
// touching the descriptor once the session is closed.
func (s *Session) Write(p []byte) (int, error) {
	written := 0
	for {
		if s.IsClosed() {
			return written, os.ErrClosed
		}
		if written == len(p) {
			return written, nil
		}
		n, err := s.os.Write(s.MasterFD(), p[written:])
		if n > 0 {
			written += n
		}
		// The master is opened blocking, so EAGAIN only shows up if a
		// caller changed its mode; retrying immediately is enough.
		if err != nil && !isTransient(err) {
			return written, err
		}
	}
}

// Close releases every descriptor the session owns and wakes a blocked
// Read. It is safe to call concurrently and repeatedly; only the first call
// does any work. The session is closed after the first call even when a
// close syscall fails; such failures are returned.
func (s *Session) Close() error {
	if !s.state.CompareAndSwap(stateOpen, stateClosing) {
		return nil
	}
	var errs []error

	s.wake()

	// Blocks until an in-flight Read has observed the wake byte or finished
	// its read syscall.
	s.waitMu.Lock()
	if fd := s.master.Swap(-1); fd >= 0 {
		if err := s.os.Close(int(fd)); err != nil {
			errs = append(errs, err)
		}
	}
	s.closeQuietly(s.wakeR)
	s.closeQuietly(s.wakeW)
	s.wakeR, s.wakeW = -1, -1
	s.waitMu.Unlock()

	if fd := s.slave.Swap(-1); fd >= 0 {
		if err := s.os.Close(int(fd)); err != nil {
			errs = append(errs, err)
		}
	}

	s.state.Store(stateClosed)
	return errors.Join(errs...)
}

func (s *Session) wake() {
	if _, err := s.os.Write(s.wakeW, []byte{0}); err != nil {
		s.logger.WithError(err).Debug("wake write failed")
	}
}

func (s *Session) closeQuietly(fd int) {
	if fd < 0 {
		return
	}
	if err := s.os.Close(fd); err != nil {
		s.logger.WithError(err).Debug("close wake pipe")
	}
}
