//go:build linux || darwin

package pty

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/PiranhaCodes/ptyhost/internal/sys"
)

// Backend is the readiness primitive a Multiplexer waits with.
type Backend int

const (
	BackendPoll Backend = iota
	BackendSelect
)

func (b Backend) String() string {
	if b == BackendSelect {
		return "select"
	}
	return "poll"
}

// ParseBackend parses "poll" or "select". "auto" and "" resolve through
// HostBackend.
func ParseBackend(v string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "auto":
		return HostBackend(), nil
	case "poll":
		return BackendPoll, nil
	case "select":
		return BackendSelect, nil
	}
	return BackendPoll, fmt.Errorf("unknown multiplexer backend %q (use auto, poll or select)", v)
}

// fdSetSize is FD_SETSIZE: select cannot watch descriptors at or above it.
const fdSetSize = 1024

// Multiplexer blocks until the master or the wake descriptor is readable.
type Multiplexer struct {
	os      sys.OS
	backend Backend
}

// NewMultiplexer returns a multiplexer bound to one backend for its lifetime.
func NewMultiplexer(o sys.OS, backend Backend) *Multiplexer {
	return &Multiplexer{os: o, backend: backend}
}

func (m *Multiplexer) Backend() Backend {
	return m.backend
}

// Wait reports whether fd has data. It returns false when it was woken
// through wakeFD or when the wait failed for any reason other than a
// transient one.
func (m *Multiplexer) Wait(wakeFD, fd int) bool {
	if m.backend == BackendSelect {
		return m.waitSelect(wakeFD, fd)
	}
	return m.waitPoll(wakeFD, fd)
}

func (m *Multiplexer) waitPoll(wakeFD, fd int) bool {
	fds := []unix.PollFd{
		{Fd: int32(wakeFD), Events: unix.POLLIN},
		{Fd: int32(fd), Events: unix.POLLIN},
	}
	for {
		n, err := m.os.Poll(fds, -1)
		if n > 0 {
			break
		}
		if err != nil && !isTransient(err) {
			return false
		}
	}
	return fds[1].Revents&unix.POLLIN != 0
}

func (m *Multiplexer) waitSelect(wakeFD, fd int) bool {
	if wakeFD >= fdSetSize || fd >= fdSetSize || wakeFD < 0 || fd < 0 {
		return false
	}
	var set unix.FdSet
	for {
		set.Zero()
		set.Set(wakeFD)
		set.Set(fd)
		n, err := m.os.Select(max(wakeFD, fd)+1, &set)
		if n > 0 {
			break
		}
		if err != nil && !isTransient(err) {
			return false
		}
	}
	return set.IsSet(fd)
}

func isTransient(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}
