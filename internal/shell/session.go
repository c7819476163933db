//go:build linux || darwin

// Package shell runs interactive shells on PTYs allocated by the pty package
// and keeps their recent output for clients that poll.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sys/unix"

	"github.com/PiranhaCodes/ptyhost/internal/groutine"
	"github.com/PiranhaCodes/ptyhost/internal/pty"
)

const (
	readChunk = 4096
	// exitDrainDelay bounds how long output of an exited shell is still
	// collected before the PTY is closed.
	exitDrainDelay = 200 * time.Millisecond
	// reapTimeout bounds the wait for a shell after SIGKILL.
	reapTimeout = 5 * time.Second
)

// Session is a shell process attached to a PTY.
type Session struct {
	ID        string
	Shell     string
	Cmd       *exec.Cmd
	PTY       *pty.Session
	StartedAt time.Time

	logger  *logrus.Entry
	manager *Manager
	grace   time.Duration

	outMu  sync.Mutex
	output *ringbuffer.RingBuffer

	// transcript is written only by the read loop and closed after it ends.
	transcript *os.File

	readDone chan struct{}
	exited   chan struct{}
	exitCode int

	releaseOnce sync.Once
	cleanupOnce sync.Once
}

// Status is a snapshot of a session for listing.
type Status struct {
	ID        string    `json:"id"`
	Pid       int       `json:"pid"`
	Shell     string    `json:"shell"`
	Slave     string    `json:"slave"`
	Running   bool      `json:"running"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Buffered  int       `json:"buffered"`
	StartedAt time.Time `json:"started_at"`
}

// Pid returns the shell's process id, or 0 before it started.
func (s *Session) Pid() int {
	if s.Cmd == nil || s.Cmd.Process == nil {
		return 0
	}
	return s.Cmd.Process.Pid
}

// Running reports whether the shell has not exited yet.
func (s *Session) Running() bool {
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// Write sends input to the shell.
func (s *Session) Write(p []byte) (int, error) {
	return s.PTY.Write(p)
}

// Resize changes the terminal geometry seen by the shell.
func (s *Session) Resize(cols, rows int) error {
	ws, err := winSize(cols, rows)
	if err != nil {
		return err
	}
	return s.PTY.SetWindowSize(ws, s)
}

func winSize(cols, rows int) (pty.WinSize, error) {
	if cols < 0 || rows < 0 || cols > math.MaxUint16 || rows > math.MaxUint16 {
		return pty.WinSize{}, fmt.Errorf("terminal size %dx%d out of range", cols, rows)
	}
	return pty.WinSize{Cols: uint16(cols), Rows: uint16(rows)}, nil
}

// Size returns the current terminal geometry.
func (s *Session) Size() (pty.WinSize, error) {
	return s.PTY.GetWinSize(s)
}

// Drain removes and returns up to max bytes of buffered output, oldest
// first. max <= 0 drains everything.
func (s *Session) Drain(max int) []byte {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	n := s.output.Length()
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	got, err := s.output.TryRead(buf)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		s.logger.WithError(err).Warn("scrollback read failed")
	}
	return buf[:got]
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	st := Status{
		ID:        s.ID,
		Pid:       s.Pid(),
		Shell:     s.Shell,
		Slave:     s.PTY.SlaveName(),
		Running:   s.Running(),
		StartedAt: s.StartedAt,
	}
	if !st.Running {
		code := s.exitCode
		st.ExitCode = &code
	}
	s.outMu.Lock()
	st.Buffered = s.output.Length()
	s.outMu.Unlock()
	return st
}

// appendOutput stores p in the scrollback, dropping the oldest bytes when
// it does not fit.
func (s *Session) appendOutput(p []byte) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	capacity := s.output.Capacity()
	if len(p) > capacity {
		p = p[len(p)-capacity:]
	}
	if over := len(p) - (capacity - s.output.Length()); over > 0 {
		discard := make([]byte, over)
		if _, err := s.output.TryRead(discard); err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			s.logger.WithError(err).Warn("scrollback trim failed")
		}
	}
	if _, err := s.output.Write(p); err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		s.logger.WithError(err).Warn("scrollback write failed")
	}
}

func (s *Session) readLoop(ctx context.Context) {
	logger := s.logger.WithField("goroutine", groutine.Name(ctx))
	defer s.release()
	defer close(s.readDone)

	buf := make([]byte, readChunk)
	for {
		n, err := s.PTY.Read(buf)
		if n > 0 {
			s.appendOutput(buf[:n])
			if s.transcript != nil {
				if _, werr := s.transcript.Write(buf[:n]); werr != nil {
					logger.WithError(werr).Warn("transcript write failed")
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("pty closed")
			} else {
				logger.WithError(err).Warn("pty read failed")
			}
			return
		}
	}
}

func (s *Session) waitLoop(ctx context.Context) {
	err := s.Cmd.Wait()
	if s.Cmd.ProcessState != nil {
		s.exitCode = s.Cmd.ProcessState.ExitCode()
	}
	close(s.exited)

	entry := s.logger.WithFields(logrus.Fields{
		"goroutine": groutine.Name(ctx),
		"exit_code": s.exitCode,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("shell exited")

	// A held slave keeps the master from ever reporting hangup.
	select {
	case <-s.readDone:
	case <-time.After(exitDrainDelay):
		if err := s.PTY.Close(); err != nil {
			s.logger.WithError(err).Warn("close pty after exit")
		}
	}
}

// release stops the shell if it is still running and closes the PTY and
// the transcript. The session stays registered so its scrollback and exit
// code remain readable until Cleanup.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.terminate()
		if err := s.PTY.Close(); err != nil {
			s.logger.WithError(err).Warn("close pty")
		}
		<-s.readDone

		if s.transcript != nil {
			if err := s.transcript.Close(); err != nil {
				s.logger.WithError(err).Warn("close transcript")
			}
		}
	})
}

// Finished reports whether the shell has exited and all its output has been
// collected.
func (s *Session) Finished() bool {
	select {
	case <-s.readDone:
		return !s.Running()
	default:
		return false
	}
}

// Cleanup releases the session and removes it from its manager. Only the
// first call does anything; later calls wait for it to finish.
func (s *Session) Cleanup() {
	s.cleanupOnce.Do(func() {
		s.logger.Info("cleaning up session")
		s.release()
		if s.manager != nil {
			s.manager.Remove(s.ID)
		}
		s.logger.Info("session cleaned up")
	})
}

// terminate sends SIGTERM to the shell's process group, escalating to
// SIGKILL after the grace period.
func (s *Session) terminate() {
	if !s.Running() {
		return
	}
	pid := s.Pid()
	if err := pty.Raise(pid, unix.SIGTERM); err != nil {
		s.logger.WithError(err).Warn("SIGTERM failed")
	}
	select {
	case <-s.exited:
		return
	case <-time.After(s.grace):
	}

	s.logger.WithField("grace", s.grace).Warn("shell ignored SIGTERM, sending SIGKILL")
	if err := pty.Raise(pid, unix.SIGKILL); err != nil {
		s.logger.WithError(err).Warn("SIGKILL failed")
	}
	select {
	case <-s.exited:
	case <-time.After(reapTimeout):
		s.logger.Error("shell not reaped after SIGKILL")
	}
}
