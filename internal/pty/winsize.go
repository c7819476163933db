//go:build linux || darwin

package pty

import (
	"os"

	ptylib "github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// WinSize is the terminal geometry: character cells plus optional pixels.
type WinSize = ptylib.Winsize

// Owner is the process attached to the slave side, if any.
type Owner interface {
	Pid() int
}

// PID adapts a bare process id to Owner.
type PID int

func (p PID) Pid() int { return int(p) }

// SetWindowSize sets the geometry of the terminal. owner may be nil.
//
// Only meaningful for non-console sessions. Every failure is returned; only
// the first syscall failure on a session is logged.
func (s *Session) SetWindowSize(ws WinSize, owner Owner) error {
	if err := s.checkGeometry(); err != nil {
		return s.sizeError("set", owner, err)
	}
	err := s.os.SetWinsize(s.MasterFD(), &unix.Winsize{
		Row:    ws.Rows,
		Col:    ws.Cols,
		Xpixel: ws.X,
		Ypixel: ws.Y,
	})
	if err != nil {
		return s.logSizeError(s.sizeError("set", owner, err))
	}
	return nil
}

// GetWinSize returns the current geometry of the terminal. owner may be nil.
func (s *Session) GetWinSize(owner Owner) (WinSize, error) {
	if err := s.checkGeometry(); err != nil {
		return WinSize{}, s.sizeError("get", owner, err)
	}
	ws, err := s.os.GetWinsize(s.MasterFD())
	if err != nil {
		return WinSize{}, s.logSizeError(s.sizeError("get", owner, err))
	}
	return WinSize{Rows: ws.Row, Cols: ws.Col, X: ws.Xpixel, Y: ws.Ypixel}, nil
}

func (s *Session) checkGeometry() error {
	if s.console {
		return ErrConsole
	}
	if s.IsClosed() {
		return os.ErrClosed
	}
	return nil
}

func (s *Session) sizeError(op string, owner Owner, err error) *WindowSizeError {
	werr := &WindowSizeError{Op: op, Err: err}
	if owner != nil {
		werr.Pid = owner.Pid()
		werr.Alive = werr.Pid > 0 && s.os.Kill(werr.Pid, 0) == nil
	}
	return werr
}

func (s *Session) logSizeError(err *WindowSizeError) error {
	if s.sizeErrLogged.CompareAndSwap(false, true) {
		s.logger.WithError(err).Warn("window size ioctl failed, further failures on this pty are not logged")
	}
	return err
}
