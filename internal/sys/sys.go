//go:build linux || darwin

// Package sys is the thin syscall boundary used by the pty core. Everything
// the core needs from the kernel goes through the OS interface so that the
// session and allocator logic can be exercised against a fake.
package sys

import (
	"os"

	"golang.org/x/sys/unix"
)

// OS is the set of primitives the pty core depends on. Failures are returned
// as errors wrapping the underlying unix.Errno.
type OS interface {
	OpenMaster() (int, error)
	Grant(fd int) error
	Unlock(fd int) error
	// SlaveName is not safe for concurrent use; callers serialize it.
	SlaveName(fd int) (string, error)

	Open(path string, flags int) (int, error)
	Close(fd int) error
	Dup(fd int) (int, error)
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
	Pipe() (r, w int, err error)

	Poll(fds []unix.PollFd, timeoutMs int) (int, error)
	Select(nfd int, r *unix.FdSet) (int, error)

	Kill(pid int, sig unix.Signal) error
	Killpg(pgid int, sig unix.Signal) error

	GetWinsize(fd int) (*unix.Winsize, error)
	SetWinsize(fd int, ws *unix.Winsize) error

	Uname() (sysname, release string, err error)
}

// Host implements OS on top of golang.org/x/sys/unix.
type Host struct{}

var _ OS = Host{}

// PtmxPath is the multiplexer device opened by OpenMaster.
const PtmxPath = "/dev/ptmx"

func (Host) OpenMaster() (int, error) {
	return Host{}.Open(PtmxPath, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC)
}

func (Host) Open(path string, flags int) (int, error) {
	fd, err := retryOnEINTR2(func() (int, error) {
		return unix.Open(path, flags, 0)
	})
	if err != nil {
		return -1, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return fd, nil
}

// Close is never retried: on linux the descriptor is released even when
// close reports EINTR.
func (Host) Close(fd int) error {
	return os.NewSyscallError("close", unix.Close(fd))
}

func (Host) Dup(fd int) (int, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, os.NewSyscallError("fcntl", err)
	}
	return nfd, nil
}

func (Host) Read(fd int, p []byte) (int, error) {
	n, err := retryOnEINTR2(func() (int, error) {
		return unix.Read(fd, p)
	})
	return n, os.NewSyscallError("read", err)
}

func (Host) Write(fd int, p []byte) (int, error) {
	n, err := retryOnEINTR2(func() (int, error) {
		return unix.Write(fd, p)
	})
	return n, os.NewSyscallError("write", err)
}

// Poll and Select return the raw errno so the caller decides what to retry.
func (Host) Poll(fds []unix.PollFd, timeoutMs int) (int, error) {
	return unix.Poll(fds, timeoutMs)
}

func (Host) Select(nfd int, r *unix.FdSet) (int, error) {
	return unix.Select(nfd, r, nil, nil, nil)
}

func (Host) Kill(pid int, sig unix.Signal) error {
	return os.NewSyscallError("kill", unix.Kill(pid, sig))
}

func (Host) Killpg(pgid int, sig unix.Signal) error {
	return os.NewSyscallError("killpg", unix.Kill(-pgid, sig))
}

func (Host) GetWinsize(fd int) (*unix.Winsize, error) {
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return nil, os.NewSyscallError("ioctl TIOCGWINSZ", err)
	}
	return ws, nil
}

func (Host) SetWinsize(fd int, ws *unix.Winsize) error {
	return os.NewSyscallError("ioctl TIOCSWINSZ", unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, ws))
}

func (Host) Uname() (string, string, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", "", os.NewSyscallError("uname", err)
	}
	return unix.ByteSliceToString(u.Sysname[:]), unix.ByteSliceToString(u.Release[:]), nil
}
