//go:build darwin

package sys

import (
	"errors"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

func (Host) Grant(fd int) error {
	err := retryOnEINTR(func() error {
		return unix.IoctlSetInt(fd, unix.TIOCPTYGRANT, 0)
	})
	return os.NewSyscallError("ioctl TIOCPTYGRANT", err)
}

func (Host) Unlock(fd int) error {
	err := retryOnEINTR(func() error {
		return unix.IoctlSetInt(fd, unix.TIOCPTYUNLK, 0)
	})
	return os.NewSyscallError("ioctl TIOCPTYUNLK", err)
}

// SlaveName fills a 128 byte buffer, the size TIOCPTYGNAME encodes.
func (Host) SlaveName(fd int) (string, error) {
	var buf [128]byte
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(unix.TIOCPTYGNAME), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return "", os.NewSyscallError("ioctl TIOCPTYGNAME", errno)
	}
	name := unix.ByteSliceToString(buf[:])
	if name == "" {
		return "", errors.New("ioctl TIOCPTYGNAME: empty name")
	}
	return name, nil
}

func (Host) Pipe() (int, int, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return -1, -1, os.NewSyscallError("pipe", err)
	}
	unix.CloseOnExec(p[0])
	unix.CloseOnExec(p[1])
	return p[0], p[1], nil
}
