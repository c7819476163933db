//go:build linux

package sys

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Grant is a no-op on linux: devpts creates the slave with the right owner
// and mode when the master is opened.
func (Host) Grant(int) error {
	return nil
}

func (Host) Unlock(fd int) error {
	err := retryOnEINTR(func() error {
		return unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0)
	})
	return os.NewSyscallError("ioctl TIOCSPTLCK", err)
}

func (Host) SlaveName(fd int) (string, error) {
	n, err := unix.IoctlGetUint32(fd, unix.TIOCGPTN)
	if err != nil {
		return "", os.NewSyscallError("ioctl TIOCGPTN", err)
	}
	return "/dev/pts/" + strconv.FormatUint(uint64(n), 10), nil
}

func (Host) Pipe() (int, int, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, os.NewSyscallError("pipe2", err)
	}
	return p[0], p[1], nil
}
