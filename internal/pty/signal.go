//go:build linux || darwin

package pty

import (
	"golang.org/x/sys/unix"

	"github.com/PiranhaCodes/ptyhost/internal/sys"
)

// Raise delivers sig to the process group led by pid, falling back to the
// single process when group delivery fails. The error of the last attempt
// is returned.
func Raise(pid int, sig unix.Signal) error {
	return RaiseWith(sys.Host{}, pid, sig)
}

// RaiseWith is Raise on an explicit facade.
func RaiseWith(o sys.OS, pid int, sig unix.Signal) error {
	if err := o.Killpg(pid, sig); err != nil {
		return o.Kill(pid, sig)
	}
	return nil
}
