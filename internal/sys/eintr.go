//go:build linux || darwin

package sys

import (
	"errors"

	"golang.org/x/sys/unix"
)

// retryOnEINTR2 calls fn until the error it returns is not EINTR.
func retryOnEINTR2[T any](fn func() (T, error)) (T, error) {
	for {
		v, err := fn()
		if !errors.Is(err, unix.EINTR) {
			return v, err
		}
	}
}

// retryOnEINTR is retryOnEINTR2 for calls with no result value.
func retryOnEINTR(fn func() error) error {
	_, err := retryOnEINTR2(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
