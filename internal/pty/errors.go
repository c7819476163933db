//go:build linux || darwin

package pty

import (
	"errors"
	"fmt"
)

// Stage identifies the step of PTY allocation that failed.
type Stage string

const (
	StageOpenMaster  Stage = "open-master"
	StageGrant       Stage = "grant"
	StageUnlock      Stage = "unlock"
	StageNameResolve Stage = "name-resolve"
)

// AllocationError is returned when a PTY could not be allocated. It is never
// retried; it means descriptor exhaustion or a permission problem.
type AllocationError struct {
	Stage Stage
	Err   error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("pty allocation failed at %s: %v", e.Stage, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// ErrConsole is wrapped by WindowSizeError when geometry is requested on a
// console session.
var ErrConsole = errors.New("window size is not available on a console pty")

// WindowSizeError reports a failed geometry get or set.
type WindowSizeError struct {
	Op    string // "get" or "set"
	Pid   int    // owner pid, 0 when no owner was given
	Alive bool   // owner liveness at the time of failure
	Err   error
}

func (e *WindowSizeError) Error() string {
	if e.Pid == 0 {
		return fmt.Sprintf("%s window size: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s window size (pid %d, alive %t): %v", e.Op, e.Pid, e.Alive, e.Err)
}

func (e *WindowSizeError) Unwrap() error { return e.Err }
