//go:build linux || darwin

package pty

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	ptylib "github.com/creack/pty"

	"github.com/PiranhaCodes/ptyhost/internal/sys"
)

// slaveNameMu serializes slave name resolution for the whole process.
// ptsname(3) returns a pointer to static storage and is not reentrant, so
// every allocator, whatever session it serves, must take this lock.
var slaveNameMu sync.Mutex

// AllocationStrategy selects how a master/slave pair is obtained.
type AllocationStrategy int

const (
	// StrategyAuto resolves to StrategyPtmx. creack/pty opens /dev/ptmx
	// itself on linux and darwin, so openpty cannot succeed where ptmx
	// failed and is never picked automatically.
	StrategyAuto AllocationStrategy = iota
	// StrategyPtmx runs the open/grant/unlock/ptsname protocol on /dev/ptmx.
	StrategyPtmx
	// StrategyOpenpty delegates to creack/pty.
	StrategyOpenpty
)

func (s AllocationStrategy) String() string {
	switch s {
	case StrategyPtmx:
		return "ptmx"
	case StrategyOpenpty:
		return "openpty"
	default:
		return "auto"
	}
}

// ParseStrategy parses the names produced by String.
func ParseStrategy(v string) (AllocationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "auto":
		return StrategyAuto, nil
	case "ptmx":
		return StrategyPtmx, nil
	case "openpty":
		return StrategyOpenpty, nil
	}
	return StrategyAuto, fmt.Errorf("unknown allocation strategy %q (use auto, ptmx or openpty)", v)
}

// Allocator creates master/slave pairs.
type Allocator struct {
	os       sys.OS
	strategy AllocationStrategy
	openpty  func() (*os.File, *os.File, error)
}

// NewAllocator returns an allocator using the given facade and strategy.
// StrategyAuto is resolved immediately.
func NewAllocator(o sys.OS, strategy AllocationStrategy) *Allocator {
	if strategy == StrategyAuto {
		strategy = StrategyPtmx
	}
	return &Allocator{os: o, strategy: strategy, openpty: ptylib.Open}
}

// Strategy reports the resolved strategy.
func (a *Allocator) Strategy() AllocationStrategy {
	return a.strategy
}

// Allocate returns an open master descriptor and the slave device path.
// Failures are *AllocationError; the master is released on every failure
// after it has been acquired.
func (a *Allocator) Allocate() (int, string, error) {
	if a.strategy == StrategyOpenpty {
		return a.allocateOpenpty()
	}
	return a.allocatePtmx()
}

func (a *Allocator) allocatePtmx() (int, string, error) {
	fd, err := a.os.OpenMaster()
	if err != nil {
		return -1, "", &AllocationError{Stage: StageOpenMaster, Err: err}
	}
	if err := a.os.Grant(fd); err != nil {
		return -1, "", a.release(fd, StageGrant, err)
	}
	if err := a.os.Unlock(fd); err != nil {
		return -1, "", a.release(fd, StageUnlock, err)
	}

	slaveNameMu.Lock()
	name, err := a.os.SlaveName(fd)
	slaveNameMu.Unlock()
	if err == nil && name == "" {
		err = errors.New("empty slave name")
	}
	if err != nil {
		return -1, "", a.release(fd, StageNameResolve, err)
	}
	return fd, name, nil
}

func (a *Allocator) allocateOpenpty() (int, string, error) {
	// creack/pty resolves the slave name internally.
	slaveNameMu.Lock()
	master, slave, err := a.openpty()
	slaveNameMu.Unlock()
	if err != nil {
		return -1, "", &AllocationError{Stage: StageOpenMaster, Err: err}
	}
	defer master.Close()
	defer slave.Close()

	name := slave.Name()
	if name == "" {
		return -1, "", &AllocationError{Stage: StageNameResolve, Err: errors.New("empty slave name")}
	}
	fd, err := a.os.Dup(int(master.Fd()))
	if err != nil {
		return -1, "", &AllocationError{Stage: StageOpenMaster, Err: err}
	}
	return fd, name, nil
}

func (a *Allocator) release(fd int, stage Stage, cause error) error {
	if err := a.os.Close(fd); err != nil {
		cause = errors.Join(cause, err)
	}
	return &AllocationError{Stage: stage, Err: cause}
}
