//go:build linux || darwin

package pty

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/PiranhaCodes/ptyhost/internal/sys"
)

// fakeOS records every call and lets tests inject failures.
type fakeOS struct {
	mu     sync.Mutex
	nextFD int
	calls  map[string]int
	closes map[int]int
	writes map[int]int

	openMasterErr, grantErr, unlockErr, nameErr error
	emptyName                                   bool
	nameDelay                                   time.Duration
	nameInFlight, nameMaxInFlight               atomic.Int32

	pipeErr   error
	openErr   error
	closeErrs map[int]error

	// waitErrs are returned by Poll/Select, in order, before the wait
	// reports readiness. masterReady selects which descriptor is ready.
	waitErrs    []error
	masterReady bool

	readData []byte
	readErr  error

	winsize    unix.Winsize
	winsizeErr error

	killpgErr, killErr error
	alive              map[int]bool
	wakeFDs            map[int]bool
}

var _ sys.OS = (*fakeOS)(nil)

func newFakeOS() *fakeOS {
	return &fakeOS{
		nextFD:    10,
		calls:     map[string]int{},
		closes:    map[int]int{},
		writes:    map[int]int{},
		closeErrs: map[int]error{},
		alive:     map[int]bool{},
		wakeFDs:   map[int]bool{},
	}
}

func (f *fakeOS) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeOS) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeOS) closeCount(fd int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes[fd]
}

func (f *fakeOS) writeCount(fd int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[fd]
}

func (f *fakeOS) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeOS) allocFD() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd := f.nextFD
	f.nextFD++
	return fd
}

func (f *fakeOS) OpenMaster() (int, error) {
	f.record("openMaster")
	if f.openMasterErr != nil {
		return -1, f.openMasterErr
	}
	return f.allocFD(), nil
}

func (f *fakeOS) Grant(int) error {
	f.record("grant")
	return f.grantErr
}

func (f *fakeOS) Unlock(int) error {
	f.record("unlock")
	return f.unlockErr
}

func (f *fakeOS) SlaveName(fd int) (string, error) {
	f.record("slaveName")
	n := f.nameInFlight.Add(1)
	defer f.nameInFlight.Add(-1)
	for {
		m := f.nameMaxInFlight.Load()
		if n <= m || f.nameMaxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.nameDelay > 0 {
		time.Sleep(f.nameDelay)
	}
	if f.nameErr != nil {
		return "", f.nameErr
	}
	if f.emptyName {
		return "", nil
	}
	return fmt.Sprintf("/dev/pts/%d", fd), nil
}

func (f *fakeOS) Open(string, int) (int, error) {
	f.record("open")
	if f.openErr != nil {
		return -1, f.openErr
	}
	return f.allocFD(), nil
}

func (f *fakeOS) Close(fd int) error {
	f.record("close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes[fd]++
	return f.closeErrs[fd]
}

func (f *fakeOS) Dup(int) (int, error) {
	f.record("dup")
	return f.allocFD(), nil
}

func (f *fakeOS) Read(_ int, p []byte) (int, error) {
	f.record("read")
	if f.readErr != nil {
		return -1, f.readErr
	}
	return copy(p, f.readData), nil
}

func (f *fakeOS) Write(fd int, p []byte) (int, error) {
	f.record("write")
	f.mu.Lock()
	f.writes[fd]++
	f.mu.Unlock()
	return len(p), nil
}

func (f *fakeOS) Pipe() (int, int, error) {
	f.record("pipe")
	if f.pipeErr != nil {
		return -1, -1, f.pipeErr
	}
	r, w := f.allocFD(), f.allocFD()
	f.mu.Lock()
	f.wakeFDs[r] = true
	f.mu.Unlock()
	return r, w, nil
}

func (f *fakeOS) nextWaitErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.waitErrs) == 0 {
		return nil
	}
	err := f.waitErrs[0]
	f.waitErrs = f.waitErrs[1:]
	return err
}

func (f *fakeOS) Poll(fds []unix.PollFd, _ int) (int, error) {
	f.record("poll")
	if err := f.nextWaitErr(); err != nil {
		return -1, err
	}
	if f.masterReady {
		fds[1].Revents = unix.POLLIN
	} else {
		fds[0].Revents = unix.POLLIN
	}
	return 1, nil
}

func (f *fakeOS) Select(nfd int, r *unix.FdSet) (int, error) {
	f.record("select")
	if err := f.nextWaitErr(); err != nil {
		return -1, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for fd := 0; fd < nfd; fd++ {
		if r.IsSet(fd) && f.wakeFDs[fd] == f.masterReady {
			r.Clear(fd)
		}
	}
	return 1, nil
}

func (f *fakeOS) Kill(pid int, sig unix.Signal) error {
	f.record("kill")
	if sig == 0 {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.alive[pid] {
			return nil
		}
		return unix.ESRCH
	}
	return f.killErr
}

func (f *fakeOS) Killpg(int, unix.Signal) error {
	f.record("killpg")
	return f.killpgErr
}

func (f *fakeOS) GetWinsize(int) (*unix.Winsize, error) {
	f.record("getWinsize")
	if f.winsizeErr != nil {
		return nil, f.winsizeErr
	}
	ws := f.winsize
	return &ws, nil
}

func (f *fakeOS) SetWinsize(_ int, ws *unix.Winsize) error {
	f.record("setWinsize")
	if f.winsizeErr != nil {
		return f.winsizeErr
	}
	f.winsize = *ws
	return nil
}

func (f *fakeOS) Uname() (string, string, error) {
	return "Linux", "6.1.0", nil
}

func openFake(f sys.OS, opts ...Option) (*Session, error) {
	return Open(false, false, append([]Option{WithOS(f), WithStrategy(StrategyPtmx), WithBackend(BackendPoll)}, opts...)...)
}

func tempFiles(dir string) (*os.File, *os.File, error) {
	m, err := os.CreateTemp(dir, "master")
	if err != nil {
		return nil, nil, err
	}
	s, err := os.CreateTemp(dir, "slave")
	if err != nil {
		m.Close()
		return nil, nil, err
	}
	return m, s, nil
}
