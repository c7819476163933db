//go:build linux || darwin

package pty

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// With the fake, descriptors are handed out in order: master 10, wake pipe
// 11/12, keep-alive slave 13.
const (
	fakeMaster = 10
	fakeWakeR  = 11
	fakeWakeW  = 12
	fakeSlave  = 13
)

func TestOpen(t *testing.T) {
	f := newFakeOS()
	s, err := openFake(f)
	require.NoError(t, err)

	assert.Equal(t, fakeMaster, s.MasterFD())
	assert.Equal(t, "/dev/pts/10", s.SlaveName())
	assert.False(t, s.IsConsole())
	assert.False(t, s.IsClosed())
	assert.Equal(t, BackendPoll, s.Backend())
	assert.Equal(t, int32(-1), s.slave.Load())
	assert.Zero(t, f.count("open"))
}

func TestOpen_PreserveOutputHoldsSlave(t *testing.T) {
	f := newFakeOS()
	s, err := Open(true, true, WithOS(f), WithStrategy(StrategyPtmx))
	require.NoError(t, err)

	assert.True(t, s.IsConsole())
	assert.Equal(t, int32(fakeSlave), s.slave.Load())

	require.NoError(t, s.Close())
	assert.Equal(t, 1, f.closeCount(fakeSlave))
}

func TestOpen_PreserveOutputOpenFailureIsNotFatal(t *testing.T) {
	f := newFakeOS()
	f.openErr = unix.EACCES
	s, err := Open(false, true, WithOS(f), WithStrategy(StrategyPtmx))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), s.slave.Load())
}

func TestOpen_PipeFailureReleasesMaster(t *testing.T) {
	f := newFakeOS()
	f.pipeErr = unix.EMFILE

	s, err := openFake(f)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, unix.EMFILE)
	assert.Equal(t, 1, f.closeCount(fakeMaster))
}

func TestOpen_AllocationFailure(t *testing.T) {
	f := newFakeOS()
	f.unlockErr = unix.EPERM

	_, err := openFake(f)
	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, StageUnlock, allocErr.Stage)
	assert.Zero(t, f.count("pipe"))
}

func TestSession_ConcurrentCloseClosesOnce(t *testing.T) {
	f := newFakeOS()
	s, err := Open(false, true, WithOS(f), WithStrategy(StrategyPtmx))
	require.NoError(t, err)

	const closers = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < closers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			assert.NoError(t, s.Close())
		}()
	}
	close(start)
	wg.Wait()

	assert.True(t, s.IsClosed())
	assert.Equal(t, 1, f.closeCount(fakeMaster))
	assert.Equal(t, 1, f.closeCount(fakeWakeR))
	assert.Equal(t, 1, f.closeCount(fakeWakeW))
	assert.Equal(t, 1, f.closeCount(fakeSlave))
	assert.Equal(t, 1, f.writeCount(fakeWakeW), "exactly one wake byte")
	assert.Equal(t, -1, s.MasterFD())
}

func TestSession_NoSyscallsAfterClose(t *testing.T) {
	f := newFakeOS()
	s, err := openFake(f)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	before := f.totalCalls()

	n, err := s.Read(make([]byte, 16))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)

	n, err = s.Write([]byte("ls\n"))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, os.ErrClosed)

	assert.NoError(t, s.Close())
	assert.Equal(t, before, f.totalCalls())
}

func TestSession_CloseFailsForward(t *testing.T) {
	f := newFakeOS()
	f.closeErrs[fakeMaster] = os.NewSyscallError("close", unix.EIO)
	s, err := openFake(f)
	require.NoError(t, err)

	err = s.Close()
	assert.ErrorIs(t, err, unix.EIO)
	assert.True(t, s.IsClosed())
	assert.Equal(t, 1, f.writeCount(fakeWakeW))
	assert.Equal(t, 1, f.closeCount(fakeWakeR))
	assert.Equal(t, 1, f.closeCount(fakeWakeW))

	assert.NoError(t, s.Close())
	assert.Equal(t, 1, f.closeCount(fakeMaster))
}

func TestSession_CloseJoinsMasterAndSlaveErrors(t *testing.T) {
	f := newFakeOS()
	f.closeErrs[fakeMaster] = unix.EIO
	f.closeErrs[fakeSlave] = unix.EBADF
	s, err := Open(false, true, WithOS(f), WithStrategy(StrategyPtmx))
	require.NoError(t, err)

	err = s.Close()
	assert.ErrorIs(t, err, unix.EIO)
	assert.ErrorIs(t, err, unix.EBADF)
}

func TestSession_Read(t *testing.T) {
	tests := []struct {
		name     string
		backend  Backend
		ready    bool
		data     []byte
		readErr  error
		want     string
		wantErr  error
		wantRead int
	}{
		{name: "poll data", backend: BackendPoll, ready: true, data: []byte("hello"), want: "hello", wantRead: 1},
		{name: "select data", backend: BackendSelect, ready: true, data: []byte("hello"), want: "hello", wantRead: 1},
		{name: "poll woken", backend: BackendPoll, wantErr: io.EOF},
		{name: "select woken", backend: BackendSelect, wantErr: io.EOF},
		{name: "slave hung up", backend: BackendPoll, ready: true, readErr: os.NewSyscallError("read", unix.EIO), wantErr: io.EOF, wantRead: 1},
		{name: "zero bytes", backend: BackendPoll, ready: true, wantErr: io.EOF, wantRead: 1},
		{name: "read error", backend: BackendPoll, ready: true, readErr: unix.EBADF, wantErr: unix.EBADF, wantRead: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeOS()
			f.masterReady = tt.ready
			f.readData = tt.data
			f.readErr = tt.readErr
			s, err := openFake(f, WithBackend(tt.backend))
			require.NoError(t, err)
			defer s.Close()

			buf := make([]byte, 32)
			n, err := s.Read(buf)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, n)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, string(buf[:n]))
			}
			assert.Equal(t, tt.wantRead, f.count("read"))
		})
	}
}

func TestSession_ReadEmptyBuffer(t *testing.T) {
	f := newFakeOS()
	s, err := openFake(f)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Read(nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.count("poll"))
}

func TestSession_Write(t *testing.T) {
	f := newFakeOS()
	s, err := openFake(f)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Write([]byte("echo hi\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 1, f.writeCount(fakeMaster))
}

type shortWriteOS struct {
	*fakeOS
	chunks []int
	errs   []error
}

func (w *shortWriteOS) Write(fd int, p []byte) (int, error) {
	w.record("write")
	n, err := len(p), error(nil)
	if len(w.chunks) > 0 {
		n, w.chunks = w.chunks[0], w.chunks[1:]
	}
	if len(w.errs) > 0 {
		err, w.errs = w.errs[0], w.errs[1:]
	}
	return n, err
}

func TestSession_WriteRetriesPartialAndTransient(t *testing.T) {
	f := &shortWriteOS{
		fakeOS: newFakeOS(),
		chunks: []int{2, 0, 3},
		errs:   []error{nil, unix.EAGAIN, nil},
	}
	s, err := openFake(f)
	require.NoError(t, err)

	n, err := s.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 4, f.count("write"))
}

func TestSession_WriteSurfacesError(t *testing.T) {
	f := &shortWriteOS{
		fakeOS: newFakeOS(),
		chunks: []int{3, 0},
		errs:   []error{nil, os.NewSyscallError("write", unix.EIO)},
	}
	s, err := openFake(f)
	require.NoError(t, err)

	n, err := s.Write([]byte("abcdef"))
	assert.Equal(t, 3, n)
	var sysErr *os.SyscallError
	require.True(t, errors.As(err, &sysErr))
	assert.Equal(t, "write", sysErr.Syscall)
}

// blockingReadOS parks Read until released so a Close can race it.
type blockingReadOS struct {
	*fakeOS
	entered chan struct{}
	release chan struct{}
}

func (b *blockingReadOS) Read(fd int, p []byte) (int, error) {
	close(b.entered)
	<-b.release
	return b.fakeOS.Read(fd, p)
}

func TestSession_CloseWaitsForInFlightRead(t *testing.T) {
	f := &blockingReadOS{
		fakeOS:  newFakeOS(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f.masterReady = true
	f.readData = []byte("late")
	s, err := openFake(f)
	require.NoError(t, err)

	readDone := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 8)
		n, err := s.Read(buf)
		readDone <- readResult{n, err}
	}()
	<-f.entered

	closeDone := make(chan error, 1)
	go func() { closeDone <- s.Close() }()

	require.Eventually(t, func() bool { return f.writeCount(fakeWakeW) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.closeCount(fakeMaster), "master released while a read syscall was using it")

	close(f.release)
	r := <-readDone
	require.NoError(t, r.err)
	assert.Equal(t, 4, r.n)
	require.NoError(t, <-closeDone)
	assert.Equal(t, 1, f.closeCount(fakeMaster))
}
