//go:build linux || darwin

package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sys/unix"

	"github.com/PiranhaCodes/ptyhost/internal/config"
	"github.com/PiranhaCodes/ptyhost/internal/groutine"
	"github.com/PiranhaCodes/ptyhost/internal/pty"
)

// Spawner starts shells on fresh PTYs and registers them with a Manager.
type Spawner struct {
	cfg     *config.Config
	manager *Manager
	logger  *logrus.Entry
	opts    []pty.Option
}

// NewSpawner validates the PTY settings in cfg once so that Spawn does not
// have to.
func NewSpawner(cfg *config.Config, m *Manager, logger *logrus.Entry) (*Spawner, error) {
	backend, err := pty.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	strategy, err := pty.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return &Spawner{
		cfg:     cfg,
		manager: m,
		logger:  logger,
		opts:    []pty.Option{pty.WithBackend(backend), pty.WithStrategy(strategy)},
	}, nil
}

// Spawn starts a shell on a new PTY sized cols x rows. Zero dimensions keep
// the kernel default.
func (sp *Spawner) Spawn(cols, rows int) (*Session, error) {
	ws, err := winSize(cols, rows)
	if err != nil {
		return nil, err
	}
	shellPath, err := DetectShell(sp.cfg.Shell)
	if err != nil {
		return nil, fmt.Errorf("shell detection failed: %w", err)
	}

	id := uuid.New().String()
	logger := sp.logger.WithField("session", id)

	opts := append([]pty.Option{pty.WithLogger(logger)}, sp.opts...)
	p, err := pty.Open(false, sp.cfg.PreserveOutput, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open pty: %w", err)
	}
	logger = logger.WithField("slave", p.SlaveName())

	if cols > 0 && rows > 0 {
		if err := p.SetWindowSize(ws, nil); err != nil {
			logger.WithError(err).Warn("initial resize failed")
		}
	}

	transcript, err := openTranscript(sp.cfg.LogDir, id)
	if err != nil {
		return nil, errors.Join(err, p.Close())
	}

	cmd, err := startShell(shellPath, p.SlaveName())
	if err != nil {
		return nil, errors.Join(err, p.Close(), transcript.Close())
	}

	sess := &Session{
		ID:         id,
		Shell:      shellPath,
		Cmd:        cmd,
		PTY:        p,
		StartedAt:  time.Now(),
		logger:     logger.WithField("pid", cmd.Process.Pid),
		manager:    sp.manager,
		grace:      sp.cfg.KillGrace,
		output:     ringbuffer.New(sp.cfg.OutputBuffer),
		transcript: transcript,
		readDone:   make(chan struct{}),
		exited:     make(chan struct{}),
	}
	sp.manager.Add(sess)

	ctx := context.Background()
	groutine.Go(ctx, "read-"+id, sess.readLoop)
	groutine.Go(ctx, "wait-"+id, sess.waitLoop)

	sess.logger.WithField("shell", shellPath).Info("spawned session")
	return sess, nil
}

func openTranscript(dir, id string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, id+".log")
	// #nosec G304 - id is a generated uuid
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	return f, nil
}

// startShell runs shellPath as a session leader with the slave as its
// controlling terminal. The parent's slave handle is closed once the child
// holds it.
func startShell(shellPath, slaveName string) (*exec.Cmd, error) {
	slave, err := os.OpenFile(slaveName, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open slave %s: %w", slaveName, err)
	}
	defer slave.Close()

	// #nosec G204 - shell path comes from configuration or detection
	cmd := exec.Command(shellPath)
	cmd.Env = os.Environ()
	if os.Getenv("TERM") == "" {
		cmd.Env = append(cmd.Env, "TERM=xterm-256color")
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = slave, slave, slave
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", shellPath, err)
	}
	return cmd, nil
}
