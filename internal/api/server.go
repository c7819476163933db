//go:build linux || darwin

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/PiranhaCodes/ptyhost/internal/groutine"
	"github.com/PiranhaCodes/ptyhost/internal/shell"
)

var errNoSession = errors.New("session not found")

// Server serves the JSON protocol on a UNIX socket.
type Server struct {
	socketPath string
	manager    *shell.Manager
	spawner    *shell.Spawner
	logger     *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
	conns    sync.WaitGroup
}

func NewServer(socketPath string, m *shell.Manager, sp *shell.Spawner, logger *logrus.Entry) *Server {
	return &Server{
		socketPath: socketPath,
		manager:    m,
		spawner:    sp,
		logger:     logger.WithField("socket", socketPath),
	}
}

// Listen binds the socket, replacing a stale one.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	s.logger.Info("server listening")
	return nil
}

// Serve accepts connections until Stop. It returns nil after Stop.
func (s *Server) Serve() error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("server is not listening")
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			return err
		}
		s.conns.Add(1)
		groutine.Go(context.Background(), "conn", func(_ context.Context) {
			defer s.conns.Done()
			s.handleConn(conn)
		})
	}
}

// Start is Listen followed by Serve.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop closes the listener, waits for in-flight requests and removes the
// socket file.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	l := s.listener
	s.mu.Unlock()

	if l != nil {
		if err := l.Close(); err != nil {
			s.logger.WithError(err).Debug("close listener")
		}
	}
	s.conns.Wait()
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).Warn("remove socket")
	}
	s.logger.Info("server stopped")
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	encoder := json.NewEncoder(conn)

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.reply(encoder, Response{Err: "invalid request: " + err.Error()})
		return
	}

	log := s.logger.WithField("action", req.Action)
	data, err := s.dispatch(req)
	if err != nil {
		log.WithError(err).Debug("request failed")
		s.reply(encoder, Response{Err: err.Error()})
		return
	}
	s.reply(encoder, Response{Ok: true, Data: data})
}

func (s *Server) reply(encoder *json.Encoder, resp Response) {
	if err := encoder.Encode(resp); err != nil {
		s.logger.WithError(err).Debug("write response")
	}
}

func (s *Server) dispatch(req Request) (interface{}, error) {
	switch req.Action {
	case ActionSpawn:
		return s.handleSpawn(req.Data)
	case ActionWrite:
		return s.handleWrite(req.Data)
	case ActionRead:
		return s.handleRead(req.Data)
	case ActionResize:
		return s.handleResize(req.Data)
	case ActionSize:
		return s.handleSize(req.Data)
	case ActionKill:
		return s.handleKill(req.Data)
	case ActionList:
		return s.handleList()
	default:
		return nil, fmt.Errorf("unknown action: %s", req.Action)
	}
}

func decode(action string, data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid %s request: %w", action, err)
	}
	return nil
}

// checkDimensions rejects sizes the 16-bit winsize fields cannot hold.
func checkDimensions(cols, rows int) error {
	if cols > math.MaxUint16 || rows > math.MaxUint16 {
		return fmt.Errorf("cols and rows must not exceed %d", math.MaxUint16)
	}
	return nil
}

func (s *Server) lookup(id string) (*shell.Session, error) {
	if id == "" {
		return nil, errors.New("session ID is required")
	}
	sess := s.manager.Get(id)
	if sess == nil {
		return nil, errNoSession
	}
	return sess, nil
}

func (s *Server) handleSpawn(data json.RawMessage) (interface{}, error) {
	var req SpawnRequest
	if err := decode(ActionSpawn, data, &req); err != nil {
		return nil, err
	}
	if req.Cols < 0 || req.Rows < 0 {
		return nil, errors.New("cols and rows must not be negative")
	}
	if err := checkDimensions(req.Cols, req.Rows); err != nil {
		return nil, err
	}
	sess, err := s.spawner.Spawn(req.Cols, req.Rows)
	if err != nil {
		return nil, err
	}
	return SpawnResponse{ID: sess.ID, Pid: sess.Pid(), Slave: sess.PTY.SlaveName()}, nil
}

func (s *Server) handleWrite(data json.RawMessage) (interface{}, error) {
	var req WriteRequest
	if err := decode(ActionWrite, data, &req); err != nil {
		return nil, err
	}
	sess, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	if _, err := sess.Write([]byte(req.Data)); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleRead(data json.RawMessage) (interface{}, error) {
	var req ReadRequest
	if err := decode(ActionRead, data, &req); err != nil {
		return nil, err
	}
	sess, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	return ReadResponse{Data: string(sess.Drain(req.Max)), Running: sess.Running()}, nil
}

func (s *Server) handleResize(data json.RawMessage) (interface{}, error) {
	var req ResizeRequest
	if err := decode(ActionResize, data, &req); err != nil {
		return nil, err
	}
	if req.Cols <= 0 || req.Rows <= 0 {
		return nil, errors.New("cols and rows must be positive")
	}
	if err := checkDimensions(req.Cols, req.Rows); err != nil {
		return nil, err
	}
	sess, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	return nil, sess.Resize(req.Cols, req.Rows)
}

func (s *Server) handleSize(data json.RawMessage) (interface{}, error) {
	var req SessionRequest
	if err := decode(ActionSize, data, &req); err != nil {
		return nil, err
	}
	sess, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	ws, err := sess.Size()
	if err != nil {
		return nil, err
	}
	return SizeResponse{Cols: int(ws.Cols), Rows: int(ws.Rows)}, nil
}

func (s *Server) handleKill(data json.RawMessage) (interface{}, error) {
	var req SessionRequest
	if err := decode(ActionKill, data, &req); err != nil {
		return nil, err
	}
	sess, err := s.lookup(req.ID)
	if err != nil {
		return nil, err
	}
	sess.Cleanup()
	return nil, nil
}

func (s *Server) handleList() (interface{}, error) {
	sessions := s.manager.List()
	statuses := make([]shell.Status, 0, len(sessions))
	for _, sess := range sessions {
		statuses = append(statuses, sess.Status())
	}
	return ListResponse{Sessions: statuses, Count: len(statuses)}, nil
}
