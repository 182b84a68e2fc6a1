// Package ipc implements the operator control socket: a Unix socket speaking
// one JSON request and one JSON response per connection.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/al-bashkir/social-login/internal/logsanitize"
)

// RequestHandler answers a single admin request
type RequestHandler func(ctx context.Context, req *Request) (*Response, error)

// connTimeout bounds how long a client may take to send its request.
const connTimeout = 10 * time.Second

// Server is the IPC server that listens on a Unix socket for admin requests
type Server struct {
	socketPath string
	listener   net.Listener
	handler    RequestHandler
	wg         sync.WaitGroup
	stopChan   chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
}

// NewServer creates a new IPC server
func NewServer(socketPath string, handler RequestHandler) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		stopChan:   make(chan struct{}),
	}
}

// Start starts the IPC server
func (s *Server) Start(ctx context.Context) error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove a stale socket left by a previous run
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	// Owner and group only: anyone who can connect can revoke sessions.
	if err := os.Chmod(s.socketPath, 0660); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	slog.Info("admin socket started", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
				slog.Error("failed to accept connection", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(connTimeout)); err != nil {
		slog.Warn("failed to set connection deadline", "error", err)
	}

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		slog.Error("failed to decode request", "error", err)
		s.writeResponse(conn, errorResponse("invalid request format"))
		return
	}

	slog.Debug("admin request received", // #nosec G706 -- values sanitized via logsanitize
		"type", logsanitize.Sanitize(string(req.Type)),
		"id_prefix", logsanitize.Sanitize(req.IDPrefix),
	)

	resp, err := s.handler(ctx, &req)
	if err != nil {
		slog.Error("handler error", "error", err)
		s.writeResponse(conn, errorResponse(err.Error()))
		return
	}

	s.writeResponse(conn, resp)
}

func (s *Server) writeResponse(conn net.Conn, resp *Response) {
	resp.Type = MessageTypeResponse
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		slog.Error("failed to send response", "error", err)
	}
}

// Stop stops the IPC server gracefully. It is safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		slog.Info("stopping admin socket")
		close(s.stopChan)

		s.mu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				slog.Warn("failed to close listener", "error", err)
			}
		}
		s.mu.Unlock()

		s.wg.Wait()

		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove socket file", "error", err)
		}
	})
	return nil
}
