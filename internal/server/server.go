// Package server is the host side of the transport: a TCP accept loop with
// one goroutine per connection, each serving strictly one request and one
// response at a time.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/livebridge/internal/dispatch"
	"github.com/mattjoyce/livebridge/internal/frame"
	"github.com/mattjoyce/livebridge/internal/log"
	"github.com/mattjoyce/livebridge/internal/protocol"
)

const defaultWriteTimeout = 10 * time.Second

// Handler turns one request frame into one response envelope. A non-nil
// error means the frame was not a valid request; the connection is closed
// once the envelope has been written.
type Handler interface {
	HandleFrame(ctx context.Context, frame []byte) (*protocol.Response, error)
}

// Config holds listener settings.
type Config struct {
	// Address is host:port. Port 0 picks a free port; see Addr.
	Address string
	// Greeting is sent right after accept. Empty disables it.
	Greeting     string
	MaxFrameSize int
	WriteTimeout time.Duration
}

// Server accepts connections and feeds their frames to a Handler.
type Server struct {
	config  Config
	handler Handler
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	accepted atomic.Int64
}

// New creates a Server. Nothing is bound until Listen or Start.
func New(config Config, handler Handler) *Server {
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	return &Server{
		config:  config,
		handler: handler,
		logger:  log.WithComponent("server"),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Listen binds the configured address. Start calls it if needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections reports the number of live client connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Accepted reports how many connections have been accepted since start.
func (s *Server) Accepted() int64 {
	return s.accepted.Load()
}

// Start accepts connections until ctx is cancelled (blocking). On return
// the listener and every live connection are closed and all connection
// goroutines have exited.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	ln := s.listener

	s.logger.Info("command server listening", "address", ln.Addr().String())

	acceptErr := make(chan error, 1)
	go func() {
		acceptErr <- s.acceptLoop(ctx, ln)
	}()

	var err error
	select {
	case <-ctx.Done():
		s.logger.Info("command server shutting down")
		_ = ln.Close()
		if err = <-acceptErr; err == nil {
			err = ctx.Err()
		}
	case err = <-acceptErr:
		_ = ln.Close()
	}

	s.closeConns()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.accepted.Add(1)
		go s.serve(ctx, conn)
	}
}

// track registers conn. It returns false once shutdown has begun.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	logger := log.WithConn(remote).With("component", "server")
	logger.Info("client connected")
	defer logger.Info("client disconnected")

	if s.config.Greeting != "" {
		if err := s.write(conn, func(w io.Writer) error {
			return protocol.EncodeGreeting(w, s.config.Greeting)
		}); err != nil {
			logger.Warn("failed to send greeting", "error", err)
			return
		}
	}

	reader := frame.NewReader(conn)
	reader.SetLimit(s.config.MaxFrameSize)
	connCtx := dispatch.WithRemote(ctx, remote)

	for {
		data, err := reader.ReadFrame()
		switch {
		case err == nil:
		case errors.Is(err, frame.ErrFrameTooLarge):
			logger.Warn("request frame too large", "error", err)
			_ = s.write(conn, func(w io.Writer) error {
				return protocol.EncodeResponse(w, protocol.Failure("request too large"))
			})
			return
		case errors.Is(err, frame.ErrIncomplete):
			logger.Warn("client closed mid-request", "error", err)
			return
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			return
		default:
			logger.Warn("read failed", "error", err)
			return
		}

		resp, herr := s.handler.HandleFrame(connCtx, data)
		if err := s.write(conn, func(w io.Writer) error {
			return protocol.EncodeResponse(w, resp)
		}); err != nil {
			logger.Warn("failed to send response", "error", err)
			return
		}
		if herr != nil {
			logger.Warn("closing connection after malformed request", "error", herr)
			return
		}
	}
}

func (s *Server) write(conn net.Conn, encode func(io.Writer) error) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return encode(conn)
}
