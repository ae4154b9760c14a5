package socketserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/codefionn/turing/internal/consts"
	"github.com/codefionn/turing/internal/logger"
	"github.com/codefionn/turing/internal/metrics"
	"github.com/codefionn/turing/internal/protocol"
	"github.com/codefionn/turing/internal/state"
)

// ErrConnectionLimit is returned by ServeTransport when the server is full.
var ErrConnectionLimit = errors.New("connection limit reached")

// Config controls a Server.
type Config struct {
	// Listen is the TCP address of the request protocol.
	Listen string
	// MaxWorkers bounds the connections served in parallel.
	MaxWorkers int
	// MaxConnections bounds accepted connections, served or waiting for a worker.
	MaxConnections int
	// ReleaseLocksOnDisconnect ends the sessions opened on a closed connection and
	// releases the edit locks of users left without a session.
	ReleaseLocksOnDisconnect bool
	WriteTimeout             time.Duration
	MaxFrameBytes            int
	ChatPort                 int
	Codec                    protocol.Codec
}

// Server accepts client connections and serves each one on a bounded worker pool.
type Server struct {
	cfg        Config
	dir        *state.Directory
	dispatcher *Dispatcher
	hub        *Hub
	metrics    *metrics.Collector
	workers    *semaphore.Weighted
	log        *logger.Logger

	listener net.Listener
	group    *errgroup.Group
	ctx      context.Context
	cancel   context.CancelFunc

	// Control
	mu       sync.Mutex
	running  bool
	stopOnce sync.Once
}

// NewServer creates a server over dir. m may be nil.
func NewServer(cfg Config, dir *state.Directory, m *metrics.Collector) *Server {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = consts.DefaultMaxWorkers
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = consts.DefaultMaxConnections
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = consts.BufferSize1MB
	}
	if cfg.Codec == nil {
		cfg.Codec = protocol.JSONCodec{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	return &Server{
		cfg:        cfg,
		dir:        dir,
		dispatcher: NewDispatcher(dir, cfg.ChatPort, m),
		hub:        NewHub(cfg.MaxConnections),
		metrics:    m,
		workers:    semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		log:        logger.Global().WithPrefix("server"),
		group:      group,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start listens on cfg.Listen and accepts connections in the background. The
// server stops when ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections from listener in the background.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.listener = listener
	s.mu.Unlock()

	s.group.Go(func() error {
		select {
		case <-ctx.Done():
			s.log.Info("Stopping on context cancellation")
		case <-s.ctx.Done():
		}
		s.shutdown()
		return nil
	})
	s.group.Go(s.acceptLoop)

	s.log.Info("Listening on %s (workers: %d, max connections: %d)",
		listener.Addr(), s.cfg.MaxWorkers, s.cfg.MaxConnections)
	return nil
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				s.log.Info("Listener closed, exiting accept loop")
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		transport := NewStreamTransport(conn, s.cfg.MaxFrameBytes, s.cfg.WriteTimeout)
		client, ok := s.admit(transport)
		if !ok {
			continue
		}
		s.group.Go(func() error {
			s.serveClient(client)
			return nil
		})
	}
}

// admit registers a new connection with the hub, rejecting it at the limit.
func (s *Server) admit(transport Transport) (*Client, bool) {
	id := uuid.NewString()
	client := NewClient(id, transport, s.cfg.Codec, s.dispatcher, s.log.WithPrefix(id[:8]))
	if !s.hub.Register(client) {
		s.log.Warn("Connection limit reached, rejecting connection from %s", transport.RemoteAddr())
		s.metrics.ConnectionRejected()
		client.Close()
		return nil, false
	}
	return client, true
}

// ServeTransport serves a connection accepted outside the TCP listener, such as a
// websocket. It blocks until the connection ends.
func (s *Server) ServeTransport(transport Transport) error {
	client, ok := s.admit(transport)
	if !ok {
		return ErrConnectionLimit
	}
	s.serveClient(client)
	return nil
}

// serveClient waits for a worker and runs the client's read loop.
func (s *Server) serveClient(client *Client) {
	defer s.hub.Unregister(client)
	defer client.Close()

	if err := s.workers.Acquire(s.ctx, 1); err != nil {
		return
	}
	defer s.workers.Release(1)

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	client.Serve(s.ctx)

	if s.cfg.ReleaseLocksOnDisconnect {
		if released := s.dir.AbandonConnection(client.ID); released > 0 {
			client.log.Info("Released %d edit locks after disconnect", released)
		}
	}
}

// Stop closes the listener and every connection, then waits for them to finish.
func (s *Server) Stop() error {
	s.shutdown()
	err := s.group.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return err
}

// Wait blocks until the server stopped and returns the first accept failure.
func (s *Server) Wait() error {
	return s.group.Wait()
}

func (s *Server) shutdown() {
	s.stopOnce.Do(func() {
		s.log.Info("Stopping socket server...")
		s.cancel()

		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.log.Error("Error closing listener: %v", err)
			}
		}
		s.hub.Shutdown()
	})
}

// Codec returns the codec connections are served with.
func (s *Server) Codec() protocol.Codec {
	return s.cfg.Codec
}

// GetClientCount returns the number of tracked connections.
func (s *Server) GetClientCount() int {
	return s.hub.GetClientCount()
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
