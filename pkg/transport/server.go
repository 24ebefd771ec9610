package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/odo-protocol/odo-go/pkg/log"
)

// ServerConfig configures an onboarding transport server.
type ServerConfig struct {
	// Address to listen on (e.g. ":8040" or "127.0.0.1:8040").
	Address string

	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	// MaxBodySize bounds announced body lengths (default 64 KB).
	MaxBodySize int

	// Logger receives frame events (optional).
	Logger log.Logger

	// OnSession is called with each accepted connection on its own
	// goroutine. The callback owns the connection and must close it.
	OnSession func(conn *Conn)

	// OnError is called when accepting or serving a connection fails.
	OnError func(err error)
}

// Server accepts framed ODO connections from devices.
type Server struct {
	config   ServerConfig
	listener net.Listener

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. Start must be called to begin accepting.
func NewServer(config ServerConfig) (*Server, error) {
	if config.OnSession == nil {
		return nil, fmt.Errorf("OnSession callback is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	return &Server{config: config}, nil
}

// Start begins listening and accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("server already running")
	}

	var err error
	if s.config.TLSConfig != nil {
		s.listener, err = tls.Listen("tcp", s.config.Address, s.config.TLSConfig)
	} else {
		s.listener, err = net.Listen("tcp", s.config.Address)
	}
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("listen %s: %w", s.config.Address, err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and waits for session goroutines to finish.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	s.listener.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || !s.running.Load() {
				return
			}
			if s.config.OnError != nil {
				s.config.OnError(fmt.Errorf("accept: %w", err))
			}
			continue
		}

		conn := NewConn(netConn, RoleServer, Config{
			MaxBodySize: s.config.MaxBodySize,
			Logger:      s.config.Logger,
			SessionID:   uuid.NewString(),
		})

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.config.OnSession(conn)
		}()
	}
}
