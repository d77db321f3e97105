// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/moziie/emqx/auth"
	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/cm"
	"github.com/moziie/emqx/config"
	"github.com/moziie/emqx/hooks"
	"github.com/moziie/emqx/metrics"
	"github.com/moziie/emqx/ratelimit"
	"github.com/moziie/emqx/session"
)

// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config holds the TCP server configuration.
type Config struct {
	Address         string
	Zone            string
	TLSConfig       *tls.Config
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
	MaxConnections  int
}

// Deps are the shared collaborators handed to every connection engine.
type Deps struct {
	ZoneCfg  config.Zone
	Registry *cm.Registry
	Sessions *session.Manager
	Auth     auth.Authenticator
	ACL      auth.Authorizer
	Hooks    *hooks.Bus
	Broker   *broker.Broker
	Metrics  *metrics.Metrics
	Limiter  *ratelimit.IPRateLimiter
}

// Server accepts TCP connections and runs one protocol engine per client.
type Server struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	config   Config
	deps     Deps
	listener net.Listener
	connSem  chan struct{}
}

// New creates a new TCP server.
func New(cfg Config, deps Deps) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Zone == "" {
		cfg.Zone = "default"
	}

	var connSem chan struct{}
	if cfg.MaxConnections > 0 {
		connSem = make(chan struct{}, cfg.MaxConnections)
	}

	return &Server{
		config:  cfg,
		deps:    deps,
		connSem: connSem,
	}
}

// Listen starts the server and blocks until the context is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	if s.config.TLSConfig != nil {
		listener = tls.NewListener(listener, s.config.TLSConfig)
		s.config.Logger.Info("TLS enabled", slog.String("address", s.config.Address))
	}
	s.config.Logger.Info("TCP server started", slog.String("address", s.config.Address))

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return s.drain()
			}
			s.config.Logger.Warn("accept failed", slog.Any("error", err))
			continue
		}

		if s.deps.Limiter != nil && !s.deps.Limiter.Allow(conn.RemoteAddr()) {
			s.config.Logger.Debug("connection rate limited", slog.Any("peer", conn.RemoteAddr()))
			conn.Close()
			continue
		}

		if s.connSem != nil {
			select {
			case s.connSem <- struct{}{}:
			default:
				s.config.Logger.Warn("connection limit reached", slog.Any("peer", conn.RemoteAddr()))
				conn.Close()
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if s.connSem != nil {
				defer func() { <-s.connSem }()
			}
			s.ServeConn(conn)
		}()
	}
}

func (s *Server) drain() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ServeConn runs the connection task for one accepted connection. Exported
// so alternative transports can reuse the framer loop.
func (s *Server) ServeConn(nc net.Conn) {
	defer nc.Close()

	cc := newClientConn(s, nc)
	cc.run()
}
