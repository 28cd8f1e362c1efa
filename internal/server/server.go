// Package server accepts TCP connections and hands each one to a
// session over the process-wide shared graph.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/roach88/graphline/internal/graph"
	"github.com/roach88/graphline/internal/session"
)

// Config carries the listener settings and the collaborators shared by
// every session. Zero-value fields get production defaults.
type Config struct {
	ListenAddr  string
	IdleTimeout time.Duration
	Logger      *slog.Logger
	Recorder    session.Recorder
	Metrics     session.Metrics
}

// Server owns the TCP listener and the set of live sessions.
//
// Thread-safety: ListenAndServe is meant to be called once; Addr may be
// called from other goroutines after ListenAndServe has bound the
// listener.
type Server struct {
	cfg    Config
	engine *graph.Engine
	log    *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
}

// New prepares a server around the shared engine.
func New(engine *graph.Engine, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if cfg.Recorder == nil {
		cfg.Recorder = session.NopRecorder{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = session.NopMetrics{}
	}
	return &Server{
		cfg:    cfg,
		engine: engine,
		log:    cfg.Logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Addr returns the bound listener address, or empty before binding.
// Useful when listening on ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ListenAndServe binds the listener and accepts connections until ctx
// is canceled. It returns after every in-flight session has finished.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.cfg.ListenAddr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("listening", "addr", listener.Addr().String())

	// Closing the listener is what actually unblocks Accept. Live
	// connections are closed too so draining never waits out an idle
	// timeout.
	go func() {
		<-ctx.Done()
		listener.Close()
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Error("accept failed", "error", err)
			continue
		}

		sess := session.New(conn, s.engine, session.Config{
			IdleTimeout: s.cfg.IdleTimeout,
			Logger:      s.log,
			Recorder:    s.cfg.Recorder,
			Metrics:     s.cfg.Metrics,
		})
		s.log.Info("connection accepted",
			"remote_addr", conn.RemoteAddr().String(),
			"session_id", sess.ID())

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Run()
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}

	s.log.Info("listener closed, draining sessions")
	wg.Wait()
	s.log.Info("all sessions finished")
	return nil
}
