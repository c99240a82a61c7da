// Package server implements the RKSOK TCP listener. Each connection carries
// one request, which is cleared through the validation server before it
// touches the phonebook, answered, and closed.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"rksokd/internal/approval"
	"rksokd/internal/phonebook"
	"rksokd/internal/supervisor"
)

const (
	DefaultListen          = "0.0.0.0:8888"
	DefaultReadTimeout     = 5 * time.Second
	DefaultMaxRequestBytes = 4 << 20
)

type Config struct {
	Listen          string
	ReadTimeout     time.Duration
	MaxRequestBytes int64

	// MaxConns caps concurrent connections; 0 means unlimited. The accept
	// loop stops pulling new connections while the cap is reached.
	MaxConns int
}

func (c Config) withDefaults() Config {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = DefaultMaxRequestBytes
	}
	return c
}

// Approver clears a raw client request with the validation server.
type Approver interface {
	Check(ctx context.Context, rawRequest []byte) (approval.Decision, error)
}

type Server struct {
	cfg     Config
	store   phonebook.Store
	approve Approver
	log     *slog.Logger
	metrics *Metrics

	ln  net.Listener
	sem chan struct{}

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	connSup *supervisor.Supervisor
	closed  bool
}

// New binds the listener immediately so a bad address fails startup instead
// of surfacing later from the accept loop.
func New(cfg Config, store phonebook.Store, approver Approver, log *slog.Logger, m *Metrics) (*Server, error) {
	cfg = cfg.withDefaults()
	if store == nil {
		return nil, errors.New("server requires a phonebook store")
	}
	if approver == nil {
		return nil, errors.New("server requires an approver")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m == nil {
		m = NewMetrics(nil)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	s := &Server{
		cfg:     cfg,
		store:   store,
		approve: approver,
		log:     log.With(slog.String("comp", "server")),
		metrics: m,
		ln:      ln,
		conns:   make(map[net.Conn]struct{}),
	}
	if cfg.MaxConns > 0 {
		s.sem = make(chan struct{}, cfg.MaxConns)
	}
	return s, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until ctx is canceled or the listener breaks.
// Each connection runs as a named goroutine under the server's own
// supervisor, so a misbehaving client never unwinds the daemon.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.connSup != nil {
		s.mu.Unlock()
		return errors.New("server already serving")
	}
	sup := supervisor.New(ctx)
	s.connSup = sup
	s.mu.Unlock()

	s.log.Info("listening", slog.String("addr", s.ln.Addr().String()))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.closeListener()
		case <-done:
		}
	}()

	var tempDelay time.Duration
	for {
		if s.sem != nil {
			select {
			case s.sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
		}

		conn, err := s.ln.Accept()
		if err != nil {
			if s.sem != nil {
				<-s.sem
			}
			if ctx.Err() != nil || s.isClosed() {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				tempDelay = nextAcceptDelay(tempDelay)
				s.log.Warn("accept failed; backing off",
					slog.Any("err", err),
					slog.Duration("backoff", tempDelay),
				)
				select {
				case <-time.After(tempDelay):
					continue
				case <-ctx.Done():
					return nil
				}
			}
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		if !s.track(conn) {
			if s.sem != nil {
				<-s.sem
			}
			_ = conn.Close()
			return nil
		}
		sup.Go("conn", func(ctx context.Context) error {
			defer func() {
				s.untrack(conn)
				if s.sem != nil {
					<-s.sem
				}
			}()
			s.serveConn(ctx, conn)
			return nil
		})
	}
}

// Shutdown stops accepting and waits for in-flight connections until ctx
// expires, then force-closes the stragglers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeListener()

	s.mu.Lock()
	sup := s.connSup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}

	err := sup.Wait(ctx)
	if err != nil {
		n := s.closeActiveConns()
		if n > 0 {
			s.log.Warn("shutdown deadline passed; closing connections", slog.Int("closing", n))
		}
	}
	return err
}

func (s *Server) closeListener() {
	s.mu.Lock()
	closed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !closed {
		_ = s.ln.Close()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// track registers a live connection; it refuses once shutdown has begun so
// a connection accepted during the close race is dropped, not leaked.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	return len(s.conns)
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		return time.Second
	}
	return d
}
