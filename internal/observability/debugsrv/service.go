// Package debugsrv is the optional operator HTTP endpoint: liveness, a JSON
// status document, an emergency stop and the pprof handlers. It is off by
// default and binds to loopback.
package debugsrv

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "telekinesis/internal/runtime/supervisor"
	logx "telekinesis/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

// errRefused stops the restart loop without failing the supervisor.
var errRefused = context.Canceled

// Config controls the server. A non-loopback Addr requires Token unless
// AllowInsecure is set.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
}

func (c Config) addr() string {
	if a := strings.TrimSpace(c.Addr); a != "" {
		return a
	}
	return DefaultAddr
}

// Hooks connect the endpoints to the daemon. Nil hooks disable their route.
type Hooks struct {
	// Status produces the document served at GET /status.
	Status func(ctx context.Context) any
	// StopAll cancels every running task and reports how many, for POST /stop.
	StopAll func() int
}

type Service struct {
	log   logx.Logger
	hooks Hooks

	mu    sync.Mutex
	cfg   Config
	sup   *rtsup.Supervisor
	bound string
}

func New(cfg Config, hooks Hooks, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, hooks: hooks, log: log.With(logx.String("comp", "debug"))}
}

// Addr returns the bound address while serving, "" otherwise.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

func (s *Service) setBound(a string) {
	s.mu.Lock()
	s.bound = a
	s.mu.Unlock()
}

// Reconfigure applies cfg, starting, stopping or restarting the server as needed.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev, running := s.cfg, s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	if running && (!cfg.Enabled || prev != cfg) {
		s.Stop(ctx)
		running = false
	}
	if !running && cfg.Enabled {
		s.Start(ctx)
	}
}

// Start is idempotent. The listener runs under a bounded restart loop and a
// failure never takes the daemon down.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	cfg := s.cfg
	s.sup.GoRestart("debug.http", func(c context.Context) error { return s.serveOnce(c, cfg) },
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithMaxRestarts(5),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	_ = sup.Stop(ctx)
	s.log.Info("debug server stopped")
}

func (s *Service) serveOnce(ctx context.Context, cfg Config) error {
	addr := cfg.addr()
	if cfg.Token == "" && !cfg.AllowInsecure && !isLoopbackAddr(addr) {
		s.log.Error("debug server refused: non-loopback addr needs a token or allow_insecure", logx.String("addr", addr))
		return errRefused
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	srv := &http.Server{
		Handler:           s.routes(cfg.Token),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	defer stop()

	s.setBound(ln.Addr().String())
	defer s.setBound("")
	s.log.Info("debug server started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""))

	err = srv.Serve(ln)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err == nil || errors.Is(err, http.ErrServerClosed):
		return errors.New("debug server exited unexpectedly")
	default:
		return err
	}
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	// An empty host listens on every interface.
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
