package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	core "github.com/webpdtool/engine/internal/app/core/service"
	"github.com/webpdtool/engine/pkg/logger"
)

// Service exposes the HTTP API and fits into the system manager lifecycle.
type Service struct {
	addr    string
	handler http.Handler
	log     *logger.Logger

	mu      sync.Mutex
	server  *http.Server
	running bool
	bound   string
}

// NewService wraps handler for addr ("host:port") under the system.Manager
// lifecycle.
func NewService(addr string, handler http.Handler, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Service{addr: addr, handler: handler, log: log}
}

func (s *Service) Name() string { return "http" }

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.running = true
	s.server = server
	s.bound = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("http server error: %v", err)
		}
		s.mu.Lock()
		if s.server == server {
			s.running = false
			s.bound = ""
		}
		s.mu.Unlock()
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	if server == nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return nil
	}
	err := server.Shutdown(ctx)

	s.mu.Lock()
	if s.server == server {
		s.running = false
		s.bound = ""
	}
	s.mu.Unlock()
	return err
}

// Addr returns the bound listener address, empty when not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Descriptor advertises the HTTP service's placement in the system layer
// taxonomy.
func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{Name: "http", Domain: "transport", Layer: core.LayerIngress}.
		WithCapabilities("sessions", "instruments", "testplan", "metrics")
}
