// Package hub wires storage, the resolver and the I/O manager together and
// runs the process: status endpoints, periodic resolver health checks, and
// shutdown.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"voxhub/pkg/ai"
	"voxhub/pkg/bus"
	"voxhub/pkg/config"
	"voxhub/pkg/iomanager"
	"voxhub/pkg/queue"
	"voxhub/pkg/session"
	"voxhub/pkg/storage"
)

const (
	defaultStatusHost = "0.0.0.0"
	defaultStatusPort = 18790

	resolverHealthInterval = 30 * time.Second
)

// Service is one running hub process.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	resolver ai.Resolver
	manager  *iomanager.Manager
	bus      *bus.Bus
	sessions session.Store

	mu               sync.RWMutex
	startedAt        time.Time
	resolverLastOKAt time.Time
	resolverLastErr  string
}

type statusResponse struct {
	Status           string   `json:"status"`
	UptimeSeconds    int64    `json:"uptime_seconds"`
	ResolverLastOKAt string   `json:"resolver_last_ok_at,omitempty"`
	ResolverLastErr  string   `json:"resolver_last_error,omitempty"`
	Drivers          []string `json:"drivers"`
}

// NewService opens storage, builds the resolver and assembles the I/O
// manager. Nothing is started until Run.
func NewService(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = slog.Default()
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sessions, err := session.NewSQLStore(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("initialize session store: %w", err)
	}

	queueStore, err := queue.NewSQLStore(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("initialize queue store: %w", err)
	}

	resolver, err := ai.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize resolver: %w", err)
	}

	b := bus.New()
	registrar := session.NewRegistrar(cfg.UID, sessions, log)
	manager := iomanager.New(cfg, resolver, registrar, queueStore, b, log)

	return &Service{
		cfg:      cfg,
		log:      log.With("component", "hub.service"),
		resolver: resolver,
		manager:  manager,
		bus:      b,
		sessions: sessions,
	}, nil
}

// Manager exposes the I/O manager, mainly for event injection from commands.
func (s *Service) Manager() *iomanager.Manager {
	return s.manager
}

// Run starts the hub and blocks until ctx is done or the status server fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkResolverHealth(ctx); err != nil {
		return err
	}

	serverErrors := make(chan error, 1)
	go s.runStatusServer(ctx, serverErrors)

	go func() {
		ticker := time.NewTicker(resolverHealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.checkResolverHealth(ctx)
			}
		}
	}()

	if err := s.manager.Start(ctx); err != nil {
		s.bus.Close()
		return fmt.Errorf("start io manager: %w", err)
	}

	select {
	case <-ctx.Done():
		s.bus.Close()
		return nil
	case err := <-serverErrors:
		s.bus.Close()
		return err
	}
}

func (s *Service) runStatusServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Hub.Host)
	if host == "" {
		host = defaultStatusHost
	}

	port := s.cfg.Hub.Port
	if port <= 0 {
		port = defaultStatusPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Hub status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	resolverLastOK := ""
	if !s.resolverLastOKAt.IsZero() {
		resolverLastOK = s.resolverLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:           status,
		UptimeSeconds:    uptime,
		ResolverLastOKAt: resolverLastOK,
		ResolverLastErr:  s.resolverLastErr,
		Drivers:          s.manager.EnabledDriverNames(),
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.resolverLastOKAt.IsZero() {
		return false
	}

	return s.resolverLastErr == ""
}

func (s *Service) checkResolverHealth(ctx context.Context) error {
	if err := s.resolver.Health(ctx); err != nil {
		s.mu.Lock()
		s.resolverLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("resolver health check failed: %w", err)
	}

	s.mu.Lock()
	s.resolverLastErr = ""
	s.resolverLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}
