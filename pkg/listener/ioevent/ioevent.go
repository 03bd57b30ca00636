// Package ioevent exposes an HTTP endpoint that injects named events into a
// session's input pipeline, for out-of-band triggers (alarms, webhooks).
package ioevent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voxhub/pkg/bus"
	"voxhub/pkg/session"
)

const Name = "ioevent"

const (
	defaultHost = "127.0.0.1"
	defaultPort = 18792
)

type eventRequest struct {
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
}

// Listener serves POST /io/event.
type Listener struct {
	host     string
	port     int
	bus      *bus.Bus
	sessions session.Store
	log      *slog.Logger
}

// New builds the event-injection listener.
func New(host string, port int, b *bus.Bus, sessions session.Store, log *slog.Logger) *Listener {
	if host == "" {
		host = defaultHost
	}
	if port <= 0 {
		port = defaultPort
	}
	if log == nil {
		log = slog.Default()
	}

	return &Listener{
		host:     host,
		port:     port,
		bus:      b,
		sessions: sessions,
		log:      log.With("component", "listener.ioevent"),
	}
}

func (l *Listener) Name() string { return Name }

// Start binds the HTTP endpoint and serves until ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	addr := net.JoinHostPort(l.host, strconv.Itoa(l.port))
	mux := http.NewServeMux()
	mux.HandleFunc("/io/event", func(w http.ResponseWriter, r *http.Request) {
		l.handleEvent(ctx, w, r)
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind event listener on %s: %w", addr, err)
	}

	l.log.Info("Event listener started", "address", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Error("Event listener failed", "error", err)
		}
	}()

	return nil
}

func (l *Listener) handleEvent(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request eventRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(request.SessionID) == "" || strings.TrimSpace(request.Event) == "" {
		http.Error(w, "session_id and event are required", http.StatusBadRequest)
		return
	}

	sess, err := l.sessions.FindByID(r.Context(), request.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		l.log.Error("Failed to load session for event", "session_id", request.SessionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if ok := l.bus.PublishInput(ctx, bus.InputEvent{
		Session: sess,
		Params:  bus.InputParams{Event: strings.TrimSpace(request.Event)},
	}); !ok {
		http.Error(w, "hub is shutting down", http.StatusServiceUnavailable)
		return
	}

	l.log.Info("Injected event", "session_id", sess.ID, "event", request.Event)
	w.WriteHeader(http.StatusAccepted)
}
