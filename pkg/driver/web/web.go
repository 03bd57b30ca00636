// Package web is the websocket driver: each connection is one channel
// session exchanging JSON frames with the hub. Server-only.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/bus"
	"voxhub/pkg/config"
	"voxhub/pkg/session"
)

// Name is the registry key for this driver.
const Name = "web"

const (
	defaultHost = "0.0.0.0"
	defaultPort = 18791
)

// inFrame is one client-to-hub message.
type inFrame struct {
	Text  string `json:"text,omitempty"`
	Event string `json:"event,omitempty"`
}

// Driver serves the /io/web websocket endpoint.
type Driver struct {
	cfg       config.WebConfig
	bus       *bus.Bus
	registrar *session.Registrar
	upgrader  websocket.Upgrader
	log       *slog.Logger

	mu      sync.Mutex
	started bool
	conns   map[string]*wsConn
}

// wsConn serializes writes: gorilla connections allow one writer at a time.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(value)
}

// New constructs the websocket driver.
func New(cfg config.WebConfig, b *bus.Bus, registrar *session.Registrar, log *slog.Logger) (*Driver, error) {
	if log == nil {
		log = slog.Default()
	}

	return &Driver{
		cfg:       cfg,
		bus:       b,
		registrar: registrar,
		upgrader:  websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		log:       log.With("component", "driver.web"),
		conns:     make(map[string]*wsConn),
	}, nil
}

func (d *Driver) Name() string         { return Name }
func (d *Driver) OnlyClientMode() bool { return false }
func (d *Driver) OnlyServerMode() bool { return true }

// Start binds the websocket endpoint. Idempotent.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}

	host := d.cfg.Host
	if host == "" {
		host = defaultHost
	}
	port := d.cfg.Port
	if port <= 0 {
		port = defaultPort
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	mux := http.NewServeMux()
	mux.HandleFunc("/io/web", func(w http.ResponseWriter, r *http.Request) {
		d.handleConnection(ctx, w, r)
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind websocket endpoint on %s: %w", addr, err)
	}

	d.started = true
	d.log.Info("Web driver started", "address", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("Websocket endpoint failed", "error", err)
		}
	}()

	return nil
}

func (d *Driver) handleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.log.Error("Failed to upgrade websocket connection", "error", err)
		return
	}

	channelID := uuid.NewString()
	sess, err := d.registrar.RegisterSession(ctx, Name, channelID,
		map[string]any{"remote_addr": r.RemoteAddr}, r.RemoteAddr)
	if err != nil {
		d.log.Error("Failed to register websocket session", "error", err)
		_ = conn.Close()
		return
	}

	wrapped := &wsConn{conn: conn}
	d.mu.Lock()
	d.conns[sess.ID] = wrapped
	d.mu.Unlock()

	d.log.Info("Websocket session connected", "session_id", sess.ID, "remote_addr", r.RemoteAddr)

	go d.readLoop(ctx, sess, wrapped)
}

func (d *Driver) readLoop(ctx context.Context, sess *session.Session, wrapped *wsConn) {
	defer func() {
		d.mu.Lock()
		delete(d.conns, sess.ID)
		d.mu.Unlock()
		_ = wrapped.conn.Close()
		d.log.Info("Websocket session closed", "session_id", sess.ID)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		_, raw, err := wrapped.conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) && ctx.Err() == nil {
				d.log.Debug("Websocket read failed", "session_id", sess.ID, "error", err)
			}
			return
		}

		var frame inFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Err: fmt.Errorf("decode websocket frame: %w", err)})
			continue
		}

		switch {
		case frame.Text != "":
			d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Params: bus.InputParams{Text: frame.Text}})
		case frame.Event != "":
			d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Params: bus.InputParams{Event: frame.Event}})
		}
	}
}

// Output writes the fulfillment as one JSON frame to the session's
// connection. Fails when the session has no live connection, which lets the
// manager queue or fall back.
func (d *Driver) Output(_ context.Context, f *aitypes.Fulfillment, sess *session.Session, _ bus.Bag) (bool, error) {
	d.mu.Lock()
	wrapped, ok := d.conns[sess.ID]
	d.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("no active websocket connection for session %s", sess.ID)
	}

	if err := wrapped.writeJSON(f); err != nil {
		return false, fmt.Errorf("write websocket frame: %w", err)
	}

	return true, nil
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure)
}
