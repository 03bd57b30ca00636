package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/bus"
	"voxhub/pkg/config"
	"voxhub/pkg/session"
	"voxhub/pkg/storage"
)

func newTestDriver(t *testing.T) (*Driver, *bus.Bus) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "voxhub.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := session.NewSQLStore(context.Background(), db)
	if err != nil {
		t.Fatalf("initialize store: %v", err)
	}

	b := bus.New()
	t.Cleanup(b.Close)

	d, err := New(config.WebConfig{}, b, session.NewRegistrar("otto", store, nil), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	return d, b
}

func dialTestServer(t *testing.T, d *Driver, ctx context.Context) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.handleConnection(ctx, w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestTextFrameBecomesInput(t *testing.T) {
	d, b := newTestDriver(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestServer(t, d, ctx)

	if err := conn.WriteJSON(inFrame{Text: "hello"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	ev, ok := b.ConsumeInput(ctx)
	if !ok {
		t.Fatal("expected an input event")
	}
	if ev.Params.Text != "hello" {
		t.Fatalf("text = %q, want hello", ev.Params.Text)
	}
	if ev.Session == nil || ev.Session.IODriver != Name {
		t.Fatalf("unexpected session: %+v", ev.Session)
	}
}

func TestEventFrameBecomesInput(t *testing.T) {
	d, b := newTestDriver(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestServer(t, d, ctx)

	if err := conn.WriteJSON(inFrame{Event: "alarm"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	ev, ok := b.ConsumeInput(ctx)
	if !ok {
		t.Fatal("expected an input event")
	}
	if ev.Params.Event != "alarm" {
		t.Fatalf("event = %q, want alarm", ev.Params.Event)
	}
}

func TestOutputDeliversToConnection(t *testing.T) {
	d, b := newTestDriver(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestServer(t, d, ctx)

	// Drive one input through to learn the registered session.
	if err := conn.WriteJSON(inFrame{Text: "hello"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	ev, ok := b.ConsumeInput(ctx)
	if !ok {
		t.Fatal("expected an input event")
	}

	processed, err := d.Output(ctx, &aitypes.Fulfillment{Text: "reply"}, ev.Session, nil)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if !processed {
		t.Fatal("expected output to be processed")
	}

	var received aitypes.Fulfillment
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if received.Text != "reply" {
		t.Fatalf("text = %q, want reply", received.Text)
	}
}

func TestOutputWithoutConnection(t *testing.T) {
	d, _ := newTestDriver(t)

	sess := &session.Session{ID: "otto-web-gone"}
	if _, err := d.Output(context.Background(), &aitypes.Fulfillment{Text: "hi"}, sess, nil); err == nil {
		t.Fatal("expected an error for a session with no live connection")
	}
}
