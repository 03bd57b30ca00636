package session

import (
	"context"
	"testing"
)

func TestRegisterSessionCreatesOnce(t *testing.T) {
	store := newTestStore(t)
	registrar := NewRegistrar("otto", store, nil)
	ctx := context.Background()

	first, err := registrar.RegisterSession(ctx, "telegram", "42", map[string]any{"chat_id": "42"}, "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if first.ID != "otto-telegram-42" {
		t.Fatalf("id = %q, want otto-telegram-42", first.ID)
	}
	if first.IOID != "otto-telegram" {
		t.Fatalf("io_id = %q, want otto-telegram", first.IOID)
	}
	if _, ok := first.Settings[SettingUpdatedAt]; !ok {
		t.Fatal("expected fresh settings to carry updated_at")
	}

	second, err := registrar.RegisterSession(ctx, "telegram", "42", nil, "")
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("registration is not idempotent: %q vs %q", second.ID, first.ID)
	}
	if second.Alias != "Alice" {
		t.Fatalf("existing record must win: alias = %q", second.Alias)
	}
}

func TestRegisterGlobalSession(t *testing.T) {
	store := newTestStore(t)
	registrar := NewRegistrar("otto", store, nil)
	ctx := context.Background()

	if registrar.Global() != nil {
		t.Fatal("expected no global session before registration")
	}

	sess, err := registrar.RegisterSession(ctx, "console", "", nil, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.ID != "otto-console" {
		t.Fatalf("global id = %q, want otto-console", sess.ID)
	}

	global := registrar.Global()
	if global == nil || global.ID != sess.ID {
		t.Fatalf("global = %+v, want %q", global, sess.ID)
	}

	// A later global registration does not displace the first.
	if _, err := registrar.RegisterSession(ctx, "web", "", nil, ""); err != nil {
		t.Fatalf("second global register: %v", err)
	}
	if registrar.Global().ID != sess.ID {
		t.Fatal("first global session must stick")
	}
}

func TestWriteLogSwallowsMissingSession(t *testing.T) {
	store := newTestStore(t)
	registrar := NewRegistrar("otto", store, nil)

	// Never panics or errors, even for nil sessions or empty text.
	registrar.WriteLog(context.Background(), nil, "hello")
	registrar.WriteLog(context.Background(), &Session{ID: "otto-telegram-42"}, "")
}
