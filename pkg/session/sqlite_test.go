package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"voxhub/pkg/storage"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "voxhub.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLStore(context.Background(), db)
	if err != nil {
		t.Fatalf("initialize store: %v", err)
	}

	return store
}

func sampleSession(channelID string) *Session {
	return &Session{
		ID:               CompositeID("otto", "telegram", channelID),
		UID:              "otto",
		IODriver:         "telegram",
		IOID:             IOIDOf("otto", "telegram"),
		ChannelSessionID: channelID,
		IOData:           map[string]any{"chat_id": channelID},
		Alias:            "Chat " + channelID,
		Settings:         map[string]any{SettingLanguageFrom: "it"},
		Pipe:             map[string]any{},
	}
}

func TestCreateAndFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := sampleSession("42")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := store.FindByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.IODriver != "telegram" || found.ChannelSessionID != "42" {
		t.Fatalf("unexpected session: %+v", found)
	}
	if found.IOData["chat_id"] != "42" {
		t.Fatalf("io_data not round-tripped: %+v", found.IOData)
	}
	if found.Settings[SettingLanguageFrom] != "it" {
		t.Fatalf("settings not round-tripped: %+v", found.Settings)
	}
	if found.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}

func TestFindMissingSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FindByID(context.Background(), "otto-telegram-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDuplicateCreate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, sampleSession("42")); err != nil {
		t.Fatalf("first create: %v", err)
	}

	err := store.Create(ctx, sampleSession("42"))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestMergeUpdatesPreserveUnrelatedKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := sampleSession("42")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.UpdateSettings(ctx, sess.ID, map[string]any{SettingLanguageTo: "de"}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	found, err := store.FindByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Settings[SettingLanguageFrom] != "it" {
		t.Fatalf("existing key clobbered: %+v", found.Settings)
	}
	if found.Settings[SettingLanguageTo] != "de" {
		t.Fatalf("patch key missing: %+v", found.Settings)
	}
	if _, ok := found.Settings[SettingUpdatedAt]; !ok {
		t.Fatal("expected updated_at stamp")
	}
}

func TestUpdatePipeFlag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := sampleSession("42")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.UpdatePipe(ctx, sess.ID, map[string]any{PipeNextWithVoice: true}); err != nil {
		t.Fatalf("update pipe: %v", err)
	}

	found, err := store.FindByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !found.PipeBool(PipeNextWithVoice) {
		t.Fatal("expected voice flag to be set")
	}
}

func TestMergeMissingSession(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateSettings(context.Background(), "nope", map[string]any{"a": 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRoutingReferencesResolvedOneLevel(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	target := sampleSession("target")
	if err := store.Create(ctx, target); err != nil {
		t.Fatalf("create target: %v", err)
	}

	sess := sampleSession("42")
	sess.RedirectID = target.ID
	sess.FallbackID = target.ID
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := store.FindByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Redirect == nil || found.Redirect.ID != target.ID {
		t.Fatalf("redirect not resolved: %+v", found.Redirect)
	}
	if found.Fallback == nil || found.Fallback.ID != target.ID {
		t.Fatalf("fallback not resolved: %+v", found.Fallback)
	}
	if found.Forward != nil {
		t.Fatal("unset forward must stay nil")
	}
	if found.Redirect.Redirect != nil {
		t.Fatal("references must resolve one level deep only")
	}
}

func TestSaveInputAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := sampleSession("1")
	second := sampleSession("2")
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if err := store.Create(ctx, second); err != nil {
		t.Fatalf("create second: %v", err)
	}

	if err := store.SaveInput(ctx, first.ID, "turn on the lights"); err != nil {
		t.Fatalf("save input: %v", err)
	}

	sessions, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
}
