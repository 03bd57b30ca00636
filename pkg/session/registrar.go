package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Registrar registers sessions lazily on first input from a channel.
type Registrar struct {
	uid   string
	store Store
	log   *slog.Logger

	mu     sync.RWMutex
	global *Session
}

// NewRegistrar builds a Registrar bound to the process owner identity.
func NewRegistrar(uid string, store Store, log *slog.Logger) *Registrar {
	if log == nil {
		log = slog.Default()
	}

	return &Registrar{
		uid:   uid,
		store: store,
		log:   log.With("component", "session.registrar"),
	}
}

// UID returns the process owner identity.
func (r *Registrar) UID() string {
	return r.uid
}

// Store exposes the underlying session store.
func (r *Registrar) Store() Store {
	return r.store
}

// RegisterSession returns the session for (uid, ioDriver, channelSessionID),
// creating it when absent. Registration is idempotent: a duplicate-key create
// means another caller won the race, so the stored record is re-fetched.
//
// An empty channelSessionID registers the global session for that driver.
func (r *Registrar) RegisterSession(ctx context.Context, ioDriver, channelSessionID string, ioData map[string]any, alias string) (*Session, error) {
	id := CompositeID(r.uid, ioDriver, channelSessionID)

	sess, err := r.store.FindByID(ctx, id)
	switch {
	case err == nil:
		r.trackGlobal(channelSessionID, sess)
		return sess, nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("look up session %s: %w", id, err)
	}

	fresh := &Session{
		ID:               id,
		UID:              r.uid,
		IODriver:         ioDriver,
		IOID:             IOIDOf(r.uid, ioDriver),
		ChannelSessionID: channelSessionID,
		IOData:           ioData,
		Alias:            alias,
		Settings:         map[string]any{SettingUpdatedAt: NowStamp()},
		Pipe:             map[string]any{SettingUpdatedAt: NowStamp()},
	}

	if err := r.store.Create(ctx, fresh); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			existing, findErr := r.store.FindByID(ctx, id)
			if findErr != nil {
				return nil, fmt.Errorf("re-fetch session %s after duplicate create: %w", id, findErr)
			}
			r.trackGlobal(channelSessionID, existing)
			return existing, nil
		}
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}

	r.log.Info("New session registered", "session_id", id, "driver", ioDriver)
	r.trackGlobal(channelSessionID, fresh)
	return fresh, nil
}

// WriteLog appends what the user said to the session input log. Failures are
// logged and swallowed: the input log never blocks the dispatch path.
func (r *Registrar) WriteLog(ctx context.Context, sess *Session, text string) {
	if sess == nil || text == "" {
		return
	}

	if err := r.store.SaveInput(ctx, sess.ID, text); err != nil {
		r.log.Warn("Failed to write session input log", "session_id", sess.ID, "error", err)
	}
}

// Global returns the first globally registered session, if any.
func (r *Registrar) Global() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global
}

// trackGlobal records the first session registered without a channel session
// id as the process-wide global session.
func (r *Registrar) trackGlobal(channelSessionID string, sess *Session) {
	if channelSessionID != "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.global == nil {
		r.global = sess
	}
}
