package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	uid TEXT NOT NULL,
	io_driver TEXT NOT NULL,
	io_id TEXT NOT NULL,
	channel_session_id TEXT NOT NULL DEFAULT '',
	io_data TEXT NOT NULL DEFAULT '{}',
	alias TEXT NOT NULL DEFAULT '',
	settings TEXT NOT NULL DEFAULT '{}',
	pipe TEXT NOT NULL DEFAULT '{}',
	redirect_session_id TEXT NOT NULL DEFAULT '',
	forward_session_id TEXT NOT NULL DEFAULT '',
	fallback_session_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_io_id ON sessions(io_id);

CREATE TABLE IF NOT EXISTS session_inputs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_inputs_session ON session_inputs(session_id);
`

const sessionColumns = `id, uid, io_driver, io_id, channel_session_id, io_data, alias,
	settings, pipe, redirect_session_id, forward_session_id, fallback_session_id, created_at`

// SQLStore is the sqlite-backed Store.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps db and ensures the session schema exists.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("apply session schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) FindByID(ctx context.Context, id string) (*Session, error) {
	sess, err := s.findShallow(ctx, id)
	if err != nil {
		return nil, err
	}

	// Resolve routing references one level deep only. Referenced sessions
	// keep their raw reference IDs but not nested session objects.
	if sess.RedirectID != "" {
		sess.Redirect, _ = s.findShallow(ctx, sess.RedirectID)
	}
	if sess.ForwardID != "" {
		sess.Forward, _ = s.findShallow(ctx, sess.ForwardID)
	}
	if sess.FallbackID != "" {
		sess.Fallback, _ = s.findShallow(ctx, sess.FallbackID)
	}

	return sess, nil
}

func (s *SQLStore) findShallow(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)

	return scanSession(row)
}

func (s *SQLStore) Create(ctx context.Context, sess *Session) error {
	ioData, err := marshalObject(sess.IOData)
	if err != nil {
		return fmt.Errorf("encode io_data: %w", err)
	}
	settings, err := marshalObject(sess.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	pipe, err := marshalObject(sess.Pipe)
	if err != nil {
		return fmt.Errorf("encode pipe: %w", err)
	}

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UID, sess.IODriver, sess.IOID, sess.ChannelSessionID,
		ioData, sess.Alias, settings, pipe,
		sess.RedirectID, sess.ForwardID, sess.FallbackID,
		sess.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}

	return nil
}

func (s *SQLStore) UpdateSettings(ctx context.Context, id string, patch map[string]any) error {
	return s.mergeColumn(ctx, id, "settings", patch)
}

func (s *SQLStore) UpdatePipe(ctx context.Context, id string, patch map[string]any) error {
	return s.mergeColumn(ctx, id, "pipe", patch)
}

// mergeColumn merges patch into one JSON column inside a transaction so that
// concurrent partial updates do not clobber each other's keys.
func (s *SQLStore) mergeColumn(ctx context.Context, id, column string, patch map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	row := tx.QueryRowContext(ctx, "SELECT "+column+" FROM sessions WHERE id = ?", id)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s for %s: %w", column, id, err)
	}

	current := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return fmt.Errorf("decode %s for %s: %w", column, id, err)
		}
	}

	for key, value := range patch {
		current[key] = value
	}
	current[SettingUpdatedAt] = NowStamp()

	merged, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode %s for %s: %w", column, id, err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET "+column+" = ? WHERE id = ?", string(merged), id); err != nil {
		return fmt.Errorf("write %s for %s: %w", column, id, err)
	}

	return tx.Commit()
}

func (s *SQLStore) SaveInput(ctx context.Context, sessionID, text string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO session_inputs (session_id, text, created_at) VALUES (?, ?, ?)",
		sessionID, text, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert session input: %w", err)
	}

	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess      Session
		ioData    string
		settings  string
		pipe      string
		createdAt string
	)

	err := row.Scan(
		&sess.ID, &sess.UID, &sess.IODriver, &sess.IOID, &sess.ChannelSessionID,
		&ioData, &sess.Alias, &settings, &pipe,
		&sess.RedirectID, &sess.ForwardID, &sess.FallbackID, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if err := unmarshalObject(ioData, &sess.IOData); err != nil {
		return nil, fmt.Errorf("decode io_data for %s: %w", sess.ID, err)
	}
	if err := unmarshalObject(settings, &sess.Settings); err != nil {
		return nil, fmt.Errorf("decode settings for %s: %w", sess.ID, err)
	}
	if err := unmarshalObject(pipe, &sess.Pipe); err != nil {
		return nil, fmt.Errorf("decode pipe for %s: %w", sess.ID, err)
	}

	if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		sess.CreatedAt = parsed
	}

	return &sess, nil
}

func marshalObject(value map[string]any) (string, error) {
	if value == nil {
		return "{}", nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

func unmarshalObject(raw string, target *map[string]any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	return json.Unmarshal([]byte(raw), target)
}

// isConstraintError detects a primary-key violation without depending on
// driver-internal error types.
func isConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "constraint")
}
