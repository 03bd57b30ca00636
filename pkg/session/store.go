package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a session lookup miss.
var ErrNotFound = errors.New("session not found")

// ErrAlreadyExists reports a duplicate-key create. Registration treats it as
// "someone else created it" and re-fetches.
var ErrAlreadyExists = errors.New("session already exists")

// InputRecord is one logged user input for a session.
type InputRecord struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists Session documents.
type Store interface {
	// FindByID returns the session with the given composite ID, with
	// redirect/forward/fallback references resolved one level deep.
	// Returns ErrNotFound on a miss.
	FindByID(ctx context.Context, id string) (*Session, error)

	// Create persists a new session. Returns ErrAlreadyExists when the
	// composite ID is already taken.
	Create(ctx context.Context, sess *Session) error

	// UpdateSettings merges patch into the stored settings object and stamps
	// updated_at. The merge is shallow: patch keys replace existing ones,
	// unrelated keys survive.
	UpdateSettings(ctx context.Context, id string, patch map[string]any) error

	// UpdatePipe merges patch into the stored pipe object, like UpdateSettings.
	UpdatePipe(ctx context.Context, id string, patch map[string]any) error

	// SaveInput appends one user input to the session log.
	SaveInput(ctx context.Context, sessionID, text string) error

	// List returns all sessions ordered by creation time.
	List(ctx context.Context) ([]*Session, error)
}
