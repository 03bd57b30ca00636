package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/bus"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS io_queue (
	id TEXT PRIMARY KEY,
	io_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	fulfillment TEXT NOT NULL,
	bag TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_io_queue_io_id ON io_queue(io_id, created_at);
`

// SQLStore is the sqlite-backed queue Store.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps db and ensures the queue schema exists.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("apply queue schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Save(ctx context.Context, item *Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	fulfillment, err := json.Marshal(item.Fulfillment)
	if err != nil {
		return fmt.Errorf("encode fulfillment: %w", err)
	}

	bag := "{}"
	if item.Bag != nil {
		raw, err := json.Marshal(item.Bag)
		if err != nil {
			return fmt.Errorf("encode bag: %w", err)
		}
		bag = string(raw)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO io_queue (id, io_id, session_id, fulfillment, bag, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.IOID, item.SessionID, string(fulfillment), bag,
		item.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}

	return nil
}

func (s *SQLStore) FindNextFor(ctx context.Context, enabledIDs []string) (*Item, error) {
	if len(enabledIDs) == 0 {
		return nil, ErrNotFound
	}

	placeholders := strings.Repeat("?,", len(enabledIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(enabledIDs))
	for _, id := range enabledIDs {
		args = append(args, id)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, io_id, session_id, fulfillment, bag, created_at
		FROM io_queue
		WHERE io_id IN (`+placeholders+`)
		ORDER BY created_at
		LIMIT 1`, args...)

	var (
		item        Item
		fulfillment string
		bag         string
		createdAt   string
	)
	if err := row.Scan(&item.ID, &item.IOID, &item.SessionID, &fulfillment, &bag, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan queue item: %w", err)
	}

	item.Fulfillment = &aitypes.Fulfillment{}
	if err := json.Unmarshal([]byte(fulfillment), item.Fulfillment); err != nil {
		return nil, fmt.Errorf("decode fulfillment for %s: %w", item.ID, err)
	}

	if strings.TrimSpace(bag) != "" && bag != "{}" {
		item.Bag = bus.Bag{}
		if err := json.Unmarshal([]byte(bag), &item.Bag); err != nil {
			return nil, fmt.Errorf("decode bag for %s: %w", item.ID, err)
		}
	}

	if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		item.CreatedAt = parsed
	}

	return &item, nil
}

func (s *SQLStore) Remove(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM io_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete queue item %s: %w", id, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}

	return nil
}
