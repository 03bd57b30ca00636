// Package queue persists output that could not be delivered because its
// target driver was not active, keyed by driver identity.
package queue

import (
	"context"
	"errors"
	"time"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/bus"
)

// ErrNotFound reports an empty queue for the requested identities.
var ErrNotFound = errors.New("no queue item found")

// Item is one deferred output delivery awaiting its driver becoming enabled.
type Item struct {
	ID          string              `json:"id"`
	IOID        string              `json:"io_id"`
	SessionID   string              `json:"session_id"`
	Fulfillment *aitypes.Fulfillment `json:"fulfillment"`
	Bag         bus.Bag             `json:"bag,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Store persists pending output items.
type Store interface {
	// Save appends a new queue item.
	Save(ctx context.Context, item *Item) error

	// FindNextFor returns the oldest item whose IOID is among enabledIDs.
	// Returns ErrNotFound when nothing is pending for those identities.
	FindNextFor(ctx context.Context, enabledIDs []string) (*Item, error)

	// Remove deletes the item from the store. Removal happens before the
	// redelivery attempt is dispatched (at-most-once).
	Remove(ctx context.Context, id string) error
}
