package bus

import (
	"encoding/json"
	"time"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/session"
)

// Bag carries driver-specific side-channel data along an output dispatch.
// Opaque to the queue and the manager.
type Bag map[string]any

// InputParams is the raw input attached to one input event. At most one of
// Text, Event or Image is meaningful; the resolver understands all three.
type InputParams struct {
	Text  string `json:"text,omitempty"`
	Event string `json:"event,omitempty"`
	Image string `json:"image,omitempty"`
}

// InputEvent is one unit of input emitted by a driver onto the bus.
//
// Resolution precedence downstream: Fulfillment (direct), then Body, then
// Params. Err marks input that already failed inside the driver; the manager
// renders it back to the user as an error fulfillment.
type InputEvent struct {
	Session     *session.Session    `json:"session"`
	Params      InputParams         `json:"params"`
	Fulfillment *aitypes.Fulfillment `json:"fulfillment,omitempty"`
	Body        json.RawMessage     `json:"body,omitempty"`
	Bag         Bag                 `json:"bag,omitempty"`
	Err         error               `json:"-"`
}

// EventType tags one observability event on the fanout stream.
type EventType string

const (
	EventInputReceived   EventType = "input_received"
	EventThinking        EventType = "thinking"
	EventOutputDelivered EventType = "output_delivered"
	EventOutputQueued    EventType = "output_queued"
	EventOutputFailed    EventType = "output_failed"
)

// Event is broadcast to accessories and listeners observing the hub.
type Event struct {
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
	Driver    string    `json:"driver,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}
