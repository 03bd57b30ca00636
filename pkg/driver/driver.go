// Package driver defines the channel adapter contract every I/O driver
// satisfies. The manager never special-cases a concrete driver.
package driver

import (
	"context"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/bus"
	"voxhub/pkg/session"
)

// Driver is one channel-specific adapter (chat bot, console harness,
// websocket endpoint). Input flows through the shared bus the driver was
// constructed with; output is a direct call.
type Driver interface {
	// Name returns the driver identifier used in configuration, composite
	// session IDs and logs.
	Name() string

	// OnlyClientMode marks drivers that cannot run in server mode.
	OnlyClientMode() bool

	// OnlyServerMode marks drivers that cannot run in client mode.
	OnlyServerMode() bool

	// Start begins the driver's input capability (long polling, stdin loop,
	// listening socket). Idempotent: a second call is a no-op.
	Start(ctx context.Context) error

	// Output delivers a fulfillment to the end user on this channel.
	// Returns whether anything was actually sent.
	Output(ctx context.Context, f *aitypes.Fulfillment, sess *session.Session, bag bus.Bag) (bool, error)
}
