// Package accessory defines driver-bound observers that can intercept or
// augment output delivery.
package accessory

import (
	"context"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/session"
)

// Disposition is an accessory's answer to "can you handle this output".
type Disposition int

const (
	// No passes the output to the next accessory with no side effect.
	No Disposition = iota

	// YesAndContinue consumes the output, then lets the chain proceed.
	YesAndContinue

	// YesAndBreak consumes the output and stops the chain.
	YesAndBreak
)

func (d Disposition) String() string {
	switch d {
	case YesAndContinue:
		return "yes_and_continue"
	case YesAndBreak:
		return "yes_and_break"
	default:
		return "no"
	}
}

// Accessory observes one driver. The manager walks a driver's accessories in
// configuration order after each driver output on the input-handling path.
type Accessory interface {
	Name() string

	// Start begins observing. Called once per bound driver at startup.
	Start(ctx context.Context) error

	// CanHandleOutput decides this accessory's disposition for one output.
	CanHandleOutput(f *aitypes.Fulfillment, sess *session.Session) Disposition

	// Output performs the accessory's own side-effectful delivery. Only
	// called after a Yes disposition.
	Output(ctx context.Context, f *aitypes.Fulfillment, sess *session.Session) error
}
