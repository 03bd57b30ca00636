// Package transcript records delivered assistant replies into the session
// input log, giving each conversation a persisted transcript.
package transcript

import (
	"context"
	"log/slog"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/accessory"
	"voxhub/pkg/session"
)

const Name = "transcript"
const speakerPrefix = "assistant: "

// Accessory stores text-bearing outputs and lets the chain continue.
type Accessory struct {
	driverName string
	store      session.Store
	log        *slog.Logger
}

// New builds the transcript accessory bound to one driver.
func New(driverName string, store session.Store, log *slog.Logger) *Accessory {
	if log == nil {
		log = slog.Default()
	}

	return &Accessory{
		driverName: driverName,
		store:      store,
		log:        log.With("component", "accessory.transcript", "driver", driverName),
	}
}

func (a *Accessory) Name() string { return Name }

func (a *Accessory) Start(_ context.Context) error {
	return nil
}

func (a *Accessory) CanHandleOutput(f *aitypes.Fulfillment, _ *session.Session) accessory.Disposition {
	if f == nil || f.Text == "" {
		return accessory.No
	}

	return accessory.YesAndContinue
}

func (a *Accessory) Output(ctx context.Context, f *aitypes.Fulfillment, sess *session.Session) error {
	return a.store.SaveInput(ctx, sess.ID, speakerPrefix+f.Text)
}
