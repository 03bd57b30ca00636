package iomanager

import (
	"context"
	"errors"
	"fmt"

	"voxhub/pkg/accessory"
	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/bus"
	"voxhub/pkg/driver"
	"voxhub/pkg/queue"
	"voxhub/pkg/session"
)

// OutputResult describes the outcome of one output dispatch.
type OutputResult struct {
	// Delivered means the driver reported it actually sent something.
	Delivered bool

	// Queued means the target driver was down and the output was persisted
	// for later redelivery.
	Queued bool

	// Skipped means there was nothing to dispatch: a nil fulfillment, or one
	// already delivered by an external generator.
	Skipped bool
}

// Handle runs one input event through the full pipeline: resolve the input
// into a fulfillment, dispatch it through the session's driver, then walk the
// driver's accessory chain detached.
func (m *Manager) Handle(ctx context.Context, ev bus.InputEvent) error {
	sess := ev.Session
	if sess == nil {
		sess = m.registrar.Global()
	}
	if sess == nil {
		return errors.New("input event has no session and no global session is registered")
	}

	m.bus.PublishEvent(ctx, bus.Event{Type: bus.EventInputReceived, Driver: sess.IODriver, SessionID: sess.ID})

	f, err := m.resolveFulfillment(ctx, ev, sess)
	if err != nil {
		m.log.Error("Fulfillment resolution failed", "session_id", sess.ID, "error", err)
		f = aitypes.ErrorFulfillment(err)
	}
	if f == nil {
		m.log.Warn("Input resolved to no fulfillment", "session_id", sess.ID)
		return nil
	}

	res, err := m.Output(ctx, f, sess, ev.Bag, false)
	if err != nil {
		return err
	}

	if !res.Queued && !res.Skipped {
		go m.runAccessoryChain(context.WithoutCancel(ctx), sess.IODriver, f, sess)
	}

	return nil
}

// resolveFulfillment maps an input event to a fulfillment. Precedence: a
// driver-level error, a pre-resolved fulfillment, a raw body, then the text,
// event or image params. A (nil, nil) return means the event carried nothing
// to resolve.
func (m *Manager) resolveFulfillment(ctx context.Context, ev bus.InputEvent, sess *session.Session) (*aitypes.Fulfillment, error) {
	if ev.Err != nil {
		m.log.Warn("Rendering driver input error back to the user", "session_id", sess.ID, "error", ev.Err)
		return aitypes.ErrorFulfillment(ev.Err), nil
	}

	if ev.Fulfillment != nil {
		return m.resolver.FulfillmentTransformer(ctx, ev.Fulfillment, sess)
	}

	if len(ev.Body) > 0 {
		return m.resolver.FulfillmentFromBody(ctx, ev.Body, sess)
	}

	switch {
	case ev.Params.Text != "":
		m.registrar.WriteLog(ctx, sess, ev.Params.Text)
		m.publishThinking(ctx, sess)
		return m.resolver.TextRequest(ctx, ev.Params.Text, sess)

	case ev.Params.Event != "":
		m.publishThinking(ctx, sess)
		return m.resolver.EventRequest(ctx, ev.Params.Event, sess)

	case ev.Params.Image != "":
		m.publishThinking(ctx, sess)
		return m.resolver.TextRequest(ctx, "The user sent an image: "+ev.Params.Image, sess)
	}

	return nil, nil
}

func (m *Manager) publishThinking(ctx context.Context, sess *session.Session) {
	m.bus.PublishEvent(ctx, bus.Event{Type: bus.EventThinking, Driver: sess.IODriver, SessionID: sess.ID})
}

// Output dispatches one fulfillment to the session's driver.
//
// Redirect substitutes the target session entirely. Forward duplicates the
// delivery to another session, detached and best-effort. Fallback retries a
// failed delivery on another session. When the target driver is down the
// fulfillment is queued instead, unless loadDriverIfNotEnabled asks for a
// fresh driver instance (used when replaying the queue of a driver that is
// coming up right now).
func (m *Manager) Output(ctx context.Context, f *aitypes.Fulfillment, sess *session.Session, bag bus.Bag, loadDriverIfNotEnabled bool) (OutputResult, error) {
	if sess == nil {
		return OutputResult{}, errors.New("output requires a session")
	}

	if f == nil {
		m.log.Warn("Discarding nil fulfillment", "session_id", sess.ID)
		return OutputResult{Skipped: true}, nil
	}

	if f.Payload.HandledByGenerator {
		m.log.Debug("Output already handled by generator", "session_id", sess.ID)
		return OutputResult{Skipped: true}, nil
	}

	if sess.Redirect != nil {
		m.log.Info("Redirecting output", "session_id", sess.ID, "redirect_id", sess.Redirect.ID)
		return m.Output(ctx, f, sess.Redirect, bag, false)
	}

	d, res, err := m.driverFor(ctx, f, sess, bag, loadDriverIfNotEnabled)
	if d == nil {
		return res, err
	}

	if sess.Forward != nil {
		forward := sess.Forward
		forwardCtx := context.WithoutCancel(ctx)
		go func() {
			if _, err := m.Output(forwardCtx, f, forward, bag, false); err != nil {
				m.log.Warn("Forward delivery failed", "session_id", forward.ID, "error", err)
			}
		}()
	}

	delivered, err := d.Output(ctx, transformForDriverOutput(f), sess, bag)
	if err != nil {
		if sess.Fallback != nil {
			m.log.Warn("Driver output failed, falling back",
				"session_id", sess.ID, "fallback_id", sess.Fallback.ID, "error", err)
			return m.Output(ctx, f, sess.Fallback, bag, false)
		}

		m.bus.PublishEvent(ctx, bus.Event{Type: bus.EventOutputFailed, Driver: sess.IODriver, SessionID: sess.ID, Error: err.Error()})
		return OutputResult{}, fmt.Errorf("driver %s output: %w", sess.IODriver, err)
	}

	m.bus.PublishEvent(ctx, bus.Event{Type: bus.EventOutputDelivered, Driver: sess.IODriver, SessionID: sess.ID})
	return OutputResult{Delivered: delivered}, nil
}

// driverFor resolves the driver instance for an output dispatch. A nil driver
// return means the dispatch is already settled: either the output was queued,
// or resolution failed.
func (m *Manager) driverFor(ctx context.Context, f *aitypes.Fulfillment, sess *session.Session, bag bus.Bag, loadDriverIfNotEnabled bool) (driver.Driver, OutputResult, error) {
	if loadDriverIfNotEnabled {
		if d := m.enabledDriver(sess.IODriver); d != nil {
			return d, OutputResult{}, nil
		}

		fresh, err := m.buildDriver(sess.IODriver)
		if err != nil {
			return nil, OutputResult{}, err
		}
		if err := fresh.Start(ctx); err != nil {
			return nil, OutputResult{}, fmt.Errorf("start driver %s for output: %w", sess.IODriver, err)
		}
		return fresh, OutputResult{}, nil
	}

	if !m.IsDriverUp(sess.IOID) {
		item := &queue.Item{
			IOID:        sess.IOID,
			SessionID:   sess.ID,
			Fulfillment: f,
			Bag:         bag,
		}
		if err := m.queue.Save(ctx, item); err != nil {
			return nil, OutputResult{}, fmt.Errorf("queue output for %s: %w", sess.IOID, err)
		}

		m.log.Info("Driver is down, output queued", "io_id", sess.IOID, "session_id", sess.ID)
		m.bus.PublishEvent(ctx, bus.Event{Type: bus.EventOutputQueued, Driver: sess.IODriver, SessionID: sess.ID})
		return nil, OutputResult{Queued: true}, nil
	}

	d := m.enabledDriver(sess.IODriver)
	if d == nil {
		return nil, OutputResult{}, fmt.Errorf("%w: %s", ErrDriverNotEnabled, sess.IODriver)
	}

	return d, OutputResult{}, nil
}

// transformForDriverOutput post-processes a fulfillment right before the
// driver call. Identity for now; the hook point exists so output-side
// rewriting (for example forced language stamping) has one place to live.
func transformForDriverOutput(f *aitypes.Fulfillment) *aitypes.Fulfillment {
	return f
}

// runAccessoryChain walks the driver's accessories in configuration order.
// YesAndBreak consumes the output and stops; YesAndContinue consumes and
// proceeds; No proceeds without side effects. An accessory failure is logged
// and the chain continues.
func (m *Manager) runAccessoryChain(ctx context.Context, driverName string, f *aitypes.Fulfillment, sess *session.Session) {
	m.driversMu.RLock()
	chain := m.accessories[driverName]
	m.driversMu.RUnlock()

	for _, acc := range chain {
		disposition := acc.CanHandleOutput(f, sess)
		if disposition == accessory.No {
			continue
		}

		if err := acc.Output(ctx, f, sess); err != nil {
			m.log.Warn("Accessory output failed", "accessory", acc.Name(), "session_id", sess.ID, "error", err)
			continue
		}

		if disposition == accessory.YesAndBreak {
			m.log.Debug("Accessory consumed output, stopping chain", "accessory", acc.Name(), "session_id", sess.ID)
			return
		}
	}
}
