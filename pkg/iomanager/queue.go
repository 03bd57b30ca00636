package iomanager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"voxhub/pkg/queue"
)

const defaultQueueInterval = time.Second

// ProcessIOQueue takes at most one pending item addressed to a currently
// enabled driver and redelivers it.
//
// Delivery is at-most-once: the item is removed from the store before the
// driver call, and the in-process guard is the single decision point that
// keeps overlapping ticks from dispatching the same item twice. A failed
// redelivery is reported, not retried.
func (m *Manager) ProcessIOQueue(ctx context.Context) (*queue.Item, error) {
	m.driversMu.RLock()
	enabledIDs := slices.Clone(m.enabledIDs)
	m.driversMu.RUnlock()

	if len(enabledIDs) == 0 {
		return nil, nil
	}

	item, err := m.queue.FindNextFor(ctx, enabledIDs)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("poll io queue: %w", err)
	}

	if !m.markInProcess(item.ID) {
		return nil, nil
	}
	defer m.clearInProcess(item.ID)

	m.log.Info("Processing queued output", "item_id", item.ID, "io_id", item.IOID, "session_id", item.SessionID)

	if err := m.queue.Remove(ctx, item.ID); err != nil {
		return nil, fmt.Errorf("remove queue item %s: %w", item.ID, err)
	}

	sess, err := m.sessions.FindByID(ctx, item.SessionID)
	if err != nil {
		return item, fmt.Errorf("load session %s for queued output: %w", item.SessionID, err)
	}

	if _, err := m.Output(ctx, item.Fulfillment, sess, item.Bag, false); err != nil {
		return item, fmt.Errorf("deliver queued output %s: %w", item.ID, err)
	}

	return item, nil
}

// runQueuePolling ticks ProcessIOQueue until ctx is done.
func (m *Manager) runQueuePolling(ctx context.Context) {
	interval := time.Duration(m.cfg.IOQueue.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultQueueInterval
	}

	m.log.Debug("Queue polling started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Debug("Queue polling stopped")
			return
		case <-ticker.C:
			if _, err := m.ProcessIOQueue(ctx); err != nil {
				m.log.Error("Queue processing failed", "error", err)
			}
		}
	}
}

// markInProcess claims a queue item for dispatch. Returns false when another
// tick already claimed it.
func (m *Manager) markInProcess(id string) bool {
	m.inProcessMu.Lock()
	defer m.inProcessMu.Unlock()

	if m.inProcess[id] {
		return false
	}

	m.inProcess[id] = true
	return true
}

func (m *Manager) clearInProcess(id string) {
	m.inProcessMu.Lock()
	defer m.inProcessMu.Unlock()
	delete(m.inProcess, id)
}
