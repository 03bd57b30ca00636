// Package iomanager is the hub core. It owns driver, accessory and listener
// lifecycle, consumes input events from the bus, resolves them into
// fulfillments, and dispatches output back through drivers, with queueing for
// drivers that are currently down.
package iomanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"voxhub/pkg/accessory"
	"voxhub/pkg/ai"
	"voxhub/pkg/bus"
	"voxhub/pkg/config"
	"voxhub/pkg/driver"
	"voxhub/pkg/listener"
	"voxhub/pkg/queue"
	"voxhub/pkg/session"
)

// Manager coordinates every I/O surface of the hub.
//
// enabledDrivers and enabledIDs are written during startup and lazy loading
// only; the queue poller and output path read them under driversMu.
type Manager struct {
	cfg       *config.Config
	log       *slog.Logger
	resolver  ai.Resolver
	registrar *session.Registrar
	sessions  session.Store
	queue     queue.Store
	bus       *bus.Bus

	driverTable    map[string]DriverFactory
	accessoryTable map[string]AccessoryFactory
	listenerTable  map[string]ListenerFactory

	driversMu      sync.RWMutex
	enabledDrivers map[string]driver.Driver
	enabledIDs     []string
	accessories    map[string][]accessory.Accessory
	listeners      []listener.Listener

	inProcessMu sync.Mutex
	inProcess   map[string]bool
}

// New builds a Manager with the default driver, accessory and listener
// registration tables.
func New(cfg *config.Config, resolver ai.Resolver, registrar *session.Registrar, queueStore queue.Store, b *bus.Bus, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		cfg:            cfg,
		log:            log.With("component", "iomanager"),
		resolver:       resolver,
		registrar:      registrar,
		sessions:       registrar.Store(),
		queue:          queueStore,
		bus:            b,
		driverTable:    defaultDriverTable(),
		accessoryTable: defaultAccessoryTable(),
		listenerTable:  defaultListenerTable(),
		enabledDrivers: make(map[string]driver.Driver),
		accessories:    make(map[string][]accessory.Accessory),
		inProcess:      make(map[string]bool),
	}
}

// Start brings the whole I/O surface up: drivers with their accessories, the
// input consume loop, listeners, and the queue poller when enabled. Driver
// failures are isolated and never abort startup.
func (m *Manager) Start(ctx context.Context) error {
	m.StartDrivers(ctx)

	go m.runInputLoop(ctx)

	m.StartListeners(ctx)

	if m.cfg.IOQueue.Enabled {
		go m.runQueuePolling(ctx)
	}

	m.driversMu.RLock()
	started := len(m.enabledDrivers)
	m.driversMu.RUnlock()

	m.log.Info("I/O manager started", "drivers", started, "queue_enabled", m.cfg.IOQueue.Enabled)
	return nil
}

// ConfigureDriver constructs a registered driver and validates it against the
// configured process mode. The driver is not started.
func (m *Manager) ConfigureDriver(name string) (driver.Driver, error) {
	d, err := m.buildDriver(name)
	if err != nil {
		return nil, err
	}

	if m.cfg.ServerMode && d.OnlyClientMode() {
		return nil, fmt.Errorf("%w: %s is client-only", ErrModeIncompatible, name)
	}
	if !m.cfg.ServerMode && d.OnlyServerMode() {
		return nil, fmt.Errorf("%w: %s is server-only", ErrModeIncompatible, name)
	}

	return d, nil
}

// StartDrivers starts every configured driver in order. A driver that fails
// to configure or start is logged and skipped; the others still come up.
func (m *Manager) StartDrivers(ctx context.Context) {
	for _, name := range m.cfg.DriversToLoad() {
		if err := m.startDriver(ctx, name); err != nil {
			m.log.Error("Driver failed to start", "driver", name, "error", err)
		}
	}
}

func (m *Manager) startDriver(ctx context.Context, name string) error {
	d, err := m.ConfigureDriver(name)
	if err != nil {
		return err
	}

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start driver %s: %w", name, err)
	}

	if err := m.StartAccessoriesForDriver(ctx, name); err != nil {
		return err
	}

	ioID := session.IOIDOf(m.registrar.UID(), name)

	m.driversMu.Lock()
	m.enabledDrivers[name] = d
	if !slices.Contains(m.enabledIDs, ioID) {
		m.enabledIDs = append(m.enabledIDs, ioID)
	}
	m.driversMu.Unlock()

	m.log.Info("Driver started", "driver", name, "io_id", ioID)
	return nil
}

// StartAccessoriesForDriver constructs the driver's accessories in
// configuration order, then starts them concurrently. Configuration order is
// preserved because it is the dispatch order of the output chain.
func (m *Manager) StartAccessoriesForDriver(ctx context.Context, driverName string) error {
	names := m.cfg.AccessoriesToLoadForDriver(driverName)
	if len(names) == 0 {
		return nil
	}

	chain := make([]accessory.Accessory, 0, len(names))
	for _, name := range names {
		acc, err := m.buildAccessory(name, driverName)
		if err != nil {
			return err
		}
		chain = append(chain, acc)
	}

	var wg sync.WaitGroup
	startErrs := make([]error, len(chain))
	for i, acc := range chain {
		wg.Add(1)
		go func() {
			defer wg.Done()
			startErrs[i] = acc.Start(ctx)
		}()
	}
	wg.Wait()

	if err := errors.Join(startErrs...); err != nil {
		return fmt.Errorf("start accessories for %s: %w", driverName, err)
	}

	m.driversMu.Lock()
	m.accessories[driverName] = chain
	m.driversMu.Unlock()

	m.log.Debug("Accessories started", "driver", driverName, "count", len(chain))
	return nil
}

// StartListeners starts every configured listener. Listener failures are
// logged and isolated from each other.
func (m *Manager) StartListeners(ctx context.Context) {
	for _, name := range m.cfg.ListenersToLoad() {
		l, err := m.buildListener(name)
		if err != nil {
			m.log.Error("Listener failed to configure", "listener", name, "error", err)
			continue
		}

		if err := l.Start(ctx); err != nil {
			m.log.Error("Listener failed to start", "listener", name, "error", err)
			continue
		}

		m.driversMu.Lock()
		m.listeners = append(m.listeners, l)
		m.driversMu.Unlock()

		m.log.Info("Listener started", "listener", name)
	}
}

// runInputLoop consumes input events off the bus until ctx is done. Each
// event is handled on its own goroutine so a slow resolver call never blocks
// other channels.
func (m *Manager) runInputLoop(ctx context.Context) {
	for {
		ev, ok := m.bus.ConsumeInput(ctx)
		if !ok {
			m.log.Debug("Input loop stopped")
			return
		}

		go m.handleInput(ctx, ev)
	}
}

// handleInput runs one input through Handle. On failure the error itself is
// rendered back to the user through the same pipeline, once.
func (m *Manager) handleInput(ctx context.Context, ev bus.InputEvent) {
	err := m.Handle(ctx, ev)
	if err == nil {
		return
	}

	m.log.Error("Input handling failed", "error", err)

	recovery := bus.InputEvent{
		Session: ev.Session,
		Err:     err,
		Bag:     ev.Bag,
	}
	if err := m.Handle(ctx, recovery); err != nil {
		m.log.Error("Failed to deliver error response", "error", err)
	}
}

// EventToAllDrivers injects a named event addressed to the global session of
// every enabled driver. Used for hub-wide notifications such as startup
// greetings or scheduler triggers.
func (m *Manager) EventToAllDrivers(ctx context.Context, event string) {
	m.driversMu.RLock()
	names := slices.Sorted(maps.Keys(m.enabledDrivers))
	m.driversMu.RUnlock()

	for _, name := range names {
		sess, err := m.registrar.RegisterSession(ctx, name, "", nil, "")
		if err != nil {
			m.log.Warn("Failed to register global session for event", "driver", name, "error", err)
			continue
		}

		m.bus.PublishInput(ctx, bus.InputEvent{
			Session: sess,
			Params:  bus.InputParams{Event: event},
		})
	}
}

// EnabledDriverNames returns the names of drivers currently up, sorted.
func (m *Manager) EnabledDriverNames() []string {
	m.driversMu.RLock()
	defer m.driversMu.RUnlock()
	return slices.Sorted(maps.Keys(m.enabledDrivers))
}

// IsDriverUp reports whether the given driver identity is in the enabled set.
func (m *Manager) IsDriverUp(ioID string) bool {
	m.driversMu.RLock()
	defer m.driversMu.RUnlock()
	return slices.Contains(m.enabledIDs, ioID)
}

func (m *Manager) enabledDriver(name string) driver.Driver {
	m.driversMu.RLock()
	defer m.driversMu.RUnlock()
	return m.enabledDrivers[name]
}
