// Package leds drives an LED indicator from hub events: thinking, output and
// failure states map to colors. On hardware the colors are written through a
// sysfs path; without one they go to the debug log.
package leds

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/accessory"
	"voxhub/pkg/bus"
	"voxhub/pkg/config"
	"voxhub/pkg/session"
)

const Name = "leds"

var (
	colorThinking  = [3]int{255, 255, 0}
	colorDelivered = [3]int{255, 0, 0}
	colorFailed    = [3]int{0, 0, 255}
	colorOff       = [3]int{0, 0, 0}
)

// Sink writes one RGB color to the indicator.
type Sink func(color [3]int) error

// Accessory maps bus events for its bound driver to LED colors.
type Accessory struct {
	driverName string
	bus        *bus.Bus
	sink       Sink
	log        *slog.Logger
}

// New builds the LED accessory bound to one driver.
func New(cfg config.LedsConfig, driverName string, b *bus.Bus, log *slog.Logger) *Accessory {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "accessory.leds", "driver", driverName)

	sink := logSink(log)
	if path := strings.TrimSpace(cfg.SysfsPath); path != "" {
		sink = sysfsSink(path)
	}

	return &Accessory{
		driverName: driverName,
		bus:        b,
		sink:       sink,
		log:        log,
	}
}

func (a *Accessory) Name() string { return Name }

// Start subscribes to hub events and begins driving the indicator.
func (a *Accessory) Start(ctx context.Context) error {
	events, unsubscribe := a.bus.SubscribeEvents(ctx, 16)

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				_ = a.sink(colorOff)
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.Driver != a.driverName {
					continue
				}
				a.apply(event.Type)
			}
		}
	}()

	return nil
}

func (a *Accessory) apply(eventType bus.EventType) {
	var color [3]int
	switch eventType {
	case bus.EventInputReceived, bus.EventThinking:
		color = colorThinking
	case bus.EventOutputDelivered:
		color = colorDelivered
	case bus.EventOutputFailed:
		color = colorFailed
	default:
		color = colorOff
	}

	if err := a.sink(color); err != nil {
		a.log.Warn("Failed to set LED color", "error", err)
	}
}

// CanHandleOutput is always No: the indicator observes, it never intercepts.
func (a *Accessory) CanHandleOutput(_ *aitypes.Fulfillment, _ *session.Session) accessory.Disposition {
	return accessory.No
}

func (a *Accessory) Output(_ context.Context, _ *aitypes.Fulfillment, _ *session.Session) error {
	return nil
}

func logSink(log *slog.Logger) Sink {
	return func(color [3]int) error {
		log.Debug("LED color", "r", color[0], "g", color[1], "b", color[2])
		return nil
	}
}

func sysfsSink(path string) Sink {
	return func(color [3]int) error {
		value := fmt.Sprintf("%d %d %d\n", color[0], color[1], color[2])
		return os.WriteFile(path, []byte(value), 0o644)
	}
}
