package iomanager

import (
	"fmt"

	"voxhub/pkg/accessory"
	"voxhub/pkg/accessory/leds"
	"voxhub/pkg/accessory/transcript"
	"voxhub/pkg/driver"
	"voxhub/pkg/driver/console"
	"voxhub/pkg/driver/telegram"
	"voxhub/pkg/driver/web"
	"voxhub/pkg/listener"
	"voxhub/pkg/listener/ioevent"
)

// DriverFactory builds one driver instance from the manager's dependencies.
type DriverFactory func(m *Manager) (driver.Driver, error)

// AccessoryFactory builds one accessory bound to the named driver.
type AccessoryFactory func(m *Manager, driverName string) (accessory.Accessory, error)

// ListenerFactory builds one input listener.
type ListenerFactory func(m *Manager) (listener.Listener, error)

// defaultDriverTable maps config names to driver constructors. Registration
// is static: adding a driver means adding a row here.
func defaultDriverTable() map[string]DriverFactory {
	return map[string]DriverFactory{
		telegram.Name: func(m *Manager) (driver.Driver, error) {
			return telegram.New(m.cfg.Channels.Telegram, m.bus, m.registrar, nil, m.log)
		},
		console.Name: func(m *Manager) (driver.Driver, error) {
			return console.New(m.cfg.Channels.Console, m.bus, m.registrar, m.log)
		},
		web.Name: func(m *Manager) (driver.Driver, error) {
			return web.New(m.cfg.Channels.Web, m.bus, m.registrar, m.log)
		},
	}
}

func defaultAccessoryTable() map[string]AccessoryFactory {
	return map[string]AccessoryFactory{
		leds.Name: func(m *Manager, driverName string) (accessory.Accessory, error) {
			return leds.New(m.cfg.Accessories.Leds, driverName, m.bus, m.log), nil
		},
		transcript.Name: func(m *Manager, driverName string) (accessory.Accessory, error) {
			return transcript.New(driverName, m.sessions, m.log), nil
		},
	}
}

func defaultListenerTable() map[string]ListenerFactory {
	return map[string]ListenerFactory{
		ioevent.Name: func(m *Manager) (listener.Listener, error) {
			return ioevent.New(m.cfg.Hub.Host, 0, m.bus, m.sessions, m.log), nil
		},
	}
}

// buildDriver constructs a registered driver by name without starting it.
func (m *Manager) buildDriver(name string) (driver.Driver, error) {
	factory, ok := m.driverTable[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, name)
	}

	return factory(m)
}

func (m *Manager) buildAccessory(name, driverName string) (accessory.Accessory, error) {
	factory, ok := m.accessoryTable[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccessory, name)
	}

	return factory(m, driverName)
}

func (m *Manager) buildListener(name string) (listener.Listener, error) {
	factory, ok := m.listenerTable[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownListener, name)
	}

	return factory(m)
}
