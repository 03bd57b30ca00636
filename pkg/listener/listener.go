// Package listener defines fire-and-forget background processes started by
// the hub alongside drivers.
package listener

import "context"

// Listener is a background process with no return value consumed by the hub.
type Listener interface {
	Name() string
	Start(ctx context.Context) error
}
