package iomanager

import "errors"

var (
	// ErrModeIncompatible reports a driver whose mode flags conflict with the
	// configured process mode. The driver is skipped, others continue.
	ErrModeIncompatible = errors.New("driver is not compatible with the configured mode")

	// ErrDriverNotEnabled reports output addressed to a driver absent from
	// the enabled set and not eligible for lazy loading.
	ErrDriverNotEnabled = errors.New("driver is not enabled")

	ErrUnknownDriver    = errors.New("unknown driver name")
	ErrUnknownAccessory = errors.New("unknown accessory name")
	ErrUnknownListener  = errors.New("unknown listener name")
)
