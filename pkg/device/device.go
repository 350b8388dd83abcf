// Package device is the battery control core: a capability contract shared
// by every device variant, a per-battery controller over sysfs control
// files, a composite aggregator that presents several physical batteries as
// one logical device, and the discovery coordinator that builds them.
package device

import (
	"context"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/events"
)

// Kind tags the device variant behind the Device interface.
type Kind string

const (
	KindBattery   Kind = "battery"
	KindComposite Kind = "composite"
	KindMock      Kind = "mock"
)

// ThresholdUnknown marks a threshold value that has not been read yet or is
// not exposed by the hardware.
const ThresholdUnknown = -1

// ThresholdPair is the (start%, end%) charge window. When the device has a
// start threshold, start < end holds whenever both values are known.
type ThresholdPair struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Known reports whether both values have been read successfully.
func (p ThresholdPair) Known() bool {
	return p.Start >= 0 && p.End >= 0
}

// Device is the uniform control surface over one or more batteries.
//
// Boolean-returning mutators follow the contract of the underlying
// hardware layer: false means the operation was rejected (validation,
// missing capability, missing helper) or failed; detail goes to the log,
// not to the caller. Successful mutators emit exactly one notification on
// Events() carrying the new state. No notification is ever emitted after
// Destroy.
type Device interface {
	// Name identifies the device; for composites it joins member names.
	Name() string
	Kind() Kind

	// Initialize probes the required control files, performs the first
	// value refresh and starts change monitoring. The device is usable
	// only after Initialize returns true.
	Initialize(ctx context.Context) bool

	Thresholds() ThresholdPair
	SetThresholds(ctx context.Context, start, end int) bool

	ForceDischarge() bool
	SetForceDischarge(ctx context.Context, enabled bool) bool

	// BatteryLevel is the cached charge percentage (0-100).
	BatteryLevel() int

	// Health is the full-charge capacity as a percentage of the design
	// capacity; ok is false when no health counters are readable.
	Health() (health int, ok bool)

	// RefreshValues resynchronizes cached state from the underlying
	// source, emitting notifications only for values that changed.
	RefreshValues(ctx context.Context)

	// Capability flags.
	SupportsForceDischarge() bool
	HasStartThreshold() bool

	// NeedsHelper reports that the privileged helper is missing, leaving
	// the device effectively read-only.
	NeedsHelper() bool

	// Events is the device's notification emitter.
	Events() *events.Emitter

	// Destroy releases monitors and pending timers. Idempotent. In-flight
	// operations observe destruction and abort without notifying.
	Destroy()
}
