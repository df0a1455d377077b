// Package instrument models the runtime-only state of a physical instrument
// connection. Nothing here is persisted; it lives for the process lifetime
// of the Instrument Manager (C5).
package instrument

import "time"

// State is one of the four states an instrument connection may occupy.
type State string

const (
	StateOffline State = "OFFLINE"
	StateIdle    State = "IDLE"
	StateBusy    State = "BUSY"
	StateError   State = "ERROR"
)

// Status is a read-only snapshot returned by the manager's Status() call and
// the HTTP instrument-status endpoint.
type Status struct {
	ID          string
	State       State
	LastError   string
	LastUsedAt  time.Time
	BusyHolder  string
}

// Driver is the capability set the Instrument Manager expects of every
// instrument driver, regardless of its specific class. Class-specific
// capabilities (ReadVoltage, Write, Query, ...) are asserted by handlers via
// narrower interfaces defined in the handlers package.
type Driver interface {
	Initialize() error
	Reset() error
	// NeedsReset reports whether the last I/O operation left the driver in a
	// state that requires a reset before it can be trusted again.
	NeedsReset() bool
}
