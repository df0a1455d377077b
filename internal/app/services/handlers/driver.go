// Package handlers implements the ~14 measurement handler kinds (C3). Each
// handler is a thin adapter between the dispatcher's Prepare/Execute/Cleanup
// contract and a class-specific instrument driver leased from the
// Instrument Manager.
package handlers

import (
	"context"
	"time"

	"github.com/webpdtool/engine/internal/app/domain/instrument"
	"github.com/webpdtool/engine/internal/app/services/instruments"
)

// DefaultTimeout is used by handlers whose point did not specify one. The
// specification caps handler I/O at 30s unless overridden.
const DefaultTimeout = 30 * time.Second

const MaxTimeout = 30 * time.Second

// PowerDriver is the capability set for programmable supplies.
type PowerDriver interface {
	instrument.Driver
	SetVoltage(ctx context.Context, channel string, volts, amps float64) error
}

// MeterDriver is the capability set for DMMs/DAQs.
type MeterDriver interface {
	instrument.Driver
	Read(ctx context.Context, channel, item, kind string) (string, error)
}

// SerialDriver talks to a serial port.
type SerialDriver interface {
	instrument.Driver
	SendCommand(ctx context.Context, port string, baud int, command string, timeout time.Duration) (string, error)
}

// ConsoleDriver talks to an SSH/console endpoint.
type ConsoleDriver interface {
	instrument.Driver
	RunCommand(ctx context.Context, host, command string, timeout time.Duration) (string, error)
}

// TCPDriver talks to a bare TCP endpoint.
type TCPDriver interface {
	instrument.Driver
	SendLine(ctx context.Context, host, port, line string, timeout time.Duration) (string, error)
}

// RelayDriver toggles relays through the DUT communications channel.
type RelayDriver interface {
	instrument.Driver
	SetRelay(ctx context.Context, relayID, state string) error
}

// RFDriver queries RF instruments.
type RFDriver interface {
	instrument.Driver
	Measure(ctx context.Context, frequency, bandwidth, kind string) (string, error)
}

// MPUDriver issues commands to the L6MPU over SSH/serial/hybrid transports.
type MPUDriver interface {
	instrument.Driver
	Issue(ctx context.Context, command, mode string) (string, error)
}

// SFCClient invokes the external MES "SFC" service.
type SFCClient interface {
	Submit(ctx context.Context, operation string, payload map[string]string) (response string, err error)
}

// Registry is the subset of *instruments.Manager the handlers depend on,
// named here to keep the handlers package's dependency surface explicit and
// mockable.
type Registry interface {
	Acquire(ctx context.Context, instrumentID, owner string) (*instruments.Lease, error)
	Release(lease *instruments.Lease)
	MarkError(instrumentID string, cause error)
}
