// Package instruments implements the Instrument Manager (C5): a process-wide
// broker that ensures exactly one live connection per instrument id and
// serialises concurrent users of that connection.
package instruments

import (
	"context"
	"fmt"
	"sync"
	"time"

	core "github.com/webpdtool/engine/internal/app/core/service"
	"github.com/webpdtool/engine/internal/app/domain/instrument"
	"github.com/webpdtool/engine/pkg/logger"
	"golang.org/x/time/rate"
)

// DriverRegistry constructs a driver for an instrument id. Implementations
// live outside the core and decide, from the instrument id, which transport
// and wire protocol to speak (see instruments.PhysicalRegistry).
type DriverRegistry interface {
	NewDriver(instrumentID string) (instrument.Driver, error)
}

// DefaultAcquireTimeout is used when a caller does not specify one.
const DefaultAcquireTimeout = 5 * time.Second

// Lease is returned by Acquire and must be passed to Release.
type Lease struct {
	InstrumentID string
	Owner        string
	Driver       instrument.Driver
}

type entry struct {
	mu         sync.Mutex
	driver     instrument.Driver
	state      instrument.State
	holder     string
	lastError  string
	lastUsedAt time.Time
	limiter    *rate.Limiter
}

// DefaultReconnectRPS and DefaultReconnectBurst govern the per-instrument
// reconnect limiter when the caller does not configure one.
const (
	DefaultReconnectRPS   = 1.0
	DefaultReconnectBurst = 3
)

// Manager is the process-wide instrument broker. It has process lifetime and
// is lazily initialised per instrument on first Acquire.
type Manager struct {
	registry       DriverRegistry
	log            *logger.Logger
	hooks          core.ObservationHooks
	reconnectRPS   float64
	reconnectBurst int

	mu      sync.Mutex
	entries map[string]*entry
}

// New constructs a Manager backed by the given driver registry.
func New(registry DriverRegistry, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("instruments")
	}
	return &Manager{
		registry:       registry,
		log:            log,
		reconnectRPS:   DefaultReconnectRPS,
		reconnectBurst: DefaultReconnectBurst,
		entries:        make(map[string]*entry),
	}
}

// WithReconnectLimit configures the per-instrument reconnect rate limiter.
// rps <= 0 or burst <= 0 leave the default in place.
func (m *Manager) WithReconnectLimit(rps float64, burst int) *Manager {
	if rps > 0 {
		m.reconnectRPS = rps
	}
	if burst > 0 {
		m.reconnectBurst = burst
	}
	return m
}

// WithObservationHooks attaches Prometheus-backed hooks around Acquire, so
// lease contention and wait time are visible per instrument.
func (m *Manager) WithObservationHooks(hooks core.ObservationHooks) *Manager {
	m.hooks = hooks
	return m
}

func (m *Manager) entryFor(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		e = &entry{state: instrument.StateOffline, limiter: rate.NewLimiter(rate.Limit(m.reconnectRPS), m.reconnectBurst)}
		m.entries[id] = e
	}
	return e
}

// Acquire blocks until the instrument is IDLE or the context/timeout elapses,
// then transitions it to BUSY with holder=owner. If the instrument is
// OFFLINE it is constructed and initialised first.
func (m *Manager) Acquire(ctx context.Context, instrumentID, owner string) (lease *Lease, err error) {
	end := core.StartObservation(ctx, m.hooks, map[string]string{"instrument_id": instrumentID})
	defer func() { end(err) }()

	e := m.entryFor(instrumentID)

	deadline := time.Now().Add(DefaultAcquireTimeout)
	for {
		e.mu.Lock()
		switch e.state {
		case instrument.StateOffline, instrument.StateError:
			if !e.limiter.Allow() {
				e.mu.Unlock()
				return nil, fmt.Errorf("instrument %s: reconnect rate limited", instrumentID)
			}
			drv, err := m.registry.NewDriver(instrumentID)
			if err != nil {
				e.state = instrument.StateError
				e.lastError = err.Error()
				e.mu.Unlock()
				return nil, fmt.Errorf("instrument %s: not configured: %w", instrumentID, err)
			}
			if err := drv.Initialize(); err != nil {
				e.state = instrument.StateError
				e.lastError = err.Error()
				e.mu.Unlock()
				return nil, fmt.Errorf("instrument %s: initialize failed: %w", instrumentID, err)
			}
			e.driver = drv
			e.state = instrument.StateIdle
			e.lastError = ""
			e.mu.Unlock()
			continue
		case instrument.StateIdle:
			e.state = instrument.StateBusy
			e.holder = owner
			e.lastUsedAt = time.Now()
			drv := e.driver
			e.mu.Unlock()
			return &Lease{InstrumentID: instrumentID, Owner: owner, Driver: drv}, nil
		case instrument.StateBusy:
			e.mu.Unlock()
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("instrument %s: acquire timed out, held by %s", instrumentID, e.holder)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(25 * time.Millisecond):
			}
			continue
		}
		e.mu.Unlock()
	}
}

// Release returns the instrument to IDLE. Idempotent.
func (m *Manager) Release(lease *Lease) {
	if lease == nil {
		return
	}
	e := m.entryFor(lease.InstrumentID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == instrument.StateBusy {
		e.state = instrument.StateIdle
		e.holder = ""
	}
}

// MarkError transitions the instrument into ERROR state after a handler
// observes an I/O failure. The next Acquire reconnects it (a new driver is
// built and initialised) before handing out a lease.
func (m *Manager) MarkError(instrumentID string, cause error) {
	e := m.entryFor(instrumentID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = instrument.StateError
	e.holder = ""
	if cause != nil {
		e.lastError = cause.Error()
	}
}

// Reset forces the driver's reset and moves the instrument to IDLE or ERROR.
func (m *Manager) Reset(instrumentID string) error {
	e := m.entryFor(instrumentID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.driver == nil {
		return fmt.Errorf("instrument %s: not connected", instrumentID)
	}
	if err := e.driver.Reset(); err != nil {
		e.state = instrument.StateError
		e.lastError = err.Error()
		return err
	}
	e.state = instrument.StateIdle
	e.lastError = ""
	return nil
}

// Disconnect tears down the connection; state becomes OFFLINE.
func (m *Manager) Disconnect(instrumentID string) {
	e := m.entryFor(instrumentID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.driver = nil
	e.state = instrument.StateOffline
	e.holder = ""
}

// Status returns a snapshot of every instrument the manager has touched.
func (m *Manager) Status() []instrument.Status {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	out := make([]instrument.Status, 0, len(ids))
	for _, id := range ids {
		e := m.entryFor(id)
		e.mu.Lock()
		out = append(out, instrument.Status{
			ID:         id,
			State:      e.state,
			LastError:  e.lastError,
			LastUsedAt: e.lastUsedAt,
			BusyHolder: e.holder,
		})
		e.mu.Unlock()
	}
	return out
}

// Descriptor advertises the manager's placement in the system layer taxonomy.
func (m *Manager) Descriptor() core.Descriptor {
	return core.Descriptor{Name: "instruments", Domain: "measurement", Layer: core.LayerAdapter}.
		WithCapabilities("acquire", "release", "reset", "status")
}
