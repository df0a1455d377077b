package instruments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/webpdtool/engine/internal/app/domain/instrument"
)

type fakeDriver struct {
	initErr  error
	resetErr error
}

func (d *fakeDriver) Initialize() error { return d.initErr }
func (d *fakeDriver) Reset() error      { return d.resetErr }
func (d *fakeDriver) NeedsReset() bool  { return false }

type fakeRegistry struct {
	mu      sync.Mutex
	builds  int
	newErr  error
	initErr error
}

func (r *fakeRegistry) NewDriver(instrumentID string) (instrument.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds++
	if r.newErr != nil {
		return nil, r.newErr
	}
	return &fakeDriver{initErr: r.initErr}, nil
}

func TestAcquireConnectsOfflineInstrumentAndReturnsLease(t *testing.T) {
	reg := &fakeRegistry{}
	m := New(reg, nil)

	lease, err := m.Acquire(context.Background(), "psu1", "owner-a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if lease.InstrumentID != "psu1" || lease.Owner != "owner-a" {
		t.Fatalf("unexpected lease: %+v", lease)
	}
	if reg.builds != 1 {
		t.Fatalf("expected exactly one driver build, got %d", reg.builds)
	}
}

func TestAcquireBlocksWhileBusyThenSucceedsAfterRelease(t *testing.T) {
	reg := &fakeRegistry{}
	m := New(reg, nil)

	lease, err := m.Acquire(context.Background(), "psu1", "owner-a")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background(), "psu1", "owner-b")
		done <- err
	}()

	select {
	case <-done:
		t.Fatalf("second acquire should not complete while instrument is busy")
	case <-time.After(50 * time.Millisecond):
	}

	m.Release(lease)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second acquire after release: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second acquire did not complete after release")
	}
}

func TestAcquireFailsWhenRegistryCannotBuildDriver(t *testing.T) {
	reg := &fakeRegistry{newErr: errors.New("no such instrument")}
	m := New(reg, nil)

	_, err := m.Acquire(context.Background(), "unknown", "owner-a")
	if err == nil {
		t.Fatalf("expected error from unresolvable instrument id")
	}

	statuses := m.Status()
	if len(statuses) != 1 || statuses[0].State != instrument.StateError {
		t.Fatalf("expected instrument left in ERROR state, got %+v", statuses)
	}
}

func TestAcquireFailsWhenDriverInitializeFails(t *testing.T) {
	reg := &fakeRegistry{initErr: errors.New("connect refused")}
	m := New(reg, nil)

	_, err := m.Acquire(context.Background(), "psu1", "owner-a")
	if err == nil {
		t.Fatalf("expected error from failed initialize")
	}

	statuses := m.Status()
	if len(statuses) != 1 || statuses[0].State != instrument.StateError {
		t.Fatalf("expected instrument left in ERROR state, got %+v", statuses)
	}
}

func TestMarkErrorForcesReconnectOnNextAcquire(t *testing.T) {
	reg := &fakeRegistry{}
	m := New(reg, nil)

	lease, err := m.Acquire(context.Background(), "psu1", "owner-a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	m.Release(lease)
	m.MarkError("psu1", errors.New("bus error"))

	if _, err := m.Acquire(context.Background(), "psu1", "owner-b"); err != nil {
		t.Fatalf("reacquire after MarkError: %v", err)
	}
	if reg.builds != 2 {
		t.Fatalf("expected a second driver build after MarkError, got %d builds", reg.builds)
	}
}

func TestReconnectIsRateLimitedAfterRepeatedFailures(t *testing.T) {
	reg := &fakeRegistry{newErr: errors.New("down")}
	m := New(reg, nil)

	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = m.Acquire(context.Background(), "psu1", fmt.Sprintf("owner-%d", i))
	}
	if lastErr == nil {
		t.Fatalf("expected an error on repeated failing acquires")
	}
	if reg.builds > 3 {
		t.Fatalf("expected reconnect attempts to be rate limited to 3 per window, got %d", reg.builds)
	}
}

func TestWithReconnectLimitOverridesDefaultBurst(t *testing.T) {
	reg := &fakeRegistry{newErr: errors.New("down")}
	m := New(reg, nil).WithReconnectLimit(1, 1)

	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = m.Acquire(context.Background(), "psu1", fmt.Sprintf("owner-%d", i))
	}
	if lastErr == nil {
		t.Fatalf("expected an error on repeated failing acquires")
	}
	if reg.builds > 1 {
		t.Fatalf("expected reconnect attempts capped to the configured burst of 1, got %d", reg.builds)
	}
}

func TestReleaseOfNilLeaseIsNoop(t *testing.T) {
	m := New(&fakeRegistry{}, nil)
	m.Release(nil)
}

func TestDisconnectReturnsInstrumentToOffline(t *testing.T) {
	reg := &fakeRegistry{}
	m := New(reg, nil)

	lease, err := m.Acquire(context.Background(), "psu1", "owner-a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	m.Release(lease)
	m.Disconnect("psu1")

	statuses := m.Status()
	if len(statuses) != 1 || statuses[0].State != instrument.StateOffline {
		t.Fatalf("expected OFFLINE after disconnect, got %+v", statuses)
	}
}
