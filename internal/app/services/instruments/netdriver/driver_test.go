package netdriver

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeConn struct {
	writeErr  error
	readReply string
	readErr   error
	writes    []string
	closed    bool
}

func (c *fakeConn) WriteLine(ctx context.Context, line string) error {
	c.writes = append(c.writes, line)
	return c.writeErr
}

func (c *fakeConn) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	return c.readReply, c.readErr
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func dialerFor(conn *fakeConn, dialErr error) func(ctx context.Context, addr string) (Conn, error) {
	return func(ctx context.Context, addr string) (Conn, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return conn, nil
	}
}

func TestDriverSetVoltageSendsFormattedCommand(t *testing.T) {
	conn := &fakeConn{readReply: "OK"}
	drv := NewDriver("10.0.0.5:5025", dialerFor(conn, nil))
	if err := drv.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if err := drv.SetVoltage(context.Background(), "CH1", 5.0, 1.5); err != nil {
		t.Fatalf("set voltage: %v", err)
	}
	if len(conn.writes) != 1 {
		t.Fatalf("expected one command written, got %d", len(conn.writes))
	}
	want := "SOUR:VOLT CH1 5.0000;SOUR:CURR 1.5000\n"
	if conn.writes[0] != want {
		t.Fatalf("unexpected command: got %q want %q", conn.writes[0], want)
	}
}

func TestDriverReadTrimsReply(t *testing.T) {
	conn := &fakeConn{readReply: "  3.30  "}
	drv := NewDriver("10.0.0.5:5025", dialerFor(conn, nil))
	if err := drv.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	v, err := drv.Read(context.Background(), "CH1", "volt", "dc")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v != "3.30" {
		t.Fatalf("expected trimmed value, got %q", v)
	}
}

func TestDriverRoundTripMarksNeedsResetOnWriteFailure(t *testing.T) {
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	drv := NewDriver("10.0.0.5:5025", dialerFor(conn, nil))
	_ = drv.Initialize()

	if _, err := drv.Read(context.Background(), "CH1", "volt", "dc"); err == nil {
		t.Fatalf("expected write error to propagate")
	}
	if !drv.NeedsReset() {
		t.Fatalf("expected needs-reset after write failure")
	}
}

func TestDriverRoundTripMarksNeedsResetOnReadFailure(t *testing.T) {
	conn := &fakeConn{readErr: errors.New("timeout")}
	drv := NewDriver("10.0.0.5:5025", dialerFor(conn, nil))
	_ = drv.Initialize()

	if _, err := drv.Measure(context.Background(), "2.4e9", "10e6", "power"); err == nil {
		t.Fatalf("expected read error to propagate")
	}
	if !drv.NeedsReset() {
		t.Fatalf("expected needs-reset after read failure")
	}
}

func TestDriverRoundTripBeforeInitializeFails(t *testing.T) {
	conn := &fakeConn{}
	drv := NewDriver("10.0.0.5:5025", dialerFor(conn, nil))

	if _, err := drv.Issue(context.Background(), "STATUS?", ""); err == nil {
		t.Fatalf("expected error calling a driver method before Initialize")
	}
}

func TestDriverResetRedials(t *testing.T) {
	firstConn := &fakeConn{}
	secondConn := &fakeConn{readReply: "ok"}
	calls := 0
	dial := func(ctx context.Context, addr string) (Conn, error) {
		calls++
		if calls == 1 {
			return firstConn, nil
		}
		return secondConn, nil
	}
	drv := NewDriver("10.0.0.5:5025", dial)
	if err := drv.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := drv.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !firstConn.closed {
		t.Fatalf("expected first connection to be closed on reset")
	}
	if drv.NeedsReset() {
		t.Fatalf("expected needs-reset cleared after successful reset")
	}

	if _, err := drv.Issue(context.Background(), "STATUS?", ""); err != nil {
		t.Fatalf("issue after reset: %v", err)
	}
	if len(secondConn.writes) != 1 {
		t.Fatalf("expected the reset connection to carry the next command")
	}
}

func TestDriverSetRelayAndMeasureFormatCommands(t *testing.T) {
	conn := &fakeConn{readReply: "DONE"}
	drv := NewDriver("relay1", dialerFor(conn, nil))
	_ = drv.Initialize()

	if err := drv.SetRelay(context.Background(), "K1", "closed"); err != nil {
		t.Fatalf("set relay: %v", err)
	}
	if conn.writes[0] != "RELAY:SET K1,CLOSED\n" {
		t.Fatalf("unexpected relay command: %q", conn.writes[0])
	}
}
