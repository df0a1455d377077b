package netdriver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Driver is a persistent-connection generic instrument driver bound to one
// address for the life of the Instrument Manager entry that owns it. It
// implements every handler-level interface whose methods carry no
// host/port of their own (PowerDriver, MeterDriver, RelayDriver, RFDriver,
// MPUDriver): SetVolt/Read/SetRelay/Measure/Issue all reduce to "format one
// command line, send it, parse the reply line" against the same SCPI-ish
// instrument the connection was dialed for.
type Driver struct {
	addr string
	dial func(ctx context.Context, addr string) (Conn, error)

	mu         sync.Mutex
	conn       Conn
	needsReset bool
}

// NewDriver builds a Driver bound to addr, dialed with dial (DialTCP for a
// "host:port" address, DialSerial for a device path).
func NewDriver(addr string, dial func(ctx context.Context, addr string) (Conn, error)) *Driver {
	return &Driver{addr: addr, dial: dial}
}

func (d *Driver) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return nil
	}
	conn, err := d.dial(context.Background(), d.addr)
	if err != nil {
		return err
	}
	d.conn = conn
	return nil
}

func (d *Driver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
	conn, err := d.dial(context.Background(), d.addr)
	if err != nil {
		d.needsReset = true
		return err
	}
	d.conn = conn
	d.needsReset = false
	return nil
}

func (d *Driver) NeedsReset() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.needsReset
}

func (d *Driver) roundTrip(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return "", fmt.Errorf("netdriver: %s not initialized", d.addr)
	}

	if err := conn.WriteLine(ctx, cmd); err != nil {
		d.markNeedsReset()
		return "", err
	}
	reply, err := conn.ReadLine(ctx, timeout)
	if err != nil {
		d.markNeedsReset()
		return "", err
	}
	return reply, nil
}

func (d *Driver) markNeedsReset() {
	d.mu.Lock()
	d.needsReset = true
	d.mu.Unlock()
}

// SetVoltage satisfies handlers.PowerDriver.
func (d *Driver) SetVoltage(ctx context.Context, channel string, volts, amps float64) error {
	cmd := fmt.Sprintf("SOUR:VOLT %s %.4f;SOUR:CURR %.4f", channel, volts, amps)
	_, err := d.roundTrip(ctx, cmd, 5*time.Second)
	return err
}

// Read satisfies handlers.MeterDriver.
func (d *Driver) Read(ctx context.Context, channel, item, kind string) (string, error) {
	cmd := fmt.Sprintf("MEAS:%s? %s,%s", strings.ToUpper(item), channel, kind)
	reply, err := d.roundTrip(ctx, cmd, 5*time.Second)
	return strings.TrimSpace(reply), err
}

// SetRelay satisfies handlers.RelayDriver.
func (d *Driver) SetRelay(ctx context.Context, relayID, state string) error {
	cmd := fmt.Sprintf("RELAY:SET %s,%s", relayID, strings.ToUpper(state))
	_, err := d.roundTrip(ctx, cmd, 5*time.Second)
	return err
}

// Measure satisfies handlers.RFDriver.
func (d *Driver) Measure(ctx context.Context, frequency, bandwidth, kind string) (string, error) {
	cmd := fmt.Sprintf("RF:MEAS? %s,%s,%s", frequency, bandwidth, kind)
	reply, err := d.roundTrip(ctx, cmd, 10*time.Second)
	return strings.TrimSpace(reply), err
}

// Issue satisfies handlers.MPUDriver.
func (d *Driver) Issue(ctx context.Context, command, mode string) (string, error) {
	cmd := command
	if mode != "" {
		cmd = command + " " + mode
	}
	reply, err := d.roundTrip(ctx, cmd, 10*time.Second)
	return strings.TrimSpace(reply), err
}
