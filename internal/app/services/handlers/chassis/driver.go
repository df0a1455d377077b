package chassis

import (
	"context"
	"time"

	"github.com/webpdtool/engine/internal/app/domain/instrument"
)

// Transport is the minimal serial port capability the chassis driver needs:
// write a frame, read back the paired response frame within a deadline.
type Transport interface {
	WriteFrame(ctx context.Context, frame []byte) error
	ReadFrame(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Driver implements instrument.Driver plus the chassis-specific operations
// the ChassisRotation handler invokes, framed per the CRC16-Kermit wire
// format at 9600 8N1.
type Driver struct {
	transport  Transport
	needsReset bool
}

// NewDriver wraps a Transport (a real serial port, or a fake in tests).
func NewDriver(t Transport) *Driver {
	return &Driver{transport: t}
}

func (d *Driver) Initialize() error { return nil }

func (d *Driver) Reset() error {
	d.needsReset = false
	return nil
}

func (d *Driver) NeedsReset() bool { return d.needsReset }

var _ instrument.Driver = (*Driver)(nil)

func (d *Driver) roundTrip(ctx context.Context, msgType MsgType, body []byte, timeout time.Duration) ([]byte, error) {
	req := Encode(Frame{MsgType: msgType, Body: body})
	if err := d.transport.WriteFrame(ctx, req); err != nil {
		d.needsReset = true
		return nil, err
	}
	raw, err := d.transport.ReadFrame(ctx, timeout)
	if err != nil {
		d.needsReset = true
		return nil, err
	}
	resp, _, err := Decode(raw)
	if err != nil {
		d.needsReset = true
		return nil, err
	}
	status, rest, err := DecodeStatus(resp.Body)
	if err != nil {
		d.needsReset = true
		return nil, err
	}
	if status != StatusSuccess {
		d.needsReset = status == StatusGeneralFailure
		return nil, &StatusError{Status: status}
	}
	return rest, nil
}

// StatusError wraps a non-SUCCESS fixture response status.
type StatusError struct {
	Status StatusCode
}

func (e *StatusError) Error() string { return "chassis fixture returned " + e.Status.String() }

// Rotate drives the turntable to the requested operation/angle.
func (d *Driver) Rotate(ctx context.Context, operation string, angle float64, timeout time.Duration) error {
	msgType := MsgRotateTurntable
	var body []byte
	switch operation {
	case "home":
		body = []byte{0}
	case "rotate_left", "rotate_right":
		body = encodeAngleRequest(operation, angle)
	default:
		body = encodeAngleRequest(operation, angle)
	}
	_, err := d.roundTrip(ctx, msgType, body, timeout)
	return err
}

// GetAngle reads back the current turntable angle.
func (d *Driver) GetAngle(ctx context.Context, timeout time.Duration) (float64, error) {
	rest, err := d.roundTrip(ctx, MsgGetAngle, nil, timeout)
	if err != nil {
		return 0, err
	}
	return decodeAngleResponse(rest), nil
}

// WaitForTurntable blocks until the fixture reports the turntable settled.
func (d *Driver) WaitForTurntable(ctx context.Context, timeout time.Duration) error {
	_, err := d.roundTrip(ctx, MsgWaitForTurntable, nil, timeout)
	return err
}

func encodeAngleRequest(operation string, angle float64) []byte {
	dir := byte(0)
	if operation == "rotate_right" {
		dir = 1
	}
	centiDegrees := uint16(angle * 100)
	return []byte{dir, byte(centiDegrees >> 8), byte(centiDegrees)}
}

func decodeAngleResponse(body []byte) float64 {
	if len(body) < 2 {
		return 0
	}
	centiDegrees := uint16(body[0])<<8 | uint16(body[1])
	return float64(centiDegrees) / 100
}
