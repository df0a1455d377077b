package chassis

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedTransport struct {
	responses [][]byte
	errs      []error
	calls     int
	writeErr  error
}

func (t *scriptedTransport) WriteFrame(ctx context.Context, frame []byte) error {
	return t.writeErr
}

func (t *scriptedTransport) ReadFrame(ctx context.Context, timeout time.Duration) ([]byte, error) {
	i := t.calls
	t.calls++
	if i < len(t.errs) && t.errs[i] != nil {
		return nil, t.errs[i]
	}
	return t.responses[i], nil
}

func successResponse(msgType MsgType, body []byte) []byte {
	full := append([]byte{byte(StatusSuccess)}, body...)
	return Encode(Frame{MsgType: msgType, Body: full})
}

func failureResponse(msgType MsgType, status StatusCode) []byte {
	return Encode(Frame{MsgType: msgType, Body: []byte{byte(status)}})
}

func TestDriverGetAngleParsesResponse(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{
		successResponse(MsgGetAngle, []byte{0x09, 0x60}), // 0x0960 = 2400 centidegrees = 24.00
	}}
	drv := NewDriver(transport)

	angle, err := drv.GetAngle(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("get angle: %v", err)
	}
	if angle != 24.00 {
		t.Fatalf("expected 24.00, got %v", angle)
	}
	if drv.NeedsReset() {
		t.Fatalf("driver should not need reset after a clean round trip")
	}
}

func TestDriverRotateHome(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{
		successResponse(MsgRotateTurntable, nil),
	}}
	drv := NewDriver(transport)

	if err := drv.Rotate(context.Background(), "home", 0, time.Second); err != nil {
		t.Fatalf("rotate home: %v", err)
	}
}

func TestDriverRoundTripMarksNeedsResetOnWriteError(t *testing.T) {
	transport := &scriptedTransport{writeErr: errors.New("serial write failed")}
	drv := NewDriver(transport)

	_, err := drv.GetAngle(context.Background(), time.Second)
	if err == nil {
		t.Fatalf("expected error from failed write")
	}
	if !drv.NeedsReset() {
		t.Fatalf("expected driver to need reset after write failure")
	}
}

func TestDriverRoundTripMarksNeedsResetOnReadError(t *testing.T) {
	transport := &scriptedTransport{errs: []error{errors.New("timeout")}, responses: [][]byte{nil}}
	drv := NewDriver(transport)

	_, err := drv.GetAngle(context.Background(), time.Second)
	if err == nil {
		t.Fatalf("expected error from failed read")
	}
	if !drv.NeedsReset() {
		t.Fatalf("expected driver to need reset after read failure")
	}
}

func TestDriverRoundTripGeneralFailureMarksNeedsReset(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{
		failureResponse(MsgGetAngle, StatusGeneralFailure),
	}}
	drv := NewDriver(transport)

	_, err := drv.GetAngle(context.Background(), time.Second)
	if err == nil {
		t.Fatalf("expected error for general failure status")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if !drv.NeedsReset() {
		t.Fatalf("expected needs-reset after GENERAL_FAILURE")
	}
}

func TestDriverRoundTripTimeoutStatusDoesNotForceReset(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{
		failureResponse(MsgGetAngle, StatusTimeout),
	}}
	drv := NewDriver(transport)

	_, err := drv.GetAngle(context.Background(), time.Second)
	if err == nil {
		t.Fatalf("expected error for timeout status")
	}
	if drv.NeedsReset() {
		t.Fatalf("TIMEOUT status should not force a reset, unlike GENERAL_FAILURE")
	}
}

func TestDriverResetClearsNeedsReset(t *testing.T) {
	transport := &scriptedTransport{writeErr: errors.New("fail")}
	drv := NewDriver(transport)
	_, _ = drv.GetAngle(context.Background(), time.Second)
	if !drv.NeedsReset() {
		t.Fatalf("expected needs-reset before calling Reset")
	}
	if err := drv.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if drv.NeedsReset() {
		t.Fatalf("expected needs-reset cleared after Reset")
	}
}
