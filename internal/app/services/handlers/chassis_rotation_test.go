package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/webpdtool/engine/internal/app/services/handlers/chassis"
)

// scriptedChassisTransport answers chassis.Driver round trips with canned
// SUCCESS responses carrying the given angle, in centidegrees.
type scriptedChassisTransport struct {
	responses [][]byte
	call      int
}

func successAngleFrame(msgType chassis.MsgType, centiDegrees uint16) []byte {
	return chassis.Encode(chassis.Frame{
		MsgType: msgType,
		Body:    []byte{byte(chassis.StatusSuccess), byte(centiDegrees >> 8), byte(centiDegrees)},
	})
}

func (s *scriptedChassisTransport) WriteFrame(ctx context.Context, frame []byte) error { return nil }

func (s *scriptedChassisTransport) ReadFrame(ctx context.Context, timeout time.Duration) ([]byte, error) {
	resp := s.responses[s.call]
	s.call++
	return resp, nil
}

func TestChassisRotationHandlerGetAngle(t *testing.T) {
	transport := &scriptedChassisTransport{responses: [][]byte{
		successAngleFrame(chassis.MsgGetAngle, 9000),
	}}
	drv := chassis.NewDriver(transport)
	reg := &fakeRegistry{driver: drv}
	h, err := NewChassisRotationFactory(reg)("chassis1")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	ctx := context.Background()
	params := map[string]string{"Operation": "get_angle"}
	if err := h.Prepare(ctx, params); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	res, err := h.Execute(ctx, params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Value != "90.00" {
		t.Fatalf("expected 90.00 degrees, got %q", res.Value)
	}
}

func TestChassisRotationHandlerRotateWaitsThenReadsFinalAngle(t *testing.T) {
	transport := &scriptedChassisTransport{responses: [][]byte{
		successAngleFrame(chassis.MsgRotateTurntable, 0),
		successAngleFrame(chassis.MsgWaitForTurntable, 0),
		successAngleFrame(chassis.MsgGetAngle, 4500),
	}}
	drv := chassis.NewDriver(transport)
	reg := &fakeRegistry{driver: drv}
	h, _ := NewChassisRotationFactory(reg)("chassis1")
	ctx := context.Background()
	params := map[string]string{"Operation": "rotate_right", "Angle": "45"}
	if err := h.Prepare(ctx, params); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	res, err := h.Execute(ctx, params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Value != "45.00" {
		t.Fatalf("expected final angle 45.00, got %q", res.Value)
	}
}

func TestChassisRotationHandlerRequiresSwitchMode(t *testing.T) {
	reg := &fakeRegistry{driver: chassis.NewDriver(&scriptedChassisTransport{})}
	if _, err := NewChassisRotationFactory(reg)(""); err == nil {
		t.Fatalf("expected error when switch_mode is empty")
	}
}

func TestChassisRotationHandlerWrongDriverKind(t *testing.T) {
	reg := &fakeRegistry{driver: &fakePowerDriver{}}
	h, _ := NewChassisRotationFactory(reg)("chassis1")
	ctx := context.Background()
	params := map[string]string{"Operation": "get_angle"}
	if err := h.Prepare(ctx, params); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := h.Execute(ctx, params); err == nil {
		t.Fatalf("expected type-assertion failure for non-chassis driver")
	}
}
