package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/webpdtool/engine/internal/app/services/dispatch"
	"github.com/webpdtool/engine/internal/app/services/handlers/chassis"
	"github.com/webpdtool/engine/internal/app/services/instruments"
)

// ChassisRotationHandler drives the chassis fixture via the CRC16-Kermit
// framed serial protocol (see the chassis package).
type ChassisRotationHandler struct {
	registry     Registry
	instrumentID string
	lease        *instruments.Lease
}

func NewChassisRotationFactory(registry Registry) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		if switchMode == "" {
			return nil, fmt.Errorf("ChassisRotation requires switch_mode (driver name)")
		}
		return &ChassisRotationHandler{registry: registry, instrumentID: switchMode}, nil
	}
}

func (h *ChassisRotationHandler) Prepare(ctx context.Context, params map[string]string) error {
	if _, err := requireParam(params, "Operation"); err != nil {
		return err
	}
	lease, err := h.registry.Acquire(ctx, h.instrumentID, "ChassisRotation")
	if err != nil {
		return err
	}
	h.lease = lease
	return nil
}

func (h *ChassisRotationHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	drv, ok := h.lease.Driver.(*chassis.Driver)
	if !ok {
		return dispatch.MeasurementResult{}, fmt.Errorf("No instrument found: %s is not a chassis driver", h.instrumentID)
	}
	timeout := timeoutParam(params, DefaultTimeout)
	operation := params["Operation"]

	if operation == "get_angle" {
		angle, err := drv.GetAngle(ctx, timeout)
		if err != nil {
			h.registry.MarkError(h.instrumentID, err)
			return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
		}
		return dispatch.MeasurementResult{OK: true, Value: strconv.FormatFloat(angle, 'f', 2, 64)}, nil
	}

	angle, _ := strconv.ParseFloat(optionalParam(params, "Angle", "0"), 64)
	if err := drv.Rotate(ctx, operation, angle, timeout); err != nil {
		h.registry.MarkError(h.instrumentID, err)
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	if err := drv.WaitForTurntable(ctx, timeout); err != nil {
		h.registry.MarkError(h.instrumentID, err)
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	final, err := drv.GetAngle(ctx, timeout)
	if err != nil {
		h.registry.MarkError(h.instrumentID, err)
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	return dispatch.MeasurementResult{OK: true, Value: strconv.FormatFloat(final, 'f', 2, 64)}, nil
}

func (h *ChassisRotationHandler) Cleanup(ctx context.Context) error {
	h.registry.Release(h.lease)
	return nil
}
