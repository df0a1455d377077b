package handlers

import (
	"context"
	"fmt"

	"github.com/webpdtool/engine/internal/app/services/dispatch"
	"github.com/webpdtool/engine/internal/app/services/instruments"
)

// RFMeasurementsHandler queries an RF instrument.
type RFMeasurementsHandler struct {
	registry     Registry
	instrumentID string
	lease        *instruments.Lease
}

func NewRFMeasurementsFactory(registry Registry) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		if switchMode == "" {
			return nil, fmt.Errorf("RF_Measurements requires switch_mode (driver name)")
		}
		return &RFMeasurementsHandler{registry: registry, instrumentID: switchMode}, nil
	}
}

func (h *RFMeasurementsHandler) Prepare(ctx context.Context, params map[string]string) error {
	if _, err := requireParam(params, "Frequency"); err != nil {
		return err
	}
	lease, err := h.registry.Acquire(ctx, h.instrumentID, "RF_Measurements")
	if err != nil {
		return err
	}
	h.lease = lease
	return nil
}

func (h *RFMeasurementsHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	drv, ok := h.lease.Driver.(RFDriver)
	if !ok {
		return dispatch.MeasurementResult{}, fmt.Errorf("No instrument found: %s is not an RF driver", h.instrumentID)
	}
	value, err := drv.Measure(ctx, params["Frequency"], optionalParam(params, "Bandwidth", ""), optionalParam(params, "Type", ""))
	if err != nil {
		h.registry.MarkError(h.instrumentID, err)
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	return dispatch.MeasurementResult{OK: true, Value: value}, nil
}

func (h *RFMeasurementsHandler) Cleanup(ctx context.Context) error {
	h.registry.Release(h.lease)
	return nil
}

// L6MPUHandler issues commands to the L6MPU over SSH/serial/hybrid transports.
type L6MPUHandler struct {
	registry     Registry
	instrumentID string
	lease        *instruments.Lease
}

func NewL6MPUFactory(registry Registry) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		if switchMode == "" {
			return nil, fmt.Errorf("L6MPU requires switch_mode (driver name)")
		}
		return &L6MPUHandler{registry: registry, instrumentID: switchMode}, nil
	}
}

func (h *L6MPUHandler) Prepare(ctx context.Context, params map[string]string) error {
	if _, err := requireParam(params, "Command"); err != nil {
		return err
	}
	lease, err := h.registry.Acquire(ctx, h.instrumentID, "L6MPU")
	if err != nil {
		return err
	}
	h.lease = lease
	return nil
}

func (h *L6MPUHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	drv, ok := h.lease.Driver.(MPUDriver)
	if !ok {
		return dispatch.MeasurementResult{}, fmt.Errorf("No instrument found: %s is not an L6MPU driver", h.instrumentID)
	}
	out, err := drv.Issue(ctx, params["Command"], optionalParam(params, "Mode", ""))
	if err != nil {
		h.registry.MarkError(h.instrumentID, err)
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	return dispatch.MeasurementResult{OK: true, Value: out}, nil
}

func (h *L6MPUHandler) Cleanup(ctx context.Context) error {
	h.registry.Release(h.lease)
	return nil
}
