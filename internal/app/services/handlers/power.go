package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/webpdtool/engine/internal/app/services/dispatch"
	"github.com/webpdtool/engine/internal/app/services/instruments"
)

// PowerSetHandler drives a programmable supply's output voltage/current.
type PowerSetHandler struct {
	registry     Registry
	instrumentID string
	lease        *instruments.Lease
}

// NewPowerSetFactory returns a dispatch.Factory for the PowerSet handler kind.
// switchMode selects the driver, e.g. "MODEL2303".
func NewPowerSetFactory(registry Registry) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		if switchMode == "" {
			return nil, fmt.Errorf("PowerSet requires switch_mode (driver name)")
		}
		return &PowerSetHandler{registry: registry, instrumentID: switchMode}, nil
	}
}

func (h *PowerSetHandler) Prepare(ctx context.Context, params map[string]string) error {
	if _, err := requireParam(params, "SetVolt"); err != nil {
		return err
	}
	if _, err := requireParam(params, "SetCurr"); err != nil {
		return err
	}
	lease, err := h.registry.Acquire(ctx, h.instrumentID, "PowerSet")
	if err != nil {
		return err
	}
	h.lease = lease
	return nil
}

func (h *PowerSetHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	drv, ok := h.lease.Driver.(PowerDriver)
	if !ok {
		return dispatch.MeasurementResult{}, fmt.Errorf("No instrument found: %s is not a power supply driver", h.instrumentID)
	}
	volts, err := strconv.ParseFloat(params["SetVolt"], 64)
	if err != nil {
		return dispatch.MeasurementResult{}, fmt.Errorf("invalid SetVolt: %w", err)
	}
	amps, err := strconv.ParseFloat(params["SetCurr"], 64)
	if err != nil {
		return dispatch.MeasurementResult{}, fmt.Errorf("invalid SetCurr: %w", err)
	}
	channel := optionalParam(params, "Channel", "")
	if err := drv.SetVoltage(ctx, channel, volts, amps); err != nil {
		h.registry.MarkError(h.instrumentID, err)
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	return dispatch.MeasurementResult{OK: true, Value: "OK"}, nil
}

func (h *PowerSetHandler) Cleanup(ctx context.Context) error {
	h.registry.Release(h.lease)
	return nil
}

// PowerReadHandler queries a DMM/DAQ for a reading.
type PowerReadHandler struct {
	registry     Registry
	instrumentID string
	lease        *instruments.Lease
}

// NewPowerReadFactory returns a dispatch.Factory for the PowerRead handler
// kind. switchMode selects the driver, e.g. "DAQ973A".
func NewPowerReadFactory(registry Registry) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		if switchMode == "" {
			return nil, fmt.Errorf("PowerRead requires switch_mode (driver name)")
		}
		return &PowerReadHandler{registry: registry, instrumentID: switchMode}, nil
	}
}

func (h *PowerReadHandler) Prepare(ctx context.Context, params map[string]string) error {
	if _, err := requireParam(params, "Item"); err != nil {
		return err
	}
	lease, err := h.registry.Acquire(ctx, h.instrumentID, "PowerRead")
	if err != nil {
		return err
	}
	h.lease = lease
	return nil
}

func (h *PowerReadHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	drv, ok := h.lease.Driver.(MeterDriver)
	if !ok {
		return dispatch.MeasurementResult{}, fmt.Errorf("No instrument found: %s is not a meter driver", h.instrumentID)
	}
	channel := optionalParam(params, "Channel", "")
	item := params["Item"]
	kind := optionalParam(params, "Type", "DC")
	value, err := drv.Read(ctx, channel, item, kind)
	if err != nil {
		h.registry.MarkError(h.instrumentID, err)
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	return dispatch.MeasurementResult{OK: true, Value: value}, nil
}

func (h *PowerReadHandler) Cleanup(ctx context.Context) error {
	h.registry.Release(h.lease)
	return nil
}
