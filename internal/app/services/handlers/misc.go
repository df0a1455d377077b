package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/webpdtool/engine/internal/app/services/dispatch"
	"github.com/webpdtool/engine/internal/app/services/instruments"
)

// SerialNumberSource supplies the session's serial number to GetSN.
type SerialNumberSource interface {
	SerialNumber() string
}

// GetSNHandler returns the session's serial number with no side effects.
type GetSNHandler struct {
	source SerialNumberSource
}

func NewGetSNFactory(source SerialNumberSource) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		return &GetSNHandler{source: source}, nil
	}
}

func (h *GetSNHandler) Prepare(ctx context.Context, params map[string]string) error { return nil }

func (h *GetSNHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	return dispatch.MeasurementResult{OK: true, Value: h.source.SerialNumber()}, nil
}

func (h *GetSNHandler) Cleanup(ctx context.Context) error { return nil }

// OperatorPrompt is the side-channel UI callback an OPJudge handler awaits.
// It returns true for OK, false for NG.
type OperatorPrompt interface {
	AskOperator(ctx context.Context, prompt string) (ok bool, err error)
}

// AbortSignal lets OPJudge request session abort on operator NG.
type AbortSignal interface {
	RequestAbort(reason string)
}

// OPJudgeHandler presents a prompt to the operator and awaits OK/NG.
type OPJudgeHandler struct {
	prompt OperatorPrompt
	abort  AbortSignal
}

func NewOPJudgeFactory(prompt OperatorPrompt, abort AbortSignal) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		return &OPJudgeHandler{prompt: prompt, abort: abort}, nil
	}
}

func (h *OPJudgeHandler) Prepare(ctx context.Context, params map[string]string) error {
	_, err := requireParam(params, "Prompt")
	return err
}

func (h *OPJudgeHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	ok, err := h.prompt.AskOperator(ctx, params["Prompt"])
	if err != nil {
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	if !ok {
		if h.abort != nil {
			h.abort.RequestAbort("operator responded NG to: " + params["Prompt"])
		}
		return dispatch.MeasurementResult{OK: true, Value: "NG"}, nil
	}
	return dispatch.MeasurementResult{OK: true, Value: "OK"}, nil
}

func (h *OPJudgeHandler) Cleanup(ctx context.Context) error { return nil }

// WaitHandler sleeps for WaitmSec, honouring cancellation.
type WaitHandler struct{}

func NewWaitFactory() dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		return &WaitHandler{}, nil
	}
}

func (h *WaitHandler) Prepare(ctx context.Context, params map[string]string) error {
	_, err := requireParam(params, "WaitmSec")
	return err
}

func (h *WaitHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	ms, err := strconv.Atoi(params["WaitmSec"])
	if err != nil || ms < 0 {
		return dispatch.MeasurementResult{}, fmt.Errorf("invalid WaitmSec: %q", params["WaitmSec"])
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return dispatch.MeasurementResult{OK: true, Value: "OK"}, nil
	case <-ctx.Done():
		return dispatch.MeasurementResult{}, ctx.Err()
	}
}

func (h *WaitHandler) Cleanup(ctx context.Context) error { return nil }

// RelayHandler toggles a relay through the DUT communications driver.
type RelayHandler struct {
	registry     Registry
	instrumentID string
	lease        *instruments.Lease
	drv          RelayDriver
}

func NewRelayFactory(registry Registry) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		if switchMode == "" {
			return nil, fmt.Errorf("Relay requires switch_mode (driver name)")
		}
		return &RelayHandler{registry: registry, instrumentID: switchMode}, nil
	}
}

func (h *RelayHandler) Prepare(ctx context.Context, params map[string]string) error {
	if _, err := requireParam(params, "RelayId"); err != nil {
		return err
	}
	if _, err := requireParam(params, "State"); err != nil {
		return err
	}
	lease, err := h.registry.Acquire(ctx, h.instrumentID, "Relay")
	if err != nil {
		return err
	}
	drv, ok := lease.Driver.(RelayDriver)
	if !ok {
		h.registry.Release(lease)
		return fmt.Errorf("No instrument found: %s is not a relay driver", h.instrumentID)
	}
	h.lease = lease
	h.drv = drv
	return nil
}

func (h *RelayHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	if err := h.drv.SetRelay(ctx, params["RelayId"], params["State"]); err != nil {
		h.registry.MarkError(h.instrumentID, err)
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	return dispatch.MeasurementResult{OK: true, Value: "OK"}, nil
}

func (h *RelayHandler) Cleanup(ctx context.Context) error {
	h.registry.Release(h.lease)
	return nil
}

// The Other escape hatch's full implementation, ScriptedOtherHandler, lives
// in scripted.go — it supports an optional goja-evaluated Expression
// parameter and falls back to echoing UpstreamValue when absent.
