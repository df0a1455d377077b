package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/webpdtool/engine/internal/app/services/dispatch"
	"github.com/webpdtool/engine/internal/app/services/instruments"
)

// extractResponsePath pulls a field out of a JSON-over-text instrument reply
// when the point supplies an optional ResponsePath parameter. Instruments
// that do not speak JSON simply have no ResponsePath set, and raw is
// returned unchanged.
func extractResponsePath(params map[string]string, raw string) string {
	path, ok := params["ResponsePath"]
	if !ok || path == "" {
		return raw
	}
	if !gjson.Valid(raw) {
		return raw
	}
	return gjson.Get(raw, path).String()
}

// ComPortHandler sends a command on a serial port and reads the reply.
type ComPortHandler struct {
	registry     Registry
	instrumentID string
	lease        *instruments.Lease
}

// NewComPortFactory returns a dispatch.Factory for the ComPort handler kind.
// switchMode, when set, selects among multiple serial driver instances;
// otherwise the point's Port parameter identifies the instrument.
func NewComPortFactory(registry Registry) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		return &ComPortHandler{registry: registry, instrumentID: switchMode}, nil
	}
}

func (h *ComPortHandler) Prepare(ctx context.Context, params map[string]string) error {
	port, err := requireParam(params, "Port")
	if err != nil {
		return err
	}
	if _, err := requireParam(params, "Command"); err != nil {
		return err
	}
	id := h.instrumentID
	if id == "" {
		id = "serial:" + port
	}
	lease, err := h.registry.Acquire(ctx, id, "ComPort")
	if err != nil {
		return err
	}
	h.lease = lease
	h.instrumentID = id
	return nil
}

func (h *ComPortHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	drv, ok := h.lease.Driver.(SerialDriver)
	if !ok {
		return dispatch.MeasurementResult{}, fmt.Errorf("No instrument found: %s is not a serial driver", h.instrumentID)
	}
	baud, _ := strconv.Atoi(optionalParam(params, "Baud", "9600"))
	timeout := timeoutParam(params, DefaultTimeout)
	reply, err := drv.SendCommand(ctx, params["Port"], baud, params["Command"], timeout)
	if err != nil {
		h.registry.MarkError(h.instrumentID, err)
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	return dispatch.MeasurementResult{OK: true, Value: extractResponsePath(params, strings.TrimSpace(reply))}, nil
}

func (h *ComPortHandler) Cleanup(ctx context.Context) error {
	h.registry.Release(h.lease)
	return nil
}

// ConSoleHandler opens a console (SSH) session, issues a command, captures
// the output.
type ConSoleHandler struct {
	registry     Registry
	instrumentID string
	lease        *instruments.Lease
}

func NewConSoleFactory(registry Registry) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		return &ConSoleHandler{registry: registry, instrumentID: switchMode}, nil
	}
}

func (h *ConSoleHandler) Prepare(ctx context.Context, params map[string]string) error {
	host, err := requireParam(params, "Host")
	if err != nil {
		return err
	}
	if _, err := requireParam(params, "Command"); err != nil {
		return err
	}
	id := h.instrumentID
	if id == "" {
		id = "console:" + host
	}
	lease, err := h.registry.Acquire(ctx, id, "ConSole")
	if err != nil {
		return err
	}
	h.lease = lease
	h.instrumentID = id
	return nil
}

func (h *ConSoleHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	drv, ok := h.lease.Driver.(ConsoleDriver)
	if !ok {
		return dispatch.MeasurementResult{}, fmt.Errorf("No instrument found: %s is not a console driver", h.instrumentID)
	}
	timeout := timeoutParam(params, DefaultTimeout)
	out, err := drv.RunCommand(ctx, params["Host"], params["Command"], timeout)
	if err != nil {
		h.registry.MarkError(h.instrumentID, err)
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	return dispatch.MeasurementResult{OK: true, Value: extractResponsePath(params, out)}, nil
}

func (h *ConSoleHandler) Cleanup(ctx context.Context) error {
	h.registry.Release(h.lease)
	return nil
}

// TCPIPHandler opens a TCP socket, sends a line, reads a line.
type TCPIPHandler struct {
	registry     Registry
	instrumentID string
	lease        *instruments.Lease
}

func NewTCPIPFactory(registry Registry) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		return &TCPIPHandler{registry: registry, instrumentID: switchMode}, nil
	}
}

func (h *TCPIPHandler) Prepare(ctx context.Context, params map[string]string) error {
	host, err := requireParam(params, "Host")
	if err != nil {
		return err
	}
	if _, err := requireParam(params, "Port"); err != nil {
		return err
	}
	if _, err := requireParam(params, "Command"); err != nil {
		return err
	}
	id := h.instrumentID
	if id == "" {
		id = "tcp:" + host + ":" + params["Port"]
	}
	lease, err := h.registry.Acquire(ctx, id, "TCPIP")
	if err != nil {
		return err
	}
	h.lease = lease
	h.instrumentID = id
	return nil
}

func (h *TCPIPHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	drv, ok := h.lease.Driver.(TCPDriver)
	if !ok {
		return dispatch.MeasurementResult{}, fmt.Errorf("No instrument found: %s is not a TCP driver", h.instrumentID)
	}
	timeout := timeoutParam(params, DefaultTimeout)
	out, err := drv.SendLine(ctx, params["Host"], params["Port"], params["Command"], timeout)
	if err != nil {
		h.registry.MarkError(h.instrumentID, err)
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}
	return dispatch.MeasurementResult{OK: true, Value: extractResponsePath(params, strings.TrimSpace(out))}, nil
}

func (h *TCPIPHandler) Cleanup(ctx context.Context) error {
	h.registry.Release(h.lease)
	return nil
}
