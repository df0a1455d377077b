package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/webpdtool/engine/internal/app/domain/result"
	"github.com/webpdtool/engine/internal/app/services/dispatch"
)

// SFCLogger persists one request/response round-trip per SFC invocation,
// supplementing the audit trail the legacy desktop tool kept for every MES
// interaction.
type SFCLogger interface {
	SaveSFCLog(ctx context.Context, l result.SFCLog) error
}

// SFCHandler invokes the external MES "SFC" service and logs the exchange.
type SFCHandler struct {
	client   SFCClient
	logger   SFCLogger
	sessionID string
	itemName  string
}

// NewSFCFactory returns a dispatch.Factory for the SFC handler kind.
// sessionID/itemName are bound once when the factory is built and are copied
// into every SFC audit log row the resulting handlers write.
func NewSFCFactory(client SFCClient, logger SFCLogger, sessionID, itemName string) dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		return &SFCHandler{client: client, logger: logger, sessionID: sessionID, itemName: itemName}, nil
	}
}

func (h *SFCHandler) Prepare(ctx context.Context, params map[string]string) error {
	_, err := requireParam(params, "Operation")
	return err
}

func (h *SFCHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	payload := make(map[string]string, len(params))
	for k, v := range params {
		if k == "Operation" {
			continue
		}
		payload[k] = v
	}

	response, err := h.client.Submit(ctx, params["Operation"], payload)
	logErr := h.logger.SaveSFCLog(ctx, result.SFCLog{
		SessionID: h.sessionID,
		ItemName:  h.itemName,
		Operation: params["Operation"],
		Request:   fmt.Sprintf("%v", payload),
		Response:  response,
		LoggedAt:  time.Now(),
	})
	_ = logErr // logging failures never block the measurement result

	if err != nil {
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: %v", err)
	}

	if path, ok := params["ResponsePath"]; ok && path != "" {
		extracted, extractErr := jsonpath.Get(path, anyFromJSON(response))
		if extractErr == nil {
			return dispatch.MeasurementResult{OK: true, Value: fmt.Sprintf("%v", extracted)}, nil
		}
	}
	return dispatch.MeasurementResult{OK: true, Value: response}, nil
}

func (h *SFCHandler) Cleanup(ctx context.Context) error { return nil }

// anyFromJSON is a minimal adapter so an SFC response text can be fed to the
// jsonpath library, which operates over decoded interface{} documents rather
// than raw text.
func anyFromJSON(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
