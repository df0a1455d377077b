package handlers

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/webpdtool/engine/internal/app/services/dispatch"
)

// ScriptedOtherHandler is the Other escape hatch's full form: when a point
// carries an Expression parameter, it is evaluated as a JavaScript
// expression against the point's resolved parameters (bound as a `params`
// object) via a sandboxed goja VM, producing the measured value. Without an
// Expression it passes a value through: the UpstreamValue parameter when
// present, otherwise the Value parameter.
type ScriptedOtherHandler struct{}

func NewScriptedOtherFactory() dispatch.Factory {
	return func(switchMode string) (dispatch.Handler, error) {
		return &ScriptedOtherHandler{}, nil
	}
}

func (h *ScriptedOtherHandler) Prepare(ctx context.Context, params map[string]string) error { return nil }

func (h *ScriptedOtherHandler) Execute(ctx context.Context, params map[string]string) (dispatch.MeasurementResult, error) {
	expr, ok := params["Expression"]
	if !ok || expr == "" {
		if v, ok := params[dispatch.UpstreamValueKey]; ok {
			return dispatch.MeasurementResult{OK: true, Value: v}, nil
		}
		return dispatch.MeasurementResult{OK: true, Value: params["Value"]}, nil
	}

	vm := goja.New()
	paramsObj := make(map[string]interface{}, len(params))
	for k, v := range params {
		paramsObj[k] = v
	}
	if err := vm.Set("params", paramsObj); err != nil {
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: scripted handler setup failed: %v", err)
	}
	result, err := vm.RunString(expr)
	if err != nil {
		return dispatch.MeasurementResult{}, fmt.Errorf("Error: script evaluation failed: %v", err)
	}
	return dispatch.MeasurementResult{OK: true, Value: result.String()}, nil
}

func (h *ScriptedOtherHandler) Cleanup(ctx context.Context) error { return nil }
