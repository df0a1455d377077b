// Package dispatch implements the Measurement Dispatcher (C2): it maps a
// point's execute_name to a handler, performs use_result substitution, and
// drives the handler's Prepare/Execute/Cleanup phases into a PointOutcome.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	core "github.com/webpdtool/engine/internal/app/core/service"
	"github.com/webpdtool/engine/internal/app/domain/result"
	"github.com/webpdtool/engine/internal/app/domain/testplan"
	"github.com/webpdtool/engine/internal/app/validation"
	"github.com/webpdtool/engine/pkg/logger"
)

// UpstreamValueKey is the well-known parameter key bound to the value of the
// point referenced by use_result, for handlers that consume it explicitly
// (e.g. the Other escape hatch in scenario S5).
const UpstreamValueKey = "UpstreamValue"

// MeasurementResult is what a handler's Execute phase produces.
type MeasurementResult struct {
	OK    bool
	Value string
	Error string
}

// Handler is the capability set every measurement handler kind implements.
type Handler interface {
	Prepare(ctx context.Context, params map[string]string) error
	Execute(ctx context.Context, params map[string]string) (MeasurementResult, error)
	Cleanup(ctx context.Context) error
}

// Factory constructs a Handler for a given switch_mode (sub-selector/driver
// name within the handler kind). switch_mode may be empty when the handler
// kind has no sub-selection.
type Factory func(switchMode string) (Handler, error)

// Registry is the execute_name -> constructor mapping. New handler kinds
// register themselves at process init via Register; the dispatcher is then a
// one-line lookup + invoke.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a normalised execute_name. Re-registering the
// same name overwrites the previous factory, which is useful in tests.
func (r *Registry) Register(executeName string, factory Factory) {
	r.factories[normalise(executeName)] = factory
}

func (r *Registry) lookup(executeName string) (Factory, bool) {
	f, ok := r.factories[normalise(executeName)]
	return f, ok
}

// PointOutcome is the dispatcher's output for one point.
type PointOutcome struct {
	Result     result.Outcome
	Measured   string
	Error      string
	DurationMS int64
}

// Dispatcher drives handler invocation for a single point.
type Dispatcher struct {
	registry *Registry
	clock    Clock
	tracer   core.Tracer
	log      *logger.Logger
}

// Clock is re-declared here (rather than imported from storage) to keep the
// dispatcher's dependency surface minimal and testable in isolation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the dispatcher's time source, for deterministic tests.
func WithClock(c Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithTracer attaches a tracer around each handler phase.
func WithTracer(t core.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithDispatcherHooks attaches Prometheus-backed observation hooks around
// each handler phase, adapting them to the Tracer interface the dispatcher
// already uses for spans.
func WithDispatcherHooks(hooks core.DispatchHooks) Option {
	return func(d *Dispatcher) { d.tracer = hooksTracer{hooks: hooks} }
}

// hooksTracer adapts core.ObservationHooks (OnStart/OnComplete) to the
// Tracer interface, so dispatch.New can be configured with either a real
// tracer or a metrics.DispatcherHooks pair through the same Option slot.
type hooksTracer struct {
	hooks core.DispatchHooks
}

func (t hooksTracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	end := core.StartObservation(ctx, t.hooks, attrs)
	return ctx, end
}

// New constructs a Dispatcher backed by the given registry.
func New(registry *Registry, log *logger.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("dispatch")
	}
	d := &Dispatcher{registry: registry, clock: systemClock{}, tracer: core.NoopTracer, log: log}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// sentinel prefixes that always map to ERROR, never FAIL, regardless of limits.
const (
	sentinelNoInstrument = "No instrument found"
	sentinelErrorPrefix  = "Error:"
)

// Run executes one point to completion. It never panics to the caller: any
// internal fault (including a recovered panic) becomes an ERROR outcome.
func (d *Dispatcher) Run(ctx context.Context, point testplan.Point, resultMap map[string]string) (outcome PointOutcome) {
	t0 := d.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome = PointOutcome{
				Result:     result.Error,
				Error:      fmt.Sprintf("panic in handler: %v", r),
				DurationMS: d.elapsedMS(t0),
			}
		}
	}()

	executeName := normalise(point.ExecuteName)
	switchMode := normaliseSwitchMode(point.SwitchMode)

	factory, ok := d.registry.lookup(executeName)
	if !ok {
		return PointOutcome{Result: result.Error, Error: fmt.Sprintf("unknown execute_name %q", point.ExecuteName), DurationMS: d.elapsedMS(t0)}
	}

	handler, err := factory(switchMode)
	if err != nil {
		return PointOutcome{Result: result.Error, Error: err.Error(), DurationMS: d.elapsedMS(t0)}
	}

	params := resolveParameters(point, resultMap)

	spanCtx, end := d.tracer.StartSpan(ctx, "dispatch."+executeName, map[string]string{"item_name": point.ItemName})
	var execErr error
	defer func() { end(execErr) }()

	if err := handler.Prepare(spanCtx, params); err != nil {
		execErr = err
		_ = handler.Cleanup(spanCtx)
		return PointOutcome{Result: result.Error, Error: err.Error(), DurationMS: d.elapsedMS(t0)}
	}

	measurement, execRunErr := handler.Execute(spanCtx, params)

	cleanupErr := handler.Cleanup(spanCtx)

	if execRunErr != nil {
		execErr = execRunErr
		msg := execRunErr.Error()
		if cleanupErr != nil {
			msg = msg + "; cleanup: " + cleanupErr.Error()
		}
		return PointOutcome{Result: result.Error, Error: msg, DurationMS: d.elapsedMS(t0)}
	}

	if isSentinelError(measurement) {
		msg := measurement.Error
		if msg == "" {
			msg = measurement.Value
		}
		return PointOutcome{Result: result.Error, Error: msg, DurationMS: d.elapsedMS(t0)}
	}

	if !measurement.OK {
		msg := measurement.Error
		if msg == "" {
			msg = "handler reported failure with no value"
		}
		return PointOutcome{Result: result.Error, Error: msg, DurationMS: d.elapsedMS(t0)}
	}

	decision := validation.Evaluate(measurement.Value, point.LowerLimit, point.UpperLimit, point.EqLimit, point.LimitType, point.ValueType)
	outcome = PointOutcome{Measured: measurement.Value, DurationMS: d.elapsedMS(t0)}
	if decision.Pass {
		outcome.Result = result.Pass
	} else {
		outcome.Result = result.Fail
		outcome.Error = decision.Reason
	}
	return outcome
}

func (d *Dispatcher) elapsedMS(t0 time.Time) int64 {
	return d.clock.Now().Sub(t0).Milliseconds()
}

func isSentinelError(m MeasurementResult) bool {
	if strings.HasPrefix(m.Error, sentinelErrorPrefix) {
		return true
	}
	if m.Value == sentinelNoInstrument {
		return true
	}
	if m.OK && m.Value == "" {
		return true
	}
	return false
}

// resolveParameters performs use_result substitution: every parameter whose
// string value exactly matches a key in resultMap is replaced with the
// stored measured value, and the point's own use_result field (if set) is
// additionally bound to UpstreamValueKey.
func resolveParameters(point testplan.Point, resultMap map[string]string) map[string]string {
	out := make(map[string]string, len(point.Parameters)+4)
	for k, v := range point.Parameters {
		if stored, ok := resultMap[v]; ok {
			out[k] = stored
			continue
		}
		out[k] = v
	}
	if point.Command != "" {
		out["Command"] = point.Command
	}
	if point.TimeoutMS > 0 {
		out["Timeout"] = fmt.Sprintf("%d", point.TimeoutMS)
	}
	if point.WaitMSec > 0 {
		out["WaitmSec"] = fmt.Sprintf("%d", point.WaitMSec)
	}
	if point.UseResult != "" {
		if v, ok := resultMap[point.UseResult]; ok {
			out[UpstreamValueKey] = v
		}
	}
	return out
}

func normalise(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normaliseSwitchMode applies the legacy case_type -> switch_mode alias:
// callers may already have resolved case_type into SwitchMode upstream, so
// this only trims and preserves the original casing (driver names like
// DAQ973A are case-sensitive identifiers, not execute_name keywords).
func normaliseSwitchMode(s string) string {
	return strings.TrimSpace(s)
}
