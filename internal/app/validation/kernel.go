// Package validation implements the PDTool4 validation kernel: a pure
// function mapping a measured value and a point's limits to PASS or FAIL.
//
// The kernel has no I/O and no dependency on any other package in this
// module. It must remain that way so it can be fuzzed and property-tested in
// complete isolation from the engine, the dispatcher, and instrument drivers.
package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/webpdtool/engine/internal/app/domain/testplan"
)

// Decision is the kernel's verdict. Reason is empty on PASS.
type Decision struct {
	Pass   bool
	Reason string
}

// Evaluate applies the limit_type/value_type contract described in the
// specification's validation-kernel section. Callers are responsible for the
// pre-check that routes empty, "Error:"-prefixed, or "No instrument found"
// measured values to an ERROR outcome before ever calling Evaluate — the
// kernel itself never produces ERROR, only PASS/FAIL.
func Evaluate(measured string, lower, upper *float64, eq string, limitType testplan.LimitType, valueType testplan.ValueType) Decision {
	switch limitType {
	case testplan.LimitNone, "":
		return Decision{Pass: true}
	case testplan.LimitLower:
		v, ok, reason := coerceFloat(measured, valueType)
		if !ok {
			return Decision{Reason: reason}
		}
		if lower == nil {
			return Decision{Reason: "missing bound"}
		}
		if v >= *lower {
			return Decision{Pass: true}
		}
		return Decision{Reason: fmt.Sprintf("%s not >= %s", measured, formatBound(*lower))}
	case testplan.LimitUpper:
		v, ok, reason := coerceFloat(measured, valueType)
		if !ok {
			return Decision{Reason: reason}
		}
		if upper == nil {
			return Decision{Reason: "missing bound"}
		}
		if v <= *upper {
			return Decision{Pass: true}
		}
		return Decision{Reason: fmt.Sprintf("%s not <= %s", measured, formatBound(*upper))}
	case testplan.LimitBoth:
		v, ok, reason := coerceFloat(measured, valueType)
		if !ok {
			return Decision{Reason: reason}
		}
		if lower == nil || upper == nil {
			return Decision{Reason: "missing bound"}
		}
		if v >= *lower && v <= *upper {
			return Decision{Pass: true}
		}
		return Decision{Reason: fmt.Sprintf("%s not in [%s,%s]", measured, formatBound(*lower), formatBound(*upper))}
	case testplan.LimitEquality:
		eqVal, err := typedEquals(measured, eq, valueType)
		if err != "" {
			return Decision{Reason: err}
		}
		if eqVal {
			return Decision{Pass: true}
		}
		return Decision{Reason: fmt.Sprintf("%s != %s", measured, eq)}
	case testplan.LimitInequality:
		eqVal, err := typedEquals(measured, eq, valueType)
		if err != "" {
			return Decision{Reason: err}
		}
		if !eqVal {
			return Decision{Pass: true}
		}
		return Decision{Reason: fmt.Sprintf("%s == %s", measured, eq)}
	case testplan.LimitPartial:
		// Partial is defined as a substring test regardless of value_type; for
		// integer/float value types this falls back to the string form of
		// both sides, matching CSV-authored legacy plans.
		if strings.Contains(measured, eq) {
			return Decision{Pass: true}
		}
		return Decision{Reason: fmt.Sprintf("%s does not contain %s", measured, eq)}
	default:
		return Decision{Reason: fmt.Sprintf("unknown limit_type %q", limitType)}
	}
}

// coerceFloat parses measured per value_type for the numeric limit types
// (lower/upper/both). string value_type is treated as a parse error for these
// numeric-only comparisons, matching the legacy contract that lower/upper/both
// only apply to integer and float points.
func coerceFloat(measured string, valueType testplan.ValueType) (float64, bool, string) {
	switch valueType {
	case testplan.ValueInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(measured), 10, 64)
		if err != nil {
			return 0, false, "non-integer value"
		}
		return float64(n), true, ""
	case testplan.ValueFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(measured), 64)
		if err != nil {
			return 0, false, "non-numeric value"
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false, "non-numeric value"
		}
		return f, true, ""
	default:
		return 0, false, "non-numeric value"
	}
}

// typedEquals compares measured and eq under value_type's typing rule.
// Floats use bit-exact equality after parsing — never epsilon-based. This
// matches the legacy desktop application and is a deliberate choice, not an
// oversight: do not introduce tolerance here.
func typedEquals(measured, eq string, valueType testplan.ValueType) (bool, string) {
	switch valueType {
	case testplan.ValueInteger:
		m, err := strconv.ParseInt(strings.TrimSpace(measured), 10, 64)
		if err != nil {
			return false, "non-integer value"
		}
		e, err := strconv.ParseInt(strings.TrimSpace(eq), 10, 64)
		if err != nil {
			return false, "non-integer value"
		}
		return m == e, ""
	case testplan.ValueFloat:
		m, err := strconv.ParseFloat(strings.TrimSpace(measured), 64)
		if err != nil || math.IsNaN(m) || math.IsInf(m, 0) {
			return false, "non-numeric value"
		}
		e, err := strconv.ParseFloat(strings.TrimSpace(eq), 64)
		if err != nil || math.IsNaN(e) || math.IsInf(e, 0) {
			return false, "non-numeric value"
		}
		return m == e, ""
	default:
		return measured == eq, ""
	}
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
