package handlers

import (
	"fmt"
	"strconv"
	"time"
)

// requireParam returns params[key] or a descriptive Prepare error.
func requireParam(params map[string]string, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return "", fmt.Errorf("missing required parameter %s", key)
	}
	return v, nil
}

// optionalParam returns params[key] or def if absent.
func optionalParam(params map[string]string, key, def string) string {
	if v, ok := params[key]; ok && v != "" {
		return v
	}
	return def
}

// timeoutParam parses a Timeout parameter expressed in milliseconds, falling
// back to def and clamping to MaxTimeout.
func timeoutParam(params map[string]string, def time.Duration) time.Duration {
	raw, ok := params["Timeout"]
	if !ok || raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return def
	}
	d := time.Duration(ms) * time.Millisecond
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}
