// Package storage defines the repository ports the engine depends on.
// Relational layout is delegated entirely to implementations; the engine
// only ever sees these interfaces.
package storage

import (
	"context"
	"time"

	"github.com/webpdtool/engine/internal/app/domain/result"
	"github.com/webpdtool/engine/internal/app/domain/session"
	"github.com/webpdtool/engine/internal/app/domain/testplan"
)

// PlanRepository loads the ordered, enabled points for a station/plan.
type PlanRepository interface {
	LoadPlan(ctx context.Context, stationID, projectID, testPlanName string, enabledOnly bool) (testplan.Plan, error)
}

// SessionRepository persists session rows and their lifecycle transitions.
type SessionRepository interface {
	CreateSession(ctx context.Context, s session.Session) (session.Session, error)
	GetSession(ctx context.Context, id string) (session.Session, error)
	UpdateSession(ctx context.Context, s session.Session) error
}

// ResultRepository persists per-point results and SFC audit logs.
type ResultRepository interface {
	SaveResult(ctx context.Context, r result.TestResult) error
	ListResults(ctx context.Context, sessionID string) ([]result.TestResult, error)
	SaveSFCLog(ctx context.Context, l result.SFCLog) error
}

// ReportSink is notified exactly once per session after it reaches a
// terminal state. The default implementation is a no-op; CSV report
// generation is an explicit non-goal of the core.
type ReportSink interface {
	OnSessionTerminal(ctx context.Context, sessionID string, status session.Status) error
}

// Clock abstracts monotonic/wall time so the engine and dispatcher are
// testable without real sleeps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NoopReportSink implements ReportSink by doing nothing.
type NoopReportSink struct{}

func (NoopReportSink) OnSessionTerminal(ctx context.Context, sessionID string, status session.Status) error {
	return nil
}
