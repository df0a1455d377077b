// Package engine implements the Session Engine (C1): the session lifecycle
// state machine, the per-point execution loop, and the runAllTest policy.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	core "github.com/webpdtool/engine/internal/app/core/service"
	"github.com/webpdtool/engine/internal/app/domain/result"
	"github.com/webpdtool/engine/internal/app/domain/session"
	"github.com/webpdtool/engine/internal/app/domain/testplan"
	"github.com/webpdtool/engine/internal/app/services/dispatch"
	"github.com/webpdtool/engine/internal/app/services/progress"
	"github.com/webpdtool/engine/internal/app/storage"
	"github.com/webpdtool/engine/pkg/logger"
)

// DispatcherFor builds a per-session dispatcher with handlers bound to that
// session's identity (serial number, SFC audit keys). Handler registration
// depends on session-scoped values (GetSN, SFC logging), so the dispatcher
// itself is constructed per session rather than shared process-wide.
type DispatcherFor func(s session.Session) (*dispatch.Dispatcher, error)

// Engine drives sessions from PENDING to a terminal state.
type Engine struct {
	plans   storage.PlanRepository
	sess    storage.SessionRepository
	results storage.ResultRepository
	sink    storage.ReportSink
	bus     *progress.Bus
	clock   storage.Clock
	dispatcherFor DispatcherFor
	log     *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c storage.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithReportSink(s storage.ReportSink) Option {
	return func(e *Engine) { e.sink = s }
}

// New constructs an Engine. dispatcherFor is called once per Start to build
// a session-scoped dispatcher (see DispatcherFor).
func New(plans storage.PlanRepository, sess storage.SessionRepository, results storage.ResultRepository, bus *progress.Bus, dispatcherFor DispatcherFor, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewDefault("engine")
	}
	e := &Engine{
		plans:         plans,
		sess:          sess,
		results:       results,
		sink:          storage.NoopReportSink{},
		bus:           bus,
		clock:         storage.SystemClock{},
		dispatcherFor: dispatcherFor,
		log:           log,
		cancels:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateSession persists a PENDING row; no execution happens yet.
func (e *Engine) CreateSession(ctx context.Context, serial, stationID, projectID, userID string, runAllTest bool) (string, error) {
	s := session.Session{
		SerialNumber: serial,
		StationID:    stationID,
		ProjectID:    projectID,
		UserID:       userID,
		Status:       session.StatusPending,
		RunAllTest:   runAllTest,
	}
	created, err := e.sess.CreateSession(ctx, s)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return created.ID, nil
}

// Start spawns the execution task for sessionID. It is idempotent on
// non-PENDING sessions: it returns the current status without starting a
// second task.
func (e *Engine) Start(ctx context.Context, sessionID string) (session.Status, error) {
	s, err := e.sess.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if s.Status != session.StatusPending {
		return s.Status, nil
	}

	s.Status = session.StatusRunning
	s.StartTime = e.clock.Now()
	if err := e.sess.UpdateSession(ctx, s); err != nil {
		return "", fmt.Errorf("transition to running: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[sessionID] = cancel
	e.mu.Unlock()

	go e.run(runCtx, s)

	return session.StatusRunning, nil
}

// Stop sets the cancel flag; the executor finishes the current point's
// cleanup and transitions to ABORTED. Idempotent after the first call.
func (e *Engine) Stop(sessionID string) {
	e.mu.Lock()
	cancel, ok := e.cancels[sessionID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// IsLive reports whether sessionID currently has a running executor task,
// satisfying the housekeeping reaper's SessionRegistry dependency.
func (e *Engine) IsLive(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cancels[sessionID]
	return ok
}

// Status returns a snapshot; safe to poll at any cadence.
func (e *Engine) Status(ctx context.Context, sessionID string) (session.Snapshot, error) {
	s, err := e.sess.GetSession(ctx, sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	executed := s.PassItems + s.FailItems
	return session.Snapshot{
		SessionID:   s.ID,
		Status:      s.Status,
		Executed:    executed,
		Total:       s.TotalItems,
		PassItems:   s.PassItems,
		FailItems:   s.FailItems,
		FinalResult: s.FinalResult,
	}, nil
}

func (e *Engine) run(ctx context.Context, s session.Session) {
	defer func() {
		e.mu.Lock()
		delete(e.cancels, s.ID)
		e.mu.Unlock()
	}()

	plan, err := e.plans.LoadPlan(ctx, s.StationID, s.ProjectID, "", true)
	if err != nil {
		e.terminate(ctx, s, session.StatusError)
		return
	}
	s.TotalItems = len(plan.Points)

	dispatcher, err := e.dispatcherFor(s)
	if err != nil {
		e.terminate(ctx, s, session.StatusError)
		return
	}

	resultMap := make(map[string]string, len(plan.Points))
	aborted := false

	for _, point := range plan.Points {
		select {
		case <-ctx.Done():
			aborted = true
		default:
		}
		if aborted {
			break
		}

		var outcome dispatch.PointOutcome
		if point.UseResult != "" {
			if _, ok := resultMap[point.UseResult]; !ok {
				outcome = dispatch.PointOutcome{Result: result.Skip, Error: "missing upstream result"}
			} else {
				outcome = dispatcher.Run(ctx, point, resultMap)
			}
		} else {
			outcome = dispatcher.Run(ctx, point, resultMap)
		}

		row := result.TestResult{
			SessionID:           s.ID,
			TestPlanID:          point.ID,
			ItemNo:              point.ItemNo,
			ItemName:            point.ItemName,
			MeasuredValue:       outcome.Measured,
			LowerLimit:          point.LowerLimit,
			UpperLimit:          point.UpperLimit,
			Result:              outcome.Result,
			ErrorMessage:        outcome.Error,
			ExecutionDurationMS: outcome.DurationMS,
			TestTime:            e.clock.Now(),
		}

		if err := e.saveResultWithRetry(ctx, row); err != nil {
			e.terminate(ctx, s, session.StatusError)
			return
		}

		resultMap[point.ItemName] = outcome.Measured

		if outcome.Result == result.Pass {
			s.PassItems++
		} else {
			s.FailItems++
		}

		e.bus.Publish(session.Snapshot{
			SessionID: s.ID,
			Status:    session.StatusRunning,
			Executed:  s.PassItems + s.FailItems,
			Total:     s.TotalItems,
			CurrentItem: point.ItemName,
			PassItems: s.PassItems,
			FailItems: s.FailItems,
		})

		if !s.RunAllTest && (outcome.Result == result.Fail || outcome.Result == result.Error) {
			break
		}
	}

	s.EndTime = e.clock.Now()

	final := session.StatusCompleted
	switch {
	case aborted:
		final = session.StatusAborted
		s.FinalResult = session.FinalAbort
	case s.FailItems == 0:
		final = session.StatusCompleted
		s.FinalResult = session.FinalPass
	default:
		final = session.StatusFailed
		s.FinalResult = session.FinalFail
	}
	s.Status = final

	if err := e.sess.UpdateSession(ctx, s); err != nil {
		e.log.WithField("session_id", s.ID).WithError(err).Error("failed to persist terminal session state")
		return
	}
	_ = e.sink.OnSessionTerminal(ctx, s.ID, s.Status)
}

func (e *Engine) terminate(ctx context.Context, s session.Session, status session.Status) {
	s.Status = status
	s.EndTime = e.clock.Now()
	if err := e.sess.UpdateSession(ctx, s); err != nil {
		e.log.WithField("session_id", s.ID).WithError(err).Error("failed to persist engine-fault session state")
	}
	_ = e.sink.OnSessionTerminal(ctx, s.ID, status)
}

// saveResultWithRetry retries repository writes up to a small bounded count
// with exponential backoff, per the specification's failure semantics.
func (e *Engine) saveResultWithRetry(ctx context.Context, row result.TestResult) error {
	policy := core.RetryPolicy{Attempts: 3, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 2 * time.Second, Multiplier: 2}
	return core.Retry(ctx, policy, func() error {
		return e.results.SaveResult(ctx, row)
	})
}

// Descriptor advertises the engine's placement in the system layer taxonomy.
func (e *Engine) Descriptor() core.Descriptor {
	return core.Descriptor{Name: "engine", Domain: "test-execution", Layer: core.LayerEngine}.
		WithCapabilities("create-session", "start", "stop", "status")
}

// Name identifies the engine in descriptor listings.
func (e *Engine) Name() string { return "engine" }

// Shutdown stops every in-flight session's executor task. It is called from
// the application's own Stop rather than through system.Manager, since the
// engine's public Start/Stop already have session-scoped signatures that
// collide with system.Service's process-lifecycle contract.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.cancels))
	for id := range e.cancels {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		e.Stop(id)
	}
	return nil
}
