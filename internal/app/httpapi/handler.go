// Package httpapi exposes the engine over the JSON/WebSocket surface
// described in the external interfaces: session control, instrument
// status, and the test-plan read path.
package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/webpdtool/engine/internal/app/domain/instrument"
	"github.com/webpdtool/engine/internal/app/domain/result"
	"github.com/webpdtool/engine/internal/app/domain/session"
	"github.com/webpdtool/engine/internal/app/domain/testplan"
	"github.com/webpdtool/engine/internal/app/metrics"
	"github.com/webpdtool/engine/internal/app/services/progress"
	"github.com/webpdtool/engine/internal/httputil"
	"github.com/webpdtool/engine/pkg/logger"
)

// SessionEngine is the subset of engine.Engine the HTTP layer drives.
type SessionEngine interface {
	CreateSession(ctx context.Context, serial, stationID, projectID, userID string, runAllTest bool) (string, error)
	Start(ctx context.Context, sessionID string) (session.Status, error)
	Stop(sessionID string)
	Status(ctx context.Context, sessionID string) (session.Snapshot, error)
}

// ResultReader lists persisted results for the results endpoint.
type ResultReader interface {
	ListResults(ctx context.Context, sessionID string) ([]result.TestResult, error)
}

// InstrumentStatus is the subset of instruments.Manager the status/reset
// endpoints need.
type InstrumentStatus interface {
	Status() []instrument.Status
	Reset(instrumentID string) error
}

// PlanReader backs the test-plan read path.
type PlanReader interface {
	LoadPlan(ctx context.Context, stationID, projectID, testPlanName string, enabledOnly bool) (testplan.Plan, error)
}

// handler bundles the engine-facing dependencies behind the HTTP surface.
type handler struct {
	engine      SessionEngine
	results     ResultReader
	instruments InstrumentStatus
	plans       PlanReader
	bus         *progress.Bus
	log         *logger.Logger
}

// New builds the root mux. Session lookups that fail with sql.ErrNoRows or
// an error whose text contains "not found" are answered with 404 (see
// writeSessionErr).
func New(eng SessionEngine, results ResultReader, inst InstrumentStatus, plans PlanReader, bus *progress.Bus, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{engine: eng, results: results, instruments: inst, plans: plans, bus: bus, log: log}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/sessions", withMethod(http.MethodPost, h.createSession))
	mux.HandleFunc("/sessions/", h.sessionResource)
	mux.HandleFunc("/measurements/instruments", withMethod(http.MethodGet, h.listInstruments))
	mux.HandleFunc("/measurements/instruments/", h.instrumentResource)
	mux.HandleFunc("/stations/", h.stationResource)

	return metrics.InstrumentHandler(recoverMiddleware(h.log, mux))
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createSession implements POST /sessions.
func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SerialNumber string `json:"serial_number"`
		StationID    string `json:"station_id"`
		ProjectID    string `json:"project_id"`
		UserID       string `json:"user_id"`
		RunAllTest   bool   `json:"run_all_test"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.StationID == "" {
		httputil.BadRequest(w, "station_id is required")
		return
	}

	id, err := h.engine.CreateSession(r.Context(), body.SerialNumber, body.StationID, body.ProjectID, body.UserID, body.RunAllTest)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"session_id": id, "status": string(session.StatusPending)})
}

// sessionResource dispatches /sessions/{id}/{start,stop,status,results,stream}.
func (h *handler) sessionResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		httputil.NotFound(w, "unknown session resource")
		return
	}
	id, action := parts[0], parts[1]

	switch action {
	case "start":
		h.startSession(w, r, id)
	case "stop":
		h.stopSession(w, r, id)
	case "status":
		h.sessionStatus(w, r, id)
	case "results":
		h.sessionResults(w, r, id)
	case "stream":
		h.sessionStream(w, r, id)
	default:
		httputil.NotFound(w, "unknown session resource")
	}
}

func (h *handler) startSession(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	status, err := h.engine.Start(r.Context(), id)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *handler) stopSession(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	h.engine.Stop(id)
	snap, err := h.engine.Status(r.Context(), id)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(snap.Status)})
}

func (h *handler) sessionStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	snap, err := h.engine.Status(r.Context(), id)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snapshotView(snap))
}

func (h *handler) sessionResults(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	rows, err := h.results.ListResults(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (h *handler) listInstruments(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.instruments.Status())
}

func (h *handler) instrumentResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/measurements/instruments/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[1] != "reset" {
		httputil.NotFound(w, "unknown instrument resource")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := h.instruments.Reset(parts[0]); err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stationResource implements GET /stations/{sid}/testplan.
func (h *handler) stationResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/stations/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[1] != "testplan" {
		httputil.NotFound(w, "unknown station resource")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	q := r.URL.Query()
	projectID := q.Get("project_id")
	testPlanName := q.Get("test_plan_name")
	enabledOnly := httputil.QueryBool(r, "enabled_only", true)

	plan, err := h.plans.LoadPlan(r.Context(), parts[0], projectID, testPlanName, enabledOnly)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, plan.Points)
}

// writeSessionErr maps an unknown-session-id error to 404. Both repository
// implementations signal this case differently (Postgres returns
// sql.ErrNoRows, the in-memory store returns a "not found" message), so
// both are recognised here rather than inventing a shared sentinel the
// repositories would have to agree on.
func writeSessionErr(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "not found") {
		httputil.NotFound(w, "session not found")
		return
	}
	httputil.InternalError(w, err.Error())
}

func snapshotView(s session.Snapshot) map[string]any {
	view := map[string]any{
		"status":       string(s.Status),
		"executed":     s.Executed,
		"total":        s.Total,
		"current_item": s.CurrentItem,
		"pass_items":   s.PassItems,
		"fail_items":   s.FailItems,
	}
	if s.Status.Terminal() {
		view["final_result"] = string(s.FinalResult)
	}
	return view
}

func withMethod(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			methodNotAllowed(w, method)
			return
		}
		fn(w, r)
	}
}

func methodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func recoverMiddleware(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("path", r.URL.Path).Errorf("panic in http handler: %v", rec)
				httputil.InternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
