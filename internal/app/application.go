// Package app wires the test execution engine's components (storage,
// instruments, dispatcher, engine, HTTP API, housekeeping) into a single
// Application whose lifecycle is owned by a system.Manager.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	core "github.com/webpdtool/engine/internal/app/core/service"
	"github.com/webpdtool/engine/internal/app/domain/session"
	"github.com/webpdtool/engine/internal/app/httpapi"
	"github.com/webpdtool/engine/internal/app/metrics"
	"github.com/webpdtool/engine/internal/app/services/dispatch"
	"github.com/webpdtool/engine/internal/app/services/engine"
	"github.com/webpdtool/engine/internal/app/services/handlers"
	"github.com/webpdtool/engine/internal/app/services/housekeeping"
	"github.com/webpdtool/engine/internal/app/services/instruments"
	"github.com/webpdtool/engine/internal/app/services/progress"
	"github.com/webpdtool/engine/internal/app/services/sfcclient"
	"github.com/webpdtool/engine/internal/app/storage"
	"github.com/webpdtool/engine/internal/app/storage/postgres"
	"github.com/webpdtool/engine/internal/app/system"
	"github.com/webpdtool/engine/internal/config"
	"github.com/webpdtool/engine/internal/platform/migrations"
	"github.com/webpdtool/engine/pkg/logger"
)

// Application ties the engine's components together and manages their
// lifecycle through a system.Manager.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	db      *sql.DB

	Engine      *engine.Engine
	Instruments *instruments.Manager
	Bus         *progress.Bus
	HTTP        *httpapi.Service

	descriptors []core.Descriptor
}

// New builds a fully wired Application from cfg. Storage is backed by
// Postgres when the configured database is reachable; otherwise it falls
// back to the in-memory store, which is enough for a single station running
// without a shared result warehouse.
func New(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	manager := system.NewManager()

	plans, sessions, results, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build stores: %w", err)
	}

	bus := progress.New()

	driverRegistry := instruments.NewPhysicalRegistry(cfg.InstrumentPorts, cfg.InstrumentSSHUser, cfg.InstrumentSSHPassword)
	instrumentMgr := instruments.New(driverRegistry, log)
	instrumentMgr.WithReconnectLimit(cfg.InstrumentReconnectRPS, cfg.InstrumentReconnectBurst)
	instrumentMgr.WithObservationHooks(metrics.InstrumentAcquireHooks())

	var sfcClient handlers.SFCClient
	if cfg.SFCBaseURL != "" {
		c := sfcclient.New(cfg.SFCBaseURL, cfg.SFCTimeout)
		c.WithObservationHooks(metrics.SFCRequestHooks())
		sfcClient = c
	}

	// eng is referenced by dispatcherFor's closure before it exists so that
	// OPJudge's abort path can reach back into the engine that owns it; the
	// closure only runs once a session starts, by which point eng is set.
	var eng *engine.Engine
	dispatcherFor := func(s session.Session) (*dispatch.Dispatcher, error) {
		registry := dispatch.NewRegistry()
		deps := handlers.Dependencies{
			Instruments:        instrumentMgr,
			SerialNumberSource: serialNumberSource{sn: s.SerialNumber},
			Prompt:             autoApprovePrompt{},
			Abort:              &sessionAbort{engine: eng, sessionID: s.ID},
			SFCClient:          sfcClient,
			SFCLogger:          results,
			SessionID: s.ID,
			// ItemName is left empty: RegisterAll builds the dispatcher's
			// handler set once per session rather than once per point, so
			// there is no single point name to bind the SFC audit log to
			// here. The SFC handler logs per-request under the session id.
		}
		handlers.RegisterAll(registry, deps)
		return dispatch.New(registry, log, dispatch.WithDispatcherHooks(metrics.PointDispatchHooks())), nil
	}

	eng = engine.New(plans, sessions, results, bus, dispatcherFor, log, engine.WithReportSink(storage.NoopReportSink{}))

	reaper := housekeeping.New(instrumentMgr, eng, cfg.LeaseReapSchedule, log)

	httpHandler := httpapi.New(eng, results, instrumentMgr, plans, bus, log)
	httpAddr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	httpSvc := httpapi.NewService(httpAddr, httpHandler, log)

	if err := manager.Register(httpSvc); err != nil {
		return nil, fmt.Errorf("register http service: %w", err)
	}
	if err := manager.Register(reaper); err != nil {
		return nil, fmt.Errorf("register housekeeping reaper: %w", err)
	}

	return &Application{
		manager:     manager,
		log:         log,
		db:          db,
		Engine:      eng,
		Instruments: instrumentMgr,
		Bus:         bus,
		HTTP:        httpSvc,
		descriptors: manager.Descriptors(),
	}, nil
}

// Start begins all registered services in their registration order.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop cancels any in-flight sessions, stops all registered services in
// reverse order, and releases the database connection.
func (a *Application) Stop(ctx context.Context) error {
	if err := a.Engine.Shutdown(ctx); err != nil {
		a.log.WithError(err).Warn("engine shutdown")
	}
	err := a.manager.Stop(ctx)
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Descriptors returns advertised service descriptors for orchestration/CLI
// introspection.
func (a *Application) Descriptors() []core.Descriptor {
	out := make([]core.Descriptor, len(a.descriptors))
	copy(out, a.descriptors)
	return out
}

// buildStores selects Postgres-backed repositories when cfg's database is
// reachable, applying migrations when requested, and falls back to the
// in-memory store otherwise.
func buildStores(cfg *config.Config, log *logger.Logger) (storage.PlanRepository, storage.SessionRepository, storage.ResultRepository, *sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		log.WithError(err).Warn("open postgres dsn failed, using in-memory store")
		mem := storage.NewMemory()
		return mem, mem, mem, nil, nil
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.WithError(err).Warn("postgres unreachable, using in-memory store")
		_ = db.Close()
		mem := storage.NewMemory()
		return mem, mem, mem, nil, nil
	}

	if cfg.AutoMigrate {
		if err := migrations.Apply(pingCtx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	store := postgres.New(db)
	return store, store, store, db, nil
}

// serialNumberSource adapts a session's serial number field to GetSN's port.
type serialNumberSource struct {
	sn string
}

func (s serialNumberSource) SerialNumber() string { return s.sn }

// autoApprovePrompt is the OPJudge operator prompt used when no interactive
// front end is attached: it always answers OK. Wiring a real UI/operator
// console is outside this engine's scope.
type autoApprovePrompt struct{}

func (autoApprovePrompt) AskOperator(ctx context.Context, prompt string) (bool, error) {
	return true, nil
}

// sessionAbort lets the OPJudge handler request early termination of the
// session it belongs to.
type sessionAbort struct {
	engine    *engine.Engine
	sessionID string
}

func (a *sessionAbort) RequestAbort(reason string) {
	a.engine.Stop(a.sessionID)
}
