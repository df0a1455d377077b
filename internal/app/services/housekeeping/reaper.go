// Package housekeeping implements background maintenance services that
// supplement the core specification: a cron-scheduled sweep that releases
// instrument leases orphaned by a session that crashed before running its
// handler's Cleanup.
package housekeeping

import (
	"context"

	core "github.com/webpdtool/engine/internal/app/core/service"
	"github.com/webpdtool/engine/internal/app/domain/instrument"
	"github.com/webpdtool/engine/pkg/logger"
	"github.com/robfig/cron/v3"
)

// InstrumentManager is the narrow capability the reaper exercises against
// the Instrument Manager: reading status and forcing a disconnect, without
// needing the manager's full Acquire/Release lease type.
type InstrumentManager interface {
	Status() []instrument.Status
	Disconnect(instrumentID string)
}

// SessionRegistry reports whether a session is still considered live by the
// engine, so the reaper can tell an orphaned lease apart from one whose
// holder is simply still running.
type SessionRegistry interface {
	IsLive(sessionID string) bool
}

// Reaper periodically force-releases leases whose holder session is no
// longer running. This is a defensive addition: cooperative Release in a
// handler's Cleanup never runs if the session crashed mid-execution.
type Reaper struct {
	instruments InstrumentManager
	sessions    SessionRegistry
	log         *logger.Logger
	cron        *cron.Cron
	schedule    string
}

// New constructs a Reaper. schedule is a standard 5-field cron expression;
// "*/1 * * * *" (every minute) is a reasonable default for a station with a
// handful of instruments.
func New(instruments InstrumentManager, sessions SessionRegistry, schedule string, log *logger.Logger) *Reaper {
	if log == nil {
		log = logger.NewDefault("housekeeping")
	}
	if schedule == "" {
		schedule = "*/1 * * * *"
	}
	return &Reaper{instruments: instruments, sessions: sessions, log: log, schedule: schedule}
}

func (r *Reaper) Name() string { return "housekeeping.reaper" }

func (r *Reaper) Start(ctx context.Context) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.schedule, r.sweep)
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *Reaper) Stop(ctx context.Context) error {
	if r.cron != nil {
		stopCtx := r.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	return nil
}

func (r *Reaper) sweep() {
	for _, st := range r.instruments.Status() {
		if st.State != instrument.StateBusy || st.BusyHolder == "" {
			continue
		}
		if r.sessions.IsLive(st.BusyHolder) {
			continue
		}
		r.log.WithField("instrument_id", st.ID).WithField("holder", st.BusyHolder).
			Warn("releasing orphaned instrument lease")
		r.instruments.Disconnect(st.ID)
	}
}

// Descriptor advertises the reaper's placement in the system layer taxonomy.
func (r *Reaper) Descriptor() core.Descriptor {
	return core.Descriptor{Name: "housekeeping.reaper", Domain: "measurement", Layer: core.LayerData}.
		WithCapabilities("orphan-lease-reclaim")
}
