package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/webpdtool/engine/internal/app/domain/result"
	"github.com/webpdtool/engine/internal/app/domain/session"
	"github.com/webpdtool/engine/internal/app/domain/testplan"
)

// Memory is an in-memory implementation of PlanRepository, SessionRepository
// and ResultRepository. It backs unit tests and the store Application falls
// back to when the configured database cannot be opened or reached.
type Memory struct {
	mu sync.RWMutex

	plans    map[string]testplan.Plan // keyed by stationID+"/"+projectID+"/"+testPlanName
	sessions map[string]session.Session
	results  map[string][]result.TestResult // keyed by sessionID
	sfcLogs  []result.SFCLog

	nextSessionID int64
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		plans:    make(map[string]testplan.Plan),
		sessions: make(map[string]session.Session),
		results:  make(map[string][]result.TestResult),
	}
}

// SeedPlan registers a plan so LoadPlan can find it. Intended for tests and
// the demo mode; a real deployment loads plans from Postgres.
func (m *Memory) SeedPlan(key string, plan testplan.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[key] = plan
}

func planKey(stationID, projectID, name string) string {
	return stationID + "/" + projectID + "/" + name
}

// LoadPlan implements PlanRepository.
func (m *Memory) LoadPlan(ctx context.Context, stationID, projectID, testPlanName string, enabledOnly bool) (testplan.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plan, ok := m.plans[planKey(stationID, projectID, testPlanName)]
	if !ok {
		return testplan.Plan{}, fmt.Errorf("test plan not found for station %q", stationID)
	}

	points := make([]testplan.Point, 0, len(plan.Points))
	for _, p := range plan.Points {
		if enabledOnly && !p.Enabled {
			continue
		}
		points = append(points, p)
	}
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].SequenceOrder == points[j].SequenceOrder {
			return points[i].ItemNo < points[j].ItemNo
		}
		return points[i].SequenceOrder < points[j].SequenceOrder
	})
	plan.Points = points
	return plan, nil
}

// CreateSession implements SessionRepository.
func (m *Memory) CreateSession(ctx context.Context, s session.Session) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSessionID++
	s.ID = fmt.Sprintf("sess-%d", m.nextSessionID)
	m.sessions[s.ID] = s
	return s, nil
}

// GetSession implements SessionRepository.
func (m *Memory) GetSession(ctx context.Context, id string) (session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return session.Session{}, fmt.Errorf("session %q not found", id)
	}
	return s, nil
}

// UpdateSession implements SessionRepository.
func (m *Memory) UpdateSession(ctx context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return fmt.Errorf("session %q not found", s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

// SaveResult implements ResultRepository. At-least-once semantics are
// acceptable; this in-memory store does not attempt duplicate detection
// since it is not used for production persistence.
func (m *Memory) SaveResult(ctx context.Context, r result.TestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[r.SessionID] = append(m.results[r.SessionID], r)
	return nil
}

// ListResults implements ResultRepository.
func (m *Memory) ListResults(ctx context.Context, sessionID string) ([]result.TestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]result.TestResult, len(m.results[sessionID]))
	copy(out, m.results[sessionID])
	return out, nil
}

// SaveSFCLog implements ResultRepository.
func (m *Memory) SaveSFCLog(ctx context.Context, l result.SFCLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sfcLogs = append(m.sfcLogs, l)
	return nil
}
