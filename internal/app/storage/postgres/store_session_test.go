package postgres

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/webpdtool/engine/internal/app/domain/session"
)

func TestCreateAndGetSession(t *testing.T) {
	store, ctx := newTestStore(t)

	sess := session.Session{
		SerialNumber: "SN-0001",
		StationID:    "station-1",
		ProjectID:    "proj-1",
		UserID:       "operator-1",
		Status:       session.StatusPending,
		FinalResult:  session.FinalNone,
		TotalItems:   3,
	}

	created, err := store.CreateSession(ctx, sess)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated session ID")
	}

	loaded, err := store.GetSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if loaded.SerialNumber != "SN-0001" || loaded.Status != session.StatusPending {
		t.Fatalf("unexpected loaded session: %#v", loaded)
	}
	if !loaded.StartTime.IsZero() || !loaded.EndTime.IsZero() {
		t.Fatalf("expected zero timestamps for a fresh session, got %#v", loaded)
	}
}

func TestCreateSessionPreservesExplicitID(t *testing.T) {
	store, ctx := newTestStore(t)

	sess := session.Session{
		ID:        "explicit-id-1",
		StationID: "station-1",
		ProjectID: "proj-1",
		Status:    session.StatusPending,
	}
	created, err := store.CreateSession(ctx, sess)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if created.ID != "explicit-id-1" {
		t.Fatalf("expected caller-supplied ID to be preserved, got %q", created.ID)
	}
}

func TestUpdateSession(t *testing.T) {
	store, ctx := newTestStore(t)

	created, err := store.CreateSession(ctx, session.Session{
		StationID: "station-1",
		ProjectID: "proj-1",
		Status:    session.StatusPending,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	created.Status = session.StatusRunning
	created.StartTime = time.Now().UTC()
	if err := store.UpdateSession(ctx, created); err != nil {
		t.Fatalf("update session: %v", err)
	}

	reloaded, err := store.GetSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if reloaded.Status != session.StatusRunning {
		t.Fatalf("expected status RUNNING, got %s", reloaded.Status)
	}
	if reloaded.StartTime.IsZero() {
		t.Fatal("expected start time to be persisted")
	}

	created.Status = session.StatusCompleted
	created.FinalResult = session.FinalPass
	created.EndTime = time.Now().UTC()
	created.PassItems = 3
	if err := store.UpdateSession(ctx, created); err != nil {
		t.Fatalf("update session to terminal state: %v", err)
	}

	final, err := store.GetSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if final.FinalResult != session.FinalPass || !final.Status.Terminal() {
		t.Fatalf("expected a terminal PASS session, got %#v", final)
	}
}

func TestUpdateSessionUnknownIDReturnsErrNoRows(t *testing.T) {
	store, ctx := newTestStore(t)

	err := store.UpdateSession(ctx, session.Session{ID: "does-not-exist"})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for an unknown session ID, got %v", err)
	}
}

func TestGetSessionUnknownIDReturnsErrNoRows(t *testing.T) {
	store, ctx := newTestStore(t)

	_, err := store.GetSession(ctx, "does-not-exist")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for an unknown session ID, got %v", err)
	}
}
