package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/webpdtool/engine/internal/app/domain/session"
)

// CreateSession inserts a new session row with the caller's status,
// generating an ID when the caller did not supply one.
func (s *Store) CreateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_sessions (id, serial_number, station_id, project_id, user_id, status, final_result,
		                            start_time, end_time, total_items, pass_items, fail_items, run_all_test)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, sess.ID, sess.SerialNumber, sess.StationID, sess.ProjectID, sess.UserID, sess.Status, sess.FinalResult,
		toNullTime(sess.StartTime), toNullTime(sess.EndTime), sess.TotalItems, sess.PassItems, sess.FailItems, sess.RunAllTest)
	if err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// GetSession loads a session row by ID.
func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, serial_number, station_id, project_id, user_id, status, final_result,
		       start_time, end_time, total_items, pass_items, fail_items, run_all_test
		FROM test_sessions
		WHERE id = $1
	`, id)

	var sess session.Session
	var startTime, endTime sql.NullTime
	if err := row.Scan(&sess.ID, &sess.SerialNumber, &sess.StationID, &sess.ProjectID, &sess.UserID, &sess.Status, &sess.FinalResult,
		&startTime, &endTime, &sess.TotalItems, &sess.PassItems, &sess.FailItems, &sess.RunAllTest); err != nil {
		return session.Session{}, err
	}
	sess.StartTime = startTime.Time
	sess.EndTime = endTime.Time
	return sess, nil
}

// UpdateSession persists a session's mutable fields: status, final result,
// timestamps and the running item tallies.
func (s *Store) UpdateSession(ctx context.Context, sess session.Session) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE test_sessions
		SET status = $2, final_result = $3, start_time = $4, end_time = $5,
		    total_items = $6, pass_items = $7, fail_items = $8
		WHERE id = $1
	`, sess.ID, sess.Status, sess.FinalResult, toNullTime(sess.StartTime), toNullTime(sess.EndTime),
		sess.TotalItems, sess.PassItems, sess.FailItems)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

