package postgres

import (
	"context"

	"github.com/webpdtool/engine/internal/app/domain/result"
)

// SaveResult inserts one immutable result row. A session/plan/item_no
// collision is a programming error upstream (the engine never re-executes a
// point), so it is surfaced as a plain constraint-violation error rather
// than silently upserted.
func (s *Store) SaveResult(ctx context.Context, r result.TestResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_results (session_id, test_plan_id, item_no, item_name, measured_value,
		                           lower_limit, upper_limit, result, error_message, execution_duration_ms, test_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.SessionID, r.TestPlanID, r.ItemNo, r.ItemName, r.MeasuredValue,
		toNullFloat(r.LowerLimit), toNullFloat(r.UpperLimit), r.Result, r.ErrorMessage, r.ExecutionDurationMS, toNullTime(r.TestTime))
	return err
}

// ListResults returns every result row for sessionID in execution order.
func (s *Store) ListResults(ctx context.Context, sessionID string) ([]result.TestResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, test_plan_id, item_no, item_name, measured_value,
		       lower_limit, upper_limit, result, error_message, execution_duration_ms, test_time
		FROM test_results
		WHERE session_id = $1
		ORDER BY item_no
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []result.TestResult
	for rows.Next() {
		var r result.TestResult
		if err := rows.Scan(&r.SessionID, &r.TestPlanID, &r.ItemNo, &r.ItemName, &r.MeasuredValue,
			&r.LowerLimit, &r.UpperLimit, &r.Result, &r.ErrorMessage, &r.ExecutionDurationMS, &r.TestTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveSFCLog records one SFC request/response round-trip for audit purposes.
func (s *Store) SaveSFCLog(ctx context.Context, l result.SFCLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sfc_logs (session_id, item_name, operation, request, response, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, l.SessionID, l.ItemName, l.Operation, l.Request, l.Response, toNullTime(l.LoggedAt))
	return err
}
