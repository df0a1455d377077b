package postgres

import (
	"context"
	"encoding/json"

	"github.com/webpdtool/engine/internal/app/domain/testplan"
)

// LoadPlan loads the ordered points for stationID/projectID. When
// testPlanName is empty it matches any plan name for that station/project
// pairing; when enabledOnly is true, disabled points are excluded.
func (s *Store) LoadPlan(ctx context.Context, stationID, projectID, testPlanName string, enabledOnly bool) (testplan.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT test_plan_name, item_no, item_name, item_key, execute_name, switch_mode,
		       parameters, command, timeout_ms, wait_msec, use_result,
		       lower_limit, upper_limit, eq_limit, limit_type, value_type, unit, enabled, sequence_order
		FROM test_plans
		WHERE station_id = $1 AND project_id = $2
		  AND ($3 = '' OR test_plan_name = $3)
		  AND ($4 = FALSE OR enabled = TRUE)
		ORDER BY sequence_order, item_no
	`, stationID, projectID, testPlanName, enabledOnly)
	if err != nil {
		return testplan.Plan{}, err
	}
	defer rows.Close()

	plan := testplan.Plan{StationID: stationID, ProjectID: projectID}
	for rows.Next() {
		var p testplan.Point
		var paramsJSON []byte
		if err := rows.Scan(
			&plan.Name, &p.ItemNo, &p.ItemName, &p.ItemKey, &p.ExecuteName, &p.SwitchMode,
			&paramsJSON, &p.Command, &p.TimeoutMS, &p.WaitMSec, &p.UseResult,
			&p.LowerLimit, &p.UpperLimit, &p.EqLimit, &p.LimitType, &p.ValueType, &p.Unit, &p.Enabled, &p.SequenceOrder,
		); err != nil {
			return testplan.Plan{}, err
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &p.Parameters); err != nil {
				return testplan.Plan{}, err
			}
		}
		plan.Points = append(plan.Points, p)
	}
	if err := rows.Err(); err != nil {
		return testplan.Plan{}, err
	}
	return plan, nil
}
