package postgres

import (
	"testing"
)

func TestLoadPlan(t *testing.T) {
	store, ctx := newTestStore(t)

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO test_plans (station_id, project_id, test_plan_name, item_no, item_name, item_key,
			execute_name, switch_mode, parameters, command, timeout_ms, wait_msec, use_result,
			lower_limit, upper_limit, eq_limit, limit_type, value_type, unit, enabled, sequence_order)
		VALUES
			('station-1', 'proj-1', 'plan-a', 1, 'Power On', 'pwr_on', 'PowerSet', 'none', '{"voltage":"5.0"}', '', 1000, 0, '',
			 4.8, 5.2, '', 'both', 'float', 'V', TRUE, 1),
			('station-1', 'proj-1', 'plan-a', 2, 'Disabled Point', 'dbg', 'NoOp', 'none', '{}', '', 0, 0, '',
			 NULL, NULL, '', 'none', 'string', '', FALSE, 2)
	`)
	if err != nil {
		t.Fatalf("seed test_plans: %v", err)
	}

	plan, err := store.LoadPlan(ctx, "station-1", "proj-1", "plan-a", false)
	if err != nil {
		t.Fatalf("load plan: %v", err)
	}
	if len(plan.Points) != 2 {
		t.Fatalf("expected 2 points with enabledOnly=false, got %d", len(plan.Points))
	}

	enabled, err := store.LoadPlan(ctx, "station-1", "proj-1", "plan-a", true)
	if err != nil {
		t.Fatalf("load plan (enabled only): %v", err)
	}
	if len(enabled.Points) != 1 {
		t.Fatalf("expected 1 enabled point, got %d", len(enabled.Points))
	}
	point := enabled.Points[0]
	if point.ItemName != "Power On" || point.ExecuteName != "PowerSet" {
		t.Fatalf("unexpected point loaded: %#v", point)
	}
	if point.LowerLimit == nil || *point.LowerLimit != 4.8 {
		t.Fatalf("expected lower limit 4.8, got %v", point.LowerLimit)
	}
	if point.Parameters["voltage"] != "5.0" {
		t.Fatalf("expected parameters to round-trip through JSONB, got %#v", point.Parameters)
	}

	missing, err := store.LoadPlan(ctx, "station-1", "proj-1", "plan-that-does-not-exist", false)
	if err != nil {
		t.Fatalf("load plan (missing name): %v", err)
	}
	if len(missing.Points) != 0 {
		t.Fatalf("expected no points for an unknown plan name, got %d", len(missing.Points))
	}
}
