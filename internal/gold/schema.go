// Package gold loads cleaned crash rows into the analytic store and checks
// key integrity afterwards.
package gold

import (
	"fmt"
	"math"
	"strings"
	"time"

	"crashpipe/internal/ddl"
	"crashpipe/internal/transformer/builtin"
	"crashpipe/pkg/records"
)

// DefaultTable is the gold table used when a job names none.
const DefaultTable = "gold.crashes"

// Stamp columns added to every row on load.
const (
	CorrIDColumn     = "corr_id"
	InsertedAtColumn = "inserted_at"
	UpdatedAtColumn  = "updated_at"
)

var columns = []ddl.ColumnDef{
	{Name: "crash_record_id", SQLType: "TEXT", PrimaryKey: true},
	{Name: "crash_date", SQLType: "DATE", Nullable: true},
	{Name: "crash_day_of_week", SQLType: "INTEGER", Nullable: true},
	{Name: "crash_hour", SQLType: "INTEGER", Nullable: true},
	{Name: "is_weekend", SQLType: "INTEGER", Nullable: true},
	{Name: "hour_bin", SQLType: "TEXT", Nullable: true},
	{Name: "beat_of_occurrence", SQLType: "INTEGER", Nullable: true},
	{Name: "latitude", SQLType: "DOUBLE PRECISION", Nullable: true},
	{Name: "longitude", SQLType: "DOUBLE PRECISION", Nullable: true},
	{Name: "lat_bin", SQLType: "DOUBLE PRECISION", Nullable: true},
	{Name: "lng_bin", SQLType: "DOUBLE PRECISION", Nullable: true},
	{Name: "grid_id", SQLType: "TEXT", Nullable: true},
	{Name: "crash_type", SQLType: "TEXT", Nullable: true},
	{Name: "num_units", SQLType: "INTEGER", Nullable: true},
	{Name: "injuries_total", SQLType: "DOUBLE PRECISION", Nullable: true},
	{Name: "lighting_condition", SQLType: "TEXT", Nullable: true},
	{Name: "posted_speed_limit", SQLType: "INTEGER", Nullable: true},
	{Name: "road_defect", SQLType: "TEXT", Nullable: true},
	{Name: "roadway_surface_cond", SQLType: "TEXT", Nullable: true},
	{Name: "street_direction", SQLType: "TEXT", Nullable: true},
	{Name: "trafficway_type", SQLType: "TEXT", Nullable: true},
	{Name: "weather_condition", SQLType: "TEXT", Nullable: true},
	{Name: "traffic_control_device", SQLType: "TEXT", Nullable: true},
	{Name: "hit_and_run_i", SQLType: "INTEGER", Nullable: true},
	{Name: "intersection_related_i", SQLType: "INTEGER", Nullable: true},
	{Name: "work_zone_i", SQLType: "INTEGER", Nullable: true},
	{Name: "private_property_i", SQLType: "INTEGER", Nullable: true},
	{Name: CorrIDColumn, SQLType: "TEXT", Nullable: true},
	{Name: InsertedAtColumn, SQLType: "TIMESTAMP", Nullable: true},
	{Name: UpdatedAtColumn, SQLType: "TIMESTAMP", Nullable: true},
}

// Table returns the gold table definition under fqn (DefaultTable when
// empty).
func Table(fqn string) ddl.TableDef {
	if strings.TrimSpace(fqn) == "" {
		fqn = DefaultTable
	}
	return ddl.TableDef{FQN: fqn, Columns: append([]ddl.ColumnDef(nil), columns...)}
}

// Row converts a cleaned record to values aligned with def's columns, stamped
// with corrID and now.
func Row(def ddl.TableDef, r records.Record, corrID string, now time.Time) ([]any, error) {
	out := make([]any, len(def.Columns))
	for i, c := range def.Columns {
		switch c.Name {
		case CorrIDColumn:
			out[i] = corrID
			continue
		case InsertedAtColumn, UpdatedAtColumn:
			out[i] = now
			continue
		}
		v, err := convert(c.SQLType, r[c.Name])
		if err != nil {
			return nil, fmt.Errorf("gold: column %s: %w", c.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func convert(sqlType string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch sqlType {
	case "TEXT":
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case "INTEGER":
		if n, ok := v.(int64); ok {
			return n, nil
		}
		f, ok := builtin.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("not numeric: %v", v)
		}
		return int64(math.Round(f)), nil
	case "DOUBLE PRECISION":
		f, ok := builtin.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("not numeric: %v", v)
		}
		return f, nil
	case "DATE", "TIMESTAMP":
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("not a time: %v", v)
		}
		return t, nil
	}
	return v, nil
}
