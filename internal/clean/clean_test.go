package clean

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"crashpipe/internal/gold"
	"crashpipe/internal/job"
	"crashpipe/internal/merge"
	"crashpipe/internal/objstore"
	_ "crashpipe/internal/storage/sqlite"
	"crashpipe/internal/transformer/builtin"
	"crashpipe/pkg/records"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestHourBin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   any
		want any
	}{
		{"0", "night"}, {6.0, "night"}, {7.0, "morning"}, {12.0, "morning"},
		{13.0, "afternoon"}, {18.0, "afternoon"}, {19.0, "evening"}, {23.0, "evening"},
		{24.0, nil}, {-1.0, nil}, {nil, nil},
	}
	for _, tt := range tests {
		if got := HourBin(records.Record{"crash_hour": tt.in}); got != tt.want {
			t.Errorf("HourBin(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsWeekend(t *testing.T) {
	t.Parallel()
	for in, want := range map[any]int64{1.0: 1, 7.0: 1, 2.0: 0, 6.0: 0, "7": 1} {
		if got := IsWeekend(records.Record{"crash_day_of_week": in}); got != want {
			t.Errorf("IsWeekend(%v) = %v, want %v", in, got, want)
		}
	}
	if got := IsWeekend(records.Record{}); got != int64(0) {
		t.Errorf("IsWeekend(null) = %v, want 0", got)
	}
}

func TestParseCSV(t *testing.T) {
	t.Parallel()
	tbl, err := ParseCSV([]byte("a,b\n1,\n,\"x,y\"\n"))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	want := []records.Record{{"a": "1", "b": nil}, {"a": nil, "b": "x,y"}}
	if diff := cmp.Diff(want, tbl.Rows); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}

	empty, err := ParseCSV([]byte("\n"))
	if err != nil || empty.Len() != 0 {
		t.Fatalf("ParseCSV(empty) = %d rows, %v", empty.Len(), err)
	}
}

func TestReadMerged_NotFound(t *testing.T) {
	t.Parallel()
	store := objstore.NewMemory()
	_ = store.EnsureBucket(context.Background(), "transform-data")
	_, err := ReadMerged(context.Background(), store, "transform-data", "crash/corr=X/merged.csv")
	if !errors.Is(err, ErrMergedNotFound) {
		t.Fatalf("err = %v, want ErrMergedNotFound", err)
	}
}

func TestClean_FullRow(t *testing.T) {
	t.Parallel()
	in := []records.Record{{
		"crash_record_id":        "c1",
		"crash_date":             "2024-01-06T10:00:00.000",
		"crash_day_of_week":      "7",
		"crash_hour":             "14",
		"crash_type":             "no injury / drive away",
		"hit_and_run_i":          "Y",
		"num_units":              "12",
		"lighting_condition":     "DAYLIGHT ",
		"latitude":               "41.88123",
		"longitude":              "-87.62789",
		"posted_speed_limit":     "30",
		"weather_condition":      "Blowing Snow",
		"work_zone_i":            "N",
		"veh_count":              "2",
		"veh_make_list_json":     `["FORD"]`,
		"road_defect":            "",
		"street_direction":       "N",
		"traffic_control_device": "TRAFFIC SIGNAL",
	}}
	e := &Engine{Log: zerolog.Nop()}
	out, err := e.Clean(context.Background(), in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	want := []records.Record{{
		"crash_record_id":        "c1",
		"beat_of_occurrence":     nil,
		"crash_date":             time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC),
		"crash_day_of_week":      7.0,
		"crash_hour":             14.0,
		"crash_type":             "NO INJURY / DRIVE AWAY",
		"hit_and_run_i":          int64(1),
		"num_units":              10.0,
		"injuries_total":         0.0,
		"lighting_condition":     "DAYLIGHT",
		"latitude":               41.88123,
		"longitude":              -87.62789,
		"posted_speed_limit":     30.0,
		"road_defect":            builtin.Other,
		"roadway_surface_cond":   builtin.Other,
		"street_direction":       "N",
		"trafficway_type":        builtin.Other,
		"weather_condition":      "SNOW",
		"intersection_related_i": int64(0),
		"traffic_control_device": "TRAFFIC SIGNAL",
		"work_zone_i":            int64(0),
		"private_property_i":     int64(0),
		"is_weekend":             int64(1),
		"hour_bin":               "afternoon",
		"lat_bin":                41.88,
		"lng_bin":                -87.63,
		"grid_id":                "41.88_-87.63",
	}}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("cleaned (-want +got):\n%s", diff)
	}
}

func TestClean_DropsAndImputes(t *testing.T) {
	t.Parallel()
	in := []records.Record{
		{"crash_record_id": "ok1", "crash_date": "2024-01-01", "latitude": "41.9", "longitude": "-87.7", "crash_hour": "1", "num_units": "2"},
		{"crash_record_id": "ok2", "crash_date": "2024-01-02", "latitude": "41.8", "longitude": "-87.6", "crash_hour": "30"},
		{"crash_record_id": "ok3", "crash_date": "2024-01-03", "latitude": "41.7", "longitude": "-87.6", "num_units": "4"},
		{"crash_record_id": "nodate", "latitude": "41.9", "longitude": "-87.7"},
		{"crash_record_id": "zero", "crash_date": "2024-01-01", "latitude": "0", "longitude": "0"},
		{"crash_record_id": "far", "crash_date": "2024-01-01", "latitude": "40.7", "longitude": "-74.0"},
		{"crash_date": "2024-01-01", "latitude": "41.9", "longitude": "-87.7"},
	}
	e := &Engine{Log: zerolog.Nop()}
	out, err := e.Clean(context.Background(), in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	var ids []any
	for _, r := range out {
		ids = append(ids, r["crash_record_id"])
	}
	if diff := cmp.Diff([]any{"ok1", "ok2", "ok3"}, ids); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	if out[1]["num_units"] != 3.0 {
		t.Fatalf("median num_units = %v, want 3", out[1]["num_units"])
	}
	if out[1]["hour_bin"] != builtin.Other || out[2]["hour_bin"] != builtin.Other {
		t.Fatalf("hour_bin = %v %v, want OTHER", out[1]["hour_bin"], out[2]["hour_bin"])
	}
	if out[2]["crash_hour"] != 15.5 {
		t.Fatalf("crash_hour = %v, want 15.5", out[2]["crash_hour"])
	}
}

func TestClean_ImputesMissingCoordinates(t *testing.T) {
	t.Parallel()
	in := []records.Record{
		{"crash_record_id": "a", "crash_date": "2024-01-01", "latitude": "41.8", "longitude": "-87.6"},
		{"crash_record_id": "b", "crash_date": "2024-01-01", "latitude": "41.9", "longitude": "-87.7"},
		{"crash_record_id": "c", "crash_date": "2024-01-01", "latitude": nil, "longitude": nil},
		{"crash_record_id": "d", "crash_date": "2024-01-01", "latitude": "41.7", "longitude": "-87.65"},
	}
	e := &Engine{Log: zerolog.Nop()}
	out, err := e.Clean(context.Background(), in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	c := out[2]
	if c["crash_record_id"] != "c" {
		t.Fatalf("row 2 = %v, want c", c["crash_record_id"])
	}
	if c["latitude"] != 41.8 || c["longitude"] != -87.65 {
		t.Fatalf("imputed coordinates = %v %v, want 41.8 -87.65", c["latitude"], c["longitude"])
	}
	if c["lat_bin"] != 41.8 || c["lng_bin"] != -87.65 || c["grid_id"] != "41.8_-87.65" {
		t.Fatalf("bins = %v %v %v, want 41.8 -87.65 41.8_-87.65", c["lat_bin"], c["lng_bin"], c["grid_id"])
	}
	if !Envelope.Contains(c["latitude"].(float64), c["longitude"].(float64)) {
		t.Fatalf("imputed row outside envelope: %v", c)
	}
}

func TestClean_BadDateFailsBatch(t *testing.T) {
	t.Parallel()
	in := []records.Record{{"crash_record_id": "c1", "crash_date": "not a date", "latitude": "41.9", "longitude": "-87.7"}}
	e := &Engine{Log: zerolog.Nop()}
	if _, err := e.Clean(context.Background(), in); err == nil {
		t.Fatal("expected error for unparseable date")
	}
}

const mergedR1 = "crash_record_id,crash_date,crash_day_of_week,crash_hour,latitude,longitude,num_units,veh_count\n" +
	"c-null,,1,3,41.9,-87.7,2,1\n" +
	"c-ok,2024-03-05T17:45:00.000,3,17,41.88,-87.63,1,\n"

func TestStage_EndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := objstore.NewMemory()
	if err := store.Put(ctx, "transform-data", merge.OutputKey("crash", "R1"), []byte(mergedR1), merge.CSVContentType); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(t.TempDir(), "gold.db")
	s := &Stage{
		Engine:    &Engine{Store: store, Log: zerolog.Nop()},
		Loader:    &gold.Loader{Log: zerolog.Nop(), Stage: StageName},
		StoreKind: "sqlite",
	}
	j, err := job.Decode([]byte(`{"type":"clean","corr_id":"R1"}`), job.Defaults{
		XformBucket: "transform-data", Prefix: "crash", GoldDBPath: dbPath, GoldTable: "gold.crashes",
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	for i := 0; i < 2; i++ {
		next, err := s.Handle(ctx, j)
		if err != nil {
			t.Fatalf("Handle #%d: %v", i+1, err)
		}
		if next != nil {
			t.Fatalf("Handle #%d published %+v, want nothing", i+1, next)
		}
	}

	rep, err := gold.Verify(ctx, zerolog.Nop(), s.storageConfig(j.Clean))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Rows != 1 || !rep.Passed {
		t.Fatalf("report = %+v, want 1 row and passed", rep)
	}
}

func TestStage_MissingMerged(t *testing.T) {
	t.Parallel()
	store := objstore.NewMemory()
	s := &Stage{
		Engine:    &Engine{Store: store, Log: zerolog.Nop()},
		Loader:    &gold.Loader{Log: zerolog.Nop()},
		StoreKind: "sqlite",
	}
	_, err := s.Handle(context.Background(), job.NewClean(job.Clean{
		CorrID: "gone", XformBucket: "transform-data", Prefix: "crash",
		GoldDBPath: filepath.Join(t.TempDir(), "gold.db"),
	}))
	if !errors.Is(err, ErrMergedNotFound) {
		t.Fatalf("err = %v, want ErrMergedNotFound", err)
	}
}
