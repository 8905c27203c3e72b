package merge

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"crashpipe/internal/job"
	"crashpipe/internal/objstore"
	"crashpipe/pkg/records"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

func table(cols []string, rows ...records.Record) records.Table {
	return records.Table{Columns: cols, Rows: rows}
}

func TestMerge_AggregatesChildren(t *testing.T) {
	t.Parallel()
	crashes := table([]string{"id"}, records.Record{"id": "1"})
	vehicles := table([]string{"id", "x"},
		records.Record{"id": "1", "x": "b"},
		records.Record{"id": "1", "x": "a"},
	)
	out, err := Merge(context.Background(), crashes, vehicles, records.Table{}, "id")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("rows = %d, want 1", out.Len())
	}
	if got := out.Rows[0]["veh_count"]; got != int64(2) {
		t.Fatalf("veh_count = %v, want 2", got)
	}
	if diff := cmp.Diff([]string{"a", "b"}, out.Rows[0]["veh_x_list"]); diff != "" {
		t.Fatalf("veh_x_list (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"id", "veh_count", "veh_x_list"}, out.Columns); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
}

func TestMerge_StandardizeAndDedup(t *testing.T) {
	t.Parallel()
	crashes := table([]string{" CRASH_RECORD_ID ", "Speed"},
		records.Record{" CRASH_RECORD_ID ": "A", "Speed": json.Number("30")},
		records.Record{" CRASH_RECORD_ID ": "A", "Speed": json.Number("30")},
		records.Record{" CRASH_RECORD_ID ": "A", "Speed": json.Number("35")},
		records.Record{" CRASH_RECORD_ID ": "B", "Speed": nil},
	)
	people := table([]string{"crash_record_id", "person_type", "age"},
		records.Record{"crash_record_id": "B", "person_type": "DRIVER", "age": json.Number("40")},
		records.Record{"crash_record_id": "B", "person_type": "DRIVER", "age": json.Number("41")},
		records.Record{"crash_record_id": "B", "person_type": nil, "age": nil},
	)
	out, err := Merge(context.Background(), crashes, records.Table{}, people, "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	want := []string{"crash_record_id", "speed", "ppl_count", "ppl_person_type_list"}
	if diff := cmp.Diff(want, out.Columns); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	if out.Len() != 2 {
		t.Fatalf("rows = %d, want 2", out.Len())
	}
	if out.Rows[0]["speed"] != json.Number("30") {
		t.Fatalf("first A row speed = %v, want 30", out.Rows[0]["speed"])
	}
	if out.Rows[0]["ppl_count"] != nil {
		t.Fatalf("unmatched ppl_count = %v, want nil", out.Rows[0]["ppl_count"])
	}
	if out.Rows[1]["ppl_count"] != int64(3) {
		t.Fatalf("ppl_count = %v, want 3", out.Rows[1]["ppl_count"])
	}
	if diff := cmp.Diff([]string{"DRIVER"}, out.Rows[1]["ppl_person_type_list"]); diff != "" {
		t.Fatalf("list (-want +got):\n%s", diff)
	}
}

func TestMerge_ParentWithoutKey(t *testing.T) {
	t.Parallel()
	crashes := table([]string{"Other"}, records.Record{"Other": "x"})
	vehicles := table([]string{"crash_record_id"}, records.Record{"crash_record_id": "1"})
	out, err := Merge(context.Background(), crashes, vehicles, records.Table{}, "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if diff := cmp.Diff([]string{"other"}, out.Columns); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
}

func TestMerge_EmptyParent(t *testing.T) {
	t.Parallel()
	vehicles := table([]string{"crash_record_id"}, records.Record{"crash_record_id": "1"})
	out, err := Merge(context.Background(), records.Table{}, vehicles, records.Table{}, "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, out); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("csv = %q, want empty", buf.String())
	}
}

func TestTextColumns_Bounded(t *testing.T) {
	t.Parallel()
	cols := []string{"id", "n", "a", "b", "c", "d", "e", "f", "empty"}
	r := records.Record{"id": "1", "n": json.Number("1"), "empty": nil}
	for _, c := range cols[2:8] {
		r[c] = c
	}
	got := textColumns(table(cols, r), "id")
	if diff := cmp.Diff([]string{"a", "b", "c", "d", "e"}, got); diff != "" {
		t.Fatalf("textColumns (-want +got):\n%s", diff)
	}
}

func TestCSVSafe(t *testing.T) {
	t.Parallel()
	in := table([]string{"tags", "id", "obj"},
		records.Record{"id": "1", "tags": []string{"a&b", "ü"}, "obj": map[string]any{"k": "v"}},
		records.Record{"id": "2", "tags": nil, "obj": nil},
	)
	out, err := CSVSafe(in)
	if err != nil {
		t.Fatalf("CSVSafe: %v", err)
	}
	if diff := cmp.Diff([]string{"id", "tags_json", "obj_json"}, out.Columns); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	if got := out.Rows[0]["tags_json"]; got != `["a&b","ü"]` {
		t.Fatalf("tags_json = %v", got)
	}
	if got := out.Rows[0]["obj_json"]; got != `{"k":"v"}` {
		t.Fatalf("obj_json = %v", got)
	}
	if out.Rows[1]["tags_json"] != nil {
		t.Fatalf("null list encoded as %v", out.Rows[1]["tags_json"])
	}
}

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zst(t *testing.T, s string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll([]byte(s), nil)
}

func TestDecodePage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		body   []byte
		rows   int
		ok     bool
		fields []string
	}{
		{"plain array", []byte(`[{"b":1,"a":"x"},{"c":null}]`), 2, true, []string{"b", "a", "c"}},
		{"data envelope", []byte(`{"data":[{"a":"x"}]}`), 1, true, []string{"a"}},
		{"gzip", gz(t, `[{"a":"x"}]`), 1, true, []string{"a"}},
		{"zstd", zst(t, `[{"a":"x"}]`), 1, true, []string{"a"}},
		{"malformed", []byte(`[{"a":`), 0, false, nil},
		{"object without data", []byte(`{"a":1}`), 0, false, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tbl, ok := DecodePage(tt.body)
			if ok != tt.ok || tbl.Len() != tt.rows {
				t.Fatalf("DecodePage = (%d rows, %v), want (%d, %v)", tbl.Len(), ok, tt.rows, tt.ok)
			}
			if diff := cmp.Diff(tt.fields, tbl.Columns); diff != "" {
				t.Fatalf("columns (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEngineRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := objstore.NewMemory()
	put := func(key string, body []byte) {
		if err := store.Put(ctx, "raw-data", key, body, "application/json"); err != nil {
			t.Fatal(err)
		}
	}
	put("crash/crashes/year=2024/corr=R1/offset=0_limit=2.json.gz",
		gz(t, `[{"CRASH_RECORD_ID":"c1","crash_date":"2024-01-06T10:00:00.000","num_units":2},{"CRASH_RECORD_ID":"c2","crash_date":"2024-01-07T10:00:00.000","num_units":1}]`))
	put("crash/crashes/year=2023/corr=R1/offset=2_limit=2.json", []byte(`not json`))
	put("crash/crashes/year=2024/corr=R2/offset=0_limit=2.json", []byte(`[{"crash_record_id":"other"}]`))
	put("crash/vehicles/year=2024/corr=R1/crashes_offset=0_batch=0.json.gz",
		gz(t, `[{"crash_record_id":"c1","make":"FORD"},{"crash_record_id":"c1","make":"AUDI"}]`))

	e := &Engine{Store: store, Log: zerolog.Nop()}
	s := &Stage{Engine: e, GoldDBPath: "/tmp/gold.db", GoldTable: "gold.crashes"}
	next, err := s.Handle(ctx, job.NewTransform(job.Transform{
		CorrID: "R1", RawBucket: "raw-data", XformBucket: "transform-data", Prefix: "crash",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	wantNext := job.NewClean(job.Clean{
		CorrID: "R1", XformBucket: "transform-data", Prefix: "crash",
		GoldDBPath: "/tmp/gold.db", GoldTable: "gold.crashes",
	})
	if diff := cmp.Diff(&wantNext, next); diff != "" {
		t.Fatalf("next job (-want +got):\n%s", diff)
	}

	info, err := store.Stat(ctx, "transform-data", "crash/corr=R1/merged.csv")
	if err != nil {
		t.Fatalf("Stat merged: %v", err)
	}
	if info.ContentType != CSVContentType {
		t.Fatalf("content type = %q", info.ContentType)
	}
	body, _ := store.Get(ctx, "transform-data", "crash/corr=R1/merged.csv")
	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := [][]string{
		{"crash_record_id", "crash_date", "num_units", "veh_count", "veh_make_list_json"},
		{"c1", "2024-01-06T10:00:00.000", "2", "2", `["AUDI","FORD"]`},
		{"c2", "2024-01-07T10:00:00.000", "1", "", ""},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("csv (-want +got):\n%s", diff)
	}

	mb, err := store.Get(ctx, "transform-data", ManifestKey("R1"))
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(mb, &m); err != nil {
		t.Fatalf("manifest json: %v", err)
	}
	if m.InputRows[Crashes] != 2 || m.InputRows[Vehicles] != 2 || m.OutputRows != 2 {
		t.Fatalf("manifest = %+v", m)
	}
}

func TestEngineRun_NoParentData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := objstore.NewMemory()
	e := &Engine{Store: store, Log: zerolog.Nop()}
	res, err := e.Run(ctx, job.Transform{CorrID: "none", RawBucket: "raw-data", XformBucket: "out", Prefix: "crash"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rows != 0 {
		t.Fatalf("rows = %d, want 0", res.Rows)
	}
	body, err := store.Get(ctx, "out", OutputKey("crash", "none"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if strings.TrimSpace(string(body)) != "" {
		t.Fatalf("body = %q, want empty", body)
	}
}
