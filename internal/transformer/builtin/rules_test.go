package builtin

import (
	"context"
	"strings"
	"testing"
	"time"

	"crashpipe/pkg/records"

	"github.com/google/go-cmp/cmp"
)

var ctx = context.Background()

func TestProject_SynthesizesMissing(t *testing.T) {
	t.Parallel()
	in := []records.Record{{"a": "1", "extra": "x"}}
	out, err := Project{Columns: []string{"a", "b"}}.Apply(ctx, in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := records.Record{"a": "1", "b": nil}
	if diff := cmp.Diff(want, out[0]); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	in := []records.Record{{"a": "  x ", "b": "   ", "c": 1.0}}
	out, _ := Normalize{}.Apply(ctx, in)
	want := records.Record{"a": "x", "b": nil, "c": 1.0}
	if diff := cmp.Diff(want, out[0]); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestBoolean(t *testing.T) {
	t.Parallel()
	cases := map[any]int64{
		"Y": 1, "yes": 1, " TRUE ": 1, "t": 1, "1": 1, "1.0": 1, 1.0: 1, true: 1,
		"N": 0, "no": 0, "0": 0, "maybe": 0, nil: 0, 2.0: 0, "": 0,
	}
	for in, want := range cases {
		recs := []records.Record{{"f": in}}
		out, _ := Boolean{Columns: []string{"f"}}.Apply(ctx, recs)
		if got := out[0]["f"]; got != want {
			t.Errorf("Boolean(%#v) = %v, want %v", in, got, want)
		}
	}
}

func TestCoerce(t *testing.T) {
	t.Parallel()
	in := []records.Record{{"n": "12", "m": "abc", "k": 3, "s": "keep"}}
	out, _ := Coerce{Numeric: []string{"n", "m", "k", "absent"}}.Apply(ctx, in)
	want := records.Record{"n": 12.0, "m": nil, "k": 3.0, "s": "keep", "absent": nil}
	if diff := cmp.Diff(want, out[0]); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRequire(t *testing.T) {
	t.Parallel()
	in := []records.Record{{"id": "a"}, {"id": nil}, {"id": ""}, {}}
	out, _ := Require{Fields: []string{"id"}}.Apply(ctx, in)
	if len(out) != 1 || out[0]["id"] != "a" {
		t.Fatalf("out = %v", out)
	}
}

func TestDateNormalize(t *testing.T) {
	t.Parallel()
	in := []records.Record{
		{"d": "2024-03-05T17:45:00.000"},
		{"d": nil},
		{"d": "03/06/2024 11:59:00 PM"},
		{"d": "2024-03-07"},
	}
	out, err := DateNormalize{Column: "d"}.Apply(ctx, in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []time.Time{
		time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC),
	}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i, w := range want {
		if got := out[i]["d"].(time.Time); !got.Equal(w) {
			t.Fatalf("row %d = %v, want %v", i, got, w)
		}
	}

	_, err = DateNormalize{Column: "d"}.Apply(ctx, []records.Record{{"d": "yesterday"}})
	if err == nil || !strings.Contains(err.Error(), "unparseable") {
		t.Fatalf("err = %v, want unparseable", err)
	}
}

func TestGeoFilter(t *testing.T) {
	t.Parallel()
	g := GeoFilter{
		Lat: "lat", Lng: "lng",
		Envelope: Envelope{MinLat: 41.6, MaxLat: 42.1, MinLng: -88.0, MaxLng: -87.5},
	}
	in := []records.Record{
		{"id": "in", "lat": 41.88123, "lng": -87.62789},
		{"id": "zero", "lat": 0.0, "lng": 0.0},
		{"id": "north", "lat": 42.2, "lng": -87.6},
		{"id": "west", "lat": 41.9, "lng": -88.01},
		{"id": "null", "lat": nil, "lng": -87.6},
		{"id": "nulls", "lat": nil, "lng": nil},
		{"id": "null-far", "lat": nil, "lng": -74.0},
		{"id": "edge", "lat": 42.1, "lng": -88.0},
	}
	out, _ := g.Apply(ctx, in)
	var ids []any
	for _, r := range out {
		ids = append(ids, r["id"])
	}
	if diff := cmp.Diff([]any{"in", "null", "nulls", "edge"}, ids); diff != "" {
		t.Fatalf("kept (-want +got):\n%s", diff)
	}
}

func TestGeoBin(t *testing.T) {
	t.Parallel()
	g := GeoBin{Lat: "lat", Lng: "lng", Precision: 2, LatBin: "lat_bin", LngBin: "lng_bin", GridID: "grid_id"}
	in := []records.Record{
		{"lat": 41.88123, "lng": -87.62789},
		{"lat": 42.1, "lng": -88.0},
		{"lat": nil, "lng": -87.6},
	}
	out, _ := g.Apply(ctx, in)
	if out[0]["lat_bin"] != 41.88 || out[0]["lng_bin"] != -87.63 || out[0]["grid_id"] != "41.88_-87.63" {
		t.Fatalf("bins = %v %v %v", out[0]["lat_bin"], out[0]["lng_bin"], out[0]["grid_id"])
	}
	if out[1]["grid_id"] != "42.1_-88.0" {
		t.Fatalf("edge grid_id = %v, want 42.1_-88.0", out[1]["grid_id"])
	}
	if out[2]["lat_bin"] != nil || out[2]["lng_bin"] != nil || out[2]["grid_id"] != nil {
		t.Fatalf("null coordinate bins = %v %v %v, want nil", out[2]["lat_bin"], out[2]["lng_bin"], out[2]["grid_id"])
	}
}

func TestCategorical(t *testing.T) {
	t.Parallel()
	c := Categorical{
		Column:     "w",
		Vocabulary: []string{"CLEAR", "RAIN", "SNOW"},
		Fold:       map[string]string{"BLOWING SNOW": "SNOW", "SLEET/HAIL": "SNOW"},
	}
	in := []records.Record{{"w": "clear"}, {"w": "Blowing Snow"}, {"w": "sleet/hail"}, {"w": "FOG/SMOKE/HAZE"}, {"w": nil}}
	out, _ := c.Apply(ctx, in)
	want := []string{"CLEAR", "SNOW", "SNOW", Other, Other}
	for i, w := range want {
		if out[i]["w"] != w {
			t.Fatalf("row %d = %v, want %s", i, out[i]["w"], w)
		}
	}
}

func TestImpute(t *testing.T) {
	t.Parallel()
	in := []records.Record{
		{"inj": nil, "n": 1.0, "empty": nil, "cat": nil},
		{"inj": 2.0, "n": nil, "empty": nil, "cat": "X"},
		{"inj": nil, "n": 3.0, "empty": nil, "cat": nil},
		{"inj": nil, "n": 10.0, "empty": nil, "cat": nil},
	}
	out, _ := ImputeConst{Columns: []string{"inj"}, Value: 0.0}.Apply(ctx, in)
	out, _ = ImputeMedian{Columns: []string{"n", "empty"}}.Apply(ctx, out)
	out, _ = ImputeConst{Columns: []string{"cat"}, Value: Other}.Apply(ctx, out)

	if out[0]["inj"] != 0.0 || out[1]["inj"] != 2.0 {
		t.Fatalf("inj = %v %v", out[0]["inj"], out[1]["inj"])
	}
	if out[1]["n"] != 3.0 {
		t.Fatalf("median fill = %v, want 3", out[1]["n"])
	}
	if out[0]["empty"] != nil {
		t.Fatalf("all-null column filled with %v, want nil", out[0]["empty"])
	}
	if out[0]["cat"] != Other || out[1]["cat"] != "X" {
		t.Fatalf("cat = %v %v", out[0]["cat"], out[1]["cat"])
	}
}

func TestMedian(t *testing.T) {
	t.Parallel()
	if m := Median([]float64{5, 1, 3}); m != 3 {
		t.Fatalf("odd median = %v, want 3", m)
	}
	if m := Median([]float64{4, 1, 3, 2}); m != 2.5 {
		t.Fatalf("even median = %v, want 2.5", m)
	}
}

func TestCap(t *testing.T) {
	t.Parallel()
	in := []records.Record{{"u": 12.0}, {"u": 10.0}, {"u": 3.0}, {"u": nil}}
	out, _ := Cap{Column: "u", Max: 10}.Apply(ctx, in)
	want := []any{10.0, 10.0, 3.0, nil}
	for i, w := range want {
		if out[i]["u"] != w {
			t.Fatalf("row %d = %v, want %v", i, out[i]["u"], w)
		}
	}
}

func TestFormatBin(t *testing.T) {
	t.Parallel()
	for in, want := range map[float64]string{42: "42.0", -87.5: "-87.5", 41.88: "41.88"} {
		if got := FormatBin(in); got != want {
			t.Fatalf("FormatBin(%v) = %q, want %q", in, got, want)
		}
	}
}
