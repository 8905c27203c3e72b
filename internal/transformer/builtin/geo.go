package builtin

import (
	"context"
	"math"
	"strconv"

	"crashpipe/pkg/records"
)

// Envelope is an inclusive lat/lng bounding box.
type Envelope struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether (lat, lng) lies inside e.
func (e Envelope) Contains(lat, lng float64) bool {
	return lat >= e.MinLat && lat <= e.MaxLat && lng >= e.MinLng && lng <= e.MaxLng
}

// GeoFilter drops records at exactly (0, 0) or outside Envelope. Each
// coordinate is checked on its own; a null coordinate never causes a drop,
// so rows with missing coordinates survive for imputation.
type GeoFilter struct {
	Lat, Lng string
	Envelope Envelope
}

// Name implements transformer.Transformer.
func (GeoFilter) Name() string { return "geo" }

// Apply implements transformer.Transformer.
func (g GeoFilter) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	out := in[:0]
	for _, r := range in {
		lat, okLat := ToFloat(r[g.Lat])
		lng, okLng := ToFloat(r[g.Lng])
		if okLat && okLng && lat == 0 && lng == 0 {
			continue
		}
		if okLat && (lat < g.Envelope.MinLat || lat > g.Envelope.MaxLat) {
			continue
		}
		if okLng && (lng < g.Envelope.MinLng || lng > g.Envelope.MaxLng) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// GeoBin writes rounded coordinate bins and a composite grid id. Rows
// missing either coordinate get null bins and grid id.
type GeoBin struct {
	Lat, Lng       string
	Precision      int
	LatBin, LngBin string
	GridID         string
}

// Name implements transformer.Transformer.
func (GeoBin) Name() string { return "geo_bin" }

// Apply implements transformer.Transformer.
func (g GeoBin) Apply(_ context.Context, in []records.Record) ([]records.Record, error) {
	for _, r := range in {
		lat, okLat := ToFloat(r[g.Lat])
		lng, okLng := ToFloat(r[g.Lng])
		if !okLat || !okLng {
			r[g.LatBin], r[g.LngBin], r[g.GridID] = nil, nil, nil
			continue
		}
		lb, gb := Round(lat, g.Precision), Round(lng, g.Precision)
		r[g.LatBin] = lb
		r[g.LngBin] = gb
		r[g.GridID] = FormatBin(lb) + "_" + FormatBin(gb)
	}
	return in, nil
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// FormatBin renders a bin the way a float column prints: the shortest exact
// form, always with a fractional part ("42" becomes "42.0").
func FormatBin(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s
		}
	}
	return s + ".0"
}
