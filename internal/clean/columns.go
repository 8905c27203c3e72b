package clean

import "crashpipe/internal/transformer/builtin"

// IDColumn is the crash primary key.
const IDColumn = "crash_record_id"

// DateColumn is the crash date, required on every cleaned row.
const DateColumn = "crash_date"

// RequiredColumns is the projection applied to the merged CSV. Columns
// missing upstream are synthesized as null.
var RequiredColumns = []string{
	"crash_record_id", "beat_of_occurrence", "crash_date", "crash_day_of_week", "crash_hour", "crash_type",
	"hit_and_run_i", "num_units", "injuries_total", "lighting_condition", "latitude", "longitude",
	"posted_speed_limit", "road_defect", "roadway_surface_cond", "street_direction", "trafficway_type",
	"weather_condition", "intersection_related_i", "traffic_control_device", "work_zone_i",
	"private_property_i",
}

// BooleanColumns are the Y/N flags standardized to 1/0.
var BooleanColumns = []string{"hit_and_run_i", "intersection_related_i", "private_property_i", "work_zone_i"}

// NumericColumns are parsed to float64 after projection.
var NumericColumns = []string{
	"beat_of_occurrence", "crash_day_of_week", "crash_hour", "num_units",
	"injuries_total", "latitude", "longitude", "posted_speed_limit",
}

// MedianColumns are imputed with the batch median. Bins are derived from
// the imputed coordinates afterwards, so they are not listed.
var MedianColumns = []string{
	"beat_of_occurrence", "crash_day_of_week", "crash_hour", "num_units",
	"posted_speed_limit", "latitude", "longitude",
}

// CategoricalColumns are imputed with OTHER.
var CategoricalColumns = []string{
	"crash_type", "lighting_condition", "road_defect", "roadway_surface_cond",
	"street_direction", "trafficway_type", "weather_condition", "traffic_control_device",
	"hour_bin", "grid_id",
}

// Chicago approximate bounding box.
var Envelope = builtin.Envelope{MinLat: 41.6, MaxLat: 42.1, MinLng: -88.0, MaxLng: -87.5}

// Vocabularies holds the closed value sets of the normalized categoricals.
var Vocabularies = map[string][]string{
	"roadway_surface_cond":   {"DRY", "UNKNOWN", "WET", "SNOW OR SLUSH", "ICE"},
	"lighting_condition":     {"DARKNESS, LIGHTED ROAD", "UNKNOWN", "DARKNESS", "DAWN", "DAYLIGHT", "DUSK"},
	"weather_condition":      {"CLOUDY/OVERCAST", "CLEAR", "RAIN", "SNOW"},
	"traffic_control_device": {"NO CONTROLS", "TRAFFIC SIGNAL", "STOP SIGN/FLASHER", "UNKNOWN"},
	"crash_type":             {"NO INJURY / DRIVE AWAY", "INJURY AND / OR TOW DUE TO CRASH"},
}

// vocabOrder fixes the order the categorical steps run in.
var vocabOrder = []string{"roadway_surface_cond", "lighting_condition", "weather_condition", "traffic_control_device", "crash_type"}

// SnowFold folds the weather sub-categories into SNOW.
var SnowFold = map[string]string{
	"BLOWING SNOW":          "SNOW",
	"SLEET/HAIL":            "SNOW",
	"FREEZING RAIN/DRIZZLE": "SNOW",
}

// Caps are the numeric ceilings applied last.
var Caps = []builtin.Cap{
	{Column: "num_units", Max: 10},
	{Column: "posted_speed_limit", Max: 75},
}
