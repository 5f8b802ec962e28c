package domain

import (
	"math"
	"strings"
)

// Record одна строка входных данных
type Record struct {
	Index      int
	Identifier string
	PointID    string
	Lon, Lat   *float64
	PointMode  bool
}

// BuildTask binds one input record to the shared parameters.
func BuildTask(rec Record, params *Parameters) (TaskSpec, error) {
	id := strings.TrimSpace(rec.Identifier)
	if id == "" {
		return TaskSpec{}, &ValidationError{Field: "landsat_id", Reason: "is empty"}
	}
	if params == nil {
		return TaskSpec{}, &ValidationError{Field: "parameters", Reason: "are missing"}
	}

	task := TaskSpec{
		Index:      rec.Index,
		Identifier: id,
		Mode:       ModeScene,
		Params:     params,
	}
	if !rec.PointMode {
		return task, nil
	}

	if rec.Lon == nil || rec.Lat == nil {
		return TaskSpec{}, &ValidationError{Field: "lon/lat", Reason: "are required in point mode"}
	}
	if !finite(*rec.Lon) || !finite(*rec.Lat) {
		return TaskSpec{}, &ValidationError{Field: "lon/lat", Reason: "must be finite numbers"}
	}

	task.Mode = ModePoint
	task.PointID = strings.TrimSpace(rec.PointID)
	task.Point = &Point{Lon: *rec.Lon, Lat: *rec.Lat}
	return task, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
