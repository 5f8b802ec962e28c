package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func ptr(v float64) *float64 { return &v }

func TestBuildTask_SceneMode(t *testing.T) {
	params := DefaultParameters()

	task, err := BuildTask(Record{Index: 3, Identifier: " LC08_L1TP_022034_20130422_20170310_01_T1 "}, &params)
	require.NoError(t, err)

	assert.Equal(t, 3, task.Index)
	assert.Equal(t, "LC08_L1TP_022034_20130422_20170310_01_T1", task.Identifier)
	assert.Equal(t, ModeScene, task.Mode)
	assert.Nil(t, task.Point)
	assert.Same(t, &params, task.Params)
	assert.Equal(t, "LC08_L1TP_022034_20130422_20170310_01_T1", task.ExportPrefix())
}

func TestBuildTask_PointMode(t *testing.T) {
	params := DefaultParameters()
	params.Radius = 2000

	task, err := BuildTask(Record{
		Identifier: "LC08_A",
		PointID:    "P1",
		Lon:        ptr(-88.263),
		Lat:        ptr(37.453),
		PointMode:  true,
	}, &params)
	require.NoError(t, err)

	assert.Equal(t, ModePoint, task.Mode)
	require.NotNil(t, task.Point)
	assert.Equal(t, Point{Lon: -88.263, Lat: 37.453}, *task.Point)
	assert.Equal(t, 2000.0, task.Params.Radius)
	assert.Equal(t, "LC08_A_v_P1", task.ExportPrefix())
}

func TestBuildTask_Invalid(t *testing.T) {
	params := DefaultParameters()

	tests := []struct {
		name   string
		rec    Record
		params *Parameters
	}{
		{name: "empty identifier", rec: Record{Identifier: "  "}, params: &params},
		{name: "nil parameters", rec: Record{Identifier: "LC08_A"}},
		{name: "point without lon", rec: Record{Identifier: "LC08_A", PointMode: true, Lat: ptr(1)}, params: &params},
		{name: "point without lat", rec: Record{Identifier: "LC08_A", PointMode: true, Lon: ptr(1)}, params: &params},
		{name: "NaN longitude", rec: Record{Identifier: "LC08_A", PointMode: true, Lon: ptr(math.NaN()), Lat: ptr(1)}, params: &params},
		{name: "infinite latitude", rec: Record{Identifier: "LC08_A", PointMode: true, Lon: ptr(1), Lat: ptr(math.Inf(-1))}, params: &params},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildTask(tt.rec, tt.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation), "err=%v", err)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestBuildTask_SceneModeIgnoresCoordinates(t *testing.T) {
	params := DefaultParameters()

	task, err := BuildTask(Record{Identifier: "LC08_A", Lon: ptr(math.NaN())}, &params)
	require.NoError(t, err)
	assert.Nil(t, task.Point)
}

func TestBuildTask_PointPresentIffPointMode(t *testing.T) {
	params := DefaultParameters()

	rapid.Check(t, func(t *rapid.T) {
		rec := Record{
			Index:      rapid.IntRange(0, 1000).Draw(t, "index"),
			Identifier: rapid.StringMatching(`[A-Z0-9_ ]{0,12}`).Draw(t, "id"),
			PointMode:  rapid.Bool().Draw(t, "point_mode"),
		}
		if rapid.Bool().Draw(t, "has_lon") {
			rec.Lon = ptr(rapid.Float64().Draw(t, "lon"))
		}
		if rapid.Bool().Draw(t, "has_lat") {
			rec.Lat = ptr(rapid.Float64().Draw(t, "lat"))
		}

		task, err := BuildTask(rec, &params)
		if err != nil {
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			return
		}
		if (task.Mode == ModePoint) != (task.Point != nil) {
			t.Fatalf("mode=%s point=%v", task.Mode, task.Point)
		}
		if (task.Mode == ModePoint) != rec.PointMode {
			t.Fatalf("mode=%s, point_mode=%v", task.Mode, rec.PointMode)
		}
	})
}

func TestParameters_Validate(t *testing.T) {
	valid := DefaultParameters()
	require.NoError(t, valid.Validate())

	mutations := map[string]func(p *Parameters){
		"format":         func(p *Parameters) { p.OutputFormat = "geojson" },
		"water method":   func(p *Parameters) { p.WaterMethod = "Otsu" },
		"max distance":   func(p *Parameters) { p.MaxDistance = 0 },
		"fill size":      func(p *Parameters) { p.FillSize = -1 },
		"branch removal": func(p *Parameters) { p.BranchRemovalDistance = 0 },
		"radius":         func(p *Parameters) { p.Radius = -5 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := DefaultParameters()
			mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrValidation)
		})
	}
}

func TestErrors_Classification(t *testing.T) {
	assert.ErrorIs(t, &InputFormatError{Missing: []string{"landsat_id"}}, ErrInputFormat)
	assert.ErrorIs(t, &RemoteSubmissionError{StatusCode: 400, Message: "x"}, ErrRemoteSubmission)
	assert.NotErrorIs(t, &RemoteSubmissionError{}, ErrSessionExpired)
	assert.Contains(t, (&InputFormatError{Missing: []string{"Point_ID", "Latitude"}}).Error(), "Point_ID, Latitude")
}
