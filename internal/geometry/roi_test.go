package geometry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const squareCoords = `[[[90.0,23.0],[91.0,23.0],[91.0,24.0],[90.0,24.0],[90.0,23.0]]]`

func TestParseROI_Geometry(t *testing.T) {
	roi, err := ParseROI([]byte(`{"type":"Polygon","coordinates":` + squareCoords + `}`))
	require.NoError(t, err)

	bound := roi.Bound()
	assert.Equal(t, orb.Point{90, 23}, bound.Min)
	assert.Equal(t, orb.Point{91, 24}, bound.Max)
	assert.True(t, roi.Contains(90.5, 23.5))
	assert.False(t, roi.Contains(92, 23.5))
	assert.InDelta(t, 90.5, roi.Centroid().Lon(), 1e-9)
	assert.InDelta(t, 23.5, roi.Centroid().Lat(), 1e-9)
}

func TestParseROI_Feature(t *testing.T) {
	roi, err := ParseROI([]byte(`{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":` + squareCoords + `}}`))
	require.NoError(t, err)
	assert.Len(t, roi.Polygons(), 1)
	assert.IsType(t, orb.Polygon{}, roi.Geometry())
}

func TestParseROI_FeatureCollectionSkipsNonPolygons(t *testing.T) {
	data := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[90.2,23.2]}},
		{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":` + squareCoords + `}},
		{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[95,20],[96,20],[96,21],[95,20]]]}}
	]}`
	roi, err := ParseROI([]byte(data))
	require.NoError(t, err)
	assert.Len(t, roi.Polygons(), 2)
	assert.IsType(t, orb.MultiPolygon{}, roi.Geometry())
	assert.Len(t, roi.Rings(), 2)
	assert.Equal(t, 96.0, roi.Bound().Max.Lon())
}

func TestParseROI_NoGeometry(t *testing.T) {
	for _, input := range []string{"", "null", `{}`, `{"type":"FeatureCollection","features":[]}`, `{"type":"Point","coordinates":[1,2]}`} {
		_, err := ParseROI([]byte(input))
		assert.ErrorIs(t, err, ErrNoGeometry, input)
	}
	assert.Equal(t, "Please draw a polygon on the map first.", ErrNoGeometry.Error())
}

func TestParseROI_Invalid(t *testing.T) {
	inputs := []string{
		`not json`,
		`{"type":"Polygon","coordinates":[[[0,0],[1,0],[0,0]]]}`,
		`{"type":"Polygon","coordinates":[[[0,0],[200,0],[1,1],[0,0]]]}`,
		// collinear
		`{"type":"Polygon","coordinates":[[[90,23],[91,23],[90.5,23],[90,23]]]}`,
		// open
		`{"type":"Polygon","coordinates":[[[90,23],[91,23],[91,24],[90,24]]]}`,
		`{"type":"Polygon","coordinates":[[[90,23],[91,23],[91,24],[90,24],[90,23]],[[90.2,23.2],[90.4,23.2],[90.2,23.2],[90.2,23.2]]]}`,
	}
	for _, input := range inputs {
		_, err := ParseROI([]byte(input))
		assert.ErrorIs(t, err, ErrInvalidGeometry, input)
	}
}

func TestLoadROIFileAndListAreas(t *testing.T) {
	root := t.TempDir()
	t.Setenv("ROOT_PATH", root)
	dir := filepath.Join(root, "data", "geojsons")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dhaka.geojson"), []byte(`{"type":"Polygon","coordinates":`+squareCoords+`}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	areas, err := ListAreas()
	require.NoError(t, err)
	assert.Equal(t, []string{"dhaka"}, areas)

	roi, err := LoadROIFile("dhaka")
	require.NoError(t, err)
	assert.True(t, roi.Contains(90.5, 23.5))

	_, err = LoadROIFile("../etc/passwd")
	assert.Error(t, err)
}
