package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var (
	ErrNoGeometry      = errors.New("Please draw a polygon on the map first.")
	ErrInvalidGeometry = errors.New("invalid geometry")
)

// ROI is the user selected region. Only polygonal parts of the input are kept.
type ROI struct {
	polygons orb.MultiPolygon
}

func NewROI(polygons ...orb.Polygon) (*ROI, error) {
	roi := &ROI{}
	for _, polygon := range polygons {
		if err := validatePolygon(polygon); err != nil {
			return nil, err
		}
		roi.polygons = append(roi.polygons, polygon)
	}
	if len(roi.polygons) == 0 {
		return nil, ErrNoGeometry
	}
	return roi, nil
}

// ParseROI accepts a GeoJSON geometry, feature or feature collection.
func ParseROI(data []byte) (*ROI, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, ErrNoGeometry
	}

	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	var geometries []orb.Geometry
	switch header.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		for _, feature := range fc.Features {
			geometries = append(geometries, feature.Geometry)
		}
	case "Feature":
		feature, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		geometries = append(geometries, feature.Geometry)
	case "":
		return nil, ErrNoGeometry
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		geometries = append(geometries, g.Geometry())
	}

	var polygons []orb.Polygon
	for _, g := range geometries {
		polygons = append(polygons, polygonsOf(g)...)
	}
	return NewROI(polygons...)
}

func polygonsOf(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		return v
	case orb.Collection:
		var result []orb.Polygon
		for _, child := range v {
			result = append(result, polygonsOf(child)...)
		}
		return result
	}
	return nil
}

func validatePolygon(polygon orb.Polygon) error {
	if len(polygon) == 0 {
		return fmt.Errorf("%w: polygon has no rings", ErrInvalidGeometry)
	}
	for i, ring := range polygon {
		if len(ring) < 4 {
			return fmt.Errorf("%w: ring %d has %d positions, need at least 4", ErrInvalidGeometry, i, len(ring))
		}
		for _, p := range ring {
			if math.IsNaN(p.Lon()) || math.IsInf(p.Lon(), 0) || math.IsNaN(p.Lat()) || math.IsInf(p.Lat(), 0) {
				return fmt.Errorf("%w: non-finite coordinate", ErrInvalidGeometry)
			}
			if p.Lon() < -180 || p.Lon() > 180 || p.Lat() < -90 || p.Lat() > 90 {
				return fmt.Errorf("%w: coordinate %v out of range", ErrInvalidGeometry, p)
			}
		}
		if !ring.Closed() {
			return fmt.Errorf("%w: ring %d is not closed", ErrInvalidGeometry, i)
		}
		if planar.Area(ring) == 0 {
			return fmt.Errorf("%w: ring %d has no area", ErrInvalidGeometry, i)
		}
	}
	return nil
}

func (r *ROI) Bound() orb.Bound {
	return r.polygons.Bound()
}

func (r *ROI) Centroid() orb.Point {
	centroid, _ := planar.CentroidArea(r.polygons)
	return centroid
}

func (r *ROI) Contains(lon, lat float64) bool {
	return planar.MultiPolygonContains(r.polygons, orb.Point{lon, lat})
}

func (r *ROI) Polygons() orb.MultiPolygon {
	return r.polygons
}

// Geometry returns a single polygon when possible so remote APIs that only
// accept Polygon still work for the common single-shape case.
func (r *ROI) Geometry() orb.Geometry {
	if len(r.polygons) == 1 {
		return r.polygons[0]
	}
	return r.polygons
}

// GeoJSON returns the geometry object, ready to embed in a request body.
func (r *ROI) GeoJSON() *geojson.Geometry {
	return geojson.NewGeometry(r.Geometry())
}

// Rings returns the outer ring of every polygon.
func (r *ROI) Rings() []orb.Ring {
	rings := make([]orb.Ring, 0, len(r.polygons))
	for _, polygon := range r.polygons {
		rings = append(rings, polygon[0])
	}
	return rings
}
