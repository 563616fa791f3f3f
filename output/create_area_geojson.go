package output

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/forest-guardian/pdr-calculator/internal/geometry"
	"github.com/paulmach/orb/geojson"
)

// CreateAreaGeoJSON stores the processed ROI with the given properties.
func CreateAreaGeoJSON(path string, roi *geometry.ROI, properties map[string]interface{}) error {
	feature := geojson.NewFeature(roi.Geometry())
	for key, value := range properties {
		feature.Properties[key] = value
	}
	fc := geojson.NewFeatureCollection().Append(feature)

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error creating GeoJSON file: %w", err)
	}
	return nil
}
