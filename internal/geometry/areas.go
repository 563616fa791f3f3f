package geometry

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/forest-guardian/pdr-calculator/internal/properties"
)

func areaPath(name string) string {
	return properties.DataPath("geojsons", name+".geojson")
}

// LoadROIFile reads data/geojsons/<name>.geojson.
func LoadROIFile(name string) (*ROI, error) {
	if strings.ContainsAny(name, `/\`) || name == "" {
		return nil, fmt.Errorf("invalid area name %q", name)
	}
	data, err := os.ReadFile(areaPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read area %s: %w", name, err)
	}
	return ParseROI(data)
}

func ListAreas() ([]string, error) {
	files, err := os.ReadDir(properties.DataPath("geojsons"))
	if err != nil {
		return nil, fmt.Errorf("error reading geojsons folder: %w", err)
	}
	areas := []string{}
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".geojson") {
			areas = append(areas, strings.TrimSuffix(file.Name(), ".geojson"))
		}
	}
	sort.Strings(areas)
	return areas, nil
}
