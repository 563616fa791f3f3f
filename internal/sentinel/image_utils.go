package sentinel

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/pdr-calculator/internal/indices"
	"github.com/forest-guardian/pdr-calculator/internal/utils"
)

func openQuiet(path string) (*godal.Dataset, error) {
	return godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}))
}

// DecodeBands reads a RequestBands TIFF into grids keyed by BandNames.
func DecodeBands(path string) (result map[string]indices.Grid, err error) {
	utils.ExecuteWithGDALLock(func() {
		result, err = decodeBands(path)
	})
	return result, err
}

func decodeBands(path string) (map[string]indices.Grid, error) {
	ds, err := openQuiet(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open TIFF file: %w", err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if len(bands) < len(BandNames) {
		return nil, fmt.Errorf("image has %d bands, expected %d", len(bands), len(BandNames))
	}

	structure := ds.Structure()
	width, height := structure.SizeX, structure.SizeY
	result := make(map[string]indices.Grid, len(BandNames))
	for i, name := range BandNames {
		data := make([]float64, width*height)
		if err := bands[i].Read(0, 0, data, width, height); err != nil {
			return nil, fmt.Errorf("failed to read data for band %s: %w", name, err)
		}
		grid, err := indices.FromFlat(data, width, height)
		if err != nil {
			return nil, err
		}
		result[name] = grid
	}
	return result, nil
}
