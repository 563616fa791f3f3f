package output

import (
	"fmt"
	"math"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/pdr-calculator/internal/raster"
	"github.com/forest-guardian/pdr-calculator/internal/utils"
)

// CreateGeoTIFF writes every layer as a FLOAT32 band in EPSG:4326 with NaN
// as nodata.
func CreateGeoTIFF(path string, transform raster.GeoTransform, layers []Layer) error {
	width, height, err := checkLayers(layers)
	if err != nil {
		return err
	}
	utils.ExecuteWithGDALLock(func() {
		err = writeGeoTIFF(path, transform, layers, width, height)
	})
	return err
}

func writeGeoTIFF(path string, transform raster.GeoTransform, layers []Layer, width, height int) error {
	ds, err := godal.Create(godal.GTiff, path, len(layers), godal.Float32, width, height,
		godal.CreationOption("COMPRESS=DEFLATE", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := ds.SetGeoTransform([6]float64(transform)); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set geotransform: %w", err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		ds.Close()
		return fmt.Errorf("failed to build EPSG:4326: %w", err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set spatial reference: %w", err)
	}

	names := make([]string, len(layers))
	bands := ds.Bands()
	for i, layer := range layers {
		names[i] = layer.Name
		if err := bands[i].SetNoData(math.NaN()); err != nil {
			ds.Close()
			return fmt.Errorf("failed to set nodata on %s: %w", layer.Name, err)
		}
		if err := bands[i].Write(0, 0, layer.Grid.Flat(), width, height); err != nil {
			ds.Close()
			return fmt.Errorf("failed to write band %s: %w", layer.Name, err)
		}
		if err := ds.SetMetadata(fmt.Sprintf("BAND_%d", i+1), layer.Name); err != nil {
			ds.Close()
			return err
		}
	}
	if err := ds.SetMetadata("BAND_NAMES", strings.Join(names, ",")); err != nil {
		ds.Close()
		return err
	}
	return ds.Close()
}
