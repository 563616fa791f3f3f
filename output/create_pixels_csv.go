package output

import (
	"fmt"
	"math"
	"os"

	"github.com/forest-guardian/pdr-calculator/internal/raster"
	"github.com/gocarina/gocsv"
)

type PixelRow struct {
	X         int     `csv:"x"`
	Y         int     `csv:"y"`
	Longitude float64 `csv:"lon"`
	Latitude  float64 `csv:"lat"`
	B11       float64 `csv:"b11"`
	NDVI      float64 `csv:"ndvi"`
	LULC      int     `csv:"lulc"`
	PDR       float64 `csv:"pdr"`
}

// PixelRows lists pixels with a finite PDR value. Layers are looked up by
// name, missing ones stay zero.
func PixelRows(transform raster.GeoTransform, layers []Layer) ([]*PixelRow, error) {
	width, height, err := checkLayers(layers)
	if err != nil {
		return nil, err
	}
	byName := map[string]Layer{}
	for _, layer := range layers {
		byName[layer.Name] = layer
	}
	value := func(name string, x, y int) float64 {
		if layer, ok := byName[name]; ok {
			return layer.Grid[y][x]
		}
		return 0
	}
	pdr, ok := byName[LayerPDR]
	if !ok {
		return nil, fmt.Errorf("layer %s is required", LayerPDR)
	}

	rows := []*PixelRow{}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if math.IsNaN(pdr.Grid[y][x]) {
				continue
			}
			lon, lat := transform.PixelCenter(x, y)
			lulc := value(LayerLULC, x, y)
			if math.IsNaN(lulc) {
				lulc = 0
			}
			rows = append(rows, &PixelRow{
				X:         x,
				Y:         y,
				Longitude: lon,
				Latitude:  lat,
				B11:       value(LayerB11, x, y),
				NDVI:      value(LayerNDVI, x, y),
				LULC:      int(lulc),
				PDR:       pdr.Grid[y][x],
			})
		}
	}
	return rows, nil
}

func CreatePixelsCSV(path string, transform raster.GeoTransform, layers []Layer) error {
	rows, err := PixelRows(transform, layers)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating CSV file: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("error encoding CSV: %w", err)
	}
	return nil
}
