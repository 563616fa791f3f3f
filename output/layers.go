package output

import (
	"fmt"

	"github.com/forest-guardian/pdr-calculator/internal/indices"
)

// Layer names in band order of the exported GeoTIFF.
const (
	LayerB11  = "B11"
	LayerNDVI = "NDVI"
	LayerLULC = "LULC"
	LayerPDR  = "PDR"
)

type Layer struct {
	Name string
	Grid indices.Grid
}

func checkLayers(layers []Layer) (int, int, error) {
	if len(layers) == 0 {
		return 0, 0, fmt.Errorf("no layers to write")
	}
	width, height := layers[0].Grid.Width(), layers[0].Grid.Height()
	if width == 0 || height == 0 {
		return 0, 0, fmt.Errorf("layer %s is empty", layers[0].Name)
	}
	for _, layer := range layers[1:] {
		if layer.Grid.Width() != width || layer.Grid.Height() != height {
			return 0, 0, fmt.Errorf("layer %s: %w", layer.Name, indices.ErrShapeMismatch)
		}
	}
	return width, height, nil
}
