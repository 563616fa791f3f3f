package output

import (
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/pdr-calculator/internal/indices"
	"github.com/forest-guardian/pdr-calculator/internal/properties"
	"github.com/forest-guardian/pdr-calculator/internal/raster"
	"github.com/paulmach/orb"
)

// Display range of the PDR layer.
const (
	PreviewMin = -1.0
	PreviewMax = 1.0
)

// ColorFor linearly interpolates the palette over [min, max]. NaN is
// transparent.
func ColorFor(value, min, max float64) color.RGBA {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return color.RGBA{}
	}
	t := (value - min) / (max - min)
	t = math.Max(0, math.Min(1, t))

	palette := properties.PDRPalette
	position := t * float64(len(palette)-1)
	i := int(math.Floor(position))
	if i >= len(palette)-1 {
		last := palette[len(palette)-1]
		return color.RGBA{R: last.R, G: last.G, B: last.B, A: 255}
	}
	f := position - float64(i)
	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
	}
	from, to := palette[i], palette[i+1]
	return color.RGBA{R: lerp(from.R, to.R), G: lerp(from.G, to.G), B: lerp(from.B, to.B), A: 255}
}

// CreatePreviewImage renders grid as a PNG with the ROI outline on top.
func CreatePreviewImage(path string, grid indices.Grid, transform raster.GeoTransform, rings []orb.Ring) error {
	width, height := grid.Width(), grid.Height()
	if width == 0 || height == 0 {
		return fmt.Errorf("cannot render an empty grid")
	}

	dc := gg.NewContext(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := ColorFor(grid[y][x], PreviewMin, PreviewMax)
			if c.A == 0 {
				continue
			}
			dc.SetColor(c)
			dc.SetPixel(x, y)
		}
	}

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	for _, ring := range rings {
		for i, p := range ring {
			px := (p.Lon() - transform[0]) / transform[1]
			py := (p.Lat() - transform[3]) / transform[5]
			if i == 0 {
				dc.MoveTo(px, py)
			} else {
				dc.LineTo(px, py)
			}
		}
		dc.ClosePath()
		dc.Stroke()
	}

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
