package raster

import (
	"math"

	"github.com/paulmach/orb"
)

// GeoTransform follows the GDAL affine layout:
// lon = gt[0] + x*gt[1] + y*gt[2], lat = gt[3] + x*gt[4] + y*gt[5].
type GeoTransform [6]float64

// GeoTransformFor maps a north-up width x height grid onto bound.
func GeoTransformFor(bound orb.Bound, width, height int) GeoTransform {
	return GeoTransform{
		bound.Min.Lon(),
		(bound.Max.Lon() - bound.Min.Lon()) / float64(width),
		0,
		bound.Max.Lat(),
		0,
		-(bound.Max.Lat() - bound.Min.Lat()) / float64(height),
	}
}

func (gt GeoTransform) PixelCenter(x, y int) (float64, float64) {
	fx, fy := float64(x)+0.5, float64(y)+0.5
	return gt[0] + fx*gt[1] + fy*gt[2], gt[3] + fx*gt[4] + fy*gt[5]
}

// Pixel returns the column and row containing lon, lat. Rotation terms are
// ignored.
func (gt GeoTransform) Pixel(lon, lat float64) (int, int) {
	col := int(math.Floor((lon - gt[0]) / gt[1]))
	row := int(math.Floor((lat - gt[3]) / gt[5]))
	return col, row
}

type Window struct {
	X, Y, Width, Height int
}

// Window is the pixel window of a sizeX x sizeY raster covering bound,
// clipped to the raster extent.
func (gt GeoTransform) Window(bound orb.Bound, sizeX, sizeY int) Window {
	col0, row0 := gt.Pixel(bound.Min.Lon(), bound.Max.Lat())
	col1, row1 := gt.Pixel(bound.Max.Lon(), bound.Min.Lat())
	col0, row0 = clamp(col0, 0, sizeX), clamp(row0, 0, sizeY)
	col1, row1 = clamp(col1+1, 0, sizeX), clamp(row1+1, 0, sizeY)
	return Window{X: col0, Y: row0, Width: col1 - col0, Height: row1 - row0}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
