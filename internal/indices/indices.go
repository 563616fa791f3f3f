package indices

import (
	"errors"
	"fmt"
	"math"
)

const (
	NDVIWeight = 0.6
	B11Weight  = 0.4
)

var ErrShapeMismatch = errors.New("grids have different shapes")

// Grid is a row-major raster: grid[y][x].
type Grid [][]float64

func NewGrid(width, height int) Grid {
	grid := make(Grid, height)
	for y := range grid {
		grid[y] = make([]float64, width)
	}
	return grid
}

// FromFlat slices a contiguous band buffer into rows.
func FromFlat(data []float64, width, height int) (Grid, error) {
	if len(data) != width*height {
		return nil, fmt.Errorf("buffer has %d values, expected %dx%d", len(data), width, height)
	}
	grid := make(Grid, height)
	for y := range grid {
		grid[y] = data[y*width : (y+1)*width]
	}
	return grid, nil
}

func (g Grid) Height() int {
	return len(g)
}

func (g Grid) Width() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Flat copies the grid into a contiguous buffer.
func (g Grid) Flat() []float64 {
	data := make([]float64, 0, g.Width()*g.Height())
	for _, row := range g {
		data = append(data, row...)
	}
	return data
}

func sameShape(a, b Grid) error {
	if a.Height() != b.Height() || a.Width() != b.Width() {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, a.Width(), a.Height(), b.Width(), b.Height())
	}
	return nil
}

func safeDivide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// NormalizedDifference computes (a-b)/(a+b) per pixel.
func NormalizedDifference(a, b Grid) (Grid, error) {
	if err := sameShape(a, b); err != nil {
		return nil, err
	}
	result := NewGrid(a.Width(), a.Height())
	for y := range result {
		for x := range result[y] {
			result[y][x] = safeDivide(a[y][x]-b[y][x], a[y][x]+b[y][x])
		}
	}
	return result, nil
}

func WeightedSum(a Grid, wa float64, b Grid, wb float64) (Grid, error) {
	if err := sameShape(a, b); err != nil {
		return nil, err
	}
	result := NewGrid(a.Width(), a.Height())
	for y := range result {
		for x := range result[y] {
			result[y][x] = a[y][x]*wa + b[y][x]*wb
		}
	}
	return result, nil
}

func NDVI(nir, red Grid) (Grid, error) {
	return NormalizedDifference(nir, red)
}

// PDR is the Potential Denitrification Rate: NDVI*0.6 + B11*0.4.
func PDR(ndvi, b11 Grid) (Grid, error) {
	return WeightedSum(ndvi, NDVIWeight, b11, B11Weight)
}

// Mask sets every pixel for which keep returns false to NaN, in place.
func Mask(grid Grid, keep func(x, y int) bool) Grid {
	for y := range grid {
		for x := range grid[y] {
			if !keep(x, y) {
				grid[y][x] = math.NaN()
			}
		}
	}
	return grid
}

type Summary struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// Summarize ignores NaN and infinite pixels. An empty summary has zero values.
func Summarize(grid Grid) Summary {
	summary := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, row := range grid {
		for _, value := range row {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				continue
			}
			summary.Count++
			sum += value
			summary.Min = math.Min(summary.Min, value)
			summary.Max = math.Max(summary.Max, value)
		}
	}
	if summary.Count == 0 {
		return Summary{}
	}
	summary.Mean = sum / float64(summary.Count)
	return summary
}
