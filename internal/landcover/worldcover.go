package landcover

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/pdr-calculator/internal/indices"
	"github.com/forest-guardian/pdr-calculator/internal/properties"
	"github.com/forest-guardian/pdr-calculator/internal/raster"
	"github.com/forest-guardian/pdr-calculator/internal/utils"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

const tileDegrees = 3

// Class codes of the ESA WorldCover v200 "Map" band.
var Classes = map[int]string{
	10:  "Tree cover",
	20:  "Shrubland",
	30:  "Grassland",
	40:  "Cropland",
	50:  "Built-up",
	60:  "Bare / sparse vegetation",
	70:  "Snow and ice",
	80:  "Permanent water bodies",
	90:  "Herbaceous wetland",
	95:  "Mangroves",
	100: "Moss and lichen",
}

// WorldCover samples the ESA WorldCover 2021 land cover map from its public
// 3x3 degree cloud optimized GeoTIFF tiles.
type WorldCover struct {
	BaseURL string
	Log     logrus.FieldLogger
}

func NewWorldCover() *WorldCover {
	return &WorldCover{BaseURL: properties.WorldCoverBaseURL(), Log: logrus.StandardLogger()}
}

func floorTile(value float64) int {
	return int(math.Floor(value/tileDegrees)) * tileDegrees
}

// TileName names a tile by its south west corner.
func TileName(lat, lon int) string {
	ns, ew := "N", "E"
	if lat < 0 {
		ns = "S"
	}
	if lon < 0 {
		ew = "W"
	}
	return fmt.Sprintf("ESA_WorldCover_10m_2021_v200_%s%02d%s%03d_Map.tif", ns, abs(lat), ew, abs(lon))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type tile struct {
	Name  string
	Bound orb.Bound
}

func tilesFor(bound orb.Bound) []tile {
	var tiles []tile
	minLat, minLon := floorTile(bound.Min.Lat()), floorTile(bound.Min.Lon())
	for lat := minLat; lat == minLat || float64(lat) < bound.Max.Lat(); lat += tileDegrees {
		for lon := minLon; lon == minLon || float64(lon) < bound.Max.Lon(); lon += tileDegrees {
			tiles = append(tiles, tile{
				Name: TileName(lat, lon),
				Bound: orb.Bound{
					Min: orb.Point{float64(lon), float64(lat)},
					Max: orb.Point{float64(lon + tileDegrees), float64(lat + tileDegrees)},
				},
			})
		}
	}
	return tiles
}

// TileNames lists the tiles covering bound.
func TileNames(bound orb.Bound) []string {
	tiles := tilesFor(bound)
	names := make([]string, len(tiles))
	for i, t := range tiles {
		names[i] = t.Name
	}
	return names
}

// Sample returns the class code at every pixel centre of a width x height
// grid spanning bound. Pixels without coverage are 0.
func (w *WorldCover) Sample(ctx context.Context, bound orb.Bound, width, height int) (indices.Grid, error) {
	grid := indices.NewGrid(width, height)
	transform := raster.GeoTransformFor(bound, width, height)

	for _, t := range tilesFor(bound) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		url := w.tileURL(t.Name)
		if err := w.sampleTile(url, t, bound, transform, grid); err != nil {
			w.Log.WithError(err).WithField("tile", t.Name).Warn("Skipping WorldCover tile")
		}
	}
	return grid, nil
}

// tileURL reads remote tiles through /vsicurl/. A BaseURL without a scheme is
// a local mirror directory.
func (w *WorldCover) tileURL(name string) string {
	if strings.HasPrefix(w.BaseURL, "http://") || strings.HasPrefix(w.BaseURL, "https://") {
		return "/vsicurl/" + w.BaseURL + "/" + name
	}
	return filepath.Join(w.BaseURL, name)
}

func (w *WorldCover) sampleTile(url string, t tile, bound orb.Bound, transform raster.GeoTransform, grid indices.Grid) error {
	var err error
	utils.ExecuteWithGDALLock(func() {
		err = w.readTile(url, t, bound, transform, grid)
	})
	return err
}

func (w *WorldCover) readTile(url string, t tile, bound orb.Bound, transform raster.GeoTransform, grid indices.Grid) error {
	if !t.Bound.Intersects(bound) {
		return nil
	}
	ds, err := godal.Open(url)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return err
	}
	tileTransform := raster.GeoTransform(gt)
	structure := ds.Structure()

	window := tileTransform.Window(bound, structure.SizeX, structure.SizeY)
	if window.Width <= 0 || window.Height <= 0 {
		return nil
	}

	band := ds.Bands()[0]
	return sampleRows(grid, transform, t.Bound, tileTransform, window, func(row int, data []float64) error {
		if err := band.Read(window.X, row, data, window.Width, 1); err != nil {
			return fmt.Errorf("failed to read row %d of window %+v: %w", row, window, err)
		}
		return nil
	})
}

// sampleRows fills the grid pixels whose centres fall inside tileBound with the
// nearest tile pixel. Only the tile rows under output rows are read, one
// window-wide strip at a time, so memory stays at one row of the tile.
func sampleRows(grid indices.Grid, transform raster.GeoTransform, tileBound orb.Bound, tileTransform raster.GeoTransform, window raster.Window, readRow func(row int, data []float64) error) error {
	data := make([]float64, window.Width)
	loaded := -1
	for y := range grid {
		_, lat := transform.PixelCenter(0, y)
		if lat < tileBound.Min.Lat() || lat >= tileBound.Max.Lat() {
			continue
		}
		_, row := tileTransform.Pixel(tileBound.Min.Lon(), lat)
		if row < window.Y || row >= window.Y+window.Height {
			continue
		}
		if row != loaded {
			if err := readRow(row, data); err != nil {
				return err
			}
			loaded = row
		}
		for x := range grid[y] {
			lon, _ := transform.PixelCenter(x, y)
			if lon < tileBound.Min.Lon() || lon >= tileBound.Max.Lon() {
				continue
			}
			col, _ := tileTransform.Pixel(lon, lat)
			col -= window.X
			if col < 0 || col >= window.Width {
				continue
			}
			grid[y][x] = data[col]
		}
	}
	return nil
}
