package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/forest-guardian/pdr-calculator/internal/geometry"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	processPath = "/api/v1/process"
	crsCRS84    = "http://www.opengis.net/def/crs/OGC/1.3/CRS84"
	maxPixels   = 2500
)

// MetersPerDegree approximates the ground length of one degree.
const MetersPerDegree = 111_000.0

// BandNames is the band order of the TIFF returned by RequestBands.
var BandNames = []string{"B04", "B08", "B11", "dataMask"}

const bandsEvalscript = `
//VERSION=3
function setup() {
  return {
    input: [{ bands: ["B04", "B08", "B11", "dataMask"], units: "REFLECTANCE" }],
    output: {
      id: "default",
      bands: 4,
      sampleType: SampleType.FLOAT32,
    },
  }
}

function evaluatePixel(sample) {
  return [sample.B04, sample.B08, sample.B11, sample.dataMask];
}
`

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func calculatePixels(distance float64, resolution float64) int {
	pixels := distance * (MetersPerDegree / resolution)
	if pixels < 1 {
		return 1
	}
	return int(pixels)
}

// OutputSize converts the bound to a raster grid at resolutionMeters,
// clamped to what the Process API accepts.
func OutputSize(bound orb.Bound, resolutionMeters float64) Size {
	return Size{
		Width:  min(calculatePixels(bound.Max.Lon()-bound.Min.Lon(), resolutionMeters), maxPixels),
		Height: min(calculatePixels(bound.Max.Lat()-bound.Min.Lat(), resolutionMeters), maxPixels),
	}
}

// EffectiveResolution is the coarser pixel edge, in meters, of bound rendered
// at size. It differs from the requested resolution once OutputSize clamps.
func EffectiveResolution(bound orb.Bound, size Size) float64 {
	if size.Width <= 0 || size.Height <= 0 {
		return 0
	}
	dx := (bound.Max.Lon() - bound.Min.Lon()) / float64(size.Width)
	dy := (bound.Max.Lat() - bound.Min.Lat()) / float64(size.Height)
	return math.Max(dx, dy) * MetersPerDegree
}

type processRequest struct {
	Input struct {
		Bounds struct {
			Geometry   *geojson.Geometry `json:"geometry"`
			Properties struct {
				CRS string `json:"crs"`
			} `json:"properties"`
		} `json:"bounds"`
		Data []processData `json:"data"`
	} `json:"input"`
	Output struct {
		Width     int               `json:"width"`
		Height    int               `json:"height"`
		Responses []processResponse `json:"responses"`
	} `json:"output"`
	Evalscript string `json:"evalscript"`
}

type processData struct {
	Type       string `json:"type"`
	DataFilter struct {
		TimeRange struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"timeRange"`
		MosaickingOrder string `json:"mosaickingOrder"`
	} `json:"dataFilter"`
}

type processResponse struct {
	Identifier string `json:"identifier"`
	Format     struct {
		Type string `json:"type"`
	} `json:"format"`
}

func newProcessRequest(roi *geometry.ROI, scene Scene, size Size) processRequest {
	var request processRequest
	request.Input.Bounds.Geometry = roi.GeoJSON()
	request.Input.Bounds.Properties.CRS = crsCRS84

	from, to := scene.Day()
	data := processData{Type: CollectionS2L2A}
	data.DataFilter.TimeRange.From = from.Format(time.RFC3339)
	data.DataFilter.TimeRange.To = to.Format(time.RFC3339)
	data.DataFilter.MosaickingOrder = "leastCC"
	request.Input.Data = []processData{data}

	request.Output.Width = size.Width
	request.Output.Height = size.Height
	response := processResponse{Identifier: "default"}
	response.Format.Type = "image/tiff"
	request.Output.Responses = []processResponse{response}

	request.Evalscript = bandsEvalscript
	return request
}

// RequestBands returns a FLOAT32 GeoTIFF with BandNames for the scene day.
func (c *Client) RequestBands(ctx context.Context, roi *geometry.ROI, scene Scene, size Size) ([]byte, error) {
	body, err := json.Marshal(newProcessRequest(roi, scene, size))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}
	image, err := c.post(ctx, processPath, "image/tiff", body)
	if err != nil {
		return nil, fmt.Errorf("error requesting image: %w", err)
	}
	return image, nil
}

// DownloadBands stores the RequestBands response at path.
func (c *Client) DownloadBands(ctx context.Context, roi *geometry.ROI, scene Scene, size Size, path string) error {
	image, err := c.RequestBands(ctx, roi, scene, size)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}
	return nil
}
