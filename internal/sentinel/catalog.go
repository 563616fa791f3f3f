package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/forest-guardian/pdr-calculator/internal/geometry"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	CollectionS2L2A = "sentinel-2-l2a"
	catalogPath     = "/api/v1/catalog/1.0.0/search"
	catalogPageSize = 100
	catalogMaxPages = 20
)

var ErrNoScene = errors.New("no Sentinel-2 scene found for the selected area and dates")

type Scene struct {
	ID         string       `json:"id"`
	Acquired   time.Time    `json:"acquired"`
	CloudCover float64      `json:"cloud_cover"`
	Footprint  orb.Geometry `json:"-"`
}

// Day returns the UTC acquisition day as a [from, to] interval.
func (s Scene) Day() (time.Time, time.Time) {
	start := s.Acquired.UTC().Truncate(24 * time.Hour)
	return start, start.Add(24*time.Hour - time.Second)
}

type catalogRequest struct {
	BBox        []float64     `json:"bbox"`
	Datetime    string        `json:"datetime"`
	Collections []string      `json:"collections"`
	Limit       int           `json:"limit"`
	Next        int           `json:"next,omitempty"`
	Fields      catalogFields `json:"fields"`
}

type catalogFields struct {
	Include []string `json:"include"`
}

type catalogResponse struct {
	Features []catalogFeature `json:"features"`
	Context  struct {
		Next     int `json:"next"`
		Returned int `json:"returned"`
	} `json:"context"`
}

type catalogFeature struct {
	ID         string            `json:"id"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties struct {
		Datetime   time.Time `json:"datetime"`
		CloudCover *float64  `json:"eo:cloud_cover"`
	} `json:"properties"`
}

func newCatalogRequest(bound orb.Bound, from, to time.Time) catalogRequest {
	return catalogRequest{
		BBox:        []float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()},
		Datetime:    from.UTC().Format(time.RFC3339) + "/" + to.UTC().Format(time.RFC3339),
		Collections: []string{CollectionS2L2A},
		Limit:       catalogPageSize,
		Fields: catalogFields{
			Include: []string{"id", "geometry", "properties.datetime", "properties.eo:cloud_cover"},
		},
	}
}

// SearchScenes lists every Sentinel-2 L2A scene intersecting the ROI bound in
// [from, to], following catalog paging.
func (c *Client) SearchScenes(ctx context.Context, roi *geometry.ROI, from, to time.Time) ([]Scene, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("end date %s is before start date %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	request := newCatalogRequest(roi.Bound(), from, to)

	scenes := []Scene{}
	for page := 0; page < catalogMaxPages; page++ {
		body, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog request: %w", err)
		}
		responseContent, err := c.post(ctx, catalogPath, "application/geo+json", body)
		if err != nil {
			return nil, fmt.Errorf("catalog search failed: %w", err)
		}

		var response catalogResponse
		if err := json.Unmarshal(responseContent, &response); err != nil {
			return nil, fmt.Errorf("failed to parse catalog response: %w", err)
		}
		for _, feature := range response.Features {
			scenes = append(scenes, sceneFromFeature(feature))
		}

		if response.Context.Next == 0 || len(response.Features) == 0 {
			break
		}
		request.Next = response.Context.Next
	}
	return scenes, nil
}

func sceneFromFeature(feature catalogFeature) Scene {
	scene := Scene{
		ID:         feature.ID,
		Acquired:   feature.Properties.Datetime,
		CloudCover: 100,
	}
	if feature.Properties.CloudCover != nil {
		scene.CloudCover = *feature.Properties.CloudCover
	}
	if feature.Geometry != nil {
		scene.Footprint = feature.Geometry.Geometry()
	}
	return scene
}

// LeastCloudy sorts by cloud cover, earliest acquisition first on ties.
func LeastCloudy(scenes []Scene) (*Scene, error) {
	if len(scenes) == 0 {
		return nil, ErrNoScene
	}
	sorted := append([]Scene{}, scenes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CloudCover != sorted[j].CloudCover {
			return sorted[i].CloudCover < sorted[j].CloudCover
		}
		return sorted[i].Acquired.Before(sorted[j].Acquired)
	})
	return &sorted[0], nil
}

func (c *Client) FindLeastCloudyScene(ctx context.Context, roi *geometry.ROI, from, to time.Time) (*Scene, error) {
	scenes, err := c.SearchScenes(ctx, roi, from, to)
	if err != nil {
		return nil, err
	}
	return LeastCloudy(scenes)
}
