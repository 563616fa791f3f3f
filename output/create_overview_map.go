package output

import (
	"fmt"
	"image/color"
	"os"

	"github.com/fogleman/gg"
	sm "github.com/flopp/go-staticmaps"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// CreateOverviewMap draws the ROI on an OpenStreetMap basemap. It needs
// network access to the tile server; tiles are cached under cacheDir.
func CreateOverviewMap(path, cacheDir string, rings []orb.Ring) error {
	ctx := sm.NewContext()
	ctx.SetSize(800, 600)
	ctx.SetTileProvider(sm.NewTileProviderOpenStreetMaps())
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return fmt.Errorf("failed to create tile cache: %w", err)
		}
		ctx.SetCache(sm.NewTileCache(cacheDir, 0o755))
	}

	for _, ring := range rings {
		ctx.AddObject(sm.NewArea(ringToLatLngs(ring), color.RGBA{0, 0, 255, 255}, color.RGBA{0, 0, 255, 60}, 2))
	}

	img, err := ctx.Render()
	if err != nil {
		return fmt.Errorf("map render error: %w", err)
	}
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("png encode error: %w", err)
	}
	return nil
}

func ringToLatLngs(ring orb.Ring) []s2.LatLng {
	positions := make([]s2.LatLng, len(ring))
	for i, p := range ring {
		positions[i] = s2.LatLngFromDegrees(p.Lat(), p.Lon())
	}
	return positions
}
