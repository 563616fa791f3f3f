package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forest-guardian/pdr-calculator/internal/cache"
	"github.com/forest-guardian/pdr-calculator/internal/geometry"
	"github.com/forest-guardian/pdr-calculator/internal/indices"
	"github.com/forest-guardian/pdr-calculator/internal/landcover"
	"github.com/forest-guardian/pdr-calculator/internal/notification"
	"github.com/forest-guardian/pdr-calculator/internal/properties"
	"github.com/forest-guardian/pdr-calculator/internal/raster"
	"github.com/forest-guardian/pdr-calculator/internal/sentinel"
	"github.com/forest-guardian/pdr-calculator/internal/storage"
	"github.com/forest-guardian/pdr-calculator/output"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var ErrInvalidDateRange = errors.New("end date is before start date")

// File names inside a result directory.
const (
	GeoTIFFFileName    = "pdr.tif"
	PreviewFileName    = "pdr.png"
	OverviewFileName   = "overview.png"
	PixelsFileName     = "pixels.csv"
	AreaFileName       = "area.geojson"
	ResultFileName     = "result.json"
	bandsFileName      = "bands.tif"
	sceneCacheSubDir   = "scenes"
	sceneCacheMaxAge   = 7 * 24 * time.Hour
	sceneSearchTimeout = 5 * time.Minute
	ProcessingSteps    = 5
)

type Imagery interface {
	FindLeastCloudyScene(ctx context.Context, roi *geometry.ROI, from, to time.Time) (*sentinel.Scene, error)
	DownloadBands(ctx context.Context, roi *geometry.ROI, scene sentinel.Scene, size sentinel.Size, path string) error
}

type LandCover interface {
	Sample(ctx context.Context, bound orb.Bound, width, height int) (indices.Grid, error)
}

type Notifier interface {
	SendError(ctx context.Context, message string) error
	SendSuccess(ctx context.Context, message string) error
}

// Reporter receives one call per processing step.
type Reporter interface {
	Step(name string)
}

type nopReporter struct{}

func (nopReporter) Step(string) {}

type Request struct {
	Area      string
	ROI       *geometry.ROI
	StartDate time.Time
	EndDate   time.Time
}

type Result struct {
	ID          string                     `json:"id"`
	Area        string                     `json:"area,omitempty"`
	Scene       sentinel.Scene             `json:"scene"`
	StartDate   string                     `json:"start_date"`
	EndDate     string                     `json:"end_date"`
	Bounds      [4]float64                 `json:"bounds"`
	Size        sentinel.Size              `json:"size"`
	Resolution  float64                    `json:"resolution_meters"`
	Stats       map[string]indices.Summary `json:"stats"`
	Files       map[string]string          `json:"files"`
	DownloadURL string                     `json:"download_url"`
	CreatedAt   time.Time                  `json:"created_at"`
}

type Processor struct {
	Imagery    Imagery
	LandCover  LandCover
	Store      storage.Store
	Notifier   Notifier
	Scenes     cache.CacheService[sentinel.Scene]
	ResultDir  string
	Resolution float64
	Overview   bool
	Log        logrus.FieldLogger

	searches      singleflight.Group
	decodeBands   func(path string) (map[string]indices.Grid, error)
	createGeoTIFF func(path string, transform raster.GeoTransform, layers []output.Layer) error
	createMap     func(path, cacheDir string, rings []orb.Ring) error
	newID         func() string
	now           func() time.Time
}

func NewProcessor(imagery Imagery, landCover LandCover, store storage.Store, notifier Notifier) *Processor {
	scenes := cache.NewFileCache[sentinel.Scene](sceneCacheSubDir)
	scenes.MaxAge = sceneCacheMaxAge
	return &Processor{
		Imagery:       imagery,
		LandCover:     landCover,
		Store:         store,
		Notifier:      notifier,
		Scenes:        scenes,
		ResultDir:     properties.DataPath("result"),
		Resolution:    properties.ResolutionMeters(),
		Overview:      true,
		Log:           logrus.StandardLogger(),
		decodeBands:   sentinel.DecodeBands,
		createGeoTIFF: output.CreateGeoTIFF,
		createMap:     output.CreateOverviewMap,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// NewProcessorFromEnv wires the Copernicus client, WorldCover, the
// configured store and Discord notifications.
func NewProcessorFromEnv(ctx context.Context) (*Processor, error) {
	client, err := sentinel.NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return NewProcessor(client, landcover.NewWorldCover(), store, notification.NewDiscordFromEnv()), nil
}

func (p *Processor) ProcessArea(ctx context.Context, request Request, reporter Reporter) (*Result, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	result, err := p.processArea(ctx, request, reporter)
	if err != nil {
		if notifyFailure(err) && p.Notifier != nil {
			if notifyErr := p.Notifier.SendError(ctx, err.Error()); notifyErr != nil {
				p.Log.WithError(notifyErr).Warn("Failed to send notification")
			}
		}
		return nil, err
	}
	if p.Notifier != nil {
		message := fmt.Sprintf("Area %s processed with scene %s.\nDownload: %s", result.ID, result.Scene.ID, result.DownloadURL)
		if notifyErr := p.Notifier.SendSuccess(ctx, message); notifyErr != nil {
			p.Log.WithError(notifyErr).Warn("Failed to send notification")
		}
	}
	return result, nil
}

// notifyFailure leaves out input errors and requests abandoned by the caller.
func notifyFailure(err error) bool {
	return !errors.Is(err, geometry.ErrNoGeometry) &&
		!errors.Is(err, geometry.ErrInvalidGeometry) &&
		!errors.Is(err, ErrInvalidDateRange) &&
		!errors.Is(err, context.Canceled)
}

func (p *Processor) processArea(ctx context.Context, request Request, reporter Reporter) (*Result, error) {
	if request.ROI == nil {
		return nil, geometry.ErrNoGeometry
	}
	if request.StartDate.IsZero() || request.EndDate.IsZero() {
		start, end := properties.DefaultDateRange()
		if request.StartDate.IsZero() {
			request.StartDate = start
		}
		if request.EndDate.IsZero() {
			request.EndDate = end
		}
	}
	if request.EndDate.Before(request.StartDate) {
		return nil, ErrInvalidDateRange
	}

	roi := request.ROI
	bound := roi.Bound()
	id := p.newID()
	log := p.Log.WithFields(logrus.Fields{"id": id, "area": request.Area})

	reporter.Step("Searching least cloudy scene")
	scene, err := p.findScene(ctx, roi, request.StartDate, request.EndDate)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"scene": scene.ID, "cloud_cover": scene.CloudCover}).Info("Scene selected")

	dir := filepath.Join(p.ResultDir, id)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create result folder: %w", err)
	}
	// A result directory exists only once result.json is written.
	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).Warn("Failed to remove result folder")
		}
	}()
	bandsPath := filepath.Join(dir, bandsFileName)
	defer os.Remove(bandsPath)

	reporter.Step("Fetching imagery")
	size := sentinel.OutputSize(bound, p.Resolution)
	bands, lulc, err := p.fetch(ctx, roi, *scene, size, bandsPath)
	if err != nil {
		return nil, err
	}

	reporter.Step("Computing indices")
	transform := raster.GeoTransformFor(bound, size.Width, size.Height)
	layers, err := computeLayers(roi, transform, bands, lulc)
	if err != nil {
		return nil, err
	}

	reporter.Step("Writing outputs")
	files, err := p.writeOutputs(ctx, dir, request, roi, *scene, transform, layers)
	if err != nil {
		return nil, err
	}

	reporter.Step("Publishing download")
	downloadURL, err := p.Store.Publish(ctx, id+"/"+GeoTIFFFileName, filepath.Join(dir, GeoTIFFFileName), "image/tiff")
	if err != nil {
		return nil, fmt.Errorf("failed to publish GeoTIFF: %w", err)
	}
	if err := output.CreateDownloadNote(filepath.Join(dir, output.DownloadNoteFileName), downloadURL); err != nil {
		return nil, err
	}
	files["download_note"] = output.DownloadNoteFileName

	result := &Result{
		ID:          id,
		Area:        request.Area,
		Scene:       *scene,
		StartDate:   request.StartDate.Format(time.DateOnly),
		EndDate:     request.EndDate.Format(time.DateOnly),
		Bounds:      [4]float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()},
		Size:        size,
		Resolution:  sentinel.EffectiveResolution(bound, size),
		Stats:       map[string]indices.Summary{},
		Files:       files,
		DownloadURL: downloadURL,
		CreatedAt:   p.now().UTC(),
	}
	for _, layer := range layers {
		if layer.Name != output.LayerLULC {
			result.Stats[layer.Name] = indices.Summarize(layer.Grid)
		}
	}
	if err := saveResult(filepath.Join(dir, ResultFileName), result); err != nil {
		return nil, err
	}
	succeeded = true
	log.WithField("download_url", downloadURL).Info("Area processed")
	return result, nil
}

// findScene shares one catalog search between concurrent requests for the
// same area and window. The search outlives any single caller, each caller
// stops waiting when its own context ends.
func (p *Processor) findScene(ctx context.Context, roi *geometry.ROI, from, to time.Time) (*sentinel.Scene, error) {
	bound := roi.Bound()
	key := fmt.Sprintf("%v_%v_%s_%s_%d", bound.Min, bound.Max, from.Format(time.DateOnly), to.Format(time.DateOnly), len(roi.Polygons()))
	if p.Scenes != nil {
		key = p.Scenes.GenerateKey(bound.Min, bound.Max, from.Format(time.DateOnly), to.Format(time.DateOnly), len(roi.Polygons()))
		if scene, ok := p.Scenes.Get(key); ok {
			return &scene, nil
		}
	}
	results := p.searches.DoChan(key, func() (interface{}, error) {
		searchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sceneSearchTimeout)
		defer cancel()
		scene, err := p.Imagery.FindLeastCloudyScene(searchCtx, roi, from, to)
		if err != nil {
			return nil, err
		}
		if p.Scenes != nil {
			if err := p.Scenes.Set(key, *scene); err != nil {
				p.Log.WithError(err).Warn("Failed to cache scene")
			}
		}
		return *scene, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		scene := res.Val.(sentinel.Scene)
		return &scene, nil
	}
}

// fetch downloads the scene bands and samples land cover concurrently.
func (p *Processor) fetch(ctx context.Context, roi *geometry.ROI, scene sentinel.Scene, size sentinel.Size, bandsPath string) (map[string]indices.Grid, indices.Grid, error) {
	var (
		bands map[string]indices.Grid
		lulc  indices.Grid
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.Imagery.DownloadBands(gctx, roi, scene, size, bandsPath); err != nil {
			return err
		}
		var err error
		bands, err = p.decodeBands(bandsPath)
		return err
	})
	g.Go(func() error {
		if p.LandCover == nil {
			lulc = indices.NewGrid(size.Width, size.Height)
			return nil
		}
		var err error
		lulc, err = p.LandCover.Sample(gctx, roi.Bound(), size.Width, size.Height)
		if err != nil {
			return fmt.Errorf("failed to sample land cover: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return bands, lulc, nil
}

// computeLayers derives NDVI and PDR and clips every layer to the ROI and the
// scene data mask.
func computeLayers(roi *geometry.ROI, transform raster.GeoTransform, bands map[string]indices.Grid, lulc indices.Grid) ([]output.Layer, error) {
	for _, name := range sentinel.BandNames {
		if _, ok := bands[name]; !ok {
			return nil, fmt.Errorf("band %s missing from image", name)
		}
	}
	b11 := bands["B11"]
	ndvi, err := indices.NDVI(bands["B08"], bands["B04"])
	if err != nil {
		return nil, fmt.Errorf("failed to compute NDVI: %w", err)
	}
	pdr, err := indices.PDR(ndvi, b11)
	if err != nil {
		return nil, fmt.Errorf("failed to compute PDR: %w", err)
	}
	if lulc.Width() != b11.Width() || lulc.Height() != b11.Height() {
		return nil, fmt.Errorf("land cover: %w", indices.ErrShapeMismatch)
	}

	dataMask := bands["dataMask"]
	keep := func(x, y int) bool {
		if dataMask[y][x] <= 0 {
			return false
		}
		lon, lat := transform.PixelCenter(x, y)
		return roi.Contains(lon, lat)
	}
	layers := []output.Layer{
		{Name: output.LayerB11, Grid: b11},
		{Name: output.LayerNDVI, Grid: ndvi},
		{Name: output.LayerLULC, Grid: lulc},
		{Name: output.LayerPDR, Grid: pdr},
	}
	// dataMask itself is not clipped, keep reads it for every layer.
	for _, layer := range layers {
		indices.Mask(layer.Grid, keep)
	}
	return layers, nil
}

func (p *Processor) writeOutputs(ctx context.Context, dir string, request Request, roi *geometry.ROI, scene sentinel.Scene, transform raster.GeoTransform, layers []output.Layer) (map[string]string, error) {
	files := map[string]string{}
	pdr := layers[len(layers)-1].Grid

	if err := p.createGeoTIFF(filepath.Join(dir, GeoTIFFFileName), transform, layers); err != nil {
		return nil, fmt.Errorf("failed to create GeoTIFF: %w", err)
	}
	files["geotiff"] = GeoTIFFFileName

	if err := output.CreatePreviewImage(filepath.Join(dir, PreviewFileName), pdr, transform, roi.Rings()); err != nil {
		return nil, fmt.Errorf("failed to create preview: %w", err)
	}
	files["preview"] = PreviewFileName

	if err := output.CreatePixelsCSV(filepath.Join(dir, PixelsFileName), transform, layers); err != nil {
		return nil, fmt.Errorf("failed to create pixel CSV: %w", err)
	}
	files["pixels"] = PixelsFileName

	areaProperties := map[string]interface{}{
		"scene_id":    scene.ID,
		"acquired":    scene.Acquired.Format(time.RFC3339),
		"cloud_cover": scene.CloudCover,
		"pdr":         indices.Summarize(pdr),
	}
	if request.Area != "" {
		areaProperties["area"] = request.Area
	}
	if err := output.CreateAreaGeoJSON(filepath.Join(dir, AreaFileName), roi, areaProperties); err != nil {
		return nil, err
	}
	files["area"] = AreaFileName

	if p.Overview && ctx.Err() == nil {
		if err := p.createMap(filepath.Join(dir, OverviewFileName), properties.DataPath("cache", "tiles"), roi.Rings()); err != nil {
			p.Log.WithError(err).Warn("Skipping overview map")
		} else {
			files["overview"] = OverviewFileName
		}
	}
	return files, nil
}

func saveResult(path string, result *Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
