package ui

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/forest-guardian/pdr-calculator/internal/delivery"
	"github.com/forest-guardian/pdr-calculator/internal/geometry"
	"github.com/forest-guardian/pdr-calculator/internal/properties"
)

type AreaProcessor interface {
	ProcessArea(ctx context.Context, request delivery.Request, reporter delivery.Reporter) (*delivery.Result, error)
}

// ProcessArea asks for an area file and a date window, then runs the
// pipeline with a progress bar.
func ProcessArea(ctx context.Context, processor AreaProcessor) {
	PrintWarning("A '.geojson' file with the area name should be present in data/geojsons folder.")
	ListAreas()
	area := ReadString("Enter the area name: ")
	if area == "" {
		PrintError("area name cannot be empty")
		return
	}

	defaultStart, defaultEnd := properties.DefaultDateRange()
	start, err := ReadDate(fmt.Sprintf("Enter the start date (YYYY-MM-DD) [%s]: ", defaultStart.Format(time.DateOnly)), defaultStart)
	if err != nil {
		PrintError(err.Error())
		return
	}
	end, err := ReadDate(fmt.Sprintf("Enter the end date (YYYY-MM-DD) [%s]: ", defaultEnd.Format(time.DateOnly)), defaultEnd)
	if err != nil {
		PrintError(err.Error())
		return
	}

	result, err := RunArea(ctx, processor, area, start, end)
	if err != nil {
		PrintError(err.Error())
		return
	}
	PrintSuccess(FormatResult(result))
}

// RunArea processes a named area file, used by both the menu and the
// process command.
func RunArea(ctx context.Context, processor AreaProcessor, area string, start, end time.Time) (*delivery.Result, error) {
	roi, err := geometry.LoadROIFile(area)
	if err != nil {
		return nil, err
	}
	reporter := NewProgressReporter(os.Stdout)
	defer reporter.Finish()
	return processor.ProcessArea(ctx, delivery.Request{Area: area, ROI: roi, StartDate: start, EndDate: end}, reporter)
}

func FormatResult(result *delivery.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Successful analysis!\n")
	fmt.Fprintf(&b, " Scene: %s (%.1f%% cloud, %s)\n", result.Scene.ID, result.Scene.CloudCover, result.Scene.Acquired.Format(time.DateOnly))
	fmt.Fprintf(&b, " Grid: %dx%d at %.1fm\n", result.Size.Width, result.Size.Height, result.Resolution)

	names := make([]string, 0, len(result.Stats))
	for name := range result.Stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Stats[name]
		fmt.Fprintf(&b, " %s: min %.3f mean %.3f max %.3f (%d px)\n", name, stats.Min, stats.Mean, stats.Max, stats.Count)
	}
	fmt.Fprintf(&b, " Download the file from: %s", result.DownloadURL)
	return b.String()
}
