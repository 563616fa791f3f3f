package ui

import (
	"io"

	"github.com/forest-guardian/pdr-calculator/internal/delivery"
	"github.com/schollz/progressbar/v3"
)

// ProgressReporter advances a progress bar once per processing step.
type ProgressReporter struct {
	bar *progressbar.ProgressBar
}

func NewProgressReporter(w io.Writer) *ProgressReporter {
	return &ProgressReporter{
		bar: progressbar.NewOptions(delivery.ProcessingSteps,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Processing area"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
		),
	}
}

func (r *ProgressReporter) Step(name string) {
	r.bar.Describe(name)
	r.bar.Add(1)
}

func (r *ProgressReporter) Finish() {
	r.bar.Finish()
}
