package output

import (
	"io"
	"math"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ritzau/angioflow/pkg/sim"
)

// Progress draws a terminal progress bar over the macro steps of a run.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress returns a bar for a run of the given duration and time step.
func NewProgress(w io.Writer, duration, timeStep float64) *Progress {
	steps := int(math.Ceil(duration / timeStep))
	return &Progress{bar: progressbar.NewOptions(steps,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("simulating"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)}
}

// Observe advances the bar to the snapshot's step.
func (p *Progress) Observe(s *sim.Snapshot) {
	_ = p.bar.Set(s.Step)
}

// Finish completes and clears the bar.
func (p *Progress) Finish() {
	_ = p.bar.Finish()
}
