package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/schollz/progressbar/v3"
)

// SweepProgress renders a progress bar while scheduled actions are processed.
// It implements engine.Observer.
type SweepProgress struct {
	bar      *progressbar.ProgressBar
	writer   io.Writer
	failures int
	mu       sync.Mutex
}

// NewSweepProgress creates a progress bar for total actions.
func NewSweepProgress(writer io.Writer, total int) *SweepProgress {
	if writer == nil {
		writer = os.Stderr
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Processing scheduled actions...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(writer)
		}),
	)

	return &SweepProgress{bar: bar, writer: writer}
}

// ActionProcessed advances the bar by one action.
func (p *SweepProgress) ActionProcessed(result engine.ActionResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if result.Status == engine.StatusFailed {
		p.failures++
		p.bar.Describe(fmt.Sprintf("[yellow][bold]Processing scheduled actions (%d failed)...[reset]", p.failures))
	}
	_ = p.bar.Add(1)
}

// Failures returns how many processed actions failed.
func (p *SweepProgress) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Finish completes the bar.
func (p *SweepProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
}
