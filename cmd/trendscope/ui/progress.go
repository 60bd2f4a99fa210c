package ui

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
)

// Spinner shows indeterminate progress on the error stream. A non-interactive
// UI returns a spinner whose methods do nothing.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a spinner with the given message.
func (u *UI) NewSpinner(message string) *Spinner {
	if !u.interactive {
		return &Spinner{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(u.err))
	s.Suffix = " " + message
	return &Spinner{spinner: s}
}

// Start starts the animation.
func (s *Spinner) Start() {
	if s.spinner != nil {
		s.spinner.Start()
	}
}

// Stop stops the animation and clears the line.
func (s *Spinner) Stop() {
	if s.spinner != nil {
		s.spinner.Stop()
	}
}

// ProgressBar shows determinate progress on the error stream.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a bar. A non-interactive UI returns a bar whose methods do nothing.
func (u *UI) NewProgressBar(total int64, description string) *ProgressBar {
	if !u.interactive {
		return &ProgressBar{}
	}
	w := u.err
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("videos"),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(w, "\n") }),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &ProgressBar{bar: bar}
}

// Set moves the bar to current.
func (p *ProgressBar) Set(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// SetTotal changes the bar maximum.
func (p *ProgressBar) SetTotal(total int64) {
	if p.bar != nil {
		p.bar.ChangeMax64(total)
	}
}

// Finish completes the bar.
func (p *ProgressBar) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
