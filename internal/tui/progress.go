package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
)

// ProgressBar renders task completion with the bubbles progress bar.
type ProgressBar struct {
	bar   progress.Model
	width int
}

// NewProgressBar creates a bar of the given width. Without color support it
// uses a solid gray fill.
func NewProgressBar(width int) *ProgressBar {
	var bar progress.Model
	if HasColorSupport() {
		bar = progress.New(
			progress.WithWidth(width),
			progress.WithScaledGradient("#0087AF", "#00D7FF"),
			progress.WithoutPercentage(),
		)
	} else {
		bar = progress.New(
			progress.WithWidth(width),
			progress.WithSolidFill("#808080"),
			progress.WithoutPercentage(),
		)
	}
	return &ProgressBar{bar: bar, width: width}
}

// Render draws the bar at percent, clamped to [0, 1].
func (pb *ProgressBar) Render(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 1 {
		percent = 1
	}
	return pb.bar.ViewAs(percent)
}

// Width returns the bar width.
func (pb *ProgressBar) Width() int {
	return pb.width
}

// TaskProgress renders "bar completed/total". A session without tasks yet
// renders as "-".
func TaskProgress(pb *ProgressBar, completed, total int) string {
	if total <= 0 {
		return "-"
	}
	label := fmt.Sprintf("%d/%d", completed, total)
	return strings.TrimRight(pb.Render(float64(completed)/float64(total)), " ") + " " + label
}
