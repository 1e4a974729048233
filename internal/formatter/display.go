package formatter

import (
	"fmt"
	"math"
	"strings"

	"github.com/desertthunder/stemdeck/internal/models"
)

// MissingTime is shown for absent times.
const MissingTime = "--:--"

// FormatSeconds renders seconds as m:ss. Negative or non-finite values are missing.
func FormatSeconds(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return MissingTime
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatTime renders a number-or-string time: numbers as m:ss, strings passed through,
// absent values as [MissingTime].
func FormatTime(v models.Flex) string {
	switch {
	case v.IsZero():
		return MissingTime
	case v.Num != nil:
		return FormatSeconds(*v.Num)
	case v.Str == "":
		return MissingTime
	default:
		return v.Str
	}
}

// FormatCueTime renders a cue's time, or its range when it has one.
func FormatCueTime(c models.Cue) string {
	if c.IsRange() {
		return FormatSeconds(*c.StartTime) + "-" + FormatSeconds(*c.EndTime)
	}
	if c.Time != "" {
		return c.Time
	}
	if c.StartTime != nil {
		return FormatSeconds(*c.StartTime)
	}
	return MissingTime
}

// RenderBar draws percent (0-100) as a block bar of length cells.
func RenderBar(percent float64, length int) string {
	if length <= 0 {
		length = 20
	}
	percent = math.Max(0, math.Min(100, percent))
	filled := int(math.Round(percent / 100 * float64(length)))
	return strings.Repeat("█", filled) + strings.Repeat("░", length-filled)
}

var sparks = []rune("▁▂▃▄▅▆▇█")

// Sparkline resamples normalized samples (0-1) into width cells.
// Each cell shows the peak of the samples it covers.
func Sparkline(samples []float64, width int) string {
	if len(samples) == 0 || width <= 0 {
		return ""
	}
	if width > len(samples) {
		width = len(samples)
	}

	var b strings.Builder
	for i := range width {
		lo := i * len(samples) / width
		hi := (i + 1) * len(samples) / width
		peak := 0.0
		for _, v := range samples[lo:hi] {
			peak = math.Max(peak, v)
		}
		peak = math.Min(1, peak)
		b.WriteRune(sparks[int(math.Round(peak*float64(len(sparks)-1)))])
	}
	return b.String()
}

// Playhead renders a progress marker for position within duration over width cells.
func Playhead(position, duration float64, width int) string {
	if width <= 0 {
		return ""
	}
	at := 0
	if duration > 0 {
		at = int(math.Min(float64(width-1), math.Max(0, position/duration*float64(width))))
	}
	return strings.Repeat("─", at) + "●" + strings.Repeat("─", width-at-1)
}
