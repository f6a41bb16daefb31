// Package format converts raw counters and timestamps into dashboard strings.
package format

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/pulseboard/pulseboard/internal/models"
)

// Unchanged is rendered for a metric whose value did not move.
const Unchanged = "—"

var printer = message.NewPrinter(language.English)

// FormatNumber renders a count in a compact human-readable form.
// Values of a million or more get an "M" suffix, values of a thousand or more
// a "K" suffix, both with one decimal. Smaller values use digit grouping.
// Zero, NaN and infinities render as "0".
func FormatNumber(v float64) string {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}

	abs := math.Abs(v)
	switch {
	case abs >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e3:
		return strconv.FormatFloat(v/1e3, 'f', 1, 64) + "K"
	default:
		return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
	}
}

// FormatCount is FormatNumber for unsigned counters.
func FormatCount(v uint64) string {
	return FormatNumber(float64(v))
}

// FormatDelta renders a metric change and the style it should be shown in.
func FormatDelta(d models.MetricDelta) (string, models.DeltaStyle) {
	switch {
	case d.Delta > 0:
		return "+" + FormatNumber(float64(d.Delta)), models.DeltaStylePositive
	case d.Delta < 0:
		return FormatNumber(float64(d.Delta)), models.DeltaStyleNegative
	default:
		return Unchanged, models.DeltaStyleNeutral
	}
}

// FormatVelocity renders a views-per-hour rate.
func FormatVelocity(perHour int64) string {
	return fmt.Sprintf("⚡ %s views/hour", FormatNumber(float64(perHour)))
}

// FormatClock renders the "last update" wall-clock time.
func FormatClock(t time.Time) string {
	if t.IsZero() {
		return "--"
	}
	return t.Format("15:04:05")
}

var intervals = []struct {
	unit    string
	seconds int64
}{
	{"year", 31536000},
	{"month", 2592000},
	{"week", 604800},
	{"day", 86400},
	{"hour", 3600},
	{"minute", 60},
}

// TimeAgo renders t relative to now using the largest whole unit.
func TimeAgo(t, now time.Time) string {
	seconds := int64(now.Sub(t) / time.Second)

	for _, iv := range intervals {
		if n := seconds / iv.seconds; n >= 1 {
			return pluralize(n, iv.unit)
		}
	}
	return "Just now"
}

func pluralize(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
