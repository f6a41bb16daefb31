// Package display renders the dashboard view model as terminal text.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/pulseboard/pulseboard/internal/format"
	"github.com/pulseboard/pulseboard/internal/models"
)

const (
	separator     = " • "
	maxTitleRunes = 60
)

// ANSI palette indexes, so output stays readable on light and dark themes.
const (
	colorRed   = lipgloss.Color("1")
	colorGreen = lipgloss.Color("2")
	colorGray  = lipgloss.Color("8")
)

var metricLabels = map[models.MetricName]string{
	models.MetricSubscribers: "Subscribers",
	models.MetricViews:       "Total views",
	models.MetricFollowers:   "Followers",
	models.MetricLikes:       "Total likes",
}

type palette struct {
	header   lipgloss.Style
	positive lipgloss.Style
	negative lipgloss.Style
	muted    lipgloss.Style
}

// Terminal renders view models. With Color set, headers, badges and deltas
// are styled with lipgloss; without it the output is plain text.
type Terminal struct {
	Color  bool
	styles palette
}

// NewTerminal creates a renderer. The color profile is fixed up front since
// output goes to pipes as often as to a TTY.
func NewTerminal(color bool) *Terminal {
	r := lipgloss.NewRenderer(io.Discard)
	if color {
		r.SetColorProfile(termenv.ANSI)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Terminal{
		Color: color,
		styles: palette{
			header:   r.NewStyle().Bold(true),
			positive: r.NewStyle().Foreground(colorGreen),
			negative: r.NewStyle().Foreground(colorRed),
			muted:    r.NewStyle().Foreground(colorGray),
		},
	}
}

// Render formats every platform in display order followed by the footer.
func (t *Terminal) Render(vm *models.ViewModel) string {
	var b strings.Builder

	rendered := 0
	for _, id := range models.AllPlatforms {
		view := vm.Platform(id)
		if view == nil {
			continue
		}
		if rendered > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.RenderPlatform(view))
		rendered++
	}
	if rendered == 0 {
		b.WriteString("No platforms configured.\n")
	}

	last := format.FormatClock(time.Time{})
	if vm != nil {
		last = format.FormatClock(vm.LastUpdate)
	}
	fmt.Fprintf(&b, "\nLast update: %s\n", last)
	return b.String()
}

// RenderPlatform formats one platform block.
func (t *Terminal) RenderPlatform(view *models.PlatformView) string {
	var lines []string

	header := view.Platform.DisplayName()
	if view.DisplayName != "" {
		header += " (" + view.DisplayName + ")"
	}
	lines = append(lines, t.paint(t.styles.header, header)+"  "+t.badge(view.Status))

	if view.Status == models.StatusError {
		lines = append(lines, "  "+view.Error)
		return strings.Join(lines, "\n") + "\n"
	}

	for _, m := range view.Metrics {
		line := fmt.Sprintf("  %-12s %8s", label(m.Name), m.Formatted)
		if m.DeltaText != "" {
			line += "  " + t.delta(m.DeltaText, m.DeltaStyle)
		}
		lines = append(lines, line)
	}
	if view.Following != "" {
		lines = append(lines, fmt.Sprintf("  %-12s %8s", "Following", view.Following))
	}

	if view.Top != nil {
		lines = append(lines, t.video("Top", view.Top)...)
	}
	if view.Latest != nil {
		lines = append(lines, t.video("Latest", view.Latest)...)
	}
	return strings.Join(lines, "\n") + "\n"
}

func (t *Terminal) video(kind string, v *models.VideoView) []string {
	lines := []string{fmt.Sprintf("  %s: %s", kind, TruncateText(v.Title, maxTitleRunes))}

	stats := []string{v.Views + " views"}
	if v.Likes != "" {
		stats = append(stats, v.Likes+" likes")
	}
	if v.Published != "" {
		stats = append(stats, v.Published)
	}
	lines = append(lines, "    "+strings.Join(stats, separator))

	if v.Velocity != "" {
		lines = append(lines, "    "+v.Velocity)
	}
	return lines
}

func (t *Terminal) badge(status models.PlatformStatus) string {
	switch status {
	case models.StatusLive:
		return t.paint(t.styles.positive, "● LIVE")
	case models.StatusError:
		return t.paint(t.styles.negative, "● ERROR")
	default:
		return t.paint(t.styles.muted, "● IDLE")
	}
}

func (t *Terminal) delta(text string, style models.DeltaStyle) string {
	switch style {
	case models.DeltaStylePositive:
		return t.paint(t.styles.positive, text)
	case models.DeltaStyleNegative:
		return t.paint(t.styles.negative, text)
	case models.DeltaStyleNeutral:
		return t.paint(t.styles.muted, text)
	default:
		return text
	}
}

func (t *Terminal) paint(style lipgloss.Style, s string) string {
	if !t.Color {
		return s
	}
	return style.Render(s)
}

func label(name models.MetricName) string {
	if l, ok := metricLabels[name]; ok {
		return l
	}
	return string(name)
}

// TruncateText shortens text to maxRunes, adding "..." if truncated.
func TruncateText(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	if maxRunes <= 3 {
		return "..."
	}
	return string(runes[:maxRunes-3]) + "..."
}
