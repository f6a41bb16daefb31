package display

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pulseboard/pulseboard/internal/models"
)

func sampleViewModel() *models.ViewModel {
	vm := models.NewViewModel()
	vm.LastUpdate = time.Date(2024, 6, 1, 9, 5, 7, 0, time.UTC)
	vm.Platforms[models.PlatformYouTube] = &models.PlatformView{
		Platform:    models.PlatformYouTube,
		DisplayName: "My Channel",
		Status:      models.StatusLive,
		Metrics: []models.MetricView{
			{Name: models.MetricSubscribers, Formatted: "1.3K", DeltaText: "+100", DeltaStyle: models.DeltaStylePositive},
			{Name: models.MetricViews, Formatted: "98.0K", DeltaText: "—", DeltaStyle: models.DeltaStyleNeutral},
		},
		Top:    &models.VideoView{Title: "Old hit", Views: "1.5M", Likes: "2.0K", Published: "5 months ago"},
		Latest: &models.VideoView{Title: "Newest", Views: "7.2K", Published: "2 hours ago", Velocity: "⚡ 3.6K views/hour"},
	}
	vm.Platforms[models.PlatformTikTok] = &models.PlatformView{
		Platform: models.PlatformTikTok,
		Status:   models.StatusError,
		Error:    "TikTok auth failed: The access token is invalid",
	}
	return vm
}

func TestTerminal_Render(t *testing.T) {
	out := NewTerminal(false).Render(sampleViewModel())

	assert.Contains(t, out, "YouTube (My Channel)  ● LIVE")
	assert.Contains(t, out, "Subscribers")
	assert.Contains(t, out, "+100")
	assert.Contains(t, out, "Top: Old hit")
	assert.Contains(t, out, "1.5M views • 2.0K likes • 5 months ago")
	assert.Contains(t, out, "⚡ 3.6K views/hour")
	assert.Contains(t, out, "TikTok  ● ERROR")
	assert.Contains(t, out, "TikTok auth failed: The access token is invalid")
	assert.True(t, strings.HasSuffix(out, "Last update: 09:05:07\n"))
	assert.NotContains(t, out, "\033[")

	assert.Less(t, strings.Index(out, "YouTube"), strings.Index(out, "TikTok"), "platforms render in display order")
}

func TestTerminal_RenderColor(t *testing.T) {
	out := NewTerminal(true).Render(sampleViewModel())

	assert.Contains(t, out, "\x1b[32m● LIVE\x1b[0m")
	assert.Contains(t, out, "\x1b[31m● ERROR\x1b[0m")
	assert.Contains(t, out, "\x1b[32m+100\x1b[0m")
	assert.Contains(t, out, "\x1b[90m—\x1b[0m")
	assert.Contains(t, out, "\x1b[1mYouTube (My Channel)\x1b[0m")
}

func TestTerminal_NoColorIgnoresStyles(t *testing.T) {
	term := NewTerminal(false)
	assert.Equal(t, "● LIVE", term.badge(models.StatusLive))
	assert.Equal(t, "-5", term.delta("-5", models.DeltaStyleNegative))
}

func TestTerminal_RenderEmpty(t *testing.T) {
	out := NewTerminal(false).Render(nil)
	assert.Equal(t, "No platforms configured.\n\nLast update: --\n", out)
}

func TestTerminal_FollowingLine(t *testing.T) {
	view := &models.PlatformView{
		Platform:  models.PlatformTikTok,
		Status:    models.StatusLive,
		Following: "42",
	}
	assert.Contains(t, NewTerminal(false).RenderPlatform(view), "Following")
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 10))
	assert.Equal(t, "abcd...", TruncateText("abcdefghij", 7))
	assert.Equal(t, "...", TruncateText("abcdef", 2))
	assert.Equal(t, "héllo...", TruncateText("héllo wörld", 8))
}
