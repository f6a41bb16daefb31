package models

import "time"

// PlatformStatus is the per-platform state shown in the dashboard.
type PlatformStatus string

const (
	StatusIdle  PlatformStatus = "idle"
	StatusLive  PlatformStatus = "live"
	StatusError PlatformStatus = "error"
)

// DeltaStyle selects how a delta is presented.
type DeltaStyle string

const (
	DeltaStyleNone     DeltaStyle = "none"
	DeltaStylePositive DeltaStyle = "positive"
	DeltaStyleNegative DeltaStyle = "negative"
	DeltaStyleNeutral  DeltaStyle = "neutral"
)

// MetricView is a formatted metric ready for rendering.
type MetricView struct {
	Name       MetricName   `json:"name"`
	Value      uint64       `json:"value"`
	Formatted  string       `json:"formatted"`
	Delta      *MetricDelta `json:"delta,omitempty"`
	DeltaText  string       `json:"delta_text,omitempty"`
	DeltaStyle DeltaStyle   `json:"delta_style"`
	Changed    bool         `json:"changed"`
}

// VideoView is a formatted video card.
type VideoView struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	Views           string    `json:"views"`
	Likes           string    `json:"likes,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	Published       string    `json:"published"`
	Velocity        string    `json:"velocity,omitempty"`
	VelocityPerHour int64     `json:"velocity_per_hour"`
}

// PlatformView is everything the renderer needs for one platform.
type PlatformView struct {
	Platform    PlatformID     `json:"platform"`
	DisplayName string         `json:"display_name,omitempty"`
	Status      PlatformStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	Metrics     []MetricView   `json:"metrics,omitempty"`
	Following   string         `json:"following,omitempty"`
	Top         *VideoView     `json:"top,omitempty"`
	Latest      *VideoView     `json:"latest,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Metric looks up a metric view by name.
func (v *PlatformView) Metric(name MetricName) (MetricView, bool) {
	for _, m := range v.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricView{}, false
}

// ViewModel is the output of one refresh cycle.
type ViewModel struct {
	Platforms      map[PlatformID]*PlatformView `json:"platforms"`
	LastUpdate     time.Time                    `json:"last_update"`
	LastUpdateText string                       `json:"last_update_text"`
}

// NewViewModel returns an empty view model.
func NewViewModel() *ViewModel {
	return &ViewModel{Platforms: make(map[PlatformID]*PlatformView)}
}

// Platform returns the view for a platform, or nil when it was not refreshed.
func (vm *ViewModel) Platform(id PlatformID) *PlatformView {
	if vm == nil {
		return nil
	}
	return vm.Platforms[id]
}
