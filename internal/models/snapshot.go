package models

import "time"

// ChannelSnapshot is the normalized channel-level statistics of one fetch.
// SecondaryCount carries total views for YouTube and total likes for TikTok.
type ChannelSnapshot struct {
	Platform       PlatformID `json:"platform"`
	DisplayName    string     `json:"display_name,omitempty"`
	FollowerCount  uint64     `json:"follower_count"`
	SecondaryCount uint64     `json:"secondary_count"`
	FollowingCount uint64     `json:"following_count,omitempty"`
	CollectedAt    time.Time  `json:"collected_at"`
}

// Metric returns the value of a tracked metric from the snapshot.
func (s *ChannelSnapshot) Metric(name MetricName) (uint64, bool) {
	switch name {
	case MetricSubscribers, MetricFollowers:
		return s.FollowerCount, true
	case MetricViews, MetricLikes:
		return s.SecondaryCount, true
	default:
		return 0, false
	}
}

// VideoSnapshot is one normalized video.
type VideoSnapshot struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	ViewCount    uint64    `json:"view_count"`
	LikeCount    *uint64   `json:"like_count,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
}

// PublishedAtEpochMs returns the publish time in milliseconds since the epoch.
func (v VideoSnapshot) PublishedAtEpochMs() int64 {
	return v.PublishedAt.UnixMilli()
}

// VideoPair is the top-performing and the most recent video of a poll.
type VideoPair struct {
	Top    VideoSnapshot `json:"top"`
	Latest VideoSnapshot `json:"latest"`
}

// DeltaDirection describes the sign of a metric change.
type DeltaDirection string

const (
	DeltaUp   DeltaDirection = "up"
	DeltaDown DeltaDirection = "down"
	DeltaFlat DeltaDirection = "flat"
)

// MetricDelta is the change of a metric since the previous poll.
type MetricDelta struct {
	Metric   MetricName `json:"metric"`
	Previous uint64     `json:"previous"`
	Current  uint64     `json:"current"`
	Delta    int64      `json:"delta"`
}

// NewMetricDelta computes current minus previous. ok is false when there is
// no previous observation to compare against.
func NewMetricDelta(metric MetricName, previous, current uint64) (MetricDelta, bool) {
	if previous == 0 {
		return MetricDelta{}, false
	}
	return MetricDelta{
		Metric:   metric,
		Previous: previous,
		Current:  current,
		Delta:    int64(current) - int64(previous),
	}, true
}

// Direction reports whether the metric went up, down or stayed flat.
func (d MetricDelta) Direction() DeltaDirection {
	switch {
	case d.Delta > 0:
		return DeltaUp
	case d.Delta < 0:
		return DeltaDown
	default:
		return DeltaFlat
	}
}
