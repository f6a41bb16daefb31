// Package platform defines the contract shared by the analytics API clients
// and the selection and rate math applied to the videos they return.
package platform

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

// Client fetches and normalizes data from one analytics API.
type Client interface {
	Platform() models.PlatformID
	FetchSnapshot(ctx context.Context, creds models.PlatformCredentials) (*models.ChannelSnapshot, error)
	FetchTopAndLatestVideos(ctx context.Context, creds models.PlatformCredentials) (*models.VideoPair, error)
}

// SelectTop returns the video with the highest view count. Ties keep the
// first video seen. ok is false for an empty list.
func SelectTop(videos []models.VideoSnapshot) (top models.VideoSnapshot, ok bool) {
	for i, v := range videos {
		if i == 0 || v.ViewCount > top.ViewCount {
			top = v
		}
	}
	return top, len(videos) > 0
}

// SelectLatest returns the most recently published video. The list is
// stable-sorted newest first, so ties keep their original order.
func SelectLatest(videos []models.VideoSnapshot) (models.VideoSnapshot, bool) {
	if len(videos) == 0 {
		return models.VideoSnapshot{}, false
	}
	sorted := slices.Clone(videos)
	slices.SortStableFunc(sorted, func(a, b models.VideoSnapshot) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	return sorted[0], true
}

// SelectPair picks the top and latest videos of a non-empty list.
func SelectPair(videos []models.VideoSnapshot) (*models.VideoPair, bool) {
	top, ok := SelectTop(videos)
	if !ok {
		return nil, false
	}
	latest, _ := SelectLatest(videos)
	return &models.VideoPair{Top: top, Latest: latest}, true
}

// Velocity is views per hour since publish, rounded to the nearest integer.
// A publish time at or after now yields 0.
func Velocity(views uint64, publishedAt, now time.Time) int64 {
	hours := float64(now.Sub(publishedAt)) / float64(time.Hour)
	if hours <= 0 {
		return 0
	}
	v := math.Round(float64(views) / hours)
	if math.IsNaN(v) || math.IsInf(v, 0) || v > math.MaxInt64 {
		return 0
	}
	return int64(v)
}
