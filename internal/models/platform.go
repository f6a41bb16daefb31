package models

import (
	"fmt"
	"strings"
)

// PlatformID identifies an analytics source.
type PlatformID string

const (
	PlatformYouTube PlatformID = "youtube"
	PlatformTikTok  PlatformID = "tiktok"
)

// AllPlatforms lists every supported platform in display order.
var AllPlatforms = []PlatformID{PlatformYouTube, PlatformTikTok}

// ParsePlatformID converts user input into a PlatformID.
func ParsePlatformID(s string) (PlatformID, error) {
	switch PlatformID(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformYouTube:
		return PlatformYouTube, nil
	case PlatformTikTok:
		return PlatformTikTok, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// DisplayName returns the human-readable platform name.
func (p PlatformID) DisplayName() string {
	switch p {
	case PlatformYouTube:
		return "YouTube"
	case PlatformTikTok:
		return "TikTok"
	default:
		return string(p)
	}
}

// TrackedMetrics returns the metrics whose deltas are computed for a platform.
func (p PlatformID) TrackedMetrics() []MetricName {
	switch p {
	case PlatformYouTube:
		return []MetricName{MetricSubscribers, MetricViews}
	case PlatformTikTok:
		return []MetricName{MetricFollowers, MetricLikes}
	default:
		return nil
	}
}

// VideosRequired reports whether a failed video list marks the platform as
// failing. TikTok stays live with its metrics; YouTube does not.
func (p PlatformID) VideosRequired() bool {
	return p == PlatformYouTube
}

// MetricName names a tracked channel-level counter.
type MetricName string

const (
	MetricSubscribers MetricName = "subscribers"
	MetricViews       MetricName = "views"
	MetricFollowers   MetricName = "followers"
	MetricLikes       MetricName = "likes"
)

// PlatformCredentials holds the auth material for one platform.
// YouTube uses APIKey and ChannelID, TikTok uses AccessToken and OpenID.
type PlatformCredentials struct {
	Platform     PlatformID `json:"platform"`
	APIKey       string     `json:"api_key,omitempty"`
	ChannelID    string     `json:"channel_id,omitempty"`
	AccessToken  string     `json:"access_token,omitempty"`
	OpenID       string     `json:"open_id,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
}

// Present reports whether every field required by the platform is non-empty.
func (c PlatformCredentials) Present() bool {
	switch c.Platform {
	case PlatformYouTube:
		return nonEmpty(c.APIKey) && nonEmpty(c.ChannelID)
	case PlatformTikTok:
		return nonEmpty(c.AccessToken) && nonEmpty(c.OpenID)
	default:
		return false
	}
}

// Redacted returns a copy safe for logging and API responses.
func (c PlatformCredentials) Redacted() PlatformCredentials {
	out := c
	out.APIKey = mask(c.APIKey)
	out.AccessToken = mask(c.AccessToken)
	out.RefreshToken = mask(c.RefreshToken)
	return out
}

func nonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
