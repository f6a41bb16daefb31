// Package youtube implements the video-platform client on top of the
// YouTube Data API v3.
package youtube

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	gtransport "google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/platform"
)

const platformName = string(models.PlatformYouTube)

// Client fetches channel statistics and recent uploads.
type Client struct {
	httpClient *http.Client
	endpoint   string
	maxResults int64
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithEndpoint overrides the API root, e.g. for a test server.
func WithEndpoint(endpoint string) Option {
	return func(cl *Client) {
		cl.endpoint = strings.TrimRight(endpoint, "/") + "/"
	}
}

// WithMaxResults sets how many recent uploads are inspected.
func WithMaxResults(n int64) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxResults = n
		}
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		cl.now = now
	}
}

// NewClient creates a YouTube client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		maxResults: 10,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ platform.Client = (*Client)(nil)

// Platform identifies the client.
func (c *Client) Platform() models.PlatformID {
	return models.PlatformYouTube
}

// service builds an API-key authenticated service for one refresh cycle.
func (c *Client) service(ctx context.Context, apiKey string) (*youtube.Service, error) {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := &http.Client{
		Timeout:   c.httpClient.Timeout,
		Transport: &gtransport.APIKey{Key: apiKey, Transport: base},
	}

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, &errors.ErrTransport{Platform: platformName, Op: "init", Err: err}
	}
	return svc, nil
}

// FetchSnapshot returns subscriber and view totals of the configured channel.
func (c *Client) FetchSnapshot(ctx context.Context, creds models.PlatformCredentials) (*models.ChannelSnapshot, error) {
	svc, err := c.service(ctx, creds.APIKey)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Channels.List([]string{"statistics", "snippet"}).
		Id(creds.ChannelID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("channels.list", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Statistics == nil {
		return nil, &errors.ErrNotFound{Platform: platformName, Resource: "channel " + creds.ChannelID}
	}

	ch := resp.Items[0]
	snap := &models.ChannelSnapshot{
		Platform:       models.PlatformYouTube,
		FollowerCount:  ch.Statistics.SubscriberCount,
		SecondaryCount: ch.Statistics.ViewCount,
		CollectedAt:    c.now(),
	}
	if ch.Snippet != nil {
		snap.DisplayName = ch.Snippet.Title
	}
	return snap, nil
}

// FetchTopAndLatestVideos inspects the most recent uploads and picks the
// most viewed and the newest of them.
func (c *Client) FetchTopAndLatestVideos(ctx context.Context, creds models.PlatformCredentials) (*models.VideoPair, error) {
	svc, err := c.service(ctx, creds.APIKey)
	if err != nil {
		return nil, err
	}

	uploads, err := c.uploadsPlaylist(ctx, svc, creds.ChannelID)
	if err != nil {
		return nil, err
	}

	items, err := svc.PlaylistItems.List([]string{"snippet"}).
		PlaylistId(uploads).
		MaxResults(c.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("playlistItems.list", err)
	}

	ids := make([]string, 0, len(items.Items))
	for _, item := range items.Items {
		if item.Snippet != nil && item.Snippet.ResourceId != nil && item.Snippet.ResourceId.VideoId != "" {
			ids = append(ids, item.Snippet.ResourceId.VideoId)
		}
	}
	if len(ids) == 0 {
		return nil, &errors.ErrNotFound{Platform: platformName, Resource: "uploads"}
	}

	resp, err := svc.Videos.List([]string{"statistics", "snippet"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("videos.list", err)
	}

	videos := make([]models.VideoSnapshot, 0, len(resp.Items))
	for _, v := range resp.Items {
		videos = append(videos, normalizeVideo(v))
	}

	pair, ok := platform.SelectPair(videos)
	if !ok {
		return nil, &errors.ErrNotFound{Platform: platformName, Resource: "videos"}
	}
	return pair, nil
}

func (c *Client) uploadsPlaylist(ctx context.Context, svc *youtube.Service, channelID string) (string, error) {
	resp, err := svc.Channels.List([]string{"contentDetails"}).
		Id(channelID).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("channels.list", err)
	}
	if len(resp.Items) == 0 {
		return "", &errors.ErrNotFound{Platform: platformName, Resource: "channel " + channelID}
	}

	details := resp.Items[0].ContentDetails
	if details == nil || details.RelatedPlaylists == nil || details.RelatedPlaylists.Uploads == "" {
		return "", &errors.ErrNotFound{Platform: platformName, Resource: "uploads playlist"}
	}
	return details.RelatedPlaylists.Uploads, nil
}

func normalizeVideo(v *youtube.Video) models.VideoSnapshot {
	out := models.VideoSnapshot{ID: v.Id}

	if v.Snippet != nil {
		out.Title = v.Snippet.Title
		if t, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
			out.PublishedAt = t
		}
		out.ThumbnailURL = thumbnail(v.Snippet.Thumbnails)
	}
	if v.Statistics != nil {
		out.ViewCount = v.Statistics.ViewCount
		likes := v.Statistics.LikeCount
		out.LikeCount = &likes
	}
	return out
}

// thumbnail prefers the medium rendition and falls back to the default one.
func thumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	if t.Medium != nil && t.Medium.Url != "" {
		return t.Medium.Url
	}
	if t.Default != nil {
		return t.Default.Url
	}
	return ""
}

// classify maps API failures onto the shared error taxonomy.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		return &errors.ErrTransport{Platform: platformName, Op: op, Err: err}
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden || isKeyInvalid(apiErr):
		return &errors.ErrAuth{Platform: platformName, Code: fmt.Sprint(apiErr.Code), Message: apiErr.Message}
	case apiErr.Code == http.StatusNotFound:
		return &errors.ErrNotFound{Platform: platformName, Resource: op}
	default:
		return &errors.ErrTransport{Platform: platformName, Op: op, StatusCode: apiErr.Code, Err: apiErr}
	}
}

func isKeyInvalid(apiErr *googleapi.Error) bool {
	if apiErr.Code != http.StatusBadRequest {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "keyInvalid" || item.Reason == "badRequest" && strings.Contains(item.Message, "API key") {
			return true
		}
	}
	return strings.Contains(apiErr.Message, "API key not valid")
}
