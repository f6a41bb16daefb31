// Package tiktok implements the short-video platform client against the
// TikTok Open API v2.
package tiktok

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/platform"
)

const (
	// DefaultBaseURL is the Open API root.
	DefaultBaseURL = "https://open.tiktokapis.com/v2"

	userInfoFields  = "follower_count,following_count,likes_count,display_name"
	videoListFields = "id,title,video_description,duration,create_time,like_count,comment_count,share_count,view_count,cover_image_url"

	maxResponseBytes = 4 << 20
	platformName     = string(models.PlatformTikTok)
	untitled         = "Untitled"
)

// Client fetches the authorized user's profile counters and recent videos.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxCount   int
	now        func() time.Time
}

// NewClient creates a TikTok client. An empty baseURL selects the public API.
func NewClient(httpClient *http.Client, baseURL string, maxCount int) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if maxCount <= 0 || maxCount > 20 {
		maxCount = 20
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxCount:   maxCount,
		now:        time.Now,
	}
}

var _ platform.Client = (*Client)(nil)

// Platform identifies the client.
func (c *Client) Platform() models.PlatformID {
	return models.PlatformTikTok
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

type userInfoResponse struct {
	Data struct {
		User struct {
			DisplayName    string `json:"display_name"`
			FollowerCount  uint64 `json:"follower_count"`
			FollowingCount uint64 `json:"following_count"`
			LikesCount     uint64 `json:"likes_count"`
		} `json:"user"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

type video struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	VideoDescription string  `json:"video_description"`
	Duration         int64   `json:"duration"`
	CreateTime       int64   `json:"create_time"`
	ViewCount        *uint64 `json:"view_count"`
	LikeCount        *uint64 `json:"like_count"`
	CommentCount     uint64  `json:"comment_count"`
	ShareCount       uint64  `json:"share_count"`
	CoverImageURL    string  `json:"cover_image_url"`
}

type videoListResponse struct {
	Data struct {
		Videos  []video `json:"videos"`
		Cursor  int64   `json:"cursor"`
		HasMore bool    `json:"has_more"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

type videoListRequest struct {
	MaxCount int `json:"max_count"`
}

// FetchSnapshot returns follower, like and following counts.
func (c *Client) FetchSnapshot(ctx context.Context, creds models.PlatformCredentials) (*models.ChannelSnapshot, error) {
	endpoint := c.baseURL + "/user/info/?fields=" + userInfoFields

	var resp userInfoResponse
	if err := c.do(ctx, http.MethodGet, endpoint, creds.AccessToken, nil, &resp, "user.info"); err != nil {
		return nil, err
	}
	if err := checkAPIError(resp.Error); err != nil {
		return nil, err
	}

	user := resp.Data.User
	return &models.ChannelSnapshot{
		Platform:       models.PlatformTikTok,
		DisplayName:    user.DisplayName,
		FollowerCount:  user.FollowerCount,
		SecondaryCount: user.LikesCount,
		FollowingCount: user.FollowingCount,
		CollectedAt:    c.now(),
	}, nil
}

// FetchTopAndLatestVideos lists recent videos and picks the most viewed and
// the newest of them.
func (c *Client) FetchTopAndLatestVideos(ctx context.Context, creds models.PlatformCredentials) (*models.VideoPair, error) {
	endpoint := c.baseURL + "/video/list/?fields=" + videoListFields

	body, err := json.Marshal(videoListRequest{MaxCount: c.maxCount})
	if err != nil {
		return nil, fmt.Errorf("encode video list request: %w", err)
	}

	var resp videoListResponse
	if err := c.do(ctx, http.MethodPost, endpoint, creds.AccessToken, body, &resp, "video.list"); err != nil {
		return nil, err
	}
	if err := checkAPIError(resp.Error); err != nil {
		return nil, err
	}
	if len(resp.Data.Videos) == 0 {
		return nil, &errors.ErrNotFound{Platform: platformName, Resource: "videos"}
	}

	videos := make([]models.VideoSnapshot, 0, len(resp.Data.Videos))
	for _, v := range resp.Data.Videos {
		videos = append(videos, normalizeVideo(v))
	}

	pair, _ := platform.SelectPair(videos)
	return pair, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, body []byte, out any, op string) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &errors.ErrTransport{Platform: platformName, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errors.ErrTransport{Platform: platformName, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &errors.ErrTransport{Platform: platformName, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	// Auth failures come back as non-2xx with a populated error envelope, so
	// decode before looking at the status.
	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &errors.ErrTransport{
				Platform:   platformName,
				Op:         op,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("unexpected status %s", resp.Status),
			}
		}
		return &errors.ErrTransport{Platform: platformName, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// checkAPIError treats anything but an "ok" envelope as an auth failure.
func checkAPIError(e *apiError) error {
	if e != nil && e.Code == "ok" {
		return nil
	}
	authErr := &errors.ErrAuth{Platform: platformName}
	if e != nil {
		authErr.Code = e.Code
		authErr.Message = e.Message
	}
	return authErr
}

func normalizeVideo(v video) models.VideoSnapshot {
	out := models.VideoSnapshot{
		ID:           v.ID,
		Title:        v.Title,
		ThumbnailURL: v.CoverImageURL,
		PublishedAt:  time.Unix(v.CreateTime, 0).UTC(),
	}
	if out.Title == "" {
		out.Title = v.VideoDescription
	}
	if out.Title == "" {
		out.Title = untitled
	}
	if v.ViewCount != nil {
		out.ViewCount = *v.ViewCount
	}
	likes := uint64(0)
	if v.LikeCount != nil {
		likes = *v.LikeCount
	}
	out.LikeCount = &likes
	return out
}
