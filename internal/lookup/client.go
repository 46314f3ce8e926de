package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/venue-queue-system/pkg/breaker"
)

// Client talks to the quota-limited video search API used to resolve song
// metadata. It never retries; the circuit breaker wrapping it decides when
// calls are allowed at all.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Video struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Artist       string `json:"channel_title"`
	ThumbnailURL string `json:"thumbnail_url"`
	DurationSecs int    `json:"duration_seconds"`
}

type SearchResponse struct {
	Items []Video `json:"items"`
}

// NotFoundError is a client-class failure: the dependency answered, the
// video just does not exist. Never counted by the breaker.
type NotFoundError struct {
	VideoID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("lookup: video %s not found", e.VideoID)
}

// QuotaError means the API rejected us for quota/rate reasons. A single one
// trips the breaker open.
type QuotaError struct {
	StatusCode int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("lookup: quota exceeded (status %d)", e.StatusCode)
}

// UpstreamError is a systemic failure (5xx or transport); these count toward
// the breaker threshold.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lookup: upstream failure: %v", e.Err)
	}
	return fmt.Sprintf("lookup: upstream failure (status %d)", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Classify maps lookup errors to breaker classes. Not-found and bad-request
// responses never count; quota violations open the circuit immediately.
func Classify(err error) breaker.Class {
	switch err.(type) {
	case *NotFoundError:
		return breaker.ClassClient
	case *QuotaError:
		return breaker.ClassQuota
	default:
		return breaker.ClassSystemic
	}
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("limit", fmt.Sprintf("%d", limit))
	params.Add("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp.StatusCode, ""); err != nil {
		return nil, err
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, &UpstreamError{Err: err}
	}

	return searchResp.Items, nil
}

func (c *Client) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	params := url.Values{}
	params.Add("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/videos/"+url.PathEscape(videoID)+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp.StatusCode, videoID); err != nil {
		return nil, err
	}

	var video Video
	if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
		return nil, &UpstreamError{Err: err}
	}

	return &video, nil
}

func (c *Client) checkStatus(status int, videoID string) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound, status == http.StatusBadRequest:
		return &NotFoundError{VideoID: videoID}
	case status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return &QuotaError{StatusCode: status}
	default:
		return &UpstreamError{StatusCode: status}
	}
}
