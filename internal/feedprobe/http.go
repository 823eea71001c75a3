package feedprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/okian/readfeed/internal/domain/types"
)

const (
	maxResponseBytes = 16 << 20
	retryWaitMin     = 100 * time.Millisecond
	retryWaitMax     = 500 * time.Millisecond
)

// HTTPClient talks to the feed service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client that retries connection errors and 5xx
// responses once.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 1
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.HTTPClient.Timeout = timeout
	return &HTTPClient{baseURL: baseURL, client: rc.StandardClient()}
}

// Health checks GET /healthz.
func (c *HTTPClient) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// The service answers with Prometheus metrics; any 200 is healthy.
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// Feed fetches one feed page.
func (c *HTTPClient) Feed(ctx context.Context, scope, viewer string, limit int) ([]types.Activity, error) {
	q := url.Values{}
	q.Set("scope", scope)
	q.Set("limit", strconv.Itoa(limit))
	if viewer != "" {
		q.Set("viewer", viewer)
	}

	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/feed?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var feed []types.Activity
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("feed: decode: %w", err)
	}
	return feed, nil
}

// Refresh asks the service to rebuild a feed in the background.
func (c *HTTPClient) Refresh(ctx context.Context, req FeedRequest) (AckResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return AckResponse{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/feed/refresh", data)
	if err != nil {
		return AckResponse{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return AckResponse{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return AckResponse{}, fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var ack AckResponse
	if err := json.Unmarshal(body, &ack); err != nil {
		return AckResponse{}, fmt.Errorf("%w: decode: %w", ErrRefreshFailed, err)
	}
	return ack, nil
}

func (c *HTTPClient) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var r io.Reader = http.NoBody
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}
