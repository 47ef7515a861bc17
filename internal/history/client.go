package history

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"resty.dev/v3"
)

const defaultClientTimeout = 15 * time.Second

// ClientOptions configures the REST history transport.
type ClientOptions struct {
	// BaseURL is the upstream REST root, e.g. "http://hub.local:8123".
	BaseURL string
	// Token is sent as a bearer token when non-empty.
	Token   string
	Timeout time.Duration
}

// Client queries the upstream history endpoint over REST.
type Client struct {
	http *resty.Client
}

// NewClient builds the REST transport.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("history client: base URL is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout)
	if opts.Token != "" {
		httpClient.SetAuthToken(opts.Token)
	}
	return &Client{http: httpClient}, nil
}

// Close releases idle transport connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// QueryHistoryPeriod fetches raw history rows for one window. The endpoint
// takes the start stamp as a path segment and everything else as query
// parameters.
func (c *Client) QueryHistoryPeriod(ctx context.Context, startISO, endISO string, filter Filter) ([][]map[string]any, error) {
	var result [][]map[string]any
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("end_time", endISO).
		SetResult(&result)
	if len(filter.EntityIDs) > 0 {
		req.SetQueryParam("filter_entity_id", strings.Join(filter.EntityIDs, ","))
	}
	if filter.MinimalResponse {
		req.SetQueryParam("minimal_response", "true")
	}

	resp, err := req.Get("/api/history/period/" + url.PathEscape(startISO))
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("history request rejected: %s", resp.Status())
	}
	return result, nil
}
