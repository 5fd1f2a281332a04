package arcgis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/lightning-etl/internal/domain"
)

const userAgent = "lightning-etl"

// Client fetches GeoJSON query results from an ArcGIS MapServer.
// It implements pipeline.Fetcher.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client. A zero timeout leaves requests unbounded.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch performs a GET against url and returns the body. HTTP status codes
// are not interpreted: a non-2xx body is returned as-is and rejected later
// when it fails to parse. Network failures wrap domain.ErrTransport.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrTransport, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrTransport, req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("upstream returned non-success status",
			"status", resp.StatusCode,
			"host", req.URL.Host,
			"bytes", len(body),
		)
	} else {
		c.logger.Debug("upstream response received", "status", resp.StatusCode, "bytes", len(body))
	}
	return body, nil
}
