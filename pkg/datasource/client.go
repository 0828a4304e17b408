package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/deskforge/deskforge/pkg/apperrors"
)

// Client fetches rows from an external source
type Client interface {
	FetchAll(ctx context.Context) ([]map[string]interface{}, error)
}

// HTTPClient reads a JSON array of objects from a URL
type HTTPClient struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func NewHTTPClient(url string, headers map[string]string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		url:     url,
		headers: headers,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// FetchAll GETs the source URL and decodes its JSON array body
func (c *HTTPClient) FetchAll(ctx context.Context) ([]map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build data source request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Upstream(err, "data source unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Upstream(nil, "data source returned status %d", resp.StatusCode)
	}

	var rows []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, apperrors.Upstream(err, "invalid data source payload")
	}
	return rows, nil
}
