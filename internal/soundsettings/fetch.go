package soundsettings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/beyproweb/beypro-notify/internal/errors"
	"github.com/beyproweb/beypro-notify/internal/httpclient"
)

const fetchTimeout = 15 * time.Second

// Fetcher retrieves the raw notification settings payload for a tenant.
type Fetcher interface {
	Fetch(ctx context.Context, tenant string) (map[string]any, error)
}

// HTTPFetcher fetches settings from GET {base}/settings/notifications.
type HTTPFetcher struct {
	baseURL string
	client  *httpclient.Client
}

// NewHTTPFetcher creates a fetcher against the given REST base URL.
func NewHTTPFetcher(baseURL string, client *httpclient.Client) *HTTPFetcher {
	return &HTTPFetcher{baseURL: baseURL, client: client}
}

// Fetch performs the settings request and decodes the body into a raw map.
// The payload shape is deliberately left loose; Normalize deals with it.
func (f *HTTPFetcher) Fetch(ctx context.Context, tenant string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/settings/notifications?restaurantId=%s",
		f.baseURL, url.QueryEscape(tenant))

	resp, err := f.client.Get(ctx, endpoint)
	if err != nil {
		return nil, errors.New(err).
			Component("soundsettings").
			Category(errors.CategoryNetwork).
			NetworkContext(endpoint, fetchTimeout).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("settings request returned status %d", resp.StatusCode).
			Component("soundsettings").
			Category(errors.CategoryHTTP).
			Context("status", resp.StatusCode).
			Build()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("soundsettings").
			Category(errors.CategoryNetwork).
			Build()
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.New(err).
			Component("soundsettings").
			Category(errors.CategoryConfiguration).
			Context("body_length", len(body)).
			Build()
	}

	return raw, nil
}
