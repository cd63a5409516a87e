// Package charts fetches, extracts and caches chart image payloads for every
// chart kind, polling through the refresh scheduler.
package charts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tinytelemetry/canopy/internal/model"
)

// maxBodyBytes caps a single chart response.
const maxBodyBytes = 16 << 20

// Fetcher is the narrow transport the cache depends on. A non-nil error
// means the request never produced a response.
type Fetcher interface {
	Fetch(ctx context.Context, kind model.ChartKind) (status int, body string, err error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, kind model.ChartKind) (int, string, error)

func (f FetcherFunc) Fetch(ctx context.Context, kind model.ChartKind) (int, string, error) {
	return f(ctx, kind)
}

// HTTPFetcher requests GET {BaseURL}/api/chart/{kind}.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher returns a fetcher whose requests time out after timeout.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = model.DefaultFetchTimeout
	}
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// URL returns the endpoint for kind.
func (f *HTTPFetcher) URL(kind model.ChartKind) string {
	return fmt.Sprintf("%s/api/chart/%s", f.BaseURL, kind)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, kind model.ChartKind) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(kind), nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Accept", "application/json, */*")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, string(data), nil
}
