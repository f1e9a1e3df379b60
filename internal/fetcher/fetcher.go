// Package fetcher implements the provider API collaborator over HTTP.
// Connection details (base URL, auth headers) come from configuration;
// the pipeline only sees the opaque fetch(endpoint, params) -> JSON
// contract.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

// defaultTimeout bounds one provider API call.
const defaultTimeout = 30 * time.Second

// Connection describes how to reach one provider connection.
type Connection struct {
	BaseURL string
	Headers map[string]string
}

// HTTPFetcher implements core.Fetcher against configured connections.
type HTTPFetcher struct {
	client      *http.Client
	connections map[string]Connection
	logger      *slog.Logger
}

// New creates an HTTP fetcher. The connections map is keyed by
// connection ID with provider ID as fallback.
func New(connections map[string]Connection, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPFetcher{
		client:      &http.Client{Timeout: defaultTimeout},
		connections: connections,
		logger:      logger,
	}
}

// Fetch calls the provider endpoint and returns the decoded JSON body.
func (f *HTTPFetcher) Fetch(ctx context.Context, req core.FetchRequest) (*core.FetchResult, error) {
	conn, ok := f.connections[req.ConnectionID]
	if !ok {
		conn, ok = f.connections[req.ProviderID]
	}
	if !ok {
		return nil, fmt.Errorf("no connection configured for %q", req.ConnectionID)
	}

	u, err := url.Parse(strings.TrimRight(conn.BaseURL, "/") + "/" + strings.TrimLeft(req.EndpointPath, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	if len(req.Params) > 0 {
		q := u.Query()
		for k, v := range req.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range conn.Headers {
		httpReq.Header.Set(k, v)
	}

	f.logger.Debug("fetching provider data", "provider", req.ProviderID, "endpoint", req.EndpointPath)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("provider response is not JSON: %w", err)
	}

	return &core.FetchResult{Data: data, Status: resp.StatusCode}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ core.Fetcher = (*HTTPFetcher)(nil)
