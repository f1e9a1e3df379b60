package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

func TestFetch(t *testing.T) {
	var gotPath, gotAuth, gotAccept string
	var gotQuery map[string][]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": [{"date": "2026-01-01", "visitors": 42}]}`))
	}))
	defer ts.Close()

	f := New(map[string]Connection{
		"plausible": {BaseURL: ts.URL, Headers: map[string]string{"Authorization": "Bearer key-123"}},
	}, nil)

	result, err := f.Fetch(context.Background(), core.FetchRequest{
		ProviderID:   "plausible",
		ConnectionID: "plausible",
		EndpointPath: "/api/v1/stats/timeseries",
		Params:       map[string]string{"site_id": "example.com", "period": "30d"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/stats/timeseries", gotPath)
	assert.Equal(t, []string{"example.com"}, gotQuery["site_id"])
	assert.Equal(t, []string{"30d"}, gotQuery["period"])
	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, "application/json", gotAccept)

	assert.Equal(t, 200, result.Status)
	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	assert.Len(t, data["results"], 1)
}

func TestFetch_FallsBackToProviderConnection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	f := New(map[string]Connection{"github": {BaseURL: ts.URL}}, nil)

	_, err := f.Fetch(context.Background(), core.FetchRequest{
		ProviderID:   "github",
		ConnectionID: "github-personal",
		EndpointPath: "/repos",
	})
	require.NoError(t, err)
}

func TestFetch_UnknownConnection(t *testing.T) {
	f := New(nil, nil)

	_, err := f.Fetch(context.Background(), core.FetchRequest{ConnectionID: "nope", EndpointPath: "/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no connection configured")
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	f := New(map[string]Connection{"p": {BaseURL: ts.URL}}, nil)

	_, err := f.Fetch(context.Background(), core.FetchRequest{ConnectionID: "p", EndpointPath: "/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestFetch_NonJSONResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer ts.Close()

	f := New(map[string]Connection{"p": {BaseURL: ts.URL}}, nil)

	_, err := f.Fetch(context.Background(), core.FetchRequest{ConnectionID: "p", EndpointPath: "/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not JSON")
}

func TestFetch_PostBody(t *testing.T) {
	var gotMethod, gotContentType string
	var gotBody []byte

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer ts.Close()

	f := New(map[string]Connection{"p": {BaseURL: ts.URL}}, nil)

	_, err := f.Fetch(context.Background(), core.FetchRequest{
		ConnectionID: "p",
		EndpointPath: "/query",
		Method:       http.MethodPost,
		Body:         map[string]any{"metric": "visitors"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"metric":"visitors"}`, string(gotBody))
}
