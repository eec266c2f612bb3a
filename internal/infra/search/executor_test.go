package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

func newHTTPExecutor(t *testing.T, baseURL string) *HTTPExecutor {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	return NewHTTPExecutor(baseURL, http.DefaultClient, log, noop.NewTracerProvider().Tracer("test"))
}

func TestHTTPExecutor_Search(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/search", r.URL.Path)

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acme shoes", req.Keyword)
		assert.Equal(t, []string{"acme.com"}, req.ExcludeDomains)
		assert.Equal(t, 10, req.MaxResults)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(searchResponse{Candidates: []scanning.Candidate{
			{URL: "https://fakes.example.com/1", Title: "Cheap acme shoes", Confidence: 80, SourcePlatform: "marketplace"},
		}})
	}))
	defer server.Close()

	executor := newHTTPExecutor(t, server.URL)

	candidates, err := executor.Search(context.Background(), "acme shoes", []string{"acme.com"}, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://fakes.example.com/1", candidates[0].URL)
	assert.Equal(t, 80, candidates[0].Confidence)
}

func TestHTTPExecutor_TruncatesOverfullResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := searchResponse{}
		for i := 0; i < 5; i++ {
			resp.Candidates = append(resp.Candidates, scanning.Candidate{URL: "https://x.example.com", Confidence: 50})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	executor := newHTTPExecutor(t, server.URL)

	candidates, err := executor.Search(context.Background(), "acme", nil, 3)
	require.NoError(t, err)
	assert.Len(t, candidates, 3)
}

func TestHTTPExecutor_NonOKStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine quota exhausted", http.StatusBadGateway)
	}))
	defer server.Close()

	executor := newHTTPExecutor(t, server.URL)

	_, err := executor.Search(context.Background(), "acme", nil, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "engine quota exhausted")
}

func TestSimulatedExecutor_Deterministic(t *testing.T) {
	t.Parallel()

	executor := NewSimulatedExecutor()
	ctx := context.Background()

	first, err := executor.Search(ctx, "acme shoes", nil, 10)
	require.NoError(t, err)
	second, err := executor.Search(ctx, "acme shoes", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for _, cand := range first {
		assert.NotEmpty(t, cand.URL)
		assert.GreaterOrEqual(t, cand.Confidence, 40)
		assert.LessOrEqual(t, cand.Confidence, 100)
	}
}

func TestSimulatedExecutor_RespectsMaxResults(t *testing.T) {
	t.Parallel()

	executor := NewSimulatedExecutor()

	candidates, err := executor.Search(context.Background(), "acme shoes", nil, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(candidates), 1)
}

func TestSimulatedExecutor_ExcludesDomains(t *testing.T) {
	t.Parallel()

	executor := NewSimulatedExecutor()
	ctx := context.Background()

	baseline, err := executor.Search(ctx, "globex watches", nil, 10)
	require.NoError(t, err)
	for _, cand := range baseline {
		u, err := url.Parse(cand.URL)
		require.NoError(t, err)
		assert.NotEmpty(t, u.Host)
	}

	// Excluding every simulated domain must filter the result set down to
	// nothing, whatever the keyword hashed to.
	exclude := make([]string, 0, len(simulatedPlatforms))
	for _, entry := range simulatedPlatforms {
		exclude = append(exclude, entry.domain)
	}

	filtered, err := executor.Search(ctx, "globex watches", exclude, 10)
	require.NoError(t, err)
	assert.Empty(t, filtered)
}
