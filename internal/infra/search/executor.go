// Package search adapts the search executor port onto the external
// multi-engine search service. The HTTP executor is the production path; the
// simulated executor makes the subsystem runnable with nothing else up.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

var _ scanning.SearchExecutor = (*HTTPExecutor)(nil)

// HTTPExecutor forwards keyword searches to the search service. Failures are
// returned as-is; the orchestrator records them per keyword and moves on.
type HTTPExecutor struct {
	baseURL    string
	httpClient *http.Client

	logger *logger.Logger
	tracer trace.Tracer
}

// NewHTTPExecutor creates an executor against the search service at baseURL.
func NewHTTPExecutor(baseURL string, httpClient *http.Client, log *logger.Logger, tracer trace.Tracer) *HTTPExecutor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPExecutor{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     log.With("component", "search_executor"),
		tracer:     tracer,
	}
}

type searchRequest struct {
	Keyword        string   `json:"keyword"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
	MaxResults     int      `json:"max_results"`
}

type searchResponse struct {
	Candidates []scanning.Candidate `json:"candidates"`
}

// Search runs one keyword query and returns its candidates.
func (e *HTTPExecutor) Search(ctx context.Context, keyword string, excludeDomains []string, maxResults int) ([]scanning.Candidate, error) {
	ctx, span := e.tracer.Start(ctx, "search_executor.search",
		trace.WithAttributes(
			attribute.String("keyword", keyword),
			attribute.Int("max_results", maxResults),
		))
	defer span.End()

	body, err := json.Marshal(searchRequest{
		Keyword:        keyword,
		ExcludeDomains: excludeDomains,
		MaxResults:     maxResults,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search request failed")
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		span.SetStatus(codes.Error, "non-200 response")
		return nil, fmt.Errorf("search service returned %d for %q: %s", resp.StatusCode, keyword, data)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode search response for %q: %w", keyword, err)
	}

	candidates := result.Candidates
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	span.SetAttributes(attribute.Int("candidate_count", len(candidates)))
	span.SetStatus(codes.Ok, "search completed")
	return candidates, nil
}
