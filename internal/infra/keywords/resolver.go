// Package keywords adapts the keyword resolver port onto the external brand
// profile service. The HTTP resolver is the production path; the static
// resolver serves local development from a fixture file.
package keywords

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

var _ scanning.KeywordResolver = (*HTTPResolver)(nil)

// HTTPResolver fetches a target's keyword plan from the brand profile
// service. Resolution happens once per run, so there is no retry here; a
// failure surfaces as a ResolverFailureError and fails the run.
type HTTPResolver struct {
	baseURL    string
	httpClient *http.Client

	logger *logger.Logger
	tracer trace.Tracer
}

// NewHTTPResolver creates a resolver against the profile service at baseURL.
func NewHTTPResolver(baseURL string, httpClient *http.Client, log *logger.Logger, tracer trace.Tracer) *HTTPResolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPResolver{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     log.With("component", "keyword_resolver"),
		tracer:     tracer,
	}
}

type keywordPlanResponse struct {
	Keywords []string `json:"keywords"`
}

// Resolve returns the keywords the profile service derived for the target.
func (r *HTTPResolver) Resolve(ctx context.Context, targetRef string) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "keyword_resolver.resolve",
		trace.WithAttributes(attribute.String("target_ref", targetRef)))
	defer span.End()

	endpoint := fmt.Sprintf("%s/v1/profiles/%s/keywords", r.baseURL, url.PathEscape(targetRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create keyword plan request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "keyword plan request failed")
		return nil, fmt.Errorf("fetch keyword plan for %s: %w", targetRef, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		span.SetStatus(codes.Error, "non-200 response")
		return nil, fmt.Errorf("profile service returned %d for %s: %s", resp.StatusCode, targetRef, data)
	}

	var plan keywordPlanResponse
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode keyword plan for %s: %w", targetRef, err)
	}

	span.SetAttributes(attribute.Int("keyword_count", len(plan.Keywords)))
	span.SetStatus(codes.Ok, "keyword plan resolved")
	return plan.Keywords, nil
}

var _ scanning.KeywordResolver = (*StaticResolver)(nil)

// StaticResolver serves keyword plans from an in-memory table. It backs
// local development when no profile service is reachable.
type StaticResolver struct {
	plans map[string][]string
}

// NewStaticResolver creates a resolver over a fixed target-to-keywords table.
func NewStaticResolver(plans map[string][]string) *StaticResolver {
	return &StaticResolver{plans: plans}
}

type fixtureFile struct {
	Profiles map[string]struct {
		Keywords []string `yaml:"keywords"`
	} `yaml:"profiles"`
}

// NewStaticResolverFromFile loads the fixture table from a yaml file.
func NewStaticResolverFromFile(path string) (*StaticResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword fixture %s: %w", path, err)
	}

	var fixture fixtureFile
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("parse keyword fixture %s: %w", path, err)
	}

	plans := make(map[string][]string, len(fixture.Profiles))
	for targetRef, profile := range fixture.Profiles {
		plans[targetRef] = profile.Keywords
	}
	return NewStaticResolver(plans), nil
}

// Resolve returns the fixture plan for the target. Unknown targets are an
// error so a typo'd target reference fails the run instead of silently
// scanning nothing.
func (r *StaticResolver) Resolve(ctx context.Context, targetRef string) ([]string, error) {
	plan, ok := r.plans[targetRef]
	if !ok {
		return nil, fmt.Errorf("no keyword plan for target %q", targetRef)
	}
	out := make([]string, len(plan))
	copy(out, plan)
	return out, nil
}
