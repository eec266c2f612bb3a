package keywords

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentryline/brandscan/internal/domain/scanning"
)

var _ scanning.KeywordResolver = (*DerivedResolver)(nil)

// DerivedResolver expands the target reference itself into keyword variants.
// It pairs with the simulated search executor so a bare deployment runs end
// to end with no external services.
type DerivedResolver struct{}

// NewDerivedResolver creates the dev stand-in resolver.
func NewDerivedResolver() *DerivedResolver { return &DerivedResolver{} }

var derivedPatterns = []string{
	"%s",
	"%s replica",
	"buy %s cheap",
	"%s outlet",
}

// Resolve turns "brand-profile-42" style references into a small keyword
// plan. The base term is the reference with separators flattened to spaces.
func (r *DerivedResolver) Resolve(ctx context.Context, targetRef string) ([]string, error) {
	base := strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(targetRef)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return nil, fmt.Errorf("target reference %q yields no keywords", targetRef)
	}

	keywords := make([]string, 0, len(derivedPatterns))
	for _, pattern := range derivedPatterns {
		keywords = append(keywords, fmt.Sprintf(pattern, base))
	}
	return keywords, nil
}
