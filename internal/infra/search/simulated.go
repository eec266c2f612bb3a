package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/sentryline/brandscan/internal/domain/scanning"
)

var _ scanning.SearchExecutor = (*SimulatedExecutor)(nil)

// SimulatedExecutor produces deterministic pseudo-results derived from the
// keyword alone, so a dev deployment exercises the full run pipeline without
// a search service. The same keyword always yields the same candidates.
type SimulatedExecutor struct{}

// NewSimulatedExecutor creates the dev stand-in executor.
func NewSimulatedExecutor() *SimulatedExecutor { return &SimulatedExecutor{} }

var simulatedPlatforms = []struct {
	domain   string
	platform string
	title    string
	snippet  string
}{
	{"shopfinds.example.com", "marketplace", "%s at outlet prices", "Huge discounts on %s, limited stock available."},
	{"dealzone.example.net", "marketplace", "Buy %s cheap online", "Best replica %s, ships worldwide."},
	{"blogspot.example.org", "web", "Review: %s alternatives", "We compared %s with budget options."},
	{"images.example.io", "image_search", "%s product photos", "Gallery of %s images collected from resellers."},
	{"auctionhub.example.com", "auction", "%s auction listings", "Live auctions for %s ending soon."},
}

// Search derives up to maxResults candidates from a hash of the keyword.
// Excluded domains are honored so the orchestrator's pass-through is visible
// in dev runs.
func (e *SimulatedExecutor) Search(ctx context.Context, keyword string, excludeDomains []string, maxResults int) ([]scanning.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New32a()
	h.Write([]byte(keyword))
	seed := h.Sum32()

	count := int(seed % uint32(len(simulatedPlatforms)+1))
	if count > maxResults {
		count = maxResults
	}

	excluded := make(map[string]struct{}, len(excludeDomains))
	for _, d := range excludeDomains {
		excluded[d] = struct{}{}
	}

	slug := strings.ReplaceAll(strings.ToLower(keyword), " ", "-")
	candidates := make([]scanning.Candidate, 0, count)
	for i := 0; i < count; i++ {
		entry := simulatedPlatforms[(int(seed)+i)%len(simulatedPlatforms)]
		if _, skip := excluded[entry.domain]; skip {
			continue
		}

		confidence := int((seed>>uint(i%8))%61) + 40
		candidates = append(candidates, scanning.Candidate{
			URL:            fmt.Sprintf("https://%s/items/%s-%d", entry.domain, slug, i),
			Title:          fmt.Sprintf(entry.title, keyword),
			Snippet:        fmt.Sprintf(entry.snippet, keyword),
			Confidence:     confidence,
			SourcePlatform: entry.platform,
		})
	}
	return candidates, nil
}
