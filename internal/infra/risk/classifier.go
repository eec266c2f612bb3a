package risk

import (
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/sentryline/brandscan/internal/domain/scanning"
)

var _ scanning.CandidateClassifier = (*Classifier)(nil)

// Classifier maps accepted candidates onto detection channels and risk
// floors using a compiled policy. It is stateless and safe for concurrent
// use by every live run.
type Classifier struct {
	policy *compiledPolicy
}

// NewClassifier builds a classifier from the embedded default policy.
func NewClassifier() (*Classifier, error) {
	policy, err := DefaultPolicy()
	if err != nil {
		return nil, err
	}
	return &Classifier{policy: policy}, nil
}

// NewClassifierFromFile builds a classifier from a policy file, letting
// deployments tune routing and risk markers without a rebuild.
func NewClassifierFromFile(path string) (*Classifier, error) {
	policy, err := LoadPolicyFile(path)
	if err != nil {
		return nil, err
	}
	return &Classifier{policy: policy}, nil
}

// Classify routes the candidate to a channel and derives its risk floor.
// NewSite is left false; only the caller's per-run state can decide it.
func (c *Classifier) Classify(keyword string, cand scanning.Candidate) scanning.DetectionAssessment {
	method := c.routeChannel(cand)

	assessment := scanning.DetectionAssessment{
		Method:     method,
		Image:      method == scanning.MethodImageSearch || method == scanning.MethodReverseImage,
		Compliance: c.matchesAny(c.policy.compliance, cand),
		RiskFloor:  c.riskFloor(cand),
	}
	if assessment.Compliance && method == c.policy.defaultMethod {
		assessment.Method = scanning.MethodComplianceContacts
	}
	return assessment
}

// routeChannel picks the first channel whose platform set or patterns match.
// Rule order in the policy is precedence. Routing looks at what the page is
// (platform, URL, title), not at snippet content.
func (c *Classifier) routeChannel(cand scanning.Candidate) scanning.MethodKind {
	platform := strings.ToLower(cand.SourcePlatform)
	for _, channel := range c.policy.channels {
		if _, ok := channel.platforms[platform]; ok {
			return channel.method
		}
		for _, re := range channel.patterns {
			if re.MatchString(cand.SourcePlatform) || re.MatchString(cand.URL) || re.MatchString(cand.Title) {
				return channel.method
			}
		}
	}
	return c.policy.defaultMethod
}

func (c *Classifier) riskFloor(cand scanning.Candidate) scanning.RiskLevel {
	if c.matchesAny(c.policy.critical, cand) {
		return scanning.RiskLevelCritical
	}
	switch {
	case cand.Confidence >= c.policy.highConfidence:
		return scanning.RiskLevelHigh
	case cand.Confidence >= c.policy.mediumConfidence:
		return scanning.RiskLevelMedium
	default:
		return scanning.RiskLevelLow
	}
}

// matchesAny applies content markers against URL, title, and snippet.
func (c *Classifier) matchesAny(markers []compiledMarker, cand scanning.Candidate) bool {
	for _, marker := range markers {
		for _, re := range marker.patterns {
			if re.MatchString(cand.URL) || re.MatchString(cand.Title) || re.MatchString(cand.Snippet) {
				return true
			}
		}
	}
	return false
}
