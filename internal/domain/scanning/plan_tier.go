package scanning

import "fmt"

// PlanTier identifies the fairness and priority class a job is admitted
// under. Scheduling weights and concurrency limits per tier are deployment
// configuration, not domain constants.
type PlanTier string

const (
	PlanTierFree       PlanTier = "FREE"
	PlanTierBasic      PlanTier = "BASIC"
	PlanTierPro        PlanTier = "PRO"
	PlanTierEnterprise PlanTier = "ENTERPRISE"
)

func (p PlanTier) String() string { return string(p) }

// PlanTierError indicates an unrecognized plan tier.
type PlanTierError struct{ Tier string }

func (e *PlanTierError) Error() string {
	return fmt.Sprintf("invalid plan tier: %s", e.Tier)
}

var allPlanTiers = []PlanTier{PlanTierFree, PlanTierBasic, PlanTierPro, PlanTierEnterprise}

// ParsePlanTier converts a string to a PlanTier, rejecting unknown values.
func ParsePlanTier(s string) (PlanTier, error) {
	for _, tier := range allPlanTiers {
		if string(tier) == s {
			return tier, nil
		}
	}
	return "", &PlanTierError{Tier: s}
}
