package scanning

// RiskLevel buckets a run's exposure based on what the scan has found so far.
// Within a run the level only escalates, never drops.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

func (r RiskLevel) String() string { return string(r) }

// rank orders levels so escalation can be expressed as a max.
func (r RiskLevel) rank() int {
	switch r {
	case RiskLevelLow:
		return 0
	case RiskLevelMedium:
		return 1
	case RiskLevelHigh:
		return 2
	case RiskLevelCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether r is at or above the given level.
func (r RiskLevel) AtLeast(other RiskLevel) bool { return r.rank() >= other.rank() }

// Max returns the higher of the two levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

// ParseRiskLevel converts a string to a RiskLevel.
func ParseRiskLevel(s string) RiskLevel {
	switch s {
	case "LOW":
		return RiskLevelLow
	case "MEDIUM":
		return RiskLevelMedium
	case "HIGH":
		return RiskLevelHigh
	case "CRITICAL":
		return RiskLevelCritical
	default:
		return "" // represents unspecified
	}
}
