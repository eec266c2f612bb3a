package scanning

// Insights is the derived rollup a run maintains as detections accumulate.
// It is a value type: snapshots hand out copies, never the live struct.
type Insights struct {
	LinksAnalyzed      int       `json:"links_analyzed"`
	SitesFound         int       `json:"sites_found"`
	ConfirmedLeaks     int       `json:"confirmed_leaks"`
	ImagesScanned      int       `json:"images_scanned"`
	ComplianceContacts int       `json:"compliance_contacts"`
	RiskLevel          RiskLevel `json:"risk_level"`
}

// EscalateRisk raises the risk level to at least the given level. The level
// is monotone within a run.
func (i *Insights) EscalateRisk(level RiskLevel) {
	i.RiskLevel = i.RiskLevel.Max(level)
}
