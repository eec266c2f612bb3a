package scanning

import (
	"time"

	"github.com/google/uuid"
)

// Candidate is one match returned by the search executor for a keyword.
// Confidence is the executor's 0-100 score; the subsystem treats it as
// opaque beyond floor filtering and risk escalation.
type Candidate struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Snippet        string `json:"snippet"`
	Confidence     int    `json:"confidence"`
	SourcePlatform string `json:"source_platform"`
}

// Detection is a candidate that survived the confidence floor and URL dedup
// and was persisted for the target.
type Detection struct {
	id             uuid.UUID
	scanID         uuid.UUID
	targetRef      string
	keyword        string
	url            string
	title          string
	snippet        string
	confidence     int
	sourcePlatform string
	method         MethodKind
	foundAt        time.Time
}

// NewDetection records an accepted candidate against the target.
func NewDetection(scanID uuid.UUID, targetRef, keyword string, cand Candidate, method MethodKind, foundAt time.Time) *Detection {
	return &Detection{
		id:             uuid.New(),
		scanID:         scanID,
		targetRef:      targetRef,
		keyword:        keyword,
		url:            cand.URL,
		title:          cand.Title,
		snippet:        cand.Snippet,
		confidence:     cand.Confidence,
		sourcePlatform: cand.SourcePlatform,
		method:         method,
		foundAt:        foundAt,
	}
}

// ReconstructDetection restores a Detection from stored fields. This should
// only be used by repositories when loading from the DB.
func ReconstructDetection(
	id, scanID uuid.UUID,
	targetRef, keyword, url, title, snippet string,
	confidence int,
	sourcePlatform string,
	method MethodKind,
	foundAt time.Time,
) *Detection {
	return &Detection{
		id:             id,
		scanID:         scanID,
		targetRef:      targetRef,
		keyword:        keyword,
		url:            url,
		title:          title,
		snippet:        snippet,
		confidence:     confidence,
		sourcePlatform: sourcePlatform,
		method:         method,
		foundAt:        foundAt,
	}
}

func (d *Detection) ID() uuid.UUID          { return d.id }
func (d *Detection) ScanID() uuid.UUID      { return d.scanID }
func (d *Detection) TargetRef() string      { return d.targetRef }
func (d *Detection) Keyword() string        { return d.keyword }
func (d *Detection) URL() string            { return d.url }
func (d *Detection) Title() string          { return d.title }
func (d *Detection) Snippet() string        { return d.snippet }
func (d *Detection) Confidence() int        { return d.confidence }
func (d *Detection) SourcePlatform() string { return d.sourcePlatform }
func (d *Detection) Method() MethodKind     { return d.method }
func (d *Detection) FoundAt() time.Time     { return d.foundAt }

// DetectionsNotice summarizes a finished run's new detections for
// fire-and-forget notification delivery.
type DetectionsNotice struct {
	ScanID        uuid.UUID `json:"scan_id"`
	UserID        string    `json:"user_id"`
	TargetRef     string    `json:"target_ref"`
	NewDetections int       `json:"new_detections"`
	RiskLevel     RiskLevel `json:"risk_level"`
}
