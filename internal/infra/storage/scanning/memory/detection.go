package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sentryline/brandscan/internal/domain/scanning"
)

// DetectionStore is an in-memory scanning.DetectionRepository. It mirrors the
// PostgreSQL store's conflict behavior: saving a (target_ref, url) pair that
// is already recorded is a no-op.
type DetectionStore struct {
	mu         sync.Mutex
	detections []*scanning.Detection
	seen       map[targetURL]struct{}
}

type targetURL struct {
	targetRef string
	url       string
}

var _ scanning.DetectionRepository = (*DetectionStore)(nil)

// NewDetectionStore creates an empty in-memory detection repository.
func NewDetectionStore() *DetectionStore {
	return &DetectionStore{seen: make(map[targetURL]struct{})}
}

// ExistsByURL reports whether a detection with the given URL was already
// stored for the target reference.
func (s *DetectionStore) ExistsByURL(ctx context.Context, targetRef, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.seen[targetURL{targetRef: targetRef, url: url}]
	return exists, nil
}

// Save persists a single detection.
func (s *DetectionStore) Save(ctx context.Context, d *scanning.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := targetURL{targetRef: d.TargetRef(), url: d.URL()}
	if _, exists := s.seen[key]; exists {
		return nil
	}
	s.seen[key] = struct{}{}
	s.detections = append(s.detections, copyDetection(d))
	return nil
}

// ListByScan returns the detections recorded for a scan, most recent first.
func (s *DetectionStore) ListByScan(ctx context.Context, scanID uuid.UUID) ([]*scanning.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*scanning.Detection
	for _, d := range s.detections {
		if d.ScanID() == scanID {
			out = append(out, copyDetection(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FoundAt().After(out[j].FoundAt())
	})
	return out, nil
}

func copyDetection(d *scanning.Detection) *scanning.Detection {
	return scanning.ReconstructDetection(
		d.ID(),
		d.ScanID(),
		d.TargetRef(),
		d.Keyword(),
		d.URL(),
		d.Title(),
		d.Snippet(),
		d.Confidence(),
		d.SourcePlatform(),
		d.Method(),
		d.FoundAt(),
	)
}
