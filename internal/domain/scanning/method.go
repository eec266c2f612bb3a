package scanning

// MethodKind names one of the fixed detection channels a scan run drives.
type MethodKind string

const (
	MethodTargetedSites      MethodKind = "targeted_sites"
	MethodSearchEngines      MethodKind = "search_engines"
	MethodImageSearch        MethodKind = "image_search"
	MethodReverseImage       MethodKind = "reverse_image"
	MethodNichePlatforms     MethodKind = "niche_platforms"
	MethodComplianceContacts MethodKind = "compliance_contacts"
)

func (m MethodKind) String() string { return string(m) }

// ParseMethodKind converts a string to a MethodKind, rejecting values outside
// the fixed channel set.
func ParseMethodKind(s string) (MethodKind, error) {
	for _, kind := range AllMethodKinds() {
		if s == string(kind) {
			return kind, nil
		}
	}
	return "", &MethodKindError{Kind: s}
}

// MethodKindError indicates an unrecognized detection channel name.
type MethodKindError struct{ Kind string }

func (e *MethodKindError) Error() string {
	return "unknown detection method: " + e.Kind
}

// AllMethodKinds returns the fixed channel set in presentation order.
func AllMethodKinds() []MethodKind {
	return []MethodKind{
		MethodTargetedSites,
		MethodSearchEngines,
		MethodImageSearch,
		MethodReverseImage,
		MethodNichePlatforms,
		MethodComplianceContacts,
	}
}

// MethodStatus is the externally visible state of one detection channel.
type MethodStatus struct {
	Kind      MethodKind `json:"kind"`
	Completed bool       `json:"completed"`
	Count     int        `json:"count"`
}

// methodSet tracks per-channel completion and hit counts for one run.
// The zero kind map is created lazily so callers never mutate a nil map.
type methodSet struct {
	counts    map[MethodKind]int
	completed map[MethodKind]bool
}

func newMethodSet() *methodSet {
	return &methodSet{
		counts:    make(map[MethodKind]int, 6),
		completed: make(map[MethodKind]bool, 6),
	}
}

func (m *methodSet) record(kind MethodKind) { m.counts[kind]++ }

func (m *methodSet) markCompleted(kind MethodKind) { m.completed[kind] = true }

func (m *methodSet) markAllCompleted() {
	for _, kind := range AllMethodKinds() {
		m.completed[kind] = true
	}
}

// statuses returns an ordered snapshot of every channel.
func (m *methodSet) statuses() []MethodStatus {
	out := make([]MethodStatus, 0, 6)
	for _, kind := range AllMethodKinds() {
		out = append(out, MethodStatus{
			Kind:      kind,
			Completed: m.completed[kind],
			Count:     m.counts[kind],
		})
	}
	return out
}
