package scanning

import "time"

// ActivityKind labels an activity log entry so observers can render and
// filter the feed.
type ActivityKind string

const (
	ActivityInfo      ActivityKind = "info"
	ActivityWarning   ActivityKind = "warning"
	ActivityError     ActivityKind = "error"
	ActivityDetection ActivityKind = "detection"
	ActivityMilestone ActivityKind = "milestone"
)

// ActivityEntry is one timestamped event in a run's activity feed.
type ActivityEntry struct {
	Timestamp time.Time    `json:"timestamp"`
	Kind      ActivityKind `json:"kind"`
	Message   string       `json:"message"`
}

// activityLog is a bounded ring of activity entries. Appends evict the oldest
// entry once the cap is reached so a long run cannot grow memory unbounded.
type activityLog struct {
	entries []ActivityEntry
	start   int
	size    int
}

const defaultActivityCap = 50

func newActivityLog(capacity int) *activityLog {
	if capacity <= 0 {
		capacity = defaultActivityCap
	}
	return &activityLog{entries: make([]ActivityEntry, capacity)}
}

func (l *activityLog) append(entry ActivityEntry) {
	capacity := len(l.entries)
	idx := (l.start + l.size) % capacity
	l.entries[idx] = entry
	if l.size < capacity {
		l.size++
		return
	}
	// Full: the slot just written replaced the oldest entry.
	l.start = (l.start + 1) % capacity
}

// recent returns up to limit entries, most recent first. A non-positive limit
// returns everything retained.
func (l *activityLog) recent(limit int) []ActivityEntry {
	if limit <= 0 || limit > l.size {
		limit = l.size
	}
	out := make([]ActivityEntry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (l.start + l.size - 1 - i) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}
