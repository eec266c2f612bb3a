package queue

import (
	"time"

	domain "github.com/sentryline/brandscan/internal/domain/scanning"
)

// sample records one terminal outcome for the rolling metrics window.
type sample struct {
	at     time.Time
	status domain.JobStatus
	tier   domain.PlanTier
	wait   time.Duration
	run    time.Duration
}

// windowStats is the aggregate computed over live samples.
type windowStats struct {
	avgWait        time.Duration
	completionRate float64
	errorRate      float64
}

// metricsWindow keeps terminal outcomes for the configured duration and
// derives queue health aggregates from them. Callers hold the queue lock.
type metricsWindow struct {
	window  time.Duration
	samples []sample
}

func newMetricsWindow(window time.Duration) *metricsWindow {
	return &metricsWindow{window: window}
}

func (w *metricsWindow) add(s sample) {
	w.samples = append(w.samples, s)
}

// prune drops samples older than the window. Samples arrive in time order so
// a prefix cut suffices.
func (w *metricsWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	keep := 0
	for keep < len(w.samples) && w.samples[keep].at.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		w.samples = append(w.samples[:0], w.samples[keep:]...)
	}
}

// stats aggregates the live samples. Rates are fractions of terminal
// outcomes inside the window; an empty window yields zeroes.
func (w *metricsWindow) stats(now time.Time) windowStats {
	w.prune(now)

	var out windowStats
	if len(w.samples) == 0 {
		return out
	}

	var totalWait time.Duration
	started, completed, failed := 0, 0, 0
	for _, s := range w.samples {
		switch s.status {
		case domain.JobStatusCompleted:
			completed++
		case domain.JobStatusError:
			failed++
		}
		if s.run > 0 || s.status == domain.JobStatusCompleted || s.status == domain.JobStatusError {
			totalWait += s.wait
			started++
		}
	}

	if started > 0 {
		out.avgWait = totalWait / time.Duration(started)
	}
	total := len(w.samples)
	out.completionRate = float64(completed) / float64(total)
	out.errorRate = float64(failed) / float64(total)
	return out
}

// avgRunDuration returns the mean run duration across completed samples in
// the window, or fallback when none exist.
func (w *metricsWindow) avgRunDuration(now time.Time, fallback time.Duration) time.Duration {
	w.prune(now)

	var total time.Duration
	count := 0
	for _, s := range w.samples {
		if s.run > 0 {
			total += s.run
			count++
		}
	}
	if count == 0 {
		return fallback
	}
	return total / time.Duration(count)
}
