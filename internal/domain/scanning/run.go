package scanning

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScanRun is the live execution record of an admitted, started job. Exactly
// one orchestrator goroutine mutates a run; every other component observes it
// through point-in-time snapshots.
//
// Progress phases advance as keyword progress crosses configured thresholds,
// one phase at a time, so progress hits 100 exactly when the run completes.
type ScanRun struct {
	mu sync.RWMutex

	scanID    uuid.UUID
	queueID   uuid.UUID
	userID    string
	targetRef string

	phase             RunPhase
	processedKeywords int
	totalKeywords     int
	progressPct       int
	currentActivity   string

	methods       *methodSet
	insights      Insights
	activities    *activityLog
	errorCount    int
	newDetections int

	analyzingThreshold int
	verifyingThreshold int

	startedAt    time.Time
	updatedAt    time.Time
	completedAt  time.Time
	timeProvider TimeProvider
}

// RunOption customizes run construction.
type RunOption func(*ScanRun)

// WithRunTimeProvider lets tests control the run's clock.
func WithRunTimeProvider(tp TimeProvider) RunOption {
	return func(r *ScanRun) { r.timeProvider = tp }
}

// WithActivityCapacity overrides the bounded activity log size.
func WithActivityCapacity(capacity int) RunOption {
	return func(r *ScanRun) { r.activities = newActivityLog(capacity) }
}

// WithPhaseThresholds overrides the progress percentages at which the run
// moves into analyzing and verifying.
func WithPhaseThresholds(analyzing, verifying int) RunOption {
	return func(r *ScanRun) {
		r.analyzingThreshold = analyzing
		r.verifyingThreshold = verifying
	}
}

// NewScanRun creates a run in the initializing phase for a job that has just
// been admitted.
func NewScanRun(scanID uuid.UUID, job *ScanJob, opts ...RunOption) *ScanRun {
	r := &ScanRun{
		scanID:             scanID,
		queueID:            job.QueueID(),
		userID:             job.UserID(),
		targetRef:          job.TargetRef(),
		phase:              RunPhaseInitializing,
		methods:            newMethodSet(),
		insights:           Insights{RiskLevel: RiskLevelLow},
		analyzingThreshold: 60,
		verifyingThreshold: 85,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.timeProvider == nil {
		r.timeProvider = new(realTimeProvider)
	}
	if r.activities == nil {
		r.activities = newActivityLog(defaultActivityCap)
	}
	r.startedAt = r.timeProvider.Now()
	r.updatedAt = r.startedAt
	r.currentActivity = "Resolving keywords"
	r.addActivity(ActivityInfo, "Initializing scan")
	return r
}

// ScanID returns the run's identifier.
func (r *ScanRun) ScanID() uuid.UUID { return r.scanID }

// QueueID returns the identifier of the job this run executes.
func (r *ScanRun) QueueID() uuid.UUID { return r.queueID }

// TargetRef returns the monitored target the run scans.
func (r *ScanRun) TargetRef() string { return r.targetRef }

// BeginSearching fixes the keyword plan and moves the run out of
// initializing. A zero-keyword plan is not an error; the caller is expected
// to complete the run immediately.
func (r *ScanRun) BeginSearching(totalKeywords int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != RunPhaseInitializing {
		return NewRunInvalidStateError(r.scanID, r.phase, "begin searching")
	}
	if totalKeywords < 0 {
		return fmt.Errorf("negative keyword count %d", totalKeywords)
	}

	r.totalKeywords = totalKeywords
	if err := r.stepPhase(RunPhaseSearching); err != nil {
		return err
	}
	r.addActivity(ActivityInfo, fmt.Sprintf("Search plan fixed: %d keywords", totalKeywords))
	r.touch()
	return nil
}

// StartKeyword marks a keyword as in flight and surfaces it as the current
// activity.
func (r *ScanRun) StartKeyword(keyword string, index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase.IsTerminal() || r.phase == RunPhaseInitializing {
		return NewRunInvalidStateError(r.scanID, r.phase, "start keyword")
	}

	activity := fmt.Sprintf("Processing keyword %d of %d: %q", index+1, r.totalKeywords, keyword)
	r.currentActivity = activity
	r.addActivity(ActivityInfo, activity)
	r.touch()
	return nil
}

// RecordKeywordFailure notes a per-keyword search failure. The run continues;
// only the error counter and activity feed carry the evidence.
func (r *ScanRun) RecordKeywordFailure(keyword string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase.IsTerminal() {
		return NewRunInvalidStateError(r.scanID, r.phase, "record keyword failure")
	}

	r.errorCount++
	r.addActivity(ActivityWarning, fmt.Sprintf("Search failed for %q: %v", keyword, cause))
	r.touch()
	return nil
}

// CountLink counts one candidate as analysed regardless of whether it is
// kept.
func (r *ScanRun) CountLink() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase.IsTerminal() {
		return
	}
	r.insights.LinksAnalyzed++
	r.touch()
}

// DetectionAssessment carries the analyzer's classification of an accepted
// candidate so the run can update its rollups mechanically.
type DetectionAssessment struct {
	Method     MethodKind
	NewSite    bool
	Image      bool
	Compliance bool
	RiskFloor  RiskLevel
}

// ApplyDetection folds one persisted detection into methods and insights and
// appends a detection activity entry.
func (r *ScanRun) ApplyDetection(url string, assessment DetectionAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase.IsTerminal() {
		return NewRunInvalidStateError(r.scanID, r.phase, "apply detection")
	}

	r.newDetections++
	r.methods.record(assessment.Method)
	r.insights.ConfirmedLeaks++
	if assessment.NewSite {
		r.insights.SitesFound++
	}
	if assessment.Image {
		r.insights.ImagesScanned++
	}
	if assessment.Compliance {
		r.insights.ComplianceContacts++
	}
	r.insights.EscalateRisk(assessment.RiskFloor)
	r.addActivity(ActivityDetection, fmt.Sprintf("New detection via %s: %s", assessment.Method, url))
	r.touch()
	return nil
}

// RecordSaveFailure notes that persisting one accepted result failed. At most
// that result is lost, never the run.
func (r *ScanRun) RecordSaveFailure(url string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase.IsTerminal() {
		return
	}
	r.errorCount++
	r.addActivity(ActivityWarning, fmt.Sprintf("Could not persist result %s: %v", url, cause))
	r.touch()
}

// FinishKeyword advances the processed count, recomputes progress and steps
// any phase milestone the new progress crosses. The final keyword leaves
// progress untouched; Complete owns the move to 100 so observers never see
// a full progress bar on an unfinished run.
func (r *ScanRun) FinishKeyword() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase.IsTerminal() || r.phase == RunPhaseInitializing {
		return NewRunInvalidStateError(r.scanID, r.phase, "finish keyword")
	}
	if r.processedKeywords >= r.totalKeywords {
		return fmt.Errorf("keyword overflow: %d of %d already processed", r.processedKeywords, r.totalKeywords)
	}

	r.processedKeywords++
	if r.processedKeywords < r.totalKeywords {
		r.progressPct = progressFor(r.processedKeywords, r.totalKeywords)
		if err := r.advanceMilestones(); err != nil {
			return err
		}
	}
	r.touch()
	return nil
}

// Complete finishes the run: any remaining progress phases are stepped in
// order, progress reaches 100 and the summary lands in the activity feed.
func (r *ScanRun) Complete() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase.IsTerminal() {
		return NewRunInvalidStateError(r.scanID, r.phase, "complete")
	}

	for r.phase != RunPhaseCompleted {
		if err := r.stepPhase(r.phase.next()); err != nil {
			return err
		}
	}

	r.progressPct = 100
	r.currentActivity = ""
	r.methods.markAllCompleted()
	r.completedAt = r.timeProvider.Now()
	r.addActivity(ActivityMilestone,
		fmt.Sprintf("Scan completed: %d new detections across %d keywords", r.newDetections, r.totalKeywords))
	r.touch()
	return nil
}

// MarkCancelled ends the run at the current keyword boundary. Progress stays
// frozen where execution stopped.
func (r *ScanRun) MarkCancelled(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase.IsTerminal() {
		return NewRunInvalidStateError(r.scanID, r.phase, "cancel")
	}

	if err := r.phase.ValidateTransition(RunPhaseCancelled); err != nil {
		return err
	}
	r.phase = RunPhaseCancelled
	r.currentActivity = ""
	r.completedAt = r.timeProvider.Now()
	r.addActivity(ActivityMilestone,
		fmt.Sprintf("Scan cancelled after %d of %d keywords: %s", r.processedKeywords, r.totalKeywords, reason))
	r.touch()
	return nil
}

// Fail ends the run with an unrecoverable error. The cause becomes the run's
// last activity entry.
func (r *ScanRun) Fail(cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase.IsTerminal() {
		return NewRunInvalidStateError(r.scanID, r.phase, "fail")
	}

	if err := r.phase.ValidateTransition(RunPhaseFailed); err != nil {
		return err
	}
	r.phase = RunPhaseFailed
	r.currentActivity = ""
	r.completedAt = r.timeProvider.Now()
	r.errorCount++
	r.addActivity(ActivityError, fmt.Sprintf("Scan failed: %v", cause))
	r.touch()
	return nil
}

// Cancelled reports whether the run ended via cooperative stop.
func (r *ScanRun) Cancelled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase == RunPhaseCancelled
}

// Terminal reports whether the run reached any terminal phase.
func (r *ScanRun) Terminal() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase.IsTerminal()
}

// NewDetections returns how many detections this run persisted.
func (r *ScanRun) NewDetections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.newDetections
}

// RiskLevel returns the run's current risk classification.
func (r *ScanRun) RiskLevel() RiskLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.insights.RiskLevel
}

// CompletedAt returns when the run reached a terminal phase, or false while
// it is still live.
func (r *ScanRun) CompletedAt() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.completedAt.IsZero() {
		return time.Time{}, false
	}
	return r.completedAt, true
}

// StartedAt returns when the run was created.
func (r *ScanRun) StartedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startedAt
}

// advanceMilestones steps the run through any phase boundary the current
// progress has crossed, one phase at a time. It never enters completed.
func (r *ScanRun) advanceMilestones() error {
	for {
		var target RunPhase
		switch {
		case r.phase == RunPhaseSearching && r.progressPct >= r.analyzingThreshold:
			target = RunPhaseAnalyzing
		case r.phase == RunPhaseAnalyzing && r.progressPct >= r.verifyingThreshold:
			target = RunPhaseVerifying
		default:
			return nil
		}
		if err := r.stepPhase(target); err != nil {
			return err
		}
	}
}

// stepPhase applies one validated phase transition and emits its milestone
// activity. Callers hold the write lock.
func (r *ScanRun) stepPhase(target RunPhase) error {
	if err := r.phase.ValidateTransition(target); err != nil {
		return err
	}
	r.phase = target
	switch target {
	case RunPhaseSearching:
		r.addActivity(ActivityMilestone, "Searching for brand exposure")
	case RunPhaseAnalyzing:
		r.addActivity(ActivityMilestone, "Analyzing collected results")
	case RunPhaseVerifying:
		r.addActivity(ActivityMilestone, "Verifying detections")
	case RunPhaseCompleted:
		// Complete appends the summary entry itself.
	}
	return nil
}

func (r *ScanRun) addActivity(kind ActivityKind, message string) {
	r.activities.append(ActivityEntry{
		Timestamp: r.timeProvider.Now(),
		Kind:      kind,
		Message:   message,
	})
}

func (r *ScanRun) touch() { r.updatedAt = r.timeProvider.Now() }

// progressFor computes the integer progress percentage from keyword counts.
func progressFor(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}
