package scanning

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRun(t *testing.T, opts ...RunOption) *ScanRun {
	t.Helper()
	job := NewScanJob(uuid.New(), "user-1", PlanTierFree, "brand-profile-42")
	return NewScanRun(uuid.New(), job, opts...)
}

func TestNewScanRun(t *testing.T) {
	t.Parallel()

	queueID := uuid.New()
	scanID := uuid.New()
	job := NewScanJob(queueID, "user-9", PlanTierEnterprise, "brand-profile-9")

	run := NewScanRun(scanID, job)
	snap := run.Snapshot()

	assert.Equal(t, scanID, snap.ScanID)
	assert.Equal(t, queueID, snap.QueueID)
	assert.Equal(t, "user-9", snap.UserID)
	assert.Equal(t, "brand-profile-9", snap.TargetRef)
	assert.Equal(t, RunPhaseInitializing, snap.Progress.Phase)
	assert.Equal(t, 0, snap.Progress.ProgressPct)
	assert.Equal(t, "Resolving keywords", snap.Progress.CurrentActivity)
	assert.Equal(t, RiskLevelLow, snap.Insights.RiskLevel)
	assert.False(t, snap.Terminal)
	assert.Len(t, snap.Methods, 6)
	for _, method := range snap.Methods {
		assert.False(t, method.Completed)
		assert.Zero(t, method.Count)
	}
}

func TestScanRun_BeginSearching(t *testing.T) {
	t.Parallel()

	run := newTestRun(t)

	require.NoError(t, run.BeginSearching(5))

	snap := run.Snapshot()
	assert.Equal(t, RunPhaseSearching, snap.Progress.Phase)
	assert.Equal(t, 5, snap.Progress.TotalKeywords)
	assert.Equal(t, 0, snap.Progress.ProcessedKeywords)

	// Only valid from initializing.
	err := run.BeginSearching(5)
	var stateErr *RunInvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestScanRun_KeywordProgression(t *testing.T) {
	t.Parallel()

	// Ten keywords with default thresholds: analyzing at 60, verifying at 85.
	run := newTestRun(t)
	require.NoError(t, run.BeginSearching(10))

	expected := []struct {
		pct   int
		phase RunPhase
	}{
		{pct: 10, phase: RunPhaseSearching},
		{pct: 20, phase: RunPhaseSearching},
		{pct: 30, phase: RunPhaseSearching},
		{pct: 40, phase: RunPhaseSearching},
		{pct: 50, phase: RunPhaseSearching},
		{pct: 60, phase: RunPhaseAnalyzing},
		{pct: 70, phase: RunPhaseAnalyzing},
		{pct: 80, phase: RunPhaseAnalyzing},
		{pct: 90, phase: RunPhaseVerifying},
		// The final keyword leaves progress parked until Complete.
		{pct: 90, phase: RunPhaseVerifying},
	}

	for i, want := range expected {
		require.NoError(t, run.StartKeyword(fmt.Sprintf("kw-%d", i), i))
		require.NoError(t, run.FinishKeyword())

		snap := run.Snapshot()
		assert.Equal(t, want.pct, snap.Progress.ProgressPct, "after keyword %d", i+1)
		assert.Equal(t, want.phase, snap.Progress.Phase, "after keyword %d", i+1)
		assert.Equal(t, i+1, snap.Progress.ProcessedKeywords)
	}

	require.NoError(t, run.Complete())

	snap := run.Snapshot()
	assert.Equal(t, 100, snap.Progress.ProgressPct)
	assert.Equal(t, RunPhaseCompleted, snap.Progress.Phase)
	assert.Empty(t, snap.Progress.CurrentActivity)
	assert.True(t, snap.Terminal)
	for _, method := range snap.Methods {
		assert.True(t, method.Completed)
	}
}

func TestScanRun_ProgressMonotoneAndFullOnlyWhenCompleted(t *testing.T) {
	t.Parallel()

	run := newTestRun(t)
	require.NoError(t, run.BeginSearching(7))

	lastPct := 0
	check := func() {
		snap := run.Snapshot()
		require.GreaterOrEqual(t, snap.Progress.ProgressPct, lastPct, "progress must never decrease")
		lastPct = snap.Progress.ProgressPct
		if snap.Progress.ProgressPct == 100 {
			require.Equal(t, RunPhaseCompleted, snap.Progress.Phase, "only a completed run shows 100")
		}
		if snap.Progress.Phase == RunPhaseCompleted {
			require.Equal(t, 100, snap.Progress.ProgressPct, "a completed run always shows 100")
		}
	}

	check()
	for i := 0; i < 7; i++ {
		require.NoError(t, run.StartKeyword(fmt.Sprintf("kw-%d", i), i))
		check()
		require.NoError(t, run.FinishKeyword())
		check()
	}
	require.NoError(t, run.Complete())
	check()
	assert.Equal(t, 100, lastPct)
}

func TestScanRun_EmptyKeywordPlan(t *testing.T) {
	t.Parallel()

	run := newTestRun(t)
	require.NoError(t, run.BeginSearching(0))
	require.NoError(t, run.Complete())

	snap := run.Snapshot()
	assert.Equal(t, RunPhaseCompleted, snap.Progress.Phase)
	assert.Equal(t, 100, snap.Progress.ProgressPct)
	assert.Equal(t, 0, snap.Progress.ProcessedKeywords)
	assert.Equal(t, 0, snap.Progress.TotalKeywords)
	assert.Zero(t, snap.NewDetections)
	assert.True(t, snap.Terminal)
}

func TestScanRun_CancelFreezesProgress(t *testing.T) {
	t.Parallel()

	run := newTestRun(t)
	require.NoError(t, run.BeginSearching(3))

	require.NoError(t, run.StartKeyword("kw-0", 0))
	require.NoError(t, run.FinishKeyword())

	before := run.Snapshot()
	require.Equal(t, 33, before.Progress.ProgressPct)

	require.NoError(t, run.MarkCancelled("stop requested"))

	snap := run.Snapshot()
	assert.Equal(t, RunPhaseCancelled, snap.Progress.Phase)
	assert.Equal(t, 33, snap.Progress.ProgressPct)
	assert.Equal(t, 1, snap.Progress.ProcessedKeywords)
	assert.Equal(t, 3, snap.Progress.TotalKeywords)
	assert.True(t, snap.Terminal)
	assert.True(t, run.Cancelled())

	// A cancelled run admits no further keyword work.
	require.Error(t, run.FinishKeyword())
	require.Error(t, run.MarkCancelled("again"))
}

func TestScanRun_FailRecordsCause(t *testing.T) {
	t.Parallel()

	run := newTestRun(t)
	require.NoError(t, run.BeginSearching(4))

	cause := errors.New("keyword resolution expired")
	require.NoError(t, run.Fail(cause))

	snap := run.Snapshot()
	assert.Equal(t, RunPhaseFailed, snap.Progress.Phase)
	assert.True(t, snap.Terminal)
	assert.Equal(t, 1, snap.Progress.ErrorCount)
	assert.False(t, run.Cancelled())

	require.NotEmpty(t, snap.Activities)
	last := snap.Activities[0]
	assert.Equal(t, ActivityError, last.Kind)
	assert.Contains(t, last.Message, "keyword resolution expired")
}

func TestScanRun_FailFromInitializing(t *testing.T) {
	t.Parallel()

	run := newTestRun(t)
	require.NoError(t, run.Fail(errors.New("resolver unavailable")))

	snap := run.Snapshot()
	assert.Equal(t, RunPhaseFailed, snap.Progress.Phase)
	assert.Equal(t, 0, snap.Progress.ProgressPct)
}

func TestScanRun_ApplyDetection(t *testing.T) {
	t.Parallel()

	run := newTestRun(t)
	require.NoError(t, run.BeginSearching(2))

	require.NoError(t, run.ApplyDetection("https://fake-shop.example/brand", DetectionAssessment{
		Method:    MethodSearchEngines,
		NewSite:   true,
		RiskFloor: RiskLevelMedium,
	}))
	require.NoError(t, run.ApplyDetection("https://img-host.example/logo.png", DetectionAssessment{
		Method:    MethodImageSearch,
		Image:     true,
		RiskFloor: RiskLevelHigh,
	}))
	require.NoError(t, run.ApplyDetection("https://registrar.example/abuse", DetectionAssessment{
		Method:     MethodComplianceContacts,
		Compliance: true,
		RiskFloor:  RiskLevelLow,
	}))

	snap := run.Snapshot()
	assert.Equal(t, 3, snap.NewDetections)
	assert.Equal(t, 3, snap.Insights.ConfirmedLeaks)
	assert.Equal(t, 1, snap.Insights.SitesFound)
	assert.Equal(t, 1, snap.Insights.ImagesScanned)
	assert.Equal(t, 1, snap.Insights.ComplianceContacts)
	// Risk escalates monotonically; the later LOW floor cannot lower it.
	assert.Equal(t, RiskLevelHigh, snap.Insights.RiskLevel)

	counts := make(map[MethodKind]int)
	for _, method := range snap.Methods {
		counts[method.Kind] = method.Count
	}
	assert.Equal(t, 1, counts[MethodSearchEngines])
	assert.Equal(t, 1, counts[MethodImageSearch])
	assert.Equal(t, 1, counts[MethodComplianceContacts])
	assert.Equal(t, 0, counts[MethodTargetedSites])
}

func TestScanRun_KeywordFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	run := newTestRun(t)
	require.NoError(t, run.BeginSearching(2))

	require.NoError(t, run.StartKeyword("kw-0", 0))
	require.NoError(t, run.RecordKeywordFailure("kw-0", errors.New("search backend 503")))
	require.NoError(t, run.FinishKeyword())

	snap := run.Snapshot()
	assert.Equal(t, 1, snap.Progress.ErrorCount)
	assert.False(t, snap.Terminal)
	assert.Equal(t, 1, snap.Progress.ProcessedKeywords)

	// The run still finishes normally.
	require.NoError(t, run.StartKeyword("kw-1", 1))
	require.NoError(t, run.FinishKeyword())
	require.NoError(t, run.Complete())
	assert.Equal(t, RunPhaseCompleted, run.Snapshot().Progress.Phase)
}

func TestScanRun_SaveFailureLosesOneResultOnly(t *testing.T) {
	t.Parallel()

	run := newTestRun(t)
	require.NoError(t, run.BeginSearching(1))
	require.NoError(t, run.StartKeyword("kw-0", 0))

	run.RecordSaveFailure("https://fake-shop.example/brand", errors.New("connection reset"))

	snap := run.Snapshot()
	assert.Equal(t, 1, snap.Progress.ErrorCount)
	assert.Zero(t, snap.NewDetections)
	assert.False(t, snap.Terminal)
}

func TestScanRun_ConfigurableThresholds(t *testing.T) {
	t.Parallel()

	run := newTestRun(t, WithPhaseThresholds(50, 75))
	require.NoError(t, run.BeginSearching(4))

	require.NoError(t, run.StartKeyword("kw-0", 0))
	require.NoError(t, run.FinishKeyword())
	assert.Equal(t, RunPhaseSearching, run.Snapshot().Progress.Phase)

	require.NoError(t, run.StartKeyword("kw-1", 1))
	require.NoError(t, run.FinishKeyword())
	assert.Equal(t, RunPhaseAnalyzing, run.Snapshot().Progress.Phase)

	require.NoError(t, run.StartKeyword("kw-2", 2))
	require.NoError(t, run.FinishKeyword())
	assert.Equal(t, RunPhaseVerifying, run.Snapshot().Progress.Phase)
}

func TestScanRun_CompleteStepsRemainingPhases(t *testing.T) {
	t.Parallel()

	// Two keywords: the run is still searching when the final keyword lands
	// so Complete has to walk analyzing and verifying itself.
	run := newTestRun(t)
	require.NoError(t, run.BeginSearching(2))

	require.NoError(t, run.StartKeyword("kw-0", 0))
	require.NoError(t, run.FinishKeyword())
	require.Equal(t, RunPhaseSearching, run.Snapshot().Progress.Phase)

	require.NoError(t, run.StartKeyword("kw-1", 1))
	require.NoError(t, run.FinishKeyword())
	require.NoError(t, run.Complete())

	snap := run.Snapshot()
	assert.Equal(t, RunPhaseCompleted, snap.Progress.Phase)
	assert.Equal(t, 100, snap.Progress.ProgressPct)

	var milestones []string
	for i := len(snap.Activities) - 1; i >= 0; i-- {
		if snap.Activities[i].Kind == ActivityMilestone {
			milestones = append(milestones, snap.Activities[i].Message)
		}
	}
	require.Len(t, milestones, 4)
	assert.Equal(t, "Searching for brand exposure", milestones[0])
	assert.Equal(t, "Analyzing collected results", milestones[1])
	assert.Equal(t, "Verifying detections", milestones[2])
	assert.Contains(t, milestones[3], "Scan completed")
}

func TestScanRun_FinishKeywordOverflow(t *testing.T) {
	t.Parallel()

	run := newTestRun(t)
	require.NoError(t, run.BeginSearching(1))
	require.NoError(t, run.StartKeyword("kw-0", 0))
	require.NoError(t, run.FinishKeyword())

	err := run.FinishKeyword()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyword overflow")
}

func TestScanRun_ActivityLogIsBounded(t *testing.T) {
	t.Parallel()

	run := newTestRun(t, WithActivityCapacity(4))
	require.NoError(t, run.BeginSearching(20))

	for i := 0; i < 20; i++ {
		require.NoError(t, run.StartKeyword(fmt.Sprintf("kw-%d", i), i))
	}

	all := run.RecentActivities(0)
	require.Len(t, all, 4)
	// Most recent first.
	assert.Contains(t, all[0].Message, "kw-19")
	assert.Contains(t, all[3].Message, "kw-16")

	limited := run.RecentActivities(2)
	require.Len(t, limited, 2)
	assert.Contains(t, limited[0].Message, "kw-19")
	assert.Contains(t, limited[1].Message, "kw-18")
}

func TestScanRun_TimestampsUseProvider(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	tp := &mockTimeProvider{currentTime: start}

	run := newTestRun(t, WithRunTimeProvider(tp))
	require.NoError(t, run.BeginSearching(1))

	tp.Advance(2 * time.Minute)
	require.NoError(t, run.StartKeyword("kw-0", 0))
	require.NoError(t, run.FinishKeyword())
	require.NoError(t, run.Complete())

	snap := run.Snapshot()
	assert.Equal(t, start.Add(2*time.Minute), snap.Progress.UpdatedAt)
	require.NotEmpty(t, snap.Activities)
	assert.Equal(t, start.Add(2*time.Minute), snap.Activities[0].Timestamp)
}
