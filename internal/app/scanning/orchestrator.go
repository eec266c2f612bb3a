package scanning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentryline/brandscan/internal/domain/events"
	domain "github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/pkg/common"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

// Config carries the orchestrator's deployment configuration.
type Config struct {
	// ConfidenceFloor drops candidates scored below it.
	ConfidenceFloor int

	// MaxResultsPerKeyword caps how many candidates one search may return.
	MaxResultsPerKeyword int

	// ExcludeDomains is passed through to the search executor.
	ExcludeDomains []string

	// RunTimeout bounds a single run end to end.
	RunTimeout time.Duration

	// Retention keeps terminal runs readable before the janitor drops them.
	Retention time.Duration

	// JanitorTick is how often expired runs are collected.
	JanitorTick time.Duration

	// AnalyzingThreshold and VerifyingThreshold are the progress percentages
	// at which runs step phases.
	AnalyzingThreshold int
	VerifyingThreshold int

	// SaveRetryMaxElapsed bounds the retry budget for persisting one result.
	SaveRetryMaxElapsed time.Duration
}

// runHandle tracks the control state of one live run.
type runHandle struct {
	stopRequested atomic.Bool
}

var (
	_ domain.RunLauncher    = (*ScanOrchestrator)(nil)
	_ domain.ScanRunService = (*ScanOrchestrator)(nil)
)

// ScanOrchestrator executes admitted jobs as scan runs. Each run is a single
// goroutine working through the keyword plan; the orchestrator keeps the live
// (and recently finished) runs registered so every read path and the push
// stream serve the same snapshots.
type ScanOrchestrator struct {
	cfg Config

	mu      sync.RWMutex
	runs    map[uuid.UUID]*domain.ScanRun
	handles map[uuid.UUID]*runHandle

	resolver       domain.KeywordResolver
	searcher       domain.SearchExecutor
	classifier     domain.CandidateClassifier
	store          domain.ResultStore
	notifier       domain.Notifier
	completions    domain.CompletionHandler
	publisher      *ProgressPublisher
	eventPublisher events.DomainEventPublisher
	searchLimiter  *common.RateLimiter

	baseCtx  context.Context
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	timeProvider domain.TimeProvider
	logger       *logger.Logger
	tracer       trace.Tracer
}

// NewScanOrchestrator wires an orchestrator. Call Start before launching
// runs.
func NewScanOrchestrator(
	cfg Config,
	resolver domain.KeywordResolver,
	searcher domain.SearchExecutor,
	classifier domain.CandidateClassifier,
	store domain.ResultStore,
	notifier domain.Notifier,
	completions domain.CompletionHandler,
	publisher *ProgressPublisher,
	eventPublisher events.DomainEventPublisher,
	searchLimiter *common.RateLimiter,
	log *logger.Logger,
	tracer trace.Tracer,
) *ScanOrchestrator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 15 * time.Minute
	}
	if cfg.JanitorTick <= 0 {
		cfg.JanitorTick = time.Minute
	}
	if cfg.MaxResultsPerKeyword <= 0 {
		cfg.MaxResultsPerKeyword = 25
	}

	return &ScanOrchestrator{
		cfg:            cfg,
		runs:           make(map[uuid.UUID]*domain.ScanRun),
		handles:        make(map[uuid.UUID]*runHandle),
		resolver:       resolver,
		searcher:       searcher,
		classifier:     classifier,
		store:          store,
		notifier:       notifier,
		completions:    completions,
		publisher:      publisher,
		eventPublisher: eventPublisher,
		searchLimiter:  searchLimiter,
		stopCh:         make(chan struct{}),
		timeProvider:   domain.DefaultTimeProvider(),
		logger:         log.With("component", "scan_orchestrator"),
		tracer:         tracer,
	}
}

// Start anchors run lifecycles to ctx and launches the retention janitor.
func (o *ScanOrchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.baseCtx = ctx
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.cfg.JanitorTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.stopCh:
				return
			case <-ticker.C:
				o.collectExpired()
			}
		}
	}()
}

// Shutdown waits for live runs and the janitor to finish. Runs observe
// shutdown through their context and end as failures.
func (o *ScanOrchestrator) Shutdown() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

// LaunchRun registers a run for the job and starts executing it. The job
// must already carry its scan ID.
func (o *ScanOrchestrator) LaunchRun(ctx context.Context, job *domain.ScanJob) (uuid.UUID, error) {
	scanID := job.ScanID()
	if scanID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("job %s has no scan ID", job.QueueID())
	}

	o.mu.Lock()
	if o.baseCtx == nil {
		o.mu.Unlock()
		return uuid.Nil, fmt.Errorf("orchestrator not started")
	}
	if _, exists := o.runs[scanID]; exists {
		o.mu.Unlock()
		return uuid.Nil, fmt.Errorf("run %s already exists", scanID)
	}
	run := domain.NewScanRun(scanID, job,
		domain.WithPhaseThresholds(o.cfg.AnalyzingThreshold, o.cfg.VerifyingThreshold),
		domain.WithRunTimeProvider(o.timeProvider),
	)
	handle := new(runHandle)
	o.runs[scanID] = run
	o.handles[scanID] = handle
	runCtx := o.baseCtx
	o.mu.Unlock()

	o.logger.Info(ctx, "Run launched", "scan_id", scanID, "queue_id", job.QueueID())
	o.publisher.PublishProgress(ctx, run.Snapshot())

	evt := domain.NewScanStartedEvent(scanID, job.QueueID(), job.UserID(), job.TargetRef())
	if err := o.eventPublisher.PublishDomainEvent(ctx, evt, events.WithKey(scanID.String())); err != nil {
		o.logger.Warn(ctx, "Failed to publish scan started event", "scan_id", scanID, "error", err)
	}

	o.wg.Add(1)
	go o.executeRun(runCtx, run, handle, job)
	return scanID, nil
}

// Stop requests cooperative cancellation. The run honors it at the next
// keyword boundary; only the call that set the flag reports true.
func (o *ScanOrchestrator) Stop(ctx context.Context, scanID uuid.UUID) (bool, error) {
	o.mu.RLock()
	run, ok := o.runs[scanID]
	handle := o.handles[scanID]
	o.mu.RUnlock()
	if !ok {
		return false, domain.ErrRunNotFound
	}
	if run.Terminal() {
		return false, nil
	}

	flagged := handle.stopRequested.CompareAndSwap(false, true)
	if flagged {
		o.logger.Info(ctx, "Stop requested", "scan_id", scanID)
	}
	return flagged, nil
}

// Progress returns the run's progress view.
func (o *ScanOrchestrator) Progress(ctx context.Context, scanID uuid.UUID) (domain.RunProgress, error) {
	run, err := o.run(scanID)
	if err != nil {
		return domain.RunProgress{}, err
	}
	return run.Snapshot().Progress, nil
}

// Methods returns per-channel detection status.
func (o *ScanOrchestrator) Methods(ctx context.Context, scanID uuid.UUID) ([]domain.MethodStatus, error) {
	run, err := o.run(scanID)
	if err != nil {
		return nil, err
	}
	return run.Snapshot().Methods, nil
}

// Insights returns the run's insight rollup.
func (o *ScanOrchestrator) Insights(ctx context.Context, scanID uuid.UUID) (domain.Insights, error) {
	run, err := o.run(scanID)
	if err != nil {
		return domain.Insights{}, err
	}
	return run.Snapshot().Insights, nil
}

// Activities returns up to limit recent activity entries, newest first.
func (o *ScanOrchestrator) Activities(ctx context.Context, scanID uuid.UUID, limit int) ([]domain.ActivityEntry, error) {
	run, err := o.run(scanID)
	if err != nil {
		return nil, err
	}
	return run.RecentActivities(limit), nil
}

// Snapshot returns the full point-in-time view of the run.
func (o *ScanOrchestrator) Snapshot(ctx context.Context, scanID uuid.UUID) (domain.RunSnapshot, error) {
	run, err := o.run(scanID)
	if err != nil {
		return domain.RunSnapshot{}, err
	}
	return run.Snapshot(), nil
}

// Watch subscribes to the run's snapshot stream, seeded with its current
// state.
func (o *ScanOrchestrator) Watch(ctx context.Context, scanID uuid.UUID) (<-chan domain.RunSnapshot, func(), error) {
	run, err := o.run(scanID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := o.publisher.Subscribe(ctx, scanID, run.Snapshot)
	return ch, cancel, nil
}

func (o *ScanOrchestrator) run(scanID uuid.UUID) (*domain.ScanRun, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	run, ok := o.runs[scanID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}

// executeRun drives one run through resolution, the keyword loop and its
// terminal transition.
func (o *ScanOrchestrator) executeRun(baseCtx context.Context, run *domain.ScanRun, handle *runHandle, job *domain.ScanJob) {
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(baseCtx, o.cfg.RunTimeout)
	defer cancel()

	logger := o.logger.With("operation", "execute_run", "scan_id", run.ScanID())
	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.execute_run",
		trace.WithAttributes(
			attribute.String("scan_id", run.ScanID().String()),
			attribute.String("queue_id", run.QueueID().String()),
			attribute.String("target_ref", run.TargetRef()),
		))
	defer span.End()

	keywords, err := o.resolver.Resolve(ctx, run.TargetRef())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "keyword resolution failed")
		o.failRun(ctx, run, job, domain.NewResolverFailureError(run.TargetRef(), err))
		return
	}
	if handle.stopRequested.Load() {
		o.cancelRun(ctx, run, job, "stop requested")
		return
	}
	if err := run.BeginSearching(len(keywords)); err != nil {
		o.failRun(ctx, run, job, err)
		return
	}
	o.publishSnapshot(ctx, run)
	span.SetAttributes(attribute.Int("keyword_count", len(keywords)))
	logger.Info(ctx, "Keyword plan resolved", "keywords", len(keywords))

	analyzer := newResultAnalyzer(
		o.cfg.ConfidenceFloor,
		o.cfg.SaveRetryMaxElapsed,
		o.classifier,
		o.store,
		o.timeProvider,
		o.logger,
	)

	for i, keyword := range keywords {
		if handle.stopRequested.Load() {
			span.AddEvent("run_cancelled")
			o.cancelRun(ctx, run, job, "stop requested")
			return
		}
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			o.haltRun(ctx, run, job, err)
			return
		}

		if err := run.StartKeyword(keyword, i); err != nil {
			o.failRun(ctx, run, job, err)
			return
		}
		o.publishSnapshot(ctx, run)

		if err := o.searchLimiter.Wait(ctx); err != nil {
			o.haltRun(ctx, run, job, err)
			return
		}

		cands, err := o.searcher.Search(ctx, keyword, o.cfg.ExcludeDomains, o.cfg.MaxResultsPerKeyword)
		switch {
		case err != nil && ctx.Err() != nil:
			o.haltRun(ctx, run, job, ctx.Err())
			return
		case err != nil:
			// One keyword failing never ends the run.
			if recErr := run.RecordKeywordFailure(keyword, err); recErr != nil {
				o.failRun(ctx, run, job, recErr)
				return
			}
		default:
			analyzer.processCandidates(ctx, run, keyword, cands)
		}

		if err := run.FinishKeyword(); err != nil {
			o.failRun(ctx, run, job, err)
			return
		}
		o.reportKeywordProgress(ctx, run)
	}

	o.completeRun(ctx, run, job)
}

// publishSnapshot pushes the run's current state to watchers.
func (o *ScanOrchestrator) publishSnapshot(ctx context.Context, run *domain.ScanRun) {
	o.publisher.PublishProgress(ctx, run.Snapshot())
}

// reportKeywordProgress pushes the snapshot and mirrors the finished keyword
// on the event bus. Bus events stay at keyword granularity; the snapshot
// stream is finer.
func (o *ScanOrchestrator) reportKeywordProgress(ctx context.Context, run *domain.ScanRun) {
	snapshot := run.Snapshot()
	o.publisher.PublishProgress(ctx, snapshot)

	evt := domain.NewScanProgressedEvent(snapshot.Progress)
	if err := o.eventPublisher.PublishDomainEvent(ctx, evt, events.WithKey(snapshot.ScanID.String())); err != nil {
		o.logger.Warn(ctx, "Failed to publish scan progressed event", "scan_id", snapshot.ScanID, "error", err)
	}
}

func (o *ScanOrchestrator) completeRun(ctx context.Context, run *domain.ScanRun, job *domain.ScanJob) {
	if err := run.Complete(); err != nil {
		o.logger.Error(ctx, "Failed to complete run", "scan_id", run.ScanID(), "error", err)
	}
	snapshot := run.Snapshot()
	o.publisher.PublishProgress(ctx, snapshot)

	duration := o.timeProvider.Now().Sub(run.StartedAt())
	evt := domain.NewScanCompletedEvent(run.ScanID(), run.QueueID(), snapshot.NewDetections, snapshot.Insights.RiskLevel, duration)
	if err := o.eventPublisher.PublishDomainEvent(ctx, evt, events.WithKey(run.ScanID().String())); err != nil {
		o.logger.Warn(ctx, "Failed to publish scan completed event", "scan_id", run.ScanID(), "error", err)
	}

	if snapshot.NewDetections > 0 {
		o.sendNotice(ctx, run, job, snapshot)
	}

	o.logger.Info(ctx, "Run completed",
		"scan_id", run.ScanID(), "new_detections", snapshot.NewDetections, "risk_level", snapshot.Insights.RiskLevel)
	o.finish(ctx, run, job, domain.JobStatusCompleted)
}

// haltRun ends a run whose context finished. The run duration limit counts
// as a forced stop; anything else, shutdown included, fails the run.
func (o *ScanOrchestrator) haltRun(ctx context.Context, run *domain.ScanRun, job *domain.ScanJob, cause error) {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		o.cancelRun(ctx, run, job, "run duration limit reached")
		return
	}
	o.failRun(ctx, run, job, fmt.Errorf("run aborted: %w", cause))
}

func (o *ScanOrchestrator) cancelRun(ctx context.Context, run *domain.ScanRun, job *domain.ScanJob, reason string) {
	if err := run.MarkCancelled(reason); err != nil {
		o.logger.Error(ctx, "Failed to cancel run", "scan_id", run.ScanID(), "error", err)
	}
	snapshot := run.Snapshot()
	o.publisher.PublishProgress(ctx, snapshot)

	evt := domain.NewScanCancelledEvent(run.ScanID(), run.QueueID(), snapshot.Progress.ProcessedKeywords, snapshot.Progress.TotalKeywords)
	if err := o.eventPublisher.PublishDomainEvent(ctx, evt, events.WithKey(run.ScanID().String())); err != nil {
		o.logger.Warn(ctx, "Failed to publish scan cancelled event", "scan_id", run.ScanID(), "error", err)
	}

	o.logger.Info(ctx, "Run cancelled",
		"scan_id", run.ScanID(), "processed_keywords", snapshot.Progress.ProcessedKeywords)
	o.finish(ctx, run, job, domain.JobStatusCancelled)
}

func (o *ScanOrchestrator) failRun(ctx context.Context, run *domain.ScanRun, job *domain.ScanJob, cause error) {
	if err := run.Fail(cause); err != nil {
		o.logger.Error(ctx, "Failed to mark run failed", "scan_id", run.ScanID(), "error", err)
	}
	o.publisher.PublishProgress(ctx, run.Snapshot())

	evt := domain.NewScanFailedEvent(run.ScanID(), run.QueueID(), cause.Error())
	if err := o.eventPublisher.PublishDomainEvent(ctx, evt, events.WithKey(run.ScanID().String())); err != nil {
		o.logger.Warn(ctx, "Failed to publish scan failed event", "scan_id", run.ScanID(), "error", err)
	}

	o.logger.Error(ctx, "Run failed", "scan_id", run.ScanID(), "error", cause)
	o.finish(ctx, run, job, domain.JobStatusError)
}

// sendNotice delivers the end-of-run detections notice. Failures are logged
// and dropped; notification is strictly fire and forget.
func (o *ScanOrchestrator) sendNotice(ctx context.Context, run *domain.ScanRun, job *domain.ScanJob, snapshot domain.RunSnapshot) {
	notice := domain.DetectionsNotice{
		ScanID:        run.ScanID(),
		UserID:        job.UserID(),
		TargetRef:     run.TargetRef(),
		NewDetections: snapshot.NewDetections,
		RiskLevel:     snapshot.Insights.RiskLevel,
	}
	if err := o.notifier.Notify(ctx, notice); err != nil {
		o.logger.Warn(ctx, "Failed to deliver detections notice", "scan_id", run.ScanID(), "error", err)
	}
}

// finish reports the terminal outcome back to the admission side.
func (o *ScanOrchestrator) finish(ctx context.Context, run *domain.ScanRun, job *domain.ScanJob, status domain.JobStatus) {
	completion := domain.JobCompletion{
		QueueID:   run.QueueID(),
		ScanID:    run.ScanID(),
		Status:    status,
		StartedAt: run.StartedAt(),
	}
	if completedAt, ok := run.CompletedAt(); ok {
		completion.FinishedAt = completedAt
	}
	o.completions.HandleCompletion(ctx, completion)
}

// collectExpired drops terminal runs whose retention has passed.
func (o *ScanOrchestrator) collectExpired() {
	cutoff := o.timeProvider.Now().Add(-o.cfg.Retention)

	o.mu.Lock()
	var expired []uuid.UUID
	for scanID, run := range o.runs {
		if completedAt, ok := run.CompletedAt(); ok && completedAt.Before(cutoff) {
			expired = append(expired, scanID)
			delete(o.runs, scanID)
			delete(o.handles, scanID)
		}
	}
	o.mu.Unlock()

	for _, scanID := range expired {
		o.publisher.Forget(scanID)
	}
}
