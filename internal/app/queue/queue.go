// Package queue implements tier-aware admission for scan jobs: per-plan FIFO
// queues drained by weighted round-robin under global, per-tier and per-user
// concurrency ceilings.
package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentryline/brandscan/internal/domain/events"
	domain "github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

// TierLimits bundle the scheduling knobs for one plan tier.
type TierLimits struct {
	// Weight sets the tier's share in the round-robin draw.
	Weight int

	// MaxRunning caps how many of the tier's jobs run at once.
	MaxRunning int

	// PerUserLimit caps live (queued plus running) jobs per user.
	PerUserLimit int
}

// Config carries the queue's deployment configuration.
type Config struct {
	GlobalConcurrency  int
	MaxQueueDepth      int
	SchedulerTick      time.Duration
	MetricsWindow      time.Duration
	DefaultRunEstimate time.Duration
	Tiers              map[domain.PlanTier]TierLimits
}

// entry is one waiting job plus its global admission sequence, used to
// compute user-facing queue positions.
type entry struct {
	job *domain.ScanJob
	seq uint64
}

var (
	_ domain.ScanQueueService  = (*AdmissionQueue)(nil)
	_ domain.CompletionHandler = (*AdmissionQueue)(nil)
)

// AdmissionQueue admits scan requests, holds them in per-tier FIFO order and
// dispatches them to the run launcher as capacity frees up. One mutex guards
// all scheduling state; persistence and launching happen outside it.
type AdmissionQueue struct {
	cfg Config

	// tierOrder fixes the iteration order over configured tiers so
	// round-robin tie-breaks are deterministic.
	tierOrder []domain.PlanTier

	mu            sync.Mutex
	waiting       map[domain.PlanTier][]*entry
	waitingByID   map[uuid.UUID]*entry
	running       map[uuid.UUID]*domain.ScanJob
	runningByTier map[domain.PlanTier]int
	runningTotal  int
	liveByUser    map[string]int
	reserved      int
	credits       map[domain.PlanTier]int
	nextSeq       uint64
	window        *metricsWindow

	launcher  domain.RunLauncher
	jobRepo   domain.JobRepository
	publisher events.DomainEventPublisher

	notifyCh chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	timeProvider domain.TimeProvider
	logger       *logger.Logger
	tracer       trace.Tracer
}

// NewAdmissionQueue returns an AdmissionQueue wired to the given launcher,
// job repository and event publisher. Call Start to begin dispatching.
func NewAdmissionQueue(
	cfg Config,
	launcher domain.RunLauncher,
	jobRepo domain.JobRepository,
	publisher events.DomainEventPublisher,
	log *logger.Logger,
	tracer trace.Tracer,
) (*AdmissionQueue, error) {
	if cfg.GlobalConcurrency <= 0 {
		return nil, fmt.Errorf("global concurrency must be positive, got %d", cfg.GlobalConcurrency)
	}
	if cfg.MaxQueueDepth <= 0 {
		return nil, fmt.Errorf("max queue depth must be positive, got %d", cfg.MaxQueueDepth)
	}
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("at least one plan tier must be configured")
	}
	for tier, limits := range cfg.Tiers {
		if limits.Weight <= 0 || limits.MaxRunning <= 0 || limits.PerUserLimit <= 0 {
			return nil, fmt.Errorf("tier %s limits must be positive: %+v", tier, limits)
		}
	}
	if cfg.SchedulerTick <= 0 {
		cfg.SchedulerTick = time.Second
	}
	if cfg.MetricsWindow <= 0 {
		cfg.MetricsWindow = 15 * time.Minute
	}
	if cfg.DefaultRunEstimate <= 0 {
		cfg.DefaultRunEstimate = 5 * time.Minute
	}

	tierOrder := make([]domain.PlanTier, 0, len(cfg.Tiers))
	for tier := range cfg.Tiers {
		tierOrder = append(tierOrder, tier)
	}
	sort.Slice(tierOrder, func(i, j int) bool { return tierOrder[i] < tierOrder[j] })

	return &AdmissionQueue{
		cfg:           cfg,
		tierOrder:     tierOrder,
		waiting:       make(map[domain.PlanTier][]*entry),
		waitingByID:   make(map[uuid.UUID]*entry),
		running:       make(map[uuid.UUID]*domain.ScanJob),
		runningByTier: make(map[domain.PlanTier]int),
		liveByUser:    make(map[string]int),
		credits:       make(map[domain.PlanTier]int),
		window:        newMetricsWindow(cfg.MetricsWindow),
		launcher:      launcher,
		jobRepo:       jobRepo,
		publisher:     publisher,
		notifyCh:      make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		timeProvider:  domain.DefaultTimeProvider(),
		logger:        log.With("component", "admission_queue"),
		tracer:        tracer,
	}, nil
}

// Start launches the dispatch loop. The loop drains capacity whenever a job
// arrives or finishes, with the scheduler tick as a safety net.
func (q *AdmissionQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.cfg.SchedulerTick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stopCh:
				return
			case <-q.notifyCh:
			case <-ticker.C:
			}
			q.dispatch(ctx)
		}
	}()
}

// Stop halts dispatching and waits for the loop to exit. Jobs already
// launched keep running; waiting jobs stay queued.
func (q *AdmissionQueue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	q.wg.Wait()
}

// kick nudges the dispatch loop without blocking.
func (q *AdmissionQueue) kick() {
	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
}

// Enqueue admits a scan request under the caller's plan limits and returns
// the new queue ID.
func (q *AdmissionQueue) Enqueue(ctx context.Context, userID string, tier domain.PlanTier, targetRef string) (uuid.UUID, error) {
	logger := q.logger.With("operation", "enqueue", "user_id", userID, "plan_tier", tier)
	ctx, span := q.tracer.Start(ctx, "admission_queue.enqueue",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("plan_tier", tier.String()),
		))
	defer span.End()

	if userID == "" {
		return uuid.Nil, fmt.Errorf("user ID is required")
	}
	if targetRef == "" {
		return uuid.Nil, fmt.Errorf("target reference is required")
	}
	limits, ok := q.cfg.Tiers[tier]
	if !ok {
		span.SetStatus(codes.Error, "unknown plan tier")
		return uuid.Nil, domain.NewAdmissionRejectedError(userID, tier, domain.AdmissionReasonUnknownTier)
	}

	// Reserve capacity atomically with the limit checks so concurrent
	// requests cannot slip past the ceilings during persistence.
	q.mu.Lock()
	if q.liveByUser[userID] >= limits.PerUserLimit {
		q.mu.Unlock()
		span.SetStatus(codes.Error, "per-user limit reached")
		return uuid.Nil, domain.NewAdmissionRejectedError(userID, tier, domain.AdmissionReasonUserLimit)
	}
	if q.waitingCount()+q.reserved >= q.cfg.MaxQueueDepth {
		q.mu.Unlock()
		span.SetStatus(codes.Error, "queue full")
		return uuid.Nil, domain.NewAdmissionRejectedError(userID, tier, domain.AdmissionReasonQueueFull)
	}
	q.liveByUser[userID]++
	q.reserved++
	q.mu.Unlock()

	job := domain.NewScanJob(uuid.New(), userID, tier, targetRef)
	if err := q.jobRepo.CreateJob(ctx, job); err != nil {
		q.mu.Lock()
		q.releaseUserLocked(userID)
		q.reserved--
		q.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist job")
		return uuid.Nil, fmt.Errorf("failed to persist job: %w", err)
	}

	q.mu.Lock()
	q.reserved--
	e := &entry{job: job, seq: q.nextSeq}
	q.nextSeq++
	q.waiting[tier] = append(q.waiting[tier], e)
	q.waitingByID[job.QueueID()] = e
	q.mu.Unlock()

	span.AddEvent("job_enqueued", trace.WithAttributes(attribute.String("queue_id", job.QueueID().String())))
	logger.Info(ctx, "Job enqueued", "queue_id", job.QueueID())

	evt := domain.NewJobEnqueuedEvent(job.QueueID(), userID, tier, targetRef)
	if err := q.publisher.PublishDomainEvent(ctx, evt, events.WithKey(job.QueueID().String())); err != nil {
		logger.Warn(ctx, "Failed to publish job enqueued event", "error", err)
	}

	q.kick()
	return job.QueueID(), nil
}

// Cancel removes a waiting job. Only the call that performed the removal
// reports true. Missing jobs, jobs owned by someone else and jobs already
// past QUEUED all report the same false, so existence is never disclosed.
// A running job is stopped through the orchestrator, never here.
func (q *AdmissionQueue) Cancel(ctx context.Context, userID string, queueID uuid.UUID) (bool, error) {
	logger := q.logger.With("operation", "cancel", "queue_id", queueID)
	ctx, span := q.tracer.Start(ctx, "admission_queue.cancel",
		trace.WithAttributes(attribute.String("queue_id", queueID.String())))
	defer span.End()

	q.mu.Lock()
	e, ok := q.waitingByID[queueID]
	if !ok || e.job.UserID() != userID {
		q.mu.Unlock()
		return false, nil
	}
	q.removeWaitingLocked(e)
	q.releaseUserLocked(userID)
	job := e.job
	if err := job.UpdateStatus(domain.JobStatusCancelled); err != nil {
		q.mu.Unlock()
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	q.window.add(sample{
		at:     q.timeProvider.Now(),
		status: domain.JobStatusCancelled,
		tier:   job.PlanTier(),
	})
	q.mu.Unlock()

	if err := q.jobRepo.UpdateJob(ctx, job); err != nil {
		logger.Error(ctx, "Failed to persist cancelled job", "error", err)
	}
	evt := domain.NewJobCancelledEvent(queueID, userID)
	if err := q.publisher.PublishDomainEvent(ctx, evt, events.WithKey(queueID.String())); err != nil {
		logger.Warn(ctx, "Failed to publish job cancelled event", "error", err)
	}

	span.AddEvent("job_cancelled")
	logger.Info(ctx, "Waiting job cancelled")
	return true, nil
}

// Status returns the caller's queued and running jobs, oldest first. Waiting
// entries carry their queue position and a wait estimate of position times
// the recent average run duration.
func (q *AdmissionQueue) Status(ctx context.Context, userID string) ([]domain.QueueEntryView, error) {
	_, span := q.tracer.Start(ctx, "admission_queue.status",
		trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	q.mu.Lock()
	defer q.mu.Unlock()

	avgRun := q.window.avgRunDuration(q.timeProvider.Now(), q.cfg.DefaultRunEstimate)

	var views []domain.QueueEntryView
	for _, job := range q.running {
		if job.UserID() != userID {
			continue
		}
		views = append(views, queueEntryView(job))
	}
	for _, entries := range q.waiting {
		for _, e := range entries {
			if e.job.UserID() != userID {
				continue
			}
			position := q.positionLocked(e)
			views = append(views, domain.QueueEntryView{
				QueueID:         e.job.QueueID(),
				PlanTier:        e.job.PlanTier(),
				Status:          e.job.Status(),
				EnqueuedAt:      e.job.EnqueuedAt(),
				Position:        position,
				EstimatedWaitMs: (avgRun * time.Duration(position)).Milliseconds(),
			})
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].EnqueuedAt.Before(views[j].EnqueuedAt) })
	return views, nil
}

// Metrics reports aggregate queue health over the rolling window.
func (q *AdmissionQueue) Metrics(ctx context.Context) (domain.QueueMetricsSnapshot, error) {
	_, span := q.tracer.Start(ctx, "admission_queue.metrics")
	defer span.End()

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.timeProvider.Now()
	distribution := make(map[domain.PlanTier]int, len(q.cfg.Tiers))
	for tier, entries := range q.waiting {
		if len(entries) > 0 {
			distribution[tier] += len(entries)
		}
	}
	for _, job := range q.running {
		distribution[job.PlanTier()]++
	}

	stats := q.window.stats(now)
	return domain.QueueMetricsSnapshot{
		AvgWaitMs:        stats.avgWait.Milliseconds(),
		CompletionRate:   stats.completionRate,
		ErrorRate:        stats.errorRate,
		PlanDistribution: distribution,
		WindowStart:      now.Add(-q.cfg.MetricsWindow),
		ComputedAt:       now,
	}, nil
}

// HandleCompletion releases the slot a finished run occupied and folds its
// outcome into the metrics window.
func (q *AdmissionQueue) HandleCompletion(ctx context.Context, completion domain.JobCompletion) {
	logger := q.logger.With("operation", "handle_completion",
		"queue_id", completion.QueueID, "status", completion.Status)

	q.mu.Lock()
	job, ok := q.running[completion.QueueID]
	if !ok {
		q.mu.Unlock()
		logger.Warn(ctx, "Completion for unknown running job")
		return
	}
	delete(q.running, completion.QueueID)
	q.runningTotal--
	q.runningByTier[job.PlanTier()]--
	q.releaseUserLocked(job.UserID())

	if err := job.UpdateStatus(completion.Status); err != nil {
		logger.Error(ctx, "Failed to apply terminal status", "error", err)
	}
	q.window.add(sample{
		at:     q.timeProvider.Now(),
		status: completion.Status,
		tier:   job.PlanTier(),
		wait:   job.Timeline().WaitDuration(),
		run:    job.Timeline().RunDuration(),
	})
	q.mu.Unlock()

	if err := q.jobRepo.UpdateJob(ctx, job); err != nil {
		logger.Error(ctx, "Failed to persist finished job", "error", err)
	}
	logger.Info(ctx, "Run slot released")
	q.kick()
}

// dispatch drains as much capacity as the ceilings allow, launching one run
// per granted slot.
func (q *AdmissionQueue) dispatch(ctx context.Context) {
	for {
		q.mu.Lock()
		e := q.nextEntryLocked()
		if e == nil {
			q.mu.Unlock()
			return
		}
		q.removeWaitingLocked(e)
		job := e.job
		q.running[job.QueueID()] = job
		q.runningTotal++
		q.runningByTier[job.PlanTier()]++
		q.mu.Unlock()

		q.launch(ctx, job)
	}
}

// launch persists the running transition before handing the job to the run
// launcher so completion callbacks always observe a RUNNING row.
func (q *AdmissionQueue) launch(ctx context.Context, job *domain.ScanJob) {
	logger := q.logger.With("operation", "launch", "queue_id", job.QueueID())
	ctx, span := q.tracer.Start(ctx, "admission_queue.launch",
		trace.WithAttributes(
			attribute.String("queue_id", job.QueueID().String()),
			attribute.String("plan_tier", job.PlanTier().String()),
		))
	defer span.End()

	scanID := uuid.New()
	if err := job.MarkRunning(scanID); err != nil {
		span.RecordError(err)
		q.abortLaunch(ctx, job, fmt.Errorf("failed to mark job running: %w", err))
		return
	}
	if err := q.jobRepo.UpdateJob(ctx, job); err != nil {
		logger.Error(ctx, "Failed to persist running job", "error", err)
	}

	if _, err := q.launcher.LaunchRun(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to launch run")
		q.abortLaunch(ctx, job, err)
		return
	}

	evt := domain.NewJobStartedEvent(job.QueueID(), scanID, job.UserID(), job.TargetRef())
	if err := q.publisher.PublishDomainEvent(ctx, evt, events.WithKey(scanID.String())); err != nil {
		logger.Warn(ctx, "Failed to publish job started event", "error", err)
	}
	logger.Info(ctx, "Run launched", "scan_id", scanID)
}

// abortLaunch rolls a job that never started back out of the running set and
// records the failure.
func (q *AdmissionQueue) abortLaunch(ctx context.Context, job *domain.ScanJob, cause error) {
	q.logger.Error(ctx, "Launch failed", "queue_id", job.QueueID(), "error", cause)

	q.mu.Lock()
	delete(q.running, job.QueueID())
	q.runningTotal--
	q.runningByTier[job.PlanTier()]--
	q.releaseUserLocked(job.UserID())
	if job.Status() == domain.JobStatusRunning {
		if err := job.UpdateStatus(domain.JobStatusError); err != nil {
			q.logger.Error(ctx, "Failed to mark aborted job", "queue_id", job.QueueID(), "error", err)
		}
	}
	q.window.add(sample{
		at:     q.timeProvider.Now(),
		status: domain.JobStatusError,
		tier:   job.PlanTier(),
	})
	q.mu.Unlock()

	if err := q.jobRepo.UpdateJob(ctx, job); err != nil {
		q.logger.Error(ctx, "Failed to persist aborted job", "queue_id", job.QueueID(), "error", err)
	}
}

// nextEntryLocked picks the next job to run using smooth weighted
// round-robin over tiers that have both waiting work and headroom. It
// returns nil when no slot can be granted.
func (q *AdmissionQueue) nextEntryLocked() *entry {
	if q.runningTotal >= q.cfg.GlobalConcurrency {
		return nil
	}

	totalWeight := 0
	var best domain.PlanTier
	bestSet := false
	for _, tier := range q.tierOrder {
		limits := q.cfg.Tiers[tier]
		if len(q.waiting[tier]) == 0 || q.runningByTier[tier] >= limits.MaxRunning {
			continue
		}
		q.credits[tier] += limits.Weight
		totalWeight += limits.Weight
		if !bestSet || q.credits[tier] > q.credits[best] {
			best = tier
			bestSet = true
		}
	}
	if !bestSet {
		return nil
	}
	q.credits[best] -= totalWeight
	return q.waiting[best][0]
}

// positionLocked ranks e among waiting jobs of equal or higher tier weight.
// Lower-weight work does not count against the estimate since the scheduler
// serves it proportionally less often.
func (q *AdmissionQueue) positionLocked(e *entry) int {
	weight := q.cfg.Tiers[e.job.PlanTier()].Weight
	position := 1
	for tier, entries := range q.waiting {
		otherWeight := q.cfg.Tiers[tier].Weight
		if otherWeight < weight {
			continue
		}
		for _, other := range entries {
			if other == e {
				continue
			}
			if otherWeight > weight || other.seq < e.seq {
				position++
			}
		}
	}
	return position
}

func (q *AdmissionQueue) waitingCount() int {
	count := 0
	for _, entries := range q.waiting {
		count += len(entries)
	}
	return count
}

func (q *AdmissionQueue) removeWaitingLocked(e *entry) {
	tier := e.job.PlanTier()
	entries := q.waiting[tier]
	for i, other := range entries {
		if other == e {
			q.waiting[tier] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	delete(q.waitingByID, e.job.QueueID())
}

func (q *AdmissionQueue) releaseUserLocked(userID string) {
	q.liveByUser[userID]--
	if q.liveByUser[userID] <= 0 {
		delete(q.liveByUser, userID)
	}
}

// queueEntryView renders a job that is no longer waiting.
func queueEntryView(job *domain.ScanJob) domain.QueueEntryView {
	return domain.QueueEntryView{
		QueueID:    job.QueueID(),
		ScanID:     job.ScanID(),
		PlanTier:   job.PlanTier(),
		Status:     job.Status(),
		EnqueuedAt: job.EnqueuedAt(),
	}
}

