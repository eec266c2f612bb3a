// Package postgres persists the scanning domain's jobs and detections in
// PostgreSQL. Stores hold their SQL inline and map rows back through the
// domain's reconstruct constructors.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/internal/infra/storage"
)

// jobStore implements scanning.JobRepository on PostgreSQL. It records every
// admitted job and keeps its lifecycle row current as the queue and the
// orchestrator move the job along.
var _ scanning.JobRepository = (*jobStore)(nil)

type jobStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewJobStore creates a PostgreSQL-backed job repository with tracing.
func NewJobStore(pool *pgxpool.Pool, tracer trace.Tracer) *jobStore {
	return &jobStore{db: pool, tracer: tracer}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

const createScanJobQuery = `
INSERT INTO scan_jobs (queue_id, user_id, plan_tier, target_ref, status, scan_id, enqueued_at, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// CreateJob persists a newly admitted job.
func (r *jobStore) CreateJob(ctx context.Context, job *scanning.ScanJob) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("queue_id", job.QueueID().String()),
		attribute.String("status", string(job.Status())),
		attribute.String("plan_tier", string(job.PlanTier())),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_scan_job", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		startedAt := job.Timeline().StartedAt()
		completedAt, hasCompletedAt := job.EndTime()
		_, err := r.db.Exec(ctx, createScanJobQuery,
			pgtype.UUID{Bytes: job.QueueID(), Valid: true},
			job.UserID(),
			string(job.PlanTier()),
			job.TargetRef(),
			string(job.Status()),
			pgtype.UUID{Bytes: job.ScanID(), Valid: job.ScanID() != uuid.Nil},
			pgtype.Timestamptz{Time: job.EnqueuedAt(), Valid: true},
			pgtype.Timestamptz{Time: startedAt, Valid: !startedAt.IsZero()},
			pgtype.Timestamptz{Time: completedAt, Valid: hasCompletedAt},
		)
		if err != nil {
			return fmt.Errorf("CreateJob insert error: %w", err)
		}
		return nil
	})
}

const updateScanJobQuery = `
UPDATE scan_jobs
SET status = $2, scan_id = $3, started_at = $4, completed_at = $5, updated_at = NOW()
WHERE queue_id = $1
`

// UpdateJob persists the job's current status, bound scan and timeline.
func (r *jobStore) UpdateJob(ctx context.Context, job *scanning.ScanJob) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("queue_id", job.QueueID().String()),
		attribute.String("status", string(job.Status())),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_scan_job", dbAttrs, func(ctx context.Context) error {
		span := trace.SpanFromContext(ctx)

		startedAt := job.Timeline().StartedAt()
		completedAt, hasCompletedAt := job.EndTime()
		res, err := r.db.Exec(ctx, updateScanJobQuery,
			pgtype.UUID{Bytes: job.QueueID(), Valid: true},
			string(job.Status()),
			pgtype.UUID{Bytes: job.ScanID(), Valid: job.ScanID() != uuid.Nil},
			pgtype.Timestamptz{Time: startedAt, Valid: !startedAt.IsZero()},
			pgtype.Timestamptz{Time: completedAt, Valid: hasCompletedAt},
		)
		if err != nil {
			return fmt.Errorf("UpdateJob query error: %w", err)
		}

		if res.RowsAffected() == 0 {
			span.SetAttributes(attribute.Bool("job_not_found", true))
			span.RecordError(scanning.ErrJobNotFound)
			return scanning.ErrJobNotFound
		}
		return nil
	})
}

const getScanJobQuery = `
SELECT user_id, plan_tier, target_ref, status, scan_id, enqueued_at, started_at, completed_at
FROM scan_jobs
WHERE queue_id = $1
`

// GetJob retrieves a job by its queue ID and reconstructs the domain model.
func (r *jobStore) GetJob(ctx context.Context, queueID uuid.UUID) (*scanning.ScanJob, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("queue_id", queueID.String()),
	)

	var job *scanning.ScanJob
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_scan_job", dbAttrs, func(ctx context.Context) error {
		var (
			userID      string
			planTier    string
			targetRef   string
			status      string
			scanID      pgtype.UUID
			enqueuedAt  pgtype.Timestamptz
			startedAt   pgtype.Timestamptz
			completedAt pgtype.Timestamptz
		)
		err := r.db.QueryRow(ctx, getScanJobQuery, pgtype.UUID{Bytes: queueID, Valid: true}).
			Scan(&userID, &planTier, &targetRef, &status, &scanID, &enqueuedAt, &startedAt, &completedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return scanning.ErrJobNotFound
			}
			return fmt.Errorf("GetJob query error: %w", err)
		}

		boundScanID := uuid.Nil
		if scanID.Valid {
			boundScanID = uuid.UUID(scanID.Bytes)
		}
		timeline := scanning.ReconstructTimeline(
			enqueuedAt.Time,
			startedAt.Time,
			completedAt.Time,
			scanning.DefaultTimeProvider(),
		)
		job = scanning.ReconstructScanJob(
			queueID,
			userID,
			scanning.PlanTier(planTier),
			targetRef,
			scanning.JobStatus(status),
			boundScanID,
			timeline,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}
