package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/internal/infra/storage"
)

// detectionStore implements scanning.DetectionRepository on PostgreSQL.
// The (target_ref, url) unique constraint is the cross-scan dedup boundary:
// a URL detected once for a target stays detected, later scans skip it.
var _ scanning.DetectionRepository = (*detectionStore)(nil)

type detectionStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewDetectionStore creates a PostgreSQL-backed detection repository with tracing.
func NewDetectionStore(pool *pgxpool.Pool, tracer trace.Tracer) *detectionStore {
	return &detectionStore{db: pool, tracer: tracer}
}

const detectionExistsQuery = `
SELECT EXISTS (SELECT 1 FROM detections WHERE target_ref = $1 AND url = $2)
`

// ExistsByURL reports whether a detection with the given URL was already
// stored for the target reference.
func (r *detectionStore) ExistsByURL(ctx context.Context, targetRef, url string) (bool, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("target_ref", targetRef),
	)

	var exists bool
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.detection_exists", dbAttrs, func(ctx context.Context) error {
		if err := r.db.QueryRow(ctx, detectionExistsQuery, targetRef, url).Scan(&exists); err != nil {
			return fmt.Errorf("ExistsByURL query error: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return exists, nil
}

const saveDetectionQuery = `
INSERT INTO detections (id, scan_id, target_ref, keyword, url, title, snippet, confidence, source_platform, method, found_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (target_ref, url) DO NOTHING
`

// Save persists a single detection. Saving a URL already recorded for the
// target is a no-op, so concurrent runs over the same target cannot race the
// unique constraint into an error.
func (r *detectionStore) Save(ctx context.Context, d *scanning.Detection) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("scan_id", d.ScanID().String()),
		attribute.String("target_ref", d.TargetRef()),
		attribute.String("method", string(d.Method())),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.save_detection", dbAttrs, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, saveDetectionQuery,
			pgtype.UUID{Bytes: d.ID(), Valid: true},
			pgtype.UUID{Bytes: d.ScanID(), Valid: true},
			d.TargetRef(),
			d.Keyword(),
			d.URL(),
			d.Title(),
			d.Snippet(),
			d.Confidence(),
			d.SourcePlatform(),
			string(d.Method()),
			pgtype.Timestamptz{Time: d.FoundAt(), Valid: true},
		)
		if err != nil {
			return fmt.Errorf("Save insert error: %w", err)
		}
		return nil
	})
}

const listDetectionsByScanQuery = `
SELECT id, scan_id, target_ref, keyword, url, title, snippet, confidence, source_platform, method, found_at
FROM detections
WHERE scan_id = $1
ORDER BY found_at DESC, created_at DESC
`

// ListByScan returns the detections recorded for a scan, most recent first.
func (r *detectionStore) ListByScan(ctx context.Context, scanID uuid.UUID) ([]*scanning.Detection, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("scan_id", scanID.String()),
	)

	var detections []*scanning.Detection
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_detections_by_scan", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, listDetectionsByScanQuery, pgtype.UUID{Bytes: scanID, Valid: true})
		if err != nil {
			return fmt.Errorf("ListByScan query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id             pgtype.UUID
				rowScanID      pgtype.UUID
				targetRef      string
				keyword        string
				url            string
				title          string
				snippet        string
				confidence     int
				sourcePlatform string
				method         string
				foundAt        pgtype.Timestamptz
			)
			if err := rows.Scan(&id, &rowScanID, &targetRef, &keyword, &url, &title, &snippet, &confidence, &sourcePlatform, &method, &foundAt); err != nil {
				return fmt.Errorf("ListByScan scan error: %w", err)
			}

			detections = append(detections, scanning.ReconstructDetection(
				uuid.UUID(id.Bytes),
				uuid.UUID(rowScanID.Bytes),
				targetRef,
				keyword,
				url,
				title,
				snippet,
				confidence,
				sourcePlatform,
				scanning.MethodKind(method),
				foundAt.Time,
			))
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("ListByScan rows error: %w", err)
		}

		span := trace.SpanFromContext(ctx)
		span.SetAttributes(attribute.Int("num_detections", len(detections)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return detections, nil
}
