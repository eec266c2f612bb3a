package scanning

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	domain "github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

// resultAnalyzer filters one run's candidates down to persisted detections.
// Each run gets its own analyzer so URL and host dedup state stays scoped to
// that run.
type resultAnalyzer struct {
	confidenceFloor     int
	saveRetryMaxElapsed time.Duration

	classifier domain.CandidateClassifier
	store      domain.ResultStore

	seenURLs  map[string]struct{}
	seenHosts map[string]struct{}

	timeProvider domain.TimeProvider
	logger       *logger.Logger
}

func newResultAnalyzer(
	confidenceFloor int,
	saveRetryMaxElapsed time.Duration,
	classifier domain.CandidateClassifier,
	store domain.ResultStore,
	timeProvider domain.TimeProvider,
	log *logger.Logger,
) *resultAnalyzer {
	return &resultAnalyzer{
		confidenceFloor:     confidenceFloor,
		saveRetryMaxElapsed: saveRetryMaxElapsed,
		classifier:          classifier,
		store:               store,
		seenURLs:            make(map[string]struct{}),
		seenHosts:           make(map[string]struct{}),
		timeProvider:        timeProvider,
		logger:              log.With("component", "result_analyzer"),
	}
}

// processCandidates runs every candidate through the acceptance pipeline:
// confidence floor, in-run URL dedup, cross-scan URL dedup, classification
// and persistence. A failed save costs that one result, nothing else.
func (a *resultAnalyzer) processCandidates(ctx context.Context, run *domain.ScanRun, keyword string, cands []domain.Candidate) {
	for _, cand := range cands {
		run.CountLink()

		if cand.Confidence < a.confidenceFloor {
			continue
		}
		if _, dup := a.seenURLs[cand.URL]; dup {
			continue
		}
		a.seenURLs[cand.URL] = struct{}{}

		exists, err := a.store.ExistsByURL(ctx, run.TargetRef(), cand.URL)
		if err != nil {
			run.RecordSaveFailure(cand.URL, fmt.Errorf("duplicate check failed: %w", err))
			continue
		}
		if exists {
			continue
		}

		assessment := a.classifier.Classify(keyword, cand)
		if host := hostOf(cand.URL); host != "" {
			if _, known := a.seenHosts[host]; !known {
				a.seenHosts[host] = struct{}{}
				assessment.NewSite = true
			}
		}

		detection := domain.NewDetection(run.ScanID(), run.TargetRef(), keyword, cand, assessment.Method, a.timeProvider.Now())
		if err := a.saveWithRetry(ctx, detection); err != nil {
			run.RecordSaveFailure(cand.URL, err)
			continue
		}

		if err := run.ApplyDetection(cand.URL, assessment); err != nil {
			a.logger.Warn(ctx, "Detection applied to finished run", "url", cand.URL, "error", err)
		}
	}
}

// saveWithRetry persists a detection with exponential backoff so a brief
// storage blip does not cost the result.
func (a *resultAnalyzer) saveWithRetry(ctx context.Context, detection *domain.Detection) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 50 * time.Millisecond
	expBackoff.MaxElapsedTime = a.saveRetryMaxElapsed

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return a.store.Save(ctx, detection)
	}
	if err := backoff.Retry(operation, expBackoff); err != nil {
		return fmt.Errorf("failed to persist detection after retries: %w", err)
	}
	return nil
}

// hostOf extracts the lowercase hostname from a candidate URL, or "" when it
// has none.
func hostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
