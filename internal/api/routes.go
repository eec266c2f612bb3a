package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentryline/brandscan/internal/api/errs"
	domain "github.com/sentryline/brandscan/internal/domain/scanning"
)

const (
	userIDHeader = "X-User-ID"

	defaultActivityLimit = 20
	maxActivityLimit     = 200
)

// userID extracts the caller identity. Authentication happens upstream; the
// gateway guarantees the header when present.
func userID(r *http.Request) (string, error) {
	id := r.Header.Get(userIDHeader)
	if id == "" {
		return "", errs.Newf(errs.Unauthenticated, "missing %s header", userIDHeader)
	}
	return id, nil
}

type enqueueRequest struct {
	TargetRef string `json:"target_ref" validate:"required"`
	PlanTier  string `json:"plan_tier" validate:"required,oneof=FREE BASIC PRO ENTERPRISE"`
}

type enqueueResponse struct {
	QueueID uuid.UUID `json:"queue_id"`
	Status  string    `json:"status"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	uid, err := userID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, errs.Newf(errs.InvalidArgument, "invalid request body: %s", err))
		return
	}
	if err := errs.Check(req); err != nil {
		s.respondError(w, r, errs.New(errs.InvalidArgument, err))
		return
	}

	tier, err := domain.ParsePlanTier(req.PlanTier)
	if err != nil {
		s.respondError(w, r, errs.New(errs.InvalidArgument, err))
		return
	}

	s.metrics.IncEnqueueRequests(ctx)

	queueID, err := s.queue.Enqueue(ctx, uid, tier, req.TargetRef)
	if err != nil {
		var rejected *domain.AdmissionRejectedError
		if errors.As(err, &rejected) {
			s.metrics.IncAdmissionRejections(ctx, string(rejected.Reason))
			s.respondError(w, r, errs.New(errs.ResourceExhausted, err))
			return
		}
		s.respondError(w, r, err)
		return
	}

	s.respond(w, r, http.StatusAccepted, enqueueResponse{
		QueueID: queueID,
		Status:  string(domain.JobStatusQueued),
	})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	entries, err := s.queue.Status(r.Context(), uid)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.QueueEntryView{}
	}

	s.respond(w, r, http.StatusOK, entries)
}

type cancelResponse struct {
	QueueID uuid.UUID `json:"queue_id"`
	Status  string    `json:"status"`
}

func (s *Server) handleCancelQueued(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	queueID, err := uuid.Parse(chi.URLParam(r, "queueID"))
	if err != nil {
		s.respondError(w, r, errs.Newf(errs.InvalidArgument, "invalid queue ID: %s", err))
		return
	}

	removed, err := s.queue.Cancel(r.Context(), uid, queueID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !removed {
		s.respondError(w, r, errs.Newf(errs.NotFound, "queued scan %s not found", queueID))
		return
	}

	s.respond(w, r, http.StatusOK, cancelResponse{
		QueueID: queueID,
		Status:  string(domain.JobStatusCancelled),
	})
}

func (s *Server) handleQueueMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.queue.Metrics(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, snapshot)
}

// authorizeRun resolves the scan ID and checks the caller owns the run.
// Unknown runs and runs owned by someone else produce the same not-found
// error so existence is never disclosed.
func (s *Server) authorizeRun(r *http.Request) (uuid.UUID, error) {
	uid, err := userID(r)
	if err != nil {
		return uuid.Nil, err
	}

	scanID, err := uuid.Parse(chi.URLParam(r, "scanID"))
	if err != nil {
		return uuid.Nil, errs.Newf(errs.InvalidArgument, "invalid scan ID: %s", err)
	}

	snapshot, err := s.runs.Snapshot(r.Context(), scanID)
	if err != nil {
		return uuid.Nil, runErr(err)
	}
	if snapshot.UserID != uid {
		return uuid.Nil, runErr(domain.ErrRunNotFound)
	}

	return scanID, nil
}

// runErr maps domain run lookup failures onto HTTP error codes.
func runErr(err error) error {
	if errors.Is(err, domain.ErrRunNotFound) {
		return errs.New(errs.NotFound, err)
	}
	return err
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	scanID, err := s.authorizeRun(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	progress, err := s.runs.Progress(r.Context(), scanID)
	if err != nil {
		s.respondError(w, r, runErr(err))
		return
	}
	s.respond(w, r, http.StatusOK, progress)
}

func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	scanID, err := s.authorizeRun(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	methods, err := s.runs.Methods(r.Context(), scanID)
	if err != nil {
		s.respondError(w, r, runErr(err))
		return
	}
	s.respond(w, r, http.StatusOK, methods)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	scanID, err := s.authorizeRun(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	insights, err := s.runs.Insights(r.Context(), scanID)
	if err != nil {
		s.respondError(w, r, runErr(err))
		return
	}
	s.respond(w, r, http.StatusOK, insights)
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	scanID, err := s.authorizeRun(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxActivityLimit {
			s.respondError(w, r, errs.Newf(errs.InvalidArgument,
				"limit must be an integer between 1 and %d", maxActivityLimit))
			return
		}
	}

	activities, err := s.runs.Activities(r.Context(), scanID, limit)
	if err != nil {
		s.respondError(w, r, runErr(err))
		return
	}
	if activities == nil {
		activities = []domain.ActivityEntry{}
	}
	s.respond(w, r, http.StatusOK, activities)
}

type detectionResponse struct {
	ID             uuid.UUID `json:"id"`
	Keyword        string    `json:"keyword"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Snippet        string    `json:"snippet"`
	Confidence     int       `json:"confidence"`
	SourcePlatform string    `json:"source_platform"`
	Method         string    `json:"method"`
	FoundAt        time.Time `json:"found_at"`
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	scanID, err := s.authorizeRun(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	detections, err := s.detections.ListByScan(r.Context(), scanID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]detectionResponse, 0, len(detections))
	for _, d := range detections {
		out = append(out, detectionResponse{
			ID:             d.ID(),
			Keyword:        d.Keyword(),
			URL:            d.URL(),
			Title:          d.Title(),
			Snippet:        d.Snippet(),
			Confidence:     d.Confidence(),
			SourcePlatform: d.SourcePlatform(),
			Method:         string(d.Method()),
			FoundAt:        d.FoundAt(),
		})
	}
	s.respond(w, r, http.StatusOK, out)
}

type stopResponse struct {
	ScanID        uuid.UUID `json:"scan_id"`
	StopRequested bool      `json:"stop_requested"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	scanID, err := s.authorizeRun(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	flagged, err := s.runs.Stop(r.Context(), scanID)
	if err != nil {
		s.respondError(w, r, runErr(err))
		return
	}

	s.respond(w, r, http.StatusAccepted, stopResponse{
		ScanID:        scanID,
		StopRequested: flagged,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]string{
		"status": "ok",
		"build":  s.cfg.Build,
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		s.respond(w, r, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ready"})
}
