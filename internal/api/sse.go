package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sentryline/brandscan/internal/api/errs"
)

// handleEvents streams run snapshots as server-sent events. Each frame
// carries the same document the pull endpoints serve, so clients can switch
// between polling and streaming without reshaping anything. The stream ends
// when the run goes terminal or the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scanID, err := s.authorizeRun(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errs.Newf(errs.Internal, "streaming unsupported by connection"))
		return
	}

	snapshots, cancel, err := s.runs.Watch(ctx, scanID)
	if err != nil {
		s.respondError(w, r, runErr(err))
		return
	}
	defer cancel()

	s.metrics.AddEventStreams(ctx, 1)
	defer s.metrics.AddEventStreams(ctx, -1)

	// The stream outlives the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug(ctx, "could not clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}

			data, err := json.Marshal(snapshot)
			if err != nil {
				s.logger.Error(ctx, "failed to marshal run snapshot", "error", err, "scan_id", scanID)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
