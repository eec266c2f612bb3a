package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sentryline/brandscan/internal/api/errs"
)

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error(r.Context(), "failed to encode response", "error", err)
	}
}

// respondError maps any error onto the errs taxonomy before encoding it, so
// handlers can hand back raw service errors.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errs.Error
	if !errors.As(err, &appErr) {
		appErr = errs.New(errs.Internal, err)
	}

	if appErr.Code == errs.Internal {
		s.logger.Error(r.Context(), "request failed", "error", err)
	}

	s.respond(w, r, appErr.HTTPStatus(), appErr)
}
