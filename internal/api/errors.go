package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	gwerr "github.com/mattjoyce/texgate/internal/errors"
)

// statusFor maps an error kind to its HTTP status.
func (s *Server) statusFor(e *gwerr.Error) int {
	switch e.Kind {
	case gwerr.KindAuth:
		if e.Reason == gwerr.ReasonMissing {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case gwerr.KindValidation:
		if e.Reason == gwerr.ReasonBodyTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case gwerr.KindCompiler:
		return s.config.CompilerErrorStatus
	case gwerr.KindTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure classifies err and writes the JSON failure. Internal errors
// are logged with their cause and reported as a generic message.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := gwerr.As(err)
	if !ok {
		e = gwerr.Internal(gwerr.ReasonUnexpected, "unexpected error", err)
	}
	if e.Kind == gwerr.KindValidation {
		s.metrics.IncRejected(string(e.Kind), string(e.Reason))
	}
	if e.Kind == gwerr.KindInternal {
		s.logger.Error("request failed",
			"reason", e.Reason,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
	s.writeErr(w, r, e, s.statusFor(e))
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, e *gwerr.Error, status int) {
	respondJSON(w, status, errorResponse(r, e))
}

func errorResponse(r *http.Request, e *gwerr.Error) ErrorResponse {
	resp := ErrorResponse{
		Error:     e.Message,
		Reason:    string(e.Reason),
		RequestID: middleware.GetReqID(r.Context()),
	}
	switch e.Kind {
	case gwerr.KindCompiler, gwerr.KindTimeout:
		resp.Diagnostics = e.Diagnostics
	case gwerr.KindInternal:
		resp.Error = "internal error"
		resp.Reason = ""
	}
	return resp
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message, RequestID: middleware.GetReqID(r.Context())})
}
