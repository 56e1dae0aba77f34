package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/texgate/internal/auth"
	"github.com/mattjoyce/texgate/internal/compile"
	gwerr "github.com/mattjoyce/texgate/internal/errors"
	"github.com/mattjoyce/texgate/internal/journal"
)

const (
	defaultCompilesLimit = 50
	maxCompilesLimit     = 500
)

// handleRoot handles GET /.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, InfoResponse{
		Service:   s.config.Service,
		Version:   s.config.Version,
		Endpoints: s.endpoints(),
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.compiler.EngineStatus()
	engine := EngineHealth{Available: err == nil && version != "", Version: version}
	if err != nil {
		engine.Error = "engine version check failed"
	}
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:           "healthy",
		Service:          s.config.Service,
		Timestamp:        time.Now().UTC(),
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		Engine:           engine,
		ActiveWorkspaces: s.compiler.ActiveWorkspaces(),
	})
}

// handleCompile handles POST /compile.
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeCompileRequest(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	req.ID = middleware.GetReqID(r.Context())
	req.Principal = principal
	req.Remote = r.RemoteAddr

	res, err := s.compiler.Compile(r.Context(), req)
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Info("client went away during compile", "request_id", req.ID)
			return
		}
		s.writeFailure(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.config.DownloadName))
	h.Set("Content-Length", strconv.Itoa(len(res.Artifact)))
	h.Set("X-Compile-Passes", strconv.Itoa(res.Passes))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Artifact); err != nil {
		s.logger.Warn("failed to write artifact", "request_id", req.ID, "error", err)
	}
}

// decodeCompileRequest reads and validates the JSON body. Every failure is a
// validation error, so no workspace is created for a bad request.
func (s *Server) decodeCompileRequest(w http.ResponseWriter, r *http.Request) (compile.Request, error) {
	body := r.Body
	if s.config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	var in CompileRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &tooLarge):
			return compile.Request{}, gwerr.Validation(gwerr.ReasonBodyTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			return compile.Request{}, gwerr.Validation(gwerr.ReasonMalformedJSON, "request body is empty")
		case errors.As(err, &typeErr) && (typeErr.Field == "source_text" || typeErr.Field == "latex_content"):
			return compile.Request{}, gwerr.Validation(gwerr.ReasonEmptyInput, "source_text must be a non-empty string")
		case errors.As(err, &typeErr) && (typeErr.Field == "timeout_seconds" || typeErr.Field == "timeout"):
			return compile.Request{}, gwerr.Validation(gwerr.ReasonInvalidTimeout, "timeout_seconds must be a number")
		default:
			return compile.Request{}, gwerr.Validation(gwerr.ReasonMalformedJSON, "request body is not valid JSON")
		}
	}
	// Exactly one JSON value; anything after it is rejected.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return compile.Request{}, gwerr.Validation(gwerr.ReasonBodyTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return compile.Request{}, gwerr.Validation(gwerr.ReasonMalformedJSON, "request body has data after the JSON object")
	}

	source, ok := in.source()
	if !ok || source == "" {
		return compile.Request{}, gwerr.Validation(gwerr.ReasonEmptyInput, "source_text must be a non-empty string")
	}
	req := compile.Request{Source: source}

	if secs, ok := in.timeoutSeconds(); ok {
		if secs <= 0 {
			return compile.Request{}, gwerr.Validation(gwerr.ReasonInvalidTimeout, "timeout_seconds must be greater than zero")
		}
		req.Timeout = secondsToDuration(secs)
	}
	return req, nil
}

// secondsToDuration converts without overflowing; the service clamps to the
// configured maximum.
func secondsToDuration(secs float64) time.Duration {
	if secs >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	d := time.Duration(secs * float64(time.Second))
	if d <= 0 {
		return time.Nanosecond
	}
	return d
}

// handleSelfTest handles POST /selftest.
func (s *Server) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	res, err := s.compiler.SelfTest(r.Context())
	if err != nil {
		resp := SelfTestResponse{Status: "failed", RequestID: res.RequestID}
		e, ok := gwerr.As(err)
		if !ok {
			e = gwerr.Internal(gwerr.ReasonUnexpected, "unexpected error", err)
		}
		er := errorResponse(r, e)
		resp.Error, resp.Reason, resp.Diagnostics = er.Error, er.Reason, er.Diagnostics
		s.logger.Error("self test failed", "request_id", res.RequestID, "error", err)
		respondJSON(w, http.StatusInternalServerError, resp)
		return
	}
	respondJSON(w, http.StatusOK, SelfTestResponse{
		Status:        "success",
		RequestID:     res.RequestID,
		Passes:        res.Passes,
		ArtifactBytes: res.ArtifactBytes,
		DurationMS:    res.DurationMS,
	})
}

// handleCompiles handles GET /compiles?limit=&outcome=.
func (s *Server) handleCompiles(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, r, http.StatusNotFound, "compile journal is disabled")
		return
	}

	limit := defaultCompilesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxCompilesLimit)
	}

	entries, err := s.journal.Recent(r.Context(), limit, r.URL.Query().Get("outcome"))
	if err != nil {
		s.writeFailure(w, r, gwerr.Internal(gwerr.ReasonUnexpected, "read compile journal", err))
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	respondJSON(w, http.StatusOK, CompilesResponse{Entries: entries, Count: len(entries)})
}
