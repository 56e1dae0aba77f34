package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mattjoyce/texgate/internal/auth"
	gwerr "github.com/mattjoyce/texgate/internal/errors"
)

// requestID assigns every request a fresh server-side ID. A client-sent
// X-Request-Id is ignored: the ID keys the compile journal and is echoed into
// logs and headers.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// trackInFlight lets Serve wait for handlers after canceling them.
func (s *Server) trackInFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.inflight.Add(1)
		defer s.inflight.Done()
		next.ServeHTTP(w, r)
	})
}

// securityHeaders sets the fixed response headers every endpoint carries.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'self'")
		h.Set("Server", s.config.Service)
		if id := middleware.GetReqID(r.Context()); id != "" {
			h.Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// recoverer turns a handler panic into a generic JSON 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			s.logger.Error("panic in handler",
				"panic", rvr,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"stack", string(debug.Stack()),
			)
			s.writeError(w, r, http.StatusInternalServerError, "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks X-API-KEY before any handler runs. Missing keys get
// 401 and wrong keys 403.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.gate.CheckRequest(r)
		if !d.Authorized {
			s.metrics.IncRejected(string(gwerr.KindAuth), string(d.Reason))
			s.logger.Warn("request rejected",
				"reason", d.Reason,
				"principal", d.Principal,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
			status, msg := http.StatusForbidden, "invalid API key"
			if d.Reason == auth.ReasonMissing {
				status, msg = http.StatusUnauthorized, "missing API key"
			}
			s.writeErr(w, r, gwerr.Auth(gwerr.Reason(d.Reason), msg), status)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), d.Principal)))
	})
}
