package api

import (
	"time"

	gwerr "github.com/mattjoyce/texgate/internal/errors"
	"github.com/mattjoyce/texgate/internal/journal"
)

// CompileRequest is the JSON body for POST /compile.
//
// latex_content and timeout are accepted as aliases for older clients; the
// canonical field wins when both are sent.
type CompileRequest struct {
	SourceText     *string  `json:"source_text"`
	TimeoutSeconds *float64 `json:"timeout_seconds,omitempty"`

	LatexContent *string  `json:"latex_content,omitempty"`
	Timeout      *float64 `json:"timeout,omitempty"`
}

func (r CompileRequest) source() (string, bool) {
	if r.SourceText != nil {
		return *r.SourceText, true
	}
	if r.LatexContent != nil {
		return *r.LatexContent, true
	}
	return "", false
}

func (r CompileRequest) timeoutSeconds() (float64, bool) {
	if r.TimeoutSeconds != nil {
		return *r.TimeoutSeconds, true
	}
	if r.Timeout != nil {
		return *r.Timeout, true
	}
	return 0, false
}

// ErrorResponse is returned on errors. Compiler and timeout failures embed
// the engine diagnostics.
type ErrorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	*gwerr.Diagnostics
}

// InfoResponse is returned by GET /.
type InfoResponse struct {
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string       `json:"status"`
	Service          string       `json:"service"`
	Timestamp        time.Time    `json:"timestamp"`
	UptimeSeconds    int64        `json:"uptime_seconds"`
	Engine           EngineHealth `json:"engine"`
	ActiveWorkspaces int          `json:"active_workspaces"`
}

// EngineHealth is the cached result of the startup engine version check.
type EngineHealth struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SelfTestResponse is returned by POST /selftest.
type SelfTestResponse struct {
	Status        string `json:"status"`
	RequestID     string `json:"request_id"`
	Passes        int    `json:"passes,omitempty"`
	ArtifactBytes int    `json:"artifact_bytes,omitempty"`
	DurationMS    int64  `json:"duration_ms,omitempty"`
	Error         string `json:"error,omitempty"`
	Reason        string `json:"reason,omitempty"`
	*gwerr.Diagnostics
}

// CompilesResponse is returned by GET /compiles.
type CompilesResponse struct {
	Entries []journal.Entry `json:"entries"`
	Count   int             `json:"count"`
}
