package compile

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// selfTestDocument exercises cross references so both passes do real work.
const selfTestDocument = `\documentclass{article}
\begin{document}
\section{Self test}\label{sec:self}
texgate compiled this document. See Section~\ref{sec:self}.
\end{document}
`

// SelfTestResult reports a successful self test.
type SelfTestResult struct {
	RequestID     string        `json:"request_id"`
	Passes        int           `json:"passes"`
	ArtifactBytes int           `json:"artifact_bytes"`
	Duration      time.Duration `json:"-"`
	DurationMS    int64         `json:"duration_ms"`
}

// SelfTest compiles a built-in document through the normal pipeline.
func (s *Service) SelfTest(ctx context.Context) (SelfTestResult, error) {
	id := "selftest-" + uuid.NewString()
	res, err := s.Compile(ctx, Request{ID: id, Source: selfTestDocument, Principal: "selftest"})
	if err != nil {
		return SelfTestResult{RequestID: id}, err
	}
	return SelfTestResult{
		RequestID:     id,
		Passes:        res.Passes,
		ArtifactBytes: len(res.Artifact),
		Duration:      res.Duration,
		DurationMS:    res.Duration.Milliseconds(),
	}, nil
}
