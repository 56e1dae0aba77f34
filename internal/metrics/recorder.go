package metrics

import "time"

// Outcome labels the terminal state of a compile request.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeCompilerError Outcome = "compiler_error"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeInternal      Outcome = "internal"
	OutcomeCanceled      Outcome = "canceled"
)

// Recorder defines the observability hooks used by the compile service and
// the HTTP layer.
type Recorder interface {
	ObserveCompile(outcome Outcome, passes int, d time.Duration)
	ObserveArtifactBytes(n int)
	IncRejected(kind, reason string)
	IncSweptWorkspaces(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are disabled).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCompile(Outcome, int, time.Duration) {}
func (NoopRecorder) ObserveArtifactBytes(int)                   {}
func (NoopRecorder) IncRejected(string, string)                 {}
func (NoopRecorder) IncSweptWorkspaces(int)                     {}
