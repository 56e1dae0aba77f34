// Package extract turns a finished engine run into a compile outcome.
//
// Success needs both a zero exit code and the artifact on disk. Anything else
// is a failure carrying the tails of stdout, stderr and the engine log.
package extract

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mattjoyce/texgate/internal/engine"
	gwerr "github.com/mattjoyce/texgate/internal/errors"
	"github.com/mattjoyce/texgate/internal/workspace"
)

// DefaultTailChars is used when Options.TailChars is not set.
const DefaultTailChars = 1000

// Options names the files to look for and bounds the diagnostics.
type Options struct {
	ArtifactName string
	LogName      string
	TailChars    int
}

func (o Options) tailChars() int {
	if o.TailChars > 0 {
		return o.TailChars
	}
	return DefaultTailChars
}

// Outcome is either a success with the artifact bytes or a failure.
type Outcome struct {
	Artifact []byte
	Name     string
	Failure  *Failure
}

// Succeeded reports whether the outcome carries an artifact.
func (o Outcome) Succeeded() bool {
	return o.Failure == nil
}

// Failure describes a compile the engine did not complete.
type Failure struct {
	Reason     gwerr.Reason
	ExitCode   int
	StdoutTail string
	StderrTail string
	LogTail    string
}

// Err converts f into a compiler error for the HTTP layer.
func (f *Failure) Err() *gwerr.Error {
	code := f.ExitCode
	msg := "compilation failed"
	if f.Reason == gwerr.ReasonMissingArtifact {
		msg = "compiler exited successfully but produced no output"
	}
	return gwerr.Compiler(f.Reason, msg, gwerr.Diagnostics{
		ExitCode:   &code,
		StdoutTail: f.StdoutTail,
		StderrTail: f.StderrTail,
		LogTail:    f.LogTail,
	})
}

// Extract inspects ws after the engine ran.
func Extract(ws workspace.Workspace, raw engine.RawResult, opts Options) (Outcome, error) {
	if raw.ExitCode == 0 {
		data, err := os.ReadFile(ws.Path(opts.ArtifactName))
		switch {
		case err == nil:
			return Outcome{Artifact: data, Name: opts.ArtifactName}, nil
		case !os.IsNotExist(err):
			return Outcome{}, gwerr.Internal(gwerr.ReasonFilesystem, "read artifact", err)
		}
	}

	reason := gwerr.ReasonNonzeroExit
	if raw.ExitCode == 0 {
		reason = gwerr.ReasonMissingArtifact
	}
	n := opts.tailChars()
	return Outcome{Failure: &Failure{
		Reason:     reason,
		ExitCode:   raw.ExitCode,
		StdoutTail: Tail(raw.Stdout, n),
		StderrTail: Tail(raw.Stderr, n),
		LogTail:    logTail(ws, opts.LogName, n),
	}}, nil
}

// TimeoutDiagnostics bounds the partial output of a timed-out run and adds
// the engine log tail.
func TimeoutDiagnostics(ws workspace.Workspace, diag *gwerr.Diagnostics, opts Options) gwerr.Diagnostics {
	n := opts.tailChars()
	out := gwerr.Diagnostics{LogTail: logTail(ws, opts.LogName, n)}
	if diag != nil {
		out.StdoutTail = Tail(diag.StdoutTail, n)
		out.StderrTail = Tail(diag.StderrTail, n)
	}
	return out
}

// Tail returns the last n characters of s.
func Tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	i := len(s)
	for count := 0; count < n && i > 0; count++ {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}

// logTail reads at most the last n characters of the engine log. A missing
// log yields "".
func logTail(ws workspace.Workspace, name string, n int) string {
	if name == "" {
		return ""
	}
	data, err := readEnd(ws.Path(name), int64(n)*utf8.UTFMax)
	if err != nil {
		return ""
	}
	return Tail(strings.ToValidUTF8(string(data), ""), n)
}

func readEnd(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if off := info.Size() - limit; off > 0 {
		if _, err := f.Seek(off, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek %s: %w", path, err)
		}
	}
	return io.ReadAll(io.LimitReader(f, limit))
}
