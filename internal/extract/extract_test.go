package extract

import (
	"os"
	"strings"
	"testing"

	"github.com/mattjoyce/texgate/internal/engine"
	gwerr "github.com/mattjoyce/texgate/internal/errors"
	"github.com/mattjoyce/texgate/internal/workspace"
)

var opts = Options{ArtifactName: "document.pdf", LogName: "document.log", TailChars: 10}

func testWorkspace(t *testing.T) workspace.Workspace {
	t.Helper()
	return workspace.Workspace{ID: "ws-test", Dir: t.TempDir()}
}

func writeFile(t *testing.T, ws workspace.Workspace, name, content string) {
	t.Helper()
	if err := os.WriteFile(ws.Path(name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestExtractSuccess(t *testing.T) {
	ws := testWorkspace(t)
	writeFile(t, ws, "document.pdf", "%PDF-1.5 body")

	out, err := Extract(ws, engine.RawResult{ExitCode: 0}, opts)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !out.Succeeded() {
		t.Fatalf("expected success, got failure %+v", out.Failure)
	}
	if string(out.Artifact) != "%PDF-1.5 body" {
		t.Fatalf("artifact = %q", out.Artifact)
	}
	if out.Name != "document.pdf" {
		t.Fatalf("name = %q", out.Name)
	}
}

func TestExtractZeroExitWithoutArtifact(t *testing.T) {
	ws := testWorkspace(t)

	out, err := Extract(ws, engine.RawResult{ExitCode: 0, Stdout: "No pages of output."}, opts)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.Succeeded() {
		t.Fatal("exit 0 without artifact must fail")
	}
	if out.Failure.Reason != gwerr.ReasonMissingArtifact {
		t.Fatalf("reason = %q, want missing_artifact", out.Failure.Reason)
	}
	if out.Failure.StdoutTail != "of output." {
		t.Fatalf("stdout tail = %q", out.Failure.StdoutTail)
	}
}

func TestExtractNonzeroExitIgnoresArtifact(t *testing.T) {
	ws := testWorkspace(t)
	writeFile(t, ws, "document.pdf", "%PDF partial")
	writeFile(t, ws, "document.log", "lots of noise\n! Emergency stop.")

	raw := engine.RawResult{ExitCode: 1, Stdout: "out", Stderr: "0123456789ABCDEF"}
	out, err := Extract(ws, raw, opts)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.Succeeded() {
		t.Fatal("non-zero exit must fail even with an artifact present")
	}
	f := out.Failure
	if f.Reason != gwerr.ReasonNonzeroExit || f.ExitCode != 1 {
		t.Fatalf("failure = %+v", f)
	}
	if f.StdoutTail != "out" {
		t.Fatalf("stdout tail = %q", f.StdoutTail)
	}
	if f.StderrTail != "6789ABCDEF" {
		t.Fatalf("stderr tail = %q", f.StderrTail)
	}
	if f.LogTail != "ency stop." {
		t.Fatalf("log tail = %q", f.LogTail)
	}

	e := f.Err()
	if e.Kind != gwerr.KindCompiler || e.Diagnostics == nil {
		t.Fatalf("Err() = %+v", e)
	}
	if e.Diagnostics.ExitCode == nil || *e.Diagnostics.ExitCode != 1 {
		t.Fatalf("Err() exit code = %v", e.Diagnostics.ExitCode)
	}
}

func TestTimeoutDiagnostics(t *testing.T) {
	ws := testWorkspace(t)
	writeFile(t, ws, "document.log", "log line")

	diag := TimeoutDiagnostics(ws, &gwerr.Diagnostics{
		StdoutTail: strings.Repeat("x", 50) + "tail",
		StderrTail: "err",
	}, opts)
	if diag.StdoutTail != "xxxxxxtail" {
		t.Fatalf("stdout tail = %q", diag.StdoutTail)
	}
	if diag.StderrTail != "err" || diag.LogTail != "log line" {
		t.Fatalf("diag = %+v", diag)
	}
	if diag.ExitCode != nil {
		t.Fatal("timeouts carry no exit code")
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "hello", n: 10, want: "hello"},
		{in: "hello", n: 3, want: "llo"},
		{in: "hello", n: 0, want: ""},
		{in: "", n: 5, want: ""},
		{in: "naïve café", n: 4, want: "café"},
		{in: "日本語テキスト", n: 3, want: "キスト"},
	}
	for _, tt := range tests {
		if got := Tail(tt.in, tt.n); got != tt.want {
			t.Errorf("Tail(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestLogTailReadsOnlyTheEnd(t *testing.T) {
	ws := testWorkspace(t)
	writeFile(t, ws, "document.log", strings.Repeat("a", 100000)+"FATAL")

	got := logTail(ws, "document.log", 5)
	if got != "FATAL" {
		t.Fatalf("logTail = %q, want FATAL", got)
	}
	if logTail(ws, "missing.log", 5) != "" {
		t.Fatal("missing log should yield empty tail")
	}
}
