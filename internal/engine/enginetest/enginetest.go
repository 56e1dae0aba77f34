// Package enginetest provides fake typesetting engines for tests.
//
// Each fake is a /bin/sh script run with the workspace as its working
// directory, so it can read document.tex and write document.pdf directly.
package enginetest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/texgate/internal/config"
)

// PDFMagic is the prefix every fake artifact starts with.
const PDFMagic = "%PDF"

// Typesetter writes a PDF unless the source contains "broken{", in which
// case it reports an error on stderr and in document.log and exits 1.
const Typesetter = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "FakeTeX 3.141592653 (texgate test engine)"
  echo "second line"
  exit 0
fi
if grep -q 'broken{' document.tex; then
  echo "This is FakeTeX, processing document.tex"
  echo "! Missing } inserted." >&2
  printf '! Emergency stop.\nl.1 \\broken{\n' > document.log
  exit 1
fi
echo "This is FakeTeX, processing document.tex"
printf '%%PDF-1.5\nfake body\n%%%%EOF\n' > document.pdf
echo "Output written on document.pdf"
exit 0
`

// Hang starts a background child, records its PID in $PIDFILE and blocks.
const Hang = `#!/bin/sh
echo "starting"
sleep 30 &
echo $! > "$PIDFILE"
wait
`

// Stubborn is Hang with SIGTERM ignored, so only SIGKILL stops it.
const Stubborn = `#!/bin/sh
trap '' TERM
echo "starting"
sleep 30 &
echo $! > "$PIDFILE"
wait
`

// SecondPassFails succeeds on pass 1, then deletes the artifact and exits 1
// on pass 2.
const SecondPassFails = `#!/bin/sh
n=$(cat passes 2>/dev/null || echo 0)
n=$((n+1))
echo $n > passes
if [ "$n" -ge 2 ]; then
  rm -f document.pdf
  echo "pass two failed" >&2
  exit 1
fi
printf '%%PDF-pass1' > document.pdf
exit 0
`

// VanishesAfterFirstPass succeeds once and deletes its own binary, so the
// second pass cannot start.
const VanishesAfterFirstPass = `#!/bin/sh
printf '%%PDF-pass1' > document.pdf
rm -f "$0"
exit 0
`

// SecondPassHangs succeeds on pass 1 and never finishes pass 2.
const SecondPassHangs = `#!/bin/sh
n=$(cat passes 2>/dev/null || echo 0)
n=$((n+1))
echo $n > passes
if [ "$n" -ge 2 ]; then
  exec sleep 30
fi
printf '%%PDF-pass1' > document.pdf
exit 0
`

// CountingPasses writes a PDF whose body names the pass that produced it.
const CountingPasses = `#!/bin/sh
n=$(cat passes 2>/dev/null || echo 0)
n=$((n+1))
echo $n > passes
printf '%%PDF-pass%s' "$n" > document.pdf
exit 0
`

// NoArtifact exits zero without producing output.
const NoArtifact = `#!/bin/sh
echo "No pages of output."
exit 0
`

// Write stores script as an executable in a temp dir and returns its path.
func Write(t testing.TB, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-engine")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

// Config returns the default engine config pointed at binary with short
// test-friendly timeouts.
func Config(binary string) config.EngineConfig {
	cfg := config.Defaults().Engine
	cfg.Binary = binary
	cfg.DefaultTimeout = 5 * time.Second
	cfg.MaxTimeout = 10 * time.Second
	cfg.TerminationGrace = 200 * time.Millisecond
	return cfg
}
