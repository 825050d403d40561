package sourcemap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// S2: a line marker is offset by two from the comment line it appears on.
func TestCFor_LineMarkerOffsetByTwo(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.cbl"), "")

	lines := []string{`/* Generated from hello.cbl */`}
	for i := 0; i < 20; i++ {
		lines = append(lines, "")
	}
	markerLineNum := len(lines) + 1
	lines = append(lines, `/* Line: 10 (something) : hello.cbl */`)
	lines = append(lines, "MOVE (x) TO y;")
	writeFile(t, filepath.Join(dir, "hello.c"), strings.Join(lines, "\n")+"\n")

	sm, err := Build(nil, dir, []string{"hello.cbl"})
	require.NoError(t, err)

	entry := sm.CFor(filepath.Join(dir, "hello.cbl"), 10)
	require.False(t, entry.IsZero())
	require.Equal(t, markerLineNum+2, entry.CLine)
	require.Equal(t, filepath.Join(dir, "hello.c"), entry.CFile)
}

// S3: two markers for the same COBOL statement collapse to one entry and
// the retained entry is the later one.
func TestCFor_LastWriteWinsAndDedups(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.cbl"), "")
	content := `/* Generated from hello.cbl */
/* Line: 10 stmt : hello.cbl */
MOVE 1 TO x;
/* Line: 10 stmt : hello.cbl */
MOVE 2 TO x;
`
	writeFile(t, filepath.Join(dir, "hello.c"), content)

	sm, err := Build(nil, dir, []string{"hello.cbl"})
	require.NoError(t, err)

	entry := sm.CFor(filepath.Join(dir, "hello.cbl"), 10)
	require.False(t, entry.IsZero())
	require.Equal(t, 1, sm.LinesCount())

	// the retained C line corresponds to the second marker
	lines := strings.Split(content, "\n")
	secondMarkerLine := 0
	count := 0
	for i, l := range lines {
		if strings.Contains(l, "Line: 10") {
			count++
			if count == 2 {
				secondMarkerLine = i + 1
			}
		}
	}
	require.Equal(t, secondMarkerLine+2, entry.CLine)
}

// Round-trip invariant (property 1): for every retained line entry,
// cobol_for(c_file, c_line) and c_for(cobol_file, cobol_line) both yield
// it back.
func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.cbl"), "")
	writeFile(t, filepath.Join(dir, "hello.c"), `/* Generated from hello.cbl */
/* Line: 5 x : hello.cbl */
a();
/* Line: 6 x : hello.cbl */
b();
`)

	sm, err := Build(nil, dir, []string{"hello.cbl"})
	require.NoError(t, err)

	for _, cobolLine := range []int{5, 6} {
		e := sm.CFor(filepath.Join(dir, "hello.cbl"), cobolLine)
		require.False(t, e.IsZero())
		back := sm.CobolFor(e.CFile, e.CLine)
		require.Equal(t, e, back)
	}
}

// Property 3: variables defined in an #include'd file are indexed with
// the same identity as if scanned directly.
func TestIncludeRecursion_VariablesIndexed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.cbl"), "")
	writeFile(t, filepath.Join(dir, "defs.c"), `static cob_u8_t b_1 /* WS-COUNTER */;`)
	writeFile(t, filepath.Join(dir, "hello.c"), `/* Generated from hello.cbl */
#include "defs.c"
`)

	sm, err := Build(nil, dir, []string{"hello.cbl"})
	require.NoError(t, err)

	require.True(t, sm.HasCobol("b_1"))
	cobolName, ok := sm.CobolForName("b_1")
	require.True(t, ok)
	require.Equal(t, "WS-COUNTER", cobolName)

	cname, ok := sm.CForName("WS-COUNTER")
	require.True(t, ok)
	require.Equal(t, "b_1", cname)
}

// Property 4: a quoted query normalizes the same as the unquoted one.
func TestCForName_StripsQuotes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.cbl"), "")
	writeFile(t, filepath.Join(dir, "hello.c"), `/* Generated from hello.cbl */
static cob_u8_t b_7 /* WS-TOTAL */;
`)

	sm, err := Build(nil, dir, []string{"hello.cbl"})
	require.NoError(t, err)

	plain, ok := sm.CForName("WS-TOTAL")
	require.True(t, ok)
	quoted, ok := sm.CForName(`"WS-TOTAL"`)
	require.True(t, ok)
	require.Equal(t, plain, quoted)
}

// An include cycle must not hang the build.
func TestIncludeCycle_Terminates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.cbl"), "")
	writeFile(t, filepath.Join(dir, "a.c"), `#include "b.c"`)
	writeFile(t, filepath.Join(dir, "b.c"), `#include "a.c"`)
	writeFile(t, filepath.Join(dir, "hello.c"), `/* Generated from hello.cbl */
#include "a.c"
`)

	done := make(chan error, 1)
	go func() {
		_, err := Build(nil, dir, []string{"hello.cbl"})
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Build did not terminate on an include cycle")
	}
}

func TestMissingTopLevelCFile_IsError(t *testing.T) {
	dir := t.TempDir()
	_, err := Build(nil, dir, []string{"missing.cbl"})
	require.Error(t, err)
}

func TestExecutablePath(t *testing.T) {
	require.Equal(t, "foo", ExecutablePath("foo.cbl"))
}

// A generated C file older than its COBOL source logs a warning instead of
// failing the build outright.
func TestBuild_WarnsWhenGeneratedFileIsStale(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.cbl"), "")
	writeFile(t, filepath.Join(dir, "hello.c"), `/* Generated from hello.cbl */
/* Line: 1 stmt : hello.cbl */
MOVE 1 TO x;
`)

	old := time.Now().Add(-1 * time.Hour)
	recent := time.Now()
	require.NoError(t, os.Chtimes(filepath.Join(dir, "hello.c"), old, old))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "hello.cbl"), recent, recent))

	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	_, err := Build(logger, dir, []string{"hello.cbl"})
	require.NoError(t, err)

	found := false
	for _, entry := range logs.All() {
		if strings.Contains(entry.Message, "stale") {
			found = true
		}
	}
	require.True(t, found, "expected a staleness warning to be logged")
}

