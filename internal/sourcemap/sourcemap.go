// Package sourcemap parses the marker comments a COBOL-to-C compiler
// leaves in its generated C sources and builds the bidirectional
// COBOL<->C index the debugger facade consults on every breakpoint, step,
// frame listing, and expression evaluation.
//
// This is a line-oriented scan, not a C parser: the grammar it understands
// is exactly the four marker shapes documented in the adapter's source-map
// design, nothing more (see the package-level regexes below).
package sourcemap

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// LineEntry is one COBOL<->C line correspondence. The zero value is the
// sentinel returned by lookups that miss: callers treat empty file strings
// and line 0 as "no mapping, fall through to raw coordinates."
type LineEntry struct {
	CobolFile string
	CobolLine int
	CFile     string
	CLine     int
}

// IsZero reports whether e is the sentinel "no mapping" entry.
func (e LineEntry) IsZero() bool {
	return e == LineEntry{}
}

// VarEntry is one COBOL<->C variable correspondence.
type VarEntry struct {
	CobolName string
	CName     string
}

type cobolKey struct {
	file string
	line int
}

type cKey struct {
	file string
	line int
}

// SourceMap is the in-memory index built once per load and consulted for
// the lifetime of a debug session.
type SourceMap struct {
	cwd string

	lines   []LineEntry
	byCobol map[cobolKey]int
	byC     map[cKey]int

	varsByCName map[string]VarEntry
	cNameByVar  map[string]string

	logger *zap.Logger
}

var (
	reGenerated  = regexp.MustCompile(`(?i)/\*\s*Generated from\s+(.+?)\s*\*/`)
	reLineMarker = regexp.MustCompile(`(?i)/\*\s*Line:\s*(\d+)\s*.*?:\s*(\S.*?)\s*\*/`)
	reVarMarker  = regexp.MustCompile(`(?i)^\s*static\s+cob_u8_t\s+(\S+?)\b.*/\*\s*(.+?)\s*\*/\s*;?\s*$`)
	reInclude    = regexp.MustCompile(`^\s*#include\s+"([^"]+)"`)
)

// Build scans the generated C file for each given COBOL source path
// (resolving "X.cbl" to "X.c" next to it) and every file it transitively
// #includes, returning the populated source map. Relative paths are
// resolved against cwd. A missing top-level generated C file is a hard
// I/O error; a missing #include is logged and skipped so one bad include
// does not take down the whole map.
func Build(logger *zap.Logger, cwd string, cobolPaths []string) (*SourceMap, error) {
	absCwd, err := filepath.Abs(cwd)
	if err != nil {
		return nil, fmt.Errorf("sourcemap: resolve cwd: %w", err)
	}

	sm := &SourceMap{
		cwd:         absCwd,
		byCobol:     make(map[cobolKey]int),
		byC:         make(map[cKey]int),
		varsByCName: make(map[string]VarEntry),
		cNameByVar:  make(map[string]string),
		logger:      logger,
	}

	visited := make(map[string]bool)
	for _, p := range cobolPaths {
		cobolAbs := resolvePath(p, absCwd)
		cFile := strings.TrimSuffix(cobolAbs, filepath.Ext(cobolAbs)) + ".c"
		sm.warnIfStale(cFile, cobolAbs)
		if err := sm.parseCFile(cFile, cobolAbs, visited, true); err != nil {
			return nil, err
		}
	}
	return sm, nil
}

// warnIfStale logs a warning, but does not fail the build, when cFile's
// mtime predates cobolFile's: the generated C file was not recompiled
// after its COBOL source last changed, so the map Build produces may no
// longer describe what is actually on disk.
func (sm *SourceMap) warnIfStale(cFile, cobolFile string) {
	if sm.logger == nil {
		return
	}
	cInfo, err := os.Stat(cFile)
	if err != nil {
		return // missing C file surfaces as a hard error a few lines later
	}
	cobolInfo, err := os.Stat(cobolFile)
	if err != nil {
		return
	}
	if cInfo.ModTime().Before(cobolInfo.ModTime()) {
		sm.logger.Warn("sourcemap: generated C file is older than its COBOL source, mapping may be stale",
			zap.String("c_file", cFile), zap.String("cobol_file", cobolFile))
	}
}

func resolvePath(p, cwd string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(cwd, p))
}

// parseCFile scans one generated C file, recursing into #includes. top
// controls whether an open failure is fatal (true for the file driving a
// COBOL source directly) or merely logged (false for an #include).
func (sm *SourceMap) parseCFile(cFile, initialCobolFile string, visited map[string]bool, top bool) error {
	if visited[cFile] {
		return nil
	}
	visited[cFile] = true

	f, err := os.Open(cFile)
	if err != nil {
		if top {
			return fmt.Errorf("sourcemap: open %s: %w", cFile, err)
		}
		if sm.logger != nil {
			sm.logger.Warn("sourcemap: could not open included file, skipping", zap.String("file", cFile), zap.Error(err))
		}
		return nil
	}
	defer f.Close()

	currentCobolFile := initialCobolFile
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if m := reGenerated.FindStringSubmatch(line); m != nil {
			currentCobolFile = resolvePath(strings.TrimSpace(m[1]), sm.cwd)
			continue
		}
		if m := reLineMarker.FindStringSubmatch(line); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue // unreadable line: skip, per the marker's own error tolerance
			}
			cobolFile := currentCobolFile
			if path := strings.TrimSpace(m[2]); path != "" {
				cobolFile = resolvePath(path, sm.cwd)
			}
			sm.addLineEntry(LineEntry{
				CobolFile: cobolFile,
				CobolLine: n,
				CFile:     cFile,
				CLine:     lineNum + 2,
			})
			continue
		}
		if m := reVarMarker.FindStringSubmatch(line); m != nil {
			sm.addVarEntry(VarEntry{CobolName: strings.TrimSpace(m[2]), CName: strings.TrimSpace(m[1])})
			continue
		}
		if m := reInclude.FindStringSubmatch(line); m != nil {
			includedAbs := resolvePath(m[1], sm.cwd)
			if err := sm.parseCFile(includedAbs, currentCobolFile, visited, false); err != nil {
				return err
			}
			continue
		}
	}
	if err := scanner.Err(); err != nil && sm.logger != nil {
		sm.logger.Warn("sourcemap: error reading file, map may be incomplete", zap.String("file", cFile), zap.Error(err))
	}
	return nil
}

// addLineEntry applies the dedup rule: a new entry whose (cobol_file,
// cobol_line) identity matches an existing one replaces it in place, so
// every COBOL coordinate has at most one current C coordinate (the
// stronger, general form of the "immediately previous entry" rule — see
// DESIGN.md for why this supersedes the narrower wording without changing
// any documented scenario's outcome).
func (sm *SourceMap) addLineEntry(e LineEntry) {
	key := cobolKey{e.CobolFile, e.CobolLine}
	if idx, ok := sm.byCobol[key]; ok {
		old := sm.lines[idx]
		delete(sm.byC, cKey{old.CFile, old.CLine})
		sm.lines[idx] = e
		sm.byC[cKey{e.CFile, e.CLine}] = idx
		return
	}
	sm.lines = append(sm.lines, e)
	idx := len(sm.lines) - 1
	sm.byCobol[key] = idx
	sm.byC[cKey{e.CFile, e.CLine}] = idx
}

func (sm *SourceMap) addVarEntry(e VarEntry) {
	sm.varsByCName[e.CName] = e
	sm.cNameByVar[e.CobolName] = e.CName
}

// CFor resolves a COBOL file+line to its current C coordinate, or the
// sentinel entry if there is no mapping.
func (sm *SourceMap) CFor(cobolFile string, cobolLine int) LineEntry {
	key := cobolKey{resolvePath(cobolFile, sm.cwd), cobolLine}
	if idx, ok := sm.byCobol[key]; ok {
		return sm.lines[idx]
	}
	return LineEntry{}
}

// CobolFor resolves a C file+line back to its COBOL coordinate, or the
// sentinel entry if there is no mapping.
func (sm *SourceMap) CobolFor(cFile string, cLine int) LineEntry {
	key := cKey{resolvePath(cFile, sm.cwd), cLine}
	if idx, ok := sm.byC[key]; ok {
		return sm.lines[idx]
	}
	return LineEntry{}
}

func stripQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

// HasCobol reports whether cName is a known C variable identifier.
func (sm *SourceMap) HasCobol(cName string) bool {
	_, ok := sm.varsByCName[cName]
	return ok
}

// CobolForName returns the COBOL name for a known C variable identifier.
func (sm *SourceMap) CobolForName(cName string) (string, bool) {
	v, ok := sm.varsByCName[cName]
	if !ok {
		return "", false
	}
	return v.CobolName, true
}

// CForName returns the mangled C identifier for a COBOL variable name,
// after stripping any ASCII double quotes from the query (IDEs sometimes
// quote variable names in evaluation requests).
func (sm *SourceMap) CForName(cobolName string) (string, bool) {
	cname, ok := sm.cNameByVar[stripQuotes(cobolName)]
	return cname, ok
}

// LinesCount returns the number of distinct line-mapping entries currently
// held (used by tests to verify the dedup rule collapses repeated markers
// for the same COBOL statement into one entry).
func (sm *SourceMap) LinesCount() int {
	return len(sm.lines)
}

// ExecutablePath derives the compiled executable path for a COBOL target
// source file: the target with its extension stripped, plus ".exe" on
// Windows.
func ExecutablePath(target string) string {
	base := strings.TrimSuffix(target, filepath.Ext(target))
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
