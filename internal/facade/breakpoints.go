package facade

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Breakpoint is a user-requested breakpoint, either mapped to a COBOL
// file+line or carrying a raw GDB location string directly.
type Breakpoint struct {
	File           string
	Line           int
	Raw            string
	Condition      string
	CountCondition string

	// GDBID is filled in once the breakpoint is installed.
	GDBID string
}

func (b Breakpoint) isRaw() bool { return b.Raw != "" }

func (b Breakpoint) key() string {
	if b.isRaw() {
		return "raw:" + b.Raw
	}
	return fmt.Sprintf("%s:%d", b.File, b.Line)
}

type breakpointTable struct {
	mu      sync.Mutex
	byKey   map[string]Breakpoint
	byGDBID map[string]Breakpoint
}

func newBreakpointTable() *breakpointTable {
	return &breakpointTable{byKey: make(map[string]Breakpoint), byGDBID: make(map[string]Breakpoint)}
}

func (t *breakpointTable) get(key string) (Breakpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bp, ok := t.byKey[key]
	return bp, ok
}

func (t *breakpointTable) put(bp Breakpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey[bp.key()] = bp
	t.byGDBID[bp.GDBID] = bp
}

func (t *breakpointTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if bp, ok := t.byGDBID[id]; ok {
		delete(t.byKey, bp.key())
		delete(t.byGDBID, id)
	}
}

func (t *breakpointTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey = make(map[string]Breakpoint)
	t.byGDBID = make(map[string]Breakpoint)
}

// countConditionFlags translates a count-condition expression into the
// break-insert flags that implement it:
//
//   - ">N"  -> "-i N"       (ignore the first N hits)
//   - "N"   -> "-t -i N"    (temporary, break on the (N+1)th hit), or just
//     "-t" when N == 0
//   - anything else is logged and falls back to "-t"
func countConditionFlags(logger *zap.Logger, expr string) []string {
	if expr == "" {
		return nil
	}
	if strings.HasPrefix(expr, ">") {
		if n, err := strconv.Atoi(strings.TrimSpace(expr[1:])); err == nil {
			return []string{"-i", strconv.Itoa(n)}
		}
	} else if n, err := strconv.Atoi(strings.TrimSpace(expr)); err == nil {
		if n == 0 {
			return []string{"-t"}
		}
		return []string{"-t", "-i", strconv.Itoa(n)}
	}
	logger.Warn("facade: unsupported break count expression, falling back to a plain temporary breakpoint", zap.String("expr", expr))
	return []string{"-t"}
}

// AddBreakPoint installs bp, de-duplicating against already-live
// breakpoints with the same identity. On success it returns the
// canonical breakpoint record (GDB id filled in, and file/line translated
// back to COBOL coordinates when bp was mapped rather than raw).
func (f *Facade) AddBreakPoint(bp Breakpoint) (Breakpoint, error) {
	if existing, ok := f.bps.get(bp.key()); ok {
		return existing, nil
	}

	var location string
	if bp.isRaw() {
		location = quote(bp.Raw)
	} else {
		entry := f.sourceMap().CFor(bp.File, bp.Line)
		if entry.IsZero() {
			return Breakpoint{}, fmt.Errorf("facade: no source mapping for %s:%d", bp.File, bp.Line)
		}
		location = quote(fmt.Sprintf("%s:%d", entry.CFile, entry.CLine))
	}

	args := append(countConditionFlags(f.logger, bp.CountCondition), location)
	res, err := f.session().Send("break-insert", false, append([]string{"-f"}, args...)...)
	if err != nil {
		return Breakpoint{}, err
	}

	number, _ := res.Values.PathString("bkpt.number")
	cFile, _ := res.Values.PathString("bkpt.file")
	cLineStr, _ := res.Values.PathString("bkpt.line")
	cLine := parseLine(cLineStr)

	installed := bp
	installed.GDBID = number
	if !bp.isRaw() {
		if cobol := f.sourceMap().CobolFor(cFile, cLine); !cobol.IsZero() {
			installed.File = cobol.CobolFile
			installed.Line = cobol.CobolLine
		}
	}

	if bp.Condition != "" {
		if _, err := f.session().Send("break-condition", false, number, bp.Condition); err != nil {
			f.logger.Warn("facade: break-condition failed, breakpoint remains unconditional", zap.String("id", number), zap.Error(err))
		}
	}

	f.bps.put(installed)
	return installed, nil
}

// RemoveBreakPoint deletes the breakpoint with the given GDB id.
func (f *Facade) RemoveBreakPoint(gdbID string) error {
	if _, err := f.session().Send("break-delete", false, gdbID); err != nil {
		return err
	}
	f.bps.remove(gdbID)
	return nil
}

// ClearBreakPoints deletes every breakpoint GDB currently knows about.
func (f *Facade) ClearBreakPoints() error {
	if _, err := f.session().Send("break-delete", false); err != nil {
		return err
	}
	f.bps.clear()
	return nil
}
