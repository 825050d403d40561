// Package facade provides the high-level debugger operations a COBOL-aware
// UI drives: load/connect, run control, breakpoints, stack and variable
// inspection, and expression evaluation. It composes a session.Session
// (the GDB/MI2 child process) with a sourcemap.SourceMap, translating
// COBOL coordinates to C coordinates on the way in and back on the way
// out at every boundary.
package facade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/brunopacheco1/gnucobol-debug/internal/mi"
	"github.com/brunopacheco1/gnucobol-debug/internal/session"
	"github.com/brunopacheco1/gnucobol-debug/internal/sourcemap"
)

// Sink is the event surface exposed to the UI. It mirrors session.Sink
// exactly; the facade sits between the two, translating any C coordinate
// it can map back to COBOL before forwarding.
type Sink = session.Sink

// commandSender is the slice of *session.Session the facade actually
// calls; depending on the interface rather than the concrete type lets
// tests exercise breakpoint/stack/varobj translation against a fake GDB.
type commandSender interface {
	Send(command string, suppressFailure bool, args ...string) (mi.ResultRecord, error)
	Stop() error
	Detach() error
}

// Options configures a single debug session.
type Options struct {
	Cwd       string
	Target    string
	Group     []string
	CobcPath  string
	CobcArgs  []string
	GdbPath   string
	NoDebug   bool
	Env       map[string]*string
}

// Facade is the debugger-facing half of the adapter: one per debug
// session, torn down with it.
type Facade struct {
	logger *zap.Logger
	ui     Sink

	opts Options

	mu      sync.Mutex
	sess    commandSender
	sm      *sourcemap.SourceMap
	bps     *breakpointTable
	gdbPath string

	uiBreakDoneOnce sync.Once
	uiBreakDone     chan struct{}
}

// New creates a Facade that forwards translated events to ui.
func New(logger *zap.Logger, ui Sink) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{
		logger:      logger,
		ui:          ui,
		bps:         newBreakpointTable(),
		uiBreakDone: make(chan struct{}),
	}
}

// BuildEnv overlays overrides on top of base (normally os.Environ()),
// formatted as "KEY=VALUE" pairs; a nil value in overrides deletes the
// key from the result rather than setting it to the literal string
// "<nil>".
func BuildEnv(base []string, overrides map[string]*string) []string {
	merged := make(map[string]string, len(base))
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overrides {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = *v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

// Load compiles target (and group) with the configured COBOL compiler,
// then spawns and initializes GDB against the resulting executable. In
// NoDebug mode the compiler is run without debug flags and no GDB session
// is ever started; the facade just forwards the compiler's own stdio and
// emits Quit when it exits, since there is nothing left to debug.
func (f *Facade) Load(ctx context.Context, opts Options) error {
	f.mu.Lock()
	f.opts = opts
	f.mu.Unlock()

	if opts.NoDebug {
		return f.runCompilerNoDebug(ctx, opts)
	}

	if err := f.runCompiler(ctx, opts); err != nil {
		f.ui.Quit()
		return err
	}

	sm, err := sourcemap.Build(f.logger, opts.Cwd, append([]string{opts.Target}, opts.Group...))
	if err != nil {
		f.ui.LaunchError(err)
		return err
	}
	f.mu.Lock()
	f.sm = sm
	f.mu.Unlock()

	exe := sourcemap.ExecutablePath(resolveUnder(opts.Cwd, opts.Target))

	sess := session.New(f.logger, f)
	if err := sess.Spawn(ctx, opts.GdbPath, []string{"-q", "--interpreter=mi2"}, opts.Cwd, BuildEnv(os.Environ(), opts.Env)); err != nil {
		f.ui.LaunchError(err)
		return err
	}
	f.mu.Lock()
	f.sess = sess
	f.gdbPath = opts.GdbPath
	f.mu.Unlock()

	f.enableTargetAsyncIfSupported(sess, opts.GdbPath)
	if _, err := sess.Send("environment-directory", true, quote(opts.Cwd)); err != nil {
		f.logger.Warn("facade: environment-directory failed", zap.Error(err))
	}
	if _, err := sess.Send("file-exec-and-symbols", false, quote(exe)); err != nil {
		return err
	}

	f.ui.DebugReady()
	return nil
}

func (f *Facade) runCompiler(ctx context.Context, opts Options) error {
	args := append(append([]string{}, opts.CobcArgs...), "-g", "-d", "-fdebugging-line", "-fsource-location", "-ftraceall", opts.Target)
	args = append(args, opts.Group...)
	return runAndForward(ctx, f.ui, opts.CobcPath, args, opts.Cwd)
}

func (f *Facade) runCompilerNoDebug(ctx context.Context, opts Options) error {
	args := append(append([]string{}, opts.CobcArgs...), "-j", opts.Target)
	args = append(args, opts.Group...)
	err := runAndForward(ctx, f.ui, opts.CobcPath, args, opts.Cwd)
	f.ui.Quit()
	return err
}

// enableTargetAsyncIfSupported probes gdbPath's own version and only sends
// "gdb-set target-async on" when that GDB build is new enough to honor it;
// older GDBs silently accept the setting but never deliver the async
// "^running" replies the rest of the facade assumes, so skipping it there
// keeps run control on the synchronous path instead of hanging. A failed
// probe (gdb not found yet, unparsable banner) falls back to sending it
// anyway, suppressed, which is the previous behavior.
func (f *Facade) enableTargetAsyncIfSupported(sess commandSender, gdbPath string) {
	v, err := session.ProbeGDBVersion(gdbPath)
	if err != nil {
		f.logger.Warn("facade: could not probe gdb version, assuming target-async support", zap.Error(err))
		if _, err := sess.Send("gdb-set target-async on", true); err != nil {
			f.logger.Warn("facade: gdb-set target-async failed", zap.Error(err))
		}
		return
	}
	if !session.SupportsTargetAsync(v) {
		f.logger.Info("facade: gdb predates target-async support, staying synchronous", zap.String("version", v.String()))
		return
	}
	if _, err := sess.Send("gdb-set target-async on", true); err != nil {
		f.logger.Warn("facade: gdb-set target-async failed", zap.Error(err))
	}
}

func resolveUnder(cwd, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cwd, p)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// Connect attaches to an already-running target over GDB's remote
// protocol instead of launching and compiling one.
func (f *Facade) Connect(ctx context.Context, opts Options, executable, target string) error {
	f.mu.Lock()
	f.opts = opts
	f.mu.Unlock()

	sess := session.New(f.logger, f)
	args := []string{"-q", "--interpreter=mi2"}
	if executable != "" {
		args = append(args, executable)
	}
	if err := sess.Spawn(ctx, opts.GdbPath, args, opts.Cwd, BuildEnv(os.Environ(), opts.Env)); err != nil {
		f.ui.LaunchError(err)
		return err
	}
	f.mu.Lock()
	f.sess = sess
	f.gdbPath = opts.GdbPath
	f.mu.Unlock()

	f.enableTargetAsyncIfSupported(sess, opts.GdbPath)
	if _, err := sess.Send("environment-directory", true, quote(opts.Cwd)); err != nil {
		f.logger.Warn("facade: environment-directory failed", zap.Error(err))
	}
	if _, err := sess.Send("target-select", false, "remote", target); err != nil {
		return err
	}

	f.ui.DebugReady()
	return nil
}

// NotifyBreakpointsInstalled releases a pending Start once the UI has
// finished installing its initial set of breakpoints.
func (f *Facade) NotifyBreakpointsInstalled() {
	f.uiBreakDoneOnce.Do(func() { close(f.uiBreakDone) })
}

// Start waits for NotifyBreakpointsInstalled, then issues exec-run.
func (f *Facade) Start(ctx context.Context) (bool, error) {
	select {
	case <-f.uiBreakDone:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	res, err := f.session().Send("exec-run", false)
	if err != nil {
		return false, err
	}
	return res.Class == mi.ClassRunning, nil
}

func (f *Facade) session() commandSender {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

func (f *Facade) sourceMap() *sourcemap.SourceMap {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sm
}

func execCommand(base string, reverse bool) string {
	if reverse {
		return base + " --reverse"
	}
	return base
}

// Continue resumes execution; resolves true iff GDB answered "running".
func (f *Facade) Continue(reverse bool) (bool, error) { return f.runOk(execCommand("exec-continue", reverse)) }

// Next steps over the current line.
func (f *Facade) Next(reverse bool) (bool, error) { return f.runOk(execCommand("exec-next", reverse)) }

// Step steps into the current line.
func (f *Facade) Step(reverse bool) (bool, error) { return f.runOk(execCommand("exec-step", reverse)) }

// StepOut finishes the current frame.
func (f *Facade) StepOut(reverse bool) (bool, error) { return f.runOk(execCommand("exec-finish", reverse)) }

func (f *Facade) runOk(command string) (bool, error) {
	res, err := f.session().Send(command, false)
	if err != nil {
		return false, err
	}
	return res.Class == mi.ClassRunning, nil
}

// Interrupt pauses a running target; resolves true iff GDB answered "done".
func (f *Facade) Interrupt() (bool, error) {
	res, err := f.session().Send("exec-interrupt", false)
	if err != nil {
		return false, err
	}
	return res.Class == mi.ClassDone, nil
}

// Goto places a temporary breakpoint at cobolFile:cobolLine (translated to
// its C location) and jumps execution there directly.
func (f *Facade) Goto(cobolFile string, cobolLine int) error {
	entry := f.sourceMap().CFor(cobolFile, cobolLine)
	if entry.IsZero() {
		return fmt.Errorf("facade: no source mapping for %s:%d", cobolFile, cobolLine)
	}
	loc := fmt.Sprintf("%s:%d", entry.CFile, entry.CLine)
	if _, err := f.session().Send("break-insert", false, "-t", quote(loc)); err != nil {
		return err
	}
	_, err := f.session().Send("exec-jump", false, quote(loc))
	return err
}

// SendUserInput forwards a raw line typed at the console: a leading "-"
// means it is already MI syntax (minus the dash); anything else is
// wrapped as a console command through interpreter-exec.
func (f *Facade) SendUserInput(line string) error {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "-") {
		_, err := f.session().Send(line[1:], false)
		return err
	}
	_, err := f.session().Send("interpreter-exec", false, "console", quote(line))
	return err
}

// Stop tears down the GDB session.
func (f *Facade) Stop() error {
	sess := f.session()
	if sess == nil {
		return nil
	}
	return sess.Stop()
}

// Detach disconnects from a remote target without killing it.
func (f *Facade) Detach() error {
	sess := f.session()
	if sess == nil {
		return nil
	}
	return sess.Detach()
}
