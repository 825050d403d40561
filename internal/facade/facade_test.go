package facade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brunopacheco1/gnucobol-debug/internal/mi"
	"github.com/brunopacheco1/gnucobol-debug/internal/sourcemap"
)

// fakeSender is a scriptable stand-in for *session.Session: each call
// records the exact command+args it received and returns the next queued
// reply, in order.
type fakeSender struct {
	calls   []string
	replies []mi.ResultRecord
	errs    []error
	i       int
}

func (f *fakeSender) Send(command string, suppressFailure bool, args ...string) (mi.ResultRecord, error) {
	line := command
	for _, a := range args {
		line += " " + a
	}
	f.calls = append(f.calls, line)
	if f.i >= len(f.replies) {
		return mi.ResultRecord{Class: mi.ClassDone}, nil
	}
	res, err := f.replies[f.i], f.errs[f.i]
	f.i++
	return res, err
}

func (f *fakeSender) Stop() error   { return nil }
func (f *fakeSender) Detach() error { return nil }

func (f *fakeSender) queue(res mi.ResultRecord, err error) {
	f.replies = append(f.replies, res)
	f.errs = append(f.errs, err)
}

type fakeSink struct {
	calls []string
}

func (s *fakeSink) Msg(channel, text string)     { s.calls = append(s.calls, "msg:"+channel) }
func (s *fakeSink) Quit()                        { s.calls = append(s.calls, "quit") }
func (s *fakeSink) LaunchError(err error)        { s.calls = append(s.calls, "launch-error") }
func (s *fakeSink) DebugReady()                  { s.calls = append(s.calls, "debug-ready") }
func (s *fakeSink) Running()                     { s.calls = append(s.calls, "running") }
func (s *fakeSink) Breakpoint(v mi.Value)        { s.calls = append(s.calls, "breakpoint") }
func (s *fakeSink) StepEnd(v mi.Value)           { s.calls = append(s.calls, "step-end") }
func (s *fakeSink) StepOutEnd(v mi.Value)        { s.calls = append(s.calls, "step-out-end") }
func (s *fakeSink) SignalStop(v mi.Value)        { s.calls = append(s.calls, "signal-stop") }
func (s *fakeSink) ExitedNormally()              { s.calls = append(s.calls, "exited-normally") }
func (s *fakeSink) Stopped(v mi.Value)           { s.calls = append(s.calls, "stopped") }
func (s *fakeSink) ThreadCreated(id string)      { s.calls = append(s.calls, "thread-created") }
func (s *fakeSink) ThreadExited(id string)       { s.calls = append(s.calls, "thread-exited") }
func (s *fakeSink) ExecAsyncOutput(rec mi.Record) { s.calls = append(s.calls, "exec-async") }

func newTestFacade(t *testing.T) (*Facade, *fakeSender, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	f := New(nil, sink)
	sender := &fakeSender{}
	f.sess = sender
	return f, sender, sink
}

func mustParse(t *testing.T, line string) mi.ResultRecord {
	t.Helper()
	rec, err := mi.Parse(line)
	require.NoError(t, err)
	return *rec.Result
}

// S4: a mapped breakpoint with a plain condition writes break-insert with
// the translated C location, then a separate break-condition command.
func TestAddBreakPoint_MappedWithCondition(t *testing.T) {
	f, sender, _ := newTestFacade(t)

	dir := t.TempDir()
	cobol := filepath.Join(dir, "hello.cbl")
	// build a real source map via the package's own Build so CFor/CobolFor
	// stay in sync, rather than poking at unexported fields directly.
	writeForSourceMap(t, dir, "hello.cbl", `/* Generated from hello.cbl */
/* Line: 10 stmt : hello.cbl */
MOVE 1 TO x;
`)
	built, err := sourcemap.Build(nil, dir, []string{"hello.cbl"})
	require.NoError(t, err)
	f.sm = built

	sender.queue(mustParse(t, fmt.Sprintf(`^done,bkpt={number="1",file="%s",line="4"}`, filepath.Join(dir, "hello.c"))), nil)
	sender.queue(mustParse(t, `^done`), nil)

	bp, err := f.AddBreakPoint(Breakpoint{File: cobol, Line: 10, Condition: "x > 0"})
	require.NoError(t, err)
	require.Equal(t, "1", bp.GDBID)
	require.Len(t, sender.calls, 2)
	require.Contains(t, sender.calls[0], "break-insert -f")
	require.Contains(t, sender.calls[0], fmt.Sprintf(`"%s:4"`, filepath.Join(dir, "hello.c")))
	require.Equal(t, `break-condition 1 x > 0`, sender.calls[1])
}

// S5: a raw breakpoint with a ">N" count condition becomes "-i N".
func TestAddBreakPoint_RawWithGtCountCondition(t *testing.T) {
	f, sender, _ := newTestFacade(t)
	sender.queue(mustParse(t, `^done,bkpt={number="1",file="a.c",line="1"}`), nil)

	_, err := f.AddBreakPoint(Breakpoint{Raw: "main", CountCondition: ">3"})
	require.NoError(t, err)
	require.Equal(t, `break-insert -f -i 3 "main"`, sender.calls[0])
}

func TestAddBreakPoint_BareCountZeroIsJustTemporary(t *testing.T) {
	f, sender, _ := newTestFacade(t)
	sender.queue(mustParse(t, `^done,bkpt={number="1",file="a.c",line="1"}`), nil)

	_, err := f.AddBreakPoint(Breakpoint{Raw: "main", CountCondition: "0"})
	require.NoError(t, err)
	require.Equal(t, `break-insert -f -t "main"`, sender.calls[0])
}

func TestAddBreakPoint_DuplicateIsNotReinstalled(t *testing.T) {
	f, sender, _ := newTestFacade(t)
	sender.queue(mustParse(t, `^done,bkpt={number="1",file="a.c",line="1"}`), nil)

	bp := Breakpoint{Raw: "main"}
	first, err := f.AddBreakPoint(bp)
	require.NoError(t, err)
	second, err := f.AddBreakPoint(bp)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, sender.calls, 1)
}

func TestStart_WaitsForBreakpointRendezvous(t *testing.T) {
	f, sender, _ := newTestFacade(t)
	sender.queue(mustParse(t, `^running`), nil)

	resultCh := make(chan bool, 1)
	go func() {
		ok, err := f.Start(context.Background())
		require.NoError(t, err)
		resultCh <- ok
	}()

	select {
	case <-resultCh:
		t.Fatal("Start returned before NotifyBreakpointsInstalled was called")
	case <-time.After(50 * time.Millisecond):
	}

	f.NotifyBreakpointsInstalled()

	select {
	case ok := <-resultCh:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after the rendezvous")
	}
}

func TestControlFlow_ResolvesTrueOnRunning(t *testing.T) {
	f, sender, _ := newTestFacade(t)
	sender.queue(mustParse(t, `^running`), nil)
	ok, err := f.Continue(false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "exec-continue", sender.calls[0])
}

func TestControlFlow_ReverseAppendsFlag(t *testing.T) {
	f, sender, _ := newTestFacade(t)
	sender.queue(mustParse(t, `^running`), nil)
	_, _ = f.Next(true)
	require.Equal(t, "exec-next --reverse", sender.calls[0])
}

func TestInterrupt_ResolvesTrueOnDone(t *testing.T) {
	f, sender, _ := newTestFacade(t)
	sender.queue(mustParse(t, `^done`), nil)
	ok, err := f.Interrupt()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSendUserInput_DashPrefixIsRawMI(t *testing.T) {
	f, sender, _ := newTestFacade(t)
	sender.queue(mustParse(t, `^done`), nil)
	require.NoError(t, f.SendUserInput("-exec-continue"))
	require.Equal(t, "exec-continue", sender.calls[0])
}

func TestSendUserInput_PlainLineWrapsAsConsole(t *testing.T) {
	f, sender, _ := newTestFacade(t)
	sender.queue(mustParse(t, `^done`), nil)
	require.NoError(t, f.SendUserInput("print x"))
	require.Equal(t, `interpreter-exec console "print x"`, sender.calls[0])
}

func TestBuildEnv_NilValueDeletesKey(t *testing.T) {
	base := []string{"A=1", "B=2", "C=3"}
	out := BuildEnv(base, map[string]*string{"B": nil, "D": strPtr("4")})
	m := map[string]bool{}
	for _, kv := range out {
		m[kv] = true
	}
	require.True(t, m["A=1"])
	require.True(t, m["C=3"])
	require.True(t, m["D=4"])
	for kv := range m {
		require.NotEqual(t, "B=2", kv)
	}
}

func strPtr(s string) *string { return &s }

func writeForSourceMap(t *testing.T, dir, cobolRelPath, cContent string) {
	t.Helper()
	writeFileHelper(t, filepath.Join(dir, cobolRelPath), "")
	cFile := cobolRelPath[:len(cobolRelPath)-len(filepath.Ext(cobolRelPath))] + ".c"
	writeFileHelper(t, filepath.Join(dir, cFile), cContent)
}

func writeFileHelper(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
