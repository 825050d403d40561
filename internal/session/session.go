// Package session owns a GDB/MI2 child process: it serializes outgoing
// commands (one fresh integer token per command), classifies and parses
// incoming lines, resolves pending requests by token, and dispatches
// out-of-band records to a Sink as typed events. See the adapter's
// session design for the exact protocol and buffering rules this
// implements.
package session

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kr/pty"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brunopacheco1/gnucobol-debug/internal/mi"
)

// watchdogTimeout is the grace period stop()/detach() give the child to
// exit on its own before it is killed outright.
const watchdogTimeout = 1 * time.Second

type pendingReply struct {
	record          mi.Record
	err             error
	suppressFailure bool
}

// Session is a live GDB/MI child process plus its command/event plumbing.
// A Session is confined to one goroutine group and holds the pending-reply
// table; breakpoint bookkeeping lives one layer up in the facade.
type Session struct {
	logger *zap.Logger
	sink   Sink

	cmd    *exec.Cmd
	ptmx   *os.File // combined stdin/stdout over a pty
	stderr *os.File // separate read end for the child's stderr

	mu      sync.Mutex
	token   int
	pending map[int]chan pendingReply

	exited chan struct{}
	exitMu sync.Once

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Session that will report events to sink. Spawn must be
// called before any command can be sent.
func New(logger *zap.Logger, sink Sink) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		logger:  logger,
		sink:    sink,
		pending: make(map[int]chan pendingReply),
		exited:  make(chan struct{}),
	}
}

// Spawn starts name with args under a pty, in its own process group, with
// cwd as its working directory and env used as its complete environment
// (callers build env with facade.BuildEnv, which overlays overrides on the
// current process environment).
func (s *Session) Spawn(ctx context.Context, name string, args []string, cwd string, env []string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = cwd
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	ptmx, tty, err := pty.Open()
	if err != nil {
		return fmt.Errorf("session: open pty: %w", err)
	}
	cmd.Stdin = tty
	cmd.Stdout = tty

	errR, errW, err := os.Pipe()
	if err != nil {
		ptmx.Close()
		tty.Close()
		return fmt.Errorf("session: open stderr pipe: %w", err)
	}
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		ptmx.Close()
		tty.Close()
		errR.Close()
		errW.Close()
		return fmt.Errorf("session: start %s: %w", name, err)
	}
	tty.Close()
	errW.Close()

	s.cmd = cmd
	s.ptmx = ptmx
	s.stderr = errR

	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	s.group = g

	g.Go(func() error { return s.readStdout(gctx) })
	g.Go(func() error { return s.readStderr(gctx) })
	g.Go(func() error {
		waitErr := cmd.Wait()
		s.exitMu.Do(func() { close(s.exited) })
		return waitErr
	})

	return nil
}

// Send assigns a fresh token, writes "<token>-<command> <args...>\n" to
// the child's stdin, and blocks until that token's reply arrives. When
// suppressFailure is true, an error-class reply resolves normally instead
// of returning an error (for commands that are expected to fail
// benignly, e.g. best-effort directory setup).
func (s *Session) Send(command string, suppressFailure bool, args ...string) (mi.ResultRecord, error) {
	s.mu.Lock()
	s.token++
	tok := s.token
	ch := make(chan pendingReply, 1)
	s.pending[tok] = ch
	s.mu.Unlock()

	line := fmt.Sprintf("%d-%s", tok, command)
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}
	s.logger.Debug("session: -> gdb", zap.Int("token", tok), zap.String("line", line))

	if err := s.writeLine(line); err != nil {
		s.mu.Lock()
		delete(s.pending, tok)
		s.mu.Unlock()
		return mi.ResultRecord{}, err
	}

	reply := <-ch
	if reply.err != nil {
		return mi.ResultRecord{}, reply.err
	}
	if reply.record.Result != nil && reply.record.Result.Class == mi.ClassError && !suppressFailure {
		msg, _ := reply.record.Result.Values.PathString("msg")
		return *reply.record.Result, &MIError{Command: command, Msg: msg}
	}
	if reply.record.Result == nil {
		return mi.ResultRecord{}, fmt.Errorf("session: token %d resolved without a result record", tok)
	}
	return *reply.record.Result, nil
}

// sendRaw writes a command directly to the child's stdin without a token
// and without waiting for a reply; used by Stop/Detach, where GDB's ack
// for "-gdb-exit" is irrelevant once the watchdog is armed.
func (s *Session) sendRaw(command string) error {
	s.logger.Debug("session: -> gdb (raw)", zap.String("line", command))
	return s.writeLine(command)
}

func (s *Session) writeLine(line string) error {
	_, err := io.WriteString(s.ptmx, line+"\n")
	return err
}

// Stop sends "-gdb-exit" and waits up to watchdogTimeout for the child to
// exit before killing its process group.
func (s *Session) Stop() error { return s.shutdown("-gdb-exit") }

// Detach sends "-target-detach" and applies the same watchdog.
func (s *Session) Detach() error { return s.shutdown("-target-detach") }

func (s *Session) shutdown(command string) error {
	if err := s.sendRaw(command); err != nil {
		return err
	}
	select {
	case <-s.exited:
		return nil
	case <-time.After(watchdogTimeout):
		s.logger.Warn("session: child did not exit in time, killing process group")
		if s.cmd != nil && s.cmd.Process != nil {
			_ = syscall.Kill(-s.cmd.Process.Pid, syscall.SIGKILL)
		}
		<-s.exited
		return nil
	}
}

// Close tears down the reader goroutines and releases file descriptors.
// It does not itself terminate the child; call Stop/Detach first.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.ptmx != nil {
		s.ptmx.Close()
	}
	if s.stderr != nil {
		s.stderr.Close()
	}
	if s.group != nil {
		_ = s.group.Wait()
	}
	return nil
}

func (s *Session) readStderr(ctx context.Context) error {
	scanner := bufio.NewScanner(s.stderr)
	for scanner.Scan() {
		s.sink.Msg("stderr", scanner.Text())
	}
	return nil
}

// readStdout implements the buffering policy: split on the last newline
// in a chunk, keep anything after it for next time, and if that leftover
// looks like it cannot still become an MI line, flush it immediately so
// interactive prompts from the debuggee are not held back waiting for a
// newline that may never come.
func (s *Session) readStdout(ctx context.Context) error {
	reader := bufio.NewReader(s.ptmx)
	var carry bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			carry.Write(buf[:n])
			s.drainLines(&carry)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			// a pty master read after the slave side has closed
			// surfaces as an I/O error; treat it the same as EOF
			return nil
		}
	}
}

func (s *Session) drainLines(carry *bytes.Buffer) {
	for {
		b := carry.Bytes()
		idx := bytes.LastIndexByte(b, '\n')
		if idx == -1 {
			if mi.CouldBecomeProtocolLine(string(b)) {
				return // wait for more input
			}
			// flush eagerly: this partial chunk is inferior output,
			// most likely an interactive prompt
			s.sink.Msg("stdout", string(b))
			carry.Reset()
			return
		}
		complete := b[:idx]
		rest := append([]byte(nil), b[idx+1:]...)
		for _, line := range bytes.Split(complete, []byte{'\n'}) {
			s.handleLine(strings.TrimSuffix(string(line), "\r"))
		}
		carry.Reset()
		carry.Write(rest)
	}
}

func (s *Session) handleLine(line string) {
	if line == "" || mi.IsPrompt(line) {
		return
	}
	if !mi.IsProtocolLine(line) {
		s.sink.Msg("stdout", line)
		return
	}

	rec, err := mi.Parse(line)
	if err != nil {
		s.logger.Warn("session: malformed MI record, skipping", zap.String("line", line), zap.Error(err))
		s.sink.Msg("log", err.Error())
		return
	}
	s.dispatch(rec)
}

func (s *Session) dispatch(rec mi.Record) {
	if rec.Token != nil && rec.Result != nil {
		s.mu.Lock()
		ch, ok := s.pending[*rec.Token]
		if ok {
			delete(s.pending, *rec.Token)
		}
		s.mu.Unlock()
		if ok {
			ch <- pendingReply{record: rec}
		} else {
			s.logger.Warn("session: unhandled reply token", zap.Int("token", *rec.Token))
			if rec.Result.Class == mi.ClassError {
				msg, _ := rec.Result.Values.PathString("msg")
				s.sink.Msg("stderr", msg)
			}
		}
	}

	for _, oob := range rec.OOB {
		switch {
		case oob.Stream != nil:
			s.sink.Msg(string(oob.Stream.Kind), oob.Stream.Text)
		case oob.Async != nil:
			s.handleAsync(*oob.Async, rec)
		}
	}
}

func (s *Session) handleAsync(a mi.AsyncRecord, rec mi.Record) {
	switch a.Kind {
	case mi.AsyncExec:
		switch a.Class {
		case "running":
			s.sink.Running()
		case "stopped":
			reason, _ := a.Values.PathString("reason")
			s.handleStopReason(reason, a.Values)
		}
		s.sink.ExecAsyncOutput(rec)
	case mi.AsyncNotify:
		switch a.Class {
		case "thread-created":
			id, _ := a.Values.PathString("id")
			s.sink.ThreadCreated(id)
		case "thread-exited":
			id, _ := a.Values.PathString("id")
			s.sink.ThreadExited(id)
		}
	case mi.AsyncStatus:
		// progress notifications during a running command; no distinct
		// event is defined for these in the external interface
	}
}

func (s *Session) handleStopReason(reason string, values mi.Value) {
	switch reason {
	case "breakpoint-hit":
		s.sink.Breakpoint(values)
	case "end-stepping-range":
		s.sink.StepEnd(values)
	case "function-finished":
		s.sink.StepOutEnd(values)
	case "signal-received":
		s.sink.SignalStop(values)
	case "exited-normally":
		s.sink.ExitedNormally()
	case "exited":
		code, _ := values.PathString("exit-code")
		s.logger.Info("session: inferior exited", zap.String("exit-code", code))
		s.sink.ExitedNormally()
	default:
		s.logger.Warn("session: unrecognized stop reason, assuming exception", zap.String("reason", reason))
		s.sink.Stopped(values)
	}
}

// MIError is returned when GDB replies with an error-class result record
// that no caller opted to suppress.
type MIError struct {
	Command string
	Msg     string
}

func (e *MIError) Error() string {
	return fmt.Sprintf("gdb/mi error running %q: %s", e.Command, e.Msg)
}

// ParseIntOrZero parses a numeric MI field (conventionally carried as a
// quoted decimal string), returning 0 when it is not a valid integer.
func ParseIntOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
