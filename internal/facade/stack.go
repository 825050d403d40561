package facade

import (
	"fmt"

	"github.com/brunopacheco1/gnucobol-debug/internal/mi"
)

// Thread is a live GDB thread as reported by thread-info.
type Thread struct {
	ID       int
	TargetID string
	Name     string
}

// GetThreads lists every thread GDB currently knows about.
func (f *Facade) GetThreads() ([]Thread, error) {
	res, err := f.session().Send("thread-info", false)
	if err != nil {
		return nil, err
	}
	list, ok := res.Values.Path("threads")
	if !ok || list.Kind != mi.KindList {
		return nil, nil
	}
	threads := make([]Thread, 0, len(list.Items))
	for _, item := range list.Items {
		id, _ := item.PathString("id")
		targetID, _ := item.PathString("target-id")
		name, _ := item.PathString("name")
		threads = append(threads, Thread{ID: parseLine(id), TargetID: targetID, Name: name})
	}
	return threads, nil
}

// StackFrame is one translated stack frame.
type StackFrame struct {
	Level        int
	Address      string
	Function     string
	File         string
	FileBasename string
	Line         int
}

// GetStack lists up to maxLevels frames for thread (empty for the current
// thread), translating each to COBOL coordinates where the source map has
// a mapping and falling through to the raw C coordinates otherwise.
func (f *Facade) GetStack(maxLevels int, thread string) ([]StackFrame, error) {
	args := []string{}
	if thread != "" {
		args = append(args, "--thread", thread)
	}
	args = append(args, "0", itoa(maxLevels))

	res, err := f.session().Send("stack-list-frames", false, args...)
	if err != nil {
		return nil, err
	}
	list, ok := res.Values.Path("stack")
	if !ok || list.Kind != mi.KindList {
		return nil, nil
	}

	sm := f.sourceMap()
	frames := make([]StackFrame, 0, len(list.Items))
	for _, item := range list.Items {
		frame := item
		if frame.Kind == mi.KindTuple {
			if sub, ok := frame.Path("frame"); ok {
				frame = sub
			}
		}

		level, _ := frame.PathString("level")
		addr, _ := frame.PathString("addr")
		fn, _ := frame.PathString("func")
		if fn == "" {
			fn, _ = frame.PathString("from")
		}
		cFile, _ := frame.PathString("fullname")
		if cFile == "" {
			cFile, _ = frame.PathString("file")
		}
		lineStr, _ := frame.PathString("line")
		cLine := parseLine(lineStr)

		cobolFile, cobolLine := cFile, cLine
		if sm != nil {
			if entry := sm.CobolFor(cFile, cLine); !entry.IsZero() {
				cobolFile, cobolLine = entry.CobolFile, entry.CobolLine
			}
		}

		frames = append(frames, StackFrame{
			Level:        parseLine(level),
			Address:      addr,
			Function:     fn,
			File:         cobolFile,
			FileBasename: basename(cobolFile),
			Line:         cobolLine,
		})
	}
	return frames, nil
}

func basename(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == '\\' {
			return p[i+1:]
		}
	}
	return p
}

// StackVariable is one local/argument visible at a given frame, filtered
// to those whose C name the source map recognizes.
type StackVariable struct {
	Name     string
	ValueStr string
	Type     string
	Raw      mi.Value
}

// GetStackVariables lists the COBOL-visible variables at thread/frame.
func (f *Facade) GetStackVariables(thread, frame string) ([]StackVariable, error) {
	args := []string{}
	if thread != "" {
		args = append(args, "--thread", thread)
	}
	if frame != "" {
		args = append(args, "--frame", frame)
	}
	args = append(args, "--simple-values")

	res, err := f.session().Send("stack-list-variables", false, args...)
	if err != nil {
		return nil, err
	}
	list, ok := res.Values.Path("variables")
	if !ok || list.Kind != mi.KindList {
		return nil, nil
	}

	sm := f.sourceMap()
	var out []StackVariable
	for _, item := range list.Items {
		cName, _ := item.PathString("name")
		if sm == nil || !sm.HasCobol(cName) {
			continue
		}
		cobolName, _ := sm.CobolForName(cName)
		valueStr, _ := item.PathString("value")
		typ, _ := item.PathString("type")
		out = append(out, StackVariable{Name: cobolName, ValueStr: valueStr, Type: typ, Raw: item})
	}
	return out, nil
}

// EvalExpression evaluates a COBOL variable name at thread/frame, by
// translating it to its mangled C identifier first.
func (f *Facade) EvalExpression(cobolName, thread, frame string) (string, error) {
	sm := f.sourceMap()
	cName, ok := sm.CForName(cobolName)
	if !ok {
		return "", fmt.Errorf("facade: no C variable for %q", cobolName)
	}
	args := []string{}
	if thread != "" {
		args = append(args, "--thread", thread)
	}
	if frame != "" {
		args = append(args, "--frame", frame)
	}
	args = append(args, quote(cName))
	res, err := f.session().Send("data-evaluate-expression", false, args...)
	if err != nil {
		return "", err
	}
	value, _ := res.Values.PathString("value")
	return value, nil
}

// ExamineMemory reads length bytes starting at address from (a hex
// string without the leading "0x").
func (f *Facade) ExamineMemory(from string, length int) (string, error) {
	res, err := f.session().Send("data-read-memory-bytes", false, "0x"+from, itoa(length))
	if err != nil {
		return "", err
	}
	list, ok := res.Values.Path("memory")
	if !ok || list.Kind != mi.KindList || len(list.Items) == 0 {
		return "", fmt.Errorf("facade: data-read-memory-bytes returned no memory blocks")
	}
	contents, _ := list.Items[0].PathString("contents")
	return contents, nil
}
