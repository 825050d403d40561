package facade

import (
	"go.uber.org/zap"

	"github.com/brunopacheco1/gnucobol-debug/internal/mi"
)

// Facade implements session.Sink itself: every stop-carrying event passes
// through translateFrame before reaching the UI, so the UI only ever sees
// COBOL coordinates.
var _ Sink = (*Facade)(nil)

func (f *Facade) Msg(channel, text string) { f.ui.Msg(channel, text) }
func (f *Facade) Quit()                    { f.ui.Quit() }
func (f *Facade) LaunchError(err error)     { f.ui.LaunchError(err) }
func (f *Facade) DebugReady()               {}
func (f *Facade) Running()                  { f.ui.Running() }
func (f *Facade) ExitedNormally()           { f.ui.ExitedNormally() }
func (f *Facade) ThreadCreated(id string)   { f.ui.ThreadCreated(id) }
func (f *Facade) ThreadExited(id string)    { f.ui.ThreadExited(id) }

func (f *Facade) Breakpoint(values mi.Value) { f.ui.Breakpoint(f.translateFrame(values)) }
func (f *Facade) StepEnd(values mi.Value)    { f.ui.StepEnd(f.translateFrame(values)) }
func (f *Facade) StepOutEnd(values mi.Value) { f.ui.StepOutEnd(f.translateFrame(values)) }
func (f *Facade) SignalStop(values mi.Value) { f.ui.SignalStop(f.translateFrame(values)) }
func (f *Facade) Stopped(values mi.Value)    { f.ui.Stopped(f.translateFrame(values)) }

func (f *Facade) ExecAsyncOutput(rec mi.Record) { f.ui.ExecAsyncOutput(rec) }

// translateFrame rewrites the "frame" sub-tuple's file/fullname/line
// fields from C to COBOL coordinates when the source map has a mapping;
// values without a "frame" key, or a frame the map cannot resolve, pass
// through unchanged.
func (f *Facade) translateFrame(values mi.Value) mi.Value {
	sm := f.sourceMap()
	if sm == nil {
		return values
	}
	frame, ok := values.Path("frame")
	if !ok {
		return values
	}
	cFile, ok := frame.PathString("fullname")
	if !ok {
		cFile, ok = frame.PathString("file")
		if !ok {
			return values
		}
	}
	lineStr, ok := frame.PathString("line")
	if !ok {
		return values
	}
	entry := sm.CobolFor(cFile, parseLine(lineStr))
	if entry.IsZero() {
		f.logger.Warn("facade: no cobol mapping for stop location", zap.String("c_file", cFile), zap.String("c_line", lineStr))
		return values
	}
	newFrame := frame.
		With("file", mi.String(entry.CobolFile)).
		With("fullname", mi.String(entry.CobolFile)).
		With("line", mi.String(itoa(entry.CobolLine)))
	return values.With("frame", newFrame)
}
