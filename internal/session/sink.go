package session

import "github.com/brunopacheco1/gnucobol-debug/internal/mi"

// Sink is the event surface the session drives. It replaces a dynamic
// publish/subscribe bus with one small enumeration of event kinds and a
// single interface: one method per event in the adapter's
// external-interfaces list.
type Sink interface {
	// Msg forwards a line on one of the "stdout", "stderr", "console",
	// "log", "target" channels.
	Msg(channel, text string)

	Quit()
	LaunchError(err error)
	DebugReady()
	Running()
	Breakpoint(values mi.Value)
	StepEnd(values mi.Value)
	StepOutEnd(values mi.Value)
	SignalStop(values mi.Value)
	ExitedNormally()
	Stopped(values mi.Value)
	ThreadCreated(id string)
	ThreadExited(id string)
	ExecAsyncOutput(rec mi.Record)
}
