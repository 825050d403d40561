package cmd

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/brunopacheco1/gnucobol-debug/internal/mi"
)

// consoleSink prints every adapter event to the terminal, color-coded by
// kind, standing in for the full debugger-UI front end that this module
// does not implement.
type consoleSink struct{}

func (consoleSink) Msg(channel, text string) {
	switch channel {
	case "stderr", "log":
		color.Red("%s: %s", channel, text)
	case "console":
		fmt.Println(text)
	default:
		color.Cyan("%s: %s", channel, text)
	}
}

func (consoleSink) Quit()            { color.Yellow("midebug: target exited, session ending") }
func (consoleSink) LaunchError(err error) { color.Red("midebug: launch error: %v", err) }
func (consoleSink) DebugReady()      { color.Green("midebug: debug session ready") }
func (consoleSink) Running()         { color.Green("midebug: running") }

func (consoleSink) Breakpoint(v mi.Value)  { printStop("breakpoint", v) }
func (consoleSink) StepEnd(v mi.Value)     { printStop("step", v) }
func (consoleSink) StepOutEnd(v mi.Value)  { printStop("step-out", v) }
func (consoleSink) SignalStop(v mi.Value)  { printStop("signal", v) }
func (consoleSink) Stopped(v mi.Value)     { printStop("stopped", v) }
func (consoleSink) ExitedNormally()        { color.Yellow("midebug: program exited normally") }
func (consoleSink) ThreadCreated(id string) { color.Cyan("midebug: thread %s created", id) }
func (consoleSink) ThreadExited(id string)  { color.Cyan("midebug: thread %s exited", id) }
func (consoleSink) ExecAsyncOutput(rec mi.Record) {}

func printStop(kind string, v mi.Value) {
	file, _ := v.PathString("frame.file")
	line, _ := v.PathString("frame.line")
	fn, _ := v.PathString("frame.func")
	color.Green("midebug: %s at %s:%s (%s)", kind, file, line, fn)
}
