package cmd

import (
	"context"
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brunopacheco1/gnucobol-debug/internal/facade"
)

// consoleCmd attaches to an already-running target over GDB's remote
// protocol (facade.Connect), the counterpart to loadCmd's compile-then-run
// flow, for the case where the program under test was started separately
// (e.g. under "gdbserver").
var consoleCmd = &cobra.Command{
	Use:   "console --target HOST:PORT [EXECUTABLE]",
	Short: "Attach to a running target over GDB's remote protocol and open an interactive debug session",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		target := viper.GetString("target")
		if target == "" {
			color.Red("midebug: --target is required")
			os.Exit(1)
		}

		executable := ""
		if len(args) > 0 {
			executable = args[0]
		}

		cwd, err := os.Getwd()
		if err != nil {
			color.Red("midebug: could not determine working directory: %v", err)
			os.Exit(1)
		}

		opts := facade.Options{
			Cwd:     cwd,
			GdbPath: viper.GetString("gdb-executable"),
		}

		f := facade.New(logger, consoleSink{})
		if err := f.Connect(context.Background(), opts, executable, target); err != nil {
			color.Red("midebug: connect failed: %v", err)
			os.Exit(1)
		}

		runConsole(f)
	},
}

func init() {
	RootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().String("target", "", "remote target to attach to, e.g. host:port")
	viper.BindPFlag("target", consoleCmd.Flags().Lookup("target"))
}

// runConsole drives an interactive command loop over a loaded facade.
// The upstream DBGp front end this module replaces sent commands
// programmatically; readline gives the same entry point a human-usable
// shell with history and line editing instead of the bare fmt.Scanln
// a first cut would reach for.
func runConsole(f *facade.Facade) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "(midebug) ",
		HistoryFile: historyFilePath(),
	})
	if err != nil {
		color.Red("midebug: could not start console: %v", err)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			color.Red("midebug: console error: %v", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			_ = f.Stop()
			return
		}

		if err := f.SendUserInput(line); err != nil {
			color.Red("midebug: %v", err)
		}
	}
}

func historyFilePath() string {
	currentUser, err := user.Current()
	if err != nil {
		return ""
	}
	return currentUser.HomeDir + "/.midebug_history"
}
