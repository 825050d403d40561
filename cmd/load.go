package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brunopacheco1/gnucobol-debug/internal/facade"
)

var loadCmd = &cobra.Command{
	Use:   "load [flags] TARGET.cbl [GROUP.cbl...]",
	Short: "Compile a COBOL program and open an interactive GDB/MI debug session against it",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			color.Red("midebug: could not determine working directory: %v", err)
			os.Exit(1)
		}

		opts := facade.Options{
			Cwd:      cwd,
			Target:   args[0],
			Group:    args[1:],
			CobcPath: viper.GetString("cobc-executable"),
			GdbPath:  viper.GetString("gdb-executable"),
			NoDebug:  viper.GetBool("no-debug"),
		}
		if raw := viper.GetString("cobc-args"); raw != "" {
			opts.CobcArgs = strings.Fields(raw)
		}

		f := facade.New(logger, consoleSink{})
		if err := f.Load(context.Background(), opts); err != nil {
			color.Red("midebug: load failed: %v", err)
			os.Exit(1)
		}
		if opts.NoDebug {
			// runCompilerNoDebug already emitted Quit; there is no GDB
			// session to start a console against.
			return
		}

		f.NotifyBreakpointsInstalled()
		if _, err := f.Start(context.Background()); err != nil {
			color.Red("midebug: start failed: %v", err)
			os.Exit(1)
		}

		runConsole(f)
	},
}

func init() {
	RootCmd.AddCommand(loadCmd)
	loadCmd.Flags().Bool("no-debug", false, "compile and run without attaching a debugger")
	loadCmd.Flags().String("cobc-args", "", "extra arguments passed through to the COBOL compiler")
	viper.BindPFlag("no-debug", loadCmd.Flags().Lookup("no-debug"))
	viper.BindPFlag("cobc-args", loadCmd.Flags().Lookup("cobc-args"))
}
