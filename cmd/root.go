package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	logger  *zap.Logger
)

// RootCmd is the base command when midebug is called without any
// subcommands.
var RootCmd = &cobra.Command{
	Use:   "midebug",
	Short: "midebug bridges a COBOL-aware debugger UI and GDB's machine interface",
}

// Execute runs the command tree; it is called once from main.main.
func Execute() {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)
	RootCmd.PersistentFlags().BoolP("verbose", "v", false, "print more messages to show what midebug is doing")
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.midebug.yaml)")
	RootCmd.PersistentFlags().String("cobc-executable", "cobc", "the GnuCOBOL compiler executable")
	RootCmd.PersistentFlags().String("gdb-executable", "gdb", "the gdb executable")

	viper.BindPFlag("verbose", RootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("cobc-executable", RootCmd.PersistentFlags().Lookup("cobc-executable"))
	viper.BindPFlag("gdb-executable", RootCmd.PersistentFlags().Lookup("gdb-executable"))
}

// initConfig reads $HOME/.midebug.yaml (or --config) and environment
// variables matching the bound flags above.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	viper.SetConfigName(".midebug")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	viper.SetDefault("cobc-executable", "cobc")
	viper.SetDefault("gdb-executable", "gdb")
	viper.SetDefault("cobc-args", "")

	viper.RegisterAlias("cobc_executable", "cobc-executable")
	viper.RegisterAlias("gdb_executable", "gdb-executable")
	viper.RegisterAlias("cobc_args", "cobc-args")

	if err := viper.ReadInConfig(); err == nil {
		color.Yellow("midebug: using config file %v", viper.ConfigFileUsed())
	}
}

func initLogger() {
	cfg := zap.NewProductionConfig()
	if viper.GetBool("verbose") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		fmt.Println("midebug: could not initialize logger:", err)
		l = zap.NewNop()
	}
	logger = l
}
