package cmd

import (
	"fmt"
	"os"

	"github.com/Manu343726/nativedbg/cmd/cpu"
	"github.com/Manu343726/nativedbg/cmd/dbg"
	"github.com/Manu343726/nativedbg/cmd/mc"
	"github.com/Manu343726/nativedbg/cmd/tools"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "nativedbg",
	Short: "A native, out-of-process debugger backend for the Cucaracha toolchain",
	Long: `nativedbg drives a traced inferior process through a ptrace-based
trace backend, a breakpoint engine, and an invocation engine used to call
into a managed runtime cooperating via the debugger info block contract.

This CLI is the entry point for the debugger and for the rest of the
Cucaracha emulator/toolchain it builds on.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.AddCommand(tools.ToolsCmd, mc.McCmd, dbg.DbgCmd, cpu.CpuCmd)
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use the config file named by cfgFile (no command-line flag sets it).
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".nativedbg" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".nativedbg")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
