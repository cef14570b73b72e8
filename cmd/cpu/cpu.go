package cpu

import (
	"github.com/spf13/cobra"
)

// CpuCmd groups the Cucaracha CPU emulator's compile/exec/debug
// subcommands, the toolchain this module's debugger attaches to.
var CpuCmd = &cobra.Command{
	Use:   "cpu",
	Short: "Cucaracha CPU emulator: compile, run and debug programs",
}
