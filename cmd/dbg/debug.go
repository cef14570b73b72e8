// Package dbg is the A1 CLI entry point for the debugger: the `nativedbg
// debug <argv...>` cobra subcommand that spawns or attaches to a target
// and hands control to the operator console.
//
// Grounded on cmd/root.go's RootCmd/init-config pattern and on
// cmd/cpu/debug.go's flag layout for a debug subcommand.
package dbg

import (
	"encoding/binary"
	"fmt"

	"github.com/Manu343726/nativedbg/internal/debugger/arch"
	"github.com/Manu343726/nativedbg/internal/debugger/breakpoint"
	"github.com/Manu343726/nativedbg/internal/debugger/console"
	"github.com/Manu343726/nativedbg/internal/debugger/inferior"
	"github.com/Manu343726/nativedbg/internal/debugger/invoke"
	coop "github.com/Manu343726/nativedbg/internal/debugger/runtime"
	"github.com/Manu343726/nativedbg/internal/debugger/trace"
	"github.com/Manu343726/nativedbg/pkg/hw/cpu/loader"
	"github.com/Manu343726/nativedbg/pkg/hw/cpu/mc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// debuggerInfoBlockSymbol is the well-known global name a Cucaracha program
// exports when it offers a C7 runtime-info block, mirroring the
// MONO_DEBUGGER__debugger_info convention original_source/runtime/mini/
// debug-debugger.c uses to let an out-of-process debugger locate it without
// a side-channel handshake.
const debuggerInfoBlockSymbol = "debugger_info_block"

var (
	attachPID  int
	useSim     bool
	hwSlots    int
	arenaBase  uint64
	arenaSize  uint64
	arenaChunk uint64
	program    string
)

// DbgCmd is added to cmd.RootCmd by the caller, following the same
// AddCommand wiring root.go already uses for cmd/tools and cmd/mc.
var DbgCmd = &cobra.Command{
	Use:   "debug [argv...]",
	Short: "Spawn or attach to a process and debug it interactively",
	Long: `debug starts a native debugging session: it spawns the given
program (or attaches to --attach-pid), then hands control to an
interactive console exposing break/continue/step/regs/mem/bt/call/info.`,
	RunE: runDebug,
}

func init() {
	DbgCmd.Flags().IntVar(&attachPID, "attach-pid", 0, "attach to an already-running pid instead of spawning argv")
	DbgCmd.Flags().BoolVar(&useSim, "sim", false, "use the simulated trace/arch backend instead of the real ptrace backend")
	DbgCmd.Flags().IntVar(&hwSlots, "hw-breakpoint-slots", 4, "number of hardware breakpoint slots to model")
	DbgCmd.Flags().Uint64Var(&arenaBase, "arena-base", 0, "executable-code arena base address, for runtime-invoke support")
	DbgCmd.Flags().Uint64Var(&arenaSize, "arena-size", 64*1024, "executable-code arena total size")
	DbgCmd.Flags().Uint64Var(&arenaChunk, "arena-chunk", 256, "executable-code arena chunk size")
	DbgCmd.Flags().StringVar(&program, "program", "", "Cucaracha program file (assembly/.o/source) to load into the simulated backend's memory instead of spawning an OS process; requires --sim")

	viper.BindPFlag("debug.sim", DbgCmd.Flags().Lookup("sim"))
}

func runDebug(cmd *cobra.Command, args []string) error {
	var t trace.Backend
	var a arch.Backend
	if useSim || viper.GetBool("debug.sim") {
		t = trace.NewSimBackend()
		a = arch.NewSimBackend()
	} else {
		t = trace.NewDefaultBackend()
		a = arch.NewDefaultBackend()
	}

	var handle trace.Handle
	var loadedProgram mc.ProgramFile
	switch {
	case program != "":
		if !useSim && !viper.GetBool("debug.sim") {
			return fmt.Errorf("--program requires --sim: loading a Cucaracha program file makes no sense against the real ptrace backend")
		}
		h, _, err := t.Spawn(".", []string{program}, nil, false)
		if err != nil {
			return fmt.Errorf("spawning simulated target: %w", err)
		}
		handle = h
		pf, err := loadProgramIntoSimMemory(t, handle, program)
		if err != nil {
			return fmt.Errorf("loading %s: %w", program, err)
		}
		loadedProgram = pf
	case attachPID != 0:
		h, err := t.Attach(attachPID)
		if err != nil {
			return fmt.Errorf("attaching to pid %d: %w", attachPID, err)
		}
		handle = h
	default:
		if len(args) == 0 {
			return fmt.Errorf("debug requires argv, --program or --attach-pid")
		}
		h, _, err := t.Spawn(".", args, nil, true)
		if err != nil {
			return fmt.Errorf("spawning %v: %w", args, err)
		}
		handle = h
	}

	mem := trace.BoundMemory{Backend: t, Handle: handle}
	bps := breakpoint.NewTable(mem, a, hwSlots)
	arena := invoke.NewArena(arenaBase, arenaSize, arenaChunk)
	inv := invoke.New(t, a, arena)

	ctl, err := inferior.New(t, handle, a, bps, inv, arch.NoNotification{})
	if err != nil {
		return fmt.Errorf("initializing controller: %w", err)
	}
	defer ctl.Close()

	// C7 only activates when the loaded program actually exports a
	// debugger info block; most targets don't, and arch.NoNotification{}
	// (already passed above) is the right behavior for those.
	if block, ok, err := resolveInfoBlock(t, handle, loadedProgram); err != nil {
		return fmt.Errorf("resolving runtime cooperation info block: %w", err)
	} else if ok {
		call := func(entry uint64, args []uint64, notify, rti bool) (coop.InvokeResult, error) {
			frameID, data1, data2, err := ctl.CallForResult(entry, args, notify, rti)
			return coop.InvokeResult{FrameID: frameID, Data1: data1, Data2: data2}, err
		}
		readString := func(ref uint64) (string, error) {
			return readCString(t, handle, ref)
		}
		layer, err := coop.New(block, bps, call, readString)
		if err != nil {
			return fmt.Errorf("initializing runtime cooperation layer: %w", err)
		}
		ctl.SetNotify(layer)
	}

	c, err := console.New(ctl)
	if err != nil {
		return err
	}
	defer c.Close()

	return c.Run()
}

// loadProgramIntoSimMemory resolves a Cucaracha program file (assembly,
// object, or source via on-the-fly compilation) and writes every resolved
// instruction's encoding and every global's initial data into the simulated
// backend's memory, the same address-by-address write `cpu exec` does
// against the bare interpreter.
func loadProgramIntoSimMemory(t trace.Backend, h trace.Handle, path string) (mc.ProgramFile, error) {
	result, err := loader.LoadFile(path, nil)
	if err != nil {
		return nil, err
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	pf := result.Program
	layout := pf.MemoryLayout()
	if layout == nil {
		return nil, fmt.Errorf("program has no resolved memory layout")
	}

	for i, instr := range pf.Instructions() {
		if instr.Address == nil || instr.Instruction == nil {
			return nil, fmt.Errorf("instruction %d is unresolved", i)
		}
		raw := instr.Instruction.Raw()
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, raw.Encode())
		if err := t.WriteMemory(h, uint64(*instr.Address), buf); err != nil {
			return nil, fmt.Errorf("writing instruction %d at 0x%x: %w", i, *instr.Address, err)
		}
	}
	for _, g := range pf.Globals() {
		if g.Address == nil || len(g.InitialData) == 0 {
			continue
		}
		if err := t.WriteMemory(h, uint64(*g.Address), g.InitialData); err != nil {
			return nil, fmt.Errorf("writing global %q at 0x%x: %w", g.Name, *g.Address, err)
		}
	}

	entry := uint64(layout.CodeStart)
	if mainFn, ok := pf.Functions()["main"]; ok && len(mainFn.InstructionRanges) > 0 {
		instrs := pf.Instructions()
		idx := mainFn.InstructionRanges[0].Start
		if idx < len(instrs) && instrs[idx].Address != nil {
			entry = uint64(*instrs[idx].Address)
		}
	}
	regs, err := t.GetRegisters(h)
	if err != nil {
		return nil, err
	}
	regs.SetPC(entry)
	if err := t.SetRegisters(h, regs); err != nil {
		return nil, err
	}
	return pf, nil
}

// readCString reads a NUL-terminated managed string out of the inferior's
// memory one byte at a time, the simplest convention available without a
// length-prefixed string ABI to decode against — used to render the
// exception text RuntimeInvoke's ToString call-through returns.
func readCString(t trace.Backend, h trace.Handle, addr uint64) (string, error) {
	var out []byte
	for i := 0; i < 4096; i++ {
		b, err := t.ReadMemory(h, addr+uint64(i), 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(out), nil
		}
		out = append(out, b[0])
	}
	return "", fmt.Errorf("string at 0x%x exceeds 4096 bytes without a NUL terminator", addr)
}

// resolveInfoBlock looks for the well-known debuggerInfoBlockSymbol global
// in pf and, if present and resolved, reads its fixed-layout fields out of
// the inferior's memory to build a coop.InfoBlock. It reports ok=false
// (not an error) when the program offers no such symbol, since most
// programs have no runtime cooperation layer to expose.
func resolveInfoBlock(t trace.Backend, h trace.Handle, pf mc.ProgramFile) (block coop.InfoBlock, ok bool, err error) {
	if pf == nil {
		return coop.InfoBlock{}, false, nil
	}
	var addr uint64
	found := false
	for _, g := range pf.Globals() {
		if g.Name == debuggerInfoBlockSymbol && g.Address != nil {
			addr = uint64(*g.Address)
			found = true
			break
		}
	}
	if !found {
		return coop.InfoBlock{}, false, nil
	}

	// Layout: magic, version, size (uint32 each), padding, trampoline
	// (uint64), then every function table entry in InfoBlock's declared
	// order, each a uint64.
	const headerSize = 4 + 4 + 4 + 4 + 8
	const fieldCount = 19
	raw, err := t.ReadMemory(h, addr, headerSize+fieldCount*8)
	if err != nil {
		return coop.InfoBlock{}, false, fmt.Errorf("reading debugger info block at 0x%x: %w", addr, err)
	}

	block.Magic = binary.LittleEndian.Uint32(raw[0:4])
	block.Version = binary.LittleEndian.Uint32(raw[4:8])
	block.Size = binary.LittleEndian.Uint32(raw[8:12])
	block.Trampoline = binary.LittleEndian.Uint64(raw[16:24])

	fields := []*uint64{
		&block.CompileMethod, &block.GetVirtualMethod, &block.GetBoxedObject,
		&block.InsertBreakpoint, &block.RemoveBreakpoint, &block.RegisterClassInit,
		&block.RemoveClassInit, &block.RuntimeInvoke, &block.CreateString,
		&block.LookupClass, &block.LookupAssembly, &block.RunFinally,
		&block.GetCurrentThread, &block.ClassGetStaticField, &block.GetMethodAddrOrBpt,
		&block.RemoveMethodBreakpoint, &block.Attach, &block.Detach, &block.Initialize,
	}
	for i, f := range fields {
		off := headerSize + i*8
		*f = binary.LittleEndian.Uint64(raw[off : off+8])
	}
	return block, true, nil
}
