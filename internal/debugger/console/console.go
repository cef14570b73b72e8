// Package console is the operator console (ambient, A6): a
// chzyer/readline REPL driving an inferior.Commands session, with
// fatih/color syntax highlighting in the palette of cmd/cpu/debug.go, and
// a yaml.v3 "info" dump of the current breakpoint table.
//
// Grounded on pkg/hw/cpu/debugger/controller.go's
// Controller{backend, ui, running, lastCommand, ...} shape and on
// other_examples' pattyshack-bad main.go for the readline session loop
// idiom (rl.Readline() in a for loop, blank line repeats the last
// command, io.EOF/readline.ErrInterrupt end the session).
package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Manu343726/nativedbg/internal/debugger"
	"github.com/Manu343726/nativedbg/internal/debugger/breakpoint"
	"github.com/Manu343726/nativedbg/internal/debugger/inferior"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	colorPrompt     = color.New(color.FgBlue, color.Bold)
	colorError      = color.New(color.FgRed, color.Bold)
	colorSuccess    = color.New(color.FgGreen)
	colorAddr       = color.New(color.FgCyan)
	colorReg        = color.New(color.FgGreen)
	colorBreakpoint = color.New(color.FgRed, color.Bold)
	colorHeader     = color.New(color.FgWhite, color.Bold, color.Underline)
)

// Console drives one inferior.Commands session from the terminal.
type Console struct {
	cmds       inferior.Commands
	rl         *readline.Instance
	lastLine   string
	lastFrames []int64
}

// New wraps an already-spawned-or-attached Commands session with a REPL.
func New(cmds inferior.Commands) (*Console, error) {
	rl, err := readline.New(colorPrompt.Sprint("(nativedbg) "))
	if err != nil {
		return nil, debugger.MakeError(debugger.ErrInternal, "opening readline session: %v", err)
	}
	return &Console{cmds: cmds, rl: rl}, nil
}

func (c *Console) Close() error { return c.rl.Close() }

// Run drives the REPL until EOF/interrupt, printing the command vocabulary
// of §6: break, delete, enable/disable, continue, step/next, regs, mem,
// bt, call, info.
func (c *Console) Run() error {
	defer c.rl.Close()
	go c.pumpEvents()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = c.lastLine
		}
		c.lastLine = line
		if line == "" {
			continue
		}

		if err := c.dispatch(line); err != nil {
			colorError.Fprintln(c.rl.Stderr(), err)
		}
	}
}

// pumpEvents prints each StatusMessage the controller publishes, so a
// breakpoint hit or exit shows up even while the operator is mid-typing.
func (c *Console) pumpEvents() {
	for msg := range c.cmds.Events() {
		fmt.Fprintf(c.rl.Stdout(), "\n%s: arg=%d data1=0x%x data2=0x%x\n", msg.Kind.String(), msg.Arg, msg.Data1, msg.Data2)
	}
}

func (c *Console) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "break", "b":
		return c.cmdBreak(args)
	case "delete", "d":
		return c.cmdDelete(args)
	case "enable":
		return c.cmdToggle(args, true)
	case "disable":
		return c.cmdToggle(args, false)
	case "continue", "c":
		return c.cmdContinue()
	case "step", "next", "s", "n":
		return c.cmdStep()
	case "regs", "r":
		return c.cmdRegs()
	case "mem", "m":
		return c.cmdMem(args)
	case "bt":
		return c.cmdBacktrace()
	case "call":
		return c.cmdCall(args)
	case "info", "i":
		return c.cmdInfo()
	default:
		return debugger.MakeError(debugger.ErrInternal, "unknown command %q", cmd)
	}
}

func parseAddr(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	return strconv.ParseUint(s, 16, 64)
}

func (c *Console) cmdBreak(args []string) error {
	if len(args) != 1 {
		return debugger.MakeError(debugger.ErrInternal, "usage: break <addr>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	id, err := c.cmds.InsertSoftwareBreakpoint(addr)
	if err != nil {
		return err
	}
	colorSuccess.Fprintf(c.rl.Stdout(), "breakpoint %d at %s\n", id, colorAddr.Sprintf("0x%x", addr))
	return nil
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, debugger.MakeError(debugger.ErrInternal, "usage: <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, debugger.MakeError(debugger.ErrInternal, "invalid id %q", args[0])
	}
	return id, nil
}

func (c *Console) cmdDelete(args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	return c.cmds.RemoveBreakpoint(id)
}

func (c *Console) cmdToggle(args []string, enable bool) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if enable {
		return c.cmds.EnableBreakpoint(id)
	}
	return c.cmds.DisableBreakpoint(id)
}

func (c *Console) cmdContinue() error {
	return c.cmds.Continue()
}

func (c *Console) cmdStep() error {
	return c.cmds.Step()
}

func (c *Console) cmdRegs() error {
	regs, err := c.cmds.GetRegisters()
	if err != nil {
		return err
	}
	colorHeader.Fprintln(c.rl.Stdout(), "registers")
	fmt.Fprintf(c.rl.Stdout(), "%s = %s\n", colorReg.Sprint("pc"), colorAddr.Sprintf("0x%x", regs.PC()))
	fmt.Fprintf(c.rl.Stdout(), "%s = %s\n", colorReg.Sprint("sp"), colorAddr.Sprintf("0x%x", regs.SP()))
	return nil
}

func (c *Console) cmdMem(args []string) error {
	if len(args) != 2 {
		return debugger.MakeError(debugger.ErrInternal, "usage: mem <addr> <len>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	length, err := strconv.Atoi(args[1])
	if err != nil {
		return debugger.MakeError(debugger.ErrInternal, "invalid length %q", args[1])
	}
	data, err := c.cmds.ReadMemory(addr, length)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.rl.Stdout(), "%s: % x\n", colorAddr.Sprintf("0x%x", addr), data)
	return nil
}

func (c *Console) cmdBacktrace() error {
	colorHeader.Fprintln(c.rl.Stdout(), "callback frames")
	for _, id := range c.lastFrames {
		fmt.Fprintf(c.rl.Stdout(), "  #%d\n", id)
	}
	return nil
}

func (c *Console) cmdCall(args []string) error {
	if len(args) < 1 {
		return debugger.MakeError(debugger.ErrInternal, "usage: call <entry> [args...]")
	}
	entry, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	callArgs := make([]uint64, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := strconv.ParseUint(a, 0, 64)
		if err != nil {
			return debugger.MakeError(debugger.ErrInternal, "invalid argument %q", a)
		}
		callArgs = append(callArgs, v)
	}
	frameID, err := c.cmds.CallMethod(entry, callArgs)
	if err != nil {
		return err
	}
	c.lastFrames = append(c.lastFrames, frameID)
	colorSuccess.Fprintf(c.rl.Stdout(), "call frame %d started\n", frameID)
	return nil
}

// infoSnapshot is the YAML-rendered shape "info" dumps: the controller
// state and the breakpoint table.
type infoSnapshot struct {
	State       string               `yaml:"state"`
	Breakpoints []breakpoint.Entry   `yaml:"breakpoints"`
}

func (c *Console) cmdInfo() error {
	bps := c.cmds.Breakpoints()
	colorHeader.Fprintln(c.rl.Stdout(), "breakpoints")
	for _, e := range bps {
		status := "enabled"
		if !e.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(c.rl.Stdout(), "  %s at %s (%s)\n", colorBreakpoint.Sprintf("#%d", e.ID), colorAddr.Sprintf("0x%x", e.Address), status)
	}

	snap := infoSnapshot{
		State:       c.cmds.State().String(),
		Breakpoints: bps,
	}
	out, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = c.rl.Stdout().Write(out)
	return err
}
