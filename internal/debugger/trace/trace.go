// Package trace is the trace backend (C1): the small, host-uniform set of
// primitives every other component is built on — attach/detach/kill,
// continue/single-step, memory and register read-write, and the two
// wait-for-event shapes (per-handle and global).
//
// Two implementations ship: Ptrace (linux, real ptrace(2) via
// golang.org/x/sys/unix, see ptrace_linux.go) and Sim (host-independent, built
// on the bundled CPU emulator in pkg/hw/cpu/interpreter, see simulated.go).
// Grounded on other_examples' bingosuite-bingo
// internal/debugger/debugger_linux_amd64.go for the real backend's shape,
// and on original_source/sysdeps/server/x86-ptrace.c for the exact
// event-decoding rules it has to reproduce.
package trace

import (
	"os"

	"github.com/Manu343726/nativedbg/internal/debugger/arch"
)

// Handle identifies one traced inferior. Both backends assign it from an
// opaque incrementing counter; the real backend maps it to the OS pid.
type Handle int64

// RawStatus is the decoded shape of a host wait-status: which of
// stopped/exited/signaled holds, plus the extended-event classification
// (clone/fork/exec/exit-notify) §4.5 step 1 dispatches on before anything
// else.
type RawStatus struct {
	Stopped       bool
	StopSignal    int
	Exited        bool
	ExitCode      int
	Signaled      bool
	TermSignal    int
	ExtendedEvent ExtendedEvent
}

// ExtendedEvent enumerates the platform-specific "secondary event" bits
// §4.5 step 1 checks before falling back to plain stopped/exited/signaled
// decoding.
type ExtendedEvent int

const (
	EventNone ExtendedEvent = iota
	EventClone
	EventFork
	EventExec
	EventExit
)

// EventDetail is what get_event_detail recovers via a secondary call: the
// new pid for a clone/fork event, or the exit code for an exit-notify event.
type EventDetail struct {
	NewPID   int
	ExitCode int
}

// IOPipes are the two read ends of a redirected child's stdout/stderr,
// owned by the caller until handed to the IO worker (see
// internal/debugger/ioworker).
type IOPipes struct {
	Stdout *os.File
	Stderr *os.File
}

// Backend is the C1 contract.
type Backend interface {
	// Spawn forks cwd/argv/envp, requests tracing of the child, and
	// returns once the initial trap has been observed (§4.4 spawn). When
	// redirectIO is set the child's stdout/stderr are piped back via the
	// returned IOPipes.
	Spawn(cwd string, argv, envp []string, redirectIO bool) (Handle, *IOPipes, error)
	// Attach requests tracing of an already-running pid and waits for the
	// initial trap, as spawn's parent path does.
	Attach(pid int) (Handle, error)
	Detach(h Handle) error
	Kill(h Handle) error

	// Continue/SingleStep forward sig unless it is zero ("swallowed" per
	// §4.1's last_signal rule).
	Continue(h Handle, sig int) error
	SingleStep(h Handle, sig int) error

	ReadMemory(h Handle, addr uint64, length int) ([]byte, error)
	WriteMemory(h Handle, addr uint64, data []byte) error

	GetRegisters(h Handle) (arch.Registers, error)
	SetRegisters(h Handle, regs arch.Registers) error

	WaitForEvent(h Handle) (RawStatus, error)
	GlobalWait() (Handle, RawStatus, error)
	GetEventDetail(h Handle, status RawStatus) (EventDetail, error)

	SendSignal(h Handle, sig int) error
}

// BoundMemory adapts a Backend + Handle pair into the breakpoint engine's
// Memory interface, so the breakpoint table never needs to know about
// Handle or multi-inferior concerns.
type BoundMemory struct {
	Backend Backend
	Handle  Handle
}

func (b BoundMemory) ReadMemory(addr uint64, length int) ([]byte, error) {
	return b.Backend.ReadMemory(b.Handle, addr, length)
}

func (b BoundMemory) WriteMemory(addr uint64, data []byte) error {
	return b.Backend.WriteMemory(b.Handle, addr, data)
}
