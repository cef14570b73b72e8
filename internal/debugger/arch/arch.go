// Package arch is the arch backend (C2): it decides the breakpoint
// instruction for the host architecture, decodes "what happened" at a stop
// PC, and manages register snapshots and the per-inferior callback-frame
// stack used by the invocation engine.
//
// Grounded on the teacher's register-index encoding
// (pkg/hw/cpu/mc/registers) for the simulated implementation, and on
// other_examples' delve i386_arch.go for the shape of "Arch as a struct of
// data plus a handful of architecture-specific functions" rather than a
// class hierarchy.
package arch

import (
	"fmt"

	"github.com/Manu343726/nativedbg/internal/debugger"
)

// Verdict is child_stopped's central decision: what a stop at the current
// PC actually means.
type Verdict int

const (
	VerdictStopped Verdict = iota
	VerdictInterrupted
	VerdictBreakpointHit
	VerdictCallback
	VerdictCallbackCompleted
	VerdictNotification
	VerdictRTIDone
	VerdictInternalError
)

func (v Verdict) String() string {
	switch v {
	case VerdictStopped:
		return "STOPPED"
	case VerdictInterrupted:
		return "INTERRUPTED"
	case VerdictBreakpointHit:
		return "BREAKPOINT_HIT"
	case VerdictCallback:
		return "CALLBACK"
	case VerdictCallbackCompleted:
		return "CALLBACK_COMPLETED"
	case VerdictNotification:
		return "NOTIFICATION"
	case VerdictRTIDone:
		return "RTI_DONE"
	default:
		return "INTERNAL_ERROR"
	}
}

// StopVerdict is the full result of child_stopped: a Verdict plus the
// payload §4.2 says rides along with it (breakpoint/callback id, up to two
// result words).
//
// SavedRegs carries a popped callback frame's pre-call register snapshot
// out to the caller, non-nil exactly when this stop popped a frame off the
// callback stack (CALLBACK_COMPLETED, RTI_DONE, or a frame-flagged
// NOTIFICATION). §4.6 step 5 requires the caller restore it with
// Trace.SetRegisters before reporting completion, the same restore
// invoke.Engine.Abort already performs for an aborted frame.
type StopVerdict struct {
	Verdict   Verdict
	Retval    int64
	Data1     uint64
	Data2     uint64
	SavedRegs Registers
}

// Registers is an opaque, arch-specific register snapshot. It is never
// interpreted field-by-field outside the owning arch backend; C6 only ever
// pushes, pops and clones it.
type Registers interface {
	PC() uint64
	SetPC(uint64)
	SP() uint64
	SetSP(uint64)
	// Result returns the arch-defined result registers used to recover a
	// callback's return words (§4.6 step 4).
	Result() (uint64, uint64)
	Clone() Registers
	// Bytes/LoadBytes give push_registers/pop_registers (§4.2) a
	// bit-for-bit round trip without the caller needing to know the
	// concrete layout.
	Bytes() []byte
	LoadBytes([]byte) error
}

// BreakpointLookup is the sliver of the breakpoint engine (C3) that
// child_stopped needs: "is there an enabled breakpoint at this address, and
// what is its id". Defined here, on the consumer side, so arch never
// imports the breakpoint package — breaking the controller/arch/breakpoint
// reference cycle the spec's design notes call out explicitly.
type BreakpointLookup interface {
	LookupEnabledAt(addr uint64) (id int64, ok bool)
}

// NotificationAddress is satisfied by the runtime cooperation layer (C7):
// the single well-known trampoline address the managed runtime traps to
// when it wants to notify the debugger of something.
type NotificationAddress interface {
	NotificationTrampoline() (uint64, bool)
}

// CallbackFrame is one entry of the per-inferior callback-frame stack that
// arch state owns (Design Note §9: "the callback-frame stack lives in arch
// state because only the arch backend knows how to restore it").
type CallbackFrame struct {
	ID               int64
	Saved            Registers
	SavedPC          uint64
	ReturnPC         uint64 // where the C6 stub traps; compared against PC in ChildStopped
	Stage            debugger.CallbackStage
	NotifyOnComplete bool // completion should surface as NOTIFICATION, not CALLBACK_COMPLETED
}

// State is the opaque per-inferior arch state initialized by Initialize and
// torn down by Finalize.
type State struct {
	frames    []CallbackFrame
	interrupt bool // set by the controller ahead of an out-of-band stop request (§4.4)
}

// RequestInterrupt marks the next otherwise-unhandled stop as the result of
// an explicit `stop` command rather than an ordinary signal, so
// ChildStopped reports INTERRUPTED instead of STOPPED.
func (s *State) RequestInterrupt() {
	s.interrupt = true
}

// ConsumeInterrupt reports and clears the pending-interrupt flag.
func (s *State) ConsumeInterrupt() bool {
	v := s.interrupt
	s.interrupt = false
	return v
}

// Depth reports the callback-frame stack depth, used by the "depth returns
// to zero" invariant of §8.
func (s *State) Depth() int {
	return len(s.frames)
}

// Top returns the innermost frame, if any.
func (s *State) Top() (CallbackFrame, bool) {
	if len(s.frames) == 0 {
		return CallbackFrame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

func (s *State) push(f CallbackFrame) {
	s.frames = append(s.frames, f)
}

func (s *State) pop() (CallbackFrame, bool) {
	if len(s.frames) == 0 {
		return CallbackFrame{}, false
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f, true
}

// unwindTo pops frames up to and including the frame with the given id,
// used by abort_invoke (§4.6).
func (s *State) unwindTo(id int64) ([]CallbackFrame, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].ID == id {
			popped := append([]CallbackFrame(nil), s.frames[i:]...)
			s.frames = s.frames[:i]
			return popped, true
		}
	}
	return nil, false
}

// Backend is the arch backend contract (C2).
type Backend interface {
	Name() string
	BreakpointInstruction() []byte

	Initialize() (*State, error)
	Finalize(*State) error

	// ChildStopped is the central decision point of §4.2. bps resolves a
	// breakpoint address match without arch owning the breakpoint table;
	// notify resolves the runtime notification trampoline. The
	// callback-frame stack lives in st, which arch owns directly.
	ChildStopped(st *State, regs Registers, stopSig int, bps BreakpointLookup, notify NotificationAddress) StopVerdict

	// PushRegisters/PopRegisters give C6 the pure stack discipline of
	// §4.2.
	PushRegisters(st *State, frame CallbackFrame)
	PopRegisters(st *State) (CallbackFrame, bool)

	// AbortTo unwinds the frame stack to and including the given frame id
	// without running completion (abort_invoke, §4.6).
	AbortTo(st *State, frameID int64) ([]CallbackFrame, bool)

	// TopFrame exposes the innermost live frame, used by mark_rti_frame
	// and by the operator console's "bt" command.
	TopFrame(st *State) (CallbackFrame, bool)

	// NewRegisters builds a zeroed register snapshot suitable for
	// LoadBytes, used when decoding a register blob read back from a
	// trace backend.
	NewRegisters() Registers

	// SetCallArgs loads up to the arch's argument-register count with args,
	// the calling-convention sliver call_methodN (§4.6) needs. Extra args
	// beyond the register count are silently ignored: this module caps
	// call_methodN at four arguments (invoke.Engine.CallMethodN rejects
	// more), which fits in registers on every backend it ships.
	SetCallArgs(regs Registers, args []uint64)
}

// NoNotification is a NotificationAddress with no trampoline configured,
// for sessions with no managed-runtime cooperation layer attached (a bare
// native binary, or a unit test exercising C1-C5 in isolation).
type NoNotification struct{}

func (NoNotification) NotificationTrampoline() (uint64, bool) { return 0, false }

// ErrUnsupported is returned by arch helpers asked to do something the
// concrete backend does not implement (e.g. hardware breakpoints on an
// arch with no free debug-register slots).
var ErrUnsupported = fmt.Errorf("unsupported by this arch backend")
