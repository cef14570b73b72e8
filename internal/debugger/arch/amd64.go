package arch

import (
	"encoding/binary"
	"fmt"

	"github.com/Manu343726/nativedbg/internal/debugger"
)

// AMD64Registers is a host-independent snapshot of the general purpose
// register file PTRACE_GETREGS/PTRACE_SETREGS exchange on linux/amd64. The
// trace backend is the only place that actually talks to the kernel; this
// type just needs to carry the bytes faithfully and expose the handful of
// registers the rest of the debugger cares about (PC, SP, call-return
// result registers).
type AMD64Registers struct {
	R15, R14, R13, R12 uint64
	Rbp, Rbx           uint64
	R11, R10, R9, R8   uint64
	Rax, Rcx, Rdx, Rsi, Rdi uint64
	OrigRax                 uint64
	Rip, Cs, Eflags         uint64
	Rsp, Ss                uint64
	FsBase, GsBase          uint64
	Ds, Es, Fs, Gs          uint64
}

const amd64RegisterCount = 27

func (r *AMD64Registers) fields() []*uint64 {
	return []*uint64{
		&r.R15, &r.R14, &r.R13, &r.R12,
		&r.Rbp, &r.Rbx,
		&r.R11, &r.R10, &r.R9, &r.R8,
		&r.Rax, &r.Rcx, &r.Rdx, &r.Rsi, &r.Rdi,
		&r.OrigRax,
		&r.Rip, &r.Cs, &r.Eflags,
		&r.Rsp, &r.Ss,
		&r.FsBase, &r.GsBase,
		&r.Ds, &r.Es, &r.Fs, &r.Gs,
	}
}

func (r *AMD64Registers) PC() uint64      { return r.Rip }
func (r *AMD64Registers) SetPC(pc uint64) { r.Rip = pc }
func (r *AMD64Registers) SP() uint64      { return r.Rsp }
func (r *AMD64Registers) SetSP(sp uint64) { r.Rsp = sp }

// Result returns Rax/Rdx, the System V AMD64 two-word return convention,
// used to recover a callback's result words (§4.6 step 4).
func (r *AMD64Registers) Result() (uint64, uint64) { return r.Rax, r.Rdx }

func (r *AMD64Registers) Clone() Registers {
	c := *r
	return &c
}

func (r *AMD64Registers) Bytes() []byte {
	buf := make([]byte, amd64RegisterCount*8)
	for i, f := range r.fields() {
		binary.LittleEndian.PutUint64(buf[i*8:], *f)
	}
	return buf
}

func (r *AMD64Registers) LoadBytes(b []byte) error {
	if len(b) != amd64RegisterCount*8 {
		return fmt.Errorf("amd64 registers: expected %d bytes, got %d", amd64RegisterCount*8, len(b))
	}
	for i, f := range r.fields() {
		*f = binary.LittleEndian.Uint64(b[i*8:])
	}
	return nil
}

// AMD64Backend is the real-hardware arch backend: a one-byte INT3 (0xCC)
// breakpoint instruction, RIP-based stop-site decoding, and the System V
// two-word return convention for callback completion.
type AMD64Backend struct{}

func NewAMD64Backend() *AMD64Backend { return &AMD64Backend{} }

func (*AMD64Backend) Name() string                  { return "amd64" }
func (*AMD64Backend) BreakpointInstruction() []byte  { return []byte{0xCC} }
func (*AMD64Backend) NewRegisters() Registers        { return &AMD64Registers{} }
func (*AMD64Backend) Initialize() (*State, error)    { return &State{}, nil }
func (*AMD64Backend) Finalize(*State) error           { return nil }

func (*AMD64Backend) PushRegisters(st *State, frame CallbackFrame)         { st.push(frame) }
func (*AMD64Backend) PopRegisters(st *State) (CallbackFrame, bool)         { return st.pop() }
func (*AMD64Backend) AbortTo(st *State, id int64) ([]CallbackFrame, bool) { return st.unwindTo(id) }
func (*AMD64Backend) TopFrame(st *State) (CallbackFrame, bool)            { return st.Top() }

// SetCallArgs loads the first four args into the System V integer argument
// registers (rdi, rsi, rdx, rcx) call_methodN's stub (§4.6) relies on.
func (*AMD64Backend) SetCallArgs(regs Registers, args []uint64) {
	r := regs.(*AMD64Registers)
	slots := []*uint64{&r.Rdi, &r.Rsi, &r.Rdx, &r.Rcx}
	for i, v := range args {
		if i >= len(slots) {
			break
		}
		*slots[i] = v
	}
}

// ChildStopped implements the §4.2 decision order: callback-return address
// on the frame stack, then the runtime's notification trampoline, then a
// breakpoint table match, then STOPPED.
//
// On INT3, the trap leaves RIP one byte past the patched instruction; by
// the time ChildStopped is called the caller (the event dispatcher, via the
// controller) has already rewound PC by len(BreakpointInstruction()), so
// this method compares the rewound PC directly — it never touches RIP
// arithmetic itself.
func (b *AMD64Backend) ChildStopped(st *State, regs Registers, stopSig int, bps BreakpointLookup, notify NotificationAddress) StopVerdict {
	pc := regs.PC()

	if top, ok := st.Top(); ok && pc == top.ReturnPC {
		frame, _ := st.pop()
		d1, d2 := regs.Result()
		if frame.NotifyOnComplete {
			return StopVerdict{Verdict: VerdictNotification, Retval: frame.ID, Data1: d1, Data2: d2, SavedRegs: frame.Saved}
		}
		if frame.Stage == debugger.CallbackRTI {
			return StopVerdict{Verdict: VerdictRTIDone, Retval: frame.ID, Data1: d1, Data2: d2, SavedRegs: frame.Saved}
		}
		return StopVerdict{Verdict: VerdictCallbackCompleted, Retval: frame.ID, Data1: d1, Data2: d2, SavedRegs: frame.Saved}
	}

	if trampoline, ok := notify.NotificationTrampoline(); ok && pc == trampoline {
		d1, d2 := regs.Result()
		return StopVerdict{Verdict: VerdictNotification, Data1: d1, Data2: d2}
	}

	if id, ok := bps.LookupEnabledAt(pc); ok {
		return StopVerdict{Verdict: VerdictBreakpointHit, Retval: id}
	}

	if st.ConsumeInterrupt() {
		return StopVerdict{Verdict: VerdictInterrupted, Retval: int64(stopSig)}
	}

	return StopVerdict{Verdict: VerdictStopped, Retval: int64(stopSig)}
}
