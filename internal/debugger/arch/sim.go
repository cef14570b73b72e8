package arch

import (
	"encoding/binary"
	"fmt"

	"github.com/Manu343726/nativedbg/internal/debugger"
	"github.com/Manu343726/nativedbg/pkg/hw/cpu/mc/registers"
)

// SimBreakpointOpcode is the one-byte sentinel the simulated backend uses as
// its breakpoint instruction. Cucaracha instructions are 32-bit words
// decoded by opcode in the low 5 bits (pkg/hw/cpu/interpreter.DecodeInstruction);
// 0x1F is not a valid opcode in pkg/hw/cpu/mc/instructions, so patching the
// low byte of an instruction word with it is unambiguous and recognizable
// without needing a second "is this a breakpoint" side table.
const SimBreakpointOpcode = 0x1F

// SimRegisters is a value snapshot of the simulated CPU's register file,
// indexed by pkg/hw/cpu/mc/registers' register encoding reused unmodified:
// the state registers (pc, sp, cpsr, lr) sit at the low indices and r0 at
// registers.Register("r0").Encode().
type SimRegisters struct {
	Regs [256]uint32
	Pc   uint32
}

var (
	simSPIndex = registers.Register("sp").Encode()
	simLRIndex = registers.Register("lr").Encode()
	simR0Index = registers.Register("r0").Encode()
)

func (r *SimRegisters) PC() uint64      { return uint64(r.Pc) }
func (r *SimRegisters) SetPC(pc uint64) { r.Pc = uint32(pc) }
func (r *SimRegisters) SP() uint64      { return uint64(r.Regs[simSPIndex]) }
func (r *SimRegisters) SetSP(sp uint64) { r.Regs[simSPIndex] = uint32(sp) }

// Result returns r0/r1, this backend's two-word callback-result
// convention (there being no real ABI to defer to in a simulated machine).
func (r *SimRegisters) Result() (uint64, uint64) {
	return uint64(r.Regs[simR0Index]), uint64(r.Regs[simR0Index+1])
}

func (r *SimRegisters) Clone() Registers {
	c := *r
	return &c
}

func (r *SimRegisters) Bytes() []byte {
	buf := make([]byte, 4+256*4)
	binary.LittleEndian.PutUint32(buf, r.Pc)
	for i, v := range r.Regs {
		binary.LittleEndian.PutUint32(buf[4+i*4:], v)
	}
	return buf
}

func (r *SimRegisters) LoadBytes(b []byte) error {
	if len(b) != 4+256*4 {
		return fmt.Errorf("sim registers: expected %d bytes, got %d", 4+256*4, len(b))
	}
	r.Pc = binary.LittleEndian.Uint32(b)
	for i := range r.Regs {
		r.Regs[i] = binary.LittleEndian.Uint32(b[4+i*4:])
	}
	return nil
}

// SimBackend is the host-independent arch backend built on the simulated
// trace backend (internal/debugger/trace.SimBackend), used for tests and
// for practice sessions where no real traceable binary is given.
type SimBackend struct{}

func NewSimBackend() *SimBackend { return &SimBackend{} }

func (*SimBackend) Name() string { return "sim" }

func (*SimBackend) BreakpointInstruction() []byte { return []byte{SimBreakpointOpcode} }

func (*SimBackend) NewRegisters() Registers     { return &SimRegisters{} }
func (*SimBackend) Initialize() (*State, error) { return &State{}, nil }
func (*SimBackend) Finalize(*State) error       { return nil }

func (*SimBackend) PushRegisters(st *State, frame CallbackFrame)         { st.push(frame) }
func (*SimBackend) PopRegisters(st *State) (CallbackFrame, bool)         { return st.pop() }
func (*SimBackend) AbortTo(st *State, id int64) ([]CallbackFrame, bool) { return st.unwindTo(id) }
func (*SimBackend) TopFrame(st *State) (CallbackFrame, bool)            { return st.Top() }

// SetCallArgs loads the first four args into r0-r3, this backend's
// argument-register convention (there being no real ABI to defer to in a
// simulated machine).
func (*SimBackend) SetCallArgs(regs Registers, args []uint64) {
	r := regs.(*SimRegisters)
	for i, v := range args {
		if i >= 4 {
			break
		}
		r.Regs[simR0Index+uint64(i)] = uint32(v)
	}
}

// ChildStopped mirrors AMD64Backend.ChildStopped's decision order exactly;
// the two bodies are the same, and neither inspects the instruction at PC:
// a trap on a breakpoint sentinel with no enabled table entry at PC is
// reported STOPPED.
func (b *SimBackend) ChildStopped(st *State, regs Registers, stopSig int, bps BreakpointLookup, notify NotificationAddress) StopVerdict {
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
