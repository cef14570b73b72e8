package trace

import (
	"sync"

	"github.com/Manu343726/nativedbg/internal/debugger"
	"github.com/Manu343726/nativedbg/internal/debugger/arch"
	"github.com/Manu343726/nativedbg/pkg/hw/cpu/interpreter"
)

// simInferior is one simulated traced process: the teacher's CPU emulator
// standing in for an OS process. Continue/SingleStep drive
// interpreter.Interpreter.Step() directly instead of a real ptrace(2) call,
// which is what lets C1 through C5 be exercised by ordinary, deterministic
// `_test.go` files (§2b).
type simInferior struct {
	interp     *interpreter.Interpreter
	lastSignal int
	exited     bool
	exitCode   int
}

// SimBackend is the host-independent trace backend. One instance can host
// several simulated inferiors; GlobalWait returns whichever pending event a
// map iteration yields first, so events of different inferiors come in no
// defined order. Each inferior holds at most one pending event, so events
// from a single inferior are still delivered in the order they occurred.
type SimBackend struct {
	mu        sync.Mutex
	nextID    int64
	inferiors map[Handle]*simInferior
	// pendingEvent holds an event produced by Continue/SingleStep ahead of
	// the matching WaitForEvent call, mirroring how a real ptrace backend
	// observes the status at wait(2) time rather than at resume time.
	pendingEvent map[Handle]RawStatus
}

func NewSimBackend() *SimBackend {
	return &SimBackend{
		inferiors:    make(map[Handle]*simInferior),
		pendingEvent: make(map[Handle]RawStatus),
	}
}

const memorySize = 1 << 20 // 1 MiB simulated address space, ample for test programs

// Spawn creates a fresh simulated CPU with zeroed memory and reports the
// initial trap, matching spawn's "parent waits for the initial trap"
// contract (§4.4). argv[0] is not loaded: LoadImage or WriteMemory fill the
// memory afterward. cwd, redirectIO and envp are accepted for interface
// parity but unused: the simulated inferior has no stdout/stderr of its own.
func (s *SimBackend) Spawn(cwd string, argv, envp []string, redirectIO bool) (Handle, *IOPipes, error) {
	if len(argv) == 0 {
		return 0, nil, debugger.MakeError(debugger.ErrCannotStartTarget, "spawn: empty argv")
	}

	interp := interpreter.NewInterpreter(memorySize)

	s.mu.Lock()
	s.nextID++
	h := Handle(s.nextID)
	s.inferiors[h] = &simInferior{interp: interp}
	s.pendingEvent[h] = RawStatus{Stopped: true, StopSignal: 0}
	s.mu.Unlock()

	return h, nil, nil
}

// LoadImage loads a raw instruction image into the simulated inferior's
// memory at addr and resets its PC there. Exists because the simulated
// backend has no ELF loader of its own; tests and the practice-session
// operator console use it in place of a real argv[0] binary.
func (s *SimBackend) LoadImage(h Handle, image []byte, addr uint32) error {
	inf, ok := s.get(h)
	if !ok {
		return debugger.MakeError(debugger.ErrInternal, "unknown handle %d", h)
	}
	return inf.interp.LoadBinary(image, addr)
}

func (s *SimBackend) Attach(pid int) (Handle, error) {
	return 0, debugger.MakeError(debugger.ErrCannotStartTarget, "sim backend has no real OS processes to attach to")
}

// Detach drops any pending event for h. The simulated inferior itself stays
// in place, as a real process outlives its tracer's detach, so its memory
// can still be read afterward.
func (s *SimBackend) Detach(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingEvent, h)
	return nil
}

func (s *SimBackend) Kill(h Handle) error {
	inf, ok := s.get(h)
	if !ok {
		return debugger.MakeError(debugger.ErrInternal, "unknown handle %d", h)
	}
	inf.exited = true
	inf.exitCode = 0
	s.mu.Lock()
	s.pendingEvent[h] = RawStatus{Signaled: true, TermSignal: 9}
	s.mu.Unlock()
	return nil
}

func (s *SimBackend) get(h Handle) (*simInferior, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inf, ok := s.inferiors[h]
	return inf, ok
}

const sigTrap = 5 // SIGTRAP, same numeric value the real backend reports

// step runs exactly one simulated instruction (or recognizes a breakpoint
// sentinel without executing it) and classifies the result. hitBreakpoint
// tells Continue's loop whether to keep running or stop here.
func (s *SimBackend) step(inf *simInferior) (status RawStatus, hitBreakpoint bool) {
	if inf.interp.State().Halted {
		inf.exited = true
		inf.exitCode = 0
		return RawStatus{Exited: true, ExitCode: 0}, false
	}

	word, err := inf.interp.State().ReadMemory32(inf.interp.State().PC)
	if err == nil && byte(word&0x1F) == arch.SimBreakpointOpcode {
		// Don't execute the sentinel: report a trap at this PC, exactly
		// like an INT3 that traps before the patched instruction runs.
		return RawStatus{Stopped: true, StopSignal: sigTrap}, true
	}

	if _, err := inf.interp.Step(); err != nil {
		inf.exited = true
		inf.exitCode = 1
		return RawStatus{Exited: true, ExitCode: 1}, false
	}

	if inf.interp.State().Halted {
		inf.exited = true
		inf.exitCode = 0
		return RawStatus{Exited: true, ExitCode: 0}, false
	}

	return RawStatus{Stopped: true, StopSignal: 0}, false
}

// maxRunInstructions bounds Continue's instruction loop so a simulated
// program that never halts or hits a breakpoint cannot hang the debugger
// forever; it surfaces as an internal error instead, matching §5's
// "implementation-defined finite bound" rule for operations awaiting a
// specific kind of stop.
const maxRunInstructions = 10_000_000

func (s *SimBackend) Continue(h Handle, sig int) error {
	inf, ok := s.get(h)
	if !ok {
		return debugger.MakeError(debugger.ErrInternal, "unknown handle %d", h)
	}

	var st RawStatus
	stopped := false
	for i := 0; i < maxRunInstructions; i++ {
		var hit bool
		st, hit = s.step(inf)
		if hit || st.Exited || st.Signaled {
			stopped = true
			break
		}
	}
	if !stopped {
		return debugger.MakeError(debugger.ErrInternal, "no stop within %d simulated instructions", maxRunInstructions)
	}

	s.mu.Lock()
	s.pendingEvent[h] = st
	s.mu.Unlock()
	return nil
}

func (s *SimBackend) SingleStep(h Handle, sig int) error {
	inf, ok := s.get(h)
	if !ok {
		return debugger.MakeError(debugger.ErrInternal, "unknown handle %d", h)
	}
	st, _ := s.step(inf)
	s.mu.Lock()
	s.pendingEvent[h] = st
	s.mu.Unlock()
	return nil
}

func (s *SimBackend) ReadMemory(h Handle, addr uint64, length int) ([]byte, error) {
	inf, ok := s.get(h)
	if !ok {
		return nil, debugger.MakeError(debugger.ErrInternal, "unknown handle %d", h)
	}
	mem := inf.interp.State().Memory
	if int(addr)+length > len(mem) {
		return nil, debugger.MakeError(debugger.ErrPermissionDenied, "read out of bounds at 0x%x", addr)
	}
	out := make([]byte, length)
	copy(out, mem[addr:int(addr)+length])
	return out, nil
}

func (s *SimBackend) WriteMemory(h Handle, addr uint64, data []byte) error {
	inf, ok := s.get(h)
	if !ok {
		return debugger.MakeError(debugger.ErrInternal, "unknown handle %d", h)
	}
	mem := inf.interp.State().Memory
	if int(addr)+len(data) > len(mem) {
		return debugger.MakeError(debugger.ErrPermissionDenied, "write out of bounds at 0x%x", addr)
	}
	copy(mem[addr:], data)
	return nil
}

func (s *SimBackend) GetRegisters(h Handle) (arch.Registers, error) {
	inf, ok := s.get(h)
	if !ok {
		return nil, debugger.MakeError(debugger.ErrInternal, "unknown handle %d", h)
	}
	st := inf.interp.State()
	regs := &arch.SimRegisters{Pc: st.PC}
	regs.Regs = st.Registers
	return regs, nil
}

func (s *SimBackend) SetRegisters(h Handle, regs arch.Registers) error {
	inf, ok := s.get(h)
	if !ok {
		return debugger.MakeError(debugger.ErrInternal, "unknown handle %d", h)
	}
	sr, ok := regs.(*arch.SimRegisters)
	if !ok {
		return debugger.MakeError(debugger.ErrInternal, "sim backend given non-sim registers")
	}
	st := inf.interp.State()
	st.PC = sr.Pc
	st.Registers = sr.Regs
	return nil
}

func (s *SimBackend) WaitForEvent(h Handle) (RawStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.pendingEvent[h]
	if !ok {
		return RawStatus{}, debugger.MakeError(debugger.ErrInternal, "no pending event for handle %d", h)
	}
	delete(s.pendingEvent, h)
	return st, nil
}

func (s *SimBackend) GlobalWait() (Handle, RawStatus, error) {
	s.mu.Lock()
	for h, st := range s.pendingEvent {
		delete(s.pendingEvent, h)
		s.mu.Unlock()
		return h, st, nil
	}
	s.mu.Unlock()
	return 0, RawStatus{}, debugger.MakeError(debugger.ErrInternal, "no inferior has a pending event")
}

func (s *SimBackend) GetEventDetail(h Handle, status RawStatus) (EventDetail, error) {
	inf, ok := s.get(h)
	if !ok {
		return EventDetail{}, debugger.MakeError(debugger.ErrInternal, "unknown handle %d", h)
	}
	return EventDetail{ExitCode: inf.exitCode}, nil
}

func (s *SimBackend) SendSignal(h Handle, sig int) error {
	inf, ok := s.get(h)
	if !ok {
		return debugger.MakeError(debugger.ErrInternal, "unknown handle %d", h)
	}
	inf.lastSignal = sig
	return nil
}
