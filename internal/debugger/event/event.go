// Package event is the event dispatcher (C5): it turns a raw wait status
// plus an arch verdict into the single typed StatusMessage a frontend
// consumes, per spec §4.5's two-step "classify the host event, then (if it
// was an ordinary stop) classify what the stop means" dispatch.
//
// DispatchSimple is the raw-status-level classifier (dispatch_simple) used
// at startup, before a Controller and its arch.State exist. DispatchEvent is
// the full dispatch_event used once one does, decoding an ordinary stop via
// arch.Backend.ChildStopped instead of swallowing it.
//
// Grounded on original_source/sysdeps/server/x86-ptrace.c's
// server_ptrace_dispatch_event for the extended-event/exit/signal decision
// order, and on the teacher's makeError idiom (internal/debugger/errors.go)
// for how a decode failure is reported rather than panicking the dispatcher
// goroutine.
package event

import (
	"github.com/Manu343726/nativedbg/internal/debugger"
	"github.com/Manu343726/nativedbg/internal/debugger/arch"
	"github.com/Manu343726/nativedbg/internal/debugger/trace"
)

// Dispatcher owns nothing; it is a pure function host so C4 can call it
// without granting it a handle to the inferior map.
type Dispatcher struct {
	Trace trace.Backend
	Arch  arch.Backend
}

func New(t trace.Backend, a arch.Backend) *Dispatcher {
	return &Dispatcher{Trace: t, Arch: a}
}

// DispatchEvent implements dispatch_event (§4.5): given the raw status a
// wait call produced for h, decide the single StatusMessage to emit.
// st/bps/notify are threaded through to ChildStopped for an ordinary stop.
func (d *Dispatcher) DispatchEvent(h trace.Handle, status trace.RawStatus, st *arch.State, bps arch.BreakpointLookup, notify arch.NotificationAddress) (debugger.StatusMessage, error) {
	// Step 1: extended events (clone/fork/exec/exit-notify) take priority
	// over plain stopped/exited/signaled decoding, exactly as
	// server_ptrace_dispatch_event checks status>>16 before falling through
	// to WIFSTOPPED/WIFEXITED/WIFSIGNALED.
	if status.Stopped && status.ExtendedEvent != trace.EventNone {
		detail, err := d.Trace.GetEventDetail(h, status)
		if err != nil {
			return debugger.StatusMessage{Kind: debugger.MessageInternalError}, err
		}
		switch status.ExtendedEvent {
		case trace.EventClone, trace.EventFork:
			kind := debugger.MessageCreatedThread
			if status.ExtendedEvent == trace.EventFork {
				kind = debugger.MessageForked
			}
			return debugger.StatusMessage{Kind: kind, Arg: int64(detail.NewPID)}, nil
		case trace.EventExec:
			return debugger.StatusMessage{Kind: debugger.MessageExecd}, nil
		case trace.EventExit:
			// §9's resolved ambiguity: PTRACE_EVENT_EXIT's real exit code is
			// available via GetEventDetail, but the message itself always
			// reports CHILD_CALLED_EXIT with Arg 0 here — the inferior has not actually
			// exited yet at this trap, only announced that it is about to,
			// so reporting detail.ExitCode as if final would be misleading.
			return debugger.StatusMessage{Kind: debugger.MessageCalledExit, Arg: 0}, nil
		}
	}

	if status.Exited {
		return debugger.StatusMessage{Kind: debugger.MessageExited, Arg: int64(status.ExitCode)}, nil
	}

	if status.Signaled {
		// A termination by SIGKILL (what the controller's own Kill sends) or
		// by SIGTRAP degrades to a plain CHILD_EXITED(0) rather than
		// CHILD_SIGNALED, so a frontend's own kill request is not reported
		// as a crash.
		if status.TermSignal == sigKill || status.TermSignal == sigTrap {
			return debugger.StatusMessage{Kind: debugger.MessageExited, Arg: 0}, nil
		}
		return debugger.StatusMessage{Kind: debugger.MessageSignaled, Arg: int64(status.TermSignal)}, nil
	}

	if status.Stopped {
		regs, err := d.Trace.GetRegisters(h)
		if err != nil {
			return debugger.StatusMessage{Kind: debugger.MessageInternalError}, err
		}
		// A stop reported with SIGCONT is passed on as signal 0.
		stopSig := status.StopSignal
		if stopSig == sigCont {
			stopSig = 0
		}
		verdict := d.Arch.ChildStopped(st, regs, stopSig, bps, notify)
		// §4.6 step 5: a stop that popped a callback frame must restore that
		// frame's pre-call registers before its completion is reported, the
		// same restore invoke.Engine.Abort performs for an aborted frame.
		if verdict.SavedRegs != nil {
			if err := d.Trace.SetRegisters(h, verdict.SavedRegs); err != nil {
				return debugger.StatusMessage{Kind: debugger.MessageInternalError}, err
			}
		}
		return d.verdictMessage(verdict), nil
	}

	return debugger.StatusMessage{Kind: debugger.MessageUnknownError}, debugger.MakeError(debugger.ErrInternal, "raw status decoded to neither stopped, exited nor signaled")
}

const (
	sigKill = 9
	sigTrap = 5
	sigCont = 18
)

// DispatchSimple implements dispatch_simple (§4.5): the raw-status-level
// classifier used at startup, before a full controller exists to supply the
// arch.State/breakpoint table DispatchEvent's ordinary-stop path needs.
// No caller in this module uses it; the ptrace backend's Spawn/Attach check
// their initial trap inline. Only STOPPED, EXITED and SIGNALED are produced, with SIGSTOP and SIGTRAP swallowed into a plain
// STOPPED rather than decoded into a breakpoint/callback verdict.
func DispatchSimple(status trace.RawStatus) debugger.StatusMessage {
	switch {
	case status.Exited:
		return debugger.StatusMessage{Kind: debugger.MessageExited, Arg: int64(status.ExitCode)}
	case status.Signaled:
		return debugger.StatusMessage{Kind: debugger.MessageSignaled, Arg: int64(status.TermSignal)}
	case status.Stopped:
		return debugger.StatusMessage{Kind: debugger.MessageStopped}
	default:
		return debugger.StatusMessage{Kind: debugger.MessageUnknownError}
	}
}

// verdictMessage is the pure verdict -> message mapping DispatchEvent uses
// once ChildStopped has classified an ordinary stop; it is not dispatch_simple
// (see DispatchSimple above for that), just the second half of DispatchEvent
// split out so tests can drive it directly from a StopVerdict.
func (d *Dispatcher) verdictMessage(v arch.StopVerdict) debugger.StatusMessage {
	return VerdictMessage(v)
}

// VerdictMessage is the free-function form of verdictMessage, usable without
// a Dispatcher instance.
func VerdictMessage(v arch.StopVerdict) debugger.StatusMessage {
	switch v.Verdict {
	case arch.VerdictInterrupted:
		return debugger.StatusMessage{Kind: debugger.MessageInterrupted, Arg: v.Retval}
	case arch.VerdictBreakpointHit:
		return debugger.StatusMessage{Kind: debugger.MessageBreakpointHit, Arg: v.Retval}
	case arch.VerdictCallback:
		return debugger.StatusMessage{Kind: debugger.MessageCallback, Arg: v.Retval, Data1: v.Data1, Data2: v.Data2}
	case arch.VerdictCallbackCompleted:
		return debugger.StatusMessage{Kind: debugger.MessageCallbackCompleted, Arg: v.Retval, Data1: v.Data1, Data2: v.Data2}
	case arch.VerdictNotification:
		return debugger.StatusMessage{Kind: debugger.MessageNotification, Arg: v.Retval, Data1: v.Data1, Data2: v.Data2}
	case arch.VerdictRTIDone:
		return debugger.StatusMessage{Kind: debugger.MessageRTIDone, Arg: v.Retval, Data1: v.Data1, Data2: v.Data2}
	case arch.VerdictInternalError:
		return debugger.StatusMessage{Kind: debugger.MessageInternalError, Arg: v.Retval}
	default:
		return debugger.StatusMessage{Kind: debugger.MessageStopped, Arg: v.Retval}
	}
}
