// Package inferior is the inferior controller (C4): it owns one traced
// process's lifecycle state machine, serializes every operation against it
// through a single per-inferior goroutine, and assembles the trace engine
// (C1), the arch backend (C2), the breakpoint table (C3), the event
// dispatcher (C5), the invocation engine (C6) and the runtime cooperation
// layer (C7/C8) into the single `Commands` vtable a frontend drives.
//
// Grounded on pkg/hw/cpu/debugger/controller.go's
// Controller{backend, ui, running, ...} shape for the "one struct owns the
// session, commands are methods on it" layout, and on the commented-out
// ptraceChan/ptraceDoneChan idiom other_examples' undoio-delve proc.go
// sketches, generalized here into a live per-inferior command channel so
// every ptrace-affinity-sensitive call runs on the same goroutine (§5).
package inferior

import (
	"fmt"
	"os"

	"github.com/Manu343726/nativedbg/internal/debugger"
	"github.com/Manu343726/nativedbg/internal/debugger/arch"
	"github.com/Manu343726/nativedbg/internal/debugger/breakpoint"
	"github.com/Manu343726/nativedbg/internal/debugger/event"
	"github.com/Manu343726/nativedbg/internal/debugger/invoke"
	"github.com/Manu343726/nativedbg/internal/debugger/trace"
)

// sigStop is SIGSTOP, the signal Stop()/Detach() send to force a running
// inferior to trap so its next event can be reported INTERRUPTED (§5).
const sigStop = 19

// Commands is the high-level, one-method-per-vtable-entry surface (§6)
// a frontend (the operator console, A6) drives. It mirrors the teacher's
// DebuggerBackend/DebuggerCommands split: Commands is the narrow,
// UI-facing contract; Controller is the concrete implementation wired to
// real backends.
type Commands interface {
	Spawn(cwd string, argv, envp []string, redirectIO bool) error
	Attach(pid int) error
	Detach() error
	Kill() error

	Continue() error
	Step() error
	Stop() error

	ReadMemory(addr uint64, length int) ([]byte, error)
	WriteMemory(addr uint64, data []byte) error
	GetRegisters() (arch.Registers, error)
	SetRegisters(arch.Registers) error

	InsertSoftwareBreakpoint(addr uint64) (int64, error)
	InsertHardwareBreakpoint(addr uint64) (int64, error)
	RemoveBreakpoint(id int64) error
	EnableBreakpoint(id int64) error
	DisableBreakpoint(id int64) error
	Breakpoints() []breakpoint.Entry

	CallMethod(entry uint64, args []uint64) (frameID int64, err error)
	CallMethodInvoke(entry uint64, args []uint64) (frameID int64, err error)
	AbortInvoke(frameID int64) error

	State() debugger.InferiorState
	Events() <-chan debugger.StatusMessage
}

// Controller is the concrete C4 implementation. Every method funnels
// through run(), which executes its argument on the controller's single
// goroutine, the rendering of §5's "single controller thread per
// inferior" rule.
type Controller struct {
	handle trace.Handle
	trace  trace.Backend
	arch   arch.Backend
	st     *arch.State
	bps    *breakpoint.Table
	disp   *event.Dispatcher
	inv    *invoke.Engine
	notify arch.NotificationAddress

	state debugger.InferiorState

	work   chan func()
	events chan debugger.StatusMessage
	quit   chan struct{}
}

// New assembles a controller around an already-spawned-or-attached handle.
// The caller (the A6 operator console, or a test) is expected to have
// called Spawn/Attach on t first and threaded the resulting handle in,
// since the arch state and breakpoint table construction both need the
// same memory view the handle exposes.
func New(t trace.Backend, h trace.Handle, a arch.Backend, bps *breakpoint.Table, inv *invoke.Engine, notify arch.NotificationAddress) (*Controller, error) {
	st, err := a.Initialize()
	if err != nil {
		return nil, debugger.MakeError(debugger.ErrInternal, "initializing arch state: %v", err)
	}
	c := &Controller{
		handle: h,
		trace:  t,
		arch:   a,
		st:     st,
		bps:    bps,
		disp:   event.New(t, a),
		inv:    inv,
		notify: notify,
		state:  debugger.StateStopped, // spawn/attach's parent path already observed the initial trap
		work:   make(chan func()),
		events: make(chan debugger.StatusMessage, 16),
		quit:   make(chan struct{}),
	}
	go c.loop()
	return c, nil
}

// SetNotify swaps in the arch.NotificationAddress used to recognize C7
// notification traps. It exists because coop.Layer's call closure is built
// from this Controller's CallForResult, so the Controller must be
// constructed (with arch.NoNotification{}) before a Layer can exist — the
// caller wires the real notify address in once both are built.
func (c *Controller) SetNotify(n arch.NotificationAddress) {
	c.run(func() {
		c.notify = n
	})
}

// loop is the single goroutine every operation on this inferior executes
// on. Commands send a thunk on work and block for it to run; the loop
// itself never blocks on anything but reading work and (while RUNNING)
// never needs to, since Continue/SingleStep return immediately on the real
// backend — the actual wait happens in waitAndDispatch, invoked
// synchronously by the same Continue/Step command so ordering holds.
func (c *Controller) loop() {
	for {
		select {
		case fn := <-c.work:
			fn()
		case <-c.quit:
			return
		}
	}
}

func (c *Controller) run(fn func()) {
	done := make(chan struct{})
	c.work <- func() {
		fn()
		close(done)
	}
	<-done
}

func (c *Controller) Events() <-chan debugger.StatusMessage { return c.events }
func (c *Controller) State() debugger.InferiorState {
	var s debugger.InferiorState
	c.run(func() { s = c.state })
	return s
}

// waitAndDispatch blocks for the next event on this inferior, dispatches
// it, updates c.state, publishes the resulting message, and returns it so
// a caller that needs the result words of a call_methodN completion (the
// runtime cooperation layer's C6 call closure, wired through
// CallForResult) does not have to re-derive them from the event channel.
// Called from within an already-running work item (Continue/Step), so it
// does not re-enter run().
func (c *Controller) waitAndDispatch() debugger.StatusMessage {
	status, err := c.trace.WaitForEvent(c.handle)
	if err != nil {
		c.state = debugger.StateStopped
		msg := debugger.StatusMessage{Kind: debugger.MessageInternalError}
		c.events <- msg
		return msg
	}

	msg, err := c.disp.DispatchEvent(c.handle, status, c.st, c.bps, c.notify)
	if err != nil {
		msg = debugger.StatusMessage{Kind: debugger.MessageInternalError}
		c.events <- msg
		return msg
	}

	switch msg.Kind {
	case debugger.MessageExited:
		c.state = debugger.StateExited
	case debugger.MessageSignaled:
		c.state = debugger.StateSignaled
	case debugger.MessageCallbackCompleted, debugger.MessageRTIDone, debugger.MessageNotification:
		c.inv.Complete(msg.Arg)
		c.state = debugger.StateStopped
	default:
		c.state = debugger.StateStopped
	}

	c.events <- msg
	return msg
}

func (c *Controller) Spawn(cwd string, argv, envp []string, redirectIO bool) error {
	var err error
	c.run(func() {
		_, _, err = c.trace.Spawn(cwd, argv, envp, redirectIO)
		c.state = debugger.StateStopped
	})
	return err
}

func (c *Controller) Attach(pid int) error {
	var err error
	c.run(func() {
		_, err = c.trace.Attach(pid)
		c.state = debugger.StateStopped
	})
	return err
}

// Detach implements §5's "stop first, restore breakpoints, then detach"
// rule: a running inferior is interrupted and waited on before any
// breakpoint is touched, and a breakpoint restore failure is reported but
// does not block the detach itself.
func (c *Controller) Detach() error {
	var restoreErr error
	c.run(func() {
		if c.state == debugger.StateRunning {
			c.st.RequestInterrupt()
			c.trace.SendSignal(c.handle, sigStop)
			c.waitAndDispatch()
		}
		for _, e := range c.bps.All() {
			if err := c.bps.Remove(e.ID); err != nil && restoreErr == nil {
				restoreErr = err
			}
		}
	})
	var err error
	c.run(func() {
		err = c.trace.Detach(c.handle)
		c.state = debugger.StateDetached
	})
	if err != nil {
		return err
	}
	return restoreErr
}

func (c *Controller) Kill() error {
	var err error
	c.run(func() {
		err = c.trace.Kill(c.handle)
	})
	return err
}

// Continue resumes the inferior and blocks until the next event is
// dispatched, honoring the step-over-a-live-breakpoint discipline of §4.3:
// resuming from an address currently patched with the breakpoint
// instruction would otherwise just re-trap immediately.
func (c *Controller) Continue() error {
	var err error
	c.run(func() {
		if c.state != debugger.StateStopped {
			err = debugger.MakeError(debugger.ErrNotStopped, "continue")
			return
		}
		regs, rerr := c.trace.GetRegisters(c.handle)
		if rerr != nil {
			err = rerr
			return
		}
		didStepOver, stepErr, rearmErr := c.bps.StepOverIfArmed(regs.PC(), func() error {
			return c.trace.SingleStep(c.handle, 0)
		})
		if rearmErr != nil {
			fmt.Fprintf(os.Stderr, "nativedbg: re-arming breakpoint at 0x%x: %v\n", regs.PC(), rearmErr)
		}
		if didStepOver {
			if stepErr != nil {
				err = stepErr
				return
			}
			// Consume and discard the intermediate single-step trap; it is
			// not a real event from the frontend's point of view.
			if _, werr := c.trace.WaitForEvent(c.handle); werr != nil {
				err = werr
				return
			}
		}
		c.state = debugger.StateRunning
		if cerr := c.trace.Continue(c.handle, 0); cerr != nil {
			err = cerr
			return
		}
		c.waitAndDispatch()
	})
	return err
}

func (c *Controller) Step() error {
	var err error
	c.run(func() {
		if c.state != debugger.StateStopped {
			err = debugger.MakeError(debugger.ErrNotStopped, "step")
			return
		}
		c.state = debugger.StateRunning
		if serr := c.trace.SingleStep(c.handle, 0); serr != nil {
			err = serr
			return
		}
		c.waitAndDispatch()
	})
	return err
}

// Stop requests that a running inferior's next event be reported
// INTERRUPTED (§5 cancellation rule); a stop on an already-stopped
// inferior is a no-op.
func (c *Controller) Stop() error {
	var err error
	c.run(func() {
		if c.state != debugger.StateRunning {
			return
		}
		c.st.RequestInterrupt()
		err = c.trace.SendSignal(c.handle, sigStop)
	})
	return err
}

func (c *Controller) ReadMemory(addr uint64, length int) ([]byte, error) {
	var data []byte
	var err error
	c.run(func() { data, err = c.trace.ReadMemory(c.handle, addr, length) })
	return data, err
}

func (c *Controller) WriteMemory(addr uint64, d []byte) error {
	var err error
	c.run(func() { err = c.trace.WriteMemory(c.handle, addr, d) })
	return err
}

func (c *Controller) GetRegisters() (arch.Registers, error) {
	var regs arch.Registers
	var err error
	c.run(func() { regs, err = c.trace.GetRegisters(c.handle) })
	return regs, err
}

func (c *Controller) SetRegisters(r arch.Registers) error {
	var err error
	c.run(func() { err = c.trace.SetRegisters(c.handle, r) })
	return err
}

func (c *Controller) InsertSoftwareBreakpoint(addr uint64) (int64, error) {
	var id int64
	var err error
	c.run(func() { id, err = c.bps.InsertSoftware(addr) })
	return id, err
}

func (c *Controller) InsertHardwareBreakpoint(addr uint64) (int64, error) {
	var id int64
	var err error
	c.run(func() { id, err = c.bps.InsertHardware(addr) })
	return id, err
}

func (c *Controller) RemoveBreakpoint(id int64) error {
	var err error
	c.run(func() { err = c.bps.Remove(id) })
	return err
}

func (c *Controller) EnableBreakpoint(id int64) error {
	var err error
	c.run(func() { err = c.bps.Enable(id) })
	return err
}

func (c *Controller) DisableBreakpoint(id int64) error {
	var err error
	c.run(func() { err = c.bps.Disable(id) })
	return err
}

func (c *Controller) Breakpoints() []breakpoint.Entry {
	var out []breakpoint.Entry
	c.run(func() { out = c.bps.All() })
	return out
}

// CallMethod implements call_methodN (§4.6): the frame's completion is
// reported as CALLBACK_COMPLETED. The inferior must already be stopped.
func (c *Controller) CallMethod(entry uint64, args []uint64) (int64, error) {
	return c.callMethod(entry, args, false)
}

// CallMethodInvoke marks the frame as a runtime-invoke boundary so its
// completion reports RTI_DONE instead, per §4.6's mark_rti_frame and
// §4.7's runtime-invoke rule.
func (c *Controller) CallMethodInvoke(entry uint64, args []uint64) (int64, error) {
	return c.callMethod(entry, args, true)
}

func (c *Controller) callMethod(entry uint64, args []uint64, rti bool) (int64, error) {
	frameID, _, _, err := c.CallForResult(entry, args, false, rti)
	return frameID, err
}

// CallForResult runs call_methodN and blocks for its completion, returning
// the frame id plus its two result words. CallMethod/CallMethodInvoke only
// surface the frame id to a frontend and leave the result words in the
// dispatched StatusMessage; the runtime cooperation layer (C7) needs both
// back synchronously to decide things like "is this runtime-invoke result
// an exception reference", so it is wired through this method's closure
// form instead (see cmd/dbg/debug.go's coop.Layer construction).
func (c *Controller) CallForResult(entry uint64, args []uint64, notifyOnComplete, rti bool) (frameID int64, data1, data2 uint64, err error) {
	c.run(func() {
		if c.state != debugger.StateStopped {
			err = debugger.MakeError(debugger.ErrNotStopped, "call_method")
			return
		}
		c.state = debugger.StateRunning
		frameID, err = c.inv.CallMethodN(c.handle, c.st, entry, args, notifyOnComplete, rti)
		if err != nil {
			c.state = debugger.StateStopped
			return
		}
		msg := c.waitAndDispatch()
		data1, data2 = msg.Data1, msg.Data2
	})
	return frameID, data1, data2, err
}

func (c *Controller) AbortInvoke(frameID int64) error {
	var err error
	c.run(func() { err = c.inv.Abort(c.handle, c.st, frameID) })
	return err
}

// Close stops the controller's goroutine; callers must not issue further
// commands afterward.
func (c *Controller) Close() {
	close(c.quit)
}

var _ Commands = (*Controller)(nil)
