package arch_test

import (
	"testing"

	"github.com/Manu343726/nativedbg/internal/debugger"
	"github.com/Manu343726/nativedbg/internal/debugger/arch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBPs struct {
	enabled map[uint64]int64
}

func (f fakeBPs) LookupEnabledAt(addr uint64) (int64, bool) {
	id, ok := f.enabled[addr]
	return id, ok
}

type fakeNotify struct {
	addr uint64
	ok   bool
}

func (f fakeNotify) NotificationTrampoline() (uint64, bool) { return f.addr, f.ok }

func TestChildStoppedReportsBreakpointHit(t *testing.T) {
	a := arch.NewSimBackend()
	st, err := a.Initialize()
	require.NoError(t, err)

	regs := &arch.SimRegisters{Pc: 0x100}
	bps := fakeBPs{enabled: map[uint64]int64{0x100: 7}}

	v := a.ChildStopped(st, regs, 5, bps, arch.NoNotification{})
	assert.Equal(t, arch.VerdictBreakpointHit, v.Verdict)
	assert.Equal(t, int64(7), v.Retval)
}

func TestChildStoppedReportsNotificationAtTrampoline(t *testing.T) {
	a := arch.NewSimBackend()
	st, err := a.Initialize()
	require.NoError(t, err)

	regs := &arch.SimRegisters{Pc: 0x200, Regs: [256]uint32{16: 11, 17: 22}} // r0, r1 by register encoding
	bps := fakeBPs{enabled: map[uint64]int64{}}

	v := a.ChildStopped(st, regs, 5, bps, fakeNotify{addr: 0x200, ok: true})
	assert.Equal(t, arch.VerdictNotification, v.Verdict)
	assert.Equal(t, uint64(11), v.Data1)
	assert.Equal(t, uint64(22), v.Data2)
}

func TestChildStoppedReportsCallbackCompletedAtReturnPC(t *testing.T) {
	a := arch.NewSimBackend()
	st, err := a.Initialize()
	require.NoError(t, err)

	saved := &arch.SimRegisters{Pc: 0x10}
	a.PushRegisters(st, arch.CallbackFrame{ID: 42, Saved: saved, ReturnPC: 0x300, Stage: debugger.CallbackCompleting})

	regs := &arch.SimRegisters{Pc: 0x300, Regs: [256]uint32{0: 1, 1: 2}}
	bps := fakeBPs{enabled: map[uint64]int64{}}

	v := a.ChildStopped(st, regs, 5, bps, arch.NoNotification{})
	assert.Equal(t, arch.VerdictCallbackCompleted, v.Verdict)
	assert.Equal(t, int64(42), v.Retval)
	assert.Equal(t, 0, st.Depth())
}

func TestChildStoppedReportsRTIDoneForRTIFrame(t *testing.T) {
	a := arch.NewSimBackend()
	st, err := a.Initialize()
	require.NoError(t, err)

	saved := &arch.SimRegisters{}
	a.PushRegisters(st, arch.CallbackFrame{ID: 1, Saved: saved, ReturnPC: 0x400, Stage: debugger.CallbackRTI})

	regs := &arch.SimRegisters{Pc: 0x400}
	v := a.ChildStopped(st, regs, 5, fakeBPs{enabled: map[uint64]int64{}}, arch.NoNotification{})
	assert.Equal(t, arch.VerdictRTIDone, v.Verdict)
}

func TestChildStoppedReportsNotificationWhenFrameFlagged(t *testing.T) {
	a := arch.NewSimBackend()
	st, err := a.Initialize()
	require.NoError(t, err)

	saved := &arch.SimRegisters{}
	a.PushRegisters(st, arch.CallbackFrame{ID: 2, Saved: saved, ReturnPC: 0x500, NotifyOnComplete: true})

	regs := &arch.SimRegisters{Pc: 0x500}
	v := a.ChildStopped(st, regs, 5, fakeBPs{enabled: map[uint64]int64{}}, arch.NoNotification{})
	assert.Equal(t, arch.VerdictNotification, v.Verdict)
	assert.Equal(t, int64(2), v.Retval)
}

func TestChildStoppedReportsInterruptedThenStoppedFallback(t *testing.T) {
	a := arch.NewSimBackend()
	st, err := a.Initialize()
	require.NoError(t, err)

	regs := &arch.SimRegisters{Pc: 0x999}
	bps := fakeBPs{enabled: map[uint64]int64{}}

	st.RequestInterrupt()
	v := a.ChildStopped(st, regs, 19, bps, arch.NoNotification{})
	assert.Equal(t, arch.VerdictInterrupted, v.Verdict)

	v2 := a.ChildStopped(st, regs, 19, bps, arch.NoNotification{})
	assert.Equal(t, arch.VerdictStopped, v2.Verdict)
}

func TestAbortToUnwindsNestedFrames(t *testing.T) {
	a := arch.NewSimBackend()
	st, err := a.Initialize()
	require.NoError(t, err)

	a.PushRegisters(st, arch.CallbackFrame{ID: 1, Saved: &arch.SimRegisters{Pc: 0x1}})
	a.PushRegisters(st, arch.CallbackFrame{ID: 2, Saved: &arch.SimRegisters{Pc: 0x2}})
	a.PushRegisters(st, arch.CallbackFrame{ID: 3, Saved: &arch.SimRegisters{Pc: 0x3}})

	popped, ok := a.AbortTo(st, 2)
	require.True(t, ok)
	assert.Len(t, popped, 2)
	assert.Equal(t, int64(2), popped[0].ID)
	assert.Equal(t, int64(3), popped[1].ID)
	assert.Equal(t, 1, st.Depth())
}
