package inferior_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/Manu343726/nativedbg/internal/debugger"
	"github.com/Manu343726/nativedbg/internal/debugger/arch"
	"github.com/Manu343726/nativedbg/internal/debugger/breakpoint"
	"github.com/Manu343726/nativedbg/internal/debugger/inferior"
	"github.com/Manu343726/nativedbg/internal/debugger/invoke"
	"github.com/Manu343726/nativedbg/internal/debugger/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeWord(opcode uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, opcode)
	return buf
}

func newController(t *testing.T) (*inferior.Controller, trace.Backend, trace.Handle) {
	t.Helper()
	tr := trace.NewSimBackend()
	h, _, err := tr.Spawn(".", []string{"fake"}, nil, false)
	require.NoError(t, err)

	a := arch.NewSimBackend()
	mem := trace.BoundMemory{Backend: tr, Handle: h}
	bps := breakpoint.NewTable(mem, a, 4)
	arena := invoke.NewArena(0x1000, 0x100, 0x10)
	inv := invoke.New(tr, a, arena)

	ctl, err := inferior.New(tr, h, a, bps, inv, arch.NoNotification{})
	require.NoError(t, err)
	t.Cleanup(ctl.Close)
	return ctl, tr, h
}

func recvEvent(t *testing.T, ctl *inferior.Controller) debugger.StatusMessage {
	t.Helper()
	select {
	case msg := <-ctl.Events():
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return debugger.StatusMessage{}
	}
}

func TestControllerStopsAtBreakpointSentinel(t *testing.T) {
	ctl, tr, h := newController(t)

	image := append(encodeWord(0), encodeWord(0)...)
	image = append(image, encodeWord(uint32(arch.SimBreakpointOpcode))...)
	require.NoError(t, tr.(*trace.SimBackend).LoadImage(h, image, 0))

	require.Equal(t, debugger.StateStopped, ctl.State())

	require.NoError(t, ctl.Continue())
	msg := recvEvent(t, ctl)
	assert.Equal(t, debugger.MessageStopped, msg.Kind)
	assert.Equal(t, debugger.StateStopped, ctl.State())

	regs, err := ctl.GetRegisters()
	require.NoError(t, err)
	assert.Equal(t, uint64(8), regs.PC())
}

func TestControllerStepsOverArmedBreakpointOnContinue(t *testing.T) {
	ctl, tr, h := newController(t)

	image := append(encodeWord(0), encodeWord(0)...)
	image = append(image, encodeWord(uint32(arch.SimBreakpointOpcode))...)
	require.NoError(t, tr.(*trace.SimBackend).LoadImage(h, image, 0))

	id, err := ctl.InsertSoftwareBreakpoint(0)
	require.NoError(t, err)
	assert.NotZero(t, id)

	require.NoError(t, ctl.Continue())
	msg := recvEvent(t, ctl)
	assert.Equal(t, debugger.MessageStopped, msg.Kind)

	regs, err := ctl.GetRegisters()
	require.NoError(t, err)
	assert.Equal(t, uint64(8), regs.PC())
}

func TestControllerCallMethodReportsCallbackCompleted(t *testing.T) {
	ctl, _, _ := newController(t)

	require.NoError(t, ctl.SetRegisters(&arch.SimRegisters{Pc: 0x60}))

	frameID, err := ctl.CallMethod(0x2000, []uint64{1, 2})
	require.NoError(t, err)
	require.NotZero(t, frameID)

	msg := recvEvent(t, ctl)
	assert.Equal(t, debugger.MessageCallbackCompleted, msg.Kind)
	assert.Equal(t, frameID, msg.Arg)
	assert.Equal(t, debugger.StateStopped, ctl.State())

	// §4.6 step 5: completion must restore the caller's pre-call registers,
	// not leave PC wherever the call stub/entry left it.
	regs, err := ctl.GetRegisters()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x60), regs.PC())
}

func TestControllerDetachRestoresBreakpointBytes(t *testing.T) {
	ctl, tr, h := newController(t)
	require.NoError(t, tr.WriteMemory(h, 0x40, []byte{0x42}))

	id, err := ctl.InsertSoftwareBreakpoint(0x40)
	require.NoError(t, err)
	require.NotZero(t, id)

	data, err := tr.ReadMemory(h, 0x40, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(arch.SimBreakpointOpcode), data[0])

	require.NoError(t, ctl.Detach())

	data, err = tr.ReadMemory(h, 0x40, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), data[0])
	assert.Equal(t, debugger.StateDetached, ctl.State())
}

func TestControllerContinueErrorsAfterDetach(t *testing.T) {
	ctl, _, _ := newController(t)
	require.NoError(t, ctl.Detach())

	err := ctl.Continue()
	assert.Error(t, err)
}
