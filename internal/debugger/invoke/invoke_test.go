package invoke_test

import (
	"testing"

	"github.com/Manu343726/nativedbg/internal/debugger/arch"
	"github.com/Manu343726/nativedbg/internal/debugger/invoke"
	"github.com/Manu343726/nativedbg/internal/debugger/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noBPs struct{}

func (noBPs) LookupEnabledAt(addr uint64) (int64, bool) { return 0, false }

func TestCallMethodNResumesAtStubAndCompletesOnTrap(t *testing.T) {
	sim := trace.NewSimBackend()
	h, _, err := sim.Spawn(".", []string{"fake"}, nil, false)
	require.NoError(t, err)

	a := arch.NewSimBackend()
	st, err := a.Initialize()
	require.NoError(t, err)

	arena := invoke.NewArena(0x1000, 0x100, 0x10)
	eng := invoke.New(sim, a, arena)

	frameID, err := eng.CallMethodN(h, st, 0x2000, []uint64{11, 22}, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Depth())

	status, err := sim.WaitForEvent(h)
	require.NoError(t, err)
	require.True(t, status.Stopped)

	regs, err := sim.GetRegisters(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), regs.PC())
	assert.Equal(t, uint32(11), regs.(*arch.SimRegisters).Regs[16]) // r0 by register encoding

	v := a.ChildStopped(st, regs, int(status.StopSignal), noBPs{}, arch.NoNotification{})
	require.Equal(t, arch.VerdictCallbackCompleted, v.Verdict)
	assert.Equal(t, frameID, v.Retval)
	assert.Equal(t, 0, st.Depth())

	// §4.6 step 5: the popped frame's pre-call registers (PC 0, the sim
	// backend's initial state) must ride out on the verdict so the caller
	// can restore them, the same way Abort already does for an aborted call.
	require.NotNil(t, v.SavedRegs)
	assert.Equal(t, uint64(0), v.SavedRegs.PC())
	require.NoError(t, sim.SetRegisters(h, v.SavedRegs))

	eng.Complete(v.Retval)
	addr, ok := arena.Allocate()
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000), addr, "freed chunk should be reusable")

	finalRegs, err := sim.GetRegisters(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), finalRegs.PC(), "caller's pre-call PC must be restored, not left at the stub")
}

func TestAbortUnwindsAndRestoresSavedRegisters(t *testing.T) {
	sim := trace.NewSimBackend()
	h, _, err := sim.Spawn(".", []string{"fake"}, nil, false)
	require.NoError(t, err)

	a := arch.NewSimBackend()
	st, err := a.Initialize()
	require.NoError(t, err)

	arena := invoke.NewArena(0x1000, 0x100, 0x10)
	eng := invoke.New(sim, a, arena)

	require.NoError(t, sim.SetRegisters(h, &arch.SimRegisters{Pc: 0x50}))
	frameID, err := eng.CallMethodN(h, st, 0x2000, nil, false, false)
	require.NoError(t, err)

	require.NoError(t, eng.Abort(h, st, frameID))
	assert.Equal(t, 0, st.Depth())

	regs, err := sim.GetRegisters(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x50), regs.PC())
}

func TestArenaAllocateFailsWhenExhausted(t *testing.T) {
	arena := invoke.NewArena(0x1000, 0x20, 0x10) // 2 chunks
	_, ok1 := arena.Allocate()
	_, ok2 := arena.Allocate()
	_, ok3 := arena.Allocate()
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3)
}
