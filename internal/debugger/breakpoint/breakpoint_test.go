package breakpoint_test

import (
	"testing"

	"github.com/Manu343726/nativedbg/internal/debugger/arch"
	"github.com/Manu343726/nativedbg/internal/debugger/breakpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMemory struct {
	data map[uint64][]byte
}

func newFakeMemory() *fakeMemory { return &fakeMemory{data: make(map[uint64][]byte)} }

func (m *fakeMemory) ReadMemory(addr uint64, length int) ([]byte, error) {
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = m.data[addr+uint64(i)][0]
	}
	return out, nil
}

func (m *fakeMemory) WriteMemory(addr uint64, data []byte) error {
	for i, b := range data {
		m.data[addr+uint64(i)] = []byte{b}
	}
	return nil
}

func (m *fakeMemory) seed(addr uint64, b byte) { m.data[addr] = []byte{b} }

func TestInsertSoftwarePatchesAndRestoresBytes(t *testing.T) {
	mem := newFakeMemory()
	mem.seed(0x100, 0x42)

	tbl := breakpoint.NewTable(mem, arch.NewSimBackend(), 4)

	id, err := tbl.InsertSoftware(0x100)
	require.NoError(t, err)
	assert.Equal(t, byte(arch.SimBreakpointOpcode), mem.data[0x100][0])

	require.NoError(t, tbl.Remove(id))
	assert.Equal(t, byte(0x42), mem.data[0x100][0])
}

func TestInsertSoftwareTwiceAtSameAddressIsIdempotent(t *testing.T) {
	mem := newFakeMemory()
	mem.seed(0x200, 0x10)
	tbl := breakpoint.NewTable(mem, arch.NewSimBackend(), 4)

	id1, err := tbl.InsertSoftware(0x200)
	require.NoError(t, err)
	id2, err := tbl.InsertSoftware(0x200)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestDisableRestoresBytesWithoutRemovingEntry(t *testing.T) {
	mem := newFakeMemory()
	mem.seed(0x300, 0x55)
	tbl := breakpoint.NewTable(mem, arch.NewSimBackend(), 4)

	id, err := tbl.InsertSoftware(0x300)
	require.NoError(t, err)

	require.NoError(t, tbl.Disable(id))
	assert.Equal(t, byte(0x55), mem.data[0x300][0])

	_, ok := tbl.LookupEnabledAt(0x300)
	assert.False(t, ok)

	require.NoError(t, tbl.Enable(id))
	assert.Equal(t, byte(arch.SimBreakpointOpcode), mem.data[0x300][0])
}

func TestInsertHardwareFailsOncePoolExhausted(t *testing.T) {
	mem := newFakeMemory()
	tbl := breakpoint.NewTable(mem, arch.NewSimBackend(), 1)

	_, err := tbl.InsertHardware(0x10)
	require.NoError(t, err)

	_, err = tbl.InsertHardware(0x20)
	assert.Error(t, err)
}

func TestPendingBreakpointMaterializesToConcreteEntry(t *testing.T) {
	mem := newFakeMemory()
	mem.seed(0x400, 0x11)
	tbl := breakpoint.NewTable(mem, arch.NewSimBackend(), 4)

	id := tbl.InsertPending("Foo::Bar")
	require.NoError(t, tbl.MaterializePending(id, 0x400))

	entry, ok := tbl.Get(id)
	require.True(t, ok)
	assert.Equal(t, uint64(0x400), entry.Address)
	assert.True(t, entry.Enabled)
	assert.Equal(t, byte(arch.SimBreakpointOpcode), mem.data[0x400][0])
}

func TestStepOverIfArmedDisablesStepsThenReArms(t *testing.T) {
	mem := newFakeMemory()
	mem.seed(0x500, 0x77)
	tbl := breakpoint.NewTable(mem, arch.NewSimBackend(), 4)

	id, err := tbl.InsertSoftware(0x500)
	require.NoError(t, err)

	var sawOriginalByte byte
	didStepOver, stepErr, rearmErr := tbl.StepOverIfArmed(0x500, func() error {
		sawOriginalByte = mem.data[0x500][0]
		return nil
	})

	require.True(t, didStepOver)
	require.NoError(t, stepErr)
	require.NoError(t, rearmErr)
	assert.Equal(t, byte(0x77), sawOriginalByte)
	assert.Equal(t, byte(arch.SimBreakpointOpcode), mem.data[0x500][0])

	_, ok := tbl.LookupEnabledAt(0x500)
	assert.True(t, ok)
	assert.Equal(t, id, id)
}

func TestStepOverIfArmedNoopWhenNoBreakpoint(t *testing.T) {
	mem := newFakeMemory()
	tbl := breakpoint.NewTable(mem, arch.NewSimBackend(), 4)

	didStepOver, stepErr, rearmErr := tbl.StepOverIfArmed(0x999, func() error {
		t.Fatal("step should not be called")
		return nil
	})
	assert.False(t, didStepOver)
	assert.NoError(t, stepErr)
	assert.NoError(t, rearmErr)
}
