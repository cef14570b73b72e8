package trace_test

import (
	"encoding/binary"
	"testing"

	"github.com/Manu343726/nativedbg/internal/debugger/arch"
	"github.com/Manu343726/nativedbg/internal/debugger/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeWord renders a 32-bit instruction word little-endian; opcode 0
// mirrors pkg/hw/cpu/mc/opcodes.go's OpCode_NOP (0) in the low 5 bits, and
// the remaining bits are don't-care for this test.
func encodeWord(opcode uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, opcode)
	return buf
}

func TestSimBackendContinueRunsUntilBreakpointSentinel(t *testing.T) {
	sim := trace.NewSimBackend()
	h, _, err := sim.Spawn(".", []string{"fake"}, nil, false)
	require.NoError(t, err)

	image := append(encodeWord(0), encodeWord(0)...)
	image = append(image, encodeWord(uint32(arch.SimBreakpointOpcode))...)
	require.NoError(t, sim.LoadImage(h, image, 0))

	require.NoError(t, sim.Continue(h, 0))

	status, err := sim.WaitForEvent(h)
	require.NoError(t, err)
	assert.True(t, status.Stopped)

	regs, err := sim.GetRegisters(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), regs.PC())
}

func TestSimBackendSingleStepAdvancesOneInstruction(t *testing.T) {
	sim := trace.NewSimBackend()
	h, _, err := sim.Spawn(".", []string{"fake"}, nil, false)
	require.NoError(t, err)

	image := append(encodeWord(0), encodeWord(0)...)
	require.NoError(t, sim.LoadImage(h, image, 0))

	require.NoError(t, sim.SingleStep(h, 0))
	_, err = sim.WaitForEvent(h)
	require.NoError(t, err)

	regs, err := sim.GetRegisters(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), regs.PC())
}

func TestSimBackendReadWriteMemoryRoundTrips(t *testing.T) {
	sim := trace.NewSimBackend()
	h, _, err := sim.Spawn(".", []string{"fake"}, nil, false)
	require.NoError(t, err)

	require.NoError(t, sim.WriteMemory(h, 0x10, []byte{1, 2, 3, 4}))
	data, err := sim.ReadMemory(h, 0x10, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestSimBackendWriteMemoryOutOfBoundsFails(t *testing.T) {
	sim := trace.NewSimBackend()
	h, _, err := sim.Spawn(".", []string{"fake"}, nil, false)
	require.NoError(t, err)

	err = sim.WriteMemory(h, 1<<30, []byte{1})
	assert.Error(t, err)
}
