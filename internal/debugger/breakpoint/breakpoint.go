// Package breakpoint is the breakpoint engine (C3): a table of software and
// hardware breakpoints keyed by address, with byte patch/restore, the
// step-over-a-live-breakpoint discipline, and the tie-break rule for
// overlapping inserts.
//
// Grounded on pkg/hw/cpu/interpreter for the "record id, mutate memory,
// restore on remove" shape, and on other_examples' delve
// pkg/proc/breakpoints.go for the BreakpointKind enum idea (address-keyed
// table with a stable monotonic id, kept much smaller here since DWARF-level
// concerns are explicitly out of scope).
package breakpoint

import (
	"sync"

	"github.com/Manu343726/nativedbg/internal/debugger"
	"github.com/Manu343726/nativedbg/internal/debugger/arch"
)

// Memory is the sliver of the trace backend (C1) the breakpoint engine
// needs: faithful byte-granular read/write into inferior memory. Declared
// here, on the consumer side, rather than importing the trace package
// wholesale.
type Memory interface {
	ReadMemory(addr uint64, length int) ([]byte, error)
	WriteMemory(addr uint64, data []byte) error
}

// Entry is one breakpoint record (§3). OriginalBytes is sized for the arch
// breakpoint instruction and is only meaningful while Enabled.
type Entry struct {
	ID            int64
	Address       uint64
	Kind          debugger.BreakpointKind
	Enabled       bool
	OriginalBytes []byte
	Owner         string // method descriptor or class-init index, when applicable
}

// Table is the per-address-space breakpoint manager. Shared among all
// inferior threads of one address space; mutations are serialized by mu, as
// required by §3.
type Table struct {
	mu       sync.Mutex
	mem      Memory
	bpInsn   []byte
	nextID   int64
	byID     map[int64]*Entry
	byAddr   map[uint64][]int64 // insertion order, most recent last (tie-break rule)
	hwSlots  int
	usedSlot map[int64]bool
}

// NewTable builds an empty breakpoint table. hwSlots bounds the number of
// concurrently live hardware breakpoints (§4.3: insert_hardware fails with
// INTERNAL_ERROR once slots are exhausted).
func NewTable(mem Memory, a arch.Backend, hwSlots int) *Table {
	return &Table{
		mem:      mem,
		bpInsn:   a.BreakpointInstruction(),
		byID:     make(map[int64]*Entry),
		byAddr:   make(map[uint64][]int64),
		hwSlots:  hwSlots,
		usedSlot: make(map[int64]bool),
	}
}

// LookupEnabledAt implements arch.BreakpointLookup: the most recently
// inserted enabled breakpoint at addr, if any (tie-break rule of §4.3).
func (t *Table) LookupEnabledAt(addr uint64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabledAtLocked(addr)
}

func (t *Table) enabledAtLocked(addr uint64) (int64, bool) {
	ids := t.byAddr[addr]
	for i := len(ids) - 1; i >= 0; i-- {
		if e := t.byID[ids[i]]; e.Enabled {
			return e.ID, true
		}
	}
	return 0, false
}

// InsertSoftware allocates a fresh id, captures the original bytes at addr,
// patches in the breakpoint instruction and records the entry. If an
// identical, currently-enabled breakpoint already covers addr, its id is
// returned unchanged and no further memory mutation happens — two
// consecutive inserts at the same address must not corrupt the inferior's
// memory (§8).
func (t *Table) InsertSoftware(addr uint64) (int64, error) {
	return t.insert(addr, debugger.BreakpointSoftwareUser, "")
}

// InsertRuntime is InsertSoftware tagged SOFTWARE_RUNTIME, used by the
// cooperation layer (C7) when materializing a METHOD_PENDING breakpoint.
func (t *Table) InsertRuntime(addr uint64, owner string) (int64, error) {
	return t.insert(addr, debugger.BreakpointSoftwareRuntime, owner)
}

func (t *Table) insert(addr uint64, kind debugger.BreakpointKind, owner string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.enabledAtLocked(addr); ok {
		return id, nil
	}

	original, err := t.mem.ReadMemory(addr, len(t.bpInsn))
	if err != nil {
		return 0, debugger.MakeError(debugger.ErrPermissionDenied, "reading original bytes at 0x%x: %v", addr, err)
	}

	if err := t.mem.WriteMemory(addr, t.bpInsn); err != nil {
		return 0, debugger.MakeError(debugger.ErrPermissionDenied, "patching breakpoint at 0x%x: %v", addr, err)
	}

	t.nextID++
	id := t.nextID
	t.byID[id] = &Entry{
		ID:            id,
		Address:       addr,
		Kind:          kind,
		Enabled:       true,
		OriginalBytes: original,
		Owner:         owner,
	}
	t.byAddr[addr] = append(t.byAddr[addr], id)
	return id, nil
}

// InsertHardware allocates a hardware breakpoint slot. Fails with
// ErrInternal once hwSlots are all in use, matching §4.3's "no debug
// register slot is free" failure.
func (t *Table) InsertHardware(addr uint64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.usedSlot) >= t.hwSlots {
		return 0, debugger.MakeError(debugger.ErrInternal, "no free hardware breakpoint slot")
	}

	t.nextID++
	id := t.nextID
	t.byID[id] = &Entry{ID: id, Address: addr, Kind: debugger.BreakpointHardware, Enabled: true}
	t.byAddr[addr] = append(t.byAddr[addr], id)
	t.usedSlot[id] = true
	return id, nil
}

// InsertPending records a symbolic METHOD_PENDING breakpoint with no
// concrete address yet; it is materialized into a real entry by
// MaterializePending once the cooperation layer's compile-method callback
// resolves the method's entry address.
func (t *Table) InsertPending(descriptor string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	t.byID[id] = &Entry{ID: id, Kind: debugger.BreakpointMethodPending, Owner: descriptor}
	return id
}

// MaterializePending turns a pending entry into a concrete, patched
// SOFTWARE_RUNTIME breakpoint at addr. Returns ErrNoSuchBreakpoint if id is
// not a live pending entry.
func (t *Table) MaterializePending(id int64, addr uint64) error {
	t.mu.Lock()
	e, ok := t.byID[id]
	if !ok || e.Kind != debugger.BreakpointMethodPending {
		t.mu.Unlock()
		return debugger.MakeError(debugger.ErrNoSuchBreakpoint, "pending breakpoint %d", id)
	}
	t.mu.Unlock()

	original, err := t.mem.ReadMemory(addr, len(t.bpInsn))
	if err != nil {
		return debugger.MakeError(debugger.ErrPermissionDenied, "reading original bytes at 0x%x: %v", addr, err)
	}
	if err := t.mem.WriteMemory(addr, t.bpInsn); err != nil {
		return debugger.MakeError(debugger.ErrPermissionDenied, "patching breakpoint at 0x%x: %v", addr, err)
	}

	t.mu.Lock()
	e.Kind = debugger.BreakpointSoftwareRuntime
	e.Address = addr
	e.Enabled = true
	e.OriginalBytes = original
	t.byAddr[addr] = append(t.byAddr[addr], id)
	t.mu.Unlock()
	return nil
}

// Remove restores original bytes (or frees a hardware slot) and deletes the
// entry. Idempotent against an already-removed id via ErrNoSuchBreakpoint.
func (t *Table) Remove(id int64) error {
	t.mu.Lock()
	e, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		return debugger.MakeError(debugger.ErrNoSuchBreakpoint, "%d", id)
	}
	delete(t.byID, id)
	delete(t.usedSlot, id)
	if e.Address != 0 || e.Kind != debugger.BreakpointMethodPending {
		ids := t.byAddr[e.Address]
		for i, v := range ids {
			if v == id {
				t.byAddr[e.Address] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
	mem, insn, addr, enabled := t.mem, e.OriginalBytes, e.Address, e.Enabled
	kind := e.Kind
	t.mu.Unlock()

	if kind == debugger.BreakpointSoftwareUser || kind == debugger.BreakpointSoftwareRuntime {
		if enabled {
			if err := mem.WriteMemory(addr, insn); err != nil {
				return debugger.MakeError(debugger.ErrInternal, "restoring bytes at 0x%x: %v", addr, err)
			}
		}
	}
	return nil
}

// Enable re-patches memory for a software breakpoint that was disabled.
// Enabling an already-enabled breakpoint is a no-op, not an invariant
// violation: §7 reserves aborts for sequences that cannot occur legitimately,
// and a frontend racing an enable against itself is legitimate.
func (t *Table) Enable(id int64) error {
	t.mu.Lock()
	e, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		return debugger.MakeError(debugger.ErrNoSuchBreakpoint, "%d", id)
	}
	if e.Enabled {
		t.mu.Unlock()
		return nil
	}
	addr, insn := e.Address, t.bpInsn
	isSoftware := e.Kind == debugger.BreakpointSoftwareUser || e.Kind == debugger.BreakpointSoftwareRuntime
	t.mu.Unlock()

	if isSoftware {
		if err := t.mem.WriteMemory(addr, insn); err != nil {
			return debugger.MakeError(debugger.ErrPermissionDenied, "re-arming breakpoint at 0x%x: %v", addr, err)
		}
	}

	t.mu.Lock()
	e.Enabled = true
	t.mu.Unlock()
	return nil
}

// Disable restores original bytes without deleting the entry; a disabled
// entry must not patch memory (§4.3).
func (t *Table) Disable(id int64) error {
	t.mu.Lock()
	e, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		return debugger.MakeError(debugger.ErrNoSuchBreakpoint, "%d", id)
	}
	if !e.Enabled {
		t.mu.Unlock()
		return nil
	}
	addr, original := e.Address, e.OriginalBytes
	isSoftware := e.Kind == debugger.BreakpointSoftwareUser || e.Kind == debugger.BreakpointSoftwareRuntime
	t.mu.Unlock()

	if isSoftware {
		if err := t.mem.WriteMemory(addr, original); err != nil {
			return debugger.MakeError(debugger.ErrInternal, "restoring bytes at 0x%x: %v", addr, err)
		}
	}

	t.mu.Lock()
	e.Enabled = false
	t.mu.Unlock()
	return nil
}

// Get returns a copy of the entry for inspection (operator console's
// "break" table listing), or false if id is unknown.
func (t *Table) Get(id int64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// All returns a stable-ordered snapshot of every live entry.
func (t *Table) All() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.byID))
	for id := int64(1); id <= t.nextID; id++ {
		if e, ok := t.byID[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// StepOverIfArmed implements the single-step-over-breakpoint discipline of
// §4.3: if addr is covered by an enabled breakpoint, disable it, run step,
// re-enable it (logging rather than failing if the re-arm fails, per §7's
// local-recovery rule), and report that a step-over happened so the caller
// can suppress the intermediate stop from the frontend.
func (t *Table) StepOverIfArmed(addr uint64, step func() error) (didStepOver bool, stepErr error, rearmErr error) {
	id, ok := t.LookupEnabledAt(addr)
	if !ok {
		return false, nil, nil
	}

	if err := t.Disable(id); err != nil {
		return false, err, nil
	}
	stepErr = step()
	// Local recovery per §7: re-arm failure is logged by the caller (which
	// owns the logger) and does not fail the step itself.
	rearmErr = t.Enable(id)
	return true, stepErr, rearmErr
}
