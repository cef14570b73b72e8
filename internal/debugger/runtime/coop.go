// Package coop is the runtime cooperation layer (C7) plus the runtime lock
// (C8). It models the managed runtime's exported "debugger info block" as
// a plain Go struct of in-inferior entry addresses the debugger calls
// through via the invocation engine (C6), and serializes every mutation of runtime-visible
// state behind a reentrant lock.
//
// Named coop, not runtime, to avoid shadowing the standard library
// package of that name in every file that needs both.
//
// Grounded on original_source/runtime/mini/debug-debugger.c for the
// attach/init notification sequence, the get_method_addr_or_bpt pending-
// breakpoint materialization mechanism, and the reentrant lock's
// must_reload_symtabs bookkeeping; the function-pointer table itself is
// rendered as InfoBlock's uint64 entry-address fields, since this module
// never runs inside the traced process.
package coop

import (
	"sync"

	"github.com/Manu343726/nativedbg/internal/debugger"
	"github.com/Manu343726/nativedbg/internal/debugger/breakpoint"
)

// InfoBlock mirrors the fixed-layout debugger_info_block §4.7 and §6
// describe: a magic/version/size header (checked for compatibility), the
// notification trampoline address, and the function table entry points,
// each resolved to an address the invocation engine can call through.
type InfoBlock struct {
	Magic      uint32
	Version    uint32
	Size       uint32
	Trampoline uint64

	CompileMethod          uint64
	GetVirtualMethod       uint64
	GetBoxedObject         uint64
	InsertBreakpoint       uint64
	RemoveBreakpoint       uint64
	RegisterClassInit      uint64
	RemoveClassInit        uint64
	RuntimeInvoke          uint64
	CreateString           uint64
	LookupClass            uint64
	LookupAssembly         uint64
	RunFinally             uint64
	GetCurrentThread       uint64
	ClassGetStaticField    uint64
	GetMethodAddrOrBpt     uint64
	RemoveMethodBreakpoint uint64
	Attach                 uint64
	Detach                 uint64
	Initialize             uint64
}

// ExpectedVersion is the only metadata-descriptor version this module
// understands; a mismatch is fatal per §4.7 ("mismatches are fatal").
const ExpectedVersion = 1

// ClassInitCallback is fired exactly once when its class initializes
// inside the inferior (§4.7).
type ClassInitCallback struct {
	Image      string
	TypeToken  uint32
	UserIndex  int64
	Descriptor string
	fired      bool
}

// PendingBreakpoint pairs a method descriptor string with the breakpoint
// table id InsertPending allocated for it, so compile-method's callback
// can find and materialize it once the method has an address.
type PendingBreakpoint struct {
	Descriptor string
	TableID    int64
}

// InvokeResult is what the controller-supplied call closure returns: the
// frame id call_methodN allocated, plus the two result words its completion
// carried. inferior.Controller's call_method path already blocks for
// completion before returning (§5's single-controller-thread discipline
// makes call_methodN synchronous from C7's point of view), so the result
// words are available by the time the closure returns rather than arriving
// later on the event channel.
type InvokeResult struct {
	FrameID int64
	Data1   uint64
	Data2   uint64
}

// Layer is C7+C8: the runtime cooperation state for one inferior plus its
// reentrant lock.
type Layer struct {
	mu sync.Mutex // guards everything below; reentrancy handled by depth, not a recursive mutex

	block      InfoBlock
	call       func(entry uint64, args []uint64, notify bool, rti bool) (InvokeResult, error)
	readString func(ref uint64) (string, error)

	depth             int
	mustReloadSymtabs bool

	breakpoints *breakpoint.Table
	pending     []PendingBreakpoint
	classInits  []*ClassInitCallback

	lastBoxedObject uint64 // §9 Open Question (c): kept single-pin, see SPEC_FULL.md
	hasBoxedObject  bool
}

// New builds a cooperation layer bound to the inferior's breakpoint table,
// a call-dispatch closure the controller supplies (typically
// inferior.Controller.CallForResult, threaded through the inferior's current
// arch state), and a managed-string reader used to render a ToString result
// into Go text for RuntimeInvoke's exception path.
func New(block InfoBlock, bps *breakpoint.Table, call func(entry uint64, args []uint64, notify bool, rti bool) (InvokeResult, error), readString func(ref uint64) (string, error)) (*Layer, error) {
	if block.Version != ExpectedVersion {
		return nil, debugger.MakeError(debugger.ErrInternal, "debugger info block version %d, expected %d", block.Version, ExpectedVersion)
	}
	return &Layer{block: block, call: call, readString: readString, breakpoints: bps}, nil
}

// NotificationTrampoline implements arch.NotificationAddress.
func (l *Layer) NotificationTrampoline() (uint64, bool) {
	return l.block.Trampoline, l.block.Trampoline != 0
}

// Acquire/Release implement the §4.8 reentrant runtime lock: nested
// acquisitions just increment a depth counter; only the outermost release
// checks must_reload_symtabs and, if set, reports that a RELOAD_SYMTABS
// notification is due.
func (l *Layer) Acquire() {
	l.mu.Lock()
	l.depth++
}

// Release returns true when this was the outermost release and
// must_reload_symtabs was set, meaning the caller must emit a
// RELOAD_SYMTABS notification before anything else runs.
func (l *Layer) Release() (needsReloadSymtabs bool) {
	l.depth--
	outermost := l.depth == 0
	if outermost && l.mustReloadSymtabs {
		l.mustReloadSymtabs = false
		needsReloadSymtabs = true
	}
	l.mu.Unlock()
	return needsReloadSymtabs
}

// invoke calls entry through C6 under the reentrant lock, the shared shape
// every InfoBlock function-pointer call in this file uses.
func (l *Layer) invoke(entry uint64, args ...uint64) (InvokeResult, error) {
	l.Acquire()
	defer l.Release()
	return l.call(entry, args, false, false)
}

// LookupAssembly implements the lookup-assembly rule of §4.7: a request
// for an image not present in the current symbol table calls through to
// the runtime's LookupAssembly entry to open it, and sets
// must_reload_symtabs so the next outermost Release reports it. imageRef is
// the assembly display name already materialized as a managed string (via
// CreateString) in the inferior.
func (l *Layer) LookupAssembly(imageRef uint64, inSymbolTable bool) (needsOpen bool, err error) {
	if inSymbolTable {
		return false, nil
	}
	if _, err := l.invoke(l.block.LookupAssembly, imageRef); err != nil {
		return false, err
	}
	l.Acquire()
	l.mustReloadSymtabs = true
	l.Release()
	return true, nil
}

// RegisterClassInit calls through to the runtime's RegisterClassInit entry
// (§4.7) so it starts watching the named class, then records the callback
// locally keyed by (image, typeToken) so FireClassInit can recognize the
// matching NOTIFICATION later and report it fires exactly once.
func (l *Layer) RegisterClassInit(imageRef uint64, typeToken uint32, userIndex int64, image, descriptor string) error {
	if _, err := l.invoke(l.block.RegisterClassInit, imageRef, uint64(typeToken), uint64(userIndex)); err != nil {
		return err
	}
	l.Acquire()
	defer l.Release()
	l.classInits = append(l.classInits, &ClassInitCallback{
		Image: image, TypeToken: typeToken, UserIndex: userIndex, Descriptor: descriptor,
	})
	return nil
}

// RemoveClassInit calls through to the runtime's RemoveClassInit entry and
// drops the matching local registration, undoing RegisterClassInit.
func (l *Layer) RemoveClassInit(userIndex int64) error {
	if _, err := l.invoke(l.block.RemoveClassInit, uint64(userIndex)); err != nil {
		return err
	}
	l.Acquire()
	defer l.Release()
	for i, c := range l.classInits {
		if c.UserIndex == userIndex {
			l.classInits = append(l.classInits[:i], l.classInits[i+1:]...)
			break
		}
	}
	return nil
}

// FireClassInit matches an observed class-init event against registered
// callbacks by (image, typeToken); at most one fires per registration, per
// §4.7's "fires exactly once" rule.
func (l *Layer) FireClassInit(image string, typeToken uint32) (userIndex int64, descriptor string, ok bool) {
	l.Acquire()
	defer l.Release()
	for _, c := range l.classInits {
		if c.fired || c.Image != image || c.TypeToken != typeToken {
			continue
		}
		c.fired = true
		return c.UserIndex, c.Descriptor, true
	}
	return 0, "", false
}

// InsertPendingMethodBreakpoint records a METHOD_PENDING breakpoint
// (§4.3) awaiting compilation, used before get_method_addr_or_bpt can
// resolve a concrete address.
func (l *Layer) InsertPendingMethodBreakpoint(descriptor string) int64 {
	l.Acquire()
	defer l.Release()
	id := l.breakpoints.InsertPending(descriptor)
	l.pending = append(l.pending, PendingBreakpoint{Descriptor: descriptor, TableID: id})
	return id
}

// NotifyMethodCompiled implements the compile-method callback's pending-
// breakpoint materialization (§4.7 supplement): when the runtime reports
// that descriptor just compiled to addr, any pending breakpoint for it is
// turned into a concrete SOFTWARE_RUNTIME breakpoint there.
func (l *Layer) NotifyMethodCompiled(descriptor string, addr uint64) (materializedID int64, ok bool, err error) {
	l.Acquire()
	defer l.Release()
	for i, p := range l.pending {
		if p.Descriptor != descriptor {
			continue
		}
		if err := l.breakpoints.MaterializePending(p.TableID, addr); err != nil {
			return 0, false, err
		}
		l.pending = append(l.pending[:i], l.pending[i+1:]...)
		return p.TableID, true, nil
	}
	return 0, false, nil
}

// GetBoxedObject calls through to the runtime's GetBoxedObject entry
// (§4.7) to box val for klass, and implements the single-pin workaround
// (§9 Open Question c): the returned reference silently replaces any
// previously pinned one, matching the original's last_boxed_object field
// exactly. This module does not widen it to a pin set: see SPEC_FULL.md's
// Open Question resolution for why the precondition ("at most one boxed
// temporary is live across a single C6-serialized call") already holds by
// construction here.
func (l *Layer) GetBoxedObject(klassRef, valRef uint64) (uint64, error) {
	res, err := l.invoke(l.block.GetBoxedObject, klassRef, valRef)
	if err != nil {
		return 0, err
	}
	l.Acquire()
	l.lastBoxedObject = res.Data1
	l.hasBoxedObject = true
	l.Release()
	return res.Data1, nil
}

func (l *Layer) LastBoxedObject() (uint64, bool) {
	l.Acquire()
	defer l.Release()
	return l.lastBoxedObject, l.hasBoxedObject
}

// CompileMethod calls through to the runtime's CompileMethod entry (§4.7),
// returning the method's entry address once JIT compilation finishes.
func (l *Layer) CompileMethod(methodRef uint64) (uint64, error) {
	res, err := l.invoke(l.block.CompileMethod, methodRef)
	return res.Data1, err
}

// GetVirtualMethod calls through to the runtime's GetVirtualMethod entry
// (§4.7), resolving classRef's override of methodRef.
func (l *Layer) GetVirtualMethod(classRef, methodRef uint64) (uint64, error) {
	res, err := l.invoke(l.block.GetVirtualMethod, classRef, methodRef)
	return res.Data1, err
}

// CreateString calls through to the runtime's CreateString entry (§4.7),
// wrapping the bytes already written at strPtr in inferior memory as a
// managed string and returning its reference.
func (l *Layer) CreateString(strPtr uint64) (uint64, error) {
	res, err := l.invoke(l.block.CreateString, strPtr)
	return res.Data1, err
}

// LookupClass calls through to the runtime's LookupClass entry (§4.7),
// resolving typeToken within the image named by imageRef.
func (l *Layer) LookupClass(imageRef uint64, typeToken uint32) (uint64, error) {
	res, err := l.invoke(l.block.LookupClass, imageRef, uint64(typeToken))
	return res.Data1, err
}

// RunFinally calls through to the runtime's RunFinally entry (§4.7),
// running the finally blocks enclosing contextRef's unwind point.
func (l *Layer) RunFinally(contextRef uint64) error {
	_, err := l.invoke(l.block.RunFinally, contextRef)
	return err
}

// GetCurrentThread calls through to the runtime's GetCurrentThread entry
// (§4.7), returning the calling inferior thread's managed thread reference.
func (l *Layer) GetCurrentThread() (uint64, error) {
	res, err := l.invoke(l.block.GetCurrentThread)
	return res.Data1, err
}

// ClassGetStaticField calls through to the runtime's ClassGetStaticField
// entry (§4.7), returning classRef's static-field storage address.
func (l *Layer) ClassGetStaticField(classRef uint64) (uint64, error) {
	res, err := l.invoke(l.block.ClassGetStaticField, classRef)
	return res.Data1, err
}

// InsertBreakpoint calls through to the runtime's InsertBreakpoint entry
// (§4.7), inserting a runtime-side breakpoint on methodRef.
func (l *Layer) InsertBreakpoint(methodRef uint64) (uint64, error) {
	res, err := l.invoke(l.block.InsertBreakpoint, methodRef)
	return res.Data1, err
}

// RemoveBreakpoint calls through to the runtime's RemoveBreakpoint entry
// (§4.7), undoing InsertBreakpoint.
func (l *Layer) RemoveBreakpoint(id uint64) error {
	_, err := l.invoke(l.block.RemoveBreakpoint, id)
	return err
}

// RemoveMethodBreakpoint calls through to the runtime's
// RemoveMethodBreakpoint entry (§4.7).
func (l *Layer) RemoveMethodBreakpoint(id uint64) error {
	_, err := l.invoke(l.block.RemoveMethodBreakpoint, id)
	return err
}

// GetMethodAddrOrBpt calls through to the runtime's GetMethodAddrOrBpt
// entry (§4.7 supplement): if methodRef is already compiled, Data1 is its
// entry address; otherwise the runtime itself materializes a pending
// breakpoint and Data2 is non-zero, signaling isBreakpoint so the caller
// records it with InsertPendingMethodBreakpoint instead of treating Data1
// as an address.
func (l *Layer) GetMethodAddrOrBpt(methodRef uint64, index uint64) (addrOrBpt uint64, isBreakpoint bool, err error) {
	res, err := l.invoke(l.block.GetMethodAddrOrBpt, methodRef, index)
	if err != nil {
		return 0, false, err
	}
	return res.Data1, res.Data2 != 0, nil
}

// Attach calls through to the runtime's Attach entry once. It neither sends
// nor waits for the INITIALIZE_MANAGED_CODE / INITIALIZE_THREAD_MANAGER
// notifications of the attach sequence original_source/runtime/mini/debug-debugger.c
// documents.
func (l *Layer) Attach() error {
	_, err := l.invoke(l.block.Attach)
	return err
}

// Detach calls through to the runtime's Detach entry.
func (l *Layer) Detach() error {
	_, err := l.invoke(l.block.Detach)
	return err
}

// Initialize calls through to the runtime's Initialize entry.
func (l *Layer) Initialize() error {
	_, err := l.invoke(l.block.Initialize)
	return err
}

// InsertPendingMethodBreakpoint records a METHOD_PENDING breakpoint
// (§4.3) awaiting compilation, used before get_method_addr_or_bpt can
// resolve a concrete address.
func (l *Layer) InsertPendingMethodBreakpoint(descriptor string) int64 {
	l.Acquire()
	defer l.Release()
	id := l.breakpoints.InsertPending(descriptor)
	l.pending = append(l.pending, PendingBreakpoint{Descriptor: descriptor, TableID: id})
	return id
}

// NotifyMethodCompiled implements the compile-method callback's pending-
// breakpoint materialization (§4.7 supplement): when the runtime reports
// that descriptor just compiled to addr, any pending breakpoint for it is
// turned into a concrete SOFTWARE_RUNTIME breakpoint there.
func (l *Layer) NotifyMethodCompiled(descriptor string, addr uint64) (materializedID int64, ok bool, err error) {
	l.Acquire()
	defer l.Release()
	for i, p := range l.pending {
		if p.Descriptor != descriptor {
			continue
		}
		if err := l.breakpoints.MaterializePending(p.TableID, addr); err != nil {
			return 0, false, err
		}
		l.pending = append(l.pending[:i], l.pending[i+1:]...)
		return p.TableID, true, nil
	}
	return 0, false, nil
}

// RuntimeInvokeResult is what a runtime-invoke call (§4.7) resolves to: a
// value reference, or an exception reference plus its ToString rendering,
// obtained via a second runtime-invoke per §4.7's rule.
type RuntimeInvokeResult struct {
	IsException   bool
	Value         uint64
	ExceptionText string
}

// RuntimeInvoke calls the runtime's runtime-invoke function pointer via C6,
// marking the frame as an RTI boundary so its completion reports RTI_DONE.
// §4.7's convention for telling a value reference from an exception
// reference apart: a non-zero second result word (Data2) means the first
// (Data1) is an exception reference rather than a plain value — the same
// "up to two result words" channel every other callback result rides, with
// no separate predicate entry in the info block to ask. When that happens,
// RuntimeInvoke pins the exception (GetBoxedObject's single-pin rule keeps
// it alive against collection), invokes toStringEntry on it via a second
// C6 call marked as an RTI boundary too, and renders the resulting managed
// string reference into Go text via the configured reader.
func (l *Layer) RuntimeInvoke(entry uint64, args []uint64, toStringEntry uint64) (*RuntimeInvokeResult, error) {
	l.Acquire()
	res, err := l.call(entry, args, false, true)
	l.Release()
	if err != nil {
		return nil, err
	}

	if res.Data2 == 0 {
		return &RuntimeInvokeResult{Value: res.Data1}, nil
	}

	excRef := res.Data1
	l.Acquire()
	l.lastBoxedObject = excRef
	l.hasBoxedObject = true
	l.Release()

	l.Acquire()
	strRes, err := l.call(toStringEntry, []uint64{excRef}, false, true)
	l.Release()
	if err != nil {
		return nil, debugger.MakeError(debugger.ErrInternal, "rendering exception via ToString: %v", err)
	}

	text, err := l.readString(strRes.Data1)
	if err != nil {
		return nil, debugger.MakeError(debugger.ErrInternal, "reading rendered exception string: %v", err)
	}

	return &RuntimeInvokeResult{IsException: true, Value: excRef, ExceptionText: text}, nil
}
