// Package resource provides registration tables for host values handed to
// the engine by opaque key.
//
// The engine never sees Go pointers. A host closure or an external payload is
// inserted into a table and the engine receives the resulting Handle, which
// it passes back verbatim to the native trampoline or finalizer. Handles carry
// a slot generation, so a stale handle from an already-finalized registration
// can never resolve to a newer one.
//
// # Lifecycle
//
//	insert  - host value moves into the table, handle goes to the engine
//	borrow  - a call pins the registration while it runs
//	remove  - finalizer or explicit severance destroys the value
//
// Remove succeeds at most once per handle; whoever gets (value, true) owns
// the destruction. A Remove that arrives while the registration is borrowed
// is deferred and completes on the last ReturnBorrow:
//
//	table := resource.NewTable()
//	h := table.Insert(typeID, payload)
//
//	table.Borrow(h)
//	table.Remove(h)       // deferred, reports false
//	table.ReturnBorrow(h) // payload destroyed here
//
// # Typed Views
//
// Typed wraps a table for one type ID:
//
//	funcs := resource.NewTyped[*registration](table, TypeFunction)
//	h := funcs.Insert(reg)
//	reg, ok := funcs.Get(h)
//
// # Destructors
//
// Values implementing Dropper get Drop() when their registration is
// destroyed. Drop may run on a garbage collector goroutine; it must not block
// and must not call back into the engine. Panics are recovered and logged.
//
// # Observers
//
// Observers receive created/dropped/borrowed events and may be invoked from
// any goroutine:
//
//	table.Subscribe(myObserver)
package resource
