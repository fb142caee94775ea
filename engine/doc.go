// Package engine defines the flat native function table of a
// reference-counted, single-threaded script engine and provides a
// goja-backed implementation of it.
//
// # The Table
//
// Table mirrors a C-style embedding API: every operation returns a Status
// (zero on success) and all engine state is reached through opaque handles:
//
//	RuntimeHandle  - a runtime, the owner of contexts and their heap
//	ContextRef     - an execution context with its own global object
//	ValueRef       - a refcounted reference to a script value
//	PropertyIDRef  - an interned property key
//
// Value operations run against the table's single current context, set with
// SetCurrentContext. With no current context they fail with
// StatusNoCurrentContext.
//
// # Status Codes
//
// Non-zero statuses fall in four categories:
//
//	CategoryUsage   0x10000  caller error (invalid argument, no context, ...)
//	CategoryEngine  0x20000  resource exhaustion
//	CategoryScript  0x30000  script threw, failed to compile or was terminated
//	CategoryFatal   0x40000  the engine is unusable
//
// A script-category status leaves the thrown value pending on the context;
// GetAndClearException retrieves it. While an exception is pending, script
// execution fails with StatusInExceptionState.
//
// # Callbacks
//
// Host code enters the table through two callback types. NativeFunction
// receives script calls to functions made with CreateFunction;
// FinalizeCallback is invoked once for host data attached to an object, when
// the object is collected or its runtime is disposed. Host data is an opaque
// CallbackState: the engine never sees Go pointers.
//
// # GojaEngine
//
// GojaEngine implements Table on github.com/dop251/goja. Each context is one
// goja VM and one GojaEngine models one engine thread: runtimes created on it
// share its current-context slot. Objects belong to the VM that created them
// and are rejected with StatusInvalidContext elsewhere; primitives resolve in
// every context of their runtime.
//
// The Go garbage collector is the engine's collector. Finalizers are
// delivered on its goroutine, so they must not block or call the table.
//
// # Thread Safety
//
// The table is meant to be driven from one goroutine. AddRef, Release,
// DisableRuntimeExecution and the finalizer path are safe from any
// goroutine.
package engine
