// Package errors provides structured error types for the jsrt library.
//
// Errors are categorized by Phase (which layer operation failed) and Kind
// (error category). Engine failures also carry the native status code and the
// name of the engine table operation that returned it.
//
// The taxonomy is closed:
//
//	KindEngine          non-zero status from the engine, recoverable
//	KindScriptException script threw; see runtime.ScriptException for the value
//	KindFatal           engine in unrecoverable state, never retried
//	KindGuard*          operation attempted without a matching active context
//	KindContextMismatch value or context used under a foreign guard
//	KindDisposed        use after runtime disposal
//	KindCallback        host callback failure caught at the engine boundary
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseScript, errors.KindEngine).
//		Op("RunScript").
//		Code(0x10001, "InvalidArgument").
//		Detail("empty source").
//		Build()
//
// Sentinels match by kind with errors.Is regardless of phase:
//
//	if errors.Is(err, errors.ErrGuardNotCurrent) { ... }
//	if errors.IsGuardMisuse(err) { ... }
package errors
