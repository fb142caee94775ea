package engine

// RuntimeHandle identifies an engine runtime. Zero is never a valid handle.
type RuntimeHandle uint64

// ContextRef identifies a script context. Zero means "no context".
type ContextRef uint64

// ValueRef is a reference-counted handle to a script value.
// Zero is the invalid reference.
type ValueRef uint64

// PropertyIDRef identifies an interned property name or symbol.
type PropertyIDRef uint64

// InvalidValue is the invalid value reference.
const InvalidValue ValueRef = 0

// CallbackState is the opaque word the engine hands back to callbacks.
// The engine never interprets it.
type CallbackState uint64

// SourceContext is an opaque cookie identifying a script source.
type SourceContext uint64

// NativeFunction is invoked by the engine for calls to functions created
// with CreateFunction. args[0] is the this argument. The references in args
// and callee are valid only for the duration of the call.
// The returned reference is owned by the engine, which releases it once the
// call completes; return an AddRef'd copy to hand back an argument.
// A callback that fails sets an exception with SetException and returns
// InvalidValue.
type NativeFunction func(callee ValueRef, isConstructCall bool, args []ValueRef, state CallbackState) ValueRef

// FinalizeCallback is invoked once when an object carrying host data is
// collected or its runtime is disposed. It may run on a collector goroutine
// and must not call back into the engine.
type FinalizeCallback func(data CallbackState)

// RuntimeAttributes is the attribute bit set fixed at runtime creation.
type RuntimeAttributes uint32

const (
	AttributeNone                            RuntimeAttributes = 0x00
	AttributeDisableBackgroundWork           RuntimeAttributes = 0x01
	AttributeAllowScriptInterrupt            RuntimeAttributes = 0x02
	AttributeEnableIdleProcessing            RuntimeAttributes = 0x04
	AttributeDisableNativeCodeGeneration     RuntimeAttributes = 0x08
	AttributeDisableEval                     RuntimeAttributes = 0x10
	AttributeEnableExperimentalFeatures      RuntimeAttributes = 0x20
	AttributeDispatchSetExceptionsToDebugger RuntimeAttributes = 0x40
	AttributeDisableFatalOnOOM               RuntimeAttributes = 0x80
)

// Has reports whether all bits of attr are set.
func (a RuntimeAttributes) Has(attr RuntimeAttributes) bool {
	return a&attr == attr
}

// ValueType classifies a script value.
type ValueType uint32

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeNumber
	TypeString
	TypeBoolean
	TypeObject
	TypeFunction
	TypeError
	TypeArray
	TypeSymbol
	TypeArrayBuffer
)

func (t ValueType) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	case TypeObject:
		return "object"
	case TypeFunction:
		return "function"
	case TypeError:
		return "error"
	case TypeArray:
		return "array"
	case TypeSymbol:
		return "symbol"
	case TypeArrayBuffer:
		return "arraybuffer"
	}
	return "unknown"
}

// Table is the flat native function table of a reference-counted,
// single-threaded script engine. Every operation returns a Status, zero on
// success. Operations on values run against the current context of the
// table and fail with StatusNoCurrentContext when none is set.
//
// Value references returned by the table carry one reference owned by the
// caller; Release drops it.
type Table interface {
	// Runtime lifecycle.
	CreateRuntime(attrs RuntimeAttributes) (RuntimeHandle, Status)
	DisposeRuntime(rt RuntimeHandle) Status
	CollectGarbage(rt RuntimeHandle) Status
	DisableRuntimeExecution(rt RuntimeHandle) Status
	EnableRuntimeExecution(rt RuntimeHandle) Status
	IsRuntimeExecutionDisabled(rt RuntimeHandle) (bool, Status)

	// Contexts and the current-context slot.
	CreateContext(rt RuntimeHandle) (ContextRef, Status)
	SetCurrentContext(ctx ContextRef) Status
	GetCurrentContext() (ContextRef, Status)
	GetRuntime(ctx ContextRef) (RuntimeHandle, Status)

	// Reference counting.
	AddRef(v ValueRef) (uint32, Status)
	Release(v ValueRef) (uint32, Status)

	// Primitive values.
	GetUndefinedValue() (ValueRef, Status)
	GetNullValue() (ValueRef, Status)
	BoolToBoolean(b bool) (ValueRef, Status)
	BooleanToBool(v ValueRef) (bool, Status)
	IntToNumber(n int32) (ValueRef, Status)
	DoubleToNumber(f float64) (ValueRef, Status)
	NumberToInt(v ValueRef) (int32, Status)
	NumberToDouble(v ValueRef) (float64, Status)
	CreateStringUtf8(b []byte) (ValueRef, Status)
	CopyStringUtf8(v ValueRef) ([]byte, Status)
	CreateArrayBuffer(data []byte) (ValueRef, Status)

	// Conversions may run script (valueOf, toString).
	ConvertValueToNumber(v ValueRef) (ValueRef, Status)
	ConvertValueToString(v ValueRef) (ValueRef, Status)
	ConvertValueToBoolean(v ValueRef) (ValueRef, Status)

	GetValueType(v ValueRef) (ValueType, Status)
	Equals(a, b ValueRef) (bool, Status)
	StrictEquals(a, b ValueRef) (bool, Status)

	// Objects.
	GetGlobalObject() (ValueRef, Status)
	CreateObject() (ValueRef, Status)
	CreateArray(length uint32) (ValueRef, Status)
	CreateExternalObject(data CallbackState, finalize FinalizeCallback) (ValueRef, Status)
	GetExternalData(obj ValueRef) (CallbackState, Status)
	HasExternalData(obj ValueRef) (bool, Status)

	// Properties.
	CreatePropertyIDUtf8(name []byte) (PropertyIDRef, Status)
	CreateSymbolPropertyID(description string) (PropertyIDRef, Status)
	GetProperty(obj ValueRef, id PropertyIDRef) (ValueRef, Status)
	SetProperty(obj ValueRef, id PropertyIDRef, value ValueRef, strict bool) Status
	HasProperty(obj ValueRef, id PropertyIDRef) (bool, Status)
	DeleteProperty(obj ValueRef, id PropertyIDRef, strict bool) (bool, Status)
	GetIndexedProperty(obj, index ValueRef) (ValueRef, Status)
	SetIndexedProperty(obj, index, value ValueRef) Status

	// Functions. args[0] is the this argument.
	CreateFunction(fn NativeFunction, state CallbackState, finalize FinalizeCallback) (ValueRef, Status)
	CallFunction(fn ValueRef, args []ValueRef) (ValueRef, Status)
	ConstructObject(fn ValueRef, args []ValueRef) (ValueRef, Status)

	// Scripts.
	RunScript(source []byte, cookie SourceContext, sourceURL string) (ValueRef, Status)

	// Exceptions.
	HasException() (bool, Status)
	GetAndClearException() (ValueRef, Status)
	SetException(v ValueRef) Status
	CreateError(message ValueRef) (ValueRef, Status)
}
