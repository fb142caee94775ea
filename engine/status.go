package engine

import "fmt"

// Status is the result code of every engine table operation.
// Zero means success; the high 16 bits select a category.
type Status uint32

// Category masks.
const (
	CategoryUsage  Status = 0x10000
	CategoryEngine Status = 0x20000
	CategoryScript Status = 0x30000
	CategoryFatal  Status = 0x40000
)

const (
	StatusNoError Status = 0

	StatusInvalidArgument        Status = 0x10001
	StatusNullArgument           Status = 0x10002
	StatusNoCurrentContext       Status = 0x10003
	StatusInExceptionState       Status = 0x10004
	StatusNotImplemented         Status = 0x10005
	StatusWrongThread            Status = 0x10006
	StatusRuntimeInUse           Status = 0x10007
	StatusInDisabledState        Status = 0x10009
	StatusCannotDisableExecution Status = 0x1000A
	StatusArgumentNotObject      Status = 0x1000C
	StatusInObjectBeforeGC       Status = 0x10015
	StatusPropertyNotSymbol      Status = 0x10017
	StatusPropertyNotString      Status = 0x10018
	StatusInvalidContext         Status = 0x10019
	StatusOutOfMemory            Status = 0x20001
	StatusScriptException        Status = 0x30001
	StatusScriptCompile          Status = 0x30002
	StatusScriptTerminated       Status = 0x30003
	StatusScriptEvalDisabled     Status = 0x30004
	StatusFatal                  Status = 0x40001
	StatusWrongRuntime           Status = 0x40002
)

var statusNames = map[Status]string{
	StatusNoError:                "NoError",
	StatusInvalidArgument:        "InvalidArgument",
	StatusNullArgument:           "NullArgument",
	StatusNoCurrentContext:       "NoCurrentContext",
	StatusInExceptionState:       "InExceptionState",
	StatusNotImplemented:         "NotImplemented",
	StatusWrongThread:            "WrongThread",
	StatusRuntimeInUse:           "RuntimeInUse",
	StatusInDisabledState:        "InDisabledState",
	StatusCannotDisableExecution: "CannotDisableExecution",
	StatusArgumentNotObject:      "ArgumentNotObject",
	StatusInObjectBeforeGC:       "InObjectBeforeCollectCallback",
	StatusPropertyNotSymbol:      "PropertyNotSymbol",
	StatusPropertyNotString:      "PropertyNotString",
	StatusInvalidContext:         "InvalidContext",
	StatusOutOfMemory:            "OutOfMemory",
	StatusScriptException:        "ScriptException",
	StatusScriptCompile:          "ScriptCompile",
	StatusScriptTerminated:       "ScriptTerminated",
	StatusScriptEvalDisabled:     "ScriptEvalDisabled",
	StatusFatal:                  "Fatal",
	StatusWrongRuntime:           "WrongRuntime",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(0x%x)", uint32(s))
}

// Category returns the category bits of s.
func (s Status) Category() Status {
	return s & 0xFFFF0000
}

// OK reports whether s is StatusNoError.
func (s Status) OK() bool {
	return s == StatusNoError
}

// IsScript reports whether s is a script-category status, i.e. one that may
// leave an exception pending on the current context.
func (s Status) IsScript() bool {
	return s.Category() == CategoryScript
}

// IsFatal reports whether s signals an unrecoverable engine state.
func (s Status) IsFatal() bool {
	return s.Category() == CategoryFatal
}
