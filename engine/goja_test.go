package engine

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, cfg *GojaConfig, attrs RuntimeAttributes) (*GojaEngine, RuntimeHandle) {
	t.Helper()
	e := NewGojaEngineWithConfig(cfg)
	rt, st := e.CreateRuntime(attrs)
	if !st.OK() {
		t.Fatalf("CreateRuntime: %v", st)
	}
	ctx, st := e.CreateContext(rt)
	if !st.OK() {
		t.Fatalf("CreateContext: %v", st)
	}
	if st := e.SetCurrentContext(ctx); !st.OK() {
		t.Fatalf("SetCurrentContext: %v", st)
	}
	t.Cleanup(func() {
		e.SetCurrentContext(0)
		e.DisposeRuntime(rt)
	})
	return e, rt
}

func mustRun(t *testing.T, e *GojaEngine, src string) ValueRef {
	t.Helper()
	v, st := e.RunScript([]byte(src), 0, "test.js")
	if !st.OK() {
		t.Fatalf("RunScript(%q): %v", src, st)
	}
	return v
}

func toInt(t *testing.T, e *GojaEngine, v ValueRef) int32 {
	t.Helper()
	n, st := e.NumberToInt(v)
	if !st.OK() {
		t.Fatalf("NumberToInt: %v", st)
	}
	return n
}

func toString(t *testing.T, e *GojaEngine, v ValueRef) string {
	t.Helper()
	s, st := e.ConvertValueToString(v)
	if !st.OK() {
		t.Fatalf("ConvertValueToString: %v", st)
	}
	b, st := e.CopyStringUtf8(s)
	if !st.OK() {
		t.Fatalf("CopyStringUtf8: %v", st)
	}
	return string(b)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		category Status
		script   bool
		fatal    bool
	}{
		{"NoError", StatusNoError, 0, false, false},
		{"InvalidArgument", StatusInvalidArgument, CategoryUsage, false, false},
		{"RuntimeInUse", StatusRuntimeInUse, CategoryUsage, false, false},
		{"OutOfMemory", StatusOutOfMemory, CategoryEngine, false, false},
		{"ScriptException", StatusScriptException, CategoryScript, true, false},
		{"ScriptCompile", StatusScriptCompile, CategoryScript, true, false},
		{"Fatal", StatusFatal, CategoryFatal, false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.status.String() != tc.name {
				t.Errorf("String() = %q, want %q", tc.status.String(), tc.name)
			}
			if tc.status.Category() != tc.category {
				t.Errorf("Category() = 0x%x, want 0x%x", uint32(tc.status.Category()), uint32(tc.category))
			}
			if tc.status.IsScript() != tc.script {
				t.Errorf("IsScript() = %v", tc.status.IsScript())
			}
			if tc.status.IsFatal() != tc.fatal {
				t.Errorf("IsFatal() = %v", tc.status.IsFatal())
			}
		})
	}

	if got := Status(0x12345).String(); got != "Status(0x12345)" {
		t.Errorf("unknown status String() = %q", got)
	}
}

func TestGojaEngine_NoCurrentContext(t *testing.T) {
	e := NewGojaEngine()
	if _, st := e.CreateObject(); st != StatusNoCurrentContext {
		t.Fatalf("CreateObject without context = %v, want NoCurrentContext", st)
	}
	if _, st := e.RunScript([]byte("1"), 0, ""); st != StatusNoCurrentContext {
		t.Fatalf("RunScript without context = %v, want NoCurrentContext", st)
	}
	ctx, st := e.GetCurrentContext()
	if !st.OK() || ctx != 0 {
		t.Fatalf("GetCurrentContext = %d, %v", ctx, st)
	}
}

func TestGojaEngine_RunScript(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	v := mustRun(t, e, "6 * 7")
	if n := toInt(t, e, v); n != 42 {
		t.Fatalf("result = %d, want 42", n)
	}
	if typ, _ := e.GetValueType(v); typ != TypeNumber {
		t.Fatalf("type = %v, want number", typ)
	}

	v = mustRun(t, e, "'a' + 'b'")
	if s := toString(t, e, v); s != "ab" {
		t.Fatalf("result = %q, want ab", s)
	}
}

func TestGojaEngine_ScriptException(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	if _, st := e.RunScript([]byte("throw 7"), 0, "throw.js"); st != StatusScriptException {
		t.Fatalf("status = %v, want ScriptException", st)
	}
	if has, _ := e.HasException(); !has {
		t.Fatal("exception should be pending")
	}
	if _, st := e.RunScript([]byte("1"), 0, ""); st != StatusInExceptionState {
		t.Fatalf("run with pending exception = %v, want InExceptionState", st)
	}

	ex, st := e.GetAndClearException()
	if !st.OK() {
		t.Fatalf("GetAndClearException: %v", st)
	}
	if n := toInt(t, e, ex); n != 7 {
		t.Fatalf("thrown = %d, want 7", n)
	}
	if _, st := e.GetAndClearException(); st != StatusInvalidArgument {
		t.Fatalf("second GetAndClearException = %v", st)
	}
}

func TestGojaEngine_CompileError(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	if _, st := e.RunScript([]byte("function ("), 0, "bad.js"); st != StatusScriptCompile {
		t.Fatalf("status = %v, want ScriptCompile", st)
	}
	ex, st := e.GetAndClearException()
	if !st.OK() {
		t.Fatalf("GetAndClearException: %v", st)
	}
	if typ, _ := e.GetValueType(ex); typ != TypeError {
		t.Fatalf("exception type = %v, want error", typ)
	}
}

func TestGojaEngine_RefCount(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	v, _ := e.CreateObject()
	if n, st := e.AddRef(v); !st.OK() || n != 2 {
		t.Fatalf("AddRef = %d, %v", n, st)
	}
	if n, _ := e.Release(v); n != 1 {
		t.Fatalf("Release = %d, want 1", n)
	}
	if n, _ := e.Release(v); n != 0 {
		t.Fatalf("Release = %d, want 0", n)
	}
	if _, st := e.Release(v); st != StatusInvalidArgument {
		t.Fatalf("Release of dead handle = %v", st)
	}
	if _, st := e.GetValueType(v); st != StatusInvalidArgument {
		t.Fatalf("use of dead handle = %v", st)
	}
}

func TestGojaEngine_ValueTypes(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	tests := []struct {
		src  string
		want ValueType
	}{
		{"undefined", TypeUndefined},
		{"null", TypeNull},
		{"1.5", TypeNumber},
		{"'s'", TypeString},
		{"true", TypeBoolean},
		{"({})", TypeObject},
		{"(function () {})", TypeFunction},
		{"new TypeError('x')", TypeError},
		{"[1, 2]", TypeArray},
		{"Symbol('s')", TypeSymbol},
		{"new ArrayBuffer(4)", TypeArrayBuffer},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			v := mustRun(t, e, tc.src)
			got, st := e.GetValueType(v)
			if !st.OK() {
				t.Fatalf("GetValueType: %v", st)
			}
			if got != tc.want {
				t.Fatalf("type = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGojaEngine_Properties(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	obj, _ := e.CreateObject()
	id, st := e.CreatePropertyIDUtf8([]byte("answer"))
	if !st.OK() {
		t.Fatalf("CreatePropertyIDUtf8: %v", st)
	}
	val, _ := e.IntToNumber(42)
	if st := e.SetProperty(obj, id, val, true); !st.OK() {
		t.Fatalf("SetProperty: %v", st)
	}
	if has, _ := e.HasProperty(obj, id); !has {
		t.Fatal("HasProperty = false")
	}
	got, st := e.GetProperty(obj, id)
	if !st.OK() {
		t.Fatalf("GetProperty: %v", st)
	}
	if n := toInt(t, e, got); n != 42 {
		t.Fatalf("GetProperty = %d", n)
	}
	if ok, _ := e.DeleteProperty(obj, id, true); !ok {
		t.Fatal("DeleteProperty = false")
	}
	if has, _ := e.HasProperty(obj, id); has {
		t.Fatal("property should be gone")
	}

	sym, _ := e.CreateSymbolPropertyID("hidden")
	if st := e.SetProperty(obj, sym, val, false); !st.OK() {
		t.Fatalf("SetProperty(symbol): %v", st)
	}
	if has, _ := e.HasProperty(obj, sym); !has {
		t.Fatal("symbol property missing")
	}

	num, _ := e.IntToNumber(1)
	if _, st := e.GetProperty(num, id); st != StatusArgumentNotObject {
		t.Fatalf("GetProperty on number = %v", st)
	}

	arr, _ := e.CreateArray(3)
	idx, _ := e.IntToNumber(1)
	if st := e.SetIndexedProperty(arr, idx, val); !st.OK() {
		t.Fatalf("SetIndexedProperty: %v", st)
	}
	got, _ = e.GetIndexedProperty(arr, idx)
	if n := toInt(t, e, got); n != 42 {
		t.Fatalf("GetIndexedProperty = %d", n)
	}
}

func TestGojaEngine_FunctionThisAndArgs(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	var gotArgs int
	var gotConstruct bool
	var thisType ValueType
	fn, st := e.CreateFunction(func(callee ValueRef, isConstruct bool, args []ValueRef, state CallbackState) ValueRef {
		gotArgs = len(args)
		gotConstruct = isConstruct
		thisType, _ = e.GetValueType(args[0])
		return InvalidValue
	}, 1, nil)
	if !st.OK() {
		t.Fatalf("CreateFunction: %v", st)
	}

	null, _ := e.GetNullValue()
	if _, st := e.CallFunction(fn, []ValueRef{null}); !st.OK() {
		t.Fatalf("CallFunction: %v", st)
	}
	if gotArgs != 1 || gotConstruct || thisType != TypeNull {
		t.Fatalf("args=%d construct=%v this=%v", gotArgs, gotConstruct, thisType)
	}

	undef, _ := e.GetUndefinedValue()
	if _, st := e.ConstructObject(fn, []ValueRef{undef}); !st.OK() {
		t.Fatalf("ConstructObject: %v", st)
	}
	if !gotConstruct || thisType != TypeObject {
		t.Fatalf("construct=%v this=%v", gotConstruct, thisType)
	}
}

func TestGojaEngine_FunctionFromScript(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	add, _ := e.CreateFunction(func(callee ValueRef, isConstruct bool, args []ValueRef, state CallbackState) ValueRef {
		var sum int32
		for _, a := range args[1:] {
			n, _ := e.NumberToInt(a)
			sum += n
		}
		v, _ := e.IntToNumber(sum)
		return v
	}, 0, nil)

	global, _ := e.GetGlobalObject()
	id, _ := e.CreatePropertyIDUtf8([]byte("add"))
	e.SetProperty(global, id, add, true)

	if n := toInt(t, e, mustRun(t, e, "add(1, 2, 3)")); n != 6 {
		t.Fatalf("add = %d, want 6", n)
	}
	if n := toInt(t, e, mustRun(t, e, "add.call(null, 4, 5)")); n != 9 {
		t.Fatalf("add.call = %d, want 9", n)
	}
}

func TestGojaEngine_FunctionException(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	fail, _ := e.CreateFunction(func(callee ValueRef, isConstruct bool, args []ValueRef, state CallbackState) ValueRef {
		msg, _ := e.CreateStringUtf8([]byte("host failure"))
		ex, _ := e.CreateError(msg)
		e.SetException(ex)
		return InvalidValue
	}, 0, nil)
	global, _ := e.GetGlobalObject()
	id, _ := e.CreatePropertyIDUtf8([]byte("fail"))
	e.SetProperty(global, id, fail, true)

	v := mustRun(t, e, "try { fail(); 'no' } catch (e) { e.message }")
	if s := toString(t, e, v); s != "host failure" {
		t.Fatalf("caught %q", s)
	}

	if _, st := e.RunScript([]byte("fail()"), 0, ""); st != StatusScriptException {
		t.Fatalf("uncaught = %v, want ScriptException", st)
	}
	e.GetAndClearException()
}

func TestGojaEngine_FunctionPanic(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	boom, _ := e.CreateFunction(func(ValueRef, bool, []ValueRef, CallbackState) ValueRef {
		panic("boom")
	}, 0, nil)
	undef, _ := e.GetUndefinedValue()
	if _, st := e.CallFunction(boom, []ValueRef{undef}); st != StatusScriptException {
		t.Fatalf("status = %v, want ScriptException", st)
	}
	ex, _ := e.GetAndClearException()
	if typ, _ := e.GetValueType(ex); typ != TypeError {
		t.Fatalf("exception type = %v", typ)
	}
}

func TestGojaEngine_ExternalData(t *testing.T) {
	e, rt := newTestEngine(t, nil, AttributeNone)

	var finalized atomic.Int32
	obj, st := e.CreateExternalObject(99, func(data CallbackState) {
		if data != 99 {
			t.Errorf("finalize data = %d", data)
		}
		finalized.Add(1)
	})
	if !st.OK() {
		t.Fatalf("CreateExternalObject: %v", st)
	}
	data, st := e.GetExternalData(obj)
	if !st.OK() || data != 99 {
		t.Fatalf("GetExternalData = %d, %v", data, st)
	}
	plain, _ := e.CreateObject()
	if has, _ := e.HasExternalData(plain); has {
		t.Fatal("plain object has no external data")
	}

	e.SetCurrentContext(0)
	if st := e.DisposeRuntime(rt); !st.OK() {
		t.Fatalf("DisposeRuntime: %v", st)
	}
	if finalized.Load() != 1 {
		t.Fatalf("finalized %d times, want 1", finalized.Load())
	}
	if _, st := e.Release(obj); st != StatusInvalidArgument {
		t.Fatalf("handle should be invalid after dispose, got %v", st)
	}
}

func TestGojaEngine_ExternalCollected(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	var finalized atomic.Int32
	obj, _ := e.CreateExternalObject(5, func(CallbackState) {
		finalized.Add(1)
	})
	e.Release(obj)

	deadline := time.Now().Add(5 * time.Second)
	for finalized.Load() == 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if finalized.Load() != 1 {
		t.Fatalf("finalized %d times, want 1", finalized.Load())
	}
}

func TestGojaEngine_DisposeWhileCurrent(t *testing.T) {
	e, rt := newTestEngine(t, nil, AttributeNone)

	if st := e.DisposeRuntime(rt); st != StatusRuntimeInUse {
		t.Fatalf("DisposeRuntime = %v, want RuntimeInUse", st)
	}
	// still usable
	mustRun(t, e, "1")
}

func TestGojaEngine_CrossContext(t *testing.T) {
	e, rt := newTestEngine(t, nil, AttributeNone)

	obj, _ := e.CreateObject()
	num, _ := e.IntToNumber(3)

	other, _ := e.CreateContext(rt)
	e.SetCurrentContext(other)

	if _, st := e.GetValueType(obj); st != StatusInvalidContext {
		t.Fatalf("object from other context = %v, want InvalidContext", st)
	}
	if n := toInt(t, e, num); n != 3 {
		t.Fatalf("primitive from other context = %d", n)
	}
}

func TestGojaEngine_DisableEval(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeDisableEval)

	if _, st := e.RunScript([]byte("eval('1 + 1')"), 0, ""); st != StatusScriptEvalDisabled {
		t.Fatalf("status = %v, want ScriptEvalDisabled", st)
	}
	e.GetAndClearException()
	mustRun(t, e, "1 + 1")
}

func TestGojaEngine_DisableExecution(t *testing.T) {
	e, rt := newTestEngine(t, nil, AttributeNone)
	if st := e.DisableRuntimeExecution(rt); st != StatusCannotDisableExecution {
		t.Fatalf("DisableRuntimeExecution without attribute = %v", st)
	}

	e2, rt2 := newTestEngine(t, nil, AttributeAllowScriptInterrupt)
	if st := e2.DisableRuntimeExecution(rt2); !st.OK() {
		t.Fatalf("DisableRuntimeExecution: %v", st)
	}
	if disabled, _ := e2.IsRuntimeExecutionDisabled(rt2); !disabled {
		t.Fatal("runtime should report disabled")
	}
	if _, st := e2.RunScript([]byte("1"), 0, ""); st != StatusInDisabledState {
		t.Fatalf("RunScript while disabled = %v", st)
	}
	e2.EnableRuntimeExecution(rt2)
	mustRun(t, e2, "1")
}

func TestGojaEngine_StackOverflow(t *testing.T) {
	e, _ := newTestEngine(t, &GojaConfig{MaxCallStackSize: 64}, AttributeNone)

	_, st := e.RunScript([]byte("function f() { return f() + 1 } f()"), 0, "")
	if st != StatusFatal {
		t.Fatalf("status = %v, want Fatal", st)
	}
}

func TestGojaEngine_Conversions(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	obj := mustRun(t, e, "({ valueOf: function () { return 12 } })")
	num, st := e.ConvertValueToNumber(obj)
	if !st.OK() {
		t.Fatalf("ConvertValueToNumber: %v", st)
	}
	if n := toInt(t, e, num); n != 12 {
		t.Fatalf("valueOf = %d", n)
	}

	bad := mustRun(t, e, "({ valueOf: function () { throw 'nope' } })")
	if _, st := e.ConvertValueToNumber(bad); st != StatusScriptException {
		t.Fatalf("throwing valueOf = %v", st)
	}
	e.GetAndClearException()

	one, _ := e.IntToNumber(1)
	str, _ := e.CreateStringUtf8([]byte("1"))
	if eq, _ := e.Equals(one, str); !eq {
		t.Fatal("1 == '1'")
	}
	if eq, _ := e.StrictEquals(one, str); eq {
		t.Fatal("1 !== '1'")
	}

	b, _ := e.ConvertValueToBoolean(str)
	if v, st := e.BooleanToBool(b); !st.OK() || !v {
		t.Fatalf("ToBoolean('1') = %v, %v", v, st)
	}
	if _, st := e.NumberToInt(str); st != StatusInvalidArgument {
		t.Fatalf("NumberToInt on string = %v", st)
	}
}

func TestGojaEngine_ConvertToString(t *testing.T) {
	e, _ := newTestEngine(t, nil, AttributeNone)

	tests := []struct {
		src  string
		want string
	}{
		{"5 + 5", "10"},
		{"2.5", "2.5"},
		{"true", "true"},
		{"null", "null"},
		{"undefined", "undefined"},
		{"'text'", "text"},
		{"[1, 2]", "1,2"},
		{"({ toString: function () { return 'obj' } })", "obj"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v := mustRun(t, e, tt.src)
			s, st := e.ConvertValueToString(v)
			if !st.OK() {
				t.Fatalf("ConvertValueToString: %v", st)
			}
			if vt, _ := e.GetValueType(s); vt != TypeString {
				t.Fatalf("converted type = %v, want string", vt)
			}
			if got := toString(t, e, v); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			e.Release(s)
			e.Release(v)
		})
	}

	bad := mustRun(t, e, "({ toString: function () { throw 'nope' } })")
	if _, st := e.ConvertValueToString(bad); st != StatusScriptException {
		t.Fatalf("throwing toString = %v", st)
	}
	e.GetAndClearException()
}
