package engine

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// GojaConfig holds configuration for engine creation
type GojaConfig struct {
	// MaxCallStackSize bounds script call depth per context.
	// 0 keeps the goja default.
	MaxCallStackSize int
}

// GojaEngine implements Table on top of goja.
//
// One GojaEngine models one engine thread: it owns the single current
// context slot. Every context is a separate goja VM. The handle maps are
// guarded by mu because finalizers are delivered on the Go collector's
// goroutine; mu is never held while script runs.
type GojaEngine struct {
	runtimes map[RuntimeHandle]*gojaRuntime
	contexts map[ContextRef]*gojaContext
	values   map[ValueRef]*valueSlot
	props    map[PropertyIDRef]*propSlot
	current  *gojaContext
	cfg      GojaConfig
	nextID   uint64
	mu       sync.Mutex
}

type gojaRuntime struct {
	regs     map[uint64]*registration
	objects  map[weak.Pointer[goja.Object]]uint64
	contexts []*gojaContext
	handle   RuntimeHandle
	attrs    RuntimeAttributes
	disabled bool
}

// registration is host data bound to one engine object.
type registration struct {
	finalize FinalizeCallback
	data     CallbackState
}

type gojaContext struct {
	vm          *goja.Runtime
	rt          *gojaRuntime
	exception   goja.Value
	helpers     contextHelpers
	ref         ContextRef
	evalBlocked bool
}

type contextHelpers struct {
	get       goja.Callable
	set       goja.Callable
	setStrict goja.Callable
	has       goja.Callable
	del       goja.Callable
	delStrict goja.Callable
	shim      goja.Callable

	errorCtor       goja.Value
	syntaxErrorCtor goja.Value
	evalErrorCtor   goja.Value
}

type valueSlot struct {
	v    goja.Value
	ctx  *gojaContext
	refs uint32
}

type propSlot struct {
	key goja.Value
	rt  *gojaRuntime
}

// finalizeArg must not reference the tracked object, or it is never collected.
type finalizeArg struct {
	engine *GojaEngine
	rt     *gojaRuntime
	obj    weak.Pointer[goja.Object]
	id     uint64
}

// helperSource builds the per-context property accessors and the native
// function shim. The shim is strict so this passes through untouched.
const helperSource = `(function () {
	return {
		get: function (o, k) { return o[k]; },
		set: function (o, k, v) { o[k] = v; },
		setStrict: function (o, k, v) { "use strict"; o[k] = v; },
		has: function (o, k) { return k in o; },
		del: function (o, k) { return delete o[k]; },
		delStrict: function (o, k) { "use strict"; return delete o[k]; },
		shim: function (dispatch) {
			"use strict";
			return function () {
				return dispatch(new.target !== undefined, this, ...arguments);
			};
		},
		Error: Error,
		SyntaxError: SyntaxError,
		EvalError: EvalError
	};
})()`

var arrayBufferType = reflect.TypeOf(goja.ArrayBuffer{})

var _ Table = (*GojaEngine)(nil)

// NewGojaEngine creates a new goja-based engine
func NewGojaEngine() *GojaEngine {
	return NewGojaEngineWithConfig(nil)
}

// NewGojaEngineWithConfig creates a new engine with custom configuration
func NewGojaEngineWithConfig(cfg *GojaConfig) *GojaEngine {
	e := &GojaEngine{
		runtimes: make(map[RuntimeHandle]*gojaRuntime),
		contexts: make(map[ContextRef]*gojaContext),
		values:   make(map[ValueRef]*valueSlot),
		props:    make(map[PropertyIDRef]*propSlot),
	}
	if cfg != nil {
		e.cfg = *cfg
	}
	return e
}

func (e *GojaEngine) newIDLocked() uint64 {
	e.nextID++
	return e.nextID
}

// Runtime lifecycle

func (e *GojaEngine) CreateRuntime(attrs RuntimeAttributes) (RuntimeHandle, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rt := &gojaRuntime{
		handle:  RuntimeHandle(e.newIDLocked()),
		attrs:   attrs,
		regs:    make(map[uint64]*registration),
		objects: make(map[weak.Pointer[goja.Object]]uint64),
	}
	e.runtimes[rt.handle] = rt
	debugf("runtime %d created attrs=0x%x", rt.handle, uint32(attrs))
	return rt.handle, StatusNoError
}

// DisposeRuntime releases a runtime, its contexts and every value handle
// that belongs to them. Host data still attached to live objects is
// finalized before DisposeRuntime returns.
func (e *GojaEngine) DisposeRuntime(h RuntimeHandle) Status {
	e.mu.Lock()
	rt, ok := e.runtimes[h]
	if !ok {
		e.mu.Unlock()
		return StatusInvalidArgument
	}
	if e.current != nil && e.current.rt == rt {
		e.mu.Unlock()
		return StatusRuntimeInUse
	}

	for _, c := range rt.contexts {
		delete(e.contexts, c.ref)
	}
	for ref, s := range e.values {
		if s.ctx.rt == rt {
			delete(e.values, ref)
		}
	}
	for ref, p := range e.props {
		if p.rt == rt {
			delete(e.props, ref)
		}
	}

	pending := make([]*registration, 0, len(rt.regs))
	for _, reg := range rt.regs {
		pending = append(pending, reg)
	}
	rt.regs = make(map[uint64]*registration)
	rt.objects = make(map[weak.Pointer[goja.Object]]uint64)
	rt.contexts = nil
	delete(e.runtimes, h)
	e.mu.Unlock()

	for _, reg := range pending {
		runFinalizer(reg)
	}
	debugf("runtime %d disposed, %d finalizers run", h, len(pending))
	return StatusNoError
}

// CollectGarbage requests a collection. Finalizers are delivered
// asynchronously on the collector's goroutine.
func (e *GojaEngine) CollectGarbage(h RuntimeHandle) Status {
	e.mu.Lock()
	_, ok := e.runtimes[h]
	e.mu.Unlock()
	if !ok {
		return StatusInvalidArgument
	}
	runtime.GC()
	return StatusNoError
}

// DisableRuntimeExecution interrupts running script and refuses new script
// until EnableRuntimeExecution. It is safe to call from any goroutine and
// requires AttributeAllowScriptInterrupt.
func (e *GojaEngine) DisableRuntimeExecution(h RuntimeHandle) Status {
	e.mu.Lock()
	rt, ok := e.runtimes[h]
	if !ok {
		e.mu.Unlock()
		return StatusInvalidArgument
	}
	if !rt.attrs.Has(AttributeAllowScriptInterrupt) {
		e.mu.Unlock()
		return StatusCannotDisableExecution
	}
	rt.disabled = true
	vms := rt.vms()
	e.mu.Unlock()

	for _, vm := range vms {
		vm.Interrupt("execution disabled")
	}
	return StatusNoError
}

// EnableRuntimeExecution re-enables script execution after
// DisableRuntimeExecution.
func (e *GojaEngine) EnableRuntimeExecution(h RuntimeHandle) Status {
	e.mu.Lock()
	rt, ok := e.runtimes[h]
	if !ok {
		e.mu.Unlock()
		return StatusInvalidArgument
	}
	rt.disabled = false
	vms := rt.vms()
	e.mu.Unlock()

	for _, vm := range vms {
		vm.ClearInterrupt()
	}
	return StatusNoError
}

func (e *GojaEngine) IsRuntimeExecutionDisabled(h RuntimeHandle) (bool, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, ok := e.runtimes[h]
	if !ok {
		return false, StatusInvalidArgument
	}
	return rt.disabled, StatusNoError
}

func (rt *gojaRuntime) vms() []*goja.Runtime {
	vms := make([]*goja.Runtime, len(rt.contexts))
	for i, c := range rt.contexts {
		vms[i] = c.vm
	}
	return vms
}

// Contexts

func (e *GojaEngine) CreateContext(h RuntimeHandle) (ContextRef, Status) {
	e.mu.Lock()
	rt, ok := e.runtimes[h]
	e.mu.Unlock()
	if !ok {
		return 0, StatusInvalidArgument
	}

	vm := goja.New()
	if e.cfg.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(e.cfg.MaxCallStackSize)
	}
	c := &gojaContext{vm: vm, rt: rt}
	if err := c.installHelpers(); err != nil {
		Logger().Error("context helpers failed to compile", zap.Error(err))
		return 0, StatusFatal
	}
	if rt.attrs.Has(AttributeDisableEval) {
		if err := c.disableEval(); err != nil {
			Logger().Error("disable eval failed", zap.Error(err))
			return 0, StatusFatal
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// the runtime may have been disposed while the VM was built
	if _, ok := e.runtimes[h]; !ok {
		return 0, StatusInvalidArgument
	}
	c.ref = ContextRef(e.newIDLocked())
	rt.contexts = append(rt.contexts, c)
	e.contexts[c.ref] = c
	debugf("context %d created in runtime %d", c.ref, h)
	return c.ref, StatusNoError
}

func (c *gojaContext) installHelpers() error {
	v, err := c.vm.RunScript("jsrt:helpers", helperSource)
	if err != nil {
		return err
	}
	obj := v.ToObject(c.vm)
	fns := map[string]*goja.Callable{
		"get":       &c.helpers.get,
		"set":       &c.helpers.set,
		"setStrict": &c.helpers.setStrict,
		"has":       &c.helpers.has,
		"del":       &c.helpers.del,
		"delStrict": &c.helpers.delStrict,
		"shim":      &c.helpers.shim,
	}
	for name, dst := range fns {
		fn, ok := goja.AssertFunction(obj.Get(name))
		if !ok {
			return fmt.Errorf("helper %s is not a function", name)
		}
		*dst = fn
	}
	c.helpers.errorCtor = obj.Get("Error")
	c.helpers.syntaxErrorCtor = obj.Get("SyntaxError")
	c.helpers.evalErrorCtor = obj.Get("EvalError")
	return nil
}

func (c *gojaContext) disableEval() error {
	vm := c.vm
	return vm.Set("eval", func(goja.FunctionCall) goja.Value {
		c.evalBlocked = true
		ex, err := vm.New(c.helpers.evalErrorCtor, vm.ToValue("eval is disabled"))
		if err != nil {
			panic(err)
		}
		panic(ex)
	})
}

func (e *GojaEngine) SetCurrentContext(ref ContextRef) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ref == 0 {
		e.current = nil
		return StatusNoError
	}
	c, ok := e.contexts[ref]
	if !ok {
		return StatusInvalidArgument
	}
	e.current = c
	return StatusNoError
}

func (e *GojaEngine) GetCurrentContext() (ContextRef, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return 0, StatusNoError
	}
	return e.current.ref, StatusNoError
}

func (e *GojaEngine) GetRuntime(ref ContextRef) (RuntimeHandle, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contexts[ref]
	if !ok {
		return 0, StatusInvalidArgument
	}
	return c.rt.handle, StatusNoError
}

// Handle bookkeeping

// acquire returns the current context and resolves refs against it.
func (e *GojaEngine) acquire(refs ...ValueRef) (*gojaContext, []goja.Value, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.current
	if c == nil {
		return nil, nil, StatusNoCurrentContext
	}
	if len(refs) == 0 {
		return c, nil, StatusNoError
	}
	vals := make([]goja.Value, len(refs))
	for i, ref := range refs {
		v, st := e.resolveLocked(c, ref)
		if !st.OK() {
			return nil, nil, st
		}
		vals[i] = v
	}
	return c, vals, StatusNoError
}

// resolveLocked accepts primitives from any context of the same runtime;
// objects only resolve in the context whose VM created them.
func (e *GojaEngine) resolveLocked(c *gojaContext, ref ValueRef) (goja.Value, Status) {
	s, ok := e.values[ref]
	if !ok {
		return nil, StatusInvalidArgument
	}
	if s.ctx.rt != c.rt {
		return nil, StatusInvalidArgument
	}
	if _, isObj := s.v.(*goja.Object); isObj && s.ctx != c {
		return nil, StatusInvalidContext
	}
	return s.v, StatusNoError
}

func (e *GojaEngine) wrap(c *gojaContext, v goja.Value) ValueRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wrapLocked(c, v)
}

func (e *GojaEngine) wrapLocked(c *gojaContext, v goja.Value) ValueRef {
	if v == nil {
		v = goja.Undefined()
	}
	ref := ValueRef(e.newIDLocked())
	e.values[ref] = &valueSlot{v: v, ctx: c, refs: 1}
	return ref
}

func (e *GojaEngine) releaseLocked(ref ValueRef) {
	s, ok := e.values[ref]
	if !ok {
		return
	}
	s.refs--
	if s.refs == 0 {
		delete(e.values, ref)
	}
}

// AddRef does not need a current context.
func (e *GojaEngine) AddRef(v ValueRef) (uint32, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.values[v]
	if !ok {
		return 0, StatusInvalidArgument
	}
	s.refs++
	return s.refs, StatusNoError
}

// Release does not need a current context and may be called from any
// goroutine.
func (e *GojaEngine) Release(v ValueRef) (uint32, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.values[v]
	if !ok {
		return 0, StatusInvalidArgument
	}
	s.refs--
	if s.refs == 0 {
		delete(e.values, v)
	}
	return s.refs, StatusNoError
}

// LiveValues returns the number of live value handles.
func (e *GojaEngine) LiveValues() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.values)
}

// Exceptions

func (e *GojaEngine) setException(c *gojaContext, v goja.Value) {
	e.mu.Lock()
	c.exception = v
	e.mu.Unlock()
}

// fail maps an error returned by goja to a status, leaving the thrown value
// pending on c where there is one.
func (e *GojaEngine) fail(c *gojaContext, err error) Status {
	switch x := err.(type) {
	case *goja.InterruptedError:
		return StatusScriptTerminated
	case *goja.StackOverflowError:
		Logger().Warn("script stack overflow", zap.Uint64("context", uint64(c.ref)))
		return StatusFatal
	case *goja.Exception:
		e.setException(c, x.Value())
		if c.evalBlocked {
			c.evalBlocked = false
			return StatusScriptEvalDisabled
		}
		return StatusScriptException
	}
	Logger().Error("unexpected engine error", zap.Error(err))
	return StatusFatal
}

// runnable refuses to enter script while an exception is pending or the
// runtime has execution disabled.
func (e *GojaEngine) runnable(c *gojaContext) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.exception != nil {
		return StatusInExceptionState
	}
	if c.rt.disabled {
		return StatusInDisabledState
	}
	c.evalBlocked = false
	return StatusNoError
}

func (e *GojaEngine) HasException() (bool, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return false, st
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return c.exception != nil, StatusNoError
}

func (e *GojaEngine) GetAndClearException() (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.exception == nil {
		return InvalidValue, StatusInvalidArgument
	}
	ex := c.exception
	c.exception = nil
	return e.wrapLocked(c, ex), StatusNoError
}

func (e *GojaEngine) SetException(v ValueRef) Status {
	c, vals, st := e.acquire(v)
	if !st.OK() {
		return st
	}
	e.setException(c, vals[0])
	return StatusNoError
}

func (e *GojaEngine) CreateError(message ValueRef) (ValueRef, Status) {
	c, vals, st := e.acquire(message)
	if !st.OK() {
		return InvalidValue, st
	}
	obj, err := c.vm.New(c.helpers.errorCtor, vals[0])
	if err != nil {
		return InvalidValue, e.fail(c, err)
	}
	return e.wrap(c, obj), StatusNoError
}

// Primitives

func (e *GojaEngine) primitive(v goja.Value) (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	return e.wrap(c, v), StatusNoError
}

func (e *GojaEngine) GetUndefinedValue() (ValueRef, Status) {
	return e.primitive(goja.Undefined())
}

func (e *GojaEngine) GetNullValue() (ValueRef, Status) {
	return e.primitive(goja.Null())
}

func (e *GojaEngine) BoolToBoolean(b bool) (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	return e.wrap(c, c.vm.ToValue(b)), StatusNoError
}

func (e *GojaEngine) IntToNumber(n int32) (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	return e.wrap(c, c.vm.ToValue(int64(n))), StatusNoError
}

func (e *GojaEngine) DoubleToNumber(f float64) (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	return e.wrap(c, c.vm.ToValue(f)), StatusNoError
}

func (e *GojaEngine) CreateStringUtf8(b []byte) (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	return e.wrap(c, c.vm.ToValue(string(b))), StatusNoError
}

func (e *GojaEngine) CreateArrayBuffer(data []byte) (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return e.wrap(c, c.vm.ToValue(c.vm.NewArrayBuffer(buf))), StatusNoError
}

func (e *GojaEngine) BooleanToBool(v ValueRef) (bool, Status) {
	_, vals, st := e.acquire(v)
	if !st.OK() {
		return false, st
	}
	if typeOf(vals[0]) != TypeBoolean {
		return false, StatusInvalidArgument
	}
	return vals[0].ToBoolean(), StatusNoError
}

func (e *GojaEngine) NumberToInt(v ValueRef) (int32, Status) {
	_, vals, st := e.acquire(v)
	if !st.OK() {
		return 0, st
	}
	if typeOf(vals[0]) != TypeNumber {
		return 0, StatusInvalidArgument
	}
	return int32(vals[0].ToInteger()), StatusNoError
}

func (e *GojaEngine) NumberToDouble(v ValueRef) (float64, Status) {
	_, vals, st := e.acquire(v)
	if !st.OK() {
		return 0, st
	}
	if typeOf(vals[0]) != TypeNumber {
		return 0, StatusInvalidArgument
	}
	return vals[0].ToFloat(), StatusNoError
}

func (e *GojaEngine) CopyStringUtf8(v ValueRef) ([]byte, Status) {
	_, vals, st := e.acquire(v)
	if !st.OK() {
		return nil, st
	}
	if typeOf(vals[0]) != TypeString {
		return nil, StatusInvalidArgument
	}
	return []byte(vals[0].String()), StatusNoError
}

// Conversions

func (e *GojaEngine) convert(v ValueRef, fn func(*goja.Runtime, goja.Value) goja.Value) (ValueRef, Status) {
	c, vals, st := e.acquire(v)
	if !st.OK() {
		return InvalidValue, st
	}
	if st := e.runnable(c); !st.OK() {
		return InvalidValue, st
	}
	var out goja.Value
	if ex := c.vm.Try(func() { out = fn(c.vm, vals[0]) }); ex != nil {
		return InvalidValue, e.fail(c, ex)
	}
	return e.wrap(c, out), StatusNoError
}

func (e *GojaEngine) ConvertValueToNumber(v ValueRef) (ValueRef, Status) {
	return e.convert(v, func(_ *goja.Runtime, x goja.Value) goja.Value {
		return x.ToNumber()
	})
}

// ConvertValueToString always yields a string value; goja's ToString keeps
// primitives as they are.
func (e *GojaEngine) ConvertValueToString(v ValueRef) (ValueRef, Status) {
	return e.convert(v, func(vm *goja.Runtime, x goja.Value) goja.Value {
		return vm.ToValue(x.String())
	})
}

func (e *GojaEngine) ConvertValueToBoolean(v ValueRef) (ValueRef, Status) {
	return e.convert(v, func(vm *goja.Runtime, x goja.Value) goja.Value {
		return vm.ToValue(x.ToBoolean())
	})
}

func (e *GojaEngine) GetValueType(v ValueRef) (ValueType, Status) {
	_, vals, st := e.acquire(v)
	if !st.OK() {
		return TypeUndefined, st
	}
	return typeOf(vals[0]), StatusNoError
}

func typeOf(v goja.Value) ValueType {
	if v == nil || goja.IsUndefined(v) {
		return TypeUndefined
	}
	if goja.IsNull(v) {
		return TypeNull
	}
	switch o := v.(type) {
	case *goja.Symbol:
		return TypeSymbol
	case *goja.Object:
		if _, ok := goja.AssertFunction(o); ok {
			return TypeFunction
		}
		switch o.ClassName() {
		case "Array":
			return TypeArray
		case "Error":
			return TypeError
		}
		if o.ExportType() == arrayBufferType {
			return TypeArrayBuffer
		}
		return TypeObject
	}
	switch v.ExportType().Kind() {
	case reflect.Bool:
		return TypeBoolean
	case reflect.String:
		return TypeString
	}
	return TypeNumber
}

func (e *GojaEngine) Equals(a, b ValueRef) (bool, Status) {
	c, vals, st := e.acquire(a, b)
	if !st.OK() {
		return false, st
	}
	if st := e.runnable(c); !st.OK() {
		return false, st
	}
	var eq bool
	if ex := c.vm.Try(func() { eq = vals[0].Equals(vals[1]) }); ex != nil {
		return false, e.fail(c, ex)
	}
	return eq, StatusNoError
}

func (e *GojaEngine) StrictEquals(a, b ValueRef) (bool, Status) {
	_, vals, st := e.acquire(a, b)
	if !st.OK() {
		return false, st
	}
	return vals[0].StrictEquals(vals[1]), StatusNoError
}

// Objects

func (e *GojaEngine) GetGlobalObject() (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	return e.wrap(c, c.vm.GlobalObject()), StatusNoError
}

func (e *GojaEngine) CreateObject() (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	return e.wrap(c, c.vm.NewObject()), StatusNoError
}

func (e *GojaEngine) CreateArray(length uint32) (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	arr := c.vm.NewArray()
	if length > 0 {
		if err := arr.Set("length", length); err != nil {
			return InvalidValue, e.fail(c, err)
		}
	}
	return e.wrap(c, arr), StatusNoError
}

// CreateExternalObject creates an empty object carrying data. finalize runs
// exactly once: when the object is collected or the runtime is disposed.
func (e *GojaEngine) CreateExternalObject(data CallbackState, finalize FinalizeCallback) (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	obj := c.vm.NewObject()
	e.track(c.rt, obj, &registration{finalize: finalize, data: data}, true)
	return e.wrap(c, obj), StatusNoError
}

func (e *GojaEngine) GetExternalData(obj ValueRef) (CallbackState, Status) {
	c, vals, st := e.acquire(obj)
	if !st.OK() {
		return 0, st
	}
	o, ok := vals[0].(*goja.Object)
	if !ok {
		return 0, StatusArgumentNotObject
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := c.rt.objects[weak.Make(o)]
	if !ok {
		return 0, StatusInvalidArgument
	}
	reg, ok := c.rt.regs[id]
	if !ok {
		return 0, StatusInvalidArgument
	}
	return reg.data, StatusNoError
}

func (e *GojaEngine) HasExternalData(obj ValueRef) (bool, Status) {
	c, vals, st := e.acquire(obj)
	if !st.OK() {
		return false, st
	}
	o, ok := vals[0].(*goja.Object)
	if !ok {
		return false, StatusNoError
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok = c.rt.objects[weak.Make(o)]
	return ok, StatusNoError
}

// track registers host data for obj and arranges for its finalizer to run
// once obj becomes unreachable.
func (e *GojaEngine) track(rt *gojaRuntime, obj *goja.Object, reg *registration, external bool) {
	wp := weak.Make(obj)
	e.mu.Lock()
	id := e.newIDLocked()
	rt.regs[id] = reg
	if external {
		rt.objects[wp] = id
	}
	e.mu.Unlock()

	runtime.AddCleanup(obj, finalizeObject, finalizeArg{engine: e, rt: rt, obj: wp, id: id})
}

func finalizeObject(a finalizeArg) {
	a.engine.mu.Lock()
	reg, ok := a.rt.regs[a.id]
	if ok {
		delete(a.rt.regs, a.id)
		delete(a.rt.objects, a.obj)
	}
	a.engine.mu.Unlock()

	// already finalized by runtime disposal
	if !ok {
		return
	}
	runFinalizer(reg)
}

func runFinalizer(reg *registration) {
	if reg.finalize == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("finalize callback panicked",
				zap.Uint64("data", uint64(reg.data)),
				zap.Any("panic", r))
		}
	}()
	reg.finalize(reg.data)
}

// Properties

func (e *GojaEngine) CreatePropertyIDUtf8(name []byte) (PropertyIDRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return 0, st
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ref := PropertyIDRef(e.newIDLocked())
	e.props[ref] = &propSlot{key: c.vm.ToValue(string(name)), rt: c.rt}
	return ref, StatusNoError
}

func (e *GojaEngine) CreateSymbolPropertyID(description string) (PropertyIDRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return 0, st
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ref := PropertyIDRef(e.newIDLocked())
	e.props[ref] = &propSlot{key: goja.NewSymbol(description), rt: c.rt}
	return ref, StatusNoError
}

// acquireObject resolves obj, which must be an object, and the property key.
func (e *GojaEngine) acquireObject(id PropertyIDRef, refs ...ValueRef) (*gojaContext, goja.Value, []goja.Value, Status) {
	c, vals, st := e.acquire(refs...)
	if !st.OK() {
		return nil, nil, nil, st
	}
	if _, ok := vals[0].(*goja.Object); !ok {
		return nil, nil, nil, StatusArgumentNotObject
	}
	e.mu.Lock()
	p, ok := e.props[id]
	e.mu.Unlock()
	if !ok || p.rt != c.rt {
		return nil, nil, nil, StatusInvalidArgument
	}
	return c, p.key, vals, StatusNoError
}

func (e *GojaEngine) call(c *gojaContext, fn goja.Callable, args ...goja.Value) (goja.Value, Status) {
	if st := e.runnable(c); !st.OK() {
		return nil, st
	}
	v, err := fn(goja.Undefined(), args...)
	if err != nil {
		return nil, e.fail(c, err)
	}
	return v, StatusNoError
}

func (e *GojaEngine) GetProperty(obj ValueRef, id PropertyIDRef) (ValueRef, Status) {
	c, key, vals, st := e.acquireObject(id, obj)
	if !st.OK() {
		return InvalidValue, st
	}
	v, st := e.call(c, c.helpers.get, vals[0], key)
	if !st.OK() {
		return InvalidValue, st
	}
	return e.wrap(c, v), StatusNoError
}

func (e *GojaEngine) SetProperty(obj ValueRef, id PropertyIDRef, value ValueRef, strict bool) Status {
	c, key, vals, st := e.acquireObject(id, obj, value)
	if !st.OK() {
		return st
	}
	set := c.helpers.set
	if strict {
		set = c.helpers.setStrict
	}
	_, st = e.call(c, set, vals[0], key, vals[1])
	return st
}

func (e *GojaEngine) HasProperty(obj ValueRef, id PropertyIDRef) (bool, Status) {
	c, key, vals, st := e.acquireObject(id, obj)
	if !st.OK() {
		return false, st
	}
	v, st := e.call(c, c.helpers.has, vals[0], key)
	if !st.OK() {
		return false, st
	}
	return v.ToBoolean(), StatusNoError
}

func (e *GojaEngine) DeleteProperty(obj ValueRef, id PropertyIDRef, strict bool) (bool, Status) {
	c, key, vals, st := e.acquireObject(id, obj)
	if !st.OK() {
		return false, st
	}
	del := c.helpers.del
	if strict {
		del = c.helpers.delStrict
	}
	v, st := e.call(c, del, vals[0], key)
	if !st.OK() {
		return false, st
	}
	return v.ToBoolean(), StatusNoError
}

func (e *GojaEngine) GetIndexedProperty(obj, index ValueRef) (ValueRef, Status) {
	c, vals, st := e.acquire(obj, index)
	if !st.OK() {
		return InvalidValue, st
	}
	if _, ok := vals[0].(*goja.Object); !ok {
		return InvalidValue, StatusArgumentNotObject
	}
	v, st := e.call(c, c.helpers.get, vals[0], vals[1])
	if !st.OK() {
		return InvalidValue, st
	}
	return e.wrap(c, v), StatusNoError
}

func (e *GojaEngine) SetIndexedProperty(obj, index, value ValueRef) Status {
	c, vals, st := e.acquire(obj, index, value)
	if !st.OK() {
		return st
	}
	if _, ok := vals[0].(*goja.Object); !ok {
		return StatusArgumentNotObject
	}
	_, st = e.call(c, c.helpers.set, vals[0], vals[1], vals[2])
	return st
}

// Functions

// CreateFunction creates a script function whose calls are delivered to fn.
// finalize, if set, runs once when the function object is collected or the
// runtime is disposed.
func (e *GojaEngine) CreateFunction(fn NativeFunction, state CallbackState, finalize FinalizeCallback) (ValueRef, Status) {
	if fn == nil {
		return InvalidValue, StatusNullArgument
	}
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}

	// self is captured by dispatch; the cycle through the shim closure is
	// collectable.
	var self *goja.Object
	dispatch := func(call goja.FunctionCall) goja.Value {
		return e.dispatch(c, self, fn, state, call)
	}
	v, err := c.helpers.shim(goja.Undefined(), c.vm.ToValue(dispatch))
	if err != nil {
		return InvalidValue, e.fail(c, err)
	}
	self = v.(*goja.Object)

	if finalize != nil {
		e.track(c.rt, self, &registration{finalize: finalize, data: state}, false)
	}
	return e.wrap(c, self), StatusNoError
}

// dispatch delivers one script call to a native function. Argument handles
// are valid for the duration of the call only. A pending exception set by
// the callback is thrown into the calling script.
func (e *GojaEngine) dispatch(c *gojaContext, self *goja.Object, fn NativeFunction, state CallbackState, call goja.FunctionCall) goja.Value {
	isConstruct := call.Argument(0).ToBoolean()
	rest := []goja.Value{goja.Undefined()}
	if len(call.Arguments) > 1 {
		rest = call.Arguments[1:]
	}

	e.mu.Lock()
	callee := e.wrapLocked(c, self)
	args := make([]ValueRef, len(rest))
	for i, v := range rest {
		args[i] = e.wrapLocked(c, v)
	}
	e.mu.Unlock()

	ret := e.invoke(c, fn, callee, isConstruct, args, state)

	e.mu.Lock()
	var result goja.Value = goja.Undefined()
	if s, ok := e.values[ret]; ok && ret != InvalidValue {
		result = s.v
	}
	e.releaseLocked(ret)
	e.releaseLocked(callee)
	for _, ref := range args {
		e.releaseLocked(ref)
	}
	ex := c.exception
	c.exception = nil
	e.mu.Unlock()

	if ex != nil {
		panic(ex)
	}
	return result
}

func (e *GojaEngine) invoke(c *gojaContext, fn NativeFunction, callee ValueRef, isConstruct bool, args []ValueRef, state CallbackState) (ret ValueRef) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("native function panicked",
				zap.Uint64("state", uint64(state)),
				zap.Any("panic", r))
			ex, err := c.vm.New(c.helpers.errorCtor, c.vm.ToValue(fmt.Sprintf("native function panicked: %v", r)))
			if err != nil {
				ex = c.vm.NewObject()
			}
			e.setException(c, ex)
			ret = InvalidValue
		}
	}()
	return fn(callee, isConstruct, args, state)
}

func (e *GojaEngine) CallFunction(fn ValueRef, args []ValueRef) (ValueRef, Status) {
	if len(args) == 0 {
		return InvalidValue, StatusInvalidArgument
	}
	c, vals, st := e.acquire(append([]ValueRef{fn}, args...)...)
	if !st.OK() {
		return InvalidValue, st
	}
	callable, ok := goja.AssertFunction(vals[0])
	if !ok {
		return InvalidValue, StatusInvalidArgument
	}
	if st := e.runnable(c); !st.OK() {
		return InvalidValue, st
	}
	v, err := callable(vals[1], vals[2:]...)
	if err != nil {
		return InvalidValue, e.fail(c, err)
	}
	return e.wrap(c, v), StatusNoError
}

// ConstructObject invokes fn as a constructor. args[0] is ignored.
func (e *GojaEngine) ConstructObject(fn ValueRef, args []ValueRef) (ValueRef, Status) {
	if len(args) == 0 {
		return InvalidValue, StatusInvalidArgument
	}
	c, vals, st := e.acquire(append([]ValueRef{fn}, args...)...)
	if !st.OK() {
		return InvalidValue, st
	}
	if _, ok := goja.AssertConstructor(vals[0]); !ok {
		return InvalidValue, StatusInvalidArgument
	}
	if st := e.runnable(c); !st.OK() {
		return InvalidValue, st
	}
	obj, err := c.vm.New(vals[0], vals[2:]...)
	if err != nil {
		return InvalidValue, e.fail(c, err)
	}
	return e.wrap(c, obj), StatusNoError
}

// Scripts

// RunScript compiles and runs source in the current context. A syntax error
// reports StatusScriptCompile with a SyntaxError pending.
func (e *GojaEngine) RunScript(source []byte, cookie SourceContext, sourceURL string) (ValueRef, Status) {
	c, _, st := e.acquire()
	if !st.OK() {
		return InvalidValue, st
	}
	if st := e.runnable(c); !st.OK() {
		return InvalidValue, st
	}
	debugf("run script %q cookie=%d context=%d", sourceURL, cookie, c.ref)

	prg, err := goja.Compile(sourceURL, string(source), false)
	if err != nil {
		ctor := c.helpers.errorCtor
		if _, ok := err.(*goja.CompilerSyntaxError); ok {
			ctor = c.helpers.syntaxErrorCtor
		}
		ex, nerr := c.vm.New(ctor, c.vm.ToValue(err.Error()))
		if nerr != nil {
			return InvalidValue, e.fail(c, nerr)
		}
		e.setException(c, ex)
		return InvalidValue, StatusScriptCompile
	}

	v, err := c.vm.RunProgram(prg)
	if err != nil {
		return InvalidValue, e.fail(c, err)
	}
	return e.wrap(c, v), StatusNoError
}
