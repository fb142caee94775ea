package runtime

import (
	goruntime "runtime"

	"github.com/wippyai/jsrt/engine"
	"github.com/wippyai/jsrt/errors"
)

// ValueType classifies a script value.
type ValueType = engine.ValueType

const (
	TypeUndefined   = engine.TypeUndefined
	TypeNull        = engine.TypeNull
	TypeNumber      = engine.TypeNumber
	TypeString      = engine.TypeString
	TypeBoolean     = engine.TypeBoolean
	TypeObject      = engine.TypeObject
	TypeFunction    = engine.TypeFunction
	TypeError       = engine.TypeError
	TypeArray       = engine.TypeArray
	TypeSymbol      = engine.TypeSymbol
	TypeArrayBuffer = engine.TypeArrayBuffer
)

// Value holds one reference to an engine value. Close drops the reference;
// a value that is never closed is released once it becomes unreachable.
//
// A value belongs to the context that produced it and can be used under any
// live guard over that context.
type Value struct {
	ctx      *Context
	cleanup  goruntime.Cleanup
	ref      engine.ValueRef
	borrowed bool
	closed   bool
}

type valueRelease struct {
	rt  *Runtime
	ref engine.ValueRef
}

func releaseValue(r valueRelease) {
	// the engine dropped every handle of a disposed runtime
	if r.rt.disposed.Load() {
		return
	}
	r.rt.table.Release(r.ref)
}

// newValue takes ownership of a reference returned by the engine.
func newValue(ctx *Context, ref engine.ValueRef) *Value {
	v := &Value{ctx: ctx, ref: ref}
	v.cleanup = goruntime.AddCleanup(v, releaseValue, valueRelease{rt: ctx.rt, ref: ref})
	return v
}

// borrowedValue wraps a reference owned by someone else, valid for the
// duration of a host call.
func borrowedValue(ctx *Context, ref engine.ValueRef) *Value {
	return &Value{ctx: ctx, ref: ref, borrowed: true}
}

// Context returns the context the value belongs to.
func (v *Value) Context() *Context {
	return v.ctx
}

// Close drops the value's reference. Closing twice is a no-op. Closing a
// borrowed value only invalidates the handle.
func (v *Value) Close() error {
	if v == nil || v.closed {
		return nil
	}
	v.closed = true
	if v.borrowed {
		return nil
	}
	v.cleanup.Stop()
	if v.ctx.rt.disposed.Load() {
		return nil
	}
	if _, st := v.ctx.rt.table.Release(v.ref); !st.OK() {
		return engineError(errors.PhaseValue, "Release", st)
	}
	return nil
}

// Clone returns a new owned reference to the same engine value. Borrowed
// values passed to host callbacks must be cloned to outlive the call.
func (v *Value) Clone(g *Guard) (*Value, error) {
	if err := g.enter(errors.PhaseValue, v); err != nil {
		return nil, err
	}
	if _, st := g.thread.table.AddRef(v.ref); !st.OK() {
		return nil, engineError(errors.PhaseValue, "AddRef", st)
	}
	return newValue(v.ctx, v.ref), nil
}

// transfer hands one reference to the engine. An owned value is consumed.
func (v *Value) transfer(g *Guard) (engine.ValueRef, error) {
	if err := g.owns(errors.PhaseCall, v); err != nil {
		return engine.InvalidValue, err
	}
	if v.borrowed {
		if _, st := g.thread.table.AddRef(v.ref); !st.OK() {
			return engine.InvalidValue, engineError(errors.PhaseCall, "AddRef", st)
		}
		return v.ref, nil
	}
	v.closed = true
	v.cleanup.Stop()
	return v.ref, nil
}

func (g *Guard) create(op string, fn func(t engine.Table) (engine.ValueRef, engine.Status)) (*Value, error) {
	if err := g.check(errors.PhaseValue); err != nil {
		return nil, err
	}
	ref, st := fn(g.thread.table)
	if !st.OK() {
		return nil, g.translate(errors.PhaseValue, op, st)
	}
	return newValue(g.ctx, ref), nil
}

// Undefined returns the undefined value.
func Undefined(g *Guard) (*Value, error) {
	return g.create("GetUndefinedValue", engine.Table.GetUndefinedValue)
}

// Null returns the null value.
func Null(g *Guard) (*Value, error) {
	return g.create("GetNullValue", engine.Table.GetNullValue)
}

// Bool returns a boolean value.
func Bool(g *Guard, b bool) (*Value, error) {
	return g.create("BoolToBoolean", func(t engine.Table) (engine.ValueRef, engine.Status) {
		return t.BoolToBoolean(b)
	})
}

// Int returns a number value.
func Int(g *Guard, n int32) (*Value, error) {
	return g.create("IntToNumber", func(t engine.Table) (engine.ValueRef, engine.Status) {
		return t.IntToNumber(n)
	})
}

// Float returns a number value.
func Float(g *Guard, f float64) (*Value, error) {
	return g.create("DoubleToNumber", func(t engine.Table) (engine.ValueRef, engine.Status) {
		return t.DoubleToNumber(f)
	})
}

// String returns a string value holding a copy of s.
func String(g *Guard, s string) (*Value, error) {
	return StringFromBytes(g, []byte(s))
}

// StringFromBytes returns a string value holding a copy of the UTF-8 bytes b.
func StringFromBytes(g *Guard, b []byte) (*Value, error) {
	return g.create("CreateStringUtf8", func(t engine.Table) (engine.ValueRef, engine.Status) {
		return t.CreateStringUtf8(b)
	})
}

// ArrayBuffer returns an ArrayBuffer holding a copy of data.
func ArrayBuffer(g *Guard, data []byte) (*Value, error) {
	return g.create("CreateArrayBuffer", func(t engine.Table) (engine.ValueRef, engine.Status) {
		return t.CreateArrayBuffer(data)
	})
}

// NewObject returns a new empty object.
func NewObject(g *Guard) (*Value, error) {
	return g.create("CreateObject", engine.Table.CreateObject)
}

// NewArray returns a new array of the given length.
func NewArray(g *Guard, length uint32) (*Value, error) {
	return g.create("CreateArray", func(t engine.Table) (engine.ValueRef, engine.Status) {
		return t.CreateArray(length)
	})
}

// Type returns the value's type.
func (v *Value) Type(g *Guard) (ValueType, error) {
	if err := g.enter(errors.PhaseValue, v); err != nil {
		return TypeUndefined, err
	}
	vt, st := g.thread.table.GetValueType(v.ref)
	if !st.OK() {
		return TypeUndefined, g.translate(errors.PhaseValue, "GetValueType", st)
	}
	return vt, nil
}

// IsNull reports whether v is null.
func (v *Value) IsNull(g *Guard) (bool, error) {
	vt, err := v.Type(g)
	return err == nil && vt == TypeNull, err
}

// IsUndefined reports whether v is undefined.
func (v *Value) IsUndefined(g *Guard) (bool, error) {
	vt, err := v.Type(g)
	return err == nil && vt == TypeUndefined, err
}

// convert applies a script conversion and hands the temporary result to
// read. Conversions may run script and fail with *ScriptException.
func (v *Value) convert(g *Guard, op string, conv func(engine.Table, engine.ValueRef) (engine.ValueRef, engine.Status), read func(engine.Table, engine.ValueRef) engine.Status) error {
	if err := g.enter(errors.PhaseValue, v); err != nil {
		return err
	}
	t := g.thread.table
	tmp, st := conv(t, v.ref)
	if !st.OK() {
		return g.translate(errors.PhaseValue, op, st)
	}
	defer t.Release(tmp)
	if st := read(t, tmp); !st.OK() {
		return g.translate(errors.PhaseValue, op, st)
	}
	return nil
}

// ToInteger converts v to a number and returns it as int32.
func (v *Value) ToInteger(g *Guard) (int32, error) {
	var n int32
	err := v.convert(g, "ConvertValueToNumber", engine.Table.ConvertValueToNumber, func(t engine.Table, ref engine.ValueRef) (st engine.Status) {
		n, st = t.NumberToInt(ref)
		return st
	})
	return n, err
}

// ToDouble converts v to a number.
func (v *Value) ToDouble(g *Guard) (float64, error) {
	var f float64
	err := v.convert(g, "ConvertValueToNumber", engine.Table.ConvertValueToNumber, func(t engine.Table, ref engine.ValueRef) (st engine.Status) {
		f, st = t.NumberToDouble(ref)
		return st
	})
	return f, err
}

// ToString converts v to a string.
func (v *Value) ToString(g *Guard) (string, error) {
	var b []byte
	err := v.convert(g, "ConvertValueToString", engine.Table.ConvertValueToString, func(t engine.Table, ref engine.ValueRef) (st engine.Status) {
		b, st = t.CopyStringUtf8(ref)
		return st
	})
	return string(b), err
}

// ToBool converts v to a boolean.
func (v *Value) ToBool(g *Guard) (bool, error) {
	var b bool
	err := v.convert(g, "ConvertValueToBoolean", engine.Table.ConvertValueToBoolean, func(t engine.Table, ref engine.ValueRef) (st engine.Status) {
		b, st = t.BooleanToBool(ref)
		return st
	})
	return b, err
}

// Equals compares with script == semantics.
func (v *Value) Equals(g *Guard, other *Value) (bool, error) {
	if err := g.enter(errors.PhaseValue, v, other); err != nil {
		return false, err
	}
	eq, st := g.thread.table.Equals(v.ref, other.ref)
	if !st.OK() {
		return false, g.translate(errors.PhaseValue, "Equals", st)
	}
	return eq, nil
}

// StrictEquals compares with script === semantics.
func (v *Value) StrictEquals(g *Guard, other *Value) (bool, error) {
	if err := g.enter(errors.PhaseValue, v, other); err != nil {
		return false, err
	}
	eq, st := g.thread.table.StrictEquals(v.ref, other.ref)
	if !st.OK() {
		return false, g.translate(errors.PhaseValue, "StrictEquals", st)
	}
	return eq, nil
}

// Get reads a property.
func (v *Value) Get(g *Guard, id *PropertyID) (*Value, error) {
	if err := g.enterProperty(id, v); err != nil {
		return nil, err
	}
	ref, st := g.thread.table.GetProperty(v.ref, id.ref)
	if !st.OK() {
		return nil, g.translate(errors.PhaseProperty, "GetProperty", st)
	}
	return newValue(g.ctx, ref), nil
}

// Set writes a property with strict mode semantics.
func (v *Value) Set(g *Guard, id *PropertyID, val *Value) error {
	if err := g.enterProperty(id, v, val); err != nil {
		return err
	}
	if st := g.thread.table.SetProperty(v.ref, id.ref, val.ref, true); !st.OK() {
		return g.translate(errors.PhaseProperty, "SetProperty", st)
	}
	return nil
}

// Has reports whether the property exists on v or its prototype chain.
func (v *Value) Has(g *Guard, id *PropertyID) (bool, error) {
	if err := g.enterProperty(id, v); err != nil {
		return false, err
	}
	ok, st := g.thread.table.HasProperty(v.ref, id.ref)
	if !st.OK() {
		return false, g.translate(errors.PhaseProperty, "HasProperty", st)
	}
	return ok, nil
}

// Delete removes a property with strict mode semantics and reports whether
// the property is gone.
func (v *Value) Delete(g *Guard, id *PropertyID) (bool, error) {
	if err := g.enterProperty(id, v); err != nil {
		return false, err
	}
	ok, st := g.thread.table.DeleteProperty(v.ref, id.ref, true)
	if !st.OK() {
		return false, g.translate(errors.PhaseProperty, "DeleteProperty", st)
	}
	return ok, nil
}

// GetIndex reads the element at index.
func (v *Value) GetIndex(g *Guard, index uint32) (*Value, error) {
	if err := g.enter(errors.PhaseProperty, v); err != nil {
		return nil, err
	}
	t := g.thread.table
	idx, st := t.DoubleToNumber(float64(index))
	if !st.OK() {
		return nil, g.translate(errors.PhaseProperty, "DoubleToNumber", st)
	}
	defer t.Release(idx)
	ref, st := t.GetIndexedProperty(v.ref, idx)
	if !st.OK() {
		return nil, g.translate(errors.PhaseProperty, "GetIndexedProperty", st)
	}
	return newValue(g.ctx, ref), nil
}

// SetIndex writes the element at index.
func (v *Value) SetIndex(g *Guard, index uint32, val *Value) error {
	if err := g.enter(errors.PhaseProperty, v, val); err != nil {
		return err
	}
	t := g.thread.table
	idx, st := t.DoubleToNumber(float64(index))
	if !st.OK() {
		return g.translate(errors.PhaseProperty, "DoubleToNumber", st)
	}
	defer t.Release(idx)
	if st := t.SetIndexedProperty(v.ref, idx, val.ref); !st.OK() {
		return g.translate(errors.PhaseProperty, "SetIndexedProperty", st)
	}
	return nil
}

// Call invokes v as a function. A nil this passes undefined.
func (v *Value) Call(g *Guard, this *Value, args ...*Value) (*Value, error) {
	refs, release, err := g.callArgs(v, this, args)
	if err != nil {
		return nil, err
	}
	defer release()
	ref, st := g.thread.table.CallFunction(v.ref, refs)
	if !st.OK() {
		return nil, g.translate(errors.PhaseCall, "CallFunction", st)
	}
	return newValue(g.ctx, ref), nil
}

// Construct invokes v as a constructor, as the new operator does.
func (v *Value) Construct(g *Guard, args ...*Value) (*Value, error) {
	refs, release, err := g.callArgs(v, nil, args)
	if err != nil {
		return nil, err
	}
	defer release()
	ref, st := g.thread.table.ConstructObject(v.ref, refs)
	if !st.OK() {
		return nil, g.translate(errors.PhaseCall, "ConstructObject", st)
	}
	return newValue(g.ctx, ref), nil
}

// callArgs validates a call and lays out this followed by args.
func (g *Guard) callArgs(fn, this *Value, args []*Value) ([]engine.ValueRef, func(), error) {
	if err := g.enter(errors.PhaseCall, fn); err != nil {
		return nil, nil, err
	}
	for _, a := range args {
		if err := g.owns(errors.PhaseCall, a); err != nil {
			return nil, nil, err
		}
	}

	t := g.thread.table
	release := func() {}
	refs := make([]engine.ValueRef, 0, len(args)+1)
	if this != nil {
		if err := g.owns(errors.PhaseCall, this); err != nil {
			return nil, nil, err
		}
		refs = append(refs, this.ref)
	} else {
		undef, st := t.GetUndefinedValue()
		if !st.OK() {
			return nil, nil, engineError(errors.PhaseCall, "GetUndefinedValue", st)
		}
		refs = append(refs, undef)
		release = func() { t.Release(undef) }
	}
	for _, a := range args {
		refs = append(refs, a.ref)
	}
	return refs, release, nil
}
