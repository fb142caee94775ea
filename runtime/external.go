package runtime

import (
	"fmt"
	"reflect"

	"github.com/wippyai/jsrt/engine"
	"github.com/wippyai/jsrt/errors"
	"github.com/wippyai/jsrt/resource"
)

// externalCell holds a payload in engine custody.
type externalCell struct {
	payload any
}

// Drop destroys the payload. It runs exactly once, on the collector
// goroutine, during Dispose, or from Sever.
func (c *externalCell) Drop() {
	p := c.payload
	c.payload = nil
	if d, ok := p.(resource.Dropper); ok {
		d.Drop()
	}
}

// External is the host side of an object carrying a payload. It does not
// own the payload: the payload is destroyed when the engine collects the
// object, when the runtime is disposed, or by Sever, whichever comes first.
type External struct {
	rt     *Runtime
	obj    *Value
	handle resource.Handle
}

// NewExternal creates an object carrying payload. If payload implements
// resource.Dropper, Drop is called when the payload is destroyed; it may run
// on another goroutine and must not use the runtime.
func NewExternal(g *Guard, payload any) (*External, error) {
	if err := g.check(errors.PhaseExternal); err != nil {
		return nil, err
	}
	r := g.ctx.rt
	cell := &externalCell{payload: payload}
	h := r.externals.Insert(cell)
	if h == 0 {
		return nil, errors.Disposed(errors.PhaseExternal)
	}

	ref, st := g.thread.table.CreateExternalObject(engine.CallbackState(h), r.finalizeExternal)
	if !st.OK() {
		// never reached the engine; the caller keeps the payload
		cell.payload = nil
		r.externals.Remove(h)
		return nil, g.translate(errors.PhaseExternal, "CreateExternalObject", st)
	}
	return &External{rt: r, obj: newValue(g.ctx, ref), handle: h}, nil
}

// Object returns the engine object. The value is owned by the External;
// Clone it to keep it independently.
func (e *External) Object() *Value {
	return e.obj
}

// Sever destroys the payload now and reports whether this call did so.
// The engine object survives without a payload.
func (e *External) Sever() bool {
	_, ok := e.rt.externals.Remove(e.handle)
	return ok
}

// ExternalOf returns the payload carried by v.
func ExternalOf(g *Guard, v *Value) (any, error) {
	if err := g.enter(errors.PhaseExternal, v); err != nil {
		return nil, err
	}
	t := g.thread.table
	has, st := t.HasExternalData(v.ref)
	if !st.OK() {
		return nil, g.translate(errors.PhaseExternal, "HasExternalData", st)
	}
	if !has {
		return nil, errors.TypeMismatch(errors.PhaseExternal, "external object", "plain value")
	}
	state, st := t.GetExternalData(v.ref)
	if !st.OK() {
		return nil, g.translate(errors.PhaseExternal, "GetExternalData", st)
	}
	cell, ok := g.ctx.rt.externals.Get(resource.Handle(state))
	if !ok {
		return nil, errors.New(errors.PhaseExternal, errors.KindNotFound).Detail("external payload was destroyed").Build()
	}
	return cell.payload, nil
}

// ExternalAs returns the payload carried by v as a T.
func ExternalAs[T any](g *Guard, v *Value) (T, error) {
	var zero T
	p, err := ExternalOf(g, v)
	if err != nil {
		return zero, err
	}
	out, ok := p.(T)
	if !ok {
		return zero, errors.TypeMismatch(errors.PhaseExternal, reflect.TypeFor[T]().String(), fmt.Sprintf("%T", p))
	}
	return out, nil
}

// finalizeExternal is the engine finalizer of every external object of r.
func (r *Runtime) finalizeExternal(state engine.CallbackState) {
	if r.disposing.Load() {
		return
	}
	r.externals.Remove(resource.Handle(state))
}
