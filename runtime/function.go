package runtime

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/jsrt/engine"
	"github.com/wippyai/jsrt/errors"
	"github.com/wippyai/jsrt/resource"
)

// Callback implements a script function in Go.
//
// The guard and the values in call are borrowed: they are valid until the
// callback returns. Clone a value to keep it longer. The returned value is
// consumed by the call; a nil value returns undefined. A returned error is
// thrown into the calling script, a *ScriptException rethrows its value.
type Callback func(g *Guard, call *CallInfo) (*Value, error)

// CallInfo describes one invocation of a host function.
type CallInfo struct {
	This            *Value
	Callee          *Value
	Arguments       []*Value
	IsConstructCall bool
}

// Arg returns argument i, or nil when fewer arguments were passed.
func (c *CallInfo) Arg(i int) *Value {
	if i < 0 || i >= len(c.Arguments) {
		return nil
	}
	return c.Arguments[i]
}

// function is a callback registration kept alive while the engine retains
// the function object.
type function struct {
	cb       Callback
	ctx      *Context
	name     string
	finalize func()
}

// Drop runs when the engine no longer references the function object.
func (f *function) Drop() {
	f.cb = nil
	if fin := f.finalize; fin != nil {
		f.finalize = nil
		fin()
	}
}

// NewFunction creates a script function backed by cb.
func NewFunction(g *Guard, cb Callback) (*Value, error) {
	return newFunction(g, "", cb, nil)
}

// NewFunctionWithFinalizer is NewFunction with a hook that runs exactly
// once after the function object becomes unreachable or the runtime is
// disposed. finalize may run on another goroutine and must not use the
// runtime.
func NewFunctionWithFinalizer(g *Guard, cb Callback, finalize func()) (*Value, error) {
	return newFunction(g, "", cb, finalize)
}

func newFunction(g *Guard, name string, cb Callback, finalize func()) (*Value, error) {
	if err := g.check(errors.PhaseCall); err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, errors.InvalidInput(errors.PhaseCall, "nil callback")
	}
	r := g.ctx.rt
	h := r.functions.Insert(&function{cb: cb, ctx: g.ctx, name: name, finalize: finalize})
	if h == 0 {
		return nil, errors.Disposed(errors.PhaseCall)
	}

	ref, st := g.thread.table.CreateFunction(r.trampoline, engine.CallbackState(h), r.finalizeFunction)
	if !st.OK() {
		r.functions.Remove(h)
		return nil, g.translate(errors.PhaseCall, "CreateFunction", st)
	}
	return newValue(g.ctx, ref), nil
}

// trampoline is the engine entry point for every host function of r. The
// registration is pinned for the duration of the call so a concurrent
// finalizer cannot drop a running callback.
func (r *Runtime) trampoline(callee engine.ValueRef, isConstructCall bool, args []engine.ValueRef, state engine.CallbackState) engine.ValueRef {
	h := resource.Handle(state)
	fn, ok := r.functions.Borrow(h)
	if !ok {
		r.logger.Error("call to unknown host function", zap.Uint64("handle", uint64(h)))
		raise(r.table, r.logger, "host function is no longer registered")
		return engine.InvalidValue
	}
	defer r.functions.ReturnBorrow(h)

	th := r.thread
	g := &Guard{ctx: fn.ctx, thread: th, parent: th.top, borrowed: true}
	defer func() { g.released = true }()

	call := &CallInfo{
		Callee:          borrowedValue(fn.ctx, callee),
		This:            borrowedValue(fn.ctx, args[0]),
		Arguments:       make([]*Value, len(args)-1),
		IsConstructCall: isConstructCall,
	}
	for i, a := range args[1:] {
		call.Arguments[i] = borrowedValue(fn.ctx, a)
	}
	defer func() {
		call.Callee.closed = true
		call.This.closed = true
		for _, a := range call.Arguments {
			a.closed = true
		}
	}()

	ret, err := r.invoke(g, fn, call)
	if err != nil {
		r.stats.callbackFailures.Add(1)
		r.logger.Debug("host function failed", zap.String("function", fn.name), zap.Error(err))
		g.throw(err)
		return engine.InvalidValue
	}
	if ret == nil {
		return engine.InvalidValue
	}
	ref, err := ret.transfer(g)
	if err != nil {
		r.stats.callbackFailures.Add(1)
		g.throw(err)
		return engine.InvalidValue
	}
	return ref
}

// invoke runs the callback and turns a panic into an error.
func (r *Runtime) invoke(g *Guard, fn *function, call *CallInfo) (ret *Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.stats.callbackPanics.Add(1)
			r.logger.Error("host function panicked",
				zap.String("function", fn.name),
				zap.Any("panic", p),
				zap.Stack("stack"))
			ret = nil
			err = errors.Callback(nil, fmt.Sprintf("host function panicked: %v", p))
		}
	}()
	if fn.cb == nil {
		return nil, errors.Callback(nil, "host function already finalized")
	}
	return fn.cb(g, call)
}

// finalizeFunction is the engine finalizer of every host function of r.
// Disposal destroys all registrations itself.
func (r *Runtime) finalizeFunction(state engine.CallbackState) {
	if r.disposing.Load() {
		return
	}
	r.functions.Remove(resource.Handle(state))
}
