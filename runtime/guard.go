package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/jsrt/engine"
	"github.com/wippyai/jsrt/errors"
)

// Guard proves that its Context is the current context of the engine
// thread. Every operation that touches engine state takes the guard
// explicitly and validates it before making a native call.
//
// A guard is acquired by Context.MakeCurrent and must be released in the
// reverse order of acquisition, usually with defer. Guards handed to host
// callbacks are borrowed: they are valid for the duration of the call and
// their Release is a no-op.
type Guard struct {
	ctx      *Context
	thread   *thread
	parent   *Guard
	prev     engine.ContextRef
	borrowed bool
	released bool
}

// Context returns the context the guard activates.
func (g *Guard) Context() *Context {
	return g.ctx
}

// Runtime returns the runtime of the guard's context.
func (g *Guard) Runtime() *Runtime {
	return g.ctx.rt
}

// Released reports whether the guard can no longer be used.
func (g *Guard) Released() bool {
	return g.released
}

// Release restores the context that was current when the guard was
// acquired. Releasing twice is a no-op. Releasing a guard that is not the
// most recently acquired live guard is a programming error and panics.
func (g *Guard) Release() {
	if g == nil || g.released || g.borrowed {
		return
	}
	th := g.thread
	if th.top != g {
		panic(errors.New(errors.PhaseGuard, errors.KindGuardOrder).
			Detail("guard for context %d released while context %d is innermost", g.ctx.ref, th.top.ctxRef()).
			Build())
	}

	th.top = g.parent
	g.released = true

	// the previous context may belong to a runtime disposed meanwhile
	if st := th.table.SetCurrentContext(g.prev); !st.OK() {
		g.ctx.rt.logger.Warn("restore previous context",
			zap.Uint64("context", uint64(g.prev)),
			zap.Stringer("status", st))
		th.table.SetCurrentContext(0)
	}
}

func (g *Guard) ctxRef() engine.ContextRef {
	if g == nil {
		return 0
	}
	return g.ctx.ref
}

// check validates the guard against the engine's current context. It runs
// before every native call made under the guard.
func (g *Guard) check(phase errors.Phase) error {
	if g == nil {
		return errors.InvalidInput(phase, "nil guard")
	}
	if g.released {
		return errors.GuardReleased(phase)
	}
	if g.ctx.rt.disposed.Load() {
		return errors.Disposed(phase)
	}
	cur, st := g.thread.table.GetCurrentContext()
	if !st.OK() {
		return engineError(phase, "GetCurrentContext", st)
	}
	if cur != g.ctx.ref {
		return errors.GuardNotCurrent(phase)
	}
	return nil
}

// owns validates v for use under g. Values may be read under any live
// guard over the context that produced them.
func (g *Guard) owns(phase errors.Phase, v *Value) error {
	if v == nil {
		return errors.InvalidInput(phase, "nil value")
	}
	if v.closed {
		return errors.New(phase, errors.KindInvalidInput).Detail("value already closed").Build()
	}
	if v.ctx != g.ctx {
		return errors.ContextMismatch(phase, "value")
	}
	return nil
}

// enter is check plus owns for each value.
func (g *Guard) enter(phase errors.Phase, vals ...*Value) error {
	if err := g.check(phase); err != nil {
		return err
	}
	for _, v := range vals {
		if err := g.owns(phase, v); err != nil {
			return err
		}
	}
	return nil
}

// Global returns the global object of the guard's context.
func (g *Guard) Global() (*Value, error) {
	if err := g.check(errors.PhaseContext); err != nil {
		return nil, err
	}
	ref, st := g.thread.table.GetGlobalObject()
	if !st.OK() {
		return nil, g.translate(errors.PhaseContext, "GetGlobalObject", st)
	}
	return newValue(g.ctx, ref), nil
}
