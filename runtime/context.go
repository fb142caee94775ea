package runtime

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/jsrt/engine"
	"github.com/wippyai/jsrt/errors"
)

// Context is an isolated script execution scope within a Runtime. It has
// its own global object. Objects never cross contexts.
type Context struct {
	rt  *Runtime
	ref engine.ContextRef
}

// NewContext creates a context in rt. Host functions registered on rt at
// this point are installed into the new context's global object.
func NewContext(rt *Runtime) (*Context, error) {
	if rt == nil {
		return nil, errors.InvalidInput(errors.PhaseContext, "nil runtime")
	}
	if rt.disposed.Load() {
		return nil, errors.Disposed(errors.PhaseContext)
	}
	ref, st := rt.table.CreateContext(rt.handle)
	if !st.OK() {
		return nil, engineError(errors.PhaseContext, "CreateContext", st)
	}
	c := &Context{rt: rt, ref: ref}

	if rt.hosts.Len() > 0 {
		err := c.Do(func(g *Guard) error {
			return rt.hosts.Bind(g)
		})
		if err != nil {
			rt.logger.Debug("context abandoned", zap.Uint64("context", uint64(ref)), zap.Error(err))
			return nil, err
		}
	}

	rt.contexts = append(rt.contexts, c)
	rt.stats.contexts.Add(1)
	rt.logger.Debug("context created", zap.Uint64("context", uint64(ref)))
	return c, nil
}

// Runtime returns the runtime the context was created from.
func (c *Context) Runtime() *Runtime {
	return c.rt
}

// MakeCurrent makes c the current context of its engine thread and returns
// the guard that restores the previous context on Release.
func (c *Context) MakeCurrent() (*Guard, error) {
	rt := c.rt
	if rt.disposed.Load() {
		return nil, errors.Disposed(errors.PhaseContext)
	}
	t := rt.table
	prev, st := t.GetCurrentContext()
	if !st.OK() {
		return nil, engineError(errors.PhaseContext, "GetCurrentContext", st)
	}
	if st := t.SetCurrentContext(c.ref); !st.OK() {
		return nil, engineError(errors.PhaseContext, "SetCurrentContext", st)
	}
	g := &Guard{
		ctx:    c,
		thread: rt.thread,
		parent: rt.thread.top,
		prev:   prev,
	}
	rt.thread.top = g
	return g, nil
}

// Global returns the context's global object. g must guard c.
func (c *Context) Global(g *Guard) (*Value, error) {
	if g != nil && g.ctx != c {
		return nil, errors.ContextMismatch(errors.PhaseContext, "guard")
	}
	return g.Global()
}

// Do runs fn with c current and releases the guard on every exit path.
// A panic in fn is re-raised after the guard is released.
func (c *Context) Do(fn func(g *Guard) error) error {
	g, err := c.MakeCurrent()
	if err != nil {
		return err
	}
	defer g.Release()
	return fn(g)
}

func (c *Context) String() string {
	return fmt.Sprintf("context(%d)", c.ref)
}
