package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/jsrt/engine"
	"github.com/wippyai/jsrt/errors"
)

// ScriptException is returned when script threw a value. Value is the
// thrown value; it belongs to the context the failing operation ran in and
// should be closed when no longer needed.
type ScriptException struct {
	Err   *errors.Error
	Value *Value
}

func (e *ScriptException) Error() string {
	return e.Err.Error()
}

// Message returns the string form of the thrown value.
func (e *ScriptException) Message() string {
	return e.Err.Detail
}

// engineError maps a status to an error without consulting the engine.
// Script-category statuses become plain engine errors here.
func engineError(phase errors.Phase, op string, st engine.Status) error {
	switch {
	case st.OK():
		return nil
	case st.IsFatal():
		return errors.Fatal(phase, op, uint32(st), st.String())
	}
	return errors.Engine(phase, op, uint32(st), st.String())
}

// translate turns the status of an engine call made under g into an error.
// For script failures the pending exception is fetched and cleared, which
// is why translation needs the live guard.
func (g *Guard) translate(phase errors.Phase, op string, st engine.Status) error {
	if st.OK() {
		return nil
	}
	if !st.IsScript() {
		return engineError(phase, op, st)
	}

	t := g.thread.table
	pending, hst := t.HasException()
	if !hst.OK() || !pending {
		return engineError(phase, op, st)
	}
	ref, hst := t.GetAndClearException()
	if !hst.OK() {
		return engineError(phase, op, st)
	}

	thrown := newValue(g.ctx, ref)
	return &ScriptException{
		Err: errors.New(phase, errors.KindScriptException).
			Op(op).
			Code(uint32(st), st.String()).
			Detail("%s", g.describe(thrown)).
			Build(),
		Value: thrown,
	}
}

// describe renders a thrown value for error messages. It may run script
// (toString); a second exception raised while describing is discarded.
func (g *Guard) describe(v *Value) string {
	t := g.thread.table
	str, st := t.ConvertValueToString(v.ref)
	if !st.OK() {
		if ex, cst := t.GetAndClearException(); cst.OK() {
			t.Release(ex)
		}
		g.ctx.rt.logger.Debug("thrown value has no string form", zap.Stringer("status", st))
		return "<unprintable exception>"
	}
	defer t.Release(str)
	b, st := t.CopyStringUtf8(str)
	if !st.OK() {
		return "<unprintable exception>"
	}
	return string(b)
}

// throw hands err to the engine as the pending exception of the current
// context. A ScriptException rethrows its carried value; any other error
// becomes an Error object carrying the message.
func (g *Guard) throw(err error) {
	t := g.thread.table
	var se *ScriptException
	if errors.As(err, &se) && se.Value != nil && se.Value.ctx == g.ctx && !se.Value.closed {
		if st := t.SetException(se.Value.ref); st.OK() {
			return
		}
	}

	raise(t, g.ctx.rt.logger, err.Error())
}

// raise sets a new Error with message as the pending exception of the
// current context. Failures are logged; there is nobody left to report to.
func raise(t engine.Table, logger *zap.Logger, message string) {
	msg, st := t.CreateStringUtf8([]byte(message))
	if !st.OK() {
		logger.Error("create exception message", zap.Stringer("status", st), zap.String("message", message))
		return
	}
	defer t.Release(msg)
	obj, st := t.CreateError(msg)
	if !st.OK() {
		logger.Error("create exception object", zap.Stringer("status", st), zap.String("message", message))
		return
	}
	defer t.Release(obj)
	if st := t.SetException(obj); !st.OK() {
		logger.Error("set exception", zap.Stringer("status", st), zap.String("message", message))
	}
}

// Unwrap exposes the structured error so errors.As finds *errors.Error.
func (e *ScriptException) Unwrap() error {
	return e.Err
}
