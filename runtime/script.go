package runtime

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/jsrt/engine"
	"github.com/wippyai/jsrt/errors"
)

// Script is UTF-8 source text with diagnostics identity. Name shows up in
// stack traces and syntax errors; Cookie is an opaque source context the
// engine passes through.
type Script struct {
	Source []byte
	Name   string
	Cookie uint64
}

// Eval runs src under g and returns the completion value.
func Eval(g *Guard, src string) (*Value, error) {
	return Run(g, Script{Source: []byte(src)})
}

// Run runs s under g and returns the completion value. A syntax error or a
// thrown value is returned as *ScriptException.
func Run(g *Guard, s Script) (*Value, error) {
	if err := g.check(errors.PhaseScript); err != nil {
		return nil, err
	}
	rt := g.ctx.rt
	if s.Name == "" {
		s.Name = "script-" + uuid.NewString()
	}
	if s.Cookie == 0 {
		s.Cookie = rt.cookies.Add(1)
	}
	rt.stats.scripts.Add(1)

	ref, st := g.thread.table.RunScript(s.Source, engine.SourceContext(s.Cookie), s.Name)
	if !st.OK() {
		err := g.translate(errors.PhaseScript, "RunScript", st)
		if st == engine.StatusFatal {
			rt.logger.Error("script failed fatally", zap.String("script", s.Name), zap.Error(err))
		}
		return nil, err
	}
	return newValue(g.ctx, ref), nil
}
