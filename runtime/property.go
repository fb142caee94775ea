package runtime

import (
	"github.com/wippyai/jsrt/engine"
	"github.com/wippyai/jsrt/errors"
)

// PropertyID is an interned property key. It is valid in every context of
// the runtime that created it and lives as long as the runtime.
type PropertyID struct {
	rt     *Runtime
	ref    engine.PropertyIDRef
	name   string
	symbol bool
}

// NewPropertyID interns a string property key.
func NewPropertyID(g *Guard, name string) (*PropertyID, error) {
	if err := g.check(errors.PhaseProperty); err != nil {
		return nil, err
	}
	ref, st := g.thread.table.CreatePropertyIDUtf8([]byte(name))
	if !st.OK() {
		return nil, g.translate(errors.PhaseProperty, "CreatePropertyIDUtf8", st)
	}
	return &PropertyID{rt: g.ctx.rt, ref: ref, name: name}, nil
}

// NewSymbolPropertyID creates a key for a new unique symbol.
func NewSymbolPropertyID(g *Guard, description string) (*PropertyID, error) {
	if err := g.check(errors.PhaseProperty); err != nil {
		return nil, err
	}
	ref, st := g.thread.table.CreateSymbolPropertyID(description)
	if !st.OK() {
		return nil, g.translate(errors.PhaseProperty, "CreateSymbolPropertyID", st)
	}
	return &PropertyID{rt: g.ctx.rt, ref: ref, name: description, symbol: true}, nil
}

// Name returns the key's name, or the symbol description.
func (p *PropertyID) Name() string {
	return p.name
}

// IsSymbol reports whether the key is a symbol.
func (p *PropertyID) IsSymbol() bool {
	return p.symbol
}

func (p *PropertyID) String() string {
	if p.symbol {
		return "Symbol(" + p.name + ")"
	}
	return p.name
}

// enterProperty validates a property access under g.
func (g *Guard) enterProperty(id *PropertyID, vals ...*Value) error {
	if err := g.enter(errors.PhaseProperty, vals...); err != nil {
		return err
	}
	if id == nil {
		return errors.InvalidInput(errors.PhaseProperty, "nil property id")
	}
	if id.rt != g.ctx.rt {
		return errors.ContextMismatch(errors.PhaseProperty, "property id")
	}
	return nil
}
