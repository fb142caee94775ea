package runtime

import (
	"testing"

	"github.com/wippyai/jsrt/engine"
	"github.com/wippyai/jsrt/errors"
)

func currentContext(t *testing.T, rt *Runtime) engine.ContextRef {
	t.Helper()
	ref, st := rt.table.GetCurrentContext()
	if !st.OK() {
		t.Fatalf("get current context: %v", st)
	}
	return ref
}

func TestGuard_NestedRestore(t *testing.T) {
	rt := newTestRuntime(t)
	c1 := newTestContext(t, rt)
	c2 := newTestContext(t, rt)

	if cur := currentContext(t, rt); cur != 0 {
		t.Fatalf("initial current = %d, want none", cur)
	}

	g1, err := c1.MakeCurrent()
	if err != nil {
		t.Fatalf("make current c1: %v", err)
	}
	if cur := currentContext(t, rt); cur != c1.ref {
		t.Fatalf("current = %d, want c1", cur)
	}

	g2, err := c2.MakeCurrent()
	if err != nil {
		t.Fatalf("make current c2: %v", err)
	}
	if cur := currentContext(t, rt); cur != c2.ref {
		t.Fatalf("current = %d, want c2", cur)
	}
	g2.Release()
	if cur := currentContext(t, rt); cur != c1.ref {
		t.Fatalf("after release c2 current = %d, want c1", cur)
	}

	g3, err := c2.MakeCurrent()
	if err != nil {
		t.Fatalf("make current c2 again: %v", err)
	}
	g3.Release()
	if cur := currentContext(t, rt); cur != c1.ref {
		t.Fatalf("after second release current = %d, want c1", cur)
	}

	g1.Release()
	if cur := currentContext(t, rt); cur != 0 {
		t.Fatalf("after release c1 current = %d, want none", cur)
	}
}

func TestGuard_Released(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)

	g, err := c.MakeCurrent()
	if err != nil {
		t.Fatalf("make current: %v", err)
	}
	g.Release()
	g.Release() // no-op

	if !g.Released() {
		t.Fatal("guard not marked released")
	}

	tests := []struct {
		name string
		op   func() error
	}{
		{"eval", func() error { _, err := Eval(g, "1"); return err }},
		{"global", func() error { _, err := g.Global(); return err }},
		{"int", func() error { _, err := Int(g, 1); return err }},
		{"property id", func() error { _, err := NewPropertyID(g, "x"); return err }},
		{"function", func() error {
			_, err := NewFunction(g, func(*Guard, *CallInfo) (*Value, error) { return nil, nil })
			return err
		}},
		{"external", func() error { _, err := NewExternal(g, 1); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			if !errors.Is(err, errors.ErrGuardReleased) {
				t.Fatalf("got %v, want ErrGuardReleased", err)
			}
			if !errors.IsGuardMisuse(err) {
				t.Fatal("not classified as guard misuse")
			}
		})
	}
}

func TestGuard_NotCurrent(t *testing.T) {
	rt, g := newTestGuard(t)

	// something outside the guard discipline moved the current context
	rt.table.SetCurrentContext(0)
	defer rt.table.SetCurrentContext(g.ctx.ref)

	if _, err := Eval(g, "1"); !errors.Is(err, errors.ErrGuardNotCurrent) {
		t.Fatalf("eval = %v, want ErrGuardNotCurrent", err)
	}
}

func TestGuard_NilGuard(t *testing.T) {
	_, err := Eval(nil, "1")
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Fatalf("eval with nil guard = %v, want invalid input", err)
	}
}

func TestGuard_OutOfOrderRelease(t *testing.T) {
	rt := newTestRuntime(t)
	g1, _ := newTestContext(t, rt).MakeCurrent()
	g2, _ := newTestContext(t, rt).MakeCurrent()

	func() {
		defer func() {
			r := recover()
			err, ok := r.(error)
			if !ok || !errors.Is(err, errors.ErrGuardOrder) {
				t.Fatalf("recovered %v, want ErrGuardOrder", r)
			}
		}()
		g1.Release()
	}()

	if g1.Released() {
		t.Fatal("misordered release took effect")
	}
	g2.Release()
	g1.Release()
	if cur := currentContext(t, rt); cur != 0 {
		t.Fatalf("current = %d, want none", cur)
	}
}

func TestGuard_ContextMismatch(t *testing.T) {
	rt := newTestRuntime(t)
	c1 := newTestContext(t, rt)
	c2 := newTestContext(t, rt)

	g1, _ := c1.MakeCurrent()
	obj, err := NewObject(g1)
	if err != nil {
		t.Fatalf("new object: %v", err)
	}
	g1.Release()

	g2, _ := c2.MakeCurrent()
	defer g2.Release()

	if _, err := obj.Type(g2); !errors.Is(err, errors.ErrContextMismatch) {
		t.Fatalf("foreign value = %v, want ErrContextMismatch", err)
	}
	if _, err := c1.Global(g2); !errors.Is(err, errors.ErrContextMismatch) {
		t.Fatalf("foreign guard = %v, want ErrContextMismatch", err)
	}
	global, err := c2.Global(g2)
	if err != nil {
		t.Fatalf("own global: %v", err)
	}
	global.Close()
}

func TestGuard_ValueOutlivesGuard(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)

	g, _ := c.MakeCurrent()
	v, err := Eval(g, "'kept'")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	g.Release()

	if _, err := v.ToString(g); !errors.Is(err, errors.ErrGuardReleased) {
		t.Fatalf("read under released guard = %v", err)
	}

	g2, _ := c.MakeCurrent()
	defer g2.Release()
	if s := mustString(t, g2, v); s != "kept" {
		t.Fatalf("value = %q, want kept", s)
	}
	v.Close()
}

func TestContext_DoReleasesOnPanic(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)

	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Fatalf("recovered %v, want boom", r)
			}
		}()
		c.Do(func(g *Guard) error {
			panic("boom")
		})
	}()

	if cur := currentContext(t, rt); cur != 0 {
		t.Fatalf("current = %d after panic, want none", cur)
	}
	if rt.thread.top != nil {
		t.Fatal("guard stack not unwound")
	}
	if err := c.Do(func(g *Guard) error { return nil }); err != nil {
		t.Fatalf("do after panic: %v", err)
	}
}

func TestContext_DoPropagatesError(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)

	want := errors.InvalidInput(errors.PhaseScript, "stop")
	if err := c.Do(func(g *Guard) error { return want }); err != want {
		t.Fatalf("do = %v, want %v", err, want)
	}
	if c.Runtime() != rt {
		t.Fatal("context lost its runtime")
	}
}
