package runtime

import (
	"reflect"
	"testing"

	"github.com/wippyai/jsrt/errors"
)

type mathHost struct {
	calls int
}

func (h *mathHost) Namespace() string { return "host.math" }

func (h *mathHost) Add(g *Guard, call *CallInfo) (*Value, error) {
	h.calls++
	a, err := call.Arg(0).ToInteger(g)
	if err != nil {
		return nil, err
	}
	b, err := call.Arg(1).ToInteger(g)
	if err != nil {
		return nil, err
	}
	return Int(g, a+b)
}

func (h *mathHost) GetHTTPURL(g *Guard, call *CallInfo) (*Value, error) {
	return String(g, "http://localhost")
}

// Reset does not have callback shape and is not exported to script.
func (h *mathHost) Reset() {
	h.calls = 0
}

type emptyHost struct{}

func (emptyHost) Namespace() string { return "empty" }

type namedHost struct{}

func (namedHost) Namespace() string { return "named" }

func (namedHost) Register() map[string]Callback {
	return map[string]Callback{
		"$": func(g *Guard, call *CallInfo) (*Value, error) {
			return String(g, "dollar")
		},
	}
}

type nanHost struct{}

func (nanHost) Namespace() string { return "NaN.fns" }

func (nanHost) Run(g *Guard, call *CallInfo) (*Value, error) { return nil, nil }

type badHost struct{ ns string }

func (h badHost) Namespace() string { return h.ns }

func (badHost) Run(g *Guard, call *CallInfo) (*Value, error) { return nil, nil }

func TestHost_Bind(t *testing.T) {
	rt := newTestRuntime(t)

	host := &mathHost{}
	if err := rt.RegisterHost(host); err != nil {
		t.Fatalf("register host: %v", err)
	}
	if err := rt.RegisterHost(namedHost{}); err != nil {
		t.Fatalf("register explicit host: %v", err)
	}
	err := rt.RegisterFunc("", "twice", func(g *Guard, call *CallInfo) (*Value, error) {
		n, err := call.Arg(0).ToInteger(g)
		if err != nil {
			return nil, err
		}
		return Int(g, 2*n)
	})
	if err != nil {
		t.Fatalf("register func: %v", err)
	}

	want := []string{"host.math.add", "host.math.getHTTPURL", "named.$", "twice"}
	if got := rt.Hosts().Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	if n := rt.Hosts().Len(); n != 4 {
		t.Fatalf("len = %d, want 4", n)
	}

	g, err := newTestContext(t, rt).MakeCurrent()
	if err != nil {
		t.Fatalf("make current: %v", err)
	}
	defer g.Release()

	if n := mustInt(t, g, mustEval(t, g, "twice(host.math.add(2, 3))")); n != 10 {
		t.Fatalf("twice(add(2, 3)) = %d, want 10", n)
	}
	if host.calls != 1 {
		t.Fatalf("add called %d times", host.calls)
	}
	if s := mustString(t, g, mustEval(t, g, "host.math.getHTTPURL() + named.$()")); s != "http://localhostdollar" {
		t.Fatalf("got %q", s)
	}
	if s := mustString(t, g, mustEval(t, g, "typeof host.math.reset")); s != "undefined" {
		t.Fatalf("reset exported as %s", s)
	}
	if n := rt.Stats().LiveFunctions; n != 4 {
		t.Fatalf("live functions = %d, want 4", n)
	}
}

func TestHost_ExistingNamespace(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)

	g, _ := c.MakeCurrent()
	defer g.Release()
	mustEval(t, g, "var host = {version: 3}")
	if err := rt.RegisterHost(&mathHost{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := rt.Hosts().Bind(g); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if n := mustInt(t, g, mustEval(t, g, "host.version + host.math.add(1, 1)")); n != 5 {
		t.Fatalf("got %d, want 5", n)
	}

	mustEval(t, g, "host.math = 7")
	if err := rt.Hosts().Bind(g); !errors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
		t.Fatalf("bind over number = %v, want invalid input", err)
	}
}

func TestHost_BindFailureDropsContext(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterHost(nanHost{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	c, err := NewContext(rt)
	if err == nil || c != nil {
		t.Fatalf("context over a number namespace = %v, %v", c, err)
	}
	if !errors.Is(err, &errors.Error{Kind: errors.KindInvalidInput, Phase: errors.PhaseHost}) {
		t.Fatalf("error = %v, want host bind failure", err)
	}
	if n := rt.Stats().Contexts; n != 0 {
		t.Fatalf("contexts = %d after failed bind, want 0", n)
	}
	if cur := currentContext(t, rt); cur != 0 {
		t.Fatalf("current = %d after failed bind, want none", cur)
	}
}

func TestHost_RegisterErrors(t *testing.T) {
	r := NewHostRegistry()
	noop := func(g *Guard, call *CallInfo) (*Value, error) { return nil, nil }

	tests := []struct {
		name string
		err  error
		kind errors.Kind
	}{
		{"nil host", r.RegisterHost(nil), errors.KindInvalidInput},
		{"empty namespace", r.RegisterHost(badHost{}), errors.KindInvalidInput},
		{"empty segment", r.RegisterHost(badHost{ns: "a..b"}), errors.KindInvalidInput},
		{"no methods", r.RegisterHost(emptyHost{}), errors.KindNotFound},
		{"empty name", r.RegisterFunc("x", "", noop), errors.KindInvalidInput},
		{"nil callback", r.RegisterFunc("x", "f", nil), errors.KindInvalidInput},
		{"bad func namespace", r.RegisterFunc(".x", "f", noop), errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e *errors.Error
			if !errors.As(tt.err, &e) {
				t.Fatalf("got %v, want *errors.Error", tt.err)
			}
			if e.Kind != tt.kind || e.Phase != errors.PhaseHost {
				t.Fatalf("got %s/%s, want %s/%s", e.Phase, e.Kind, errors.PhaseHost, tt.kind)
			}
		})
	}
	if r.Len() != 0 {
		t.Fatalf("failed registrations left %d functions", r.Len())
	}
}

func TestToJSName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Log", "log"},
		{"HTTPGet", "httpGet"},
		{"URL", "url"},
		{"ReadURL", "readURL"},
		{"GetHTTPURL", "getHTTPURL"},
		{"ID", "id"},
		{"already", "already"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := toJSName(tt.in); got != tt.want {
			t.Errorf("toJSName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
