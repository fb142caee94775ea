package runtime

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/jsrt/errors"
)

// Host is the interface for struct-based host modules.
// All exported methods of Callback shape (except Namespace) are registered
// as host functions, under lowerCamelCase names.
type Host interface {
	// Namespace returns the global object path the functions are installed
	// under, e.g. "console" or "host.fs".
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact script function names
// when automatic PascalCase-to-lowerCamelCase conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]Callback
}

// HostRegistry holds host functions that are installed into every context
// created after registration.
type HostRegistry struct {
	funcs map[string]map[string]Callback
	mu    sync.RWMutex
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs: make(map[string]map[string]Callback),
	}
}

var callbackType = reflect.TypeOf(Callback(nil))

func (r *HostRegistry) RegisterHost(h Host) error {
	if h == nil {
		return errors.InvalidInput(errors.PhaseHost, "host cannot be nil")
	}
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if err := validNamespace(ns); err != nil {
		return err
	}

	funcs := make(map[string]Callback)
	if er, ok := h.(ExplicitRegistrar); ok {
		for name, cb := range er.Register() {
			if name == "" || cb == nil {
				return errors.InvalidInput(errors.PhaseHost, "explicit registration needs a name and a callback")
			}
			funcs[name] = cb
		}
	} else {
		rv := reflect.ValueOf(h)
		rt := rv.Type()
		for i := 0; i < rt.NumMethod(); i++ {
			method := rt.Method(i)
			if !method.IsExported() || method.Name == "Namespace" {
				continue
			}
			bound := rv.Method(i)
			if !bound.Type().ConvertibleTo(callbackType) {
				continue
			}
			funcs[toJSName(method.Name)] = bound.Convert(callbackType).Interface().(Callback)
		}
	}
	if len(funcs) == 0 {
		return errors.New(errors.PhaseHost, errors.KindNotFound).
			Detail("host %T has no callback methods", h).
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs[ns] == nil {
		r.funcs[ns] = make(map[string]Callback)
	}
	for name, cb := range funcs {
		r.funcs[ns][name] = cb
	}
	return nil
}

// RegisterFunc registers a single function. An empty namespace installs it
// on the global object.
func (r *HostRegistry) RegisterFunc(namespace, name string, cb Callback) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	if cb == nil {
		return errors.InvalidInput(errors.PhaseHost, "callback cannot be nil")
	}
	if namespace != "" {
		if err := validNamespace(namespace); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]Callback)
	}
	r.funcs[namespace][name] = cb
	return nil
}

// Len returns the number of registered functions.
func (r *HostRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, funcs := range r.funcs {
		n += len(funcs)
	}
	return n
}

// Names returns the qualified names of all registered functions, sorted.
func (r *HostRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for ns, funcs := range r.funcs {
		for name := range funcs {
			if ns == "" {
				names = append(names, name)
			} else {
				names = append(names, ns+"."+name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Bind installs the registered functions into the context guarded by g.
// Namespace objects missing from the global object are created.
func (r *HostRegistry) Bind(g *Guard) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	namespaces := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	for _, ns := range namespaces {
		target, err := namespaceObject(g, ns)
		if err != nil {
			return errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "bind namespace "+ns)
		}
		for name, cb := range r.funcs[ns] {
			if err := bindFunc(g, target, ns, name, cb); err != nil {
				target.Close()
				return err
			}
		}
		target.Close()
	}
	return nil
}

func bindFunc(g *Guard, target *Value, ns, name string, cb Callback) error {
	qualified := name
	if ns != "" {
		qualified = ns + "." + name
	}
	fn, err := newFunction(g, qualified, cb, nil)
	if err != nil {
		return err
	}
	defer fn.Close()
	id, err := NewPropertyID(g, name)
	if err != nil {
		return err
	}
	if err := target.Set(g, id, fn); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "install "+qualified)
	}
	return nil
}

// namespaceObject walks a dotted path from the global object, creating
// empty objects for missing segments.
func namespaceObject(g *Guard, ns string) (*Value, error) {
	cur, err := g.Global()
	if err != nil {
		return nil, err
	}
	if ns == "" {
		return cur, nil
	}
	for _, seg := range strings.Split(ns, ".") {
		next, err := child(g, cur, seg)
		cur.Close()
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func child(g *Guard, parent *Value, name string) (*Value, error) {
	id, err := NewPropertyID(g, name)
	if err != nil {
		return nil, err
	}
	v, err := parent.Get(g, id)
	if err != nil {
		return nil, err
	}
	vt, err := v.Type(g)
	if err != nil {
		v.Close()
		return nil, err
	}
	switch vt {
	case TypeObject, TypeFunction:
		return v, nil
	case TypeUndefined:
		v.Close()
	default:
		v.Close()
		return nil, errors.TypeMismatch(errors.PhaseHost, "object", vt.String())
	}

	obj, err := NewObject(g)
	if err != nil {
		return nil, err
	}
	if err := parent.Set(g, id, obj); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func validNamespace(ns string) error {
	for _, seg := range strings.Split(ns, ".") {
		if seg == "" {
			return errors.InvalidInput(errors.PhaseHost, "namespace "+ns+" has an empty segment")
		}
	}
	return nil
}

// toJSName converts PascalCase to lowerCamelCase.
// Handles acronyms: HTTPGet -> httpGet, URL -> url, ReadURL -> readURL
func toJSName(s string) string {
	runes := []rune(s)
	if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
		return s
	}

	end := 1
	for end < len(runes) && unicode.IsUpper(runes[end]) {
		end++
	}
	if end > 1 && end < len(runes) && unicode.IsLower(runes[end]) {
		// Last uppercase before lowercase starts next word, not part of acronym
		end--
	}

	for i := 0; i < end; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
