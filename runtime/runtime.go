package runtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/jsrt/engine"
	"github.com/wippyai/jsrt/errors"
	"github.com/wippyai/jsrt/resource"
)

// Registration type IDs in the runtime's resource table.
const (
	typeFunction uint32 = 1
	typeExternal uint32 = 2
)

// Runtime owns one engine runtime and the host registrations reachable from
// it. A Runtime and everything created from it must be used from a single
// goroutine; only finalization arrives from elsewhere.
type Runtime struct {
	table      engine.Table
	thread     *thread
	logger     *zap.Logger
	registry   *resource.UnifiedTable
	functions  *resource.Typed[*function]
	externals  *resource.Typed[*externalCell]
	hosts      *HostRegistry
	stats      *stats
	registerer prometheus.Registerer
	collector  *Collector
	contexts   []*Context
	handle     engine.RuntimeHandle
	id         string
	attrs      Attributes
	cookies    atomic.Uint64
	disposed   atomic.Bool
	disposing  atomic.Bool
}

// New creates a runtime configured by opts.
func New(opts ...Option) (*Runtime, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a runtime from cfg.
func NewWithConfig(cfg Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	table := cfg.Engine
	if table == nil {
		table = engine.NewGojaEngineWithConfig(&engine.GojaConfig{
			MaxCallStackSize: cfg.MaxCallStackSize,
		})
	}

	handle, st := table.CreateRuntime(engine.RuntimeAttributes(cfg.Attributes))
	if !st.OK() {
		return nil, engineError(errors.PhaseRuntime, "CreateRuntime", st)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	id := uuid.NewString()
	registry := resource.NewTable()
	r := &Runtime{
		table:      table,
		thread:     attachThread(table),
		logger:     logger.With(zap.String("runtime", id), zap.Uint64("handle", uint64(handle))),
		registry:   registry,
		functions:  resource.NewTyped[*function](registry, typeFunction),
		externals:  resource.NewTyped[*externalCell](registry, typeExternal),
		hosts:      NewHostRegistry(),
		stats:      &stats{},
		registerer: cfg.Registerer,
		handle:     handle,
		id:         id,
		attrs:      cfg.Attributes,
	}
	registry.Subscribe(r.stats)

	if cfg.Registerer != nil {
		r.collector = NewCollector(r)
		if err := cfg.Registerer.Register(r.collector); err != nil {
			r.logger.Warn("register metrics collector", zap.Error(err))
			r.collector = nil
		}
	}

	r.logger.Debug("runtime created", zap.Stringer("attributes", cfg.Attributes))
	return r, nil
}

// Dispose releases the engine runtime, every context created from it and
// all host data still attached to engine objects. Dispose fails with status
// RuntimeInUse while one of the runtime's contexts is active on its engine
// thread; the runtime stays usable in that case. Any later use of the
// runtime or its contexts, guards and values returns ErrDisposed.
func (r *Runtime) Dispose() error {
	if r.disposed.Load() {
		return errors.Disposed(errors.PhaseRuntime)
	}
	if r.thread.active(r) {
		return engineError(errors.PhaseRuntime, "DisposeRuntime", engine.StatusRuntimeInUse)
	}

	// registrations are destroyed by the table close below, once
	r.disposing.Store(true)
	if st := r.table.DisposeRuntime(r.handle); !st.OK() {
		r.disposing.Store(false)
		return engineError(errors.PhaseRuntime, "DisposeRuntime", st)
	}
	r.disposed.Store(true)
	r.thread.detach()

	live := r.registry.Len()
	var err error
	if cerr := r.registry.Close(); cerr != nil {
		err = errors.Wrap(errors.PhaseFinalize, errors.KindCallback, cerr, "destroy host data")
	}
	if r.collector != nil && !r.registerer.Unregister(r.collector) {
		err = multierr.Append(err, errors.NotFound(errors.PhaseRuntime, "metrics collector", "jsrt"))
	}

	r.logger.Debug("runtime disposed",
		zap.Int("contexts", len(r.contexts)),
		zap.Int("finalized", live),
		zap.Error(err))
	r.contexts = nil
	r.stats.contexts.Store(0)
	return err
}

// Disposed reports whether Dispose has completed.
func (r *Runtime) Disposed() bool {
	return r.disposed.Load()
}

// CollectGarbage asks the engine to collect. Finalization of unreachable
// objects may complete asynchronously.
func (r *Runtime) CollectGarbage() error {
	if r.disposed.Load() {
		return errors.Disposed(errors.PhaseRuntime)
	}
	if st := r.table.CollectGarbage(r.handle); !st.OK() {
		return engineError(errors.PhaseRuntime, "CollectGarbage", st)
	}
	return nil
}

// Interrupt stops running script and refuses new script until Resume. It is
// the one operation that may be called from another goroutine and requires
// AttrAllowScriptInterrupt.
func (r *Runtime) Interrupt() error {
	if r.disposed.Load() {
		return errors.Disposed(errors.PhaseRuntime)
	}
	if st := r.table.DisableRuntimeExecution(r.handle); !st.OK() {
		return engineError(errors.PhaseRuntime, "DisableRuntimeExecution", st)
	}
	r.logger.Debug("runtime execution disabled")
	return nil
}

// Resume re-enables script execution after Interrupt.
func (r *Runtime) Resume() error {
	if r.disposed.Load() {
		return errors.Disposed(errors.PhaseRuntime)
	}
	if st := r.table.EnableRuntimeExecution(r.handle); !st.OK() {
		return engineError(errors.PhaseRuntime, "EnableRuntimeExecution", st)
	}
	return nil
}

// ID returns the process-unique runtime identifier used in logs and metrics.
func (r *Runtime) ID() string {
	return r.id
}

// Attributes returns the attributes the runtime was created with.
func (r *Runtime) Attributes() Attributes {
	return r.attrs
}

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *zap.Logger {
	return r.logger
}

// Hosts returns the runtime's host function registry.
func (r *Runtime) Hosts() *HostRegistry {
	return r.hosts
}

// RegisterHost registers all callback-shaped exported methods of h.
// Must be called BEFORE creating the contexts that should see them.
func (r *Runtime) RegisterHost(h Host) error {
	return r.hosts.RegisterHost(h)
}

// RegisterFunc registers a single host function under namespace.
// An empty namespace installs the function on the global object.
func (r *Runtime) RegisterFunc(namespace, name string, cb Callback) error {
	return r.hosts.RegisterFunc(namespace, name, cb)
}

// Stats is a snapshot of runtime bookkeeping.
type Stats struct {
	Contexts           int
	LiveFunctions      int
	LiveExternals      int
	FunctionsFinalized uint64
	ExternalsFinalized uint64
	CallbackFailures   uint64
	CallbackPanics     uint64
	ScriptsRun         uint64
}

// Stats returns current counters.
func (r *Runtime) Stats() Stats {
	return Stats{
		Contexts:           int(r.stats.contexts.Load()),
		LiveFunctions:      r.functions.Len(),
		LiveExternals:      r.externals.Len(),
		FunctionsFinalized: r.stats.functionsFinalized.Load(),
		ExternalsFinalized: r.stats.externalsFinalized.Load(),
		CallbackFailures:   r.stats.callbackFailures.Load(),
		CallbackPanics:     r.stats.callbackPanics.Load(),
		ScriptsRun:         r.stats.scripts.Load(),
	}
}

// stats observes the registration table. Events may arrive from the
// collector goroutine, and metrics scrapes read it from any goroutine.
type stats struct {
	functionsFinalized atomic.Uint64
	externalsFinalized atomic.Uint64
	callbackFailures   atomic.Uint64
	callbackPanics     atomic.Uint64
	scripts            atomic.Uint64
	contexts           atomic.Int64
}

func (s *stats) OnResourceEvent(e resource.Event) {
	if e.Type != resource.EventDropped {
		return
	}
	switch e.Value.(type) {
	case *function:
		s.functionsFinalized.Add(1)
	case *externalCell:
		s.externalsFinalized.Add(1)
	}
}

// thread is the per-engine guard stack. Runtimes that share an engine share
// its current-context slot and therefore one thread.
type thread struct {
	table engine.Table
	top   *Guard
	refs  int
}

var (
	threadsMu sync.Mutex
	threads   = make(map[engine.Table]*thread)
)

func attachThread(t engine.Table) *thread {
	threadsMu.Lock()
	defer threadsMu.Unlock()
	th, ok := threads[t]
	if !ok {
		th = &thread{table: t}
		threads[t] = th
	}
	th.refs++
	return th
}

func (th *thread) detach() {
	threadsMu.Lock()
	defer threadsMu.Unlock()
	th.refs--
	if th.refs == 0 {
		delete(threads, th.table)
	}
}

// active reports whether any live guard on the thread belongs to r.
func (th *thread) active(r *Runtime) bool {
	for g := th.top; g != nil; g = g.parent {
		if g.ctx.rt == r {
			return true
		}
	}
	return false
}
