// Package runtime provides the high-level API over the script engine.
//
// # Quick Start
//
//	rt, err := runtime.New(runtime.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Dispose()
//
//	ctx, err := runtime.NewContext(rt)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = ctx.Do(func(g *runtime.Guard) error {
//	    v, err := runtime.Eval(g, "'Hello, ' + 'World'")
//	    if err != nil {
//	        return err
//	    }
//	    defer v.Close()
//	    s, err := v.ToString(g)
//	    fmt.Println(s) // "Hello, World"
//	    return err
//	})
//
// # Guards
//
// The engine has one current context per thread. MakeCurrent sets it and
// returns a Guard that restores the previous one on Release. Guards nest and
// must be released in reverse order; releasing out of order panics.
//
// Every operation that touches engine state takes the guard and checks it
// before calling the engine:
//
//	errors.ErrGuardReleased    - the guard was released
//	errors.ErrGuardNotCurrent  - another context was made current meanwhile
//	errors.ErrContextMismatch  - a value from another context was passed
//	errors.ErrDisposed         - the runtime was disposed
//
// # Values
//
// A Value owns one engine reference. Close releases it; an unclosed value is
// released after it becomes unreachable. Values outlive guards: a value can
// be used again under a later guard over the same context.
//
// # Errors
//
// Engine statuses map to *errors.Error with Kind KindEngine, or KindFatal
// for unrecoverable engine states. A script that throws yields a
// *ScriptException carrying the thrown value:
//
//	_, err := runtime.Eval(g, "throw 5")
//	var se *runtime.ScriptException
//	if errors.As(err, &se) {
//	    n, _ := se.Value.ToInteger(g) // 5
//	}
//
// # Host Functions
//
// NewFunction turns a Callback into a script function:
//
//	fn, err := runtime.NewFunction(g, func(g *runtime.Guard, call *runtime.CallInfo) (*runtime.Value, error) {
//	    a, err := call.Arg(0).ToDouble(g)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return runtime.Float(g, a*2)
//	})
//
// A returned error is thrown into the calling script. A panic is recovered
// at the engine boundary and thrown as an Error.
//
// Functions registered on the runtime with RegisterFunc or RegisterHost are
// installed into every context created afterwards:
//
//	type Console struct{}
//
//	func (Console) Namespace() string { return "console" }
//
//	func (Console) Log(g *runtime.Guard, call *runtime.CallInfo) (*runtime.Value, error) {
//	    ...
//	}
//
//	rt.RegisterHost(Console{}) // console.log
//
// # External Data
//
// NewExternal attaches a Go payload to a script object. The payload is
// destroyed exactly once: when the object is collected, when the runtime is
// disposed, or by Sever. Payloads implementing resource.Dropper are told.
//
// # Disposal
//
// Dispose fails with status RuntimeInUse while one of the runtime's contexts
// holds a live guard. Afterwards every operation on the runtime, its
// contexts and values returns errors.ErrDisposed.
package runtime
