// Package jsrt is a safety layer over a reference-counted, single-threaded
// JavaScript engine.
//
// The engine exposes a flat, status-returning API with one implicit current
// context. jsrt makes that state explicit: a Guard proves a context is
// current and every operation takes one. Values are refcounted handles that
// release themselves, host closures and host data are reached by the engine
// through opaque registration keys, and every engine status is translated
// into a structured error.
//
// # Architecture Overview
//
//	jsrt/
//	├── runtime/    Runtime, Context, Guard, Value, functions and external data
//	├── engine/     The engine function table and its goja implementation
//	├── resource/   Registration tables for host closures and payloads
//	└── errors/     Structured error types
//
// # Quick Start
//
//	rt, err := runtime.New()
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
//	g, err := ctx.MakeCurrent()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer g.Release()
//
//	v, err := runtime.Eval(g, "5 + 5")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer v.Close()
//
//	n, _ := v.ToInteger(g) // 10
//
// # Thread Safety
//
// A Runtime and everything derived from it must stay on one goroutine.
// Runtime.Interrupt is the exception and may be called from anywhere.
package jsrt
