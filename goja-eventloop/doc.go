// Package gojaeventloop provides a bridge between the [eventloop] and
// [modules] packages and the [goja] JavaScript runtime, exposing a Node.js
// style set of globals that delegate to the underlying Go event loop.
//
// # Overview
//
// The [Adapter] wraps an [eventloop.Loop] and a [goja.Runtime], and owns a
// [modules.Registry] for which it acts as the script engine. After calling
// [Adapter.Bind], JavaScript code running in the goja runtime has access to
// the APIs below.
//
// # Bound JavaScript APIs
//
// Timer functions:
//   - setTimeout / clearTimeout
//   - setInterval / clearInterval
//   - setImmediate / clearImmediate
//   - queueMicrotask
//
// Timeout and Immediate handles expose ref, unref and hasRef. A Timeout
// also has refresh and close, and converts to its numeric id.
//
// Promises:
//   - Promise (constructor, then, catch, finally)
//   - Promise.resolve, reject, all, race, allSettled
//
// Promise reactions share the loop's microtask queue with
// process.nextTick, so the two interleave in enqueue order.
//
// Modules:
//   - require, require.resolve, require.cache, require.main
//   - module (id "<repl>" at the top level) and exports
//   - core modules: delay, events, path, process, timers, util
//
// Process:
//   - process.nextTick, process.exit, process.exitCode
//   - process.argv, process.env, process.version, process.versions,
//     process.arch, process.platform
//
// # Errors
//
// Invalid arguments to scheduling functions throw a TypeError, clearing an
// unknown handle throws a RangeError, and a missing module throws an Error
// whose code is "MODULE_NOT_FOUND". Errors raised by a module's source,
// such as a SyntaxError, are rethrown unchanged.
//
// # Usage
//
//	loop, _ := eventloop.New()
//	defer loop.Close()
//	rt := goja.New()
//
//	adapter, _ := gojaeventloop.New(loop, rt, gojaeventloop.WithBaseDir("/srv/app"))
//	_ = adapter.Bind()
//
//	if err := adapter.RunMain("./main.js"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := loop.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// [eventloop]: github.com/joeycumines/go-duxcore/eventloop
// [modules]: github.com/joeycumines/go-duxcore/modules
// [goja]: github.com/dop251/goja
package gojaeventloop
