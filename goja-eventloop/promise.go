package gojaeventloop

import (
	"errors"
	"runtime"
	"strconv"
	"weak"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-duxcore/eventloop"
)

// bindPromise replaces the global Promise with one whose reactions run on
// the event loop's microtask queue.
func (a *Adapter) bindPromise() error {
	rt := a.runtime

	ctor := rt.ToValue(a.promiseConstructor).ToObject(rt)
	if proto, ok := ctor.Get("prototype").(*goja.Object); ok {
		a.promisePrototype = proto
	} else {
		a.promisePrototype = rt.NewObject()
		_ = ctor.DefineDataProperty("prototype", a.promisePrototype, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
		_ = a.promisePrototype.DefineDataProperty("constructor", ctor, goja.FLAG_TRUE, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}
	_ = a.promisePrototype.Set("then", func(call goja.FunctionCall) goja.Value {
		p := a.thisPromise(call, "then")
		return a.wrapPromise(p.Then(a.handler(call.Argument(0)), a.handler(call.Argument(1))))
	})
	_ = a.promisePrototype.Set("catch", func(call goja.FunctionCall) goja.Value {
		p := a.thisPromise(call, "catch")
		return a.wrapPromise(p.Catch(a.handler(call.Argument(0))))
	})
	_ = a.promisePrototype.Set("finally", func(call goja.FunctionCall) goja.Value {
		p := a.thisPromise(call, "finally")
		var onFinally func() error
		if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
			onFinally = func() error {
				_, err := fn(goja.Undefined())
				if err != nil {
					return eventloop.RejectWith(a.errorValue(err))
				}
				return nil
			}
		}
		return a.wrapPromise(p.Finally(onFinally))
	})
	_ = a.promisePrototype.SetSymbol(goja.SymToStringTag, "Promise")

	_ = ctor.Set("resolve", func(call goja.FunctionCall) goja.Value {
		return a.wrapPromise(a.loop.Resolve(a.fromValue(call.Argument(0))))
	})
	_ = ctor.Set("reject", func(call goja.FunctionCall) goja.Value {
		return a.wrapPromise(a.loop.Reject(call.Argument(0)))
	})
	_ = ctor.Set("all", func(call goja.FunctionCall) goja.Value {
		return a.wrapPromise(a.loop.All(a.promiseList(call.Argument(0), "all")))
	})
	_ = ctor.Set("race", func(call goja.FunctionCall) goja.Value {
		return a.wrapPromise(a.loop.Race(a.promiseList(call.Argument(0), "race")))
	})
	_ = ctor.Set("allSettled", func(call goja.FunctionCall) goja.Value {
		return a.wrapPromise(a.loop.AllSettled(a.promiseList(call.Argument(0), "allSettled")))
	})

	return rt.Set("Promise", ctor)
}

// promiseConstructor implements new Promise(executor).
func (a *Adapter) promiseConstructor(call goja.ConstructorCall) *goja.Object {
	executor, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(a.runtime.NewTypeError("Promise resolver %s is not a function", call.Argument(0).String()))
	}

	p, resolve, reject := a.loop.NewPromise()
	_, err := executor(goja.Undefined(),
		a.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
			resolve(a.fromValue(call.Argument(0)))
			return goja.Undefined()
		}),
		a.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
			reject(call.Argument(0))
			return goja.Undefined()
		}),
	)
	if err != nil {
		reject(a.errorValue(err))
	}

	obj := call.This
	obj.SetPrototype(a.promisePrototype)
	a.setInternal(obj, p)
	a.rememberPromise(p, obj)
	return obj
}

// wrapPromise returns the script object for p. While the object is
// reachable, the same object is returned for the same promise.
func (a *Adapter) wrapPromise(p *eventloop.Promise) goja.Value {
	if v, ok := a.promiseObjects.Load(weak.Make(p)); ok {
		if obj := v.(weak.Pointer[goja.Object]).Value(); obj != nil {
			return obj
		}
	}
	obj := a.runtime.NewObject()
	obj.SetPrototype(a.promisePrototype)
	a.setInternal(obj, p)
	a.rememberPromise(p, obj)
	return obj
}

// rememberPromise records obj as the script object of p. The entry is
// dropped once obj is collected.
func (a *Adapter) rememberPromise(p *eventloop.Promise, obj *goja.Object) {
	key, ref := weak.Make(p), weak.Make(obj)
	a.promiseObjects.Store(key, ref)
	runtime.AddCleanup(obj, func(ref weak.Pointer[goja.Object]) {
		a.promiseObjects.CompareAndDelete(key, ref)
	}, ref)
}

func (a *Adapter) thisPromise(call goja.FunctionCall, method string) *eventloop.Promise {
	if p, ok := a.internal(call.This).(*eventloop.Promise); ok {
		return p
	}
	panic(a.runtime.NewTypeError("Method Promise.prototype.%s called on incompatible receiver %s", method, call.This.String()))
}

// handler adapts a script reaction. A non-callable value passes the
// settlement through, as Promise.prototype.then requires.
func (a *Adapter) handler(v goja.Value) eventloop.Handler {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil
	}
	return func(result eventloop.Result) (eventloop.Result, error) {
		ret, err := fn(goja.Undefined(), a.toValue(result))
		if err != nil {
			return nil, eventloop.RejectWith(a.errorValue(err))
		}
		return a.fromValue(ret), nil
	}
}

// promiseList reads an array-like of values, each converted with
// Promise.resolve semantics.
func (a *Adapter) promiseList(v goja.Value, method string) []*eventloop.Promise {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		panic(a.runtime.NewTypeError("Promise.%s requires an iterable, got %s", method, v.String()))
	}
	obj := v.ToObject(a.runtime)
	n := int(obj.Get("length").ToInteger())
	promises := make([]*eventloop.Promise, n)
	for i := range n {
		promises[i] = a.loop.Resolve(a.fromValue(obj.Get(strconv.Itoa(i))))
	}
	return promises
}

// jsThenable is a script object with a callable then method.
type jsThenable struct {
	adapter *Adapter
	obj     *goja.Object
	then    goja.Callable
}

// Subscribe implements [eventloop.Thenable].
func (t *jsThenable) Subscribe(resolve eventloop.ResolveFunc, reject eventloop.RejectFunc) error {
	rt := t.adapter.runtime
	_, err := t.then(t.obj,
		rt.ToValue(func(call goja.FunctionCall) goja.Value {
			resolve(t.adapter.fromValue(call.Argument(0)))
			return goja.Undefined()
		}),
		rt.ToValue(func(call goja.FunctionCall) goja.Value {
			reject(call.Argument(0))
			return goja.Undefined()
		}),
	)
	if err != nil {
		return eventloop.RejectWith(t.adapter.errorValue(err))
	}
	return nil
}

// fromValue converts a script value for use as a promise result. Promises
// and thenables become values the loop adopts; anything else is kept as a
// script value.
func (a *Adapter) fromValue(v goja.Value) eventloop.Result {
	if v == nil {
		return goja.Undefined()
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v
	}
	if p, ok := a.internal(obj).(*eventloop.Promise); ok {
		return p
	}
	if then, ok := goja.AssertFunction(obj.Get("then")); ok {
		return &jsThenable{adapter: a, obj: obj, then: then}
	}
	return v
}

// toValue converts a Go value produced by the loop, a module or a worker
// into a script value.
func (a *Adapter) toValue(v any) goja.Value {
	rt := a.runtime
	switch v := v.(type) {
	case nil:
		return goja.Undefined()
	case goja.Value:
		return v
	case *eventloop.Promise:
		return a.wrapPromise(v)
	case []eventloop.Result:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = a.toValue(item)
		}
		return rt.NewArray(items...)
	case map[string]eventloop.Result:
		obj := rt.NewObject()
		for _, key := range []string{"status", "value", "reason"} {
			if item, ok := v[key]; ok {
				_ = obj.Set(key, a.toValue(item))
			}
		}
		for key, item := range v {
			if obj.Get(key) == nil {
				_ = obj.Set(key, a.toValue(item))
			}
		}
		return obj
	case error:
		var unhandled *eventloop.UnhandledRejectionError
		if errors.As(v, &unhandled) {
			return a.toValue(unhandled.Reason)
		}
		return a.errorValue(v)
	}
	return rt.ToValue(v)
}
