package gojaeventloop

import (
	"github.com/dop251/goja"
	"github.com/joeycumines/go-duxcore/eventloop"
)

// utilModule is the exports of require("util").
func (a *Adapter) utilModule() (goja.Value, error) {
	rt := a.runtime
	exports := rt.NewObject()

	promisify := rt.ToValue(a.promisify).ToObject(rt)
	if err := promisify.Set("custom", a.customKey); err != nil {
		return nil, err
	}
	if err := exports.Set("promisify", promisify); err != nil {
		return nil, err
	}
	if err := exports.Set("inherits", a.inherits); err != nil {
		return nil, err
	}
	return exports, nil
}

// promisify implements util.promisify(fn). fn is called with its arguments
// plus an error-first callback, and the returned function yields a promise.
func (a *Adapter) promisify(call goja.FunctionCall) goja.Value {
	rt := a.runtime
	original := call.Argument(0)
	fn, ok := goja.AssertFunction(original)
	if !ok {
		panic(rt.NewTypeError("The \"original\" argument must be of type function. Received %s", original.String()))
	}
	if custom := original.ToObject(rt).GetSymbol(a.customKey); custom != nil {
		if _, ok := goja.AssertFunction(custom); !ok {
			panic(rt.NewTypeError("The \"util.promisify.custom\" property must be of type function"))
		}
		return custom
	}

	return rt.ToValue(func(call goja.FunctionCall) goja.Value {
		this := call.This
		invoke := a.loop.PromisifyCallback(func(args []eventloop.Result, done eventloop.Continuation) error {
			callArgs := make([]goja.Value, 0, len(args)+1)
			for _, arg := range args {
				callArgs = append(callArgs, arg.(goja.Value))
			}
			callArgs = append(callArgs, rt.ToValue(func(call goja.FunctionCall) goja.Value {
				if reason := call.Argument(0); !goja.IsUndefined(reason) && !goja.IsNull(reason) {
					done(reason, nil)
				} else {
					done(nil, a.fromValue(call.Argument(1)))
				}
				return goja.Undefined()
			}))
			_, err := fn(this, callArgs...)
			if err != nil {
				return eventloop.RejectWith(a.errorValue(err))
			}
			return nil
		})
		return a.wrapPromise(invoke(a.captured(call.Arguments)...))
	})
}

// inherits implements util.inherits(ctor, superCtor).
func (a *Adapter) inherits(call goja.FunctionCall) goja.Value {
	rt := a.runtime
	ctor, ok := call.Argument(0).(*goja.Object)
	if _, callable := goja.AssertFunction(call.Argument(0)); !ok || !callable {
		panic(rt.NewTypeError("The \"ctor\" argument must be of type function"))
	}
	superCtor, ok := call.Argument(1).(*goja.Object)
	if _, callable := goja.AssertFunction(call.Argument(1)); !ok || !callable {
		panic(rt.NewTypeError("The \"superCtor\" argument must be of type function"))
	}
	superProto, ok := superCtor.Get("prototype").(*goja.Object)
	if !ok {
		panic(rt.NewTypeError("The \"superCtor.prototype\" property must be of type object"))
	}

	if err := ctor.DefineDataProperty("super_", superCtor, goja.FLAG_TRUE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		a.throw(err)
	}
	if err := ctor.Get("prototype").ToObject(rt).SetPrototype(superProto); err != nil {
		a.throw(err)
	}
	return goja.Undefined()
}
