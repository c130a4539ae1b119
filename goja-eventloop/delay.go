package gojaeventloop

import (
	"github.com/dop251/goja"
)

// delayModule is the exports of require("delay"), a function compatible
// with npm's delay 1.x:
//
//	delay(ms[, value])         // resolves with value after ms
//	delay.reject(ms[, reason]) // rejects with reason after ms
//
// An invalid delay rejects the returned promise rather than throwing.
func (a *Adapter) delayModule() (goja.Value, error) {
	rt := a.runtime
	fn := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		return a.delayed(call, false)
	}).ToObject(rt)
	if err := fn.Set("reject", func(call goja.FunctionCall) goja.Value {
		return a.delayed(call, true)
	}); err != nil {
		return nil, err
	}
	return fn, nil
}

func (a *Adapter) delayed(call goja.FunctionCall, reject bool) goja.Value {
	p, resolveFunc, rejectFunc := a.loop.NewPromise()
	value := call.Argument(1)

	d, ok := delayValue(call.Argument(0))
	if !ok {
		rejectFunc(a.runtime.NewTypeError("delay: milliseconds must be a number"))
		return a.wrapPromise(p)
	}

	_, err := a.loop.SetTimeout(func(...any) error {
		if reject {
			rejectFunc(value)
		} else {
			resolveFunc(a.fromValue(value))
		}
		return nil
	}, d)
	if err != nil {
		rejectFunc(a.errorValue(err))
	}
	return a.wrapPromise(p)
}
