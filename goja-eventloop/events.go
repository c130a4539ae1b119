package gojaeventloop

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-duxcore/events"
)

const eventEmitterShell = `(function (init) {
	function EventEmitter() {
		init(this);
	}
	return EventEmitter;
})`

// bindEventEmitter builds the EventEmitter class exported by
// require("events"). Instances hold an [events.Emitter], created on first
// use so that subclasses which skip the constructor still work.
func (a *Adapter) bindEventEmitter() error {
	rt := a.runtime
	shell, err := rt.RunString(eventEmitterShell)
	if err != nil {
		return err
	}
	build, ok := goja.AssertFunction(shell)
	if !ok {
		return errors.New("gojaeventloop: EventEmitter shell is not a function")
	}
	ctorValue, err := build(goja.Undefined(), rt.ToValue(func(call goja.FunctionCall) goja.Value {
		a.emitterOf(call.Argument(0))
		return goja.Undefined()
	}))
	if err != nil {
		return err
	}
	ctor := ctorValue.ToObject(rt)
	proto := ctor.Get("prototype").ToObject(rt)

	adder := func(add func(e *events.Emitter, event string, fn events.Listener, key any) events.ListenerID) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			e := a.emitterOf(call.This)
			event := a.eventName(call.Argument(0))
			listener := call.Argument(1)
			fn := a.callbackArg(listener, "listener")
			this := call.This
			add(e, event, func(args ...any) error {
				_, err := fn(this, a.values(args)...)
				return err
			}, listener)
			return call.This
		}
	}
	on := adder((*events.Emitter).On)
	_ = proto.Set("on", on)
	_ = proto.Set("addListener", on)
	_ = proto.Set("once", adder((*events.Emitter).Once))
	_ = proto.Set("prependListener", adder((*events.Emitter).PrependListener))
	_ = proto.Set("prependOnceListener", adder((*events.Emitter).PrependOnceListener))

	off := func(call goja.FunctionCall) goja.Value {
		a.emitterOf(call.This).RemoveListener(a.eventName(call.Argument(0)), call.Argument(1))
		return call.This
	}
	_ = proto.Set("off", off)
	_ = proto.Set("removeListener", off)
	_ = proto.Set("removeAllListeners", func(call goja.FunctionCall) goja.Value {
		names := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			names = append(names, a.eventName(arg))
		}
		a.emitterOf(call.This).RemoveAllListeners(names...)
		return call.This
	})

	_ = proto.Set("emit", func(call goja.FunctionCall) goja.Value {
		event := a.eventName(call.Argument(0))
		emitted, err := a.emitterOf(call.This).Emit(event, a.captured(call.Arguments[min(1, len(call.Arguments)):])...)
		if err != nil {
			var unhandled *events.UnhandledErrorEvent
			if errors.As(err, &unhandled) {
				a.throwUnhandled(unhandled.Value)
			}
			a.throw(err)
		}
		return rt.ToValue(emitted)
	})

	_ = proto.Set("eventNames", func(call goja.FunctionCall) goja.Value {
		names := a.emitterOf(call.This).EventNames()
		items := make([]any, len(names))
		for i, name := range names {
			items[i] = name
		}
		return rt.NewArray(items...)
	})
	_ = proto.Set("listeners", func(call goja.FunctionCall) goja.Value {
		return rt.NewArray(a.emitterOf(call.This).Listeners(a.eventName(call.Argument(0)))...)
	})
	_ = proto.Set("listenerCount", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(a.emitterOf(call.This).ListenerCount(a.eventName(call.Argument(0))))
	})
	_ = proto.Set("setMaxListeners", func(call goja.FunctionCall) goja.Value {
		n, ok := call.Argument(0).Export().(int64)
		if !ok {
			if f, isFloat := call.Argument(0).Export().(float64); isFloat && f == float64(int64(f)) {
				n, ok = int64(f), true
			}
		}
		if !ok {
			panic(rt.NewTypeError("The \"n\" argument must be of type number. Received %s", call.Argument(0).String()))
		}
		if err := a.emitterOf(call.This).SetMaxListeners(int(n)); err != nil {
			panic(a.newError("RangeError", err.Error()))
		}
		return call.This
	})
	_ = proto.Set("getMaxListeners", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(a.emitterOf(call.This).GetMaxListeners())
	})

	_ = ctor.Set("EventEmitter", ctor)
	_ = ctor.Set("defaultMaxListeners", events.DefaultMaxListeners)

	a.eventEmitter = ctor
	return nil
}

// emitterOf returns the emitter behind v, attaching a new one if needed.
func (a *Adapter) emitterOf(v goja.Value) *events.Emitter {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		panic(a.runtime.NewTypeError("EventEmitter method called on incompatible receiver %s", v.String()))
	}
	if hidden := obj.GetSymbol(a.emitterKey); hidden != nil {
		if e, ok := hidden.Export().(*events.Emitter); ok {
			return e
		}
	}
	e := events.New(events.WithLogger(a.logger))
	_ = obj.DefineDataPropertySymbol(a.emitterKey, a.runtime.ToValue(e), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	return e
}

func (a *Adapter) eventName(v goja.Value) string {
	if s, ok := v.(*goja.Symbol); ok {
		return s.String()
	}
	return v.String()
}

// throwUnhandled throws the argument of an "error" event nobody listens for.
func (a *Adapter) throwUnhandled(value any) {
	v := a.toValue(value)
	if _, ok := v.(*goja.Object); ok {
		panic(v)
	}
	panic(a.newError("Error", fmt.Sprintf("Unhandled error. (%s)", v.String())))
}
