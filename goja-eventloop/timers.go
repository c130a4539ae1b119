package gojaeventloop

import (
	"math"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-duxcore/eventloop"
)

// maxTimerDelay mirrors the 32-bit limit of browser and Node timers. Longer
// delays are replaced with 1ms.
const maxTimerDelay = 1<<31 - 1

// bindTimers installs the timer globals.
func (a *Adapter) bindTimers() {
	rt := a.runtime
	a.timeoutPrototype = a.newHandlePrototype(true)
	a.immediatePrototype = a.newHandlePrototype(false)

	_ = rt.Set("setTimeout", a.setTimeout)
	_ = rt.Set("clearTimeout", a.clearTimeout)
	_ = rt.Set("setInterval", a.setInterval)
	_ = rt.Set("clearInterval", a.clearInterval)
	_ = rt.Set("setImmediate", a.setImmediate)
	_ = rt.Set("clearImmediate", a.clearImmediate)
	_ = rt.Set("queueMicrotask", a.queueMicrotask)
}

// timersModule is the exports of require("timers").
func (a *Adapter) timersModule() (goja.Value, error) {
	exports := a.runtime.NewObject()
	for _, name := range []string{
		"setTimeout", "clearTimeout",
		"setInterval", "clearInterval",
		"setImmediate", "clearImmediate",
		"queueMicrotask",
	} {
		if err := exports.Set(name, a.runtime.Get(name)); err != nil {
			return nil, err
		}
	}
	return exports, nil
}

func (a *Adapter) setTimeout(call goja.FunctionCall) goja.Value {
	return a.armTimer(eventloop.TimeoutKind, call)
}

func (a *Adapter) setInterval(call goja.FunctionCall) goja.Value {
	return a.armTimer(eventloop.IntervalKind, call)
}

func (a *Adapter) armTimer(kind eventloop.TimerKind, call goja.FunctionCall) goja.Value {
	fn := a.callbackArg(call.Argument(0), kind.String())
	delay := a.delayArg(call.Argument(1), kind.String())

	handle := a.runtime.NewObject()
	handle.SetPrototype(a.timeoutPrototype)
	cb := func(args ...any) error {
		_, err := fn(handle, a.values(args)...)
		return err
	}

	var (
		timer *eventloop.Timer
		err   error
	)
	args := a.captured(call.Arguments[min(2, len(call.Arguments)):])
	if kind == eventloop.IntervalKind {
		timer, err = a.loop.SetInterval(cb, delay, args...)
	} else {
		timer, err = a.loop.SetTimeout(cb, delay, args...)
	}
	if err != nil {
		a.throw(err)
	}
	a.setInternal(handle, timer)
	return handle
}

func (a *Adapter) clearTimeout(call goja.FunctionCall) goja.Value {
	a.clearTimer(eventloop.TimeoutKind, call.Argument(0))
	return goja.Undefined()
}

func (a *Adapter) clearInterval(call goja.FunctionCall) goja.Value {
	a.clearTimer(eventloop.IntervalKind, call.Argument(0))
	return goja.Undefined()
}

// clearTimer accepts a Timeout object or its numeric id.
func (a *Adapter) clearTimer(kind eventloop.TimerKind, v goja.Value) {
	var timer *eventloop.Timer
	switch id := v.Export().(type) {
	case int64:
		if timer = a.loop.TimerByID(uint64(id)); timer == nil {
			a.throw(a.loop.ClearTimer(uint64(id)))
		}
	case float64:
		if timer = a.loop.TimerByID(uint64(id)); timer == nil {
			a.throw(a.loop.ClearTimer(uint64(id)))
		}
	default:
		timer, _ = a.internal(v).(*eventloop.Timer)
	}

	var err error
	if kind == eventloop.IntervalKind {
		err = a.loop.ClearInterval(timer)
	} else {
		err = a.loop.ClearTimeout(timer)
	}
	if err != nil {
		a.throw(err)
	}
}

func (a *Adapter) setImmediate(call goja.FunctionCall) goja.Value {
	fn := a.callbackArg(call.Argument(0), "setImmediate")

	handle := a.runtime.NewObject()
	handle.SetPrototype(a.immediatePrototype)
	im, err := a.loop.SetImmediate(func(args ...any) error {
		_, err := fn(handle, a.values(args)...)
		return err
	}, a.captured(call.Arguments[min(1, len(call.Arguments)):])...)
	if err != nil {
		a.throw(err)
	}
	a.setInternal(handle, im)
	return handle
}

func (a *Adapter) clearImmediate(call goja.FunctionCall) goja.Value {
	im, _ := a.internal(call.Argument(0)).(*eventloop.Immediate)
	if err := a.loop.ClearImmediate(im); err != nil {
		a.throw(err)
	}
	return goja.Undefined()
}

func (a *Adapter) queueMicrotask(call goja.FunctionCall) goja.Value {
	fn := a.callbackArg(call.Argument(0), "queueMicrotask")
	if err := a.loop.QueueMicrotask(func() error {
		_, err := fn(goja.Undefined())
		return err
	}); err != nil {
		a.throw(err)
	}
	return goja.Undefined()
}

// newHandlePrototype builds the prototype shared by Timeout (or Immediate)
// objects.
func (a *Adapter) newHandlePrototype(timeout bool) *goja.Object {
	rt := a.runtime
	proto := rt.NewObject()

	type handle interface {
		ID() uint64
		HasRef() bool
		Pending() bool
	}
	this := func(call goja.FunctionCall) handle {
		if h, ok := a.internal(call.This).(handle); ok {
			return h
		}
		panic(rt.NewTypeError("Illegal invocation"))
	}

	_ = proto.Set("ref", func(call goja.FunctionCall) goja.Value {
		switch h := this(call).(type) {
		case *eventloop.Timer:
			h.Ref()
		case *eventloop.Immediate:
			h.Ref()
		}
		return call.This
	})
	_ = proto.Set("unref", func(call goja.FunctionCall) goja.Value {
		switch h := this(call).(type) {
		case *eventloop.Timer:
			h.Unref()
		case *eventloop.Immediate:
			h.Unref()
		}
		return call.This
	})
	_ = proto.Set("hasRef", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(this(call).HasRef())
	})
	_ = proto.SetSymbol(goja.SymToPrimitive, func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(this(call).ID())
	})

	if timeout {
		_ = proto.Set("refresh", func(call goja.FunctionCall) goja.Value {
			if t, ok := this(call).(*eventloop.Timer); ok {
				t.Refresh()
			}
			return call.This
		})
		_ = proto.Set("close", func(call goja.FunctionCall) goja.Value {
			if t, ok := this(call).(*eventloop.Timer); ok && t.Pending() {
				if err := a.loop.ClearTimer(t.ID()); err != nil {
					a.throw(err)
				}
			}
			return call.This
		})
	}

	return proto
}

// callbackArg asserts that v is callable.
func (a *Adapter) callbackArg(v goja.Value, name string) goja.Callable {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(a.runtime.NewTypeError("%s: callback must be a function", name))
	}
	return fn
}

// delayArg converts a millisecond delay. A missing delay means zero, and
// delays beyond the 32-bit limit mean 1ms. Negative delays are left for the
// loop to reject.
func (a *Adapter) delayArg(v goja.Value, name string) time.Duration {
	d, ok := delayValue(v)
	if !ok {
		panic(a.runtime.NewTypeError("%s: delay must be a number", name))
	}
	return d
}

// delayValue is delayArg without the throw.
func delayValue(v goja.Value) (time.Duration, bool) {
	if v == nil || goja.IsUndefined(v) {
		return 0, true
	}
	var ms float64
	switch n := v.Export().(type) {
	case int64:
		ms = float64(n)
	case float64:
		ms = n
	default:
		return 0, false
	}
	if math.IsNaN(ms) {
		return 0, false
	}
	switch {
	case ms > maxTimerDelay:
		ms = 1
	case ms < -maxTimerDelay:
		ms = -1
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}

func (a *Adapter) setInternal(obj *goja.Object, v any) {
	_ = obj.DefineDataPropertySymbol(a.internalKey, a.runtime.ToValue(v), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
}

// internal returns the Go value linked to a script object, or nil.
func (a *Adapter) internal(v goja.Value) any {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return nil
	}
	hidden := obj.GetSymbol(a.internalKey)
	if hidden == nil {
		return nil
	}
	return hidden.Export()
}

// captured captures script arguments for a loop callback.
func (a *Adapter) captured(args []goja.Value) []any {
	out := make([]any, len(args))
	for i, v := range args {
		out[i] = v
	}
	return out
}

// values converts loop callback arguments back to script values.
func (a *Adapter) values(args []any) []goja.Value {
	out := make([]goja.Value, len(args))
	for i, v := range args {
		out[i] = a.toValue(v)
	}
	return out
}
