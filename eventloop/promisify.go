package eventloop

import (
	"sync/atomic"
)

// Continuation is the trailing (error, value) callback of a callback-style
// function. A nil reason means success.
type Continuation func(reason Result, value Result)

// CallbackFunc is a callback-style function: it receives its arguments and
// a [Continuation] that it must eventually call. An error returned
// synchronously rejects the promise, unless the continuation already ran.
type CallbackFunc func(args []Result, done Continuation) error

// PromisifyCallback adapts fn into a promise-returning function, in the
// manner of Node's util.promisify.
//
// The promise settles from the first invocation of the continuation. Any
// further invocation is ignored and logged as a warning, since it indicates
// a bug in fn. The continuation may be called from any goroutine.
func (l *Loop) PromisifyCallback(fn CallbackFunc) func(args ...Result) *Promise {
	return func(args ...Result) *Promise {
		p, resolve, reject := l.NewPromise()
		if fn == nil {
			reject(invalidArgument("eventloop: promisify requires a function"))
			return p
		}

		var calls atomic.Int32
		done := func(reason Result, value Result) {
			if n := calls.Add(1); n > 1 {
				l.logger.Warning().
					Int("calls", int(n)).
					Log("eventloop: promisified continuation called more than once")
				return
			}
			if reason != nil {
				reject(reason)
				return
			}
			resolve(value)
		}

		if err := l.safeExecute(func() error { return fn(args, done) }); err != nil && calls.CompareAndSwap(0, 1) {
			reject(reasonOf(err))
		}
		return p
	}
}
