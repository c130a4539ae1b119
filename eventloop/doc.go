// Package eventloop provides the single-threaded scheduler at the heart of
// the runtime: timers, immediates, next-tick microtasks, promises, and a
// worker bridge that runs blocking work on background OS threads.
//
// # Architecture
//
// A [Loop] owns four task classes. Microtasks ([Loop.NextTick],
// [Loop.QueueMicrotask] and [Promise] reactions) share a single FIFO queue.
// Macrotasks are timers ([Loop.SetTimeout], [Loop.SetInterval]), immediates
// ([Loop.SetImmediate]) and completions ([Loop.QueueWork] results and
// [Loop.Submit] tasks).
//
// One tick drains the microtask queue to exhaustion and then runs exactly
// one macrotask, chosen in this order:
//  1. the earliest expired timer (ties in arming order)
//  2. the oldest immediate of the current generation
//  3. the oldest completion
//
// An expired timer and a ready immediate are ordered by when they were
// queued: an immediate queued before the timer was armed runs first.
// [Loop.TickCount] counts executed macrotasks.
//
// # Liveness
//
// [Loop.Run] returns once no referenced timer, referenced immediate,
// outstanding work item or posted completion remains. [Timer.Unref] keeps a
// timer from holding the loop open without cancelling it.
//
// # Thread Safety
//
// While Run is active, only the loop goroutine may schedule work or touch
// promises; other goroutines get [ErrNotLoopThread]. [Loop.Submit],
// [Loop.Close], [Loop.State] and [Loop.TickCount] are safe from any
// goroutine, as are the resolve and reject functions of a promise.
//
// # Errors
//
// Argument validation failures are [*TypeError] values wrapping
// [ErrInvalidArgument]. Clearing a handle that is not pending returns a
// [*RangeError] wrapping [ErrUnknownHandle]. Errors and panics raised by
// callbacks, and unhandled promise rejections, are passed to the
// [ErrorHandler] configured with [WithErrorHandler]. By default they stop
// Run, which returns them.
//
// # Usage
//
//	loop, err := eventloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	_, _ = loop.SetTimeout(func(args ...any) error {
//	    fmt.Println("Hello after 100ms")
//	    return nil
//	}, 100*time.Millisecond)
//
//	if err := loop.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package eventloop
