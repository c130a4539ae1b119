package eventloop

import (
	"context"
	"runtime"
	"slices"
	"unsafe"
)

// WorkFunc runs on a background OS thread. It receives a private copy of
// the submitted buffer, which it may mutate freely, and the bridge's abort
// context, which is cancelled when the loop is closed.
type WorkFunc func(ctx context.Context, buf []byte) (Result, error)

// WorkCallback receives the result of a [WorkFunc] on the loop goroutine,
// followed by the arguments given to [Loop.QueueWork]. A failed work item
// passes a *[WorkerFailure] as result.
type WorkCallback func(result Result, args ...any) error

// workItem is a single submission to the worker bridge.
type workItem struct {
	ctx     context.Context
	work    WorkFunc
	done    WorkCallback
	buf     []byte
	scratch []byte
	args    []any
	span    span
	id      uint64
}

// span is the address range [start, end) of a buffer's elements.
type span struct {
	start, end uintptr
}

func spanOf(buf []byte) span {
	if len(buf) == 0 {
		return span{}
	}
	start := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	return span{start: start, end: start + uintptr(len(buf))}
}

func (s span) empty() bool { return s.start == s.end }

func (s span) overlaps(o span) bool {
	return !s.empty() && !o.empty() && s.start < o.end && o.start < s.end
}

// QueueWork hands buf to work on a dedicated background thread. When work
// returns, a completion is posted to the loop, which copies the worker's
// view of the buffer back into buf and then invokes cb(result, args...).
//
// Until then buf belongs to the bridge: the loop must not touch it, and
// submitting any slice that shares memory with it fails with an error
// wrapping [ErrInvalidArgument]. Writes made by work are never visible in buf before
// the completion callback runs. Ownership is released after cb returns.
//
// Submissions run concurrently (bounded by [WithMaxWorkers], if set), and
// their completions are delivered in the order they finish. There is no
// cancellation; a pending work item keeps the loop alive.
func (l *Loop) QueueWork(buf []byte, work WorkFunc, cb WorkCallback, args ...any) error {
	if err := l.checkLoopThread(); err != nil {
		return err
	}
	if work == nil {
		return invalidArgument("eventloop: work must be a function")
	}
	if cb == nil {
		return invalidArgument("eventloop: work callback must be a function")
	}

	// owned buffers are referenced by their items, so the addresses are stable
	bufSpan := spanOf(buf)
	for owner, s := range l.owned {
		if s.overlaps(bufSpan) {
			return invalidArgument("eventloop: buffer overlaps memory owned by pending work %d", owner)
		}
	}

	item := &workItem{
		ctx:     l.workCtx,
		work:    work,
		done:    cb,
		buf:     buf,
		scratch: slices.Clone(buf),
		args:    args,
		span:    bufSpan,
		id:      l.nextHandleID(),
	}
	l.startWork(item)
	return nil
}

// startWork registers item as outstanding and launches its thread.
func (l *Loop) startWork(item *workItem) {
	if !item.span.empty() {
		l.owned[item.id] = item.span
	}
	l.outstanding++
	l.workers.Add(1)

	l.logger.Debug().
		Uint64("work", item.id).
		Int("size", len(item.buf)).
		Log("eventloop: work queued")

	go l.runWork(item)
}

// runWork executes on the worker goroutine. The goroutine stays locked to
// its OS thread until it exits, which makes the runtime discard the thread
// rather than return it to the pool.
func (l *Loop) runWork(item *workItem) {
	defer l.workers.Done()
	runtime.LockOSThread()

	var (
		result Result
		err    error
	)
	if l.workSem != nil {
		err = l.workSem.Acquire(item.ctx, 1)
		if err == nil {
			defer l.workSem.Release(1)
		}
	}
	if err == nil {
		l.logger.Trace().
			Uint64("work", item.id).
			Int("thread", osThreadID()).
			Log("eventloop: work started")
		result, err = callWork(item)
	}
	if err != nil {
		result = &WorkerFailure{Cause: err}
	}

	l.post(func() error {
		return l.completeWork(item, result)
	})
}

// callWork invokes the work function, converting a panic into an error.
func callWork(item *workItem) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return item.work(item.ctx, item.scratch)
}

// completeWork runs on the loop goroutine: it publishes the worker's
// buffer, invokes the callback, then releases ownership.
func (l *Loop) completeWork(item *workItem, result Result) error {
	l.outstanding--
	copy(item.buf, item.scratch)
	defer func() {
		delete(l.owned, item.id)
	}()

	l.logger.Debug().
		Uint64("work", item.id).
		Log("eventloop: work completed")

	return item.done(result, item.args...)
}

// Promisify runs fn on the worker bridge and returns a promise settled with
// its outcome on the loop goroutine. ctx is cancelled when either the caller
// cancels it or the loop is closed.
func (l *Loop) Promisify(ctx context.Context, fn func(ctx context.Context) (Result, error)) *Promise {
	p, resolve, reject := l.NewPromise()
	if err := l.checkLoopThread(); err != nil {
		reject(err)
		return p
	}
	if fn == nil {
		reject(invalidArgument("eventloop: Promisify requires a function"))
		return p
	}
	if ctx == nil {
		ctx = context.Background()
	}

	workCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(l.workCtx, cancel)

	item := &workItem{
		ctx: workCtx,
		work: func(ctx context.Context, _ []byte) (Result, error) {
			return fn(ctx)
		},
		done: func(result Result, _ ...any) error {
			stop()
			cancel()
			if failure, ok := result.(*WorkerFailure); ok {
				reject(failure.Cause)
			} else {
				resolve(result)
			}
			return nil
		},
		id: l.nextHandleID(),
	}
	l.startWork(item)
	return p
}
