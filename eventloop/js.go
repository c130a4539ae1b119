package eventloop

import (
	"container/heap"
	"time"
)

// minIntervalPeriod keeps a zero-period interval from starving the loop.
const minIntervalPeriod = time.Millisecond

// TimerKind distinguishes one-shot timers from intervals.
type TimerKind int

const (
	// TimeoutKind fires once, see [Loop.SetTimeout].
	TimeoutKind TimerKind = iota
	// IntervalKind re-arms after each firing, see [Loop.SetInterval].
	IntervalKind
)

// String returns the name used in error messages.
func (k TimerKind) String() string {
	if k == IntervalKind {
		return "interval"
	}
	return "timeout"
}

// Timer is the handle returned by [Loop.SetTimeout] and [Loop.SetInterval].
//
// Handle methods must be called on the loop goroutine (or while the loop is
// not running).
type Timer struct {
	expiry   time.Time
	loop     *Loop
	callback Callback
	args     []any
	delay    time.Duration
	id       uint64
	seq      uint64
	index    int // position in the heap, -1 when not pending
	kind     TimerKind
	ref      bool
}

// ID returns the numeric id of the timer. Ids are never reused by a loop,
// and zero is never issued.
func (t *Timer) ID() uint64 { return t.id }

// Kind returns whether the timer is a timeout or an interval.
func (t *Timer) Kind() TimerKind { return t.kind }

// Pending reports whether the timer is still armed.
func (t *Timer) Pending() bool { return t.index >= 0 }

// HasRef reports whether the timer keeps the loop alive.
func (t *Timer) HasRef() bool { return t.ref }

// Ref makes a pending timer keep the loop alive. Calling it on a referenced
// timer does nothing.
func (t *Timer) Ref() *Timer {
	if !t.ref {
		t.ref = true
		if t.Pending() {
			t.loop.refTimers++
		}
	}
	return t
}

// Unref stops a pending timer from keeping the loop alive, without
// cancelling it. Calling it on an unreferenced timer does nothing.
func (t *Timer) Unref() *Timer {
	if t.ref {
		t.ref = false
		if t.Pending() {
			t.loop.refTimers--
		}
	}
	return t
}

// Refresh restarts a pending timer's countdown from the current loop time,
// using its original delay.
func (t *Timer) Refresh() *Timer {
	if t.Pending() {
		l := t.loop
		t.expiry = l.CurrentTickTime().Add(t.delay)
		t.seq = l.nextSeq()
		heap.Fix(&l.timers, t.index)
	}
	return t
}

// Immediate is the handle returned by [Loop.SetImmediate].
type Immediate struct {
	loop     *Loop
	callback Callback
	args     []any
	id       uint64
	seq      uint64
	cleared  bool
	done     bool
	ref      bool
}

// ID returns the numeric id of the immediate.
func (im *Immediate) ID() uint64 { return im.id }

// Pending reports whether the immediate is still queued.
func (im *Immediate) Pending() bool { return !im.cleared && !im.done }

// HasRef reports whether the immediate keeps the loop alive.
func (im *Immediate) HasRef() bool { return im.ref }

// Ref makes a queued immediate keep the loop alive.
func (im *Immediate) Ref() *Immediate {
	if !im.ref {
		im.ref = true
		if im.Pending() {
			im.loop.refImmediates++
		}
	}
	return im
}

// Unref stops a queued immediate from keeping the loop alive.
func (im *Immediate) Unref() *Immediate {
	if im.ref {
		im.ref = false
		if im.Pending() {
			im.loop.refImmediates--
		}
	}
	return im
}

// SetTimeout arms a one-shot timer that calls cb with args once delay has
// elapsed relative to loop time. Timers fire in expiry order, ties in arming
// order.
func (l *Loop) SetTimeout(cb Callback, delay time.Duration, args ...any) (*Timer, error) {
	return l.armTimer(TimeoutKind, cb, delay, args)
}

// SetInterval arms a timer that calls cb with args every delay until it is
// cleared. The next expiry is computed from the previous expiry, not from
// when the callback finished, and the interval re-arms even if cb fails.
func (l *Loop) SetInterval(cb Callback, delay time.Duration, args ...any) (*Timer, error) {
	if delay < minIntervalPeriod && delay >= 0 {
		delay = minIntervalPeriod
	}
	return l.armTimer(IntervalKind, cb, delay, args)
}

func (l *Loop) armTimer(kind TimerKind, cb Callback, delay time.Duration, args []any) (*Timer, error) {
	if err := l.checkLoopThread(); err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, invalidArgument("eventloop: %s callback must be a function", kind)
	}
	if delay < 0 {
		return nil, invalidArgument("eventloop: %s delay must not be negative, got %s", kind, delay)
	}

	t := &Timer{
		loop:     l,
		callback: cb,
		args:     args,
		delay:    delay,
		id:       l.nextHandleID(),
		seq:      l.nextSeq(),
		kind:     kind,
		ref:      true,
		expiry:   l.CurrentTickTime().Add(delay),
	}
	heap.Push(&l.timers, t)
	l.timerIndex[t.id] = t
	l.refTimers++

	l.logger.Trace().
		Uint64("timer", t.id).
		Str("kind", kind.String()).
		Dur("delay", delay).
		Log("eventloop: timer armed")

	return t, nil
}

// TimerByID returns the pending timer with the given id, or nil.
func (l *Loop) TimerByID(id uint64) *Timer {
	return l.timerIndex[id]
}

// ClearTimeout cancels a pending timeout. Clearing a timer that already
// fired, was already cleared, or belongs to another loop fails with an
// error wrapping [ErrUnknownHandle]. Clearing an interval fails with an
// error wrapping [ErrInvalidArgument].
func (l *Loop) ClearTimeout(t *Timer) error {
	return l.clearTimer(TimeoutKind, t)
}

// ClearInterval cancels a pending interval, see [Loop.ClearTimeout].
func (l *Loop) ClearInterval(t *Timer) error {
	return l.clearTimer(IntervalKind, t)
}

// ClearTimer cancels the pending timer with the given id, whatever its kind.
func (l *Loop) ClearTimer(id uint64) error {
	if err := l.checkLoopThread(); err != nil {
		return err
	}
	t := l.timerIndex[id]
	if t == nil {
		return unknownHandle("eventloop: timer %d is not pending", id)
	}
	return l.clearTimer(t.kind, t)
}

func (l *Loop) clearTimer(kind TimerKind, t *Timer) error {
	if err := l.checkLoopThread(); err != nil {
		return err
	}
	if t == nil {
		return invalidArgument("eventloop: clear %s requires a timer handle", kind)
	}
	if t.loop != l || !t.Pending() {
		return unknownHandle("eventloop: %s %d is not pending", t.kind, t.id)
	}
	if t.kind != kind {
		return invalidArgument("eventloop: cannot clear %s %d as a %s", t.kind, t.id, kind)
	}

	heap.Remove(&l.timers, t.index)
	l.retireTimer(t)

	l.logger.Trace().
		Uint64("timer", t.id).
		Log("eventloop: timer cleared")

	return nil
}

// retireTimer drops bookkeeping for a timer that left the heap for good.
func (l *Loop) retireTimer(t *Timer) {
	delete(l.timerIndex, t.id)
	if t.ref {
		l.refTimers--
	}
}

// readyTimer returns the earliest timer if it has expired.
func (l *Loop) readyTimer() *Timer {
	if len(l.timers) == 0 {
		return nil
	}
	if t := l.timers[0]; !t.expiry.After(l.now) {
		return t
	}
	return nil
}

// fireTimer takes the heap head and returns the task that invokes it.
// Intervals are re-armed before their callback runs, so the callback may
// clear them.
func (l *Loop) fireTimer(t *Timer) func() error {
	if t.kind == IntervalKind {
		next := t.expiry.Add(t.delay)
		if next.Before(l.now) {
			next = l.now
		}
		t.expiry = next
		t.seq = l.nextSeq()
		heap.Fix(&l.timers, t.index)
	} else {
		heap.Pop(&l.timers)
		l.retireTimer(t)
	}
	return func() error {
		return t.callback(t.args...)
	}
}

// SetImmediate queues cb to run with args after the current immediate
// generation, i.e. an immediate queued from inside an immediate callback
// never runs in the same generation.
func (l *Loop) SetImmediate(cb Callback, args ...any) (*Immediate, error) {
	if err := l.checkLoopThread(); err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, invalidArgument("eventloop: immediate callback must be a function")
	}

	im := &Immediate{
		loop:     l,
		callback: cb,
		args:     args,
		id:       l.nextHandleID(),
		seq:      l.nextSeq(),
		ref:      true,
	}
	l.nextImmediates.Push(im)
	l.refImmediates++
	return im, nil
}

// ClearImmediate cancels a queued immediate. Clearing one that already ran
// or was already cleared fails with an error wrapping [ErrUnknownHandle].
func (l *Loop) ClearImmediate(im *Immediate) error {
	if err := l.checkLoopThread(); err != nil {
		return err
	}
	if im == nil {
		return invalidArgument("eventloop: clearImmediate requires an immediate handle")
	}
	if im.loop != l || !im.Pending() {
		return unknownHandle("eventloop: immediate %d is not pending", im.id)
	}
	im.cleared = true
	if im.ref {
		l.refImmediates--
	}
	return nil
}

// readyImmediate returns the head of the current generation, promoting the
// next generation once the current one is exhausted. Cleared entries are
// discarded here.
func (l *Loop) readyImmediate() *Immediate {
	for {
		if l.immediates.Length() == 0 {
			if l.nextImmediates.Length() == 0 {
				return nil
			}
			l.immediates, l.nextImmediates = l.nextImmediates, l.immediates
		}
		im, _ := l.immediates.Peek()
		if !im.cleared {
			return im
		}
		l.immediates.Pop()
	}
}

// fireImmediate pops the current head, see readyImmediate.
func (l *Loop) fireImmediate() func() error {
	im, _ := l.immediates.Pop()
	im.done = true
	if im.ref {
		l.refImmediates--
	}
	return func() error {
		return im.callback(im.args...)
	}
}

// NextTick queues cb on the microtask queue. Next-tick callbacks and
// promise reactions share a single FIFO queue.
func (l *Loop) NextTick(cb Callback, args ...any) error {
	if err := l.checkLoopThread(); err != nil {
		return err
	}
	if cb == nil {
		return invalidArgument("eventloop: nextTick callback must be a function")
	}
	l.microtasks.Push(func() error {
		return cb(args...)
	})
	return nil
}

// QueueMicrotask queues fn on the microtask queue.
func (l *Loop) QueueMicrotask(fn func() error) error {
	if err := l.checkLoopThread(); err != nil {
		return err
	}
	if fn == nil {
		return invalidArgument("eventloop: queueMicrotask callback must be a function")
	}
	l.microtasks.Push(fn)
	return nil
}
