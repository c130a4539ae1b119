package eventloop

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sync/semaphore"
)

// Callback is a script-visible callback, invoked with the arguments that
// were captured when it was scheduled.
type Callback func(args ...any) error

// Loop is a single-threaded event loop with four task classes: microtasks,
// timers, immediates and completions (worker results and [Loop.Submit]
// tasks).
//
// Each tick drains the microtask queue to exhaustion, then runs exactly one
// macrotask. Macrotasks are selected in priority order: an expired timer,
// the head of the current immediate generation, then the oldest completion.
// An expired timer and a ready immediate are ordered by arming sequence, so
// an immediate queued before the timer was armed runs first.
//
// Everything except [Loop.Submit], [Loop.Close], [Loop.State] and
// [Loop.TickCount] is owned by the loop goroutine while Run is active.
// Before Run is called (or after it returns) any single goroutine may set up
// work.
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	logger       *logiface.Logger[logiface.Event]
	errorHandler ErrorHandler

	// State machine (cache-line padded internally)
	state *FastState

	// Loop-owned queues
	microtasks     chunkedQueue[func() error]
	immediates     chunkedQueue[*Immediate] // current generation
	nextImmediates chunkedQueue[*Immediate]
	timers         timerHeap
	timerIndex     map[uint64]*Timer
	rejections     []*Promise

	// Liveness counters (loop-owned)
	refTimers     int
	refImmediates int
	outstanding   int

	// Completion ingress (any goroutine)
	ingressMu   sync.Mutex
	completions chunkedQueue[func() error]
	wake        chan struct{}

	// Worker bridge
	workers    sync.WaitGroup
	workCtx    context.Context
	workCancel context.CancelFunc
	workSem    *semaphore.Weighted
	owned      map[uint64]span

	// Timing
	now time.Time

	// Goroutine tracking
	loopGoroutineID atomic.Uint64
	tickCount       atomic.Uint64

	nextID uint64
	seq    uint64

	// Loop ID
	id uint64

	closeOnce sync.Once
}

var loopIDCounter atomic.Uint64

// New creates a new event loop.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	loop := &Loop{
		id:           loopIDCounter.Add(1),
		logger:       cfg.logger,
		errorHandler: cfg.errorHandler,
		state:        NewFastState(),
		timers:       make(timerHeap, 0),
		timerIndex:   make(map[uint64]*Timer),
		wake:         make(chan struct{}, 1),
		owned:        make(map[uint64]span),
	}
	loop.workCtx, loop.workCancel = context.WithCancel(context.Background())
	if cfg.maxWorkers > 0 {
		loop.workSem = semaphore.NewWeighted(cfg.maxWorkers)
	}

	return loop, nil
}

// ID returns the process-unique identifier of the loop.
func (l *Loop) ID() uint64 {
	return l.id
}

// Logger returns the logger the loop was configured with, which may be nil.
func (l *Loop) Logger() *logiface.Logger[logiface.Event] {
	return l.logger
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// TickCount returns the number of macrotasks executed so far. It is safe to
// call from any goroutine, and never decreases.
func (l *Loop) TickCount() uint64 {
	return l.tickCount.Load()
}

// CurrentTickTime returns the time cached at the start of the current
// macrotask selection, or the wall clock if the loop has not ticked yet.
func (l *Loop) CurrentTickTime() time.Time {
	if l.now.IsZero() {
		return time.Now()
	}
	return l.now
}

// Run drives the loop until no live work remains, ctx is cancelled, the
// error handler returns an error, or [Loop.Close] is called.
//
// Run must not be called from a loop callback. It returns nil when the loop
// drains naturally or is closed, after which Run may be called again (unless
// closed) to process further work.
func (l *Loop) Run(ctx context.Context) error {
	if l.isLoopThread() {
		return ErrReentrantRun
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.IsTerminal() {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	l.logger.Debug().
		Uint64("loop", l.id).
		Log("eventloop: run started")

	err := l.run(ctx)
	// timers armed between runs must not see a stale tick time
	l.now = time.Time{}

	if !l.state.TryTransition(StateRunning, StateAwake) {
		l.terminate()
	}

	l.logger.Debug().
		Uint64("loop", l.id).
		Uint64("ticks", l.TickCount()).
		Err(err).
		Log("eventloop: run stopped")

	return err
}

// run is the main loop body.
func (l *Loop) run(ctx context.Context) error {
	for {
		if err := l.drainMicrotasks(); err != nil {
			return err
		}

		if l.state.IsTerminal() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		ran, err := l.tick()
		if err != nil {
			return err
		}
		if ran {
			continue
		}

		if !l.alive() {
			return nil
		}

		if err := l.sleep(ctx); err != nil {
			return err
		}
	}
}

// tick selects and runs a single macrotask. It reports false if nothing was
// ready.
func (l *Loop) tick() (bool, error) {
	l.now = time.Now()

	t := l.readyTimer()
	im := l.readyImmediate()

	var task func() error
	switch {
	case t != nil && (im == nil || t.seq < im.seq):
		task = l.fireTimer(t)
	case im != nil:
		task = l.fireImmediate()
	default:
		l.ingressMu.Lock()
		task, _ = l.completions.Pop()
		l.ingressMu.Unlock()
		if task == nil {
			return false, nil
		}
	}

	l.tickCount.Add(1)

	if err := l.safeExecute(task); err != nil {
		if err := l.handleError(err); err != nil {
			return true, err
		}
	}
	return true, nil
}

// drainMicrotasks runs microtasks until the queue is empty, including
// microtasks queued while draining, then reports unhandled rejections. It
// stops early once the loop is closed.
func (l *Loop) drainMicrotasks() error {
	for {
		if l.state.IsTerminal() {
			return nil
		}
		fn, ok := l.microtasks.Pop()
		if !ok {
			break
		}
		if err := l.safeExecute(fn); err != nil {
			if err := l.handleError(err); err != nil {
				return err
			}
		}
	}
	return l.checkUnhandledRejections()
}

// alive reports whether any work remains that should keep Run going.
func (l *Loop) alive() bool {
	if l.refTimers > 0 || l.refImmediates > 0 || l.outstanding > 0 || l.microtasks.Length() > 0 {
		return true
	}
	l.ingressMu.Lock()
	defer l.ingressMu.Unlock()
	return l.completions.Length() > 0
}

// sleep blocks until the next timer is due, a completion is posted, or ctx
// is done.
func (l *Loop) sleep(ctx context.Context) error {
	var due <-chan time.Time
	if len(l.timers) > 0 {
		d := time.Until(l.timers[0].expiry)
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		due = t.C
	}

	if !l.state.TryTransition(StateRunning, StateSleeping) {
		return nil
	}
	defer l.state.TryTransition(StateSleeping, StateRunning)

	select {
	case <-l.wake:
	case <-due:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Submit queues fn as a macrotask, in the same class as worker completions.
// It is safe to call from any goroutine. A pending submitted task keeps the
// loop alive.
func (l *Loop) Submit(fn func() error) error {
	if fn == nil {
		return invalidArgument("eventloop: Submit requires a function")
	}
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}
	l.post(fn)
	return nil
}

// post pushes a completion and wakes the loop.
func (l *Loop) post(fn func() error) {
	l.ingressMu.Lock()
	l.completions.Push(fn)
	l.ingressMu.Unlock()
	l.wakeup()
}

func (l *Loop) wakeup() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Close terminates the loop. Pending timers, immediates and microtasks are
// discarded, the context passed to in-flight work is cancelled, and Close
// waits for worker threads to finish unless Run is active, in which case Run
// performs that wait before returning.
func (l *Loop) Close() error {
	for {
		current := l.state.Load()
		if current == StateTerminated || current == StateTerminating {
			return ErrLoopTerminated
		}
		if l.state.TryTransition(current, StateTerminating) {
			if current == StateAwake {
				l.terminate()
			} else {
				l.wakeup()
			}
			return nil
		}
	}
}

// terminate aborts and joins workers, then marks the loop terminated.
func (l *Loop) terminate() {
	l.closeOnce.Do(func() {
		l.workCancel()
		l.workers.Wait()
		l.state.Store(StateTerminated)
		l.logger.Debug().
			Uint64("loop", l.id).
			Log("eventloop: terminated")
	})
}

// handleError routes a callback error through the configured handler.
func (l *Loop) handleError(err error) error {
	l.logger.Err().
		Uint64("loop", l.id).
		Uint64("tick", l.TickCount()).
		Err(err).
		Log("eventloop: callback failed")
	if l.errorHandler == nil {
		return err
	}
	return l.errorHandler(err)
}

// safeExecute executes a task, converting a panic into a [PanicError].
func (l *Loop) safeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return fn()
}

// checkLoopThread guards loop-owned state.
func (l *Loop) checkLoopThread() error {
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}
	if l.state.IsRunning() && !l.isLoopThread() {
		return ErrNotLoopThread
	}
	return nil
}

// offLoop reports whether the caller must hop onto the loop goroutine.
func (l *Loop) offLoop() bool {
	return l.state.IsRunning() && !l.isLoopThread()
}

func (l *Loop) nextHandleID() uint64 {
	l.nextID++
	return l.nextID
}

func (l *Loop) nextSeq() uint64 {
	l.seq++
	return l.seq
}

// isLoopThread checks if we're on the loop goroutine.
func (l *Loop) isLoopThread() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// timerHeap is a min-heap of timers ordered by (expiry, seq).
type timerHeap []*Timer

// Implement heap.Interface for timerHeap
func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].expiry.Equal(h[j].expiry) {
		return h[i].seq < h[j].seq
	}
	return h[i].expiry.Before(h[j].expiry)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*h = old[:n-1]
	return x
}

var _ heap.Interface = (*timerHeap)(nil)
