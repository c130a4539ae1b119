package eventloop

// Result represents the value of a resolved or rejected promise.
// It can be any type, similar to JavaScript's dynamic typing.
// For fulfilled promises, this holds the success value.
// For rejected promises, this typically holds an error or rejection reason.
type Result = any

// PromiseState represents the lifecycle state of a [Promise].
// A promise starts in [Pending] state and transitions to either
// [Fulfilled] or [Rejected]. State transitions are irreversible.
type PromiseState int

const (
	// Pending indicates the promise has not settled yet.
	Pending PromiseState = iota

	// Fulfilled indicates the promise completed successfully with a value.
	Fulfilled

	// Rejected indicates the promise failed with a reason.
	Rejected
)

// String returns the state name as used by Promise.allSettled.
func (s PromiseState) String() string {
	switch s {
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// ResolveFunc is the function used to fulfill a promise with a value.
// Calling resolve on an already-settled promise has no effect.
type ResolveFunc func(Result)

// RejectFunc is the function used to reject a promise with a reason.
// Calling reject on an already-settled promise has no effect.
type RejectFunc func(Result)

// Handler reacts to a settled promise. Returning a non-nil error rejects the
// derived promise with that error, otherwise it is resolved with the
// returned value (which may itself be a promise or [Thenable]).
type Handler func(Result) (Result, error)

// Thenable is a foreign promise-like value. Resolving a [Promise] with a
// Thenable calls Subscribe from a microtask and adopts whichever outcome it
// reports first.
type Thenable interface {
	Subscribe(resolve ResolveFunc, reject RejectFunc) error
}

// Promise is a Promise/A+ style promise whose reactions always run as
// microtasks on its [Loop].
//
// Thread Safety: a Promise is owned by the loop goroutine. The ResolveFunc
// and RejectFunc returned by [Loop.NewPromise] may be called from any
// goroutine; off-loop calls are forwarded with [Loop.Submit].
type Promise struct {
	result    Result
	loop      *Loop
	reactions []reaction
	state     PromiseState
	handled   bool
	tracked   bool
}

// reaction represents a handler pair attached with Then.
type reaction struct {
	onFulfilled Handler
	onRejected  Handler
	target      *Promise
}

// rejection carries a reason through a Handler's error return, so that
// pass-through handlers can re-reject with a non-error reason.
type rejection struct {
	reason Result
}

func (r rejection) Error() string { return "eventloop: rejected" }

// RejectWith returns an error that, when returned from a [Handler], rejects the
// derived promise with reason exactly (rather than with the error itself).
func RejectWith(reason Result) error {
	return rejection{reason: reason}
}

// NewPromise creates a pending promise along with its resolving functions.
// Only the first call to either function has an effect.
func (l *Loop) NewPromise() (*Promise, ResolveFunc, RejectFunc) {
	p := &Promise{loop: l}
	resolve, reject := p.resolvingFunctions()
	return p, resolve, reject
}

// NewPromiseWithExecutor creates a promise and runs executor synchronously
// with its resolving functions. An error returned by executor rejects the
// promise, unless it had already been resolved.
func (l *Loop) NewPromiseWithExecutor(executor func(resolve ResolveFunc, reject RejectFunc) error) *Promise {
	p, resolve, reject := l.NewPromise()
	if executor == nil {
		reject(invalidArgument("eventloop: promise executor must be a function"))
		return p
	}
	if err := l.safeExecute(func() error { return executor(resolve, reject) }); err != nil {
		reject(reasonOf(err))
	}
	return p
}

// Resolve returns a promise resolved with value. A *Promise is returned
// unchanged.
func (l *Loop) Resolve(value Result) *Promise {
	if p, ok := value.(*Promise); ok && p.loop == l {
		return p
	}
	p, resolve, _ := l.NewPromise()
	resolve(value)
	return p
}

// Reject returns a promise rejected with reason.
func (l *Loop) Reject(reason Result) *Promise {
	p, _, reject := l.NewPromise()
	reject(reason)
	return p
}

// resolvingFunctions returns a linked resolve/reject pair sharing a single
// "already resolved" flag.
func (p *Promise) resolvingFunctions() (ResolveFunc, RejectFunc) {
	var done bool
	l := p.loop
	resolve := func(value Result) {
		if l.offLoop() {
			_ = l.Submit(func() error {
				p.resolveOnce(&done, value)
				return nil
			})
			return
		}
		p.resolveOnce(&done, value)
	}
	reject := func(reason Result) {
		if l.offLoop() {
			_ = l.Submit(func() error {
				p.rejectOnce(&done, reason)
				return nil
			})
			return
		}
		p.rejectOnce(&done, reason)
	}
	return resolve, reject
}

func (p *Promise) resolveOnce(done *bool, value Result) {
	if *done {
		return
	}
	*done = true
	p.resolve(value)
}

func (p *Promise) rejectOnce(done *bool, reason Result) {
	if *done {
		return
	}
	*done = true
	p.reject(reason)
}

// State returns the current [PromiseState] of this promise.
func (p *Promise) State() PromiseState {
	return p.state
}

// Value returns the fulfillment value, or nil unless fulfilled.
func (p *Promise) Value() Result {
	if p.state == Fulfilled {
		return p.result
	}
	return nil
}

// Reason returns the rejection reason, or nil unless rejected.
func (p *Promise) Reason() Result {
	if p.state == Rejected {
		return p.result
	}
	return nil
}

// resolve settles p with value, adopting the state of promises and
// thenables.
func (p *Promise) resolve(value Result) {
	if p.state != Pending {
		return
	}

	switch v := value.(type) {
	case *Promise:
		if v == p {
			p.reject(&TypeError{Message: "Chaining cycle detected for promise"})
			return
		}
		v.addReaction(reaction{target: p})
		return
	case Thenable:
		l := p.loop
		l.microtasks.Push(func() error {
			resolve, reject := p.resolvingFunctions()
			if err := v.Subscribe(resolve, reject); err != nil {
				reject(reasonOf(err))
			}
			return nil
		})
		return
	}

	p.settle(Fulfilled, value)
}

// reject transitions the promise to rejected state if it's still pending.
func (p *Promise) reject(reason Result) {
	if p.state != Pending {
		return
	}
	p.settle(Rejected, reason)
	if !p.handled && !p.tracked {
		p.tracked = true
		p.loop.rejections = append(p.loop.rejections, p)
	}
}

func (p *Promise) settle(state PromiseState, result Result) {
	p.state = state
	p.result = result
	reactions := p.reactions
	p.reactions = nil
	for _, r := range reactions {
		p.scheduleReaction(r)
	}
}

// addReaction attaches a reaction, scheduling it immediately if p has
// already settled. Any attached reaction counts as handling a rejection,
// since the derived promise carries it onwards.
func (p *Promise) addReaction(r reaction) {
	p.handled = true
	if p.state != Pending {
		p.scheduleReaction(r)
		return
	}
	p.reactions = append(p.reactions, r)
}

func (p *Promise) scheduleReaction(r reaction) {
	state, result := p.state, p.result
	p.loop.microtasks.Push(func() error {
		executeReaction(r, state, result)
		return nil
	})
}

// executeReaction runs a single reaction with the given state and result.
// Handles nil handlers (pass-through), panic recovery, and result propagation.
func executeReaction(r reaction, state PromiseState, result Result) {
	fn := r.onFulfilled
	if state == Rejected {
		fn = r.onRejected
	}

	if fn == nil {
		if r.target == nil {
			return
		}
		if state == Fulfilled {
			r.target.resolve(result)
		} else {
			r.target.reject(result)
		}
		return
	}

	var (
		res Result
		err error
	)
	func() {
		defer func() {
			if v := recover(); v != nil {
				err = PanicError{Value: v}
			}
		}()
		res, err = fn(result)
	}()

	if r.target == nil {
		return
	}
	if err != nil {
		r.target.reject(reasonOf(err))
		return
	}
	r.target.resolve(res)
}

// reasonOf unwraps a [RejectWith] error.
func reasonOf(err error) Result {
	if r, ok := err.(rejection); ok {
		return r.reason
	}
	return err
}

// Then adds handlers to be called when the promise settles.
// Returns a new [Promise] that resolves with the result of the handler.
//
// Handlers are always executed as microtasks, never synchronously within
// Then, even if p has already settled. A nil handler passes the settlement
// through to the returned promise.
func (p *Promise) Then(onFulfilled, onRejected Handler) *Promise {
	child := &Promise{loop: p.loop}
	p.addReaction(reaction{
		onFulfilled: onFulfilled,
		onRejected:  onRejected,
		target:      child,
	})
	return child
}

// Catch is equivalent to Then(nil, onRejected).
func (p *Promise) Catch(onRejected Handler) *Promise {
	return p.Then(nil, onRejected)
}

// Finally runs onFinally however p settles. The returned promise keeps p's
// settlement, unless onFinally returns an error, which rejects it instead.
func (p *Promise) Finally(onFinally func() error) *Promise {
	if onFinally == nil {
		onFinally = func() error { return nil }
	}
	return p.Then(
		func(v Result) (Result, error) {
			if err := onFinally(); err != nil {
				return nil, err
			}
			return v, nil
		},
		func(r Result) (Result, error) {
			if err := onFinally(); err != nil {
				return nil, err
			}
			return nil, RejectWith(r)
		},
	)
}

// checkUnhandledRejections reports promises that were rejected and are
// still without a handler once the microtask queue is empty.
func (l *Loop) checkUnhandledRejections() error {
	if len(l.rejections) == 0 {
		return nil
	}
	pending := l.rejections
	l.rejections = nil
	for _, p := range pending {
		p.tracked = false
		if p.handled {
			continue
		}
		// don't report it again
		p.handled = true
		if err := l.handleError(&UnhandledRejectionError{Reason: p.result}); err != nil {
			return err
		}
	}
	return nil
}

// All returns a promise fulfilled with the values of promises in index
// order, or rejected with the first rejection.
func (l *Loop) All(promises []*Promise) *Promise {
	result, resolve, reject := l.NewPromise()

	if len(promises) == 0 {
		resolve(make([]Result, 0))
		return result
	}

	values := make([]Result, len(promises))
	remaining := len(promises)
	for i, p := range promises {
		idx := i
		p.Then(
			func(v Result) (Result, error) {
				values[idx] = v
				remaining--
				if remaining == 0 {
					resolve(values)
				}
				return nil, nil
			},
			func(r Result) (Result, error) {
				reject(r)
				return nil, nil
			},
		)
	}

	return result
}

// Race returns a promise that settles like the first of promises to
// settle. If promises is empty the returned promise never settles.
func (l *Loop) Race(promises []*Promise) *Promise {
	result, resolve, reject := l.NewPromise()

	for _, p := range promises {
		p.Then(
			func(v Result) (Result, error) {
				resolve(v)
				return nil, nil
			},
			func(r Result) (Result, error) {
				reject(r)
				return nil, nil
			},
		)
	}

	return result
}

// AllSettled returns a promise that is fulfilled, once every input has
// settled, with one outcome per input:
//
//	map[string]Result{"status": "fulfilled", "value": <value>}
//	map[string]Result{"status": "rejected", "reason": <reason>}
func (l *Loop) AllSettled(promises []*Promise) *Promise {
	result, resolve, _ := l.NewPromise()

	if len(promises) == 0 {
		resolve(make([]Result, 0))
		return result
	}

	outcomes := make([]Result, len(promises))
	remaining := len(promises)
	record := func(idx int, outcome map[string]Result) {
		outcomes[idx] = outcome
		remaining--
		if remaining == 0 {
			resolve(outcomes)
		}
	}
	for i, p := range promises {
		idx := i
		p.Then(
			func(v Result) (Result, error) {
				record(idx, map[string]Result{"status": Fulfilled.String(), "value": v})
				return nil, nil
			},
			func(r Result) (Result, error) {
				record(idx, map[string]Result{"status": Rejected.String(), "reason": r})
				return nil, nil
			},
		)
	}

	return result
}
