// Package events provides a Node.js style EventEmitter as a plain listener
// registry. Script bindings compose it by holding an [*Emitter] field rather
// than through prototype inheritance.
package events

import (
	"fmt"
	"slices"
	"sync"

	"github.com/joeycumines/logiface"
)

// DefaultMaxListeners is the per-event listener count above which an
// [Emitter] logs a possible leak warning.
const DefaultMaxListeners = 10

// ErrorEvent is the event name that fails [Emitter.Emit] when it has no
// listeners.
const ErrorEvent = "error"

// Listener is called with the arguments given to [Emitter.Emit]. A returned
// error stops the emit, and is returned from it.
type Listener func(args ...any) error

// ListenerID uniquely identifies an event listener for removal purposes.
// In Go, functions cannot be reliably compared for equality, so we generate
// a unique ID for each registered listener.
type ListenerID uint64

// listenerEntry pairs a listener with its unique ID for removal.
type listenerEntry struct { //nolint:govet // betteralign:ignore
	id   ListenerID
	fn   Listener
	key  any  // comparable identity, e.g. a script function object
	once bool // if true, remove before first call
}

// UnhandledErrorEvent is returned by [Emitter.Emit] for an "error" event
// that has no listener.
type UnhandledErrorEvent struct {
	Value any
}

// Error implements the error interface.
func (e *UnhandledErrorEvent) Error() string {
	return fmt.Sprintf("events: unhandled error event: %v", e.Value)
}

// Unwrap returns the emitted value if it is an error.
func (e *UnhandledErrorEvent) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Emitter is a listener registry keyed by event name.
//
// Listeners may be registered with a key, an arbitrary comparable value
// (typically the script function object) used to find them again for
// [Emitter.RemoveListener] and [Emitter.Listeners], mirroring Node's
// function identity semantics.
//
// Thread Safety: Emitter is safe for concurrent use, but listeners are
// called synchronously by Emit and are expected to run on the event loop
// goroutine.
type Emitter struct {
	logger       *logiface.Logger[logiface.Event]
	listeners    map[string][]listenerEntry
	warned       map[string]bool
	names        []string // registration order, for EventNames
	maxListeners int
	nextID       ListenerID
	mu           sync.Mutex
}

// Option configures an Emitter.
type Option interface {
	applyEmitter(*Emitter)
}

// optionImpl implements Option.
type optionImpl struct {
	applyEmitterFunc func(*Emitter)
}

func (o *optionImpl) applyEmitter(e *Emitter) {
	o.applyEmitterFunc(e)
}

// WithLogger sets the logger used for leak warnings.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(e *Emitter) {
		e.logger = logger
	}}
}

// New creates an Emitter with [DefaultMaxListeners].
func New(opts ...Option) *Emitter {
	e := &Emitter{
		listeners:    make(map[string][]listenerEntry),
		warned:       make(map[string]bool),
		maxListeners: DefaultMaxListeners,
		nextID:       1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyEmitter(e)
		}
	}
	return e
}

// AddListener appends a listener for event. Alias: [Emitter.On].
func (e *Emitter) AddListener(event string, fn Listener, key any) ListenerID {
	return e.add(event, fn, key, false, false)
}

// On appends a listener for event.
func (e *Emitter) On(event string, fn Listener, key any) ListenerID {
	return e.add(event, fn, key, false, false)
}

// Once appends a listener that is removed before its first call.
func (e *Emitter) Once(event string, fn Listener, key any) ListenerID {
	return e.add(event, fn, key, true, false)
}

// PrependListener adds a listener to the front of the list for event.
func (e *Emitter) PrependListener(event string, fn Listener, key any) ListenerID {
	return e.add(event, fn, key, false, true)
}

// PrependOnceListener adds a one-shot listener to the front of the list.
func (e *Emitter) PrependOnceListener(event string, fn Listener, key any) ListenerID {
	return e.add(event, fn, key, true, true)
}

func (e *Emitter) add(event string, fn Listener, key any, once, prepend bool) ListenerID {
	if fn == nil {
		return 0
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++

	entry := listenerEntry{
		id:   id,
		fn:   fn,
		key:  key,
		once: once,
	}

	entries, ok := e.listeners[event]
	if !ok {
		e.names = append(e.names, event)
	}
	if prepend {
		entries = append([]listenerEntry{entry}, entries...)
	} else {
		entries = append(entries, entry)
	}
	e.listeners[event] = entries

	count := len(entries)
	warn := e.maxListeners > 0 && count > e.maxListeners && !e.warned[event]
	if warn {
		e.warned[event] = true
	}
	limit := e.maxListeners
	e.mu.Unlock()

	if warn {
		e.logger.Warning().
			Str("event", event).
			Int("count", count).
			Int("max", limit).
			Log("events: possible EventEmitter memory leak detected")
	}

	return id
}

// RemoveListener removes the most recently added listener for event that
// was registered with key. Alias: off.
func (e *Emitter) RemoveListener(event string, key any) bool {
	if key == nil {
		return false
	}
	return e.remove(event, func(entry listenerEntry) bool { return entry.key == key })
}

// RemoveListenerByID removes a listener by the ID returned when it was added.
func (e *Emitter) RemoveListenerByID(event string, id ListenerID) bool {
	return e.remove(event, func(entry listenerEntry) bool { return entry.id == id })
}

func (e *Emitter) remove(event string, match func(listenerEntry) bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.listeners[event]
	for i := len(entries) - 1; i >= 0; i-- {
		if match(entries[i]) {
			e.setEntries(event, slices.Delete(slices.Clone(entries), i, i+1))
			return true
		}
	}
	return false
}

// setEntries replaces the list for event, dropping the event name when it
// becomes empty. CALLER MUST HOLD e.mu.
func (e *Emitter) setEntries(event string, entries []listenerEntry) {
	if len(entries) > 0 {
		e.listeners[event] = entries
		return
	}
	delete(e.listeners, event)
	delete(e.warned, event)
	e.names = slices.DeleteFunc(e.names, func(name string) bool { return name == event })
}

// RemoveAllListeners removes every listener for the given events, or for
// all events if none are given.
func (e *Emitter) RemoveAllListeners(events ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(events) == 0 {
		e.listeners = make(map[string][]listenerEntry)
		e.warned = make(map[string]bool)
		e.names = nil
		return
	}
	for _, event := range events {
		e.setEntries(event, nil)
	}
}

// Emit calls the listeners registered for event, in order, with args.
// It reports whether the event had listeners.
//
// Once listeners are removed before being called. If a listener returns an
// error, the remaining listeners are skipped and the error is returned.
// Emitting [ErrorEvent] without listeners returns an
// [*UnhandledErrorEvent] carrying the first argument.
func (e *Emitter) Emit(event string, args ...any) (bool, error) {
	e.mu.Lock()
	entries := e.listeners[event]
	if len(entries) == 0 {
		e.mu.Unlock()
		if event == ErrorEvent {
			var value any
			if len(args) > 0 {
				value = args[0]
			}
			return false, &UnhandledErrorEvent{Value: value}
		}
		return false, nil
	}

	// Get a copy of listeners to avoid holding lock during dispatch
	snapshot := slices.Clone(entries)
	if slices.ContainsFunc(snapshot, func(entry listenerEntry) bool { return entry.once }) {
		e.setEntries(event, slices.DeleteFunc(slices.Clone(entries), func(entry listenerEntry) bool { return entry.once }))
	}
	e.mu.Unlock()

	for _, entry := range snapshot {
		if err := entry.fn(args...); err != nil {
			return true, err
		}
	}
	return true, nil
}

// EventNames returns the events that have listeners, in the order they were
// first registered.
func (e *Emitter) EventNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.names)
}

// Listeners returns the keys of the listeners for event, in call order.
func (e *Emitter) Listeners(event string) []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]any, 0, len(e.listeners[event]))
	for _, entry := range e.listeners[event] {
		keys = append(keys, entry.key)
	}
	return keys
}

// ListenerCount returns the number of listeners for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// SetMaxListeners sets the leak warning threshold. Zero disables it.
func (e *Emitter) SetMaxListeners(n int) error {
	if n < 0 {
		return fmt.Errorf("events: max listeners must be a non-negative number, got %d", n)
	}
	e.mu.Lock()
	e.maxListeners = n
	e.mu.Unlock()
	return nil
}

// GetMaxListeners returns the leak warning threshold.
func (e *Emitter) GetMaxListeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxListeners
}
