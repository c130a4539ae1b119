package eventloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("eventloop: cannot call Run() from within the loop")

	// ErrNotLoopThread is returned when a loop-owned structure is touched from
	// another goroutine while the loop is running.
	ErrNotLoopThread = errors.New("eventloop: called from outside the loop goroutine")

	// ErrInvalidArgument is the cause of every [TypeError] produced by
	// argument validation in a scheduling primitive.
	ErrInvalidArgument = errors.New("eventloop: invalid argument")

	// ErrUnknownHandle is the cause of every [RangeError] produced when
	// clearing a handle that is not pending.
	ErrUnknownHandle = errors.New("eventloop: unknown handle")
)

// TypeError represents a type error, similar to JavaScript's TypeError.
// This is used when a value is not of the expected type.
type TypeError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	if e.Message == "" {
		return "type error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *TypeError) Unwrap() error {
	return e.Cause
}

// RangeError represents a range error, similar to JavaScript's RangeError.
// This is used when a value is not within the expected range.
type RangeError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	if e.Message == "" {
		return "range error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *RangeError) Unwrap() error {
	return e.Cause
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("eventloop: callback panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
//
// If the panic Value is not an error (e.g., a string or other type),
// returns nil.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// WorkerFailure is passed as the result argument of a [WorkCallback] when
// the background work returned an error or panicked. It is never returned
// from [Loop.QueueWork] itself.
type WorkerFailure struct {
	Cause error
}

// Error implements the error interface.
func (e *WorkerFailure) Error() string {
	return "eventloop: worker failed: " + e.Cause.Error()
}

// Unwrap returns the error produced by the work function.
func (e *WorkerFailure) Unwrap() error {
	return e.Cause
}

// UnhandledRejectionError is reported to the loop's error handler when a
// promise is still rejected without a rejection handler once the microtask
// queue has drained.
type UnhandledRejectionError struct {
	Reason Result
}

// Error implements the error interface.
func (e *UnhandledRejectionError) Error() string {
	return fmt.Sprintf("eventloop: unhandled promise rejection: %v", e.Reason)
}

// Unwrap returns the rejection reason if it is an error.
func (e *UnhandledRejectionError) Unwrap() error {
	if err, ok := e.Reason.(error); ok {
		return err
	}
	return nil
}

func invalidArgument(format string, args ...any) error {
	return &TypeError{Cause: ErrInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func unknownHandle(format string, args ...any) error {
	return &RangeError{Cause: ErrUnknownHandle, Message: fmt.Sprintf(format, args...)}
}
