// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"github.com/joeycumines/logiface"
)

// ErrorHandler decides what happens to an error raised by a callback run by
// the loop. Returning nil continues with the next tick, returning a non-nil
// error stops [Loop.Run], which returns it.
type ErrorHandler func(err error) error

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger       *logiface.Logger[logiface.Event]
	errorHandler ErrorHandler
	maxWorkers   int64
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger attaches a structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithErrorHandler sets the handler for callback errors, panics and
// unhandled promise rejections. The default handler stops the loop on the
// first error.
func WithErrorHandler(handler ErrorHandler) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.errorHandler = handler
		return nil
	}}
}

// WithMaxWorkers bounds how many [Loop.QueueWork] items execute at once.
// Zero (the default) means one thread per submitted item, without a bound.
func WithMaxWorkers(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n < 0 {
			return invalidArgument("eventloop: max workers must not be negative, got %d", n)
		}
		opts.maxWorkers = int64(n)
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
