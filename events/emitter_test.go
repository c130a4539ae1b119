package events

import (
	"bytes"
	"errors"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recorder(calls *[]string, name string) Listener {
	return func(args ...any) error {
		*calls = append(*calls, name)
		return nil
	}
}

func TestEmitter_EmitOrder(t *testing.T) {
	e := New()
	var calls []string
	e.On("x", recorder(&calls, "a"), "a")
	e.On("x", recorder(&calls, "b"), "b")
	e.PrependListener("x", recorder(&calls, "c"), "c")

	ok, err := e.Emit("x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"c", "a", "b"}, calls)

	ok, err = e.Emit("y")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmitter_EmitArgs(t *testing.T) {
	e := New()
	var got []any
	e.On("data", func(args ...any) error {
		got = args
		return nil
	}, nil)
	_, err := e.Emit("data", 1, "two")
	require.NoError(t, err)
	assert.Equal(t, []any{1, "two"}, got)
}

func TestEmitter_Once(t *testing.T) {
	e := New()
	var calls []string
	e.Once("x", recorder(&calls, "once"), "once")
	e.PrependOnceListener("x", recorder(&calls, "first"), "first")
	e.On("x", recorder(&calls, "always"), "always")

	_, _ = e.Emit("x")
	_, _ = e.Emit("x")
	assert.Equal(t, []string{"first", "once", "always", "always"}, calls)
	assert.Equal(t, 1, e.ListenerCount("x"))
}

func TestEmitter_OnceRemovedBeforeCall(t *testing.T) {
	e := New()
	var count int
	e.Once("x", func(args ...any) error {
		count++
		// re-entrant emit must not call this listener again
		_, err := e.Emit("x")
		return err
	}, nil)
	_, err := e.Emit("x")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEmitter_RemoveListener(t *testing.T) {
	e := New()
	var calls []string
	e.On("x", recorder(&calls, "a1"), "a")
	e.On("x", recorder(&calls, "b"), "b")
	e.On("x", recorder(&calls, "a2"), "a")

	assert.True(t, e.RemoveListener("x", "a"))
	_, _ = e.Emit("x")
	assert.Equal(t, []string{"a1", "b"}, calls)

	assert.False(t, e.RemoveListener("x", "missing"))
	assert.False(t, e.RemoveListener("x", nil))
	assert.Equal(t, []any{"a", "b"}, e.Listeners("x"))
}

func TestEmitter_RemoveListenerByID(t *testing.T) {
	e := New()
	var calls []string
	id := e.On("x", recorder(&calls, "a"), nil)
	e.On("x", recorder(&calls, "b"), nil)

	assert.True(t, e.RemoveListenerByID("x", id))
	assert.False(t, e.RemoveListenerByID("x", id))
	_, _ = e.Emit("x")
	assert.Equal(t, []string{"b"}, calls)
}

func TestEmitter_RemoveAllListeners(t *testing.T) {
	e := New()
	noop := func(args ...any) error { return nil }
	e.On("a", noop, nil)
	e.On("b", noop, nil)
	e.On("c", noop, nil)

	assert.Equal(t, []string{"a", "b", "c"}, e.EventNames())
	e.RemoveAllListeners("b")
	assert.Equal(t, []string{"a", "c"}, e.EventNames())
	e.RemoveAllListeners()
	assert.Empty(t, e.EventNames())
	assert.Equal(t, 0, e.ListenerCount("a"))
}

func TestEmitter_ListenerErrorStopsEmit(t *testing.T) {
	e := New()
	boom := errors.New("boom")
	var calls []string
	e.On("x", func(args ...any) error { return boom }, nil)
	e.On("x", recorder(&calls, "after"), nil)

	ok, err := e.Emit("x")
	assert.True(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, calls)
}

func TestEmitter_UnhandledErrorEvent(t *testing.T) {
	e := New()
	cause := errors.New("bad thing")

	ok, err := e.Emit(ErrorEvent, cause)
	assert.False(t, ok)
	var unhandled *UnhandledErrorEvent
	require.ErrorAs(t, err, &unhandled)
	assert.Equal(t, cause, unhandled.Value)
	assert.ErrorIs(t, err, cause)

	var got any
	e.On(ErrorEvent, func(args ...any) error {
		got = args[0]
		return nil
	}, nil)
	ok, err = e.Emit(ErrorEvent, cause)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cause, got)
}

func TestEmitter_MaxListenersWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf)),
		stumpy.L.WithLevel(logiface.LevelWarning),
	).Logger()

	e := New(WithLogger(logger))
	require.NoError(t, e.SetMaxListeners(2))
	assert.Equal(t, 2, e.GetMaxListeners())

	noop := func(args ...any) error { return nil }
	e.On("x", noop, nil)
	e.On("x", noop, nil)
	assert.Zero(t, buf.Len())

	e.On("x", noop, nil)
	assert.Contains(t, buf.String(), "possible EventEmitter memory leak detected")
	assert.Contains(t, buf.String(), `"event":"x"`)

	n := buf.Len()
	e.On("x", noop, nil)
	assert.Equal(t, n, buf.Len(), "warning is logged once per event")

	assert.Error(t, e.SetMaxListeners(-1))
}

func TestEmitter_DefaultMaxListeners(t *testing.T) {
	assert.Equal(t, DefaultMaxListeners, New().GetMaxListeners())
}

func TestEmitter_NilListener(t *testing.T) {
	e := New()
	assert.Zero(t, e.On("x", nil, nil))
	assert.Equal(t, 0, e.ListenerCount("x"))
}

func TestNew_Options(t *testing.T) {
	e := New(nil, WithLogger(nil))
	require.NotNil(t, e)
	assert.Equal(t, DefaultMaxListeners, e.GetMaxListeners())
}
