package gojaeventloop

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-duxcore/eventloop"
	"github.com/stretchr/testify/require"
)

// newTestAdapter creates a bound adapter over a fresh loop, which is closed
// when the test ends.
func newTestAdapter(t *testing.T, opts ...Option) (*Adapter, *goja.Runtime) {
	t.Helper()
	return newTestAdapterWithLoop(t, nil, opts...)
}

func newTestAdapterWithLoop(t *testing.T, loopOpts []eventloop.LoopOption, opts ...Option) (*Adapter, *goja.Runtime) {
	t.Helper()
	loop, err := eventloop.New(loopOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = loop.Close() })

	rt := goja.New()
	adapter, err := New(loop, rt, append([]Option{WithEnv(map[string]string{})}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, adapter.Bind())
	return adapter, rt
}

// recorder exposes record(label) to scripts.
type recorder struct {
	labels []string
}

func bindRecorder(t *testing.T, rt *goja.Runtime) *recorder {
	t.Helper()
	r := &recorder{}
	require.NoError(t, rt.Set("record", func(call goja.FunctionCall) goja.Value {
		r.labels = append(r.labels, call.Argument(0).String())
		return goja.Undefined()
	}))
	return r
}

// runLoop runs the adapter's loop until it drains, failing the test if it
// takes longer than a few seconds.
func runLoop(t *testing.T, adapter *Adapter) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := adapter.Loop().Run(ctx)
	require.NoError(t, ctx.Err(), "loop did not drain")
	return err
}

// runScript evaluates source and then drains the loop.
func runScript(t *testing.T, adapter *Adapter, source string) {
	t.Helper()
	_, err := adapter.RunString(t.Name(), source)
	require.NoError(t, err)
	require.NoError(t, runLoop(t, adapter))
}

// evalBool evaluates source and requires it to produce true.
func evalBool(t *testing.T, adapter *Adapter, source string) {
	t.Helper()
	v, err := adapter.RunString(t.Name(), source)
	require.NoError(t, err)
	require.True(t, v.ToBoolean(), "script returned %v", v)
}
