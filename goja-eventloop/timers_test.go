package gojaeventloop

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-duxcore/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTimeout_FiresInDelayOrder(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		setTimeout(() => record('f'), 100);
		setTimeout(() => record('g'), 300);
		setTimeout(() => record('h'), 200);
	`)

	assert.Equal(t, []string{"f", "h", "g"}, rec.labels)
}

func TestSetTimeout_PassesArgsAndThis(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		const handle = setTimeout(function (a, b) {
			record(a + b);
			record(String(this === handle));
		}, 1, 'x', 'y');
	`)

	assert.Equal(t, []string{"xy", "true"}, rec.labels)
}

func TestClearTimeout_PreventsFiringAndRejectsSecondClear(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		const t = setTimeout(() => record('never'), 10);
		clearTimeout(t);
		try {
			clearTimeout(t);
			record('no error');
		} catch (e) {
			record(e instanceof RangeError ? 'RangeError' : String(e));
		}
	`)

	assert.Equal(t, []string{"RangeError"}, rec.labels)
}

func TestClearTimeout_AfterFiring(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		const t = setTimeout(() => record('fired'), 1);
		setTimeout(() => {
			try {
				clearTimeout(t);
			} catch (e) {
				record(e.name);
			}
		}, 20);
	`)

	assert.Equal(t, []string{"fired", "RangeError"}, rec.labels)
}

func TestClearTimeout_ByNumericID(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		const t = setTimeout(() => record('never'), 10);
		const id = +t;
		record(typeof id);
		clearTimeout(id);
	`)

	assert.Equal(t, []string{"number"}, rec.labels)
}

func TestClearTimeout_WrongKind(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		const iv = setInterval(() => record('never'), 10);
		try {
			clearTimeout(iv);
		} catch (e) {
			record(e.name);
		}
		clearInterval(iv);
	`)

	assert.Equal(t, []string{"TypeError"}, rec.labels)
}

func TestSetInterval_ClearedAfterThreeFirings(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		let n = 0;
		const iv = setInterval(() => {
			n++;
			record('tick' + n);
			if (n === 3) {
				clearInterval(iv);
			}
		}, 5);
		setTimeout(() => record('after'), 60);
	`)

	assert.Equal(t, []string{"tick1", "tick2", "tick3", "after"}, rec.labels)
}

func TestSetInterval_RearmsWhenCallbackThrows(t *testing.T) {
	var errs []error
	adapter, _ := newTestAdapterWithLoop(t, []eventloop.LoopOption{
		eventloop.WithErrorHandler(func(err error) error {
			errs = append(errs, err)
			return nil
		}),
	})

	runScript(t, adapter, `
		let n = 0;
		const iv = setInterval(() => {
			n++;
			if (n === 3) {
				clearInterval(iv);
			}
			throw new Error('tick ' + n);
		}, 2);
	`)

	require.Len(t, errs, 3)
	var ex *goja.Exception
	require.True(t, errors.As(errs[2], &ex))
	assert.Contains(t, ex.Error(), "tick 3")
}

func TestCallbackErrorStopsRunByDefault(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	_, err := adapter.RunString("main", `
		setTimeout(() => { throw new Error('boom'); }, 0);
		setTimeout(() => record('later'), 20);
	`)
	require.NoError(t, err)

	err = runLoop(t, adapter)
	var ex *goja.Exception
	require.ErrorAs(t, err, &ex)
	assert.Contains(t, ex.Error(), "boom")
	assert.Empty(t, rec.labels)
}

func TestSchedulingFunctions_InvalidArguments(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	for _, tc := range []struct {
		name string
		call string
	}{
		{name: "setTimeout callback", call: `setTimeout('nope', 1)`},
		{name: "setTimeout delay", call: `setTimeout(() => {}, 'soon')`},
		{name: "setTimeout negative delay", call: `setTimeout(() => {}, -5)`},
		{name: "setInterval callback", call: `setInterval(null, 1)`},
		{name: "setImmediate callback", call: `setImmediate(42)`},
		{name: "nextTick callback", call: `process.nextTick({})`},
		{name: "queueMicrotask callback", call: `queueMicrotask()`},
		{name: "clearTimeout missing handle", call: `clearTimeout({})`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			evalBool(t, adapter, `
				(() => {
					try {
						`+tc.call+`;
					} catch (e) {
						return e instanceof TypeError;
					}
					return false;
				})()
			`)
		})
	}
}

func TestTimer_UnrefDoesNotKeepLoopAlive(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		const t = setTimeout(() => record('never'), 200);
		t.unref();
		t.unref();
		record(String(t.hasRef()));
	`)

	assert.Equal(t, []string{"false"}, rec.labels)
}

func TestTimer_UnrefStillFiresWhileLoopAlive(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		setTimeout(() => record('unref'), 5).unref();
		const t = setTimeout(() => record('ref'), 40);
		t.unref().ref();
	`)

	assert.Equal(t, []string{"unref", "ref"}, rec.labels)
}

func TestSetImmediate_Generations(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		setImmediate(() => {
			record('a');
			setImmediate(() => record('c'));
		});
		setImmediate((x) => record(x), 'b');
	`)

	assert.Equal(t, []string{"a", "b", "c"}, rec.labels)
}

func TestClearImmediate(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		const im = setImmediate(() => record('never'));
		setImmediate(() => record('kept'));
		clearImmediate(im);
		try {
			clearImmediate(im);
		} catch (e) {
			record(e.name);
		}
	`)

	assert.Equal(t, []string{"RangeError", "kept"}, rec.labels)
}

func TestMicrotasks_InterleaveAndDrainBeforeMacrotasks(t *testing.T) {
	adapter, rt := newTestAdapter(t)
	rec := bindRecorder(t, rt)

	runScript(t, adapter, `
		setTimeout(() => record('timeout'), 0);
		setImmediate(() => record('immediate'));
		process.nextTick(() => record('tick1'));
		Promise.resolve().then(() => {
			record('then1');
			process.nextTick(() => record('tick3'));
		});
		process.nextTick(() => record('tick2'));
		Promise.resolve().then(() => record('then2'));
		queueMicrotask(() => record('microtask'));
		record('sync');
	`)

	assert.Equal(t, []string{
		"sync",
		"tick1", "then1", "tick2", "then2", "microtask", "tick3",
		"timeout", "immediate",
	}, rec.labels)
}

func TestTimersModule(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	evalBool(t, adapter, `
		const timers = require('timers');
		timers.setTimeout === setTimeout &&
			timers.clearInterval === clearInterval &&
			timers.setImmediate === setImmediate
	`)
}
