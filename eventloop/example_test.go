package eventloop_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joeycumines/go-duxcore/eventloop"
)

// Demonstrates the order in which the task classes run.
func Example() {
	loop, err := eventloop.New()
	if err != nil {
		panic(err)
	}
	defer loop.Close()

	_, _ = loop.SetTimeout(func(...any) error {
		fmt.Println("timeout")
		return nil
	}, 10*time.Millisecond)

	_, _ = loop.SetImmediate(func(...any) error {
		fmt.Println("immediate")
		return nil
	})

	loop.Resolve("promise").Then(func(v eventloop.Result) (eventloop.Result, error) {
		fmt.Println(v)
		return nil, nil
	}, nil)

	_ = loop.NextTick(func(...any) error {
		fmt.Println("nextTick")
		return nil
	})

	if err := loop.Run(context.Background()); err != nil {
		panic(err)
	}

	// Output:
	// promise
	// nextTick
	// immediate
	// timeout
}

// Timer handles may be cleared, including from inside their own callback.
func ExampleLoop_SetInterval() {
	loop, err := eventloop.New()
	if err != nil {
		panic(err)
	}
	defer loop.Close()

	count := 0
	var interval *eventloop.Timer
	interval, _ = loop.SetInterval(func(...any) error {
		count++
		fmt.Println("tick", count)
		if count == 3 {
			return loop.ClearInterval(interval)
		}
		return nil
	}, time.Millisecond)

	cancelled, _ := loop.SetTimeout(func(...any) error {
		fmt.Println("This should NOT print")
		return nil
	}, time.Millisecond)
	_ = loop.ClearTimeout(cancelled)

	if err := loop.Run(context.Background()); err != nil {
		panic(err)
	}

	// Output:
	// tick 1
	// tick 2
	// tick 3
}

// Blocking work runs on its own OS thread, and its buffer is handed back
// before the callback runs.
func ExampleLoop_QueueWork() {
	loop, err := eventloop.New(eventloop.WithMaxWorkers(4))
	if err != nil {
		panic(err)
	}
	defer loop.Close()

	buf := []byte("hello, worker")
	_ = loop.QueueWork(buf, func(_ context.Context, scratch []byte) (eventloop.Result, error) {
		copy(scratch, strings.ToUpper(string(scratch)))
		return len(scratch), nil
	}, func(result eventloop.Result, args ...any) error {
		fmt.Printf("%s %v %s\n", buf, result, args[0])
		return nil
	}, "done")

	if err := loop.Run(context.Background()); err != nil {
		panic(err)
	}

	// Output:
	// HELLO, WORKER 13 done
}

// Promise combinators behave like their script counterparts.
func ExampleLoop_All() {
	loop, err := eventloop.New()
	if err != nil {
		panic(err)
	}
	defer loop.Close()

	slow := loop.NewPromiseWithExecutor(func(resolve eventloop.ResolveFunc, _ eventloop.RejectFunc) error {
		_, err := loop.SetTimeout(func(...any) error {
			resolve("slow")
			return nil
		}, 5*time.Millisecond)
		return err
	})

	loop.All([]*eventloop.Promise{slow, loop.Resolve("fast")}).
		Then(func(v eventloop.Result) (eventloop.Result, error) {
			fmt.Println(v)
			return nil, nil
		}, nil)

	if err := loop.Run(context.Background()); err != nil {
		panic(err)
	}

	// Output:
	// [slow fast]
}
