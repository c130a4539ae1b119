package eventloop

import (
	"context"
	"sync"
	"testing"
	"time"
)

// newTestLoop creates a loop that is closed when the test ends.
func newTestLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()
	loop, err := New(opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = loop.Close() })
	return loop
}

// runLoop runs the loop until it drains, failing the test if that takes
// longer than a few seconds.
func runLoop(t *testing.T, loop *Loop) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := loop.Run(ctx)
	if ctx.Err() != nil {
		t.Fatalf("loop did not drain: %v", err)
	}
	return err
}

// mustRun is runLoop for tests that expect no error.
func mustRun(t *testing.T, loop *Loop) {
	t.Helper()
	if err := runLoop(t, loop); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
}

// orderRecorder collects labels in execution order.
type orderRecorder struct {
	mu     sync.Mutex
	labels []string
}

func (r *orderRecorder) record(label string) {
	r.mu.Lock()
	r.labels = append(r.labels, label)
	r.mu.Unlock()
}

func (r *orderRecorder) callback(label string) Callback {
	return func(...any) error {
		r.record(label)
		return nil
	}
}

func (r *orderRecorder) assert(t *testing.T, want ...string) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.labels) != len(want) {
		t.Fatalf("order = %v, want %v", r.labels, want)
	}
	for i := range want {
		if r.labels[i] != want[i] {
			t.Fatalf("order = %v, want %v", r.labels, want)
		}
	}
}
