package txn

import (
	"sync"
	"testing"
	"time"
)

func newQueueForTest() (*execQueue, *Context, *registry) {
	reg := newRegistry()
	ctx := &Context{id: "queue-test"}
	q := newExecQueue(ctx, reg)
	ctx.queue = q
	return q, ctx, reg
}

func TestQueueSerialExecution(t *testing.T) {
	q, _, _ := newQueueForTest()

	const numJobs = 100

	var mu sync.Mutex
	var order []int

	for i := 0; i < numJobs; i++ {
		i := i
		if !q.submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}) {
			t.Fatalf("submit failed for job %d", i)
		}
	}

	q.close()
	q.wait()

	if len(order) != numJobs {
		t.Fatalf("Expected %d executed jobs, got %d", numJobs, len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("Expected job %d at position %d, got %d", i, i, got)
		}
	}
}

func TestQueueWorkerIsAttached(t *testing.T) {
	q, ctx, reg := newQueueForTest()

	result := make(chan bool, 1)
	q.submit(func() {
		bound, ok := reg.current(goroutineID())
		result <- ok && bound == ctx
	})

	select {
	case ok := <-result:
		if !ok {
			t.Errorf("Expected worker goroutine to be attached to its context")
		}
	case <-time.After(time.Second):
		t.Fatalf("Job did not run")
	}

	// the worker gid is stable and differs from the test goroutine
	if q.gid() == goroutineID() {
		t.Errorf("Expected worker to run on its own goroutine")
	}

	q.close()
	q.wait()

	// after shutdown the worker binding is gone
	if _, ok := reg.current(q.gid()); ok {
		t.Errorf("Expected worker binding to be removed after shutdown")
	}
}

func TestQueueRejectsAfterClose(t *testing.T) {
	q, _, _ := newQueueForTest()

	q.close()
	q.wait()

	if q.submit(func() {}) {
		t.Errorf("Expected submit to fail on closed queue")
	}
	if !q.isClosed() {
		t.Errorf("Expected queue to report closed")
	}
}

func TestQueueDrainsOnClose(t *testing.T) {
	q, _, _ := newQueueForTest()

	var mu sync.Mutex
	executed := 0

	const numJobs = 50
	for i := 0; i < numJobs; i++ {
		q.submit(func() {
			mu.Lock()
			executed++
			mu.Unlock()
		})
	}

	// close immediately, all submitted jobs must still run
	q.close()
	q.wait()

	mu.Lock()
	defer mu.Unlock()
	if executed != numJobs {
		t.Errorf("Expected %d jobs to run before shutdown, got %d", numJobs, executed)
	}
}
