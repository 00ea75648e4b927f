package txn

import (
	"sync/atomic"

	"github.com/ValentinKolb/tKV/lib/db/util"
)

// job is one unit of work scheduled onto a context's serial queue
type job struct {
	fn func()
}

// execQueue is the private serial execution queue of a context.
//
// All blocks scheduled onto the queue run one after another on a single
// dedicated worker goroutine. The worker attaches itself to the context
// registry for its lifetime, which is what makes context confinement
// checkable at runtime.
//
// Thread-safety: submit and close may be called from any goroutine.
type execQueue struct {
	jobs      *util.LockFreeMPSC[job]
	done      chan struct{}
	workerGID atomic.Uint64
}

// newExecQueue starts the worker goroutine and returns once it is attached
// to the registry, so confinement checks are race free from the start.
func newExecQueue(ctx *Context, reg *registry) *execQueue {
	q := &execQueue{
		jobs: util.NewLockFreeMPSC[job](),
		done: make(chan struct{}),
	}

	started := make(chan struct{})
	go q.run(ctx, reg, started)
	<-started

	return q
}

func (q *execQueue) run(ctx *Context, reg *registry, started chan struct{}) {
	defer close(q.done)

	gid := goroutineID()
	q.workerGID.Store(gid)

	reg.attach(gid, ctx)
	defer reg.detach(gid)

	close(started)

	for j := range q.jobs.Recv() {
		j.fn()
	}
}

// submit schedules fn onto the queue.
// Returns false if the queue is already closed.
func (q *execQueue) submit(fn func()) bool {
	return q.jobs.Push(&job{fn: fn})
}

// close stops the queue. Already submitted blocks still run.
func (q *execQueue) close() {
	q.jobs.Close()
}

// wait blocks until the worker has drained the queue and exited.
func (q *execQueue) wait() {
	<-q.done
}

// gid returns the id of the worker goroutine.
func (q *execQueue) gid() uint64 {
	return q.workerGID.Load()
}

// isClosed reports whether the queue no longer accepts blocks.
func (q *execQueue) isClosed() bool {
	return q.jobs.IsClosed()
}
