package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T interface{}] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue.
//
// Any number of goroutines may Push concurrently; exactly one goroutine
// consumes via the Recv() channel. The queue is unbounded and keeps items
// in a linked list of nodes manipulated with atomic operations only.
//
// Under concurrent Push operations the exact ordering of items is determined
// by which producer completes its CAS first, not by which producer started
// first. Consumers that need a total order across producers (e.g. the merge
// loop replaying change sets in commit sequence) must re-order on their side,
// see MapHeap.
type LockFreeMPSC[T interface{}] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool

	// condition variable for efficient waiting
	mu   sync.Mutex
	cond *sync.Cond
}

// NewLockFreeMPSC creates a new lock-free multi-producer single-consumer queue
func NewLockFreeMPSC[T interface{}]() *LockFreeMPSC[T] {
	// sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out: make(chan *T),
	}

	q.cond = sync.NewCond(&q.mu)

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {

	if value == nil {
		return false
	}

	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}

	var tailNode *node[T]
	var backoff uint8 = 0

	for {
		tailNode = q.tail.Load()

		// try to atomically append our node to the current tail
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				/*
				 Successfully appended, now try to update tail.
				 Note: CAS may fail if another producer helps update tail,
				 but that's okay - tail will still be updated eventually.
				*/
				q.tail.CompareAndSwap(tailNode, newNode)

				// signal the consumer that new data is available
				q.cond.Signal()

				return true
			}
		} else {
			// help update the tail pointer if another producer has already
			// appended a node but hasn't updated the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff to handle contention:
		  - at low contention (<10 retries): spin to avoid scheduling overhead
		  - at higher contention: yield the processor so other goroutines progress
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume continuously sends items from the linked list to the output channel
// and frees consumed nodes
func (q *LockFreeMPSC[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()

			if next == nil {
				break // no more items available
			}

			hasItems = true

			// capture value before updating pointers
			value := next.value

			// move head pointer (frees up memory)
			q.head.Store(next)

			q.out <- value

			// help the go gc - safe to clear after sending
			next.value = nil
		}

		// exit if closed and drained
		if !hasItems && q.closed.Load() {
			return
		}

		// nothing processed, wait for a producer signal
		if !hasItems {
			q.mu.Lock()
			// double-check condition after acquiring lock
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns a receive-only channel for consuming from the queue.
// This allows the queue to be used with the '<-' operator in select statements.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close closes the queue, preventing further writes.
// Any items already in the queue will still be delivered to the consumer.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)

	// wake up the consumer if it's waiting
	q.cond.Signal()
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate count of the items in the queue.
// This is O(n) and should only be used for debugging.
func (q *LockFreeMPSC[T]) Len() int {
	count := 0
	current := q.head.Load()

	for {
		next := current.next.Load()
		if next == nil {
			break
		}
		count++
		current = next
	}

	return count
}
