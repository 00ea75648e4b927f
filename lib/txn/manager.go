package txn

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/tKV/lib/db/util"
	"github.com/ValentinKolb/tKV/lib/entity"
	"github.com/ValentinKolb/tKV/lib/logging"
	"github.com/ValentinKolb/tKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// TxnFunc is the body of a transaction. It runs on the transaction context's
// private queue. Mutations it records become durable only through an
// explicit Commit call; whatever is still pending when the body returns is
// discarded at teardown, whether the body returned nil or an error.
type TxnFunc func(c *Context) error

// IManager is the entry point of the transaction layer. It owns the main
// context, schedules transaction contexts, and runs the commit engine that
// merges committed change sets into the store.
type IManager interface {
	// MainContext returns the manager's long-lived main context, creating it
	// on first use. The main context survives across transactions; external
	// goroutines access it through its Sync and Async methods.
	MainContext() (c *Context)
	// ResetMainContext tears down the current main context, discarding its
	// pending mutations. The next MainContext call creates a fresh one.
	ResetMainContext()
	// Transact runs fn on a new transaction context. The call returns
	// immediately; the returned channel delivers exactly one value once the
	// operation has finished and its context is torn down. Mutations the
	// body committed stay durable; uncommitted ones are discarded.
	Transact(fn TxnFunc) (result <-chan error)
	// TransactAndWait runs fn on a new transaction context and blocks until
	// it has committed or failed. Calling it from any context worker
	// goroutine is a usage violation, since the caller would deadlock
	// waiting for a queue it may itself be blocking.
	TransactAndWait(fn TxnFunc) (err error)
	// Current returns the context whose worker goroutine is executing the
	// caller, if any. Operations normally receive their context explicitly;
	// Current exists for query collaborators that resolve "the current
	// context" on their own.
	Current() (c *Context, ok bool)
	// Subscribe registers an observer for committed change sets. Change sets
	// are delivered in commit sequence order; a subscriber that falls behind
	// its channel buffer misses change sets instead of stalling the commit
	// engine. The returned function cancels the subscription.
	Subscribe(buffer int) (changes <-chan entity.ChangeSet, cancel func())
	// Store exposes the underlying entity store, e.g. for Save and schema
	// registration during startup.
	Store() (s store.IStore)
	// Close shuts the manager down: the main context is torn down, in-flight
	// commits are merged, subscriber channels are closed. The underlying
	// store stays open; its owner closes it.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Manager Implementation
// --------------------------------------------------------------------------

type managerImpl struct {
	store    store.IStore
	registry *registry
	view     *mainView
	log      logger.ILogger

	// commit engine
	commitSeq atomic.Uint64
	inbox     *util.LockFreeMPSC[commitRequest]
	mergeDone chan struct{}

	// observers
	subscribers *xsync.MapOf[uint64, chan entity.ChangeSet]
	nextSubID   atomic.Uint64

	// main context singleton
	mainMu  sync.Mutex
	mainCtx *Context

	closed atomic.Bool
}

// NewManager creates a new transaction manager on top of the given store.
// The manager does not take ownership of the store; closing the manager
// leaves the store open.
func NewManager(s store.IStore) IManager {
	m := &managerImpl{
		store:       s,
		registry:    newRegistry(),
		view:        newMainView(),
		log:         logging.GetLogger(logging.FacilityTxn),
		inbox:       util.NewLockFreeMPSC[commitRequest](),
		mergeDone:   make(chan struct{}),
		subscribers: xsync.NewMapOf[uint64, chan entity.ChangeSet](),
	}

	go m.mergeLoop()

	return m
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IManager)
// --------------------------------------------------------------------------

func (m *managerImpl) MainContext() *Context {
	m.mainMu.Lock()
	defer m.mainMu.Unlock()

	if m.mainCtx == nil {
		m.mainCtx = newContext(KindMain, m)
		metricActiveContexts.Add(1)
		m.log.Debugf("created main context %s", m.mainCtx.id)
	}
	return m.mainCtx
}

func (m *managerImpl) ResetMainContext() {
	m.mainMu.Lock()
	old := m.mainCtx
	m.mainCtx = nil
	m.mainMu.Unlock()

	if old != nil {
		old.shutdown()
		metricActiveContexts.Add(-1)
		m.log.Debugf("reset main context %s", old.id)
	}
}

func (m *managerImpl) Transact(fn TxnFunc) <-chan error {
	result := make(chan error, 1)

	if m.closed.Load() {
		m.recordUsageViolation()
		result <- NewError(RetCUsageViolation, "manager is closed")
		return result
	}

	c := newContext(KindTransaction, m)
	metricStarted.Inc()
	metricActiveContexts.Add(1)

	err := c.Async(func(c *Context) {
		err := fn(c)

		if err != nil {
			metricDiscards.Inc()
			m.log.Debugf("transaction %s discarded: %v", c.id, err)
		} else if n := len(c.pending); n > 0 {
			// rollback by discard: mutations the body never committed are
			// dropped silently at teardown
			metricDiscards.Inc()
			m.log.Debugf("transaction %s dropped %d uncommitted mutations", c.id, n)
		} else {
			m.log.Debugf("transaction %s completed", c.id)
		}

		// the transaction body was the context's only block; tear it down
		// from its own worker
		c.markClosed()
		c.queue.close()
		metricActiveContexts.Add(-1)

		result <- err
	})
	if err != nil {
		c.shutdown()
		metricActiveContexts.Add(-1)
		result <- err
	}

	return result
}

func (m *managerImpl) TransactAndWait(fn TxnFunc) error {
	if attached, ok := m.registry.current(goroutineID()); ok {
		m.recordUsageViolation()
		return NewError(RetCUsageViolation, fmt.Sprintf(
			"TransactAndWait called from worker of %s context %s; nested synchronous transactions deadlock, use Transact",
			attached.kind, attached.id))
	}
	return <-m.Transact(fn)
}

func (m *managerImpl) Current() (*Context, bool) {
	return m.registry.current(goroutineID())
}

func (m *managerImpl) Subscribe(buffer int) (<-chan entity.ChangeSet, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	id := m.nextSubID.Add(1)
	ch := make(chan entity.ChangeSet, buffer)
	m.subscribers.Store(id, ch)

	cancel := func() {
		m.subscribers.Delete(id)
	}
	return ch, cancel
}

func (m *managerImpl) Store() store.IStore {
	return m.store
}

func (m *managerImpl) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.ResetMainContext()

	// stop accepting commits, then wait for the merge loop to drain
	m.inbox.Close()
	<-m.mergeDone

	// no sender is left, closing the observer channels is safe now
	m.subscribers.Range(func(id uint64, ch chan entity.ChangeSet) bool {
		m.subscribers.Delete(id)
		close(ch)
		return true
	})

	m.log.Infof("manager closed after %d commits (%d entities in view)", m.commitSeq.Load(), m.view.size())
	return nil
}
