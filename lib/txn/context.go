package txn

import (
	"fmt"

	"github.com/ValentinKolb/tKV/lib/entity"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Context Kind
// --------------------------------------------------------------------------

type Kind uint8

const (
	// KindMain is the long-lived main context of a manager. There is at most
	// one per manager; it represents the committed view plus the pending
	// edits of the foreground code.
	KindMain Kind = iota + 1
	// KindTransaction is a short-lived context created for one unit of work.
	KindTransaction
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Context Type
// --------------------------------------------------------------------------

// Context is a unit-of-work view over the entity store. It accumulates
// mutations in a private overlay; reads see the overlay first and fall
// through to the committed state. Nothing leaves the context until Commit.
//
// A context is confined to the worker goroutine of its serial queue. Entity
// operations called from any other goroutine fail with a usage violation;
// external goroutines interact with a context through Sync and Async, which
// schedule blocks onto the queue.
type Context struct {
	id    string
	kind  Kind
	mgr   *managerImpl
	queue *execQueue

	// confined state below, touched only from the queue worker
	pending    map[string]*entity.Mutation // overlay by storage key
	pendingIdx []string                    // overlay insertion order
	closed     bool
}

func newContext(kind Kind, mgr *managerImpl) *Context {
	c := &Context{
		id:      uuid.NewString(),
		kind:    kind,
		mgr:     mgr,
		pending: make(map[string]*entity.Mutation),
	}
	c.queue = newExecQueue(c, mgr.registry)
	return c
}

// ID returns the unique id of the context.
func (c *Context) ID() string {
	return c.id
}

// Kind returns whether this is the main context or a transaction context.
func (c *Context) Kind() Kind {
	return c.kind
}

// --------------------------------------------------------------------------
// Scheduling
// --------------------------------------------------------------------------

// Sync runs fn on the context's serial queue and waits for it to finish.
// When called from the context's own worker (i.e. from within another
// block), fn runs inline instead of deadlocking on the queue.
//
// Calling Sync from the worker goroutine of a different context is a usage
// violation: two contexts waiting on each other's queues deadlock, so the
// pattern is rejected outright.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *Context) Sync(fn func(c *Context) error) error {
	gid := goroutineID()

	if gid == c.queue.gid() {
		return fn(c)
	}

	if other, attached := c.mgr.registry.current(gid); attached && other != c {
		return NewError(RetCUsageViolation, fmt.Sprintf(
			"synchronous block on %s context %s scheduled from worker of %s context %s",
			c.kind, c.id, other.kind, other.id))
	}

	done := make(chan error, 1)
	ok := c.queue.submit(func() {
		done <- fn(c)
	})
	if !ok {
		return NewError(RetCUsageViolation, fmt.Sprintf("%s context %s is closed", c.kind, c.id))
	}
	return <-done
}

// Async schedules fn onto the context's serial queue without waiting.
// The returned error only reports scheduling failures (closed context);
// errors from fn itself are the block's responsibility.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *Context) Async(fn func(c *Context)) error {
	ok := c.queue.submit(func() {
		fn(c)
	})
	if !ok {
		return NewError(RetCUsageViolation, fmt.Sprintf("%s context %s is closed", c.kind, c.id))
	}
	return nil
}

// confined verifies the caller runs on the context's worker goroutine and
// that the context is still open.
func (c *Context) confined(op string) error {
	if gid := goroutineID(); gid != c.queue.gid() {
		c.mgr.recordUsageViolation()
		return NewError(RetCUsageViolation, fmt.Sprintf(
			"%s called outside the %s context %s (use Sync or Async)", op, c.kind, c.id))
	}
	if c.closed {
		c.mgr.recordUsageViolation()
		return NewError(RetCUsageViolation, fmt.Sprintf(
			"%s called on closed %s context %s", op, c.kind, c.id))
	}
	return nil
}

// --------------------------------------------------------------------------
// Entity Operations
// --------------------------------------------------------------------------

// Insert records a new entity in the context. The entity must not already
// exist, neither in the committed state nor in the context's overlay.
func (c *Context) Insert(e entity.Entity) error {
	if err := c.confined("Insert"); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return WrapError(RetCValidation, "invalid entity", err)
	}

	key := e.StorageKey()

	if m, ok := c.pending[key]; ok {
		if m.Op != entity.OpDelete {
			return NewError(RetCValidation, fmt.Sprintf("entity %s already inserted or updated in this context", key))
		}
		// re-insert after a pending delete: the committed record may still
		// exist, so the net effect is an upsert
		c.pending[key] = &entity.Mutation{Op: entity.OpUpdate, Entity: e.Clone()}
		return nil
	}

	exists, err := c.mgr.store.Has(e.Type, e.Key)
	if err != nil {
		return WrapError(RetCFetch, fmt.Sprintf("existence check for %s failed", key), err)
	}
	if exists {
		return NewError(RetCValidation, fmt.Sprintf("entity %s already exists", key))
	}

	c.record(key, &entity.Mutation{Op: entity.OpInsert, Entity: e.Clone()})
	return nil
}

// Update records new field values for an existing entity.
func (c *Context) Update(e entity.Entity) error {
	if err := c.confined("Update"); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return WrapError(RetCValidation, "invalid entity", err)
	}

	key := e.StorageKey()

	if m, ok := c.pending[key]; ok {
		if m.Op == entity.OpDelete {
			return NewError(RetCValidation, fmt.Sprintf("entity %s was deleted in this context", key))
		}
		// keep the original op so an insert stays an insert
		c.pending[key] = &entity.Mutation{Op: m.Op, Entity: e.Clone()}
		return nil
	}

	exists, err := c.mgr.store.Has(e.Type, e.Key)
	if err != nil {
		return WrapError(RetCFetch, fmt.Sprintf("existence check for %s failed", key), err)
	}
	if !exists {
		return NewError(RetCValidation, fmt.Sprintf("entity %s does not exist", key))
	}

	c.record(key, &entity.Mutation{Op: entity.OpUpdate, Entity: e.Clone()})
	return nil
}

// Delete records the removal of an entity. Deleting an entity that exists
// nowhere is a no-op.
func (c *Context) Delete(typ, key string) error {
	if err := c.confined("Delete"); err != nil {
		return err
	}

	storageKey := entity.StorageKey(typ, key)

	if m, ok := c.pending[storageKey]; ok {
		switch m.Op {
		case entity.OpInsert:
			// insert followed by delete cancels out
			c.unrecord(storageKey)
			return nil
		case entity.OpDelete:
			return nil
		default:
			c.pending[storageKey] = &entity.Mutation{
				Op:     entity.OpDelete,
				Entity: entity.Entity{Type: typ, Key: key},
			}
			return nil
		}
	}

	exists, err := c.mgr.store.Has(typ, key)
	if err != nil {
		return WrapError(RetCFetch, fmt.Sprintf("existence check for %s failed", storageKey), err)
	}
	if !exists {
		return nil
	}

	c.record(storageKey, &entity.Mutation{
		Op:     entity.OpDelete,
		Entity: entity.Entity{Type: typ, Key: key},
	})
	return nil
}

// Lookup returns the entity as this context sees it: pending mutations
// shadow the committed state.
func (c *Context) Lookup(typ, key string) (entity.Entity, bool, error) {
	if err := c.confined("Lookup"); err != nil {
		return entity.Entity{}, false, err
	}

	storageKey := entity.StorageKey(typ, key)

	if m, ok := c.pending[storageKey]; ok {
		if m.Op == entity.OpDelete {
			return entity.Entity{}, false, nil
		}
		return m.Entity.Clone(), true, nil
	}

	// merged read cache: hits avoid a store decode, misses are authoritative
	// only on the store
	if e, ok := c.mgr.view.lookup(storageKey); ok {
		return e, true, nil
	}

	e, loaded, err := c.mgr.store.Lookup(typ, key)
	if err != nil {
		return entity.Entity{}, false, WrapError(RetCFetch, fmt.Sprintf("lookup of %s failed", storageKey), err)
	}
	return e, loaded, nil
}

// Has reports whether the entity exists as this context sees it.
func (c *Context) Has(typ, key string) (bool, error) {
	if err := c.confined("Has"); err != nil {
		return false, err
	}

	storageKey := entity.StorageKey(typ, key)

	if m, ok := c.pending[storageKey]; ok {
		return m.Op != entity.OpDelete, nil
	}

	if _, ok := c.mgr.view.lookup(storageKey); ok {
		return true, nil
	}

	loaded, err := c.mgr.store.Has(typ, key)
	if err != nil {
		return false, WrapError(RetCFetch, fmt.Sprintf("existence check for %s failed", storageKey), err)
	}
	return loaded, nil
}

// Scan visits every entity of the given type as this context sees it:
// committed entities shadowed by the overlay, pending deletes skipped,
// pending inserts included. Iteration stops when fn returns false. The
// visit order is unspecified.
func (c *Context) Scan(typ string, fn func(e entity.Entity) bool) error {
	if err := c.confined("Scan"); err != nil {
		return err
	}

	visited := make(map[string]struct{})
	stopped := false

	err := c.mgr.store.Scan(typ, func(e entity.Entity) bool {
		storageKey := e.StorageKey()
		visited[storageKey] = struct{}{}

		if m, ok := c.pending[storageKey]; ok {
			if m.Op == entity.OpDelete {
				return true
			}
			e = m.Entity.Clone()
		}

		if !fn(e) {
			stopped = true
			return false
		}
		return true
	})
	if err != nil {
		return WrapError(RetCFetch, fmt.Sprintf("scan of type %q failed", typ), err)
	}
	if stopped {
		return nil
	}

	// overlay entries the committed state does not know about yet
	for _, storageKey := range c.pendingIdx {
		m, ok := c.pending[storageKey]
		if !ok || m.Op == entity.OpDelete {
			continue
		}
		if typ != "" && m.Entity.Type != typ {
			continue
		}
		if _, seen := visited[storageKey]; seen {
			continue
		}
		if !fn(m.Entity.Clone()) {
			return nil
		}
	}
	return nil
}

// Pending returns the number of uncommitted mutations in the context.
func (c *Context) Pending() (int, error) {
	if err := c.confined("Pending"); err != nil {
		return 0, err
	}
	return len(c.pending), nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Commit hands the context's pending mutations to the commit engine and
// waits until they are merged into the committed state. On success the
// overlay is cleared and the context can be reused. On validation or
// persistence failure the overlay is kept, so the caller can inspect or
// amend it.
//
// Commit is deliberately available on every context kind: the main context
// is queue confined like any transaction context, so its blocks may flush
// their overlay the same way.
func (c *Context) Commit() error {
	if err := c.confined("Commit"); err != nil {
		return err
	}

	if len(c.pendingIdx) == 0 {
		return nil
	}

	mutations := make([]entity.Mutation, 0, len(c.pending))
	for _, storageKey := range c.pendingIdx {
		if m, ok := c.pending[storageKey]; ok {
			mutations = append(mutations, m.Clone())
		}
	}

	if err := c.mgr.commit(mutations); err != nil {
		return err
	}

	c.clearPending()
	return nil
}

// Discard drops all pending mutations without committing them.
func (c *Context) Discard() error {
	if err := c.confined("Discard"); err != nil {
		return err
	}
	c.clearPending()
	return nil
}

// markClosed discards pending mutations and marks the context unusable.
// It must run on the context's own queue as its final block.
func (c *Context) markClosed() {
	c.clearPending()
	c.closed = true
}

// shutdown closes the context from the outside: the closing block is
// scheduled as the last job, then the queue stops accepting work.
func (c *Context) shutdown() {
	c.queue.submit(func() {
		c.markClosed()
	})
	c.queue.close()
	c.queue.wait()
}

// --------------------------------------------------------------------------
// Overlay Helpers
// --------------------------------------------------------------------------

func (c *Context) record(storageKey string, m *entity.Mutation) {
	if _, ok := c.pending[storageKey]; !ok {
		c.pendingIdx = append(c.pendingIdx, storageKey)
	}
	c.pending[storageKey] = m
}

func (c *Context) unrecord(storageKey string) {
	delete(c.pending, storageKey)
	for i, k := range c.pendingIdx {
		if k == storageKey {
			c.pendingIdx = append(c.pendingIdx[:i], c.pendingIdx[i+1:]...)
			break
		}
	}
}

func (c *Context) clearPending() {
	c.pending = make(map[string]*entity.Mutation)
	c.pendingIdx = nil
}
