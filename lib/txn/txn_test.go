package txn_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/tKV/lib/db"
	"github.com/ValentinKolb/tKV/lib/db/engines/grove"
	"github.com/ValentinKolb/tKV/lib/entity"
	"github.com/ValentinKolb/tKV/lib/entity/codec"
	"github.com/ValentinKolb/tKV/lib/store"
	"github.com/ValentinKolb/tKV/lib/store/localstore"
	"github.com/ValentinKolb/tKV/lib/txn"
)

func newTestManager() (txn.IManager, store.IStore) {
	s := localstore.NewLocalStore(func() db.RecordDB {
		return grove.NewGroveDB(nil)
	}, codec.NewBinaryCodec())
	return txn.NewManager(s), s
}

func user(key, name string) entity.Entity {
	return entity.Entity{
		Type:   "user",
		Key:    key,
		Fields: map[string]string{"name": name},
	}
}

func TestTransactAndWaitCommits(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	err := mgr.TransactAndWait(func(c *txn.Context) error {
		if err := c.Insert(user("alice", "Alice")); err != nil {
			return err
		}
		return c.Commit()
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	// committed state is visible directly on the store
	e, ok, err := s.Lookup("user", "alice")
	if err != nil || !ok {
		t.Fatalf("Expected committed entity, got loaded=%v err=%v", ok, err)
	}
	if e.Fields["name"] != "Alice" {
		t.Errorf("Expected name Alice, got %q", e.Fields["name"])
	}
}

func TestTransactAsync(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	result := mgr.Transact(func(c *txn.Context) error {
		if err := c.Insert(user("bob", "Bob")); err != nil {
			return err
		}
		return c.Commit()
	})

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Transaction failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Transaction did not complete")
	}

	if ok, _ := s.Has("user", "bob"); !ok {
		t.Errorf("Expected committed entity after async transaction")
	}
}

func TestBodyErrorDiscards(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	bodyErr := errors.New("business rule failed")

	err := mgr.TransactAndWait(func(c *txn.Context) error {
		if err := c.Insert(user("alice", "Alice")); err != nil {
			return err
		}
		return bodyErr
	})
	if !errors.Is(err, bodyErr) {
		t.Fatalf("Expected body error, got %v", err)
	}

	if ok, _ := s.Has("user", "alice"); ok {
		t.Errorf("Expected nothing persisted from discarded transaction")
	}
}

func TestDiscardWithoutCommit(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	// the body records mutations, returns nil and never calls Commit
	err := mgr.TransactAndWait(func(c *txn.Context) error {
		return c.Insert(user("ghost", "G"))
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	// rollback by discard: nothing reaches the store
	if ok, _ := s.Has("user", "ghost"); ok {
		t.Errorf("Uncommitted mutation was persisted")
	}

	// and nothing is visible to a fresh transaction either
	if err := mgr.TransactAndWait(func(c *txn.Context) error {
		if ok, err := c.Has("user", "ghost"); err != nil || ok {
			return fmt.Errorf("uncommitted mutation visible to a later transaction (ok=%v err=%v)", ok, err)
		}
		return nil
	}); err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
}

func TestTransactionIsolation(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	inTxn := make(chan struct{})
	release := make(chan struct{})

	result := mgr.Transact(func(c *txn.Context) error {
		if err := c.Insert(user("alice", "Alice")); err != nil {
			return err
		}

		// the context itself sees its pending insert
		if ok, err := c.Has("user", "alice"); err != nil || !ok {
			return fmt.Errorf("expected pending insert to be visible inside the context")
		}

		close(inTxn)
		<-release
		return c.Commit()
	})

	<-inTxn

	// uncommitted mutations are invisible outside the context
	if ok, _ := s.Has("user", "alice"); ok {
		t.Errorf("Pending mutation leaked out of the transaction")
	}

	close(release)
	if err := <-result; err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	if ok, _ := s.Has("user", "alice"); !ok {
		t.Errorf("Expected entity after commit")
	}
}

func TestOverlaySemantics(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	// seed committed state
	if err := mgr.TransactAndWait(func(c *txn.Context) error {
		if err := c.Insert(user("alice", "Alice")); err != nil {
			return err
		}
		if err := c.Insert(user("bob", "Bob")); err != nil {
			return err
		}
		return c.Commit()
	}); err != nil {
		t.Fatalf("Seed transaction failed: %v", err)
	}

	err := mgr.TransactAndWait(func(c *txn.Context) error {
		// update shadows committed state
		if err := c.Update(user("alice", "Alicia")); err != nil {
			return err
		}
		e, ok, err := c.Lookup("user", "alice")
		if err != nil || !ok || e.Fields["name"] != "Alicia" {
			return fmt.Errorf("expected overlay update to shadow committed state, got %+v", e)
		}

		// delete shadows committed state
		if err := c.Delete("user", "bob"); err != nil {
			return err
		}
		if ok, _ := c.Has("user", "bob"); ok {
			return fmt.Errorf("expected pending delete to hide entity")
		}

		// pending insert appears in scans, deleted entity does not
		if err := c.Insert(user("carol", "Carol")); err != nil {
			return err
		}
		seen := map[string]string{}
		if err := c.Scan("user", func(e entity.Entity) bool {
			seen[e.Key] = e.Fields["name"]
			return true
		}); err != nil {
			return err
		}
		if len(seen) != 2 || seen["alice"] != "Alicia" || seen["carol"] != "Carol" {
			return fmt.Errorf("unexpected scan view: %v", seen)
		}

		// insert then delete cancels out
		if err := c.Insert(user("dave", "Dave")); err != nil {
			return err
		}
		if err := c.Delete("user", "dave"); err != nil {
			return err
		}
		pending, err := c.Pending()
		if err != nil {
			return err
		}
		if pending != 3 {
			return fmt.Errorf("expected 3 pending mutations, got %d", pending)
		}
		return c.Commit()
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	// committed view reflects the net effect
	e, _, _ := s.Lookup("user", "alice")
	if e.Fields["name"] != "Alicia" {
		t.Errorf("Expected committed update, got %q", e.Fields["name"])
	}
	if ok, _ := s.Has("user", "bob"); ok {
		t.Errorf("Expected bob to be deleted")
	}
	if ok, _ := s.Has("user", "carol"); !ok {
		t.Errorf("Expected carol to be inserted")
	}
	if ok, _ := s.Has("user", "dave"); ok {
		t.Errorf("Expected dave to cancel out")
	}
}

func TestInsertValidation(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	if err := mgr.TransactAndWait(func(c *txn.Context) error {
		if err := c.Insert(user("alice", "Alice")); err != nil {
			return err
		}
		return c.Commit()
	}); err != nil {
		t.Fatalf("Seed transaction failed: %v", err)
	}

	// double insert of a committed entity
	err := mgr.TransactAndWait(func(c *txn.Context) error {
		return c.Insert(user("alice", "Other"))
	})
	if !txn.IsValidation(err) {
		t.Errorf("Expected validation error for duplicate insert, got %v", err)
	}

	// update of a missing entity
	err = mgr.TransactAndWait(func(c *txn.Context) error {
		return c.Update(user("nobody", "X"))
	})
	if !txn.IsValidation(err) {
		t.Errorf("Expected validation error for update of missing entity, got %v", err)
	}

	// structurally invalid entity
	err = mgr.TransactAndWait(func(c *txn.Context) error {
		return c.Insert(entity.Entity{Type: "", Key: "x"})
	})
	if !txn.IsValidation(err) {
		t.Errorf("Expected validation error for invalid entity, got %v", err)
	}
}

func TestSchemaRejectionAtCommit(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	if err := s.DefineSchema("user", store.Schema{Required: []string{"email"}}); err != nil {
		t.Fatalf("DefineSchema failed: %v", err)
	}

	err := mgr.TransactAndWait(func(c *txn.Context) error {
		if err := c.Insert(user("alice", "Alice")); err != nil { // no email field
			return err
		}
		return c.Commit()
	})
	if !txn.IsValidation(err) {
		t.Fatalf("Expected validation error from commit, got %v", err)
	}

	if ok, _ := s.Has("user", "alice"); ok {
		t.Errorf("Expected rejected change set not to be persisted")
	}
}

func TestConfinementViolation(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	var violation error

	err := mgr.TransactAndWait(func(c *txn.Context) error {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			// entity operation from a foreign goroutine
			violation = c.Insert(user("intruder", "X"))
		}()
		wg.Wait()
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	if !txn.IsUsageViolation(violation) {
		t.Errorf("Expected usage violation for off-goroutine operation, got %v", violation)
	}
	if ok, _ := s.Has("user", "intruder"); ok {
		t.Errorf("Off-goroutine insert must not be recorded")
	}
}

func TestNestedSyncTransactionViolation(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	var nested error

	err := mgr.TransactAndWait(func(c *txn.Context) error {
		nested = mgr.TransactAndWait(func(inner *txn.Context) error {
			return nil
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Outer transaction failed: %v", err)
	}

	if !txn.IsUsageViolation(nested) {
		t.Errorf("Expected usage violation for nested synchronous transaction, got %v", nested)
	}
}

func TestNestedAsyncTransactionAllowed(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	var inner <-chan error

	err := mgr.TransactAndWait(func(c *txn.Context) error {
		inner = mgr.Transact(func(c2 *txn.Context) error {
			if err := c2.Insert(user("async", "A")); err != nil {
				return err
			}
			return c2.Commit()
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Outer transaction failed: %v", err)
	}

	if err := <-inner; err != nil {
		t.Fatalf("Inner transaction failed: %v", err)
	}
	if ok, _ := s.Has("user", "async"); !ok {
		t.Errorf("Expected inner async transaction to commit")
	}
}

func TestMainContext(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	main := mgr.MainContext()
	if main.Kind() != txn.KindMain {
		t.Errorf("Expected main kind, got %s", main.Kind())
	}
	if mgr.MainContext() != main {
		t.Errorf("Expected MainContext to return the singleton")
	}

	// direct use from the test goroutine is a confinement violation
	if err := main.Insert(user("direct", "X")); !txn.IsUsageViolation(err) {
		t.Errorf("Expected usage violation for direct main context access, got %v", err)
	}

	// scheduled blocks can mutate and commit
	err := main.Sync(func(c *txn.Context) error {
		if err := c.Insert(user("alice", "Alice")); err != nil {
			return err
		}
		return c.Commit()
	})
	if err != nil {
		t.Fatalf("Main context block failed: %v", err)
	}

	if ok, _ := s.Has("user", "alice"); !ok {
		t.Errorf("Expected main context commit to be persisted")
	}

	// the main context survives commits and can be reused
	err = main.Sync(func(c *txn.Context) error {
		pending, err := c.Pending()
		if err != nil {
			return err
		}
		if pending != 0 {
			return fmt.Errorf("expected empty overlay after commit, got %d", pending)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Main context block failed: %v", err)
	}
}

func TestResetMainContext(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	main := mgr.MainContext()

	if err := main.Sync(func(c *txn.Context) error {
		return c.Insert(user("pending", "P"))
	}); err != nil {
		t.Fatalf("Main context block failed: %v", err)
	}

	mgr.ResetMainContext()

	// the old context is closed now
	err := main.Sync(func(c *txn.Context) error { return nil })
	if !txn.IsUsageViolation(err) {
		t.Errorf("Expected usage violation on reset context, got %v", err)
	}

	// pending mutations are gone, a fresh context starts clean
	fresh := mgr.MainContext()
	if fresh == main {
		t.Errorf("Expected a fresh main context after reset")
	}
	if err := fresh.Sync(func(c *txn.Context) error {
		if ok, _ := c.Has("user", "pending"); ok {
			return fmt.Errorf("discarded mutation survived reset")
		}
		return nil
	}); err != nil {
		t.Fatalf("Fresh main context block failed: %v", err)
	}
	if ok, _ := s.Has("user", "pending"); ok {
		t.Errorf("Discarded mutation was persisted")
	}
}

func TestSubscribeReceivesChangeSetsInOrder(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	changes, cancel := mgr.Subscribe(64)
	defer cancel()

	const numTxns = 10
	for i := 0; i < numTxns; i++ {
		key := fmt.Sprintf("user-%d", i)
		if err := mgr.TransactAndWait(func(c *txn.Context) error {
			if err := c.Insert(user(key, key)); err != nil {
				return err
			}
			return c.Commit()
		}); err != nil {
			t.Fatalf("Transaction %d failed: %v", i, err)
		}
	}

	var lastSeq uint64
	for i := 0; i < numTxns; i++ {
		select {
		case cs := <-changes:
			if cs.Seq <= lastSeq {
				t.Errorf("Expected ascending sequence, got %d after %d", cs.Seq, lastSeq)
			}
			lastSeq = cs.Seq
			if len(cs.Mutations) != 1 || cs.Mutations[0].Op != entity.OpInsert {
				t.Errorf("Unexpected change set: %+v", cs)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Missing change set %d", i)
		}
	}

	// cancelled subscribers receive nothing further
	cancel()
	if err := mgr.TransactAndWait(func(c *txn.Context) error {
		if err := c.Insert(user("after-cancel", "X")); err != nil {
			return err
		}
		return c.Commit()
	}); err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
	select {
	case cs, ok := <-changes:
		if ok {
			t.Errorf("Expected no delivery after cancel, got %+v", cs)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConcurrentTransactions(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	const numTxns = 64

	var wg sync.WaitGroup
	errs := make([]error, numTxns)

	for i := 0; i < numTxns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("user-%d", i)
			errs[i] = mgr.TransactAndWait(func(c *txn.Context) error {
				if err := c.Insert(user(key, key)); err != nil {
					return err
				}
				return c.Commit()
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Transaction %d failed: %v", i, err)
		}
	}

	count := 0
	if err := s.Scan("user", func(e entity.Entity) bool {
		count++
		return true
	}); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if count != numTxns {
		t.Errorf("Expected %d committed entities, got %d", numTxns, count)
	}
}

func TestLastCommitWins(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	if err := mgr.TransactAndWait(func(c *txn.Context) error {
		if err := c.Insert(user("alice", "v0")); err != nil {
			return err
		}
		return c.Commit()
	}); err != nil {
		t.Fatalf("Seed transaction failed: %v", err)
	}

	for i := 1; i <= 5; i++ {
		name := fmt.Sprintf("v%d", i)
		if err := mgr.TransactAndWait(func(c *txn.Context) error {
			if err := c.Update(user("alice", name)); err != nil {
				return err
			}
			return c.Commit()
		}); err != nil {
			t.Fatalf("Update transaction %d failed: %v", i, err)
		}
	}

	e, _, _ := s.Lookup("user", "alice")
	if e.Fields["name"] != "v5" {
		t.Errorf("Expected last committed value v5, got %q", e.Fields["name"])
	}
}

func TestMultipleCommitsInOneBody(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	err := mgr.TransactAndWait(func(c *txn.Context) error {
		if err := c.Insert(user("first", "1")); err != nil {
			return err
		}
		if err := c.Commit(); err != nil {
			return err
		}

		// the overlay is empty again, the context stays usable
		pending, err := c.Pending()
		if err != nil {
			return err
		}
		if pending != 0 {
			return fmt.Errorf("expected empty overlay after commit, got %d", pending)
		}

		// the second commit flushes only what accumulated since the first
		if err := c.Insert(user("second", "2")); err != nil {
			return err
		}
		if err := c.Commit(); err != nil {
			return err
		}

		// committing with nothing pending is a no-op
		return c.Commit()
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	for _, key := range []string{"first", "second"} {
		if ok, _ := s.Has("user", key); !ok {
			t.Errorf("Expected entity %s after both commits", key)
		}
	}
}

func TestManagerClose(t *testing.T) {
	mgr, s := newTestManager()
	defer s.Close()

	if err := mgr.TransactAndWait(func(c *txn.Context) error {
		if err := c.Insert(user("alice", "Alice")); err != nil {
			return err
		}
		return c.Commit()
	}); err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	if err := mgr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// transactions after close fail with a usage violation
	err := <-mgr.Transact(func(c *txn.Context) error { return nil })
	if !txn.IsUsageViolation(err) {
		t.Errorf("Expected usage violation after close, got %v", err)
	}

	// closing twice is harmless
	if err := mgr.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}

	// the store is still usable, the manager does not own it
	if ok, _ := s.Has("user", "alice"); !ok {
		t.Errorf("Expected store to stay open after manager close")
	}
}

func TestCurrentResolvesAttachedContext(t *testing.T) {
	mgr, s := newTestManager()
	defer mgr.Close()
	defer s.Close()

	// outside any context worker there is no current context
	if _, ok := mgr.Current(); ok {
		t.Errorf("Expected no current context on the test goroutine")
	}

	err := mgr.TransactAndWait(func(c *txn.Context) error {
		current, ok := mgr.Current()
		if !ok || current != c {
			return fmt.Errorf("expected Current to resolve the executing context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	usage := txn.NewError(txn.RetCUsageViolation, "x")
	validation := txn.NewError(txn.RetCValidation, "x")
	persistence := txn.NewError(txn.RetCPersistence, "x")
	fetch := txn.NewError(txn.RetCFetch, "x")

	if !txn.IsUsageViolation(usage) || txn.IsUsageViolation(validation) {
		t.Errorf("IsUsageViolation misclassifies")
	}
	if !txn.IsValidation(validation) || txn.IsValidation(fetch) {
		t.Errorf("IsValidation misclassifies")
	}
	if !txn.IsPersistence(persistence) || txn.IsPersistence(usage) {
		t.Errorf("IsPersistence misclassifies")
	}
	if !txn.IsFetch(fetch) || txn.IsFetch(persistence) {
		t.Errorf("IsFetch misclassifies")
	}

	// classification works across wrapping
	wrapped := txn.WrapError(txn.RetCValidation, "outer", errors.New("inner"))
	if !txn.IsValidation(wrapped) {
		t.Errorf("Expected classification to survive wrapping")
	}
	if txn.IsValidation(errors.New("plain")) {
		t.Errorf("Plain errors must not classify")
	}
}
