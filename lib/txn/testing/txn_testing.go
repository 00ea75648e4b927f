package testing

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/tKV/lib/entity"
	"github.com/ValentinKolb/tKV/lib/txn"
)

// ManagerFactory is a function that creates a fresh manager on an empty
// store. The manager is closed by the suite; the store's lifetime is the
// factory's concern.
type ManagerFactory func() txn.IManager

// RunManagerTests runs the transaction manager conformance suite. Every
// IManager implementation must pass it regardless of the store and engine
// behind it.
func RunManagerTests(t *testing.T, name string, factory ManagerFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("CommitVisibility", func(t *testing.T) {
			testCommitVisibility(t, factory())
		})

		t.Run("DiscardOnError", func(t *testing.T) {
			testDiscardOnError(t, factory())
		})

		t.Run("DiscardWithoutCommit", func(t *testing.T) {
			testDiscardWithoutCommit(t, factory())
		})

		t.Run("Isolation", func(t *testing.T) {
			testIsolation(t, factory())
		})

		t.Run("Confinement", func(t *testing.T) {
			testConfinement(t, factory())
		})

		t.Run("NestedSyncViolation", func(t *testing.T) {
			testNestedSyncViolation(t, factory())
		})

		t.Run("MainSingleton", func(t *testing.T) {
			testMainSingleton(t, factory())
		})

		t.Run("OrderedNotifications", func(t *testing.T) {
			testOrderedNotifications(t, factory())
		})

		t.Run("ConcurrentCommits", func(t *testing.T) {
			testConcurrentCommits(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func testEntity(key string) entity.Entity {
	return entity.Entity{
		Type:   "suite",
		Key:    key,
		Fields: map[string]string{"k": key},
	}
}

// readBack looks an entity up through a throwaway transaction, so the suite
// only depends on the IManager surface.
func readBack(mgr txn.IManager, key string) (bool, error) {
	var found bool
	err := mgr.TransactAndWait(func(c *txn.Context) error {
		ok, err := c.Has("suite", key)
		found = ok
		return err
	})
	return found, err
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCommitVisibility(t *testing.T, mgr txn.IManager) {
	defer mgr.Close()

	if err := mgr.TransactAndWait(func(c *txn.Context) error {
		if err := c.Insert(testEntity("visible")); err != nil {
			return err
		}
		return c.Commit()
	}); err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	found, err := readBack(mgr, "visible")
	if err != nil {
		t.Fatalf("Read back failed: %v", err)
	}
	if !found {
		t.Errorf("Committed entity not visible to later transactions")
	}
}

func testDiscardOnError(t *testing.T, mgr txn.IManager) {
	defer mgr.Close()

	fail := errors.New("abort")
	err := mgr.TransactAndWait(func(c *txn.Context) error {
		if err := c.Insert(testEntity("doomed")); err != nil {
			return err
		}
		return fail
	})
	if !errors.Is(err, fail) {
		t.Fatalf("Expected body error, got %v", err)
	}

	if found, _ := readBack(mgr, "doomed"); found {
		t.Errorf("Discarded mutation became visible")
	}
}

func testDiscardWithoutCommit(t *testing.T, mgr txn.IManager) {
	defer mgr.Close()

	// the body records a mutation and returns nil without committing
	if err := mgr.TransactAndWait(func(c *txn.Context) error {
		return c.Insert(testEntity("uncommitted"))
	}); err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	if found, _ := readBack(mgr, "uncommitted"); found {
		t.Errorf("Uncommitted mutation became visible")
	}
}

func testIsolation(t *testing.T, mgr txn.IManager) {
	defer mgr.Close()

	pending := make(chan struct{})
	release := make(chan struct{})

	result := mgr.Transact(func(c *txn.Context) error {
		if err := c.Insert(testEntity("isolated")); err != nil {
			return err
		}
		close(pending)
		<-release
		return c.Commit()
	})

	<-pending
	if found, _ := readBack(mgr, "isolated"); found {
		t.Errorf("Uncommitted mutation visible to a concurrent transaction")
	}
	close(release)

	if err := <-result; err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
}

func testConfinement(t *testing.T, mgr txn.IManager) {
	defer mgr.Close()

	var violation error
	if err := mgr.TransactAndWait(func(c *txn.Context) error {
		done := make(chan struct{})
		go func() {
			defer close(done)
			violation = c.Insert(testEntity("foreign"))
		}()
		<-done
		return nil
	}); err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	if !txn.IsUsageViolation(violation) {
		t.Errorf("Expected usage violation for foreign-goroutine access, got %v", violation)
	}
}

func testNestedSyncViolation(t *testing.T, mgr txn.IManager) {
	defer mgr.Close()

	var nested error
	if err := mgr.TransactAndWait(func(c *txn.Context) error {
		nested = mgr.TransactAndWait(func(inner *txn.Context) error { return nil })
		return nil
	}); err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	if !txn.IsUsageViolation(nested) {
		t.Errorf("Expected usage violation for nested synchronous transaction, got %v", nested)
	}
}

func testMainSingleton(t *testing.T, mgr txn.IManager) {
	defer mgr.Close()

	main := mgr.MainContext()
	if main != mgr.MainContext() {
		t.Errorf("Expected MainContext to be a singleton")
	}
	if main.Kind() != txn.KindMain {
		t.Errorf("Expected main kind, got %s", main.Kind())
	}

	mgr.ResetMainContext()
	if mgr.MainContext() == main {
		t.Errorf("Expected a fresh main context after reset")
	}
}

func testOrderedNotifications(t *testing.T, mgr txn.IManager) {
	defer mgr.Close()

	changes, cancel := mgr.Subscribe(64)
	defer cancel()

	const numTxns = 8
	for i := 0; i < numTxns; i++ {
		key := fmt.Sprintf("ordered-%d", i)
		if err := mgr.TransactAndWait(func(c *txn.Context) error {
			if err := c.Insert(testEntity(key)); err != nil {
				return err
			}
			return c.Commit()
		}); err != nil {
			t.Fatalf("Transaction %d failed: %v", i, err)
		}
	}

	var lastSeq uint64
	for i := 0; i < numTxns; i++ {
		cs := <-changes
		if cs.Seq <= lastSeq {
			t.Errorf("Change sets out of order: %d after %d", cs.Seq, lastSeq)
		}
		lastSeq = cs.Seq
	}
}

func testConcurrentCommits(t *testing.T, mgr txn.IManager) {
	defer mgr.Close()

	const numTxns = 32

	var wg sync.WaitGroup
	errs := make([]error, numTxns)

	for i := 0; i < numTxns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = mgr.TransactAndWait(func(c *txn.Context) error {
				if err := c.Insert(testEntity(fmt.Sprintf("concurrent-%d", i))); err != nil {
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

	for i := 0; i < numTxns; i++ {
		if found, _ := readBack(mgr, fmt.Sprintf("concurrent-%d", i)); !found {
			t.Errorf("Entity concurrent-%d missing after commit", i)
		}
	}
}
