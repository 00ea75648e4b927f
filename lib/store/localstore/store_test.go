package localstore

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ValentinKolb/tKV/lib/db"
	"github.com/ValentinKolb/tKV/lib/db/engines/grove"
	"github.com/ValentinKolb/tKV/lib/entity"
	"github.com/ValentinKolb/tKV/lib/entity/codec"
	"github.com/ValentinKolb/tKV/lib/store"
)

func newTestStore() store.IStore {
	return NewLocalStore(func() db.RecordDB {
		return grove.NewGroveDB(nil)
	}, codec.NewBinaryCodec())
}

func applyOne(t *testing.T, s store.IStore, seq uint64, mutations ...entity.Mutation) {
	t.Helper()
	if err := s.Apply(entity.ChangeSet{Seq: seq, Mutations: mutations}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
}

func TestLookupAndHas(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	applyOne(t, s, 1, entity.Mutation{
		Op: entity.OpInsert,
		Entity: entity.Entity{
			Type:   "user",
			Key:    "alice",
			Fields: map[string]string{"name": "Alice"},
		},
	})

	e, ok, err := s.Lookup("user", "alice")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !ok {
		t.Fatalf("Expected entity to exist")
	}
	if e.Fields["name"] != "Alice" {
		t.Errorf("Expected name Alice, got %q", e.Fields["name"])
	}

	if _, ok, _ := s.Lookup("user", "bob"); ok {
		t.Errorf("Expected missing entity to report loaded=false")
	}

	if ok, _ := s.Has("user", "alice"); !ok {
		t.Errorf("Expected Has to find existing entity")
	}
	if ok, _ := s.Has("order", "alice"); ok {
		t.Errorf("Expected Has to miss entity of a different type")
	}
}

func TestApplyAtomicChangeSet(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	applyOne(t, s, 1,
		entity.Mutation{Op: entity.OpInsert, Entity: entity.Entity{
			Type: "user", Key: "alice", Fields: map[string]string{"v": "1"},
		}},
		entity.Mutation{Op: entity.OpInsert, Entity: entity.Entity{
			Type: "user", Key: "bob", Fields: map[string]string{"v": "1"},
		}},
	)

	// one change set updating alice and deleting bob
	applyOne(t, s, 2,
		entity.Mutation{Op: entity.OpUpdate, Entity: entity.Entity{
			Type: "user", Key: "alice", Fields: map[string]string{"v": "2"},
		}},
		entity.Mutation{Op: entity.OpDelete, Entity: entity.Entity{
			Type: "user", Key: "bob",
		}},
	)

	e, ok, _ := s.Lookup("user", "alice")
	if !ok || e.Fields["v"] != "2" {
		t.Errorf("Expected alice to be updated, got %+v (loaded=%v)", e, ok)
	}
	if ok, _ := s.Has("user", "bob"); ok {
		t.Errorf("Expected bob to be deleted")
	}
}

func TestApplyStaleChangeSet(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	applyOne(t, s, 10, entity.Mutation{Op: entity.OpInsert, Entity: entity.Entity{
		Type: "user", Key: "alice", Fields: map[string]string{"v": "new"},
	}})

	// an older change set must not overwrite the newer state
	applyOne(t, s, 5, entity.Mutation{Op: entity.OpUpdate, Entity: entity.Entity{
		Type: "user", Key: "alice", Fields: map[string]string{"v": "old"},
	}})

	e, _, _ := s.Lookup("user", "alice")
	if e.Fields["v"] != "new" {
		t.Errorf("Stale change set overwrote newer value: %q", e.Fields["v"])
	}
}

func TestScanByType(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	applyOne(t, s, 1,
		entity.Mutation{Op: entity.OpInsert, Entity: entity.Entity{Type: "user", Key: "alice", Fields: map[string]string{}}},
		entity.Mutation{Op: entity.OpInsert, Entity: entity.Entity{Type: "user", Key: "bob", Fields: map[string]string{}}},
		entity.Mutation{Op: entity.OpInsert, Entity: entity.Entity{Type: "order", Key: "1", Fields: map[string]string{}}},
	)

	var users []string
	err := s.Scan("user", func(e entity.Entity) bool {
		users = append(users, e.Key)
		return true
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("Expected 2 users, got %v", users)
	}

	// empty type scans everything
	total := 0
	if err := s.Scan("", func(e entity.Entity) bool {
		total++
		return true
	}); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected full scan to visit 3 entities, visited %d", total)
	}

	// early termination
	count := 0
	if err := s.Scan("user", func(e entity.Entity) bool {
		count++
		return false
	}); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected scan to stop after first entity, visited %d", count)
	}
}

func TestCheckStructuralValidation(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	err := s.Check([]entity.Mutation{
		{Op: entity.OpInsert, Entity: entity.Entity{Type: "", Key: "alice"}},
		{Op: entity.OpInsert, Entity: entity.Entity{Type: "user", Key: ""}},
		{Op: entity.OpInsert, Entity: entity.Entity{Type: "user/admin", Key: "alice"}},
	})

	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("Expected *store.Error, got %v", err)
	}
	if storeErr.Code != store.RetCValidation {
		t.Errorf("Expected RetCValidation, got %d", storeErr.Code)
	}
	if len(storeErr.Violations) != 3 {
		t.Errorf("Expected 3 violations, got %v", storeErr.Violations)
	}
}

func TestSchemaValidation(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	if err := s.DefineSchema("user", store.Schema{
		Required: []string{"name"},
		Allowed:  []string{"email"},
	}); err != nil {
		t.Fatalf("DefineSchema failed: %v", err)
	}

	// valid mutation passes
	if err := s.Check([]entity.Mutation{{Op: entity.OpInsert, Entity: entity.Entity{
		Type: "user", Key: "alice", Fields: map[string]string{"name": "Alice", "email": "a@example.com"},
	}}}); err != nil {
		t.Errorf("Expected valid mutation to pass, got %v", err)
	}

	// missing required field and disallowed field are both reported
	err := s.Check([]entity.Mutation{{Op: entity.OpInsert, Entity: entity.Entity{
		Type: "user", Key: "bob", Fields: map[string]string{"age": "42"},
	}}})
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("Expected *store.Error, got %v", err)
	}
	if len(storeErr.Violations) != 2 {
		t.Errorf("Expected 2 violations, got %v", storeErr.Violations)
	}

	// deletes skip schema validation
	if err := s.Check([]entity.Mutation{{Op: entity.OpDelete, Entity: entity.Entity{
		Type: "user", Key: "bob",
	}}}); err != nil {
		t.Errorf("Expected delete to skip schema validation, got %v", err)
	}

	// Apply must reject invalid change sets without persisting anything
	err = s.Apply(entity.ChangeSet{Seq: 1, Mutations: []entity.Mutation{
		{Op: entity.OpInsert, Entity: entity.Entity{
			Type: "user", Key: "carol", Fields: map[string]string{"name": "Carol"},
		}},
		{Op: entity.OpInsert, Entity: entity.Entity{
			Type: "user", Key: "dave", Fields: map[string]string{},
		}},
	}})
	if err == nil {
		t.Fatalf("Expected Apply to fail validation")
	}
	if ok, _ := s.Has("user", "carol"); ok {
		t.Errorf("Expected nothing persisted from rejected change set")
	}

	// removing the schema lifts the restrictions
	if err := s.DefineSchema("user", store.Schema{}); err != nil {
		t.Fatalf("DefineSchema failed: %v", err)
	}
	if err := s.Check([]entity.Mutation{{Op: entity.OpInsert, Entity: entity.Entity{
		Type: "user", Key: "dave", Fields: map[string]string{"age": "42"},
	}}}); err != nil {
		t.Errorf("Expected check to pass after schema removal, got %v", err)
	}

	if err := s.DefineSchema("", store.Schema{Required: []string{"x"}}); err == nil {
		t.Errorf("Expected DefineSchema with empty type to fail")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	source := newTestStore()
	defer source.Close()

	applyOne(t, source, 42, entity.Mutation{Op: entity.OpInsert, Entity: entity.Entity{
		Type: "user", Key: "alice", Fields: map[string]string{"name": "Alice"},
	}})

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	target := newTestStore()
	defer target.Close()

	if err := target.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	e, ok, err := target.Lookup("user", "alice")
	if err != nil || !ok {
		t.Fatalf("Expected entity after Load, got loaded=%v err=%v", ok, err)
	}
	if e.Fields["name"] != "Alice" {
		t.Errorf("Expected name Alice after Load, got %q", e.Fields["name"])
	}

	// a change set older than the loaded state stays stale
	applyOne(t, target, 10, entity.Mutation{Op: entity.OpUpdate, Entity: entity.Entity{
		Type: "user", Key: "alice", Fields: map[string]string{"name": "Old"},
	}})
	e, _, _ = target.Lookup("user", "alice")
	if e.Fields["name"] != "Alice" {
		t.Errorf("Stale post-load change set overwrote newer value")
	}
}
