package entity

import (
	"testing"
)

func TestStorageKeyRoundTrip(t *testing.T) {
	e := Entity{Type: "user", Key: "alice"}

	if got := e.StorageKey(); got != "user/alice" {
		t.Errorf("Expected storage key user/alice, got %s", got)
	}

	typ, key, ok := SplitStorageKey(e.StorageKey())
	if !ok {
		t.Fatalf("Expected storage key to split")
	}
	if typ != "user" || key != "alice" {
		t.Errorf("Expected (user, alice), got (%s, %s)", typ, key)
	}

	// keys may contain the separator; the first one wins
	typ, key, ok = SplitStorageKey("order/2024/1")
	if !ok || typ != "order" || key != "2024/1" {
		t.Errorf("Expected (order, 2024/1), got (%s, %s, %v)", typ, key, ok)
	}

	for _, bad := range []string{"", "noseparator", "/leading", "trailing/"} {
		if _, _, ok := SplitStorageKey(bad); ok {
			t.Errorf("Expected %q not to split", bad)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := Entity{Type: "user", Key: "alice"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid entity, got %v", err)
	}

	cases := []Entity{
		{Type: "", Key: "alice"},
		{Type: "user", Key: ""},
		{Type: "user/admin", Key: "alice"},
	}
	for _, e := range cases {
		if err := e.Validate(); err == nil {
			t.Errorf("Expected entity %+v to be invalid", e)
		}
	}
}

func TestClone(t *testing.T) {
	original := Entity{
		Type:   "user",
		Key:    "alice",
		Fields: map[string]string{"name": "Alice", "city": "Ulm"},
	}

	clone := original.Clone()
	clone.Fields["name"] = "Bob"

	if original.Fields["name"] != "Alice" {
		t.Errorf("Clone shares field map with original")
	}

	// nil fields stay nil
	bare := Entity{Type: "user", Key: "bob"}
	if bare.Clone().Fields != nil {
		t.Errorf("Expected nil fields to stay nil after Clone")
	}
}

func TestChangeSetClone(t *testing.T) {
	cs := ChangeSet{
		Seq: 7,
		Mutations: []Mutation{
			{Op: OpInsert, Entity: Entity{Type: "user", Key: "alice", Fields: map[string]string{"a": "1"}}},
			{Op: OpDelete, Entity: Entity{Type: "user", Key: "bob"}},
		},
	}

	clone := cs.Clone()
	clone.Mutations[0].Entity.Fields["a"] = "changed"

	if cs.Mutations[0].Entity.Fields["a"] != "1" {
		t.Errorf("ChangeSet clone shares mutation state with original")
	}
	if clone.Seq != 7 {
		t.Errorf("Expected Seq to be copied")
	}
}

func TestMutationOpString(t *testing.T) {
	if OpInsert.String() != "insert" || OpUpdate.String() != "update" || OpDelete.String() != "delete" {
		t.Errorf("Unexpected MutationOp string values")
	}
	if MutationOp(99).String() != "unknown" {
		t.Errorf("Expected unknown for invalid op")
	}
}
