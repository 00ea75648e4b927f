package localstore

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ValentinKolb/tKV/lib/db"
	"github.com/ValentinKolb/tKV/lib/entity"
	"github.com/ValentinKolb/tKV/lib/entity/codec"
	"github.com/ValentinKolb/tKV/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

type storeImpl struct {
	db      db.RecordDB
	codec   codec.ICodec
	index   atomic.Uint64
	schemas *xsync.MapOf[string, store.Schema]
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works in a single
// process. It binds the database engine created by the factory to the given
// entity codec.
func NewLocalStore(factory store.DBFactory, c codec.ICodec) store.IStore {
	return &storeImpl{
		db:      factory(),
		codec:   c,
		schemas: xsync.NewMapOf[string, store.Schema](),
	}
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// advanceIndex raises the index to at least idx.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) advanceIndex(idx uint64) {
	for {
		curr := s.index.Load()
		if idx <= curr {
			return
		}
		if s.index.CompareAndSwap(curr, idx) {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Lookup(typ, key string) (entity.Entity, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return entity.Entity{}, false, store.NewError(store.RetCUnsupportedOperation, "Lookup operation is not supported")
	}

	data, ok := s.db.Get(entity.StorageKey(typ, key))
	if !ok {
		return entity.Entity{}, false, nil
	}

	var e entity.Entity
	if err := s.codec.Decode(data, &e); err != nil {
		return entity.Entity{}, false, store.NewError(store.RetCInternalError,
			fmt.Sprintf("failed to decode entity %s: %v", entity.StorageKey(typ, key), err))
	}
	return e, true, nil
}

func (s *storeImpl) Has(typ, key string) (bool, error) {
	if !s.db.SupportsFeature(db.FeatureHas) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
	}
	return s.db.Has(entity.StorageKey(typ, key)), nil
}

func (s *storeImpl) Scan(typ string, fn func(e entity.Entity) bool) error {
	if !s.db.SupportsFeature(db.FeatureScan) {
		return store.NewError(store.RetCUnsupportedOperation, "Scan operation is not supported")
	}

	prefix := ""
	if typ != "" {
		prefix = entity.TypePrefix(typ)
	}

	var decodeErr error
	s.db.Scan(prefix, func(key string, value []byte) bool {
		var e entity.Entity
		if err := s.codec.Decode(value, &e); err != nil {
			decodeErr = store.NewError(store.RetCInternalError,
				fmt.Sprintf("failed to decode entity %s: %v", key, err))
			return false
		}
		return fn(e)
	})
	return decodeErr
}

func (s *storeImpl) Check(mutations []entity.Mutation) error {
	var violations []string

	for _, m := range mutations {
		if err := m.Entity.Validate(); err != nil {
			violations = append(violations, err.Error())
			continue
		}

		// deletes carry only the identity, nothing more to check
		if m.Op == entity.OpDelete {
			continue
		}

		schema, ok := s.schemas.Load(m.Entity.Type)
		if !ok {
			continue
		}

		for _, required := range schema.Required {
			if _, present := m.Entity.Fields[required]; !present {
				violations = append(violations,
					fmt.Sprintf("%s: missing required field %q", m.Entity.StorageKey(), required))
			}
		}

		if len(schema.Allowed) > 0 {
			permitted := make(map[string]struct{}, len(schema.Allowed)+len(schema.Required))
			for _, f := range schema.Allowed {
				permitted[f] = struct{}{}
			}
			for _, f := range schema.Required {
				permitted[f] = struct{}{}
			}
			for name := range m.Entity.Fields {
				if _, ok := permitted[name]; !ok {
					violations = append(violations,
						fmt.Sprintf("%s: field %q not allowed by schema", m.Entity.StorageKey(), name))
				}
			}
		}
	}

	if len(violations) > 0 {
		return store.NewValidationError(violations)
	}
	return nil
}

func (s *storeImpl) Apply(cs entity.ChangeSet) error {
	if !s.db.SupportsFeature(db.FeatureApplyBatch) {
		return store.NewError(store.RetCUnsupportedOperation, "Apply operation is not supported")
	}

	if err := s.Check(cs.Mutations); err != nil {
		return err
	}

	entries := make([]db.BatchEntry, 0, len(cs.Mutations))
	for _, m := range cs.Mutations {
		if m.Op == entity.OpDelete {
			entries = append(entries, db.BatchEntry{
				Key:    m.Entity.StorageKey(),
				Delete: true,
			})
			continue
		}

		data, err := s.codec.Encode(m.Entity)
		if err != nil {
			return store.NewError(store.RetCInternalError,
				fmt.Sprintf("failed to encode entity %s: %v", m.Entity.StorageKey(), err))
		}
		entries = append(entries, db.BatchEntry{
			Key:   m.Entity.StorageKey(),
			Value: data,
		})
	}

	// the commit sequence is the engine write index, so replaying an older
	// change set can never clobber newer data
	writeIndex := cs.Seq
	if writeIndex == 0 {
		writeIndex = s.incAndGetIndex()
	} else {
		s.advanceIndex(writeIndex)
	}

	s.db.ApplyBatch(entries, writeIndex)
	return nil
}

func (s *storeImpl) DefineSchema(typ string, schema store.Schema) error {
	if typ == "" {
		return store.NewError(store.RetCInvalidOperation, "schema type must not be empty")
	}
	if schema.IsZero() {
		s.schemas.Delete(typ)
		return nil
	}
	s.schemas.Store(typ, schema)
	return nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

func (s *storeImpl) Save(w io.Writer) error {
	if !s.db.SupportsFeature(db.FeatureSave) {
		return store.NewError(store.RetCUnsupportedOperation, "Save operation is not supported")
	}
	if err := s.db.Save(w); err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("failed to save store: %v", err))
	}
	return nil
}

func (s *storeImpl) Load(r io.Reader) error {
	if !s.db.SupportsFeature(db.FeatureLoad) {
		return store.NewError(store.RetCUnsupportedOperation, "Load operation is not supported")
	}
	if err := s.db.Load(r); err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("failed to load store: %v", err))
	}
	s.advanceIndex(s.db.WriteIdx())
	return nil
}

func (s *storeImpl) Close() error {
	return s.db.Close()
}
