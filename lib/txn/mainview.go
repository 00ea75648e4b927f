package txn

import (
	"github.com/ValentinKolb/tKV/lib/entity"
	"github.com/puzpuzpuz/xsync/v3"
)

// mainView is the merged read cache of the manager. The merge loop is its
// only writer: every applied change set is folded into the cache in commit
// sequence order, so the cache never runs ahead of or diverges from the
// store. Reads that miss the cache fall through to the store; misses are
// not back-filled, which keeps the single-writer property and rules out
// stale entries.
type mainView struct {
	cache *xsync.MapOf[string, entity.Entity]
}

func newMainView() *mainView {
	return &mainView{
		cache: xsync.NewMapOf[string, entity.Entity](),
	}
}

// apply folds one applied change set into the cache.
// Runs only on the merge loop goroutine.
func (v *mainView) apply(cs entity.ChangeSet) {
	for _, m := range cs.Mutations {
		key := m.Entity.StorageKey()
		if m.Op == entity.OpDelete {
			v.cache.Delete(key)
		} else {
			v.cache.Store(key, m.Entity.Clone())
		}
	}
}

// lookup returns the cached entity for a storage key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *mainView) lookup(storageKey string) (entity.Entity, bool) {
	e, ok := v.cache.Load(storageKey)
	if !ok {
		return entity.Entity{}, false
	}
	return e.Clone(), true
}

// size returns the number of cached entities.
func (v *mainView) size() int {
	return v.cache.Size()
}
