package fetch

import (
	"github.com/ValentinKolb/tKV/lib/entity"
	"github.com/ValentinKolb/tKV/lib/txn"
)

// FindByKey returns the entity with the given type and key as the context
// sees it. A missing entity is reported through the boolean, not as an
// error; errors mean the query itself failed.
func FindByKey(c *txn.Context, entityType, key string) (entity.Entity, bool, error) {
	return c.Lookup(entityType, key)
}

// FindAllByKeys returns the entities matching the given keys, in key order.
// Keys without a matching entity are skipped. An empty key list returns an
// empty result, not an error.
func FindAllByKeys(c *txn.Context, entityType string, keys []string) ([]entity.Entity, error) {
	return NewRequest(entityType).WhereKeyIn(keys...).Execute(c)
}

// FindAll returns every entity of the given type as the context sees it.
func FindAll(c *txn.Context, entityType string) ([]entity.Entity, error) {
	return NewRequest(entityType).Execute(c)
}
