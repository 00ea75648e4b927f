package fetch

import (
	"github.com/ValentinKolb/tKV/lib/entity"
	"github.com/ValentinKolb/tKV/lib/txn"
)

// Request describes a query against a context's view. Requests are built
// with the fluent Where/Limit methods and run with Execute; a Request is
// reusable and safe to execute multiple times.
type Request struct {
	entityType string
	keys       []string // nil: no key filter
	limit      int      // 0: no limit
}

// NewRequest creates a query for all entities of the given type.
func NewRequest(entityType string) *Request {
	return &Request{entityType: entityType}
}

// WhereKeyIn restricts the result to entities with one of the given keys.
// Results preserve the key order; keys without a matching entity are
// skipped. An empty key list yields an empty result, not an error.
func (r *Request) WhereKeyIn(keys ...string) *Request {
	if keys == nil {
		keys = []string{}
	}
	r.keys = keys
	return r
}

// Limit caps the number of returned entities. Zero means no limit.
func (r *Request) Limit(n int) *Request {
	r.limit = n
	return r
}

// Execute runs the query against the given context's view: committed state
// shadowed by the context's pending mutations. Like every context
// operation it must run on the context's worker goroutine.
func (r *Request) Execute(c *txn.Context) ([]entity.Entity, error) {
	if r.entityType == "" {
		return nil, txn.NewError(txn.RetCFetch, "fetch request without entity type")
	}

	if r.keys != nil {
		return r.executeByKeys(c)
	}
	return r.executeScan(c)
}

func (r *Request) executeByKeys(c *txn.Context) ([]entity.Entity, error) {
	result := make([]entity.Entity, 0, len(r.keys))
	for _, key := range r.keys {
		if r.limit > 0 && len(result) >= r.limit {
			break
		}

		e, ok, err := c.Lookup(r.entityType, key)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *Request) executeScan(c *txn.Context) ([]entity.Entity, error) {
	var result []entity.Entity
	err := c.Scan(r.entityType, func(e entity.Entity) bool {
		result = append(result, e)
		return r.limit == 0 || len(result) < r.limit
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
