package fetch

import (
	"sync"

	"github.com/ValentinKolb/tKV/lib/entity"
	"github.com/ValentinKolb/tKV/lib/txn"
)

// Observer bridges the commit engine's change stream to foreground code.
// It subscribes to the manager, filters change sets down to the observed
// entity types, and re-publishes them on its own channel. Change sets
// arrive in commit sequence order.
//
// An observer with no type filter forwards every change set.
type Observer struct {
	out       chan entity.ChangeSet
	cancel    func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewObserver starts observing committed change sets on the manager.
// The buffer bounds how far the consumer may fall behind before change
// sets are dropped by the subscription.
func NewObserver(mgr txn.IManager, buffer int, entityTypes ...string) *Observer {
	changes, cancel := mgr.Subscribe(buffer)

	types := make(map[string]struct{}, len(entityTypes))
	for _, t := range entityTypes {
		types[t] = struct{}{}
	}

	o := &Observer{
		out:    make(chan entity.ChangeSet, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go o.run(changes, types)

	return o
}

// run filters and forwards change sets until the subscription ends or the
// observer is closed.
func (o *Observer) run(changes <-chan entity.ChangeSet, types map[string]struct{}) {
	defer close(o.out)

	for {
		select {
		case cs, ok := <-changes:
			if !ok {
				return
			}

			filtered := o.filter(cs, types)
			if len(filtered.Mutations) == 0 {
				continue
			}

			select {
			case o.out <- filtered:
			case <-o.done:
				return
			}
		case <-o.done:
			return
		}
	}
}

// filter keeps only mutations of observed types.
func (o *Observer) filter(cs entity.ChangeSet, types map[string]struct{}) entity.ChangeSet {
	if len(types) == 0 {
		return cs
	}

	filtered := entity.ChangeSet{Seq: cs.Seq}
	for _, m := range cs.Mutations {
		if _, ok := types[m.Entity.Type]; ok {
			filtered.Mutations = append(filtered.Mutations, m)
		}
	}
	return filtered
}

// Changes returns the observer's channel. It is closed when the observer
// or the manager shuts down.
func (o *Observer) Changes() <-chan entity.ChangeSet {
	return o.out
}

// Close stops the observer. The Changes channel is closed once the bridge
// goroutine has exited. Close is idempotent.
func (o *Observer) Close() {
	o.closeOnce.Do(func() {
		o.cancel()
		close(o.done)
	})
}
