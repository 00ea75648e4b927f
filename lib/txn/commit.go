package txn

import (
	"errors"
	"time"

	"github.com/ValentinKolb/tKV/lib/db/util"
	"github.com/ValentinKolb/tKV/lib/entity"
	"github.com/ValentinKolb/tKV/lib/store"
)

// commitRequest carries one committing context's change set into the merge
// loop. done receives exactly one value: the outcome of the merge.
type commitRequest struct {
	cs   entity.ChangeSet
	done chan error
}

// commit assigns the next commit sequence number to the mutations and hands
// them to the merge loop, blocking until they are merged or rejected.
//
// Sequence assignment and inbox push are not atomic, so requests may arrive
// at the merge loop out of order; the loop re-orders them before applying.
// Every assigned sequence number is pushed immediately afterwards by the
// same goroutine, so the sequence stream has no holes while the inbox is
// open.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *managerImpl) commit(mutations []entity.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	start := time.Now()

	req := &commitRequest{
		cs: entity.ChangeSet{
			Seq:       m.commitSeq.Add(1),
			Mutations: mutations,
		},
		done: make(chan error, 1),
	}

	if !m.inbox.Push(req) {
		m.recordUsageViolation()
		return NewError(RetCUsageViolation, "commit on closed manager")
	}

	if err := <-req.done; err != nil {
		return err
	}

	metricCommits.Inc()
	metricCommitDuration.UpdateDuration(start)
	return nil
}

// mergeLoop is the single consumer of the commit inbox. It restores commit
// sequence order with a reorder buffer, applies each change set to the
// store, and broadcasts applied change sets to subscribers.
//
// The loop runs until the inbox is closed and drained. Change sets still
// buffered at that point are applied in ascending sequence order; sequence
// holes are tolerated during this final drain because their committers
// have already been rejected at the inbox.
func (m *managerImpl) mergeLoop() {
	defer close(m.mergeDone)

	reorder := util.NewMapHeap()
	waiting := make(map[uint64]*commitRequest)
	next := uint64(1)

	for req := range m.inbox.Recv() {
		waiting[req.cs.Seq] = req
		reorder.AddItem(req.cs.Seq, req.cs.Seq)

		for {
			top, ok := reorder.Peek()
			if !ok || top.Priority != next {
				break
			}
			reorder.PopMin()

			r := waiting[next]
			delete(waiting, next)
			r.done <- m.applyAndBroadcast(r.cs)
			next++
		}
	}

	// shutdown drain
	for {
		top, ok := reorder.PopMin()
		if !ok {
			break
		}
		r := waiting[top.Key]
		delete(waiting, top.Key)
		r.done <- m.applyAndBroadcast(r.cs)
	}
}

// applyAndBroadcast persists one change set and, on success, notifies the
// subscribers. Runs only on the merge loop goroutine.
func (m *managerImpl) applyAndBroadcast(cs entity.ChangeSet) error {
	if err := m.store.Apply(cs); err != nil {
		var storeErr *store.Error
		if errors.As(err, &storeErr) && storeErr.Code == store.RetCValidation {
			metricFailValidation.Inc()
			m.log.Debugf("change set %d rejected: %v", cs.Seq, err)
			return WrapError(RetCValidation, "change set rejected by store", err)
		}

		metricFailPersistence.Inc()
		m.log.Errorf("change set %d could not be persisted: %v", cs.Seq, err)
		return WrapError(RetCPersistence, "change set could not be persisted", err)
	}

	metricMerges.Inc()
	m.view.apply(cs)
	m.broadcast(cs)
	return nil
}

// broadcast fans an applied change set out to all subscribers. Sends never
// block; a subscriber whose buffer is full misses the change set.
func (m *managerImpl) broadcast(cs entity.ChangeSet) {
	m.subscribers.Range(func(id uint64, ch chan entity.ChangeSet) bool {
		select {
		case ch <- cs.Clone():
		default:
			metricDroppedNotifies.Inc()
			m.log.Warningf("subscriber %d lagging, dropped change set %d", id, cs.Seq)
		}
		return true
	})
}
