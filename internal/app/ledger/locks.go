package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"ledger/internal/domain"
)

// lockTable hands out one exclusive lock per account id. Multi-account
// operations always take their locks in ascending id order, whichever
// account is logically the source, so two operations over the same pair
// cannot deadlock each other.
type lockTable struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	maxWait time.Duration // 0 = wait indefinitely
}

func newLockTable(maxWait time.Duration) *lockTable {
	return &lockTable{
		locks:   make(map[string]chan struct{}),
		maxWait: maxWait,
	}
}

func (t *lockTable) get(id string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[id] = ch
	}
	return ch
}

// acquire blocks until every requested lock is held, then returns the
// release function. Context cancellation is honored only while no lock is
// held yet; once the first lock is taken the operation must run to
// completion. A configured maxWait bounds each wait and fails the
// operation with domain.ErrConcurrencyTimeout instead of hanging.
func (t *lockTable) acquire(ctx context.Context, ids ...string) (func(), error) {
	sorted := canonicalOrder(ids)

	var held []chan struct{}
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, id := range sorted {
		ch := t.get(id)

		// nil channels block forever, disabling the unused cases below.
		var cancelled <-chan struct{}
		if len(held) == 0 {
			cancelled = ctx.Done()
		}
		var timeout <-chan time.Time
		var timer *time.Timer
		if t.maxWait > 0 {
			timer = time.NewTimer(t.maxWait)
			timeout = timer.C
		}

		select {
		case ch <- struct{}{}:
			if timer != nil {
				timer.Stop()
			}
			held = append(held, ch)
		case <-cancelled:
			if timer != nil {
				timer.Stop()
			}
			release()
			return nil, ctx.Err()
		case <-timeout:
			release()
			return nil, domain.ErrConcurrencyTimeout
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func canonicalOrder(ids []string) []string {
	sorted := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	return sorted
}
