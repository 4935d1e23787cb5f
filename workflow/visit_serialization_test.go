package workflow

import (
	"fmt"
	"sync"
	"testing"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// serialization semantics of the visit workflow:
// - at most one visit start wins per agent while one is in progress
// - duplicate offline events are applied once via durable idempotency
//
// Full DB integration tests should be added in an environment that can run
// MySQL + a Pub/Sub emulator.

type fakeVisitCoordinator struct {
	muByAgent map[string]*sync.Mutex
	mu        sync.Mutex
	active    map[string]bool
	seenKeys  map[string]bool
	keyStatus map[string]string
	stock     map[int]int
	started   int
	applied   int
}

func newFakeVisitCoordinator() *fakeVisitCoordinator {
	return &fakeVisitCoordinator{
		muByAgent: map[string]*sync.Mutex{},
		active:    map[string]bool{},
		seenKeys:  map[string]bool{},
		keyStatus: map[string]string{},
		stock:     map[int]int{},
	}
}

func (f *fakeVisitCoordinator) agentLock(businessID string, agentID int) *sync.Mutex {
	key := fmt.Sprintf("%s:%d", businessID, agentID)
	f.mu.Lock()
	defer f.mu.Unlock()
	lock := f.muByAgent[key]
	if lock == nil {
		lock = &sync.Mutex{}
		f.muByAgent[key] = lock
	}
	return lock
}

// startVisit mirrors models.StartVisit: serialize per agent (advisory lock),
// then check the single-active-visit invariant under the lock.
func (f *fakeVisitCoordinator) startVisit(businessID string, agentID int) bool {
	lock := f.agentLock(businessID, agentID)
	lock.Lock()
	defer lock.Unlock()

	key := fmt.Sprintf("%s:%d", businessID, agentID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active[key] {
		return false
	}
	f.active[key] = true
	f.started++
	return true
}

// applyEvent mirrors models.SyncVisitEvents: claim the idempotency key, skip
// replays, apply once.
func (f *fakeVisitCoordinator) applyEvent(businessID, clientKey string, fn func()) {
	dedupKey := businessID + "|" + clientKey
	f.mu.Lock()
	if f.seenKeys[dedupKey] {
		f.mu.Unlock()
		return
	}
	f.seenKeys[dedupKey] = true
	f.mu.Unlock()

	fn()

	f.mu.Lock()
	f.applied++
	f.mu.Unlock()
}

// reclaimFailedKey mirrors models.claimSyncKey's retry path: the status flip
// from FAILED to STARTED is conditional on still observing FAILED, so exactly
// one of any number of concurrent resyncs wins the key.
func (f *fakeVisitCoordinator) reclaimFailedKey(clientKey string, fn func()) bool {
	f.mu.Lock()
	if f.keyStatus[clientKey] != "FAILED" {
		f.mu.Unlock()
		return false
	}
	f.keyStatus[clientKey] = "STARTED"
	f.mu.Unlock()

	fn()

	f.mu.Lock()
	f.keyStatus[clientKey] = "SUCCEEDED"
	f.applied++
	f.mu.Unlock()
	return true
}

// sellStock mirrors the sale composer's conditional decrement: the quantity
// guard decides, and a loser is told how much was actually left.
func (f *fakeVisitCoordinator) sellStock(productID, qty int) (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stock[productID] >= qty {
		f.stock[productID] -= qty
		return true, 0
	}
	return false, f.stock[productID]
}

func TestVisitStart_OneWinnerPerAgentUnderConcurrency(t *testing.T) {
	for run := 0; run < 100; run++ {
		f := newFakeVisitCoordinator()
		var wg sync.WaitGroup
		wins := make(chan bool, 50)

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				wins <- f.startVisit("biz-1", 7)
			}()
		}
		wg.Wait()
		close(wins)

		winners := 0
		for won := range wins {
			if won {
				winners++
			}
		}
		if winners != 1 {
			t.Fatalf("run=%d expected exactly 1 winning start, got %d", run, winners)
		}
	}
}

func TestVisitStart_SeparateAgentsDoNotBlockEachOther(t *testing.T) {
	f := newFakeVisitCoordinator()
	var wg sync.WaitGroup
	for agent := 1; agent <= 20; agent++ {
		wg.Add(1)
		go func(agent int) {
			defer wg.Done()
			if !f.startVisit("biz-1", agent) {
				t.Errorf("agent %d should have started its own visit", agent)
			}
		}(agent)
	}
	wg.Wait()

	if f.started != 20 {
		t.Fatalf("expected 20 independent starts, got %d", f.started)
	}
}

func TestSyncReplay_DuplicateEventsApplyOnce(t *testing.T) {
	for run := 0; run < 100; run++ {
		f := newFakeVisitCoordinator()
		var wg sync.WaitGroup

		// The same offline batch delivered concurrently by a retrying client.
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.applyEvent("biz-1", "evt-arrival", func() {})
				f.applyEvent("biz-1", "evt-photo-1", func() {})
				f.applyEvent("biz-1", "evt-arrival", func() {}) // duplicate
			}()
		}
		wg.Wait()

		if f.applied != 2 {
			t.Fatalf("run=%d expected 2 unique applications, got %d", run, f.applied)
		}
	}
}

func TestSyncReplay_FailedKeyReclaimedExactlyOnce(t *testing.T) {
	for run := 0; run < 100; run++ {
		f := newFakeVisitCoordinator()
		f.keyStatus["evt-sale-3"] = "FAILED"

		var wg sync.WaitGroup
		reclaims := make(chan bool, 50)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				reclaims <- f.reclaimFailedKey("evt-sale-3", func() {})
			}()
		}
		wg.Wait()
		close(reclaims)

		winners := 0
		for won := range reclaims {
			if won {
				winners++
			}
		}
		if winners != 1 {
			t.Fatalf("run=%d expected exactly 1 reclaim of the failed key, got %d", run, winners)
		}
		if f.applied != 1 {
			t.Fatalf("run=%d expected the retried event to apply once, got %d", run, f.applied)
		}
	}
}

func TestSale_LostDecrementReportsRemainingQuantity(t *testing.T) {
	f := newFakeVisitCoordinator()
	f.stock[41] = 5

	ok, _ := f.sellStock(41, 3)
	if !ok {
		t.Fatal("first sale of 3 against 5 should succeed")
	}

	ok, remaining := f.sellStock(41, 3)
	if ok {
		t.Fatal("second sale of 3 against 2 should fail")
	}
	if remaining != 2 {
		t.Fatalf("shortage must report the quantity actually left, got %d", remaining)
	}
}
