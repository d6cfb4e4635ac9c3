package workflow

import (
	"fmt"
	"sync"
	"testing"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// concurrency semantics of the match writers:
// - per account+month serialization (AcquireMatchLock) prevents racey interleavings
// - the in-transaction re-check (models EnsureUnmatched) makes double booking impossible
//
// The same guarantees run against a real MySQL in
// models/match_writer_regression_test.go (gated on INTEGRATION_TESTS).

type fakeMatchWriter struct {
	muByUnit map[string]*sync.Mutex
	mu       sync.Mutex
	matched  map[string]bool
	commits  int
	skips    int
}

func newFakeMatchWriter() *fakeMatchWriter {
	return &fakeMatchWriter{
		muByUnit: map[string]*sync.Mutex{},
		matched:  map[string]bool{},
	}
}

func (w *fakeMatchWriter) commit(bankAccountId, year, month, bankTransactionId, dailyPaymentId int) {
	// Serialize per account+month (AcquireMatchLock).
	unit := fmt.Sprintf("%d:%d-%02d", bankAccountId, year, month)
	w.mu.Lock()
	um := w.muByUnit[unit]
	if um == nil {
		um = &sync.Mutex{}
		w.muByUnit[unit] = um
	}
	w.mu.Unlock()

	um.Lock()
	defer um.Unlock()

	// Re-check inside the critical section (models EnsureUnmatched).
	txnKey := fmt.Sprintf("txn:%d", bankTransactionId)
	payKey := fmt.Sprintf("pay:%d", dailyPaymentId)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.matched[txnKey] || w.matched[payKey] {
		w.skips++
		return
	}
	w.matched[txnKey] = true
	w.matched[payKey] = true
	w.commits++
}

func TestConcurrentCommitsBookPairOnce(t *testing.T) {
	w := newFakeMatchWriter()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.commit(1, 2026, 3, 100, 200)
		}()
	}
	wg.Wait()

	if w.commits != 1 {
		t.Fatalf("expected exactly 1 committed match, got %d", w.commits)
	}
	if w.skips != 24 {
		t.Fatalf("expected 24 skipped attempts, got %d", w.skips)
	}
}

func TestConcurrentCommitsShareNeitherSide(t *testing.T) {
	w := newFakeMatchWriter()

	// Two candidates fight over the same payment, two over the same
	// transaction; each side can be booked once.
	var wg sync.WaitGroup
	pairs := [][2]int{
		{100, 200},
		{101, 200},
		{102, 201},
		{102, 202},
	}
	for _, p := range pairs {
		wg.Add(1)
		go func(txnId, payId int) {
			defer wg.Done()
			w.commit(1, 2026, 3, txnId, payId)
		}(p[0], p[1])
	}
	wg.Wait()

	if w.commits != 2 {
		t.Fatalf("expected 2 committed matches (one per contested side), got %d", w.commits)
	}
	if w.skips != 2 {
		t.Fatalf("expected 2 skipped attempts, got %d", w.skips)
	}
}
