package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, tiers Tiers) (*Limiter, *MemoryStore, *fakeClock) {
	t.Helper()
	store := NewMemoryStore()
	clock := newFakeClock()
	l, err := New(store, tiers, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, store, clock
}

func TestLimiter_WithinBudgetAllowed(t *testing.T) {
	t.Parallel()
	l, _, clock := newTestLimiter(t, Tiers{"t": {Window: time.Minute, MaxRequests: 5, BlockDuration: time.Minute}})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.Check(ctx, "t", "k")
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d rejected, want allowed", i)
		}
		if d.Count != i {
			t.Errorf("request %d count = %d, want %d", i, d.Count, i)
		}
		if d.Remaining != 5-i {
			t.Errorf("request %d remaining = %d, want %d", i, d.Remaining, 5-i)
		}
		clock.Advance(time.Second)
	}
}

func TestLimiter_ExceedingBudgetBlocks(t *testing.T) {
	t.Parallel()
	l, _, _ := newTestLimiter(t, Tiers{"t": {Window: time.Minute, MaxRequests: 2, BlockDuration: 30 * time.Second}})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := l.Check(ctx, "t", "k"); !d.Allowed {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	d, err := l.Check(ctx, "t", "k")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Allowed {
		t.Fatal("third request allowed, want rejected")
	}
	if d.RetryAfter != 30 {
		t.Errorf("RetryAfter = %d, want 30", d.RetryAfter)
	}
}

func TestLimiter_BlockCountdownThenFreshWindow(t *testing.T) {
	t.Parallel()
	l, store, clock := newTestLimiter(t, Tiers{"t": {Window: 10 * time.Second, MaxRequests: 1, BlockDuration: time.Minute}})
	ctx := context.Background()

	if d, _ := l.Check(ctx, "t", "k"); !d.Allowed {
		t.Fatal("first request rejected")
	}
	if d, _ := l.Check(ctx, "t", "k"); d.Allowed {
		t.Fatal("second request allowed, want block")
	}
	blocked := store.Lookup("t:k")
	if blocked == nil || blocked.BlockedUntil == nil {
		t.Fatal("expected entry to be blocked")
	}
	windowStart := blocked.WindowStart
	count := blocked.Count

	prev := 61
	for elapsed := 0; elapsed < 60; elapsed += 15 {
		d, _ := l.Check(ctx, "t", "k")
		if d.Allowed {
			t.Fatalf("request %ds into block allowed", elapsed)
		}
		if d.RetryAfter <= 0 || d.RetryAfter >= prev {
			t.Fatalf("RetryAfter = %d, want positive and below %d", d.RetryAfter, prev)
		}
		prev = d.RetryAfter
		clock.Advance(15 * time.Second)
	}

	during := store.Lookup("t:k")
	if !during.WindowStart.Equal(windowStart) || during.Count != count {
		t.Errorf("blocked requests changed the entry: %+v", during)
	}

	// clock is now exactly at blockedUntil
	d, _ := l.Check(ctx, "t", "k")
	if !d.Allowed {
		t.Fatal("request at blockedUntil rejected, want fresh window")
	}
	if d.Count != 1 {
		t.Errorf("fresh window count = %d, want 1", d.Count)
	}
}

func TestLimiter_WindowResets(t *testing.T) {
	t.Parallel()
	l, _, clock := newTestLimiter(t, Tiers{"t": {Window: time.Minute, MaxRequests: 2, BlockDuration: time.Minute}})
	ctx := context.Background()

	l.Check(ctx, "t", "k")
	l.Check(ctx, "t", "k")
	clock.Advance(time.Minute)
	d, _ := l.Check(ctx, "t", "k")
	if !d.Allowed || d.Count != 1 {
		t.Errorf("after window elapsed got %+v, want allowed with count 1", d)
	}
}

func TestLimiter_ZeroBlockRejectsUntilWindowEnd(t *testing.T) {
	t.Parallel()
	l, store, clock := newTestLimiter(t, Tiers{"t": {Window: time.Minute, MaxRequests: 1}})
	ctx := context.Background()

	l.Check(ctx, "t", "k")
	clock.Advance(20 * time.Second)
	d, _ := l.Check(ctx, "t", "k")
	if d.Allowed {
		t.Fatal("over-budget request allowed")
	}
	if d.RetryAfter != 40 {
		t.Errorf("RetryAfter = %d, want 40", d.RetryAfter)
	}
	if e := store.Lookup("t:k"); e.BlockedUntil != nil {
		t.Error("zero block duration must not set blockedUntil")
	}
	clock.Advance(40 * time.Second)
	if d, _ := l.Check(ctx, "t", "k"); !d.Allowed {
		t.Error("request after window end rejected")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()
	l, _, _ := newTestLimiter(t, Tiers{"t": {Window: time.Minute, MaxRequests: 1, BlockDuration: time.Minute}})
	ctx := context.Background()

	l.Check(ctx, "t", "a")
	if d, _ := l.Check(ctx, "t", "a"); d.Allowed {
		t.Fatal("key a should be blocked")
	}
	d, _ := l.Check(ctx, "t", "b")
	if !d.Allowed || d.Count != 1 {
		t.Errorf("key b = %+v, want allowed with count 1", d)
	}
}

func TestLimiter_TiersAreIndependent(t *testing.T) {
	t.Parallel()
	l, _, _ := newTestLimiter(t, Tiers{
		TierSearch: {Window: time.Minute, MaxRequests: 1, BlockDuration: time.Minute},
		TierAPI:    {Window: time.Minute, MaxRequests: 5, BlockDuration: time.Minute},
	})
	ctx := context.Background()

	l.Check(ctx, TierSearch, "1.2.3.4")
	if d, _ := l.Check(ctx, TierSearch, "1.2.3.4"); d.Allowed {
		t.Fatal("search budget should be exhausted")
	}
	if d, _ := l.Check(ctx, TierAPI, "1.2.3.4"); !d.Allowed || d.Count != 1 {
		t.Errorf("api tier = %+v, want unaffected", d)
	}
}

func TestLimiter_EndToEndScenario(t *testing.T) {
	t.Parallel()
	l, _, _ := newTestLimiter(t, Tiers{"scenario": {
		Window:        60000 * time.Millisecond,
		MaxRequests:   3,
		BlockDuration: 600000 * time.Millisecond,
	}})
	ctx := context.Background()

	want := []bool{true, true, true, false}
	for i, allowed := range want {
		d, err := l.Check(ctx, "scenario", "1.2.3.4")
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if d.Allowed != allowed {
			t.Fatalf("request %d allowed = %v, want %v", i+1, d.Allowed, allowed)
		}
		if !allowed && d.RetryAfter != 600 {
			t.Errorf("RetryAfter = %d, want 600", d.RetryAfter)
		}
	}
}

func TestLimiter_UnknownTier(t *testing.T) {
	t.Parallel()
	l, _, _ := newTestLimiter(t, DefaultTiers())
	_, err := l.Check(context.Background(), "nope", "k")
	if !errors.Is(err, ErrUnknownTier) {
		t.Errorf("Check() error = %v, want ErrUnknownTier", err)
	}
	if err := l.Reset(context.Background(), "nope", "k"); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("Reset() error = %v, want ErrUnknownTier", err)
	}
}

func TestLimiter_ResetUnblocks(t *testing.T) {
	t.Parallel()
	l, _, _ := newTestLimiter(t, Tiers{"t": {Window: time.Minute, MaxRequests: 1, BlockDuration: time.Hour}})
	ctx := context.Background()

	l.Check(ctx, "t", "k")
	l.Check(ctx, "t", "k")
	if err := l.Reset(ctx, "t", "k"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if d, _ := l.Check(ctx, "t", "k"); !d.Allowed {
		t.Error("request after reset rejected")
	}
}

func TestLimiter_Stats(t *testing.T) {
	t.Parallel()
	l, _, _ := newTestLimiter(t, Tiers{
		"a": {Window: time.Minute, MaxRequests: 1, BlockDuration: time.Minute},
		"b": {Window: time.Minute, MaxRequests: 10, BlockDuration: time.Minute},
	})
	ctx := context.Background()

	l.Check(ctx, "a", "x")
	l.Check(ctx, "a", "x")
	l.Check(ctx, "b", "x")
	l.Check(ctx, "b", "y")
	_, _ = l.Check(ctx, "missing", "x")

	st, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.Backend != "memory" {
		t.Errorf("Backend = %q, want memory", st.Backend)
	}
	if st.TrackedKeys != 3 || st.BlockedKeys != 1 {
		t.Errorf("tracked/blocked = %d/%d, want 3/1", st.TrackedKeys, st.BlockedKeys)
	}
	if st.TotalChecks != 4 || st.TotalAllowed != 3 || st.TotalRejected != 1 || st.TotalErrors != 1 {
		t.Errorf("totals = %+v", st)
	}
	if st.Tiers["a"].Rejected != 1 || st.Tiers["b"].Allowed != 2 {
		t.Errorf("tier stats = %+v", st.Tiers)
	}

	again, _ := l.Stats(ctx)
	if again.TotalChecks != st.TotalChecks || again.TrackedKeys != st.TrackedKeys {
		t.Error("Stats() must not mutate state")
	}
}

func TestLimiter_ConcurrentChecksOnOneKey(t *testing.T) {
	t.Parallel()
	l, err := New(NewMemoryStore(), Tiers{"t": {Window: time.Hour, MaxRequests: 50, BlockDuration: time.Hour}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, err := l.Check(context.Background(), "t", "shared"); err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != 50 {
		t.Errorf("allowed = %d, want exactly 50", got)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, DefaultTiers()); err == nil {
		t.Error("New(nil store) = nil error")
	}
	if _, err := New(NewMemoryStore(), Tiers{}); err == nil {
		t.Error("New(empty tiers) = nil error")
	}
	if _, err := New(NewMemoryStore(), Tiers{"t": {Window: 0, MaxRequests: 1}}); err == nil {
		t.Error("New(zero window) = nil error")
	}
}

func TestLimiter_RunJanitorStopsOnCancel(t *testing.T) {
	t.Parallel()
	l, _, _ := newTestLimiter(t, DefaultTiers())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunJanitor did not return after cancel")
	}
}
