package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func ledgers(t *testing.T) map[string]Ledger {
	t.Helper()
	sqlite, err := OpenSQLite(DefaultSQLiteDSN)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Ledger{
		BackendMemory: NewMemoryLedger(),
		BackendSQLite: sqlite,
	}
}

func TestRecordVisitCountsAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
			for i := 0; i < 3; i++ {
				ok, err := l.RecordVisit(ctx, "1.1.1.1", first.Add(time.Duration(i)*time.Minute), 10)
				if err != nil || !ok {
					t.Fatalf("visit %d: ok=%v err=%v", i, ok, err)
				}
			}
			if ok, err := l.RecordVisit(ctx, "2.2.2.2", first, 10); err != nil || !ok {
				t.Fatalf("second ip: ok=%v err=%v", ok, err)
			}

			if n, _ := l.VisitCount(ctx, "1.1.1.1"); n != 3 {
				t.Fatalf("expected count 3, got %d", n)
			}
			if n, _ := l.VisitCount(ctx, "2.2.2.2"); n != 1 {
				t.Fatalf("expected count 1 for other ip, got %d", n)
			}

			visits, err := l.Visits(ctx)
			if err != nil {
				t.Fatalf("visits: %v", err)
			}
			if len(visits) != 2 {
				t.Fatalf("expected 2 records, got %d", len(visits))
			}
			if visits[0].IP != "1.1.1.1" || !visits[0].FirstSeenAt.Equal(first) {
				t.Fatalf("unexpected first record: %+v", visits[0])
			}
		})
	}
}

func TestRecordVisitStopsAtMax(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now()
			for i := 0; i < 2; i++ {
				if ok, _ := l.RecordVisit(ctx, "9.9.9.9", now, 2); !ok {
					t.Fatalf("visit %d should be allowed", i)
				}
			}
			for i := 0; i < 3; i++ {
				ok, err := l.RecordVisit(ctx, "9.9.9.9", now, 2)
				if err != nil {
					t.Fatalf("visit: %v", err)
				}
				if ok {
					t.Fatal("expected rejection at max")
				}
			}
			if n, _ := l.VisitCount(ctx, "9.9.9.9"); n != 2 {
				t.Fatalf("count changed after rejection: %d", n)
			}
		})
	}
}

func TestRecordVisitZeroMaxRejectsEverything(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			if ok, _ := l.RecordVisit(ctx, "1.1.1.1", time.Now(), 0); ok {
				t.Fatal("expected rejection with max 0")
			}
			visits, _ := l.Visits(ctx)
			if len(visits) != 0 {
				t.Fatalf("expected no records, got %d", len(visits))
			}
		})
	}
}

func TestClearVisitsKeepsCountersAndLogins(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now()
			_, _ = l.RecordVisit(ctx, "1.1.1.1", now, 1)
			_, _ = l.RecordVisit(ctx, "2.2.2.2", now, 1)
			if err := l.RecordLogin(ctx, "127.0.0.1", now); err != nil {
				t.Fatalf("record login: %v", err)
			}

			n, err := l.ClearVisits(ctx)
			if err != nil {
				t.Fatalf("clear: %v", err)
			}
			if n != 2 {
				t.Fatalf("expected 2 removed, got %d", n)
			}
			visits, _ := l.Visits(ctx)
			if len(visits) != 0 {
				t.Fatalf("expected empty ledger, got %d", len(visits))
			}
			logins, _ := l.Logins(ctx)
			if len(logins) != 1 {
				t.Fatalf("expected logins kept, got %d", len(logins))
			}

			// The counter survives the clear, so the ip stays capped.
			if ok, _ := l.RecordVisit(ctx, "1.1.1.1", now, 1); ok {
				t.Fatal("expected ip to remain rate limited after clear")
			}
			stats, err := l.Stats(ctx)
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			if stats.Visits != 0 || stats.TrackedIPs != 2 || stats.Logins != 1 {
				t.Fatalf("unexpected stats: %+v", stats)
			}
		})
	}
}

func TestLoginsAppendInOrder(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 3; i++ {
				if err := l.RecordLogin(ctx, fmt.Sprintf("10.0.0.%d", i), base.Add(time.Duration(i)*time.Second)); err != nil {
					t.Fatalf("record login: %v", err)
				}
			}
			logins, err := l.Logins(ctx)
			if err != nil {
				t.Fatalf("logins: %v", err)
			}
			if len(logins) != 3 {
				t.Fatalf("expected 3 logins, got %d", len(logins))
			}
			if logins[2].IP != "10.0.0.2" || !logins[2].At.Equal(base.Add(2*time.Second)) {
				t.Fatalf("unexpected last login: %+v", logins[2])
			}
		})
	}
}

func TestRecordVisitConcurrent(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			const workers, max = 20, 5
			var wg sync.WaitGroup
			var mu sync.Mutex
			allowed := 0
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := l.RecordVisit(ctx, "5.5.5.5", time.Now(), max)
					if err != nil {
						t.Errorf("visit: %v", err)
						return
					}
					if ok {
						mu.Lock()
						allowed++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			if allowed != max {
				t.Fatalf("expected %d allowed, got %d", max, allowed)
			}
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", ""); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	l, err := Open("", "")
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	if _, ok := l.(*MemoryLedger); !ok {
		t.Fatalf("expected memory ledger by default, got %T", l)
	}
}
