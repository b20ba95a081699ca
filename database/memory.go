package database

import (
	"context"
	"sync"
	"time"

	"visit-ledger/models"
)

// MemoryLedger keeps everything in process memory behind a single mutex.
type MemoryLedger struct {
	mu     sync.Mutex
	visits []models.VisitRecord
	seen   map[string]struct{}
	counts map[string]int
	logins []models.LoginRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		seen:   make(map[string]struct{}),
		counts: make(map[string]int),
	}
}

func (m *MemoryLedger) RecordVisit(_ context.Context, ip string, at time.Time, max int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.counts[ip] >= max {
		return false, nil
	}
	m.counts[ip]++
	if _, ok := m.seen[ip]; !ok {
		m.seen[ip] = struct{}{}
		m.visits = append(m.visits, models.VisitRecord{IP: ip, FirstSeenAt: at})
	}
	return true, nil
}

func (m *MemoryLedger) Visits(_ context.Context) ([]models.VisitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.VisitRecord, len(m.visits))
	copy(out, m.visits)
	return out, nil
}

func (m *MemoryLedger) VisitCount(_ context.Context, ip string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[ip], nil
}

func (m *MemoryLedger) ClearVisits(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.visits)
	m.visits = nil
	m.seen = make(map[string]struct{})
	return n, nil
}

func (m *MemoryLedger) RecordLogin(_ context.Context, ip string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, models.LoginRecord{IP: ip, At: at})
	return nil
}

func (m *MemoryLedger) Logins(_ context.Context) ([]models.LoginRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.LoginRecord, len(m.logins))
	copy(out, m.logins)
	return out, nil
}

func (m *MemoryLedger) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Visits:     len(m.visits),
		TrackedIPs: len(m.counts),
		Logins:     len(m.logins),
	}, nil
}

func (m *MemoryLedger) Close() error {
	return nil
}
