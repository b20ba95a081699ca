package database

import (
	"context"
	"fmt"
	"time"

	"visit-ledger/models"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Ledger holds the visit ledger, the per-IP visit counters and the admin
// login history. Implementations must be safe for concurrent use.
type Ledger interface {
	// RecordVisit counts a request from ip. It reports false without
	// changing anything once the ip has reached max accepted requests.
	RecordVisit(ctx context.Context, ip string, at time.Time, max int) (bool, error)
	Visits(ctx context.Context) ([]models.VisitRecord, error)
	VisitCount(ctx context.Context, ip string) (int, error)
	// ClearVisits empties the visit ledger. Counters are kept.
	ClearVisits(ctx context.Context) (int, error)
	RecordLogin(ctx context.Context, ip string, at time.Time) error
	Logins(ctx context.Context) ([]models.LoginRecord, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

type Stats struct {
	Visits     int
	TrackedIPs int
	Logins     int
}

// Open returns the ledger for the configured backend.
func Open(backend, dsn string) (Ledger, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryLedger(), nil
	case BackendSQLite:
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}
