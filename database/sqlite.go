package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"visit-ledger/models"
)

// DefaultSQLiteDSN keeps the database in memory for the life of the process.
const DefaultSQLiteDSN = ":memory:"

// SQLiteLedger stores the ledgers in SQLite. It holds a single connection so
// an in-memory database survives between queries.
type SQLiteLedger struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*SQLiteLedger, error) {
	if dsn == "" {
		dsn = DefaultSQLiteDSN
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	l := &SQLiteLedger{db: db}
	if err := l.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS visits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ip TEXT NOT NULL UNIQUE,
			first_seen_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS visit_counts (
			ip TEXT PRIMARY KEY,
			hits INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS logins (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ip TEXT NOT NULL,
			logged_at INTEGER NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := l.db.Exec(query); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func (l *SQLiteLedger) RecordVisit(ctx context.Context, ip string, at time.Time, max int) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin visit: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, "SELECT hits FROM visit_counts WHERE ip = ?", ip).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("select visit count: %w", err)
	}
	if count >= max {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO visit_counts (ip, hits) VALUES (?, 1)
		ON CONFLICT(ip) DO UPDATE SET hits = hits + 1
	`, ip); err != nil {
		return false, fmt.Errorf("increment visit count: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO visits (ip, first_seen_at) VALUES (?, ?)",
		ip, at.UnixNano(),
	); err != nil {
		return false, fmt.Errorf("insert visit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit visit: %w", err)
	}
	return true, nil
}

func (l *SQLiteLedger) Visits(ctx context.Context) ([]models.VisitRecord, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT ip, first_seen_at FROM visits ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var out []models.VisitRecord
	for rows.Next() {
		var v models.VisitRecord
		var nanos int64
		if err := rows.Scan(&v.IP, &nanos); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.FirstSeenAt = time.Unix(0, nanos).UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) VisitCount(ctx context.Context, ip string) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx, "SELECT hits FROM visit_counts WHERE ip = ?", ip).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select visit count: %w", err)
	}
	return count, nil
}

func (l *SQLiteLedger) ClearVisits(ctx context.Context) (int, error) {
	res, err := l.db.ExecContext(ctx, "DELETE FROM visits")
	if err != nil {
		return 0, fmt.Errorf("clear visits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear visits: %w", err)
	}
	return int(n), nil
}

func (l *SQLiteLedger) RecordLogin(ctx context.Context, ip string, at time.Time) error {
	_, err := l.db.ExecContext(ctx, "INSERT INTO logins (ip, logged_at) VALUES (?, ?)", ip, at.UnixNano())
	if err != nil {
		return fmt.Errorf("insert login: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Logins(ctx context.Context) ([]models.LoginRecord, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT ip, logged_at FROM logins ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list logins: %w", err)
	}
	defer rows.Close()

	var out []models.LoginRecord
	for rows.Next() {
		var rec models.LoginRecord
		var nanos int64
		if err := rows.Scan(&rec.IP, &nanos); err != nil {
			return nil, fmt.Errorf("scan login: %w", err)
		}
		rec.At = time.Unix(0, nanos).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := l.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM visits),
			(SELECT COUNT(*) FROM visit_counts),
			(SELECT COUNT(*) FROM logins)
	`).Scan(&s.Visits, &s.TrackedIPs, &s.Logins)
	if err != nil {
		return Stats{}, fmt.Errorf("ledger stats: %w", err)
	}
	return s, nil
}

func (l *SQLiteLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
