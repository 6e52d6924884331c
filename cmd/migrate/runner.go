package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// migrationLockKey serialises migrations across processes. The server's
// archive bootstrap and this tool may both touch kline_archive.
const migrationLockKey int64 = 0x5167_6e64_736b

const (
	createLedger = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     BIGINT PRIMARY KEY,
    name        TEXT NOT NULL,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`
	addLedgerChecksum = `ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''`
	selectLedger      = `SELECT version, name, checksum FROM schema_migrations ORDER BY version`
	lockLedger        = `SELECT pg_advisory_xact_lock($1)`
	claimVersion      = `INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3) ON CONFLICT (version) DO NOTHING`
	releaseVersion    = `DELETE FROM schema_migrations WHERE version = $1`
)

// migrationDB is the slice of *pgxpool.Pool the runner uses.
type migrationDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type appliedMigration struct {
	Version  int64
	Name     string
	Checksum string
}

type runner struct {
	db         migrationDB
	migrations []migration
}

func (r *runner) ensureLedger(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createLedger); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, addLedgerChecksum)
	return err
}

func (r *runner) applied(ctx context.Context) ([]appliedMigration, error) {
	rows, err := r.db.Query(ctx, selectLedger)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []appliedMigration
	for rows.Next() {
		var a appliedMigration
		if err := rows.Scan(&a.Version, &a.Name, &a.Checksum); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// up applies pending migrations in version order, at most limit of them
// when limit > 0. Each migration claims its ledger row and runs its script
// in one transaction, so a concurrent runner skips it instead of applying
// it twice.
func (r *runner) up(ctx context.Context, limit int) (int, error) {
	done, err := r.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range r.migrations {
		if limit > 0 && count == limit {
			break
		}
		if slices.ContainsFunc(done, func(a appliedMigration) bool { return a.Version == m.Version }) {
			continue
		}

		claimed := false
		err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, lockLedger, migrationLockKey); err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, claimVersion, m.Version, m.Name, m.Checksum())
			if err != nil {
				return fmt.Errorf("record version %d: %w", m.Version, err)
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			if _, err := tx.Exec(ctx, m.UpSQL); err != nil {
				return fmt.Errorf("version %d up: %w", m.Version, err)
			}
			claimed = true
			return nil
		})
		if err != nil {
			return count, err
		}
		if !claimed {
			log.Warn("migration applied by another runner", "version", m.Version, "name", m.Name)
			continue
		}
		log.Info("applied", "version", m.Version, "name", m.Name)
		count++
	}
	return count, nil
}

// down rolls back the newest steps applied migrations.
func (r *runner) down(ctx context.Context, steps int) (int, error) {
	if steps <= 0 {
		return 0, fmt.Errorf("steps must be > 0")
	}
	done, err := r.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := len(done) - 1; i >= 0 && count < steps; i-- {
		version := done[i].Version
		idx := slices.IndexFunc(r.migrations, func(m migration) bool { return m.Version == version })
		if idx < 0 {
			return count, fmt.Errorf("no source for applied version %d (%s)", version, done[i].Name)
		}
		m := r.migrations[idx]

		err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, lockLedger, migrationLockKey); err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, releaseVersion, m.Version)
			if err != nil {
				return fmt.Errorf("release version %d: %w", m.Version, err)
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			if _, err := tx.Exec(ctx, m.DownSQL); err != nil {
				return fmt.Errorf("version %d down: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}
		log.Info("rolled back", "version", m.Version, "name", m.Name)
		count++
	}
	return count, nil
}

// status renders one line per known migration plus any applied version
// whose source file is gone.
func (r *runner) status(done []appliedMigration) []string {
	byVersion := make(map[int64]appliedMigration, len(done))
	for _, a := range done {
		byVersion[a.Version] = a
	}

	lines := make([]string, 0, len(r.migrations))
	for _, m := range r.migrations {
		state := "pending"
		if a, ok := byVersion[m.Version]; ok {
			state = "applied"
			if a.Checksum != "" && a.Checksum != m.Checksum() {
				state = "modified"
			}
			delete(byVersion, m.Version)
		}
		lines = append(lines, fmt.Sprintf("%04d  %-40s %s", m.Version, m.Name, state))
	}
	for _, a := range done {
		if _, orphan := byVersion[a.Version]; orphan {
			lines = append(lines, fmt.Sprintf("%04d  %-40s %s", a.Version, a.Name, "missing source"))
		}
	}
	return lines
}
