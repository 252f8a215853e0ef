package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Journal schema",
		Up: `
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			pubkey TEXT UNIQUE NOT NULL,
			lamports BIGINT NOT NULL,
			data BYTEA,
			owner TEXT NOT NULL,
			executable BOOLEAN NOT NULL,
			rent_epoch BIGINT NOT NULL,
			slot BIGINT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner);
		CREATE INDEX IF NOT EXISTS idx_accounts_slot ON accounts(slot DESC);

		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			signature TEXT UNIQUE NOT NULL,
			slot BIGINT NOT NULL,
			block_time BIGINT NOT NULL,
			success BOOLEAN NOT NULL,
			error_code TEXT,
			error_message TEXT,
			account_keys TEXT[] NOT NULL,
			num_instructions INT NOT NULL,
			log_messages TEXT[],
			return_data BYTEA,
			duration_us BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_slot ON transactions(slot DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_success ON transactions(success);
		CREATE INDEX IF NOT EXISTS idx_transactions_account_keys ON transactions USING GIN(account_keys);

		CREATE TABLE IF NOT EXISTS instructions (
			id TEXT PRIMARY KEY,
			signature TEXT NOT NULL,
			instruction_index INT NOT NULL,
			program_id TEXT NOT NULL,
			name TEXT,
			data BYTEA,
			accounts TEXT[] NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_instructions_signature ON instructions(signature);
		CREATE INDEX IF NOT EXISTS idx_instructions_program_id ON instructions(program_id);

		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			signature TEXT NOT NULL,
			program_id TEXT NOT NULL,
			event_name TEXT NOT NULL,
			data JSONB NOT NULL,
			raw_data BYTEA,
			slot BIGINT NOT NULL,
			block_time BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_signature ON events(signature);
		CREATE INDEX IF NOT EXISTS idx_events_program_id ON events(program_id);
		CREATE INDEX IF NOT EXISTS idx_events_event_name ON events(event_name);
		CREATE INDEX IF NOT EXISTS idx_events_slot ON events(slot DESC);

		CREATE TABLE IF NOT EXISTS balance_records (
			id TEXT PRIMARY KEY,
			address TEXT UNIQUE NOT NULL,
			mint TEXT NOT NULL,
			owner TEXT NOT NULL,
			amount BIGINT NOT NULL,
			delegate TEXT,
			delegated_amount BIGINT NOT NULL,
			close_authority TEXT,
			slot BIGINT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_balance_records_mint ON balance_records(mint);
		CREATE INDEX IF NOT EXISTS idx_balance_records_owner ON balance_records(owner);
		`,
		Down: `
		DROP TABLE IF EXISTS balance_records;
		DROP TABLE IF EXISTS events;
		DROP TABLE IF EXISTS instructions;
		DROP TABLE IF EXISTS transactions;
		DROP TABLE IF EXISTS accounts;
		`,
	},
}

// MigrationStatus reports whether one migration has been applied.
type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
}

// migrationLock is the advisory lock key serializing concurrent migrators.
const migrationLock = 0x76617573 // "vaus"

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INT PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`

// Migrator applies the journal schema. Every call runs in one transaction
// holding an advisory lock, so two processes opening the same database
// cannot apply a migration twice.
type Migrator struct {
	pool *pgxpool.Pool
}

func NewMigrator(pool *pgxpool.Pool) *Migrator {
	return &Migrator{pool: pool}
}

// locked runs fn inside a transaction that holds the migration lock and
// sees the current schema version.
func (m *Migrator) locked(ctx context.Context, fn func(tx pgx.Tx, version int) error) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
			return fmt.Errorf("failed to take migration lock: %w", err)
		}
		if _, err := tx.Exec(ctx, createMigrationsTable); err != nil {
			return fmt.Errorf("failed to create migrations table: %w", err)
		}
		var version int
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
			return fmt.Errorf("failed to get current version: %w", err)
		}
		return fn(tx, version)
	})
}

// Up applies pending migrations and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	applied := 0
	err := m.locked(ctx, func(tx pgx.Tx, current int) error {
		for _, mig := range migrations {
			if mig.Version <= current {
				continue
			}
			if _, err := tx.Exec(ctx, mig.Up); err != nil {
				return fmt.Errorf("failed to apply migration %d: %w", mig.Version, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
				mig.Version, mig.Description,
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", mig.Version, err)
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// Down rolls back up to steps applied migrations, newest first.
func (m *Migrator) Down(ctx context.Context, steps int) (int, error) {
	rolledBack := 0
	err := m.locked(ctx, func(tx pgx.Tx, current int) error {
		if current == 0 {
			return fmt.Errorf("no migrations to roll back")
		}
		for i := len(migrations) - 1; i >= 0 && rolledBack < steps; i-- {
			mig := migrations[i]
			if mig.Version > current {
				continue
			}
			if _, err := tx.Exec(ctx, mig.Down); err != nil {
				return fmt.Errorf("failed to roll back migration %d: %w", mig.Version, err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, mig.Version); err != nil {
				return fmt.Errorf("failed to remove migration record %d: %w", mig.Version, err)
			}
			rolledBack++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rolledBack, nil
}

// Status lists every known migration and whether it is applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	var status []MigrationStatus
	err := m.locked(ctx, func(_ pgx.Tx, current int) error {
		status = make([]MigrationStatus, 0, len(migrations))
		for _, mig := range migrations {
			status = append(status, MigrationStatus{
				Version:     mig.Version,
				Description: mig.Description,
				Applied:     mig.Version <= current,
			})
		}
		return nil
	})
	return status, err
}
