// Package postgres is the PostgreSQL journal backend built on pgx.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lugondev/go-vaultswap/internal/config"
	"github.com/lugondev/go-vaultswap/internal/storage"
)

func init() {
	storage.RegisterFactory(storage.DatabaseTypePostgres, func(ctx context.Context, cfg *config.DatabaseConfig) (storage.Repository, error) {
		repo, err := NewPostgresRepository(ctx, &cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres repository: %w", err)
		}
		return repo, nil
	})
}

type PostgresRepository struct {
	pool *pgxpool.Pool

	accounts       *postgresAccountRepository
	transactions   *postgresTransactionRepository
	instructions   *postgresInstructionRepository
	events         *postgresEventRepository
	balanceRecords *postgresBalanceRecordRepository
}

func poolConfig(cfg *config.PostgresConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pc.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = time.Duration(cfg.ConnMaxLifetime) * time.Second
	}
	pc.HealthCheckPeriod = time.Minute
	return pc, nil
}

// NewPostgresRepository connects and brings the journal schema up to date.
func NewPostgresRepository(ctx context.Context, cfg *config.PostgresConfig) (*PostgresRepository, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	applied, err := NewMigrator(pool).Up(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if applied > 0 {
		slog.Info("postgres journal migrated", "applied", applied, "database", cfg.Database)
	}

	repo := bind(pool)
	repo.pool = pool
	return repo, nil
}

// bind returns a repository whose statements all run on db.
func bind(db querier) *PostgresRepository {
	return &PostgresRepository{
		accounts:       &postgresAccountRepository{db: db},
		transactions:   &postgresTransactionRepository{db: db},
		instructions:   &postgresInstructionRepository{db: db},
		events:         &postgresEventRepository{db: db},
		balanceRecords: &postgresBalanceRecordRepository{db: db},
	}
}

// WithTransaction runs fn against a repository bound to one database
// transaction, committing when fn returns nil and rolling back otherwise.
func (r *PostgresRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo storage.Repository) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{PostgresRepository: bind(tx)})
	})
}

// txRepository is the view of a PostgresRepository handed to WithTransaction.
// Closing it leaves the pool open.
type txRepository struct {
	*PostgresRepository
}

func (r *txRepository) Close() error                   { return nil }
func (r *txRepository) Ping(ctx context.Context) error { return nil }

// WithTransaction joins the enclosing transaction.
func (r *txRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo storage.Repository) error) error {
	return fn(ctx, r)
}

func (r *PostgresRepository) Accounts() storage.AccountRepository { return r.accounts }
func (r *PostgresRepository) Transactions() storage.TransactionRepository { return r.transactions }
func (r *PostgresRepository) Instructions() storage.InstructionRepository { return r.instructions }
func (r *PostgresRepository) Events() storage.EventRepository { return r.events }
func (r *PostgresRepository) BalanceRecords() storage.BalanceRecordRepository { return r.balanceRecords }

// Migrator returns a migrator bound to the repository's pool.
func (r *PostgresRepository) Migrator() *Migrator { return NewMigrator(r.pool) }

func (r *PostgresRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
