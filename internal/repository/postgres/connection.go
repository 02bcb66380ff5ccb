package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"callagent/internal/domain/repositories"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Calls     string
	Providers string
}

// NewTableNames creates table names with the given prefix (dev_, test_, prod_)
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Calls:     fmt.Sprintf("%scalls", prefix),
		Providers: fmt.Sprintf("%shealthcare_providers", prefix),
	}
}

// All returns every table, dependents first, for drop scripts
func (t *TableNames) All() []string {
	return []string{t.Calls, t.Providers}
}

// CreateConnectionPool creates a pgx pool.
//
// Port 6543 is Supabase's transaction pooler, which does not support prepared
// statements. On that port the pool switches to QueryExecModeCacheDescribe
// unless the connection string already sets default_query_exec_mode.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	// Webhook turns are short; a small pool covers bursts of concurrent calls
	config.MaxConns = 20
	config.MinConns = 2

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction stored in ctx, or pool when there is none.
// Repositories use it so that they join a TransactionManager.ExecTx call.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
