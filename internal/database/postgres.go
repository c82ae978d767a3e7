package database

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"arblog/internal/config"
	"arblog/internal/model"
)

// PostgresRepository implements Repository and Provisioner on top of a pgx pool.
type PostgresRepository struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

var (
	_ Repository  = (*PostgresRepository)(nil)
	_ Provisioner = (*PostgresRepository)(nil)
)

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{Pool: pool, logger: logger}
}

// Open creates a connection pool from the database configuration and checks
// that the server answers.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, classify("open pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classify("ping database", err)
	}
	return pool, nil
}

// Append validates the attempt and inserts it in its own transaction together
// with the change notification, so either both are committed or neither is.
func (r *PostgresRepository) Append(ctx context.Context, attempt model.ArbitrageAttempt) (int64, error) {
	a, err := model.Prepare(attempt)
	if err != nil {
		return 0, err
	}

	var id int64
	err = pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertSQL,
			timestampArg(a.Timestamp),
			numericArg(a.StartAmountUSDT),
			numericArg(a.EndAmountUSDT),
			numericArg(a.ProfitUSDT),
			numericArg(a.ProfitPercentage),
			textArg(a.BaseToken),
			textArg(a.Path),
			textArg(a.Routers),
			a.Executed,
		).Scan(&id)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, notifySQL, NotifyChannel, strconv.FormatInt(id, 10))
		return err
	})
	if err != nil {
		return 0, classify("append attempt", err)
	}
	return id, nil
}

// Get returns a single attempt by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (model.ArbitrageAttempt, error) {
	sql, args := selectQuery(model.Filter{ID: &id})
	rows, err := r.Pool.Query(ctx, sql, args...)
	if err != nil {
		return model.ArbitrageAttempt{}, classify("get attempt", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[model.ArbitrageAttempt])
	if err != nil {
		return model.ArbitrageAttempt{}, classify("get attempt", err)
	}
	return a, nil
}

// Query streams the attempts matching the filter. Every range over the returned
// sequence issues a fresh SELECT, which reads one consistent snapshot.
func (r *PostgresRepository) Query(ctx context.Context, filter model.Filter) iter.Seq2[model.ArbitrageAttempt, error] {
	sql, args := selectQuery(filter)
	return func(yield func(model.ArbitrageAttempt, error) bool) {
		rows, err := r.Pool.Query(ctx, sql, args...)
		if err != nil {
			yield(model.ArbitrageAttempt{}, classify("query attempts", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			a, err := pgx.RowToStructByName[model.ArbitrageAttempt](rows)
			if err != nil {
				yield(model.ArbitrageAttempt{}, classify("scan attempt", err))
				return
			}
			if !yield(a, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.ArbitrageAttempt{}, classify("query attempts", err))
		}
	}
}

// Stats aggregates the attempts matching the filter. Limit and offset are ignored.
func (r *PostgresRepository) Stats(ctx context.Context, filter model.Filter) (model.Stats, error) {
	sql, args := statsQuery(filter)

	var s model.Stats
	err := r.Pool.QueryRow(ctx, sql, args...).Scan(
		&s.TotalAttempts,
		&s.ExecutedAttempts,
		&s.ProfitableAttempts,
		&s.TotalProfitUSDT,
		&s.AvgProfitUSDT,
		&s.MaxProfitUSDT,
		&s.MinProfitUSDT,
		&s.MedianProfitUSDT,
		&s.P95ProfitUSDT,
		&s.AvgProfitPercentage,
		&s.FirstAttemptAt,
		&s.LastAttemptAt,
	)
	if err != nil {
		return model.Stats{}, classify("attempt stats", err)
	}
	return s, nil
}

// EnsureSchema creates the table and its indexes when they are missing. It never
// touches existing rows and is safe to run at every start.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createTableIfMissingSQL); err != nil {
			return err
		}
		return createIndexes(ctx, tx)
	})
	return classify("ensure schema", err)
}

// Reset drops the table and recreates it empty in a single transaction. All
// recorded attempts are lost and identifiers restart at 1. On failure the
// previous table is left untouched.
func (r *PostgresRepository) Reset(ctx context.Context) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return classify("reset", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, dropTableSQL); err != nil {
		return fmt.Errorf("%w: could not drop existing store: %w", ErrStorageUnavailable, err)
	}
	if _, err := tx.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("%w: could not create new store: %w", ErrStorageUnavailable, err)
	}
	if err := createIndexes(ctx, tx); err != nil {
		return fmt.Errorf("%w: could not create new store: %w", ErrStorageUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("reset", err)
	}
	return nil
}

// State reports whether the log table exists.
func (r *PostgresRepository) State(ctx context.Context) (model.LogState, error) {
	var exists bool
	if err := r.Pool.QueryRow(ctx, stateSQL, model.TableName).Scan(&exists); err != nil {
		return model.Uninitialized, classify("log state", err)
	}
	if exists {
		return model.Ready, nil
	}
	return model.Uninitialized, nil
}

// Listen calls fn with the id of every append committed by any writer until
// ctx is cancelled. It holds one pooled connection for its whole lifetime.
func (r *PostgresRepository) Listen(ctx context.Context, fn func(id int64)) error {
	conn, err := r.Pool.Acquire(ctx)
	if err != nil {
		return classify("listen", err)
	}
	defer func() {
		if !conn.Conn().IsClosed() {
			_, _ = conn.Exec(context.Background(), "UNLISTEN *")
		}
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return classify("listen", err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return classify("wait for notification", err)
		}
		id, err := strconv.ParseInt(n.Payload, 10, 64)
		if err != nil {
			r.logger.Warn("Repository: ignoring malformed notification", "channel", n.Channel, "payload", n.Payload, "error", err)
			continue
		}
		fn(id)
	}
}

func createIndexes(ctx context.Context, tx pgx.Tx) error {
	for _, stmt := range indexSQL {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func numericArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func textArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timestampArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
