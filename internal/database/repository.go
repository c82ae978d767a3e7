package database

import (
	"context"
	"iter"

	"arblog/internal/model"
)

// Repository defines the standard interface for reading and appending attempts.
type Repository interface {
	// Append validates and inserts one attempt and returns its identifier.
	Append(ctx context.Context, attempt model.ArbitrageAttempt) (int64, error)
	Get(ctx context.Context, id int64) (model.ArbitrageAttempt, error)
	// Query returns a lazy sequence; ranging over it again re-runs the query.
	Query(ctx context.Context, filter model.Filter) iter.Seq2[model.ArbitrageAttempt, error]
	Stats(ctx context.Context, filter model.Filter) (model.Stats, error)
}

// Provisioner manages the table itself. Reset is destructive and belongs to
// provisioning, never to routine startup.
type Provisioner interface {
	EnsureSchema(ctx context.Context) error
	Reset(ctx context.Context) error
	State(ctx context.Context) (model.LogState, error)
}

// Collect drains a query sequence into a slice.
func Collect(seq iter.Seq2[model.ArbitrageAttempt, error]) ([]model.ArbitrageAttempt, error) {
	var attempts []model.ArbitrageAttempt
	for a, err := range seq {
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}
