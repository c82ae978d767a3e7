package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"arblog/internal/model"
)

var (
	// ErrStorageUnavailable means the database could not be reached or refused the operation.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotInitialized means the log table does not exist yet.
	ErrNotInitialized = fmt.Errorf("%w: attempt log is not initialized", ErrStorageUnavailable)
	// ErrConstraintViolation is reserved for integrity rules enforced by the database.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrNotFound means no attempt has the requested identifier.
	ErrNotFound = errors.New("attempt not found")
)

// classify maps a pgx error onto the log's error taxonomy, keeping the cause.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		// Dial failures, closed pools and broken connections.
		return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
	}

	switch {
	case pgErr.Code == pgerrcode.UndefinedTable:
		return fmt.Errorf("%w: %s: %w", ErrNotInitialized, op, err)
	case pgErr.Code == pgerrcode.StringDataRightTruncationDataException,
		pgErr.Code == pgerrcode.NumericValueOutOfRange:
		field := pgErr.ColumnName
		if field == "" {
			field = "record"
		}
		return fmt.Errorf("%s: %w", op, &model.ValidationError{Field: field, Reason: pgErr.Message})
	case pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
		return fmt.Errorf("%w: %s: %s", ErrConstraintViolation, op, pgErr.Message)
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsInsufficientResources(pgErr.Code),
		pgerrcode.IsOperatorIntervention(pgErr.Code),
		pgerrcode.IsInvalidAuthorizationSpecification(pgErr.Code),
		pgErr.Code == pgerrcode.InsufficientPrivilege:
		return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
