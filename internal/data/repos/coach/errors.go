package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound tags a missing referenced row.
	ErrNotFound = errors.New("coach store: not found")
	// ErrConflict tags a concurrency conflict (version CAS miss, unique violation).
	ErrConflict = errors.New("coach store: conflict")
	// ErrRetryable tags a transient store failure worth retrying.
	ErrRetryable = errors.New("coach store: retryable")
)

// MapStoreError classifies driver failures so callers can decide between
// retry (transient), reread (conflict), and surfacing.
func MapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrRetryable) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrRetryable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return fmt.Errorf("%s: %w: %w", op, ErrConflict, err) // unique_violation
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%s: %w: %w", op, ErrRetryable, err) // serialization/deadlock/lock_not_available
		}
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "53") {
			return fmt.Errorf("%s: %w: %w", op, ErrRetryable, err) // connection/resource classes
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporar"),
		strings.Contains(msg, "database is locked"):
		return fmt.Errorf("%s: %w: %w", op, ErrRetryable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
