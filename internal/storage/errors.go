package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// Storage error constants
var (
	// ErrNotFound is returned when a referenced record does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a uniqueness constraint rejects a write
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyPromoted is returned when a correlated event already has an incident
	ErrAlreadyPromoted = errors.New("correlated event already promoted to an incident")

	// ErrImmutableRecord is returned when an immutable field would change
	ErrImmutableRecord = errors.New("record is immutable")

	// ErrForbidden is returned for operations that are never allowed, such as deleting audit entries
	ErrForbidden = errors.New("operation forbidden")

	// ErrConflict is a retryable concurrency conflict
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrValidation is returned when input is malformed
	ErrValidation = errors.New("validation failed")
)

const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// MapError translates driver errors into the storage error kinds. Repository
// methods already apply it; callers running raw statements can use it directly.
func MapError(err error) error {
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "cannot be deleted") {
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	if strings.Contains(msg, "immutable") {
		return fmt.Errorf("%w: %v", ErrImmutableRecord, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
		}
	}
	if strings.Contains(msg, "unique constraint failed") {
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	}

	return err
}

// notFound maps sql.ErrNoRows onto ErrNotFound with context
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, mapError(err))
}
