package entities

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// The uniform contract surfaces a small taxonomy rather than one generic error,
// so boundaries can map failures to distinct status codes.
var (
	ErrNotFound   = errors.New("entity not found")
	ErrConflict   = errors.New("duplicate value violates a unique constraint")
	ErrForbidden  = errors.New("insufficient permissions")
	ErrValidation = errors.New("invalid entity data")
	ErrUpstream   = errors.New("storage unavailable")
)

// storageError translates driver failures into the contract's taxonomy.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrConflict
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

// validationError wraps rule violations so boundaries can distinguish them from storage failures.
func validationError(err error) error {
	return fmt.Errorf("%w: %v", ErrValidation, err)
}
