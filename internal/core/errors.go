package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind categorizes business-rule failures. KindUnknown marks
// infrastructure failures (storage unreachable, unexpected SQL errors).
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindValidation indicates malformed or missing input.
	KindValidation
	// KindConflict indicates a duplicate or contradictory request.
	KindConflict
	// KindNotAvailable indicates an asset is not in the state the transition needs.
	KindNotAvailable
	// KindNotFound indicates a referenced record or balance does not exist.
	KindNotFound
	// KindInsufficientStock indicates the requested quantity exceeds the balance.
	KindInsufficientStock
	// KindImmutableRecord indicates an attempt to modify a write-once record.
	KindImmutableRecord
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotAvailable:
		return "not_available"
	case KindNotFound:
		return "not_found"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindImmutableRecord:
		return "immutable_record"
	default:
		return "unknown"
	}
}

// Error is the typed error returned for every business-rule failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinels below, so errors.Is(err, ErrConflict) works
// for any conflict regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrNotAvailable      = &Error{Kind: KindNotAvailable}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrImmutableRecord   = &Error{Kind: KindImmutableRecord}
)

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationErrorf(format string, args ...any) error {
	return newError(KindValidation, format, args...)
}

func conflictErrorf(format string, args ...any) error {
	return newError(KindConflict, format, args...)
}

func notAvailableErrorf(format string, args ...any) error {
	return newError(KindNotAvailable, format, args...)
}

func notFoundErrorf(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

func insufficientStockErrorf(format string, args ...any) error {
	return newError(KindInsufficientStock, format, args...)
}

// SQLSTATE raised by the immutability triggers.
const immutableRecordSQLState = "IM001"

// storageError translates constraint violations into typed errors and wraps
// everything else as "failed to <action>".
func storageError(action string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("failed to %s: %w", action, err)
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		switch pgErr.ConstraintName {
		case "assets_inventory_number_key":
			return &Error{Kind: KindConflict, Message: "inventory number already exists", Cause: err}
		case "issuances_one_active_per_asset":
			return &Error{Kind: KindConflict, Message: "asset already has an active issuance", Cause: err}
		default:
			return &Error{Kind: KindConflict, Message: fmt.Sprintf("duplicate record violates %s", pgErr.ConstraintName), Cause: err}
		}
	case "23514": // check_violation
		if pgErr.ConstraintName == "stocks_quantity_check" {
			return &Error{Kind: KindInsufficientStock, Message: "stock balance cannot become negative", Cause: err}
		}
		return &Error{Kind: KindValidation, Message: fmt.Sprintf("record violates %s", pgErr.ConstraintName), Cause: err}
	case "23503": // foreign_key_violation
		return &Error{Kind: KindNotFound, Message: fmt.Sprintf("referenced record does not exist (%s)", pgErr.ConstraintName), Cause: err}
	case immutableRecordSQLState:
		return &Error{Kind: KindImmutableRecord, Message: pgErr.Message}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
