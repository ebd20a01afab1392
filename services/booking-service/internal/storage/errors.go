package storage

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
)

// SQLSTATE codes the repository translates.
const (
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUndefinedFunction    = "42883"
	codeFeatureNotSupported  = "0A000"
	codeInvalidTextRep       = "22P02"
)

// classify maps driver errors onto the booking sentinels. Errors it does not
// recognise, including typed booking errors returned from inside a transaction,
// pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeLockNotAvailable, codeQueryCanceled, codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", booking.ErrLockTimeout, pgErr.Message)
	case codeUndefinedFunction, codeFeatureNotSupported:
		return fmt.Errorf("%w: %s", booking.ErrAtomicUnavailable, pgErr.Message)
	case codeInvalidTextRep:
		// A malformed uuid can never match a row.
		return booking.ErrNotFound
	default:
		return err
	}
}
