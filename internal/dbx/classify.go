package dbx

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tubepulse/accounts/internal/common"
)

// ErrUniqueViolation marks a write rejected by a unique constraint.
// Repositories translate it into their domain error.
var ErrUniqueViolation = errors.New("unique constraint violation")

// transientSQLStates are SQLSTATE codes worth retrying.
var transientSQLStates = map[string]struct{}{
	"08000": {}, // connection_exception
	"08001": {}, // sqlclient_unable_to_establish_sqlconnection
	"08003": {}, // connection_does_not_exist
	"08004": {}, // sqlserver_rejected_establishment_of_sqlconnection
	"08006": {}, // connection_failure
	"08007": {}, // transaction_resolution_unknown
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53300": {}, // too_many_connections
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
}

// timeoutSQLStates are lock or statement timeouts raised by the server.
var timeoutSQLStates = map[string]struct{}{
	"55P03": {}, // lock_not_available
	"57014": {}, // query_canceled (statement_timeout)
}

// Classify translates driver errors into the closed taxonomy so nothing above
// this package inspects driver-specific codes. Errors that are already typed
// or unknown are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var typed *common.Error
	if errors.As(err, &typed) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return errors.Join(ErrUniqueViolation, err)
		}
		if _, ok := transientSQLStates[pgErr.Code]; ok {
			return common.ErrTransientStorage.WithCause(err)
		}
		if _, ok := timeoutSQLStates[pgErr.Code]; ok {
			return common.ErrTransactionTimeout.WithCause(err)
		}
		return err
	}

	if isTransientNetwork(err) {
		return common.ErrTransientStorage.WithCause(err)
	}
	return err
}

// IsTransient reports whether err (after classification) may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(Classify(err), common.ErrTransientStorage)
}

func isTransientNetwork(err error) bool {
	// The caller's own context ending is never transient.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
