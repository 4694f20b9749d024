package database

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ridoystarlord/schemasync/errs"
)

// SQLSTATE classes and codes that change how an error is reported.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection        = "08"
	pgClassInvalidAuth       = "28"
	pgErrInsufficientPrivs   = "42501"
	pgErrInvalidCatalogName  = "3D000"
	pgErrCannotConnectNow    = "57P03"
	pgErrSerializationFailed = "40001"
)

// MapError converts a pgx error into an *errs.Error. A nil error stays nil.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var already *errs.Error
	if errors.As(err, &already) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindQueryFailed, "no rows returned", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrKindConnectionFailed, "operation cancelled or timed out", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && (pgErr.Code[:2] == pgClassConnection || pgErr.Code[:2] == pgClassInvalidAuth):
			return errs.Wrap(errs.ErrKindConnectionFailed, "database connection failed", err)
		case pgErr.Code == pgErrInvalidCatalogName || pgErr.Code == pgErrCannotConnectNow:
			return errs.Wrap(errs.ErrKindConnectionFailed, "database unavailable", err)
		case pgErr.Code == pgErrInsufficientPrivs:
			return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("permission denied: %s", pgErr.Message), err)
		case pgErr.Code == pgErrSerializationFailed:
			return errs.Wrap(errs.ErrKindQueryFailed, "concurrent schema change detected", err)
		}
		return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("query error: %s", pgErr.Message), err)
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) {
		return errs.Wrap(errs.ErrKindConnectionFailed, "database connection failed", err)
	}

	return errs.Wrap(errs.ErrKindUnknown, err.Error(), err)
}
