package database

import (
	"errors"
	"strings"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates pgx errors into model sentinels. Missing tables and
// lost connections map to ErrStoreUnavailable so callers can degrade.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return models.ErrConflict
		case pgErr.Code == "23503": // foreign_key_violation
			return models.ErrBadRequest
		case pgErr.Code == "23502": // not_null_violation
			return models.ErrBadRequest
		case pgErr.Code == "42P01": // undefined_table
			return errors.Join(models.ErrStoreUnavailable, err)
		case strings.HasPrefix(pgErr.Code, "08"): // connection_exception class
			return errors.Join(models.ErrStoreUnavailable, err)
		}
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return errors.Join(models.ErrStoreUnavailable, err)
	}

	return err
}
