package postgresengine

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

// SQLSTATE codes and classes relevant to the error taxonomy.
const (
	sqlstateUniqueViolation  = "23505"
	sqlstateLockNotAvailable = "55P03"
	sqlstateSerialization    = "40001"
	sqlstateDeadlockDetected = "40P01"
	sqlstateQueryCanceled    = "57014"

	sqlstateClassConnection    = "08"
	sqlstateClassResources     = "53"
	sqlstateClassSyntaxOrRole  = "42"
	sqlstateClassInvalidSchema = "3F"
)

// translateError maps a backend-native Postgres failure onto the recorder
// error taxonomy, keeping the native cause attached via errors.Join. It
// handles errors from both the pgx and the lib/pq driver paths.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errors.Join(classifySQLState(pgErr.Code), err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return errors.Join(classifySQLState(string(pqErr.Code)), err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(recorder.ErrOperational, err)
	}

	// Anything without an SQLSTATE is a broken or unusable connection:
	// dropped sockets, failed dials, closed conns.
	return errors.Join(recorder.ErrInterface, err)
}

func classifySQLState(code string) error {
	switch code {
	case sqlstateUniqueViolation:
		return recorder.ErrIntegrity

	case sqlstateLockNotAvailable, sqlstateSerialization, sqlstateDeadlockDetected, sqlstateQueryCanceled:
		return recorder.ErrOperational
	}

	switch {
	case strings.HasPrefix(code, sqlstateClassConnection):
		return recorder.ErrInterface

	case strings.HasPrefix(code, sqlstateClassResources):
		return recorder.ErrOperational

	case strings.HasPrefix(code, sqlstateClassSyntaxOrRole), strings.HasPrefix(code, sqlstateClassInvalidSchema):
		return recorder.ErrProgramming
	}

	return recorder.ErrOperational
}
