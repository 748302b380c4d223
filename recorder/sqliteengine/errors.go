package sqliteengine

import (
	"context"
	"errors"
	"strings"

	sqlite "modernc.org/sqlite"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

// Primary SQLite result codes relevant to the error taxonomy; extended codes
// carry the primary code in their low byte.
const (
	sqliteErrorCode  = 1  // SQL error or malformed statement
	sqliteBusy       = 5  // database is locked by another connection
	sqliteLocked     = 6  // a table is locked within this connection
	sqliteConstraint = 19 // any constraint violation, including UNIQUE
)

// translateError maps a backend-native SQLite failure onto the recorder
// error taxonomy, keeping the native cause attached via errors.Join.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return errors.Join(classifyResultCode(sqliteErr.Code(), sqliteErr.Error()), err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(recorder.ErrOperational, err)
	}

	// The driver reports some failures as plain errors; fall back to the
	// message the way other SQLite adapters do.
	message := err.Error()
	switch {
	case strings.Contains(message, "constraint failed"):
		return errors.Join(recorder.ErrIntegrity, err)

	case strings.Contains(message, "database is locked"), strings.Contains(message, "database table is locked"):
		return errors.Join(recorder.ErrOperational, err)

	case strings.Contains(message, "syntax error"), strings.Contains(message, "no such table"), strings.Contains(message, "no such column"):
		return errors.Join(recorder.ErrProgramming, err)
	}

	return errors.Join(recorder.ErrInterface, err)
}

func classifyResultCode(code int, message string) error {
	switch code & 0xff {
	case sqliteConstraint:
		return recorder.ErrIntegrity

	case sqliteBusy, sqliteLocked:
		return recorder.ErrOperational

	case sqliteErrorCode:
		if strings.Contains(message, "syntax error") ||
			strings.Contains(message, "no such table") ||
			strings.Contains(message, "no such column") {
			return recorder.ErrProgramming
		}

		return recorder.ErrOperational
	}

	return recorder.ErrOperational
}
