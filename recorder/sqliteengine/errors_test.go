package sqliteengine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

func Test_ClassifyResultCode(t *testing.T) {
	cases := []struct {
		name     string
		code     int
		message  string
		expected error
	}{
		{name: "constraint violation", code: 19, message: "constraint failed: UNIQUE", expected: recorder.ErrIntegrity},
		{name: "extended constraint code", code: 2067, message: "constraint failed: UNIQUE", expected: recorder.ErrIntegrity}, // 2067 & 0xff == 19
		{name: "busy", code: 5, message: "database is locked", expected: recorder.ErrOperational},
		{name: "extended busy code", code: 261, message: "database is locked", expected: recorder.ErrOperational}, // 261 & 0xff == 5
		{name: "locked", code: 6, message: "database table is locked", expected: recorder.ErrOperational},
		{name: "syntax error", code: 1, message: `near ")": syntax error`, expected: recorder.ErrProgramming},
		{name: "missing table", code: 1, message: "no such table: stored_events", expected: recorder.ErrProgramming},
		{name: "missing column", code: 1, message: "no such column: rowids", expected: recorder.ErrProgramming},
		{name: "generic sql error", code: 1, message: "SQL logic error", expected: recorder.ErrOperational},
		{name: "unmapped code", code: 10, message: "disk I/O error", expected: recorder.ErrOperational},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyResultCode(tc.code, tc.message), tc.expected)
		})
	}
}

func Test_TranslateError_MessageFallbacks(t *testing.T) {
	cases := []struct {
		name     string
		cause    error
		expected error
	}{
		{name: "constraint message", cause: errors.New("constraint failed: UNIQUE constraint failed"), expected: recorder.ErrIntegrity},
		{name: "locked message", cause: errors.New("database is locked (5) (SQLITE_BUSY)"), expected: recorder.ErrOperational},
		{name: "syntax message", cause: errors.New(`near "FORM": syntax error`), expected: recorder.ErrProgramming},
		{name: "anything else", cause: errors.New("driver: bad connection"), expected: recorder.ErrInterface},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			translated := translateError(tc.cause)

			assert.ErrorIs(t, translated, tc.expected)
			assert.ErrorIs(t, translated, tc.cause)
		})
	}
}

func Test_TranslateError_MapsContextErrorsToOperational(t *testing.T) {
	for _, cause := range []error{context.DeadlineExceeded, context.Canceled} {
		translated := translateError(fmt.Errorf("exec: %w", cause))

		assert.ErrorIs(t, translated, recorder.ErrOperational)
		assert.ErrorIs(t, translated, cause)
	}
}

func Test_TranslateError_PassesNilThrough(t *testing.T) {
	assert.NoError(t, translateError(nil))
}
