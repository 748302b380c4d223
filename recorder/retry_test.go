package recorder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

func Test_Retry_Success_NoRetries(t *testing.T) {
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return nil
	}

	err := recorder.Retry(ctx, fn)

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func Test_Retry_RetriesInterfaceErrors(t *testing.T) {
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.Join(recorder.ErrInterface, errors.New("connection reset"))
		}
		return nil
	}

	err := recorder.Retry(ctx, fn, recorder.WithBaseDelay(time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func Test_Retry_ExhaustsAttemptsOnPersistentInterfaceError(t *testing.T) {
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return errors.Join(recorder.ErrInterface, errors.New("connection reset"))
	}

	err := recorder.Retry(ctx, fn, recorder.WithMaxAttempts(4), recorder.WithBaseDelay(time.Millisecond))

	assert.ErrorIs(t, err, recorder.ErrInterface)
	assert.Equal(t, 4, callCount)
}

func Test_Retry_DoesNotRetryIntegrityErrors(t *testing.T) {
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return errors.Join(recorder.ErrIntegrity, errors.New("duplicate key"))
	}

	err := recorder.Retry(ctx, fn)

	assert.ErrorIs(t, err, recorder.ErrIntegrity)
	assert.Equal(t, 1, callCount)
}

func Test_Retry_DoesNotRetryProgrammingErrors(t *testing.T) {
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return errors.Join(recorder.ErrProgramming, errors.New("no such table"))
	}

	err := recorder.Retry(ctx, fn)

	assert.ErrorIs(t, err, recorder.ErrProgramming)
	assert.Equal(t, 1, callCount)
}

func Test_Retry_RetriesOperationalErrors_OnlyWithOption(t *testing.T) {
	ctx := context.Background()
	operationalErr := errors.Join(recorder.ErrOperational, errors.New("lock timeout"))

	// without the option the error surfaces on the first attempt
	callCount := 0
	err := recorder.Retry(ctx, func(_ context.Context) error {
		callCount++
		return operationalErr
	})

	assert.ErrorIs(t, err, recorder.ErrOperational)
	assert.Equal(t, 1, callCount)

	// with the option the operation recovers
	callCount = 0
	err = recorder.Retry(ctx, func(_ context.Context) error {
		callCount++
		if callCount < 2 {
			return operationalErr
		}
		return nil
	}, recorder.WithRetryOperational(), recorder.WithBaseDelay(time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, 2, callCount)
}

func Test_Retry_StopsWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		cancel()
		return errors.Join(recorder.ErrInterface, errors.New("connection reset"))
	}

	err := recorder.Retry(ctx, fn, recorder.WithBaseDelay(100*time.Millisecond))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func Test_Retry_InvalidOptions(t *testing.T) {
	ctx := context.Background()
	fn := func(_ context.Context) error { return nil }

	err := recorder.Retry(ctx, fn, recorder.WithMaxAttempts(0))
	assert.ErrorIs(t, err, recorder.ErrInvalidMaxAttempts)

	err = recorder.Retry(ctx, fn, recorder.WithBaseDelay(-1*time.Second))
	assert.ErrorIs(t, err, recorder.ErrNegativeBaseDelay)

	err = recorder.Retry(ctx, fn, recorder.WithJitterFactor(1.5))
	assert.ErrorIs(t, err, recorder.ErrInvalidJitterFactor)
}
