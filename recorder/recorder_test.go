package recorder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

func Test_ApplyInsertOptions_Defaults(t *testing.T) {
	// act
	params := recorder.ApplyInsertOptions()

	// assert
	assert.Nil(t, params.Tracking)
}

func Test_ApplyInsertOptions_WithTracking(t *testing.T) {
	// arrange
	tracking, err := recorder.BuildTracking("reporting", 42)
	require.NoError(t, err)

	// act
	params := recorder.ApplyInsertOptions(recorder.WithTracking(tracking))

	// assert
	require.NotNil(t, params.Tracking)
	assert.Equal(t, tracking, *params.Tracking)
}

func Test_ApplySelectOptions_Defaults(t *testing.T) {
	// act
	params := recorder.ApplySelectOptions()

	// assert
	assert.Equal(t, int64(0), params.Gt)
	assert.Equal(t, int64(0), params.Lte)
	assert.False(t, params.Desc)
	assert.Equal(t, 0, params.Limit)
}

func Test_ApplySelectOptions_WithAllOptions(t *testing.T) {
	// act
	params := recorder.ApplySelectOptions(
		recorder.WithGt(3),
		recorder.WithLte(9),
		recorder.WithDesc(),
		recorder.WithLimit(5),
	)

	// assert
	assert.Equal(t, int64(3), params.Gt)
	assert.Equal(t, int64(9), params.Lte)
	assert.True(t, params.Desc)
	assert.Equal(t, 5, params.Limit)
}

func Test_ApplyNotificationOptions_Defaults(t *testing.T) {
	// act
	params := recorder.ApplyNotificationOptions()

	// assert
	assert.Equal(t, int64(0), params.Stop)
	assert.Empty(t, params.Topics)
}

func Test_ApplyNotificationOptions_WithStopAndTopics(t *testing.T) {
	// act
	params := recorder.ApplyNotificationOptions(
		recorder.WithStop(20),
		recorder.WithTopics("order_placed", "order_shipped"),
	)

	// assert
	assert.Equal(t, int64(20), params.Stop)
	assert.Equal(t, []string{"order_placed", "order_shipped"}, params.Topics)
}
