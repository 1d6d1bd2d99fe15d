package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCancelled},
		{StatusProcessing, StatusCancelled},
		{StatusProcessing, StatusShipped},
		{StatusShipped, StatusDelivered},
		{StatusDelivered, StatusRefunded},
		{StatusCancelled, StatusRefunded},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to Status }{
		{StatusDelivered, StatusProcessing},
		{StatusPending, StatusShipped},
		{StatusPending, StatusDelivered},
		{StatusShipped, StatusCancelled},
		{StatusRefunded, StatusPending},
		{StatusRefunded, StatusRefunded},
		{StatusCancelled, StatusProcessing},
		{StatusProcessing, StatusProcessing},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(StatusPending))
	assert.True(t, Valid(StatusRefunded))
	assert.False(t, Valid(Status("SOMETHING")))
}
