package appointments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusDeclined, StatusPaid, StatusCompleted, StatusCancelled}

	allowed := map[Status][]Status{
		StatusPending:   {StatusConfirmed, StatusDeclined, StatusCancelled},
		StatusConfirmed: {StatusPaid, StatusCompleted, StatusCancelled},
		StatusPaid:      {StatusCompleted, StatusCancelled},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.False(t, StatusPaid.Terminal())
	assert.True(t, StatusDeclined.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestActiveOnlyWhileHoldingSlot(t *testing.T) {
	a := Appointment{Status: StatusConfirmed}
	assert.True(t, a.Active())
	a.Status = StatusPaid
	assert.True(t, a.Active())
	for _, s := range []Status{StatusPending, StatusDeclined, StatusCompleted, StatusCancelled} {
		a.Status = s
		assert.False(t, a.Active(), s)
	}
}
