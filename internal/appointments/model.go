// Package appointments implements the appointment lifecycle: creation,
// owner review, completion, cancellation, and rescheduling.
package appointments

import (
	"time"

	"github.com/google/uuid"

	"github.com/danigamesx/barber-ai-sub000/internal/entitlements"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDeclined  Status = "declined"
	StatusPaid      Status = "paid"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions is the full state machine. Terminal states have no entries.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusDeclined, StatusCancelled},
	StatusConfirmed: {StatusPaid, StatusCompleted, StatusCancelled},
	StatusPaid:      {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is legal. Transitions
// are monotonic: once a terminal state is reached nothing moves again.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDeclined, StatusPaid, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Appointment is a booked time slot. PriceCents reflects the amount actually
// due after reward/credit/debt resolution, not the service list price.
type Appointment struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	ClientID  uuid.UUID
	BarberID  uuid.UUID
	ServiceID uuid.UUID

	PriceCents int64
	StartAt    time.Time
	EndAt      time.Time
	Status     Status
	Notes      string
	IsReward   bool

	// CreditUsedCents and DebtFoldedCents are the ledger balances the booking
	// quote consumed. Cancelling or declining before payment puts them back.
	CreditUsedCents int64
	DebtFoldedCents int64

	// Entitlement consumed at booking time, if any.
	PackageCreditID *uuid.UUID
	SubscriptionID  *uuid.UUID

	// PaymentSessionID correlates prepaid appointments with the hosted
	// checkout session that settled them. It is the idempotency key the
	// webhook reconciler dedupes on.
	PaymentSessionID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntitlementRef returns the entitlement reference stored on the appointment.
func (a *Appointment) EntitlementRef() entitlements.Ref {
	return entitlements.Ref{
		PackageCreditID: a.PackageCreditID,
		SubscriptionID:  a.SubscriptionID,
	}
}

// Active reports whether the appointment occupies its slot for availability
// purposes.
func (a *Appointment) Active() bool {
	return a.Status == StatusConfirmed || a.Status == StatusPaid
}
