package appointments

import (
	"math"
	"time"

	"github.com/danigamesx/barber-ai-sub000/internal/tenancy"
	"github.com/danigamesx/barber-ai-sub000/internal/tenants"
)

// CancellationOutcome is the ledger effect of a cancellation. At most one of
// the two fields is nonzero.
type CancellationOutcome struct {
	// FeeCents is debt recorded against the client for a late cancellation
	// of an unpaid appointment.
	FeeCents int64
	// CreditCents is store credit granted back for a prepaid appointment.
	CreditCents int64
}

// EvaluateCancellation applies the tenant's cancellation policy.
//
// A disabled policy makes every cancellation a plain cancel with no ledger
// effect. Under an enabled policy a prepaid appointment is refunded as store
// credit, owner cancellations never charge a fee, and client cancellations
// inside the time limit of an unpaid appointment accrue a fee as debt.
// Cancelling exactly at the limit boundary is on time and charges nothing.
func EvaluateCancellation(policy tenants.CancellationPolicy, actor string, priceCents int64, paid bool, untilStart time.Duration) CancellationOutcome {
	if !policy.Enabled {
		return CancellationOutcome{}
	}
	if paid {
		return CancellationOutcome{CreditCents: priceCents}
	}
	if actor == tenancy.ActorOwner {
		return CancellationOutcome{}
	}
	limit := time.Duration(policy.TimeLimitHours) * time.Hour
	if untilStart < limit {
		fee := int64(math.Round(float64(priceCents) * policy.FeePercentage / 100))
		return CancellationOutcome{FeeCents: fee}
	}
	return CancellationOutcome{}
}
