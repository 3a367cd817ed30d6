// Package billing tracks the tenant's own subscription to the platform and
// resolves their effective access tier.
package billing

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Billing cycles for paid plans.
const (
	CycleMonthly = "monthly"
	CycleAnnual  = "annual"
)

// Plan statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// PlanState is the stored billing state of one tenant.
type PlanState struct {
	TenantID      uuid.UUID
	Plan          string
	PlanType      string // CycleMonthly | CycleAnnual
	PlanStatus    string // StatusActive | StatusSuspended
	TrialEndsAt   *time.Time
	PlanExpiresAt *time.Time
	UpdatedAt     time.Time
}

// AccessState is the resolved effective state.
type AccessState string

const (
	AccessTrial    AccessState = "trial"
	AccessPaid     AccessState = "paid"
	AccessInactive AccessState = "inactive"
)

// Access is the outcome of resolving a PlanState at an instant.
type Access struct {
	State AccessState
	// Plan is the paid plan name, only set for AccessPaid.
	Plan string
	// TrialDaysLeft is ceil(remaining/24h), only set for AccessTrial.
	TrialDaysLeft int
}

// Active reports whether the tenant has full feature access.
func (a Access) Active() bool {
	return a.State == AccessTrial || a.State == AccessPaid
}

// Resolve computes the effective access for a plan state at the given instant.
// It is a pure function of its inputs and must be re-evaluated on every read:
// the answer changes as wall-clock time crosses the stored thresholds, with no
// event marking the transition.
//
// Precedence: suspension beats every date; an unexpired trial beats the paid
// plan; an unexpired paid plan beats inactive.
func Resolve(state PlanState, now time.Time) Access {
	if state.PlanStatus == StatusSuspended {
		return Access{State: AccessInactive}
	}
	if state.TrialEndsAt != nil && state.TrialEndsAt.After(now) {
		days := int(math.Ceil(state.TrialEndsAt.Sub(now).Hours() / 24))
		return Access{State: AccessTrial, TrialDaysLeft: days}
	}
	if state.PlanExpiresAt != nil && state.PlanExpiresAt.After(now) {
		return Access{State: AccessPaid, Plan: state.Plan}
	}
	return Access{State: AccessInactive}
}

// ExpiryFrom computes the plan expiry for an activation at now: one calendar
// month for monthly billing, one year for annual.
func ExpiryFrom(now time.Time, planType string) time.Time {
	if planType == CycleAnnual {
		return now.AddDate(1, 0, 0)
	}
	return now.AddDate(0, 1, 0)
}
