// Package entitlements manages prepaid rights to consume services: packages
// (a fixed bundle of uses) and subscriptions (a recurring monthly allotment).
package entitlements

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two entitlement shapes.
type Kind string

const (
	KindPackage      Kind = "package"
	KindSubscription Kind = "subscription"
)

// Ref points at the entitlement a booking consumes. Exactly one field is set.
type Ref struct {
	PackageCreditID *uuid.UUID
	SubscriptionID  *uuid.UUID
}

// IsZero reports whether no entitlement is referenced.
func (r Ref) IsZero() bool {
	return r.PackageCreditID == nil && r.SubscriptionID == nil
}

// Kind names the referenced entitlement: "package", "subscription" or "".
func (r Ref) Kind() string {
	switch {
	case r.PackageCreditID != nil:
		return "package"
	case r.SubscriptionID != nil:
		return "subscription"
	}
	return ""
}

// PackageCredit is a purchased bundle of TotalUses visits restricted to a
// fixed service set. RemainingUses is decremented per booking and never
// replenished.
type PackageCredit struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ClientID      uuid.UUID
	Name          string
	ServiceIDs    []uuid.UUID
	TotalUses     int
	RemainingUses int
	PurchasedAt   time.Time
}

// Covers reports whether the package applies to the given service.
func (p *PackageCredit) Covers(serviceID uuid.UUID) bool {
	return containsService(p.ServiceIDs, serviceID)
}

// Subscription is a recurring monthly allotment of MonthlyUses visits
// restricted to a fixed service set. There is no stored usage counter: usage
// is derived by counting non-cancelled appointments that reference the
// subscription in the current calendar month.
type Subscription struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ClientID    uuid.UUID
	Name        string
	ServiceIDs  []uuid.UUID
	MonthlyUses int
	ActiveSince time.Time
}

// Covers reports whether the subscription applies to the given service.
func (s *Subscription) Covers(serviceID uuid.UUID) bool {
	return containsService(s.ServiceIDs, serviceID)
}

func containsService(ids []uuid.UUID, serviceID uuid.UUID) bool {
	if len(ids) == 0 {
		return true // unrestricted
	}
	for _, id := range ids {
		if id == serviceID {
			return true
		}
	}
	return false
}

// MonthWindow returns the [start, end) bounds of t's calendar month.
func MonthWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}
