package appointments

import "github.com/danigamesx/barber-ai-sub000/internal/ledger"

// PriceQuote breaks down how an appointment price was produced from the
// service list price and the client's ledger.
type PriceQuote struct {
	BasePriceCents   int64
	DebtFoldedCents  int64
	CreditUsedCents  int64
	FinalPriceCents  int64
}

// ResolvePrice computes the amount due for a booking.
//
// The base price is the service list price, or zero when the booking is a
// reward redemption or covered by an entitlement. Outstanding debt is folded
// in on top of the base, then store credit offsets the total, capped so the
// result never goes negative.
func ResolvePrice(servicePriceCents int64, covered bool, bal ledger.Balances) PriceQuote {
	q := PriceQuote{}
	if !covered {
		q.BasePriceCents = servicePriceCents
	}
	q.DebtFoldedCents = bal.OutstandingDebtCents
	due := q.BasePriceCents + q.DebtFoldedCents
	q.CreditUsedCents = bal.StoreCreditCents
	if q.CreditUsedCents > due {
		q.CreditUsedCents = due
	}
	q.FinalPriceCents = due - q.CreditUsedCents
	return q
}
