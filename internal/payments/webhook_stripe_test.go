package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stripeTestSecret = "whsec_test"

func stripeSign(secret string, payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type stripeWebhookFixture struct {
	handler  *StripeWebhookHandler
	mock     pgxmock.PgxPoolIface
	bookings *stubBookings
	grantor  *stubGrantor
	plans    *stubActivator
	api      *httptest.Server
}

// newStripeWebhookFixture wires the handler against a fake Stripe API that
// serves the given checkout session on re-fetch.
func newStripeWebhookFixture(t *testing.T, apiSession *stripeSession) *stripeWebhookFixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/checkout/sessions/") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(apiSession)
	}))
	t.Cleanup(api.Close)

	f := &stripeWebhookFixture{
		mock:     mock,
		bookings: &stubBookings{},
		grantor:  &stubGrantor{},
		plans:    &stubActivator{},
		api:      api,
	}
	gateway := NewStripeGateway("sk_test", "", "", nil).WithBaseURL(api.URL)
	rec := NewReconciler(NewSessionRepository(mock), f.bookings, f.grantor, f.plans, nil)
	f.handler = NewStripeWebhookHandler(stripeTestSecret, gateway, rec, NewProcessedTracker(mock), 0, nil)
	return f
}

func (f *stripeWebhookFixture) deliver(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rr := httptest.NewRecorder()
	f.handler.Handle(rr, req)
	return rr
}

func stripeEventPayload(eventID, eventType, sessionID string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":   eventID,
		"type": eventType,
		"data": map[string]any{"object": map[string]any{"id": sessionID}},
	})
	return payload
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newStripeWebhookFixture(t, &stripeSession{})
	payload := stripeEventPayload("evt_1", "checkout.session.completed", "cs_1")

	rr := f.deliver(t, payload, "t=123,v1=deadbeef")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.deliver(t, payload, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStripeWebhookRejectsTamperedPayload(t *testing.T) {
	f := newStripeWebhookFixture(t, &stripeSession{})
	signature := stripeSign(stripeTestSecret, stripeEventPayload("evt_1", "checkout.session.completed", "cs_1"))
	tampered := stripeEventPayload("evt_1", "checkout.session.completed", "cs_other")

	rr := f.deliver(t, tampered, signature)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStripeWebhookIgnoresUnrelatedEvents(t *testing.T) {
	f := newStripeWebhookFixture(t, &stripeSession{})
	payload := stripeEventPayload("evt_2", "invoice.paid", "in_1")

	rr := f.deliver(t, payload, stripeSign(stripeTestSecret, payload))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStripeWebhookSkipsProcessedEvent(t *testing.T) {
	f := newStripeWebhookFixture(t, &stripeSession{})
	payload := stripeEventPayload("evt_3", "checkout.session.completed", "cs_1")

	f.mock.ExpectQuery("SELECT EXISTS").
		WithArgs(ProviderStripe, "evt_3").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	rr := f.deliver(t, payload, stripeSign(stripeTestSecret, payload))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, f.plans.activated)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStripeWebhookReconcilesCompletedSession(t *testing.T) {
	planPayload, _ := json.Marshal(PlanPurchase{Plan: "pro", PlanType: "monthly"})
	rec := &SessionRecord{
		ID:                uuid.New(),
		TenantID:          uuid.New(),
		Provider:          ProviderStripe,
		ProviderSessionID: "cs_live_1",
		PurchaseType:      PurchaseTenantPlan,
		AmountCents:       4900,
		Currency:          "usd",
		Status:            SessionPending,
		Payload:           planPayload,
	}
	f := newStripeWebhookFixture(t, &stripeSession{
		ID:            "cs_live_1",
		Status:        "complete",
		PaymentStatus: "paid",
		AmountTotal:   4900,
		Currency:      "usd",
		Metadata:      map[string]string{metaSessionID: rec.ID.String(), metaTenantID: rec.TenantID.String()},
	})

	f.mock.ExpectQuery("SELECT EXISTS").
		WithArgs(ProviderStripe, "evt_4").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectQuery("SELECT").WithArgs(rec.ID).WillReturnRows(sessionRow(rec))
	f.mock.ExpectExec("UPDATE payment_sessions").
		WithArgs(SessionSucceeded, rec.ID, SessionPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec("INSERT INTO processed_events").
		WithArgs(ProviderStripe, "evt_4").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	payload := stripeEventPayload("evt_4", "checkout.session.completed", "cs_live_1")
	rr := f.deliver(t, payload, stripeSign(stripeTestSecret, payload))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"monthly"}, f.plans.activated)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStripeWebhookAcksWhenReconcileFails(t *testing.T) {
	// Session lookup fails, the delivery is still acknowledged so Stripe
	// retries instead of disabling the endpoint.
	f := newStripeWebhookFixture(t, &stripeSession{
		ID:            "cs_live_2",
		PaymentStatus: "paid",
	})

	f.mock.ExpectQuery("SELECT EXISTS").
		WithArgs(ProviderStripe, "evt_5").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectQuery("SELECT").
		WithArgs("cs_live_2").
		WillReturnError(fmt.Errorf("connection reset"))

	payload := stripeEventPayload("evt_5", "checkout.session.completed", "cs_live_2")
	rr := f.deliver(t, payload, stripeSign(stripeTestSecret, payload))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVerifyStripeSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_x"}`)

	t.Run("empty secret rejects", func(t *testing.T) {
		assert.False(t, verifyStripeSignature("", payload, ""))
		// Even a signed delivery fails without a configured secret.
		assert.False(t, verifyStripeSignature("", payload, stripeSign("sec", payload)))
	})

	t.Run("valid", func(t *testing.T) {
		assert.True(t, verifyStripeSignature("sec", payload, stripeSign("sec", payload)))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, verifyStripeSignature("sec", payload, stripeSign("other", payload)))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		ts := time.Now().Add(-10 * time.Minute).Unix()
		mac := hmac.New(sha256.New, []byte("sec"))
		fmt.Fprintf(mac, "%d.%s", ts, payload)
		header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
		assert.False(t, verifyStripeSignature("sec", payload, header))
	})

	t.Run("malformed header", func(t *testing.T) {
		assert.False(t, verifyStripeSignature("sec", payload, "v1=abc"))
		assert.False(t, verifyStripeSignature("sec", payload, "t=123"))
	})
}
