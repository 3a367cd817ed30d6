package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danigamesx/barber-ai-sub000/internal/apperr"
)

func TestStripeCreateSession(t *testing.T) {
	sessionID := uuid.New()
	tenantID := uuid.New()

	var gotForm map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		_ = json.NewEncoder(w).Encode(stripeSession{ID: "cs_new", URL: "https://checkout.stripe.com/c/cs_new"})
	}))
	defer srv.Close()

	gw := NewStripeGateway("sk_test", "https://app.example.com/done", "https://app.example.com/cancel", nil).WithBaseURL(srv.URL)
	session, err := gw.CreateSession(context.Background(), SessionParams{
		SessionID:   sessionID,
		TenantID:    tenantID,
		AmountCents: 5500,
		Currency:    "usd",
		Description: "Beard trim",
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_new", session.ProviderSessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_new", session.URL)
	assert.Equal(t, ProviderStripe, session.Provider)

	assert.Equal(t, "payment", gotForm["mode"][0])
	assert.Equal(t, "5500", gotForm["line_items[0][price_data][unit_amount]"][0])
	assert.Equal(t, "Beard trim", gotForm["line_items[0][price_data][product_data][name]"][0])
	assert.Equal(t, sessionID.String(), gotForm["metadata[session_id]"][0])
	assert.Equal(t, tenantID.String(), gotForm["metadata[tenant_id]"][0])
	assert.Equal(t, sessionID.String(), gotForm["payment_intent_data[metadata][session_id]"][0])
	assert.Equal(t, "https://app.example.com/done", gotForm["success_url"][0])
}

func TestStripeCreateSessionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
	}))
	defer srv.Close()

	gw := NewStripeGateway("sk_test", "", "", nil).WithBaseURL(srv.URL)
	_, err := gw.CreateSession(context.Background(), SessionParams{SessionID: uuid.New(), TenantID: uuid.New(), AmountCents: 100})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalProvider))
}

func TestStripeCreateSessionNotConfigured(t *testing.T) {
	gw := NewStripeGateway("", "", "", nil)
	_, err := gw.CreateSession(context.Background(), SessionParams{SessionID: uuid.New(), TenantID: uuid.New()})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotConfigured))
}

func TestStripeFetchPaymentStates(t *testing.T) {
	sessionID := uuid.New()
	cases := []struct {
		name          string
		status        string
		paymentStatus string
		want          PaymentState
	}{
		{"paid", "complete", "paid", PaymentCompleted},
		{"free checkout", "complete", "no_payment_required", PaymentCompleted},
		{"expired", "expired", "unpaid", PaymentFailed},
		{"awaiting payment", "open", "unpaid", PaymentPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v1/checkout/sessions/cs_fetch", r.URL.Path)
				_ = json.NewEncoder(w).Encode(stripeSession{
					ID:            "cs_fetch",
					Status:        tc.status,
					PaymentStatus: tc.paymentStatus,
					AmountTotal:   7000,
					Currency:      "usd",
					Metadata:      map[string]string{metaSessionID: sessionID.String()},
				})
			}))
			defer srv.Close()

			gw := NewStripeGateway("sk_test", "", "", nil).WithBaseURL(srv.URL)
			payment, err := gw.FetchPayment(context.Background(), "cs_fetch")
			require.NoError(t, err)

			assert.Equal(t, tc.want, payment.State)
			assert.Equal(t, int64(7000), payment.AmountCents)
			assert.Equal(t, sessionID.String(), payment.SessionID)
		})
	}
}
