package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danigamesx/barber-ai-sub000/internal/apperr"
	"github.com/danigamesx/barber-ai-sub000/internal/catalog"
	"github.com/danigamesx/barber-ai-sub000/internal/ledger"
	"github.com/danigamesx/barber-ai-sub000/internal/tenancy"
	"github.com/danigamesx/barber-ai-sub000/internal/tenants"
)

type stubGateway struct {
	name       string
	configured bool
	session    *Session
	createErr  error
	payment    *ProviderPayment
	fetchErr   error

	lastParams SessionParams
}

func (g *stubGateway) Name() string     { return g.name }
func (g *stubGateway) Configured() bool { return g.configured }

func (g *stubGateway) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	g.lastParams = params
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.session, nil
}

func (g *stubGateway) FetchPayment(ctx context.Context, paymentID string) (*ProviderPayment, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g.payment, nil
}

func (g *stubGateway) FetchSessionPayment(ctx context.Context, providerSessionID string) (*ProviderPayment, error) {
	return g.FetchPayment(ctx, providerSessionID)
}

type stubSettingsSource struct {
	settings *tenants.Settings
	err      error
}

func (s *stubSettingsSource) Get(ctx context.Context, tenantID string) (*tenants.Settings, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.settings, nil
}

type stubCatalogSource struct {
	service *catalog.Service
	err     error
}

func (s *stubCatalogSource) GetService(ctx context.Context, tenantID, serviceID uuid.UUID) (*catalog.Service, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.service, nil
}

type stubBalanceSource struct {
	balances ledger.Balances
}

func (s *stubBalanceSource) BalancesFor(ctx context.Context, tenantID, clientID uuid.UUID) (ledger.Balances, error) {
	return s.balances, nil
}

type stubSlotChecker struct {
	bookable bool
}

func (s *stubSlotChecker) CanBook(ctx context.Context, tenantID, barberID uuid.UUID, start time.Time, duration time.Duration, loc *time.Location, exclude uuid.UUID) (bool, error) {
	return s.bookable, nil
}

type checkoutFixture struct {
	handler  *CheckoutHandler
	mock     pgxmock.PgxPoolIface
	tenantID uuid.UUID
	stripe   *stubGateway
	square   *stubGateway
	settings *stubSettingsSource
	catalog  *stubCatalogSource
	balances *stubBalanceSource
	slots    *stubSlotChecker
	bookings *stubBookings
	grantor  *stubGrantor
	plans    *stubActivator
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	tenantID := uuid.New()
	settings := tenants.DefaultSettings(tenantID.String())
	settings.PaymentProvider = "stripe"

	f := &checkoutFixture{
		mock:     mock,
		tenantID: tenantID,
		stripe: &stubGateway{
			name:       ProviderStripe,
			configured: true,
			session:    &Session{ProviderSessionID: "cs_stub", URL: "https://checkout.stripe.com/c/cs_stub", Provider: ProviderStripe},
		},
		square: &stubGateway{
			name:       ProviderSquare,
			configured: true,
			session:    &Session{ProviderSessionID: "plink_stub", URL: "https://square.link/u/stub", Provider: ProviderSquare},
		},
		settings: &stubSettingsSource{settings: settings},
		catalog:  &stubCatalogSource{service: &catalog.Service{ID: uuid.New(), Name: "Haircut", DurationMinutes: 30, PriceCents: 5000}},
		balances: &stubBalanceSource{},
		slots:    &stubSlotChecker{bookable: true},
		bookings: &stubBookings{},
		grantor:  &stubGrantor{},
		plans:    &stubActivator{},
	}

	sessions := NewSessionRepository(mock)
	rec := NewReconciler(sessions, f.bookings, f.grantor, f.plans, nil)
	f.handler = NewCheckoutHandler(sessions, f.stripe, f.square, f.settings, f.catalog, f.balances, f.slots, rec,
		PlanPricing{MonthlyCents: 4900, AnnualCents: 49900, Currency: "usd"}, nil)
	return f
}

func (f *checkoutFixture) request(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(tenancy.WithTenantID(req.Context(), f.tenantID.String()))
}

func TestCheckoutAppointmentCreatesSession(t *testing.T) {
	f := newCheckoutFixture(t)
	f.balances.balances = ledger.Balances{OutstandingDebtCents: 1000, StoreCreditCents: 500}

	f.mock.ExpectExec("INSERT INTO payment_sessions").
		WithArgs(pgxmock.AnyArg(), f.tenantID, ProviderStripe, "cs_stub", PurchaseAppointment,
			int64(5500), "usd", SessionPending, pgxmock.AnyArg(), "https://checkout.stripe.com/c/cs_stub").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	body, _ := json.Marshal(map[string]any{
		"client_id":  uuid.NewString(),
		"barber_id":  uuid.NewString(),
		"service_id": uuid.NewString(),
		"start_at":   time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})
	rr := httptest.NewRecorder()
	f.handler.CheckoutAppointment(rr, f.request(http.MethodPost, "/payments/checkout/appointment", string(body)))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp checkoutResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "https://checkout.stripe.com/c/cs_stub", resp.CheckoutURL)
	assert.Equal(t, ProviderStripe, resp.Provider)
	// 5000 base + 1000 debt - 500 credit
	assert.Equal(t, int64(5500), resp.AmountCents)
	assert.Equal(t, int64(5500), f.stripe.lastParams.AmountCents)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCheckoutAppointmentRejectsUnavailableSlot(t *testing.T) {
	f := newCheckoutFixture(t)
	f.slots.bookable = false

	body, _ := json.Marshal(map[string]any{
		"client_id":  uuid.NewString(),
		"barber_id":  uuid.NewString(),
		"service_id": uuid.NewString(),
		"start_at":   time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})
	rr := httptest.NewRecorder()
	f.handler.CheckoutAppointment(rr, f.request(http.MethodPost, "/payments/checkout/appointment", string(body)))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCheckoutAppointmentRejectsZeroAmountDue(t *testing.T) {
	f := newCheckoutFixture(t)
	// Credit swallows the whole price, there is nothing to charge.
	f.balances.balances = ledger.Balances{StoreCreditCents: 10000}

	body, _ := json.Marshal(map[string]any{
		"client_id":  uuid.NewString(),
		"barber_id":  uuid.NewString(),
		"service_id": uuid.NewString(),
		"start_at":   time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})
	rr := httptest.NewRecorder()
	f.handler.CheckoutAppointment(rr, f.request(http.MethodPost, "/payments/checkout/appointment", string(body)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckoutUsesTenantProvider(t *testing.T) {
	f := newCheckoutFixture(t)
	f.settings.settings.PaymentProvider = "square"

	f.mock.ExpectExec("INSERT INTO payment_sessions").
		WithArgs(pgxmock.AnyArg(), f.tenantID, ProviderSquare, "plink_stub", PurchasePackage,
			int64(15000), "usd", SessionPending, pgxmock.AnyArg(), "https://square.link/u/stub").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	body, _ := json.Marshal(map[string]any{
		"client_id":   uuid.NewString(),
		"name":        "Cut pack",
		"total_uses":  5,
		"price_cents": 15000,
	})
	rr := httptest.NewRecorder()
	f.handler.CheckoutPackage(rr, f.request(http.MethodPost, "/payments/checkout/package", string(body)))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, int64(15000), f.square.lastParams.AmountCents)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCheckoutPackageProviderNotConfigured(t *testing.T) {
	f := newCheckoutFixture(t)
	f.stripe.configured = false

	body, _ := json.Marshal(map[string]any{
		"client_id":   uuid.NewString(),
		"name":        "Cut pack",
		"total_uses":  5,
		"price_cents": 15000,
	})
	rr := httptest.NewRecorder()
	f.handler.CheckoutPackage(rr, f.request(http.MethodPost, "/payments/checkout/package", string(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCheckoutSubscriptionValidatesPayload(t *testing.T) {
	f := newCheckoutFixture(t)

	body, _ := json.Marshal(map[string]any{
		"client_id":    uuid.NewString(),
		"name":         "Monthly cuts",
		"monthly_uses": 0,
		"price_cents":  9900,
	})
	rr := httptest.NewRecorder()
	f.handler.CheckoutSubscription(rr, f.request(http.MethodPost, "/payments/checkout/subscription", string(body)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubscribePlanAlwaysUsesStripe(t *testing.T) {
	f := newCheckoutFixture(t)
	f.settings.settings.PaymentProvider = "square"

	f.mock.ExpectExec("INSERT INTO payment_sessions").
		WithArgs(pgxmock.AnyArg(), f.tenantID, ProviderStripe, "cs_stub", PurchaseTenantPlan,
			int64(49900), "usd", SessionPending, pgxmock.AnyArg(), "https://checkout.stripe.com/c/cs_stub").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rr := httptest.NewRecorder()
	f.handler.SubscribePlan(rr, f.request(http.MethodPost, "/payments/plan/subscribe", `{"plan_type":"annual"}`))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, int64(49900), f.stripe.lastParams.AmountCents)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCheckoutMissingTenantContext(t *testing.T) {
	f := newCheckoutFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/payments/plan/subscribe", strings.NewReader(`{"plan_type":"monthly"}`))
	rr := httptest.NewRecorder()
	f.handler.SubscribePlan(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func verifyRequest(f *checkoutFixture, sessionID uuid.UUID) *http.Request {
	req := f.request(http.MethodPost, "/payments/sessions/"+sessionID.String()+"/verify", "")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("sessionID", sessionID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestVerifySettlesPendingSession(t *testing.T) {
	f := newCheckoutFixture(t)

	planPayload, _ := json.Marshal(PlanPurchase{Plan: "pro", PlanType: "monthly"})
	rec := &SessionRecord{
		ID:                uuid.New(),
		TenantID:          f.tenantID,
		Provider:          ProviderStripe,
		ProviderSessionID: "cs_verify",
		PurchaseType:      PurchaseTenantPlan,
		AmountCents:       4900,
		Currency:          "usd",
		Status:            SessionPending,
		Payload:           planPayload,
	}
	f.stripe.payment = &ProviderPayment{ID: "cs_verify", State: PaymentCompleted, AmountCents: 4900, SessionID: rec.ID.String()}

	f.mock.ExpectQuery("SELECT").WithArgs(rec.ID).WillReturnRows(sessionRow(rec))
	f.mock.ExpectQuery("SELECT").WithArgs(rec.ID).WillReturnRows(sessionRow(rec))
	f.mock.ExpectExec("UPDATE payment_sessions").
		WithArgs(SessionSucceeded, rec.ID, SessionPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	settled := *rec
	settled.Status = SessionSucceeded
	f.mock.ExpectQuery("SELECT").WithArgs(rec.ID).WillReturnRows(sessionRow(&settled))

	rr := httptest.NewRecorder()
	f.handler.Verify(rr, verifyRequest(f, rec.ID))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, SessionSucceeded, resp["status"])
	assert.Equal(t, []string{"monthly"}, f.plans.activated)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVerifyRejectsForeignTenantSession(t *testing.T) {
	f := newCheckoutFixture(t)

	rec := &SessionRecord{
		ID:                uuid.New(),
		TenantID:          uuid.New(), // another tenant
		Provider:          ProviderStripe,
		ProviderSessionID: "cs_other",
		PurchaseType:      PurchaseTenantPlan,
		AmountCents:       4900,
		Status:            SessionPending,
		Payload:           []byte(`{}`),
	}
	f.mock.ExpectQuery("SELECT").WithArgs(rec.ID).WillReturnRows(sessionRow(rec))

	rr := httptest.NewRecorder()
	f.handler.Verify(rr, verifyRequest(f, rec.ID))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVerifySucceededSessionSkipsProvider(t *testing.T) {
	f := newCheckoutFixture(t)
	f.stripe.fetchErr = apperr.ExternalProvider("should not be called", nil)

	rec := &SessionRecord{
		ID:                uuid.New(),
		TenantID:          f.tenantID,
		Provider:          ProviderStripe,
		ProviderSessionID: "cs_done",
		PurchaseType:      PurchaseTenantPlan,
		AmountCents:       4900,
		Status:            SessionSucceeded,
		Payload:           []byte(`{}`),
	}
	f.mock.ExpectQuery("SELECT").WithArgs(rec.ID).WillReturnRows(sessionRow(rec))

	rr := httptest.NewRecorder()
	f.handler.Verify(rr, verifyRequest(f, rec.ID))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, SessionSucceeded, resp["status"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
