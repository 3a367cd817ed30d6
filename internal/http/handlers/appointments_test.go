package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/danigamesx/barber-ai-sub000/internal/apperr"
	"github.com/danigamesx/barber-ai-sub000/internal/appointments"
	"github.com/danigamesx/barber-ai-sub000/internal/catalog"
	"github.com/danigamesx/barber-ai-sub000/internal/entitlements"
	"github.com/danigamesx/barber-ai-sub000/internal/ledger"
	"github.com/danigamesx/barber-ai-sub000/internal/tenancy"
	"github.com/danigamesx/barber-ai-sub000/internal/tenants"
)

type memApptStore struct {
	appts map[uuid.UUID]*appointments.Appointment
}

func newMemApptStore() *memApptStore {
	return &memApptStore{appts: map[uuid.UUID]*appointments.Appointment{}}
}

func (s *memApptStore) Create(_ context.Context, a *appointments.Appointment) error {
	cp := *a
	s.appts[a.ID] = &cp
	return nil
}

func (s *memApptStore) GetByID(_ context.Context, tenantID, id uuid.UUID) (*appointments.Appointment, error) {
	a, ok := s.appts[id]
	if !ok || a.TenantID != tenantID {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (s *memApptStore) GetByPaymentSession(_ context.Context, sessionID string) (*appointments.Appointment, error) {
	for _, a := range s.appts {
		if a.PaymentSessionID == sessionID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("no appointment for session %s", sessionID)
}

func (s *memApptStore) UpdateStatus(_ context.Context, tenantID, id uuid.UUID, from []appointments.Status, next appointments.Status) (*appointments.Appointment, error) {
	a, ok := s.appts[id]
	if !ok || a.TenantID != tenantID {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	for _, f := range from {
		if a.Status == f {
			a.Status = next
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperr.Conflict("appointment is %s", a.Status)
}

func (s *memApptStore) MarkPaid(_ context.Context, tenantID, id uuid.UUID, sessionID string) (*appointments.Appointment, error) {
	a, err := s.UpdateStatus(context.Background(), tenantID, id, []appointments.Status{appointments.StatusConfirmed}, appointments.StatusPaid)
	if err != nil {
		return nil, err
	}
	s.appts[id].PaymentSessionID = sessionID
	a.PaymentSessionID = sessionID
	return a, nil
}

func (s *memApptStore) Reschedule(_ context.Context, tenantID, id uuid.UUID, startAt, endAt time.Time) (*appointments.Appointment, error) {
	a, ok := s.appts[id]
	if !ok || a.TenantID != tenantID {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	a.StartAt, a.EndAt = startAt, endAt
	cp := *a
	return &cp, nil
}

func (s *memApptStore) CountSubscriptionUsage(context.Context, uuid.UUID, uuid.UUID, time.Time, time.Time) (int, error) {
	return 0, nil
}

type stubSettingsSource struct{ settings *tenants.Settings }

func (s stubSettingsSource) Get(_ context.Context, tenantID string) (*tenants.Settings, error) {
	if s.settings != nil {
		return s.settings, nil
	}
	return tenants.DefaultSettings(tenantID), nil
}

type stubCatalog struct {
	service *catalog.Service
	barber  *catalog.Barber
}

func (s stubCatalog) GetService(_ context.Context, _, id uuid.UUID) (*catalog.Service, error) {
	if s.service == nil || s.service.ID != id {
		return nil, apperr.NotFound("service %s not found", id)
	}
	return s.service, nil
}

func (s stubCatalog) GetBarber(_ context.Context, _, id uuid.UUID) (*catalog.Barber, error) {
	if s.barber == nil || s.barber.ID != id {
		return nil, apperr.NotFound("barber %s not found", id)
	}
	return s.barber, nil
}

type stubLedger struct {
	balances ledger.Balances
	debts    []int64
	credits  []int64
}

func (s *stubLedger) BalancesFor(context.Context, uuid.UUID, uuid.UUID) (ledger.Balances, error) {
	return s.balances, nil
}

func (s *stubLedger) AddStoreCredit(_ context.Context, _, _ uuid.UUID, amount int64) error {
	s.credits = append(s.credits, amount)
	return nil
}

func (s *stubLedger) AddOutstandingDebt(_ context.Context, _, _ uuid.UUID, amount int64) error {
	s.debts = append(s.debts, amount)
	return nil
}

func (s *stubLedger) Settle(context.Context, uuid.UUID, uuid.UUID, int64, int64) error {
	return nil
}

type stubEntitlements struct{}

func (stubEntitlements) GetPackageCredit(_ context.Context, _, id uuid.UUID) (*entitlements.PackageCredit, error) {
	return nil, apperr.NotFound("package credit %s not found", id)
}

func (stubEntitlements) GetSubscription(_ context.Context, _, id uuid.UUID) (*entitlements.Subscription, error) {
	return nil, apperr.NotFound("subscription %s not found", id)
}

func (stubEntitlements) ConsumePackageUse(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

type stubAvailability struct{ bookable bool }

func (s stubAvailability) CanBook(context.Context, uuid.UUID, uuid.UUID, time.Time, time.Duration, *time.Location, uuid.UUID) (bool, error) {
	return s.bookable, nil
}

type apptFixture struct {
	handler  *AppointmentsHandler
	store    *memApptStore
	ledger   *stubLedger
	tenantID uuid.UUID
	clientID uuid.UUID
	barberID uuid.UUID
	service  *catalog.Service
}

func newApptFixture(t *testing.T, settings *tenants.Settings, bookable bool) *apptFixture {
	t.Helper()
	f := &apptFixture{
		store:    newMemApptStore(),
		ledger:   &stubLedger{},
		tenantID: uuid.New(),
		clientID: uuid.New(),
		barberID: uuid.New(),
	}
	f.service = &catalog.Service{
		ID:              uuid.New(),
		TenantID:        f.tenantID,
		Name:            "Haircut",
		DurationMinutes: 30,
		PriceCents:      5000,
	}
	svc := appointments.NewService(
		f.store,
		stubSettingsSource{settings: settings},
		stubCatalog{service: f.service, barber: &catalog.Barber{ID: f.barberID, TenantID: f.tenantID, Name: "Sam"}},
		f.ledger,
		stubEntitlements{},
		stubAvailability{bookable: bookable},
		nil,
	)
	f.handler = NewAppointmentsHandler(svc, nil)
	return f
}

func (f *apptFixture) createBody(start time.Time) string {
	return fmt.Sprintf(`{"client_id":%q,"barber_id":%q,"service_id":%q,"start_at":%q}`,
		f.clientID, f.barberID, f.service.ID, start.Format(time.RFC3339))
}

func (f *apptFixture) seed(status appointments.Status, start time.Time) *appointments.Appointment {
	a := &appointments.Appointment{
		ID:         uuid.New(),
		TenantID:   f.tenantID,
		ClientID:   f.clientID,
		BarberID:   f.barberID,
		ServiceID:  f.service.ID,
		PriceCents: f.service.PriceCents,
		StartAt:    start,
		EndAt:      start.Add(30 * time.Minute),
		Status:     status,
	}
	f.store.appts[a.ID] = a
	return a
}

func TestCreateAppointmentPendingByDefault(t *testing.T) {
	f := newApptFixture(t, nil, true)
	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)

	req := requestWithTenant(t, http.MethodPost, "/appointments", f.createBody(start), f.tenantID)
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "pending" {
		t.Fatalf("expected pending booking, got %s", resp.Status)
	}
	if resp.PriceCents != 5000 {
		t.Fatalf("expected service price, got %d", resp.PriceCents)
	}
}

func TestCreateAppointmentAutoConfirm(t *testing.T) {
	tenantID := uuid.New()
	settings := tenants.DefaultSettings(tenantID.String())
	settings.AutoConfirmAppointments = true
	f := newApptFixture(t, settings, true)

	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	req := requestWithTenant(t, http.MethodPost, "/appointments", f.createBody(start), f.tenantID)
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "confirmed" {
		t.Fatalf("expected confirmed booking, got %s", resp.Status)
	}
}

func TestCreateAppointmentRejectsBadPayload(t *testing.T) {
	f := newApptFixture(t, nil, true)

	req := requestWithTenant(t, http.MethodPost, "/appointments",
		`{"client_id":"not-a-uuid","barber_id":"x","service_id":"y"}`, f.tenantID)
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestCreateAppointmentSlotConflict(t *testing.T) {
	f := newApptFixture(t, nil, false)
	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)

	req := requestWithTenant(t, http.MethodPost, "/appointments", f.createBody(start), f.tenantID)
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestAcceptPendingAppointment(t *testing.T) {
	f := newApptFixture(t, nil, true)
	a := f.seed(appointments.StatusPending, time.Now().Add(24*time.Hour))

	req := requestWithTenant(t, http.MethodPost, "/appointments/"+a.ID.String()+"/accept", "", f.tenantID)
	req = withURLParam(req, "appointmentID", a.ID.String())
	rec := httptest.NewRecorder()
	f.handler.Accept(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if f.store.appts[a.ID].Status != appointments.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", f.store.appts[a.ID].Status)
	}
}

func TestAcceptConfirmedAppointmentConflicts(t *testing.T) {
	f := newApptFixture(t, nil, true)
	a := f.seed(appointments.StatusConfirmed, time.Now().Add(24*time.Hour))

	req := requestWithTenant(t, http.MethodPost, "/appointments/"+a.ID.String()+"/accept", "", f.tenantID)
	req = withURLParam(req, "appointmentID", a.ID.String())
	rec := httptest.NewRecorder()
	f.handler.Accept(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409", rec.Code)
	}
}

func TestGetAppointmentInvalidID(t *testing.T) {
	f := newApptFixture(t, nil, true)

	req := requestWithTenant(t, http.MethodGet, "/appointments/nope", "", f.tenantID)
	req = withURLParam(req, "appointmentID", "nope")
	rec := httptest.NewRecorder()
	f.handler.Get(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestCancelLateClientCancellationAccruesFee(t *testing.T) {
	tenantID := uuid.New()
	settings := tenants.DefaultSettings(tenantID.String())
	settings.CancellationPolicy = tenants.CancellationPolicy{
		Enabled:        true,
		FeePercentage:  50,
		TimeLimitHours: 24,
	}
	f := newApptFixture(t, settings, true)
	// Starts in one hour, well inside the 24h fee window.
	a := f.seed(appointments.StatusConfirmed, time.Now().Add(time.Hour))

	req := requestWithTenant(t, http.MethodPost, "/appointments/"+a.ID.String()+"/cancel", "", f.tenantID)
	req = req.WithContext(tenancy.WithActorRole(req.Context(), tenancy.ActorClient))
	req = withURLParam(req, "appointmentID", a.ID.String())
	rec := httptest.NewRecorder()
	f.handler.Cancel(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.ledger.debts) != 1 || f.ledger.debts[0] != 2500 {
		t.Fatalf("expected 2500 cent fee as debt, got %v", f.ledger.debts)
	}
}

func TestCancelByOwnerSkipsFee(t *testing.T) {
	tenantID := uuid.New()
	settings := tenants.DefaultSettings(tenantID.String())
	settings.CancellationPolicy = tenants.CancellationPolicy{
		Enabled:        true,
		FeePercentage:  50,
		TimeLimitHours: 24,
	}
	f := newApptFixture(t, settings, true)
	a := f.seed(appointments.StatusConfirmed, time.Now().Add(time.Hour))

	req := requestWithTenant(t, http.MethodPost, "/appointments/"+a.ID.String()+"/cancel", "", f.tenantID)
	req = req.WithContext(tenancy.WithActorRole(req.Context(), tenancy.ActorOwner))
	req = withURLParam(req, "appointmentID", a.ID.String())
	rec := httptest.NewRecorder()
	f.handler.Cancel(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.ledger.debts) != 0 {
		t.Fatalf("owner cancellation must not accrue a fee, got %v", f.ledger.debts)
	}
}
