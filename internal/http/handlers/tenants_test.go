package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/danigamesx/barber-ai-sub000/internal/tenants"
)

type recordingSettingsStore struct {
	saved *tenants.Settings
}

func (s *recordingSettingsStore) Get(_ context.Context, tenantID string) (*tenants.Settings, error) {
	if s.saved != nil {
		return s.saved, nil
	}
	return tenants.DefaultSettings(tenantID), nil
}

func (s *recordingSettingsStore) Set(_ context.Context, settings *tenants.Settings) error {
	s.saved = settings
	return nil
}

func TestGetSettingsReturnsDefaults(t *testing.T) {
	store := &recordingSettingsStore{}
	handler := NewTenantSettingsHandler(store, nil)
	tenantID := uuid.New()

	req := requestWithTenant(t, http.MethodGet, "/settings", "", tenantID)
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	var resp settingsPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PaymentProvider != "square" {
		t.Fatalf("expected default square provider, got %q", resp.PaymentProvider)
	}
	if resp.AutoConfirmAppointments {
		t.Fatalf("expected manual confirmation by default")
	}
}

func TestUpdateSettingsPersists(t *testing.T) {
	store := &recordingSettingsStore{}
	handler := NewTenantSettingsHandler(store, nil)
	tenantID := uuid.New()

	body := `{
		"name": "Main Street Barbers",
		"timezone": "America/Sao_Paulo",
		"payment_provider": "stripe",
		"auto_confirm_appointments": true,
		"prepay_required": true,
		"cancellation_fee_enabled": true,
		"cancellation_fee_percentage": 30,
		"cancellation_time_limit_hours": 12
	}`
	req := requestWithTenant(t, http.MethodPut, "/settings", body, tenantID)
	rec := httptest.NewRecorder()
	handler.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if store.saved == nil {
		t.Fatalf("expected settings persisted")
	}
	if !store.saved.UsesStripe() {
		t.Fatalf("expected stripe provider, got %q", store.saved.PaymentProvider)
	}
	if !store.saved.CancellationPolicy.Enabled || store.saved.CancellationPolicy.FeePercentage != 30 {
		t.Fatalf("unexpected cancellation policy: %+v", store.saved.CancellationPolicy)
	}
	if store.saved.Timezone != "America/Sao_Paulo" {
		t.Fatalf("unexpected timezone %q", store.saved.Timezone)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	store := &recordingSettingsStore{}
	handler := NewTenantSettingsHandler(store, nil)
	tenantID := uuid.New()

	cases := []struct {
		name string
		body string
	}{
		{"unknown provider", `{"payment_provider":"paypal"}`},
		{"fee over 100", `{"cancellation_fee_percentage":150}`},
		{"negative limit", `{"cancellation_time_limit_hours":-1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := requestWithTenant(t, http.MethodPut, "/settings", tc.body, tenantID)
			rec := httptest.NewRecorder()
			handler.Update(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("got %d, want 400", rec.Code)
			}
			if store.saved != nil {
				t.Fatalf("invalid settings must not persist")
			}
		})
	}
}
