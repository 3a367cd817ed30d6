package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danigamesx/barber-ai-sub000/internal/tenants"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

// SettingsStore reads and writes tenant settings.
type SettingsStore interface {
	Get(ctx context.Context, tenantID string) (*tenants.Settings, error)
	Set(ctx context.Context, settings *tenants.Settings) error
}

// TenantSettingsHandler exposes tenant configuration.
type TenantSettingsHandler struct {
	store  SettingsStore
	logger *logging.Logger
}

func NewTenantSettingsHandler(store SettingsStore, logger *logging.Logger) *TenantSettingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &TenantSettingsHandler{store: store, logger: logger}
}

type settingsPayload struct {
	Name                    string  `json:"name"`
	Timezone                string  `json:"timezone"`
	Currency                string  `json:"currency"`
	AutoConfirmAppointments bool    `json:"auto_confirm_appointments"`
	PaymentProvider         string  `json:"payment_provider" validate:"omitempty,oneof=stripe square"`
	PrepayRequired          bool    `json:"prepay_required"`
	CancellationEnabled     bool    `json:"cancellation_fee_enabled"`
	CancellationFeePct      float64 `json:"cancellation_fee_percentage" validate:"gte=0,lte=100"`
	CancellationLimitHours  float64 `json:"cancellation_time_limit_hours" validate:"gte=0"`
}

// Get returns the tenant's settings, falling back to defaults when none are
// stored yet.
func (h *TenantSettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	settings, err := h.store.Get(r.Context(), tenantID.String())
	if err != nil {
		h.logger.Error("settings lookup failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsPayload(settings))
}

// Update replaces the tenant's settings.
func (h *TenantSettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	settings := tenants.DefaultSettings(tenantID.String())
	if req.Name != "" {
		settings.Name = req.Name
	}
	if req.Timezone != "" {
		settings.Timezone = req.Timezone
	}
	if req.Currency != "" {
		settings.Currency = req.Currency
	}
	if req.PaymentProvider != "" {
		settings.PaymentProvider = req.PaymentProvider
	}
	settings.AutoConfirmAppointments = req.AutoConfirmAppointments
	settings.PrepayRequired = req.PrepayRequired
	settings.CancellationPolicy = tenants.CancellationPolicy{
		Enabled:        req.CancellationEnabled,
		FeePercentage:  req.CancellationFeePct,
		TimeLimitHours: req.CancellationLimitHours,
	}

	if err := h.store.Set(r.Context(), settings); err != nil {
		h.logger.Error("settings update failed", "error", err, "tenant_id", tenantID)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsPayload(settings))
}

func toSettingsPayload(s *tenants.Settings) settingsPayload {
	return settingsPayload{
		Name:                    s.Name,
		Timezone:                s.Timezone,
		Currency:                s.Currency,
		AutoConfirmAppointments: s.AutoConfirmAppointments,
		PaymentProvider:         s.PaymentProvider,
		PrepayRequired:          s.PrepayRequired,
		CancellationEnabled:     s.CancellationPolicy.Enabled,
		CancellationFeePct:      s.CancellationPolicy.FeePercentage,
		CancellationLimitHours:  s.CancellationPolicy.TimeLimitHours,
	}
}
