package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/danigamesx/barber-ai-sub000/internal/availability"
	"github.com/danigamesx/barber-ai-sub000/internal/catalog"
	"github.com/danigamesx/barber-ai-sub000/internal/tenants"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

// SettingsSource resolves per-tenant settings for handlers.
type SettingsSource interface {
	Get(ctx context.Context, tenantID string) (*tenants.Settings, error)
}

// CatalogSource resolves services for slot duration lookups.
type CatalogSource interface {
	GetService(ctx context.Context, tenantID, serviceID uuid.UUID) (*catalog.Service, error)
	ListServices(ctx context.Context, tenantID uuid.UUID) ([]catalog.Service, error)
}

// AvailabilityHandler serves bookable slot listings.
type AvailabilityHandler struct {
	svc      *availability.Service
	catalog  CatalogSource
	settings SettingsSource
	logger   *logging.Logger
}

func NewAvailabilityHandler(svc *availability.Service, cat CatalogSource, settings SettingsSource, logger *logging.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{svc: svc, catalog: cat, settings: settings, logger: logger}
}

type slotsResponse struct {
	BarberID  string   `json:"barber_id"`
	ServiceID string   `json:"service_id"`
	Date      string   `json:"date"`
	// Slots are "HH:MM" wall-clock start times in the tenant's zone,
	// ascending.
	Slots []string `json:"slots"`
}

// Slots lists the bookable start times for a barber, service and date.
// Query params: barber_id, service_id, date (YYYY-MM-DD in the tenant zone).
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	barberID, err := uuid.Parse(r.URL.Query().Get("barber_id"))
	if err != nil {
		http.Error(w, "invalid barber_id", http.StatusBadRequest)
		return
	}
	serviceID, err := uuid.Parse(r.URL.Query().Get("service_id"))
	if err != nil {
		http.Error(w, "invalid service_id", http.StatusBadRequest)
		return
	}

	settings, err := h.settings.Get(r.Context(), tenantID.String())
	if err != nil {
		h.logger.Error("settings lookup failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	loc := settings.Location()

	rawDate := r.URL.Query().Get("date")
	date, err := time.ParseInLocation("2006-01-02", rawDate, loc)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	svc, err := h.catalog.GetService(r.Context(), tenantID, serviceID)
	if err != nil {
		writeError(w, err)
		return
	}

	slots, err := h.svc.Slots(r.Context(), tenantID, barberID, svc.Duration(), date, loc)
	if err != nil {
		h.logger.Error("slot computation failed", "error", err, "tenant_id", tenantID)
		writeError(w, err)
		return
	}
	formatted := make([]string, 0, len(slots))
	for _, s := range slots {
		formatted = append(formatted, s.In(loc).Format("15:04"))
	}
	writeJSON(w, http.StatusOK, slotsResponse{
		BarberID:  barberID.String(),
		ServiceID: serviceID.String(),
		Date:      rawDate,
		Slots:     formatted,
	})
}

// Services lists the tenant's bookable services.
func (h *AvailabilityHandler) Services(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	services, err := h.catalog.ListServices(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	type serviceItem struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		DurationMinutes int    `json:"duration_minutes"`
		PriceCents      int64  `json:"price_cents"`
	}
	items := make([]serviceItem, 0, len(services))
	for _, s := range services {
		items = append(items, serviceItem{
			ID:              s.ID.String(),
			Name:            s.Name,
			DurationMinutes: s.DurationMinutes,
			PriceCents:      s.PriceCents,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": items})
}
