package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/danigamesx/barber-ai-sub000/internal/appointments"
	"github.com/danigamesx/barber-ai-sub000/internal/tenancy"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

// AppointmentsHandler exposes the appointment lifecycle over HTTP.
type AppointmentsHandler struct {
	svc    *appointments.Service
	logger *logging.Logger
}

func NewAppointmentsHandler(svc *appointments.Service, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{svc: svc, logger: logger}
}

type createAppointmentRequest struct {
	ClientID        string    `json:"client_id" validate:"required,uuid"`
	BarberID        string    `json:"barber_id" validate:"required,uuid"`
	ServiceID       string    `json:"service_id" validate:"required,uuid"`
	StartAt         time.Time `json:"start_at" validate:"required"`
	Notes           string    `json:"notes" validate:"max=2000"`
	UseReward       bool      `json:"use_reward"`
	PackageCreditID string    `json:"package_credit_id" validate:"omitempty,uuid"`
	SubscriptionID  string    `json:"subscription_id" validate:"omitempty,uuid"`
}

type rescheduleRequest struct {
	StartAt time.Time `json:"start_at" validate:"required"`
}

type appointmentResponse struct {
	ID               string     `json:"id"`
	ClientID         string     `json:"client_id"`
	BarberID         string     `json:"barber_id"`
	ServiceID        string     `json:"service_id"`
	PriceCents       int64      `json:"price_cents"`
	StartAt          time.Time  `json:"start_at"`
	EndAt            time.Time  `json:"end_at"`
	Status           string     `json:"status"`
	Notes            string     `json:"notes,omitempty"`
	IsReward         bool       `json:"is_reward,omitempty"`
	PackageCreditID  *uuid.UUID `json:"package_credit_id,omitempty"`
	SubscriptionID   *uuid.UUID `json:"subscription_id,omitempty"`
	PaymentSessionID string     `json:"payment_session_id,omitempty"`
}

func toAppointmentResponse(a *appointments.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:               a.ID.String(),
		ClientID:         a.ClientID.String(),
		BarberID:         a.BarberID.String(),
		ServiceID:        a.ServiceID.String(),
		PriceCents:       a.PriceCents,
		StartAt:          a.StartAt,
		EndAt:            a.EndAt,
		Status:           string(a.Status),
		Notes:            a.Notes,
		IsReward:         a.IsReward,
		PackageCreditID:  a.PackageCreditID,
		SubscriptionID:   a.SubscriptionID,
		PaymentSessionID: a.PaymentSessionID,
	}
}

// Create books an appointment.
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := appointments.CreateParams{
		TenantID:  tenantID,
		ClientID:  uuid.MustParse(req.ClientID),
		BarberID:  uuid.MustParse(req.BarberID),
		ServiceID: uuid.MustParse(req.ServiceID),
		StartAt:   req.StartAt,
		Notes:     req.Notes,
		UseReward: req.UseReward,
	}
	if req.PackageCreditID != "" {
		id := uuid.MustParse(req.PackageCreditID)
		params.Entitlement.PackageCreditID = &id
	}
	if req.SubscriptionID != "" {
		id := uuid.MustParse(req.SubscriptionID)
		params.Entitlement.SubscriptionID = &id
	}

	appt, err := h.svc.Create(r.Context(), params)
	if err != nil {
		h.logger.Error("booking failed", "error", err, "tenant_id", tenantID)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// Get returns one appointment.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	id, err := uuidParam(r, "appointmentID")
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.Get(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// Accept confirms a pending appointment.
func (h *AppointmentsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Accept)
}

// Decline rejects a pending appointment.
func (h *AppointmentsHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Decline)
}

// Complete marks an appointment as delivered.
func (h *AppointmentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Complete)
}

func (h *AppointmentsHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, tenantID, id uuid.UUID) (*appointments.Appointment, error)) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	id, err := uuidParam(r, "appointmentID")
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	appt, err := op(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// Cancel cancels an appointment, applying the tenant's cancellation policy.
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	id, err := uuidParam(r, "appointmentID")
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	actor := tenancy.ActorRoleFromContext(r.Context())
	appt, err := h.svc.Cancel(r.Context(), tenantID, id, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// Reschedule moves an appointment to a new start time.
func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	id, err := uuidParam(r, "appointmentID")
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	appt, err := h.svc.Reschedule(r.Context(), tenantID, id, req.StartAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}
