package handlers

import (
	"net/http"
	"time"

	"github.com/danigamesx/barber-ai-sub000/internal/billing"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

// PlanHandler exposes a tenant's platform plan state.
type PlanHandler struct {
	repo      *billing.Repository
	trialDays int
	logger    *logging.Logger
}

func NewPlanHandler(repo *billing.Repository, trialDays int, logger *logging.Logger) *PlanHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PlanHandler{repo: repo, trialDays: trialDays, logger: logger}
}

type planResponse struct {
	Access        string     `json:"access"`
	Plan          string     `json:"plan,omitempty"`
	TrialDaysLeft int        `json:"trial_days_left,omitempty"`
	TrialEndsAt   *time.Time `json:"trial_ends_at,omitempty"`
	PlanExpiresAt *time.Time `json:"plan_expires_at,omitempty"`
}

// Status reports the tenant's current access level.
func (h *PlanHandler) Status(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	state, err := h.repo.GetPlanState(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("plan lookup failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	access := billing.Resolve(state, time.Now())
	writeJSON(w, http.StatusOK, planResponse{
		Access:        string(access.State),
		Plan:          access.Plan,
		TrialDaysLeft: access.TrialDaysLeft,
		TrialEndsAt:   state.TrialEndsAt,
		PlanExpiresAt: state.PlanExpiresAt,
	})
}

// StartTrial opens the free trial window for a tenant that has no plan yet.
func (h *PlanHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	state, err := h.repo.GetPlanState(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("plan lookup failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if state.TrialEndsAt != nil || state.PlanExpiresAt != nil {
		http.Error(w, "trial already used", http.StatusConflict)
		return
	}
	endsAt := time.Now().AddDate(0, 0, h.trialDays)
	if err := h.repo.StartTrial(r.Context(), tenantID, endsAt); err != nil {
		h.logger.Error("trial start failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"trial_ends_at": endsAt})
}
