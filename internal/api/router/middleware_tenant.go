package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danigamesx/barber-ai-sub000/internal/billing"
	httpmiddleware "github.com/danigamesx/barber-ai-sub000/internal/http/middleware"
	"github.com/danigamesx/barber-ai-sub000/internal/tenancy"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

const tenantHeader = "X-Tenant-ID"
const actorRoleHeader = "X-Actor-Role"

// requireTenantID enforces multi-tenancy headers for API requests. A claimed
// client role is advisory, but a claimed owner role must be backed by a valid
// owner token since it changes fee outcomes on cancellation.
func requireTenantID(ownerSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := strings.TrimSpace(r.Header.Get(tenantHeader))
			if tenantID == "" {
				http.Error(w, "missing X-Tenant-ID", http.StatusBadRequest)
				return
			}
			if _, err := uuid.Parse(tenantID); err != nil {
				http.Error(w, "invalid X-Tenant-ID", http.StatusBadRequest)
				return
			}
			ctx := tenancy.WithTenantID(r.Context(), tenantID)
			switch role := strings.TrimSpace(r.Header.Get(actorRoleHeader)); role {
			case tenancy.ActorOwner:
				if _, ok := httpmiddleware.ParseOwnerToken(r, ownerSecret); !ok {
					http.Error(w, "owner role requires a valid token", http.StatusUnauthorized)
					return
				}
				ctx = tenancy.WithActorRole(ctx, tenancy.ActorOwner)
			case tenancy.ActorClient:
				ctx = tenancy.WithActorRole(ctx, role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PlanStateSource resolves a tenant's stored plan state.
type PlanStateSource interface {
	GetPlanState(ctx context.Context, tenantID uuid.UUID) (billing.PlanState, error)
}

// requireActivePlan gates online payment collection on an unexpired trial or
// paid plan. Booking and plan management stay outside this gate so a lapsed
// tenant keeps taking pay-later appointments and can resubscribe.
func requireActivePlan(plans PlanStateSource, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		if plans == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := tenancy.TenantIDFromContext(r.Context())
			if !ok {
				http.Error(w, "missing tenant context", http.StatusBadRequest)
				return
			}
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "invalid tenant id", http.StatusBadRequest)
				return
			}
			state, err := plans.GetPlanState(r.Context(), tenantID)
			if err != nil {
				logger.Error("plan state lookup failed", "error", err, "tenant_id", tenantID)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if !billing.Resolve(state, time.Now()).Active() {
				http.Error(w, "subscription required", http.StatusPaymentRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
