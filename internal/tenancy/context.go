package tenancy

import "context"

type ctxKey string

const (
	tenantKey ctxKey = "barber.tenant_id"
	actorKey  ctxKey = "barber.actor_role"
)

// Actor roles recognized by appointment operations.
const (
	ActorClient = "client"
	ActorOwner  = "owner"
)

// WithTenantID stores the tenant id in context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantIDFromContext extracts the tenant id if present.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(tenantKey)
	if val == nil {
		return "", false
	}
	tenantID, ok := val.(string)
	return tenantID, ok && tenantID != ""
}

// WithActorRole stores the authenticated actor role in context.
func WithActorRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, actorKey, role)
}

// ActorRoleFromContext extracts the actor role, defaulting to client.
func ActorRoleFromContext(ctx context.Context) string {
	if val, ok := ctx.Value(actorKey).(string); ok && val != "" {
		return val
	}
	return ActorClient
}
