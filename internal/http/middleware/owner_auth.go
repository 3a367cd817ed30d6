package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/danigamesx/barber-ai-sub000/internal/tenancy"
)

type contextKey string

const ownerClaimsKey contextKey = "ownerClaims"

// OwnerJWT enforces a simple HMAC-signed JWT for owner endpoints. Requests
// that pass carry the owner actor role in their context.
func OwnerJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ParseOwnerToken(r, secret)
			if !ok {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ownerClaimsKey, claims)
			ctx = tenancy.WithActorRole(ctx, tenancy.ActorOwner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseOwnerToken validates the request's Bearer token against the owner
// HMAC secret. An empty secret rejects every token.
func ParseOwnerToken(r *http.Request, secret string) (jwt.RegisteredClaims, bool) {
	claims := jwt.RegisteredClaims{}
	if secret == "" {
		return claims, false
	}
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return claims, false
	}
	tokenString := strings.TrimPrefix(auth, "Bearer ")
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return claims, false
	}
	return claims, true
}

// OwnerClaimsFromContext returns owner JWT claims if present.
func OwnerClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(ownerClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}
