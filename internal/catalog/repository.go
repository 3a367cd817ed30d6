// Package catalog provides lookup of the tenant's bookable services and barbers.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/danigamesx/barber-ai-sub000/internal/apperr"
)

// Service is a bookable timed offering.
type Service struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Name            string
	DurationMinutes int
	PriceCents      int64
}

// Duration returns the service length as a time.Duration.
func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Barber is a staff member appointments are booked against.
type Barber struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository reads the service/barber catalog.
type Repository struct {
	pool DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool DB) *Repository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &Repository{pool: pool}
}

// GetService loads a service scoped to the tenant.
func (r *Repository) GetService(ctx context.Context, tenantID, serviceID uuid.UUID) (*Service, error) {
	var s Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, duration_minutes, price_cents
		FROM services
		WHERE id = $1 AND tenant_id = $2
	`, serviceID, tenantID).Scan(&s.ID, &s.TenantID, &s.Name, &s.DurationMinutes, &s.PriceCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("service %s not found", serviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: load service: %w", err)
	}
	return &s, nil
}

// GetBarber loads a barber scoped to the tenant.
func (r *Repository) GetBarber(ctx context.Context, tenantID, barberID uuid.UUID) (*Barber, error) {
	var b Barber
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name
		FROM barbers
		WHERE id = $1 AND tenant_id = $2
	`, barberID, tenantID).Scan(&b.ID, &b.TenantID, &b.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("barber %s not found", barberID)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: load barber: %w", err)
	}
	return &b, nil
}

// ListServices returns the tenant's services ordered by name.
func (r *Repository) ListServices(ctx context.Context, tenantID uuid.UUID) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, name, duration_minutes, price_cents
		FROM services
		WHERE tenant_id = $1
		ORDER BY name ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.DurationMinutes, &s.PriceCents); err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		services = append(services, s)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("catalog: iterate services: %w", rows.Err())
	}
	return services, nil
}
