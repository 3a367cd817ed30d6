// Package tenants provides tenant-specific configuration and business rules.
package tenants

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CancellationPolicy configures fees for client-initiated cancellations.
type CancellationPolicy struct {
	Enabled        bool    `json:"enabled"`
	FeePercentage  float64 `json:"fee_percentage"`   // 0..100
	TimeLimitHours float64 `json:"time_limit_hours"` // >= 0
}

// Valid reports whether the policy values are inside their documented ranges.
func (p CancellationPolicy) Valid() bool {
	return p.FeePercentage >= 0 && p.FeePercentage <= 100 && p.TimeLimitHours >= 0
}

// Settings holds tenant-level configuration.
type Settings struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"` // e.g., "America/Sao_Paulo"
	Currency string `json:"currency"` // lowercase ISO code, e.g., "usd"

	// AutoConfirmAppointments controls the initial status of new bookings:
	// confirmed when true, pending owner approval when false.
	AutoConfirmAppointments bool `json:"auto_confirm_appointments"`

	CancellationPolicy CancellationPolicy `json:"cancellation_policy"`

	// PaymentProvider selects the hosted-checkout processor: "stripe" or
	// "square" (default).
	PaymentProvider string `json:"payment_provider,omitempty"`
	// PrepayRequired forces hosted checkout for bookings with a non-zero price.
	PrepayRequired bool `json:"prepay_required"`
}

// Location resolves the tenant timezone, falling back to UTC.
func (s *Settings) Location() *time.Location {
	if s == nil || s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UsesStripe reports whether the tenant routes payments through Stripe.
func (s *Settings) UsesStripe() bool {
	return strings.EqualFold(s.PaymentProvider, "stripe")
}

// DefaultSettings returns a sensible default configuration.
func DefaultSettings(tenantID string) *Settings {
	return &Settings{
		TenantID:                tenantID,
		Name:                    "Barbershop",
		Timezone:                "UTC",
		Currency:                "usd",
		AutoConfirmAppointments: false,
		CancellationPolicy: CancellationPolicy{
			Enabled:        false,
			FeePercentage:  0,
			TimeLimitHours: 0,
		},
		PaymentProvider: "square",
	}
}

// Store provides persistence for tenant settings.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new tenant settings store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(tenantID string) string {
	return fmt.Sprintf("tenant:settings:%s", tenantID)
}

// Get retrieves tenant settings, returning defaults if not found.
func (s *Store) Get(ctx context.Context, tenantID string) (*Settings, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID)).Bytes()
	if err == redis.Nil {
		return DefaultSettings(tenantID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenants: get settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("tenants: unmarshal settings: %w", err)
	}
	return &settings, nil
}

// Set saves tenant settings.
func (s *Store) Set(ctx context.Context, settings *Settings) error {
	if !settings.CancellationPolicy.Valid() {
		return fmt.Errorf("tenants: cancellation policy out of range")
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("tenants: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(settings.TenantID), data, 0).Err(); err != nil {
		return fmt.Errorf("tenants: set settings: %w", err)
	}
	return nil
}
