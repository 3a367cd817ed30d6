package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/danigamesx/barber-ai-sub000/internal/http/handlers"
	httpmiddleware "github.com/danigamesx/barber-ai-sub000/internal/http/middleware"
	"github.com/danigamesx/barber-ai-sub000/internal/payments"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	Appointments   *handlers.AppointmentsHandler
	Availability   *handlers.AvailabilityHandler
	Schedule       *handlers.ScheduleHandler
	TenantSettings *handlers.TenantSettingsHandler
	Plan           *handlers.PlanHandler

	Checkout        *payments.CheckoutHandler
	PaymentRedirect *payments.RedirectHandler
	StripeWebhook   *payments.StripeWebhookHandler
	SquareWebhook   *payments.SquareWebhookHandler

	// PlanStates enables the plan gate on online payment routes. Nil
	// disables gating.
	PlanStates PlanStateSource

	// OwnerAuthSecret protects owner routes with an HMAC JWT. Empty rejects
	// all owner requests.
	OwnerAuthSecret string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// WebhookRatePerSec throttles the public webhook endpoints per IP.
	// Zero disables the limiter.
	WebhookRatePerSec float64
	WebhookBurst      int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: health, metrics, provider webhooks, pay links.
	r.Group(func(public chi.Router) {
		public.Get("/health", handleHealth)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		public.Group(func(webhooks chi.Router) {
			if cfg.WebhookRatePerSec > 0 {
				webhooks.Use(httpmiddleware.RateLimit(cfg.WebhookRatePerSec, cfg.WebhookBurst))
			}
			if cfg.StripeWebhook != nil {
				webhooks.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
			}
			if cfg.SquareWebhook != nil {
				webhooks.Post("/webhooks/square", cfg.SquareWebhook.Handle)
			}
		})

		if cfg.PaymentRedirect != nil {
			public.Get("/pay/{sessionID}", cfg.PaymentRedirect.Handle)
		}
	})

	// Tenant-scoped API routes. A lapsed plan keeps booking and schedule
	// management working; only online payment collection is gated.
	r.Group(func(tenant chi.Router) {
		tenant.Use(requireTenantID(cfg.OwnerAuthSecret))

		// Plan management stays reachable for lapsed tenants.
		if cfg.Plan != nil {
			tenant.Route("/billing", func(r chi.Router) {
				r.Get("/plan", cfg.Plan.Status)
				r.With(httpmiddleware.OwnerJWT(cfg.OwnerAuthSecret)).Post("/trial", cfg.Plan.StartTrial)
			})
		}
		if cfg.Checkout != nil {
			tenant.With(httpmiddleware.OwnerJWT(cfg.OwnerAuthSecret)).
				Post("/billing/subscribe", cfg.Checkout.SubscribePlan)
		}

		if cfg.Availability != nil {
			tenant.Get("/availability/slots", cfg.Availability.Slots)
			tenant.Get("/services", cfg.Availability.Services)
		}

		if cfg.Appointments != nil {
			tenant.Route("/appointments", func(r chi.Router) {
				r.Post("/", cfg.Appointments.Create)
				r.Get("/{appointmentID}", cfg.Appointments.Get)
				r.Post("/{appointmentID}/cancel", cfg.Appointments.Cancel)
				r.Post("/{appointmentID}/reschedule", cfg.Appointments.Reschedule)

				r.Group(func(owner chi.Router) {
					owner.Use(httpmiddleware.OwnerJWT(cfg.OwnerAuthSecret))
					owner.Post("/{appointmentID}/accept", cfg.Appointments.Accept)
					owner.Post("/{appointmentID}/decline", cfg.Appointments.Decline)
					owner.Post("/{appointmentID}/complete", cfg.Appointments.Complete)
				})
			})
		}

		if cfg.Checkout != nil {
			tenant.Route("/payments", func(r chi.Router) {
				r.Use(requireActivePlan(cfg.PlanStates, cfg.Logger))
				r.Post("/checkout/appointment", cfg.Checkout.CheckoutAppointment)
				r.Post("/checkout/package", cfg.Checkout.CheckoutPackage)
				r.Post("/checkout/subscription", cfg.Checkout.CheckoutSubscription)
				r.Post("/sessions/{sessionID}/verify", cfg.Checkout.Verify)
			})
		}

		if cfg.Schedule != nil {
			tenant.Route("/schedule", func(r chi.Router) {
				r.Get("/hours", cfg.Schedule.GetWeekHours)
				r.Group(func(owner chi.Router) {
					owner.Use(httpmiddleware.OwnerJWT(cfg.OwnerAuthSecret))
					owner.Put("/hours", cfg.Schedule.SetDayHours)
					owner.Post("/blocked-dates", cfg.Schedule.BlockDate)
					owner.Post("/blocked-slots", cfg.Schedule.BlockSlot)
				})
			})
		}

		if cfg.TenantSettings != nil {
			tenant.Get("/settings", cfg.TenantSettings.Get)
			tenant.With(httpmiddleware.OwnerJWT(cfg.OwnerAuthSecret)).
				Put("/settings", cfg.TenantSettings.Update)
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
