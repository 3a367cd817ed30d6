package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/danigamesx/barber-ai-sub000/internal/apperr"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

var stripeTracer = otel.Tracer("barber.internal.payments.stripe")

// StripeGateway creates Stripe Checkout Sessions and re-reads their
// settlement state.
type StripeGateway struct {
	secretKey  string
	successURL string
	cancelURL  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewStripeGateway(secretKey, successURL, cancelURL string, logger *logging.Logger) *StripeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeGateway{
		secretKey:  secretKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *StripeGateway) WithBaseURL(baseURL string) *StripeGateway {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

func (s *StripeGateway) Name() string { return ProviderStripe }

// Configured reports whether credentials are present.
func (s *StripeGateway) Configured() bool { return s.secretKey != "" }

// CreateSession creates a hosted Checkout Session.
func (s *StripeGateway) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("barber.tenant_id", params.TenantID.String()),
		attribute.Int64("barber.amount_cents", params.AmountCents),
	)

	if !s.Configured() {
		return nil, apperr.NotConfigured("stripe credentials are not configured")
	}

	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	description := params.Description
	if strings.TrimSpace(description) == "" {
		description = "Booking"
	}
	successURL := params.SuccessURL
	if successURL == "" {
		successURL = s.successURL
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", params.AmountCents))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("line_items[0][quantity]", "1")
	if successURL != "" {
		form.Set("success_url", successURL)
	}
	if cancelURL != "" {
		form.Set("cancel_url", cancelURL)
	}
	form.Set("metadata["+metaSessionID+"]", params.SessionID.String())
	form.Set("metadata["+metaTenantID+"]", params.TenantID.String())
	form.Set("payment_intent_data[metadata]["+metaSessionID+"]", params.SessionID.String())
	form.Set("payment_intent_data[metadata]["+metaTenantID+"]", params.TenantID.String())

	apiURL := s.baseURL + "/v1/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Version", s.apiVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperr.ExternalProvider("stripe http call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperr.ExternalProvider(
			fmt.Sprintf("stripe api status %d", resp.StatusCode),
			fmt.Errorf("%s", string(body)))
	}

	var parsed stripeSession
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.ExternalProvider("stripe response decode failed", err)
	}
	if parsed.URL == "" {
		return nil, apperr.ExternalProvider("stripe response missing checkout url", nil)
	}

	return &Session{ProviderSessionID: parsed.ID, URL: parsed.URL, Provider: ProviderStripe}, nil
}

// FetchPayment re-reads a Checkout Session by id. For Stripe the checkout
// session doubles as the payment record the webhook references.
func (s *StripeGateway) FetchPayment(ctx context.Context, paymentID string) (*ProviderPayment, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.fetch_checkout_session")
	defer span.End()

	if !s.Configured() {
		return nil, apperr.NotConfigured("stripe credentials are not configured")
	}

	apiURL := s.baseURL + "/v1/checkout/sessions/" + url.PathEscape(paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", s.apiVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperr.ExternalProvider("stripe http call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperr.ExternalProvider(
			fmt.Sprintf("stripe api status %d", resp.StatusCode),
			fmt.Errorf("%s", string(body)))
	}

	var parsed stripeSession
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.ExternalProvider("stripe response decode failed", err)
	}

	state := PaymentPending
	switch parsed.PaymentStatus {
	case "paid", "no_payment_required":
		state = PaymentCompleted
	}
	if parsed.Status == "expired" {
		state = PaymentFailed
	}

	return &ProviderPayment{
		ID:          parsed.ID,
		State:       state,
		AmountCents: parsed.AmountTotal,
		Currency:    parsed.Currency,
		SessionID:   parsed.Metadata[metaSessionID],
	}, nil
}

// FetchSessionPayment re-reads settlement state by provider session id. For
// Stripe that is the same lookup as FetchPayment.
func (s *StripeGateway) FetchSessionPayment(ctx context.Context, providerSessionID string) (*ProviderPayment, error) {
	return s.FetchPayment(ctx, providerSessionID)
}

// stripeSession is the subset of Stripe's Checkout Session object we need.
type stripeSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}
