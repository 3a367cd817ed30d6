package payments

import (
	"bytes"
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

var squareTracer = otel.Tracer("barber.internal.payments.square")

// SquareGateway creates hosted payment links and re-reads payments.
type SquareGateway struct {
	accessToken string
	locationID  string
	successURL  string
	baseURL     string
	httpClient  *http.Client
	logger      *logging.Logger
}

func NewSquareGateway(accessToken, locationID, successURL string, logger *logging.Logger) *SquareGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &SquareGateway{
		accessToken: accessToken,
		locationID:  locationID,
		successURL:  successURL,
		baseURL:     "https://connect.squareup.com",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

// WithBaseURL overrides the Square API host (e.g. sandbox or a test server).
func (s *SquareGateway) WithBaseURL(baseURL string) *SquareGateway {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

func (s *SquareGateway) Name() string { return ProviderSquare }

// Configured reports whether credentials are present.
func (s *SquareGateway) Configured() bool {
	return s.accessToken != "" && s.locationID != ""
}

// CreateSession creates a Square payment link. Our session id rides on the
// order metadata so the payment can be correlated later.
func (s *SquareGateway) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	ctx, span := squareTracer.Start(ctx, "square.create_link")
	defer span.End()
	span.SetAttributes(
		attribute.String("barber.tenant_id", params.TenantID.String()),
		attribute.Int64("barber.amount_cents", params.AmountCents),
	)

	if !s.Configured() {
		return nil, apperr.NotConfigured("square credentials are not configured")
	}

	currency := strings.ToUpper(params.Currency)
	if currency == "" {
		currency = "USD"
	}
	name := params.Description
	if strings.TrimSpace(name) == "" {
		name = "Booking"
	}
	successURL := params.SuccessURL
	if successURL == "" {
		successURL = s.successURL
	}

	meta := map[string]string{
		metaSessionID: params.SessionID.String(),
		metaTenantID:  params.TenantID.String(),
	}
	body := map[string]any{
		"idempotency_key": params.SessionID.String(),
		"order": map[string]any{
			"location_id": s.locationID,
			"metadata":    meta,
			"line_items": []map[string]any{
				{
					"name":     name,
					"quantity": "1",
					"base_price_money": map[string]any{
						"amount":   params.AmountCents,
						"currency": currency,
					},
				},
			},
		},
		"checkout_options": map[string]any{
			"redirect_url":             successURL,
			"ask_for_shipping_address": false,
		},
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("payments: square payload: %w", err)
	}

	apiURL := s.baseURL + "/v2/online-checkout/payment-links"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("payments: square request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperr.ExternalProvider("square http call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return nil, apperr.ExternalProvider(
			fmt.Sprintf("square api status %d", resp.StatusCode),
			fmt.Errorf("%s", string(raw)))
	}

	var parsed struct {
		PaymentLink struct {
			ID      string `json:"id"`
			URL     string `json:"url"`
			OrderID string `json:"order_id"`
		} `json:"payment_link"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.ExternalProvider("square response decode failed", err)
	}
	if parsed.PaymentLink.URL == "" {
		return nil, apperr.ExternalProvider("square response missing url", nil)
	}

	return &Session{
		ProviderSessionID: parsed.PaymentLink.ID,
		URL:               parsed.PaymentLink.URL,
		Provider:          ProviderSquare,
	}, nil
}

// FetchPayment re-reads a payment by id and hydrates our session id from the
// order metadata, which is where the payment link stores it.
func (s *SquareGateway) FetchPayment(ctx context.Context, paymentID string) (*ProviderPayment, error) {
	ctx, span := squareTracer.Start(ctx, "square.fetch_payment")
	defer span.End()

	if s.accessToken == "" {
		return nil, apperr.NotConfigured("square credentials are not configured")
	}

	var parsed struct {
		Payment struct {
			ID          string `json:"id"`
			Status      string `json:"status"`
			OrderID     string `json:"order_id"`
			AmountMoney struct {
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
			} `json:"amount_money"`
		} `json:"payment"`
	}
	if err := s.getJSON(ctx, "/v2/payments/"+url.PathEscape(paymentID), &parsed); err != nil {
		return nil, err
	}

	state := PaymentPending
	switch parsed.Payment.Status {
	case "COMPLETED":
		state = PaymentCompleted
	case "FAILED", "CANCELED":
		state = PaymentFailed
	}

	out := &ProviderPayment{
		ID:          parsed.Payment.ID,
		State:       state,
		AmountCents: parsed.Payment.AmountMoney.Amount,
		Currency:    strings.ToLower(parsed.Payment.AmountMoney.Currency),
	}

	if parsed.Payment.OrderID != "" {
		meta, err := s.fetchOrderMetadata(ctx, parsed.Payment.OrderID)
		if err != nil {
			s.logger.Warn("square order metadata fetch failed", "error", err, "order_id", parsed.Payment.OrderID)
		} else {
			out.SessionID = meta[metaSessionID]
		}
	}
	return out, nil
}

// FetchSessionPayment resolves a payment link to its order and then to the
// payment that settled it. Used by poll verification, where only our link id
// is known.
func (s *SquareGateway) FetchSessionPayment(ctx context.Context, providerSessionID string) (*ProviderPayment, error) {
	if s.accessToken == "" {
		return nil, apperr.NotConfigured("square credentials are not configured")
	}

	var link struct {
		PaymentLink struct {
			OrderID string `json:"order_id"`
		} `json:"payment_link"`
	}
	if err := s.getJSON(ctx, "/v2/online-checkout/payment-links/"+url.PathEscape(providerSessionID), &link); err != nil {
		return nil, err
	}
	if link.PaymentLink.OrderID == "" {
		return nil, apperr.ExternalProvider("square payment link has no order", nil)
	}

	var order struct {
		Order struct {
			State    string            `json:"state"`
			Metadata map[string]string `json:"metadata"`
			Tenders  []struct {
				PaymentID string `json:"payment_id"`
			} `json:"tenders"`
		} `json:"order"`
	}
	if err := s.getJSON(ctx, "/v2/orders/"+url.PathEscape(link.PaymentLink.OrderID), &order); err != nil {
		return nil, err
	}

	if len(order.Order.Tenders) > 0 && order.Order.Tenders[0].PaymentID != "" {
		return s.FetchPayment(ctx, order.Order.Tenders[0].PaymentID)
	}

	state := PaymentPending
	if order.Order.State == "CANCELED" {
		state = PaymentFailed
	}
	return &ProviderPayment{
		ID:        providerSessionID,
		State:     state,
		SessionID: order.Order.Metadata[metaSessionID],
	}, nil
}

func (s *SquareGateway) fetchOrderMetadata(ctx context.Context, orderID string) (map[string]string, error) {
	var parsed struct {
		Order struct {
			Metadata map[string]string `json:"metadata"`
		} `json:"order"`
	}
	if err := s.getJSON(ctx, "/v2/orders/"+url.PathEscape(orderID), &parsed); err != nil {
		return nil, err
	}
	return parsed.Order.Metadata, nil
}

func (s *SquareGateway) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("payments: square request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperr.ExternalProvider("square http call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return apperr.ExternalProvider(
			fmt.Sprintf("square api status %d", resp.StatusCode),
			fmt.Errorf("%s", string(raw)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.ExternalProvider("square response decode failed", err)
	}
	return nil
}
