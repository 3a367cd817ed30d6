package payments

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/danigamesx/barber-ai-sub000/internal/observability/metrics"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

// SquareWebhookHandler processes Square payment webhook events. Like the
// Stripe handler it acknowledges every delivery once the signature checks
// out.
type SquareWebhookHandler struct {
	signatureKey string
	gateway      *SquareGateway
	reconciler   *Reconciler
	processed    *ProcessedTracker
	maxBody      int64
	metrics      *metrics.PaymentMetrics
	logger       *logging.Logger
}

func NewSquareWebhookHandler(signatureKey string, gateway *SquareGateway, reconciler *Reconciler, processed *ProcessedTracker, maxBody int64, logger *logging.Logger) *SquareWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if maxBody <= 0 {
		maxBody = 65536
	}
	return &SquareWebhookHandler{
		signatureKey: signatureKey,
		gateway:      gateway,
		reconciler:   reconciler,
		processed:    processed,
		maxBody:      maxBody,
		logger:       logger,
	}
}

// WithMetrics attaches payment metrics. Nil is fine.
func (h *SquareWebhookHandler) WithMetrics(m *metrics.PaymentMetrics) *SquareWebhookHandler {
	h.metrics = m
	return h
}

// Handle processes one webhook delivery.
func (h *SquareWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency(ProviderSquare, time.Since(started).Seconds())
	}()

	payload, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !verifySquareSignature(h.signatureKey, buildAbsoluteURL(r), payload, r.Header.Get("X-Square-Signature")) {
		h.metrics.ObserveWebhook(ProviderSquare, "rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var evt squareWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode square event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	eventID := evt.EventID
	if eventID == "" {
		eventID = evt.ID
	}
	if eventID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	if evt.Type != "payment.updated" && evt.Type != "payment.created" {
		h.metrics.ObserveWebhook(ProviderSquare, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	processed, err := h.processed.AlreadyProcessed(r.Context(), ProviderSquare, eventID)
	if err != nil {
		h.logger.Error("processed lookup failed", "error", err, "event_id", eventID)
		w.WriteHeader(http.StatusOK)
		return
	}
	if processed {
		h.metrics.ObserveWebhook(ProviderSquare, "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	paymentID := evt.Data.Object.Payment.ID
	if paymentID == "" {
		h.logger.Warn("square event missing payment id", "event_id", eventID)
		w.WriteHeader(http.StatusOK)
		return
	}

	payment, err := h.gateway.FetchPayment(r.Context(), paymentID)
	if err != nil {
		h.logger.Error("square payment re-fetch failed", "error", err, "event_id", eventID, "payment_id", paymentID)
		w.WriteHeader(http.StatusOK)
		return
	}
	if payment.State == PaymentPending {
		// Not settled yet, a later event will carry the final state.
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.reconciler.ApplyPayment(r.Context(), ProviderSquare, payment); err != nil {
		h.logger.Error("square reconcile failed", "error", err, "event_id", eventID, "payment_id", paymentID)
		h.metrics.ObserveWebhook(ProviderSquare, "error")
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := h.processed.MarkProcessed(r.Context(), ProviderSquare, eventID); err != nil {
		h.logger.Error("failed to record processed event", "error", err, "event_id", eventID)
	}
	h.metrics.ObserveWebhook(ProviderSquare, "accepted")
	w.WriteHeader(http.StatusOK)
}

// verifySquareSignature checks the X-Square-Signature header, a base64
// HMAC-SHA1 over the notification URL concatenated with the body.
func verifySquareSignature(key, url string, body []byte, header string) bool {
	if key == "" || header == "" {
		return false
	}
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(url + string(body)))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header), []byte(expected))
}

type squareWebhookEvent struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
