package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danigamesx/barber-ai-sub000/internal/observability/metrics"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

// StripeWebhookHandler processes Stripe checkout webhook events. Once the
// signature checks out the delivery is always acknowledged with 200; business
// failures are logged and left for the next delivery or poll verification.
type StripeWebhookHandler struct {
	webhookSecret string
	gateway       *StripeGateway
	reconciler    *Reconciler
	processed     *ProcessedTracker
	maxBody       int64
	metrics       *metrics.PaymentMetrics
	logger        *logging.Logger
}

func NewStripeWebhookHandler(webhookSecret string, gateway *StripeGateway, reconciler *Reconciler, processed *ProcessedTracker, maxBody int64, logger *logging.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if maxBody <= 0 {
		maxBody = 65536
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		gateway:       gateway,
		reconciler:    reconciler,
		processed:     processed,
		maxBody:       maxBody,
		logger:        logger,
	}
}

// WithMetrics attaches payment metrics. Nil is fine.
func (h *StripeWebhookHandler) WithMetrics(m *metrics.PaymentMetrics) *StripeWebhookHandler {
	h.metrics = m
	return h
}

// Handle processes one webhook delivery.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency(ProviderStripe, time.Since(started).Seconds())
	}()

	payload, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !verifyStripeSignature(h.webhookSecret, payload, r.Header.Get("Stripe-Signature")) {
		h.metrics.ObserveWebhook(ProviderStripe, "rejected")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	switch evt.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "checkout.session.expired":
	default:
		h.metrics.ObserveWebhook(ProviderStripe, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	processed, err := h.processed.AlreadyProcessed(r.Context(), ProviderStripe, evt.ID)
	if err != nil {
		h.logger.Error("processed lookup failed", "error", err, "event_id", evt.ID)
		w.WriteHeader(http.StatusOK)
		return
	}
	if processed {
		h.metrics.ObserveWebhook(ProviderStripe, "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	sessionID := evt.Data.Object.ID
	if sessionID == "" {
		h.logger.Warn("stripe event missing session id", "event_id", evt.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	// The event payload is only a hint: the session is re-read from the
	// Stripe API before anything changes on our side.
	payment, err := h.gateway.FetchPayment(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("stripe payment re-fetch failed", "error", err, "event_id", evt.ID, "session", sessionID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.reconciler.ApplyPayment(r.Context(), ProviderStripe, payment); err != nil {
		h.logger.Error("stripe reconcile failed", "error", err, "event_id", evt.ID, "session", sessionID)
		h.metrics.ObserveWebhook(ProviderStripe, "error")
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := h.processed.MarkProcessed(r.Context(), ProviderStripe, evt.ID); err != nil {
		h.logger.Error("failed to record processed event", "error", err, "event_id", evt.ID)
	}
	h.metrics.ObserveWebhook(ProviderStripe, "accepted")
	w.WriteHeader(http.StatusOK)
}

// stripeWebhookEvent is the Stripe event envelope.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// verifyStripeSignature checks the Stripe-Signature header:
// t=<timestamp>,v1=<hex hmac-sha256 of "timestamp.payload">.
// A missing secret rejects every delivery.
func verifyStripeSignature(secret string, payload []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	// 5 minute replay tolerance.
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if abs64(time.Now().Unix()-ts) > 300 {
		return false
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
