package payments

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

// RedirectHandler serves short /pay/{sessionID} URLs that redirect to the
// provider's hosted checkout page.
type RedirectHandler struct {
	sessions *SessionRepository
	logger   *logging.Logger
}

func NewRedirectHandler(sessions *SessionRepository, logger *logging.Logger) *RedirectHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedirectHandler{sessions: sessions, logger: logger}
}

// Handle looks up a pending session and redirects to its checkout URL.
func (h *RedirectHandler) Handle(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	session, err := h.sessions.GetByID(r.Context(), id)
	if err != nil || session.CheckoutURL == "" {
		h.logger.Warn("payment redirect: not found", "session_id", raw, "error", err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if session.Status != SessionPending {
		http.Error(w, "payment already settled", http.StatusGone)
		return
	}

	http.Redirect(w, r, session.CheckoutURL, http.StatusFound)
}
