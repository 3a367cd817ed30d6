package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/danigamesx/barber-ai-sub000/internal/schedule"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

// ScheduleHandler manages opening hours and calendar blocks.
type ScheduleHandler struct {
	repo   *schedule.Repository
	logger *logging.Logger
}

func NewScheduleHandler(repo *schedule.Repository, logger *logging.Logger) *ScheduleHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ScheduleHandler{repo: repo, logger: logger}
}

type dayWindowsPayload struct {
	MorningOpen    string `json:"morning_open" validate:"omitempty,len=5"`
	MorningClose   string `json:"morning_close" validate:"omitempty,len=5"`
	AfternoonOpen  string `json:"afternoon_open" validate:"omitempty,len=5"`
	AfternoonClose string `json:"afternoon_close" validate:"omitempty,len=5"`
}

// GetWeekHours returns the tenant's weekly opening hours keyed by weekday.
func (h *ScheduleHandler) GetWeekHours(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	week, err := h.repo.WeekHoursFor(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("week hours lookup failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := map[string]*dayWindowsPayload{}
	for day, windows := range week {
		if windows == nil {
			continue
		}
		out[day.String()] = &dayWindowsPayload{
			MorningOpen:    windows.MorningOpen,
			MorningClose:   windows.MorningClose,
			AfternoonOpen:  windows.AfternoonOpen,
			AfternoonClose: windows.AfternoonClose,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hours": out})
}

// SetDayHours replaces the opening windows for one weekday. An empty body
// with all windows blank marks the day closed.
func (h *ScheduleHandler) SetDayHours(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	day, ok := parseWeekday(r.URL.Query().Get("weekday"))
	if !ok {
		http.Error(w, "invalid weekday", http.StatusBadRequest)
		return
	}

	var req dayWindowsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	windows := &schedule.DayWindows{
		MorningOpen:    req.MorningOpen,
		MorningClose:   req.MorningClose,
		AfternoonOpen:  req.AfternoonOpen,
		AfternoonClose: req.AfternoonClose,
	}
	// Reject malformed windows before persisting them.
	if _, err := windows.Ranges(time.Now(), time.UTC); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.repo.SetDayWindows(r.Context(), tenantID, day, windows); err != nil {
		h.logger.Error("set day hours failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"weekday": day.String()})
}

type blockDateRequest struct {
	Date string `json:"date" validate:"required,len=10"`
}

// BlockDate closes the whole business for one calendar day.
func (h *ScheduleHandler) BlockDate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	var req blockDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if err := h.repo.AddBlockedDate(r.Context(), tenantID, date); err != nil {
		h.logger.Error("block date failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"date": req.Date})
}

type blockSlotRequest struct {
	BarberID string    `json:"barber_id" validate:"required,uuid"`
	StartAt  time.Time `json:"start_at" validate:"required"`
	EndAt    time.Time `json:"end_at" validate:"required"`
	Reason   string    `json:"reason" validate:"max=500"`
}

// BlockSlot reserves a time range on one barber's calendar.
func (h *ScheduleHandler) BlockSlot(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantUUID(r)
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	var req blockSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.EndAt.After(req.StartAt) {
		http.Error(w, "end_at must be after start_at", http.StatusBadRequest)
		return
	}
	id, err := h.repo.AddBlockedSlot(r.Context(), tenantID, uuid.MustParse(req.BarberID), req.StartAt, req.EndAt, req.Reason)
	if err != nil {
		h.logger.Error("block slot failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func parseWeekday(raw string) (time.Weekday, bool) {
	for day := time.Sunday; day <= time.Saturday; day++ {
		if raw == day.String() {
			return day, true
		}
	}
	return 0, false
}
