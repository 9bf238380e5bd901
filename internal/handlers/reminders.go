package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"splitledger/internal/middleware"
	"splitledger/internal/services"

	"github.com/go-chi/chi/v5"
)

type scheduleRequest struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	OffsetMinutes []int  `json:"offset_minutes"`
}

func (h *Handler) ScheduleReminders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	offsets := make([]time.Duration, 0, len(req.OffsetMinutes))
	for _, minutes := range req.OffsetMinutes {
		if minutes < 0 {
			respondError(w, http.StatusBadRequest, "offsets must not be negative")
			return
		}
		offsets = append(offsets, time.Duration(minutes)*time.Minute)
	}
	reminders, err := h.reminders.Schedule(r.Context(), chi.URLParam(r, "splitBillID"), userID, services.ScheduleRequest{
		Type:    req.Type,
		Message: req.Message,
		Offsets: offsets,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"reminders": reminders,
		"count":     len(reminders),
	})
}

func (h *Handler) MyReminders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	reminders, err := h.reminders.ListMine(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"reminders": reminders,
		"count":     len(reminders),
	})
}

func (h *Handler) MarkReminderRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	err := h.reminders.MarkRead(r.Context(),
		chi.URLParam(r, "splitBillID"), chi.URLParam(r, "reminderID"), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// ProcessDueReminders delivers every due, unsent reminder exactly once.
// It sits behind the operator token so an external scheduler can drive it.
func (h *Handler) ProcessDueReminders(w http.ResponseWriter, r *http.Request) {
	sent, err := h.reminders.ProcessDue(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sent": sent})
}
