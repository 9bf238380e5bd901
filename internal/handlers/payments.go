package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"splitledger/internal/middleware"
	"splitledger/internal/models"

	"github.com/go-chi/chi/v5"
)

type payRequest struct {
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes"`
}

func (h *Handler) PayParticipant(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	bill, err := h.ledger.MarkParticipantPaid(r.Context(),
		chi.URLParam(r, "splitBillID"), chi.URLParam(r, "participantID"),
		req.PaymentMethod, req.Notes, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bill)
}

func (h *Handler) RejectParticipant(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	bill, err := h.ledger.RejectParticipant(r.Context(),
		chi.URLParam(r, "splitBillID"), chi.URLParam(r, "participantID"), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bill)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	bill, err := h.ledger.ConfirmPayment(r.Context(),
		chi.URLParam(r, "splitBillID"), chi.URLParam(r, "paymentID"), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bill)
}

func (h *Handler) PaymentSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	bill, summary, debts, err := h.ledger.GetPaymentSummary(r.Context(), chi.URLParam(r, "splitBillID"), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if debts == nil {
		debts = []models.Debt{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"split_bill": bill,
		"summary":    summary,
		"debts":      debts,
	})
}

type manualReminderRequest struct {
	UserID  string `json:"user_id"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (h *Handler) CreateManualReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req manualReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	reminder, err := h.reminders.CreateManual(r.Context(),
		chi.URLParam(r, "splitBillID"), userID, req.UserID, req.Type, req.Message)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, reminder)
}
