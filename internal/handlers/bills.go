package handlers

import (
	"encoding/json"
	"net/http"

	"splitledger/internal/middleware"
	"splitledger/internal/services"
	"splitledger/internal/settlement"

	"github.com/go-chi/chi/v5"
)

type createBillRequest struct {
	Description  string                  `json:"description"`
	TotalAmount  string                  `json:"total_amount"`
	Currency     string                  `json:"currency"`
	Category     string                  `json:"category"`
	SplitType    string                  `json:"split_type"`
	GroupID      *string                 `json:"group_id,omitempty"`
	Participants []settlement.ShareInput `json:"participants"`
}

func (h *Handler) CreateSplitBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	total, err := parseAmount(req.TotalAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	bill, err := h.ledger.CreateSplitBill(r.Context(), services.CreateBillRequest{
		CreatorID:    userID,
		Description:  req.Description,
		TotalAmount:  total,
		Currency:     req.Currency,
		Category:     req.Category,
		SplitType:    req.SplitType,
		GroupID:      req.GroupID,
		Participants: req.Participants,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, bill)
}

func (h *Handler) GetSplitBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	bill, err := h.ledger.GetSplitBill(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bill)
}

func (h *Handler) DeleteSplitBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.ledger.DeleteSplitBill(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) ListGroupBills(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	bills, err := h.ledger.ListGroupBills(r.Context(), chi.URLParam(r, "groupID"), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"split_bills": bills,
		"count":       len(bills),
	})
}

func (h *Handler) GroupSettlement(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	plan, group, err := h.ledger.GroupSettlement(r.Context(), chi.URLParam(r, "groupID"), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"group":        group,
		"transactions": plan.Transactions,
		"net_balances": plan.NetBalances,
	})
}
