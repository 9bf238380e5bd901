package handlers

import (
	"fmt"
	"net/http"

	"splitledger/internal/export"
	"splitledger/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ExportGroupSettlement(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	groupID := chi.URLParam(r, "groupID")
	plan, group, err := h.ledger.GroupSettlement(r.Context(), groupID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	bills, err := h.ledger.ListGroupBills(r.Context(), groupID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	file, filename, err := export.SettlementWorkbook(group, bills, plan)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build export")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := file.Write(w); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to write export")
	}
}
