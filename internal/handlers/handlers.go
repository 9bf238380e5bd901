package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"splitledger/internal/services"
	"splitledger/internal/settlement"
	"splitledger/internal/validator"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the service error taxonomy onto HTTP statuses:
// validation 400, authorization 403, not-found 404, conflict 409 and store
// unavailability 503. Anything unrecognized is a 500.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case isValidationError(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotAuthorized),
		errors.Is(err, services.ErrNotGroupMember):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrBillNotFound),
		errors.Is(err, services.ErrParticipantNotFound),
		errors.Is(err, services.ErrPaymentNotFound),
		errors.Is(err, services.ErrGroupNotFound),
		errors.Is(err, services.ErrReminderNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrBillSettled),
		errors.Is(err, services.ErrAlreadyPaid),
		errors.Is(err, services.ErrParticipantRejected),
		errors.Is(err, services.ErrConfirmedByOthers),
		errors.Is(err, services.ErrConcurrentUpdate):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		respondError(w, http.StatusServiceUnavailable, "store unavailable, retry later")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, settlement.ErrInvalidTotal) ||
		errors.Is(err, settlement.ErrNoParticipants) ||
		errors.Is(err, settlement.ErrInvalidShare) ||
		errors.Is(err, settlement.ErrSharesExceedTotal) ||
		errors.Is(err, settlement.ErrSharesBelowTotal) ||
		errors.Is(err, settlement.ErrBadPercentages) ||
		errors.Is(err, settlement.ErrDuplicateUser) ||
		errors.Is(err, validator.ErrInvalidCurrency) ||
		errors.Is(err, validator.ErrInvalidSplitType) ||
		errors.Is(err, validator.ErrInvalidDescription) ||
		errors.Is(err, services.ErrUnknownParticipant) ||
		errors.Is(err, services.ErrInvalidReminder)
}
