package services

import "splitledger/internal/models"

// BillCapabilities is what one user may do with one bill. Centralizing the
// "creator or participant" checks here keeps the per-route authorization
// logic out of the handlers and unit-testable without transport.
type BillCapabilities struct {
	Read    bool
	Pay     bool
	Confirm bool
	Delete  bool
}

// CanAccessBill derives capabilities from the bill's loaded participants.
// Confirm is deliberately as broad as Read: any party to the bill may vouch
// for a payment, not only the creditor.
func CanAccessBill(bill models.SplitBill, userID string) BillCapabilities {
	isCreator := bill.CreatedBy == userID
	isParticipant := false
	for _, p := range bill.Participants {
		if p.UserID == userID {
			isParticipant = true
			break
		}
	}
	party := isCreator || isParticipant
	return BillCapabilities{
		Read:    party,
		Pay:     party,
		Confirm: party,
		Delete:  isCreator,
	}
}
