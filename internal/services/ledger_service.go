package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"splitledger/internal/db"
	"splitledger/internal/models"
	"splitledger/internal/settlement"
	"splitledger/internal/store"
	"splitledger/internal/validator"
	"splitledger/internal/websocket"
)

var (
	ErrBillNotFound        = errors.New("split bill not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrUnknownParticipant  = errors.New("participant is not a known user")
	ErrNotAuthorized       = errors.New("actor lacks standing for this bill")
	ErrNotGroupMember      = errors.New("actor is not a group member")
	ErrBillSettled         = errors.New("bill is already settled")
	ErrAlreadyPaid         = errors.New("participant already reported paid")
	ErrParticipantRejected = errors.New("participant has rejected the bill")
	ErrConfirmedByOthers   = errors.New("bill has payments confirmed by other users")
	ErrConcurrentUpdate    = errors.New("bill was modified concurrently")
)

type BillStore interface {
	Create(ctx context.Context, tx store.Execer, input store.BillInput) error
	AddParticipant(ctx context.Context, tx store.Execer, input store.ParticipantInput) error
	GetByID(ctx context.Context, billID string) (models.SplitBill, error)
	GetForUpdate(ctx context.Context, tx store.Getter, billID string) (models.SplitBill, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.SplitBill, error)
	ListParticipants(ctx context.Context, tx store.Selecter, billID string) ([]models.Participant, error)
	GetParticipant(ctx context.Context, tx store.Getter, billID, participantID string) (models.Participant, error)
	MarkParticipantPaid(ctx context.Context, tx store.Execer, billID, participantID string, paidAt time.Time) (int64, error)
	RejectParticipant(ctx context.Context, tx store.Execer, billID, participantID string) (int64, error)
	InsertPayment(ctx context.Context, tx store.Execer, input store.PaymentInput) error
	GetPayment(ctx context.Context, tx store.Getter, billID, paymentID string) (models.Payment, error)
	InsertConfirmation(ctx context.Context, tx store.Execer, paymentID, userID string, confirmedAt time.Time) (int64, error)
	UpdateAggregate(ctx context.Context, tx store.Execer, billID string, isSettled bool, expectedVersion int64) (int64, error)
	SoftDelete(ctx context.Context, tx store.Execer, billID string, expectedVersion int64) (int64, error)
	CountForeignConfirmations(ctx context.Context, tx store.Getter, billID, userID string) (int64, error)
}

type UserStore interface {
	CountExisting(ctx context.Context, userIDs []string) (int64, error)
}

type GroupStore interface {
	GetByID(ctx context.Context, groupID string) (models.Group, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	ListMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

type ReminderStore interface {
	Create(ctx context.Context, tx store.Execer, input store.ReminderInput) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type EventHub interface {
	BroadcastBillEvent(userIDs []string, event websocket.BillEvent)
}

// LedgerService owns the split-bill aggregate: creation, the payment state
// machine (unpaid -> self-reported -> confirmed, with a rejected branch)
// and soft deletion. Per-bill mutations run in a serializable transaction
// holding a row lock on the bill, and claim its optimistic version.
type LedgerService struct {
	txRunner         db.TxRunner
	bills            BillStore
	users            UserStore
	groups           GroupStore
	reminders        ReminderStore
	audit            AuditStore
	hub              EventHub
	reminderLeadTime time.Duration
}

func NewLedgerService(txRunner db.TxRunner, bills BillStore, users UserStore, groups GroupStore, reminders ReminderStore, audit AuditStore, hub EventHub, reminderLeadTime time.Duration) *LedgerService {
	return &LedgerService{
		txRunner:         txRunner,
		bills:            bills,
		users:            users,
		groups:           groups,
		reminders:        reminders,
		audit:            audit,
		hub:              hub,
		reminderLeadTime: reminderLeadTime,
	}
}

type CreateBillRequest struct {
	CreatorID    string
	Description  string
	TotalAmount  int64
	Currency     string
	Category     string
	SplitType    string
	GroupID      *string
	Participants []settlement.ShareInput
}

func (s *LedgerService) CreateSplitBill(ctx context.Context, req CreateBillRequest) (models.SplitBill, error) {
	if err := validator.ValidateDescription(req.Description); err != nil {
		return models.SplitBill{}, err
	}
	if err := validator.ValidateCurrency(req.Currency); err != nil {
		return models.SplitBill{}, err
	}
	if err := validator.ValidateSplitType(req.SplitType); err != nil {
		return models.SplitBill{}, err
	}
	shares, err := settlement.ComputeShares(req.SplitType, req.TotalAmount, req.CreatorID, req.Participants)
	if err != nil {
		return models.SplitBill{}, err
	}

	participantIDs := make([]string, 0, len(req.Participants))
	for _, input := range req.Participants {
		participantIDs = append(participantIDs, input.UserID)
	}
	known, err := s.users.CountExisting(ctx, participantIDs)
	if err != nil {
		return models.SplitBill{}, err
	}
	if known != int64(len(participantIDs)) {
		return models.SplitBill{}, ErrUnknownParticipant
	}
	if req.GroupID != nil {
		member, err := s.groups.IsMember(ctx, *req.GroupID, req.CreatorID)
		if err != nil {
			return models.SplitBill{}, err
		}
		if !member {
			return models.SplitBill{}, ErrNotGroupMember
		}
	}

	billID := uuid.NewString()
	now := time.Now().UTC()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.bills.Create(ctx, tx, store.BillInput{
			ID:          billID,
			Description: req.Description,
			TotalAmount: req.TotalAmount,
			Currency:    req.Currency,
			Category:    req.Category,
			CreatedBy:   req.CreatorID,
			GroupID:     req.GroupID,
			SplitType:   req.SplitType,
		}); err != nil {
			return err
		}
		for _, share := range shares {
			input := store.ParticipantInput{
				ID:         uuid.NewString(),
				BillID:     billID,
				UserID:     share.UserID,
				Amount:     share.Amount,
				Percentage: share.Percentage,
			}
			if share.IsCreator {
				// The creator's own share is settled by definition.
				input.IsPaid = true
				input.PaidAt = &now
			}
			if err := s.bills.AddParticipant(ctx, tx, input); err != nil {
				return err
			}
			if !share.IsCreator {
				if err := s.reminders.Create(ctx, tx, store.ReminderInput{
					ID:           uuid.NewString(),
					SplitBillID:  billID,
					UserID:       share.UserID,
					Type:         models.ReminderPaymentDue,
					Message:      "Payment due for " + req.Description,
					ScheduledFor: now.Add(s.reminderLeadTime),
				}); err != nil {
					return err
				}
			}
		}
		data, _ := json.Marshal(map[string]string{"bill_id": billID})
		return s.audit.Log(ctx, tx, req.CreatorID, "bill_create", "split_bill", billID, string(data))
	})
	if err != nil {
		return models.SplitBill{}, err
	}

	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return models.SplitBill{}, mapNoRows(err)
	}
	recipients, err := s.eventRecipients(ctx, bill)
	if err == nil {
		s.hub.BroadcastBillEvent(recipients, websocket.BillEvent{
			Type:        models.EventBillCreated,
			SplitBillID: bill.ID,
			GroupID:     groupIDOrEmpty(bill.GroupID),
			SplitBill:   bill,
		})
	}
	return bill, nil
}

func (s *LedgerService) GetSplitBill(ctx context.Context, billID, requesterID string) (models.SplitBill, error) {
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return models.SplitBill{}, mapNoRows(err)
	}
	if !CanAccessBill(bill, requesterID).Read {
		return models.SplitBill{}, ErrNotAuthorized
	}
	return bill, nil
}

func (s *LedgerService) ListGroupBills(ctx context.Context, groupID, requesterID string) ([]models.SplitBill, error) {
	member, err := s.groups.IsMember(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotGroupMember
	}
	return s.bills.ListByGroup(ctx, groupID)
}

// DeleteSplitBill soft-deletes. Settlement state has no bearing, but a
// payment confirmed by anyone other than the requester blocks deletion so
// third-party confirmations are never silently lost.
func (s *LedgerService) DeleteSplitBill(ctx context.Context, billID, requesterID string) error {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		bill, err := s.bills.GetForUpdate(ctx, tx, billID)
		if err != nil {
			return mapNoRows(err)
		}
		if !CanAccessBill(bill, requesterID).Delete {
			return ErrNotAuthorized
		}
		foreign, err := s.bills.CountForeignConfirmations(ctx, tx, billID, requesterID)
		if err != nil {
			return err
		}
		if foreign > 0 {
			return ErrConfirmedByOthers
		}
		rows, err := s.bills.SoftDelete(ctx, tx, billID, bill.Version)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrentUpdate
		}
		return s.audit.Log(ctx, tx, requesterID, "bill_delete", "split_bill", billID, "{}")
	})
	return err
}

// MarkParticipantPaid records a self-report: "claimed paid", not settled.
// The second submission for the same participant fails instead of silently
// appending a duplicate payment.
func (s *LedgerService) MarkParticipantPaid(ctx context.Context, billID, participantID, method, notes, actorID string) (models.SplitBill, error) {
	var participantUserID string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		bill, err := s.bills.GetForUpdate(ctx, tx, billID)
		if err != nil {
			return mapNoRows(err)
		}
		participant, err := s.bills.GetParticipant(ctx, tx, billID, participantID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrParticipantNotFound
			}
			return err
		}
		if actorID != bill.CreatedBy && actorID != participant.UserID {
			return ErrNotAuthorized
		}
		if bill.IsSettled {
			return ErrBillSettled
		}
		if participant.IsRejected {
			return ErrParticipantRejected
		}
		if participant.IsPaid {
			return ErrAlreadyPaid
		}
		participantUserID = participant.UserID

		now := time.Now().UTC()
		rows, err := s.bills.MarkParticipantPaid(ctx, tx, billID, participantID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrAlreadyPaid
		}
		if err := s.bills.InsertPayment(ctx, tx, store.PaymentInput{
			ID:            uuid.NewString(),
			BillID:        billID,
			FromUserID:    participant.UserID,
			ToUserID:      bill.CreatedBy,
			Amount:        participant.Amount,
			PaymentMethod: method,
			Notes:         notes,
		}); err != nil {
			return err
		}

		participants, err := s.bills.ListParticipants(ctx, tx, billID)
		if err != nil {
			return err
		}
		rows, err = s.bills.UpdateAggregate(ctx, tx, billID, settlement.Settled(participants), bill.Version)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrentUpdate
		}
		data, _ := json.Marshal(map[string]string{"participant_id": participantID, "method": method})
		return s.audit.Log(ctx, tx, actorID, "payment_claim", "split_bill", billID, string(data))
	})
	if err != nil {
		return models.SplitBill{}, err
	}
	return s.reloadAndBroadcast(ctx, billID, models.UpdatePaymentMade, participantUserID)
}

// ConfirmPayment appends the confirmer to the payment's confirmation list.
// Confirmation may lag settlement, so a settled bill still accepts it, and
// repeating it is a no-op for the same confirmer.
func (s *LedgerService) ConfirmPayment(ctx context.Context, billID, paymentID, confirmerID string) (models.SplitBill, error) {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		bill, err := s.bills.GetForUpdate(ctx, tx, billID)
		if err != nil {
			return mapNoRows(err)
		}
		participants, err := s.bills.ListParticipants(ctx, tx, billID)
		if err != nil {
			return err
		}
		if !isParty(bill, participants, confirmerID) {
			return ErrNotAuthorized
		}
		payment, err := s.bills.GetPayment(ctx, tx, billID, paymentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return err
		}
		rows, err := s.bills.InsertConfirmation(ctx, tx, payment.ID, confirmerID, time.Now().UTC())
		if err != nil {
			return err
		}
		if rows == 0 {
			// Already confirmed by this user; nothing to record.
			return nil
		}
		rows, err = s.bills.UpdateAggregate(ctx, tx, billID, bill.IsSettled, bill.Version)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrentUpdate
		}
		data, _ := json.Marshal(map[string]string{"payment_id": paymentID})
		return s.audit.Log(ctx, tx, confirmerID, "payment_confirm", "split_bill", billID, string(data))
	})
	if err != nil {
		return models.SplitBill{}, err
	}
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return models.SplitBill{}, mapNoRows(err)
	}
	return bill, nil
}

// RejectParticipant flags a dispute. The participant drops out of the
// outstanding set without counting as paid; the creator resolves the
// dispute out-of-band.
func (s *LedgerService) RejectParticipant(ctx context.Context, billID, participantID, actorID string) (models.SplitBill, error) {
	var participantUserID string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		bill, err := s.bills.GetForUpdate(ctx, tx, billID)
		if err != nil {
			return mapNoRows(err)
		}
		participant, err := s.bills.GetParticipant(ctx, tx, billID, participantID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrParticipantNotFound
			}
			return err
		}
		if actorID != bill.CreatedBy && actorID != participant.UserID {
			return ErrNotAuthorized
		}
		if bill.IsSettled {
			return ErrBillSettled
		}
		if participant.IsPaid {
			return ErrAlreadyPaid
		}
		if participant.IsRejected {
			return ErrParticipantRejected
		}
		participantUserID = participant.UserID

		rows, err := s.bills.RejectParticipant(ctx, tx, billID, participantID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrParticipantRejected
		}
		participants, err := s.bills.ListParticipants(ctx, tx, billID)
		if err != nil {
			return err
		}
		rows, err = s.bills.UpdateAggregate(ctx, tx, billID, settlement.Settled(participants), bill.Version)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrentUpdate
		}
		data, _ := json.Marshal(map[string]string{"participant_id": participantID})
		return s.audit.Log(ctx, tx, actorID, "participant_reject", "split_bill", billID, string(data))
	})
	if err != nil {
		return models.SplitBill{}, err
	}
	return s.reloadAndBroadcast(ctx, billID, models.UpdateBillRejected, participantUserID)
}

// GetPaymentSummary returns the bill with its derived summary and current
// per-bill debts, computed fresh on every call.
func (s *LedgerService) GetPaymentSummary(ctx context.Context, billID, requesterID string) (models.SplitBill, models.PaymentSummary, []models.Debt, error) {
	bill, err := s.GetSplitBill(ctx, billID, requesterID)
	if err != nil {
		return models.SplitBill{}, models.PaymentSummary{}, nil, err
	}
	return bill, settlement.Summary(bill), settlement.Debts(bill), nil
}

// GroupSettlement nets all unsettled bills of a group into a minimal plan.
// This is a read-only snapshot: no locks, never persisted.
func (s *LedgerService) GroupSettlement(ctx context.Context, groupID, requesterID string) (models.SettlementPlan, models.Group, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SettlementPlan{}, models.Group{}, ErrGroupNotFound
		}
		return models.SettlementPlan{}, models.Group{}, err
	}
	member, err := s.groups.IsMember(ctx, groupID, requesterID)
	if err != nil {
		return models.SettlementPlan{}, models.Group{}, err
	}
	if !member {
		return models.SettlementPlan{}, models.Group{}, ErrNotGroupMember
	}
	bills, err := s.bills.ListByGroup(ctx, groupID)
	if err != nil {
		return models.SettlementPlan{}, models.Group{}, err
	}
	return settlement.GroupPlan(groupID, bills), group, nil
}

func (s *LedgerService) reloadAndBroadcast(ctx context.Context, billID, updateType, participantUserID string) (models.SplitBill, error) {
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return models.SplitBill{}, mapNoRows(err)
	}
	recipients, err := s.eventRecipients(ctx, bill)
	if err == nil {
		s.hub.BroadcastBillEvent(recipients, websocket.BillEvent{
			Type:          models.EventBillUpdated,
			UpdateType:    updateType,
			SplitBillID:   bill.ID,
			GroupID:       groupIDOrEmpty(bill.GroupID),
			ParticipantID: participantUserID,
			SplitBill:     bill,
		})
	}
	return bill, nil
}

// Group bills fan out to every group member; direct bills to the parties
// on the bill.
func (s *LedgerService) eventRecipients(ctx context.Context, bill models.SplitBill) ([]string, error) {
	if bill.GroupID != nil {
		return s.groups.ListMemberIDs(ctx, *bill.GroupID)
	}
	recipients := make([]string, 0, len(bill.Participants))
	for _, p := range bill.Participants {
		recipients = append(recipients, p.UserID)
	}
	return recipients, nil
}

func isParty(bill models.SplitBill, participants []models.Participant, userID string) bool {
	if userID == bill.CreatedBy {
		return true
	}
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBillNotFound
	}
	return err
}

func groupIDOrEmpty(groupID *string) string {
	if groupID == nil {
		return ""
	}
	return *groupID
}
