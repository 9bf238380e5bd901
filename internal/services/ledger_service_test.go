package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"splitledger/internal/models"
	"splitledger/internal/settlement"
	"splitledger/internal/store"
	"splitledger/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubBillStore struct {
	createFn              func(ctx context.Context, tx store.Execer, input store.BillInput) error
	addParticipantFn      func(ctx context.Context, tx store.Execer, input store.ParticipantInput) error
	getByIDFn             func(ctx context.Context, billID string) (models.SplitBill, error)
	getForUpdateFn        func(ctx context.Context, tx store.Getter, billID string) (models.SplitBill, error)
	listByGroupFn         func(ctx context.Context, groupID string) ([]models.SplitBill, error)
	listParticipantsFn    func(ctx context.Context, tx store.Selecter, billID string) ([]models.Participant, error)
	getParticipantFn      func(ctx context.Context, tx store.Getter, billID, participantID string) (models.Participant, error)
	markPaidFn            func(ctx context.Context, tx store.Execer, billID, participantID string, paidAt time.Time) (int64, error)
	rejectFn              func(ctx context.Context, tx store.Execer, billID, participantID string) (int64, error)
	insertPaymentFn       func(ctx context.Context, tx store.Execer, input store.PaymentInput) error
	getPaymentFn          func(ctx context.Context, tx store.Getter, billID, paymentID string) (models.Payment, error)
	insertConfirmationFn  func(ctx context.Context, tx store.Execer, paymentID, userID string, confirmedAt time.Time) (int64, error)
	updateAggregateFn     func(ctx context.Context, tx store.Execer, billID string, isSettled bool, expectedVersion int64) (int64, error)
	softDeleteFn          func(ctx context.Context, tx store.Execer, billID string, expectedVersion int64) (int64, error)
	countConfirmationsFn  func(ctx context.Context, tx store.Getter, billID, userID string) (int64, error)
}

func (s stubBillStore) Create(ctx context.Context, tx store.Execer, input store.BillInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubBillStore) AddParticipant(ctx context.Context, tx store.Execer, input store.ParticipantInput) error {
	if s.addParticipantFn == nil {
		return nil
	}
	return s.addParticipantFn(ctx, tx, input)
}

func (s stubBillStore) GetByID(ctx context.Context, billID string) (models.SplitBill, error) {
	if s.getByIDFn == nil {
		return models.SplitBill{ID: billID}, nil
	}
	return s.getByIDFn(ctx, billID)
}

func (s stubBillStore) GetForUpdate(ctx context.Context, tx store.Getter, billID string) (models.SplitBill, error) {
	if s.getForUpdateFn == nil {
		return models.SplitBill{ID: billID, Version: 1}, nil
	}
	return s.getForUpdateFn(ctx, tx, billID)
}

func (s stubBillStore) ListByGroup(ctx context.Context, groupID string) ([]models.SplitBill, error) {
	if s.listByGroupFn == nil {
		return nil, nil
	}
	return s.listByGroupFn(ctx, groupID)
}

func (s stubBillStore) ListParticipants(ctx context.Context, tx store.Selecter, billID string) ([]models.Participant, error) {
	if s.listParticipantsFn == nil {
		return nil, nil
	}
	return s.listParticipantsFn(ctx, tx, billID)
}

func (s stubBillStore) GetParticipant(ctx context.Context, tx store.Getter, billID, participantID string) (models.Participant, error) {
	if s.getParticipantFn == nil {
		return models.Participant{}, sql.ErrNoRows
	}
	return s.getParticipantFn(ctx, tx, billID, participantID)
}

func (s stubBillStore) MarkParticipantPaid(ctx context.Context, tx store.Execer, billID, participantID string, paidAt time.Time) (int64, error) {
	if s.markPaidFn == nil {
		return 1, nil
	}
	return s.markPaidFn(ctx, tx, billID, participantID, paidAt)
}

func (s stubBillStore) RejectParticipant(ctx context.Context, tx store.Execer, billID, participantID string) (int64, error) {
	if s.rejectFn == nil {
		return 1, nil
	}
	return s.rejectFn(ctx, tx, billID, participantID)
}

func (s stubBillStore) InsertPayment(ctx context.Context, tx store.Execer, input store.PaymentInput) error {
	if s.insertPaymentFn == nil {
		return nil
	}
	return s.insertPaymentFn(ctx, tx, input)
}

func (s stubBillStore) GetPayment(ctx context.Context, tx store.Getter, billID, paymentID string) (models.Payment, error) {
	if s.getPaymentFn == nil {
		return models.Payment{ID: paymentID, BillID: billID}, nil
	}
	return s.getPaymentFn(ctx, tx, billID, paymentID)
}

func (s stubBillStore) InsertConfirmation(ctx context.Context, tx store.Execer, paymentID, userID string, confirmedAt time.Time) (int64, error) {
	if s.insertConfirmationFn == nil {
		return 1, nil
	}
	return s.insertConfirmationFn(ctx, tx, paymentID, userID, confirmedAt)
}

func (s stubBillStore) UpdateAggregate(ctx context.Context, tx store.Execer, billID string, isSettled bool, expectedVersion int64) (int64, error) {
	if s.updateAggregateFn == nil {
		return 1, nil
	}
	return s.updateAggregateFn(ctx, tx, billID, isSettled, expectedVersion)
}

func (s stubBillStore) SoftDelete(ctx context.Context, tx store.Execer, billID string, expectedVersion int64) (int64, error) {
	if s.softDeleteFn == nil {
		return 1, nil
	}
	return s.softDeleteFn(ctx, tx, billID, expectedVersion)
}

func (s stubBillStore) CountForeignConfirmations(ctx context.Context, tx store.Getter, billID, userID string) (int64, error) {
	if s.countConfirmationsFn == nil {
		return 0, nil
	}
	return s.countConfirmationsFn(ctx, tx, billID, userID)
}

type stubUserStore struct {
	countFn func(ctx context.Context, userIDs []string) (int64, error)
}

func (s stubUserStore) CountExisting(ctx context.Context, userIDs []string) (int64, error) {
	if s.countFn == nil {
		return int64(len(userIDs)), nil
	}
	return s.countFn(ctx, userIDs)
}

type stubGroupStore struct {
	getByIDFn       func(ctx context.Context, groupID string) (models.Group, error)
	isMemberFn      func(ctx context.Context, groupID, userID string) (bool, error)
	listMemberIDsFn func(ctx context.Context, groupID string) ([]string, error)
}

func (s stubGroupStore) GetByID(ctx context.Context, groupID string) (models.Group, error) {
	if s.getByIDFn == nil {
		return models.Group{ID: groupID}, nil
	}
	return s.getByIDFn(ctx, groupID)
}

func (s stubGroupStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	if s.isMemberFn == nil {
		return true, nil
	}
	return s.isMemberFn(ctx, groupID, userID)
}

func (s stubGroupStore) ListMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	if s.listMemberIDsFn == nil {
		return nil, nil
	}
	return s.listMemberIDsFn(ctx, groupID)
}

type stubReminderStore struct {
	createFn     func(ctx context.Context, tx store.Execer, input store.ReminderInput) error
	getByIDFn    func(ctx context.Context, reminderID string) (models.Reminder, error)
	listByUserFn func(ctx context.Context, userID string) ([]models.Reminder, error)
	listDueFn    func(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error)
	claimFn      func(ctx context.Context, reminderID string, sentAt time.Time) (int64, error)
	markReadFn   func(ctx context.Context, billID, reminderID, userID string) (int64, error)
}

func (s stubReminderStore) Create(ctx context.Context, tx store.Execer, input store.ReminderInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubReminderStore) GetByID(ctx context.Context, reminderID string) (models.Reminder, error) {
	if s.getByIDFn == nil {
		return models.Reminder{ID: reminderID}, nil
	}
	return s.getByIDFn(ctx, reminderID)
}

func (s stubReminderStore) ListByUser(ctx context.Context, userID string) ([]models.Reminder, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID)
}

func (s stubReminderStore) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	if s.listDueFn == nil {
		return nil, nil
	}
	return s.listDueFn(ctx, now, limit)
}

func (s stubReminderStore) Claim(ctx context.Context, reminderID string, sentAt time.Time) (int64, error) {
	if s.claimFn == nil {
		return 1, nil
	}
	return s.claimFn(ctx, reminderID, sentAt)
}

func (s stubReminderStore) MarkRead(ctx context.Context, billID, reminderID, userID string) (int64, error) {
	if s.markReadFn == nil {
		return 1, nil
	}
	return s.markReadFn(ctx, billID, reminderID, userID)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

type stubHub struct {
	billEvents     []websocket.BillEvent
	billRecipients [][]string
	reminders      []any
	reminderUsers  []string
}

func (s *stubHub) BroadcastBillEvent(userIDs []string, event websocket.BillEvent) {
	s.billRecipients = append(s.billRecipients, userIDs)
	s.billEvents = append(s.billEvents, event)
}

func (s *stubHub) BroadcastReminder(userID string, reminder any) {
	s.reminderUsers = append(s.reminderUsers, userID)
	s.reminders = append(s.reminders, reminder)
}

func newLedgerService(bills BillStore, users UserStore, groups GroupStore, reminders ReminderStore, hub EventHub) *LedgerService {
	return NewLedgerService(fakeTxRunner{}, bills, users, groups, reminders, stubAuditStore{}, hub, 24*time.Hour)
}

func TestCreateSplitBillEqualSplit(t *testing.T) {
	var participants []store.ParticipantInput
	var reminders []store.ReminderInput
	hub := &stubHub{}
	loaded := models.SplitBill{
		ID:        "bill-1",
		CreatedBy: "ana",
		Participants: []models.Participant{
			{UserID: "ana", IsPaid: true},
			{UserID: "ben"},
			{UserID: "coco"},
		},
	}
	service := newLedgerService(stubBillStore{
		addParticipantFn: func(_ context.Context, _ store.Execer, input store.ParticipantInput) error {
			participants = append(participants, input)
			return nil
		},
		getByIDFn: func(_ context.Context, _ string) (models.SplitBill, error) {
			return loaded, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{
		createFn: func(_ context.Context, _ store.Execer, input store.ReminderInput) error {
			reminders = append(reminders, input)
			return nil
		},
	}, hub)

	bill, err := service.CreateSplitBill(context.Background(), CreateBillRequest{
		CreatorID:   "ana",
		Description: "Dinner",
		TotalAmount: 30000,
		Currency:    "USD",
		SplitType:   models.SplitTypeEqual,
		Participants: []settlement.ShareInput{
			{UserID: "ben"},
			{UserID: "coco"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bill.ID != "bill-1" {
		t.Fatalf("unexpected bill: %#v", bill)
	}
	if len(participants) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(participants))
	}
	var creatorRows, total int64
	for _, p := range participants {
		total += p.Amount
		if p.UserID == "ana" {
			creatorRows++
			if !p.IsPaid || p.PaidAt == nil {
				t.Fatalf("creator share must be pre-paid: %#v", p)
			}
		} else if p.Amount != 10000 {
			t.Fatalf("unexpected share: %#v", p)
		}
	}
	if creatorRows != 1 || total != 30000 {
		t.Fatalf("unexpected participant rows: %#v", participants)
	}
	if len(reminders) != 2 {
		t.Fatalf("expected a reminder per debtor, got %d", len(reminders))
	}
	for _, reminder := range reminders {
		if reminder.Type != models.ReminderPaymentDue || reminder.UserID == "ana" {
			t.Fatalf("unexpected reminder: %#v", reminder)
		}
	}
	if len(hub.billEvents) != 1 || hub.billEvents[0].Type != models.EventBillCreated {
		t.Fatalf("expected one bill-created event, got %#v", hub.billEvents)
	}
	if len(hub.billRecipients[0]) != 3 {
		t.Fatalf("expected event for all parties, got %#v", hub.billRecipients[0])
	}
}

func TestCreateSplitBillUnknownParticipant(t *testing.T) {
	service := newLedgerService(stubBillStore{}, stubUserStore{
		countFn: func(_ context.Context, userIDs []string) (int64, error) {
			return int64(len(userIDs)) - 1, nil
		},
	}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	_, err := service.CreateSplitBill(context.Background(), CreateBillRequest{
		CreatorID:    "ana",
		Description:  "Dinner",
		TotalAmount:  30000,
		Currency:     "USD",
		SplitType:    models.SplitTypeEqual,
		Participants: []settlement.ShareInput{{UserID: "ghost"}},
	})
	if !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}
}

func TestCreateSplitBillRequiresGroupMembership(t *testing.T) {
	groupID := "group-1"
	service := newLedgerService(stubBillStore{}, stubUserStore{}, stubGroupStore{
		isMemberFn: func(_ context.Context, _, _ string) (bool, error) {
			return false, nil
		},
	}, stubReminderStore{}, &stubHub{})

	_, err := service.CreateSplitBill(context.Background(), CreateBillRequest{
		CreatorID:    "ana",
		Description:  "Dinner",
		TotalAmount:  30000,
		Currency:     "USD",
		SplitType:    models.SplitTypeEqual,
		GroupID:      &groupID,
		Participants: []settlement.ShareInput{{UserID: "ben"}},
	})
	if !errors.Is(err, ErrNotGroupMember) {
		t.Fatalf("expected ErrNotGroupMember, got %v", err)
	}
}

func TestCreateSplitBillRejectsBadSplit(t *testing.T) {
	service := newLedgerService(stubBillStore{}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	_, err := service.CreateSplitBill(context.Background(), CreateBillRequest{
		CreatorID:   "ana",
		Description: "Dinner",
		TotalAmount: 10000,
		Currency:    "USD",
		SplitType:   models.SplitTypeCustom,
		Participants: []settlement.ShareInput{
			{UserID: "ben", Amount: 20000},
		},
	})
	if !errors.Is(err, settlement.ErrSharesExceedTotal) {
		t.Fatalf("expected ErrSharesExceedTotal, got %v", err)
	}
}

func TestGetSplitBillRequiresStanding(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getByIDFn: func(_ context.Context, billID string) (models.SplitBill, error) {
			return models.SplitBill{
				ID:        billID,
				CreatedBy: "ana",
				Participants: []models.Participant{
					{UserID: "ana"}, {UserID: "ben"},
				},
			}, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	if _, err := service.GetSplitBill(context.Background(), "bill-1", "ben"); err != nil {
		t.Fatalf("participant should read the bill: %v", err)
	}
	if _, err := service.GetSplitBill(context.Background(), "bill-1", "stranger"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestGetSplitBillNotFound(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getByIDFn: func(_ context.Context, _ string) (models.SplitBill, error) {
			return models.SplitBill{}, sql.ErrNoRows
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	if _, err := service.GetSplitBill(context.Background(), "missing", "ana"); !errors.Is(err, ErrBillNotFound) {
		t.Fatalf("expected ErrBillNotFound, got %v", err)
	}
}

func lockedBill() models.SplitBill {
	return models.SplitBill{ID: "bill-1", CreatedBy: "ana", Version: 1}
}

func TestMarkParticipantPaidSettlesBill(t *testing.T) {
	var payment store.PaymentInput
	var settled *bool
	hub := &stubHub{}
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		getParticipantFn: func(_ context.Context, _ store.Getter, _, participantID string) (models.Participant, error) {
			return models.Participant{ID: participantID, UserID: "ben", Amount: 10000}, nil
		},
		insertPaymentFn: func(_ context.Context, _ store.Execer, input store.PaymentInput) error {
			payment = input
			return nil
		},
		listParticipantsFn: func(_ context.Context, _ store.Selecter, _ string) ([]models.Participant, error) {
			return []models.Participant{
				{UserID: "ana", IsPaid: true},
				{UserID: "ben", IsPaid: true},
			}, nil
		},
		updateAggregateFn: func(_ context.Context, _ store.Execer, _ string, isSettled bool, expectedVersion int64) (int64, error) {
			if expectedVersion != 1 {
				t.Fatalf("expected version claim against 1, got %d", expectedVersion)
			}
			settled = &isSettled
			return 1, nil
		},
		getByIDFn: func(_ context.Context, billID string) (models.SplitBill, error) {
			return models.SplitBill{ID: billID, CreatedBy: "ana", IsSettled: true,
				Participants: []models.Participant{{UserID: "ana"}, {UserID: "ben"}}}, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, hub)

	bill, err := service.MarkParticipantPaid(context.Background(), "bill-1", "part-ben", "cash", "", "ben")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bill.IsSettled {
		t.Fatalf("expected settled bill, got %#v", bill)
	}
	if payment.FromUserID != "ben" || payment.ToUserID != "ana" || payment.Amount != 10000 {
		t.Fatalf("unexpected payment: %#v", payment)
	}
	if settled == nil || !*settled {
		t.Fatalf("expected aggregate recomputed as settled")
	}
	if len(hub.billEvents) != 1 || hub.billEvents[0].UpdateType != models.UpdatePaymentMade {
		t.Fatalf("expected payment-made event, got %#v", hub.billEvents)
	}
}

func TestMarkParticipantPaidTwiceConflicts(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		getParticipantFn: func(_ context.Context, _ store.Getter, _, _ string) (models.Participant, error) {
			return models.Participant{UserID: "ben", IsPaid: true}, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	_, err := service.MarkParticipantPaid(context.Background(), "bill-1", "part-ben", "cash", "", "ben")
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
}

func TestMarkParticipantPaidOnSettledBill(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			bill := lockedBill()
			bill.IsSettled = true
			return bill, nil
		},
		getParticipantFn: func(_ context.Context, _ store.Getter, _, _ string) (models.Participant, error) {
			return models.Participant{UserID: "ben"}, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	_, err := service.MarkParticipantPaid(context.Background(), "bill-1", "part-ben", "cash", "", "ben")
	if !errors.Is(err, ErrBillSettled) {
		t.Fatalf("expected ErrBillSettled, got %v", err)
	}
}

func TestMarkParticipantPaidRequiresStanding(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		getParticipantFn: func(_ context.Context, _ store.Getter, _, _ string) (models.Participant, error) {
			return models.Participant{UserID: "ben"}, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	_, err := service.MarkParticipantPaid(context.Background(), "bill-1", "part-ben", "cash", "", "coco")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestMarkParticipantPaidConcurrentVersionClaim(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		getParticipantFn: func(_ context.Context, _ store.Getter, _, _ string) (models.Participant, error) {
			return models.Participant{UserID: "ben", Amount: 10000}, nil
		},
		updateAggregateFn: func(_ context.Context, _ store.Execer, _ string, _ bool, _ int64) (int64, error) {
			return 0, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	_, err := service.MarkParticipantPaid(context.Background(), "bill-1", "part-ben", "cash", "", "ben")
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestConfirmPaymentRepeatIsNoOp(t *testing.T) {
	audited := 0
	service := NewLedgerService(fakeTxRunner{}, stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		listParticipantsFn: func(_ context.Context, _ store.Selecter, _ string) ([]models.Participant, error) {
			return []models.Participant{{UserID: "ana"}, {UserID: "ben"}}, nil
		},
		insertConfirmationFn: func(_ context.Context, _ store.Execer, _, _ string, _ time.Time) (int64, error) {
			return 0, nil
		},
		updateAggregateFn: func(_ context.Context, _ store.Execer, _ string, _ bool, _ int64) (int64, error) {
			t.Fatalf("no aggregate update for a repeated confirmation")
			return 0, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, stubAuditStore{
		logFn: func(_ context.Context, _ store.Execer, _, _, _, _, _ string) error {
			audited++
			return nil
		},
	}, &stubHub{}, 24*time.Hour)

	_, err := service.ConfirmPayment(context.Background(), "bill-1", "pay-1", "ana")
	if err != nil {
		t.Fatalf("repeated confirmation must succeed: %v", err)
	}
	if audited != 0 {
		t.Fatalf("repeated confirmation must not audit, got %d entries", audited)
	}
}

func TestConfirmPaymentConcurrentVersionClaim(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		listParticipantsFn: func(_ context.Context, _ store.Selecter, _ string) ([]models.Participant, error) {
			return []models.Participant{{UserID: "ana"}, {UserID: "ben"}}, nil
		},
		updateAggregateFn: func(_ context.Context, _ store.Execer, _ string, _ bool, _ int64) (int64, error) {
			return 0, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	_, err := service.ConfirmPayment(context.Background(), "bill-1", "pay-1", "ana")
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestConfirmPaymentRequiresParty(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		listParticipantsFn: func(_ context.Context, _ store.Selecter, _ string) ([]models.Participant, error) {
			return []models.Participant{{UserID: "ana"}, {UserID: "ben"}}, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	_, err := service.ConfirmPayment(context.Background(), "bill-1", "pay-1", "stranger")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestConfirmPaymentAllowedOnSettledBill(t *testing.T) {
	confirmed := false
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			bill := lockedBill()
			bill.IsSettled = true
			return bill, nil
		},
		listParticipantsFn: func(_ context.Context, _ store.Selecter, _ string) ([]models.Participant, error) {
			return []models.Participant{{UserID: "ana"}, {UserID: "ben"}}, nil
		},
		insertConfirmationFn: func(_ context.Context, _ store.Execer, paymentID, userID string, _ time.Time) (int64, error) {
			if paymentID != "pay-1" || userID != "ana" {
				t.Fatalf("unexpected confirmation: %s by %s", paymentID, userID)
			}
			confirmed = true
			return 1, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	if _, err := service.ConfirmPayment(context.Background(), "bill-1", "pay-1", "ana"); err != nil {
		t.Fatalf("confirmation on settled bill must succeed: %v", err)
	}
	if !confirmed {
		t.Fatalf("expected confirmation to be recorded")
	}
}

func TestConfirmPaymentUnknownPayment(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		listParticipantsFn: func(_ context.Context, _ store.Selecter, _ string) ([]models.Participant, error) {
			return []models.Participant{{UserID: "ana"}}, nil
		},
		getPaymentFn: func(_ context.Context, _ store.Getter, _, _ string) (models.Payment, error) {
			return models.Payment{}, sql.ErrNoRows
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	_, err := service.ConfirmPayment(context.Background(), "bill-1", "missing", "ana")
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestRejectParticipantFlagsDispute(t *testing.T) {
	var settled *bool
	hub := &stubHub{}
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		getParticipantFn: func(_ context.Context, _ store.Getter, _, _ string) (models.Participant, error) {
			return models.Participant{ID: "part-ben", UserID: "ben", Amount: 10000}, nil
		},
		listParticipantsFn: func(_ context.Context, _ store.Selecter, _ string) ([]models.Participant, error) {
			return []models.Participant{
				{UserID: "ana", IsPaid: true},
				{UserID: "ben", IsRejected: true},
			}, nil
		},
		updateAggregateFn: func(_ context.Context, _ store.Execer, _ string, isSettled bool, _ int64) (int64, error) {
			settled = &isSettled
			return 1, nil
		},
		getByIDFn: func(_ context.Context, billID string) (models.SplitBill, error) {
			return models.SplitBill{ID: billID, CreatedBy: "ana",
				Participants: []models.Participant{{UserID: "ana"}, {UserID: "ben", IsRejected: true}}}, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, hub)

	_, err := service.RejectParticipant(context.Background(), "bill-1", "part-ben", "ben")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled == nil || !*settled {
		t.Fatalf("rejected participant must not hold the bill open")
	}
	if len(hub.billEvents) != 1 || hub.billEvents[0].UpdateType != models.UpdateBillRejected {
		t.Fatalf("expected bill-rejected event, got %#v", hub.billEvents)
	}
}

func TestRejectParticipantAfterPayment(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		getParticipantFn: func(_ context.Context, _ store.Getter, _, _ string) (models.Participant, error) {
			return models.Participant{UserID: "ben", IsPaid: true}, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	_, err := service.RejectParticipant(context.Background(), "bill-1", "part-ben", "ben")
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
}

func TestDeleteSplitBillCreatorOnly(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	if err := service.DeleteSplitBill(context.Background(), "bill-1", "ben"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := service.DeleteSplitBill(context.Background(), "bill-1", "ana"); err != nil {
		t.Fatalf("creator delete must succeed: %v", err)
	}
}

func TestDeleteSplitBillBlockedByForeignConfirmations(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		countConfirmationsFn: func(_ context.Context, _ store.Getter, _, _ string) (int64, error) {
			return 1, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	if err := service.DeleteSplitBill(context.Background(), "bill-1", "ana"); !errors.Is(err, ErrConfirmedByOthers) {
		t.Fatalf("expected ErrConfirmedByOthers, got %v", err)
	}
}

func TestDeleteSplitBillConcurrentUpdate(t *testing.T) {
	service := newLedgerService(stubBillStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.SplitBill, error) {
			return lockedBill(), nil
		},
		softDeleteFn: func(_ context.Context, _ store.Execer, _ string, _ int64) (int64, error) {
			return 0, nil
		},
	}, stubUserStore{}, stubGroupStore{}, stubReminderStore{}, &stubHub{})

	if err := service.DeleteSplitBill(context.Background(), "bill-1", "ana"); !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestGroupSettlementComputesPlan(t *testing.T) {
	service := newLedgerService(stubBillStore{
		listByGroupFn: func(_ context.Context, groupID string) ([]models.SplitBill, error) {
			return []models.SplitBill{{
				ID:        "bill-1",
				CreatedBy: "ana",
				GroupID:   &groupID,
				Participants: []models.Participant{
					{UserID: "ana", Amount: 10000, IsPaid: true},
					{UserID: "ben", Amount: 10000},
					{UserID: "coco", Amount: 10000},
				},
			}}, nil
		},
	}, stubUserStore{}, stubGroupStore{
		getByIDFn: func(_ context.Context, groupID string) (models.Group, error) {
			return models.Group{ID: groupID, Name: "Trip"}, nil
		},
	}, stubReminderStore{}, &stubHub{})

	plan, group, err := service.GroupSettlement(context.Background(), "group-1", "ana")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if group.Name != "Trip" {
		t.Fatalf("unexpected group: %#v", group)
	}
	if len(plan.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %#v", plan.Transactions)
	}
	if plan.NetBalances["ana"] != 20000 {
		t.Fatalf("unexpected balances: %#v", plan.NetBalances)
	}
}

func TestGroupSettlementUnknownGroup(t *testing.T) {
	service := newLedgerService(stubBillStore{}, stubUserStore{}, stubGroupStore{
		getByIDFn: func(_ context.Context, _ string) (models.Group, error) {
			return models.Group{}, sql.ErrNoRows
		},
	}, stubReminderStore{}, &stubHub{})

	if _, _, err := service.GroupSettlement(context.Background(), "missing", "ana"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestGroupSettlementRequiresMembership(t *testing.T) {
	service := newLedgerService(stubBillStore{}, stubUserStore{}, stubGroupStore{
		isMemberFn: func(_ context.Context, _, _ string) (bool, error) {
			return false, nil
		},
	}, stubReminderStore{}, &stubHub{})

	if _, _, err := service.GroupSettlement(context.Background(), "group-1", "stranger"); !errors.Is(err, ErrNotGroupMember) {
		t.Fatalf("expected ErrNotGroupMember, got %v", err)
	}
}
