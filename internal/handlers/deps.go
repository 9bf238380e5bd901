package handlers

import (
	"context"

	"splitledger/internal/models"
	"splitledger/internal/services"
	"splitledger/internal/store"
)

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
}

type LedgerService interface {
	CreateSplitBill(ctx context.Context, req services.CreateBillRequest) (models.SplitBill, error)
	GetSplitBill(ctx context.Context, billID, requesterID string) (models.SplitBill, error)
	ListGroupBills(ctx context.Context, groupID, requesterID string) ([]models.SplitBill, error)
	DeleteSplitBill(ctx context.Context, billID, requesterID string) error
	MarkParticipantPaid(ctx context.Context, billID, participantID, method, notes, actorID string) (models.SplitBill, error)
	ConfirmPayment(ctx context.Context, billID, paymentID, confirmerID string) (models.SplitBill, error)
	RejectParticipant(ctx context.Context, billID, participantID, actorID string) (models.SplitBill, error)
	GetPaymentSummary(ctx context.Context, billID, requesterID string) (models.SplitBill, models.PaymentSummary, []models.Debt, error)
	GroupSettlement(ctx context.Context, groupID, requesterID string) (models.SettlementPlan, models.Group, error)
}

type ReminderService interface {
	Schedule(ctx context.Context, billID, actorID string, req services.ScheduleRequest) ([]models.Reminder, error)
	CreateManual(ctx context.Context, billID, actorID, targetUserID, reminderType, message string) (models.Reminder, error)
	ListMine(ctx context.Context, userID string) ([]models.Reminder, error)
	MarkRead(ctx context.Context, billID, reminderID, userID string) error
	ProcessDue(ctx context.Context) (int, error)
}
