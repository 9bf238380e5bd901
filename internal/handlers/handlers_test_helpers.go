package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"splitledger/internal/auth"
	"splitledger/internal/config"
	"splitledger/internal/models"
	"splitledger/internal/services"
	"splitledger/internal/store"
	"splitledger/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn     func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn func(ctx context.Context, email string) (models.User, error)
	getByIDFn    func(ctx context.Context, userID string) (models.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{ID: userID}, nil
	}
	return s.getByIDFn(ctx, userID)
}

type stubLedgerService struct {
	createFn     func(ctx context.Context, req services.CreateBillRequest) (models.SplitBill, error)
	getFn        func(ctx context.Context, billID, requesterID string) (models.SplitBill, error)
	listGroupFn  func(ctx context.Context, groupID, requesterID string) ([]models.SplitBill, error)
	deleteFn     func(ctx context.Context, billID, requesterID string) error
	markPaidFn   func(ctx context.Context, billID, participantID, method, notes, actorID string) (models.SplitBill, error)
	confirmFn    func(ctx context.Context, billID, paymentID, confirmerID string) (models.SplitBill, error)
	rejectFn     func(ctx context.Context, billID, participantID, actorID string) (models.SplitBill, error)
	summaryFn    func(ctx context.Context, billID, requesterID string) (models.SplitBill, models.PaymentSummary, []models.Debt, error)
	settlementFn func(ctx context.Context, groupID, requesterID string) (models.SettlementPlan, models.Group, error)
}

func (s stubLedgerService) CreateSplitBill(ctx context.Context, req services.CreateBillRequest) (models.SplitBill, error) {
	if s.createFn == nil {
		return models.SplitBill{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubLedgerService) GetSplitBill(ctx context.Context, billID, requesterID string) (models.SplitBill, error) {
	if s.getFn == nil {
		return models.SplitBill{ID: billID}, nil
	}
	return s.getFn(ctx, billID, requesterID)
}

func (s stubLedgerService) ListGroupBills(ctx context.Context, groupID, requesterID string) ([]models.SplitBill, error) {
	if s.listGroupFn == nil {
		return nil, nil
	}
	return s.listGroupFn(ctx, groupID, requesterID)
}

func (s stubLedgerService) DeleteSplitBill(ctx context.Context, billID, requesterID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, billID, requesterID)
}

func (s stubLedgerService) MarkParticipantPaid(ctx context.Context, billID, participantID, method, notes, actorID string) (models.SplitBill, error) {
	if s.markPaidFn == nil {
		return models.SplitBill{ID: billID}, nil
	}
	return s.markPaidFn(ctx, billID, participantID, method, notes, actorID)
}

func (s stubLedgerService) ConfirmPayment(ctx context.Context, billID, paymentID, confirmerID string) (models.SplitBill, error) {
	if s.confirmFn == nil {
		return models.SplitBill{ID: billID}, nil
	}
	return s.confirmFn(ctx, billID, paymentID, confirmerID)
}

func (s stubLedgerService) RejectParticipant(ctx context.Context, billID, participantID, actorID string) (models.SplitBill, error) {
	if s.rejectFn == nil {
		return models.SplitBill{ID: billID}, nil
	}
	return s.rejectFn(ctx, billID, participantID, actorID)
}

func (s stubLedgerService) GetPaymentSummary(ctx context.Context, billID, requesterID string) (models.SplitBill, models.PaymentSummary, []models.Debt, error) {
	if s.summaryFn == nil {
		return models.SplitBill{ID: billID}, models.PaymentSummary{}, nil, nil
	}
	return s.summaryFn(ctx, billID, requesterID)
}

func (s stubLedgerService) GroupSettlement(ctx context.Context, groupID, requesterID string) (models.SettlementPlan, models.Group, error) {
	if s.settlementFn == nil {
		return models.SettlementPlan{GroupID: groupID}, models.Group{ID: groupID}, nil
	}
	return s.settlementFn(ctx, groupID, requesterID)
}

type stubReminderService struct {
	scheduleFn     func(ctx context.Context, billID, actorID string, req services.ScheduleRequest) ([]models.Reminder, error)
	createManualFn func(ctx context.Context, billID, actorID, targetUserID, reminderType, message string) (models.Reminder, error)
	listMineFn     func(ctx context.Context, userID string) ([]models.Reminder, error)
	markReadFn     func(ctx context.Context, billID, reminderID, userID string) error
	processDueFn   func(ctx context.Context) (int, error)
}

func (s stubReminderService) Schedule(ctx context.Context, billID, actorID string, req services.ScheduleRequest) ([]models.Reminder, error) {
	if s.scheduleFn == nil {
		return nil, nil
	}
	return s.scheduleFn(ctx, billID, actorID, req)
}

func (s stubReminderService) CreateManual(ctx context.Context, billID, actorID, targetUserID, reminderType, message string) (models.Reminder, error) {
	if s.createManualFn == nil {
		return models.Reminder{}, nil
	}
	return s.createManualFn(ctx, billID, actorID, targetUserID, reminderType, message)
}

func (s stubReminderService) ListMine(ctx context.Context, userID string) ([]models.Reminder, error) {
	if s.listMineFn == nil {
		return nil, nil
	}
	return s.listMineFn(ctx, userID)
}

func (s stubReminderService) MarkRead(ctx context.Context, billID, reminderID, userID string) error {
	if s.markReadFn == nil {
		return nil
	}
	return s.markReadFn(ctx, billID, reminderID, userID)
}

func (s stubReminderService) ProcessDue(ctx context.Context) (int, error) {
	if s.processDueFn == nil {
		return 0, nil
	}
	return s.processDueFn(ctx)
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

func testConfig() config.Config {
	return config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
		OperatorToken:  "op-secret",
	}
}

func newTestHandler(users UserStore, ledger LedgerService, reminders ReminderService, audit AuditStore) *Handler {
	return New(fakeTxRunner{}, testConfig(), users, ledger, reminders, audit, websocket.NewHub())
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return "Bearer " + token
}

func serveRoutes(t *testing.T, handler *Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}
