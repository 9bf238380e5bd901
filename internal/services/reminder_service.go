package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"splitledger/internal/db"
	"splitledger/internal/models"
	"splitledger/internal/store"
)

var (
	ErrReminderNotFound = errors.New("reminder not found")
	ErrInvalidReminder  = errors.New("invalid reminder request")
)

const dueBatchSize = 100

type ReminderStoreFull interface {
	Create(ctx context.Context, tx store.Execer, input store.ReminderInput) error
	GetByID(ctx context.Context, reminderID string) (models.Reminder, error)
	ListByUser(ctx context.Context, userID string) ([]models.Reminder, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error)
	Claim(ctx context.Context, reminderID string, sentAt time.Time) (int64, error)
	MarkRead(ctx context.Context, billID, reminderID, userID string) (int64, error)
}

type BillReader interface {
	GetByID(ctx context.Context, billID string) (models.SplitBill, error)
}

type ReminderHub interface {
	BroadcastReminder(userID string, reminder any)
}

// ReminderService schedules payment reminders and runs the due sweep. The
// sweep claims each reminder with a conditional update, so overlapping
// invocations deliver every reminder exactly once.
type ReminderService struct {
	txRunner  db.TxRunner
	reminders ReminderStoreFull
	bills     BillReader
	hub       ReminderHub
}

func NewReminderService(txRunner db.TxRunner, reminders ReminderStoreFull, bills BillReader, hub ReminderHub) *ReminderService {
	return &ReminderService{
		txRunner:  txRunner,
		reminders: reminders,
		bills:     bills,
		hub:       hub,
	}
}

type ScheduleRequest struct {
	Type    string
	Message string
	Offsets []time.Duration
}

// Schedule creates reminders for every unpaid, non-rejected, non-creator
// participant at each requested offset from now. The caller must be a
// party to the bill.
func (s *ReminderService) Schedule(ctx context.Context, billID, actorID string, req ScheduleRequest) ([]models.Reminder, error) {
	if !validReminderType(req.Type) || len(req.Offsets) == 0 {
		return nil, ErrInvalidReminder
	}
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if !CanAccessBill(bill, actorID).Read {
		return nil, ErrNotAuthorized
	}

	now := time.Now().UTC()
	var created []string
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		created = created[:0]
		for _, participant := range bill.Participants {
			if participant.UserID == bill.CreatedBy || participant.IsPaid || participant.IsRejected {
				continue
			}
			for _, offset := range req.Offsets {
				reminderID := uuid.NewString()
				if err := s.reminders.Create(ctx, tx, store.ReminderInput{
					ID:           reminderID,
					SplitBillID:  billID,
					UserID:       participant.UserID,
					Type:         req.Type,
					Message:      req.Message,
					ScheduledFor: now.Add(offset),
				}); err != nil {
					return err
				}
				created = append(created, reminderID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reminders := make([]models.Reminder, 0, len(created))
	for _, reminderID := range created {
		reminder, err := s.reminders.GetByID(ctx, reminderID)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	return reminders, nil
}

// CreateManual lets the bill creator send one ad-hoc reminder to a
// specific participant.
func (s *ReminderService) CreateManual(ctx context.Context, billID, actorID, targetUserID, reminderType, message string) (models.Reminder, error) {
	if !validReminderType(reminderType) {
		return models.Reminder{}, ErrInvalidReminder
	}
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return models.Reminder{}, mapNoRows(err)
	}
	if bill.CreatedBy != actorID {
		return models.Reminder{}, ErrNotAuthorized
	}
	if !CanAccessBill(bill, targetUserID).Read {
		return models.Reminder{}, ErrUnknownParticipant
	}

	reminderID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.reminders.Create(ctx, tx, store.ReminderInput{
			ID:           reminderID,
			SplitBillID:  billID,
			UserID:       targetUserID,
			Type:         reminderType,
			Message:      message,
			ScheduledFor: time.Now().UTC(),
		})
	})
	if err != nil {
		return models.Reminder{}, err
	}
	return s.reminders.GetByID(ctx, reminderID)
}

func (s *ReminderService) ListMine(ctx context.Context, userID string) ([]models.Reminder, error) {
	return s.reminders.ListByUser(ctx, userID)
}

func (s *ReminderService) MarkRead(ctx context.Context, billID, reminderID, userID string) error {
	reminder, err := s.reminders.GetByID(ctx, reminderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrReminderNotFound
		}
		return err
	}
	if reminder.SplitBillID != billID {
		return ErrReminderNotFound
	}
	if reminder.UserID != userID {
		return ErrNotAuthorized
	}
	rows, err := s.reminders.MarkRead(ctx, billID, reminderID, userID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrReminderNotFound
	}
	return nil
}

// ProcessDue sweeps reminders whose schedule has passed. Each reminder is
// claimed before delivery; a reminder whose claim races a concurrent sweep
// is left to the winner. Returns the number delivered by this invocation.
func (s *ReminderService) ProcessDue(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	due, err := s.reminders.ListDue(ctx, now, dueBatchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, reminder := range due {
		rows, err := s.reminders.Claim(ctx, reminder.ID, now)
		if err != nil {
			// Leave the claim for the next sweep rather than hot-looping
			// against a degraded store.
			slog.Warn("reminder claim failed", "reminder_id", reminder.ID, "err", err)
			continue
		}
		if rows == 0 {
			continue
		}
		sentAt := now
		reminder.SentAt = &sentAt
		s.hub.BroadcastReminder(reminder.UserID, reminder)
		sent++
	}
	if sent > 0 {
		slog.Info("processed due reminders", "due", len(due), "sent", sent)
	}
	return sent, nil
}

func validReminderType(reminderType string) bool {
	switch reminderType {
	case models.ReminderPaymentDue, models.ReminderSettlement, models.ReminderConfirmationNeeded:
		return true
	}
	return false
}
