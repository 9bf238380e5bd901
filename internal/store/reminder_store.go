package store

import (
	"context"
	"time"

	"splitledger/internal/models"
)

type ReminderStore struct {
	db DB
}

func NewReminderStore(db DB) *ReminderStore {
	return &ReminderStore{db: db}
}

type ReminderInput struct {
	ID           string
	SplitBillID  string
	UserID       string
	Type         string
	Message      string
	ScheduledFor time.Time
}

func (s *ReminderStore) Create(ctx context.Context, tx Execer, input ReminderInput) error {
	query := `
		INSERT INTO reminders (id, split_bill_id, user_id, type, message, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.SplitBillID, input.UserID, input.Type, input.Message, input.ScheduledFor,
	)
	return err
}

func (s *ReminderStore) GetByID(ctx context.Context, reminderID string) (models.Reminder, error) {
	var reminder models.Reminder
	err := s.db.GetContext(ctx, &reminder, `
		SELECT id, split_bill_id, user_id, type, message, scheduled_for, sent_at, is_read, created_at
		FROM reminders
		WHERE id = $1
	`, reminderID)
	if err != nil {
		return models.Reminder{}, err
	}
	return reminder, nil
}

func (s *ReminderStore) ListByUser(ctx context.Context, userID string) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := s.db.SelectContext(ctx, &reminders, `
		SELECT id, split_bill_id, user_id, type, message, scheduled_for, sent_at, is_read, created_at
		FROM reminders
		WHERE user_id = $1
		ORDER BY scheduled_for DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

func (s *ReminderStore) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := s.db.SelectContext(ctx, &reminders, `
		SELECT id, split_bill_id, user_id, type, message, scheduled_for, sent_at, is_read, created_at
		FROM reminders
		WHERE scheduled_for <= $1 AND sent_at IS NULL
		ORDER BY scheduled_for ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

// Claim is the atomic test-and-set that makes the due sweep idempotent:
// only the caller whose UPDATE touches the row owns delivery. Concurrent
// sweeps see zero rows affected and skip the reminder.
func (s *ReminderStore) Claim(ctx context.Context, reminderID string, sentAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET sent_at = $1
		WHERE id = $2 AND sent_at IS NULL
	`, sentAt, reminderID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkRead only succeeds for the reminder's own recipient.
func (s *ReminderStore) MarkRead(ctx context.Context, billID, reminderID, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET is_read = TRUE
		WHERE id = $1 AND split_bill_id = $2 AND user_id = $3
	`, reminderID, billID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
