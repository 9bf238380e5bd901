package store

import (
	"context"
	"time"

	"github.com/lib/pq"

	"splitledger/internal/models"
)

// BillStore owns the SplitBill aggregate: the bill row plus its embedded
// participant and payment children. Mutations run inside a caller-provided
// transaction; the bill row carries a version column and every mutating
// path must finish with UpdateAggregate to claim the version.
type BillStore struct {
	db DB
}

func NewBillStore(db DB) *BillStore {
	return &BillStore{db: db}
}

type BillInput struct {
	ID          string
	Description string
	TotalAmount int64
	Currency    string
	Category    string
	CreatedBy   string
	GroupID     *string
	SplitType   string
}

type ParticipantInput struct {
	ID         string
	BillID     string
	UserID     string
	Amount     int64
	Percentage *string
	IsPaid     bool
	PaidAt     *time.Time
}

type PaymentInput struct {
	ID            string
	BillID        string
	FromUserID    string
	ToUserID      string
	Amount        int64
	PaymentMethod string
	Notes         string
}

func (s *BillStore) Create(ctx context.Context, tx Execer, input BillInput) error {
	query := `
		INSERT INTO split_bills (id, description, total_amount, currency, category, created_by, group_id, split_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.Description, input.TotalAmount, input.Currency,
		input.Category, input.CreatedBy, input.GroupID, input.SplitType,
	)
	return err
}

func (s *BillStore) AddParticipant(ctx context.Context, tx Execer, input ParticipantInput) error {
	query := `
		INSERT INTO bill_participants (id, bill_id, user_id, amount, percentage, is_paid, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.BillID, input.UserID, input.Amount, input.Percentage, input.IsPaid, input.PaidAt,
	)
	return err
}

func (s *BillStore) GetByID(ctx context.Context, billID string) (models.SplitBill, error) {
	var bill models.SplitBill
	err := s.db.GetContext(ctx, &bill, `
		SELECT id, description, total_amount, currency, category, created_by,
		       group_id, split_type, is_settled, version, created_at, deleted_at
		FROM split_bills
		WHERE id = $1 AND deleted_at IS NULL
	`, billID)
	if err != nil {
		return models.SplitBill{}, err
	}
	if err := s.loadChildren(ctx, &bill); err != nil {
		return models.SplitBill{}, err
	}
	return bill, nil
}

// GetForUpdate row-locks the bill inside the caller's transaction. Children
// are not loaded; per-bill serialization only needs the root lock.
func (s *BillStore) GetForUpdate(ctx context.Context, tx Getter, billID string) (models.SplitBill, error) {
	var bill models.SplitBill
	err := tx.GetContext(ctx, &bill, `
		SELECT id, description, total_amount, currency, category, created_by,
		       group_id, split_type, is_settled, version, created_at, deleted_at
		FROM split_bills
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, billID)
	if err != nil {
		return models.SplitBill{}, err
	}
	return bill, nil
}

func (s *BillStore) ListByGroup(ctx context.Context, groupID string) ([]models.SplitBill, error) {
	var bills []models.SplitBill
	err := s.db.SelectContext(ctx, &bills, `
		SELECT id, description, total_amount, currency, category, created_by,
		       group_id, split_type, is_settled, version, created_at, deleted_at
		FROM split_bills
		WHERE group_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, groupID)
	if err != nil {
		return nil, err
	}
	for i := range bills {
		if err := s.loadChildren(ctx, &bills[i]); err != nil {
			return nil, err
		}
	}
	return bills, nil
}

func (s *BillStore) ListParticipants(ctx context.Context, tx Selecter, billID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := tx.SelectContext(ctx, &participants, `
		SELECT id, bill_id, user_id, amount, percentage, is_paid, paid_at, is_rejected
		FROM bill_participants
		WHERE bill_id = $1
		ORDER BY user_id
	`, billID)
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (s *BillStore) GetParticipant(ctx context.Context, tx Getter, billID, participantID string) (models.Participant, error) {
	var participant models.Participant
	err := tx.GetContext(ctx, &participant, `
		SELECT id, bill_id, user_id, amount, percentage, is_paid, paid_at, is_rejected
		FROM bill_participants
		WHERE id = $1 AND bill_id = $2
	`, participantID, billID)
	if err != nil {
		return models.Participant{}, err
	}
	return participant, nil
}

// MarkParticipantPaid flips the unpaid, non-rejected participant to paid.
// Zero rows affected means the transition was not legal from the current
// state, which the service surfaces as a conflict.
func (s *BillStore) MarkParticipantPaid(ctx context.Context, tx Execer, billID, participantID string, paidAt time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE bill_participants
		SET is_paid = TRUE, paid_at = $1
		WHERE id = $2 AND bill_id = $3 AND is_paid = FALSE AND is_rejected = FALSE
	`, paidAt, participantID, billID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *BillStore) RejectParticipant(ctx context.Context, tx Execer, billID, participantID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE bill_participants
		SET is_rejected = TRUE
		WHERE id = $1 AND bill_id = $2 AND is_paid = FALSE AND is_rejected = FALSE
	`, participantID, billID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *BillStore) InsertPayment(ctx context.Context, tx Execer, input PaymentInput) error {
	query := `
		INSERT INTO bill_payments (id, bill_id, from_user_id, to_user_id, amount, payment_method, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.BillID, input.FromUserID, input.ToUserID,
		input.Amount, input.PaymentMethod, input.Notes,
	)
	return err
}

func (s *BillStore) GetPayment(ctx context.Context, tx Getter, billID, paymentID string) (models.Payment, error) {
	var payment models.Payment
	err := tx.GetContext(ctx, &payment, `
		SELECT id, bill_id, from_user_id, to_user_id, amount, payment_method, notes, created_at
		FROM bill_payments
		WHERE id = $1 AND bill_id = $2
	`, paymentID, billID)
	if err != nil {
		return models.Payment{}, err
	}
	return payment, nil
}

// InsertConfirmation appends one confirmer to a payment. The unique index on
// (payment_id, user_id) makes repeated confirmation a no-op; zero rows
// affected means this confirmer was already recorded.
func (s *BillStore) InsertConfirmation(ctx context.Context, tx Execer, paymentID, userID string, confirmedAt time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO payment_confirmations (payment_id, user_id, confirmed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (payment_id, user_id) DO NOTHING
	`, paymentID, userID, confirmedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateAggregate claims the optimistic version and stores the recomputed
// settled flag. Zero rows affected means a concurrent writer got there
// first; the caller retries the whole transaction.
func (s *BillStore) UpdateAggregate(ctx context.Context, tx Execer, billID string, isSettled bool, expectedVersion int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE split_bills
		SET is_settled = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3 AND deleted_at IS NULL
	`, isSettled, billID, expectedVersion)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *BillStore) SoftDelete(ctx context.Context, tx Execer, billID string, expectedVersion int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE split_bills
		SET deleted_at = NOW(), version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
	`, billID, expectedVersion)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountForeignConfirmations counts confirmations on the bill's payments made
// by anyone other than the given user. Deletion is blocked while any exist.
func (s *BillStore) CountForeignConfirmations(ctx context.Context, tx Getter, billID, userID string) (int64, error) {
	var count int64
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM payment_confirmations c
		JOIN bill_payments p ON p.id = c.payment_id
		WHERE p.bill_id = $1 AND c.user_id <> $2
	`, billID, userID)
	return count, err
}

func (s *BillStore) loadChildren(ctx context.Context, bill *models.SplitBill) error {
	participants, err := s.ListParticipants(ctx, s.db, bill.ID)
	if err != nil {
		return err
	}
	bill.Participants = participants

	var payments []models.Payment
	err = s.db.SelectContext(ctx, &payments, `
		SELECT id, bill_id, from_user_id, to_user_id, amount, payment_method, notes, created_at
		FROM bill_payments
		WHERE bill_id = $1
		ORDER BY created_at ASC
	`, bill.ID)
	if err != nil {
		return err
	}
	if len(payments) > 0 {
		paymentIDs := make([]string, 0, len(payments))
		for _, p := range payments {
			paymentIDs = append(paymentIDs, p.ID)
		}
		var confirmations []models.Confirmation
		err = s.db.SelectContext(ctx, &confirmations, `
			SELECT payment_id, user_id, confirmed_at
			FROM payment_confirmations
			WHERE payment_id = ANY($1)
			ORDER BY confirmed_at ASC
		`, pq.Array(paymentIDs))
		if err != nil {
			return err
		}
		byPayment := make(map[string][]models.Confirmation)
		for _, c := range confirmations {
			byPayment[c.PaymentID] = append(byPayment[c.PaymentID], c)
		}
		for i := range payments {
			payments[i].ConfirmedBy = byPayment[payments[i].ID]
		}
	}
	bill.Payments = payments
	return nil
}
