package models

import "time"

const (
	SplitTypeEqual      = "equal"
	SplitTypeCustom     = "custom"
	SplitTypePercentage = "percentage"
)

const (
	EventBillCreated   = "split-bill-created"
	EventBillUpdated   = "split-bill-updated"
	UpdatePaymentMade  = "payment-made"
	UpdateBillRejected = "bill-rejected"
)

const (
	ReminderPaymentDue         = "payment_due"
	ReminderSettlement         = "settlement_reminder"
	ReminderConfirmationNeeded = "confirmation_needed"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SplitBill is the aggregate root. Participants and Payments are embedded
// children; mutations go through the ledger service under a version check.
type SplitBill struct {
	ID          string        `db:"id" json:"id"`
	Description string        `db:"description" json:"description"`
	TotalAmount int64         `db:"total_amount" json:"total_amount"`
	Currency    string        `db:"currency" json:"currency"`
	Category    string        `db:"category" json:"category"`
	CreatedBy   string        `db:"created_by" json:"created_by"`
	GroupID     *string       `db:"group_id" json:"group_id,omitempty"`
	SplitType   string        `db:"split_type" json:"split_type"`
	IsSettled   bool          `db:"is_settled" json:"is_settled"`
	Version     int64         `db:"version" json:"-"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	DeletedAt   *time.Time    `db:"deleted_at" json:"-"`
	Participants []Participant `json:"participants"`
	Payments     []Payment     `json:"payments"`
}

// Participant is one share of a bill. The creator holds an implicit row that
// absorbs any rounding remainder and is created already paid.
type Participant struct {
	ID         string     `db:"id" json:"id"`
	BillID     string     `db:"bill_id" json:"-"`
	UserID     string     `db:"user_id" json:"user_id"`
	Amount     int64      `db:"amount" json:"amount"`
	Percentage *string    `db:"percentage" json:"percentage,omitempty"`
	IsPaid     bool       `db:"is_paid" json:"is_paid"`
	PaidAt     *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	IsRejected bool       `db:"is_rejected" json:"is_rejected"`
}

// Payment is append-only; after creation only confirmations are added.
type Payment struct {
	ID            string         `db:"id" json:"id"`
	BillID        string         `db:"bill_id" json:"-"`
	FromUserID    string         `db:"from_user_id" json:"from_user_id"`
	ToUserID      string         `db:"to_user_id" json:"to_user_id"`
	Amount        int64          `db:"amount" json:"amount"`
	PaymentMethod string         `db:"payment_method" json:"payment_method"`
	Notes         string         `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	ConfirmedBy   []Confirmation `json:"confirmed_by"`
}

type Confirmation struct {
	PaymentID   string    `db:"payment_id" json:"-"`
	UserID      string    `db:"user_id" json:"user_id"`
	ConfirmedAt time.Time `db:"confirmed_at" json:"confirmed_at"`
}

// Confirmed reports whether the bill creditor has countersigned the payment.
func (p Payment) Confirmed() bool {
	for _, c := range p.ConfirmedBy {
		if c.UserID == p.ToUserID {
			return true
		}
	}
	return false
}

type Reminder struct {
	ID           string     `db:"id" json:"id"`
	SplitBillID  string     `db:"split_bill_id" json:"split_bill_id"`
	UserID       string     `db:"user_id" json:"user_id"`
	Type         string     `db:"type" json:"type"`
	Message      string     `db:"message" json:"message"`
	ScheduledFor time.Time  `db:"scheduled_for" json:"scheduled_for"`
	SentAt       *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	IsRead       bool       `db:"is_read" json:"is_read"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

type Group struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Debt is a computed obligation, never persisted. Amount is always positive.
type Debt struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Amount     int64  `json:"amount"`
}

// SettlementPlan is the minimal transaction list that zeroes out a group's
// net balances. A recommendation, not a binding transaction.
type SettlementPlan struct {
	GroupID      string           `json:"group_id"`
	Transactions []Debt           `json:"transactions"`
	NetBalances  map[string]int64 `json:"net_balances"`
}

type ParticipantSummary struct {
	UserID     string `json:"user_id"`
	AmountOwed int64  `json:"amount_owed"`
	AmountPaid int64  `json:"amount_paid"`
	Balance    int64  `json:"balance"`
	IsPaid     bool   `json:"is_paid"`
}

type PaymentSummary struct {
	TotalPaid      int64                `json:"total_paid"`
	TotalConfirmed int64                `json:"total_confirmed"`
	TotalOwed      int64                `json:"total_owed"`
	Balance        int64                `json:"balance"`
	Participants   []ParticipantSummary `json:"participants"`
}
