package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"splitledger/internal/models"
	"splitledger/internal/store"
)

func openBill() models.SplitBill {
	return models.SplitBill{
		ID:        "bill-1",
		CreatedBy: "ana",
		Participants: []models.Participant{
			{UserID: "ana", IsPaid: true},
			{UserID: "ben"},
			{UserID: "coco", IsPaid: true},
			{UserID: "dan", IsRejected: true},
		},
	}
}

func TestScheduleTargetsOutstandingParticipants(t *testing.T) {
	var created []store.ReminderInput
	service := NewReminderService(fakeTxRunner{}, stubReminderStore{
		createFn: func(_ context.Context, _ store.Execer, input store.ReminderInput) error {
			created = append(created, input)
			return nil
		},
	}, stubBillStore{
		getByIDFn: func(_ context.Context, _ string) (models.SplitBill, error) {
			return openBill(), nil
		},
	}, &stubHub{})

	reminders, err := service.Schedule(context.Background(), "bill-1", "ana", ScheduleRequest{
		Type:    models.ReminderPaymentDue,
		Message: "pay up",
		Offsets: []time.Duration{time.Hour, 48 * time.Hour},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only ben is unpaid and not rejected: one reminder per offset.
	if len(created) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(created))
	}
	for _, input := range created {
		if input.UserID != "ben" || input.Type != models.ReminderPaymentDue {
			t.Fatalf("unexpected reminder: %#v", input)
		}
	}
	if len(reminders) != 2 {
		t.Fatalf("expected 2 reminders back, got %d", len(reminders))
	}
}

func TestScheduleRejectsBadRequests(t *testing.T) {
	service := NewReminderService(fakeTxRunner{}, stubReminderStore{}, stubBillStore{}, &stubHub{})

	_, err := service.Schedule(context.Background(), "bill-1", "ana", ScheduleRequest{
		Type:    "nonsense",
		Offsets: []time.Duration{time.Hour},
	})
	if !errors.Is(err, ErrInvalidReminder) {
		t.Fatalf("expected ErrInvalidReminder, got %v", err)
	}

	_, err = service.Schedule(context.Background(), "bill-1", "ana", ScheduleRequest{
		Type: models.ReminderPaymentDue,
	})
	if !errors.Is(err, ErrInvalidReminder) {
		t.Fatalf("expected ErrInvalidReminder for empty offsets, got %v", err)
	}
}

func TestScheduleRequiresStanding(t *testing.T) {
	service := NewReminderService(fakeTxRunner{}, stubReminderStore{}, stubBillStore{
		getByIDFn: func(_ context.Context, _ string) (models.SplitBill, error) {
			return openBill(), nil
		},
	}, &stubHub{})

	_, err := service.Schedule(context.Background(), "bill-1", "stranger", ScheduleRequest{
		Type:    models.ReminderPaymentDue,
		Offsets: []time.Duration{time.Hour},
	})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestCreateManualCreatorOnly(t *testing.T) {
	service := NewReminderService(fakeTxRunner{}, stubReminderStore{}, stubBillStore{
		getByIDFn: func(_ context.Context, _ string) (models.SplitBill, error) {
			return openBill(), nil
		},
	}, &stubHub{})

	_, err := service.CreateManual(context.Background(), "bill-1", "ben", "coco", models.ReminderSettlement, "settle up")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}

	_, err = service.CreateManual(context.Background(), "bill-1", "ana", "stranger", models.ReminderSettlement, "settle up")
	if !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}

	if _, err := service.CreateManual(context.Background(), "bill-1", "ana", "ben", models.ReminderSettlement, "settle up"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkReadScoping(t *testing.T) {
	reminder := models.Reminder{ID: "rem-1", SplitBillID: "bill-1", UserID: "ben"}
	service := NewReminderService(fakeTxRunner{}, stubReminderStore{
		getByIDFn: func(_ context.Context, reminderID string) (models.Reminder, error) {
			if reminderID != "rem-1" {
				return models.Reminder{}, sql.ErrNoRows
			}
			return reminder, nil
		},
	}, stubBillStore{}, &stubHub{})

	if err := service.MarkRead(context.Background(), "bill-1", "rem-1", "ben"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.MarkRead(context.Background(), "bill-1", "missing", "ben"); !errors.Is(err, ErrReminderNotFound) {
		t.Fatalf("expected ErrReminderNotFound, got %v", err)
	}
	if err := service.MarkRead(context.Background(), "other-bill", "rem-1", "ben"); !errors.Is(err, ErrReminderNotFound) {
		t.Fatalf("expected ErrReminderNotFound for bill mismatch, got %v", err)
	}
	if err := service.MarkRead(context.Background(), "bill-1", "rem-1", "coco"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for foreign reminder, got %v", err)
	}
}

func TestProcessDueDeliversClaimedOnly(t *testing.T) {
	hub := &stubHub{}
	service := NewReminderService(fakeTxRunner{}, stubReminderStore{
		listDueFn: func(_ context.Context, _ time.Time, limit int) ([]models.Reminder, error) {
			if limit != dueBatchSize {
				t.Fatalf("expected batch size %d, got %d", dueBatchSize, limit)
			}
			return []models.Reminder{
				{ID: "rem-1", UserID: "ben"},
				{ID: "rem-2", UserID: "coco"},
				{ID: "rem-3", UserID: "dan"},
			}, nil
		},
		claimFn: func(_ context.Context, reminderID string, _ time.Time) (int64, error) {
			if reminderID == "rem-2" {
				// A concurrent sweep got there first.
				return 0, nil
			}
			return 1, nil
		},
	}, stubBillStore{}, hub)

	sent, err := service.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 deliveries, got %d", sent)
	}
	if len(hub.reminderUsers) != 2 || hub.reminderUsers[0] != "ben" || hub.reminderUsers[1] != "dan" {
		t.Fatalf("unexpected recipients: %#v", hub.reminderUsers)
	}
}

func TestProcessDueSkipsFailedClaims(t *testing.T) {
	hub := &stubHub{}
	service := NewReminderService(fakeTxRunner{}, stubReminderStore{
		listDueFn: func(_ context.Context, _ time.Time, _ int) ([]models.Reminder, error) {
			return []models.Reminder{{ID: "rem-1", UserID: "ben"}}, nil
		},
		claimFn: func(_ context.Context, _ string, _ time.Time) (int64, error) {
			return 0, errors.New("connection reset")
		},
	}, stubBillStore{}, hub)

	sent, err := service.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("a failed claim must not abort the sweep: %v", err)
	}
	if sent != 0 || len(hub.reminderUsers) != 0 {
		t.Fatalf("expected nothing delivered, got %d sent", sent)
	}
}

func TestProcessDueRepeatSweepSendsNothing(t *testing.T) {
	hub := &stubHub{}
	service := NewReminderService(fakeTxRunner{}, stubReminderStore{
		listDueFn: func(_ context.Context, _ time.Time, _ int) ([]models.Reminder, error) {
			return nil, nil
		},
	}, stubBillStore{}, hub)

	sent, err := service.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 0 {
		t.Fatalf("expected 0 deliveries, got %d", sent)
	}
}
