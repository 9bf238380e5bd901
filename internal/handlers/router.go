package handlers

import (
	"net/http"

	"splitledger/internal/config"
	"splitledger/internal/db"
	"splitledger/internal/middleware"
	"splitledger/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner  db.TxRunner
	cfg       config.Config
	users     UserStore
	ledger    LedgerService
	reminders ReminderService
	audit     AuditStore
	hub       *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, ledger LedgerService, reminders ReminderService, audit AuditStore, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner:  txRunner,
		cfg:       cfg,
		users:     users,
		ledger:    ledger,
		reminders: reminders,
		audit:     audit,
		hub:       hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Operator-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})

	router.Route("/split-bills", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/", h.CreateSplitBill)
		r.Get("/{id}", h.GetSplitBill)
		r.Delete("/{id}", h.DeleteSplitBill)
		r.Get("/groups/{groupID}", h.ListGroupBills)
		r.Get("/groups/{groupID}/settlement", h.GroupSettlement)
		r.Get("/groups/{groupID}/settlement/export", h.ExportGroupSettlement)
	})

	router.Route("/payments", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/{splitBillID}/participants/{participantID}/pay", h.PayParticipant)
		r.Post("/{splitBillID}/participants/{participantID}/reject", h.RejectParticipant)
		r.Post("/{splitBillID}/payments/{paymentID}/confirm", h.ConfirmPayment)
		r.Get("/{splitBillID}/summary", h.PaymentSummary)
		r.Post("/{splitBillID}/reminders", h.CreateManualReminder)
	})

	router.Route("/reminders", func(r chi.Router) {
		r.With(middleware.Auth(h.cfg.JWTSecret)).Post("/schedule/{splitBillID}", h.ScheduleReminders)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/my-reminders", h.MyReminders)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Put("/{splitBillID}/reminder/{reminderID}/read", h.MarkReminderRead)
		r.With(middleware.RequireOperator(h.cfg.OperatorToken)).Post("/process-due", h.ProcessDueReminders)
	})

	router.Get("/ws/events", h.WSEvents)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
