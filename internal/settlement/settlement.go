// Package settlement is the pure debt resolver: per-bill debts, payment
// summaries and the group netting plan. It owns no state and reads ledger
// snapshots at query time; results are recommendations, never persisted.
package settlement

import (
	"sort"

	"splitledger/internal/models"
)

// Debts lists what is still owed on a single bill. Every non-rejected,
// unpaid participant owes their share to the bill creator. A self-reported
// payment already drops the participant out, pending confirmation, so the
// same share is never counted both as a debt and as a payment in flight.
func Debts(bill models.SplitBill) []models.Debt {
	debts := make([]models.Debt, 0, len(bill.Participants))
	for _, p := range bill.Participants {
		if p.UserID == bill.CreatedBy || p.IsPaid || p.IsRejected {
			continue
		}
		debts = append(debts, models.Debt{
			FromUserID: p.UserID,
			ToUserID:   bill.CreatedBy,
			Amount:     p.Amount,
		})
	}
	return debts
}

// Summary derives the bill's payment totals from participant and payment
// fields. The creator's implicit share is excluded from totalOwed.
// TotalConfirmed counts only payments the creditor has countersigned, so
// the gap to TotalPaid is the self-reported money still awaiting review.
func Summary(bill models.SplitBill) models.PaymentSummary {
	paidByUser := make(map[string]int64)
	var totalPaid, totalConfirmed int64
	for _, payment := range bill.Payments {
		paidByUser[payment.FromUserID] += payment.Amount
		totalPaid += payment.Amount
		if payment.Confirmed() {
			totalConfirmed += payment.Amount
		}
	}

	summary := models.PaymentSummary{TotalPaid: totalPaid, TotalConfirmed: totalConfirmed}
	for _, p := range bill.Participants {
		if p.UserID == bill.CreatedBy {
			continue
		}
		paid := paidByUser[p.UserID]
		summary.TotalOwed += p.Amount
		summary.Participants = append(summary.Participants, models.ParticipantSummary{
			UserID:     p.UserID,
			AmountOwed: p.Amount,
			AmountPaid: paid,
			Balance:    p.Amount - paid,
			IsPaid:     p.IsPaid,
		})
	}
	summary.Balance = summary.TotalOwed - summary.TotalPaid
	return summary
}

// NetBalances folds every bill's outstanding debts into one net figure per
// user: positive means the user is owed money, negative means they owe.
func NetBalances(bills []models.SplitBill) map[string]int64 {
	balances := make(map[string]int64)
	for _, bill := range bills {
		for _, debt := range Debts(bill) {
			balances[debt.FromUserID] -= debt.Amount
			balances[debt.ToUserID] += debt.Amount
		}
	}
	for userID, balance := range balances {
		if balance == 0 {
			delete(balances, userID)
		}
	}
	return balances
}

type userBalance struct {
	userID  string
	balance int64
}

// Plan reduces the net balances to a minimal transaction list with the
// classic greedy netting: repeatedly pay the largest creditor from the
// largest debtor. The result never exceeds (non-zero users - 1)
// transactions and its per-user net effect equals the input balances.
func Plan(balances map[string]int64) []models.Debt {
	var creditors, debtors []userBalance
	for userID, balance := range balances {
		switch {
		case balance > 0:
			creditors = append(creditors, userBalance{userID: userID, balance: balance})
		case balance < 0:
			debtors = append(debtors, userBalance{userID: userID, balance: -balance})
		}
	}
	sortByBalance(creditors)
	sortByBalance(debtors)

	var plan []models.Debt
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		amount := creditors[i].balance
		if debtors[j].balance < amount {
			amount = debtors[j].balance
		}
		if amount > 0 {
			plan = append(plan, models.Debt{
				FromUserID: debtors[j].userID,
				ToUserID:   creditors[i].userID,
				Amount:     amount,
			})
		}
		creditors[i].balance -= amount
		debtors[j].balance -= amount
		if creditors[i].balance == 0 {
			i++
		}
		if debtors[j].balance == 0 {
			j++
		}
	}
	return plan
}

// GroupPlan is the full group settlement over a snapshot of bills.
func GroupPlan(groupID string, bills []models.SplitBill) models.SettlementPlan {
	balances := NetBalances(bills)
	return models.SettlementPlan{
		GroupID:      groupID,
		Transactions: Plan(balances),
		NetBalances:  balances,
	}
}

// Descending by balance, user id as a deterministic tie-break.
func sortByBalance(users []userBalance) {
	sort.Slice(users, func(a, b int) bool {
		if users[a].balance != users[b].balance {
			return users[a].balance > users[b].balance
		}
		return users[a].userID < users[b].userID
	})
}

// Settled reports whether every non-rejected participant has paid. Rejected
// participants are dispute flags resolved out-of-band and do not hold the
// bill open.
func Settled(participants []models.Participant) bool {
	for _, p := range participants {
		if p.IsRejected {
			continue
		}
		if !p.IsPaid {
			return false
		}
	}
	return true
}
