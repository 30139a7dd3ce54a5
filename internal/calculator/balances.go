package calculator

import (
	"fmt"
	"sort"

	"github.com/mmynk/splitledger/internal/models"
)

// CalculateBalances aggregates who paid what and who owes what across the
// active expenses of a list. Every participant in members gets an entry,
// even with no activity.
//
// Algorithm:
// - For each expense: payer contributed +amount, each participant owes their share
// - Aggregate: net_balance = total_paid - total_owed
//
// The net balances always sum to zero.
func CalculateBalances(expenses []models.Expense, members []models.Participant) ([]models.Balance, error) {
	balances := make(map[models.Participant]*models.Balance)
	get := func(p models.Participant) *models.Balance {
		b, ok := balances[p]
		if !ok {
			b = &models.Balance{Participant: p}
			balances[p] = b
		}
		return b
	}

	for _, p := range members {
		get(p)
	}

	for i := range expenses {
		e := &expenses[i]
		if e.IsDeleted() {
			continue
		}
		shares, err := EqualShares(e.Amount, e.Participants)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate split for expense %s: %w", e.ID, err)
		}
		get(e.Payer).TotalPaid += e.Amount
		for _, s := range shares {
			get(s.Participant).TotalOwed += s.Amount
		}
	}

	out := make([]models.Balance, 0, len(balances))
	for _, b := range balances {
		b.NetBalance = b.TotalPaid - b.TotalOwed
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant.Less(out[j].Participant) })
	return out, nil
}
