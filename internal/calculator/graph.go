package calculator

import (
	"fmt"
	"sort"

	"github.com/mmynk/splitledger/internal/models"
)

// pairKey identifies an ordered (debtor, creditor) pair.
type pairKey struct {
	debtor   models.Participant
	creditor models.Participant
}

// BuildRawGraph turns active expenses into raw debts: every non-payer
// participant owes the payer their share. Edges for the same ordered pair are
// summed. The result is sorted by debtor, then creditor.
func BuildRawGraph(expenses []models.Expense) ([]models.DebtEdge, error) {
	// Track debts: debts[debtor→creditor] = amount
	debts := make(map[pairKey]int64)

	for i := range expenses {
		e := &expenses[i]
		if e.IsDeleted() {
			continue
		}
		owed, err := ResolveSplit(e)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve split for expense %s: %w", e.ID, err)
		}
		for participant, amount := range owed {
			debts[pairKey{debtor: participant, creditor: e.Payer}] += amount
		}
	}

	return edgesFromPairs(debts), nil
}

func edgesFromPairs(debts map[pairKey]int64) []models.DebtEdge {
	edges := make([]models.DebtEdge, 0, len(debts))
	for k, amount := range debts {
		if amount <= 0 {
			continue
		}
		edges = append(edges, models.DebtEdge{Debtor: k.debtor, Creditor: k.creditor, Amount: amount})
	}
	SortEdges(edges)
	return edges
}

// SortEdges orders edges by debtor, then creditor.
func SortEdges(edges []models.DebtEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Debtor != edges[j].Debtor {
			return edges[i].Debtor.Less(edges[j].Debtor)
		}
		return edges[i].Creditor.Less(edges[j].Creditor)
	})
}

// TotalAmount sums the amounts of edges.
func TotalAmount(edges []models.DebtEdge) int64 {
	var total int64
	for _, e := range edges {
		total += e.Amount
	}
	return total
}
