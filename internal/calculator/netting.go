package calculator

import "github.com/mmynk/splitledger/internal/models"

// Net collapses opposing debts between each pair of participants into a
// single edge for the difference, pointing from the side that owes more.
// Pairs that cancel out produce no edge. Debts are never rerouted through a
// third participant.
//
// Net is idempotent and never increases the total amount owed.
func Net(raw []models.DebtEdge) []models.DebtEdge {
	debts := make(map[pairKey]int64, len(raw))
	for _, e := range raw {
		if e.Amount <= 0 || e.Debtor == e.Creditor {
			continue
		}
		debts[pairKey{debtor: e.Debtor, creditor: e.Creditor}] += e.Amount
	}

	netted := make(map[pairKey]int64, len(debts))
	for k, forward := range debts {
		reverse := debts[pairKey{debtor: k.creditor, creditor: k.debtor}]
		if forward > reverse {
			netted[k] = forward - reverse
		}
	}
	return edgesFromPairs(netted)
}

// Involving returns the edges where p is the debtor or the creditor.
func Involving(edges []models.DebtEdge, p models.Participant) []models.DebtEdge {
	out := make([]models.DebtEdge, 0, len(edges))
	for _, e := range edges {
		if e.Involves(p) {
			out = append(out, e)
		}
	}
	return out
}
