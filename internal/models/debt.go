package models

// DebtEdge states that Debtor owes Creditor Amount minor units.
// Edges are derived from active expenses and never persisted.
type DebtEdge struct {
	Debtor   Participant `json:"debtor"`
	Creditor Participant `json:"creditor"`
	Amount   int64       `json:"amount"`
}

// Involves reports whether p is either side of the edge.
func (e DebtEdge) Involves(p Participant) bool {
	return e.Debtor == p || e.Creditor == p
}

// Balance is the per-participant summary of a list.
type Balance struct {
	Participant Participant `json:"participant"`
	// TotalPaid is the sum of amounts this participant paid.
	TotalPaid int64 `json:"total_paid"`
	// TotalOwed is the sum of this participant's shares, including shares of
	// their own payments.
	TotalOwed int64 `json:"total_owed"`
	// NetBalance is TotalPaid - TotalOwed. Positive means the participant is owed money.
	NetBalance int64 `json:"net_balance"`
}
