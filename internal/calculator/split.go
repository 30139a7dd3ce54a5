package calculator

import (
	"fmt"

	"github.com/mmynk/splitledger/internal/models"
)

// Share is one participant's portion of an expense, in minor units.
type Share struct {
	Participant models.Participant
	Amount      int64
}

// EqualShares divides amount equally among participants.
// Duplicates are ignored. The remainder is handed out one minor unit at a time
// to participants in sorted order, so the shares always add up to amount.
func EqualShares(amount int64, participants []models.Participant) ([]Share, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrInvalidSplit)
	}
	unique := models.UniqueParticipants(participants)
	if len(unique) == 0 {
		return nil, fmt.Errorf("%w: must have at least one participant", models.ErrInvalidSplit)
	}

	n := int64(len(unique))
	base := amount / n
	remainder := amount % n

	shares := make([]Share, len(unique))
	for i, p := range unique {
		shares[i] = Share{Participant: p, Amount: base}
		if int64(i) < remainder {
			shares[i].Amount++
		}
	}
	return shares, nil
}

// ResolveSplit returns what each non-payer participant owes the payer of e.
// Participants whose share rounds down to zero are left out. The values sum
// to the amount minus the payer's own share.
func ResolveSplit(e *models.Expense) (map[models.Participant]int64, error) {
	if !models.ContainsParticipant(e.Participants, e.Payer) {
		return nil, fmt.Errorf("%w: payer %s is not a participant", models.ErrInvalidSplit, e.Payer)
	}
	shares, err := EqualShares(e.Amount, e.Participants)
	if err != nil {
		return nil, err
	}

	owed := make(map[models.Participant]int64, len(shares))
	for _, s := range shares {
		if s.Participant == e.Payer || s.Amount == 0 {
			continue
		}
		owed[s.Participant] = s.Amount
	}
	return owed, nil
}
