package calculator

import (
	"testing"

	"github.com/mmynk/splitledger/internal/models"
)

func TestCalculateBalances(t *testing.T) {
	expenses := []models.Expense{
		expense(alice, 100, alice, bob),
		expense(bob, 40, alice, bob),
	}

	balances, err := CalculateBalances(expenses, []models.Participant{alice, bob, dave})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balances) != 3 {
		t.Fatalf("expected 3 balances, got %d", len(balances))
	}

	byName := make(map[models.Participant]models.Balance)
	var sum int64
	for _, b := range balances {
		byName[b.Participant] = b
		sum += b.NetBalance
	}

	if sum != 0 {
		t.Errorf("net balances sum to %d, want 0", sum)
	}
	if a := byName[alice]; a.TotalPaid != 100 || a.TotalOwed != 70 || a.NetBalance != 30 {
		t.Errorf("alice = %+v", a)
	}
	if b := byName[bob]; b.TotalPaid != 40 || b.TotalOwed != 70 || b.NetBalance != -30 {
		t.Errorf("bob = %+v", b)
	}
	if d := byName[dave]; d.TotalPaid != 0 || d.NetBalance != 0 {
		t.Errorf("dave = %+v", d)
	}
}
