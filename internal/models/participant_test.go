package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseParticipant(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Participant
		wantErr bool
	}{
		{name: "registered", input: "registered:alice", want: Registered("alice")},
		{name: "guest", input: "guest:Bob", want: Guest("Bob")},
		{name: "legacy guest prefix", input: "nonRegistered:Bob", want: Guest("Bob")},
		{name: "name with colon", input: "guest:Bob:2", want: Guest("Bob:2")},
		{name: "missing prefix", input: "alice", wantErr: true},
		{name: "unknown prefix", input: "admin:alice", wantErr: true},
		{name: "empty name", input: "registered:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParticipant(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParticipantIdentity(t *testing.T) {
	if Registered("Sam") == Guest("Sam") {
		t.Error("registered and guest with the same name must differ")
	}
	if Registered("Sam") != Registered("Sam") {
		t.Error("equal registered participants must compare equal")
	}
}

func TestParticipantOrdering(t *testing.T) {
	ps := []Participant{Guest("amy"), Registered("zoe"), Guest("Bob"), Registered("carl")}
	SortParticipants(ps)

	want := []Participant{Registered("carl"), Registered("zoe"), Guest("Bob"), Guest("amy")}
	for i := range want {
		if ps[i] != want[i] {
			t.Fatalf("position %d: got %v, want %v", i, ps[i], want[i])
		}
	}
}

func TestParticipantJSON(t *testing.T) {
	data, err := json.Marshal(Guest("Bob"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"type":"guest","name":"Bob"}` {
		t.Errorf("unexpected encoding: %s", data)
	}

	var fromObject Participant
	if err := json.Unmarshal([]byte(`{"type":"registered","name":"alice"}`), &fromObject); err != nil {
		t.Fatalf("unmarshal object failed: %v", err)
	}
	if fromObject != Registered("alice") {
		t.Errorf("got %v", fromObject)
	}

	var fromString Participant
	if err := json.Unmarshal([]byte(`"nonRegistered:Bob"`), &fromString); err != nil {
		t.Fatalf("unmarshal string failed: %v", err)
	}
	if fromString != Guest("Bob") {
		t.Errorf("got %v", fromString)
	}

	var bad Participant
	if err := json.Unmarshal([]byte(`{"type":"robot","name":"x"}`), &bad); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestUniqueParticipants(t *testing.T) {
	got := UniqueParticipants([]Participant{Guest("x"), Registered("a"), Guest("x"), Registered("a")})
	if len(got) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(got))
	}
	if got[0] != Registered("a") || got[1] != Guest("x") {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestExpenseValidate(t *testing.T) {
	base := func() Expense {
		return Expense{
			Payer:        Registered("alice"),
			Amount:       1000,
			Participants: []Participant{Registered("alice"), Guest("Bob")},
			Date:         "2024-03-01",
		}
	}

	tests := []struct {
		name   string
		mutate func(e *Expense)
		want   error
	}{
		{name: "valid", mutate: func(e *Expense) {}},
		{name: "zero amount", mutate: func(e *Expense) { e.Amount = 0 }, want: ErrInvalidSplit},
		{name: "negative amount", mutate: func(e *Expense) { e.Amount = -5 }, want: ErrInvalidSplit},
		{name: "no participants", mutate: func(e *Expense) { e.Participants = nil }, want: ErrInvalidSplit},
		{name: "payer not participant", mutate: func(e *Expense) { e.Payer = Registered("carol") }, want: ErrInvalidSplit},
		{name: "bad date", mutate: func(e *Expense) { e.Date = "01/03/2024" }, want: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base()
			tt.mutate(&e)
			err := e.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNotFoundErrorIs(t *testing.T) {
	err := NotFound("expense")
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFound should match ErrNotFound")
	}
	if err.Error() != "expense not found" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if errors.Is(ErrForbidden, ErrNotFound) {
		t.Error("ErrForbidden must not match ErrNotFound")
	}
}

func TestDeletionRequestAudience(t *testing.T) {
	r := DeletionRequest{RequestedBy: "b", RequiredApprovers: []string{"c", "a"}}
	got := r.Audience()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unexpected audience: %v", got)
	}
}
