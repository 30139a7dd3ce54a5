package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ParticipantKind tags a Participant as a registered user or a guest.
type ParticipantKind uint8

const (
	// KindRegistered identifies a participant by the username of a registered user.
	KindRegistered ParticipantKind = iota + 1
	// KindGuest identifies an informally named participant without an account.
	KindGuest
)

func (k ParticipantKind) String() string {
	switch k {
	case KindRegistered:
		return "registered"
	case KindGuest:
		return "guest"
	default:
		return "unknown"
	}
}

// ParseParticipantKind parses the kind tag used on the wire and in storage.
// "nonRegistered" is accepted as an alias for guests.
func ParseParticipantKind(s string) (ParticipantKind, error) {
	switch s {
	case "registered":
		return KindRegistered, nil
	case "guest", "nonRegistered":
		return KindGuest, nil
	default:
		return 0, fmt.Errorf("%w: unknown participant type %q", ErrInvalidInput, s)
	}
}

// Participant is a tagged identity: either Registered(username) or Guest(name).
//
// Participant is comparable and is used directly as a map key. A guest and a
// registered user sharing a display name are different participants.
type Participant struct {
	Kind ParticipantKind
	Name string
}

// Registered returns the participant for a registered username.
func Registered(username string) Participant {
	return Participant{Kind: KindRegistered, Name: username}
}

// Guest returns the participant for a guest display name.
func Guest(name string) Participant {
	return Participant{Kind: KindGuest, Name: name}
}

// IsRegistered reports whether p refers to a registered user.
func (p Participant) IsRegistered() bool { return p.Kind == KindRegistered }

// IsZero reports whether p is the zero value.
func (p Participant) IsZero() bool { return p.Kind == 0 && p.Name == "" }

// String returns the tagged form, e.g. "registered:alice" or "guest:Bob".
func (p Participant) String() string {
	return p.Kind.String() + ":" + p.Name
}

// Less orders registered participants before guests, then by name.
func (p Participant) Less(q Participant) bool {
	if p.Kind != q.Kind {
		return p.Kind < q.Kind
	}
	return p.Name < q.Name
}

// Validate checks that p has a known kind and a non-blank name.
func (p Participant) Validate() error {
	if p.Kind != KindRegistered && p.Kind != KindGuest {
		return fmt.Errorf("%w: participant %q has no type", ErrInvalidInput, p.Name)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: participant name is empty", ErrInvalidInput)
	}
	return nil
}

// ParseParticipant parses the tagged string form. Accepted prefixes are
// "registered:", "guest:" and "nonRegistered:".
func ParseParticipant(s string) (Participant, error) {
	tag, name, ok := strings.Cut(s, ":")
	if !ok {
		return Participant{}, fmt.Errorf("%w: participant %q has no type prefix", ErrInvalidInput, s)
	}
	kind, err := ParseParticipantKind(tag)
	if err != nil {
		return Participant{}, err
	}
	p := Participant{Kind: kind, Name: name}
	if err := p.Validate(); err != nil {
		return Participant{}, err
	}
	return p, nil
}

type participantJSON struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// MarshalJSON encodes p as {"type": "...", "name": "..."}.
func (p Participant) MarshalJSON() ([]byte, error) {
	return json.Marshal(participantJSON{Type: p.Kind.String(), Name: p.Name})
}

// UnmarshalJSON accepts the object form or the legacy tagged string.
func (p *Participant) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseParticipant(s)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}

	var obj participantJSON
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: invalid participant: %v", ErrInvalidInput, err)
	}
	kind, err := ParseParticipantKind(obj.Type)
	if err != nil {
		return err
	}
	parsed := Participant{Kind: kind, Name: obj.Name}
	if err := parsed.Validate(); err != nil {
		return err
	}
	*p = parsed
	return nil
}

// SortParticipants sorts ps in place using Participant.Less.
func SortParticipants(ps []Participant) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
}

// UniqueParticipants returns ps without duplicates, sorted.
func UniqueParticipants(ps []Participant) []Participant {
	seen := make(map[Participant]struct{}, len(ps))
	out := make([]Participant, 0, len(ps))
	for _, p := range ps {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	SortParticipants(out)
	return out
}

// ContainsParticipant reports whether p is in ps.
func ContainsParticipant(ps []Participant, p Participant) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}
