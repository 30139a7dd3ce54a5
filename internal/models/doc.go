// Package models defines the core domain models for the ledger.
//
// # Identities
//
// Every person on a list is a Participant: either a registered user (known by
// username) or a guest (known by a free-form display name). The two are never
// equal, even when the names match.
//
// # Lists and expenses
//
//   - ExpenseList: a named ledger owned by a registered user
//   - Expense: one payment by a participant, split equally among participants
//   - Category, ChangelogEntry: per-list metadata
//
// Amounts are integers in the minor unit of the list currency (cents for EUR).
//
// # Consent
//
// ShareRequest and DeletionRequest carry the state of operations that need
// agreement from other registered users before they take effect.
//
// # Design Principles
//
// 1. **Value identities**: Participant is comparable and used as a map key
// 2. **Derived debts**: DebtEdge values are computed, never stored
// 3. **Avoid circular references**: Use ID strings instead of pointers for relationships
package models
