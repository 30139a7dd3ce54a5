// Package auth issues and validates the credentials that identify an actor.
package auth

import (
	"context"

	"github.com/mmynk/splitledger/internal/models"
)

// Authenticator turns a username and credential into a registered user.
// The username it returns is the actor identity used for list membership
// and request routing.
type Authenticator interface {
	// Register creates an account. A taken username is models.ErrConflict.
	Register(ctx context.Context, username, credential string) (*models.User, error)

	Authenticate(ctx context.Context, username, credential string) (*models.User, error)

	// ValidateCredential reports a credential that would be refused by Register.
	ValidateCredential(credential string) error
}
