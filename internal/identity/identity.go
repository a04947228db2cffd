// Package identity manages authentication principals. The directory layer
// only depends on the Provider interface; the Mongo implementation keeps
// principals in their own collection with bcrypt secret hashes.
package identity

import (
	"context"
	"errors"
)

var (
	// ErrPrincipalNotFound is returned when no principal matches the given ID or email.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrEmailTaken is returned by CreatePrincipal when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrBadCredentials is returned by Authenticate on an unknown email or wrong secret.
	ErrBadCredentials = errors.New("invalid credentials")
	// ErrDisabled is returned by Authenticate for a disabled principal.
	ErrDisabled = errors.New("principal disabled")
)

// Principal is an authenticated identity referenced by its opaque ID.
type Principal struct {
	ID          string
	Email       string
	DisplayName string
	Disabled    bool
	Claims      map[string]any
}

// Fields carries the mutable attributes of a principal. Nil means unchanged.
type Fields struct {
	Email       *string
	DisplayName *string
	Secret      *string
}

// Mailer sends the credential-reset message. *config.EmailService satisfies it.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

type Provider interface {
	CreatePrincipal(ctx context.Context, email, secret, displayName string) (string, error)
	Authenticate(ctx context.Context, email, secret string) (*Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	SetClaims(ctx context.Context, principalID string, claims map[string]any) error
	UpdatePrincipal(ctx context.Context, principalID string, fields Fields) error
	SetDisabled(ctx context.Context, principalID string, disabled bool) error
	DeletePrincipal(ctx context.Context, principalID string) error
	SendCredentialReset(ctx context.Context, email string) error
}
