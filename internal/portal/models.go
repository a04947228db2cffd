package portal

import "github.com/golang-jwt/jwt/v5"

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// CreatingUser marks sign-ins that happen transiently while an operator
	// creates a new account; the access-denied notification is suppressed
	// for them. It is a per-request flag, never process state.
	CreatingUser bool `json:"creatingUser"`
}

type AuthStateRequest struct {
	Email        string `json:"email"`
	PrincipalID  string `json:"uid"`
	CreatingUser bool   `json:"creatingUser"`
}

type AuthStateResult struct {
	Admin bool `json:"admin"`
}

// SessionClaims are carried in the portal session token.
type SessionClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}
