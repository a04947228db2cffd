package portal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"DirectoryAdmin/internal/directory"
	"DirectoryAdmin/internal/identity"
)

// ErrNotAdmin is returned when a principal without the admin claim completes
// sign-in. Whether that also raises a security notification depends on the
// request's CreatingUser flag.
var ErrNotAdmin = errors.New("access denied: admin only")

const sessionDuration = 12 * time.Hour

// Mailer delivers the access-denied notification. *config.EmailService
// satisfies it.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

type Service struct {
	ids        identity.Provider
	dir        *directory.Service
	mailer     Mailer
	adminEmail string
}

// NewService wires portal sign-in. adminEmail receives unauthorized-access
// notifications; empty disables them.
func NewService(ids identity.Provider, dir *directory.Service, mailer Mailer, adminEmail string) *Service {
	return &Service{ids: ids, dir: dir, mailer: mailer, adminEmail: adminEmail}
}

// SignIn authenticates the principal and issues a session token when it
// carries the admin claim. Non-admin principals are rejected; unless the
// sign-in belongs to a create-user workflow a notification goes out.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (string, error) {
	principal, err := s.ids.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return "", err
	}

	role := claimRole(principal)
	if role != "admin" {
		s.handleUnauthorized(principal.Email, req.CreatingUser)
		return "", ErrNotAdmin
	}

	if _, err := s.dir.RecordLogin(ctx, principal.Email, principal.ID); err != nil {
		// Login tracking is best effort; a missing directory document must
		// not lock the operator out.
		log.Println("Failed to record login:", err)
	}

	return GenerateSessionToken(principal.DisplayName, principal.Email, role, sessionDuration)
}

// AuthState is the hook the console calls whenever its authentication state
// changes. Admin principals get their login recorded; anyone else triggers
// the access-denied handling with the same suppression flag as SignIn.
func (s *Service) AuthState(ctx context.Context, req AuthStateRequest) (*AuthStateResult, error) {
	principal, err := s.ids.GetPrincipalByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	if claimRole(principal) != "admin" {
		s.handleUnauthorized(req.Email, req.CreatingUser)
		return &AuthStateResult{Admin: false}, nil
	}

	uid := req.PrincipalID
	if uid == "" {
		uid = principal.ID
	}
	if _, err := s.dir.RecordLogin(ctx, req.Email, uid); err != nil {
		log.Println("Failed to record login:", err)
	}
	return &AuthStateResult{Admin: true}, nil
}

func (s *Service) handleUnauthorized(email string, creatingUser bool) {
	if creatingUser {
		log.Printf("Non-admin sign-in by %s during user creation, notification suppressed", email)
		return
	}
	log.Printf("Access denied for non-admin principal %s", email)
	if s.adminEmail == "" {
		return
	}
	subject := "Unauthorized portal sign-in"
	body := fmt.Sprintf("A non-admin principal attempted to sign in to the admin portal: %s", email)
	if err := s.mailer.SendEmail(s.adminEmail, subject, body); err != nil {
		log.Println("Failed to send access-denied notification:", err)
	}
}

func claimRole(p *identity.Principal) string {
	if p.Claims == nil {
		return ""
	}
	role, _ := p.Claims["role"].(string)
	return role
}
