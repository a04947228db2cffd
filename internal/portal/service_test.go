package portal

import (
	"context"
	"errors"
	"testing"

	"DirectoryAdmin/internal/directory"
	"DirectoryAdmin/internal/identity"
	"DirectoryAdmin/internal/store"
)

type fakeMailer struct {
	sent []string
}

func (m *fakeMailer) SendEmail(to, subject, body string) error {
	m.sent = append(m.sent, to)
	return nil
}

type portalFixture struct {
	svc    *Service
	ids    *identity.MemProvider
	store  *store.MemStore
	mailer *fakeMailer
}

func newPortalFixture(t *testing.T) *portalFixture {
	t.Helper()
	st := store.NewMemStore()
	ids := identity.NewMemProvider()
	dir := directory.NewService(st, ids)
	mailer := &fakeMailer{}
	return &portalFixture{
		svc:    NewService(ids, dir, mailer, "security@school.edu"),
		ids:    ids,
		store:  st,
		mailer: mailer,
	}
}

func (f *portalFixture) addPrincipal(t *testing.T, email, password, role string) string {
	t.Helper()
	ctx := context.Background()
	id, err := f.ids.CreatePrincipal(ctx, email, password, "Principal")
	if err != nil {
		t.Fatalf("create principal: %v", err)
	}
	if role != "" {
		if err := f.ids.SetClaims(ctx, id, map[string]any{"role": role}); err != nil {
			t.Fatalf("set claims: %v", err)
		}
	}
	return id
}

func TestSignInAdmin(t *testing.T) {
	ctx := context.Background()
	f := newPortalFixture(t)
	id := f.addPrincipal(t, "admin@school.edu", "secret123", "admin")

	// Directory record so the login lands somewhere observable.
	f.store.Set(ctx, "users", "admin_school_edu", store.Document{
		"email": "admin@school.edu",
		"role":  "teacher",
		"uid":   id,
	})

	token, err := f.svc.SignIn(ctx, SignInRequest{Email: "admin@school.edu", Password: "secret123"})
	if err != nil {
		t.Fatalf("sign-in error: %v", err)
	}
	claims, err := ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("token validation: %v", err)
	}
	if claims.Email != "admin@school.edu" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	doc, _ := f.store.Get(ctx, "users", "admin_school_edu")
	if doc == nil || doc["lastLogin"] == nil {
		t.Fatalf("login was not recorded: %v", doc)
	}
}

func TestSignInAdminWithoutDirectoryRecord(t *testing.T) {
	// A missing directory document must not block the operator.
	f := newPortalFixture(t)
	f.addPrincipal(t, "admin@school.edu", "secret123", "admin")

	if _, err := f.svc.SignIn(context.Background(), SignInRequest{
		Email: "admin@school.edu", Password: "secret123",
	}); err != nil {
		t.Fatalf("sign-in should succeed without a directory record: %v", err)
	}
}

func TestSignInNonAdminNotifies(t *testing.T) {
	f := newPortalFixture(t)
	f.addPrincipal(t, "teacher@school.edu", "secret123", "teacher")

	_, err := f.svc.SignIn(context.Background(), SignInRequest{
		Email: "teacher@school.edu", Password: "secret123",
	})
	if !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if len(f.mailer.sent) != 1 || f.mailer.sent[0] != "security@school.edu" {
		t.Fatalf("expected one notification to the admin address, got %v", f.mailer.sent)
	}
}

func TestSignInNonAdminSuppressedDuringUserCreation(t *testing.T) {
	f := newPortalFixture(t)
	f.addPrincipal(t, "new@school.edu", "secret123", "student")

	_, err := f.svc.SignIn(context.Background(), SignInRequest{
		Email: "new@school.edu", Password: "secret123", CreatingUser: true,
	})
	if !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatalf("notification must be suppressed during user creation, got %v", f.mailer.sent)
	}
}

func TestSignInBadCredentials(t *testing.T) {
	f := newPortalFixture(t)
	f.addPrincipal(t, "admin@school.edu", "secret123", "admin")

	if _, err := f.svc.SignIn(context.Background(), SignInRequest{
		Email: "admin@school.edu", Password: "wrong",
	}); !errors.Is(err, identity.ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatalf("failed authentication must not notify, got %v", f.mailer.sent)
	}
}

func TestAuthStateAdmin(t *testing.T) {
	ctx := context.Background()
	f := newPortalFixture(t)
	id := f.addPrincipal(t, "admin@school.edu", "secret123", "admin")
	f.store.Set(ctx, "users", "admin_school_edu", store.Document{
		"email": "admin@school.edu",
		"role":  "teacher",
		"uid":   id,
	})

	res, err := f.svc.AuthState(ctx, AuthStateRequest{Email: "admin@school.edu", PrincipalID: id})
	if err != nil {
		t.Fatalf("auth state error: %v", err)
	}
	if !res.Admin {
		t.Fatalf("expected admin=true")
	}
	doc, _ := f.store.Get(ctx, "users", "admin_school_edu")
	if doc == nil || doc["lastLogin"] == nil {
		t.Fatalf("login was not recorded: %v", doc)
	}
}

func TestAuthStateNonAdmin(t *testing.T) {
	ctx := context.Background()
	f := newPortalFixture(t)
	f.addPrincipal(t, "parent@school.edu", "secret123", "parent")

	res, err := f.svc.AuthState(ctx, AuthStateRequest{Email: "parent@school.edu"})
	if err != nil {
		t.Fatalf("auth state error: %v", err)
	}
	if res.Admin {
		t.Fatalf("expected admin=false")
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected one notification, got %v", f.mailer.sent)
	}

	// Same non-admin state during user creation stays silent.
	if _, err := f.svc.AuthState(ctx, AuthStateRequest{
		Email: "parent@school.edu", CreatingUser: true,
	}); err != nil {
		t.Fatalf("auth state error: %v", err)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("creating-user state must not notify again, got %v", f.mailer.sent)
	}
}

func TestAuthStateUnknownPrincipal(t *testing.T) {
	f := newPortalFixture(t)
	if _, err := f.svc.AuthState(context.Background(), AuthStateRequest{
		Email: "ghost@school.edu",
	}); !errors.Is(err, identity.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := GenerateSessionToken("Admin", "admin@school.edu", "admin", sessionDuration)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	claims, err := ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("validate error: %v", err)
	}
	if claims.Name != "Admin" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := ValidateSessionToken(token + "tampered"); err == nil {
		t.Fatalf("tampered token should fail validation")
	}
}
