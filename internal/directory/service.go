package directory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"DirectoryAdmin/internal/identity"
	"DirectoryAdmin/internal/store"
)

const usersCollection = "users"

// Service owns every operation that touches directory records. Writes fan
// out to all physical copies of a record: the email-key document, the
// principal-id fallback document, and the role collection entry. Copies are
// not written transactionally; a failed fan-out leaves already-applied
// writes in place and the repair passes converge the rest.
type Service struct {
	store store.Store
	ids   identity.Provider
	now   func() time.Time
}

func NewService(st store.Store, ids identity.Provider) *Service {
	return &Service{store: st, ids: ids, now: time.Now}
}

type CreateInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

type CreateResult struct {
	PrincipalID string  `json:"uid"`
	EmailKey    string  `json:"emailKey"`
	Record      *Record `json:"userData"`
}

// Create registers the principal, then writes the record under both the
// email key and the principal id, in users and in the role collection.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if !in.Role.Valid() {
		return nil, fmt.Errorf("role %q: %w", in.Role, ErrInvalidRole)
	}

	uid, err := s.ids.CreatePrincipal(ctx, in.Email, in.Password, in.Name)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return nil, fmt.Errorf("%s: %w", in.Email, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create principal: %w", err)
	}
	if err := s.ids.SetClaims(ctx, uid, map[string]any{"role": string(in.Role)}); err != nil {
		return nil, fmt.Errorf("set claims: %w", err)
	}

	rec := NewRecord(in.Email, in.Name, in.Role, uid, s.now())
	doc := docFromRecord(rec)
	emailKey := DeriveKey(in.Email)

	for _, target := range []struct{ collection, key string }{
		{usersCollection, emailKey},
		{usersCollection, uid},
		{in.Role.Collection(), emailKey},
		{in.Role.Collection(), uid},
	} {
		if err := s.store.Set(ctx, target.collection, target.key, doc); err != nil {
			return nil, fmt.Errorf("write %s/%s: %w", target.collection, target.key, err)
		}
	}
	log.Printf("Created user %s (uid=%s, key=%s)", in.Email, uid, emailKey)
	return &CreateResult{PrincipalID: uid, EmailKey: emailKey, Record: rec}, nil
}

type UpdateInput struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Update merges the supplied fields into the record. An email change is a
// move: the record is written under the new derived key and the old users
// document is deleted. A role change relocates the role collection entry.
func (s *Service) Update(ctx context.Context, originalEmail string, in UpdateInput) (*Record, error) {
	oldKey := DeriveKey(originalEmail)
	doc, err := s.store.Get(ctx, usersCollection, oldKey)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", oldKey, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%s: %w", originalEmail, ErrNotFound)
	}
	rec := recordFromDoc(doc)
	oldRole := rec.Role

	if in.Role != "" {
		if !in.Role.Valid() {
			return nil, fmt.Errorf("role %q: %w", in.Role, ErrInvalidRole)
		}
		rec.Role = in.Role
	}
	if in.Name != "" {
		rec.Name = in.Name
	}
	if in.Email != "" {
		rec.Email = in.Email
	}
	rec.applyRoleDefaults()
	rec.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	newKey := DeriveKey(rec.Email)
	newDoc := docFromRecord(rec)

	if err := s.store.Set(ctx, usersCollection, newKey, newDoc); err != nil {
		return nil, fmt.Errorf("write %s: %w", newKey, err)
	}
	if newKey != oldKey {
		if err := s.store.Delete(ctx, usersCollection, oldKey); err != nil {
			return nil, fmt.Errorf("delete %s: %w", oldKey, err)
		}
	}
	if rec.PrincipalID != "" && rec.PrincipalID != newKey {
		if err := s.store.Set(ctx, usersCollection, rec.PrincipalID, newDoc); err != nil {
			return nil, fmt.Errorf("write uid copy: %w", err)
		}
	}

	// Relocate the role collection entry. A role change prunes the stale
	// entry from the old collection, same as the cleanup pass does for one
	// record.
	if oldRole.Valid() && (oldRole != rec.Role || newKey != oldKey) {
		if err := s.store.Delete(ctx, oldRole.Collection(), oldKey); err != nil {
			return nil, fmt.Errorf("prune %s/%s: %w", oldRole.Collection(), oldKey, err)
		}
	}
	if oldRole != rec.Role && rec.PrincipalID != "" && oldRole.Valid() {
		if err := s.store.Delete(ctx, oldRole.Collection(), rec.PrincipalID); err != nil {
			return nil, fmt.Errorf("prune %s uid copy: %w", oldRole.Collection(), err)
		}
	}
	if err := s.store.Set(ctx, rec.Role.Collection(), newKey, newDoc); err != nil {
		return nil, fmt.Errorf("write %s/%s: %w", rec.Role.Collection(), newKey, err)
	}
	if rec.PrincipalID != "" && rec.PrincipalID != newKey {
		if err := s.store.Set(ctx, rec.Role.Collection(), rec.PrincipalID, newDoc); err != nil {
			return nil, fmt.Errorf("write %s uid copy: %w", rec.Role.Collection(), err)
		}
	}

	if rec.PrincipalID != "" {
		fields := identity.Fields{}
		if in.Name != "" {
			fields.DisplayName = &rec.Name
		}
		if in.Email != "" && in.Email != originalEmail {
			fields.Email = &rec.Email
		}
		if err := s.ids.UpdatePrincipal(ctx, rec.PrincipalID, fields); err != nil &&
			!errors.Is(err, identity.ErrPrincipalNotFound) {
			return nil, fmt.Errorf("update principal: %w", err)
		}
	}
	return rec, nil
}

// ChangePassword rotates the principal secret and touches updatedAt on every
// users copy.
func (s *Service) ChangePassword(ctx context.Context, email, password string) error {
	emailKey := DeriveKey(email)
	doc, err := s.store.Get(ctx, usersCollection, emailKey)
	if err != nil {
		return fmt.Errorf("load %s: %w", emailKey, err)
	}
	if doc == nil {
		return fmt.Errorf("%s: %w", email, ErrNotFound)
	}
	uid := stringField(doc, "uid")
	if uid == "" {
		return fmt.Errorf("principal not linked for %s: %w", email, ErrNotFound)
	}

	if err := s.ids.UpdatePrincipal(ctx, uid, identity.Fields{Secret: &password}); err != nil {
		return fmt.Errorf("update principal: %w", err)
	}

	touch := store.Document{"updatedAt": s.now().UTC().Format(time.RFC3339)}
	if err := s.store.Update(ctx, usersCollection, emailKey, touch); err != nil {
		return fmt.Errorf("touch %s: %w", emailKey, err)
	}
	if uid != emailKey {
		if err := s.store.Update(ctx, usersCollection, uid, touch); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("touch uid copy: %w", err)
		}
	}
	log.Println("Password updated for:", email)
	return nil
}

// SetDisabled flips the disabled flag on the principal and every known copy
// of the record, including the role collection entry.
func (s *Service) SetDisabled(ctx context.Context, email string, disabled bool) error {
	emailKey := DeriveKey(email)
	doc, err := s.store.Get(ctx, usersCollection, emailKey)
	if err != nil {
		return fmt.Errorf("load %s: %w", emailKey, err)
	}
	if doc == nil {
		return fmt.Errorf("%s: %w", email, ErrNotFound)
	}

	uid := stringField(doc, "uid")
	if uid != "" {
		if err := s.ids.SetDisabled(ctx, uid, disabled); err != nil &&
			!errors.Is(err, identity.ErrPrincipalNotFound) {
			return fmt.Errorf("disable principal: %w", err)
		}
	}

	fields := store.Document{
		"disabled":  disabled,
		"updatedAt": s.now().UTC().Format(time.RFC3339),
	}
	if err := s.store.Update(ctx, usersCollection, emailKey, fields); err != nil {
		return fmt.Errorf("update %s: %w", emailKey, err)
	}
	if uid != "" && uid != emailKey {
		if err := s.store.Update(ctx, usersCollection, uid, fields); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("update uid copy: %w", err)
		}
	}
	if role := Role(stringField(doc, "role")); role.Valid() {
		if err := s.store.Update(ctx, role.Collection(), emailKey, fields); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("update %s/%s: %w", role.Collection(), emailKey, err)
		}
	}
	log.Printf("User %s: disabled=%v", email, disabled)
	return nil
}

// Delete removes the principal and both users copies. The role collection
// entry is intentionally left behind; the cleanup pass treats role
// collections as a view and this deletion gap is preserved behavior.
func (s *Service) Delete(ctx context.Context, email string) error {
	emailKey := DeriveKey(email)
	doc, err := s.store.Get(ctx, usersCollection, emailKey)
	if err != nil {
		return fmt.Errorf("load %s: %w", emailKey, err)
	}
	if doc == nil {
		return fmt.Errorf("%s: %w", email, ErrNotFound)
	}

	uid := stringField(doc, "uid")
	if uid != "" {
		if err := s.ids.DeletePrincipal(ctx, uid); err != nil &&
			!errors.Is(err, identity.ErrPrincipalNotFound) {
			return fmt.Errorf("delete principal: %w", err)
		}
	}

	if err := s.store.Delete(ctx, usersCollection, emailKey); err != nil {
		return fmt.Errorf("delete %s: %w", emailKey, err)
	}
	if uid != "" && uid != emailKey {
		if err := s.store.Delete(ctx, usersCollection, uid); err != nil {
			return fmt.Errorf("delete uid copy: %w", err)
		}
	}
	log.Println("User deleted:", email)
	return nil
}

type LoginResult struct {
	LastLogin string `json:"lastLogin"`
}

// RecordLogin prepends a login entry, truncates the history to the bound and
// stamps lastLogin on every users copy. When only a principal-id document
// exists, the email carried inside it re-resolves the canonical key.
func (s *Service) RecordLogin(ctx context.Context, email, principalID string) (*LoginResult, error) {
	emailKey := DeriveKey(email)
	doc, err := s.store.Get(ctx, usersCollection, emailKey)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", emailKey, err)
	}
	if doc == nil && principalID != "" {
		fallback, err := s.store.Get(ctx, usersCollection, principalID)
		if err != nil {
			return nil, fmt.Errorf("load uid copy: %w", err)
		}
		if fallback != nil {
			if fbEmail := stringField(fallback, "email"); fbEmail != "" && fbEmail != email {
				return s.RecordLogin(ctx, fbEmail, principalID)
			}
		}
	}
	if doc == nil {
		log.Println("User document not found for login tracking:", email)
		return nil, fmt.Errorf("%s: %w", email, ErrNotFound)
	}

	now := s.now().UTC().Format(time.RFC3339)
	history := historyFromDoc(doc["loginHistory"])
	history = append([]LoginEntry{{Timestamp: now, PrincipalID: principalID}}, history...)
	if len(history) > maxLoginHistory {
		history = history[:maxLoginHistory]
	}

	fields := store.Document{
		"lastLogin":    now,
		"loginHistory": historyToDoc(history),
		"updatedAt":    now,
	}
	if err := s.store.Update(ctx, usersCollection, emailKey, fields); err != nil {
		return nil, fmt.Errorf("update %s: %w", emailKey, err)
	}
	uid := stringField(doc, "uid")
	if uid != "" && uid != emailKey {
		if err := s.store.Update(ctx, usersCollection, uid, fields); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("update uid copy: %w", err)
		}
	}
	return &LoginResult{LastLogin: now}, nil
}

type LoginHistoryResult struct {
	LastLogin    string       `json:"lastLogin"`
	LoginHistory []LoginEntry `json:"loginHistory"`
}

func (s *Service) LoginHistory(ctx context.Context, email string) (*LoginHistoryResult, error) {
	doc, err := s.store.Get(ctx, usersCollection, DeriveKey(email))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", email, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%s: %w", email, ErrNotFound)
	}
	return &LoginHistoryResult{
		LastLogin:    stringField(doc, "lastLogin"),
		LoginHistory: historyFromDoc(doc["loginHistory"]),
	}, nil
}

// List scans users and collapses the physical copies to one record per
// email, preferring the derived-key document. Documents without an email are
// listed under their raw key.
func (s *Service) List(ctx context.Context) ([]*Record, error) {
	entries, err := s.store.Scan(ctx, usersCollection)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}

	seen := make(map[string]*Record)
	order := make([]string, 0, len(entries))
	for _, entry := range entries {
		rec := recordFromDoc(entry.Doc)
		mapKey := rec.Email
		if mapKey == "" {
			mapKey = entry.Key
		}
		if _, ok := seen[mapKey]; !ok {
			order = append(order, mapKey)
			seen[mapKey] = rec
			continue
		}
		if rec.Email != "" && entry.Key == DeriveKey(rec.Email) {
			seen[mapKey] = rec
		}
	}

	sort.Strings(order)
	records := make([]*Record, 0, len(order))
	for _, k := range order {
		records = append(records, seen[k])
	}
	return records, nil
}

// SendCredentialReset asks the identity provider to mail a reset link.
func (s *Service) SendCredentialReset(ctx context.Context, email string) error {
	if err := s.ids.SendCredentialReset(ctx, email); err != nil {
		if errors.Is(err, identity.ErrPrincipalNotFound) {
			return fmt.Errorf("%s: %w", email, ErrNotFound)
		}
		return fmt.Errorf("credential reset: %w", err)
	}
	return nil
}
