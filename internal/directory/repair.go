package directory

import (
	"context"
	"fmt"
	"log"

	"DirectoryAdmin/internal/store"
)

// The repair passes below each restore one storage invariant with a full
// scan-and-correct sweep. Every corrective write checks current state before
// acting, so an interrupted or repeated pass converges instead of diverging.
// Per-item failures are counted and the pass continues.

// DuplicateGroup reports the resolution of one email with multiple documents.
type DuplicateGroup struct {
	Email       string   `json:"email"`
	KeptKey     string   `json:"keptKey"`
	DeletedKeys []string `json:"deletedKeys"`
}

type DedupeReport struct {
	Scanned    int              `json:"scanned"`
	Groups     int              `json:"groups"`
	Deleted    int              `json:"deleted"`
	Errors     int              `json:"errors"`
	Duplicates []DuplicateGroup `json:"duplicates"`
}

// RemoveDuplicates collapses the users collection to at most one document
// per email. The derived-key document wins; without one the first document
// encountered is kept. Documents lacking an email field are never touched.
func (s *Service) RemoveDuplicates(ctx context.Context) (*DedupeReport, error) {
	entries, err := s.store.Scan(ctx, usersCollection)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}

	report := &DedupeReport{Scanned: len(entries), Duplicates: []DuplicateGroup{}}
	groups := make(map[string][]store.Entry)
	order := make([]string, 0)
	for _, entry := range entries {
		email := stringField(entry.Doc, "email")
		if email == "" {
			continue
		}
		if _, ok := groups[email]; !ok {
			order = append(order, email)
		}
		groups[email] = append(groups[email], entry)
	}

	var failures []string
	for _, email := range order {
		docs := groups[email]
		if len(docs) < 2 {
			continue
		}
		report.Groups++

		emailKey := DeriveKey(email)
		kept := docs[0].Key
		for _, d := range docs {
			if d.Key == emailKey {
				kept = emailKey
				break
			}
		}

		group := DuplicateGroup{Email: email, KeptKey: kept, DeletedKeys: []string{}}
		for _, d := range docs {
			if d.Key == kept {
				continue
			}
			if err := s.store.Delete(ctx, usersCollection, d.Key); err != nil {
				log.Printf("Error deleting duplicate %s: %v", d.Key, err)
				failures = append(failures, fmt.Sprintf("users/%s: %v", d.Key, err))
				report.Errors++
				continue
			}
			group.DeletedKeys = append(group.DeletedKeys, d.Key)
			report.Deleted++
		}
		report.Duplicates = append(report.Duplicates, group)
	}

	log.Printf("Duplicate removal: scanned=%d groups=%d deleted=%d errors=%d",
		report.Scanned, report.Groups, report.Deleted, report.Errors)
	if len(failures) > 0 {
		return report, &PartialFailureError{Failures: failures}
	}
	return report, nil
}

// RoleCollectionStats counts the prune decisions for one role collection.
type RoleCollectionStats struct {
	Kept    int `json:"kept"`
	Removed int `json:"removed"`
}

type CleanupReport struct {
	Collections map[Role]*RoleCollectionStats `json:"collections"`
	Added       int                           `json:"added"`
	Errors      int                           `json:"errors"`
}

// CleanupRoleCollections makes each role collection an exact role-filtered
// view of users: first prune documents whose role mismatches the collection,
// then backfill missing entries at the derived email key.
func (s *Service) CleanupRoleCollections(ctx context.Context) (*CleanupReport, error) {
	report := &CleanupReport{Collections: make(map[Role]*RoleCollectionStats)}
	var failures []string

	for _, role := range Roles {
		stats := &RoleCollectionStats{}
		report.Collections[role] = stats

		entries, err := s.store.Scan(ctx, role.Collection())
		if err != nil {
			failures = append(failures, fmt.Sprintf("scan %s: %v", role.Collection(), err))
			report.Errors++
			continue
		}
		for _, entry := range entries {
			if Role(stringField(entry.Doc, "role")) == role {
				stats.Kept++
				continue
			}
			if err := s.store.Delete(ctx, role.Collection(), entry.Key); err != nil {
				failures = append(failures, fmt.Sprintf("%s/%s: %v", role.Collection(), entry.Key, err))
				report.Errors++
				continue
			}
			log.Printf("Removed mismatched document %s/%s", role.Collection(), entry.Key)
			stats.Removed++
		}
	}

	users, err := s.store.Scan(ctx, usersCollection)
	if err != nil {
		failures = append(failures, fmt.Sprintf("scan users: %v", err))
		report.Errors++
		return report, &PartialFailureError{Failures: failures}
	}
	for _, entry := range users {
		email := stringField(entry.Doc, "email")
		role := Role(stringField(entry.Doc, "role"))
		if email == "" || !role.Valid() {
			continue
		}
		key := DeriveKey(email)
		existing, err := s.store.Get(ctx, role.Collection(), key)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s/%s: %v", role.Collection(), key, err))
			report.Errors++
			continue
		}
		if existing != nil {
			continue
		}
		if err := s.store.Set(ctx, role.Collection(), key, entry.Doc); err != nil {
			failures = append(failures, fmt.Sprintf("%s/%s: %v", role.Collection(), key, err))
			report.Errors++
			continue
		}
		log.Printf("Backfilled %s/%s", role.Collection(), key)
		report.Added++
	}

	log.Printf("Role collection cleanup: added=%d errors=%d", report.Added, report.Errors)
	if len(failures) > 0 {
		return report, &PartialFailureError{Failures: failures}
	}
	return report, nil
}

type ManualRepairInput struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

type ManualRepairResult struct {
	EmailKey string `json:"emailKey"`
}

// CreateMissingDocument writes a directory document for a principal that
// exists in the identity provider but lost its record. It refuses to
// overwrite and, unlike the create path, writes no principal-id fallback
// copy.
func (s *Service) CreateMissingDocument(ctx context.Context, in ManualRepairInput) (*ManualRepairResult, error) {
	if !in.Role.Valid() {
		return nil, fmt.Errorf("role %q: %w", in.Role, ErrInvalidRole)
	}
	key := DeriveKey(in.Email)
	existing, err := s.store.Get(ctx, usersCollection, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("users/%s: %w", key, ErrAlreadyExists)
	}

	rec := &Record{Email: in.Email, Name: in.Name, Role: in.Role}
	rec.applyRoleDefaults()
	doc := docFromRecord(rec)

	if err := s.store.Set(ctx, usersCollection, key, doc); err != nil {
		return nil, fmt.Errorf("write users/%s: %w", key, err)
	}
	if err := s.store.Set(ctx, in.Role.Collection(), key, doc); err != nil {
		return nil, fmt.Errorf("write %s/%s: %w", in.Role.Collection(), key, err)
	}
	log.Printf("Created missing document users/%s", key)
	return &ManualRepairResult{EmailKey: key}, nil
}

type MigrationReport struct {
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// MigrateLegacyKeys copies records stored only under pre-migration keys
// (auth UIDs) to their derived email key, in users and the role collection.
// Documents already present at the derived key are skipped, so a second run
// migrates nothing. The legacy documents are left for RemoveDuplicates.
func (s *Service) MigrateLegacyKeys(ctx context.Context) (*MigrationReport, error) {
	entries, err := s.store.Scan(ctx, usersCollection)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}

	report := &MigrationReport{}
	var failures []string
	for _, entry := range entries {
		email := stringField(entry.Doc, "email")
		if email == "" {
			report.Skipped++
			continue
		}
		key := DeriveKey(email)
		if entry.Key == key {
			report.Skipped++
			continue
		}
		existing, err := s.store.Get(ctx, usersCollection, key)
		if err != nil {
			failures = append(failures, fmt.Sprintf("users/%s: %v", key, err))
			report.Errors++
			continue
		}
		if existing != nil {
			report.Skipped++
			continue
		}

		if err := s.store.Set(ctx, usersCollection, key, entry.Doc); err != nil {
			failures = append(failures, fmt.Sprintf("users/%s: %v", key, err))
			report.Errors++
			continue
		}
		if role := Role(stringField(entry.Doc, "role")); role.Valid() {
			if err := s.store.Set(ctx, role.Collection(), key, entry.Doc); err != nil {
				failures = append(failures, fmt.Sprintf("%s/%s: %v", role.Collection(), key, err))
				report.Errors++
			}
		}
		log.Printf("Migrated %s -> users/%s", entry.Key, key)
		report.Migrated++
	}

	log.Printf("Migration: migrated=%d skipped=%d errors=%d",
		report.Migrated, report.Skipped, report.Errors)
	if len(failures) > 0 {
		return report, &PartialFailureError{Failures: failures}
	}
	return report, nil
}
