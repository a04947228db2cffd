package directory

import (
	"context"
	"errors"
	"testing"

	"DirectoryAdmin/internal/store"
)

func seedUser(t *testing.T, st *store.MemStore, collection, key, email, role string) {
	t.Helper()
	err := st.Set(context.Background(), collection, key, store.Document{
		"email": email,
		"name":  "Seed " + key,
		"role":  role,
	})
	if err != nil {
		t.Fatalf("seed %s/%s: %v", collection, key, err)
	}
}

func TestRemoveDuplicatesKeepsDerivedKey(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()

	seedUser(t, st, "users", "a_school_edu", "a@school.edu", "teacher")
	seedUser(t, st, "users", "uid-0001", "a@school.edu", "teacher")
	seedUser(t, st, "users", "uid-0002", "a@school.edu", "teacher")
	seedUser(t, st, "users", "only_school_edu", "only@school.edu", "student")

	report, err := svc.RemoveDuplicates(ctx)
	if err != nil {
		t.Fatalf("dedupe error: %v", err)
	}
	if report.Scanned != 4 || report.Groups != 1 || report.Deleted != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Duplicates) != 1 || report.Duplicates[0].KeptKey != "a_school_edu" {
		t.Fatalf("derived key should be kept: %+v", report.Duplicates)
	}

	if doc, _ := st.Get(ctx, "users", "a_school_edu"); doc == nil {
		t.Fatalf("kept document missing")
	}
	for _, key := range []string{"uid-0001", "uid-0002"} {
		if doc, _ := st.Get(ctx, "users", key); doc != nil {
			t.Fatalf("duplicate users/%s should be deleted", key)
		}
	}
}

func TestRemoveDuplicatesKeepsFirstWithoutDerivedKey(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()

	// Scan order in the memory store is key order, so uid-0001 is first.
	seedUser(t, st, "users", "uid-0001", "b@school.edu", "parent")
	seedUser(t, st, "users", "uid-0002", "b@school.edu", "parent")

	report, err := svc.RemoveDuplicates(ctx)
	if err != nil {
		t.Fatalf("dedupe error: %v", err)
	}
	if report.Duplicates[0].KeptKey != "uid-0001" {
		t.Fatalf("first encountered document should be kept: %+v", report.Duplicates)
	}
	if doc, _ := st.Get(ctx, "users", "uid-0002"); doc != nil {
		t.Fatalf("uid-0002 should be deleted")
	}
}

func TestRemoveDuplicatesIgnoresMissingEmailAndConverges(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()

	st.Set(ctx, "users", "no-email-1", store.Document{"name": "Orphan"})
	st.Set(ctx, "users", "no-email-2", store.Document{"name": "Orphan 2"})
	seedUser(t, st, "users", "c_school_edu", "c@school.edu", "teacher")
	seedUser(t, st, "users", "uid-0009", "c@school.edu", "teacher")

	if _, err := svc.RemoveDuplicates(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	for _, key := range []string{"no-email-1", "no-email-2"} {
		if doc, _ := st.Get(ctx, "users", key); doc == nil {
			t.Fatalf("document without email must never be touched: %s", key)
		}
	}

	second, err := svc.RemoveDuplicates(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second.Groups != 0 || second.Deleted != 0 {
		t.Fatalf("second pass should find nothing: %+v", second)
	}

	// At most one document per email remains.
	entries, _ := st.Scan(ctx, "users")
	byEmail := map[string]int{}
	for _, e := range entries {
		if email := stringField(e.Doc, "email"); email != "" {
			byEmail[email]++
		}
	}
	for email, n := range byEmail {
		if n > 1 {
			t.Fatalf("email %s still has %d documents", email, n)
		}
	}
}

func TestCleanupRoleCollections(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()

	// teachers holds one correct entry and one document whose role moved on.
	seedUser(t, st, "users", "t_school_edu", "t@school.edu", "teacher")
	seedUser(t, st, "teachers", "t_school_edu", "t@school.edu", "teacher")
	seedUser(t, st, "teachers", "moved_school_edu", "moved@school.edu", "student")

	// s@school.edu exists in users but was never backfilled into students.
	seedUser(t, st, "users", "s_school_edu", "s@school.edu", "student")

	report, err := svc.CleanupRoleCollections(ctx)
	if err != nil {
		t.Fatalf("cleanup error: %v", err)
	}
	if report.Collections[RoleTeacher].Kept != 1 || report.Collections[RoleTeacher].Removed != 1 {
		t.Fatalf("unexpected teacher stats: %+v", report.Collections[RoleTeacher])
	}
	if report.Added != 1 {
		t.Fatalf("expected one backfill, got %d", report.Added)
	}

	if doc, _ := st.Get(ctx, "teachers", "moved_school_edu"); doc != nil {
		t.Fatalf("mismatched entry should be pruned")
	}
	if doc, _ := st.Get(ctx, "students", "s_school_edu"); doc == nil {
		t.Fatalf("missing entry should be backfilled")
	}

	second, err := svc.CleanupRoleCollections(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second.Added != 0 {
		t.Fatalf("second pass should add nothing: %+v", second)
	}
	for _, role := range Roles {
		if second.Collections[role].Removed != 0 {
			t.Fatalf("second pass should remove nothing from %s", role.Collection())
		}
	}

	// Every role collection is now an exact role-filtered view of users.
	for _, role := range Roles {
		entries, _ := st.Scan(ctx, role.Collection())
		for _, e := range entries {
			if Role(stringField(e.Doc, "role")) != role {
				t.Fatalf("%s/%s has role %v", role.Collection(), e.Key, e.Doc["role"])
			}
		}
	}
}

func TestCreateMissingDocument(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()

	if _, err := svc.CreateMissingDocument(ctx, ManualRepairInput{
		Email: "x@x.com", Role: "janitor",
	}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}

	res, err := svc.CreateMissingDocument(ctx, ManualRepairInput{
		Email: "lost@school.edu", Name: "Lost", Role: RoleAssistant,
	})
	if err != nil {
		t.Fatalf("manual repair error: %v", err)
	}
	if res.EmailKey != "lost_school_edu" {
		t.Fatalf("unexpected key: %s", res.EmailKey)
	}

	doc, _ := st.Get(ctx, "users", "lost_school_edu")
	if doc == nil || doc["role"] != "assistant" {
		t.Fatalf("users document missing or wrong: %v", doc)
	}
	// The manual path writes no principal-id copy and no timestamps.
	if _, ok := doc["uid"]; ok {
		t.Fatalf("manual repair must not invent a principal id")
	}
	if _, ok := doc["createdAt"]; ok {
		t.Fatalf("manual repair must not stamp createdAt")
	}
	if doc, _ := st.Get(ctx, "assistants", "lost_school_edu"); doc == nil {
		t.Fatalf("role collection entry missing")
	}

	if _, err := svc.CreateMissingDocument(ctx, ManualRepairInput{
		Email: "lost@school.edu", Name: "Again", Role: RoleAssistant,
	}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestMigrateLegacyKeys(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()

	seedUser(t, st, "users", "uid-legacy-1", "m@school.edu", "teacher")
	seedUser(t, st, "users", "ok_school_edu", "ok@school.edu", "student")
	st.Set(ctx, "users", "orphan", store.Document{"name": "No Email"})

	report, err := svc.MigrateLegacyKeys(ctx)
	if err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	if report.Migrated != 1 || report.Skipped != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	if doc, _ := st.Get(ctx, "users", "m_school_edu"); doc == nil {
		t.Fatalf("migrated document missing at derived key")
	}
	if doc, _ := st.Get(ctx, "teachers", "m_school_edu"); doc == nil {
		t.Fatalf("migrated role collection entry missing")
	}
	// Legacy documents are left in place for the dedupe pass.
	if doc, _ := st.Get(ctx, "users", "uid-legacy-1"); doc == nil {
		t.Fatalf("legacy document should remain until deduplication")
	}

	second, err := svc.MigrateLegacyKeys(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second.Migrated != 0 {
		t.Fatalf("second pass should migrate nothing: %+v", second)
	}
}

func TestMigrateThenDedupeConverges(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()

	seedUser(t, st, "users", "uid-legacy-2", "pair@school.edu", "parent")

	if _, err := svc.MigrateLegacyKeys(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := svc.RemoveDuplicates(ctx); err != nil {
		t.Fatalf("dedupe: %v", err)
	}

	if doc, _ := st.Get(ctx, "users", "uid-legacy-2"); doc != nil {
		t.Fatalf("legacy document should be removed by deduplication")
	}
	if doc, _ := st.Get(ctx, "users", "pair_school_edu"); doc == nil {
		t.Fatalf("derived-key document should survive")
	}
}
