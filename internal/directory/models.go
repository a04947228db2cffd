package directory

import (
	"time"

	"DirectoryAdmin/internal/store"
)

// Role is the directory's four-value user role.
type Role string

const (
	RoleTeacher   Role = "teacher"
	RoleStudent   Role = "student"
	RoleParent    Role = "parent"
	RoleAssistant Role = "assistant"
)

// Roles lists the known roles in a fixed order.
var Roles = []Role{RoleTeacher, RoleStudent, RoleParent, RoleAssistant}

func (r Role) Valid() bool {
	switch r {
	case RoleTeacher, RoleStudent, RoleParent, RoleAssistant:
		return true
	}
	return false
}

// Collection is the name of the role's materialized view collection.
func (r Role) Collection() string {
	return string(r) + "s"
}

// maxLoginHistory bounds the login history; the oldest entry is dropped once
// the bound is exceeded.
const maxLoginHistory = 50

// LoginEntry records one sign-in, most recent first in Record.LoginHistory.
type LoginEntry struct {
	Timestamp   string `json:"timestamp"`
	PrincipalID string `json:"uid"`
}

// ParentProfile holds the fields only parents carry.
type ParentProfile struct {
	Phone       string   `json:"phone"`
	ChildEmails []string `json:"childEmails"`
	ChildIDs    []string `json:"childIds"`
}

// StudentProfile holds the fields only students carry.
type StudentProfile struct {
	ClassIDs []string `json:"classIds"`
	ParentID string   `json:"parentId"`
}

// Record is the canonical directory entity. Role-specific fields live behind
// role-tagged payloads: Parent is only set when Role == parent, Student only
// when Role == student.
type Record struct {
	Email        string          `json:"email"`
	Name         string          `json:"name"`
	Role         Role            `json:"role"`
	PrincipalID  string          `json:"uid,omitempty"`
	Disabled     bool            `json:"disabled"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
	LastLogin    string          `json:"lastLogin,omitempty"`
	LoginHistory []LoginEntry    `json:"loginHistory"`
	Parent       *ParentProfile  `json:"parent,omitempty"`
	Student      *StudentProfile `json:"student,omitempty"`
}

// NewRecord builds a record with role-appropriate default payloads.
func NewRecord(email, name string, role Role, principalID string, now time.Time) *Record {
	rec := &Record{
		Email:        email,
		Name:         name,
		Role:         role,
		PrincipalID:  principalID,
		CreatedAt:    now.UTC().Format(time.RFC3339),
		UpdatedAt:    now.UTC().Format(time.RFC3339),
		LoginHistory: []LoginEntry{},
	}
	rec.applyRoleDefaults()
	return rec
}

// applyRoleDefaults attaches the payload matching the role and drops any
// payload belonging to another role.
func (rec *Record) applyRoleDefaults() {
	switch rec.Role {
	case RoleParent:
		rec.Student = nil
		if rec.Parent == nil {
			rec.Parent = &ParentProfile{ChildEmails: []string{}, ChildIDs: []string{}}
		}
	case RoleStudent:
		rec.Parent = nil
		if rec.Student == nil {
			rec.Student = &StudentProfile{ClassIDs: []string{}}
		}
	default:
		rec.Parent = nil
		rec.Student = nil
	}
}

// docFromRecord flattens a record into the storage shape. Role payload fields
// sit at the top level of the document, matching the denormalized layout the
// role collections share.
func docFromRecord(rec *Record) store.Document {
	doc := store.Document{
		"email":    rec.Email,
		"name":     rec.Name,
		"role":     string(rec.Role),
		"disabled": rec.Disabled,
	}
	if rec.PrincipalID != "" {
		doc["uid"] = rec.PrincipalID
	}
	if rec.CreatedAt != "" {
		doc["createdAt"] = rec.CreatedAt
	}
	if rec.UpdatedAt != "" {
		doc["updatedAt"] = rec.UpdatedAt
	}
	if rec.LastLogin != "" {
		doc["lastLogin"] = rec.LastLogin
	} else {
		doc["lastLogin"] = nil
	}
	history := make([]any, 0, len(rec.LoginHistory))
	for _, entry := range rec.LoginHistory {
		history = append(history, map[string]any{
			"timestamp": entry.Timestamp,
			"uid":       entry.PrincipalID,
		})
	}
	doc["loginHistory"] = history

	if rec.Parent != nil {
		doc["phone"] = rec.Parent.Phone
		doc["childEmails"] = stringsToAny(rec.Parent.ChildEmails)
		doc["childIds"] = stringsToAny(rec.Parent.ChildIDs)
	}
	if rec.Student != nil {
		doc["classIds"] = stringsToAny(rec.Student.ClassIDs)
		doc["parentId"] = rec.Student.ParentID
	}
	return doc
}

// recordFromDoc is tolerant of partially-shaped documents; missing fields
// become zero values and unknown fields are ignored.
func recordFromDoc(doc store.Document) *Record {
	rec := &Record{
		Email:       stringField(doc, "email"),
		Name:        stringField(doc, "name"),
		Role:        Role(stringField(doc, "role")),
		PrincipalID: stringField(doc, "uid"),
		Disabled:    boolField(doc, "disabled"),
		CreatedAt:   stringField(doc, "createdAt"),
		UpdatedAt:   stringField(doc, "updatedAt"),
		LastLogin:   stringField(doc, "lastLogin"),
	}
	rec.LoginHistory = historyFromDoc(doc["loginHistory"])

	if rec.Role == RoleParent {
		rec.Parent = &ParentProfile{
			Phone:       stringField(doc, "phone"),
			ChildEmails: stringsField(doc, "childEmails"),
			ChildIDs:    stringsField(doc, "childIds"),
		}
	}
	if rec.Role == RoleStudent {
		rec.Student = &StudentProfile{
			ClassIDs: stringsField(doc, "classIds"),
			ParentID: stringField(doc, "parentId"),
		}
	}
	return rec
}

func historyFromDoc(v any) []LoginEntry {
	raw, ok := v.([]any)
	if !ok {
		return []LoginEntry{}
	}
	entries := make([]LoginEntry, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entries = append(entries, LoginEntry{
			Timestamp:   stringField(m, "timestamp"),
			PrincipalID: stringField(m, "uid"),
		})
	}
	return entries
}

func historyToDoc(entries []LoginEntry) []any {
	out := make([]any, 0, len(entries))
	for _, entry := range entries {
		out = append(out, map[string]any{
			"timestamp": entry.Timestamp,
			"uid":       entry.PrincipalID,
		})
	}
	return out
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func boolField(doc map[string]any, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

func stringsField(doc map[string]any, key string) []string {
	switch t := doc[key].(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
