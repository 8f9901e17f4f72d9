package stores

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/teamhub/authz"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	// A plain ":memory:" DSN gives every pooled connection its own empty
	// database. Use a file-backed database in WAL mode so all connections
	// share one schema and a write on a second connection is not blocked by
	// a still-open read cursor on the first (the expired-assignment eviction
	// path deletes while the select cursor is open).
	dsn := "file:" + filepath.Join(t.TempDir(), "authz.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLStoreUserRoles(t *testing.T) {
	store := NewSQLPolicyStore(newTestDB(t))
	ctx := context.Background()

	role, err := store.GetUserRole(ctx, "unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if role != authz.RoleGuest {
		t.Fatalf("missing assignment should read guest, got %s", role)
	}

	err = store.SetUserRole(ctx, &authz.UserRole{
		UserID: "u1", Role: authz.RoleEditor, AssignedBy: "admin-1",
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	assignment, err := store.GetUserRoleAssignment(ctx, "u1")
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if assignment == nil || assignment.Role != authz.RoleEditor || assignment.AssignedBy != "admin-1" {
		t.Fatalf("assignment = %+v", assignment)
	}

	// Upsert replaces.
	err = store.SetUserRole(ctx, &authz.UserRole{UserID: "u1", Role: authz.RoleManager})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	role, _ = store.GetUserRole(ctx, "u1")
	if role != authz.RoleManager {
		t.Fatalf("role after upsert = %s", role)
	}

	if err := store.RemoveUserRole(ctx, "u1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	role, _ = store.GetUserRole(ctx, "u1")
	if role != authz.RoleGuest {
		t.Fatalf("role after remove = %s", role)
	}
}

func TestSQLStoreExpiredAssignmentEvicted(t *testing.T) {
	store := NewSQLPolicyStore(newTestDB(t))
	ctx := context.Background()

	err := store.SetUserRole(ctx, &authz.UserRole{
		UserID: "u2", Role: authz.RoleViewer, ExpiresAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	role, err := store.GetUserRole(ctx, "u2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if role != authz.RoleGuest {
		t.Fatalf("expired assignment should read guest, got %s", role)
	}
	assignment, _ := store.GetUserRoleAssignment(ctx, "u2")
	if assignment != nil {
		t.Fatalf("expired row should be evicted")
	}
}

func TestSQLStoreResourcePermissions(t *testing.T) {
	store := NewSQLPolicyStore(newTestDB(t))
	ctx := context.Background()

	perm, err := store.GetResourcePermission(ctx, authz.ResourceFile, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if perm != nil {
		t.Fatalf("expected nil for absent acl")
	}

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	err = store.SetResourcePermission(ctx, &authz.ResourcePermission{
		ResourceType: authz.ResourceFile, ResourceID: "doc-1", InheritFromParent: true,
		Entries: []authz.ResourcePermissionEntry{
			{PrincipalType: authz.PrincipalUser, PrincipalID: "u1",
				Actions: []authz.Action{authz.ActionRead, authz.ActionUpdate},
				Scope:   authz.ScopeOwn, ExpiresAt: expires},
		},
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	perm, err = store.GetResourcePermission(ctx, authz.ResourceFile, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if perm == nil || !perm.InheritFromParent || len(perm.Entries) != 1 {
		t.Fatalf("perm = %+v", perm)
	}
	entry := perm.Entries[0]
	if entry.Scope != authz.ScopeOwn || !entry.HasAction(authz.ActionUpdate) {
		t.Fatalf("entry = %+v", entry)
	}
	if !entry.ExpiresAt.Equal(expires) {
		t.Fatalf("expires = %v, want %v", entry.ExpiresAt, expires)
	}

	// Upsert replaces the record.
	err = store.SetResourcePermission(ctx, &authz.ResourcePermission{
		ResourceType: authz.ResourceFile, ResourceID: "doc-1",
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	perm, _ = store.GetResourcePermission(ctx, authz.ResourceFile, "doc-1")
	if perm.InheritFromParent || len(perm.Entries) != 0 {
		t.Fatalf("replace should drop old state, got %+v", perm)
	}

	if err := store.RemoveResourcePermission(ctx, authz.ResourceFile, "doc-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	perm, _ = store.GetResourcePermission(ctx, authz.ResourceFile, "doc-1")
	if perm != nil {
		t.Fatalf("expected nil after remove")
	}
}

func TestSQLStoreGroups(t *testing.T) {
	store := NewSQLPolicyStore(newTestDB(t))
	ctx := context.Background()

	group := &authz.Group{
		ID: "g1", Name: "leads", Description: "team leads",
		Members: []string{"u1"}, Roles: []authz.Role{authz.RoleManager}, CreatedBy: "admin-1",
	}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateGroup(ctx, group); err == nil {
		t.Fatalf("duplicate create should fail")
	}

	got, err := store.GetGroup(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "leads" || got.CreatedBy != "admin-1" || len(got.Members) != 1 {
		t.Fatalf("group = %+v", got)
	}

	if err := store.AddGroupMember(ctx, "g1", "u2"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := store.AddGroupRole(ctx, "g1", authz.RoleEditor); err != nil {
		t.Fatalf("add role: %v", err)
	}
	groups, err := store.GetUserGroups(ctx, "u2")
	if err != nil {
		t.Fatalf("user groups: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Roles) != 2 {
		t.Fatalf("groups = %+v", groups)
	}

	if err := store.RemoveGroupMember(ctx, "g1", "u1"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	groups, _ = store.GetUserGroups(ctx, "u1")
	if len(groups) != 0 {
		t.Fatalf("u1 should be detached")
	}

	all, err := store.ListGroups(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one group, got %d", len(all))
	}

	if err := store.DeleteGroup(ctx, "g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = store.GetGroup(ctx, "g1")
	if got != nil {
		t.Fatalf("group should be gone")
	}
}

func TestSQLStoreBacksEvaluator(t *testing.T) {
	store := NewSQLPolicyStore(newTestDB(t))
	ctx := context.Background()

	e, err := authz.NewEvaluator(store, authz.NewRegistry())
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	if err := store.SetUserRole(ctx, &authz.UserRole{UserID: "u1", Role: authz.RoleEditor}); err != nil {
		t.Fatalf("set role: %v", err)
	}

	res, err := e.CheckPermission(ctx, &authz.PermissionCheckRequest{
		UserID: "u1", Action: authz.ActionUpdate, ResourceType: authz.ResourceFile,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed || res.GrantedBy != authz.GrantRole {
		t.Fatalf("got allowed=%v grantedBy=%s", res.Allowed, res.GrantedBy)
	}
}
