package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/teamhub/authz"
)

// GroupIndex is an optional external principal->groups index. When nil,
// SQLPolicyStore resolves memberships by scanning the groups table.
type GroupIndex interface {
	Add(ctx context.Context, userID, groupID string) error
	Remove(ctx context.Context, userID, groupID string) error
	Groups(ctx context.Context, userID string) ([]string, error)
}

// SQLPolicyStore persists policy state in SQL via squealx. ACL entries
// and group membership lists are stored as JSON columns; lookups are
// keyed, not relational.
type SQLPolicyStore struct {
	db    *squealx.DB
	index GroupIndex
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

// WithGroupIndex attaches an external membership index (e.g. Redis).
func (s *SQLPolicyStore) WithGroupIndex(index GroupIndex) *SQLPolicyStore {
	s.index = index
	return s
}

func (s *SQLPolicyStore) GetUserRole(ctx context.Context, userID string) (authz.Role, error) {
	assignment, err := s.GetUserRoleAssignment(ctx, userID)
	if err != nil {
		return authz.RoleGuest, err
	}
	if assignment == nil {
		return authz.RoleGuest, nil
	}
	return assignment.Role, nil
}

func (s *SQLPolicyStore) GetUserRoleAssignment(ctx context.Context, userID string) (*authz.UserRole, error) {
	q := `SELECT user_id, role, assigned_by, assigned_at, expires_at FROM user_roles WHERE user_id = :user_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	var uid, role string
	var assignedBy interface{}
	var assignedRaw, expiresRaw interface{}
	if err := r.Scan(&uid, &role, &assignedBy, &assignedRaw, &expiresRaw); err != nil {
		return nil, err
	}
	assignment := &authz.UserRole{
		UserID:     uid,
		Role:       authz.Role(role),
		AssignedAt: scanTime(assignedRaw),
		ExpiresAt:  scanTime(expiresRaw),
	}
	if by, ok := assignedBy.(string); ok {
		assignment.AssignedBy = by
	}
	if assignment.IsExpired() {
		if err := s.RemoveUserRole(ctx, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return assignment, nil
}

func (s *SQLPolicyStore) SetUserRole(ctx context.Context, assignment *authz.UserRole) error {
	if assignment == nil || assignment.UserID == "" {
		return fmt.Errorf("set user role: missing user id")
	}
	assignedAt := assignment.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now()
	}
	q := `INSERT INTO user_roles(user_id, role, assigned_by, assigned_at, expires_at)
	      VALUES(:user_id, :role, :assigned_by, :assigned_at, :expires_at)
	      ON CONFLICT(user_id) DO UPDATE SET role = :role, assigned_by = :assigned_by, assigned_at = :assigned_at, expires_at = :expires_at`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"user_id":     assignment.UserID,
		"role":        string(assignment.Role),
		"assigned_by": assignment.AssignedBy,
		"assigned_at": assignedAt,
		"expires_at":  sqlNullTimeOrNil(assignment.ExpiresAt),
	})
	return err
}

func (s *SQLPolicyStore) RemoveUserRole(ctx context.Context, userID string) error {
	q := `DELETE FROM user_roles WHERE user_id = :user_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID})
	return err
}

func (s *SQLPolicyStore) GetResourcePermission(ctx context.Context, resourceType authz.ResourceType, resourceID string) (*authz.ResourcePermission, error) {
	q := `SELECT inherit_from_parent, entries_json FROM resource_permissions WHERE resource_type = :resource_type AND resource_id = :resource_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"resource_type": string(resourceType),
		"resource_id":   resourceID,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	var inherit int
	var entriesJSON string
	if err := r.Scan(&inherit, &entriesJSON); err != nil {
		return nil, err
	}
	perm := &authz.ResourcePermission{
		ResourceType:      resourceType,
		ResourceID:        resourceID,
		InheritFromParent: inherit != 0,
	}
	if err := json.Unmarshal([]byte(entriesJSON), &perm.Entries); err != nil {
		return nil, fmt.Errorf("decode acl entries %s/%s: %w", resourceType, resourceID, err)
	}
	return perm, nil
}

func (s *SQLPolicyStore) SetResourcePermission(ctx context.Context, perm *authz.ResourcePermission) error {
	if perm == nil || perm.ResourceID == "" {
		return fmt.Errorf("set resource permission: missing resource id")
	}
	entries, err := json.Marshal(perm.Entries)
	if err != nil {
		return err
	}
	q := `INSERT INTO resource_permissions(resource_type, resource_id, inherit_from_parent, entries_json)
	      VALUES(:resource_type, :resource_id, :inherit_from_parent, :entries_json)
	      ON CONFLICT(resource_type, resource_id) DO UPDATE SET inherit_from_parent = :inherit_from_parent, entries_json = :entries_json`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"resource_type":       string(perm.ResourceType),
		"resource_id":         perm.ResourceID,
		"inherit_from_parent": boolToInt(perm.InheritFromParent),
		"entries_json":        string(entries),
	})
	return err
}

func (s *SQLPolicyStore) RemoveResourcePermission(ctx context.Context, resourceType authz.ResourceType, resourceID string) error {
	q := `DELETE FROM resource_permissions WHERE resource_type = :resource_type AND resource_id = :resource_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"resource_type": string(resourceType),
		"resource_id":   resourceID,
	})
	return err
}

func (s *SQLPolicyStore) CreateGroup(ctx context.Context, group *authz.Group) error {
	if group == nil || group.ID == "" {
		return fmt.Errorf("create group: missing id")
	}
	existing, err := s.GetGroup(ctx, group.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("create group %q: %w", group.ID, authz.ErrGroupExists)
	}
	now := time.Now()
	createdAt := group.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	members, _ := json.Marshal(group.Members)
	roles, _ := json.Marshal(group.Roles)
	q := `INSERT INTO permission_groups(id, name, description, members_json, roles_json, created_by, created_at, updated_at)
	      VALUES(:id, :name, :description, :members_json, :roles_json, :created_by, :created_at, :updated_at)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id":           group.ID,
		"name":         group.Name,
		"description":  group.Description,
		"members_json": string(members),
		"roles_json":   string(roles),
		"created_by":   group.CreatedBy,
		"created_at":   createdAt,
		"updated_at":   now,
	})
	if err != nil {
		return err
	}
	if s.index != nil {
		for _, member := range group.Members {
			if err := s.index.Add(ctx, member, group.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLPolicyStore) GetGroup(ctx context.Context, id string) (*authz.Group, error) {
	q := `SELECT id, name, description, members_json, roles_json, created_by, created_at, updated_at FROM permission_groups WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	return scanGroup(r)
}

func (s *SQLPolicyStore) ListGroups(ctx context.Context) ([]*authz.Group, error) {
	q := `SELECT id, name, description, members_json, roles_json, created_by, created_at, updated_at FROM permission_groups`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*authz.Group, 0)
	for r.Next() {
		group, err := scanGroup(r)
		if err != nil {
			return nil, err
		}
		out = append(out, group)
	}
	return out, nil
}

func (s *SQLPolicyStore) DeleteGroup(ctx context.Context, id string) error {
	group, err := s.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("delete group %q: %w", id, authz.ErrGroupNotFound)
	}
	q := `DELETE FROM permission_groups WHERE id = :id`
	if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id}); err != nil {
		return err
	}
	if s.index != nil {
		for _, member := range group.Members {
			if err := s.index.Remove(ctx, member, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLPolicyStore) AddGroupMember(ctx context.Context, groupID, userID string) error {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("add member to group %q: %w", groupID, authz.ErrGroupNotFound)
	}
	if group.HasMember(userID) {
		return nil
	}
	group.Members = append(group.Members, userID)
	if err := s.updateGroup(ctx, group); err != nil {
		return err
	}
	if s.index != nil {
		return s.index.Add(ctx, userID, groupID)
	}
	return nil
}

func (s *SQLPolicyStore) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("remove member from group %q: %w", groupID, authz.ErrGroupNotFound)
	}
	members := group.Members[:0]
	for _, m := range group.Members {
		if m != userID {
			members = append(members, m)
		}
	}
	group.Members = members
	if err := s.updateGroup(ctx, group); err != nil {
		return err
	}
	if s.index != nil {
		return s.index.Remove(ctx, userID, groupID)
	}
	return nil
}

func (s *SQLPolicyStore) AddGroupRole(ctx context.Context, groupID string, role authz.Role) error {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("add role to group %q: %w", groupID, authz.ErrGroupNotFound)
	}
	for _, r := range group.Roles {
		if r == role {
			return nil
		}
	}
	group.Roles = append(group.Roles, role)
	return s.updateGroup(ctx, group)
}

func (s *SQLPolicyStore) RemoveGroupRole(ctx context.Context, groupID string, role authz.Role) error {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("remove role from group %q: %w", groupID, authz.ErrGroupNotFound)
	}
	roles := group.Roles[:0]
	for _, r := range group.Roles {
		if r != role {
			roles = append(roles, r)
		}
	}
	group.Roles = roles
	return s.updateGroup(ctx, group)
}

func (s *SQLPolicyStore) GetUserGroups(ctx context.Context, userID string) ([]*authz.Group, error) {
	if s.index != nil {
		ids, err := s.index.Groups(ctx, userID)
		if err != nil {
			return nil, err
		}
		out := make([]*authz.Group, 0, len(ids))
		for _, id := range ids {
			group, err := s.GetGroup(ctx, id)
			if err != nil {
				return nil, err
			}
			if group != nil {
				out = append(out, group)
			}
		}
		return out, nil
	}
	all, err := s.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*authz.Group, 0)
	for _, group := range all {
		if group.HasMember(userID) {
			out = append(out, group)
		}
	}
	return out, nil
}

func (s *SQLPolicyStore) updateGroup(ctx context.Context, group *authz.Group) error {
	members, _ := json.Marshal(group.Members)
	roles, _ := json.Marshal(group.Roles)
	q := `UPDATE permission_groups SET name = :name, description = :description, members_json = :members_json, roles_json = :roles_json, updated_at = :updated_at WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":           group.ID,
		"name":         group.Name,
		"description":  group.Description,
		"members_json": string(members),
		"roles_json":   string(roles),
		"updated_at":   time.Now(),
	})
	return err
}

func scanGroup(r *squealx.Rows) (*authz.Group, error) {
	var id, name string
	var description, createdBy interface{}
	var membersJSON, rolesJSON string
	var createdRaw, updatedRaw interface{}
	if err := r.Scan(&id, &name, &description, &membersJSON, &rolesJSON, &createdBy, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	group := &authz.Group{
		ID:        id,
		Name:      name,
		CreatedAt: scanTime(createdRaw),
		UpdatedAt: scanTime(updatedRaw),
	}
	if d, ok := description.(string); ok {
		group.Description = d
	}
	if by, ok := createdBy.(string); ok {
		group.CreatedBy = by
	}
	if err := json.Unmarshal([]byte(membersJSON), &group.Members); err != nil {
		return nil, fmt.Errorf("decode group members %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(rolesJSON), &group.Roles); err != nil {
		return nil, fmt.Errorf("decode group roles %s: %w", id, err)
	}
	return group, nil
}
