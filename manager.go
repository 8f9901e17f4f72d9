package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/teamhub/authz/logger"
)

// Manager is the audited administration façade. Every mutation appends
// an audit entry and invalidates the evaluator's decision cache.
type Manager struct {
	store     PolicyStore
	registry  *Registry
	evaluator *Evaluator
	audit     *auditRing
	log       logger.Logger
}

// PermissionSummary is the flattened view of everything a user can do.
type PermissionSummary struct {
	UserID  string                    `json:"user_id"`
	Role    Role                      `json:"role"`
	Groups  []string                  `json:"groups"`
	Allowed map[ResourceType][]Action `json:"allowed"`
}

// NewManager builds a Manager with its own Evaluator over the given
// store and registry.
func NewManager(store PolicyStore, registry *Registry, opts ...Option) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	evaluator, err := NewEvaluator(store, registry, opts...)
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:     store,
		registry:  registry,
		evaluator: evaluator,
		audit:     newAuditRing(o.auditCapacity),
		log:       o.log,
	}, nil
}

// Evaluator exposes the decision engine backing this manager.
func (m *Manager) Evaluator() *Evaluator { return m.evaluator }

// Registry exposes the role registry backing this manager.
func (m *Manager) Registry() *Registry { return m.registry }

// AssignRole sets (or replaces) a user's role assignment. A nil
// expiresAt means the assignment never expires.
func (m *Manager) AssignRole(ctx context.Context, userID string, role Role, assignedBy string, expiresAt *time.Time) error {
	if _, ok := m.registry.Definition(role); !ok {
		return fmt.Errorf("assign role %s: %w", role, ErrUnknownRole)
	}
	prev, err := m.store.GetUserRoleAssignment(ctx, userID)
	if err != nil {
		return err
	}
	next := &UserRole{
		UserID:     userID,
		Role:       role,
		AssignedBy: assignedBy,
		AssignedAt: time.Now(),
	}
	if expiresAt != nil {
		next.ExpiresAt = *expiresAt
	}
	if err := m.store.SetUserRole(ctx, next); err != nil {
		return err
	}
	m.mutated(ctx, "role.assign", assignedBy, prev, next)
	return nil
}

// RevokeRole removes a user's role assignment, reverting them to guest.
func (m *Manager) RevokeRole(ctx context.Context, userID, revokedBy string) error {
	prev, err := m.store.GetUserRoleAssignment(ctx, userID)
	if err != nil {
		return err
	}
	if err := m.store.RemoveUserRole(ctx, userID); err != nil {
		return err
	}
	m.mutated(ctx, "role.revoke", revokedBy, prev, nil)
	return nil
}

// GetUserRoleInfo returns the live assignment, or nil when the user has
// none (including expired ones).
func (m *Manager) GetUserRoleInfo(ctx context.Context, userID string) (*UserRole, error) {
	return m.store.GetUserRoleAssignment(ctx, userID)
}

// GrantResourcePermission adds an entry to a resource's ACL, replacing
// any existing entry for the same principal.
func (m *Manager) GrantResourcePermission(ctx context.Context, resourceType ResourceType, resourceID string, grantedBy string, entry ResourcePermissionEntry) error {
	prev, err := m.store.GetResourcePermission(ctx, resourceType, resourceID)
	if err != nil {
		return err
	}
	next := cloneResourcePermission(prev)
	if next == nil {
		next = &ResourcePermission{ResourceType: resourceType, ResourceID: resourceID}
	}
	replaced := false
	for i := range next.Entries {
		if next.Entries[i].PrincipalType == entry.PrincipalType && next.Entries[i].PrincipalID == entry.PrincipalID {
			next.Entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		next.Entries = append(next.Entries, entry)
	}
	if err := m.store.SetResourcePermission(ctx, next); err != nil {
		return err
	}
	m.mutated(ctx, "resource.grant", grantedBy, prev, next)
	return nil
}

// RevokeResourcePermission removes the entry for one principal from a
// resource's ACL. Removing the last entry keeps the (possibly
// inheriting) record in place.
func (m *Manager) RevokeResourcePermission(ctx context.Context, resourceType ResourceType, resourceID string, revokedBy string, principalType PrincipalType, principalID string) error {
	prev, err := m.store.GetResourcePermission(ctx, resourceType, resourceID)
	if err != nil {
		return err
	}
	if prev == nil {
		return nil
	}
	next := cloneResourcePermission(prev)
	entries := next.Entries[:0]
	for _, e := range next.Entries {
		if e.PrincipalType == principalType && e.PrincipalID == principalID {
			continue
		}
		entries = append(entries, e)
	}
	next.Entries = entries
	if err := m.store.SetResourcePermission(ctx, next); err != nil {
		return err
	}
	m.mutated(ctx, "resource.revoke", revokedBy, prev, next)
	return nil
}

// GetResourcePermissions returns the ACL record for a resource, nil
// when none exists.
func (m *Manager) GetResourcePermissions(ctx context.Context, resourceType ResourceType, resourceID string) (*ResourcePermission, error) {
	return m.store.GetResourcePermission(ctx, resourceType, resourceID)
}

// SetResourceInheritance toggles parent-path inheritance for a
// resource, creating an empty ACL record when none exists.
func (m *Manager) SetResourceInheritance(ctx context.Context, resourceType ResourceType, resourceID string, changedBy string, inherit bool) error {
	prev, err := m.store.GetResourcePermission(ctx, resourceType, resourceID)
	if err != nil {
		return err
	}
	next := cloneResourcePermission(prev)
	if next == nil {
		next = &ResourcePermission{ResourceType: resourceType, ResourceID: resourceID}
	}
	next.InheritFromParent = inherit
	if err := m.store.SetResourcePermission(ctx, next); err != nil {
		return err
	}
	m.mutated(ctx, "resource.inheritance", changedBy, prev, next)
	return nil
}

// CreatePermissionGroup registers a new group.
func (m *Manager) CreatePermissionGroup(ctx context.Context, group *Group) error {
	if err := m.store.CreateGroup(ctx, group); err != nil {
		return err
	}
	m.mutated(ctx, "group.create", group.CreatedBy, nil, group)
	return nil
}

// DeletePermissionGroup removes a group and detaches all members.
func (m *Manager) DeletePermissionGroup(ctx context.Context, groupID, deletedBy string) error {
	prev, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := m.store.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	m.mutated(ctx, "group.delete", deletedBy, prev, nil)
	return nil
}

// ManageGroupMember adds or removes one member.
func (m *Manager) ManageGroupMember(ctx context.Context, groupID, userID, changedBy string, add bool) error {
	prev, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if add {
		err = m.store.AddGroupMember(ctx, groupID, userID)
	} else {
		err = m.store.RemoveGroupMember(ctx, groupID, userID)
	}
	if err != nil {
		return err
	}
	next, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	event := "group.member.remove"
	if add {
		event = "group.member.add"
	}
	m.mutated(ctx, event, changedBy, prev, next)
	return nil
}

// ManageGroupRole adds or removes one role on a group.
func (m *Manager) ManageGroupRole(ctx context.Context, groupID string, role Role, changedBy string, add bool) error {
	if _, ok := m.registry.Definition(role); !ok {
		return fmt.Errorf("group role %s: %w", role, ErrUnknownRole)
	}
	prev, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if add {
		err = m.store.AddGroupRole(ctx, groupID, role)
	} else {
		err = m.store.RemoveGroupRole(ctx, groupID, role)
	}
	if err != nil {
		return err
	}
	next, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	event := "group.role.remove"
	if add {
		event = "group.role.add"
	}
	m.mutated(ctx, event, changedBy, prev, next)
	return nil
}

// GetPermissionSummary resolves the user's role, group memberships, and
// allowed actions per resource type.
func (m *Manager) GetPermissionSummary(ctx context.Context, userID string) (*PermissionSummary, error) {
	role, err := m.store.GetUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	groups, err := m.store.GetUserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := &PermissionSummary{
		UserID:  userID,
		Role:    role,
		Groups:  make([]string, 0, len(groups)),
		Allowed: make(map[ResourceType][]Action, len(ResourceTypes())),
	}
	for _, g := range groups {
		summary.Groups = append(summary.Groups, g.ID)
	}
	for _, rt := range ResourceTypes() {
		allowed, err := m.evaluator.AllowedActions(ctx, userID, rt, "", nil)
		if err != nil {
			return nil, err
		}
		summary.Allowed[rt] = allowed
	}
	return summary, nil
}

// ApplyPermissionTemplate returns the named seed permission set.
func (m *Manager) ApplyPermissionTemplate(name string, resourceType ResourceType) ([]Permission, error) {
	return Template(name, resourceType)
}

// GetAuditLogs returns the retained audit entries, oldest first.
func (m *Manager) GetAuditLogs() []AuditLogEntry {
	return m.audit.snapshot()
}

func (m *Manager) mutated(_ context.Context, event, actor string, prev, next any) {
	m.audit.append(event, actor, prev, next)
	m.evaluator.InvalidateCache()
	m.log.Info("policy mutation", "event", event, "actor", actor)
}
