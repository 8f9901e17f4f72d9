package authz

import "context"

// PolicyStore holds the mutable authorization state: user-role assignments,
// per-resource ACL records, and groups. It carries no decision logic beyond
// expiry interpretation; all rules live in the Evaluator.
//
// Implementations must be safe for concurrent use. The in-memory store in
// this package is the reference; the stores package provides SQL and Redis
// backed implementations.
type PolicyStore interface {
	// GetUserRole returns the user's current role, falling back to guest
	// when no assignment exists or the assignment has expired.
	GetUserRole(ctx context.Context, userID string) (Role, error)
	// GetUserRoleAssignment returns the live assignment record, or nil when
	// absent or expired.
	GetUserRoleAssignment(ctx context.Context, userID string) (*UserRole, error)
	SetUserRole(ctx context.Context, assignment *UserRole) error
	RemoveUserRole(ctx context.Context, userID string) error

	// GetResourcePermission returns the ACL record for the resource, or nil
	// when none exists.
	GetResourcePermission(ctx context.Context, resourceType ResourceType, resourceID string) (*ResourcePermission, error)
	// SetResourcePermission replaces any existing record for the same
	// (resourceType, resourceID) key.
	SetResourcePermission(ctx context.Context, perm *ResourcePermission) error
	RemoveResourcePermission(ctx context.Context, resourceType ResourceType, resourceID string) error

	CreateGroup(ctx context.Context, group *Group) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)
	// DeleteGroup removes the group and detaches it from every member.
	DeleteGroup(ctx context.Context, id string) error
	AddGroupMember(ctx context.Context, groupID, userID string) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	AddGroupRole(ctx context.Context, groupID string, role Role) error
	RemoveGroupRole(ctx context.Context, groupID string, role Role) error
	// GetUserGroups returns every group the user belongs to.
	GetUserGroups(ctx context.Context, userID string) ([]*Group, error)
}
