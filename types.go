package authz

import (
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Role identifies a role definition. The five system roles are always
// registered; additional custom roles may be added at runtime.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleEditor  Role = "editor"
	RoleViewer  Role = "viewer"
	RoleGuest   Role = "guest"
)

// ResourceType is the closed set of resource kinds the engine knows about.
type ResourceType string

const (
	ResourceFile     ResourceType = "file"
	ResourceFolder   ResourceType = "folder"
	ResourceComment  ResourceType = "comment"
	ResourceUser     ResourceType = "user"
	ResourceSettings ResourceType = "settings"
	ResourceSystem   ResourceType = "system"
)

// ResourceTypes lists every valid resource type.
func ResourceTypes() []ResourceType {
	return []ResourceType{ResourceFile, ResourceFolder, ResourceComment, ResourceUser, ResourceSettings, ResourceSystem}
}

// Action is the closed set of operations on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionShare  Action = "share"
	ActionManage Action = "manage"
)

// Actions lists every valid action.
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionShare, ActionManage}
}

// Scope bounds which resource instances a permission applies to.
type Scope string

const (
	ScopeOwn  Scope = "own"
	ScopeTeam Scope = "team"
	ScopeAll  Scope = "all"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "notEquals"
	OpContains  Operator = "contains"
	OpIn        Operator = "in"
	OpGt        Operator = "gt"
	OpLt        Operator = "lt"
)

// Condition is an attribute rule evaluated against the request context.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Permission grants a set of actions on one resource type, optionally
// bounded by a scope and attribute conditions.
type Permission struct {
	Resource   ResourceType `json:"resource" yaml:"resource"`
	Actions    []Action     `json:"actions" yaml:"actions"`
	Scope      Scope        `json:"scope,omitempty" yaml:"scope,omitempty"`
	Conditions []Condition  `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// HasAction reports whether the permission covers the action.
func (p *Permission) HasAction(action Action) bool {
	for _, a := range p.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// RoleDefinition describes a role: its priority for comparisons, an
// optional single parent it inherits from, and its own permission list.
type RoleDefinition struct {
	ID          Role         `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Priority    int          `json:"priority" yaml:"priority"`
	IsSystem    bool         `json:"is_system" yaml:"is_system"`
	Inherits    Role         `json:"inherits,omitempty" yaml:"inherits,omitempty"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
}

// PrincipalType distinguishes what an ACL entry is granted to.
type PrincipalType string

const (
	PrincipalUser  PrincipalType = "user"
	PrincipalRole  PrincipalType = "role"
	PrincipalGroup PrincipalType = "group"
)

// ResourcePermissionEntry grants actions on one resource instance to a
// user, role, or group.
type ResourcePermissionEntry struct {
	PrincipalType PrincipalType `json:"principal_type" yaml:"principal_type"`
	PrincipalID   string        `json:"principal_id" yaml:"principal_id"`
	Actions       []Action      `json:"actions" yaml:"actions"`
	Scope         Scope         `json:"scope,omitempty" yaml:"scope,omitempty"`
	ExpiresAt     time.Time     `json:"expires_at,omitempty" yaml:"expires_at,omitempty"` // zero = no expiry
}

// IsExpired checks if the entry has expired.
func (e *ResourcePermissionEntry) IsExpired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// HasAction reports whether the entry covers the action.
func (e *ResourcePermissionEntry) HasAction(action Action) bool {
	for _, a := range e.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// ResourcePermission is the ACL record attached to one resource instance.
type ResourcePermission struct {
	ResourceType      ResourceType              `json:"resource_type" yaml:"resource_type"`
	ResourceID        string                    `json:"resource_id" yaml:"resource_id"`
	InheritFromParent bool                      `json:"inherit_from_parent" yaml:"inherit_from_parent"`
	Entries           []ResourcePermissionEntry `json:"entries" yaml:"entries"`
}

// Group is a named set of users that collectively carries zero or more roles.
type Group struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Members     []string  `json:"members" yaml:"members"`
	Roles       []Role    `json:"roles" yaml:"roles"`
	CreatedBy   string    `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// HasMember reports whether the user belongs to the group.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// UserRole is a user's current role assignment. A user has at most one;
// a new assignment replaces the prior one.
type UserRole struct {
	UserID     string    `json:"user_id" yaml:"user_id"`
	Role       Role      `json:"role" yaml:"role"`
	AssignedBy string    `json:"assigned_by,omitempty" yaml:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at" yaml:"assigned_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"` // zero = no expiry
}

// IsExpired checks if the assignment has expired.
func (u *UserRole) IsExpired() bool {
	return !u.ExpiresAt.IsZero() && time.Now().After(u.ExpiresAt)
}

// GrantSource names the mechanism that produced an allow verdict.
type GrantSource string

const (
	GrantRole     GrantSource = "role"
	GrantResource GrantSource = "resource"
	GrantGroup    GrantSource = "group"
	GrantInherit  GrantSource = "inherit"
)

// PermissionCheckRequest asks whether a user may perform an action on a
// resource. ResourceID/ResourcePath and Context are optional.
type PermissionCheckRequest struct {
	UserID       string         `json:"user_id"`
	Action       Action         `json:"action"`
	ResourceType ResourceType   `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	ResourcePath string         `json:"resource_path,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// PermissionCheckResult is the verdict for one check.
type PermissionCheckResult struct {
	Allowed       bool        `json:"allowed"`
	Reason        string      `json:"reason"`
	GrantedBy     GrantSource `json:"granted_by,omitempty"`
	EffectiveRole Role        `json:"effective_role,omitempty"`
}
