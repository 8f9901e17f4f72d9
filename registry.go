package authz

import (
	"fmt"
	"sort"
	"sync"
)

// systemRoleDefinitions is the built-in role catalog. The inheritance chain
// is manager -> editor -> viewer; guest stands alone with a conditional
// public-read grant.
func systemRoleDefinitions() []*RoleDefinition {
	return []*RoleDefinition{
		{
			ID: RoleAdmin, Name: "Administrator", Priority: 100, IsSystem: true,
			Description: "Full access to every resource",
			Permissions: []Permission{
				{Resource: ResourceFile, Actions: Actions()},
				{Resource: ResourceFolder, Actions: Actions()},
				{Resource: ResourceComment, Actions: Actions()},
				{Resource: ResourceUser, Actions: Actions()},
				{Resource: ResourceSettings, Actions: Actions()},
				{Resource: ResourceSystem, Actions: Actions()},
			},
		},
		{
			ID: RoleManager, Name: "Manager", Priority: 80, IsSystem: true, Inherits: RoleEditor,
			Description: "Team lead: everything an editor can, plus deletion and sharing",
			Permissions: []Permission{
				{Resource: ResourceFile, Actions: []Action{ActionDelete, ActionShare}},
				{Resource: ResourceFolder, Actions: []Action{ActionDelete, ActionShare}},
				{Resource: ResourceUser, Actions: []Action{ActionRead}, Scope: ScopeTeam},
				{Resource: ResourceSettings, Actions: []Action{ActionRead}},
			},
		},
		{
			ID: RoleEditor, Name: "Editor", Priority: 60, IsSystem: true, Inherits: RoleViewer,
			Description: "Creates and edits content",
			Permissions: []Permission{
				{Resource: ResourceFile, Actions: []Action{ActionCreate, ActionRead, ActionUpdate}},
				{Resource: ResourceFolder, Actions: []Action{ActionCreate, ActionRead, ActionUpdate}},
				{Resource: ResourceComment, Actions: []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}},
			},
		},
		{
			ID: RoleViewer, Name: "Viewer", Priority: 40, IsSystem: true,
			Description: "Read-only access",
			Permissions: []Permission{
				{Resource: ResourceFile, Actions: []Action{ActionRead}},
				{Resource: ResourceFolder, Actions: []Action{ActionRead}},
				{Resource: ResourceComment, Actions: []Action{ActionRead}},
			},
		},
		{
			ID: RoleGuest, Name: "Guest", Priority: 20, IsSystem: true,
			Description: "Unauthenticated fallback: public content only",
			Permissions: []Permission{
				{Resource: ResourceFile, Actions: []Action{ActionRead},
					Conditions: []Condition{{Field: "isPublic", Operator: OpEquals, Value: true}}},
			},
		},
	}
}

// Registry is the role catalog: system roles plus runtime-registered custom
// roles, with effective-permission resolution over the inheritance chain.
type Registry struct {
	mu   sync.RWMutex
	defs map[Role]*RoleDefinition
}

// NewRegistry returns a registry seeded with the system roles.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[Role]*RoleDefinition)}
	for _, def := range systemRoleDefinitions() {
		r.defs[def.ID] = def
	}
	return r
}

// Definition returns a copy of the role definition.
func (r *Registry) Definition(role Role) (*RoleDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[role]
	if !ok {
		return nil, false
	}
	return cloneDefinition(def), true
}

// Roles returns every registered definition ordered by descending priority.
func (r *Registry) Roles() []*RoleDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RoleDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, cloneDefinition(def))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// IsSystemRole reports whether the id is one of the five built-in roles.
func (r *Registry) IsSystemRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleEditor, RoleViewer, RoleGuest:
		return true
	}
	return false
}

// AddCustomRole registers a custom role. Ids colliding with system roles,
// duplicate registrations, invalid enum values, and inheritance cycles
// are rejected.
func (r *Registry) AddCustomRole(def *RoleDefinition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("add custom role: missing id")
	}
	if r.IsSystemRole(def.ID) {
		return fmt.Errorf("add custom role %q: %w", def.ID, ErrSystemRole)
	}
	if err := validatePermissions(def.Permissions); err != nil {
		return fmt.Errorf("add custom role %q: %w", def.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.ID]; exists {
		return fmt.Errorf("add custom role %q: %w", def.ID, ErrRoleExists)
	}
	if r.wouldCycle(def) {
		return fmt.Errorf("add custom role %q: %w", def.ID, ErrInheritanceCycle)
	}
	cp := cloneDefinition(def)
	cp.IsSystem = false
	r.defs[cp.ID] = cp
	return nil
}

// RemoveCustomRole deletes a custom role. System roles cannot be removed.
func (r *Registry) RemoveCustomRole(role Role) error {
	if r.IsSystemRole(role) {
		return fmt.Errorf("remove role %q: %w", role, ErrSystemRole)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[role]; !ok {
		return fmt.Errorf("remove role %q: %w", role, ErrUnknownRole)
	}
	delete(r.defs, role)
	return nil
}

// wouldCycle walks the parent chain the new definition would create and
// reports whether it leads back to the definition itself. Caller holds the
// write lock.
func (r *Registry) wouldCycle(def *RoleDefinition) bool {
	seen := map[Role]bool{def.ID: true}
	cur := def.Inherits
	for cur != "" {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		parent, ok := r.defs[cur]
		if !ok {
			return false
		}
		cur = parent.Inherits
	}
	return false
}

// EffectivePermissions resolves the role's full permission set by merging
// in everything inherited from its parent chain. For a resource the child
// already covers, the parent's actions are unioned into the child's entry;
// the child's scope and conditions are kept as-is. Parent entries for new
// resources are appended unchanged.
func (r *Registry) EffectivePermissions(role Role) []Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[role]
	if !ok {
		return nil
	}
	effective := clonePermissions(def.Permissions)

	visited := map[Role]bool{role: true}
	cur := def.Inherits
	for cur != "" && !visited[cur] {
		visited[cur] = true
		parent, ok := r.defs[cur]
		if !ok {
			break
		}
		for i := range parent.Permissions {
			pp := &parent.Permissions[i]
			if existing := findByResource(effective, pp.Resource); existing != nil {
				existing.Actions = unionActions(existing.Actions, pp.Actions)
			} else {
				effective = append(effective, clonePermission(pp))
			}
		}
		cur = parent.Inherits
	}
	return effective
}

// RoleHasPermission is a coarse check: scope and conditions are ignored.
// Used for group-role pre-filtering.
func (r *Registry) RoleHasPermission(role Role, resource ResourceType, action Action) bool {
	for _, p := range r.EffectivePermissions(role) {
		if p.Resource == resource && p.HasAction(action) {
			return true
		}
	}
	return false
}

// ComparePriority orders two roles; unknown roles count as priority 0.
func (r *Registry) ComparePriority(a, b Role) int {
	return r.priority(a) - r.priority(b)
}

// IsHigherRole reports whether a outranks b.
func (r *Registry) IsHigherRole(a, b Role) bool {
	return r.ComparePriority(a, b) > 0
}

func (r *Registry) priority(role Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.defs[role]; ok {
		return def.Priority
	}
	return 0
}

// InheritanceChain returns [role, parent, grandparent, ...], stopping at a
// role with no parent, an unknown role, or a repeat.
func (r *Registry) InheritanceChain(role Role) []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := make([]Role, 0, 4)
	visited := make(map[Role]bool)
	cur := role
	for cur != "" && !visited[cur] {
		def, ok := r.defs[cur]
		if !ok {
			break
		}
		chain = append(chain, cur)
		visited[cur] = true
		cur = def.Inherits
	}
	return chain
}

func validatePermissions(perms []Permission) error {
	for i := range perms {
		if !validResourceType(perms[i].Resource) {
			return fmt.Errorf("invalid resource type %q", perms[i].Resource)
		}
		for _, a := range perms[i].Actions {
			if !validAction(a) {
				return fmt.Errorf("invalid action %q", a)
			}
		}
	}
	return nil
}

func validResourceType(rt ResourceType) bool {
	switch rt {
	case ResourceFile, ResourceFolder, ResourceComment, ResourceUser, ResourceSettings, ResourceSystem:
		return true
	}
	return false
}

func validAction(a Action) bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionShare, ActionManage:
		return true
	}
	return false
}

func findByResource(perms []Permission, rt ResourceType) *Permission {
	for i := range perms {
		if perms[i].Resource == rt {
			return &perms[i]
		}
	}
	return nil
}

func unionActions(base, extra []Action) []Action {
	for _, a := range extra {
		found := false
		for _, b := range base {
			if a == b {
				found = true
				break
			}
		}
		if !found {
			base = append(base, a)
		}
	}
	return base
}

func clonePermission(p *Permission) Permission {
	cp := *p
	cp.Actions = append([]Action(nil), p.Actions...)
	cp.Conditions = append([]Condition(nil), p.Conditions...)
	return cp
}

func clonePermissions(perms []Permission) []Permission {
	out := make([]Permission, 0, len(perms))
	for i := range perms {
		out = append(out, clonePermission(&perms[i]))
	}
	return out
}

func cloneDefinition(def *RoleDefinition) *RoleDefinition {
	cp := *def
	cp.Permissions = clonePermissions(def.Permissions)
	return &cp
}
