package authz

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type aclKey struct {
	resourceType ResourceType
	resourceID   string
}

// MemoryPolicyStore is the reference PolicyStore: RWMutex-guarded maps with
// a user -> groups index. Expired role assignments are evicted when read.
type MemoryPolicyStore struct {
	mu         sync.RWMutex
	userRoles  map[string]*UserRole
	acls       map[aclKey]*ResourcePermission
	groups     map[string]*Group
	userGroups map[string]map[string]bool // userID -> set of group ids
}

// NewMemoryPolicyStore returns an empty in-memory store.
func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{
		userRoles:  make(map[string]*UserRole),
		acls:       make(map[aclKey]*ResourcePermission),
		groups:     make(map[string]*Group),
		userGroups: make(map[string]map[string]bool),
	}
}

func (s *MemoryPolicyStore) GetUserRole(ctx context.Context, userID string) (Role, error) {
	assignment, err := s.GetUserRoleAssignment(ctx, userID)
	if err != nil {
		return RoleGuest, err
	}
	if assignment == nil {
		return RoleGuest, nil
	}
	return assignment.Role, nil
}

func (s *MemoryPolicyStore) GetUserRoleAssignment(_ context.Context, userID string) (*UserRole, error) {
	// Write lock: an expired assignment is evicted here.
	s.mu.Lock()
	defer s.mu.Unlock()
	assignment, ok := s.userRoles[userID]
	if !ok {
		return nil, nil
	}
	if assignment.IsExpired() {
		delete(s.userRoles, userID)
		return nil, nil
	}
	cp := *assignment
	return &cp, nil
}

func (s *MemoryPolicyStore) SetUserRole(_ context.Context, assignment *UserRole) error {
	if assignment == nil || assignment.UserID == "" {
		return fmt.Errorf("set user role: missing user id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *assignment
	if cp.AssignedAt.IsZero() {
		cp.AssignedAt = time.Now()
	}
	s.userRoles[cp.UserID] = &cp
	return nil
}

func (s *MemoryPolicyStore) RemoveUserRole(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userRoles, userID)
	return nil
}

func (s *MemoryPolicyStore) GetResourcePermission(_ context.Context, resourceType ResourceType, resourceID string) (*ResourcePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perm, ok := s.acls[aclKey{resourceType, resourceID}]
	if !ok {
		return nil, nil
	}
	return cloneResourcePermission(perm), nil
}

func (s *MemoryPolicyStore) SetResourcePermission(_ context.Context, perm *ResourcePermission) error {
	if perm == nil || perm.ResourceID == "" {
		return fmt.Errorf("set resource permission: missing resource id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acls[aclKey{perm.ResourceType, perm.ResourceID}] = cloneResourcePermission(perm)
	return nil
}

func (s *MemoryPolicyStore) RemoveResourcePermission(_ context.Context, resourceType ResourceType, resourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.acls, aclKey{resourceType, resourceID})
	return nil
}

func (s *MemoryPolicyStore) CreateGroup(_ context.Context, group *Group) error {
	if group == nil || group.ID == "" {
		return fmt.Errorf("create group: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[group.ID]; exists {
		return fmt.Errorf("create group %q: %w", group.ID, ErrGroupExists)
	}
	cp := cloneGroup(group)
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.groups[cp.ID] = cp
	for _, member := range cp.Members {
		s.indexMember(member, cp.ID)
	}
	return nil
}

func (s *MemoryPolicyStore) GetGroup(_ context.Context, id string) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, ok := s.groups[id]
	if !ok {
		return nil, nil
	}
	return cloneGroup(group), nil
}

func (s *MemoryPolicyStore) ListGroups(_ context.Context) ([]*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, cloneGroup(g))
	}
	return out, nil
}

func (s *MemoryPolicyStore) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("delete group %q: %w", id, ErrGroupNotFound)
	}
	for _, member := range group.Members {
		s.unindexMember(member, id)
	}
	delete(s.groups, id)
	return nil
}

func (s *MemoryPolicyStore) AddGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("add member to group %q: %w", groupID, ErrGroupNotFound)
	}
	if group.HasMember(userID) {
		return nil
	}
	group.Members = append(group.Members, userID)
	group.UpdatedAt = time.Now()
	s.indexMember(userID, groupID)
	return nil
}

func (s *MemoryPolicyStore) RemoveGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("remove member from group %q: %w", groupID, ErrGroupNotFound)
	}
	members := group.Members[:0]
	for _, m := range group.Members {
		if m != userID {
			members = append(members, m)
		}
	}
	group.Members = members
	group.UpdatedAt = time.Now()
	s.unindexMember(userID, groupID)
	return nil
}

func (s *MemoryPolicyStore) AddGroupRole(_ context.Context, groupID string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("add role to group %q: %w", groupID, ErrGroupNotFound)
	}
	for _, r := range group.Roles {
		if r == role {
			return nil
		}
	}
	group.Roles = append(group.Roles, role)
	group.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryPolicyStore) RemoveGroupRole(_ context.Context, groupID string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("remove role from group %q: %w", groupID, ErrGroupNotFound)
	}
	roles := group.Roles[:0]
	for _, r := range group.Roles {
		if r != role {
			roles = append(roles, r)
		}
	}
	group.Roles = roles
	group.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryPolicyStore) GetUserGroups(_ context.Context, userID string) ([]*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.userGroups[userID]
	if !ok {
		return []*Group{}, nil
	}
	out := make([]*Group, 0, len(ids))
	for id := range ids {
		if group, ok := s.groups[id]; ok {
			out = append(out, cloneGroup(group))
		}
	}
	return out, nil
}

// indexMember and unindexMember keep the user -> groups index in sync;
// caller holds the write lock.
func (s *MemoryPolicyStore) indexMember(userID, groupID string) {
	if _, ok := s.userGroups[userID]; !ok {
		s.userGroups[userID] = make(map[string]bool)
	}
	s.userGroups[userID][groupID] = true
}

func (s *MemoryPolicyStore) unindexMember(userID, groupID string) {
	if set, ok := s.userGroups[userID]; ok {
		delete(set, groupID)
		if len(set) == 0 {
			delete(s.userGroups, userID)
		}
	}
}

func cloneResourcePermission(p *ResourcePermission) *ResourcePermission {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Entries = make([]ResourcePermissionEntry, len(p.Entries))
	for i := range p.Entries {
		cp.Entries[i] = p.Entries[i]
		cp.Entries[i].Actions = append([]Action(nil), p.Entries[i].Actions...)
	}
	return &cp
}

func cloneGroup(g *Group) *Group {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Members = append([]string(nil), g.Members...)
	cp.Roles = append([]Role(nil), g.Roles...)
	return &cp
}
