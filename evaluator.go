package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/teamhub/authz/logger"
)

// Evaluator answers permission checks against a Registry and a
// PolicyStore. It is safe for concurrent use if the store is.
type Evaluator struct {
	store           PolicyStore
	registry        *Registry
	log             logger.Logger
	traceID         logger.TraceIDFunc
	cache           *decisionCache
	maxInheritDepth int
}

// NewEvaluator wires an evaluator. The decision cache is off unless
// WithDecisionCache is given.
func NewEvaluator(store PolicyStore, registry *Registry, opts ...Option) (*Evaluator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	e := &Evaluator{
		store:           store,
		registry:        registry,
		log:             o.log,
		traceID:         o.traceID,
		maxInheritDepth: o.maxInheritDepth,
	}
	if o.cacheEnabled {
		cache, err := newDecisionCache(o.cacheCounters, o.cacheMaxCost, o.cacheBufferSize, o.cacheTTL)
		if err != nil {
			return nil, fmt.Errorf("decision cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// InvalidateCache drops all cached decisions. The Manager calls this
// after every policy mutation.
func (e *Evaluator) InvalidateCache() {
	e.cache.invalidate()
}

// CheckPermission evaluates one request through the precedence chain:
// admin override, resource ACL (user, role, group entries, then parent
// inheritance), group roles, base role permissions, default deny.
func (e *Evaluator) CheckPermission(ctx context.Context, req *PermissionCheckRequest) (*PermissionCheckResult, error) {
	if req == nil {
		return nil, fmt.Errorf("check permission: nil request")
	}
	if cached, ok := e.cache.get(req); ok {
		return cached, nil
	}
	res, err := e.check(ctx, req, 0)
	if err != nil {
		return nil, err
	}
	e.cache.put(req, res)
	e.logDecision(req, res)
	return res, nil
}

func (e *Evaluator) check(ctx context.Context, req *PermissionCheckRequest, depth int) (*PermissionCheckResult, error) {
	role, err := e.store.GetUserRole(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve role for %s: %w", req.UserID, err)
	}

	// 1. Admin override.
	if role == RoleAdmin {
		return &PermissionCheckResult{
			Allowed:       true,
			Reason:        "admin role",
			GrantedBy:     GrantRole,
			EffectiveRole: role,
		}, nil
	}

	// 2. Resource ACL.
	if req.ResourceID != "" {
		res, matched, err := e.checkResourceACL(ctx, req, role, depth)
		if err != nil {
			return nil, err
		}
		if matched {
			return res, nil
		}
	}

	// 3. Group role permissions.
	groups, err := e.store.GetUserGroups(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve groups for %s: %w", req.UserID, err)
	}
	for _, group := range groups {
		for _, groupRole := range group.Roles {
			if e.registry.ComparePriority(groupRole, role) < 0 {
				continue
			}
			if e.registry.RoleHasPermission(groupRole, req.ResourceType, req.Action) {
				return &PermissionCheckResult{
					Allowed:       true,
					Reason:        fmt.Sprintf("group %q role", group.Name),
					GrantedBy:     GrantGroup,
					EffectiveRole: groupRole,
				}, nil
			}
		}
	}

	// 4. Base role permissions.
	for _, perm := range e.registry.EffectivePermissions(role) {
		if perm.Resource != req.ResourceType || !perm.HasAction(req.Action) {
			continue
		}
		if len(perm.Conditions) > 0 && !evalConditions(perm.Conditions, req.Context) {
			continue
		}
		if !checkScope(perm.Scope, req.UserID, req.Context) {
			continue
		}
		return &PermissionCheckResult{
			Allowed:       true,
			Reason:        fmt.Sprintf("role %s permission", role),
			GrantedBy:     GrantRole,
			EffectiveRole: role,
		}, nil
	}

	// 5. Default deny.
	return &PermissionCheckResult{
		Allowed:       false,
		Reason:        "no permission",
		EffectiveRole: role,
	}, nil
}

// checkResourceACL runs step 2 of the chain. matched reports whether
// the ACL produced a verdict; false falls through to group/role checks.
func (e *Evaluator) checkResourceACL(ctx context.Context, req *PermissionCheckRequest, role Role, depth int) (*PermissionCheckResult, bool, error) {
	acl, err := e.store.GetResourcePermission(ctx, req.ResourceType, req.ResourceID)
	if err != nil {
		return nil, false, fmt.Errorf("resolve acl %s/%s: %w", req.ResourceType, req.ResourceID, err)
	}
	if acl == nil {
		return nil, false, nil
	}

	var groups []*Group
	for i := range acl.Entries {
		entry := &acl.Entries[i]
		if entry.IsExpired() || !entry.HasAction(req.Action) {
			continue
		}
		switch entry.PrincipalType {
		case PrincipalUser:
			if entry.PrincipalID == req.UserID && checkScope(entry.Scope, req.UserID, req.Context) {
				return &PermissionCheckResult{
					Allowed:       true,
					Reason:        "direct resource grant",
					GrantedBy:     GrantResource,
					EffectiveRole: role,
				}, true, nil
			}
		case PrincipalRole:
			if entry.PrincipalID == string(role) && checkScope(entry.Scope, req.UserID, req.Context) {
				return &PermissionCheckResult{
					Allowed:       true,
					Reason:        fmt.Sprintf("resource grant for role %s", role),
					GrantedBy:     GrantResource,
					EffectiveRole: role,
				}, true, nil
			}
		case PrincipalGroup:
			if groups == nil {
				groups, err = e.store.GetUserGroups(ctx, req.UserID)
				if err != nil {
					return nil, false, fmt.Errorf("resolve groups for %s: %w", req.UserID, err)
				}
			}
			for _, group := range groups {
				if entry.PrincipalID == group.ID && checkScope(entry.Scope, req.UserID, req.Context) {
					return &PermissionCheckResult{
						Allowed:       true,
						Reason:        fmt.Sprintf("resource grant via group %q", group.Name),
						GrantedBy:     GrantGroup,
						EffectiveRole: role,
					}, true, nil
				}
			}
		}
	}

	// No direct entry matched; walk up the resource path if asked to.
	if acl.InheritFromParent && req.ResourcePath != "" {
		parent := parentPath(req.ResourcePath)
		if parent == "" {
			return nil, false, nil
		}
		if depth >= e.maxInheritDepth {
			e.log.Error("acl inheritance depth exceeded",
				"user_id", req.UserID,
				"resource_path", req.ResourcePath,
				"max_depth", e.maxInheritDepth)
			return &PermissionCheckResult{
				Allowed:       false,
				Reason:        "inheritance depth exceeded",
				EffectiveRole: role,
			}, true, nil
		}
		parentReq := *req
		parentReq.ResourceID = parent
		parentReq.ResourcePath = parent
		res, err := e.check(ctx, &parentReq, depth+1)
		if err != nil {
			return nil, false, err
		}
		if res.Allowed {
			return &PermissionCheckResult{
				Allowed:       true,
				Reason:        fmt.Sprintf("inherited from %s", parent),
				GrantedBy:     GrantInherit,
				EffectiveRole: res.EffectiveRole,
			}, true, nil
		}
	}
	return nil, false, nil
}

// CheckPermissions evaluates each action independently.
func (e *Evaluator) CheckPermissions(ctx context.Context, userID string, resourceType ResourceType, actions []Action, resourceID string, reqCtx map[string]any) (map[Action]bool, error) {
	out := make(map[Action]bool, len(actions))
	for _, action := range actions {
		res, err := e.CheckPermission(ctx, &PermissionCheckRequest{
			UserID:       userID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Context:      reqCtx,
		})
		if err != nil {
			return nil, err
		}
		out[action] = res.Allowed
	}
	return out, nil
}

// AllowedActions returns the subset of all actions the user may perform.
func (e *Evaluator) AllowedActions(ctx context.Context, userID string, resourceType ResourceType, resourceID string, reqCtx map[string]any) ([]Action, error) {
	results, err := e.CheckPermissions(ctx, userID, resourceType, Actions(), resourceID, reqCtx)
	if err != nil {
		return nil, err
	}
	allowed := make([]Action, 0, len(results))
	for _, action := range Actions() {
		if results[action] {
			allowed = append(allowed, action)
		}
	}
	return allowed, nil
}

// checkScope gates a grant by breadth. Unknown scope values deny.
func checkScope(scope Scope, userID string, reqCtx map[string]any) bool {
	switch scope {
	case "", ScopeAll:
		return true
	case ScopeOwn:
		owner, _ := reqCtx["ownerId"].(string)
		return owner == userID
	case ScopeTeam:
		teamID, _ := reqCtx["teamId"].(string)
		userTeamID, _ := reqCtx["userTeamId"].(string)
		return teamID != "" && teamID == userTeamID
	default:
		return false
	}
}

// parentPath drops the last segment: "docs/team/plan.md" -> "docs/team".
func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}

func (e *Evaluator) logDecision(req *PermissionCheckRequest, res *PermissionCheckResult) {
	keyvals := []any{
		"user_id", req.UserID,
		"action", string(req.Action),
		"resource_type", string(req.ResourceType),
		"resource_id", req.ResourceID,
		"allowed", res.Allowed,
		"reason", res.Reason,
		"granted_by", string(res.GrantedBy),
	}
	if e.traceID != nil {
		keyvals = append(keyvals, "trace_id", e.traceID())
	}
	e.log.Debug("permission check", keyvals...)
}
