package authz

import "fmt"

// Template returns the named seed permission set for a resource type.
// Known templates: public, team, private, readonly.
func Template(name string, resourceType ResourceType) ([]Permission, error) {
	switch name {
	case "public":
		return []Permission{
			{Resource: resourceType, Actions: []Action{ActionRead}, Scope: ScopeAll},
			{Resource: resourceType, Actions: []Action{ActionCreate, ActionUpdate, ActionDelete, ActionShare}, Scope: ScopeOwn},
		}, nil
	case "team":
		return []Permission{
			{Resource: resourceType, Actions: []Action{ActionRead, ActionUpdate}, Scope: ScopeTeam},
			{Resource: resourceType, Actions: []Action{ActionCreate, ActionDelete, ActionShare}, Scope: ScopeOwn},
		}, nil
	case "private":
		return []Permission{
			{Resource: resourceType, Actions: []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionShare}, Scope: ScopeOwn},
		}, nil
	case "readonly":
		return []Permission{
			{Resource: resourceType, Actions: []Action{ActionRead}, Scope: ScopeAll},
		}, nil
	default:
		return nil, fmt.Errorf("template %q: %w", name, ErrUnknownTemplate)
	}
}

// TemplateNames lists the built-in template names.
func TemplateNames() []string {
	return []string{"public", "team", "private", "readonly"}
}
