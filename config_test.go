package authz

import (
	"context"
	"testing"
)

const sampleYAML = `
version: 1
roles:
  - id: auditor
    name: Auditor
    priority: 50
    inherits: viewer
    permissions:
      - resource: settings
        actions: [read]
assignments:
  - user_id: u1
    role: editor
  - user_id: u2
    role: auditor
groups:
  - id: g1
    name: leads
    members: [u1]
    roles: [manager]
acls:
  - resource_type: file
    resource_id: doc-1
    inherit_from_parent: true
    entries:
      - principal_type: user
        principal_id: u2
        actions: [read]
engine:
  decision_cache_ttl_ms: 500
  max_inherit_depth: 4
`

func TestConfigYAMLRoundTrip(t *testing.T) {
	loader := NewConfigLoader()
	cfg, err := loader.LoadYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(cfg.Roles) != 1 || cfg.Roles[0].ID != "auditor" {
		t.Fatalf("roles = %+v", cfg.Roles)
	}
	if cfg.Engine.DecisionCacheTTL != 500 || cfg.Engine.MaxInheritDepth != 4 {
		t.Fatalf("engine = %+v", cfg.Engine)
	}

	out, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	cfg2, err := loader.LoadJSON(out)
	if err != nil {
		t.Fatalf("reload json: %v", err)
	}
	if len(cfg2.Assignments) != 2 || cfg2.Assignments[0].UserID != "u1" {
		t.Fatalf("assignments lost in round trip: %+v", cfg2.Assignments)
	}
	if len(cfg2.ACLs) != 1 || !cfg2.ACLs[0].InheritFromParent {
		t.Fatalf("acls lost in round trip: %+v", cfg2.ACLs)
	}
}

func TestConfigValidateRejectsDanglingReferences(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"unknown assignment role", Config{
			Assignments: []*UserRole{{UserID: "u1", Role: "phantom"}},
		}},
		{"unknown inherited role", Config{
			Roles: []*RoleDefinition{{ID: "x", Name: "X", Inherits: "phantom"}},
		}},
		{"unknown group role", Config{
			Groups: []*Group{{ID: "g", Name: "G", Roles: []Role{"phantom"}}},
		}},
		{"duplicate group", Config{
			Groups: []*Group{{ID: "g", Name: "G"}, {ID: "g", Name: "G2"}},
		}},
		{"acl role entry unknown", Config{
			ACLs: []*ResourcePermission{{
				ResourceType: ResourceFile, ResourceID: "d",
				Entries: []ResourcePermissionEntry{{PrincipalType: PrincipalRole, PrincipalID: "phantom"}},
			}},
		}},
		{"acl bad resource type", Config{
			ACLs: []*ResourcePermission{{ResourceType: "spaceship", ResourceID: "d"}},
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.cfg.Validate(); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}

func TestApplyConfig(t *testing.T) {
	loader := NewConfigLoader()
	cfg, err := loader.LoadYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Custom role registered and resolvable through the evaluator.
	res, err := m.Evaluator().CheckPermission(ctx, &PermissionCheckRequest{
		UserID: "u2", Action: ActionRead, ResourceType: ResourceSettings,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed || res.EffectiveRole != "auditor" {
		t.Fatalf("got allowed=%v role=%s", res.Allowed, res.EffectiveRole)
	}

	// Group membership from config.
	res, err = m.Evaluator().CheckPermission(ctx, &PermissionCheckRequest{
		UserID: "u1", Action: ActionDelete, ResourceType: ResourceFile,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed || res.GrantedBy != GrantGroup {
		t.Fatalf("got allowed=%v grantedBy=%s", res.Allowed, res.GrantedBy)
	}

	// ACL from config.
	res, err = m.Evaluator().CheckPermission(ctx, &PermissionCheckRequest{
		UserID: "u2", Action: ActionRead, ResourceType: ResourceFile, ResourceID: "doc-1",
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed || res.GrantedBy != GrantResource {
		t.Fatalf("got allowed=%v grantedBy=%s", res.Allowed, res.GrantedBy)
	}

	logs := m.GetAuditLogs()
	if len(logs) == 0 || logs[len(logs)-1].Event != "config.apply" {
		t.Fatalf("apply should be audited")
	}
}
