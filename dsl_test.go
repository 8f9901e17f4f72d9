package authz

import (
	"strings"
	"testing"
)

const sampleDSL = `
# custom roles
role auditor Auditor 50 settings:read inherits:viewer
role publisher "Release Publisher" 55 file:read+update@team,folder:read

assign u1 editor by:admin-1
assign u2 auditor expires:2030-01-02T15:04:05Z

group g1 leads members:u1,u3 roles:manager

acl file doc-1 user:u2 read
acl file doc-1 role:viewer read,update scope:team
acl file docs/team/plan.md inherit

engine cache_ttl=500 max_inherit_depth=4
`

func TestDSLParse(t *testing.T) {
	cfg, err := NewDSLParser().Parse([]byte(sampleDSL))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(cfg.Roles) != 2 {
		t.Fatalf("roles = %d", len(cfg.Roles))
	}
	if cfg.Roles[0].Inherits != RoleViewer {
		t.Fatalf("inherits = %s", cfg.Roles[0].Inherits)
	}
	pub := cfg.Roles[1]
	if pub.Name != "Release Publisher" || pub.Priority != 55 {
		t.Fatalf("publisher = %+v", pub)
	}
	if len(pub.Permissions) != 2 || pub.Permissions[0].Scope != ScopeTeam {
		t.Fatalf("publisher perms = %+v", pub.Permissions)
	}
	if !pub.Permissions[0].HasAction(ActionUpdate) {
		t.Fatalf("missing update action")
	}

	if len(cfg.Assignments) != 2 {
		t.Fatalf("assignments = %d", len(cfg.Assignments))
	}
	if cfg.Assignments[0].AssignedBy != "admin-1" {
		t.Fatalf("assigned_by = %s", cfg.Assignments[0].AssignedBy)
	}
	if cfg.Assignments[1].ExpiresAt.IsZero() {
		t.Fatalf("expires not parsed")
	}

	if len(cfg.Groups) != 1 || len(cfg.Groups[0].Members) != 2 {
		t.Fatalf("groups = %+v", cfg.Groups)
	}

	if len(cfg.ACLs) != 2 {
		t.Fatalf("acls = %d", len(cfg.ACLs))
	}
	doc1 := cfg.ACLs[0]
	if doc1.ResourceID != "doc-1" || len(doc1.Entries) != 2 {
		t.Fatalf("doc-1 acl = %+v", doc1)
	}
	if doc1.Entries[1].Scope != ScopeTeam || len(doc1.Entries[1].Actions) != 2 {
		t.Fatalf("role entry = %+v", doc1.Entries[1])
	}
	if !cfg.ACLs[1].InheritFromParent {
		t.Fatalf("inherit directive not applied")
	}

	if cfg.Engine.DecisionCacheTTL != 500 || cfg.Engine.MaxInheritDepth != 4 {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
}

func TestDSLRoundTrip(t *testing.T) {
	cfg, err := NewDSLParser().Parse([]byte(sampleDSL))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := cfg.ToDSL()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cfg2, err := NewDSLParser().Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, out)
	}

	if len(cfg2.Roles) != len(cfg.Roles) ||
		len(cfg2.Assignments) != len(cfg.Assignments) ||
		len(cfg2.Groups) != len(cfg.Groups) ||
		len(cfg2.ACLs) != len(cfg.ACLs) {
		t.Fatalf("round trip lost records:\n%s", out)
	}
	if cfg2.Roles[1].Name != "Release Publisher" {
		t.Fatalf("quoted name lost: %q", cfg2.Roles[1].Name)
	}
	if cfg2.Assignments[1].ExpiresAt.IsZero() {
		t.Fatalf("expiry lost")
	}
	if cfg2.Engine.DecisionCacheTTL != cfg.Engine.DecisionCacheTTL {
		t.Fatalf("engine settings lost")
	}
}

func TestDSLParseErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"unknown directive", "grant u1 file read"},
		{"role missing fields", "role auditor"},
		{"bad priority", "role auditor Auditor high settings:read"},
		{"bad permission shape", "role auditor Auditor 50 settings"},
		{"acl bad principal", "acl file doc-1 u2 read"},
		{"engine bad pair", "engine cache_ttl"},
		{"engine unknown key", "engine turbo=1"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewDSLParser().Parse([]byte(c.input))
			if err == nil {
				t.Fatalf("expected parse error")
			}
			if !strings.Contains(err.Error(), "line 1") {
				t.Fatalf("error should carry the line number: %v", err)
			}
		})
	}
}
