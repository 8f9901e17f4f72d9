package authz

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oarkflow/date"
)

// DSL Syntax (one directive per line, # starts a comment):
// role <id> <name> <priority> <perms> [inherits:<role>]
//   perms: comma-separated resource:action+action[@scope]
// assign <user> <role> [by:<actor>] [expires:<time>]
// group <id> <name> [members:<u1,u2>] [roles:<r1,r2>]
// acl <resource_type> <resource_id> inherit
// acl <resource_type> <resource_id> <ptype>:<pid> <actions> [scope:<s>] [expires:<time>]
// engine <key>=<value>...
//
// Role conditions are not expressible here; use YAML or JSON for
// condition-bearing definitions.

type DSLParser struct {
	line int
}

func NewDSLParser() *DSLParser {
	return &DSLParser{}
}

func (p *DSLParser) Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Version: 1,
		Engine:  EngineConfig{DecisionCacheTTL: 1000, MaxInheritDepth: defaultMaxInheritDepth},
	}
	acls := make(map[aclKey]*ResourcePermission)
	var aclOrder []aclKey

	p.line = 0
	for _, raw := range strings.Split(string(data), "\n") {
		p.line++
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || line[0] == '#' {
			continue
		}
		parts := splitLine(line)
		if len(parts) == 0 {
			continue
		}
		var err error
		switch parts[0] {
		case "role":
			err = p.parseRole(cfg, parts[1:])
		case "assign":
			err = p.parseAssign(cfg, parts[1:])
		case "group":
			err = p.parseGroup(cfg, parts[1:])
		case "acl":
			var key aclKey
			key, err = p.parseACL(acls, parts[1:])
			if err == nil {
				found := false
				for _, k := range aclOrder {
					if k == key {
						found = true
						break
					}
				}
				if !found {
					aclOrder = append(aclOrder, key)
				}
			}
		case "engine":
			err = p.parseEngine(cfg, parts[1:])
		default:
			err = fmt.Errorf("unknown directive: %s", parts[0])
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
	}

	for _, key := range aclOrder {
		cfg.ACLs = append(cfg.ACLs, acls[key])
	}
	return cfg, nil
}

func splitLine(line string) []string {
	parts := make([]string, 0, 8)
	start := 0
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '"':
			if inQuote {
				parts = append(parts, line[start:i])
			}
			inQuote = !inQuote
			start = i + 1
		case (line[i] == ' ' || line[i] == '\t') && !inQuote:
			if i > start {
				parts = append(parts, line[start:i])
			}
			start = i + 1
		}
	}
	if start < len(line) {
		parts = append(parts, line[start:])
	}
	return parts
}

func (p *DSLParser) parseRole(cfg *Config, parts []string) error {
	if len(parts) < 4 {
		return fmt.Errorf("role requires: <id> <name> <priority> <perms> [inherits:<role>]")
	}
	priority, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("role priority %q: %w", parts[2], err)
	}
	perms, err := parseDSLPermissions(parts[3])
	if err != nil {
		return err
	}
	def := &RoleDefinition{
		ID:          Role(parts[0]),
		Name:        parts[1],
		Priority:    priority,
		Permissions: perms,
	}
	for _, opt := range parts[4:] {
		if strings.HasPrefix(opt, "inherits:") {
			def.Inherits = Role(opt[len("inherits:"):])
		}
	}
	cfg.Roles = append(cfg.Roles, def)
	return nil
}

func parseDSLPermissions(s string) ([]Permission, error) {
	var perms []Permission
	for _, item := range strings.Split(s, ",") {
		resource, rest, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("permission %q: want resource:actions", item)
		}
		actionsPart, scopePart, _ := strings.Cut(rest, "@")
		perm := Permission{Resource: ResourceType(resource), Scope: Scope(scopePart)}
		for _, a := range strings.Split(actionsPart, "+") {
			perm.Actions = append(perm.Actions, Action(a))
		}
		perms = append(perms, perm)
	}
	return perms, nil
}

func (p *DSLParser) parseAssign(cfg *Config, parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("assign requires: <user> <role> [by:<actor>] [expires:<time>]")
	}
	a := &UserRole{UserID: parts[0], Role: Role(parts[1]), AssignedAt: time.Now()}
	for _, opt := range parts[2:] {
		switch {
		case strings.HasPrefix(opt, "by:"):
			a.AssignedBy = opt[len("by:"):]
		case strings.HasPrefix(opt, "expires:"):
			t, err := date.Parse(opt[len("expires:"):])
			if err != nil {
				return fmt.Errorf("assign expires %q: %w", opt, err)
			}
			a.ExpiresAt = t
		}
	}
	cfg.Assignments = append(cfg.Assignments, a)
	return nil
}

func (p *DSLParser) parseGroup(cfg *Config, parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("group requires: <id> <name> [members:<list>] [roles:<list>]")
	}
	g := &Group{ID: parts[0], Name: parts[1]}
	for _, opt := range parts[2:] {
		switch {
		case strings.HasPrefix(opt, "members:"):
			g.Members = strings.Split(opt[len("members:"):], ",")
		case strings.HasPrefix(opt, "roles:"):
			for _, r := range strings.Split(opt[len("roles:"):], ",") {
				g.Roles = append(g.Roles, Role(r))
			}
		}
	}
	cfg.Groups = append(cfg.Groups, g)
	return nil
}

func (p *DSLParser) parseACL(acls map[aclKey]*ResourcePermission, parts []string) (aclKey, error) {
	if len(parts) < 3 {
		return aclKey{}, fmt.Errorf("acl requires: <resource_type> <resource_id> (inherit | <ptype>:<pid> <actions> ...)")
	}
	key := aclKey{ResourceType(parts[0]), parts[1]}
	acl, ok := acls[key]
	if !ok {
		acl = &ResourcePermission{ResourceType: key.resourceType, ResourceID: key.resourceID}
		acls[key] = acl
	}

	if parts[2] == "inherit" {
		acl.InheritFromParent = true
		return key, nil
	}

	ptype, pid, ok := strings.Cut(parts[2], ":")
	if !ok {
		return aclKey{}, fmt.Errorf("acl principal %q: want <ptype>:<pid>", parts[2])
	}
	if len(parts) < 4 {
		return aclKey{}, fmt.Errorf("acl entry requires an action list")
	}
	entry := ResourcePermissionEntry{
		PrincipalType: PrincipalType(ptype),
		PrincipalID:   pid,
	}
	for _, a := range strings.Split(parts[3], ",") {
		entry.Actions = append(entry.Actions, Action(a))
	}
	for _, opt := range parts[4:] {
		switch {
		case strings.HasPrefix(opt, "scope:"):
			entry.Scope = Scope(opt[len("scope:"):])
		case strings.HasPrefix(opt, "expires:"):
			t, err := date.Parse(opt[len("expires:"):])
			if err != nil {
				return aclKey{}, fmt.Errorf("acl expires %q: %w", opt, err)
			}
			entry.ExpiresAt = t
		}
	}
	acl.Entries = append(acl.Entries, entry)
	return key, nil
}

func (p *DSLParser) parseEngine(cfg *Config, parts []string) error {
	for _, kv := range parts {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("engine option %q: want key=value", kv)
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("engine option %q: %w", kv, err)
		}
		switch key {
		case "cache_ttl":
			cfg.Engine.DecisionCacheTTL = n
		case "max_inherit_depth":
			cfg.Engine.MaxInheritDepth = int(n)
		case "audit_capacity":
			cfg.Engine.AuditCapacity = int(n)
		case "ristretto_counters":
			cfg.Engine.RistrettoNumCounter = n
		case "ristretto_max_cost":
			cfg.Engine.RistrettoMaxCost = n
		case "ristretto_buffer":
			cfg.Engine.RistrettoBuffer = n
		default:
			return fmt.Errorf("unknown engine option %q", key)
		}
	}
	return nil
}

type DSLEncoder struct {
	buf []byte
}

func NewDSLEncoder() *DSLEncoder {
	return &DSLEncoder{buf: make([]byte, 0, 4096)}
}

func (e *DSLEncoder) Encode(cfg *Config) ([]byte, error) {
	e.buf = e.buf[:0]
	var tmp [20]byte

	for _, def := range cfg.Roles {
		e.buf = append(e.buf, "role "...)
		e.buf = append(e.buf, def.ID...)
		e.buf = append(e.buf, ' ')
		e.writeMaybeQuoted(def.Name)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, strconv.AppendInt(tmp[:0], int64(def.Priority), 10)...)
		e.buf = append(e.buf, ' ')
		for i, perm := range def.Permissions {
			if i > 0 {
				e.buf = append(e.buf, ',')
			}
			e.buf = append(e.buf, perm.Resource...)
			e.buf = append(e.buf, ':')
			for j, a := range perm.Actions {
				if j > 0 {
					e.buf = append(e.buf, '+')
				}
				e.buf = append(e.buf, a...)
			}
			if perm.Scope != "" {
				e.buf = append(e.buf, '@')
				e.buf = append(e.buf, perm.Scope...)
			}
		}
		if def.Inherits != "" {
			e.buf = append(e.buf, " inherits:"...)
			e.buf = append(e.buf, def.Inherits...)
		}
		e.buf = append(e.buf, '\n')
	}

	for _, a := range cfg.Assignments {
		e.buf = append(e.buf, "assign "...)
		e.buf = append(e.buf, a.UserID...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, a.Role...)
		if a.AssignedBy != "" {
			e.buf = append(e.buf, " by:"...)
			e.buf = append(e.buf, a.AssignedBy...)
		}
		if !a.ExpiresAt.IsZero() {
			e.buf = append(e.buf, " expires:"...)
			e.buf = append(e.buf, a.ExpiresAt.Format(time.RFC3339)...)
		}
		e.buf = append(e.buf, '\n')
	}

	for _, g := range cfg.Groups {
		e.buf = append(e.buf, "group "...)
		e.buf = append(e.buf, g.ID...)
		e.buf = append(e.buf, ' ')
		e.writeMaybeQuoted(g.Name)
		if len(g.Members) > 0 {
			e.buf = append(e.buf, " members:"...)
			e.buf = append(e.buf, strings.Join(g.Members, ",")...)
		}
		if len(g.Roles) > 0 {
			e.buf = append(e.buf, " roles:"...)
			for i, r := range g.Roles {
				if i > 0 {
					e.buf = append(e.buf, ',')
				}
				e.buf = append(e.buf, r...)
			}
		}
		e.buf = append(e.buf, '\n')
	}

	for _, acl := range cfg.ACLs {
		if acl.InheritFromParent {
			e.buf = append(e.buf, "acl "...)
			e.buf = append(e.buf, acl.ResourceType...)
			e.buf = append(e.buf, ' ')
			e.buf = append(e.buf, acl.ResourceID...)
			e.buf = append(e.buf, " inherit\n"...)
		}
		for _, entry := range acl.Entries {
			e.buf = append(e.buf, "acl "...)
			e.buf = append(e.buf, acl.ResourceType...)
			e.buf = append(e.buf, ' ')
			e.buf = append(e.buf, acl.ResourceID...)
			e.buf = append(e.buf, ' ')
			e.buf = append(e.buf, entry.PrincipalType...)
			e.buf = append(e.buf, ':')
			e.buf = append(e.buf, entry.PrincipalID...)
			e.buf = append(e.buf, ' ')
			for i, a := range entry.Actions {
				if i > 0 {
					e.buf = append(e.buf, ',')
				}
				e.buf = append(e.buf, a...)
			}
			if entry.Scope != "" {
				e.buf = append(e.buf, " scope:"...)
				e.buf = append(e.buf, entry.Scope...)
			}
			if !entry.ExpiresAt.IsZero() {
				e.buf = append(e.buf, " expires:"...)
				e.buf = append(e.buf, entry.ExpiresAt.Format(time.RFC3339)...)
			}
			e.buf = append(e.buf, '\n')
		}
	}

	if cfg.Engine != (EngineConfig{}) {
		var tmp [20]byte
		e.buf = append(e.buf, "engine"...)
		writeOpt := func(key string, v int64) {
			if v > 0 {
				e.buf = append(e.buf, ' ')
				e.buf = append(e.buf, key...)
				e.buf = append(e.buf, '=')
				e.buf = append(e.buf, strconv.AppendInt(tmp[:0], v, 10)...)
			}
		}
		writeOpt("cache_ttl", cfg.Engine.DecisionCacheTTL)
		writeOpt("max_inherit_depth", int64(cfg.Engine.MaxInheritDepth))
		writeOpt("audit_capacity", int64(cfg.Engine.AuditCapacity))
		writeOpt("ristretto_counters", cfg.Engine.RistrettoNumCounter)
		writeOpt("ristretto_max_cost", cfg.Engine.RistrettoMaxCost)
		writeOpt("ristretto_buffer", cfg.Engine.RistrettoBuffer)
		e.buf = append(e.buf, '\n')
	}

	return e.buf, nil
}

func (e *DSLEncoder) writeMaybeQuoted(s string) {
	if strings.ContainsAny(s, " \t") {
		e.buf = append(e.buf, '"')
		e.buf = append(e.buf, s...)
		e.buf = append(e.buf, '"')
		return
	}
	e.buf = append(e.buf, s...)
}
