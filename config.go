package authz

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of a complete policy state: custom
// roles, user assignments, groups, ACLs, and engine tuning.
type Config struct {
	Version     uint16                `json:"version" yaml:"version"`
	Roles       []*RoleDefinition     `json:"roles,omitempty" yaml:"roles,omitempty"`
	Assignments []*UserRole           `json:"assignments,omitempty" yaml:"assignments,omitempty"`
	Groups      []*Group              `json:"groups,omitempty" yaml:"groups,omitempty"`
	ACLs        []*ResourcePermission `json:"acls,omitempty" yaml:"acls,omitempty"`
	Engine      EngineConfig          `json:"engine" yaml:"engine"`
}

type EngineConfig struct {
	DecisionCacheTTL    int64 `json:"decision_cache_ttl_ms" yaml:"decision_cache_ttl_ms"`
	MaxInheritDepth     int   `json:"max_inherit_depth" yaml:"max_inherit_depth"`
	AuditCapacity       int   `json:"audit_capacity" yaml:"audit_capacity"`
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// ConfigLoader loads configuration from the supported formats.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDSL parses the line-oriented text form.
func (l *ConfigLoader) LoadDSL(data []byte) (*Config, error) {
	return NewDSLParser().Parse(data)
}

// ToYAML exports config to YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to indented JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ToDSL exports config to the line-oriented text form.
func (c *Config) ToDSL() ([]byte, error) {
	return NewDSLEncoder().Encode(c)
}

// Validate checks referential integrity: roles referenced by
// assignments, groups, and ACL role entries must exist, and custom
// role definitions must be registrable.
func (c *Config) Validate() error {
	known := make(map[Role]bool)
	for _, def := range systemRoleDefinitions() {
		known[def.ID] = true
	}
	for _, def := range c.Roles {
		if def.ID == "" {
			return fmt.Errorf("config: role with empty id")
		}
		if known[def.ID] {
			return fmt.Errorf("config: duplicate role %q", def.ID)
		}
		known[def.ID] = true
	}
	for _, def := range c.Roles {
		if def.Inherits != "" && !known[def.Inherits] {
			return fmt.Errorf("config: role %q inherits unknown role %q", def.ID, def.Inherits)
		}
	}
	for _, a := range c.Assignments {
		if a.UserID == "" {
			return fmt.Errorf("config: assignment with empty user id")
		}
		if !known[a.Role] {
			return fmt.Errorf("config: assignment for %q names unknown role %q", a.UserID, a.Role)
		}
	}
	groupIDs := make(map[string]bool, len(c.Groups))
	for _, g := range c.Groups {
		if g.ID == "" {
			return fmt.Errorf("config: group with empty id")
		}
		if groupIDs[g.ID] {
			return fmt.Errorf("config: duplicate group %q", g.ID)
		}
		groupIDs[g.ID] = true
		for _, r := range g.Roles {
			if !known[r] {
				return fmt.Errorf("config: group %q names unknown role %q", g.ID, r)
			}
		}
	}
	for _, acl := range c.ACLs {
		if acl.ResourceID == "" {
			return fmt.Errorf("config: acl with empty resource id")
		}
		if !validResourceType(acl.ResourceType) {
			return fmt.Errorf("config: acl %q has unknown resource type %q", acl.ResourceID, acl.ResourceType)
		}
		for _, e := range acl.Entries {
			if e.PrincipalType == PrincipalRole && !known[Role(e.PrincipalID)] {
				return fmt.Errorf("config: acl %q entry names unknown role %q", acl.ResourceID, e.PrincipalID)
			}
		}
	}
	return nil
}

// ApplyConfig registers custom roles and loads assignments, groups, and
// ACLs into the store. Engine tuning in cfg.Engine only takes effect
// through NewManager options; it is not applied retroactively here.
func (m *Manager) ApplyConfig(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, def := range cfg.Roles {
		if err := m.registry.AddCustomRole(def); err != nil {
			return fmt.Errorf("apply config: %w", err)
		}
	}
	for _, a := range cfg.Assignments {
		if err := m.store.SetUserRole(ctx, a); err != nil {
			return fmt.Errorf("apply config: %w", err)
		}
	}
	for _, g := range cfg.Groups {
		if err := m.store.CreateGroup(ctx, g); err != nil {
			return fmt.Errorf("apply config: %w", err)
		}
	}
	for _, acl := range cfg.ACLs {
		if err := m.store.SetResourcePermission(ctx, acl); err != nil {
			return fmt.Errorf("apply config: %w", err)
		}
	}
	m.mutated(ctx, "config.apply", "", nil, cfg.Version)
	return nil
}
