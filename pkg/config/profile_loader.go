package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OrgProfile is a declarative organisation seed: deployments describe their
// tenants in YAML and the server registers them at startup. Signing secrets
// are never part of a profile; the registry generates them.
type OrgProfile struct {
	OrgID       string          `yaml:"org_id" json:"org_id"`
	DisplayName string          `yaml:"display_name" json:"display_name"`
	Scopes      []string        `yaml:"scopes,omitempty" json:"scopes,omitempty"`
	Sandbox     bool            `yaml:"sandbox,omitempty" json:"sandbox,omitempty"`
	KeyTTLDays  int             `yaml:"key_ttl_days,omitempty" json:"key_ttl_days,omitempty"`
	Rules       []DeviationRule `yaml:"deviation_rules,omitempty" json:"deviation_rules,omitempty"`
	Retention   RetentionConfig `yaml:"retention,omitempty" json:"retention,omitempty"`
}

// DeviationRule is an operator-defined policy rule evaluated during bundle
// generation, in addition to the built-in rules.
type DeviationRule struct {
	Name        string `yaml:"name" json:"name"`
	Expression  string `yaml:"expression" json:"expression"`
	Description string `yaml:"description" json:"description"`
	Severity    string `yaml:"severity" json:"severity"`
}

// RetentionConfig defines data retention policy per organisation.
type RetentionConfig struct {
	MaxDays      int `yaml:"max_days,omitempty" json:"max_days,omitempty"`
	AuditLogDays int `yaml:"audit_log_days,omitempty" json:"audit_log_days,omitempty"`
}

// KeyTTL returns the configured signing key lifetime, or zero when the
// deployment should use the registry default.
func (p *OrgProfile) KeyTTL() time.Duration {
	return time.Duration(p.KeyTTLDays) * 24 * time.Hour
}

// LoadProfile loads one org profile YAML by org ID. It searches the seed
// directory for org_<id>.yaml.
func LoadProfile(seedDir, orgID string) (*OrgProfile, error) {
	path := filepath.Join(seedDir, fmt.Sprintf("org_%s.yaml", strings.ToLower(orgID)))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", orgID, err)
	}

	var profile OrgProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", orgID, err)
	}

	if profile.OrgID == "" {
		profile.OrgID = orgID
	}
	if profile.DisplayName == "" {
		return nil, fmt.Errorf("profile %q: display_name is required", orgID)
	}

	return &profile, nil
}

// LoadAllProfiles loads every org_*.yaml file from the seed directory.
func LoadAllProfiles(seedDir string) (map[string]*OrgProfile, error) {
	matches, err := filepath.Glob(filepath.Join(seedDir, "org_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*OrgProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile OrgProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.OrgID == "" {
			// Extract the ID from the filename: org_acme.yaml -> acme
			base := filepath.Base(path)
			profile.OrgID = strings.TrimSuffix(strings.TrimPrefix(base, "org_"), ".yaml")
		}
		if profile.DisplayName == "" {
			return nil, fmt.Errorf("%s: display_name is required", path)
		}

		profiles[profile.OrgID] = &profile
	}

	return profiles, nil
}
