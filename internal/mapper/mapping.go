// Package mapper translates raw source records into the canonical
// NormalizedResource schema using per-source declarative mapping configs.
package mapper

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/communityroots/resource-cli/internal/model"
)

// MappingConfig declares how one source's raw records map onto the canonical
// schema. Configs are typically loaded from per-source YAML files.
type MappingConfig struct {
	SourceName  string `yaml:"source_name"`
	DisplayName string `yaml:"display_name"`

	// FieldMap renames raw keys to canonical keys. Raw keys may use
	// dot-paths to reach into nested objects ("location.address_1").
	FieldMap map[string]string `yaml:"field_map"`

	// CategoryMap resolves raw category strings (case-insensitive) to a
	// canonical primary category. A "*" key is the wildcard default.
	CategoryMap map[string]string `yaml:"category_map"`

	// ServiceMap resolves raw service names. Exact match first, then
	// case-insensitive substring match on the keys; unmatched raw strings
	// pass through unchanged.
	ServiceMap map[string]string `yaml:"service_map"`

	// Tags is appended verbatim to every record from this source.
	Tags []string `yaml:"tags"`

	VerificationLevel model.VerificationLevel `yaml:"verification_level"`
	RequiresGeocoding bool                    `yaml:"requires_geocoding"`

	// RequestsPerMinute is the source's declared rate budget for any
	// network fetches made on its behalf. Zero means no declared budget.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// LoadMappingConfig reads and validates a per-source mapping config from a
// YAML file.
func LoadMappingConfig(path string) (*MappingConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapper: read mapping config %s", path)
	}

	var cfg MappingConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, eris.Wrapf(err, "mapper: parse mapping config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural requirements of the config.
func (c *MappingConfig) Validate() error {
	if c.SourceName == "" {
		return eris.New("mapper: mapping config missing source_name")
	}
	if len(c.FieldMap) == 0 {
		return eris.Errorf("mapper: source %q: empty field_map", c.SourceName)
	}
	switch c.VerificationLevel {
	case model.LevelGovernment, model.LevelPartial, model.LevelUnverified:
	case "":
		c.VerificationLevel = model.LevelUnverified
	default:
		return eris.Errorf("mapper: source %q: invalid verification_level %q", c.SourceName, c.VerificationLevel)
	}
	return nil
}
