package sfm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the full configuration file
type Config struct {
	Clean   CleanParams    `yaml:"clean" json:"clean"`
	MQTT    MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Sources []SourceConfig `yaml:"sources" json:"sources"`
	History HistoryConfig  `yaml:"history,omitempty" json:"history,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// SourceConfig defines a scene source. Scenes arrive on Topic, or are
// fetched from APIURL on demand.
type SourceConfig struct {
	ID     string  `yaml:"id" json:"id"`
	Topic  string  `yaml:"topic" json:"topic"`
	APIURL *string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"`
}

// HistoryConfig locates the clean run history database
type HistoryConfig struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// GetSourceByID returns the source config for the given ID
func (c *Config) GetSourceByID(id string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i]
		}
	}
	return nil
}

// LoadConfig loads the configuration from a YAML file. Clean thresholds
// missing from the file keep their DefaultCleanParams values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Config{Clean: DefaultCleanParams()}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks required fields and threshold ranges. The broker is
// optional here: fetch and HTTP-only modes run without one, and MQTT_BROKER
// may supply it at connect time.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be defined")
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, sc := range c.Sources {
		if sc.ID == "" {
			return fmt.Errorf("sources[%d].id is required", i)
		}
		if seen[sc.ID] {
			return fmt.Errorf("sources[%d].id %q is duplicated", i, sc.ID)
		}
		seen[sc.ID] = true
		if sc.Topic == "" && (sc.APIURL == nil || *sc.APIURL == "") {
			return fmt.Errorf("sources[%d] needs a topic or apiUrl for %s", i, sc.ID)
		}
	}

	return c.Clean.Validate()
}

// Validate checks the threshold ranges
func (p CleanParams) Validate() error {
	if p.TriangCosAngThresh < -1 || p.TriangCosAngThresh > 1 {
		return fmt.Errorf("clean.triangulationAngleCos must be within [-1, 1], got %g", p.TriangCosAngThresh)
	}
	if p.CoverageThresh < 0 || p.CoverageThresh > 1 {
		return fmt.Errorf("clean.coverageThreshold must be within [0, 1], got %g", p.CoverageThresh)
	}
	if p.OutlierStdevBound < 0 {
		return fmt.Errorf("clean.outlierStdevBound must not be negative, got %g", p.OutlierStdevBound)
	}
	return nil
}

// LoadCleanParams reads only the clean section of a config file. One-shot
// runs use it since they need no broker or sources.
func LoadCleanParams(path string) (CleanParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CleanParams{}, fmt.Errorf("reading config file: %w", err)
	}
	config := Config{Clean: DefaultCleanParams()}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return CleanParams{}, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := config.Clean.Validate(); err != nil {
		return CleanParams{}, err
	}
	return config.Clean, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
