// Package config loads patchbay settings from YAML.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// validate is a singleton validator instance.
var validate = validator.New()

// Config is the root of the configuration file.
type Config struct {
	Log     Log     `yaml:"log"`
	View    View    `yaml:"view"`
	Files   Files   `yaml:"files"`
	Engine  Engine  `yaml:"engine"`
	Metrics Metrics `yaml:"metrics"`
}

// Log selects the log handler.
type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// View holds the default geometry for new nodes.
type View struct {
	NodeX      int `yaml:"node_x" validate:"gte=0"`
	NodeY      int `yaml:"node_y" validate:"gte=0"`
	NodeWidth  int `yaml:"node_width" validate:"gt=0"`
	NodeHeight int `yaml:"node_height" validate:"gt=0"`
}

// Files controls patch file output.
type Files struct {
	Compress bool `yaml:"compress"`
}

// Engine configures script evaluation.
type Engine struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Metrics configures the prometheus collector.
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace" validate:"required_if=Enabled true"`
}

// Default returns a configuration that works without a file.
func Default() Config {
	return Config{
		Log:     Log{Level: "info", Format: "text"},
		View:    View{NodeX: 100, NodeY: 100, NodeWidth: 100, NodeHeight: 100},
		Engine:  Engine{Timeout: 5 * time.Second},
		Metrics: Metrics{Enabled: true, Namespace: "patchbay"},
	}
}

// Load reads path and overlays it on Default. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
