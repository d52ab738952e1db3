// Package config holds the run configuration of the control plane: the
// branch predictor organization, strict input checking, tracing and logging.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/dualsim/timing/pipeline"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// PredictorConfig selects the branch predictor table.
type PredictorConfig struct {
	// Table is one of "ideal", "set-associative" or "lru". Default: ideal.
	Table string `json:"table" toml:"table"`

	// Entries is the capacity of finite tables. Default: 1024.
	Entries int `json:"entries" toml:"entries"`

	// Associativity is the number of ways of a set-associative table.
	// Default: 1 (direct-mapped).
	Associativity int `json:"associativity" toml:"associativity"`
}

// Config holds the control-plane run configuration.
type Config struct {
	Predictor PredictorConfig `json:"predictor" toml:"predictor"`

	// Strict panics on cycles whose register numbers are out of range.
	Strict bool `json:"strict" toml:"strict"`

	// Trace enables the per-cycle trace log.
	Trace bool `json:"trace" toml:"trace"`

	// LogLevel is a logrus level name. Default: "info".
	LogLevel string `json:"log_level" toml:"log_level"`
}

// DefaultConfig returns a Config with an unbounded predictor table.
func DefaultConfig() *Config {
	bp := pipeline.DefaultBranchPredictorConfig()
	return &Config{
		Predictor: PredictorConfig{
			Table:         string(bp.Table),
			Entries:       bp.Entries,
			Associativity: bp.Associativity,
		},
		LogLevel: logrus.InfoLevel.String(),
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads a Config from a file. Files ending in .toml are parsed as
// TOML, everything else as JSON. Missing fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := DefaultConfig()
	if isTOML(path) {
		err = toml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}

	return config, nil
}

// Marshal serializes the config as TOML or indented JSON.
func (c *Config) Marshal(asTOML bool) ([]byte, error) {
	if asTOML {
		return toml.Marshal(*c)
	}
	return json.MarshalIndent(c, "", "  ")
}

// SaveConfig writes the config to a file, in TOML when the path ends in
// .toml and JSON otherwise.
func (c *Config) SaveConfig(path string) error {
	data, err := c.Marshal(isTOML(path))
	if err != nil {
		return errors.Wrap(err, "failed to serialize config")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// Validate checks the predictor organization and the log level.
func (c *Config) Validate() error {
	p := c.Predictor

	switch pipeline.TableKind(p.Table) {
	case pipeline.TableIdeal:
	case pipeline.TableLRU:
		if p.Entries <= 0 {
			return errors.Wrap(ErrInvalidConfig, "predictor.entries must be > 0")
		}
	case pipeline.TableSetAssociative:
		if p.Entries <= 0 || p.Entries&(p.Entries-1) != 0 {
			return errors.Wrapf(ErrInvalidConfig,
				"predictor.entries must be a power of 2, got %d", p.Entries)
		}
		if p.Associativity <= 0 || p.Entries%p.Associativity != 0 {
			return errors.Wrapf(ErrInvalidConfig,
				"predictor.associativity must divide entries, got %d", p.Associativity)
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown predictor.table %q", p.Table)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "log_level: %v", err)
	}

	return nil
}

// Level returns the configured log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// BranchPredictor converts the predictor section to a pipeline config.
func (c *Config) BranchPredictor() pipeline.BranchPredictorConfig {
	return pipeline.BranchPredictorConfig{
		Table:         pipeline.TableKind(c.Predictor.Table),
		Entries:       c.Predictor.Entries,
		Associativity: c.Predictor.Associativity,
	}
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
