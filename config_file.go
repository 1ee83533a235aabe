package optics

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML form of Config:
//
//	min_pts: 10
//	epsilon: 2.5      # omit or .inf for k-NN neighborhoods
//	metric: minkowski # euclidean | manhattan | chebyshev | minkowski
//	p: 3
//	index: kdtree     # kdtree | linear
//	start: 42
//	workers: 4
type fileConfig struct {
	MinPts  *int     `yaml:"min_pts"`
	Epsilon *float64 `yaml:"epsilon,omitempty"`
	Metric  string   `yaml:"metric,omitempty"`
	P       float64  `yaml:"p,omitempty"`
	Index   string   `yaml:"index,omitempty"`
	Start   *uint32  `yaml:"start,omitempty"`
	Workers int      `yaml:"workers,omitempty"`
}

// LoadConfig decodes a YAML config. Fields that are absent keep their
// DefaultConfig value; unknown fields are rejected. The result has defaults
// applied and is validated.
func LoadConfig(r io.Reader) (Config, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("optics: failed to parse config: %w: %w", ErrInvalidConfig, err)
	}

	cfg := DefaultConfig()
	if fc.MinPts != nil {
		cfg.MinPts = *fc.MinPts
	}
	if fc.Epsilon != nil {
		cfg.Epsilon = *fc.Epsilon
	}
	metric, err := MetricByName(fc.Metric, fc.P)
	if err != nil {
		return Config{}, err
	}
	cfg.Metric = metric
	if fc.Index != "" {
		cfg.Index = IndexKind(fc.Index)
	}
	if fc.Start != nil {
		start := ID(*fc.Start)
		cfg.Start = &start
	}
	cfg.Workers = fc.Workers

	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config from path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("optics: failed to read config file: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}
