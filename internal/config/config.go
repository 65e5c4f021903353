// Package config holds the YAML-backed run configuration shared by the CLI
// commands.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okanon/octograv/internal/voxel"
)

const (
	DefaultDt        = 0.01
	DefaultDuration  = 10.0
	DefaultTheta     = 0.6
	DefaultG         = 1.0
	DefaultSoftening = 0.05
	DefaultParticles = 4096
)

type Config struct {
	// Backend selects the compute device: "cpu", "opengl" or "auto".
	Backend   string  `yaml:"backend"`
	Particles int     `yaml:"particles"`
	Theta     float64 `yaml:"theta"`
	G         float64 `yaml:"g"`
	Softening float64 `yaml:"softening"`
	Occupancy bool    `yaml:"occupancy"`
	// NearField enables the same-voxel direct correction pass.
	NearField bool `yaml:"near_field"`
	// Levels lists the moment pyramid from finest to coarsest. Each entry
	// must halve the previous grid size.
	Levels []voxel.LevelSpec `yaml:"levels"`

	Distribution string  `yaml:"distribution"`
	Dt           float64 `yaml:"dt"`
	Duration     float64 `yaml:"duration"`
	Seed         int64   `yaml:"seed"`
	SortEvery    int     `yaml:"sort_every"`

	OutputDir   string `yaml:"output_dir"`
	SampleEvery int    `yaml:"sample_every"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend:      "auto",
		Particles:    DefaultParticles,
		Theta:        DefaultTheta,
		G:            DefaultG,
		Softening:    DefaultSoftening,
		Occupancy:    true,
		Distribution: "plummer",
		Dt:           DefaultDt,
		Duration:     DefaultDuration,
		Seed:         1,
		SortEvery:    16,
		SampleEvery:  10,
		Levels: []voxel.LevelSpec{
			{GridSize: 64, SlicesPerRow: 8},
			{GridSize: 32, SlicesPerRow: 8},
			{GridSize: 16, SlicesPerRow: 4},
			{GridSize: 8, SlicesPerRow: 4},
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Particles < 1 {
		return fmt.Errorf("config: particles must be positive, got %d", c.Particles)
	}
	if c.Theta < 0 {
		return fmt.Errorf("config: theta must be non-negative, got %f", c.Theta)
	}
	if c.Softening < 0 {
		return fmt.Errorf("config: softening must be non-negative, got %f", c.Softening)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("config: dt must be positive, got %f", c.Dt)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("config: duration must be positive, got %f", c.Duration)
	}
	switch c.Backend {
	case "auto", "cpu", "opengl":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if len(c.Levels) == 0 {
		return fmt.Errorf("config: at least one pyramid level is required")
	}
	return voxel.ValidateChain(c.Levels)
}
