package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/clients/osrm"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/badge"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/edit"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/scoring"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/segment"
)

// Config represents the complete lab configuration
type Config struct {
	Server  ServerConfig          `yaml:"server"`
	Session SessionConfig         `yaml:"session"`
	Segment segment.Config        `yaml:"segment"`
	Edit    edit.Config           `yaml:"edit"`
	Badge   badge.Config          `yaml:"badge"`
	Planner routing.PlannerConfig `yaml:"planner"`
	OSRM    osrm.Config           `yaml:"osrm"`
	Scoring scoring.Config        `yaml:"scoring"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	CorsOrigins          []string      `yaml:"cors_origins"`
	CacheCleanupInterval time.Duration `yaml:"cache_cleanup_interval"`
}

// SessionConfig controls lab session lifetime
type SessionConfig struct {
	IdleTTL         time.Duration `yaml:"idle_ttl"`         // Sessions untouched this long are dropped
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // How often expired sessions are swept
	MaxSessions     int           `yaml:"max_sessions"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			CorsOrigins:          []string{"*"},
			CacheCleanupInterval: 5 * time.Minute,
		},
		Session: SessionConfig{
			IdleTTL:         2 * time.Hour,
			CleanupInterval: 10 * time.Minute,
			MaxSessions:     256,
		},
		Segment: segment.DefaultConfig(),
		Edit:    edit.DefaultConfig(),
		Badge:   badge.DefaultConfig(),
		Planner: routing.DefaultPlannerConfig(),
		OSRM:    osrm.DefaultConfig(),
		Scoring: scoring.DefaultConfig(),
	}
}

// Load reads a YAML file on top of DefaultConfig. A missing path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects tunings the geometry code cannot work with
func (c *Config) Validate() error {
	var errs []error

	s := c.Segment
	if s.MinFraction <= 0 || s.MaxFraction >= 1 || s.MinFraction >= s.MaxFraction {
		errs = append(errs, fmt.Errorf("segment: need 0 < min_fraction < max_fraction < 1, got %v and %v", s.MinFraction, s.MaxFraction))
	}
	// The splitter needs room on both sides of an even three-way split
	if s.MinFraction >= 1.0/3 || s.MaxFraction <= 1.0/3 {
		errs = append(errs, fmt.Errorf("segment: need min_fraction < 1/3 < max_fraction, got %v and %v", s.MinFraction, s.MaxFraction))
	}

	j := c.Edit.Junction
	if j.MaxJunctions != 0 && j.MaxJunctions < 2 {
		errs = append(errs, fmt.Errorf("edit.junction: max_junctions must be at least 2, got %d", j.MaxJunctions))
	}
	if j.MinSpacingFraction < 0 || j.MinSpacingFraction >= 1 {
		errs = append(errs, fmt.Errorf("edit.junction: min_spacing_fraction must be in [0, 1), got %v", j.MinSpacingFraction))
	}
	for _, f := range j.BackfillFractions {
		if f <= 0 || f >= 1 {
			errs = append(errs, fmt.Errorf("edit.junction: backfill fraction %v outside (0, 1)", f))
		}
	}
	if c.Edit.MaxRoutingPoints != 0 && c.Edit.MaxRoutingPoints < 2 {
		errs = append(errs, fmt.Errorf("edit: max_routing_points must be at least 2, got %d", c.Edit.MaxRoutingPoints))
	}

	if c.Planner.InterRequestDelay < 0 {
		errs = append(errs, errors.New("planner: inter_request_delay must not be negative"))
	}
	if c.Scoring.SampleStepMeters < 0 {
		errs = append(errs, errors.New("scoring: sample_step_meters must not be negative"))
	}
	if c.Session.MaxSessions < 0 {
		errs = append(errs, errors.New("session: max_sessions must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
