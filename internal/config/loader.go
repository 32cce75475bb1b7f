package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const weightSumTolerance = 1e-6

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if POA_CONFIG is set
//  3. env (prefix POA_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("POA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: POA_ADDR, POA_MIN_H2H, ...
	// Map env keys like POA_QUEUE_SIZE -> queue_size (flat keys matching koanf tags).
	envProvider := env.Provider("POA_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "poa_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MinHeadToHead < 0 || c.MinUniqueOpponents < 0 ||
		c.MinSliderRatings < 0 || c.MinUniqueSliderUsers < 0:
		return fmt.Errorf("%w: gate thresholds must not be negative", ErrInvalidConfig)
	case c.MinPOAChange < 0:
		return fmt.Errorf("%w: min_poa_change must not be negative", ErrInvalidConfig)
	case c.GracePeriodSeconds < 0:
		return fmt.Errorf("%w: grace_period_seconds must not be negative", ErrInvalidConfig)
	case c.InitialEloUncertainty <= 0:
		return fmt.Errorf("%w: initial_elo_uncertainty must be positive", ErrInvalidConfig)
	case c.EloUncertaintyFloor <= 0 || c.EloUncertaintyFloor > c.InitialEloUncertainty:
		return fmt.Errorf("%w: elo_uncertainty_floor must be in (0, initial_elo_uncertainty]", ErrInvalidConfig)
	case c.EloUncertaintyDecay <= 0 || c.EloUncertaintyDecay > 1:
		return fmt.Errorf("%w: elo_uncertainty_decay must be in (0, 1]", ErrInvalidConfig)
	case c.EloKFactor <= 0:
		return fmt.Errorf("%w: elo_k_factor must be positive", ErrInvalidConfig)
	case c.SuperVoteMultiplier < 1:
		return fmt.Errorf("%w: super_vote_multiplier must be at least 1", ErrInvalidConfig)
	case c.ReliabilityFloor <= 0 || c.ReliabilityFloor >= c.ReliabilityCeiling:
		return fmt.Errorf("%w: reliability bounds must satisfy 0 < floor < ceiling", ErrInvalidConfig)
	case c.ReliabilityStep <= 0 || c.ReliabilityStep > 1:
		return fmt.Errorf("%w: reliability_step must be in (0, 1]", ErrInvalidConfig)
	case c.ConflictRetries < 1:
		return fmt.Errorf("%w: conflict_retries must be positive", ErrInvalidConfig)
	}

	if sum := c.EloWeight + c.SliderWeight + c.FireWeight; math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: component weights must sum to 1, got %v", ErrInvalidConfig, sum)
	}
	if c.EloWeight < 0 || c.SliderWeight < 0 || c.FireWeight < 0 {
		return fmt.Errorf("%w: component weights must not be negative", ErrInvalidConfig)
	}

	if len(c.ConfidenceTiers) == 0 {
		return fmt.Errorf("%w: confidence_tiers must not be empty", ErrInvalidConfig)
	}
	if !sort.Float64sAreSorted(c.ConfidenceTiers) {
		return fmt.Errorf("%w: confidence_tiers must be ascending", ErrInvalidConfig)
	}
	for i := 1; i < len(c.ConfidenceTiers); i++ {
		if c.ConfidenceTiers[i] == c.ConfidenceTiers[i-1] {
			return fmt.Errorf("%w: confidence_tiers must be strictly increasing", ErrInvalidConfig)
		}
	}
	return nil
}
