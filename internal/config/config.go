// Package config defines engine configuration and loading.
//
// Conventions:
// - Defaults live in New; Load layers an optional YAML file and POA_* env vars on top.
// - The loaded Config is validated once and then passed by value into
//   constructors. No component reads the environment on its own.
package config

import "runtime"

// Config contains all tuning knobs for the scoring engine.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the dirty-NFT recompute queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the vote-event idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// Publish gate minimum-data thresholds.
	MinHeadToHead        int `koanf:"min_h2h"`
	MinUniqueOpponents   int `koanf:"min_unique_opponents"`
	MinSliderRatings     int `koanf:"min_slider_ratings"`
	MinUniqueSliderUsers int `koanf:"min_unique_slider_users"`

	// MinPOAChange is the smallest score delta worth republishing.
	MinPOAChange float64 `koanf:"min_poa_change"`

	// GracePeriodSeconds debounces successive publishes per NFT.
	GracePeriodSeconds int `koanf:"grace_period_seconds"`

	// ConfidenceTiers are ascending cut points; crossing one justifies a republish.
	ConfidenceTiers []float64 `koanf:"confidence_tiers"`

	// Composite weights; must sum to 1.
	EloWeight    float64 `koanf:"elo_weight"`
	SliderWeight float64 `koanf:"slider_weight"`
	FireWeight   float64 `koanf:"fire_weight"`

	// Elo parameters.
	InitialEloMean        float64 `koanf:"initial_elo_mean"`
	InitialEloUncertainty float64 `koanf:"initial_elo_uncertainty"`
	EloUncertaintyFloor   float64 `koanf:"elo_uncertainty_floor"`
	EloUncertaintyDecay   float64 `koanf:"elo_uncertainty_decay"`
	EloKFactor            float64 `koanf:"elo_k_factor"`
	SuperVoteMultiplier   float64 `koanf:"super_vote_multiplier"`

	// Reliability bounds and step size.
	ReliabilityFloor   float64 `koanf:"reliability_floor"`
	ReliabilityCeiling float64 `koanf:"reliability_ceiling"`
	ReliabilityStep    float64 `koanf:"reliability_step"`

	// ProvisionalConfidence marks published scores below it as provisional.
	ProvisionalConfidence float64 `koanf:"provisional_confidence"`

	// Vote processor conflict handling.
	ConflictRetries   int `koanf:"conflict_retries"`
	ConflictBackoffMS int `koanf:"conflict_backoff_ms"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		QueueSize:           100_000,
		WorkerCount:         runtime.NumCPU() * 4,
		DedupeSize:          500_000,
		MaxLeaderboardLimit: 100,

		MinHeadToHead:        5,
		MinUniqueOpponents:   3,
		MinSliderRatings:     2,
		MinUniqueSliderUsers: 2,

		MinPOAChange:       0.5,
		GracePeriodSeconds: 300,
		ConfidenceTiers:    []float64{20, 30, 40, 50, 60, 70, 80, 90},

		EloWeight:    0.5,
		SliderWeight: 0.35,
		FireWeight:   0.15,

		InitialEloMean:        1200,
		InitialEloUncertainty: 350,
		EloUncertaintyFloor:   80,
		EloUncertaintyDecay:   0.97,
		EloKFactor:            32,
		SuperVoteMultiplier:   2.0,

		ReliabilityFloor:   0.5,
		ReliabilityCeiling: 2.0,
		ReliabilityStep:    0.1,

		ProvisionalConfidence: 50,

		ConflictRetries:   5,
		ConflictBackoffMS: 20,
	}
}
