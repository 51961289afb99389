package coach

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	RewardStrategyImpact    = "impact"
	RewardStrategyImmediate = "immediate"
)

// Thresholds are the tunable detector rule parameters. Defaults mirror the
// shipped ruleset; deployments override them via the coach tuning file.
type Thresholds struct {
	FatigueConsistency  float64 `yaml:"fatigue_consistency"`
	FatigueCompletions  int     `yaml:"fatigue_completions"`
	OverloadOverdue     int     `yaml:"overload_overdue"`
	DisengagementDays   int     `yaml:"disengagement_days"`
	MomentumConsistency float64 `yaml:"momentum_consistency"`
	MomentumCompletions int     `yaml:"momentum_completions"`
	RelapseChurnRisk    float64 `yaml:"relapse_churn_risk"`
}

type Config struct {
	Epsilon      float64 `yaml:"epsilon"`
	LearningRate float64 `yaml:"learning_rate"`
	// InitScale bounds the random magnitude of lazily created weights.
	InitScale float64 `yaml:"init_scale"`
	// RewardStrategy selects between the impact and immediate reward
	// calculators; they are intentionally not merged.
	RewardStrategy string `yaml:"reward_strategy"`

	DedupWindow time.Duration `yaml:"dedup_window"`
	// SettleDelay is how long an experience rests before the delayed pass
	// computes its reward from after-metrics.
	SettleDelay      time.Duration `yaml:"settle_delay"`
	BatchLimit       int           `yaml:"batch_limit"`
	BatchParallelism int           `yaml:"batch_parallelism"`
	ItemTimeout      time.Duration `yaml:"item_timeout"`
	StoreMaxRetries  int           `yaml:"store_max_retries"`
	StoreRetryDelay  time.Duration `yaml:"store_retry_delay"`

	Thresholds Thresholds `yaml:"thresholds"`
}

func DefaultConfig() Config {
	return Config{
		Epsilon:          0.1,
		LearningRate:     0.1,
		InitScale:        0.01,
		RewardStrategy:   RewardStrategyImpact,
		DedupWindow:      24 * time.Hour,
		SettleDelay:      6 * time.Hour,
		BatchLimit:       200,
		BatchParallelism: 4,
		ItemTimeout:      15 * time.Second,
		StoreMaxRetries:  3,
		StoreRetryDelay:  200 * time.Millisecond,
		Thresholds: Thresholds{
			FatigueConsistency:  0.4,
			FatigueCompletions:  3,
			OverloadOverdue:     5,
			DisengagementDays:   3,
			MomentumConsistency: 0.8,
			MomentumCompletions: 5,
			RelapseChurnRisk:    0.6,
		},
	}
}

// LoadConfig overlays the tuning file (when present) onto defaults. An
// empty path returns defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read coach config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse coach config: %w", err)
	}
	return cfg, cfg.validate()
}

// UnmarshalYAML overlays present keys onto the receiver, so LoadConfig
// keeps defaults for anything the tuning file omits. Duration fields
// accept Go syntax ("12h", "200ms").
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Epsilon          *float64  `yaml:"epsilon"`
		LearningRate     *float64  `yaml:"learning_rate"`
		InitScale        *float64  `yaml:"init_scale"`
		RewardStrategy   *string   `yaml:"reward_strategy"`
		BatchLimit       *int      `yaml:"batch_limit"`
		BatchParallelism *int      `yaml:"batch_parallelism"`
		StoreMaxRetries  *int      `yaml:"store_max_retries"`
		DedupWindow      string    `yaml:"dedup_window"`
		SettleDelay      string    `yaml:"settle_delay"`
		ItemTimeout      string    `yaml:"item_timeout"`
		StoreRetryDelay  string    `yaml:"store_retry_delay"`
		Thresholds       yaml.Node `yaml:"thresholds"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Epsilon != nil {
		c.Epsilon = *raw.Epsilon
	}
	if raw.LearningRate != nil {
		c.LearningRate = *raw.LearningRate
	}
	if raw.InitScale != nil {
		c.InitScale = *raw.InitScale
	}
	if raw.RewardStrategy != nil {
		c.RewardStrategy = *raw.RewardStrategy
	}
	if raw.BatchLimit != nil {
		c.BatchLimit = *raw.BatchLimit
	}
	if raw.BatchParallelism != nil {
		c.BatchParallelism = *raw.BatchParallelism
	}
	if raw.StoreMaxRetries != nil {
		c.StoreMaxRetries = *raw.StoreMaxRetries
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{raw.DedupWindow, &c.DedupWindow},
		{raw.SettleDelay, &c.SettleDelay},
		{raw.ItemTimeout, &c.ItemTimeout},
		{raw.StoreRetryDelay, &c.StoreRetryDelay},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", d.raw, err)
		}
		*d.dst = v
	}
	if raw.Thresholds.Kind != 0 {
		if err := raw.Thresholds.Decode(&c.Thresholds); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) validate() error {
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("epsilon must be in [0,1], got %v", c.Epsilon)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %v", c.LearningRate)
	}
	switch c.RewardStrategy {
	case RewardStrategyImpact, RewardStrategyImmediate:
	default:
		return fmt.Errorf("unknown reward_strategy %q", c.RewardStrategy)
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("dedup_window must be positive")
	}
	return nil
}
