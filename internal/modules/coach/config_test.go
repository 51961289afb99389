package coach

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Epsilon != 0.1 || cfg.LearningRate != 0.1 {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
	if cfg.RewardStrategy != RewardStrategyImpact {
		t.Fatalf("default strategy = %q", cfg.RewardStrategy)
	}
	if cfg.Thresholds.OverloadOverdue != 5 {
		t.Fatalf("default thresholds wrong: %+v", cfg.Thresholds)
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coach.yaml")
	raw := []byte(`
epsilon: 0.25
reward_strategy: immediate
dedup_window: 12h
thresholds:
  overload_overdue: 9
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Epsilon != 0.25 || cfg.RewardStrategy != RewardStrategyImmediate {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.DedupWindow != 12*time.Hour {
		t.Fatalf("dedup window = %v", cfg.DedupWindow)
	}
	if cfg.Thresholds.OverloadOverdue != 9 {
		t.Fatalf("threshold override missed: %+v", cfg.Thresholds)
	}
	// Untouched keys keep their defaults.
	if cfg.LearningRate != 0.1 || cfg.Thresholds.DisengagementDays != 3 {
		t.Fatalf("defaults clobbered: %+v", cfg)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coach.yaml")
	if err := os.WriteFile(path, []byte("epsilon: 1.5\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("epsilon 1.5 accepted")
	}

	if err := os.WriteFile(path, []byte("reward_strategy: vibes\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("unknown strategy accepted")
	}
}
