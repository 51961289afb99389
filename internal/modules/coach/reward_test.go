package coach

import (
	"math"
	"testing"
	"time"

	types "github.com/yungbote/habitloop-backend/internal/domain"
)

func snapshotWith(quality float64) types.FeatureSnapshot {
	return types.FeatureSnapshot{
		HabitCompletionRate: 0.5,
		TaskCompletionRate:  0.5,
		OverdueRatio:        0.2,
		Momentum:            0.5,
		ChurnRisk:           0.4,
		DataQuality:         quality,
	}
}

func TestImpactRewardImprovementIsPositive(t *testing.T) {
	before := snapshotWith(1)
	after := before
	after.Momentum = 0.9
	after.HabitCompletionRate = 0.8
	after.OverdueRatio = 0.05

	r := ImpactReward(ImpactRewardInput{
		Feedback:      types.FeedbackCompleted,
		MetricsBefore: before,
		MetricsAfter:  after,
	})
	if r <= 0 {
		t.Fatalf("improvement scored %v, want positive", r)
	}
	if r > RewardBound {
		t.Fatalf("reward %v exceeds bound", r)
	}
}

func TestImpactRewardRegressionIsNegative(t *testing.T) {
	before := snapshotWith(1)
	after := before
	after.Momentum = 0.1
	after.OverdueRatio = 0.8
	after.ChurnRisk = 0.9

	r := ImpactReward(ImpactRewardInput{
		Feedback:      types.FeedbackRejected,
		MetricsBefore: before,
		MetricsAfter:  after,
	})
	if r >= 0 {
		t.Fatalf("regression scored %v, want negative", r)
	}
	if r < -RewardBound {
		t.Fatalf("reward %v below bound", r)
	}
}

func TestImpactRewardScalesWithDataQuality(t *testing.T) {
	after := snapshotWith(1)
	after.Momentum = 0.9
	after.HabitCompletionRate = 0.9

	full := ImpactReward(ImpactRewardInput{
		Feedback:      types.FeedbackAccepted,
		MetricsBefore: snapshotWith(1),
		MetricsAfter:  after,
	})
	sparse := ImpactReward(ImpactRewardInput{
		Feedback:      types.FeedbackAccepted,
		MetricsBefore: snapshotWith(0.2),
		MetricsAfter:  after,
	})
	if math.Abs(sparse) >= math.Abs(full) {
		t.Fatalf("sparse data reward %v not damped vs %v", sparse, full)
	}
	if sparse == 0 {
		t.Fatalf("quality floor should keep some learning signal")
	}
}

func TestImpactRewardClamped(t *testing.T) {
	before := snapshotWith(1)
	after := before
	after.Momentum = 1
	after.HabitCompletionRate = 1
	after.TaskCompletionRate = 1
	after.OverdueRatio = 0
	after.ChurnRisk = 0

	r := ImpactReward(ImpactRewardInput{
		Feedback:      types.FeedbackCompleted,
		Explicit:      types.ExplicitHelpful,
		MetricsBefore: before,
		MetricsAfter:  after,
	})
	if r < -RewardBound || r > RewardBound {
		t.Fatalf("reward %v outside [-%v, %v]", r, RewardBound, RewardBound)
	}
}

func TestImmediateRewardOrdering(t *testing.T) {
	at := func(kind string) float64 {
		return ImmediateReward(ImmediateRewardInput{Feedback: kind, TimeToAction: time.Hour})
	}
	completed := at(types.FeedbackCompleted)
	accepted := at(types.FeedbackAccepted)
	ignored := at(types.FeedbackIgnored)
	rejected := at(types.FeedbackRejected)

	if !(completed > accepted && accepted > ignored && ignored > rejected) {
		t.Fatalf("ordering violated: completed=%v accepted=%v ignored=%v rejected=%v",
			completed, accepted, ignored, rejected)
	}
	if rejected >= 0 || ignored >= 0 {
		t.Fatalf("negative outcomes must score negative: ignored=%v rejected=%v", ignored, rejected)
	}
}

func TestImmediateRewardDecaysWithSlowAcceptance(t *testing.T) {
	fast := ImmediateReward(ImmediateRewardInput{
		Feedback:     types.FeedbackAccepted,
		TimeToAction: 5 * time.Minute,
	})
	slow := ImmediateReward(ImmediateRewardInput{
		Feedback:     types.FeedbackAccepted,
		TimeToAction: 20 * time.Hour,
	})
	if slow >= fast {
		t.Fatalf("slow acceptance %v not decayed vs fast %v", slow, fast)
	}
	if slow < fast/2-1e-9 {
		t.Fatalf("decay floor breached: %v vs %v", slow, fast)
	}
}

func TestImmediateRewardPenalizesSlowDismissal(t *testing.T) {
	fastReject := ImmediateReward(ImmediateRewardInput{
		Feedback:     types.FeedbackRejected,
		TimeToAction: time.Minute,
	})
	slowReject := ImmediateReward(ImmediateRewardInput{
		Feedback:     types.FeedbackRejected,
		TimeToAction: 20 * time.Hour,
	})
	if slowReject >= fastReject {
		t.Fatalf("slow rejection %v not penalized vs fast %v", slowReject, fastReject)
	}

	fastIgnore := ImmediateReward(ImmediateRewardInput{
		Feedback:     types.FeedbackIgnored,
		TimeToAction: time.Minute,
	})
	slowIgnore := ImmediateReward(ImmediateRewardInput{
		Feedback:     types.FeedbackIgnored,
		TimeToAction: 20 * time.Hour,
	})
	if slowIgnore >= fastIgnore {
		t.Fatalf("slow ignore %v not penalized vs fast %v", slowIgnore, fastIgnore)
	}

	// The penalty saturates at 24h; stalling longer cannot sink the
	// reward past the bound.
	stalled := ImmediateReward(ImmediateRewardInput{
		Feedback:     types.FeedbackRejected,
		TimeToAction: 100 * time.Hour,
	})
	if stalled != -3 {
		t.Fatalf("expected saturated penalty of -3, got %v", stalled)
	}
}

func TestImmediateRewardMetricDelta(t *testing.T) {
	flat := ImmediateReward(ImmediateRewardInput{Feedback: types.FeedbackAccepted})
	up := ImmediateReward(ImmediateRewardInput{
		Feedback:    types.FeedbackAccepted,
		MetricDelta: 0.3,
	})
	down := ImmediateReward(ImmediateRewardInput{
		Feedback:    types.FeedbackAccepted,
		MetricDelta: -0.3,
	})
	if up <= flat || down >= flat {
		t.Fatalf("metric delta ignored: flat=%v up=%v down=%v", flat, up, down)
	}

	// The delta term is clamped; a wild swing cannot dominate feedback.
	extreme := ImmediateReward(ImmediateRewardInput{
		Feedback:    types.FeedbackAccepted,
		MetricDelta: 50,
	})
	if extreme != flat+1 {
		t.Fatalf("expected clamped delta contribution of 1, got %v vs %v", extreme, flat)
	}
}

func TestImmediateRewardExplicitLabels(t *testing.T) {
	plain := ImmediateReward(ImmediateRewardInput{Feedback: types.FeedbackAccepted})
	helpful := ImmediateReward(ImmediateRewardInput{
		Feedback: types.FeedbackAccepted,
		Explicit: types.ExplicitHelpful,
	})
	unhelpful := ImmediateReward(ImmediateRewardInput{
		Feedback: types.FeedbackAccepted,
		Explicit: types.ExplicitNotHelpful,
	})
	if helpful <= plain || unhelpful >= plain {
		t.Fatalf("explicit labels ignored: plain=%v helpful=%v unhelpful=%v", plain, helpful, unhelpful)
	}
}
