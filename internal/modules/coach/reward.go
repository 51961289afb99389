package coach

import (
	"time"

	types "github.com/yungbote/habitloop-backend/internal/domain"
)

// RewardBound clamps every computed reward to [-RewardBound, RewardBound]
// so a single outlier experience cannot blow up the weights.
const RewardBound = 5.0

// ImpactRewardInput feeds the delayed, metric-delta based calculator.
type ImpactRewardInput struct {
	Feedback      string
	Explicit      string
	MetricsBefore types.FeatureSnapshot
	MetricsAfter  types.FeatureSnapshot
}

// ImpactReward scores an experience by what actually changed in the
// user's metrics after the intervention, blended with the feedback kind
// and scaled by data quality so sparse-data users learn more slowly.
func ImpactReward(in ImpactRewardInput) float64 {
	r := feedbackComponent(in.Feedback) + explicitComponent(in.Explicit)

	r += 1.5 * clampRange(in.MetricsAfter.Momentum-in.MetricsBefore.Momentum, -1, 1)
	r += 1.2 * clampRange(in.MetricsAfter.HabitCompletionRate-in.MetricsBefore.HabitCompletionRate, -1, 1)
	r += 1.0 * clampRange(in.MetricsAfter.TaskCompletionRate-in.MetricsBefore.TaskCompletionRate, -1, 1)
	r -= 1.8 * clampRange(in.MetricsAfter.OverdueRatio-in.MetricsBefore.OverdueRatio, -1, 1)
	r -= 1.5 * clampRange(in.MetricsAfter.ChurnRisk-in.MetricsBefore.ChurnRisk, -1, 1)

	quality := clampRange(in.MetricsBefore.DataQuality, 0.25, 1)
	return clampRange(r*quality, -RewardBound, RewardBound)
}

// ImmediateRewardInput feeds the instant calculator used when the
// feedback itself is most of the outcome. MetricDelta is a single scalar
// summarizing the observed metric movement since the decision.
type ImmediateRewardInput struct {
	Feedback     string
	Explicit     string
	TimeToAction time.Duration
	MetricDelta  float64
}

// ImmediateReward scores feedback at record time. Slow reactions to an
// accepted or completed intervention decay the reward; a fast rejection
// is punished harder than a lingering ignore.
func ImmediateReward(in ImmediateRewardInput) float64 {
	r := feedbackComponent(in.Feedback) + explicitComponent(in.Explicit)

	frac := clampRange(in.TimeToAction.Hours()/24, 0, 1)
	switch in.Feedback {
	case types.FeedbackAccepted, types.FeedbackCompleted:
		// Linear decay down to half credit over 24h.
		r *= 1 - 0.5*frac
	case types.FeedbackRejected, types.FeedbackIgnored:
		// Lingering before dismissing still cost the user attention.
		r -= frac
	}
	r += clampRange(in.MetricDelta, -1, 1)
	return clampRange(r, -RewardBound, RewardBound)
}

func feedbackComponent(kind string) float64 {
	switch kind {
	case types.FeedbackCompleted:
		return 2
	case types.FeedbackAccepted:
		return 1
	case types.FeedbackIgnored:
		return -1
	case types.FeedbackRejected:
		return -2
	default:
		return 0
	}
}

func explicitComponent(explicit string) float64 {
	switch explicit {
	case types.ExplicitHelpful:
		return 1
	case types.ExplicitNotHelpful:
		return -1
	default:
		return 0
	}
}
