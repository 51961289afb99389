package coach

import (
	"math"

	types "github.com/yungbote/habitloop-backend/internal/domain"
)

// DetectSignals evaluates the rule set against a behavior context. Rules
// are pure and independent; any subset can fire on one pass. Thresholds
// gate firing; scores are fixed functions of the inputs in [0,1], so
// tuning a threshold moves the gate without rescaling the score.
func DetectSignals(bctx types.BehaviorContext, th Thresholds) []types.Signal {
	var out []types.Signal

	if bctx.ChurnRisk > th.RelapseChurnRisk {
		out = append(out, types.Signal{
			Type:  types.SignalRelapseRisk,
			Score: clamp01(bctx.ChurnRisk),
			Metadata: map[string]float64{
				"churn_risk": bctx.ChurnRisk,
			},
		})
	}

	if bctx.OverdueCount > th.OverloadOverdue {
		out = append(out, types.Signal{
			Type:  types.SignalOverload,
			Score: math.Min(float64(bctx.OverdueCount)/10, 1),
			Metadata: map[string]float64{
				"overdue_count": float64(bctx.OverdueCount),
			},
		})
	}

	if bctx.Consistency < th.FatigueConsistency && bctx.RecentCompletions < th.FatigueCompletions {
		out = append(out, types.Signal{
			Type:  types.SignalFatigue,
			Score: clamp01(1 - bctx.Consistency),
			Metadata: map[string]float64{
				"consistency":        bctx.Consistency,
				"recent_completions": float64(bctx.RecentCompletions),
			},
		})
	}

	if bctx.DaysInactive > th.DisengagementDays {
		out = append(out, types.Signal{
			Type:  types.SignalDisengagement,
			Score: math.Min(float64(bctx.DaysInactive)/7, 1),
			Metadata: map[string]float64{
				"days_inactive": float64(bctx.DaysInactive),
			},
		})
	}

	if bctx.Consistency > th.MomentumConsistency && bctx.RecentCompletions > th.MomentumCompletions {
		out = append(out, types.Signal{
			Type:  types.SignalMomentum,
			Score: clamp01(bctx.Consistency),
			Metadata: map[string]float64{
				"consistency":        bctx.Consistency,
				"recent_completions": float64(bctx.RecentCompletions),
			},
		})
	}

	return out
}
