package coach

import (
	"math"
	"time"

	"github.com/google/uuid"

	repos "github.com/yungbote/habitloop-backend/internal/data/repos/coach"
	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

// Count caps used at vectorize time. Like the vector length these are part
// of the weight contract; changing one requires a VectorVersion bump.
const (
	capPendingTasks   = 20.0
	capCompleted7d    = 25.0
	capActiveHabits   = 10.0
	capStreakLength   = 30.0
	capJournal7d      = 14.0
	capDaysInactive   = 14.0
	sourceCategoryCnt = 5.0
)

// MetricsAggregator builds feature snapshots from the raw source reads.
type MetricsAggregator struct {
	sources repos.SourceReader
	log     *logger.Logger
}

func NewMetricsAggregator(sources repos.SourceReader, baseLog *logger.Logger) *MetricsAggregator {
	return &MetricsAggregator{sources: sources, log: baseLog.With("component", "MetricsAggregator")}
}

// BuildSnapshot reads all five source categories and derives the composite
// scores. A category with no rows contributes neutral values and lowers
// DataQuality; it is not an error.
func (m *MetricsAggregator) BuildSnapshot(dbc dbctx.Context, userID uuid.UUID, now time.Time) (types.FeatureSnapshot, error) {
	habits, err := m.sources.HabitActivity(dbc, userID, now)
	if err != nil {
		return types.FeatureSnapshot{}, err
	}
	tasks, err := m.sources.TaskActivity(dbc, userID, now)
	if err != nil {
		return types.FeatureSnapshot{}, err
	}
	journal, err := m.sources.JournalActivity(dbc, userID, now)
	if err != nil {
		return types.FeatureSnapshot{}, err
	}
	finance, err := m.sources.FinanceActivity(dbc, userID, now)
	if err != nil {
		return types.FeatureSnapshot{}, err
	}
	streak, err := m.sources.StreakActivity(dbc, userID)
	if err != nil {
		return types.FeatureSnapshot{}, err
	}

	present := 0
	for _, p := range []bool{habits.Present, tasks.Present, journal.Present, finance.Present, streak.Present} {
		if p {
			present++
		}
	}

	snap := types.FeatureSnapshot{
		DataQuality: float64(present) / sourceCategoryCnt,
		HourOfDay:   now.Hour(),
		Weekday:     int(now.Weekday()),
		IsWeekend:   now.Weekday() == time.Saturday || now.Weekday() == time.Sunday,
		CapturedAt:  now.UTC(),
	}
	if journal.Present {
		snap.JournalSentiment = clamp01(journal.AvgSentiment)
		snap.JournalEntries7d = journal.Entries7d
	} else {
		snap.JournalSentiment = 0.5
	}
	if finance.Present {
		snap.FinancialHealth = clamp01(finance.HealthScore)
	} else {
		snap.FinancialHealth = 0.5
	}
	if habits.Present {
		snap.HabitCompletionRate = clamp01(habits.CompletionRate)
		snap.ActiveHabits = habits.ActiveHabits
	}
	if tasks.Present {
		snap.TaskCompletionRate = clamp01(tasks.CompletionRate)
		snap.PendingTasks = tasks.Pending
		snap.OverdueTasks = tasks.Overdue
		snap.CompletedTasks7d = tasks.Completed7d
		if tasks.Pending > 0 {
			snap.OverdueRatio = clamp01(float64(tasks.Overdue) / float64(tasks.Pending))
		}
	}
	if streak.Present {
		snap.StreakLength = streak.Streak
		if streak.LastActiveAt != nil {
			gap := now.Sub(*streak.LastActiveAt)
			if gap > 0 {
				snap.DaysInactive = int(gap / (24 * time.Hour))
			}
		}
	}

	snap.Consistency = snap.HabitCompletionRate
	snap.ChurnRisk = clamp01(0.5*math.Min(float64(snap.DaysInactive)/capDaysInactive, 1) + 0.5*(1-snap.Consistency))
	snap.Momentum = momentumScore(habits)
	return snap, nil
}

// momentumScore compares the last-3-day completion pace against the 7 day
// pace. Steady pace maps to 0.5, accelerating above, slowing below.
func momentumScore(h repos.HabitActivity) float64 {
	if !h.Present || h.Completions7d == 0 {
		return 0.5
	}
	pace3 := float64(h.Completions3d) / 3
	pace7 := float64(h.Completions7d) / 7
	return clamp01(pace3 / (2 * pace7))
}

// Vectorize encodes a snapshot as the version-1 context vector. Ratios
// pass through, counts are normalized against their caps, booleans map to
// 0/1. Field order is frozen for this vector version.
func Vectorize(s types.FeatureSnapshot) types.ContextVector {
	weekend := 0.0
	if s.IsWeekend {
		weekend = 1
	}
	return types.ContextVector{
		clamp01(s.HabitCompletionRate),
		clamp01(s.TaskCompletionRate),
		clamp01(s.OverdueRatio),
		clamp01(s.JournalSentiment),
		clamp01(s.FinancialHealth),
		clamp01(s.DataQuality),
		normCount(s.PendingTasks, capPendingTasks),
		normCount(s.CompletedTasks7d, capCompleted7d),
		normCount(s.ActiveHabits, capActiveHabits),
		normCount(s.StreakLength, capStreakLength),
		normCount(s.JournalEntries7d, capJournal7d),
		normCount(s.DaysInactive, capDaysInactive),
		clamp01(s.Consistency),
		clamp01(s.ChurnRisk),
		clamp01(s.Momentum),
		float64(s.HourOfDay) / 23,
		float64(s.Weekday) / 6,
		weekend,
	}
}

// BehaviorContextFrom reduces a snapshot to the detector's view.
func BehaviorContextFrom(s types.FeatureSnapshot) types.BehaviorContext {
	return types.BehaviorContext{
		Consistency:       s.Consistency,
		OverdueCount:      s.OverdueTasks,
		DaysInactive:      s.DaysInactive,
		ChurnRisk:         s.ChurnRisk,
		RecentCompletions: s.CompletedTasks7d,
	}
}

func normCount(n int, cap float64) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(float64(n)/cap, 1)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampRange(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
