package coach

import "time"

// ContextVectorLen is a boundary contract: every persisted policy weight
// vector has exactly this length. Changing it (or the field order in
// Vectorize) invalidates all persisted weights and must bump VectorVersion.
const (
	ContextVectorLen = 18
	VectorVersion    = 1
)

// ContextVector is the fixed-length numeric encoding of a FeatureSnapshot.
type ContextVector []float64

func (v ContextVector) Valid() bool { return len(v) == ContextVectorLen }

// FeatureSnapshot is an immutable point-in-time view of a user's behavior.
// Ratio fields are in [0,1]; count fields are raw and clamped at vectorize
// time. DataQuality is the fraction of source categories that had data.
type FeatureSnapshot struct {
	HabitCompletionRate float64 `json:"habit_completion_rate"`
	TaskCompletionRate  float64 `json:"task_completion_rate"`
	OverdueRatio        float64 `json:"overdue_ratio"`
	JournalSentiment    float64 `json:"journal_sentiment"`
	FinancialHealth     float64 `json:"financial_health"`
	DataQuality         float64 `json:"data_quality"`

	PendingTasks     int `json:"pending_tasks"`
	OverdueTasks     int `json:"overdue_tasks"`
	CompletedTasks7d int `json:"completed_tasks_7d"`
	ActiveHabits     int `json:"active_habits"`
	StreakLength     int `json:"streak_length"`
	JournalEntries7d int `json:"journal_entries_7d"`
	DaysInactive     int `json:"days_inactive"`

	Consistency float64 `json:"consistency"`
	ChurnRisk   float64 `json:"churn_risk"`
	Momentum    float64 `json:"momentum"`

	HourOfDay int  `json:"hour_of_day"`
	Weekday   int  `json:"weekday"`
	IsWeekend bool `json:"is_weekend"`

	CapturedAt time.Time `json:"captured_at"`
}

// BehaviorContext is the reduced view the signal detector operates on.
type BehaviorContext struct {
	Consistency       float64 `json:"consistency"`
	OverdueCount      int     `json:"overdue_count"`
	DaysInactive      int     `json:"days_inactive"`
	ChurnRisk         float64 `json:"churn_risk"`
	RecentCompletions int     `json:"recent_completions"`
}

const (
	SignalFatigue       = "fatigue"
	SignalOverload      = "overload"
	SignalDisengagement = "disengagement"
	SignalMomentum      = "momentum"
	SignalRelapseRisk   = "relapse_risk"
)

// Signal is an ephemeral scored observation; persisted only for audit.
type Signal struct {
	Type     string             `json:"type"`
	Score    float64            `json:"score"`
	Metadata map[string]float64 `json:"metadata,omitempty"`
}
