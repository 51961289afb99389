package domain

import (
	"github.com/yungbote/habitloop-backend/internal/domain/coach"
	"github.com/yungbote/habitloop-backend/internal/domain/user"
)

type (
	User = user.User

	HabitLog     = coach.HabitLog
	TaskItem     = coach.TaskItem
	JournalEntry = coach.JournalEntry
	FinanceEntry = coach.FinanceEntry
	UserStreak   = coach.UserStreak

	FeatureSnapshot = coach.FeatureSnapshot
	ContextVector   = coach.ContextVector
	BehaviorContext = coach.BehaviorContext
	Signal          = coach.Signal

	Action         = coach.Action
	ConsentRecord  = coach.ConsentRecord
	DecisionRecord = coach.DecisionRecord
	FeedbackEvent  = coach.FeedbackEvent
	Experience     = coach.Experience
	PolicyWeight   = coach.PolicyWeight
	SignalRecord   = coach.SignalRecord
	Intervention   = coach.Intervention
)

const (
	ContextVectorLen = coach.ContextVectorLen
	VectorVersion    = coach.VectorVersion

	ActionNudge       = coach.ActionNudge
	ActionCelebrate   = coach.ActionCelebrate
	ActionWarn        = coach.ActionWarn
	ActionChallenge   = coach.ActionChallenge
	ActionRestructure = coach.ActionRestructure

	PurposeBehavioralLearning = coach.PurposeBehavioralLearning
	PurposeAdaptiveCoaching   = coach.PurposeAdaptiveCoaching

	SignalFatigue       = coach.SignalFatigue
	SignalOverload      = coach.SignalOverload
	SignalDisengagement = coach.SignalDisengagement
	SignalMomentum      = coach.SignalMomentum
	SignalRelapseRisk   = coach.SignalRelapseRisk

	TaskStatusPending   = coach.TaskStatusPending
	TaskStatusCompleted = coach.TaskStatusCompleted

	FeedbackAccepted  = coach.FeedbackAccepted
	FeedbackRejected  = coach.FeedbackRejected
	FeedbackIgnored   = coach.FeedbackIgnored
	FeedbackCompleted = coach.FeedbackCompleted

	ExplicitHelpful    = coach.ExplicitHelpful
	ExplicitNotHelpful = coach.ExplicitNotHelpful

	InterventionTypeRecovery  = coach.InterventionTypeRecovery
	InterventionTypeTriage    = coach.InterventionTypeTriage
	InterventionTypeEaseUp    = coach.InterventionTypeEaseUp
	InterventionTypeReconnect = coach.InterventionTypeReconnect
	InterventionTypeLevelUp   = coach.InterventionTypeLevelUp

	InterventionStatusPending  = coach.InterventionStatusPending
	InterventionStatusApplied  = coach.InterventionStatusApplied
	InterventionStatusIgnored  = coach.InterventionStatusIgnored
	InterventionStatusRejected = coach.InterventionStatusRejected
)

var (
	AllActions                 = coach.AllActions
	ValidAction                = coach.ValidAction
	DedupKeyFor                = coach.DedupKeyFor
	TerminalInterventionStatus = coach.TerminalInterventionStatus
)
