package coach

import (
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/habitloop-backend/internal/domain/user"
	"gorm.io/datatypes"
)

// Action is one member of the closed set of intervention categories the
// policy engine can choose. The set is a boundary contract; extending it is
// safe, reordering or removing members is not.
type Action string

const (
	ActionNudge       Action = "nudge"
	ActionCelebrate   Action = "celebrate"
	ActionWarn        Action = "warn"
	ActionChallenge   Action = "challenge"
	ActionRestructure Action = "restructure"
)

func AllActions() []Action {
	return []Action{ActionNudge, ActionCelebrate, ActionWarn, ActionChallenge, ActionRestructure}
}

func ValidAction(a Action) bool {
	for _, known := range AllActions() {
		if a == known {
			return true
		}
	}
	return false
}

// Consent purposes required for the learning loop to run.
const (
	PurposeBehavioralLearning = "behavioral_learning"
	PurposeAdaptiveCoaching   = "adaptive_coaching"
)

// ConsentRecord gates learning reads/writes per user and purpose.
// Absence of a row means not granted.
type ConsentRecord struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_consent_user_purpose,unique,priority:1" json:"user_id"`
	User      *user.User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Purpose   string     `gorm:"column:purpose;not null;index:idx_consent_user_purpose,unique,priority:2" json:"purpose"`
	Granted   bool       `gorm:"column:granted;not null;default:false" json:"granted"`
	UpdatedAt time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (ConsentRecord) TableName() string { return "consent_record" }

// DecisionRecord is the originating record feedback refers to: the action
// the policy chose for a context, with its diagnostics.
type DecisionRecord struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User           *user.User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	InterventionID *uuid.UUID     `gorm:"type:uuid;column:intervention_id;index" json:"intervention_id,omitempty"`
	Action         Action         `gorm:"column:action;not null" json:"action"`
	Context        datatypes.JSON `gorm:"column:context;not null" json:"context"`
	VectorVersion  int            `gorm:"column:vector_version;not null" json:"vector_version"`
	Score          float64        `gorm:"column:score;not null" json:"score"`
	Confidence     float64        `gorm:"column:confidence;not null" json:"confidence"`
	Reasoning      string         `gorm:"column:reasoning" json:"reasoning"`
	DecidedAt      time.Time      `gorm:"column:decided_at;not null;index" json:"decided_at"`
}

func (DecisionRecord) TableName() string { return "decision_record" }

const (
	FeedbackAccepted  = "accepted"
	FeedbackRejected  = "rejected"
	FeedbackIgnored   = "ignored"
	FeedbackCompleted = "completed"
)

const (
	ExplicitHelpful    = "helpful"
	ExplicitNotHelpful = "not_helpful"
)

type FeedbackEvent struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User       *user.User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	DecisionID uuid.UUID  `gorm:"type:uuid;column:decision_id;not null;index" json:"decision_id"`
	Kind       string     `gorm:"column:kind;not null" json:"kind"`
	// Explicit is an optional helpful/not_helpful label; empty when absent.
	Explicit       string    `gorm:"column:explicit" json:"explicit,omitempty"`
	TimeToActionSec int      `gorm:"column:time_to_action_sec;not null;default:0" json:"time_to_action_sec"`
	CreatedAt      time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (FeedbackEvent) TableName() string { return "feedback_event" }

// Experience is one learning record. Reward stays null until delayed
// processing runs; `reward IS NULL` is both the unprocessed predicate and
// the guard making the unprocessed -> processed transition happen once.
type Experience struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *user.User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	DecisionID    uuid.UUID      `gorm:"type:uuid;column:decision_id;not null;index" json:"decision_id"`
	Action        Action         `gorm:"column:action;not null" json:"action"`
	Context       datatypes.JSON `gorm:"column:context;not null" json:"context"`
	MetricsBefore datatypes.JSON `gorm:"column:metrics_before;not null" json:"metrics_before"`
	MetricsAfter  datatypes.JSON `gorm:"column:metrics_after" json:"metrics_after,omitempty"`
	Reward        *float64       `gorm:"column:reward" json:"reward,omitempty"`
	ProcessedAt   *time.Time     `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (Experience) TableName() string { return "experience" }

func (e *Experience) Processed() bool { return e != nil && e.Reward != nil }

// PolicyWeight holds one (user, action) weight vector. Version drives the
// optimistic-concurrency update contract: writers compare-and-set on it.
type PolicyWeight struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_policy_user_action,unique,priority:1" json:"user_id"`
	User      *user.User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Action    Action         `gorm:"column:action;not null;index:idx_policy_user_action,unique,priority:2" json:"action"`
	Weights   datatypes.JSON `gorm:"column:weights;not null" json:"weights"`
	VectorVersion int        `gorm:"column:vector_version;not null;default:1" json:"vector_version"`
	Version   int            `gorm:"column:version;not null;default:0" json:"version"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (PolicyWeight) TableName() string { return "policy_weight" }
