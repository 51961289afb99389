package coach

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/habitloop-backend/internal/domain/user"
	"gorm.io/datatypes"
)

// SignalRecord is the audit trail of a detection pass. Detection itself is
// pure; the arbiter persists every detected signal regardless of whether an
// intervention was created.
type SignalRecord struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User       *user.User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	SignalType string         `gorm:"column:signal_type;not null;index" json:"signal_type"`
	Score      float64        `gorm:"column:score;not null" json:"score"`
	Metadata   datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	DetectedAt time.Time      `gorm:"column:detected_at;not null;index" json:"detected_at"`
}

func (SignalRecord) TableName() string { return "signal_record" }

const (
	InterventionTypeRecovery    = "recovery_plan"
	InterventionTypeTriage      = "task_triage"
	InterventionTypeEaseUp      = "ease_up"
	InterventionTypeReconnect   = "reconnect"
	InterventionTypeLevelUp     = "level_up"
)

const (
	InterventionStatusPending  = "pending"
	InterventionStatusApplied  = "applied"
	InterventionStatusIgnored  = "ignored"
	InterventionStatusRejected = "rejected"
)

func TerminalInterventionStatus(s string) bool {
	switch s {
	case InterventionStatusApplied, InterventionStatusIgnored, InterventionStatusRejected:
		return true
	default:
		return false
	}
}

// Intervention is the concrete suggestion surfaced to the user. DedupKey is
// the storage-level idempotency key (user, type, UTC day) that makes the
// 24h dedup window race-free under concurrent triggers.
type Intervention struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User             *user.User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	InterventionType string     `gorm:"column:intervention_type;not null;index" json:"intervention_type"`
	Message          string     `gorm:"column:message;not null" json:"message"`
	Status           string     `gorm:"column:status;not null;default:pending" json:"status"`
	DedupKey         string     `gorm:"column:dedup_key;not null;uniqueIndex" json:"-"`
	CreatedAt        time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Intervention) TableName() string { return "intervention" }

// DedupKeyFor buckets dedup by UTC day, matching the storage uniqueness
// constraint. The arbiter additionally applies the sliding 24h check.
func DedupKeyFor(userID uuid.UUID, interventionType string, at time.Time) string {
	return fmt.Sprintf("%s|%s|%s", userID, interventionType, at.UTC().Format("2006-01-02"))
}
