package coach

import (
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/habitloop-backend/internal/domain/user"
)

// Raw behavioral source rows consumed by the metrics aggregator. The CRUD
// surfaces that produce them live outside this service; the coach only reads.

type HabitLog struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *user.User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	HabitName string     `gorm:"column:habit_name;not null" json:"habit_name"`
	Completed bool       `gorm:"column:completed;not null" json:"completed"`
	LoggedAt  time.Time  `gorm:"column:logged_at;not null;index" json:"logged_at"`
	CreatedAt time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (HabitLog) TableName() string { return "habit_log" }

const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"
)

type TaskItem struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User        *user.User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Title       string     `gorm:"column:title;not null" json:"title"`
	Status      string     `gorm:"column:status;not null;index" json:"status"`
	DueAt       *time.Time `gorm:"column:due_at;index" json:"due_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (TaskItem) TableName() string { return "task_item" }

type JournalEntry struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *user.User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	// Sentiment is a normalized score in [0,1] produced upstream.
	Sentiment float64   `gorm:"column:sentiment;not null" json:"sentiment"`
	WrittenAt time.Time `gorm:"column:written_at;not null;index" json:"written_at"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (JournalEntry) TableName() string { return "journal_entry" }

type FinanceEntry struct {
	ID     uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *user.User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	// HealthScore is a normalized budget-adherence score in [0,1].
	HealthScore float64   `gorm:"column:health_score;not null" json:"health_score"`
	RecordedAt  time.Time `gorm:"column:recorded_at;not null;index" json:"recorded_at"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (FinanceEntry) TableName() string { return "finance_entry" }

type UserStreak struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	User          *user.User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	CurrentStreak int        `gorm:"column:current_streak;not null;default:0" json:"current_streak"`
	LastActiveAt  *time.Time `gorm:"column:last_active_at" json:"last_active_at,omitempty"`
	UpdatedAt     time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserStreak) TableName() string { return "user_streak" }
