package coach

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

// HabitActivity summarizes a user's recent habit logs.
type HabitActivity struct {
	Present        bool
	CompletionRate float64
	ActiveHabits   int
	Completions3d  int
	Completions7d  int
}

// TaskActivity summarizes a user's task state.
type TaskActivity struct {
	Present        bool
	CompletionRate float64
	Pending        int
	Overdue        int
	Completed7d    int
}

// JournalActivity summarizes recent journal entries.
type JournalActivity struct {
	Present      bool
	AvgSentiment float64
	Entries7d    int
}

// FinanceActivity carries the latest financial health score.
type FinanceActivity struct {
	Present     bool
	HealthScore float64
}

// StreakActivity carries streak length and recency.
type StreakActivity struct {
	Present      bool
	Streak       int
	LastActiveAt *time.Time
}

// SourceReader exposes the five raw source categories the metrics
// aggregator builds snapshots from. Each read is independent; an absent
// category reports Present=false rather than an error.
type SourceReader interface {
	HabitActivity(dbc dbctx.Context, userID uuid.UUID, now time.Time) (HabitActivity, error)
	TaskActivity(dbc dbctx.Context, userID uuid.UUID, now time.Time) (TaskActivity, error)
	JournalActivity(dbc dbctx.Context, userID uuid.UUID, now time.Time) (JournalActivity, error)
	FinanceActivity(dbc dbctx.Context, userID uuid.UUID, now time.Time) (FinanceActivity, error)
	StreakActivity(dbc dbctx.Context, userID uuid.UUID) (StreakActivity, error)
}

type sourceReader struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceReader(db *gorm.DB, baseLog *logger.Logger) SourceReader {
	return &sourceReader{db: db, log: baseLog.With("repo", "SourceReader")}
}

func (r *sourceReader) base(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx)
}

func (r *sourceReader) HabitActivity(dbc dbctx.Context, userID uuid.UUID, now time.Time) (HabitActivity, error) {
	if userID == uuid.Nil {
		return HabitActivity{}, nil
	}
	db := r.base(dbc)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	var logs []types.HabitLog
	if err := db.
		Where("user_id = ? AND logged_at >= ?", userID, weekAgo).
		Find(&logs).Error; err != nil {
		return HabitActivity{}, MapStoreError("sources.habit", err)
	}
	if len(logs) == 0 {
		return HabitActivity{}, nil
	}

	threeDaysAgo := now.Add(-3 * 24 * time.Hour)
	habits := map[string]struct{}{}
	completed, completed3d := 0, 0
	for _, l := range logs {
		habits[l.HabitName] = struct{}{}
		if l.Completed {
			completed++
			if !l.LoggedAt.Before(threeDaysAgo) {
				completed3d++
			}
		}
	}
	return HabitActivity{
		Present:        true,
		CompletionRate: float64(completed) / float64(len(logs)),
		ActiveHabits:   len(habits),
		Completions3d:  completed3d,
		Completions7d:  completed,
	}, nil
}

func (r *sourceReader) TaskActivity(dbc dbctx.Context, userID uuid.UUID, now time.Time) (TaskActivity, error) {
	if userID == uuid.Nil {
		return TaskActivity{}, nil
	}
	db := r.base(dbc)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	var total, pending, overdue, completed7d int64
	if err := db.Model(&types.TaskItem{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return TaskActivity{}, MapStoreError("sources.task_total", err)
	}
	if total == 0 {
		return TaskActivity{}, nil
	}
	if err := db.Model(&types.TaskItem{}).
		Where("user_id = ? AND status = ?", userID, types.TaskStatusPending).
		Count(&pending).Error; err != nil {
		return TaskActivity{}, MapStoreError("sources.task_pending", err)
	}
	if err := db.Model(&types.TaskItem{}).
		Where("user_id = ? AND status = ? AND due_at IS NOT NULL AND due_at < ?", userID, types.TaskStatusPending, now).
		Count(&overdue).Error; err != nil {
		return TaskActivity{}, MapStoreError("sources.task_overdue", err)
	}
	if err := db.Model(&types.TaskItem{}).
		Where("user_id = ? AND status = ? AND completed_at >= ?", userID, types.TaskStatusCompleted, weekAgo).
		Count(&completed7d).Error; err != nil {
		return TaskActivity{}, MapStoreError("sources.task_completed", err)
	}
	return TaskActivity{
		Present:        true,
		CompletionRate: float64(total-pending) / float64(total),
		Pending:        int(pending),
		Overdue:        int(overdue),
		Completed7d:    int(completed7d),
	}, nil
}

func (r *sourceReader) JournalActivity(dbc dbctx.Context, userID uuid.UUID, now time.Time) (JournalActivity, error) {
	if userID == uuid.Nil {
		return JournalActivity{}, nil
	}
	db := r.base(dbc)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	var count int64
	if err := db.Model(&types.JournalEntry{}).
		Where("user_id = ? AND written_at >= ?", userID, weekAgo).
		Count(&count).Error; err != nil {
		return JournalActivity{}, MapStoreError("sources.journal_count", err)
	}
	if count == 0 {
		return JournalActivity{}, nil
	}
	var avg *float64
	if err := db.Model(&types.JournalEntry{}).
		Where("user_id = ? AND written_at >= ?", userID, weekAgo).
		Select("AVG(sentiment)").
		Scan(&avg).Error; err != nil {
		return JournalActivity{}, MapStoreError("sources.journal_avg", err)
	}
	sentiment := 0.5
	if avg != nil {
		sentiment = *avg
	}
	return JournalActivity{Present: true, AvgSentiment: sentiment, Entries7d: int(count)}, nil
}

func (r *sourceReader) FinanceActivity(dbc dbctx.Context, userID uuid.UUID, now time.Time) (FinanceActivity, error) {
	if userID == uuid.Nil {
		return FinanceActivity{}, nil
	}
	db := r.base(dbc)
	monthAgo := now.Add(-30 * 24 * time.Hour)

	var row types.FinanceEntry
	if err := db.
		Where("user_id = ? AND recorded_at >= ?", userID, monthAgo).
		Order("recorded_at DESC").
		Limit(1).
		Find(&row).Error; err != nil {
		return FinanceActivity{}, MapStoreError("sources.finance", err)
	}
	if row.ID == uuid.Nil {
		return FinanceActivity{}, nil
	}
	return FinanceActivity{Present: true, HealthScore: row.HealthScore}, nil
}

func (r *sourceReader) StreakActivity(dbc dbctx.Context, userID uuid.UUID) (StreakActivity, error) {
	if userID == uuid.Nil {
		return StreakActivity{}, nil
	}
	db := r.base(dbc)

	var row types.UserStreak
	if err := db.
		Where("user_id = ?", userID).
		Limit(1).
		Find(&row).Error; err != nil {
		return StreakActivity{}, MapStoreError("sources.streak", err)
	}
	if row.ID == uuid.Nil {
		return StreakActivity{}, nil
	}
	return StreakActivity{Present: true, Streak: row.CurrentStreak, LastActiveAt: row.LastActiveAt}, nil
}
