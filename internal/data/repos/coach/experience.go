package coach

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

type ExperienceRepo interface {
	Create(dbc dbctx.Context, row *types.Experience) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Experience, error)
	// ListUnprocessed returns experiences with reward still null, oldest
	// first, created before the cutoff.
	ListUnprocessed(dbc dbctx.Context, before time.Time, limit int) ([]types.Experience, error)
	// MarkProcessed performs the single unprocessed -> processed mutation,
	// guarded by `reward IS NULL`. Returns false when another writer got
	// there first (or the row was already processed).
	MarkProcessed(dbc dbctx.Context, id uuid.UUID, metricsAfter datatypes.JSON, reward float64) (bool, error)
	CountByUser(dbc dbctx.Context, userID uuid.UUID) (total int64, processed int64, avgReward float64, err error)
}

type experienceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExperienceRepo(db *gorm.DB, baseLog *logger.Logger) ExperienceRepo {
	return &experienceRepo{db: db, log: baseLog.With("repo", "ExperienceRepo")}
}

func (r *experienceRepo) Create(dbc dbctx.Context, row *types.Experience) error {
	if row == nil || row.UserID == uuid.Nil || row.DecisionID == uuid.Nil {
		return nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return MapStoreError("experience.create", t.WithContext(dbc.Ctx).Create(row).Error)
}

func (r *experienceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Experience, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out types.Experience
	if err := t.WithContext(dbc.Ctx).First(&out, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, MapStoreError("experience.get", err)
	}
	return &out, nil
}

func (r *experienceRepo) ListUnprocessed(dbc dbctx.Context, before time.Time, limit int) ([]types.Experience, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []types.Experience
	if err := t.WithContext(dbc.Ctx).
		Where("reward IS NULL AND created_at < ?", before).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, MapStoreError("experience.list_unprocessed", err)
	}
	return out, nil
}

func (r *experienceRepo) MarkProcessed(dbc dbctx.Context, id uuid.UUID, metricsAfter datatypes.JSON, reward float64) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	res := t.WithContext(dbc.Ctx).
		Model(&types.Experience{}).
		Where("id = ? AND reward IS NULL", id).
		Updates(map[string]any{
			"metrics_after": metricsAfter,
			"reward":        reward,
			"processed_at":  now,
		})
	if res.Error != nil {
		return false, MapStoreError("experience.mark_processed", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *experienceRepo) CountByUser(dbc dbctx.Context, userID uuid.UUID) (int64, int64, float64, error) {
	if userID == uuid.Nil {
		return 0, 0, 0, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var total, processed int64
	if err := t.WithContext(dbc.Ctx).Model(&types.Experience{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return 0, 0, 0, MapStoreError("experience.count", err)
	}
	if err := t.WithContext(dbc.Ctx).Model(&types.Experience{}).
		Where("user_id = ? AND reward IS NOT NULL", userID).
		Count(&processed).Error; err != nil {
		return 0, 0, 0, MapStoreError("experience.count_processed", err)
	}
	var avg *float64
	if err := t.WithContext(dbc.Ctx).Model(&types.Experience{}).
		Where("user_id = ? AND reward IS NOT NULL", userID).
		Select("AVG(reward)").
		Scan(&avg).Error; err != nil {
		return 0, 0, 0, MapStoreError("experience.avg_reward", err)
	}
	out := 0.0
	if avg != nil {
		out = *avg
	}
	return total, processed, out, nil
}
