package coach

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

type ConsentRepo interface {
	// Flags returns granted state per purpose; missing rows report false.
	Flags(dbc dbctx.Context, userID uuid.UUID, purposes ...string) (map[string]bool, error)
	Upsert(dbc dbctx.Context, row *types.ConsentRecord) error
}

type consentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConsentRepo(db *gorm.DB, baseLog *logger.Logger) ConsentRepo {
	return &consentRepo{db: db, log: baseLog.With("repo", "ConsentRepo")}
}

func (r *consentRepo) Flags(dbc dbctx.Context, userID uuid.UUID, purposes ...string) (map[string]bool, error) {
	out := make(map[string]bool, len(purposes))
	for _, p := range purposes {
		out[p] = false
	}
	if userID == uuid.Nil || len(purposes) == 0 {
		return out, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []types.ConsentRecord
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ? AND purpose IN ?", userID, purposes).
		Find(&rows).Error; err != nil {
		return nil, MapStoreError("consent.flags", err)
	}
	for _, row := range rows {
		out[row.Purpose] = row.Granted
	}
	return out, nil
}

func (r *consentRepo) Upsert(dbc dbctx.Context, row *types.ConsentRecord) error {
	if row == nil || row.UserID == uuid.Nil || row.Purpose == "" {
		return nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.UpdatedAt = time.Now().UTC()
	err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "purpose"}},
			DoUpdates: clause.AssignmentColumns([]string{"granted", "updated_at"}),
		}).
		Create(row).Error
	return MapStoreError("consent.upsert", err)
}
