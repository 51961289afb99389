package coach

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

type SignalRepo interface {
	CreateBatch(dbc dbctx.Context, rows []types.SignalRecord) error
	ListRecent(dbc dbctx.Context, userID uuid.UUID, since time.Time, limit int) ([]types.SignalRecord, error)
}

type signalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSignalRepo(db *gorm.DB, baseLog *logger.Logger) SignalRepo {
	return &signalRepo{db: db, log: baseLog.With("repo", "SignalRepo")}
}

func (r *signalRepo) CreateBatch(dbc dbctx.Context, rows []types.SignalRecord) error {
	if len(rows) == 0 {
		return nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
		if rows[i].DetectedAt.IsZero() {
			rows[i].DetectedAt = time.Now().UTC()
		}
	}
	return MapStoreError("signal.create_batch", t.WithContext(dbc.Ctx).Create(&rows).Error)
}

func (r *signalRepo) ListRecent(dbc dbctx.Context, userID uuid.UUID, since time.Time, limit int) ([]types.SignalRecord, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var out []types.SignalRecord
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ? AND detected_at >= ?", userID, since).
		Order("detected_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, MapStoreError("signal.list_recent", err)
	}
	return out, nil
}
