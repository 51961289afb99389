package coach

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

type DecisionRepo interface {
	Create(dbc dbctx.Context, row *types.DecisionRecord) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DecisionRecord, error)
}

type decisionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDecisionRepo(db *gorm.DB, baseLog *logger.Logger) DecisionRepo {
	return &decisionRepo{db: db, log: baseLog.With("repo", "DecisionRepo")}
}

func (r *decisionRepo) Create(dbc dbctx.Context, row *types.DecisionRecord) error {
	if row == nil || row.UserID == uuid.Nil {
		return nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.DecidedAt.IsZero() {
		row.DecidedAt = time.Now().UTC()
	}
	return MapStoreError("decision.create", t.WithContext(dbc.Ctx).Create(row).Error)
}

func (r *decisionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DecisionRecord, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out types.DecisionRecord
	if err := t.WithContext(dbc.Ctx).First(&out, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, MapStoreError("decision.get", err)
	}
	return &out, nil
}
