package coach

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

type FeedbackRepo interface {
	Create(dbc dbctx.Context, row *types.FeedbackEvent) error
	LatestByDecision(dbc dbctx.Context, decisionID uuid.UUID) (*types.FeedbackEvent, error)
}

type feedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) FeedbackRepo {
	return &feedbackRepo{db: db, log: baseLog.With("repo", "FeedbackRepo")}
}

func (r *feedbackRepo) Create(dbc dbctx.Context, row *types.FeedbackEvent) error {
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
	return MapStoreError("feedback.create", t.WithContext(dbc.Ctx).Create(row).Error)
}

func (r *feedbackRepo) LatestByDecision(dbc dbctx.Context, decisionID uuid.UUID) (*types.FeedbackEvent, error) {
	if decisionID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out types.FeedbackEvent
	if err := t.WithContext(dbc.Ctx).
		Where("decision_id = ?", decisionID).
		Order("created_at DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, MapStoreError("feedback.latest_by_decision", err)
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}
