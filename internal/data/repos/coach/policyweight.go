package coach

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

type PolicyWeightRepo interface {
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]types.PolicyWeight, error)
	Get(dbc dbctx.Context, userID uuid.UUID, action types.Action) (*types.PolicyWeight, error)
	// Insert creates the row for a (user, action) pair; a concurrent
	// first-touch loses the unique-index race and gets ErrConflict.
	Insert(dbc dbctx.Context, row *types.PolicyWeight) error
	// UpdateByVersion compare-and-sets the weight vector. False means the
	// expected version no longer matches: reread and retry.
	UpdateByVersion(dbc dbctx.Context, userID uuid.UUID, action types.Action, expectedVersion int, weights datatypes.JSON) (bool, error)
	// Replace force-writes a vector (import path); version restarts at 0.
	Replace(dbc dbctx.Context, row *types.PolicyWeight) error
}

type policyWeightRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPolicyWeightRepo(db *gorm.DB, baseLog *logger.Logger) PolicyWeightRepo {
	return &policyWeightRepo{db: db, log: baseLog.With("repo", "PolicyWeightRepo")}
}

func (r *policyWeightRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]types.PolicyWeight, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []types.PolicyWeight
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Find(&out).Error; err != nil {
		return nil, MapStoreError("policy_weight.list", err)
	}
	return out, nil
}

func (r *policyWeightRepo) Get(dbc dbctx.Context, userID uuid.UUID, action types.Action) (*types.PolicyWeight, error) {
	if userID == uuid.Nil || action == "" {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out types.PolicyWeight
	if err := t.WithContext(dbc.Ctx).
		First(&out, "user_id = ? AND action = ?", userID, action).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, MapStoreError("policy_weight.get", err)
	}
	return &out, nil
}

func (r *policyWeightRepo) Insert(dbc dbctx.Context, row *types.PolicyWeight) error {
	if row == nil || row.UserID == uuid.Nil || row.Action == "" {
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
	return MapStoreError("policy_weight.insert", t.WithContext(dbc.Ctx).Create(row).Error)
}

func (r *policyWeightRepo) UpdateByVersion(dbc dbctx.Context, userID uuid.UUID, action types.Action, expectedVersion int, weights datatypes.JSON) (bool, error) {
	if userID == uuid.Nil || action == "" || expectedVersion < 0 {
		return false, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.PolicyWeight{}).
		Where("user_id = ? AND action = ? AND version = ?", userID, action, expectedVersion).
		Updates(map[string]any{
			"weights":    weights,
			"version":    expectedVersion + 1,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, MapStoreError("policy_weight.cas_update", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *policyWeightRepo) Replace(dbc dbctx.Context, row *types.PolicyWeight) error {
	if row == nil || row.UserID == uuid.Nil || row.Action == "" {
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
			Columns: []clause.Column{{Name: "user_id"}, {Name: "action"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"weights",
				"vector_version",
				"version",
				"updated_at",
			}),
		}).
		Create(row).Error
	return MapStoreError("policy_weight.replace", err)
}
