package coach

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

type InterventionRepo interface {
	// CreateDedup inserts the row unless its dedup key already exists; in
	// that case the existing row is returned and created reports false.
	// The unique index does the arbitration, not a check-then-act read.
	CreateDedup(dbc dbctx.Context, row *types.Intervention) (out *types.Intervention, created bool, err error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Intervention, error)
	// ActiveByType returns the most recent intervention of a type created
	// after the cutoff (the sliding dedup window).
	ActiveByType(dbc dbctx.Context, userID uuid.UUID, interventionType string, since time.Time) (*types.Intervention, error)
	// UpdateStatus moves pending -> terminal; false when the row was not
	// pending anymore.
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) (bool, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]types.Intervention, error)
}

type interventionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInterventionRepo(db *gorm.DB, baseLog *logger.Logger) InterventionRepo {
	return &interventionRepo{db: db, log: baseLog.With("repo", "InterventionRepo")}
}

func (r *interventionRepo) CreateDedup(dbc dbctx.Context, row *types.Intervention) (*types.Intervention, bool, error) {
	if row == nil || row.UserID == uuid.Nil || row.InterventionType == "" || row.DedupKey == "" {
		return nil, false, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = types.InterventionStatusPending
	}
	res := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return nil, false, MapStoreError("intervention.create", res.Error)
	}
	if res.RowsAffected > 0 {
		return row, true, nil
	}
	var existing types.Intervention
	if err := t.WithContext(dbc.Ctx).
		First(&existing, "dedup_key = ?", row.DedupKey).Error; err != nil {
		return nil, false, MapStoreError("intervention.get_existing", err)
	}
	return &existing, false, nil
}

func (r *interventionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Intervention, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out types.Intervention
	if err := t.WithContext(dbc.Ctx).First(&out, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, MapStoreError("intervention.get", err)
	}
	return &out, nil
}

func (r *interventionRepo) ActiveByType(dbc dbctx.Context, userID uuid.UUID, interventionType string, since time.Time) (*types.Intervention, error) {
	if userID == uuid.Nil || interventionType == "" {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out types.Intervention
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ? AND intervention_type = ? AND created_at >= ?", userID, interventionType, since).
		Order("created_at DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, MapStoreError("intervention.active_by_type", err)
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *interventionRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) (bool, error) {
	if id == uuid.Nil || !types.TerminalInterventionStatus(status) {
		return false, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.Intervention{}).
		Where("id = ? AND status = ?", id, types.InterventionStatusPending).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, MapStoreError("intervention.update_status", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *interventionRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]types.Intervention, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	var out []types.Intervention
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, MapStoreError("intervention.list", err)
	}
	return out, nil
}
