package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/habitloop-backend/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "A",
		LastName:  "B",
		Timezone:  "UTC",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedDecision(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, action types.Action) *types.DecisionRecord {
	tb.Helper()
	d := &types.DecisionRecord{
		ID:            uuid.New(),
		UserID:        userID,
		Action:        action,
		Context:       datatypes.JSON([]byte(`{}`)),
		VectorVersion: types.VectorVersion,
		Score:         0.5,
		Confidence:    0.5,
		DecidedAt:     time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed decision: %v", err)
	}
	return d
}

func SeedExperience(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, decisionID uuid.UUID, createdAt time.Time) *types.Experience {
	tb.Helper()
	e := &types.Experience{
		ID:            uuid.New(),
		UserID:        userID,
		DecisionID:    decisionID,
		Action:        types.ActionNudge,
		Context:       datatypes.JSON([]byte(`[]`)),
		MetricsBefore: datatypes.JSON([]byte(`{}`)),
		CreatedAt:     createdAt,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed experience: %v", err)
	}
	return e
}

func SeedPolicyWeight(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, action types.Action, version int) *types.PolicyWeight {
	tb.Helper()
	w := &types.PolicyWeight{
		ID:            uuid.New(),
		UserID:        userID,
		Action:        action,
		Weights:       datatypes.JSON([]byte(`[0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0]`)),
		VectorVersion: types.VectorVersion,
		Version:       version,
	}
	if err := tx.WithContext(ctx).Create(w).Error; err != nil {
		tb.Fatalf("seed policy weight: %v", err)
	}
	return w
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
