package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	repos "github.com/yungbote/habitloop-backend/internal/data/repos/coach"
	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

type UsecasesDeps struct {
	DB            *gorm.DB
	Cfg           Config
	Log           *logger.Logger
	Sources       repos.SourceReader
	Consent       repos.ConsentRepo
	Decisions     repos.DecisionRepo
	Feedback      repos.FeedbackRepo
	Experiences   repos.ExperienceRepo
	Weights       repos.PolicyWeightRepo
	Signals       repos.SignalRepo
	Interventions repos.InterventionRepo
	Cache         InterventionCache
}

// Usecases is the coach module facade the HTTP layer and workers talk to.
type Usecases struct {
	cfg           Config
	runTx         txRunner
	log           *logger.Logger
	metrics       *MetricsAggregator
	arbiter       *Arbiter
	loop          *LearningLoop
	consent       repos.ConsentRepo
	decisions     repos.DecisionRepo
	weights       repos.PolicyWeightRepo
	signals       repos.SignalRepo
	interventions repos.InterventionRepo

	seed func() int64
	now  func() time.Time
}

func NewUsecases(d UsecasesDeps) *Usecases {
	metrics := NewMetricsAggregator(d.Sources, d.Log)
	return &Usecases{
		cfg:     d.Cfg,
		runTx:   gormTxRunner(d.DB),
		log:     d.Log.With("module", "coach"),
		metrics: metrics,
		arbiter: NewArbiter(d.Cfg, d.Signals, d.Interventions, d.Cache, d.Log),
		loop: NewLearningLoop(LearningLoopDeps{
			DB:          d.DB,
			Cfg:         d.Cfg,
			Consent:     d.Consent,
			Decisions:   d.Decisions,
			Feedback:    d.Feedback,
			Experiences: d.Experiences,
			Weights:     d.Weights,
			Metrics:     metrics,
			Log:         d.Log,
		}),
		consent:       d.Consent,
		decisions:     d.Decisions,
		weights:       d.Weights,
		signals:       d.Signals,
		interventions: d.Interventions,
		seed:          func() int64 { return time.Now().UnixNano() },
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Loop exposes the learning loop for workers (cmd/learner).
func (u *Usecases) Loop() *LearningLoop { return u.loop }

type DecisionView struct {
	ID         uuid.UUID    `json:"id"`
	Action     types.Action `json:"action"`
	Score      float64      `json:"score"`
	Confidence float64      `json:"confidence"`
	Reasoning  string       `json:"reasoning"`
	Explored   bool         `json:"explored"`
}

type CheckInOutput struct {
	Snapshot            types.FeatureSnapshot `json:"snapshot"`
	Signals             []types.Signal        `json:"signals"`
	Intervention        *types.Intervention   `json:"intervention,omitempty"`
	InterventionCreated bool                  `json:"intervention_created"`
	// Decision is nil when adaptive coaching consent is absent.
	Decision *DecisionView `json:"decision,omitempty"`
}

// CheckIn runs one full pass: snapshot, signal detection, intervention
// arbitration, and (consent permitting) a policy decision persisted as a
// decision record.
func (u *Usecases) CheckIn(ctx context.Context, userID uuid.UUID) (CheckInOutput, error) {
	if userID == uuid.Nil {
		return CheckInOutput{}, fmt.Errorf("check-in requires a user id")
	}
	dbc := dbctx.Context{Ctx: ctx}
	now := u.now()

	snap, err := u.metrics.BuildSnapshot(dbc, userID, now)
	if err != nil {
		return CheckInOutput{}, err
	}
	bctx := BehaviorContextFrom(snap)
	signals := DetectSignals(bctx, u.cfg.Thresholds)

	out := CheckInOutput{Snapshot: snap, Signals: signals}

	arb, err := u.arbiter.Arbitrate(dbc, ArbitrateInput{
		UserID:  userID,
		Signals: signals,
		Bctx:    bctx,
		Now:     now,
	})
	if err != nil {
		return out, err
	}
	out.Intervention = arb.Intervention
	out.InterventionCreated = arb.Created

	flags, err := u.consent.Flags(dbc, userID, types.PurposeAdaptiveCoaching)
	if err != nil {
		return out, err
	}
	if !flags[types.PurposeAdaptiveCoaching] {
		return out, nil
	}

	engine, err := u.engineForUser(dbc, userID)
	if err != nil {
		return out, err
	}
	vec := Vectorize(snap)
	decision, err := engine.ChooseAction(vec)
	if err != nil {
		return out, err
	}

	envJSON, err := json.Marshal(DecisionContext{Vector: vec, Snapshot: snap})
	if err != nil {
		return out, err
	}
	record := &types.DecisionRecord{
		UserID:        userID,
		Action:        decision.Action,
		Context:       datatypes.JSON(envJSON),
		VectorVersion: types.VectorVersion,
		Score:         decision.Score,
		Confidence:    decision.Confidence,
		Reasoning:     decision.Reasoning,
		DecidedAt:     now,
	}
	if arb.Intervention != nil {
		id := arb.Intervention.ID
		record.InterventionID = &id
	}
	if err := u.decisions.Create(dbc, record); err != nil {
		return out, err
	}

	out.Decision = &DecisionView{
		ID:         record.ID,
		Action:     decision.Action,
		Score:      decision.Score,
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
		Explored:   decision.Explored,
	}
	return out, nil
}

// engineForUser hydrates a policy engine from the persisted weight rows.
// Rows with a stale vector version are skipped; their actions fall back
// to lazy initialization.
func (u *Usecases) engineForUser(dbc dbctx.Context, userID uuid.UUID) (*PolicyEngine, error) {
	rows, err := u.weights.ListByUser(dbc, userID)
	if err != nil {
		return nil, err
	}
	engine := NewPolicyEngine(u.cfg, u.seed())
	for _, row := range rows {
		if row.VectorVersion != types.VectorVersion {
			u.log.Warn("skipping stale policy weights",
				"user_id", userID.String(),
				"action", string(row.Action),
				"vector_version", row.VectorVersion)
			continue
		}
		var w []float64
		if err := json.Unmarshal(row.Weights, &w); err != nil {
			return nil, fmt.Errorf("decode policy weights for %s: %w", row.Action, err)
		}
		if err := engine.SetWeights(row.Action, w); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// RecordFeedback delegates to the learning loop.
func (u *Usecases) RecordFeedback(ctx context.Context, in RecordFeedbackInput) (RecordFeedbackOutput, error) {
	return u.loop.RecordFeedback(ctx, in)
}

// Recommendations scores all actions for the user's current context
// without recording a decision.
func (u *Usecases) Recommendations(ctx context.Context, userID uuid.UUID, limit int) ([]ActionScore, error) {
	dbc := dbctx.Context{Ctx: ctx}
	snap, err := u.metrics.BuildSnapshot(dbc, userID, u.now())
	if err != nil {
		return nil, err
	}
	engine, err := u.engineForUser(dbc, userID)
	if err != nil {
		return nil, err
	}
	return engine.TopActions(Vectorize(snap), limit)
}

// Snapshot builds the current feature snapshot without side effects.
func (u *Usecases) Snapshot(ctx context.Context, userID uuid.UUID) (types.FeatureSnapshot, error) {
	return u.metrics.BuildSnapshot(dbctx.Context{Ctx: ctx}, userID, u.now())
}

// SetConsent upserts one purpose flag for a user.
func (u *Usecases) SetConsent(ctx context.Context, userID uuid.UUID, purpose string, granted bool) error {
	switch purpose {
	case types.PurposeBehavioralLearning, types.PurposeAdaptiveCoaching:
	default:
		return fmt.Errorf("unknown consent purpose %q", purpose)
	}
	return u.consent.Upsert(dbctx.Context{Ctx: ctx}, &types.ConsentRecord{
		UserID:  userID,
		Purpose: purpose,
		Granted: granted,
	})
}

// ConsentFlags reports the user's current grants for both purposes.
func (u *Usecases) ConsentFlags(ctx context.Context, userID uuid.UUID) (map[string]bool, error) {
	return u.consent.Flags(dbctx.Context{Ctx: ctx}, userID,
		types.PurposeBehavioralLearning, types.PurposeAdaptiveCoaching)
}

// Interventions lists the user's recent interventions.
func (u *Usecases) Interventions(ctx context.Context, userID uuid.UUID, limit int) ([]types.Intervention, error) {
	return u.interventions.ListByUser(dbctx.Context{Ctx: ctx}, userID, limit)
}

// ResolveIntervention moves a pending intervention to a terminal status.
// False means it was already resolved (or the status was invalid).
func (u *Usecases) ResolveIntervention(ctx context.Context, userID, id uuid.UUID, status string) (bool, error) {
	dbc := dbctx.Context{Ctx: ctx}
	iv, err := u.interventions.GetByID(dbc, id)
	if err != nil {
		return false, err
	}
	if iv == nil || iv.UserID != userID {
		return false, nil
	}
	return u.interventions.UpdateStatus(dbc, id, status)
}

// RecentSignals returns the audit trail of recent detection passes.
func (u *Usecases) RecentSignals(ctx context.Context, userID uuid.UUID, window time.Duration, limit int) ([]types.SignalRecord, error) {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return u.signals.ListRecent(dbctx.Context{Ctx: ctx}, userID, u.now().Add(-window), limit)
}

// LearningStats reports the user's learning progress, including weight
// aggregates from a policy engine hydrated from the persisted rows.
func (u *Usecases) LearningStats(ctx context.Context, userID uuid.UUID) (LearningStats, error) {
	stats, err := u.loop.Stats(ctx, userID)
	if err != nil {
		return LearningStats{}, err
	}
	engine, err := u.engineForUser(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return LearningStats{}, err
	}
	stats.Policy = engine.Stats()
	return stats, nil
}

// ExportPolicy serializes the user's current weights.
func (u *Usecases) ExportPolicy(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	engine, err := u.engineForUser(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return nil, err
	}
	return engine.Export()
}

// ImportPolicy replaces the user's persisted weights with an exported
// blob. Versions restart at 1; in-flight CAS writers lose and reread.
func (u *Usecases) ImportPolicy(ctx context.Context, userID uuid.UUID, blob []byte) error {
	engine := NewPolicyEngine(u.cfg, u.seed())
	if err := engine.Import(blob); err != nil {
		return err
	}
	return u.runTx(ctx, func(txc dbctx.Context) error {
		for _, action := range types.AllActions() {
			w := engine.WeightsFor(action)
			wJSON, err := json.Marshal(w)
			if err != nil {
				return err
			}
			err = u.weights.Replace(txc, &types.PolicyWeight{
				UserID:        userID,
				Action:        action,
				Weights:       datatypes.JSON(wJSON),
				VectorVersion: types.VectorVersion,
				Version:       1,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
