package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	repos "github.com/yungbote/habitloop-backend/internal/data/repos/coach"
	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

// Processing outcome statuses for a single experience.
const (
	StatusRecorded         = "recorded"
	StatusProcessed        = "processed"
	StatusAlreadyProcessed = "already_processed"
	StatusSkippedConsent   = "skipped_consent"
)

var ErrDecisionNotFound = errors.New("decision not found")
var ErrExperienceNotFound = errors.New("experience not found")

// DecisionContext is the JSON envelope stored on decision records: the
// scored vector plus the snapshot it was derived from, so delayed
// processing can compute metric deltas without a second capture.
type DecisionContext struct {
	Vector   types.ContextVector   `json:"vector"`
	Snapshot types.FeatureSnapshot `json:"snapshot"`
}

// txRunner runs fn inside one storage transaction.
type txRunner func(ctx context.Context, fn func(dbctx.Context) error) error

func gormTxRunner(db *gorm.DB) txRunner {
	return func(ctx context.Context, fn func(dbctx.Context) error) error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(dbctx.Context{Ctx: ctx, Tx: tx})
		})
	}
}

// LearningLoop owns the consent-gated feedback and delayed-reward path.
// Every write is preceded by a consent check; a denied purpose produces a
// skip outcome with zero writes, never an error.
type LearningLoop struct {
	runTx       txRunner
	cfg         Config
	consent     repos.ConsentRepo
	decisions   repos.DecisionRepo
	feedback    repos.FeedbackRepo
	experiences repos.ExperienceRepo
	weights     repos.PolicyWeightRepo
	metrics     *MetricsAggregator
	log         *logger.Logger

	// seed feeds lazily created policy engines; injectable in tests.
	seed func() int64
	now  func() time.Time
}

type LearningLoopDeps struct {
	DB          *gorm.DB
	Cfg         Config
	Consent     repos.ConsentRepo
	Decisions   repos.DecisionRepo
	Feedback    repos.FeedbackRepo
	Experiences repos.ExperienceRepo
	Weights     repos.PolicyWeightRepo
	Metrics     *MetricsAggregator
	Log         *logger.Logger
}

func NewLearningLoop(d LearningLoopDeps) *LearningLoop {
	return &LearningLoop{
		runTx:       gormTxRunner(d.DB),
		cfg:         d.Cfg,
		consent:     d.Consent,
		decisions:   d.Decisions,
		feedback:    d.Feedback,
		experiences: d.Experiences,
		weights:     d.Weights,
		metrics:     d.Metrics,
		log:         d.Log.With("component", "LearningLoop"),
		seed:        func() int64 { return time.Now().UnixNano() },
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (l *LearningLoop) learningAllowed(dbc dbctx.Context, userID uuid.UUID) (bool, error) {
	flags, err := l.consent.Flags(dbc, userID, types.PurposeBehavioralLearning, types.PurposeAdaptiveCoaching)
	if err != nil {
		return false, err
	}
	return flags[types.PurposeBehavioralLearning] && flags[types.PurposeAdaptiveCoaching], nil
}

type RecordFeedbackInput struct {
	UserID       uuid.UUID
	DecisionID   uuid.UUID
	Kind         string
	Explicit     string
	TimeToAction time.Duration
}

type RecordFeedbackOutput struct {
	Status       string
	FeedbackID   uuid.UUID
	ExperienceID uuid.UUID
}

// RecordFeedback stores a feedback event and the matching unprocessed
// experience in one transaction. The reward stays null here; delayed
// processing computes it after the settle delay.
func (l *LearningLoop) RecordFeedback(ctx context.Context, in RecordFeedbackInput) (RecordFeedbackOutput, error) {
	switch in.Kind {
	case types.FeedbackAccepted, types.FeedbackRejected, types.FeedbackIgnored, types.FeedbackCompleted:
	default:
		return RecordFeedbackOutput{}, fmt.Errorf("unknown feedback kind %q", in.Kind)
	}
	switch in.Explicit {
	case "", types.ExplicitHelpful, types.ExplicitNotHelpful:
	default:
		return RecordFeedbackOutput{}, fmt.Errorf("unknown explicit label %q", in.Explicit)
	}

	dbc := dbctx.Context{Ctx: ctx}
	allowed, err := l.learningAllowed(dbc, in.UserID)
	if err != nil {
		return RecordFeedbackOutput{}, err
	}
	if !allowed {
		return RecordFeedbackOutput{Status: StatusSkippedConsent}, nil
	}

	decision, err := l.decisions.GetByID(dbc, in.DecisionID)
	if err != nil {
		return RecordFeedbackOutput{}, err
	}
	if decision == nil || decision.UserID != in.UserID {
		return RecordFeedbackOutput{}, ErrDecisionNotFound
	}

	var env DecisionContext
	if err := json.Unmarshal(decision.Context, &env); err != nil {
		return RecordFeedbackOutput{}, fmt.Errorf("decode decision context: %w", err)
	}
	vectorJSON, err := json.Marshal(env.Vector)
	if err != nil {
		return RecordFeedbackOutput{}, err
	}
	beforeJSON, err := json.Marshal(env.Snapshot)
	if err != nil {
		return RecordFeedbackOutput{}, err
	}

	fb := &types.FeedbackEvent{
		UserID:          in.UserID,
		DecisionID:      in.DecisionID,
		Kind:            in.Kind,
		Explicit:        in.Explicit,
		TimeToActionSec: int(in.TimeToAction / time.Second),
		CreatedAt:       l.now(),
	}
	exp := &types.Experience{
		UserID:        in.UserID,
		DecisionID:    in.DecisionID,
		Action:        decision.Action,
		Context:       datatypes.JSON(vectorJSON),
		MetricsBefore: datatypes.JSON(beforeJSON),
		CreatedAt:     l.now(),
	}

	err = l.runTx(ctx, func(txc dbctx.Context) error {
		if err := l.feedback.Create(txc, fb); err != nil {
			return err
		}
		return l.experiences.Create(txc, exp)
	})
	if err != nil {
		return RecordFeedbackOutput{}, err
	}
	return RecordFeedbackOutput{
		Status:       StatusRecorded,
		FeedbackID:   fb.ID,
		ExperienceID: exp.ID,
	}, nil
}

type ProcessOutput struct {
	Status string
	Reward float64
}

// ProcessDelayedLearning computes the reward for one experience and folds
// it into the policy weights. The operation is idempotent: the
// `reward IS NULL` guard in the store makes the experience mutation
// happen at most once, so a concurrent or repeated call reports
// already_processed and changes nothing.
func (l *LearningLoop) ProcessDelayedLearning(ctx context.Context, experienceID uuid.UUID) (ProcessOutput, error) {
	dbc := dbctx.Context{Ctx: ctx}
	exp, err := l.experiences.GetByID(dbc, experienceID)
	if err != nil {
		return ProcessOutput{}, err
	}
	if exp == nil {
		return ProcessOutput{}, ErrExperienceNotFound
	}
	if exp.Processed() {
		return ProcessOutput{Status: StatusAlreadyProcessed}, nil
	}

	// Consent is re-checked here: a user can revoke between feedback and
	// the delayed pass, and revocation must stop learning immediately.
	allowed, err := l.learningAllowed(dbc, exp.UserID)
	if err != nil {
		return ProcessOutput{}, err
	}
	if !allowed {
		return ProcessOutput{Status: StatusSkippedConsent}, nil
	}

	var vector types.ContextVector
	if err := json.Unmarshal(exp.Context, &vector); err != nil {
		return ProcessOutput{}, fmt.Errorf("decode experience context: %w", err)
	}
	if !vector.Valid() {
		return ProcessOutput{}, fmt.Errorf("experience %s has invalid context vector", exp.ID)
	}
	var before types.FeatureSnapshot
	if err := json.Unmarshal(exp.MetricsBefore, &before); err != nil {
		return ProcessOutput{}, fmt.Errorf("decode metrics before: %w", err)
	}

	after, err := l.metrics.BuildSnapshot(dbc, exp.UserID, l.now())
	if err != nil {
		return ProcessOutput{}, err
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return ProcessOutput{}, err
	}

	fb, err := l.feedback.LatestByDecision(dbc, exp.DecisionID)
	if err != nil {
		return ProcessOutput{}, err
	}
	var kind, explicit string
	var timeToAction time.Duration
	if fb != nil {
		kind = fb.Kind
		explicit = fb.Explicit
		timeToAction = time.Duration(fb.TimeToActionSec) * time.Second
	}

	var reward float64
	switch l.cfg.RewardStrategy {
	case RewardStrategyImmediate:
		reward = ImmediateReward(ImmediateRewardInput{
			Feedback:     kind,
			Explicit:     explicit,
			TimeToAction: timeToAction,
			MetricDelta:  after.HabitCompletionRate - before.HabitCompletionRate,
		})
	default:
		reward = ImpactReward(ImpactRewardInput{
			Feedback:      kind,
			Explicit:      explicit,
			MetricsBefore: before,
			MetricsAfter:  after,
		})
	}

	ok, err := l.experiences.MarkProcessed(dbc, exp.ID, datatypes.JSON(afterJSON), reward)
	if err != nil {
		return ProcessOutput{}, err
	}
	if !ok {
		return ProcessOutput{Status: StatusAlreadyProcessed}, nil
	}

	if err := l.applyWeightUpdate(dbc, exp.UserID, exp.Action, vector, reward); err != nil {
		// The experience is already marked; surfacing the error lets the
		// operator see the weight write failed without re-running rewards.
		return ProcessOutput{Status: StatusProcessed, Reward: reward}, err
	}
	return ProcessOutput{Status: StatusProcessed, Reward: reward}, nil
}

// applyWeightUpdate folds one gradient step into the persisted weights
// under optimistic concurrency: read row, apply step, compare-and-set on
// version, retrying a bounded number of times on conflicts and transient
// store failures.
func (l *LearningLoop) applyWeightUpdate(dbc dbctx.Context, userID uuid.UUID, action types.Action, vector types.ContextVector, reward float64) error {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.StoreMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-dbc.Ctx.Done():
				return dbc.Ctx.Err()
			case <-time.After(l.cfg.StoreRetryDelay * time.Duration(attempt)):
			}
		}

		row, err := l.weights.Get(dbc, userID, action)
		if err != nil {
			if errors.Is(err, repos.ErrRetryable) {
				lastErr = err
				continue
			}
			return err
		}

		engine := NewPolicyEngine(l.cfg, l.seed())
		if row != nil {
			var w []float64
			if err := json.Unmarshal(row.Weights, &w); err != nil {
				return fmt.Errorf("decode policy weights: %w", err)
			}
			if err := engine.SetWeights(action, w); err != nil {
				return err
			}
		}
		if err := engine.UpdateWeights(vector, action, reward); err != nil {
			return err
		}
		updatedJSON, err := json.Marshal(engine.WeightsFor(action))
		if err != nil {
			return err
		}

		if row == nil {
			err := l.weights.Insert(dbc, &types.PolicyWeight{
				UserID:        userID,
				Action:        action,
				Weights:       datatypes.JSON(updatedJSON),
				VectorVersion: types.VectorVersion,
				Version:       1,
			})
			if err == nil {
				return nil
			}
			if errors.Is(err, repos.ErrConflict) || errors.Is(err, repos.ErrRetryable) {
				lastErr = err
				continue
			}
			return err
		}

		ok, err := l.weights.UpdateByVersion(dbc, userID, action, row.Version, datatypes.JSON(updatedJSON))
		if err != nil {
			if errors.Is(err, repos.ErrRetryable) {
				lastErr = err
				continue
			}
			return err
		}
		if ok {
			return nil
		}
		lastErr = fmt.Errorf("policy weight version race for %s/%s", userID, action)
	}
	return fmt.Errorf("weight update exhausted %d retries: %w", l.cfg.StoreMaxRetries, lastErr)
}

type BatchResult struct {
	Scanned   int `json:"scanned"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ProcessPending drains settled unprocessed experiences with bounded
// parallelism. A failing item is logged and counted; it never aborts the
// batch.
func (l *LearningLoop) ProcessPending(ctx context.Context) (BatchResult, error) {
	cutoff := l.now().Add(-l.cfg.SettleDelay)
	items, err := l.experiences.ListUnprocessed(dbctx.Context{Ctx: ctx}, cutoff, l.cfg.BatchLimit)
	if err != nil {
		return BatchResult{}, err
	}

	var mu sync.Mutex
	res := BatchResult{Scanned: len(items)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.BatchParallelism)
	for _, item := range items {
		id := item.ID
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(gctx, l.cfg.ItemTimeout)
			defer cancel()
			out, err := l.ProcessDelayedLearning(itemCtx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failed++
				l.log.Warn("delayed learning failed", "experience_id", id.String(), "error", err)
			case out.Status == StatusProcessed:
				res.Processed++
			default:
				res.Skipped++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

type ActionStat struct {
	Action    types.Action `json:"action"`
	Version   int          `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type LearningStats struct {
	TotalExperiences     int64           `json:"total_experiences"`
	ProcessedExperiences int64           `json:"processed_experiences"`
	PendingExperiences   int64           `json:"pending_experiences"`
	AvgReward            float64         `json:"avg_reward"`
	Consent              map[string]bool `json:"consent"`
	Actions              []ActionStat    `json:"actions"`
	Policy               EngineStats     `json:"policy"`
}

// Stats reports a user's learning progress for the stats surface.
func (l *LearningLoop) Stats(ctx context.Context, userID uuid.UUID) (LearningStats, error) {
	dbc := dbctx.Context{Ctx: ctx}
	total, processed, avg, err := l.experiences.CountByUser(dbc, userID)
	if err != nil {
		return LearningStats{}, err
	}
	rows, err := l.weights.ListByUser(dbc, userID)
	if err != nil {
		return LearningStats{}, err
	}
	flags, err := l.consent.Flags(dbc, userID,
		types.PurposeBehavioralLearning, types.PurposeAdaptiveCoaching)
	if err != nil {
		return LearningStats{}, err
	}
	stats := LearningStats{
		TotalExperiences:     total,
		ProcessedExperiences: processed,
		PendingExperiences:   total - processed,
		AvgReward:            avg,
		Consent:              flags,
	}
	for _, row := range rows {
		stats.Actions = append(stats.Actions, ActionStat{
			Action:    row.Action,
			Version:   row.Version,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return stats, nil
}
