package coach

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	repos "github.com/yungbote/habitloop-backend/internal/data/repos/coach"
	types "github.com/yungbote/habitloop-backend/internal/domain"
)

type loopFixture struct {
	loop        *LearningLoop
	consent     *fakeConsentRepo
	decisions   *fakeDecisionRepo
	feedback    *fakeFeedbackRepo
	experiences *fakeExperienceRepo
	weights     *fakeWeightRepo
	sources     *fakeSources
	now         time.Time
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StoreRetryDelay = time.Millisecond

	f := &loopFixture{
		consent:     newFakeConsentRepo(),
		decisions:   newFakeDecisionRepo(),
		feedback:    newFakeFeedbackRepo(),
		experiences: newFakeExperienceRepo(),
		weights:     newFakeWeightRepo(),
		sources:     &fakeSources{},
		now:         time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
	}
	f.loop = &LearningLoop{
		runTx:       noopTxRunner,
		cfg:         cfg,
		consent:     f.consent,
		decisions:   f.decisions,
		feedback:    f.feedback,
		experiences: f.experiences,
		weights:     f.weights,
		metrics:     NewMetricsAggregator(f.sources, testLogger(t)),
		log:         testLogger(t),
		seed:        func() int64 { return 1 },
		now:         func() time.Time { return f.now },
	}
	return f
}

func (f *loopFixture) seedDecision(t *testing.T, userID uuid.UUID, action types.Action) *types.DecisionRecord {
	t.Helper()
	vec := make(types.ContextVector, types.ContextVectorLen)
	vec[0] = 0.8
	vec[12] = 0.8
	env, err := json.Marshal(DecisionContext{
		Vector:   vec,
		Snapshot: types.FeatureSnapshot{HabitCompletionRate: 0.8, Consistency: 0.8, DataQuality: 1},
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	row := &types.DecisionRecord{
		UserID:        userID,
		Action:        action,
		Context:       datatypes.JSON(env),
		VectorVersion: types.VectorVersion,
		DecidedAt:     f.now,
	}
	if err := f.decisions.Create(testDBC(), row); err != nil {
		t.Fatalf("seed decision: %v", err)
	}
	return row
}

func (f *loopFixture) seedExperience(t *testing.T, userID uuid.UUID, action types.Action, createdAt time.Time) *types.Experience {
	t.Helper()
	vec := make(types.ContextVector, types.ContextVectorLen)
	vec[0] = 1
	vecJSON, err := json.Marshal(vec)
	if err != nil {
		t.Fatalf("marshal vector: %v", err)
	}
	beforeJSON, err := json.Marshal(types.FeatureSnapshot{
		HabitCompletionRate: 0.3,
		Momentum:            0.3,
		DataQuality:         1,
	})
	if err != nil {
		t.Fatalf("marshal before: %v", err)
	}
	row := &types.Experience{
		UserID:        userID,
		DecisionID:    uuid.New(),
		Action:        action,
		Context:       datatypes.JSON(vecJSON),
		MetricsBefore: datatypes.JSON(beforeJSON),
		CreatedAt:     createdAt,
	}
	if err := f.experiences.Create(testDBC(), row); err != nil {
		t.Fatalf("seed experience: %v", err)
	}
	return row
}

func TestRecordFeedbackConsentDeniedWritesNothing(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	decision := f.seedDecision(t, userID, types.ActionNudge)

	out, err := f.loop.RecordFeedback(context.Background(), RecordFeedbackInput{
		UserID:     userID,
		DecisionID: decision.ID,
		Kind:       types.FeedbackAccepted,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Status != StatusSkippedConsent {
		t.Fatalf("status = %q, want %q", out.Status, StatusSkippedConsent)
	}
	if len(f.feedback.rows) != 0 || len(f.experiences.rows) != 0 {
		t.Fatalf("writes happened without consent")
	}
}

func TestRecordFeedbackPartialConsentStillDenied(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	decision := f.seedDecision(t, userID, types.ActionNudge)
	if err := f.consent.Upsert(testDBC(), &types.ConsentRecord{
		UserID: userID, Purpose: types.PurposeBehavioralLearning, Granted: true,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	out, err := f.loop.RecordFeedback(context.Background(), RecordFeedbackInput{
		UserID:     userID,
		DecisionID: decision.ID,
		Kind:       types.FeedbackAccepted,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Status != StatusSkippedConsent {
		t.Fatalf("one purpose must not be enough, got %q", out.Status)
	}
}

func TestRecordFeedbackCreatesEventAndExperience(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	f.consent.grantAll(userID)
	decision := f.seedDecision(t, userID, types.ActionChallenge)

	out, err := f.loop.RecordFeedback(context.Background(), RecordFeedbackInput{
		UserID:       userID,
		DecisionID:   decision.ID,
		Kind:         types.FeedbackCompleted,
		Explicit:     types.ExplicitHelpful,
		TimeToAction: 90 * time.Second,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Status != StatusRecorded {
		t.Fatalf("status = %q", out.Status)
	}
	if len(f.feedback.rows) != 1 {
		t.Fatalf("feedback rows = %d", len(f.feedback.rows))
	}
	fb := f.feedback.rows[0]
	if fb.Kind != types.FeedbackCompleted || fb.Explicit != types.ExplicitHelpful || fb.TimeToActionSec != 90 {
		t.Fatalf("feedback row wrong: %+v", fb)
	}

	exp, err := f.experiences.GetByID(testDBC(), out.ExperienceID)
	if err != nil || exp == nil {
		t.Fatalf("experience missing: %v", err)
	}
	if exp.Action != types.ActionChallenge || exp.Processed() {
		t.Fatalf("experience wrong: %+v", exp)
	}
	var vec types.ContextVector
	if err := json.Unmarshal(exp.Context, &vec); err != nil || !vec.Valid() {
		t.Fatalf("experience context not the decision vector: %v", err)
	}
}

func TestRecordFeedbackValidation(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	f.consent.grantAll(userID)

	if _, err := f.loop.RecordFeedback(context.Background(), RecordFeedbackInput{
		UserID:     userID,
		DecisionID: uuid.New(),
		Kind:       "enjoyed",
	}); err == nil {
		t.Fatalf("unknown kind accepted")
	}
	if _, err := f.loop.RecordFeedback(context.Background(), RecordFeedbackInput{
		UserID:     userID,
		DecisionID: uuid.New(),
		Kind:       types.FeedbackAccepted,
	}); !errors.Is(err, ErrDecisionNotFound) {
		t.Fatalf("missing decision error = %v", err)
	}

	other := uuid.New()
	decision := f.seedDecision(t, other, types.ActionNudge)
	if _, err := f.loop.RecordFeedback(context.Background(), RecordFeedbackInput{
		UserID:     userID,
		DecisionID: decision.ID,
		Kind:       types.FeedbackAccepted,
	}); !errors.Is(err, ErrDecisionNotFound) {
		t.Fatalf("cross-user decision error = %v", err)
	}
}

func TestProcessDelayedLearningHappyPath(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	f.consent.grantAll(userID)
	// After-metrics improved over the seeded before-metrics.
	f.sources.habits = repos.HabitActivity{Present: true, CompletionRate: 0.9, Completions3d: 4, Completions7d: 9}
	exp := f.seedExperience(t, userID, types.ActionNudge, f.now.Add(-8*time.Hour))
	if err := f.feedback.Create(testDBC(), &types.FeedbackEvent{
		UserID:     userID,
		DecisionID: exp.DecisionID,
		Kind:       types.FeedbackCompleted,
	}); err != nil {
		t.Fatalf("seed feedback: %v", err)
	}

	out, err := f.loop.ProcessDelayedLearning(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Status != StatusProcessed {
		t.Fatalf("status = %q", out.Status)
	}
	if out.Reward <= 0 {
		t.Fatalf("reward = %v, want positive for improvement plus completion", out.Reward)
	}

	stored, err := f.experiences.GetByID(testDBC(), exp.ID)
	if err != nil || stored == nil || !stored.Processed() {
		t.Fatalf("experience not marked: %+v err=%v", stored, err)
	}
	if *stored.Reward != out.Reward || len(stored.MetricsAfter) == 0 {
		t.Fatalf("stored reward/metrics wrong: %+v", stored)
	}

	row, err := f.weights.Get(testDBC(), userID, types.ActionNudge)
	if err != nil || row == nil {
		t.Fatalf("weight row missing: %v", err)
	}
	if row.Version != 1 || row.VectorVersion != types.VectorVersion {
		t.Fatalf("weight row versions wrong: %+v", row)
	}
	var w []float64
	if err := json.Unmarshal(row.Weights, &w); err != nil {
		t.Fatalf("decode weights: %v", err)
	}
	// ctx[0] carried the whole signal, so w[0] moved by lr*reward.
	if w[0] < out.Reward*f.loop.cfg.LearningRate-f.loop.cfg.InitScale {
		t.Fatalf("w[0] = %v did not absorb the gradient step", w[0])
	}
}

func TestProcessDelayedLearningIdempotent(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	f.consent.grantAll(userID)
	f.sources.habits = repos.HabitActivity{Present: true, CompletionRate: 0.9, Completions7d: 9}
	exp := f.seedExperience(t, userID, types.ActionWarn, f.now.Add(-8*time.Hour))

	first, err := f.loop.ProcessDelayedLearning(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Status != StatusProcessed {
		t.Fatalf("first status = %q", first.Status)
	}
	rowAfterFirst, err := f.weights.Get(testDBC(), userID, types.ActionWarn)
	if err != nil || rowAfterFirst == nil {
		t.Fatalf("weight row: %v", err)
	}

	second, err := f.loop.ProcessDelayedLearning(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Status != StatusAlreadyProcessed {
		t.Fatalf("second status = %q", second.Status)
	}
	rowAfterSecond, err := f.weights.Get(testDBC(), userID, types.ActionWarn)
	if err != nil {
		t.Fatalf("weight row: %v", err)
	}
	if rowAfterSecond.Version != rowAfterFirst.Version {
		t.Fatalf("weights moved on replay: %d -> %d", rowAfterFirst.Version, rowAfterSecond.Version)
	}
}

func TestProcessDelayedLearningConsentRevoked(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	exp := f.seedExperience(t, userID, types.ActionNudge, f.now.Add(-8*time.Hour))

	out, err := f.loop.ProcessDelayedLearning(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Status != StatusSkippedConsent {
		t.Fatalf("status = %q", out.Status)
	}
	stored, err := f.experiences.GetByID(testDBC(), exp.ID)
	if err != nil || stored == nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Processed() {
		t.Fatalf("experience processed despite revoked consent")
	}
	if rows, err := f.weights.ListByUser(testDBC(), userID); err != nil || len(rows) != 0 {
		t.Fatalf("weights written despite revoked consent: %v %v", rows, err)
	}
}

func TestProcessDelayedLearningUnknownExperience(t *testing.T) {
	f := newLoopFixture(t)
	if _, err := f.loop.ProcessDelayedLearning(context.Background(), uuid.New()); !errors.Is(err, ErrExperienceNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestWeightUpdateRetriesVersionRace(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	f.consent.grantAll(userID)
	f.sources.habits = repos.HabitActivity{Present: true, CompletionRate: 0.9, Completions7d: 9}

	seedWeights := make([]float64, types.ContextVectorLen)
	seedJSON, err := json.Marshal(seedWeights)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := f.weights.Insert(testDBC(), &types.PolicyWeight{
		UserID:        userID,
		Action:        types.ActionNudge,
		Weights:       datatypes.JSON(seedJSON),
		VectorVersion: types.VectorVersion,
		Version:       3,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	f.weights.casMisses = 2

	exp := f.seedExperience(t, userID, types.ActionNudge, f.now.Add(-8*time.Hour))
	out, err := f.loop.ProcessDelayedLearning(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Status != StatusProcessed {
		t.Fatalf("status = %q", out.Status)
	}
	row, err := f.weights.Get(testDBC(), userID, types.ActionNudge)
	if err != nil || row == nil {
		t.Fatalf("get: %v", err)
	}
	if row.Version != 4 {
		t.Fatalf("version = %d, want 4 after CAS retry", row.Version)
	}
}

func TestWeightUpdateExhaustsRetries(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	f.consent.grantAll(userID)
	f.sources.habits = repos.HabitActivity{Present: true, CompletionRate: 0.9, Completions7d: 9}

	seedJSON, err := json.Marshal(make([]float64, types.ContextVectorLen))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := f.weights.Insert(testDBC(), &types.PolicyWeight{
		UserID:        userID,
		Action:        types.ActionNudge,
		Weights:       datatypes.JSON(seedJSON),
		VectorVersion: types.VectorVersion,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	f.weights.casMisses = 100

	exp := f.seedExperience(t, userID, types.ActionNudge, f.now.Add(-8*time.Hour))
	_, err = f.loop.ProcessDelayedLearning(context.Background(), exp.ID)
	if err == nil || !strings.Contains(err.Error(), "retries") {
		t.Fatalf("expected retry exhaustion, got %v", err)
	}
	// The experience mutation already happened; replay must be a no-op.
	out, err := f.loop.ProcessDelayedLearning(context.Background(), exp.ID)
	if err != nil || out.Status != StatusAlreadyProcessed {
		t.Fatalf("replay after exhaustion: %+v %v", out, err)
	}
}

func TestProcessPendingBatch(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	f.consent.grantAll(userID)
	f.sources.habits = repos.HabitActivity{Present: true, CompletionRate: 0.9, Completions7d: 9}

	settled := f.now.Add(-f.loop.cfg.SettleDelay - time.Hour)
	f.seedExperience(t, userID, types.ActionNudge, settled)
	f.seedExperience(t, userID, types.ActionWarn, settled.Add(time.Minute))
	f.seedExperience(t, userID, types.ActionCelebrate, settled.Add(2*time.Minute))
	// Too fresh to settle.
	f.seedExperience(t, userID, types.ActionNudge, f.now.Add(-time.Hour))

	res, err := f.loop.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if res.Scanned != 3 || res.Processed != 3 || res.Failed != 0 {
		t.Fatalf("batch result = %+v", res)
	}
}

func TestProcessPendingIsolatesFailures(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	f.consent.grantAll(userID)
	f.sources.habits = repos.HabitActivity{Present: true, CompletionRate: 0.9, Completions7d: 9}

	settled := f.now.Add(-f.loop.cfg.SettleDelay - time.Hour)
	good := f.seedExperience(t, userID, types.ActionNudge, settled)

	bad := &types.Experience{
		UserID:        userID,
		DecisionID:    uuid.New(),
		Action:        types.ActionWarn,
		Context:       datatypes.JSON([]byte(`"corrupt"`)),
		MetricsBefore: datatypes.JSON([]byte(`{}`)),
		CreatedAt:     settled.Add(time.Minute),
	}
	if err := f.experiences.Create(testDBC(), bad); err != nil {
		t.Fatalf("seed bad: %v", err)
	}

	res, err := f.loop.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if res.Scanned != 2 || res.Processed != 1 || res.Failed != 1 {
		t.Fatalf("batch result = %+v", res)
	}
	stored, err := f.experiences.GetByID(testDBC(), good.ID)
	if err != nil || stored == nil || !stored.Processed() {
		t.Fatalf("good item not processed: %+v %v", stored, err)
	}
}

func TestLearningStats(t *testing.T) {
	f := newLoopFixture(t)
	userID := uuid.New()
	f.consent.grantAll(userID)
	f.sources.habits = repos.HabitActivity{Present: true, CompletionRate: 0.9, Completions7d: 9}

	settled := f.now.Add(-f.loop.cfg.SettleDelay - time.Hour)
	exp := f.seedExperience(t, userID, types.ActionNudge, settled)
	f.seedExperience(t, userID, types.ActionWarn, f.now.Add(-time.Minute))

	if _, err := f.loop.ProcessDelayedLearning(context.Background(), exp.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	stats, err := f.loop.Stats(context.Background(), userID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalExperiences != 2 || stats.ProcessedExperiences != 1 || stats.PendingExperiences != 1 {
		t.Fatalf("stats counts wrong: %+v", stats)
	}
	if len(stats.Actions) != 1 || stats.Actions[0].Action != types.ActionNudge {
		t.Fatalf("action stats wrong: %+v", stats.Actions)
	}
}
