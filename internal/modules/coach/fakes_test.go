package coach

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	repos "github.com/yungbote/habitloop-backend/internal/data/repos/coach"
	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
)

// In-memory repo fakes. They emulate the store-level contracts the real
// repos guarantee (dedup uniqueness, version CAS, the reward IS NULL
// guard) so the orchestration logic can be tested without a database.

type fakeConsentRepo struct {
	mu    sync.Mutex
	flags map[uuid.UUID]map[string]bool
	err   error
}

func newFakeConsentRepo() *fakeConsentRepo {
	return &fakeConsentRepo{flags: map[uuid.UUID]map[string]bool{}}
}

func (f *fakeConsentRepo) grantAll(userID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[userID] = map[string]bool{
		types.PurposeBehavioralLearning: true,
		types.PurposeAdaptiveCoaching:   true,
	}
}

func (f *fakeConsentRepo) Flags(_ dbctx.Context, userID uuid.UUID, purposes ...string) (map[string]bool, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(purposes))
	for _, p := range purposes {
		out[p] = f.flags[userID][p]
	}
	return out, nil
}

func (f *fakeConsentRepo) Upsert(_ dbctx.Context, row *types.ConsentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flags[row.UserID] == nil {
		f.flags[row.UserID] = map[string]bool{}
	}
	f.flags[row.UserID][row.Purpose] = row.Granted
	return nil
}

type fakeDecisionRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.DecisionRecord
}

func newFakeDecisionRepo() *fakeDecisionRepo {
	return &fakeDecisionRepo{rows: map[uuid.UUID]*types.DecisionRecord{}}
}

func (f *fakeDecisionRepo) Create(_ dbctx.Context, row *types.DecisionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	cp := *row
	f.rows[row.ID] = &cp
	return nil
}

func (f *fakeDecisionRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.DecisionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

type fakeFeedbackRepo struct {
	mu   sync.Mutex
	rows []types.FeedbackEvent
	err  error
}

func newFakeFeedbackRepo() *fakeFeedbackRepo { return &fakeFeedbackRepo{} }

func (f *fakeFeedbackRepo) Create(_ dbctx.Context, row *types.FeedbackEvent) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	f.rows = append(f.rows, *row)
	return nil
}

func (f *fakeFeedbackRepo) LatestByDecision(_ dbctx.Context, decisionID uuid.UUID) (*types.FeedbackEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].DecisionID == decisionID {
			cp := f.rows[i]
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeExperienceRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.Experience
	err  error
}

func newFakeExperienceRepo() *fakeExperienceRepo {
	return &fakeExperienceRepo{rows: map[uuid.UUID]*types.Experience{}}
}

func (f *fakeExperienceRepo) Create(_ dbctx.Context, row *types.Experience) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	cp := *row
	f.rows[row.ID] = &cp
	return nil
}

func (f *fakeExperienceRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeExperienceRepo) ListUnprocessed(_ dbctx.Context, before time.Time, limit int) ([]types.Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Experience
	for _, row := range f.rows {
		if row.Reward == nil && row.CreatedAt.Before(before) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeExperienceRepo) MarkProcessed(_ dbctx.Context, id uuid.UUID, metricsAfter datatypes.JSON, reward float64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Reward != nil {
		return false, nil
	}
	now := time.Now().UTC()
	row.MetricsAfter = metricsAfter
	row.Reward = &reward
	row.ProcessedAt = &now
	return true, nil
}

func (f *fakeExperienceRepo) CountByUser(_ dbctx.Context, userID uuid.UUID) (int64, int64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total, processed int64
	var sum float64
	for _, row := range f.rows {
		if row.UserID != userID {
			continue
		}
		total++
		if row.Reward != nil {
			processed++
			sum += *row.Reward
		}
	}
	avg := 0.0
	if processed > 0 {
		avg = sum / float64(processed)
	}
	return total, processed, avg, nil
}

type weightKey struct {
	userID uuid.UUID
	action types.Action
}

type fakeWeightRepo struct {
	mu   sync.Mutex
	rows map[weightKey]*types.PolicyWeight
	// casMisses forces that many UpdateByVersion calls to report a lost
	// race before letting one through.
	casMisses int
	err       error
}

func newFakeWeightRepo() *fakeWeightRepo {
	return &fakeWeightRepo{rows: map[weightKey]*types.PolicyWeight{}}
}

func (f *fakeWeightRepo) ListByUser(_ dbctx.Context, userID uuid.UUID) ([]types.PolicyWeight, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.PolicyWeight
	for k, row := range f.rows {
		if k.userID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeWeightRepo) Get(_ dbctx.Context, userID uuid.UUID, action types.Action) (*types.PolicyWeight, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[weightKey{userID, action}]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeWeightRepo) Insert(_ dbctx.Context, row *types.PolicyWeight) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := weightKey{row.UserID, row.Action}
	if _, exists := f.rows[key]; exists {
		return repos.ErrConflict
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	cp := *row
	f.rows[key] = &cp
	return nil
}

func (f *fakeWeightRepo) UpdateByVersion(_ dbctx.Context, userID uuid.UUID, action types.Action, expectedVersion int, weights datatypes.JSON) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.casMisses > 0 {
		f.casMisses--
		return false, nil
	}
	row, ok := f.rows[weightKey{userID, action}]
	if !ok || row.Version != expectedVersion {
		return false, nil
	}
	row.Weights = weights
	row.Version = expectedVersion + 1
	row.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (f *fakeWeightRepo) Replace(_ dbctx.Context, row *types.PolicyWeight) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	cp := *row
	f.rows[weightKey{row.UserID, row.Action}] = &cp
	return nil
}

type fakeSignalRepo struct {
	mu   sync.Mutex
	rows []types.SignalRecord
	err  error
}

func newFakeSignalRepo() *fakeSignalRepo { return &fakeSignalRepo{} }

func (f *fakeSignalRepo) CreateBatch(_ dbctx.Context, rows []types.SignalRecord) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeSignalRepo) ListRecent(_ dbctx.Context, userID uuid.UUID, since time.Time, limit int) ([]types.SignalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.SignalRecord
	for _, row := range f.rows {
		if row.UserID == userID && !row.DetectedAt.Before(since) {
			out = append(out, row)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeInterventionRepo struct {
	mu   sync.Mutex
	rows map[string]*types.Intervention
	err  error
}

func newFakeInterventionRepo() *fakeInterventionRepo {
	return &fakeInterventionRepo{rows: map[string]*types.Intervention{}}
}

func (f *fakeInterventionRepo) CreateDedup(_ dbctx.Context, row *types.Intervention) (*types.Intervention, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.rows[row.DedupKey]; ok {
		cp := *existing
		return &cp, false, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	cp := *row
	f.rows[row.DedupKey] = &cp
	out := cp
	return &out, true, nil
}

func (f *fakeInterventionRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Intervention, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeInterventionRepo) ActiveByType(_ dbctx.Context, userID uuid.UUID, interventionType string, since time.Time) (*types.Intervention, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *types.Intervention
	for _, row := range f.rows {
		if row.UserID != userID || row.InterventionType != interventionType || row.CreatedAt.Before(since) {
			continue
		}
		if best == nil || row.CreatedAt.After(best.CreatedAt) {
			best = row
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (f *fakeInterventionRepo) UpdateStatus(_ dbctx.Context, id uuid.UUID, status string) (bool, error) {
	if !types.TerminalInterventionStatus(status) {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id && row.Status == types.InterventionStatusPending {
			row.Status = status
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeInterventionRepo) ListByUser(_ dbctx.Context, userID uuid.UUID, limit int) ([]types.Intervention, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Intervention
	for _, row := range f.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeCache struct {
	mu     sync.Mutex
	items  map[string]*types.Intervention
	gets   int
	sets   int
	getErr error
}

func newFakeCache() *fakeCache { return &fakeCache{items: map[string]*types.Intervention{}} }

func cacheKey(userID uuid.UUID, interventionType string) string {
	return userID.String() + "|" + interventionType
}

func (f *fakeCache) GetActive(_ context.Context, userID uuid.UUID, interventionType string) (*types.Intervention, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	iv, ok := f.items[cacheKey(userID, interventionType)]
	if !ok {
		return nil, nil
	}
	cp := *iv
	return &cp, nil
}

func (f *fakeCache) SetActive(_ context.Context, iv *types.Intervention, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	cp := *iv
	f.items[cacheKey(iv.UserID, iv.InterventionType)] = &cp
	return nil
}

// noopTxRunner runs the callback outside any transaction.
func noopTxRunner(ctx context.Context, fn func(dbctx.Context) error) error {
	return fn(dbctx.Context{Ctx: ctx})
}
