package coach

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"

	types "github.com/yungbote/habitloop-backend/internal/domain"
)

// PolicyEngine is a per-user linear contextual bandit over the fixed
// action set. Weights are lazily initialized with small random values the
// first time an action is scored; the same rng drives epsilon-greedy
// exploration, so a seeded engine is fully deterministic.
//
// The engine is not safe for concurrent use. Callers hold one engine per
// request and persist weights through the policy weight repo.
type PolicyEngine struct {
	weights      map[types.Action][]float64
	epsilon      float64
	learningRate float64
	initScale    float64
	rng          *rand.Rand
	updates      int
}

type Decision struct {
	Action     types.Action
	Score      float64
	Confidence float64
	Reasoning  string
	Explored   bool
}

type ActionScore struct {
	Action types.Action `json:"action"`
	Score  float64      `json:"score"`
}

type TrainingExample struct {
	Context types.ContextVector
	Action  types.Action
	Reward  float64
}

type EngineStats struct {
	Actions      int  `json:"actions"`
	Updates      int  `json:"updates"`
	VectorLength int  `json:"vector_length"`
	Exploring    bool `json:"exploring"`

	// Weight aggregates over every initialized action vector. All zero
	// when no action has weights yet.
	AvgWeightMagnitude float64                  `json:"avg_weight_magnitude"`
	MinWeight          float64                  `json:"min_weight"`
	MaxWeight          float64                  `json:"max_weight"`
	Norms              map[types.Action]float64 `json:"norms,omitempty"`
}

func NewPolicyEngine(cfg Config, seed int64) *PolicyEngine {
	return &PolicyEngine{
		weights:      make(map[types.Action][]float64, len(types.AllActions())),
		epsilon:      cfg.Epsilon,
		learningRate: cfg.LearningRate,
		initScale:    cfg.InitScale,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// SetWeights installs a persisted weight vector for an action. Vectors of
// the wrong length are rejected so a stale row cannot corrupt scoring.
func (e *PolicyEngine) SetWeights(action types.Action, w []float64) error {
	if !types.ValidAction(action) {
		return fmt.Errorf("unknown action %q", action)
	}
	if len(w) != types.ContextVectorLen {
		return fmt.Errorf("weights for %s have length %d, want %d", action, len(w), types.ContextVectorLen)
	}
	cp := make([]float64, len(w))
	copy(cp, w)
	e.weights[action] = cp
	return nil
}

// WeightsFor returns a copy of the (possibly lazily created) weight vector.
func (e *PolicyEngine) WeightsFor(action types.Action) []float64 {
	w := e.ensure(action)
	cp := make([]float64, len(w))
	copy(cp, w)
	return cp
}

func (e *PolicyEngine) ensure(action types.Action) []float64 {
	if w, ok := e.weights[action]; ok {
		return w
	}
	w := make([]float64, types.ContextVectorLen)
	for i := range w {
		w[i] = (e.rng.Float64()*2 - 1) * e.initScale
	}
	e.weights[action] = w
	return w
}

func (e *PolicyEngine) score(action types.Action, ctx types.ContextVector) float64 {
	w := e.ensure(action)
	var s float64
	for i, v := range ctx {
		s += w[i] * v
	}
	return s
}

// ChooseAction runs one epsilon-greedy selection over all actions.
func (e *PolicyEngine) ChooseAction(ctx types.ContextVector) (Decision, error) {
	if !ctx.Valid() {
		return Decision{}, fmt.Errorf("context vector has length %d, want %d", len(ctx), types.ContextVectorLen)
	}

	scores, err := e.AllScores(ctx)
	if err != nil {
		return Decision{}, err
	}
	best, second := scores[0], scores[1]
	margin := best.Score - second.Score
	confidence := clamp01(margin / (1 + margin))

	if e.rng.Float64() < e.epsilon {
		actions := types.AllActions()
		pick := actions[e.rng.Intn(len(actions))]
		return Decision{
			Action:     pick,
			Score:      e.score(pick, ctx),
			Confidence: 0,
			Reasoning:  fmt.Sprintf("exploration (epsilon %.2f)", e.epsilon),
			Explored:   true,
		}, nil
	}

	return Decision{
		Action:     best.Action,
		Score:      best.Score,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("highest score %.4f over %s by %.4f", best.Score, second.Action, margin),
	}, nil
}

// UpdateWeights applies one online gradient step to the chosen action
// only: w[i] += lr * reward * ctx[i]. Other actions are untouched.
func (e *PolicyEngine) UpdateWeights(ctx types.ContextVector, action types.Action, reward float64) error {
	if !ctx.Valid() {
		return fmt.Errorf("context vector has length %d, want %d", len(ctx), types.ContextVectorLen)
	}
	if !types.ValidAction(action) {
		return fmt.Errorf("unknown action %q", action)
	}
	w := e.ensure(action)
	for i, v := range ctx {
		w[i] += e.learningRate * reward * v
	}
	e.updates++
	return nil
}

// BatchUpdate applies examples in order. It stops at the first invalid
// example; earlier updates stay applied.
func (e *PolicyEngine) BatchUpdate(examples []TrainingExample) error {
	for i, ex := range examples {
		if err := e.UpdateWeights(ex.Context, ex.Action, ex.Reward); err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
	}
	return nil
}

// AllScores scores every action, sorted by score descending. Ties keep
// the canonical action order so selection is deterministic.
func (e *PolicyEngine) AllScores(ctx types.ContextVector) ([]ActionScore, error) {
	if !ctx.Valid() {
		return nil, fmt.Errorf("context vector has length %d, want %d", len(ctx), types.ContextVectorLen)
	}
	actions := types.AllActions()
	out := make([]ActionScore, 0, len(actions))
	for _, a := range actions {
		out = append(out, ActionScore{Action: a, Score: e.score(a, ctx)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// TopActions returns the n best actions for a context.
func (e *PolicyEngine) TopActions(ctx types.ContextVector, n int) ([]ActionScore, error) {
	scores, err := e.AllScores(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > len(scores) {
		n = len(scores)
	}
	return scores[:n], nil
}

type policyExport struct {
	VectorVersion int                        `json:"vector_version"`
	Weights       map[types.Action][]float64 `json:"weights"`
}

// Export serializes the current weights together with the vector version.
func (e *PolicyEngine) Export() ([]byte, error) {
	return json.Marshal(policyExport{VectorVersion: types.VectorVersion, Weights: e.weights})
}

// Import replaces the engine's weights with an exported blob. A vector
// version mismatch is rejected outright; reshaping old weights is not
// meaningful for a linear model.
func (e *PolicyEngine) Import(blob []byte) error {
	var in policyExport
	if err := json.Unmarshal(blob, &in); err != nil {
		return fmt.Errorf("decode policy export: %w", err)
	}
	if in.VectorVersion != types.VectorVersion {
		return fmt.Errorf("policy export has vector version %d, want %d", in.VectorVersion, types.VectorVersion)
	}
	next := make(map[types.Action][]float64, len(in.Weights))
	for a, w := range in.Weights {
		if !types.ValidAction(a) {
			return fmt.Errorf("unknown action %q in policy export", a)
		}
		if len(w) != types.ContextVectorLen {
			return fmt.Errorf("weights for %s have length %d, want %d", a, len(w), types.ContextVectorLen)
		}
		next[a] = w
	}
	e.weights = next
	return nil
}

func (e *PolicyEngine) Stats() EngineStats {
	st := EngineStats{
		Actions:      len(e.weights),
		Updates:      e.updates,
		VectorLength: types.ContextVectorLen,
		Exploring:    e.epsilon > 0,
	}
	if len(e.weights) == 0 {
		return st
	}
	st.Norms = make(map[types.Action]float64, len(e.weights))
	var sumAbs float64
	var count int
	first := true
	for a, w := range e.weights {
		st.Norms[a] = e.WeightNorm(a)
		for _, v := range w {
			sumAbs += math.Abs(v)
			count++
			if first || v < st.MinWeight {
				st.MinWeight = v
			}
			if first || v > st.MaxWeight {
				st.MaxWeight = v
			}
			first = false
		}
	}
	st.AvgWeightMagnitude = sumAbs / float64(count)
	return st
}

// WeightNorm reports the L2 norm of one action's weights, mostly for
// stats surfaces and tests.
func (e *PolicyEngine) WeightNorm(action types.Action) float64 {
	w, ok := e.weights[action]
	if !ok {
		return 0
	}
	var sum float64
	for _, v := range w {
		sum += v * v
	}
	return math.Sqrt(sum)
}
