package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	repos "github.com/yungbote/habitloop-backend/internal/data/repos/coach"
	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/platform/dbctx"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

// InterventionCache is the best-effort fast path in front of the dedup
// window query. Implementations must treat every error as a miss.
type InterventionCache interface {
	GetActive(ctx context.Context, userID uuid.UUID, interventionType string) (*types.Intervention, error)
	SetActive(ctx context.Context, iv *types.Intervention, ttl time.Duration) error
}

// signalPriority orders competing signals; at most one intervention is
// created per pass.
var signalPriority = []string{
	types.SignalRelapseRisk,
	types.SignalOverload,
	types.SignalFatigue,
	types.SignalDisengagement,
	types.SignalMomentum,
}

var signalIntervention = map[string]string{
	types.SignalRelapseRisk:   types.InterventionTypeRecovery,
	types.SignalOverload:      types.InterventionTypeTriage,
	types.SignalFatigue:       types.InterventionTypeEaseUp,
	types.SignalDisengagement: types.InterventionTypeReconnect,
	types.SignalMomentum:      types.InterventionTypeLevelUp,
}

// Arbiter turns a detection pass into at most one deduplicated
// intervention. Signal audit rows are written best-effort; an audit
// failure never blocks the intervention itself.
type Arbiter struct {
	cfg           Config
	signals       repos.SignalRepo
	interventions repos.InterventionRepo
	cache         InterventionCache
	log           *logger.Logger
}

func NewArbiter(cfg Config, signals repos.SignalRepo, interventions repos.InterventionRepo, cache InterventionCache, baseLog *logger.Logger) *Arbiter {
	return &Arbiter{
		cfg:           cfg,
		signals:       signals,
		interventions: interventions,
		cache:         cache,
		log:           baseLog.With("component", "Arbiter"),
	}
}

type ArbitrateInput struct {
	UserID  uuid.UUID
	Signals []types.Signal
	Bctx    types.BehaviorContext
	Now     time.Time
}

type ArbitrateOutput struct {
	// Primary is the winning signal, nil when nothing fired.
	Primary *types.Signal
	// Intervention is the active intervention for the primary signal,
	// freshly created or the survivor of the dedup window.
	Intervention *types.Intervention
	Created      bool
}

func (a *Arbiter) Arbitrate(dbc dbctx.Context, in ArbitrateInput) (ArbitrateOutput, error) {
	a.audit(dbc, in)

	primary := pickPrimary(in.Signals)
	if primary == nil {
		return ArbitrateOutput{}, nil
	}
	out := ArbitrateOutput{Primary: primary}
	interventionType := signalIntervention[primary.Type]

	if a.cache != nil {
		if cached, err := a.cache.GetActive(dbc.Ctx, in.UserID, interventionType); err == nil && cached != nil {
			if in.Now.Sub(cached.CreatedAt) < a.cfg.DedupWindow {
				out.Intervention = cached
				return out, nil
			}
		}
	}

	since := in.Now.Add(-a.cfg.DedupWindow)
	active, err := a.interventions.ActiveByType(dbc, in.UserID, interventionType, since)
	if err != nil {
		return out, err
	}
	if active != nil {
		out.Intervention = active
		a.cacheSet(dbc.Ctx, active, in.Now)
		return out, nil
	}

	row := &types.Intervention{
		UserID:           in.UserID,
		InterventionType: interventionType,
		Message:          interventionMessage(primary, in.Bctx),
		Status:           types.InterventionStatusPending,
		DedupKey:         types.DedupKeyFor(in.UserID, interventionType, in.Now),
		CreatedAt:        in.Now.UTC(),
		UpdatedAt:        in.Now.UTC(),
	}
	created, wasNew, err := a.interventions.CreateDedup(dbc, row)
	if err != nil {
		return out, err
	}
	out.Intervention = created
	out.Created = wasNew
	a.cacheSet(dbc.Ctx, created, in.Now)
	return out, nil
}

func (a *Arbiter) audit(dbc dbctx.Context, in ArbitrateInput) {
	if len(in.Signals) == 0 {
		return
	}
	rows := make([]types.SignalRecord, 0, len(in.Signals))
	for _, s := range in.Signals {
		meta, err := json.Marshal(s.Metadata)
		if err != nil {
			meta = nil
		}
		rows = append(rows, types.SignalRecord{
			UserID:     in.UserID,
			SignalType: s.Type,
			Score:      s.Score,
			Metadata:   datatypes.JSON(meta),
			DetectedAt: in.Now.UTC(),
		})
	}
	if err := a.signals.CreateBatch(dbc, rows); err != nil {
		a.log.Warn("signal audit write failed", "user_id", in.UserID.String(), "error", err)
	}
}

func (a *Arbiter) cacheSet(ctx context.Context, iv *types.Intervention, now time.Time) {
	if a.cache == nil || iv == nil {
		return
	}
	ttl := a.cfg.DedupWindow - now.Sub(iv.CreatedAt)
	if ttl <= 0 {
		return
	}
	if err := a.cache.SetActive(ctx, iv, ttl); err != nil {
		a.log.Debug("intervention cache set failed", "error", err)
	}
}

func pickPrimary(signals []types.Signal) *types.Signal {
	for _, typ := range signalPriority {
		for i := range signals {
			if signals[i].Type == typ {
				return &signals[i]
			}
		}
	}
	return nil
}

func interventionMessage(primary *types.Signal, bctx types.BehaviorContext) string {
	switch primary.Type {
	case types.SignalRelapseRisk:
		return "Your recent pattern looks shaky. Let's rebuild with a small recovery plan: pick one habit to restart today."
	case types.SignalOverload:
		return fmt.Sprintf("You have %d overdue tasks. Let's triage: pick the three that matter and reschedule the rest.", bctx.OverdueCount)
	case types.SignalFatigue:
		return "You seem stretched thin. Consider easing up: pause one habit this week and protect the ones that matter."
	case types.SignalDisengagement:
		return fmt.Sprintf("It's been %d days since your last activity. One small step today gets you moving again.", bctx.DaysInactive)
	case types.SignalMomentum:
		return fmt.Sprintf("You're on a roll with %d completions this week. Ready to level up one of your goals?", bctx.RecentCompletions)
	default:
		return "Here's a small step you can take right now."
	}
}
