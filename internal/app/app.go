package app

import (
	"fmt"

	redisclient "github.com/yungbote/habitloop-backend/internal/clients/redis"
	coachrepos "github.com/yungbote/habitloop-backend/internal/data/repos/coach"
	"github.com/yungbote/habitloop-backend/internal/db"
	httpx "github.com/yungbote/habitloop-backend/internal/http"
	"github.com/yungbote/habitloop-backend/internal/http/handlers"
	"github.com/yungbote/habitloop-backend/internal/http/middleware"
	coach "github.com/yungbote/habitloop-backend/internal/modules/coach"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

// App holds the wired application graph. Both entrypoints build one and
// pick the pieces they need.
type App struct {
	Cfg      Config
	Log      *logger.Logger
	DB       *db.Service
	Cache    *redisclient.InterventionCache
	Usecases *coach.Usecases
	Server   *httpx.Server
}

func New(log *logger.Logger) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	dbService, err := db.New(log)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	gdb := dbService.DB()

	coachCfg := coach.DefaultConfig()
	if cfg.CoachConfigPath != "" {
		coachCfg, err = coach.LoadConfig(cfg.CoachConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load coach config: %w", err)
		}
	}

	// The cache is optional: without redis the dedup check falls back to
	// the unique index on interventions.
	var cache *redisclient.InterventionCache
	if cfg.RedisEnabled {
		cache, err = redisclient.NewInterventionCache(log)
		if err != nil {
			log.Warn("redis unavailable, running without intervention cache", "error", err)
			cache = nil
		}
	}
	var ivCache coach.InterventionCache
	if cache != nil {
		ivCache = cache
	}

	uc := coach.NewUsecases(coach.UsecasesDeps{
		DB:            gdb,
		Cfg:           coachCfg,
		Log:           log,
		Sources:       coachrepos.NewSourceReader(gdb, log),
		Consent:       coachrepos.NewConsentRepo(gdb, log),
		Decisions:     coachrepos.NewDecisionRepo(gdb, log),
		Feedback:      coachrepos.NewFeedbackRepo(gdb, log),
		Experiences:   coachrepos.NewExperienceRepo(gdb, log),
		Weights:       coachrepos.NewPolicyWeightRepo(gdb, log),
		Signals:       coachrepos.NewSignalRepo(gdb, log),
		Interventions: coachrepos.NewInterventionRepo(gdb, log),
		Cache:         ivCache,
	})

	server := httpx.NewServer(httpx.RouterConfig{
		Log:            log,
		AuthMiddleware: middleware.NewAuthMiddleware(log, cfg.JWTSecret),
		CoachHandler:   handlers.NewCoachHandler(log, uc),
		HealthHandler:  handlers.NewHealthHandler(),
	})

	return &App{
		Cfg:      cfg,
		Log:      log,
		DB:       dbService,
		Cache:    cache,
		Usecases: uc,
		Server:   server,
	}, nil
}

func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Log.Warn("closing redis", "error", err)
		}
	}
}
