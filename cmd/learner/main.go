package main

import (
	"context"
	"fmt"
	"os"
	"time"

	coachrepos "github.com/yungbote/habitloop-backend/internal/data/repos/coach"
	"github.com/yungbote/habitloop-backend/internal/db"
	coach "github.com/yungbote/habitloop-backend/internal/modules/coach"
	"github.com/yungbote/habitloop-backend/internal/platform/envutil"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

// The learner runs one delayed-learning pass over settled experiences and
// exits. Schedule it with cron or a job runner.
func main() {
	log, err := logger.New(envutil.String("LOG_MODE", "dev"))
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Error("learner failed", "error", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	dbService, err := db.New(log)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	gdb := dbService.DB()

	cfg := coach.DefaultConfig()
	if path := envutil.String("COACH_CONFIG_PATH", ""); path != "" {
		cfg, err = coach.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("load coach config: %w", err)
		}
	}

	loop := coach.NewLearningLoop(coach.LearningLoopDeps{
		DB:          gdb,
		Cfg:         cfg,
		Consent:     coachrepos.NewConsentRepo(gdb, log),
		Decisions:   coachrepos.NewDecisionRepo(gdb, log),
		Feedback:    coachrepos.NewFeedbackRepo(gdb, log),
		Experiences: coachrepos.NewExperienceRepo(gdb, log),
		Weights:     coachrepos.NewPolicyWeightRepo(gdb, log),
		Metrics:     coach.NewMetricsAggregator(coachrepos.NewSourceReader(gdb, log), log),
		Log:         log,
	})

	ctx, cancel := context.WithTimeout(context.Background(), envutil.Duration("LEARNER_TIMEOUT", 10*time.Minute))
	defer cancel()

	res, err := loop.ProcessPending(ctx)
	if err != nil {
		return err
	}
	log.Info("delayed learning pass complete",
		"scanned", res.Scanned,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return nil
}
