package main

import (
	"os"

	"github.com/yungbote/habitloop-backend/internal/app"
	"github.com/yungbote/habitloop-backend/internal/platform/envutil"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

func main() {
	log, err := logger.New(envutil.String("LOG_MODE", "dev"))
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	a, err := app.New(log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	log.Info("Starting server...", "port", a.Cfg.Port)
	if err := a.Server.Run(":" + a.Cfg.Port); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
