package app

import (
	"fmt"

	"github.com/yungbote/habitloop-backend/internal/platform/envutil"
)

type Config struct {
	Port            string
	LogMode         string
	JWTSecret       string
	CoachConfigPath string
	RedisEnabled    bool
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Port:            envutil.String("PORT", "8080"),
		LogMode:         envutil.String("LOG_MODE", "dev"),
		JWTSecret:       envutil.String("JWT_SECRET_KEY", ""),
		CoachConfigPath: envutil.String("COACH_CONFIG_PATH", ""),
		RedisEnabled:    envutil.String("REDIS_ADDR", "") != "",
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("missing JWT_SECRET_KEY")
	}
	return cfg, nil
}
