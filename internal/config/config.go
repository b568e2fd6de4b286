package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	TenantID              string
	AuthSecret            string
	AccessTokenTTLMinutes int
	LogLevel              string
	MaxEventsPerQuery     int
	ReportTimezone        string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	maxEvents, err := strconv.Atoi(getEnv("MAX_EVENTS_PER_QUERY", "50000"))
	if err != nil || maxEvents < 1 {
		maxEvents = 50000
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		TenantID:              getEnv("DEFAULT_TENANT_ID", "main-canteen"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		MaxEventsPerQuery:     maxEvents,
		ReportTimezone:        getEnv("REPORT_TIMEZONE", "Local"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves REPORT_TIMEZONE. Period boundaries are computed in this
// zone; an unknown name is an error rather than a silent UTC fallback.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.ReportTimezone)
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("REPORT_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
