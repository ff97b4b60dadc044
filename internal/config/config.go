package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DataDir               string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InfoCacheTTLSeconds   int
	AuthSecret            string
	AccessTokenTTLMinutes int
	SeedAdminPassword     string
	SeedCashierPassword   string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	infoTTL, err := strconv.Atoi(getEnv("INFO_CACHE_TTL_SECONDS", "30"))
	if err != nil || infoTTL < 1 {
		infoTTL = 30
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DataDir:               getEnv("DATA_DIR", "data"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		InfoCacheTTLSeconds:   infoTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		SeedAdminPassword:     strings.TrimSpace(os.Getenv("SEED_ADMIN_PASSWORD")),
		SeedCashierPassword:   strings.TrimSpace(os.Getenv("SEED_CASHIER_PASSWORD")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
