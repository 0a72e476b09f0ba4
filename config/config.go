package config

import (
	"os"
	"strconv"
	"time"
)

var (
	LISTEN_ADDR = getEnv("LISTEN_ADDR", ":80")

	DATA_DB_DSN = getEnv("DATA_DB_DSN", "root@tcp(127.0.0.1:3306)/giftshift?parseTime=true")

	CACHE_ADDR     = getEnv("CACHE_ADDR", "127.0.0.1:6379")
	CACHE_PASSWORD = getEnv("CACHE_PASSWORD", "")

	EXCHANGE_BASE_URL     = getEnv("EXCHANGE_BASE_URL", "https://sideshift.ai/api/v2")
	EXCHANGE_FALLBACK_URL = getEnv("EXCHANGE_FALLBACK_URL", "")
	EXCHANGE_SECRET       = getEnv("EXCHANGE_SECRET", "")
	EXCHANGE_AFFILIATE_ID = getEnv("EXCHANGE_AFFILIATE_ID", "")
	EXCHANGE_TIMEOUT      = getDuration("EXCHANGE_TIMEOUT", 15*time.Second)

	SHIFT_REFRESH_INTERVAL = getDuration("SHIFT_REFRESH_INTERVAL", 30*time.Second)
	SHIFT_REFRESH_DEADLINE = getDuration("SHIFT_REFRESH_DEADLINE", 2*time.Hour)

	WEBHOOK_CALLBACK_URL = getEnv("WEBHOOK_CALLBACK_URL", "")
	WEBHOOK_KEY          = getEnv("WEBHOOK_KEY", "")
)

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
