package config

import (
	"log/slog"
	"os"
	"time"
)

func Load() App {
	cfg := App{
		Port:        getenv("APP_PORT", "8080"),
		DatabaseURL: must("DATABASE_URL"),
		JWTSecret:   getenv("JWT_SECRET", "local_dev_secret"),
		Env:         getenv("APP_ENV", "dev"),

		StripeAPIKey:      must("STRIPE_API_KEY"),
		PaymentSuccessURL: getenv("PAYMENT_SUCCESS_URL", "http://localhost:8080/v1/payments/success"),
		PaymentCancelURL:  getenv("PAYMENT_CANCEL_URL", "http://localhost:8080/v1/payments/cancel"),

		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),

		SessionTTL:   getduration("PAYMENT_SESSION_TTL", 16*time.Hour),
		ScanInterval: getduration("SCAN_INTERVAL", time.Hour),
	}
	return cfg
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("bad duration env, using default", "key", k, "value", v)
		return def
	}
	return d
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		slog.Error("required env missing", "key", k)
		panic("missing env " + k)
	}
	return v
}
