package config

import "time"

type App struct {
	Port        string `env:"APP_PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Env         string `env:"APP_ENV" default:"dev"`

	StripeAPIKey      string `env:"STRIPE_API_KEY,required"`
	PaymentSuccessURL string `env:"PAYMENT_SUCCESS_URL"`
	PaymentCancelURL  string `env:"PAYMENT_CANCEL_URL"`

	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID string `env:"TELEGRAM_CHAT_ID"`

	// SessionTTL is the grace window a checkout session stays payable.
	SessionTTL   time.Duration `env:"PAYMENT_SESSION_TTL" default:"16h"`
	ScanInterval time.Duration `env:"SCAN_INTERVAL" default:"1h"`
}
