package receipt

import "time"

// Config holds the Apple receipt authority settings.
type Config struct {
	ProductionURL  string        `env:"APPLE_VERIFY_URL" envDefault:"https://buy.itunes.apple.com/verifyReceipt"`
	SandboxURL     string        `env:"APPLE_SANDBOX_VERIFY_URL" envDefault:"https://sandbox.itunes.apple.com/verifyReceipt"`
	SharedSecret   string        `env:"APPLE_SHARED_SECRET"`
	RequestTimeout time.Duration `env:"APPLE_REQUEST_TIMEOUT" envDefault:"15s"`

	// Retry policy for the RetryingValidator wrapper.
	MaxAttempts    int           `env:"APPLE_VERIFY_MAX_ATTEMPTS" envDefault:"4"`
	InitialBackoff time.Duration `env:"APPLE_VERIFY_INITIAL_BACKOFF" envDefault:"1s"`
	MaxBackoff     time.Duration `env:"APPLE_VERIFY_MAX_BACKOFF" envDefault:"30s"`
}
