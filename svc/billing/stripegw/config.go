package stripegw

import "time"

type Config struct {
	SecretKey         string        `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret     string        `env:"STRIPE_WEBHOOK_SECRET,required"`
	Timeout           time.Duration `env:"STRIPE_TIMEOUT" envDefault:"30s"`
	MaxNetworkRetries int64         `env:"STRIPE_MAX_NETWORK_RETRIES" envDefault:"2"`
}
