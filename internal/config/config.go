package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:storefront.db"`
	JWTSecret   string `env:"JWT_SECRET" envDefault:"dev-secret"`

	Storefront Storefront `envPrefix:"STOREFRONT_"`
	Checkout   Checkout   `envPrefix:"CHECKOUT_"`
	Payments   Payments   `envPrefix:"PAYMENTS_"`
	Redis      Redis      `envPrefix:"REDIS_"`

	Paypal    Paypal    `envPrefix:"PAYPAL_"`
	BrainTree Braintree `envPrefix:"BRAINTREE_"`
}

// Storefront configures the checkout client side: where the backend lives and where
// durable client state is kept.
type Storefront struct {
	BackendURL     string        `env:"BACKEND_URL" envDefault:"http://localhost:8080/api"`
	StoragePath    string        `env:"STORAGE_PATH" envDefault:"file:checkout-client.db"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	ReturnURL      string        `env:"RETURN_URL" envDefault:"http://localhost:3000/checkout/return"`
}

type Checkout struct {
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
	PollTimeout     time.Duration `env:"POLL_TIMEOUT" envDefault:"15s"`
	DomesticCountry string        `env:"DOMESTIC_COUNTRY" envDefault:"ID"`
}

// Payments holds the deployment flags that decide which redirect providers the backend
// advertises. Cash on delivery is always on.
type Payments struct {
	PayPalEnabled    bool `env:"PAYPAL_ENABLED" envDefault:"true"`
	BraintreeEnabled bool `env:"BRAINTREE_ENABLED" envDefault:"true"`
}

type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type Paypal struct {
	BaseApiURL   string `env:"BASE_API_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

type Braintree struct {
	Environment string `env:"ENVIRONMENT"`
	MerchantID  string `env:"MERCHANT_ID"`
	PublicKey   string `env:"PUBLIC_KEY"`
	PrivateKey  string `env:"PRIVATE_KEY"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

// Configured reports whether real PayPal credentials are present.
func (p Paypal) Configured() bool {
	return p.BaseApiURL != "" && p.ClientID != "" && p.ClientSecret != ""
}

func (b Braintree) Configured() bool {
	return b.MerchantID != "" && b.PublicKey != "" && b.PrivateKey != ""
}

// Load reads an optional .env file into the process environment and parses it into a Config.
func Load() (*Config, error) {
	// missing .env is fine outside development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
