package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Bolt      BoltConfig      `mapstructure:"bolt"`
	Quiz      QuizConfig      `mapstructure:"quiz"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Products  ProductsConfig  `mapstructure:"products"`
	Checkout  CheckoutConfig  `mapstructure:"checkout"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	// Mode is gin's mode: debug, release or test.
	Mode string `mapstructure:"mode"`
	// PublicBaseURL is the externally visible origin, e.g. https://quiz.example.com.
	PublicBaseURL string `mapstructure:"public_base_url"`
	// DeploymentEnv is the explicit deployment signal (production, preview, development...).
	DeploymentEnv string `mapstructure:"deployment_env"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      string `mapstructure:"ttl"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type BoltConfig struct {
	Path string `mapstructure:"path"`
}

type QuizConfig struct {
	TTL       string `mapstructure:"ttl"`
	File      string `mapstructure:"file"`
	DefaultID string `mapstructure:"default_id"`
}

type StripeConfig struct {
	SecretKey         string `mapstructure:"secret_key"`
	TestSecretKey     string `mapstructure:"test_secret_key"`
	WebhookSecret     string `mapstructure:"webhook_secret"`
	Timeout           string `mapstructure:"timeout"`
	APIURL            string `mapstructure:"api_url"`
	MaxNetworkRetries int64  `mapstructure:"max_network_retries"`
}

type ProductsConfig struct {
	Test       string `mapstructure:"test"`
	Production string `mapstructure:"production"`
}

type CheckoutConfig struct {
	UnitAmount         int64  `mapstructure:"unit_amount"`
	Currency           string `mapstructure:"currency"`
	Locale             string `mapstructure:"locale"`
	SuccessPath        string `mapstructure:"success_path"`
	CancelPath         string `mapstructure:"cancel_path"`
	SessionTTL         string `mapstructure:"session_ttl"`
	AllowUnpaidPreview bool   `mapstructure:"allow_unpaid_preview"`
}

type AnalyticsConfig struct {
	Token string `mapstructure:"token"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
	ServiceName       string `mapstructure:"service_name"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// envBindings maps config keys to the environment variables deployments set.
var envBindings = map[string]string{
	"server.port":                   "PORT",
	"server.mode":                   "GIN_MODE",
	"server.public_base_url":        "PUBLIC_BASE_URL",
	"server.deployment_env":         "APP_ENV",
	"log.level":                     "LOG_LEVEL",
	"redis.addr":                    "REDIS_ADDR",
	"redis.password":                "REDIS_PASSWORD",
	"postgres.url":                  "POSTGRES_URL",
	"bolt.path":                     "BOLT_PATH",
	"quiz.file":                     "QUIZ_FILE",
	"stripe.secret_key":             "STRIPE_SECRET_KEY",
	"stripe.test_secret_key":        "STRIPE_TEST_SECRET_KEY",
	"stripe.webhook_secret":         "STRIPE_WEBHOOK_SECRET",
	"stripe.api_url":                "STRIPE_API_URL",
	"checkout.allow_unpaid_preview": "ALLOW_UNPAID_PREVIEW",
	"analytics.token":               "ANALYTICS_TOKEN",
	"tracing.enabled":               "TRACING_ENABLED",
	"tracing.collector_endpoint":    "TRACING_COLLECTOR_ENDPOINT",
}

// Load reads the optional YAML file at path and overlays environment variables.
// A missing file is not an error: every setting can come from the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("quiz.ttl", "10m")
	v.SetDefault("quiz.default_id", "relationship")
	v.SetDefault("stripe.timeout", "8s")
	v.SetDefault("stripe.max_network_retries", 1)
	v.SetDefault("products.test", "prod_SnibIHbIfakhda")
	v.SetDefault("products.production", "prod_Sn4hQJD9yvuW8H")
	v.SetDefault("checkout.unit_amount", 400)
	v.SetDefault("checkout.currency", "brl")
	v.SetDefault("checkout.locale", "pt-BR")
	v.SetDefault("checkout.success_path", "/resultado-completo")
	v.SetDefault("checkout.cancel_path", "/pagamento-cancelado")
	v.SetDefault("checkout.session_ttl", "24h")
	v.SetDefault("tracing.service_name", "quiz-checkout-service")
	v.SetDefault("rate_limit.max_requests", 20)
	v.SetDefault("rate_limit.window_minutes", 1)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
