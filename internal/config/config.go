package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Store backends
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

// Config is the process configuration shared by the API and the worker.
type Config struct {
	Env       string `envconfig:"ENV" default:"development"`
	RunLocal  bool   `envconfig:"RUN_LOCAL"`
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	Backend string `envconfig:"STORE_BACKEND" default:"dynamodb"`

	AWSRegion           string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSEndpointOverride string `envconfig:"AWS_ENDPOINT_OVERRIDE"`

	ItemsTable       string        `envconfig:"ITEMS_TABLE" default:"items"`
	CartsTable       string        `envconfig:"CARTS_TABLE" default:"carts"`
	OrdersTable      string        `envconfig:"ORDERS_TABLE" default:"orders"`
	OrdersOwnerIndex string        `envconfig:"ORDERS_OWNER_INDEX" default:"owner_id-created_unix_nano-index"`
	RolesTable       string        `envconfig:"ROLES_TABLE" default:"roles"`
	IdempotencyTable string        `envconfig:"IDEMPOTENCY_TABLE" default:"idempotency"`
	IdempotencyTTL   time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"48h"`

	QueueURL         string `envconfig:"ORDERS_QUEUE_URL"`
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"Storefront"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// Production reports whether the process runs with ENV=production.
func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads a .env file outside production and then the process environment.
// Values from .env override the environment, matching local development habits.
func Load(envFile string) (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, errors.Wrap(err, "process env")
	}
	if !cfg.Production() && envFile != "" {
		// a missing .env is fine; the environment is used as is
		if err := godotenv.Overload(envFile); err == nil {
			if err := envconfig.Process("", &cfg); err != nil {
				return cfg, errors.Wrap(err, "process env after .env")
			}
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field requirements envconfig cannot express.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendDynamoDB:
		if c.ItemsTable == "" || c.CartsTable == "" || c.OrdersTable == "" {
			return errors.New("dynamodb backend requires ITEMS_TABLE, CARTS_TABLE and ORDERS_TABLE")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("postgres backend requires DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown STORE_BACKEND %q", c.Backend)
	}
	if c.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be positive")
	}
	return nil
}
