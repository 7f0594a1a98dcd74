package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port      int      `envconfig:"PORT" default:"80"`
	LogLevel  string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string   `envconfig:"LOG_FORMAT" default:"json"`
	LogOutput []string `envconfig:"LOG_OUTPUT" default:"stdout"`

	// Storage
	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"postgres"`
	DatabaseDSN    string `envconfig:"DATABASE_DSN" default:"host=localhost user=shipping dbname=shipping sslmode=disable"`

	// Webhook dedupe. When RedisAddr is empty receipts are kept in the database.
	RedisAddr        string        `envconfig:"REDIS_ADDR"`
	RedisPassword    string        `envconfig:"REDIS_PASSWORD"`
	RedisDB          int           `envconfig:"REDIS_DB" default:"0"`
	WebhookDedupeTTL time.Duration `envconfig:"WEBHOOK_DEDUPE_TTL" default:"24h"`

	// Status events. When KafkaBrokers is empty events are only logged.
	KafkaBrokers     []string `envconfig:"KAFKA_BROKERS"`
	KafkaStatusTopic string   `envconfig:"KAFKA_STATUS_TOPIC" default:"shipping.shipment-status"`

	// Shippo
	ShippoAPIKey   string `envconfig:"SHIPPO_API_KEY"`
	ShippoBaseURL  string `envconfig:"SHIPPO_BASE_URL" default:"https://api.goshippo.com"`
	ShippoEnabled  bool   `envconfig:"SHIPPO_ENABLED" default:"true"`
	ShippoUseMock  bool   `envconfig:"SHIPPO_USE_MOCK" default:"false"`
	ShippoTestMode bool   `envconfig:"SHIPPO_TEST_MODE" default:"false"`

	// Mondial Relay
	MondialRelayEnseigne   string `envconfig:"MONDIALRELAY_ENSEIGNE"`
	MondialRelayPrivateKey string `envconfig:"MONDIALRELAY_PRIVATE_KEY"`
	MondialRelayBrand      string `envconfig:"MONDIALRELAY_BRAND"`
	MondialRelayEndpoint   string `envconfig:"MONDIALRELAY_ENDPOINT" default:"https://api.mondialrelay.com/Web_Services.asmx"`
	MondialRelayEnabled    bool   `envconfig:"MONDIALRELAY_ENABLED" default:"true"`
	MondialRelayUseMock    bool   `envconfig:"MONDIALRELAY_USE_MOCK" default:"false"`

	// Shipping policy
	HomeCountry        string        `envconfig:"HOME_COUNTRY" default:"FR"`
	SupportedCountries []string      `envconfig:"SUPPORTED_COUNTRIES" default:"FR,BE,CH,LU"`
	QuoteTimeout       time.Duration `envconfig:"QUOTE_TIMEOUT" default:"10s"`
	PurchaseTimeout    time.Duration `envconfig:"PURCHASE_TIMEOUT" default:"20s"`
	TrackTimeout       time.Duration `envconfig:"TRACK_TIMEOUT" default:"10s"`
	CatalogPath        string        `envconfig:"CATALOG_PATH"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"tournevent-shipping"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("database.driver", c.DatabaseDriver),
		attribute.Bool("shippo.enabled", c.ShippoEnabled),
		attribute.Bool("shippo.test_mode", c.ShippoTestMode),
		attribute.Bool("mondialrelay.enabled", c.MondialRelayEnabled),
	}
}
