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
	Port          int    `envconfig:"PORT" default:"8080"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	DebugPayloads bool   `envconfig:"DEBUG_PAYLOADS" default:"false"`

	// Database
	DBDriver string `envconfig:"DB_DRIVER" default:"postgres"`
	DBDSN    string `envconfig:"DB_DSN" default:"host=localhost user=postgres dbname=storefront sslmode=disable"`

	// Carrier defaults
	CarrierTokenTTL    time.Duration `envconfig:"CARRIER_TOKEN_TTL" default:"30m"`
	CarrierTimeout     time.Duration `envconfig:"CARRIER_TIMEOUT" default:"30s"`
	CarrierRateLimit   float64       `envconfig:"CARRIER_RATE_LIMIT" default:"5"`
	CarrierRateBurst   int           `envconfig:"CARRIER_RATE_BURST" default:"5"`
	CarrierRetries     int           `envconfig:"CARRIER_RETRY_ATTEMPTS" default:"3"`
	CarrierRetryMinGap time.Duration `envconfig:"CARRIER_RETRY_INITIAL_INTERVAL" default:"200ms"`
	CarrierRetryMaxGap time.Duration `envconfig:"CARRIER_RETRY_MAX_INTERVAL" default:"2s"`

	// Pakistan Post
	PakPostBaseURL      string `envconfig:"PAKPOST_BASE_URL" default:"https://ep.gov.pk/api"`
	PakPostClientID     string `envconfig:"PAKPOST_CLIENT_ID"`
	PakPostClientSecret string `envconfig:"PAKPOST_CLIENT_SECRET"`
	PakPostEnabled      bool   `envconfig:"PAKPOST_ENABLED" default:"true"`
	PakPostUseMock      bool   `envconfig:"PAKPOST_USE_MOCK" default:"false"`

	// TCS
	TCSBaseURL     string `envconfig:"TCS_BASE_URL" default:"https://connect.tcscourier.com"`
	TCSFeePath     string `envconfig:"TCS_FEE_PATH" default:"/ecom/api/booking/simulate"`
	TCSUsername    string `envconfig:"TCS_USERNAME"`
	TCSPassword    string `envconfig:"TCS_PASSWORD"`
	TCSAccountNo   string `envconfig:"TCS_ACCOUNT_NO"`
	TCSBearerToken string `envconfig:"TCS_BEARER_TOKEN"`
	TCSEnabled     bool   `envconfig:"TCS_ENABLED" default:"true"`
	TCSUseMock     bool   `envconfig:"TCS_USE_MOCK" default:"false"`

	// Sender identity printed on TCS bookings
	SenderName     string `envconfig:"SENDER_NAME" default:"Raasid Store"`
	SenderAddress  string `envconfig:"SENDER_ADDRESS" default:"Main GT Road"`
	SenderCity     string `envconfig:"SENDER_CITY" default:"NOWSHERA"`
	SenderProvince string `envconfig:"SENDER_PROVINCE" default:"KPK"`
	SenderZip      string `envconfig:"SENDER_ZIP" default:"24110"`
	SenderMobile   string `envconfig:"SENDER_MOBILE" default:"03000000000"`

	// Notifications
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"orders@raasid.pk"`
	AdminEmail   string `envconfig:"ADMIN_EMAIL"`
	StoreName    string `envconfig:"STORE_NAME" default:"Raasid Store"`
	LoginURL     string `envconfig:"LOGIN_URL" default:"https://raasid.pk/login"`
	NATSURL      string `envconfig:"NATS_URL"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"storefront-fulfillment"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("loading config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.TCSEnabled && !c.TCSUseMock && c.TCSBearerToken == "" {
		return fmt.Errorf("loading config: TCS_BEARER_TOKEN is required when TCS is enabled")
	}
	if c.PakPostEnabled && !c.PakPostUseMock && (c.PakPostClientID == "" || c.PakPostClientSecret == "") {
		return fmt.Errorf("loading config: PAKPOST_CLIENT_ID and PAKPOST_CLIENT_SECRET are required when Pakistan Post is enabled")
	}
	return nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("db.system", c.DBDriver),
		attribute.Bool("pakpost.enabled", c.PakPostEnabled),
		attribute.Bool("tcs.enabled", c.TCSEnabled),
	}
}
