package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"

	"github.com/xavierca1/leadflow/internal/infra/database"
)

type Config struct {
	Env       string
	HTTP      HTTPConfig
	Log       LogConfig
	Store     StoreConfig
	Monday    MondayConfig
	Meta      MetaConfig
	Lifecycle LifecycleConfig
	Scheduler SchedulerConfig
	RabbitMQ  RabbitMQConfig
	Mail      MailConfig
}

type HTTPConfig struct {
	Addr        string
	CORSOrigins []string
	AdminSecret string
}

type LogConfig struct {
	Level  string
	Format string // json or console
}

type StoreConfig struct {
	Driver      string // postgres or sqlite
	DatabaseURL string
}

type MondayConfig struct {
	APIKey         string
	APIURL         string
	BoardID        string
	PhoneColumnID  string
	StatusColumnID string
	Timeout        time.Duration
}

type MetaConfig struct {
	APIToken      string
	PhoneID       string
	APIURL        string
	VerifyToken   string
	RatePerSecond float64
	Timeout       time.Duration
}

type LifecycleConfig struct {
	InitialDelay     time.Duration
	FollowupDelay    time.Duration
	WelcomeTemplate  string
	FollowupTemplate string
	TemplateLanguage string
	PhoneRegion      string
	ClaimTTL         time.Duration
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
}

type SchedulerConfig struct {
	Interval        time.Duration
	BatchLimit      int
	WindowStartHour int
	WindowEndHour   int
	Timezone        string
}

type RabbitMQConfig struct {
	URL string
}

func (c RabbitMQConfig) Enabled() bool { return c.URL != "" }

type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	AlertTo  string
}

func (c MailConfig) Enabled() bool { return c.Host != "" && c.AlertTo != "" }

// Load reads the environment (and an optional .env file) into a Config and
// checks the settings every command depends on.
func Load() (*Config, error) {
	_ = godotenv.Load()

	gatewayTimeout := mustDuration(getEnv("GATEWAY_TIMEOUT", "15s"))

	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Addr:        getEnv("HTTP_ADDR", ":8080"),
			CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "*")),
			AdminSecret: getEnv("ADMIN_SECRET", ""),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(getEnv("STORE_DRIVER", database.DriverSQLite)),
			DatabaseURL: getEnv("DATABASE_URL", "file:./data/leads.db"),
		},
		Monday: MondayConfig{
			APIKey:         getEnv("MONDAY_API_KEY", ""),
			APIURL:         getEnv("MONDAY_API_URL", "https://api.monday.com/v2"),
			BoardID:        getEnv("MONDAY_BOARD_ID", ""),
			PhoneColumnID:  getEnv("MONDAY_PHONE_COLUMN_ID", "phone"),
			StatusColumnID: getEnv("MONDAY_STATUS_COLUMN_ID", "status"),
			Timeout:        gatewayTimeout,
		},
		Meta: MetaConfig{
			APIToken:      getEnv("META_API_TOKEN", ""),
			PhoneID:       getEnv("META_PHONE_ID", ""),
			APIURL:        getEnv("META_API_URL", "https://graph.facebook.com/v18.0"),
			VerifyToken:   getEnv("META_VERIFY_TOKEN", ""),
			RatePerSecond: mustFloat(getEnv("META_RATE_PER_SEC", "20")),
			Timeout:       gatewayTimeout,
		},
		Lifecycle: LifecycleConfig{
			InitialDelay:     mustDuration(getEnv("INITIAL_MESSAGE_DELAY", "0s")),
			FollowupDelay:    mustDuration(getEnv("FOLLOWUP_DELAY", "24h")),
			WelcomeTemplate:  getEnv("WHATSAPP_WELCOME_TEMPLATE", "welcome_message"),
			FollowupTemplate: getEnv("WHATSAPP_FOLLOWUP_TEMPLATE", "followup_message"),
			TemplateLanguage: getEnv("WHATSAPP_TEMPLATE_LANGUAGE", "he"),
			PhoneRegion:      strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "IL")),
			ClaimTTL:         mustDuration(getEnv("SEND_CLAIM_TTL", "5m")),
			RetryBackoff:     mustDuration(getEnv("RETRY_BACKOFF", "10m")),
			RetryBackoffMax:  mustDuration(getEnv("RETRY_BACKOFF_MAX", "6h")),
		},
		Scheduler: SchedulerConfig{
			Interval:        mustDuration(getEnv("SCHEDULER_INTERVAL", "10m")),
			BatchLimit:      mustInt(getEnv("SCHEDULER_BATCH_LIMIT", "100")),
			WindowStartHour: mustInt(getEnv("SEND_WINDOW_START_HOUR", "8")),
			WindowEndHour:   mustInt(getEnv("SEND_WINDOW_END_HOUR", "21")),
			Timezone:        getEnv("BUSINESS_TIMEZONE", "Asia/Jerusalem"),
		},
		RabbitMQ: RabbitMQConfig{
			URL: getEnv("RABBITMQ_URL", ""),
		},
		Mail: MailConfig{
			Host:     getEnv("MAIL_HOST", ""),
			Port:     mustInt(getEnv("MAIL_PORT", "587")),
			User:     getEnv("MAIL_USER", ""),
			Password: getEnv("MAIL_PASS", ""),
			From:     getEnv("MAIL_FROM", ""),
			AlertTo:  getEnv("SALES_ALERT_EMAIL", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		return eris.Errorf("config: STORE_DRIVER must be %q or %q, got %q", database.DriverPostgres, database.DriverSQLite, c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: DATABASE_URL is required")
	}

	s := c.Scheduler
	if s.WindowStartHour < 0 || s.WindowStartHour > 23 || s.WindowEndHour < 0 || s.WindowEndHour > 24 {
		return eris.Errorf("config: send window hours out of range: [%d,%d)", s.WindowStartHour, s.WindowEndHour)
	}
	if s.WindowStartHour == s.WindowEndHour {
		return eris.Errorf("config: send window is empty: [%d,%d)", s.WindowStartHour, s.WindowEndHour)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return eris.Wrapf(err, "config: invalid BUSINESS_TIMEZONE %q", s.Timezone)
	}
	if s.Interval <= 0 {
		return eris.New("config: SCHEDULER_INTERVAL must be a positive duration")
	}
	if s.BatchLimit <= 0 {
		return eris.New("config: SCHEDULER_BATCH_LIMIT must be positive")
	}

	if c.Lifecycle.InitialDelay < 0 {
		return eris.New("config: INITIAL_MESSAGE_DELAY must not be negative")
	}
	if c.Lifecycle.FollowupDelay <= 0 {
		return eris.New("config: FOLLOWUP_DELAY must be a positive duration")
	}
	if c.Lifecycle.ClaimTTL <= c.Monday.Timeout {
		return eris.New("config: SEND_CLAIM_TTL must exceed GATEWAY_TIMEOUT")
	}
	if c.Lifecycle.RetryBackoff <= 0 {
		return eris.New("config: RETRY_BACKOFF must be a positive duration")
	}
	if c.Lifecycle.RetryBackoffMax < c.Lifecycle.RetryBackoff {
		return eris.New("config: RETRY_BACKOFF_MAX must not be below RETRY_BACKOFF")
	}
	if c.Monday.Timeout <= 0 {
		return eris.New("config: GATEWAY_TIMEOUT must be a positive duration")
	}
	if c.Meta.RatePerSecond < 0 {
		return eris.New("config: META_RATE_PER_SEC must not be negative")
	}
	if c.Mail.Enabled() && c.Mail.From == "" {
		return eris.New("config: MAIL_FROM is required when SALES_ALERT_EMAIL is set")
	}
	return nil
}

// ValidateGateways checks the credentials needed by commands that talk to
// the CRM or WhatsApp. Migrations run without them.
func (c *Config) ValidateGateways() error {
	var missing []string
	if c.Monday.APIKey == "" {
		missing = append(missing, "MONDAY_API_KEY")
	}
	if c.Monday.BoardID == "" {
		missing = append(missing, "MONDAY_BOARD_ID")
	}
	if c.Meta.APIToken == "" {
		missing = append(missing, "META_API_TOKEN")
	}
	if c.Meta.PhoneID == "" {
		missing = append(missing, "META_PHONE_ID")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// mustDuration returns -1 on parse failure so validation rejects it.
func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return -1
	}
	return d
}

func mustInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return -1
	}
	return n
}

func mustFloat(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return -1
	}
	return f
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
