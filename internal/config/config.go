package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	// Scheduling defaults, fixed at process start and read-only afterwards.
	DefaultTimezone   string // fallback IANA name when the user gives none (or an invalid one)
	DefaultSendHour   int    // local send hour for date-only requests
	DefaultSendMinute int
	ICSDurationMin    int // default calendar-invite duration

	// Retry / delivery policy.
	RetryMaxAttempts int
	RetryBackoff     time.Duration
	SendTimeout      time.Duration
	WorkerCount      int
	QueueBuffer      int

	// Sweeper: requeues due records and stuck in-flight rows.
	SweepInterval    time.Duration
	StuckQueuedAfter time.Duration

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Templates     string
	Notifications string
	Dedupe        string
	Logs          string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Templates:     getEnv("DYNAMO_TABLE_TEMPLATES", "notification_templates"),
			Notifications: getEnv("DYNAMO_TABLE_NOTIFICATIONS", "scheduled_notifications"),
			Dedupe:        getEnv("DYNAMO_TABLE_DEDUPE", "notification_dedupe"),
			Logs:          getEnv("DYNAMO_TABLE_LOGS", "notification_logs"),
		},

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		DefaultTimezone:   getEnv("NOTIFY_DEFAULT_TIMEZONE", "UTC"),
		DefaultSendHour:   getEnvInt("NOTIFY_DEFAULT_SEND_HOUR", 9),
		DefaultSendMinute: getEnvInt("NOTIFY_DEFAULT_SEND_MINUTE", 0),
		ICSDurationMin:    getEnvInt("NOTIFY_ICS_DEFAULT_DURATION_MIN", 30),

		RetryMaxAttempts: getEnvInt("NOTIFY_RETRY_MAX_ATTEMPTS", 3),
		RetryBackoff:     getEnvDuration("NOTIFY_RETRY_BACKOFF", 60*time.Second),
		SendTimeout:      getEnvDuration("NOTIFY_SEND_TIMEOUT", 30*time.Second),
		WorkerCount:      getEnvInt("NOTIFY_WORKER_COUNT", 4),
		QueueBuffer:      getEnvInt("NOTIFY_QUEUE_BUFFER", 256),

		SweepInterval:    getEnvDuration("NOTIFY_SWEEP_INTERVAL", time.Minute),
		StuckQueuedAfter: getEnvDuration("NOTIFY_STUCK_QUEUED_AFTER", 10*time.Minute),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
