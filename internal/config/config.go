package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeSlots are the appointment slots offered when BOOKING_TIME_SLOTS is unset.
var DefaultTimeSlots = []string{"09:00 ص", "10:00 ص", "11:00 ص", "01:00 م", "02:00 م", "03:00 م"}

// Config holds application configuration
type Config struct {
	Port                string
	Env                 string
	LogLevel            string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	DynamoDBTable       string
	StoreTimeout        time.Duration

	// Object storage
	MediaBucket            string
	MediaPublicBaseURL     string
	MediaMaxUploadBytes    int64
	MediaPlaceholderURL    string
	AllowPlaceholderImages bool

	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	CatalogCacheTTL time.Duration

	// Booking workflow
	WhatsAppNumber   string
	HandoffLocale    string
	BookingTimezone  string
	BookingTimeSlots []string

	// Authentication. Secret values are resolved through internal/secrets;
	// the plain values are development fallbacks only.
	AuthJWTSecretID string
	AuthJWTSecret   string
	AuthLoginURL    string

	// Airtable mirror
	AirtableBaseURL       string
	AirtableBaseID        string
	AirtableTokenSecretID string
	AirtableToken         string
	AirtableDoctorsTable  string
	AirtablePatientsTable string

	// Operator notifications
	OperatorEmails         []string
	EmailProvider          string
	SendGridAPIKeySecretID string
	SendGridAPIKey         string
	EmailFromAddress       string
	EmailFromName          string

	// Outbox
	BookingEventsQueueURL string
	OutboxPollInterval    time.Duration
	OutboxBatchSize       int
	OutboxMaxAttempts     int

	CORSAllowedOrigins    []string
	BookingRateLimitRPS   float64
	BookingRateLimitBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		AWSRegion:           getEnv("AWS_REGION", "me-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		DynamoDBTable:       getEnv("DYNAMODB_TABLE", "healthcare-booking"),
		StoreTimeout:        getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),

		MediaBucket:            getEnv("MEDIA_BUCKET", ""),
		MediaPublicBaseURL:     strings.TrimRight(getEnv("MEDIA_PUBLIC_BASE_URL", ""), "/"),
		MediaMaxUploadBytes:    int64(getEnvAsInt("MEDIA_MAX_UPLOAD_BYTES", 5<<20)),
		MediaPlaceholderURL:    getEnv("MEDIA_PLACEHOLDER_URL", "/images/placeholder.png"),
		AllowPlaceholderImages: getEnvAsBool("ALLOW_PLACEHOLDER_IMAGES", true),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		CatalogCacheTTL: getEnvAsDuration("CATALOG_CACHE_TTL", 5*time.Minute),

		WhatsAppNumber:   getEnv("WHATSAPP_NUMBER", ""),
		HandoffLocale:    getEnv("HANDOFF_LOCALE", "ar"),
		BookingTimezone:  getEnv("BOOKING_TIMEZONE", "Africa/Cairo"),
		BookingTimeSlots: getEnvAsList("BOOKING_TIME_SLOTS", DefaultTimeSlots),

		AuthJWTSecretID: getEnv("AUTH_JWT_SECRET_ID", ""),
		AuthJWTSecret:   getEnv("AUTH_JWT_SECRET", ""),
		AuthLoginURL:    getEnv("AUTH_LOGIN_URL", "/login"),

		AirtableBaseURL:       getEnv("AIRTABLE_BASE_URL", "https://api.airtable.com/v0"),
		AirtableBaseID:        getEnv("AIRTABLE_BASE_ID", ""),
		AirtableTokenSecretID: getEnv("AIRTABLE_TOKEN_SECRET_ID", ""),
		AirtableToken:         getEnv("AIRTABLE_TOKEN", ""),
		AirtableDoctorsTable:  getEnv("AIRTABLE_DOCTORS_TABLE", "Doctors Images"),
		AirtablePatientsTable: getEnv("AIRTABLE_PATIENTS_TABLE", "Patients Images"),

		OperatorEmails:         getEnvAsList("OPERATOR_EMAILS", nil),
		EmailProvider:          strings.ToLower(getEnv("EMAIL_PROVIDER", "sendgrid")),
		SendGridAPIKeySecretID: getEnv("SENDGRID_API_KEY_SECRET_ID", ""),
		SendGridAPIKey:         getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:       getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:          getEnv("EMAIL_FROM_NAME", "Bookings"),

		BookingEventsQueueURL: getEnv("BOOKING_EVENTS_QUEUE_URL", ""),
		OutboxPollInterval:    getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:       getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		OutboxMaxAttempts:     getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 8),

		CORSAllowedOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		BookingRateLimitRPS:   getEnvAsFloat("BOOKING_RATE_LIMIT_RPS", 1),
		BookingRateLimitBurst: getEnvAsInt("BOOKING_RATE_LIMIT_BURST", 5),
	}
}

// IsProduction reports whether plain-env secret fallbacks must be refused.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
