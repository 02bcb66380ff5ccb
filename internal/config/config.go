package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Store backends
const (
	StorePostgres = "postgres"
	StoreBadger   = "badger"
)

type Config struct {
	Port        string
	Environment string
	TablePrefix string
	LogDir      string
	LogMaxFiles int

	// Storage
	Store       string
	DatabaseURL string
	BadgerDir   string

	// Telephony
	PublicBaseURL          string // externally visible origin the provider calls, e.g. https://agent.example.com
	TwilioAuthToken        string
	WebhookSignatureBypass bool
	EmergencyPhoneNumber   string

	// Conversation
	DefaultLocale string
	Voice         string
	BargeIn       bool
	GatherTimeout time.Duration
	MaxEmptyTurns int
	MinConfidence float64

	// Analysis
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnalysisTimeout time.Duration

	// Dashboard
	LiveEvents      bool // stream call events over SSE and websocket
	CORSOrigins     string
	SupabaseURL     string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	supabaseURL := strings.TrimRight(getEnv("SUPABASE_URL", ""), "/")

	jwksURL := ""
	if supabaseURL != "" {
		jwksURL = supabaseURL + "/auth/v1/.well-known/jwks.json"
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		TablePrefix: getTablePrefix(env),
		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: getEnvInt("LOG_MAX_FILES", 10),

		Store:       getEnv("STORE", StorePostgres),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		BadgerDir:   getEnv("BADGER_DIR", "./data/badger"),

		PublicBaseURL:          strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		TwilioAuthToken:        getEnv("TWILIO_AUTH_TOKEN", ""),
		WebhookSignatureBypass: getEnvBool("WEBHOOK_SIGNATURE_BYPASS", false),
		EmergencyPhoneNumber:   getEnv("EMERGENCY_PHONE_NUMBER", "911"),

		DefaultLocale: getEnv("DEFAULT_LOCALE", "en-US"),
		Voice:         getEnv("VOICE", ""),
		BargeIn:       getEnvBool("BARGE_IN", true),
		GatherTimeout: getEnvDuration("GATHER_TIMEOUT", 5*time.Second),
		MaxEmptyTurns: getEnvInt("MAX_EMPTY_TURNS", 2),
		MinConfidence: getEnvFloat("MIN_CONFIDENCE", 0),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AnalysisTimeout: getEnvDuration("ANALYSIS_TIMEOUT", 8*time.Second),

		LiveEvents:      getEnvBool("LIVE_EVENTS", true),
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		SupabaseURL:     supabaseURL,
		SupabaseJWKSURL: jwksURL,
	}
}

// Validate rejects configurations the server must not start with
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, is.Port),
		validation.Field(&c.Environment, validation.Required, validation.In("dev", "test", "prod")),
		validation.Field(&c.Store, validation.Required, validation.In(StorePostgres, StoreBadger)),
		validation.Field(&c.DatabaseURL, validation.When(c.Store == StorePostgres, validation.Required)),
		validation.Field(&c.BadgerDir, validation.When(c.Store == StoreBadger, validation.Required)),
		validation.Field(&c.PublicBaseURL,
			validation.When(c.Environment == "prod", validation.Required),
			is.URL,
		),
		validation.Field(&c.TwilioAuthToken, validation.When(!c.WebhookSignatureBypass, validation.Required)),
		validation.Field(&c.WebhookSignatureBypass, validation.By(func(any) error {
			if c.WebhookSignatureBypass && c.Environment == "prod" {
				return errors.New("must not be enabled in prod")
			}
			return nil
		})),
		validation.Field(&c.EmergencyPhoneNumber, validation.Required),
		validation.Field(&c.MaxEmptyTurns, validation.Min(1)),
		validation.Field(&c.MinConfidence, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.GatherTimeout, validation.Min(time.Second)),
		validation.Field(&c.AnalysisTimeout, validation.Min(100*time.Millisecond)),
	)
}

// VerifySignatures reports whether webhook signatures are checked. Bypass is
// honored everywhere except prod.
func (c *Config) VerifySignatures() bool {
	return !c.WebhookSignatureBypass || c.Environment == "prod"
}

// AIEnabled reports whether the external classifier/generator is configured
func (c *Config) AIEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("8s", "750ms") or whole seconds ("8")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
