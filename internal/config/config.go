package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Oracle provider selection. Resolved once at startup.
	LLMProvider           string
	LLMFallbackProvider   string
	GoogleAPIKey          string
	GeminiCheapModel      string
	GeminiCapableModel    string
	GeminiEmbeddingModel  string
	BedrockCheapModel     string
	BedrockCapableModel   string
	BedrockEmbeddingModel string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Pricing in USD per million tokens.
	PriceCheapInput    float64
	PriceCheapOutput   float64
	PriceCapableInput  float64
	PriceCapableOutput float64
	BudgetSafetyMargin float64

	CronSecret          string
	TelegramBotToken    string
	TelegramSecretToken string
	TelegramAPIBaseURL  string
	DefaultBusinessID   string

	DispatchBatchSize     int
	DispatchInterval      time.Duration
	DispatchWorkerEnabled bool
	DispatchItemTimeout   time.Duration

	WebhookRatePerSecond float64
	WebhookBurst         int

	// LocalBudgetUSD is the per-tenant cap of the in-memory ledger used when
	// DATABASE_URL is empty.
	LocalBudgetUSD   float64
	BusinessCacheTTL time.Duration

	OracleTimeout        time.Duration
	CalendarTimeout      time.Duration
	LockTimeout          time.Duration
	SlotLockTTL          time.Duration
	AgentMaxIterations   int
	ConversationTTL      time.Duration
	ConversationMaxTurns int

	DefaultTimezone   string
	BusinessOpenHour  int
	BusinessCloseHour int

	GoogleOAuthClientID     string
	GoogleOAuthClientSecret string

	FAQMatchThreshold float64
	FAQMatchCount     int

	// Escalation email
	EmailProvider  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	SESConfigurationSet string
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		LLMProvider:           strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "gemini"))),
		LLMFallbackProvider:   strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		GoogleAPIKey:          getEnv("GOOGLE_API_KEY", ""),
		GeminiCheapModel:      getEnv("GEMINI_CHEAP_MODEL", "gemini-2.5-flash"),
		GeminiCapableModel:    getEnv("GEMINI_CAPABLE_MODEL", "gemini-2.5-pro"),
		GeminiEmbeddingModel:  getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		BedrockCheapModel:     getEnv("BEDROCK_CHEAP_MODEL", "anthropic.claude-3-haiku-20240307-v1:0"),
		BedrockCapableModel:   getEnv("BEDROCK_CAPABLE_MODEL", "anthropic.claude-3-5-sonnet-20240620-v1:0"),
		BedrockEmbeddingModel: getEnv("BEDROCK_EMBEDDING_MODEL", "amazon.titan-embed-text-v2:0"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		PriceCheapInput:    getEnvAsFloat("PRICE_CHEAP_INPUT", 0.15),
		PriceCheapOutput:   getEnvAsFloat("PRICE_CHEAP_OUTPUT", 0.60),
		PriceCapableInput:  getEnvAsFloat("PRICE_CAPABLE_INPUT", 2.50),
		PriceCapableOutput: getEnvAsFloat("PRICE_CAPABLE_OUTPUT", 10.00),
		BudgetSafetyMargin: getEnvAsFloat("BUDGET_SAFETY_MARGIN", 1.2),

		CronSecret:          getEnv("CRON_SECRET", ""),
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramSecretToken: getEnv("TELEGRAM_SECRET_TOKEN", ""),
		TelegramAPIBaseURL:  getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		DefaultBusinessID:   getEnv("DEFAULT_BUSINESS_ID", ""),

		DispatchBatchSize:     getEnvAsInt("DISPATCH_BATCH_SIZE", 10),
		DispatchInterval:      getEnvAsDuration("DISPATCH_INTERVAL", time.Minute),
		DispatchWorkerEnabled: getEnvAsBool("DISPATCH_WORKER_ENABLED", false),
		DispatchItemTimeout:   getEnvAsDuration("DISPATCH_ITEM_TIMEOUT", 2*time.Minute),

		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 5),
		WebhookBurst:         getEnvAsInt("WEBHOOK_BURST", 20),

		LocalBudgetUSD:   getEnvAsFloat("LOCAL_BUDGET_USD", 5),
		BusinessCacheTTL: getEnvAsDuration("BUSINESS_CACHE_TTL", 5*time.Minute),

		OracleTimeout:        getEnvAsDuration("ORACLE_TIMEOUT", 30*time.Second),
		CalendarTimeout:      getEnvAsDuration("CALENDAR_TIMEOUT", 10*time.Second),
		LockTimeout:          getEnvAsDuration("LOCK_TIMEOUT", 2*time.Second),
		SlotLockTTL:          getEnvAsDuration("SLOT_LOCK_TTL", 300*time.Second),
		AgentMaxIterations:   getEnvAsInt("AGENT_MAX_ITERATIONS", 5),
		ConversationTTL:      getEnvAsDuration("CONVERSATION_TTL", 30*time.Minute),
		ConversationMaxTurns: getEnvAsInt("CONVERSATION_MAX_TURNS", 40),

		DefaultTimezone:   getEnv("DEFAULT_TIMEZONE", "Asia/Colombo"),
		BusinessOpenHour:  getEnvAsInt("BUSINESS_OPEN_HOUR", 8),
		BusinessCloseHour: getEnvAsInt("BUSINESS_CLOSE_HOUR", 18),

		GoogleOAuthClientID:     getEnv("GOOGLE_OAUTH_CLIENT_ID", ""),
		GoogleOAuthClientSecret: getEnv("GOOGLE_OAUTH_CLIENT_SECRET", ""),

		FAQMatchThreshold: getEnvAsFloat("FAQ_MATCH_THRESHOLD", 0.7),
		FAQMatchCount:     getEnvAsInt("FAQ_MATCH_COUNT", 3),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Booking Assistant"),

		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
	}
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
