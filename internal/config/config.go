/**
 * @description
 * Configuration for the rewards service. Values come from environment variables,
 * optionally seeded from a .env file in the working directory.
 *
 * @dependencies
 * - github.com/spf13/viper: environment binding and defaults.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the rewards service.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogFormat      string `mapstructure:"LOG_FORMAT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	StoreDriver    string `mapstructure:"STORE_DRIVER"`
	KVPath         string `mapstructure:"KV_PATH"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	EventExchange      string `mapstructure:"EVENT_EXCHANGE"`
	DonationEventQueue string `mapstructure:"DONATION_EVENT_QUEUE"`

	JWTSecret      string   `mapstructure:"JWT_SECRET"`
	JWTIssuer      string   `mapstructure:"JWT_ISSUER"`
	AllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	GeminiAPIKey      string  `mapstructure:"GEMINI_API_KEY"`
	GeminiModel       string  `mapstructure:"GEMINI_MODEL"`
	GeminiTemperature float32 `mapstructure:"GEMINI_TEMPERATURE"`
	GeminiTimeoutSecs int     `mapstructure:"GEMINI_TIMEOUT_SECONDS"`
	EligibilityOracle string  `mapstructure:"ELIGIBILITY_ORACLE"`

	SMSProvider            string `mapstructure:"SMS_PROVIDER"`
	AfricasTalkingUsername string `mapstructure:"AFRICASTALKING_USERNAME"`
	AfricasTalkingAPIKey   string `mapstructure:"AFRICASTALKING_API_KEY"`
	AfricasTalkingSenderID string `mapstructure:"AFRICASTALKING_SENDER_ID"`
	AfricasTalkingBaseURL  string `mapstructure:"AFRICASTALKING_BASE_URL"`
	TwilioAccountSID       string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken        string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber       string `mapstructure:"TWILIO_FROM_NUMBER"`

	ReminderSchedule            string `mapstructure:"REMINDER_SCHEDULE"`
	PromptRateLimitPerMinute    int    `mapstructure:"PROMPT_RATE_LIMIT_PER_MINUTE"`
	LocatorCacheTTLMinutes      int    `mapstructure:"LOCATOR_CACHE_TTL_MINUTES"`
	RedemptionSessionTTLMinutes int    `mapstructure:"REDEMPTION_SESSION_TTL_MINUTES"`
	RedemptionHoldTTLMinutes    int    `mapstructure:"REDEMPTION_HOLD_TTL_MINUTES"`
	HoldSweepSchedule           string `mapstructure:"HOLD_SWEEP_SCHEDULE"`
}

const (
	defaultServerPort       = "8080"
	defaultKeyPrefix        = "herodrop"
	defaultExchange         = "herodrop.events"
	defaultDonationQueue    = "rewards_service.donations"
	defaultGeminiModel      = "gemini-2.0-flash"
	defaultReminderSchedule = "0 8 * * *"
	defaultPromptRateLimit  = 30
	defaultLocatorCacheTTL  = 60
	defaultSessionTTL       = 30
	defaultGeminiTimeout    = 30
	defaultHoldTTL          = 15
	defaultHoldSweep        = "*/5 * * * *"
)

var keys = []string{
	"SERVER_PORT", "LOG_LEVEL", "LOG_FORMAT", "DATABASE_URL", "STORE_DRIVER", "KV_PATH",
	"REDIS_URL", "REDIS_KEY_PREFIX", "RABBITMQ_URL", "EVENT_EXCHANGE", "DONATION_EVENT_QUEUE",
	"JWT_SECRET", "JWT_ISSUER", "CORS_ALLOWED_ORIGINS", "GEMINI_API_KEY", "GEMINI_MODEL",
	"GEMINI_TEMPERATURE", "ELIGIBILITY_ORACLE", "SMS_PROVIDER", "AFRICASTALKING_USERNAME",
	"AFRICASTALKING_API_KEY", "AFRICASTALKING_SENDER_ID", "AFRICASTALKING_BASE_URL",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER", "REMINDER_SCHEDULE",
	"PROMPT_RATE_LIMIT_PER_MINUTE", "LOCATOR_CACHE_TTL_MINUTES", "REDEMPTION_SESSION_TTL_MINUTES",
	"GEMINI_TIMEOUT_SECONDS", "REDEMPTION_HOLD_TTL_MINUTES", "HOLD_SWEEP_SCHEDULE",
}

// LoadConfig reads configuration from the environment and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("STORE_DRIVER", "postgres")
	viper.SetDefault("KV_PATH", "herodrop-kv.db")
	viper.SetDefault("REDIS_KEY_PREFIX", defaultKeyPrefix)
	viper.SetDefault("EVENT_EXCHANGE", defaultExchange)
	viper.SetDefault("DONATION_EVENT_QUEUE", defaultDonationQueue)
	viper.SetDefault("JWT_ISSUER", "herodrop")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})
	viper.SetDefault("GEMINI_MODEL", defaultGeminiModel)
	viper.SetDefault("GEMINI_TEMPERATURE", 0.2)
	viper.SetDefault("ELIGIBILITY_ORACLE", "rules")
	viper.SetDefault("SMS_PROVIDER", "africastalking")
	viper.SetDefault("REMINDER_SCHEDULE", defaultReminderSchedule)
	viper.SetDefault("PROMPT_RATE_LIMIT_PER_MINUTE", defaultPromptRateLimit)
	viper.SetDefault("LOCATOR_CACHE_TTL_MINUTES", defaultLocatorCacheTTL)
	viper.SetDefault("REDEMPTION_SESSION_TTL_MINUTES", defaultSessionTTL)
	viper.SetDefault("GEMINI_TIMEOUT_SECONDS", defaultGeminiTimeout)
	viper.SetDefault("REDEMPTION_HOLD_TTL_MINUTES", defaultHoldTTL)
	viper.SetDefault("HOLD_SWEEP_SCHEDULE", defaultHoldSweep)

	for _, key := range keys {
		_ = viper.BindEnv(key)
	}
	_ = viper.BindEnv("PORT")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	switch config.StoreDriver {
	case "postgres", "memory":
	default:
		log.Printf("level=warn component=config msg=\"unknown STORE_DRIVER; using postgres\" value=%q", config.StoreDriver)
		config.StoreDriver = "postgres"
	}
	if config.StoreDriver == "postgres" && strings.TrimSpace(config.DatabaseURL) == "" {
		log.Printf("level=warn component=config msg=\"DATABASE_URL not set; using in-memory store\"")
		config.StoreDriver = "memory"
	}

	config.EligibilityOracle = strings.ToLower(strings.TrimSpace(config.EligibilityOracle))
	if config.EligibilityOracle != "model" && config.EligibilityOracle != "rules" {
		log.Printf("level=warn component=config msg=\"unknown ELIGIBILITY_ORACLE; using rules\" value=%q", config.EligibilityOracle)
		config.EligibilityOracle = "rules"
	}

	config.SMSProvider = strings.ToLower(strings.TrimSpace(config.SMSProvider))
	switch config.SMSProvider {
	case "africastalking", "twilio", "none":
	default:
		log.Printf("level=warn component=config msg=\"unknown SMS_PROVIDER; using none\" value=%q", config.SMSProvider)
		config.SMSProvider = "none"
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = defaultKeyPrefix
	}
	if strings.TrimSpace(config.ReminderSchedule) == "" {
		config.ReminderSchedule = defaultReminderSchedule
	}
	if config.GeminiTemperature < 0 || config.GeminiTemperature > 2 {
		log.Printf("level=warn component=config msg=\"GEMINI_TEMPERATURE out of range; using 0.2\" value=%f", config.GeminiTemperature)
		config.GeminiTemperature = 0.2
	}
	if config.PromptRateLimitPerMinute <= 0 {
		config.PromptRateLimitPerMinute = defaultPromptRateLimit
	}
	if config.LocatorCacheTTLMinutes <= 0 {
		config.LocatorCacheTTLMinutes = defaultLocatorCacheTTL
	}
	if config.RedemptionSessionTTLMinutes <= 0 {
		config.RedemptionSessionTTLMinutes = defaultSessionTTL
	}
	if config.GeminiTimeoutSecs <= 0 {
		config.GeminiTimeoutSecs = defaultGeminiTimeout
	}
	// A hold must outlive the slowest confirm request.
	if config.RedemptionHoldTTLMinutes < 2 {
		log.Printf("level=warn component=config msg=\"REDEMPTION_HOLD_TTL_MINUTES too small; using default\" value=%d", config.RedemptionHoldTTLMinutes)
		config.RedemptionHoldTTLMinutes = defaultHoldTTL
	}
	if strings.TrimSpace(config.HoldSweepSchedule) == "" {
		config.HoldSweepSchedule = defaultHoldSweep
	}

	return
}

// SMSCredentialsPresent reports whether the selected provider has what it needs to send.
func (c Config) SMSCredentialsPresent() bool {
	switch c.SMSProvider {
	case "africastalking":
		return c.AfricasTalkingUsername != "" && c.AfricasTalkingAPIKey != ""
	case "twilio":
		return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
	}
	return false
}
