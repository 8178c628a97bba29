package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	// Media transport (LiveKit-compatible server API)
	MediaURL       string
	MediaAPIKey    string
	MediaAPISecret string

	// LLM used for call summaries
	LLMAPIKey  string
	LLMModelID string
	LLMBaseURL string

	// Speech-to-text (Deepgram live transcription)
	STTAPIKey string

	// Telephony bridging
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	WebhookBaseURL   string

	// Optional Redis persistence; empty means in-memory only.
	RedisAddr     string
	RedisPassword string

	// Directory of known callers/agents.
	DirectoryPath string

	// Transfer housekeeping
	TransferTimeout time.Duration
	SweepInterval   time.Duration
	SummaryTimeout  time.Duration
}

// Load reads environment variables and flags and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}

	var cfg Config

	flag.StringVar(&cfg.HTTPAddress, "http-address", getEnv("HTTP_ADDRESS", ":8080"), "HTTP listen address")
	flag.StringVar(&cfg.MediaURL, "media-url", os.Getenv("MEDIA_SERVER_URL"), "Media transport server URL")
	flag.StringVar(&cfg.MediaAPIKey, "media-key", os.Getenv("MEDIA_API_KEY"), "Media transport API key")
	flag.StringVar(&cfg.MediaAPISecret, "media-secret", os.Getenv("MEDIA_API_SECRET"), "Media transport API secret")
	flag.StringVar(&cfg.LLMAPIKey, "llm-key", os.Getenv("LLM_API_KEY"), "LLM API key")
	flag.StringVar(&cfg.LLMModelID, "llm-model", getEnv("LLM_MODEL_ID", "gpt-3.5-turbo"), "LLM model id")
	flag.StringVar(&cfg.LLMBaseURL, "llm-base-url", getEnv("LLM_BASE_URL", "https://api.openai.com/v1"), "LLM API base URL")
	flag.StringVar(&cfg.STTAPIKey, "stt-key", os.Getenv("DEEPGRAM_API_KEY"), "Deepgram API key for live transcription")
	flag.StringVar(&cfg.TwilioAccountSID, "twilio-sid", os.Getenv("TWILIO_ACCOUNT_SID"), "Twilio Account SID")
	flag.StringVar(&cfg.TwilioAuthToken, "twilio-token", os.Getenv("TWILIO_AUTH_TOKEN"), "Twilio Auth Token")
	flag.StringVar(&cfg.TwilioFromNumber, "twilio-from", os.Getenv("TWILIO_PHONE_NUMBER"), "Twilio outbound caller id")
	flag.StringVar(&cfg.WebhookBaseURL, "webhook-base-url", os.Getenv("WEBHOOK_BASE_URL"), "Public base URL for telephony webhooks")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for durable state (empty = in-memory)")
	flag.StringVar(&cfg.RedisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	flag.StringVar(&cfg.DirectoryPath, "directory", getEnv("DIRECTORY_PATH", "directory.json"), "Path to caller/agent directory JSON")
	flag.DurationVar(&cfg.TransferTimeout, "transfer-timeout", getDuration("TRANSFER_TIMEOUT", 5*time.Minute), "Window before a pending transfer auto-cancels")
	flag.DurationVar(&cfg.SweepInterval, "sweep-interval", getDuration("SWEEP_INTERVAL", 30*time.Second), "Interval of the transfer timeout sweep")
	flag.DurationVar(&cfg.SummaryTimeout, "summary-timeout", getDuration("SUMMARY_TIMEOUT", 8*time.Second), "Deadline for summary generation before fallback")
	flag.Parse()

	if cfg.MediaAPIKey == "" || cfg.MediaAPISecret == "" {
		log.Println("Warning: MEDIA_API_KEY/MEDIA_API_SECRET not set - token minting will fail")
	}
	if cfg.LLMAPIKey == "" {
		log.Println("Warning: LLM_API_KEY not set - summaries will use fallback text")
	}
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		log.Println("Warning: Twilio credentials not set - phone bridging disabled")
	}
	if cfg.STTAPIKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - audio ingest disabled")
	}

	log.Printf("config: HTTP_ADDRESS=%s", cfg.HTTPAddress)
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("invalid duration for %s: %q, using default %s", key, value, defaultValue)
	}
	return defaultValue
}
