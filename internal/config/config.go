package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	Env         string

	// Signaling
	RoomID         string
	RedisURL       string
	SupabaseURL    string
	SupabaseKey    string
	ICEServersJSON string

	// Voice activity detection
	VolumeThreshold      float64
	SilenceThreshold     time.Duration
	MinRecordingDuration time.Duration

	// Providers
	ElevenLabsKey    string
	AnthropicKey     string
	AnthropicModelID string
	TwilioAccountSID string
	TwilioAuthToken  string

	JobProfile string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}

	roomID := os.Getenv("ROOM_ID")
	if roomID == "" {
		roomID = "main-room"
	}

	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	if elevenKey == "" {
		log.Println("Warning: ELEVENLABS_API_KEY not set - transcription and token minting will not work")
	}

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	if anthropicKey == "" {
		log.Println("Warning: ANTHROPIC_API_KEY not set - question detection falls back to keywords, agents are disabled")
	}
	anthropicModel := os.Getenv("ANTHROPIC_MODEL_ID")
	if anthropicModel == "" {
		anthropicModel = "claude-haiku-4-5"
	}

	jobProfile := os.Getenv("JOB_PROFILE")
	if jobProfile == "" {
		jobProfile = "Consultant role - Strategy, analytical skills, client management, teamwork"
	}

	cfg := Config{
		HTTPAddress:          addr,
		Env:                  env,
		RoomID:               roomID,
		RedisURL:             os.Getenv("REDIS_URL"),
		SupabaseURL:          os.Getenv("SUPABASE_URL"),
		SupabaseKey:          os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		ICEServersJSON:       os.Getenv("ICE_SERVERS_JSON"),
		VolumeThreshold:      envFloat("VOLUME_THRESHOLD", 5),
		SilenceThreshold:     envMillis("SILENCE_THRESHOLD", 2000*time.Millisecond),
		MinRecordingDuration: envMillis("MIN_RECORDING_DURATION", 1000*time.Millisecond),
		ElevenLabsKey:        elevenKey,
		AnthropicKey:         anthropicKey,
		AnthropicModelID:     anthropicModel,
		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		JobProfile:           jobProfile,
	}

	log.Printf("config: HTTP_ADDRESS=%s ROOM_ID=%s VOLUME_THRESHOLD=%.1f", cfg.HTTPAddress, cfg.RoomID, cfg.VolumeThreshold)
	return cfg
}

// IsDevelopment reports whether the server runs in a development environment.
func (c Config) IsDevelopment() bool { return c.Env == "development" }

func envFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using default %.1f", key, raw, def)
		return def
	}
	return v
}

// envMillis reads an integer count of milliseconds.
func envMillis(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		log.Printf("Warning: invalid %s=%q, using default %s", key, raw, def)
		return def
	}
	return time.Duration(v) * time.Millisecond
}
