package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the server needs, read once at start-up.
type Config struct {
	HTTPAddr       string
	GRPCHealthAddr string
	LogLevel       string
	DatabaseDSN    string
	RedisAddr      string
	MaxUploadBytes int64
	ClientTimeout  time.Duration

	IDfy     IDfy
	Cartesia Cartesia
	Storage  Storage

	CascadePath string
	JWTSecret   string
	JWTAudience string
}

// IDfy configures the verification provider.
type IDfy struct {
	BaseURL    string
	APIKey     string
	AccountID  string
	GroupID    string
	KYCGroupID string
	PollDelay  time.Duration
	RetryDelay time.Duration
}

// Cartesia configures the speech vendor.
type Cartesia struct {
	BaseURL string
	APIKey  string
	VoiceID string
	Version string
}

// Storage configures the Supabase storage buckets.
type Storage struct {
	URL             string
	APIKey          string
	DocumentBucket  string
	RecordingBucket string
}

// Load reads an optional .env file and then the process environment.
// Vendor credentials are not validated here; missing ones surface as
// authentication failures from the vendor.
func Load(envFiles ...string) (Config, bool) {
	loadedDotEnv := godotenv.Load(envFiles...) == nil

	supabaseURL := strings.TrimRight(getEnv("SUPABASE_URL", ""), "/")

	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ":9090"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=kyc port=5432 sslmode=disable"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		MaxUploadBytes: getInt64Env("MAX_UPLOAD_BYTES", 20<<20),
		ClientTimeout:  getDurationEnv("HTTP_CLIENT_TIMEOUT", 30*time.Second),
		IDfy: IDfy{
			BaseURL:    getEnv("IDFY_BASE_URL", "https://eve.idfy.com/v3"),
			APIKey:     os.Getenv("IDFY_API_KEY"),
			AccountID:  os.Getenv("IDFY_ACCOUNT_ID"),
			GroupID:    getEnv("IDFY_GROUP_ID", "test_group"),
			KYCGroupID: getEnv("IDFY_KYC_GROUP_ID", "kyc_group"),
			PollDelay:  getDurationEnv("IDFY_POLL_DELAY", 5*time.Second),
			RetryDelay: getDurationEnv("IDFY_RETRY_DELAY", 3*time.Second),
		},
		Cartesia: Cartesia{
			BaseURL: getEnv("CARTESIA_BASE_URL", "https://api.cartesia.ai"),
			APIKey:  os.Getenv("CARTESIA_API_KEY"),
			VoiceID: os.Getenv("CARTESIA_VOICE_ID"),
			Version: getEnv("CARTESIA_VERSION", "2024-06-10"),
		},
		Storage: Storage{
			URL:             supabaseURL,
			APIKey:          os.Getenv("SUPABASE_API_KEY"),
			DocumentBucket:  getEnv("KYC_DOCUMENT_BUCKET", "kyc_document"),
			RecordingBucket: getEnv("KYC_RECORDING_BUCKET", "kyc_recording"),
		},
		CascadePath: os.Getenv("OPENCV_CASCADE_PATH"),
		JWTSecret:   strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAudience: strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
	}, loadedDotEnv
}

// StorageEndpoint is the storage REST root under the Supabase project URL.
func (s Storage) StorageEndpoint() string {
	if s.URL == "" {
		return ""
	}
	return s.URL + "/storage/v1"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt64Env(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
