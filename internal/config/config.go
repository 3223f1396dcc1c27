package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries everything a migration run needs from the environment.
type Config struct {
	LogMode string

	TokenURL     string
	APIBaseURL   string
	ClientID     string
	ClientSecret string

	Bucket    string
	Region    string
	KeyPrefix string

	InputFile      string
	CheckpointFile string
	ErrorFile      string

	BatchSize       int
	ResolveAttempts int
	TransferRetries int
}

func checkEnv(envVars []string) error {
	var missingVars []string

	for _, envVar := range envVars {
		if value, exists := os.LookupEnv(envVar); !exists || value == "" {
			missingVars = append(missingVars, envVar)
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("error: this env vars are missing: %v", missingVars)
	}
	return nil
}

func validateEnv() error {
	return checkEnv([]string{
		"SOURCE_TOKEN_URL",
		"SOURCE_API_URL",
		"SOURCE_CLIENT_ID",
		"DEST_BUCKET",
	})
}

// clientSecret reads the secret either inline or from a file referenced by
// SOURCE_CLIENT_SECRET_FILE, so secrets can stay out of the environment.
func clientSecret() (string, error) {
	if secret := os.Getenv("SOURCE_CLIENT_SECRET"); secret != "" {
		return secret, nil
	}
	path := os.Getenv("SOURCE_CLIENT_SECRET_FILE")
	if path == "" {
		return "", fmt.Errorf("error: this env vars are missing: [SOURCE_CLIENT_SECRET or SOURCE_CLIENT_SECRET_FILE]")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read client secret file: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("client secret file %s is empty", path)
	}
	return secret, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if v < 1 {
		return 0, fmt.Errorf("%s must be at least 1, got %d", key, v)
	}
	return v, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// LoadConfig reads .env (optional) and the environment. Missing required
// variables are reported together.
func LoadConfig(envPath string) (*Config, error) {
	// A missing .env is fine, variables may be set directly.
	_ = godotenv.Load(envPath)

	if err := validateEnv(); err != nil {
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}

	secret, err := clientSecret()
	if err != nil {
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}

	batchSize, err := intEnv("BATCH_SIZE", 5)
	if err != nil {
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}
	resolveAttempts, err := intEnv("RESOLVE_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}
	transferRetries, err := intEnv("TRANSFER_RETRY_BUDGET", 2)
	if err != nil {
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}

	return &Config{
		LogMode:         stringEnv("LOG_MODE", "prod"),
		TokenURL:        os.Getenv("SOURCE_TOKEN_URL"),
		APIBaseURL:      strings.TrimRight(os.Getenv("SOURCE_API_URL"), "/"),
		ClientID:        os.Getenv("SOURCE_CLIENT_ID"),
		ClientSecret:    secret,
		Bucket:          os.Getenv("DEST_BUCKET"),
		Region:          os.Getenv("DEST_REGION"),
		KeyPrefix:       stringEnv("DEST_KEY_PREFIX", "videos/"),
		InputFile:       stringEnv("INPUT_FILE", "video_ids.txt"),
		CheckpointFile:  stringEnv("CHECKPOINT_FILE", "checkpoint.json"),
		ErrorFile:       stringEnv("ERROR_FILE", "errors.json"),
		BatchSize:       batchSize,
		ResolveAttempts: resolveAttempts,
		TransferRetries: transferRetries,
	}, nil
}
