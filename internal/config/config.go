package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every external setting the server needs, resolved once at
// startup. Services receive it (or slices of it) explicitly instead of
// reading the environment themselves.
type Config struct {
	DatabaseURL string
	ServerPort  string

	JWTSecret      string
	JWTExpiry      time.Duration
	AllowedOrigins string

	// Drive/Sheets integration.
	GoogleCredentialsFile string
	DriveRootFolderID     string
	LegacySpreadsheetID   string
	LegacySheetRange      string

	// Downstream automation endpoints.
	InvoiceQueueURL string
	HoursQueueURL   string
	LegacyWebhookURL string

	OpenAIAPIKey string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	DispatchChunkPause  time.Duration
	DispatchFolderDelay time.Duration
}

// Load reads the configuration from the environment. Only the database URL
// and the JWT secret are hard requirements; integrations left unset disable
// the corresponding feature at wiring time.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ServerPort:  envDefault("SERVER_PORT", "8080"),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTExpiry:      envDuration("JWT_EXPIRY", 12*time.Hour),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),

		GoogleCredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		DriveRootFolderID:     os.Getenv("DRIVE_ROOT_FOLDER_ID"),
		LegacySpreadsheetID:   os.Getenv("LEGACY_SPREADSHEET_ID"),
		LegacySheetRange:      envDefault("LEGACY_SHEET_RANGE", "Consolidado!A1:F"),

		InvoiceQueueURL:  os.Getenv("INVOICE_QUEUE_URL"),
		HoursQueueURL:    os.Getenv("HOURS_QUEUE_URL"),
		LegacyWebhookURL: os.Getenv("LEGACY_WEBHOOK_URL"),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     envInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),

		DispatchChunkPause:  envDuration("DISPATCH_CHUNK_PAUSE", 2*time.Second),
		DispatchFolderDelay: envDuration("DISPATCH_FOLDER_DELAY", 5*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
