package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Backend selection
	DataBackend  string
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets sync target
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleSummarySheetName   string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	SheetsResyncInterval     time.Duration
	SheetsAnalysis           bool

	// OCR collaborator
	OCRAPIKey            string
	OCRModel             string
	OCRBaseURL           string
	OCRTimeout           time.Duration
	OCRRequestsPerMinute int
	OCRCacheSize         int
	OCRCacheTTL          time.Duration

	// Recurring worker
	RecurringSchedule string

	// Logging and locale
	LogLevel  string
	LogFormat string
	Timezone  string
}

var (
	validBackends   = []string{"memory", "sqlite"}
	validLogFormats = []string{"text", "json"}
)

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/casheye.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "casheye"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_appended"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "家計簿"),
		GoogleSummarySheetName:   getEnv("GOOGLE_SUMMARY_SHEET_NAME", "月次集計"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
		SheetsResyncInterval:     getEnvDuration("SHEETS_RESYNC_INTERVAL", 10*time.Minute),
		SheetsAnalysis:           getEnvBool("SHEETS_ANALYSIS", false),

		OCRAPIKey:            getEnv("OCR_API_KEY", ""),
		OCRModel:             getEnv("OCR_MODEL", "gemini-2.5-flash"),
		OCRBaseURL:           getEnv("OCR_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OCRTimeout:           getEnvDuration("OCR_TIMEOUT", 90*time.Second),
		OCRRequestsPerMinute: getEnvInt("OCR_RPM", 15),
		OCRCacheSize:         getEnvInt("OCR_CACHE_SIZE", 64),
		OCRCacheTTL:          getEnvDuration("OCR_CACHE_TTL", 24*time.Hour),

		RecurringSchedule: getEnv("RECURRING_SCHEDULE", "@daily"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		Timezone:  getEnv("TIMEZONE", "Asia/Tokyo"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// AMQP is optional; when set it must be complete
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.OCRBaseURL != "" {
		if u, err := url.Parse(c.OCRBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid OCR base URL '%s': must be http or https", c.OCRBaseURL))
		}
	}
	if c.OCRTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid OCR timeout %v: must be at least 1 second", c.OCRTimeout))
	} else if c.OCRTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid OCR timeout %v: must be at most 10 minutes", c.OCRTimeout))
	}
	if c.OCRRequestsPerMinute < 1 || c.OCRRequestsPerMinute > 1000 {
		errors = append(errors, fmt.Sprintf("invalid OCR rate %d: must be between 1 and 1000 requests per minute", c.OCRRequestsPerMinute))
	}
	if c.OCRCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid OCR cache size %d: must not be negative", c.OCRCacheSize))
	}

	if _, err := cron.ParseStandard(c.RecurringSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid recurring schedule '%s': %v", c.RecurringSchedule, err))
	}

	if !slices.Contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateSheets checks the settings the sync worker needs on top of Validate.
func (c *Config) ValidateSheets() error {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required for sheets sync")
	}
	if c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required for sheets sync")
	}
	if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets sync")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP URL is required for sheets sync")
	}
	if c.SheetsResyncInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid sheets resync interval %v: must be at least 1 minute", c.SheetsResyncInterval))
	}
	if len(errors) > 0 {
		return fmt.Errorf("sheets configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OCREnabled reports whether receipt scanning can be offered.
func (c *Config) OCREnabled() bool {
	return c.OCRAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
