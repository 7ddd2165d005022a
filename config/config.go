// Package config has the configuration file for the app
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               string
	LogLevel          string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes

	DynamoTable    string // DynamoDB table holding the daily records
	DynamoEndpoint string // Optional endpoint override for dynamodb-local
	AWSRegion      string // Empty defers to the SDK resolution chain

	EditPIN         string // Shared PIN gating all writes, 4-12 digits
	JWTSecret       string // HMAC secret for session tokens
	SessionTTLHours int    // Editor session lifetime

	GeminiAPIKey string // Empty disables the AI endpoints
	GeminiModel  string

	InstitutionName    string // Printed in the report page header
	ReportMaxRangeDays int    // Upper bound on a report date range

	IndexRefreshMinutes int // In-memory index re-sync cadence
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               getEnvWithDefault("ENV", "dev"),
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576),    // 1MB default
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB default

		DynamoTable:    getEnvWithDefault("DYNAMO_TABLE", "DailyDrugHighlights"),
		DynamoEndpoint: os.Getenv("DYNAMO_ENDPOINT"),
		AWSRegion:      os.Getenv("AWS_REGION"),

		EditPIN:         os.Getenv("EDIT_PIN"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		SessionTTLHours: getIntEnvWithDefault("SESSION_TTL_HOURS", 12),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnvWithDefault("GEMINI_MODEL", "gemini-2.5-flash"),

		InstitutionName:    getEnvWithDefault("INSTITUTION_NAME", "Department of Pharmacology"),
		ReportMaxRangeDays: getIntEnvWithDefault("REPORT_MAX_RANGE_DAYS", 366),

		IndexRefreshMinutes: getIntEnvWithDefault("INDEX_REFRESH_MINUTES", 15),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development-like environment.
func (c *Config) IsDev() bool {
	env := strings.ToLower(c.Env)
	return env == "dev" || env == "test"
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	// Validate PORT
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	// Validate ADDRESS
	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	// Validate ENV
	if err := validateEnv(cfg.Env); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}

	// Validate LOG_LEVEL
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	// Validate MAX_REQUEST_BODY
	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	// Validate MAX_HEADER_SIZE
	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	// Validate LOG_RETENTION_WEEKS
	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	// Validate MAX_LOG_FILE_SIZE
	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	// Validate DYNAMO_TABLE
	if err := validateDynamoTable(cfg.DynamoTable); err != nil {
		return fmt.Errorf("invalid DYNAMO_TABLE: %w", err)
	}

	// Validate DYNAMO_ENDPOINT
	if err := validateDynamoEndpoint(cfg.DynamoEndpoint); err != nil {
		return fmt.Errorf("invalid DYNAMO_ENDPOINT: %w", err)
	}

	// Validate EDIT_PIN
	if err := validateEditPIN(cfg.EditPIN); err != nil {
		return fmt.Errorf("invalid EDIT_PIN: %w", err)
	}

	// Validate JWT_SECRET
	if err := validateJWTSecret(cfg.JWTSecret, cfg.IsDev()); err != nil {
		return fmt.Errorf("invalid JWT_SECRET: %w", err)
	}

	// Validate SESSION_TTL_HOURS
	if err := validateSessionTTLHours(cfg.SessionTTLHours); err != nil {
		return fmt.Errorf("invalid SESSION_TTL_HOURS: %w", err)
	}

	// Validate REPORT_MAX_RANGE_DAYS
	if err := validateReportMaxRangeDays(cfg.ReportMaxRangeDays); err != nil {
		return fmt.Errorf("invalid REPORT_MAX_RANGE_DAYS: %w", err)
	}

	// Validate INDEX_REFRESH_MINUTES
	if err := validateIndexRefreshMinutes(cfg.IndexRefreshMinutes); err != nil {
		return fmt.Errorf("invalid INDEX_REFRESH_MINUTES: %w", err)
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Check for privileged ports
	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	// Check for localhost/loopback addresses first
	if address == "127.0.0.1" || address == "::1" || address == "localhost" {
		// This is acceptable for development
		return nil
	}

	// Check if it's a valid IP address
	if ip := net.ParseIP(address); ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	// Check for private network ranges (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
	ip := net.ParseIP(address)
	if ip != nil && !ip.IsLoopback() && !ip.IsPrivate() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateEnv validates the ENV environment variable
func validateEnv(env string) error {
	if env == "" {
		return fmt.Errorf("ENV cannot be empty")
	}

	validEnvs := []string{"dev", "staging", "prod", "test"}
	env = strings.ToLower(env)

	for _, validEnv := range validEnvs {
		if env == validEnv {
			return nil
		}
	}

	return fmt.Errorf("ENV must be one of: %v, got: %s", validEnvs, env)
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	logLevel = strings.ToLower(logLevel)

	for _, level := range validLevels {
		if logLevel == level {
			return nil
		}
	}

	return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 { // 1 year maximum
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE must be positive, got: %d", size)
	}

	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

// validateDynamoTable validates the DYNAMO_TABLE environment variable
func validateDynamoTable(table string) error {
	if table == "" {
		return fmt.Errorf("DYNAMO_TABLE cannot be empty")
	}

	if len(table) < 3 || len(table) > 255 {
		return fmt.Errorf("DYNAMO_TABLE must be 3-255 characters, got: %d", len(table))
	}

	for _, r := range table {
		isValid := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
		if !isValid {
			return fmt.Errorf("DYNAMO_TABLE contains invalid character %q", r)
		}
	}

	return nil
}

// validateDynamoEndpoint validates the optional DYNAMO_ENDPOINT override
func validateDynamoEndpoint(endpoint string) error {
	if endpoint == "" {
		// Empty means the real AWS endpoint
		return nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("DYNAMO_ENDPOINT must be a valid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("DYNAMO_ENDPOINT must use http or https, got: %s", endpoint)
	}

	return nil
}

// validateEditPIN validates the EDIT_PIN environment variable
func validateEditPIN(pin string) error {
	if pin == "" {
		return fmt.Errorf("EDIT_PIN is required")
	}

	if len(pin) < 4 || len(pin) > 12 {
		return fmt.Errorf("EDIT_PIN must be 4-12 digits, got: %d characters", len(pin))
	}

	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("EDIT_PIN must contain only digits")
		}
	}

	return nil
}

// validateJWTSecret validates the JWT_SECRET environment variable. Outside
// dev and test a real secret must be configured.
func validateJWTSecret(secret string, isDev bool) error {
	if secret == "" {
		if isDev {
			// main generates an ephemeral secret for dev runs
			return nil
		}
		return fmt.Errorf("JWT_SECRET is required outside dev")
	}

	if len(secret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (min 32 characters), got: %d", len(secret))
	}

	return nil
}

// validateSessionTTLHours validates the SESSION_TTL_HOURS environment variable
func validateSessionTTLHours(hours int) error {
	if hours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive, got: %d", hours)
	}

	if hours > 168 { // 1 week maximum
		return fmt.Errorf("SESSION_TTL_HOURS is too large (max 168 hours), got: %d", hours)
	}

	return nil
}

// validateReportMaxRangeDays validates the REPORT_MAX_RANGE_DAYS environment variable
func validateReportMaxRangeDays(days int) error {
	if days <= 0 {
		return fmt.Errorf("REPORT_MAX_RANGE_DAYS must be positive, got: %d", days)
	}

	if days > 3660 { // ~10 years maximum
		return fmt.Errorf("REPORT_MAX_RANGE_DAYS is too large (max 3660 days), got: %d", days)
	}

	return nil
}

// validateIndexRefreshMinutes validates the INDEX_REFRESH_MINUTES environment variable
func validateIndexRefreshMinutes(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("INDEX_REFRESH_MINUTES must be positive, got: %d", minutes)
	}

	if minutes > 1440 { // 1 day maximum
		return fmt.Errorf("INDEX_REFRESH_MINUTES is too large (max 1440 minutes), got: %d", minutes)
	}

	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"DYNAMO_TABLE",
		"DYNAMO_ENDPOINT",
		"AWS_REGION",
		"EDIT_PIN",
		"JWT_SECRET",
		"SESSION_TTL_HOURS",
		"GEMINI_API_KEY",
		"GEMINI_MODEL",
		"INSTITUTION_NAME",
		"REPORT_MAX_RANGE_DAYS",
		"INDEX_REFRESH_MINUTES",
	}
}

// ValidateAllEnvVars checks if all required environment variables are set
func ValidateAllEnvVars() error {
	requiredVars := []string{"EDIT_PIN"}
	missingVars := []string{}

	for _, varName := range requiredVars {
		if os.Getenv(varName) == "" {
			missingVars = append(missingVars, varName)
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}
