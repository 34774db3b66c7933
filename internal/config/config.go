package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "CLEANWARTS_"

// DefaultAdminEmail is the reserved address that always identifies the admin.
const DefaultAdminEmail = "admin@gmail.com"

type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string
	BaseURL   string

	// Admin
	AdminEmail    string
	AdminPassword string

	// Uploads
	UploadDir      string
	MaxUploadBytes int64

	// S3-compatible blob storage; used instead of UploadDir when Bucket is set.
	S3 S3Config

	// Database backups; disabled without a passphrase.
	BackupPassphrase string
	BackupDir        string
	BackupAt         string
	BackupRetention  time.Duration

	// Web push
	VAPIDPublicKey  string
	VAPIDPrivateKey string

	RedisURL    string
	CORSOrigins []string
	SessionTTL  time.Duration
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	PublicURL string
}

// Enabled reports whether S3 storage has been configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Load reads configuration from CLEANWARTS_-prefixed environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		DBPath:    getEnv("DB_PATH", "cleanwarts.db"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		BaseURL:   getEnv("BASE_URL", "http://localhost:8080"),

		AdminEmail:    strings.ToLower(getEnv("ADMIN_EMAIL", DefaultAdminEmail)),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_MB", 10) << 20,

		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			PublicURL: strings.TrimRight(getEnv("S3_PUBLIC_URL", ""), "/"),
		},

		BackupPassphrase: getEnv("BACKUP_PASSPHRASE", ""),
		BackupDir:        getEnv("BACKUP_DIR", "backups"),
		BackupAt:         getEnv("BACKUP_AT", "04:00"),
		BackupRetention:  time.Duration(getEnvInt64("BACKUP_RETENTION_DAYS", 14)) * 24 * time.Hour,

		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),

		RedisURL:    getEnv("REDIS_URL", ""),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "")),
	}

	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "720h"))
	if err != nil {
		return nil, fmt.Errorf("invalid %sSESSION_TTL: %w", envPrefix, err)
	}
	cfg.SessionTTL = ttl

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%sSESSION_TTL must be positive", envPrefix)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%sMAX_UPLOAD_MB must be positive", envPrefix)
	}
	if !strings.Contains(c.AdminEmail, "@") {
		return fmt.Errorf("%sADMIN_EMAIL must be an email address", envPrefix)
	}
	if c.S3.Enabled() && (c.S3.AccessKey == "" || c.S3.SecretKey == "") {
		return fmt.Errorf("%sS3_ACCESS_KEY and %sS3_SECRET_KEY are required with %sS3_BUCKET", envPrefix, envPrefix, envPrefix)
	}
	if c.BackupEnabled() && c.BackupRetention <= 0 {
		return fmt.Errorf("%sBACKUP_RETENTION_DAYS must be positive", envPrefix)
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("%sVAPID_PUBLIC_KEY and %sVAPID_PRIVATE_KEY must be set together", envPrefix, envPrefix)
	}
	return nil
}

func (c *Config) BackupEnabled() bool {
	return c.BackupPassphrase != ""
}

// PushEnabled reports whether VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(envPrefix + key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
