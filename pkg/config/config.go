package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Sweep         SweepConfig
	Documents     DocumentsConfig
	Receipts      ReceiptsConfig
	Notifications NotificationsConfig
	Dashboard     DashboardConfig
	Fees          FeesConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	AutoMigrate   bool
	MigrationsDir string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SweepConfig controls the enrollment period status sweep.
type SweepConfig struct {
	Enabled      bool
	Interval     time.Duration
	NotifyAdmins bool
	LockTTL      time.Duration
	Timezone     string
}

// DocumentsConfig governs student document uploads.
type DocumentsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// ReceiptsConfig governs where invoice and receipt PDFs are written.
type ReceiptsConfig struct {
	StorageDir  string
	SchoolName  string
	Currency    string
	InvoiceDays int
}

// NotificationsConfig toggles notification channels.
type NotificationsConfig struct {
	Workers        int
	MaxRetries     int
	SendgridAPIKey string
	FromEmail      string
	FromName       string
	SubjectPrefix  string
	EmailEnabled   bool
}

// DashboardConfig governs dashboard cache tuning.
type DashboardConfig struct {
	CacheTTL time.Duration
}

// FeesConfig governs fee lookup caching.
type FeesConfig struct {
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:   v.GetBool("DB_AUTO_MIGRATE"),
		MigrationsDir: v.GetString("DB_MIGRATIONS_DIR"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sweep = SweepConfig{
		Enabled:      v.GetBool("SWEEP_ENABLED"),
		Interval:     parseDuration(v.GetString("SWEEP_INTERVAL"), 24*time.Hour),
		NotifyAdmins: v.GetBool("SWEEP_NOTIFY_ADMINS"),
		LockTTL:      parseDuration(v.GetString("SWEEP_LOCK_TTL"), 10*time.Minute),
		Timezone:     v.GetString("SWEEP_TIMEZONE"),
	}

	maxDocSize := v.GetInt64("DOCUMENTS_MAX_FILE_SIZE")
	if maxDocSize <= 0 {
		maxDocSize = 5 * 1024 * 1024
	}
	cfg.Documents = DocumentsConfig{
		StorageDir:       v.GetString("DOCUMENTS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("DOCUMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("DOCUMENTS_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxDocSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("DOCUMENTS_ALLOWED_MIME_TYPES")),
	}

	cfg.Receipts = ReceiptsConfig{
		StorageDir:  v.GetString("RECEIPTS_STORAGE_DIR"),
		SchoolName:  v.GetString("SCHOOL_NAME"),
		Currency:    v.GetString("CURRENCY"),
		InvoiceDays: v.GetInt("INVOICE_DUE_DAYS"),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:        v.GetInt("NOTIFICATIONS_WORKERS"),
		MaxRetries:     v.GetInt("NOTIFICATIONS_MAX_RETRIES"),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromEmail:      v.GetString("MAIL_FROM_ADDRESS"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		SubjectPrefix:  v.GetString("MAIL_SUBJECT_PREFIX"),
		EmailEnabled:   v.GetBool("ENABLE_EMAIL_NOTIFICATIONS"),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Fees = FeesConfig{
		CacheTTL: parseDuration(v.GetString("FEES_CACHE_TTL"), 10*time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "cbhlc")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("DB_MIGRATIONS_DIR", "migrations")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "cbhlc-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SWEEP_ENABLED", false)
	v.SetDefault("SWEEP_INTERVAL", "24h")
	v.SetDefault("SWEEP_NOTIFY_ADMINS", false)
	v.SetDefault("SWEEP_LOCK_TTL", "10m")
	v.SetDefault("SWEEP_TIMEZONE", "Asia/Manila")

	v.SetDefault("DOCUMENTS_STORAGE_DIR", "./storage/documents")
	v.SetDefault("DOCUMENTS_SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("DOCUMENTS_SIGNED_URL_TTL", "30m")
	v.SetDefault("DOCUMENTS_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("DOCUMENTS_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png")

	v.SetDefault("RECEIPTS_STORAGE_DIR", "./storage/receipts")
	v.SetDefault("SCHOOL_NAME", "Christian Bible Heritage Learning Center")
	v.SetDefault("CURRENCY", "PHP")
	v.SetDefault("INVOICE_DUE_DAYS", 30)

	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_MAX_RETRIES", 3)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@cbhlc.local")
	v.SetDefault("MAIL_FROM_NAME", "CBHLC")
	v.SetDefault("MAIL_SUBJECT_PREFIX", "[CBHLC] ")
	v.SetDefault("ENABLE_EMAIL_NOTIFICATIONS", false)

	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")
	v.SetDefault("FEES_CACHE_TTL", "10m")
}

// Location resolves the sweep timezone, falling back to UTC.
func (c SweepConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
