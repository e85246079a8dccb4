package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	JWT          JWTConfig          `yaml:"jwt"`
	Log          LogConfig          `yaml:"log"`
	Storage      StorageConfig      `yaml:"storage"`
	AWS          AWSConfig          `yaml:"aws"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	APNS         APNSConfig         `yaml:"apns"`
	Verification VerificationConfig `yaml:"verification"`
	Security     SecurityConfig     `yaml:"security"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	Environment string   `yaml:"environment"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// IsDevelopment reports whether error details may be exposed to clients
func (s ServerConfig) IsDevelopment() bool {
	return s.Environment == "development"
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig selects where uploaded images go
type StorageConfig struct {
	Driver        string `yaml:"driver"`
	UploadDir     string `yaml:"upload_dir"`
	PublicBaseURL string `yaml:"public_base_url"`
	MaxUploadMB   int64  `yaml:"max_upload_mb"`
}

// AWSConfig holds AWS configuration
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
	PublicURL string `yaml:"public_url"`
}

// SMTPConfig holds outgoing mail configuration. An empty host logs mail instead of sending it.
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	FromName string        `yaml:"from_name"`
	UseTLS   bool          `yaml:"use_tls"`
	Timeout  time.Duration `yaml:"timeout"`
}

// APNSConfig holds Apple push configuration
type APNSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// VerificationConfig holds email code settings
type VerificationConfig struct {
	CodeTTL       time.Duration `yaml:"code_ttl"`
	PurgeSchedule string        `yaml:"purge_schedule"`
}

// SecurityConfig holds hashing and rate limit settings
type SecurityConfig struct {
	BcryptCost      int           `yaml:"bcrypt_cost"`
	MinPasswordLen  int           `yaml:"min_password_length"`
	RateLimitReqs   int           `yaml:"rate_limit_requests"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        3000,
			Host:        "0.0.0.0",
			Environment: "production",
			CORSOrigins: []string{"http://localhost", "http://10.0.2.2"},
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			DBName:   "heartsync",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		JWT: JWTConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Driver:        "local",
			UploadDir:     "upload",
			PublicBaseURL: "http://10.0.2.2:3000/upload",
			MaxUploadMB:   10,
		},
		SMTP: SMTPConfig{
			Port:     587,
			FromName: "HeartSync",
			UseTLS:   true,
			Timeout:  30 * time.Second,
		},
		Verification: VerificationConfig{
			CodeTTL:       10 * time.Minute,
			PurgeSchedule: "@every 15m",
		},
		Security: SecurityConfig{
			BcryptCost:      12,
			MinPasswordLen:  6,
			RateLimitReqs:   20,
			RateLimitWindow: time.Minute,
		},
	}
}

// Load reads configuration from a YAML file over the defaults and applies env overrides.
// A missing file is not an error; the defaults and environment are used instead.
func Load(path string) (*Config, error) {
	// .env is optional and only feeds the environment
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("DATABASE_URL"); ok {
		c.Database.URL = v
	}
	if v, ok := os.LookupEnv("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := os.LookupEnv("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := os.LookupEnv("AWS_ACCESS_KEY"); ok {
		c.AWS.AccessKey = v
	}
	if v, ok := os.LookupEnv("AWS_SECRET_KEY"); ok {
		c.AWS.SecretKey = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("SERVER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks settings the server cannot start without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required (or set JWT_SECRET)")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("jwt.ttl must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Driver {
	case "local":
		if c.Storage.UploadDir == "" {
			return errors.New("storage.upload_dir is required for the local driver")
		}
	case "s3":
		if c.AWS.S3Bucket == "" {
			return errors.New("aws.s3_bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("verification.code_ttl must be positive")
	}
	if c.APNS.Enabled && (c.APNS.KeyFile == "" || c.APNS.KeyID == "" || c.APNS.TeamID == "" || c.APNS.Topic == "") {
		return errors.New("apns requires key_file, key_id, team_id and topic when enabled")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
