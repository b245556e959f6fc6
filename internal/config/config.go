package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	WhatsApp WhatsAppConfig
	CORS     CORSConfig
	Logging  LoggingConfig
	QRCode   QRCodeConfig
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port     string
	Env      string
	Debug    bool
	BasePath string
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig contains JWT authentication configuration
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// WhatsAppConfig contains connection manager configuration
type WhatsAppConfig struct {
	SessionDir        string
	QRTimeout         time.Duration
	AutoReconnect     bool
	ReconcileInterval time.Duration
	ChatListLimit     int
	ContactListLimit  int
	MessageCacheSize  int
}

// CORSConfig contains CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// QRCodeConfig contains QR code generation configuration
type QRCodeConfig struct {
	Size          int
	RecoveryLevel string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("APP_PORT", "8080"),
			Env:      getEnv("APP_ENV", "production"),
			Debug:    getEnvBool("APP_DEBUG", false),
			BasePath: getEnv("APP_BASE_PATH", "/api/v1"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "whatsapp_connector"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 3600) * time.Second,
		},
		JWT: JWTConfig{
			Secret:   getEnv("JWT_SECRET", ""),
			Issuer:   getEnv("JWT_ISSUER", "support-platform"),
			Audience: getEnv("JWT_AUDIENCE", "whatsapp-connector"),
		},
		WhatsApp: WhatsAppConfig{
			SessionDir:        getEnv("WA_SESSION_DIR", "./sessions"),
			QRTimeout:         getEnvDuration("WA_QR_TIMEOUT", 60) * time.Second,
			AutoReconnect:     getEnvBool("WA_AUTO_RECONNECT", true),
			ReconcileInterval: getEnvDuration("WA_RECONCILE_INTERVAL", 60) * time.Second,
			ChatListLimit:     getEnvInt("WA_CHAT_LIST_LIMIT", 50),
			ContactListLimit:  getEnvInt("WA_CONTACT_LIST_LIMIT", 50),
			MessageCacheSize:  getEnvInt("WA_MESSAGE_CACHE_SIZE", 100),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getEnvInt("CORS_MAX_AGE", 43200),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		QRCode: QRCodeConfig{
			Size:          getEnvInt("QR_CODE_SIZE", 256),
			RecoveryLevel: getEnv("QR_CODE_RECOVERY_LEVEL", "medium"),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}

	if c.WhatsApp.QRTimeout < 10*time.Second {
		return fmt.Errorf("WA_QR_TIMEOUT must be at least 10 seconds")
	}

	if c.WhatsApp.SessionDir == "" {
		return fmt.Errorf("WA_SESSION_DIR is required")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions to get environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return time.Duration(parsed)
		}
	}
	return time.Duration(defaultValue)
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Server.Port
}
