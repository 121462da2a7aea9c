// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	JWTIssuer      string `mapstructure:"JWT_ISSUER"`
	JWTAudience    string `mapstructure:"JWT_AUDIENCE"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	DBDriver     string `mapstructure:"DB_DRIVER"`
	DBHost       string `mapstructure:"DB_HOST"`
	DBPort       string `mapstructure:"DB_PORT"`
	DBUser       string `mapstructure:"DB_USER"`
	DBPassword   string `mapstructure:"DB_PASSWORD"`
	DBName       string `mapstructure:"DB_NAME"`
	DBSSLMode    string `mapstructure:"DB_SSLMODE"`
	DBSQLitePath string `mapstructure:"DB_SQLITE_PATH"`

	DBMaxOpenConns           int `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL             string `mapstructure:"REDIS_URL"`
	GroupCacheTTLSeconds int    `mapstructure:"GROUP_CACHE_TTL_SECONDS"`
	ResourceRoot         string `mapstructure:"RESOURCE_ROOT"`
	TempUploadDir        string `mapstructure:"TEMP_UPLOAD_DIR"`
	MaxUploadSizeMB      int    `mapstructure:"MAX_UPLOAD_SIZE_MB"`
	MaxResourcesPerGroup int    `mapstructure:"MAX_RESOURCES_PER_GROUP"`
	GroupCodeMaxAttempts int    `mapstructure:"GROUP_CODE_MAX_ATTEMPTS"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	setDefaults(v)

	// The base file is optional; env vars and defaults are enough to boot.
	_ = v.ReadInConfig()

	env := strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8375")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", "studyhub-api")
	v.SetDefault("JWT_AUDIENCE", "studyhub-client")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "studyhub")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_SQLITE_PATH", "studyhub.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("GROUP_CACHE_TTL_SECONDS", 300)
	v.SetDefault("RESOURCE_ROOT", "resources")
	v.SetDefault("TEMP_UPLOAD_DIR", filepath.Join("resources", "temp"))
	v.SetDefault("MAX_UPLOAD_SIZE_MB", 50)
	v.SetDefault("MAX_RESOURCES_PER_GROUP", 20)
	v.SetDefault("GROUP_CODE_MAX_ATTEMPTS", 5)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
}

// IsProduction reports whether the config targets a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.ResourceRoot == "" || c.TempUploadDir == "" {
		return errors.New("RESOURCE_ROOT and TEMP_UPLOAD_DIR are required")
	}
	if c.MaxUploadSizeMB <= 0 {
		return errors.New("MAX_UPLOAD_SIZE_MB must be positive")
	}
	if c.GroupCodeMaxAttempts <= 0 {
		return errors.New("GROUP_CODE_MAX_ATTEMPTS must be positive")
	}
	if c.TracingEnabled {
		switch c.TracingExporter {
		case "stdout":
		case "otlp":
			if c.OTLPEndpoint == "" {
				return errors.New("OTLP_ENDPOINT is required when TRACING_EXPORTER is otlp")
			}
		default:
			return fmt.Errorf("unsupported TRACING_EXPORTER %q", c.TracingExporter)
		}
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver != "postgres" {
			return errors.New("DB_DRIVER must be postgres in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
