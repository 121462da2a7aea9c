package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:                 "8080",
		Env:                  "development",
		JWTSecret:            "secure-secret-at-least-32-chars-long",
		DBDriver:             "postgres",
		DBPassword:           "secure-password",
		DBSSLMode:            "require",
		ResourceRoot:         "resources",
		TempUploadDir:        "resources/temp",
		MaxUploadSizeMB:      10,
		GroupCodeMaxAttempts: 5,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"valid development", func(_ *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"sqlite in development", func(c *Config) { c.DBDriver = "sqlite" }, false},
		{"zero upload limit", func(c *Config) { c.MaxUploadSizeMB = 0 }, true},
		{"zero code attempts", func(c *Config) { c.GroupCodeMaxAttempts = 0 }, true},
		{"missing temp dir", func(c *Config) { c.TempUploadDir = "" }, true},
		{"tracing off ignores exporter", func(c *Config) { c.TracingExporter = "jaeger" }, false},
		{"tracing stdout", func(c *Config) {
			c.TracingEnabled = true
			c.TracingExporter = "stdout"
		}, false},
		{"tracing unknown exporter", func(c *Config) {
			c.TracingEnabled = true
			c.TracingExporter = "jaeger"
		}, true},
		{"tracing otlp without endpoint", func(c *Config) {
			c.TracingEnabled = true
			c.TracingExporter = "otlp"
		}, true},
		{"tracing otlp", func(c *Config) {
			c.TracingEnabled = true
			c.TracingExporter = "otlp"
			c.OTLPEndpoint = "localhost:4318"
		}, false},
		{"production valid", func(c *Config) { c.Env = "production" }, false},
		{"production default secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = defaultJWTSecret
		}, true},
		{"production short secret", func(c *Config) {
			c.Env = "prod"
			c.JWTSecret = "short"
		}, true},
		{"production weak db password", func(c *Config) {
			c.Env = "production"
			c.DBPassword = "password"
		}, true},
		{"production ssl disabled", func(c *Config) {
			c.Env = "production"
			c.DBSSLMode = "disable"
		}, true},
		{"production sqlite", func(c *Config) {
			c.Env = "production"
			c.DBDriver = "sqlite"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvOverridesAndNormalization(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("MAX_UPLOAD_SIZE_MB", "12")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "test", c.Env)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, 12, c.MaxUploadSizeMB)
	assert.Equal(t, "resources", c.ResourceRoot)
	assert.Equal(t, 5, c.GroupCodeMaxAttempts)
}
