package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"firewatch/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfig(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Database: config.DatabaseConfig{Host: "localhost", Port: 3306, Database: "firewatch"},
			Server:   config.ServerConfig{Port: 8080},
			Auth:     config.AuthConfig{JWTSecret: "short", TokenTTL: time.Hour},
			Observability: config.ObservabilityConfig{
				Logging: config.LoggingConfig{Level: "info", Format: "json"},
			},
		}
	}

	t.Run("warnings are logged but pass", func(t *testing.T) {
		var buf bytes.Buffer
		err := checkConfig(base(), slog.New(slog.NewTextHandler(&buf, nil)))
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "auth.jwt_secret")
		assert.Contains(t, buf.String(), "level=WARN")
	})

	t.Run("errors fail", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		var buf bytes.Buffer
		err := checkConfig(cfg, slog.New(slog.NewTextHandler(&buf, nil)))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.port")
		assert.True(t, strings.Contains(buf.String(), "level=ERROR"))
	})
}
