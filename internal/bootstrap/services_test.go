package bootstrap

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/storefront/config"
)

func TestBuildFailureNotifier(t *testing.T) {
	t.Run("disabled has no sinks", func(t *testing.T) {
		svc := buildFailureNotifier(quietLogger(), config.ObservabilityNotificationsConfig{
			Slack: config.SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.slack.test/x"},
		})
		assert.False(t, svc.Enabled())
	})

	t.Run("slack sink registered", func(t *testing.T) {
		svc := buildFailureNotifier(quietLogger(), config.ObservabilityNotificationsConfig{
			Enabled:    true,
			RetryLimit: 1,
			Slack: config.SlackNotificationConfig{
				Enabled:    true,
				WebhookURL: "https://hooks.slack.test/x",
				Username:   "storefront",
			},
		})
		assert.True(t, svc.Enabled())
	})

	t.Run("invalid slack config is skipped", func(t *testing.T) {
		svc := buildFailureNotifier(quietLogger(), config.ObservabilityNotificationsConfig{
			Enabled: true,
			Slack:   config.SlackNotificationConfig{Enabled: true},
		})
		assert.False(t, svc.Enabled())
	})
}

func TestNewServices_RequiresInfrastructure(t *testing.T) {
	_, err := NewServices(context.Background(), ServiceDeps{Config: &config.AppConfig{}})
	require.Error(t, err)
}

func TestTemplateFS_Embedded(t *testing.T) {
	fsys, err := TemplateFS(false)
	require.NoError(t, err)

	_, err = fs.Stat(fsys, "layout.tmpl")
	require.NoError(t, err)
	pages, err := fs.Glob(fsys, "pages/*.tmpl")
	require.NoError(t, err)
	assert.NotEmpty(t, pages)
}

func TestNewHTTPServer_DefaultAddr(t *testing.T) {
	srv := NewHTTPServer(config.HTTPConfig{ReadTimeout: 1, WriteTimeout: 2}, nil)
	assert.Equal(t, ":8080", srv.Addr)
	assert.EqualValues(t, 1, srv.ReadTimeout)
	assert.EqualValues(t, 2, srv.WriteTimeout)
}

func TestRunServicesWithShutdown_RequiresRegistry(t *testing.T) {
	err := RunServicesWithShutdown(context.Background(), RunConfig{Config: &config.AppConfig{}})
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel(" Warning ").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("").String())
}

func TestLoadConfig(t *testing.T) {
	t.Run("dev mode fills the token secret", func(t *testing.T) {
		t.Setenv("DEV", "true")
		t.Setenv("AUTH_TOKEN_SECRET", "")
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.True(t, cfg.IsDev)
		assert.NotEmpty(t, cfg.Auth.TokenSecret)
	})

	t.Run("production requires a token secret", func(t *testing.T) {
		t.Setenv("DEV", "false")
		t.Setenv("NODE_ENV", "production")
		t.Setenv("AUTH_TOKEN_SECRET", "")
		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("bad auth mode", func(t *testing.T) {
		t.Setenv("AUTH_MODE", "saml")
		_, err := LoadConfig()
		require.Error(t, err)
	})
}
