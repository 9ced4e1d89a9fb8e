package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "storefront"

// ObservabilityConfig groups configuration for incident fan-out.
type ObservabilityConfig struct {
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Notifications.Sanitize()
}

// ObservabilityNotificationsConfig controls outbound auth incident notifications.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                    `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration           `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                     `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig `                                                              envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Slack.sanitize()

	if !c.Enabled || c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled       bool   `env:"ENABLED"         envDefault:"false"`
	WebhookURL    string `env:"WEBHOOK_URL"`
	Channel       string `env:"CHANNEL"`
	Username      string `env:"USERNAME"        envDefault:"storefront"`
	UserURLPrefix string `env:"USER_URL_PREFIX"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.UserURLPrefix = strings.TrimSpace(c.UserURLPrefix)
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = defaultObservabilityName
	}
}
