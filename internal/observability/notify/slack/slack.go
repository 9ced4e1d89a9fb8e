// Package slack posts auth incidents to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/target/storefront/internal/observability/notify"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultUsername = "storefront"
	retryStep       = 200 * time.Millisecond
	maxErrorBody    = 1 << 10
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL    string
	Channel       string
	Username      string
	Timeout       time.Duration
	RetryLimit    int
	Client        *http.Client
	UserURLPrefix string // admin page for a user id, e.g. https://shop.example/admin/users
}

// Client delivers auth incident notifications to a Slack webhook.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
	if cfg.WebhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.RetryLimit = max(cfg.RetryLimit, 0)
	cfg.Channel = strings.TrimSpace(cfg.Channel)
	cfg.Username = strings.TrimSpace(cfg.Username)
	if cfg.Username == "" {
		cfg.Username = defaultUsername
	}
	cfg.UserURLPrefix = strings.TrimSpace(cfg.UserURLPrefix)

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc}, nil
}

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type block struct {
	Type   string       `json:"type"`
	Text   *textObject  `json:"text,omitempty"`
	Fields []textObject `json:"fields,omitempty"`
}

type message struct {
	Text     string  `json:"text"`
	Username string  `json:"username"`
	Channel  string  `json:"channel,omitempty"`
	Blocks   []block `json:"blocks"`
}

// SendAuthIncident posts payload, retrying failed deliveries RetryLimit times
// with a linear backoff.
func (c *Client) SendAuthIncident(ctx context.Context, payload notify.AuthIncidentPayload) error {
	body, err := json.Marshal(c.buildMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryLimit; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, time.Duration(attempt)*retryStep); err != nil {
				return err
			}
		}
		if lastErr = c.post(ctx, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(detail)))
}

// buildMessage renders payload as a header section plus one field per
// populated attribute. Text carries the same summary for notification previews.
func (c *Client) buildMessage(payload notify.AuthIncidentPayload) message {
	at := payload.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	severity := payload.Severity
	if severity == "" {
		severity = notify.SeverityWarning
	}

	title := "*Auth incident*"
	if payload.Kind != "" {
		title += " `" + string(payload.Kind) + "`"
	}

	var fields []textObject
	addField := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fields = append(fields, textObject{Type: "mrkdwn", Text: "*" + label + "*\n" + value})
		}
	}
	addField("Severity", severity)
	addField("User", c.userValue(payload.UserID, payload.Email))
	addField("Client", payload.ClientID)
	addField("Error class", payload.ErrorClass)
	addField("Error", escape(payload.Error))
	addField("Metadata", metadataLines(payload.Metadata))
	addField("Occurred", at.UTC().Format(time.RFC3339))

	blocks := []block{{Type: "section", Text: &textObject{Type: "mrkdwn", Text: title}}}
	if len(fields) > 0 {
		blocks = append(blocks, block{Type: "section", Fields: fields})
	}

	return message{
		Text:     fmt.Sprintf("Auth incident %s (%s)", payload.Kind, severity),
		Username: c.cfg.Username,
		Channel:  c.cfg.Channel,
		Blocks:   blocks,
	}
}

// userValue links the user id to the admin page when a prefix is configured.
func (c *Client) userValue(userID, email string) string {
	id := strings.TrimSpace(userID)
	name := escape(strings.TrimSpace(email))
	if id == "" {
		return name
	}

	label := escape(id)
	if link := c.userLink(id); link != "" {
		label = "<" + link + "|" + label + ">"
	}
	if name == "" {
		return label
	}
	return name + " (" + label + ")"
}

func (c *Client) userLink(userID string) string {
	if c.cfg.UserURLPrefix == "" {
		return ""
	}
	u, err := url.Parse(c.cfg.UserURLPrefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.JoinPath(userID).String()
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return slackEscaper.Replace(s)
}

func metadataLines(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(escape(k))
		b.WriteString(": ")
		b.WriteString(escape(metadata[k]))
	}
	return b.String()
}
