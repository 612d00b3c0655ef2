// Package notification fans fraud alerts out to independent delivery
// channels with per-channel retry.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/telhawk-systems/fraudhawk/internal/models"
	"github.com/telhawk-systems/fraudhawk/internal/severity"
)

// Alert is the payload delivered to notification channels. Severity is
// recomputed at dispatch time and never persisted.
type Alert struct {
	ID          string
	Transaction *models.ScoredTransaction
	Severity    severity.Severity
}

// Channel defines the interface for alert notification delivery.
type Channel interface {
	Send(ctx context.Context, alert *Alert) error
	Type() string
}

// WebhookChannel sends alert notifications to a generic HTTP endpoint.
type WebhookChannel struct {
	URL     string
	Timeout time.Duration
	client  *http.Client
}

// NewWebhookChannel creates a generic webhook notification channel.
func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		URL:     url,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (w *WebhookChannel) Type() string {
	return "webhook"
}

func (w *WebhookChannel) Send(ctx context.Context, alert *Alert) error {
	payload := map[string]interface{}{
		"event":         "fraud_alert",
		"alert_id":      alert.ID,
		"severity":      alert.Severity.String(),
		"transaction":   alert.Transaction,
		"anomaly_score": alert.Transaction.AnomalyScore,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	return postJSON(ctx, w.client, w.URL, payload, "webhook")
}

// SlackChannel sends alert notifications to Slack via webhook.
type SlackChannel struct {
	WebhookURL string
	Timeout    time.Duration
	client     *http.Client
}

// NewSlackChannel creates a Slack notification channel.
func NewSlackChannel(webhookURL string, timeout time.Duration) *SlackChannel {
	return &SlackChannel{
		WebhookURL: webhookURL,
		Timeout:    timeout,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *SlackChannel) Type() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, alert *Alert) error {
	tx := alert.Transaction

	payload := map[string]interface{}{
		"text": fmt.Sprintf("%s *Fraud Alert - %s*", slackEmoji(alert.Severity), strings.ToUpper(alert.Severity.String())),
		"attachments": []map[string]interface{}{
			{
				"color": slackColor(alert.Severity),
				"fields": []map[string]interface{}{
					{"title": "Transaction ID", "value": tx.TransactionID, "short": true},
					{"title": "Anomaly Score", "value": fmt.Sprintf("%.2f", tx.AnomalyScore), "short": true},
					{"title": "Amount", "value": fmt.Sprintf("%.2f", tx.Amount), "short": true},
					{"title": "Account ID", "value": tx.AccountID, "short": true},
					{"title": "Merchant Category", "value": tx.MerchantCategory, "short": true},
					{"title": "Location", "value": tx.Location, "short": true},
					{"title": "Alert Reason", "value": tx.AlertReason, "short": false},
				},
				"footer": "FraudHawk",
				"ts":     time.Now().Unix(),
			},
		},
	}
	return postJSON(ctx, s.client, s.WebhookURL, payload, "slack")
}

// DiscordChannel sends alert notifications to Discord via webhook.
type DiscordChannel struct {
	WebhookURL string
	Timeout    time.Duration
	client     *http.Client
}

// NewDiscordChannel creates a Discord notification channel.
func NewDiscordChannel(webhookURL string, timeout time.Duration) *DiscordChannel {
	return &DiscordChannel{
		WebhookURL: webhookURL,
		Timeout:    timeout,
		client:     &http.Client{Timeout: timeout},
	}
}

func (d *DiscordChannel) Type() string {
	return "discord"
}

func (d *DiscordChannel) Send(ctx context.Context, alert *Alert) error {
	tx := alert.Transaction

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title": fmt.Sprintf("Fraud Alert - %s", strings.ToUpper(alert.Severity.String())),
				"color": discordColor(alert.Severity),
				"fields": []map[string]interface{}{
					{"name": "Transaction ID", "value": tx.TransactionID, "inline": true},
					{"name": "Anomaly Score", "value": fmt.Sprintf("%.2f", tx.AnomalyScore), "inline": true},
					{"name": "Amount", "value": fmt.Sprintf("%.2f", tx.Amount), "inline": true},
					{"name": "Account ID", "value": tx.AccountID, "inline": true},
					{"name": "Category", "value": tx.MerchantCategory, "inline": true},
					{"name": "Location", "value": tx.Location, "inline": true},
					{"name": "Alert Reason", "value": tx.AlertReason, "inline": false},
				},
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"footer":    map[string]string{"text": "FraudHawk"},
			},
		},
	}
	return postJSON(ctx, d.client, d.WebhookURL, payload, "discord")
}

// TeamsChannel sends alert notifications to Microsoft Teams via webhook.
type TeamsChannel struct {
	WebhookURL string
	Timeout    time.Duration
	client     *http.Client
}

// NewTeamsChannel creates a Microsoft Teams notification channel.
func NewTeamsChannel(webhookURL string, timeout time.Duration) *TeamsChannel {
	return &TeamsChannel{
		WebhookURL: webhookURL,
		Timeout:    timeout,
		client:     &http.Client{Timeout: timeout},
	}
}

func (t *TeamsChannel) Type() string {
	return "teams"
}

func (t *TeamsChannel) Send(ctx context.Context, alert *Alert) error {
	tx := alert.Transaction

	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "https://schema.org/extensions",
		"summary":    fmt.Sprintf("Fraud Alert - %s", strings.ToUpper(alert.Severity.String())),
		"themeColor": teamsTheme(alert.Severity),
		"title":      fmt.Sprintf("Fraud Alert - %s", strings.ToUpper(alert.Severity.String())),
		"sections": []map[string]interface{}{
			{
				"facts": []map[string]string{
					{"name": "Transaction ID", "value": tx.TransactionID},
					{"name": "Anomaly Score", "value": fmt.Sprintf("%.2f", tx.AnomalyScore)},
					{"name": "Amount", "value": fmt.Sprintf("%.2f", tx.Amount)},
					{"name": "Account ID", "value": tx.AccountID},
					{"name": "Category", "value": tx.MerchantCategory},
					{"name": "Location", "value": tx.Location},
					{"name": "Alert Reason", "value": tx.AlertReason},
				},
			},
		},
	}
	return postJSON(ctx, t.client, t.WebhookURL, payload, "teams")
}

// EmailChannel sends alert notifications over SMTP.
type EmailChannel struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string

	// sendMail is swappable for tests; defaults to smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel creates an SMTP notification channel.
func NewEmailChannel(host string, port int, username, password, from string, to []string) *EmailChannel {
	return &EmailChannel{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		To:       to,
		sendMail: smtp.SendMail,
	}
}

func (e *EmailChannel) Type() string {
	return "email"
}

func (e *EmailChannel) Send(ctx context.Context, alert *Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := alert.Transaction

	subject := fmt.Sprintf("Fraud Alert - %s: %.2f", strings.ToUpper(alert.Severity.String()), tx.Amount)
	plain := fmt.Sprintf(
		"High-risk fraud transaction detected:\r\n\r\n"+
			"Transaction ID: %s\r\n"+
			"Anomaly Score: %.2f\r\n"+
			"Amount: %.2f\r\n"+
			"Account ID: %s\r\n"+
			"Merchant Category: %s\r\n"+
			"Location: %s\r\n"+
			"Alert Reason: %s\r\n"+
			"Severity: %s\r\n\r\n"+
			"Please investigate immediately.\r\n",
		tx.TransactionID, tx.AnomalyScore, tx.Amount, tx.AccountID,
		tx.MerchantCategory, tx.Location, tx.AlertReason,
		strings.ToUpper(alert.Severity.String()),
	)
	html := fmt.Sprintf(
		"<html><body>"+
			"<h2 style=\"color:%s\">Fraud Alert - %s</h2>"+
			"<table>"+
			"<tr><td><b>Transaction ID</b></td><td>%s</td></tr>"+
			"<tr><td><b>Anomaly Score</b></td><td>%.2f</td></tr>"+
			"<tr><td><b>Amount</b></td><td>%.2f</td></tr>"+
			"<tr><td><b>Account ID</b></td><td>%s</td></tr>"+
			"<tr><td><b>Merchant Category</b></td><td>%s</td></tr>"+
			"<tr><td><b>Location</b></td><td>%s</td></tr>"+
			"<tr><td><b>Alert Reason</b></td><td>%s</td></tr>"+
			"</table>"+
			"<p>Please investigate immediately.</p>"+
			"</body></html>",
		slackColor(alert.Severity), strings.ToUpper(alert.Severity.String()),
		tx.TransactionID, tx.AnomalyScore, tx.Amount, tx.AccountID,
		tx.MerchantCategory, tx.Location, tx.AlertReason,
	)

	const boundary = "fraudhawk-alert"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", e.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%s\r\n", boundary)
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(plain)
	fmt.Fprintf(&msg, "\r\n--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	msg.WriteString(html)
	fmt.Fprintf(&msg, "\r\n--%s--\r\n", boundary)

	addr := fmt.Sprintf("%s:%d", e.Host, e.Port)
	auth := smtp.PlainAuth("", e.Username, e.Password, e.Host)

	if err := e.sendMail(addr, auth, e.From, e.To, msg.Bytes()); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// LogChannel writes alert notifications to logs (for testing/debugging).
type LogChannel struct {
	logger func(format string, v ...interface{})
}

// NewLogChannel creates a log-based notification channel.
func NewLogChannel(logger func(format string, v ...interface{})) *LogChannel {
	return &LogChannel{logger: logger}
}

func (l *LogChannel) Type() string {
	return "log"
}

func (l *LogChannel) Send(ctx context.Context, alert *Alert) error {
	l.logger("FRAUD ALERT: %s (severity=%s, score=%.2f, amount=%.2f, reason=%s)",
		alert.Transaction.TransactionID, alert.Severity,
		alert.Transaction.AnomalyScore, alert.Transaction.Amount,
		alert.Transaction.AlertReason)
	return nil
}

// postJSON marshals payload and POSTs it, treating any non-2xx response as
// an error.
func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}, kind string) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create %s request: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "FraudHawk/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s notification: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s webhook returned status %d", kind, resp.StatusCode)
	}

	return nil
}

func slackColor(s severity.Severity) string {
	switch s {
	case severity.Critical:
		return "#FF0000"
	case severity.High:
		return "#FF6600"
	case severity.Warning:
		return "#FFCC00"
	default:
		return "#0099FF"
	}
}

func slackEmoji(s severity.Severity) string {
	switch s {
	case severity.Critical:
		return ":rotating_light:"
	case severity.High:
		return ":warning:"
	case severity.Warning:
		return ":zap:"
	default:
		return ":information_source:"
	}
}

func discordColor(s severity.Severity) int {
	switch s {
	case severity.Critical:
		return 16711680
	case severity.High:
		return 16737792
	case severity.Warning:
		return 16776960
	default:
		return 43775
	}
}

func teamsTheme(s severity.Severity) string {
	switch s {
	case severity.Critical:
		return "FF0000"
	case severity.High:
		return "FF6600"
	case severity.Warning:
		return "FFCC00"
	default:
		return "0099FF"
	}
}
