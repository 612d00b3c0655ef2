package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/fraudhawk/internal/models"
	"github.com/telhawk-systems/fraudhawk/internal/severity"
)

func testAlert(sev severity.Severity) *Alert {
	return &Alert{
		ID: "alert-1",
		Transaction: &models.ScoredTransaction{
			TransactionEvent: models.TransactionEvent{
				TransactionID:    "tx-001",
				AccountID:        "acct-42",
				Amount:           9500,
				MerchantCategory: "Gambling",
				Location:         "Unknown City",
				Timestamp:        time.Now().UTC(),
			},
			AnomalyScore: 0.95,
			AlertReason:  "High Value & Suspicious Combo",
			IsAnomaly:    true,
			Status:       models.StatusNew,
		},
		Severity: sev,
	}
}

func TestSlackChannelSend(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewSlackChannel(srv.URL, 5*time.Second)
	require.NoError(t, ch.Send(context.Background(), testAlert(severity.Critical)))

	assert.Contains(t, captured["text"], "CRITICAL")
	attachments := captured["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]interface{})
	assert.Equal(t, "#FF0000", att["color"])

	fields := att["fields"].([]interface{})
	var titles []string
	for _, f := range fields {
		titles = append(titles, f.(map[string]interface{})["title"].(string))
	}
	assert.Contains(t, titles, "Transaction ID")
	assert.Contains(t, titles, "Anomaly Score")
	assert.Contains(t, titles, "Alert Reason")
}

func TestSlackChannelSeverityColors(t *testing.T) {
	tests := []struct {
		sev   severity.Severity
		color string
	}{
		{severity.Critical, "#FF0000"},
		{severity.High, "#FF6600"},
		{severity.Warning, "#FFCC00"},
		{severity.Info, "#0099FF"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.color, slackColor(tt.sev), "severity %s", tt.sev)
	}
}

func TestWebhookChannelSend(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, 5*time.Second)
	require.NoError(t, ch.Send(context.Background(), testAlert(severity.High)))

	assert.Equal(t, "fraud_alert", captured["event"])
	assert.Equal(t, "high", captured["severity"])
	assert.InDelta(t, 0.95, captured["anomaly_score"], 1e-9)
}

func TestWebhookChannelNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, 5*time.Second)
	err := ch.Send(context.Background(), testAlert(severity.High))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestWebhookChannelUnreachable(t *testing.T) {
	ch := NewWebhookChannel("http://127.0.0.1:1", 500*time.Millisecond)
	err := ch.Send(context.Background(), testAlert(severity.High))
	require.Error(t, err)
}

func TestDiscordChannelSend(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := NewDiscordChannel(srv.URL, 5*time.Second)
	require.NoError(t, ch.Send(context.Background(), testAlert(severity.Critical)))

	embeds := captured["embeds"].([]interface{})
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]interface{})
	assert.Contains(t, embed["title"], "CRITICAL")
	assert.EqualValues(t, 16711680, embed["color"])
}

func TestTeamsChannelSend(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewTeamsChannel(srv.URL, 5*time.Second)
	require.NoError(t, ch.Send(context.Background(), testAlert(severity.High)))

	assert.Equal(t, "MessageCard", captured["@type"])
	assert.Contains(t, captured["title"], "HIGH")
	sections := captured["sections"].([]interface{})
	require.Len(t, sections, 1)
}

func TestEmailChannelSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	ch := NewEmailChannel("smtp.example.com", 587, "user", "pass", "alerts@example.com", []string{"ops@example.com"})
	ch.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.NoError(t, ch.Send(context.Background(), testAlert(severity.Critical)))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "alerts@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)

	body := string(gotMsg)
	assert.Contains(t, body, "Subject: Fraud Alert - CRITICAL")
	assert.Contains(t, body, "multipart/alternative")
	assert.Contains(t, body, "Transaction ID: tx-001")
	assert.Contains(t, body, "Alert Reason: High Value & Suspicious Combo")
	assert.Contains(t, body, "text/html")
	assert.Contains(t, body, "<td>tx-001</td>")
}

func TestEmailChannelSendError(t *testing.T) {
	ch := NewEmailChannel("smtp.example.com", 587, "user", "pass", "alerts@example.com", []string{"ops@example.com"})
	ch.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}

	err := ch.Send(context.Background(), testAlert(severity.High))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send email")
}

func TestLogChannelSend(t *testing.T) {
	var logged string
	ch := NewLogChannel(func(format string, v ...interface{}) {
		logged = fmt.Sprintf(format, v...)
	})

	require.NoError(t, ch.Send(context.Background(), testAlert(severity.Critical)))
	assert.True(t, strings.Contains(logged, "tx-001"))
	assert.True(t, strings.Contains(logged, "critical"))
}

func TestChannelTypes(t *testing.T) {
	assert.Equal(t, "slack", NewSlackChannel("", time.Second).Type())
	assert.Equal(t, "discord", NewDiscordChannel("", time.Second).Type())
	assert.Equal(t, "teams", NewTeamsChannel("", time.Second).Type())
	assert.Equal(t, "webhook", NewWebhookChannel("", time.Second).Type())
	assert.Equal(t, "email", NewEmailChannel("", 0, "", "", "", nil).Type())
	assert.Equal(t, "log", NewLogChannel(func(string, ...interface{}) {}).Type())
}
