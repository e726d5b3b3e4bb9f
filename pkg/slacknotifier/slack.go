// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package slacknotifier provides a simple client for sending notifications to Slack
// via Incoming Webhooks.
//
// It supports basic text messages and alert attachments whose colour follows
// the alert severity and whose fields render as short two-column entries.
//
// # Features
//
//   - Simple API for sending messages and alerts
//   - Support for Slack attachments with color-coded severity
//   - Context-aware HTTP requests with configurable timeouts
//   - Graceful handling of disabled notifiers (empty webhook URL)
//
// # Usage
//
//	// Create a new notifier
//	notifier := slacknotifier.New("https://hooks.slack.com/services/...")
//
//	// Check if the notifier is enabled
//	if notifier.IsEnabled() {
//	    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	    defer cancel()
//
//	    // Send a simple message
//	    err := notifier.SendMessage(ctx, "Hello, Slack!")
//	    if err != nil {
//	        log.Fatalf("Failed to send message: %v", err)
//	    }
//
//	    // Send a formatted alert
//	    err = notifier.Notify(ctx, interfaces.Alert{
//	        Severity: interfaces.SeverityWarning,
//	        Title:    "Battery Low",
//	        Text:     "BAT0 is at 12%",
//	        Fields:   []interfaces.AlertField{{Name: "Device", Value: "BAT0"}},
//	    })
//	    if err != nil {
//	        log.Fatalf("Failed to send alert: %v", err)
//	    }
//	}
package slacknotifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/pkg/interfaces"
	"github.com/soothill/battery-data-logger/pkg/logger"
)

// Footer is appended to every alert attachment
const Footer = "Battery Data Logger"

// Notifier sends notifications to Slack via webhook. The webhook can be
// swapped at runtime (config reload), so access is guarded by a mutex.
type Notifier struct {
	mu         sync.RWMutex
	webhookURL string
	client     *http.Client
}

// Message represents a Slack webhook message payload
type Message struct {
	Text        string       `json:"text,omitempty"`
	Blocks      []Block      `json:"blocks,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Block represents a Slack block element
type Block struct {
	Type string `json:"type"`
	Text *Text  `json:"text,omitempty"`
}

// Text represents text within a Slack block
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Attachment represents a Slack attachment
type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Title  string  `json:"title,omitempty"`
	Text   string  `json:"text,omitempty"`
	Fields []Field `json:"fields,omitempty"`
	Footer string  `json:"footer,omitempty"`
	Ts     int64   `json:"ts,omitempty"`
}

// Field is a legacy attachment field
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// New creates a new Slack notifier
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsEnabled returns whether Slack notifications are enabled
func (s *Notifier) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.webhookURL != ""
}

// UpdateWebhookURL updates the webhook URL for the notifier.
func (s *Notifier) UpdateWebhookURL(webhookURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookURL = webhookURL
}

// SendMessage sends a simple text message to Slack
func (s *Notifier) SendMessage(ctx context.Context, message string) error {
	if !s.IsEnabled() {
		logger.Debug().Msg("Slack notifications disabled, skipping message")
		return nil
	}

	payload := Message{
		Text: message,
	}

	return s.sendPayload(ctx, payload)
}

// Notify sends an alert as a single attachment
func (s *Notifier) Notify(ctx context.Context, alert interfaces.Alert) error {
	if !s.IsEnabled() {
		logger.Debug().Str("title", alert.Title).Msg("Slack notifications disabled, skipping alert")
		return nil
	}

	attachment := Attachment{
		Color:  severityToColor(alert.Severity),
		Title:  alert.Title,
		Text:   alert.Text,
		Footer: Footer,
		Ts:     time.Now().Unix(),
	}
	for _, f := range alert.Fields {
		attachment.Fields = append(attachment.Fields, Field{Title: f.Name, Value: f.Value, Short: true})
	}

	return s.sendPayload(ctx, Message{Attachments: []Attachment{attachment}})
}

// sendPayload sends a payload to the Slack webhook
func (s *Notifier) sendPayload(ctx context.Context, payload Message) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.NewNotificationError("slack", fmt.Errorf("failed to marshal payload: %w", err))
	}

	s.mu.RLock()
	webhookURL := s.webhookURL
	s.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.NewNotificationError("slack", fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.NewNotificationError("slack", fmt.Errorf("failed to send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.NewNotificationError("slack", fmt.Errorf("slack webhook returned status %d", resp.StatusCode))
	}

	if len(payload.Attachments) > 0 {
		logger.Debug().Str("title", payload.Attachments[0].Title).Msg("Slack notification sent successfully")
	} else {
		logger.Debug().Str("text", payload.Text).Msg("Slack notification sent successfully")
	}
	return nil
}

// severityToColor maps severities to Slack's named colours; info is grey
func severityToColor(severity interfaces.Severity) string {
	switch severity {
	case interfaces.SeverityDanger, interfaces.SeverityWarning, interfaces.SeverityGood:
		return string(severity)
	default:
		return "#808080"
	}
}
