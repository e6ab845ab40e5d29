// Package notify delivers mail to tenants and admins and keeps password
// reset codes.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Mail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// NewMailer picks an implementation by provider name. A webhook provider
// without a URL falls back to logging.
func NewMailer(provider, webhookURL, token string, log logrus.FieldLogger) Mailer {
	switch strings.ToLower(provider) {
	case "webhook":
		if webhookURL == "" {
			return LogMailer{log: log}
		}
		return &WebhookMailer{
			URL:    webhookURL,
			Token:  token,
			Client: &http.Client{Timeout: 5 * time.Second},
		}
	case "noop":
		return noopMailer{}
	default:
		return LogMailer{log: log}
	}
}

// LogMailer writes mails to the log instead of sending them.
type LogMailer struct {
	log logrus.FieldLogger
}

func NewLogMailer(log logrus.FieldLogger) LogMailer {
	return LogMailer{log: log}
}

func (m LogMailer) Send(_ context.Context, mail Mail) error {
	m.log.WithFields(logrus.Fields{
		"to":      strings.Join(mail.To, ","),
		"subject": mail.Subject,
	}).Info(mail.Body)
	return nil
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, Mail) error { return nil }

// WebhookMailer posts the mail as JSON to a relay such as a transactional
// mail provider's HTTP API.
type WebhookMailer struct {
	URL    string
	Token  string
	Client *http.Client
}

func (m *WebhookMailer) Send(ctx context.Context, mail Mail) error {
	body, err := json.Marshal(mail)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.Token)
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail relay rejected request: %s", resp.Status)
	}
	return nil
}
