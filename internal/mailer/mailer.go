// Package mailer sends transactional emails. Only a logging transport ships
// with the service; template rendering is left to the delivery provider.
package mailer

import (
	"context"
	"strings"
	"sync"

	"github.com/nikhil/doussel/internal/logger"
)

// Email is a plain message addressed to one recipient.
type Email struct {
	To       string            `json:"to"`
	CC       []string          `json:"cc,omitempty"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// Mailer delivers emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// LogMailer writes every email to the log instead of delivering it.
type LogMailer struct {
	Log *logger.Logger
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{Log: log}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	m.Log.WithContext(ctx).Info("Email queued",
		"to", email.To,
		"cc", strings.Join(email.CC, ","),
		"subject", email.Subject,
		"template", email.Template,
	)
	return nil
}

// Recorder keeps sent emails in memory. Tests use it to assert on deliveries.
type Recorder struct {
	mu   sync.Mutex
	Sent []Email
	Err  error
}

func (r *Recorder) Send(_ context.Context, email Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Sent = append(r.Sent, email)
	return nil
}

// Emails returns a copy of what was sent so far.
func (r *Recorder) Emails() []Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Email(nil), r.Sent...)
}
