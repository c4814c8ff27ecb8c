// Package mail sends notification e-mail through SendGrid, or logs it when
// e-mail delivery is disabled.
package mail

import (
	"context"
	"fmt"
	"net/http"
	netmail "net/mail"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Message is a plain e-mail.
type Message struct {
	To          []netmail.Address
	Subject     string
	TextContent string
	HTMLContent string
	Attachments []Attachment
}

// Attachment is a base64 encoded file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Base64      string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Options configure a mailer.
type Options struct {
	APIKey        string
	FromEmail     string
	FromName      string
	SubjectPrefix string
}

// SendgridMailer delivers through the SendGrid v3 API.
type SendgridMailer struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	subjPrefix string
}

// NewSendgridMailer builds a SendGrid mailer.
func NewSendgridMailer(opts Options) *SendgridMailer {
	return &SendgridMailer{
		client:     sendgrid.NewSendClient(opts.APIKey),
		from:       sgmail.NewEmail(opts.FromName, opts.FromEmail),
		subjPrefix: subjectPrefix(opts.SubjectPrefix),
	}
}

// Send posts msg and treats any 4xx/5xx answer as a failure.
func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	res, err := m.client.SendWithContext(ctx, m.prepare(msg))
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (m *SendgridMailer) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		v3.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	for _, a := range msg.Attachments {
		v3.AddAttachment(&sgmail.Attachment{
			Content:     a.Base64,
			Type:        a.ContentType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}
	return v3
}

// LogMailer writes messages to the logger instead of sending them.
type LogMailer struct {
	logger     *zap.Logger
	subjPrefix string
}

// NewLogMailer builds a mailer for development environments.
func NewLogMailer(logger *zap.Logger, prefix string) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger, subjPrefix: subjectPrefix(prefix)}
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.String())
	}
	m.logger.Info("mail",
		zap.Strings("to", to),
		zap.String("subject", m.subjPrefix+msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}

func subjectPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}
