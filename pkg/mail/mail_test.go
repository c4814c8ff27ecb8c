package mail

import (
	"context"
	netmail "net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSendgridPrepare(t *testing.T) {
	m := NewSendgridMailer(Options{APIKey: "key", FromEmail: "noreply@cbhlc.test", FromName: "CBHLC", SubjectPrefix: "CBHLC"})
	v3 := m.prepare(Message{
		To:          []netmail.Address{{Name: "Admin", Address: "admin@cbhlc.test"}},
		Subject:     "Enrollment period activated",
		TextContent: "body",
		Attachments: []Attachment{{Filename: "r.pdf", ContentType: "application/pdf", Base64: "JVBE"}},
	})

	require.Len(t, v3.Personalizations, 1)
	assert.Equal(t, "[CBHLC] Enrollment period activated", v3.Personalizations[0].Subject)
	assert.Equal(t, "admin@cbhlc.test", v3.Personalizations[0].To[0].Address)
	assert.Equal(t, "noreply@cbhlc.test", v3.From.Address)
	require.Len(t, v3.Content, 1)
	require.Len(t, v3.Attachments, 1)
	assert.Equal(t, "attachment", v3.Attachments[0].Disposition)
}

func TestSendgridSkipsEmptyRecipients(t *testing.T) {
	m := NewSendgridMailer(Options{APIKey: "key"})
	assert.NoError(t, m.Send(context.Background(), Message{Subject: "x"}))
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core), "")
	require.NoError(t, m.Send(context.Background(), Message{
		To:      []netmail.Address{{Address: "a@b.test"}},
		Subject: "hello",
	}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "hello", logs.All()[0].ContextMap()["subject"])
}
