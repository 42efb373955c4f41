package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPMailer_DisabledWithoutHost(t *testing.T) {
	assert.Nil(t, NewSMTPMailer(SMTPConfig{}))

	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"})
	require.NotNil(t, m)
	assert.Equal(t, "noreply@example.com", m.from)
}

func TestSMTPMailer_SendSkipsDialing(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: 1})

	assert.NoError(t, m.Send(context.Background(), Message{Subject: "no recipients"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Send(ctx, Message{To: []string{"a@example.com"}})
	assert.ErrorIs(t, err, context.Canceled)
}
