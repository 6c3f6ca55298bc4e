package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEmailServiceDevModeLogsInsteadOfSending(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc := NewEmailService("", "587", "", "", "noreply@create3x.app", "http://localhost:5173", zap.New(core))

	require.NoError(t, svc.SendVerificationEmail("a@example.com", "tok"))
	require.NoError(t, svc.SendPasswordResetEmail("a@example.com", "tok"))
	require.NoError(t, svc.SendWeeklyDigestEmail("a@example.com", "Ada", 2, 9))
	last := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.SendCreativeReminderEmail("a@example.com", "", &last))

	sent := logs.FilterMessage("dev email").All()
	require.Len(t, sent, 4)
	assert.Equal(t, "Verify your create3x account", sent[0].ContextMap()["subject"])
	assert.Equal(t, "Reset your create3x password", sent[1].ContextMap()["subject"])
	assert.Equal(t, 1, logs.FilterMessageSnippet("dev mode").Len())
}

func TestEmailLayoutIncludesHeadingAndBody(t *testing.T) {
	html := emailLayout("Time to Create", emailParagraph("hello"))
	assert.Contains(t, html, "Time to Create")
	assert.Contains(t, html, ">hello</p>")
	assert.Contains(t, html, "0%")
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "session", plural(1, "session", "sessions"))
	assert.Equal(t, "sessions", plural(0, "session", "sessions"))
	assert.Equal(t, "sessions", plural(3, "session", "sessions"))
}
