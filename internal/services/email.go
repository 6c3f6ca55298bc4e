package services

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

type EmailService struct {
	host        string
	port        string
	user        string
	pass        string
	from        string
	frontendURL string
	devMode     bool
	logger      *zap.Logger
}

func NewEmailService(host, port, user, pass, from, frontendURL string, logger *zap.Logger) *EmailService {
	devMode := host == "" || user == ""
	if devMode {
		logger.Warn("email service running in dev mode, messages are logged instead of sent")
	}
	return &EmailService{
		host:        host,
		port:        port,
		user:        user,
		pass:        pass,
		from:        from,
		frontendURL: frontendURL,
		devMode:     devMode,
		logger:      logger,
	}
}

// emailLayout wraps a message body in the branded card used by every email.
func emailLayout(heading, bodyHTML string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #fdf8f3;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: linear-gradient(135deg, #f97316 0%%, #ec4899 100%%); padding: 32px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 24px; font-weight: 700;">create3x</h1>
      <p style="color: rgba(255,255,255,0.85); margin: 8px 0 0; font-size: 14px;">Color. Technique. Medium.</p>
    </div>
    <div style="padding: 32px;">
      <h2 style="margin: 0 0 16px; font-size: 20px; color: #1e293b;">%s</h2>
      %s
    </div>
  </div>
</body>
</html>`, heading, bodyHTML)
}

func emailButton(href, label string) string {
	return fmt.Sprintf(`<a href="%s" style="display: inline-block; background: #f97316; color: white; text-decoration: none; padding: 12px 32px; border-radius: 8px; font-weight: 600; font-size: 14px;">%s</a>`, href, label)
}

func emailParagraph(text string) string {
	return fmt.Sprintf(`<p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 24px;">%s</p>`, text)
}

func emailFootnote(text string) string {
	return fmt.Sprintf(`<p style="color: #94a3b8; font-size: 12px; margin: 24px 0 0; line-height: 1.5;">%s</p>`, text)
}

func (s *EmailService) SendVerificationEmail(to, token string) error {
	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.frontendURL, token)

	body := emailLayout("Verify Your Email",
		emailParagraph("Welcome to create3x! Verify your email address to start your first creative session.")+
			emailButton(verifyURL, "Verify Email")+
			emailFootnote(fmt.Sprintf(`If the button doesn't work, open this link:<br><a href="%s" style="color: #f97316;">%s</a><br>This link expires in 24 hours.`, verifyURL, verifyURL)))

	return s.sendHTML(to, "Verify your create3x account", body)
}

func (s *EmailService) SendPasswordResetEmail(to, token string) error {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)

	body := emailLayout("Reset Your Password",
		emailParagraph("We received a request to reset your password. Use the button below to choose a new one.")+
			emailButton(resetURL, "Reset Password")+
			emailFootnote("If you didn't request this, you can ignore this email. This link expires in 1 hour."))

	return s.sendHTML(to, "Reset your create3x password", body)
}

func (s *EmailService) SendWeeklyDigestEmail(to, fullName string, sessions, turns int) error {
	greeting := "Hi there"
	if strings.TrimSpace(fullName) != "" {
		greeting = "Hi " + fullName
	}

	body := emailLayout("Your Week in Color",
		emailParagraph(fmt.Sprintf("%s, this week you finished <strong>%d</strong> %s and explored <strong>%d</strong> %s.",
			greeting, sessions, plural(sessions, "session", "sessions"), turns, plural(turns, "prompt", "prompts")))+
			emailButton(s.frontendURL+"/dashboard", "See Your Progress")+
			emailFootnote("You can turn off weekly digests in your notification settings."))

	return s.sendHTML(to, "Your create3x weekly digest", body)
}

func (s *EmailService) SendCreativeReminderEmail(to, fullName string, lastSessionAt *time.Time) error {
	line := "Your palette is waiting. Start a quick session and see what three random prompts bring."
	if lastSessionAt != nil {
		line = fmt.Sprintf("Your last session was on %s. A quick three-prompt round is a great way back in.",
			lastSessionAt.UTC().Format("January 2"))
	}
	if strings.TrimSpace(fullName) != "" {
		line = fullName + ", " + strings.ToLower(line[:1]) + line[1:]
	}

	body := emailLayout("Time to Create",
		emailParagraph(line)+
			emailButton(s.frontendURL+"/play", "Start a Session")+
			emailFootnote("You can turn off creative reminders in your notification settings."))

	return s.sendHTML(to, "Ready for a creative session?", body)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func (s *EmailService) sendHTML(to, subject, htmlBody string) error {
	if s.devMode {
		s.logger.Info("dev email", zap.String("to", to), zap.String("subject", subject))
		s.logger.Debug("dev email body", zap.String("body", htmlBody))
		return nil
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	s.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
