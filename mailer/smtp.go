// Package mailer delivers signup confirmation links over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/go-mail/mail"
	"go.uber.org/zap"
)

// TokenPlaceholder is replaced by the confirmation token in ConfirmURL.
const TokenPlaceholder = "{token}"

// Config describes the SMTP relay and the confirmation message.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// TLSMode is "starttls" (default), "ssl" or "none".
	TLSMode            string `yaml:"tls_mode"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	Subject            string `yaml:"subject"`
	// ConfirmURL must contain TokenPlaceholder.
	ConfirmURL string `yaml:"confirm_url"`
}

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPNotifier implements goGuard.Notifier.
type SMTPNotifier struct {
	cfg    Config
	dialer sender
	logger *zap.Logger
}

var _ goGuard.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier validates cfg and prepares a dialer.
func NewSMTPNotifier(cfg Config, logger *zap.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("mailer: host and port required")
	}
	if cfg.From == "" {
		return nil, errors.New("mailer: from address required")
	}
	if !strings.Contains(cfg.ConfirmURL, TokenPlaceholder) {
		return nil, fmt.Errorf("mailer: confirm url must contain %s", TokenPlaceholder)
	}
	if cfg.Subject == "" {
		cfg.Subject = "Confirm your account"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	switch cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "", "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	default:
		return nil, fmt.Errorf("mailer: unknown tls mode %q", cfg.TLSMode)
	}

	return &SMTPNotifier{cfg: cfg, dialer: d, logger: logger.Named("mailer")}, nil
}

// SendConfirmation mails the confirmation link to user.Email.
func (n *SMTPNotifier) SendConfirmation(ctx context.Context, user *goGuard.User, token string) error {
	if user == nil || user.Email == "" {
		return errors.New("mailer: user has no email")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	link := strings.ReplaceAll(n.cfg.ConfirmURL, TokenPlaceholder, token)
	m := n.message(user, link)

	if err := n.dialer.DialAndSend(m); err != nil {
		n.logger.Error("confirmation mail failed", zap.String("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	n.logger.Debug("confirmation mail sent", zap.String("user_id", user.ID))
	return nil
}

func (n *SMTPNotifier) message(user *goGuard.User, link string) *mail.Message {
	m := mail.NewMessage(mail.SetEncoding(mail.Unencoded))
	m.SetHeader("From", n.cfg.From)
	m.SetAddressHeader("To", user.Email, user.DisplayName)
	m.SetHeader("Subject", n.cfg.Subject)

	name := user.DisplayName
	if name == "" {
		name = "there"
	}
	m.SetBody("text/plain", fmt.Sprintf("Hi %s,\n\nConfirm your account by opening:\n%s\n", name, link))
	m.AddAlternative("text/html", fmt.Sprintf(`<p>Hi %s,</p><p><a href="%s">Confirm your account</a></p>`, htmlEscape(name), link))
	return m
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;")

func htmlEscape(s string) string {
	return htmlReplacer.Replace(s)
}
