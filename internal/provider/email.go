package provider

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/textproto"
	"strings"

	"gopkg.in/gomail.v2"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig holds SMTP credentials and the sender identity.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// EmailProvider sends notifications as multipart text/HTML mail over SMTP.
type EmailProvider struct {
	sender  mailSender
	from    string
	subject string
}

func NewEmailProvider(cfg SMTPConfig) *EmailProvider {
	var sender mailSender
	if strings.TrimSpace(cfg.Host) != "" {
		sender = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return newEmailProvider(sender, cfg.From, cfg.Subject)
}

func newEmailProvider(sender mailSender, from, subject string) *EmailProvider {
	if subject == "" {
		subject = "Recordatorio de pago"
	}
	return &EmailProvider{sender: sender, from: strings.TrimSpace(from), subject: subject}
}

func (p *EmailProvider) Name() string { return "Email" }

func (p *EmailProvider) IsConfigured() bool {
	return p != nil && p.sender != nil && p.from != ""
}

func (p *EmailProvider) SendText(ctx context.Context, recipient, message string) (*ProviderResponse, error) {
	return p.send(ctx, recipient, message, textToHTML(message))
}

func (p *EmailProvider) SendWithButton(ctx context.Context, recipient, message, buttonText, buttonURL string) (*ProviderResponse, error) {
	plain := fmt.Sprintf("%s\n\n%s: %s", message, buttonText, buttonURL)
	rich := fmt.Sprintf(`%s<p><a href="%s">%s</a></p>`,
		textToHTML(message), html.EscapeString(buttonURL), html.EscapeString(buttonText))
	return p.send(ctx, recipient, plain, rich)
}

func (p *EmailProvider) send(ctx context.Context, recipient, plain, rich string) (*ProviderResponse, error) {
	if !p.IsConfigured() {
		return nil, NotConfiguredError(p.Name())
	}
	to := strings.TrimSpace(recipient)
	if !strings.Contains(to, "@") {
		return nil, fmt.Errorf("%w: email %q", ErrInvalidRecipient, recipient)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", p.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", p.subject)
	m.SetBody("text/plain", plain)
	m.AddAlternative("text/html", rich)

	if err := p.sender.DialAndSend(m); err != nil {
		return nil, classifySMTPError(err)
	}
	return &ProviderResponse{StatusCode: 250}, nil
}

// classifySMTPError treats 5xx replies as permanent and everything else as transient.
func classifySMTPError(err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return &ProviderError{
			StatusCode: protoErr.Code,
			Message:    "smtp server rejected message",
			Transient:  protoErr.Code < 500,
			Cause:      err,
		}
	}
	return &ProviderError{Message: "smtp delivery failed", Transient: true, Cause: err}
}

func textToHTML(text string) string {
	escaped := html.EscapeString(text)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}
