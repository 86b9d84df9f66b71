package provider

import (
	"bytes"
	"context"
	"errors"
	"net/textproto"
	"strings"
	"testing"

	"gopkg.in/gomail.v2"
)

type fakeMailSender struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeMailSender) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmailProviderSendWithButton(t *testing.T) {
	t.Parallel()

	sender := &fakeMailSender{}
	p := newEmailProvider(sender, "cobranzas@coop.pe", "")

	if _, err := p.SendWithButton(context.Background(), "socio@mail.pe", "Hola <Ana>", "Pagar ahora", "https://pay.local/x"); err != nil {
		t.Fatalf("SendWithButton() error = %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sender.sent))
	}

	msg := sender.sent[0]
	if got := msg.GetHeader("To"); len(got) != 1 || got[0] != "socio@mail.pe" {
		t.Fatalf("To = %v", got)
	}
	if got := msg.GetHeader("Subject"); len(got) != 1 || got[0] != "Recordatorio de pago" {
		t.Fatalf("Subject = %v", got)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	raw := buf.String()
	if !strings.Contains(raw, "Pagar ahora: https://pay.local/x") {
		t.Fatal("plain text part should carry the link")
	}
	if !strings.Contains(raw, "Hola &lt;Ana&gt;") {
		t.Fatal("html part should escape the message")
	}
}

func TestEmailProviderErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewEmailProvider(SMTPConfig{}).SendText(context.Background(), "a@b.pe", "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("SendText() error = %v, want ErrNotConfigured", err)
	}

	p := newEmailProvider(&fakeMailSender{}, "from@coop.pe", "")
	if _, err := p.SendText(context.Background(), "no-at-sign", "x"); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("SendText() error = %v, want ErrInvalidRecipient", err)
	}

	permanent := newEmailProvider(&fakeMailSender{err: &textproto.Error{Code: 550, Msg: "mailbox unavailable"}}, "from@coop.pe", "")
	_, err := permanent.SendText(context.Background(), "a@b.pe", "x")
	if err == nil || IsTransient(err) {
		t.Fatalf("SendText() error = %v, want permanent error", err)
	}

	transient := newEmailProvider(&fakeMailSender{err: &textproto.Error{Code: 421, Msg: "try later"}}, "from@coop.pe", "")
	_, err = transient.SendText(context.Background(), "a@b.pe", "x")
	if !IsTransient(err) {
		t.Fatalf("SendText() error = %v, want transient error", err)
	}
}
