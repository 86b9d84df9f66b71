package domain

import (
	"errors"
	"testing"
)

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "valid uppercase", input: "SENT", want: StatusSent},
		{name: "valid lowercase with spaces", input: " pending ", want: StatusPending},
		{name: "invalid", input: "queued", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseChannelFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseChannelFromString(" whatsapp ")
	if err != nil {
		t.Fatalf("ParseChannelFromString() unexpected error = %v", err)
	}
	if got != ChannelWhatsApp {
		t.Fatalf("ParseChannelFromString() = %s, want %s", got, ChannelWhatsApp)
	}

	_, err = ParseChannelFromString("fax")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseChannelFromString() error = %v, want ErrValidation", err)
	}
}

func TestRecipientContactIdentifierFor(t *testing.T) {
	t.Parallel()

	full := RecipientContact{Email: "ana@example.com", Phone: "987654321", TelegramID: "@ana"}
	phoneOnly := RecipientContact{Phone: "987654321"}

	tests := []struct {
		name    string
		contact RecipientContact
		channel Channel
		want    string
	}{
		{name: "whatsapp uses phone", contact: full, channel: ChannelWhatsApp, want: "987654321"},
		{name: "sms uses phone", contact: full, channel: ChannelSMS, want: "987654321"},
		{name: "email uses email", contact: full, channel: ChannelEmail, want: "ana@example.com"},
		{name: "telegram prefers telegram id", contact: full, channel: ChannelTelegram, want: "@ana"},
		{name: "telegram falls back to phone", contact: phoneOnly, channel: ChannelTelegram, want: "987654321"},
		{name: "email missing", contact: phoneOnly, channel: ChannelEmail, want: ""},
		{name: "unknown channel", contact: full, channel: Channel("FAX"), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.contact.IdentifierFor(tt.channel); got != tt.want {
				t.Fatalf("IdentifierFor(%s) = %q, want %q", tt.channel, got, tt.want)
			}
		})
	}
}

func TestNotificationClaimable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   Status
		attempts int
		retries  int
		want     bool
	}{
		{name: "first delivery of pending", status: StatusPending, attempts: 0, retries: 0, want: true},
		{name: "duplicate of in-flight first attempt", status: StatusPending, attempts: 1, retries: 0, want: false},
		{name: "retry of failed", status: StatusFailed, attempts: 1, retries: 1, want: true},
		{name: "stale retry after reset", status: StatusPending, attempts: 0, retries: 1, want: false},
		{name: "re-enqueue of interrupted attempt", status: StatusPending, attempts: 1, retries: 1, want: true},
		{name: "sent is never claimable", status: StatusSent, attempts: 1, retries: 1, want: false},
		{name: "cancelled is never claimable", status: StatusCancelled, attempts: 0, retries: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n := Notification{Status: tt.status, AttemptCount: tt.attempts}
			if got := n.Claimable(tt.retries); got != tt.want {
				t.Fatalf("Claimable(%d) = %v, want %v", tt.retries, got, tt.want)
			}
		})
	}
}

func TestNotificationValidate(t *testing.T) {
	t.Parallel()

	phone := "987654321"
	valid := Notification{
		CampaignKind:   CampaignKindGroup,
		CampaignID:     "c1",
		RecipientKind:  RecipientKindPartner,
		RecipientID:    "p1",
		Channel:        ChannelWhatsApp,
		RecipientPhone: &phone,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	missingIdentifier := valid
	missingIdentifier.Channel = ChannelEmail
	if err := missingIdentifier.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}

	missingCampaign := valid
	missingCampaign.CampaignID = ""
	if err := missingCampaign.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}

func TestStringPtr(t *testing.T) {
	t.Parallel()

	if StringPtr("  ") != nil {
		t.Fatal("StringPtr(blank) should be nil")
	}
	if got := StringPtr("x"); got == nil || *got != "x" {
		t.Fatalf("StringPtr(x) = %v, want x", got)
	}
}
