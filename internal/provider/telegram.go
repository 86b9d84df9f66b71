package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const defaultTelegramAPIURL = "https://api.telegram.org"

type telegramButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type telegramReplyMarkup struct {
	InlineKeyboard [][]telegramButton `json:"inline_keyboard"`
}

type telegramSendMessageRequest struct {
	ChatID      string               `json:"chat_id"`
	Text        string               `json:"text"`
	ParseMode   string               `json:"parse_mode"`
	ReplyMarkup *telegramReplyMarkup `json:"reply_markup,omitempty"`
}

// TelegramBotProvider sends messages through the Telegram Bot API. Calls are throttled
// in-process to stay under the bot's global send limit.
type TelegramBotProvider struct {
	client  *resty.Client
	token   string
	limiter *rate.Limiter
}

func NewTelegramBotProvider(token string, perSecond int) *TelegramBotProvider {
	return NewTelegramBotProviderWithClient(newRestyClient(defaultTelegramAPIURL, defaultHTTPTimeout), token, perSecond)
}

func NewTelegramBotProviderWithClient(client *resty.Client, token string, perSecond int) *TelegramBotProvider {
	if perSecond <= 0 {
		perSecond = 25
	}
	return &TelegramBotProvider{
		client:  client,
		token:   strings.TrimSpace(token),
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

func (p *TelegramBotProvider) Name() string { return "Telegram" }

func (p *TelegramBotProvider) IsConfigured() bool {
	return p != nil && p.client != nil && p.token != ""
}

func (p *TelegramBotProvider) SendText(ctx context.Context, recipient, message string) (*ProviderResponse, error) {
	return p.send(ctx, recipient, message, nil)
}

func (p *TelegramBotProvider) SendWithButton(ctx context.Context, recipient, message, buttonText, buttonURL string) (*ProviderResponse, error) {
	markup := &telegramReplyMarkup{
		InlineKeyboard: [][]telegramButton{{{Text: buttonText, URL: buttonURL}}},
	}
	return p.send(ctx, recipient, message, markup)
}

func (p *TelegramBotProvider) send(ctx context.Context, recipient, message string, markup *telegramReplyMarkup) (*ProviderResponse, error) {
	if !p.IsConfigured() {
		return nil, NotConfiguredError(p.Name())
	}
	chatID, err := telegramChatID(recipient)
	if err != nil {
		return nil, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &ProviderError{Message: "telegram throttle wait failed", Transient: true, Cause: err}
	}

	body := telegramSendMessageRequest{
		ChatID:      chatID,
		Text:        message,
		ParseMode:   "HTML",
		ReplyMarkup: markup,
	}
	resp, err := postJSON(ctx, p.client.R(), fmt.Sprintf("/bot%s/sendMessage", p.token), body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		Result      struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &payload); err == nil {
		if !payload.OK {
			return nil, &ProviderError{StatusCode: resp.StatusCode, Message: payload.Description}
		}
		resp.MessageID = strconv.FormatInt(payload.Result.MessageID, 10)
	}
	return resp, nil
}

// telegramChatID keeps @usernames and reduces anything else to a numeric chat id.
func telegramChatID(recipient string) (string, error) {
	clean := strings.TrimSpace(recipient)
	if !strings.HasPrefix(clean, "@") {
		clean = digitsOnly(clean)
	}
	if clean == "" || clean == "@" {
		return "", fmt.Errorf("%w: telegram id %q", ErrInvalidRecipient, recipient)
	}
	return clean, nil
}
