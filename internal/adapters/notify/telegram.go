package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/netpulse/internal/domain/model"
)

const (
	defaultTelegramEndpoint = "https://api.telegram.org"
	defaultTelegramTimeout  = 5 * time.Second
	// Telegram rejects messages longer than this.
	telegramMaxMessageLen = 4096
)

// Telegram posts notifications to a chat via the Bot API.
type Telegram struct {
	botToken string
	chatID   string
	endpoint string
	client   *http.Client
}

var _ Notifier = (*Telegram)(nil)

// TelegramOption applies a configuration option to the Telegram notifier.
type TelegramOption func(*Telegram)

// WithTelegramEndpoint overrides the Bot API base URL.
func WithTelegramEndpoint(endpoint string) TelegramOption {
	return func(t *Telegram) {
		if endpoint != "" {
			t.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) {
		if c != nil {
			t.client = c
		}
	}
}

// NewTelegram registers bot token and chat identifier.
func NewTelegram(botToken, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		botToken: botToken,
		chatID:   chatID,
		endpoint: defaultTelegramEndpoint,
		client:   &http.Client{Timeout: defaultTelegramTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements Notifier.
func (t *Telegram) Name() string { return "telegram" }

// Notify implements Notifier.
func (t *Telegram) Notify(ctx context.Context, n model.Notification) error {
	if t.botToken == "" || t.chatID == "" || t.client == nil {
		return fmt.Errorf("telegram: %w", ErrMisconfigured)
	}

	text := truncateRunes(n.Subject+"\n\n"+n.Body, telegramMaxMessageLen)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.endpoint, t.botToken)
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %w: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: %w: %s", ErrDelivery, resp.Status)
	}
	return nil
}

// truncateRunes cuts s to at most limit characters without splitting a rune.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	i := 0
	for n := 0; n < limit; n++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}
