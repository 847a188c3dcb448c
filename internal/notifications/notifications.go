package notifications

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quantpool/multi-engine-bot/internal/config"
)

// Alert levels understood by SendAlert.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelSuccess = "success"
)

// Notifier delivers operational alerts to an external channel.
type Notifier interface {
	SendAlert(level, message string) error
}

// FromConfig returns the configured notifier, or a no-op when no channel is
// configured.
func FromConfig(cfg config.NotifyConfig) Notifier {
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		return NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
	}
	return NoopNotifier{}
}

// NoopNotifier discards every alert.
type NoopNotifier struct{}

func (NoopNotifier) SendAlert(level, message string) error { return nil }

// TelegramNotifier posts alerts to a Telegram chat through the bot API.
type TelegramNotifier struct {
	token  string
	chatID string
	client *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) SendAlert(level, message string) error {
	emoji := "ℹ️"
	switch level {
	case LevelWarning:
		emoji = "⚠️"
	case LevelError:
		emoji = "🚨"
	case LevelSuccess:
		emoji = "✅"
	}

	text := fmt.Sprintf("%s *Fund Bot Alert*\n\n%s", emoji, message)

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("text", text)
	data.Set("parse_mode", "Markdown")

	resp, err := t.client.Post(apiURL, "application/x-www-form-urlencoded",
		strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}
