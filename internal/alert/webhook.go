package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DiscordConfig holds Discord webhook configuration
type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// DiscordSink sends alerts to a Discord webhook. Delivery runs in a
// goroutine; failures are logged and dropped.
type DiscordSink struct {
	webhookURL string
	enabled    bool
	client     *http.Client
	log        zerolog.Logger
}

// NewDiscordSink creates a Discord webhook sink
func NewDiscordSink(config DiscordConfig, logger zerolog.Logger) *DiscordSink {
	return &DiscordSink{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        logger.With().Str("component", "discord_sink").Logger(),
	}
}

// Emit posts the alert as a Discord embed
func (d *DiscordSink) Emit(event Event) {
	if !d.enabled {
		return
	}
	go d.send(event)
}

func (d *DiscordSink) send(event Event) {
	color := 0x3498DB // blue
	switch event.Severity {
	case SeverityWarning:
		color = 0xF1C40F // yellow
	case SeverityCritical:
		color = 0xE74C3C // red
	}

	embed := map[string]interface{}{
		"title":       string(event.Type),
		"description": event.Message,
		"color":       color,
		"timestamp":   event.Timestamp.Format(time.RFC3339),
	}

	if len(event.Context) > 0 {
		fields := make([]map[string]interface{}, 0, len(event.Context))
		for k, v := range event.Context {
			fields = append(fields, map[string]interface{}{
				"name": k, "value": fmt.Sprintf("%v", v), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to marshal discord payload")
		return
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		d.log.Error().Err(err).Msg("failed to send discord alert")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		d.log.Error().Int("status", resp.StatusCode).Msg("discord webhook rejected alert")
	}
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// TelegramSink sends alerts via the Telegram bot API
type TelegramSink struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
	log      zerolog.Logger
}

// NewTelegramSink creates a Telegram sink
func NewTelegramSink(config TelegramConfig, logger zerolog.Logger) *TelegramSink {
	return &TelegramSink{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      logger.With().Str("component", "telegram_sink").Logger(),
	}
}

// Emit posts the alert as a Telegram message
func (t *TelegramSink) Emit(event Event) {
	if !t.enabled {
		return
	}
	go t.send(event)
}

func (t *TelegramSink) send(event Event) {
	message := fmt.Sprintf("*%s* [%s]\n%s", event.Type, event.Severity, event.Message)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		t.log.Error().Err(err).Msg("failed to marshal telegram payload")
		return
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		t.log.Error().Err(err).Msg("failed to send telegram alert")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.log.Error().Int("status", resp.StatusCode).Msg("telegram API rejected alert")
	}
}
