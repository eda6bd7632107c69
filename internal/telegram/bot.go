// Package telegram reads channel and group posts through the Bot API and
// sends run reports to a chat.
package telegram

import (
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxTelegramMessage = 4096

// NewBot connects to the Bot API. An empty endpoint selects the public API;
// a nil client selects http.DefaultClient.
func NewBot(token, endpoint string, client *http.Client) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return bot, nil
}

// send delivers text in as many messages as needed, falling back to plain
// text when Telegram rejects the markdown.
func send(bot *tgbotapi.BotAPI, chatID int64, text string, logger *slog.Logger) error {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := bot.Send(msg); err != nil {
			logger.Debug("markdown send rejected, retrying as plain text", "error", err)
			msg.ParseMode = ""
			if _, err := bot.Send(msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most maxTelegramMessage
// characters without breaking a UTF-8 sequence.
func splitMessage(text string) []string {
	if utf8.RuneCountInString(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end, n := 0, 0
		for end < len(text) && n < maxTelegramMessage {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
			n++
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
