package notify

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender delivers a text message to a chat.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// BotClient adapts tgbotapi.BotAPI to Sender.
type BotClient struct {
	bot *tgbotapi.BotAPI
}

// NewBotClient creates a client for token. The token is verified with the
// Telegram API before returning.
func NewBotClient(token string) (*BotClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &BotClient{bot: bot}, nil
}

// SendMessage sends text to chatID without link previews.
func (c *BotClient) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, err := c.bot.Send(msg)
	return err
}

var _ Sender = (*BotClient)(nil)
