// Package telegram wraps the Bot API behind the two calls the bridge needs:
// long-polling for updates and sending plain-text messages.
package telegram

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"redgram/models"
)

// api is the slice of tgbotapi.BotAPI the client uses. Tests substitute a fake.
type api interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client is a thin adapter over the Telegram Bot API.
type Client struct {
	api api
}

// New authorizes the bot token against the Bot API.
func New(token string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot session: %w", err)
	}

	log.WithFields(log.Fields{
		"username": bot.Self.UserName,
	}).Info("Authorized on Telegram")

	return &Client{api: bot}, nil
}

// GetUpdates long-polls for inbound updates with update_id >= offset. The
// call returns early when new data exists, otherwise after timeout.
func (c *Client) GetUpdates(offset int, timeout time.Duration) ([]models.ChatUpdate, error) {
	config := tgbotapi.NewUpdate(offset)
	config.Timeout = int(timeout.Seconds())

	raw, err := c.api.GetUpdates(config)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	updates := make([]models.ChatUpdate, 0, len(raw))
	for _, update := range raw {
		if update.Message != nil && update.Message.Text != "" {
			updates = append(updates, models.TextMessage{
				UpdateID: update.UpdateID,
				ChatID:   update.Message.Chat.ID,
				Text:     update.Message.Text,
			})
			continue
		}
		updates = append(updates, models.OtherUpdate{UpdateID: update.UpdateID})
	}

	return updates, nil
}

// SendMessage delivers a plain-text message to a chat.
func (c *Client) SendMessage(chatID int64, text string) error {
	if _, err := c.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
