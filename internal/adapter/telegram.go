package adapter

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramBot defines an interface for the Telegram bot API operations used by the listener
//
//go:generate mockgen -source=telegram.go -destination=../mocks/telegram.go -package=mocks -mock_names=TelegramBot=MockTelegramBot,TelegramClient=MockTelegramClient
type TelegramBot interface {
	// GetUpdatesChan starts long polling and returns the channel of updates
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	// StopReceivingUpdates stops long polling
	StopReceivingUpdates()
	// Username returns the bot's own username
	Username() string
}

// TelegramClient defines an interface for creating Telegram bot connections
type TelegramClient interface {
	Connect(token string, debug bool) (TelegramBot, error)
}

// RealTelegramClient implements TelegramClient using the telegram-bot-api package
type RealTelegramClient struct{}

// NewTelegramClient creates a new real Telegram client
func NewTelegramClient() TelegramClient {
	return &RealTelegramClient{}
}

func (c *RealTelegramClient) Connect(token string, debug bool) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = debug

	return &telegramBotAdapter{bot: bot}, nil
}

// telegramBotAdapter adapts *tgbotapi.BotAPI to our TelegramBot interface
type telegramBotAdapter struct {
	bot *tgbotapi.BotAPI
}

func (a *telegramBotAdapter) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return a.bot.GetUpdatesChan(config)
}

func (a *telegramBotAdapter) StopReceivingUpdates() {
	a.bot.StopReceivingUpdates()
}

func (a *telegramBotAdapter) Username() string {
	return a.bot.Self.UserName
}
