package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/logger"
	"github.com/groupwatch/group-indexer/internal/messaging"
	"github.com/groupwatch/group-indexer/internal/types"
)

// SourcePrefix prefixes the chat id in Observation.Source
const SourcePrefix = "telegram_group_"

// Config holds the configuration for the Telegram listener
type Config struct {
	Token          string
	Debug          bool
	AllowedChatIDs []int64 // empty means every group the bot is a member of
	UpdateTimeout  int     // long polling timeout in seconds
}

type subscriber struct {
	bot     adapter.TelegramBot
	allowed map[int64]struct{}
	timeout int
	batchID string
	clock   adapter.Clock
}

// NewSubscriber connects to the Telegram bot API and returns a group message subscriber
func NewSubscriber(cfg Config, client adapter.TelegramClient, clock adapter.Clock) (messaging.Subscriber, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram bot token is required")
	}

	bot, err := client.Connect(cfg.Token, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	allowed := make(map[int64]struct{}, len(cfg.AllowedChatIDs))
	for _, id := range cfg.AllowedChatIDs {
		allowed[id] = struct{}{}
	}

	batchID, err := types.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate batch id: %w", err)
	}

	s := &subscriber{
		bot:     bot,
		allowed: allowed,
		timeout: cfg.UpdateTimeout,
		batchID: batchID,
		clock:   clock,
	}

	logger.Info("Connected to telegram",
		zap.String("bot", bot.Username()),
		zap.String("batch_id", s.batchID),
		zap.Int("allowed_chats", len(allowed)))

	return s, nil
}

// SubscribeObservations long-polls updates and forwards group messages to handler
func (s *subscriber) SubscribeObservations(ctx context.Context, handler messaging.ObservationHandler) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = s.timeout
	updates := s.bot.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}

			obs := s.toObservation(update)
			if obs == nil {
				continue
			}

			if err := handler(obs); err != nil {
				return err
			}
		}
	}
}

// toObservation converts an update into an observation, or nil when the update is not a group message
func (s *subscriber) toObservation(update tgbotapi.Update) *domain.Observation {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}

	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return nil
	}

	if len(s.allowed) > 0 {
		if _, ok := s.allowed[msg.Chat.ID]; !ok {
			return nil
		}
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return nil
	}

	obs := &domain.Observation{
		MessageID: fmt.Sprintf("%d:%d", msg.Chat.ID, msg.MessageID),
		RawText:   text,
		Timestamp: s.clock.Unix(int64(msg.Date), 0).UTC(),
		Source:    SourcePrefix + strconv.FormatInt(msg.Chat.ID, 10),
		BatchID:   s.batchID,
	}
	if msg.ForwardFromChat != nil {
		obs.EventGroupID = strconv.FormatInt(msg.ForwardFromChat.ID, 10)
	}

	return obs
}

// Close stops long polling
func (s *subscriber) Close() {
	s.bot.StopReceivingUpdates()
}
