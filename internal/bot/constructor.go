package bot

import (
	"fmt"

	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pitchbot/internal/settlement"
	"pitchbot/internal/storage"
)

// NewBot creates a new Telegram bot
func NewBot(token string, db storage.Storage, settlementSvc *settlement.Service, adminIDs []int64, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))

	b := newBot(db, settlementSvc, adminIDs, logger)
	b.api = api
	return b, nil
}

// newBot wires everything except the Telegram API client. Tests use it
// directly so handlers run without network access.
func newBot(db storage.Storage, settlementSvc *settlement.Service, adminIDs []int64, logger *zap.Logger) *Bot {
	admins := make(map[int64]bool)
	for _, id := range adminIDs {
		admins[id] = true
	}

	return &Bot{
		db:         db,
		settlement: settlementSvc,
		admins:     admins,
		states:     make(map[int64]*ConversationState),
		logger:     logger,
	}
}
