package bot

import (
	"sync"

	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pitchbot/internal/settlement"
	"pitchbot/internal/storage"
)

// Bot represents the Telegram bot wrapper
type Bot struct {
	api        *tgbotapi.BotAPI
	db         storage.Storage
	settlement *settlement.Service
	admins     map[int64]bool
	states     map[int64]*ConversationState
	statesMu   sync.Mutex
	logger     *zap.Logger
}

// ConversationState tracks the state of multi-step commands
type ConversationState struct {
	Command string
	Step    int
	Data    map[string]interface{}
}
