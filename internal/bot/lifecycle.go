package bot

import (
	"context"

	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Start runs the bot in long-polling mode until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting bot in polling mode")

	// Remove webhook (if any was set previously)
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot started successfully. Waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes a single Telegram update
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	}
	if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// handleMessage routes a message to a command handler or an ongoing
// conversation
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.sendText(message.Chat.ID, "An error occurred while processing your request. Please try again.")
		}
	}()

	userID := message.From.ID

	if state, ok := b.getState(userID); ok {
		if state.Step == -1 {
			b.clearState(userID)
		} else if message.IsCommand() {
			// Any command interrupts an ongoing conversation
			b.clearState(userID)
			if message.Command() == "cancel" {
				b.sendText(message.Chat.ID, "Cancelled.")
				return
			}
		} else {
			b.handleConversation(ctx, message, state)
			if state.Step == -1 {
				b.clearState(userID)
			}
			return
		}
	}

	if !message.IsCommand() {
		return
	}

	switch message.Command() {
	case "start":
		b.handleStart(ctx, message)
	case "help":
		b.handleHelp(message)
	case "pitchdeck":
		b.handlePitchDeckStart(ctx, message)
	case "presentation":
		b.handlePresentationStart(message)
	case "report":
		b.handleReportStart(message)
	case "balance":
		b.handleBalance(ctx, message)
	case "prices":
		b.handlePrices(ctx, message)
	case "topup":
		b.handleTopUpStart(message)
	case "status":
		b.handleStatus(ctx, message)
	case "cancel":
		b.sendText(message.Chat.ID, "Nothing to cancel.")
	case "setprice":
		b.handleSetPrice(ctx, message)
	case "credit":
		b.handleCredit(ctx, message)
	case "grant":
		b.handleGrant(ctx, message)
	case "deposits":
		b.handleDeposits(ctx, message)
	default:
		b.sendText(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}
