package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pitchbot/internal/models"
)

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	// Answer the callback query to remove loading state
	if b.api != nil {
		b.api.Request(tgbotapi.NewCallback(query.ID, ""))
	}

	data := query.Data
	switch {
	case strings.HasPrefix(data, "approve_dep:"):
		b.handleDepositCallback(ctx, query, strings.TrimPrefix(data, "approve_dep:"), true)
	case strings.HasPrefix(data, "reject_dep:"):
		b.handleDepositCallback(ctx, query, strings.TrimPrefix(data, "reject_dep:"), false)
	case data == "present:confirm", data == "present:cancel":
		b.handlePresentationCallback(ctx, query, data == "present:confirm")
	}
}

// handleDepositCallback lets an admin resolve a pending top-up request.
// Resolution happens at most once no matter how many admins press the
// button.
func (b *Bot) handleDepositCallback(ctx context.Context, query *tgbotapi.CallbackQuery, rawID string, approve bool) {
	adminID := query.From.ID
	if !b.admins[adminID] {
		b.logger.Warn("Non-admin attempted deposit resolution",
			zap.Int64("user_id", adminID), zap.String("callback_data", query.Data))
		return
	}

	entryID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		b.sendText(query.Message.Chat.ID, fmt.Sprintf("Bad request ID: %v", err))
		return
	}

	resolved, err := b.db.ResolveDeposit(ctx, entryID, approve, adminID)
	if err != nil {
		b.sendText(query.Message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}
	if !resolved {
		b.sendText(query.Message.Chat.ID,
			fmt.Sprintf("Request #%d was already resolved by another admin.", entryID))
		return
	}

	entry, err := b.db.GetLedgerEntry(ctx, entryID)
	if err != nil {
		b.logger.Error("Failed to load resolved deposit", zap.Int64("entry_id", entryID), zap.Error(err))
		return
	}

	if approve {
		b.sendText(query.Message.Chat.ID, fmt.Sprintf(
			"✅ Request #%d approved: %s credited to user %d.",
			entryID, formatAmount(entry.Amount), entry.TelegramID))
		b.sendText(entry.TelegramID, fmt.Sprintf(
			"✅ Your top-up of %s was approved! Check /balance.", formatAmount(entry.Amount)))
	} else {
		b.sendText(query.Message.Chat.ID, fmt.Sprintf(
			"❌ Request #%d rejected.", entryID))
		b.sendText(entry.TelegramID, fmt.Sprintf(
			"❌ Your top-up request of %s was rejected. Contact support if you believe this is a mistake.",
			formatAmount(entry.Amount)))
	}
}

// handlePresentationCallback finalizes or cancels a presentation order
func (b *Bot) handlePresentationCallback(ctx context.Context, query *tgbotapi.CallbackQuery, confirm bool) {
	userID := query.From.ID
	chatID := query.Message.Chat.ID

	state, ok := b.getState(userID)
	if !ok || state.Command != "presentation" || state.Step != 4 {
		return
	}
	defer b.clearState(userID)

	if !confirm {
		b.sendText(chatID, "Cancelled. Start again with /presentation whenever you like.")
		return
	}

	details, _ := state.Data["details"].(string)
	payload := models.PresentationPayload{
		Topic:      state.Data["topic"].(string),
		Details:    details,
		SlideCount: state.Data["slides"].(int),
	}
	b.queueGeneration(ctx, chatID, userID, models.KindPresentation,
		payload, payload.SlideCount, state.Data["price"].(int64))
}
