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

// requireAdmin rejects non-admin callers of admin commands
func (b *Bot) requireAdmin(message *tgbotapi.Message) bool {
	if b.admins[message.From.ID] {
		return true
	}
	b.logger.Warn("Unauthorized admin command",
		zap.Int64("user_id", message.From.ID),
		zap.String("text", message.Text),
	)
	b.sendText(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	return false
}

// handleSetPrice updates a service price: /setprice <service> <amount>
func (b *Bot) handleSetPrice(ctx context.Context, message *tgbotapi.Message) {
	if !b.requireAdmin(message) {
		return
	}

	args := strings.Fields(message.CommandArguments())
	if len(args) != 2 {
		b.sendText(message.Chat.ID, fmt.Sprintf(
			"Usage: /setprice <service> <amount>\n\nServices: %s, %s, %s",
			models.ServicePitchDeck, models.ServicePresentationSlide, models.ServiceWeeklyReport))
		return
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 {
		b.sendText(message.Chat.ID, "Amount must be a positive whole number of so'm.")
		return
	}

	updated, err := b.db.SetPrice(ctx, args[0], amount, message.From.ID)
	if err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}
	if !updated {
		b.sendText(message.Chat.ID, fmt.Sprintf("Unknown service %q.", args[0]))
		return
	}

	b.logger.Info("Price updated",
		zap.String("service", args[0]),
		zap.Int64("amount", amount),
		zap.Int64("admin_id", message.From.ID),
	)
	b.sendText(message.Chat.ID, fmt.Sprintf("✅ %s price set to %s.", args[0], formatAmount(amount)))
}

// handleCredit adds funds to a user's balance: /credit <user_id> <amount>
func (b *Bot) handleCredit(ctx context.Context, message *tgbotapi.Message) {
	if !b.requireAdmin(message) {
		return
	}

	userID, amount, ok := b.parseUserAmount(message, "/credit <user_id> <amount>")
	if !ok {
		return
	}

	if err := b.db.Credit(ctx, userID, amount); err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}
	if _, err := b.db.AppendLedgerEntry(ctx, models.LedgerEntry{
		TelegramID:  userID,
		Type:        models.EntryDeposit,
		Amount:      amount,
		Status:      models.EntryApproved,
		Description: fmt.Sprintf("manual credit by admin %d", message.From.ID),
	}); err != nil {
		b.logger.Warn("Failed to record manual credit", zap.Int64("user_id", userID), zap.Error(err))
	}

	b.sendText(message.Chat.ID, fmt.Sprintf("✅ Credited %s to user %d.", formatAmount(amount), userID))
	b.sendText(userID, fmt.Sprintf("🎁 %s was added to your balance.", formatAmount(amount)))
}

// handleGrant gives a user free presentations: /grant <user_id> <count>
func (b *Bot) handleGrant(ctx context.Context, message *tgbotapi.Message) {
	if !b.requireAdmin(message) {
		return
	}

	userID, count, ok := b.parseUserAmount(message, "/grant <user_id> <count>")
	if !ok {
		return
	}

	if err := b.db.AddFreeCredits(ctx, userID, int(count)); err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.sendText(message.Chat.ID, fmt.Sprintf("✅ Granted %d free presentation(s) to user %d.", count, userID))
	b.sendText(userID, fmt.Sprintf("🎁 You received %d free presentation(s)!", count))
}

// handleDeposits lists top-up requests waiting for review
func (b *Bot) handleDeposits(ctx context.Context, message *tgbotapi.Message) {
	if !b.requireAdmin(message) {
		return
	}

	pending, err := b.db.ListPendingDeposits(ctx, 20)
	if err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(pending) == 0 {
		b.sendText(message.Chat.ID, "No pending top-up requests.")
		return
	}

	var text strings.Builder
	text.WriteString("Pending top-up requests:\n\n")
	for _, entry := range pending {
		text.WriteString(fmt.Sprintf("#%d - user %d - %s - %s\n",
			entry.ID, entry.TelegramID, formatAmount(entry.Amount),
			entry.CreatedAt.Format("2006-01-02 15:04")))
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, text.String())
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, entry := range pending {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ #%d", entry.ID), fmt.Sprintf("approve_dep:%d", entry.ID)),
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("❌ #%d", entry.ID), fmt.Sprintf("reject_dep:%d", entry.ID)),
		))
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.sendMessage(msg)
}

func (b *Bot) parseUserAmount(message *tgbotapi.Message, usage string) (int64, int64, bool) {
	args := strings.Fields(message.CommandArguments())
	if len(args) != 2 {
		b.sendText(message.Chat.ID, "Usage: "+usage)
		return 0, 0, false
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.sendText(message.Chat.ID, "Invalid user ID.")
		return 0, 0, false
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 {
		b.sendText(message.Chat.ID, "Amount must be a positive whole number.")
		return 0, 0, false
	}
	return userID, amount, true
}
