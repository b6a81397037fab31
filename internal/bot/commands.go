package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pitchbot/internal/models"
)

// handleStart registers the account and shows the welcome message
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	if err := b.db.EnsureAccount(ctx, userID); err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}

	text := `Welcome to PitchBot! 🎯

I turn your ideas into polished PowerPoint presentations.

/pitchdeck - Create an investor pitch deck
/presentation - Create a presentation on any topic
/report - Create a weekly activity report
/balance - Check your balance
/prices - See current prices
/topup - Add funds to your balance
/status - Check a task by its ID
/help - Show this message`

	b.sendText(message.Chat.ID, text)
}

// handleHelp shows available commands
func (b *Bot) handleHelp(message *tgbotapi.Message) {
	text := `Available commands:

/pitchdeck - Create an investor pitch deck
/presentation - Create a presentation on any topic
/report - Create a weekly activity report
/balance - Check your balance
/prices - See current prices
/topup - Add funds to your balance
/status <task id> - Check a task
/cancel - Abort the current dialog`

	b.sendText(message.Chat.ID, text)
}

// handleBalance shows the user's balance and free credits
func (b *Bot) handleBalance(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	if err := b.db.EnsureAccount(ctx, userID); err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}

	balance, err := b.db.GetBalance(ctx, userID)
	if err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}
	freeCredits, err := b.db.GetFreeCredits(ctx, userID)
	if err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}

	text := fmt.Sprintf("💰 Your balance: %s", formatAmount(balance))
	if freeCredits > 0 {
		text += fmt.Sprintf("\n🎁 Free presentations: %d", freeCredits)
	}
	text += "\n\nUse /topup to add funds."
	b.sendText(message.Chat.ID, text)
}

// handlePrices shows the current price list
func (b *Bot) handlePrices(ctx context.Context, message *tgbotapi.Message) {
	prices, err := b.db.ListPrices(ctx)
	if err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}

	var text strings.Builder
	text.WriteString("💵 Current prices:\n\n")
	for _, price := range prices {
		if !price.IsActive {
			continue
		}
		switch price.ServiceType {
		case models.ServicePitchDeck:
			text.WriteString(fmt.Sprintf("Pitch deck: %s\n", formatAmount(price.Amount)))
		case models.ServicePresentationSlide:
			text.WriteString(fmt.Sprintf("Presentation: %s per slide\n", formatAmount(price.Amount)))
		case models.ServiceWeeklyReport:
			text.WriteString(fmt.Sprintf("Weekly report: %s\n", formatAmount(price.Amount)))
		}
	}
	b.sendText(message.Chat.ID, text.String())
}

// handleStatus reports progress for one task
func (b *Bot) handleStatus(ctx context.Context, message *tgbotapi.Message) {
	taskID := strings.TrimSpace(message.CommandArguments())
	if taskID == "" {
		b.sendText(message.Chat.ID, "Usage: /status <task id>")
		return
	}

	task, err := b.db.GetTask(ctx, taskID)
	if err != nil {
		b.sendText(message.Chat.ID, "Task not found. Check the ID and try again.")
		return
	}
	if task.OwnerID != message.From.ID && !b.admins[message.From.ID] {
		b.sendText(message.Chat.ID, "Task not found. Check the ID and try again.")
		return
	}

	var text string
	switch task.Status {
	case models.TaskPending:
		text = fmt.Sprintf("⏳ Task %s is queued.", task.ID)
	case models.TaskProcessing:
		text = fmt.Sprintf("⚙️ Task %s is in progress: %d%%", task.ID, task.Progress)
	case models.TaskCompleted:
		text = fmt.Sprintf("✅ Task %s is completed.", task.ID)
	case models.TaskFailed:
		text = fmt.Sprintf("❌ Task %s failed: %s", task.ID, task.ErrorDetail)
		if task.Refunded {
			text += "\nYour payment was returned."
		}
	}
	b.sendText(message.Chat.ID, text)
}

// handlePitchDeckStart begins the pitch deck questionnaire
func (b *Bot) handlePitchDeckStart(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	if err := b.db.EnsureAccount(ctx, userID); err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}

	price, err := b.db.GetPrice(ctx, models.ServicePitchDeck)
	if err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.setState(userID, &ConversationState{
		Command: "pitchdeck",
		Step:    1,
		Data:    map[string]interface{}{"answers": []string{}},
	})

	b.sendText(message.Chat.ID, fmt.Sprintf(
		"🚀 Let's build your pitch deck! Price: %s.\n\nI'll ask %d questions about your startup. Answer each in your own words, or /cancel at any time.\n\nQuestion 1/%d:\n%s",
		formatAmount(price), len(pitchDeckQuestions), len(pitchDeckQuestions), pitchDeckQuestions[0]))
}

// handlePresentationStart begins the free-topic presentation dialog
func (b *Bot) handlePresentationStart(message *tgbotapi.Message) {
	userID := message.From.ID
	b.setState(userID, &ConversationState{
		Command: "presentation",
		Step:    1,
		Data:    make(map[string]interface{}),
	})

	b.sendText(message.Chat.ID, "📊 What topic should the presentation cover?")
}

// handleReportStart begins the weekly report dialog
func (b *Bot) handleReportStart(message *tgbotapi.Message) {
	userID := message.From.ID
	b.setState(userID, &ConversationState{
		Command: "report",
		Step:    1,
		Data:    make(map[string]interface{}),
	})

	b.sendText(message.Chat.ID, "📋 Let's prepare your weekly report.\n\nWhat is your full name?")
}

// handleTopUpStart begins the balance top-up dialog
func (b *Bot) handleTopUpStart(message *tgbotapi.Message) {
	userID := message.From.ID
	b.setState(userID, &ConversationState{
		Command: "topup",
		Step:    1,
		Data:    make(map[string]interface{}),
	})

	b.sendText(message.Chat.ID,
		"💳 How much would you like to add to your balance? Enter the amount in so'm (minimum 1 000):")
}
