package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pitchbot/internal/models"
	"pitchbot/internal/settlement"
)

// pitchDeckQuestions is the fixed questionnaire for the pitch deck flow.
// Answers are passed verbatim to the content generator.
var pitchDeckQuestions = []string{
	"What is your startup called, and what does it do in one sentence?",
	"What problem are you solving, and who has it?",
	"How does your product solve that problem?",
	"How big is the market you are going after?",
	"How do you make money?",
	"Who are your competitors, and what makes you different?",
	"Who is on the team, and why are you the right people?",
	"How much are you raising, and what will it fund?",
}

const (
	minSlides = 3
	maxSlides = 30

	minTopUp = 1000
)

// handleConversation processes multi-step conversations
func (b *Bot) handleConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	switch state.Command {
	case "pitchdeck":
		b.handlePitchDeckConversation(ctx, message, state)
	case "presentation":
		b.handlePresentationConversation(ctx, message, state)
	case "report":
		b.handleReportConversation(ctx, message, state)
	case "topup":
		b.handleTopUpConversation(ctx, message, state)
	}
}

// handlePitchDeckConversation walks through the questionnaire and funds
// the task after the last answer
func (b *Bot) handlePitchDeckConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	answer := strings.TrimSpace(message.Text)
	if answer == "" {
		b.sendText(message.Chat.ID, "Please answer in text, or /cancel to stop.")
		return
	}

	answers := state.Data["answers"].([]string)
	answers = append(answers, answer)
	state.Data["answers"] = answers

	if len(answers) < len(pitchDeckQuestions) {
		next := len(answers)
		b.sendText(message.Chat.ID, fmt.Sprintf("Question %d/%d:\n%s",
			next+1, len(pitchDeckQuestions), pitchDeckQuestions[next]))
		return
	}

	price, err := b.db.GetPrice(ctx, models.ServicePitchDeck)
	if err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		state.Step = -1
		return
	}

	payload := models.PitchDeckPayload{
		Questions: pitchDeckQuestions,
		Answers:   answers,
	}
	b.queueGeneration(ctx, message.Chat.ID, message.From.ID, models.KindPitchDeck, payload, 0, price)
	state.Step = -1
}

// handlePresentationConversation collects topic, details and slide count
func (b *Bot) handlePresentationConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	text := strings.TrimSpace(message.Text)

	switch state.Step {
	case 1: // Waiting for topic
		if text == "" {
			b.sendText(message.Chat.ID, "Please enter a topic, or /cancel to stop.")
			return
		}
		state.Data["topic"] = text
		state.Step = 2
		b.sendText(message.Chat.ID,
			"Any details to include? Audience, key points, tone. Send \"-\" to skip.")

	case 2: // Waiting for details
		if text != "-" {
			state.Data["details"] = text
		}
		state.Step = 3
		b.sendText(message.Chat.ID, fmt.Sprintf(
			"How many slides? (%d to %d)", minSlides, maxSlides))

	case 3: // Waiting for slide count
		count, err := strconv.Atoi(text)
		if err != nil || count < minSlides || count > maxSlides {
			b.sendText(message.Chat.ID, fmt.Sprintf(
				"Please enter a number between %d and %d:", minSlides, maxSlides))
			return
		}
		state.Data["slides"] = count

		perSlide, err := b.db.GetPrice(ctx, models.ServicePresentationSlide)
		if err != nil {
			b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
			state.Step = -1
			return
		}
		total := perSlide * int64(count)
		state.Data["price"] = total
		state.Step = 4

		msg := tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf(
			"📊 %s\n%d slides, total price: %s\n\nCreate it?",
			state.Data["topic"], count, formatAmount(total)))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Create", "present:confirm"),
				tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "present:cancel"),
			),
		)
		b.sendMessage(msg)

	case 4:
		// Waiting for the inline confirmation, ignore free text
		b.sendText(message.Chat.ID, "Please use the buttons above, or /cancel.")
	}
}

// handleReportConversation collects the weekly report fields
func (b *Bot) handleReportConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	text := strings.TrimSpace(message.Text)
	if text == "" {
		b.sendText(message.Chat.ID, "Please answer in text, or /cancel to stop.")
		return
	}

	switch state.Step {
	case 1: // Waiting for full name
		state.Data["full_name"] = text
		state.Step = 2
		b.sendText(message.Chat.ID, "Which district or department do you work in?")

	case 2: // Waiting for district
		state.Data["district"] = text
		state.Step = 3
		b.sendText(message.Chat.ID, "Which week is this report for? (e.g. 2026-08-24 to 2026-08-30)")

	case 3: // Waiting for week date
		state.Data["week_date"] = text
		state.Step = 4
		b.sendText(message.Chat.ID,
			"List what you did this week, one item per line:")

	case 4: // Waiting for task list
		var tasks []string
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				tasks = append(tasks, line)
			}
		}
		if len(tasks) == 0 {
			b.sendText(message.Chat.ID, "Please list at least one item:")
			return
		}

		price, err := b.db.GetPrice(ctx, models.ServiceWeeklyReport)
		if err != nil {
			b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
			state.Step = -1
			return
		}

		payload := models.WeeklyReportPayload{
			FullName: state.Data["full_name"].(string),
			District: state.Data["district"].(string),
			WeekDate: state.Data["week_date"].(string),
			Tasks:    tasks,
		}
		b.queueGeneration(ctx, message.Chat.ID, message.From.ID, models.KindWeeklyReport, payload, 0, price)
		state.Step = -1
	}
}

// handleTopUpConversation collects the amount and the payment receipt,
// then parks the deposit for admin review
func (b *Bot) handleTopUpConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	switch state.Step {
	case 1: // Waiting for amount
		amount, err := strconv.ParseInt(strings.TrimSpace(message.Text), 10, 64)
		if err != nil || amount < minTopUp {
			b.sendText(message.Chat.ID, fmt.Sprintf(
				"Please enter a whole amount of at least %s:", formatAmount(minTopUp)))
			return
		}
		state.Data["amount"] = amount
		state.Step = 2
		b.sendText(message.Chat.ID,
			"Now send a photo of your payment receipt. An administrator will review it shortly.")

	case 2: // Waiting for receipt photo
		fileID := receiptFileID(message)
		if fileID == "" {
			b.sendText(message.Chat.ID, "Please send the receipt as a photo, or /cancel.")
			return
		}

		amount := state.Data["amount"].(int64)
		userID := message.From.ID

		if err := b.db.EnsureAccount(ctx, userID); err != nil {
			b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
			state.Step = -1
			return
		}

		entryID, err := b.db.AppendLedgerEntry(ctx, models.LedgerEntry{
			TelegramID:    userID,
			Type:          models.EntryDeposit,
			Amount:        amount,
			Status:        models.EntryPending,
			ReceiptFileID: fileID,
			Description:   fmt.Sprintf("top-up request from @%s", message.From.UserName),
		})
		if err != nil {
			b.sendText(message.Chat.ID, fmt.Sprintf("Error: %v", err))
			state.Step = -1
			return
		}

		b.sendText(message.Chat.ID, fmt.Sprintf(
			"✅ Request #%d submitted for %s. You will be notified once it is reviewed.",
			entryID, formatAmount(amount)))

		b.notifyAdmins(func(adminID int64) tgbotapi.Chattable {
			photo := tgbotapi.NewPhoto(adminID, tgbotapi.FileID(fileID))
			photo.Caption = fmt.Sprintf(
				"💳 Top-up request #%d\nUser: %d (@%s)\nAmount: %s",
				entryID, userID, message.From.UserName, formatAmount(amount))
			photo.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("✅ Approve", fmt.Sprintf("approve_dep:%d", entryID)),
					tgbotapi.NewInlineKeyboardButtonData("❌ Reject", fmt.Sprintf("reject_dep:%d", entryID)),
				),
			)
			return photo
		})

		state.Step = -1
	}
}

// receiptFileID extracts the largest photo's file ID from a message
func receiptFileID(message *tgbotapi.Message) string {
	if len(message.Photo) > 0 {
		return message.Photo[len(message.Photo)-1].FileID
	}
	if message.Document != nil {
		return message.Document.FileID
	}
	return ""
}

// queueGeneration funds a task and reports the outcome to the user.
// Funding and task creation happen atomically inside the settlement
// service; this only renders the result.
func (b *Bot) queueGeneration(ctx context.Context, chatID, ownerID int64, kind models.TaskKind, payload interface{}, slideCount int, price int64) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.sendText(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	taskID, err := b.settlement.RequestGeneration(ctx, ownerID, kind, raw, slideCount, price)
	if errors.Is(err, settlement.ErrInsufficientFunds) {
		balance, _ := b.db.GetBalance(ctx, ownerID)
		b.sendText(chatID, fmt.Sprintf(
			"❌ Not enough funds.\n\nPrice: %s\nYour balance: %s\n\nUse /topup to add funds, then try again.",
			formatAmount(price), formatAmount(balance)))
		return
	}
	if err != nil {
		b.sendText(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	charged := formatAmount(price)
	if task, err := b.db.GetTask(ctx, taskID); err == nil && task.AmountCharged == 0 {
		charged = "1 free presentation"
	}

	b.sendText(chatID, fmt.Sprintf(
		"✅ Order accepted!\n\nTask ID: %s\nCharged: %s\n\nI'll send progress updates here. Check any time with /status %s",
		taskID, charged, taskID))
}
