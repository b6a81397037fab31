package bot

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pitchbot/internal/models"
	"pitchbot/internal/settlement"
	"pitchbot/internal/storage/stubs"
)

const (
	testUserID  int64 = 100
	testAdminID int64 = 1
)

// newTestBot builds a bot without a Telegram API client; handlers run
// but nothing is sent anywhere
func newTestBot(t *testing.T) (*Bot, *stubs.MockDB) {
	t.Helper()
	db := stubs.NewMockDB()
	require.NoError(t, db.Initialize(context.Background()))
	b := newBot(db, settlement.New(db, db, zap.NewNop()), []int64{testAdminID}, zap.NewNop())
	return b, db
}

func commandMsg(userID int64, text string) *tgbotapi.Message {
	cmd := strings.Fields(text)[0]
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "tester"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(cmd)},
		},
	}
}

func textMsg(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: userID, UserName: "tester"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}
}

func photoMsg(userID int64, fileID string) *tgbotapi.Message {
	msg := textMsg(userID, "")
	msg.Photo = []tgbotapi.PhotoSize{{FileID: fileID}}
	return msg
}

func callback(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: userID, UserName: "tester"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}
}

func TestStartCreatesAccount(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testUserID, "/start"))

	account, err := db.GetAccount(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, testUserID, account.TelegramID)
	assert.Equal(t, int64(0), account.Balance)
}

func TestPitchDeckFlow(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, db.Credit(ctx, testUserID, 50000))

	b.handleMessage(ctx, commandMsg(testUserID, "/pitchdeck"))
	_, active := b.getState(testUserID)
	require.True(t, active)

	for i := range pitchDeckQuestions {
		b.handleMessage(ctx, textMsg(testUserID, "answer "+strings.Repeat("x", i+1)))
	}

	// The conversation is finished and the task is funded
	_, active = b.getState(testUserID)
	assert.False(t, active)

	pending, err := db.ListPendingTasks(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	task := pending[0]
	assert.Equal(t, models.KindPitchDeck, task.Kind)
	assert.Equal(t, testUserID, task.OwnerID)
	assert.Equal(t, int64(50000), task.AmountCharged)

	var payload models.PitchDeckPayload
	require.NoError(t, json.Unmarshal(task.Payload, &payload))
	assert.Len(t, payload.Answers, len(pitchDeckQuestions))
	assert.Equal(t, pitchDeckQuestions, payload.Questions)

	balance, err := db.GetBalance(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestPitchDeckInsufficientFunds(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testUserID, "/pitchdeck"))
	for range pitchDeckQuestions {
		b.handleMessage(ctx, textMsg(testUserID, "answer"))
	}

	pending, err := db.ListPendingTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, active := b.getState(testUserID)
	assert.False(t, active)
}

func TestPresentationFlow(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	// 10 slides at the seeded 3 000 per slide
	require.NoError(t, db.Credit(ctx, testUserID, 30000))

	b.handleMessage(ctx, commandMsg(testUserID, "/presentation"))
	b.handleMessage(ctx, textMsg(testUserID, "Go Concurrency"))
	b.handleMessage(ctx, textMsg(testUserID, "-"))
	b.handleMessage(ctx, textMsg(testUserID, "10"))

	state, active := b.getState(testUserID)
	require.True(t, active)
	assert.Equal(t, 4, state.Step)
	assert.Equal(t, int64(30000), state.Data["price"])

	b.handleCallbackQuery(ctx, callback(testUserID, "present:confirm"))

	pending, err := db.ListPendingTasks(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	task := pending[0]
	assert.Equal(t, models.KindPresentation, task.Kind)
	assert.Equal(t, 10, task.SlideCount)
	assert.Equal(t, int64(30000), task.AmountCharged)

	var payload models.PresentationPayload
	require.NoError(t, json.Unmarshal(task.Payload, &payload))
	assert.Equal(t, "Go Concurrency", payload.Topic)
	assert.Equal(t, 10, payload.SlideCount)

	_, active = b.getState(testUserID)
	assert.False(t, active)
}

func TestPresentationSlideCountValidation(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testUserID, "/presentation"))
	b.handleMessage(ctx, textMsg(testUserID, "Topic"))
	b.handleMessage(ctx, textMsg(testUserID, "details"))

	// Bad slide counts keep the conversation on the same step
	b.handleMessage(ctx, textMsg(testUserID, "many"))
	b.handleMessage(ctx, textMsg(testUserID, "100"))
	state, active := b.getState(testUserID)
	require.True(t, active)
	assert.Equal(t, 3, state.Step)

	b.handleMessage(ctx, textMsg(testUserID, "10"))
	state, _ = b.getState(testUserID)
	assert.Equal(t, 4, state.Step)
}

func TestPresentationCancelCallback(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testUserID, "/presentation"))
	b.handleMessage(ctx, textMsg(testUserID, "Topic"))
	b.handleMessage(ctx, textMsg(testUserID, "-"))
	b.handleMessage(ctx, textMsg(testUserID, "10"))

	b.handleCallbackQuery(ctx, callback(testUserID, "present:cancel"))

	pending, err := db.ListPendingTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	_, active := b.getState(testUserID)
	assert.False(t, active)
}

func TestWeeklyReportFlow(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, db.Credit(ctx, testUserID, 5000))

	b.handleMessage(ctx, commandMsg(testUserID, "/report"))
	b.handleMessage(ctx, textMsg(testUserID, "A. Karimov"))
	b.handleMessage(ctx, textMsg(testUserID, "Chilonzor"))
	b.handleMessage(ctx, textMsg(testUserID, "2026-08-24 to 2026-08-30"))
	b.handleMessage(ctx, textMsg(testUserID, "Meetup\nReporting\n"))

	pending, err := db.ListPendingTasks(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.KindWeeklyReport, pending[0].Kind)
	assert.Equal(t, int64(5000), pending[0].AmountCharged)

	var payload models.WeeklyReportPayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, "A. Karimov", payload.FullName)
	assert.Equal(t, []string{"Meetup", "Reporting"}, payload.Tasks)
}

func TestTopUpAndApproval(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testUserID, "/topup"))
	b.handleMessage(ctx, textMsg(testUserID, "20000"))
	b.handleMessage(ctx, photoMsg(testUserID, "receipt-file-1"))

	pending, err := db.ListPendingDeposits(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	entry := pending[0]
	assert.Equal(t, int64(20000), entry.Amount)
	assert.Equal(t, "receipt-file-1", entry.ReceiptFileID)

	// Balance is untouched until an admin approves
	balance, err := db.GetBalance(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	b.handleCallbackQuery(ctx, callback(testAdminID, "approve_dep:1"))

	balance, err = db.GetBalance(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), balance)

	// A second click must not credit twice
	b.handleCallbackQuery(ctx, callback(testAdminID, "approve_dep:1"))
	balance, err = db.GetBalance(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), balance)
}

func TestTopUpRejection(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testUserID, "/topup"))
	b.handleMessage(ctx, textMsg(testUserID, "20000"))
	b.handleMessage(ctx, photoMsg(testUserID, "receipt-file-1"))

	b.handleCallbackQuery(ctx, callback(testAdminID, "reject_dep:1"))

	balance, err := db.GetBalance(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	pending, err := db.ListPendingDeposits(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTopUpRejectsSmallAmounts(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testUserID, "/topup"))
	b.handleMessage(ctx, textMsg(testUserID, "500"))

	state, active := b.getState(testUserID)
	require.True(t, active)
	assert.Equal(t, 1, state.Step)
}

func TestNonAdminCannotResolveDeposits(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testUserID, "/topup"))
	b.handleMessage(ctx, textMsg(testUserID, "20000"))
	b.handleMessage(ctx, photoMsg(testUserID, "receipt-file-1"))

	// The requester approving their own deposit must be a no-op
	b.handleCallbackQuery(ctx, callback(testUserID, "approve_dep:1"))

	balance, err := db.GetBalance(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestAdminSetPrice(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testAdminID, "/setprice pitch_deck 60000"))

	price, err := db.GetPrice(ctx, models.ServicePitchDeck)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), price)
}

func TestNonAdminCannotSetPrice(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testUserID, "/setprice pitch_deck 1"))

	price, err := db.GetPrice(ctx, models.ServicePitchDeck)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), price)
}

func TestAdminCreditAndGrant(t *testing.T) {
	b, db := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testAdminID, "/credit 100 15000"))
	balance, err := db.GetBalance(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), balance)

	b.handleMessage(ctx, commandMsg(testAdminID, "/grant 100 2"))
	credits, err := db.GetFreeCredits(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, 2, credits)
}

func TestCommandInterruptsConversation(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, commandMsg(testUserID, "/pitchdeck"))
	_, active := b.getState(testUserID)
	require.True(t, active)

	b.handleMessage(ctx, commandMsg(testUserID, "/balance"))
	_, active = b.getState(testUserID)
	assert.False(t, active)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0 so'm", formatAmount(0))
	assert.Equal(t, "500 so'm", formatAmount(500))
	assert.Equal(t, "5 000 so'm", formatAmount(5000))
	assert.Equal(t, "50 000 so'm", formatAmount(50000))
	assert.Equal(t, "1 250 000 so'm", formatAmount(1250000))
	assert.Equal(t, "-5 000 so'm", formatAmount(-5000))
}
